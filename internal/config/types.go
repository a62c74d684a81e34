// Package config contains all configuration types and loading logic.
package config

// ServerConfig holds HTTP admission API configuration.
type ServerConfig struct {
	ListenAddress   string `toml:"listen_address" mapstructure:"listen_address"`
	BindIP          string `toml:"bind_ip" mapstructure:"bind_ip"`
	PIDFilePath     string `toml:"pidfilepath" mapstructure:"pidfilepath"`
	ReadTimeout     string `toml:"readtimeout" mapstructure:"readtimeout"`
	WriteTimeout    string `toml:"writetimeout" mapstructure:"writetimeout"`
	IdleTimeout     string `toml:"idletimeout" mapstructure:"idletimeout"`
	ShutdownTimeout string `toml:"shutdown" mapstructure:"shutdown"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// GuardConfig holds the disk usage thresholds evaluated for every write statement.
type GuardConfig struct {
	MinFreeMB      uint64 `toml:"min_free_mb" mapstructure:"min_free_mb"`
	MaxUsedPercent uint64 `toml:"max_used_percent" mapstructure:"max_used_percent"`
	Action         string `toml:"action" mapstructure:"action"`
	WarnSkipCount  uint64 `toml:"warn_skip_count" mapstructure:"warn_skip_count"`
	MonitoredPath  string `toml:"monitored_path" mapstructure:"monitored_path"`

	// Mode is Action parsed at load time.
	Mode Action `toml:"-" mapstructure:"-"`
}

// ProbeConfig controls how filesystem statistics are gathered.
type ProbeConfig struct {
	CacheTTL string `toml:"cache_ttl" mapstructure:"cache_ttl"`
}

// SecurityConfig holds bearer token settings for the admission API.
type SecurityConfig struct {
	EnableJWT    bool   `toml:"enablejwt" mapstructure:"enablejwt"`
	JWTSecret    string `toml:"jwtsecret" mapstructure:"jwtsecret"`
	JWTAlgorithm string `toml:"jwtalgorithm" mapstructure:"jwtalgorithm"`
}

// PrivilegesConfig lists identities that bypass the guard.
type PrivilegesConfig struct {
	Users []string `toml:"users" mapstructure:"users"`
}

// AuditConfig holds rejection audit log configuration.
type AuditConfig struct {
	Enabled bool   `toml:"enabled" mapstructure:"enabled"`
	Output  string `toml:"output" mapstructure:"output"`
	Path    string `toml:"path" mapstructure:"path"`
	Format  string `toml:"format" mapstructure:"format"`
	MaxSize int    `toml:"max_size" mapstructure:"max_size"`
	MaxAge  int    `toml:"max_age" mapstructure:"max_age"`
}

// RedisConfig holds Redis configuration for the audit mirror.
type RedisConfig struct {
	RedisEnabled  bool   `mapstructure:"redisenabled"`
	RedisDBIndex  int    `mapstructure:"redisdbindex"`
	RedisAddr     string `mapstructure:"redisaddr"`
	RedisPassword string `mapstructure:"redispassword"`
	RedisKey      string `mapstructure:"rediskey"`
	RedisMaxLen   int64  `mapstructure:"redismaxlen"`
}

// WorkersConfig holds worker pool configuration.
type WorkersConfig struct {
	NumWorkers int `mapstructure:"numworkers"`
	QueueSize  int `mapstructure:"queuesize"`
}

// DatabaseConfig describes the SQLite database served through the guard.
type DatabaseConfig struct {
	Enabled bool   `toml:"enabled" mapstructure:"enabled"`
	Path    string `toml:"path" mapstructure:"path"`
}

// MetricsConfig holds Prometheus exposition settings.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled" mapstructure:"enabled"`
	Path    string `toml:"path" mapstructure:"path"`
}

// BuildConfig holds build metadata.
type BuildConfig struct {
	Version string `mapstructure:"version"`
}

// Config is the top-level configuration struct.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Guard      GuardConfig      `mapstructure:"guard"`
	Probe      ProbeConfig      `mapstructure:"probe"`
	Security   SecurityConfig   `mapstructure:"security"`
	Privileges PrivilegesConfig `mapstructure:"privileges"`
	Audit      AuditConfig      `mapstructure:"audit"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Workers    WorkersConfig    `mapstructure:"workers"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Build      BuildConfig      `mapstructure:"build"`
}
