package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

var log = logrus.New()

// SetLogger replaces the package-level logger.
func SetLogger(l *logrus.Logger) { log = l }

// Loader reads the TOML configuration file and keeps the viper instance
// around so the guard section can be reloaded when the file changes.
type Loader struct {
	v    *viper.Viper
	file string
}

// NewLoader prepares a loader for configFile. An empty path means
// ./config.toml.
func NewLoader(configFile string) *Loader {
	if configFile == "" {
		configFile = "./config.toml"
	}
	v := viper.New()
	v.SetConfigFile(configFile)
	v.SetConfigType("toml")
	// 0 is a meaningful threshold, so the "disabled" default has to come
	// from viper rather than from applyDefaults.
	v.SetDefault("guard.max_used_percent", 100)
	return &Loader{v: v, file: configFile}
}

// Load reads and decodes the configuration file.
func (l *Loader) Load() (*Config, error) {
	if !fileExists(l.file) {
		return nil, fmt.Errorf("configuration file not found: %s", l.file)
	}

	if err := l.v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var conf Config
	if err := l.v.Unmarshal(&conf); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	applyDefaults(&conf)

	log.Infof("Configuration loaded from %s", l.file)
	return &conf, nil
}

// Watch reloads the guard section into store whenever the file changes.
// Only thresholds, action and skip count are hot; everything else needs a
// restart.
func (l *Loader) Watch(store *Store) {
	l.v.OnConfigChange(func(e fsnotify.Event) {
		var conf Config
		if err := l.v.Unmarshal(&conf); err != nil {
			log.Errorf("Config reload of %s failed: %v", e.Name, err)
			return
		}
		applyDefaults(&conf)
		if err := ValidateGuard(&conf.Guard); err != nil {
			log.Errorf("Config reload of %s rejected: %v", e.Name, err)
			return
		}
		store.Set(conf.Guard)
		log.Infof("Guard configuration reloaded: min_free_mb=%d max_used_percent=%d action=%s warn_skip_count=%d",
			conf.Guard.MinFreeMB, conf.Guard.MaxUsedPercent, conf.Guard.Mode, conf.Guard.WarnSkipCount)
	})
	l.v.WatchConfig()
}

// LoadConfig loads configuration from a TOML file.
func LoadConfig(configFile string) (*Config, error) {
	return NewLoader(configFile).Load()
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	conf := &Config{Guard: GuardConfig{MaxUsedPercent: 100}}
	applyDefaults(conf)
	return conf
}

func applyDefaults(conf *Config) {
	if conf.Server.ListenAddress == "" {
		conf.Server.ListenAddress = "8080"
	}
	if conf.Server.PIDFilePath == "" {
		conf.Server.PIDFilePath = "/var/run/maxdiskusage.pid"
	}
	if conf.Server.ReadTimeout == "" {
		conf.Server.ReadTimeout = "30s"
	}
	if conf.Server.WriteTimeout == "" {
		conf.Server.WriteTimeout = "30s"
	}
	if conf.Server.IdleTimeout == "" {
		conf.Server.IdleTimeout = "120s"
	}
	if conf.Server.ShutdownTimeout == "" {
		conf.Server.ShutdownTimeout = "30s"
	}

	if conf.Logging.Level == "" {
		conf.Logging.Level = "info"
	}
	if conf.Logging.MaxSize == 0 {
		conf.Logging.MaxSize = 100
	}
	if conf.Logging.MaxBackups == 0 {
		conf.Logging.MaxBackups = 7
	}
	if conf.Logging.MaxAge == 0 {
		conf.Logging.MaxAge = 30
	}

	if conf.Guard.Action == "" {
		conf.Guard.Action = "WARN"
	}
	if conf.Guard.MonitoredPath == "" {
		if conf.Database.Path != "" {
			conf.Guard.MonitoredPath = filepath.Dir(conf.Database.Path)
		} else {
			conf.Guard.MonitoredPath = "/"
		}
	}
	conf.Guard.Mode = ParseAction(conf.Guard.Action)

	if conf.Probe.CacheTTL == "" {
		conf.Probe.CacheTTL = "0s"
	}

	if conf.Security.JWTAlgorithm == "" {
		conf.Security.JWTAlgorithm = "HS256"
	}

	if conf.Audit.Output == "" {
		conf.Audit.Output = "file"
	}
	if conf.Audit.Format == "" {
		conf.Audit.Format = "json"
	}

	if conf.Redis.RedisKey == "" {
		conf.Redis.RedisKey = "maxdiskusage:rejections"
	}
	if conf.Redis.RedisMaxLen == 0 {
		conf.Redis.RedisMaxLen = 10000
	}

	if conf.Workers.NumWorkers == 0 {
		conf.Workers.NumWorkers = 2
	}
	if conf.Workers.QueueSize == 0 {
		conf.Workers.QueueSize = 256
	}

	if conf.Metrics.Path == "" {
		conf.Metrics.Path = "/metrics"
	}

	if conf.Build.Version == "" {
		conf.Build.Version = "1.0.0"
	}
}

// ValidateGuard checks the hot-reloadable guard section. An unknown action
// is not an error here: it is a runtime condition the evaluator reports.
func ValidateGuard(g *GuardConfig) error {
	if g.MaxUsedPercent > 100 {
		return fmt.Errorf("guard.max_used_percent must be between 0 and 100, got %d", g.MaxUsedPercent)
	}
	if strings.TrimSpace(g.MonitoredPath) == "" {
		return errors.New("guard.monitored_path is required")
	}
	return nil
}

// ValidateConfig performs basic configuration validation.
func ValidateConfig(c *Config) error {
	if c.Server.ListenAddress == "" {
		return errors.New("server.listen_address is required")
	}

	if err := ValidateGuard(&c.Guard); err != nil {
		return err
	}

	if _, err := time.ParseDuration(c.Probe.CacheTTL); err != nil {
		return fmt.Errorf("invalid probe.cache_ttl: %v", err)
	}
	for name, d := range map[string]string{
		"server.readtimeout":  c.Server.ReadTimeout,
		"server.writetimeout": c.Server.WriteTimeout,
		"server.idletimeout":  c.Server.IdleTimeout,
		"server.shutdown":     c.Server.ShutdownTimeout,
	} {
		if _, err := time.ParseDuration(d); err != nil {
			return fmt.Errorf("invalid %s: %v", name, err)
		}
	}

	if c.Security.EnableJWT && strings.TrimSpace(c.Security.JWTSecret) == "" {
		return errors.New("security.jwtsecret is required when security.enablejwt is true")
	}

	if c.Database.Enabled && strings.TrimSpace(c.Database.Path) == "" {
		return errors.New("database.path is required when database.enabled is true")
	}

	if c.Redis.RedisEnabled && c.Redis.RedisAddr == "" {
		return errors.New("redis.redisaddr is required when redis.redisenabled is true")
	}

	switch c.Audit.Output {
	case "file", "stdout":
	default:
		return fmt.Errorf("invalid audit.output %q (want file or stdout)", c.Audit.Output)
	}

	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// GenerateMinimalConfig returns a minimal example configuration string.
func GenerateMinimalConfig() string {
	return `# maxdiskusage - Minimal Configuration

[server]
listen_address = "8080"
bind_ip = "127.0.0.1"
pidfilepath = "/var/run/maxdiskusage.pid"

[guard]
# 0 disables the absolute check
min_free_mb = 1024
# 100 disables the percentage check
max_used_percent = 95
# WARN or BLOCK
action = "WARN"
warn_skip_count = 100
monitored_path = "/var/lib/maxdiskusage"

[probe]
cache_ttl = "0s"

[privileges]
users = ["root"]

[security]
enablejwt = false
jwtsecret = ""

[audit]
enabled = true
output = "file"
path = "/var/log/maxdiskusage-audit.log"
format = "json"

[redis]
redisenabled = false
redisaddr = "localhost:6379"
rediskey = "maxdiskusage:rejections"

[database]
enabled = true
path = "/var/lib/maxdiskusage/data.sqlite"

[metrics]
enabled = true
path = "/metrics"

[logging]
level = "info"
file = "/var/log/maxdiskusage.log"
max_size = 100
max_backups = 7
max_age = 30
compress = true
`
}

// CreateMinimalConfig writes a minimal config.toml to path.
func CreateMinimalConfig(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	if _, err := fmt.Fprint(w, GenerateMinimalConfig()); err != nil {
		return err
	}
	return w.Flush()
}
