package main

import (
	"fmt"
	"path/filepath"

	"github.com/pelletier/go-toml"
)

var configPaths = []string{
	"/etc/maxdiskusage/config.toml",
	"../config.toml",
	"./config.toml",
}

// monitorConfig is the subset of the daemon configuration the monitor reads.
type monitorConfig struct {
	file           string
	metricsURL     string
	metricsEnabled bool
	monitoredPath  string
	logFile        string
	auditFile      string
}

func findConfig(paths []string) (*monitorConfig, error) {
	var lastErr error
	for _, path := range paths {
		tree, err := toml.LoadFile(path)
		if err != nil {
			lastErr = err
			continue
		}
		return parseConfig(path, tree), nil
	}
	return nil, fmt.Errorf("no usable config in %v: %w", paths, lastErr)
}

func parseConfig(path string, tree *toml.Tree) *monitorConfig {
	bindIP := stringValue(tree, "server.bind_ip", "localhost")
	if bindIP == "" || bindIP == "0.0.0.0" {
		bindIP = "localhost"
	}
	port := stringValue(tree, "server.listen_address", "8080")
	metricsPath := stringValue(tree, "metrics.path", "/metrics")

	return &monitorConfig{
		file:           path,
		metricsURL:     fmt.Sprintf("http://%s:%s%s", bindIP, port, metricsPath),
		metricsEnabled: boolValue(tree, "metrics.enabled", true),
		monitoredPath:  monitoredPath(tree),
		logFile:        stringValue(tree, "logging.file", "/var/log/maxdiskusage.log"),
		auditFile:      stringValue(tree, "audit.path", "/var/log/maxdiskusage-audit.log"),
	}
}

// monitoredPath falls back to the database directory, then "/", as the
// daemon does.
func monitoredPath(tree *toml.Tree) string {
	if p := stringValue(tree, "guard.monitored_path", ""); p != "" {
		return p
	}
	if db := stringValue(tree, "database.path", ""); db != "" {
		return filepath.Dir(db)
	}
	return "/"
}

// stringValue accepts both strings and integers, since ports are often
// written unquoted.
func stringValue(tree *toml.Tree, key, def string) string {
	switch v := tree.Get(key).(type) {
	case string:
		return v
	case int64:
		return fmt.Sprintf("%d", v)
	default:
		return def
	}
}

func boolValue(tree *toml.Tree, key string, def bool) bool {
	if v, ok := tree.Get(key).(bool); ok {
		return v
	}
	return def
}
