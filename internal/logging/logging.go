// Package logging handles log setup including rotation and system info.
package logging

import (
	"fmt"
	"os"
	"runtime"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"git.uuxo.net/uuxo/maxdiskusage/internal/config"
)

// SetupLogging configures the logger based on config.
func SetupLogging(cfg *config.LoggingConfig, log *logrus.Logger) {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		log.Warnf("Invalid log level '%s', defaulting to 'info'", cfg.Level)
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	if cfg.File != "" {
		maxSize := cfg.MaxSize
		if maxSize == 0 {
			maxSize = 100
		}
		maxBackups := cfg.MaxBackups
		if maxBackups == 0 {
			maxBackups = 3
		}
		maxAge := cfg.MaxAge
		if maxAge == 0 {
			maxAge = 28
		}

		log.SetOutput(&lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    maxSize,
			MaxBackups: maxBackups,
			MaxAge:     maxAge,
			Compress:   cfg.Compress,
		})
	} else {
		log.SetOutput(os.Stdout)
	}

	log.Infof("Logging initialized at level: %s", level)
}

// LogSystemInfo logs system information at startup.
func LogSystemInfo(log *logrus.Logger, version string) {
	hostname, _ := os.Hostname()
	log.Infof("=== System Information ===")
	log.Infof("Hostname: %s", hostname)
	log.Infof("OS: %s", runtime.GOOS)
	log.Infof("Architecture: %s", runtime.GOARCH)
	log.Infof("Go version: %s", runtime.Version())
	log.Infof("CPUs available: %d", runtime.NumCPU())
	log.Infof("Version: %s", version)
	log.Infof("PID: %d", os.Getpid())
	log.Infof("==========================")
}

// WritePIDFile writes the current process ID to the specified pid file.
func WritePIDFile(pidPath string, log *logrus.Logger) error {
	pid := os.Getpid()
	if err := os.WriteFile(pidPath, []byte(fmt.Sprintf("%d", pid)), 0644); err != nil {
		log.Errorf("Failed to write PID file: %v", err)
		return err
	}
	log.Infof("PID %d written to %s", pid, pidPath)
	return nil
}

// RemovePIDFile removes the PID file.
func RemovePIDFile(pidPath string, log *logrus.Logger) {
	if err := os.Remove(pidPath); err != nil {
		log.Errorf("Failed to remove PID file: %v", err)
	} else {
		log.Infof("PID file %s removed successfully", pidPath)
	}
}
