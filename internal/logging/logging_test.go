package logging

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.uuxo.net/uuxo/maxdiskusage/internal/config"
)

func TestSetupLoggingLevel(t *testing.T) {
	tests := []struct {
		level string
		want  logrus.Level
	}{
		{"debug", logrus.DebugLevel},
		{"warn", logrus.WarnLevel},
		{"error", logrus.ErrorLevel},
		{"chatty", logrus.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			log := logrus.New()
			SetupLogging(&config.LoggingConfig{Level: tt.level}, log)
			assert.Equal(t, tt.want, log.GetLevel())
		})
	}
}

func TestSetupLoggingFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "guard.log")
	log := logrus.New()
	SetupLogging(&config.LoggingConfig{Level: "info", File: file}, log)
	log.Info("hello from the guard")

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello from the guard")
}

func TestPIDFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "guard.pid")
	log := logrus.New()
	require.NoError(t, WritePIDFile(path, log))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(os.Getpid()), string(data))

	RemovePIDFile(path, log)
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}
