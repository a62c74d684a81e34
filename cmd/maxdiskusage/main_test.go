package main

import (
	"bytes"
	"io"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"git.uuxo.net/uuxo/maxdiskusage/internal/config"
)

func checkConfig(t *testing.T, action string, minFreeMB uint64) *config.Config {
	t.Helper()
	conf := config.DefaultConfig()
	conf.Guard.MonitoredPath = t.TempDir()
	conf.Guard.MinFreeMB = minFreeMB
	conf.Guard.Action = action
	conf.Guard.Mode = config.ParseAction(action)
	conf.Privileges.Users = []string{"root"}
	return conf
}

func TestRunCheck(t *testing.T) {
	quiet := logrus.New()
	quiet.SetOutput(io.Discard)
	setLoggers(quiet)
	t.Cleanup(func() { setLoggers(log) })

	const impossible = 1 << 50

	tests := []struct {
		name      string
		action    string
		minFree   uint64
		user      string
		statement string
		wantCode  int
		wantOut   string
	}{
		{"plenty of space", "BLOCK", 0, "app", "INSERT INTO t VALUES (1)", exitAllowed, "outcome:  allow"},
		{"block", "BLOCK", impossible, "app", "INSERT INTO t VALUES (1)", exitBlocked, "reason:   free_space_below_minimum"},
		{"warn", "WARN", impossible, "app", "UPDATE t SET a = 1", exitAllowed, "outcome:  warn"},
		{"select exempt", "BLOCK", impossible, "app", "SELECT 1", exitAllowed, "outcome:  allow"},
		{"privileged", "BLOCK", impossible, "root", "INSERT INTO t VALUES (1)", exitAllowed, "outcome:  allow"},
		{"unknown action", "SHOUT", impossible, "app", "INSERT INTO t VALUES (1)", exitAllowed, "reason:   invalid_configuration"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			code := runCheck(checkConfig(t, tt.action, tt.minFree), tt.statement, tt.user, &out)
			assert.Equal(t, tt.wantCode, code, out.String())
			assert.Contains(t, out.String(), tt.wantOut)
		})
	}
}

func TestRunCheckMissingPath(t *testing.T) {
	quiet := logrus.New()
	quiet.SetOutput(io.Discard)
	setLoggers(quiet)
	t.Cleanup(func() { setLoggers(log) })

	conf := checkConfig(t, "BLOCK", 0)
	conf.Guard.MonitoredPath = filepath.Join(t.TempDir(), "gone")

	var out bytes.Buffer
	code := runCheck(conf, "INSERT INTO t VALUES (1)", "app", &out)
	assert.Equal(t, exitBlocked, code)
	assert.Contains(t, out.String(), "reason:   stat_failure")
}
