// Package audit records rejected and warned statements.
package audit

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"git.uuxo.net/uuxo/maxdiskusage/internal/config"
	"git.uuxo.net/uuxo/maxdiskusage/internal/metrics"
	"git.uuxo.net/uuxo/maxdiskusage/internal/workers"
)

var log = logrus.New()

// SetLogger replaces the package-level logger.
func SetLogger(l *logrus.Logger) { log = l }

// Record is one audited guard decision.
type Record struct {
	Time      time.Time `json:"time"`
	User      string    `json:"user,omitempty"`
	Outcome   string    `json:"outcome"`
	Reason    string    `json:"reason"`
	Path      string    `json:"path"`
	Statement string    `json:"statement"`
	Message   string    `json:"message"`
}

// Mirror receives a copy of every record off the request path.
type Mirror interface {
	Publish(ctx context.Context, rec Record) error
}

// Logger writes audit records to a dedicated logrus logger and optionally
// mirrors them through a worker pool.
type Logger struct {
	logger *logrus.Logger
	mirror Mirror
	pool   *workers.Pool
}

// New builds an audit logger from cfg. A disabled audit log discards
// records but still feeds an attached mirror.
func New(cfg *config.AuditConfig) (*Logger, error) {
	l := &Logger{logger: logrus.New()}

	if cfg.Format == "json" {
		l.logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime: "timestamp",
				logrus.FieldKeyMsg:  "event",
			},
		})
	} else {
		l.logger.SetFormatter(&logrus.TextFormatter{
			TimestampFormat: time.RFC3339,
			FullTimestamp:   true,
		})
	}

	if !cfg.Enabled {
		l.logger.SetOutput(io.Discard)
		return l, nil
	}

	switch cfg.Output {
	case "stdout":
		l.logger.SetOutput(os.Stdout)
	default:
		path := cfg.Path
		if path == "" {
			path = "/var/log/maxdiskusage-audit.log"
		}
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, err
		}
		maxSize := cfg.MaxSize
		if maxSize <= 0 {
			maxSize = 100
		}
		maxAge := cfg.MaxAge
		if maxAge <= 0 {
			maxAge = 30
		}
		l.logger.SetOutput(&lumberjack.Logger{
			Filename:   path,
			MaxSize:    maxSize,
			MaxAge:     maxAge,
			MaxBackups: 5,
			Compress:   true,
		})
	}

	l.logger.SetLevel(logrus.InfoLevel)
	log.Infof("Audit logger initialized: output=%s, path=%s, format=%s", cfg.Output, cfg.Path, cfg.Format)
	return l, nil
}

// SetOutput redirects the audit stream.
func (l *Logger) SetOutput(w io.Writer) {
	l.logger.SetOutput(w)
}

// AttachMirror forwards every record to m using pool.
func (l *Logger) AttachMirror(m Mirror, pool *workers.Pool) {
	l.mirror = m
	l.pool = pool
}

// Record writes rec and queues it for the mirror. It never blocks on the
// mirror.
func (l *Logger) Record(rec Record) {
	if rec.Time.IsZero() {
		rec.Time = time.Now()
	}

	entry := l.logger.WithFields(logrus.Fields{
		"user":      rec.User,
		"outcome":   rec.Outcome,
		"reason":    rec.Reason,
		"path":      rec.Path,
		"statement": rec.Statement,
		"message":   rec.Message,
	})
	if rec.Outcome == "block" {
		entry.Warn("statement_blocked")
	} else {
		entry.Info("statement_" + rec.Outcome)
	}

	if l.mirror == nil || l.pool == nil {
		return
	}
	m := l.mirror
	ok := l.pool.Submit(workers.Task{
		Name: "audit-mirror",
		Execute: func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			err := m.Publish(ctx, rec)
			if err != nil {
				metrics.AuditDroppedTotal.Inc()
			}
			return err
		},
	})
	if !ok {
		metrics.AuditDroppedTotal.Inc()
	}
}
