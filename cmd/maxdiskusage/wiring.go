package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"git.uuxo.net/uuxo/maxdiskusage/internal/audit"
	"git.uuxo.net/uuxo/maxdiskusage/internal/auth"
	"git.uuxo.net/uuxo/maxdiskusage/internal/config"
	"git.uuxo.net/uuxo/maxdiskusage/internal/guard"
	"git.uuxo.net/uuxo/maxdiskusage/internal/handlers"
	"git.uuxo.net/uuxo/maxdiskusage/internal/metrics"
	"git.uuxo.net/uuxo/maxdiskusage/internal/policy"
	"git.uuxo.net/uuxo/maxdiskusage/internal/ratelimit"
	"git.uuxo.net/uuxo/maxdiskusage/internal/server"
	"git.uuxo.net/uuxo/maxdiskusage/internal/storage"
	"git.uuxo.net/uuxo/maxdiskusage/internal/utils"
	"git.uuxo.net/uuxo/maxdiskusage/internal/workers"
)

// Exit codes of -check.
const (
	exitAllowed = 0
	exitError   = 1
	exitBlocked = 2
)

// setLoggers shares l with every internal package.
func setLoggers(l *logrus.Logger) {
	audit.SetLogger(l)
	auth.SetLogger(l)
	config.SetLogger(l)
	guard.SetLogger(l)
	handlers.SetLogger(l)
	metrics.SetLogger(l)
	policy.SetLogger(l)
	server.SetLogger(l)
	storage.SetLogger(l)
	workers.SetLogger(l)
}

// buildGuard assembles the probe, evaluator and authenticator around store.
func buildGuard(conf *config.Config, store *config.Store, auditLog *audit.Logger) (*guard.Guard, *auth.Authenticator, error) {
	authenticator, err := auth.New(conf.Privileges, conf.Security)
	if err != nil {
		return nil, nil, err
	}

	ttl := utils.ParseDuration(conf.Probe.CacheTTL, 0)
	probe := storage.NewCachedProbe(storage.Statfs{}, ttl)
	if ttl > 0 {
		log.Infof("Filesystem probe results cached for %s", ttl)
	}

	g := guard.New(guard.Options{
		Store:     store,
		Probe:     probe,
		Evaluator: policy.NewEvaluator(ratelimit.New()),
		Audit:     auditLog,
	})
	return g, authenticator, nil
}

// runCheck evaluates statement once and prints the decision to out.
func runCheck(conf *config.Config, statement, user string, out io.Writer) int {
	g, authenticator, err := buildGuard(conf, config.NewStore(conf.Guard), nil)
	if err != nil {
		fmt.Fprintf(out, "error: %v\n", err)
		return exitError
	}
	id := authenticator.Resolve(user)

	if snap, err := g.Snapshot(); err == nil {
		fmt.Fprintf(out, "path:     %s\n", conf.Guard.MonitoredPath)
		fmt.Fprintf(out, "free:     %s (%d MB)\n", utils.FormatMB(snap.FreeMB()), snap.FreeMB())
		fmt.Fprintf(out, "used:     %d%%\n", snap.UsedPercent())
	} else {
		fmt.Fprintf(out, "path:     %s (%v)\n", conf.Guard.MonitoredPath, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	d, err := g.Admit(ctx, id, statement)
	if err != nil && !errors.Is(err, guard.ErrBlocked) {
		fmt.Fprintf(out, "error: %v\n", err)
		return exitError
	}

	fmt.Fprintf(out, "outcome:  %s\n", d.Outcome)
	fmt.Fprintf(out, "reason:   %s\n", d.Reason)
	if d.Message != "" {
		fmt.Fprintf(out, "message:  %s\n", d.Message)
	}
	if d.Outcome == policy.OutcomeBlock {
		return exitBlocked
	}
	return exitAllowed
}
