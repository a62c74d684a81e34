// Package guard runs the disk usage policy in front of statement execution.
package guard

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"git.uuxo.net/uuxo/maxdiskusage/internal/audit"
	"git.uuxo.net/uuxo/maxdiskusage/internal/auth"
	"git.uuxo.net/uuxo/maxdiskusage/internal/classify"
	"git.uuxo.net/uuxo/maxdiskusage/internal/config"
	"git.uuxo.net/uuxo/maxdiskusage/internal/metrics"
	"git.uuxo.net/uuxo/maxdiskusage/internal/policy"
	"git.uuxo.net/uuxo/maxdiskusage/internal/storage"
)

var log = logrus.New()

// SetLogger replaces the package-level logger.
func SetLogger(l *logrus.Logger) { log = l }

// ErrBlocked matches every *BlockedError via errors.Is.
var ErrBlocked = errors.New("statement blocked by disk guard")

// BlockedError is returned when the guard refuses a statement.
type BlockedError struct {
	Decision policy.Decision
}

func (e *BlockedError) Error() string { return e.Decision.Message }

// Is reports whether target is ErrBlocked.
func (e *BlockedError) Is(target error) bool { return target == ErrBlocked }

// WarningHandler is told about every warning that passed the rate limiter.
type WarningHandler func(ctx context.Context, id auth.Identity, d policy.Decision)

// Options wires a Guard.
type Options struct {
	Store     *config.Store
	Probe     storage.Probe
	Evaluator *policy.Evaluator
	Audit     *audit.Logger
	OnWarning WarningHandler
}

// Guard admits or refuses statements.
type Guard struct {
	store     *config.Store
	probe     storage.Probe
	eval      *policy.Evaluator
	audit     *audit.Logger
	onWarning WarningHandler
}

// New returns a Guard. Store, Probe and Evaluator are required.
func New(opts Options) *Guard {
	if opts.Store == nil || opts.Probe == nil || opts.Evaluator == nil {
		panic("guard: Store, Probe and Evaluator are required")
	}
	return &Guard{
		store:     opts.Store,
		probe:     opts.Probe,
		eval:      opts.Evaluator,
		audit:     opts.Audit,
		onWarning: opts.OnWarning,
	}
}

// Config returns the guard configuration currently in effect.
func (g *Guard) Config() *config.GuardConfig {
	return g.store.Load()
}

// Snapshot probes the monitored path.
func (g *Guard) Snapshot() (policy.Snapshot, error) {
	return g.probe.Stat(g.store.Load().MonitoredPath)
}

// Admit evaluates statement on behalf of id. A blocked statement yields a
// *BlockedError alongside the decision.
func (g *Guard) Admit(ctx context.Context, id auth.Identity, statement string) (policy.Decision, error) {
	if err := ctx.Err(); err != nil {
		return policy.Decision{}, err
	}

	start := time.Now()
	cfg := g.store.Load()
	ev := policy.Event{
		Kind:        classify.Statement(statement),
		Privileged:  id.Privileged,
		Description: statement,
	}

	var (
		snap    policy.Snapshot
		statErr error
	)
	probed := !ev.Privileged && !ev.Kind.Exempt()
	if probed {
		snap, statErr = g.probe.Stat(cfg.MonitoredPath)
	}

	d := g.eval.Evaluate(ev, snap, statErr, cfg)
	metrics.EvaluateDuration.Observe(time.Since(start).Seconds())
	g.observe(d, snap, probed && statErr == nil)

	switch {
	case d.Outcome == policy.OutcomeBlock:
		log.WithFields(logrus.Fields{"user": id.Name, "reason": d.Reason}).Errorf("BLOCKING QUERY: %s", d.Message)
		g.record(id, statement, cfg, d)
		return d, &BlockedError{Decision: d}
	case d.Outcome == policy.OutcomeWarn:
		log.WithFields(logrus.Fields{"user": id.Name, "reason": d.Reason}).Warn(d.Message)
		g.record(id, statement, cfg, d)
		if g.onWarning != nil {
			g.onWarning(ctx, id, d)
		}
	case d.Suppressed:
		log.Debugf("Suppressed disk warning for %s: %s", id.Name, d.Message)
	}
	return d, nil
}

func (g *Guard) observe(d policy.Decision, snap policy.Snapshot, fresh bool) {
	metrics.DecisionsTotal.WithLabelValues(d.Outcome.String(), d.Reason.String()).Inc()
	if d.Suppressed {
		metrics.WarningsSuppressedTotal.Inc()
	}
	if d.Reason == policy.ReasonStatFailure {
		metrics.StatFailuresTotal.Inc()
	}
	if fresh {
		metrics.FreeMegabytes.Set(float64(snap.FreeMB()))
		metrics.UsedPercent.Set(float64(snap.UsedPercent()))
	}
}

func (g *Guard) record(id auth.Identity, statement string, cfg *config.GuardConfig, d policy.Decision) {
	if g.audit == nil {
		return
	}
	g.audit.Record(audit.Record{
		User:      id.Name,
		Outcome:   d.Outcome.String(),
		Reason:    d.Reason.String(),
		Path:      cfg.MonitoredPath,
		Statement: statement,
		Message:   d.Message,
	})
}

type identityKey struct{}

// WithIdentity attaches id to ctx for DB calls.
func WithIdentity(ctx context.Context, id auth.Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFrom returns the identity stored by WithIdentity.
func IdentityFrom(ctx context.Context) (auth.Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(auth.Identity)
	return id, ok
}
