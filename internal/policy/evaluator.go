package policy

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"git.uuxo.net/uuxo/maxdiskusage/internal/config"
)

var log = logrus.New()

// SetLogger replaces the package-level logger.
func SetLogger(l *logrus.Logger) { log = l }

// WarnGate decides whether a warning is surfaced this round.
type WarnGate interface {
	ShouldEmit(skip uint64) bool
}

// Evaluator applies the guard rules to one event at a time. It is safe for
// concurrent use; the only shared state lives in the WarnGate.
type Evaluator struct {
	gate WarnGate
}

// NewEvaluator returns an evaluator that throttles warnings through gate.
func NewEvaluator(gate WarnGate) *Evaluator {
	return &Evaluator{gate: gate}
}

// threshold is the outcome of one threshold rule against a snapshot.
type threshold struct {
	reason    Reason
	triggered bool
	detail    string
}

// Evaluate decides what to do with ev. snap is only consulted when statErr
// is nil; a non-nil statErr means the filesystem could not be read and the
// operation is blocked. cfg must not be nil.
func (e *Evaluator) Evaluate(ev Event, snap Snapshot, statErr error, cfg *config.GuardConfig) Decision {
	if cfg == nil {
		panic("policy: Evaluate called with nil guard configuration")
	}

	if ev.Privileged {
		return allow
	}
	if ev.Kind.Exempt() {
		return allow
	}

	if statErr != nil {
		return Decision{
			Outcome: OutcomeBlock,
			Reason:  ReasonStatFailure,
			Message: fmt.Sprintf("Cannot read filesystem statistics for %s (%v): %s",
				cfg.MonitoredPath, statErr, ev.Description),
		}
	}

	used := snap.UsedPercent()
	free := snap.FreeMB()

	// Percentage first: its reason wins when both fire. A filesystem that
	// reports no blocks has no meaningful percentage.
	checks := [...]threshold{
		checkThreshold(ReasonUsagePercentAboveMaximum,
			cfg.MaxUsedPercent < 100 && snap.Total > 0, used >= cfg.MaxUsedPercent,
			"Filesystem usage on %s (%d%%) is at or above %d%%", cfg.MonitoredPath, used, cfg.MaxUsedPercent),
		checkThreshold(ReasonFreeSpaceBelowMinimum,
			cfg.MinFreeMB > 0, free < cfg.MinFreeMB,
			"Free filesystem space on %s (%d MB) is less than %d MB", cfg.MonitoredPath, free, cfg.MinFreeMB),
	}

	reason := ReasonNone
	details := make([]string, 0, len(checks))
	for _, c := range checks {
		if !c.triggered {
			continue
		}
		if reason == ReasonNone {
			reason = c.reason
		}
		details = append(details, c.detail)
	}
	if reason == ReasonNone {
		return allow
	}

	return e.dispatch(reason, strings.Join(details, "; ")+": "+ev.Description, cfg)
}

func checkThreshold(reason Reason, enabled, crossed bool, format string, args ...interface{}) threshold {
	if !enabled || !crossed {
		return threshold{reason: reason}
	}
	return threshold{reason: reason, triggered: true, detail: fmt.Sprintf(format, args...)}
}

// dispatch turns a crossed threshold into a decision according to the
// configured action.
func (e *Evaluator) dispatch(reason Reason, msg string, cfg *config.GuardConfig) Decision {
	switch cfg.Mode {
	case config.ActionBlock:
		return Decision{Outcome: OutcomeBlock, Reason: reason, Message: msg}
	case config.ActionWarn:
		if e.gate.ShouldEmit(cfg.WarnSkipCount) {
			return Decision{Outcome: OutcomeWarn, Reason: reason, Message: msg}
		}
		return Decision{Outcome: OutcomeAllow, Reason: reason, Message: msg, Suppressed: true}
	default:
		log.Errorf("Invalid guard action %q (want WARN or BLOCK), allowing statement. %s", cfg.Action, msg)
		return Decision{Outcome: OutcomeAllow, Reason: ReasonInvalidConfiguration, Message: msg}
	}
}
