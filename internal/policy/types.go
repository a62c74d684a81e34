// Package policy decides whether a statement may run given the free space
// left on the monitored filesystem.
package policy

import (
	"math"
	"math/bits"
)

// CommandKind is the statement class of an intercepted operation.
type CommandKind int

const (
	KindOther CommandKind = iota
	KindSelect
	KindInsert
	KindUpdate
	KindDelete
	KindTruncate
)

var kindNames = map[CommandKind]string{
	KindOther:    "other",
	KindSelect:   "select",
	KindInsert:   "insert",
	KindUpdate:   "update",
	KindDelete:   "delete",
	KindTruncate: "truncate",
}

func (k CommandKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "other"
}

// Exempt reports whether statements of this kind only read or free space
// and therefore bypass the thresholds.
func (k CommandKind) Exempt() bool {
	switch k {
	case KindSelect, KindDelete, KindTruncate:
		return true
	}
	return false
}

// Event is one operation about to execute.
type Event struct {
	Kind       CommandKind
	Privileged bool
	// Description is the statement text. It only appears in diagnostics.
	Description string
}

// Snapshot is a point-in-time reading of filesystem statistics.
type Snapshot struct {
	BlockSize uint64
	Available uint64
	Total     uint64
}

const bytesPerMB = 1024 * 1024

// FreeMB returns the space available to unprivileged users in MiB.
func (s Snapshot) FreeMB() uint64 {
	hi, lo := bits.Mul64(s.BlockSize, s.Available)
	if hi >= bytesPerMB {
		return math.MaxUint64
	}
	q, _ := bits.Div64(hi, lo, bytesPerMB)
	return q
}

// UsedPercent returns the truncated percentage of blocks in use, or 0 when
// the filesystem reports no blocks at all.
func (s Snapshot) UsedPercent() uint64 {
	if s.Total == 0 || s.Available >= s.Total {
		return 0
	}
	used := 100 - 100*float64(s.Available)/float64(s.Total)
	return uint64(used)
}

// Outcome is what the host must do with the operation.
type Outcome int

const (
	OutcomeAllow Outcome = iota
	OutcomeWarn
	OutcomeBlock
)

func (o Outcome) String() string {
	switch o {
	case OutcomeWarn:
		return "warn"
	case OutcomeBlock:
		return "block"
	default:
		return "allow"
	}
}

// Reason names the rule behind a decision.
type Reason int

const (
	ReasonNone Reason = iota
	ReasonFreeSpaceBelowMinimum
	ReasonUsagePercentAboveMaximum
	ReasonStatFailure
	ReasonInvalidConfiguration
)

func (r Reason) String() string {
	switch r {
	case ReasonFreeSpaceBelowMinimum:
		return "free_space_below_minimum"
	case ReasonUsagePercentAboveMaximum:
		return "usage_percent_above_maximum"
	case ReasonStatFailure:
		return "stat_failure"
	case ReasonInvalidConfiguration:
		return "invalid_configuration"
	default:
		return "none"
	}
}

// Decision is the result of one evaluation.
//
// An Allow may still carry a Reason: a threshold was crossed but the
// warning was suppressed by the rate limiter (Suppressed is set), or the
// configured action was not recognized.
type Decision struct {
	Outcome    Outcome
	Reason     Reason
	Message    string
	Suppressed bool
}

// Allowed reports whether the operation may execute.
func (d Decision) Allowed() bool {
	return d.Outcome != OutcomeBlock
}

var allow = Decision{Outcome: OutcomeAllow}
