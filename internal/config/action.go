package config

import "strings"

// Action selects what happens when a disk threshold is crossed.
type Action int

const (
	// ActionInvalid marks an unrecognized action string. Statements are
	// allowed and the misconfiguration is reported.
	ActionInvalid Action = iota
	// ActionWarn lets the statement run and surfaces a throttled warning.
	ActionWarn
	// ActionBlock rejects the statement.
	ActionBlock
)

func (a Action) String() string {
	switch a {
	case ActionWarn:
		return "WARN"
	case ActionBlock:
		return "BLOCK"
	default:
		return "INVALID"
	}
}

// ParseAction maps the configured action string to an Action. Matching is
// case-insensitive and ignores surrounding whitespace; anything other than
// WARN or BLOCK yields ActionInvalid.
func ParseAction(s string) Action {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "WARN":
		return ActionWarn
	case "BLOCK":
		return ActionBlock
	default:
		return ActionInvalid
	}
}
