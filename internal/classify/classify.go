// Package classify maps SQL statement text to a policy.CommandKind.
package classify

import (
	"strings"
	"unicode"

	"git.uuxo.net/uuxo/maxdiskusage/internal/policy"
)

var keywords = map[string]policy.CommandKind{
	"SELECT":   policy.KindSelect,
	"DELETE":   policy.KindDelete,
	"TRUNCATE": policy.KindTruncate,
	"INSERT":   policy.KindInsert,
	"REPLACE":  policy.KindInsert,
	"UPDATE":   policy.KindUpdate,
}

// Statement returns the kind of query. Leading whitespace, comments and
// opening parentheses are skipped and matching is case-insensitive. Anything
// unrecognized, including CTEs, is KindOther and therefore subject to the
// thresholds.
//
// A query holding several statements separated by ";" reports the first
// kind that is not exempt, or the kind of its first statement when all of
// them are. Splitting is done under both SQLite and MySQL quoting rules and
// the stricter result wins.
func Statement(query string) policy.CommandKind {
	kind, seen := policy.KindOther, false
	for _, d := range dialects {
		for _, part := range split(query, d) {
			if skipNoise(part) == "" {
				continue
			}
			k := leadingKind(part)
			if !seen {
				kind, seen = k, true
			}
			if !k.Exempt() {
				return k
			}
		}
	}
	return kind
}

func leadingKind(s string) policy.CommandKind {
	if kind, ok := keywords[strings.ToUpper(leadingKeyword(s))]; ok {
		return kind
	}
	return policy.KindOther
}

func leadingKeyword(s string) string {
	s = skipNoise(s)
	end := strings.IndexFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && r != '_'
	})
	if end < 0 {
		return s
	}
	return s[:end]
}

// skipNoise strips whitespace, "--" and "#" line comments, "/* */" block
// comments and opening parentheses from the front of s. MySQL "/*!" comments
// are executed by the server and are left in place.
func skipNoise(s string) string {
	for {
		trimmed := strings.TrimLeftFunc(s, func(r rune) bool {
			return unicode.IsSpace(r) || r == '('
		})
		switch {
		case strings.HasPrefix(trimmed, "--"), strings.HasPrefix(trimmed, "#"):
			nl := strings.IndexByte(trimmed, '\n')
			if nl < 0 {
				return ""
			}
			s = trimmed[nl+1:]
		case strings.HasPrefix(trimmed, "/*") && !strings.HasPrefix(trimmed, "/*!"):
			end := strings.Index(trimmed[2:], "*/")
			if end < 0 {
				return ""
			}
			s = trimmed[end+4:]
		default:
			return trimmed
		}
	}
}
