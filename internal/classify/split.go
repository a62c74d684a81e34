package classify

import "strings"

// dialect describes how a server tokenizes quotes and comments.
type dialect struct {
	hashComments     bool // "#" starts a line comment
	strictDashes     bool // "--" starts a comment only when followed by whitespace
	backslashEscapes bool // "\" escapes the next byte inside string literals
	brackets         bool // "[...]" quotes an identifier
	execComments     bool // "/*!" comment bodies are executed
}

var dialects = []dialect{
	{brackets: true}, // SQLite
	{hashComments: true, strictDashes: true, backslashEscapes: true, execComments: true}, // MySQL
}

// split cuts s at every ";" that is not inside a quoted string, a quoted
// identifier or a comment. The returned parts may be blank.
func split(s string, d dialect) []string {
	var parts []string
	start := 0
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c == ';':
			parts = append(parts, s[start:i])
			start = i + 1
		case c == '\'' || c == '"':
			i = skipQuoted(s, i, c, d.backslashEscapes)
		case c == '`':
			i = skipQuoted(s, i, c, false)
		case c == '[' && d.brackets:
			i = skipPast(s, i+1, "]")
		case c == '#' && d.hashComments:
			i = skipPast(s, i+1, "\n")
		case c == '-' && strings.HasPrefix(s[i:], "--") && (!d.strictDashes || dashComment(s, i+2)):
			i = skipPast(s, i+2, "\n")
		case c == '/' && strings.HasPrefix(s[i:], "/*") && !(d.execComments && strings.HasPrefix(s[i:], "/*!")):
			i = skipPast(s, i+2, "*/")
		}
	}
	return append(parts, s[start:])
}

// skipQuoted returns the index of the quote closing the literal opened at
// s[open], or the last index of s if it is unterminated. A doubled quote
// closes and reopens the literal, which leaves the scan in the same state.
func skipQuoted(s string, open int, quote byte, escapes bool) int {
	for j := open + 1; j < len(s); j++ {
		switch {
		case escapes && s[j] == '\\':
			j++
		case s[j] == quote:
			return j
		}
	}
	return len(s) - 1
}

// skipPast returns the index of the last byte of the first end at or after
// from, or the last index of s if there is none.
func skipPast(s string, from int, end string) int {
	if from > len(s) {
		return len(s) - 1
	}
	if n := strings.Index(s[from:], end); n >= 0 {
		return from + n + len(end) - 1
	}
	return len(s) - 1
}

func dashComment(s string, i int) bool {
	return i >= len(s) || s[i] <= ' '
}
