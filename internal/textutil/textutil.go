// Package textutil holds the text normalization helpers used when comparing
// program output against expected output and when preparing strings for
// display in a result table.
package textutil

import (
	"fmt"
	"strings"
)

// MaxStringLength is the longest string kept for display in a result table.
// Longer strings have their middle removed by Snip.
const MaxStringLength = 8000

const snipInsert = " ...snip... "

// Clean returns a copy of s with trailing white space removed from each line
// and trailing blank lines removed. Control characters other than newlines
// are replaced with hex escape equivalents so that invisible output
// differences become visible. A newline terminator is added at the end
// unless the result is otherwise empty. Clean is a projection:
// Clean(Clean(s)) == Clean(s).
func Clean(s string) string {
	var out strings.Builder
	out.Grow(len(s))
	var nls strings.Builder    // Pending line breaks.
	var spaces strings.Builder // Pending space characters.
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == ' ':
			spaces.WriteByte(c)
		case c == '\n':
			spaces.Reset() // Discard spaces before a newline.
			nls.WriteByte(c)
		default:
			esc := ""
			switch {
			case c == '\r':
				esc = `\r`
			case c == '\t':
				esc = `\t`
			case c < ' ' || c > '\x7e':
				esc = fmt.Sprintf(`\x%02x`, c)
			}
			out.WriteString(nls.String())
			out.WriteString(spaces.String())
			if esc != "" {
				out.WriteString(esc)
			} else {
				out.WriteByte(c)
			}
			nls.Reset()
			spaces.Reset()
		}
	}
	if out.Len() > 0 {
		out.WriteByte('\n')
	}
	return out.String()
}

// Snip limits the length of s to MaxStringLength by removing the centre of
// the string and inserting a snip marker in its place.
func Snip(s string) string {
	if len(s) <= MaxStringLength {
		return s
	}
	toRemove := len(s) - MaxStringLength + len(snipInsert)
	partLen := (len(s) - toRemove) / 2
	return s[:partLen] + snipInsert + s[len(s)-partLen:]
}

// Tidy returns a cleaned and snipped version of s, ready for display.
func Tidy(s string) string {
	return Snip(Clean(s))
}

// Reduce simplifies s for near-equality comparison: blank lines are dropped,
// runs of spaces and tabs collapse to a single space and all letters are
// converted to lower case. Callers normally Clean first.
func Reduce(s string) string {
	var out strings.Builder
	out.Grow(len(s))
	atLineStart := true
	pendingSpace := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '\n':
			if !atLineStart {
				out.WriteByte('\n')
				atLineStart = true
			}
			pendingSpace = false
		case ' ', '\t':
			if !atLineStart {
				pendingSpace = true
			}
		default:
			if pendingSpace {
				out.WriteByte(' ')
				pendingSpace = false
			}
			if c >= 'A' && c <= 'Z' {
				c += 'a' - 'A'
			}
			out.WriteByte(c)
			atLineStart = false
		}
	}
	return out.String()
}

// TrimToRect trims s to at most maxHeight lines of at most maxWidth bytes,
// appending a truncation marker where content was dropped. Used by the
// reporters so published messages stay bounded.
func TrimToRect(s string, maxHeight int, maxWidth int) string {
	if s == "" {
		return ""
	}
	lines := strings.Split(s, "\n")
	if len(lines) > maxHeight {
		lines = lines[:maxHeight]
		lines = append(lines, "[...]")
	}
	res := ""
	for i, line := range lines {
		if i > 0 {
			res += "\n"
		}
		if len(line) > maxWidth {
			res += line[:maxWidth] + "[...]"
		} else {
			res += line
		}
	}
	return res
}
