// Package schema turns a pg_dump style DDL script into executable statements
// and applies them to a freshly created tenant database.
package schema

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnterminatedDollarQuote is returned when the script ends inside $tag$ ... $tag$
var ErrUnterminatedDollarQuote = errors.New("unterminated dollar-quoted string")

// ErrUnterminatedQuote is returned when the script ends inside '...' or "..."
var ErrUnterminatedQuote = errors.New("unterminated quoted string")

// ErrUnterminatedComment is returned when the script ends inside /* ... */
var ErrUnterminatedComment = errors.New("unterminated block comment")

// executableKeywords are the leading keywords of statements worth running
var executableKeywords = map[string]bool{
	"CREATE":  true,
	"ALTER":   true,
	"INSERT":  true,
	"UPDATE":  true,
	"DELETE":  true,
	"DROP":    true,
	"GRANT":   true,
	"REVOKE":  true,
	"COMMENT": true,
	"COPY":    true,
}

// Split returns the executable statements of script in source order, without
// their trailing semicolons. A semicolon only ends a statement outside quotes,
// comments and dollar-quoted bodies. Statements that only make sense inside
// psql (meta-commands, SET, set_config) and the re-creation of the public
// schema are dropped.
func Split(script string) ([]string, error) {
	raw, err := splitRaw(script)
	if err != nil {
		return nil, err
	}

	statements := make([]string, 0, len(raw))
	for _, stmt := range raw {
		if keep(stmt) {
			statements = append(statements, stmt)
		}
	}
	return statements, nil
}

// readDollarTag reads a $tag$ starting at s[i]. The tag is empty or an
// identifier that does not start with a digit, so $1 parameters never open a quote.
func readDollarTag(s string, i int) (string, bool) {
	j := i + 1
	for j < len(s) && s[j] != '$' {
		c := s[j]
		isLetter := c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c >= 0x80
		isDigit := c >= '0' && c <= '9'
		if !isLetter && !(isDigit && j > i+1) {
			return "", false
		}
		j++
	}
	if j >= len(s) {
		return "", false
	}
	return s[i : j+1], true
}

// skipLine returns the index of the newline ending the line that holds s[i],
// or len(s) on the last line.
func skipLine(s string, i int) int {
	if n := strings.IndexByte(s[i:], '\n'); n >= 0 {
		return i + n
	}
	return len(s)
}

// skipBlockComment returns the index of the last byte of the comment opened
// at s[i]. Block comments nest.
func skipBlockComment(s string, i int) (int, bool) {
	depth := 0
	for ; i+1 < len(s); i++ {
		switch {
		case s[i] == '/' && s[i+1] == '*':
			depth++
			i++
		case s[i] == '*' && s[i+1] == '/':
			depth--
			i++
			if depth == 0 {
				return i, true
			}
		}
	}
	return len(s), false
}

// splitRaw cuts the script at top-level semicolons. Comments and psql
// meta-command lines outside quoted text are removed on the way.
func splitRaw(script string) ([]string, error) {
	var (
		statements []string
		current    strings.Builder
		dollarTag  string
		quote      byte
		lineStart  = true
	)

	flush := func() {
		stmt := strings.TrimSpace(current.String())
		if stmt != "" {
			statements = append(statements, stmt)
		}
		current.Reset()
	}

	for i := 0; i < len(script); i++ {
		c := script[i]

		switch {
		case dollarTag != "":
			if c == '$' && strings.HasPrefix(script[i:], dollarTag) {
				current.WriteString(dollarTag)
				i += len(dollarTag) - 1
				dollarTag = ""
				lineStart = false
				continue
			}

		case quote != 0:
			if c == quote {
				// doubled quote is an escaped quote
				if i+1 < len(script) && script[i+1] == quote {
					current.WriteByte(c)
					i++
				} else {
					quote = 0
				}
			}

		case c == '\\' && lineStart:
			// psql meta-command, never part of a statement
			i = skipLine(script, i) - 1
			continue

		case c == '\'' || c == '"':
			quote = c

		case c == '$':
			if tag, ok := readDollarTag(script, i); ok {
				current.WriteString(tag)
				i += len(tag) - 1
				dollarTag = tag
				lineStart = false
				continue
			}

		case c == '-' && i+1 < len(script) && script[i+1] == '-':
			i = skipLine(script, i) - 1
			continue

		case c == '/' && i+1 < len(script) && script[i+1] == '*':
			end, ok := skipBlockComment(script, i)
			if !ok {
				return nil, ErrUnterminatedComment
			}
			current.WriteByte(' ')
			i = end
			continue

		case c == ';':
			flush()
			continue
		}

		switch {
		case c == '\n':
			lineStart = dollarTag == "" && quote == 0
		case c != ' ' && c != '\t' && c != '\r':
			lineStart = false
		}
		current.WriteByte(c)
	}

	if dollarTag != "" {
		return nil, fmt.Errorf("%w: %s opened but never closed", ErrUnterminatedDollarQuote, dollarTag)
	}
	if quote != 0 {
		return nil, fmt.Errorf("%w: %c opened but never closed", ErrUnterminatedQuote, quote)
	}
	flush()

	return statements, nil
}

// keep applies the keyword filter to one statement
func keep(stmt string) bool {
	fields := strings.Fields(stmt)
	if len(fields) == 0 {
		return false
	}

	if !executableKeywords[strings.ToUpper(fields[0])] {
		return false
	}

	upper := strings.ToUpper(strings.Join(fields, " "))
	if upper == "CREATE SCHEMA PUBLIC" || strings.HasPrefix(upper, "COMMENT ON SCHEMA PUBLIC ") {
		return false
	}
	return true
}
