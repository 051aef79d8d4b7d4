package parser

import "strings"

// SplitScript splits a SQL script into individual statements on semicolons,
// ignoring semicolons inside string literals, quoted identifiers, and
// comments. Empty statements (whitespace or comments only) are dropped.
func SplitScript(script string) []string {
	var statements []string
	var current strings.Builder

	i := 0
	n := len(script)

	for i < n {
		ch := script[i]

		switch {
		case ch == '\'':
			// String literal: copy through, honoring doubled-quote escape
			current.WriteByte(ch)
			i++
			for i < n {
				current.WriteByte(script[i])
				if script[i] == '\'' {
					if i+1 < n && script[i+1] == '\'' {
						i++
						current.WriteByte(script[i])
					} else {
						i++
						break
					}
				}
				i++
			}

		case ch == '"':
			// Quoted identifier
			current.WriteByte(ch)
			i++
			for i < n {
				current.WriteByte(script[i])
				if script[i] == '"' {
					if i+1 < n && script[i+1] == '"' {
						i++
						current.WriteByte(script[i])
					} else {
						i++
						break
					}
				}
				i++
			}

		case ch == '-' && i+1 < n && script[i+1] == '-':
			// Line comment: copy through to end of line
			for i < n && script[i] != '\n' {
				current.WriteByte(script[i])
				i++
			}

		case ch == '/' && i+1 < n && script[i+1] == '*':
			// Block comment
			current.WriteByte(script[i])
			current.WriteByte(script[i+1])
			i += 2
			for i < n {
				if script[i] == '*' && i+1 < n && script[i+1] == '/' {
					current.WriteByte(script[i])
					current.WriteByte(script[i+1])
					i += 2
					break
				}
				current.WriteByte(script[i])
				i++
			}

		case ch == ';':
			if stmt := strings.TrimSpace(current.String()); stmt != "" && !isOnlyComments(stmt) {
				statements = append(statements, stmt)
			}
			current.Reset()
			i++

		default:
			current.WriteByte(ch)
			i++
		}
	}

	if stmt := strings.TrimSpace(current.String()); stmt != "" && !isOnlyComments(stmt) {
		statements = append(statements, stmt)
	}

	return statements
}

// isOnlyComments reports whether the statement text contains no tokens
// besides comments.
func isOnlyComments(stmt string) bool {
	l := NewLexer(stmt)
	return l.NextToken().Type == TOKEN_EOF
}
