package guardrail

import "strings"

// normalize trims whitespace and a single trailing semicolon, then reports
// whether any semicolon remains outside string literals and comments. A
// remaining semicolon means the input held more than one statement.
func normalize(sqlQuery string) (string, bool) {
	sqlQuery = strings.TrimSpace(sqlQuery)
	sqlQuery = stripTrailingSemicolon(sqlQuery)
	return sqlQuery, hasSemicolonOutsideStrings(sqlQuery)
}

// hasSemicolonOutsideStrings returns true if the SQL contains any semicolon
// outside of string literals, quoted identifiers, and comments.
func hasSemicolonOutsideStrings(sqlQuery string) bool {
	const (
		stateNormal = iota
		stateSingleQuote
		stateDoubleQuote
		stateLineComment
		stateBlockComment
	)

	state := stateNormal
	prevChar := rune(0)

	for _, char := range sqlQuery {
		switch state {
		case stateNormal:
			switch char {
			case ';':
				return true
			case '\'':
				state = stateSingleQuote
			case '"':
				state = stateDoubleQuote
			case '-':
				if prevChar == '-' {
					state = stateLineComment
				}
			case '*':
				if prevChar == '/' {
					state = stateBlockComment
				}
			}
		case stateSingleQuote:
			// Handles both backslash escape (\') and SQL doubled quote ('')
			if char == '\'' && prevChar != '\\' {
				state = stateNormal
			}
		case stateDoubleQuote:
			if char == '"' && prevChar != '\\' {
				state = stateNormal
			}
		case stateLineComment:
			if char == '\n' {
				state = stateNormal
			}
		case stateBlockComment:
			if char == '/' && prevChar == '*' {
				state = stateNormal
				char = 0 // avoid /*/ closing on its own opener
			}
		}
		prevChar = char
	}

	return false
}

// stripTrailingSemicolon removes one trailing semicolon and surrounding
// whitespace.
func stripTrailingSemicolon(sqlQuery string) string {
	sqlQuery = strings.TrimRight(sqlQuery, " \t\n\r")
	if strings.HasSuffix(sqlQuery, ";") {
		sqlQuery = strings.TrimSuffix(sqlQuery, ";")
		sqlQuery = strings.TrimRight(sqlQuery, " \t\n\r")
	}
	return sqlQuery
}
