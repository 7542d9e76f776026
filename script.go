package httpvfs

import "strings"

// splitStatements cuts a SQL script at top level semicolons. Quoted strings,
// quoted identifiers and comments are skipped; CREATE TRIGGER bodies are kept
// whole. Empty statements are dropped.
func splitStatements(script string) []string {
	var (
		stmts []string
		start int
		depth int // BEGIN ... END nesting inside a trigger
	)
	emit := func(end int) {
		if s := strings.TrimSpace(script[start:end]); s != "" && !isComment(s) {
			stmts = append(stmts, s)
		}
		start = end + 1
	}

	for i := 0; i < len(script); i++ {
		switch c := script[i]; c {
		case '\'', '"', '`':
			i = skipQuoted(script, i, c)
		case '[':
			if j := strings.IndexByte(script[i:], ']'); j >= 0 {
				i += j
			} else {
				i = len(script)
			}
		case '-':
			if strings.HasPrefix(script[i:], "--") {
				if j := strings.IndexByte(script[i:], '\n'); j >= 0 {
					i += j
				} else {
					i = len(script)
				}
			}
		case '/':
			if strings.HasPrefix(script[i:], "/*") {
				if j := strings.Index(script[i+2:], "*/"); j >= 0 {
					i += j + 3
				} else {
					i = len(script)
				}
			}
		case ';':
			if depth == 0 {
				emit(i)
			}
		default:
			if !isWordStart(script, i) {
				continue
			}
			switch {
			case keywordAt(script, i, "BEGIN") && isTrigger(script[start:i]):
				depth++
			case keywordAt(script, i, "END") && depth > 0:
				depth--
			}
		}
	}
	if start < len(script) {
		emit(len(script))
	}
	return stmts
}

// skipQuoted returns the index of the quote closing the string opened at i.
// A doubled quote is an escaped quote.
func skipQuoted(s string, i int, q byte) int {
	for j := i + 1; j < len(s); j++ {
		if s[j] != q {
			continue
		}
		if j+1 < len(s) && s[j+1] == q {
			j++
			continue
		}
		return j
	}
	return len(s)
}

func isWordStart(s string, i int) bool {
	return i == 0 || !isWordByte(s[i-1])
}

func isWordByte(c byte) bool {
	return c == '_' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

// keywordAt reports whether the keyword kw starts at i as a whole word
func keywordAt(s string, i int, kw string) bool {
	if len(s)-i < len(kw) || !strings.EqualFold(s[i:i+len(kw)], kw) {
		return false
	}
	return i+len(kw) == len(s) || !isWordByte(s[i+len(kw)])
}

// isTrigger reports whether a statement prefix is a CREATE TRIGGER
func isTrigger(prefix string) bool {
	fields := strings.Fields(strings.ToUpper(prefix))
	if len(fields) < 2 || fields[0] != "CREATE" {
		return false
	}
	for _, f := range fields[1:min(3, len(fields))] {
		if f == "TRIGGER" {
			return true
		}
	}
	return false
}

// isComment reports whether s holds nothing but comments
func isComment(s string) bool {
	for s != "" {
		switch {
		case strings.HasPrefix(s, "--"):
			j := strings.IndexByte(s, '\n')
			if j < 0 {
				return true
			}
			s = strings.TrimSpace(s[j+1:])
		case strings.HasPrefix(s, "/*"):
			j := strings.Index(s, "*/")
			if j < 0 {
				return true
			}
			s = strings.TrimSpace(s[j+2:])
		default:
			return false
		}
	}
	return true
}
