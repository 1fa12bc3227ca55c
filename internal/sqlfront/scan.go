package sqlfront

import "strings"

// indexTopLevelKeyword finds the first case-insensitive, word-bounded
// occurrence of keyword in sql starting at offset start, ignoring
// anything nested inside parentheses or string literals. upper must be
// strings.ToUpper(sql). Returns -1 if not found.
func indexTopLevelKeyword(sql, upper, keyword string, start int) int {
	depth := 0
	var inQuote byte
	kw := strings.ToUpper(keyword)
	n := len(sql)
	for i := start; i < n; i++ {
		c := sql[i]
		if inQuote != 0 {
			if c == inQuote {
				inQuote = 0
			}
			continue
		}
		switch c {
		case '\'', '"':
			inQuote = c
			continue
		case '(':
			depth++
			continue
		case ')':
			if depth > 0 {
				depth--
			}
			continue
		}
		if depth != 0 {
			continue
		}
		end := i + len(kw)
		if end <= n && upper[i:end] == kw {
			before := i == 0 || !isIdentByte(sql[i-1])
			after := end == n || !isIdentByte(sql[end])
			if before && after {
				return i
			}
		}
	}
	return -1
}

func isIdentByte(c byte) bool {
	return c == '_' || c == '$' ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// splitTopLevel splits s on sep at paren/quote depth 0, so commas
// inside nested function calls or subqueries don't split a select-list
// item.
func splitTopLevel(s string, sep byte) []string {
	var out []string
	depth := 0
	var inQuote byte
	last := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inQuote != 0 {
			if c == inQuote {
				inQuote = 0
			}
			continue
		}
		switch c {
		case '\'', '"':
			inQuote = c
		case '(':
			depth++
		case ')':
			if depth > 0 {
				depth--
			}
		default:
			if c == sep && depth == 0 {
				out = append(out, s[last:i])
				last = i + 1
			}
		}
	}
	out = append(out, s[last:])
	return out
}

// splitAlias splits a select-list item "expr AS alias" into its
// expression and alias. Only the explicit AS form is recognized; a
// bare trailing-identifier alias is indistinguishable from a two-token
// expression without a full parser, so it is left alone.
func splitAlias(item string) (expr, alias string) {
	upper := strings.ToUpper(item)
	idx := indexTopLevelKeyword(item, upper, "AS", 0)
	if idx == -1 {
		return strings.TrimSpace(item), ""
	}
	return strings.TrimSpace(item[:idx]), strings.TrimSpace(item[idx+2:])
}

// locateSelectList finds the top-level SELECT list span in sql — the
// text between the first top-level SELECT and its matching top-level
// FROM. ok is false for FROM-less statements (e.g. "SELECT 1") or
// statements with no top-level SELECT at all.
func locateSelectList(sql string) (start, end int, ok bool) {
	upper := strings.ToUpper(sql)
	selIdx := indexTopLevelKeyword(sql, upper, "SELECT", 0)
	if selIdx == -1 {
		return 0, 0, false
	}
	listStart := selIdx + len("SELECT")
	fromIdx := indexTopLevelKeyword(sql, upper, "FROM", listStart)
	if fromIdx == -1 {
		return 0, 0, false
	}
	return listStart, fromIdx, true
}
