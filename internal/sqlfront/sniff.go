package sqlfront

import "strings"

// sniff classifies sql by its leading keyword(s), ahead of any
// rewriting, since the rewrite pipeline itself needs to know e.g.
// whether it is looking at a COPY INTO before it can strip the `@`
// stage-name prefix.
func sniff(sql string) Kind {
	f := fields(sql)
	if len(f) == 0 {
		return KindGeneric
	}
	first := strings.ToUpper(f[0])
	second := ""
	if len(f) > 1 {
		second = strings.ToUpper(f[1])
	}

	switch first {
	case "ALTER":
		if second == "SESSION" {
			return KindAlterSession
		}
	case "USE":
		return KindUse
	case "SET":
		return KindSet
	case "CREATE", "CREATE_OR_REPLACE":
		return sniffCreate(f)
	case "DROP":
		switch second {
		case "TABLE":
			return KindDropTable
		case "VIEW":
			return KindDropView
		case "SCHEMA", "DATABASE":
			return KindDropSchema
		}
	case "TRUNCATE":
		return KindTruncateTable
	case "COPY":
		if second == "INTO" {
			return KindCopyInto
		}
	case "SHOW":
		return KindShow
	case "MERGE":
		return KindMergeInto
	}
	return KindGeneric
}

func sniffCreate(f []string) Kind {
	// CREATE [OR REPLACE] [TEMP|TEMPORARY] TABLE|SCHEMA|STAGE ...
	i := 1
	for i < len(f) && strings.ToUpper(f[i]) == "OR" {
		i += 2 // "OR REPLACE"
	}
	for i < len(f) {
		kw := strings.ToUpper(f[i])
		switch kw {
		case "TEMP", "TEMPORARY", "TRANSIENT", "VOLATILE":
			i++
			continue
		case "TABLE":
			return KindCreateTable
		case "SCHEMA", "DATABASE":
			return KindCreateSchema
		case "STAGE":
			return KindCreateStage
		}
		break
	}
	return KindGeneric
}

// fields splits sql into whitespace-delimited tokens without caring
// about quoting; good enough to classify the first couple of keywords.
func fields(sql string) []string {
	return strings.Fields(sql)
}

func hasOrReplace(sql string) bool {
	return containsKeywordPair(sql, "OR", "REPLACE")
}

func hasIfNotExists(sql string) bool {
	return containsKeywordSeq(sql, "IF", "NOT", "EXISTS")
}

func hasIfExists(sql string) bool {
	return containsKeywordSeq(sql, "IF", "EXISTS")
}

func containsKeywordPair(sql, a, b string) bool {
	return containsKeywordSeq(sql, a, b)
}

func containsKeywordSeq(sql string, seq ...string) bool {
	f := fields(sql)
	for i := range f {
		if matchesSeqAt(f, i, seq) {
			return true
		}
	}
	return false
}

func matchesSeqAt(f []string, start int, seq []string) bool {
	if start+len(seq) > len(f) {
		return false
	}
	for j, kw := range seq {
		if !strings.EqualFold(f[start+j], kw) {
			return false
		}
	}
	return true
}

// replaceWordSeq removes the first case-insensitive occurrence of the
// whitespace-delimited keyword sequence seq from sql, collapsing the
// resulting double space.
func replaceWordSeq(sql string, seq []string, replacement string) string {
	f := fields(sql)
	for i := range f {
		if matchesSeqAt(f, i, seq) {
			out := append([]string{}, f[:i]...)
			if replacement != "" {
				out = append(out, replacement)
			}
			out = append(out, f[i+len(seq):]...)
			return strings.Join(out, " ")
		}
	}
	return sql
}
