package sqlfront

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/embucket/embucket/internal/apperror"
)

// Visitor is one idempotent, semantics-preserving rewrite step (spec
// §4.6.3). Each operates on SQL text rather than a shared AST since the
// pipeline spans both sqlparser-understood statements and the
// Snowflake-only shapes sqlparser has no grammar for at all.
type Visitor func(sql string) (string, error)

// Pipeline returns the nine rewrite visitors in the fixed order spec
// §4.6.3 specifies.
func Pipeline() []Visitor {
	return []Visitor{
		rewriteJSONAccess,
		rewriteFunctions,
		rewriteTopLimit,
		checkUnimplementedFunctions,
		normalizeCopyIntoIdents,
		aliasDuplicateExpressions,
		inlineAliases,
		unwrapTableResultScan,
		canonicalizeVariants,
	}
}

// Rewrite runs sql through the fixed pipeline in order, stopping at the
// first visitor that errors.
func Rewrite(sql string) (string, error) {
	out := sql
	for _, v := range Pipeline() {
		next, err := v(out)
		if err != nil {
			return "", err
		}
		out = next
	}
	return out, nil
}

// 1. JSON element access: expr:field and expr[i] chains become nested
// json_get(expr, key) calls.
var (
	jsonColonRe = regexp.MustCompile(`([A-Za-z_][A-Za-z0-9_\.]*)\s*:\s*([A-Za-z_][A-Za-z0-9_]*)`)
	jsonIndexRe = regexp.MustCompile(`([A-Za-z_][A-Za-z0-9_\.]*)\s*\[\s*(\d+)\s*\]`)
)

func rewriteJSONAccess(sql string) (string, error) {
	out := jsonColonRe.ReplaceAllString(sql, `json_get($1, '$2')`)
	out = jsonIndexRe.ReplaceAllString(out, `json_get($1, $2)`)
	return out, nil
}

// 2. Function rewriter: Snowflake date-part shorthand, dateadd/datediff
// part literals, sha2 normalization.
var datePartShorthand = map[string]string{
	"dayofyear":  "year",
	"day":        "day",
	"dayofmonth": "day",
	"dayofweek":  "dow",
	"month":      "month",
	"weekofyear": "week",
	"week":       "week",
	"hour":       "hour",
	"minute":     "minute",
	"second":     "second",
	"year":       "year",
}

func rewriteFunctions(sql string) (string, error) {
	out := sql
	for name, part := range datePartShorthand {
		re := regexp.MustCompile(`(?i)\b` + name + `\s*\(\s*([^()]+?)\s*\)`)
		out = re.ReplaceAllString(out, fmt.Sprintf(`date_part('%s', $1)`, part))
	}

	partLitRe := regexp.MustCompile(`(?i)\b(dateadd|datediff)\s*\(\s*([A-Za-z_]+)\s*,`)
	out = partLitRe.ReplaceAllString(out, "$1('$2',")

	sha2Re := regexp.MustCompile(`(?i)\bsha2\s*\(\s*([^,()]+?)\s*(?:,\s*(\d+)\s*)?\)`)
	out = sha2Re.ReplaceAllStringFunc(out, func(m string) string {
		groups := sha2Re.FindStringSubmatch(m)
		bits := "256"
		if len(groups) > 2 && groups[2] != "" {
			bits = groups[2]
		}
		name := map[string]string{"224": "sha224", "256": "sha256", "512": "sha512"}[bits]
		if name == "" {
			name = "sha256"
		}
		return fmt.Sprintf("%s(%s)", name, groups[1])
	})
	return out, nil
}

// 3. Snowflake `SELECT TOP n ...` becomes a trailing LIMIT n.
var topRe = regexp.MustCompile(`(?i)^(\s*SELECT)\s+TOP\s+(\d+)\s+`)

func rewriteTopLimit(sql string) (string, error) {
	m := topRe.FindStringSubmatch(sql)
	if m == nil {
		return sql, nil
	}
	rest := topRe.ReplaceAllString(sql, "$1 ")
	return fmt.Sprintf("%s LIMIT %s", strings.TrimRight(rest, "; \t\n"), m[2]), nil
}

// 4. Unimplemented-function checker: fail fast on calls to functions
// outside the supported set (spec §4.6.3 step 4). The allow-list lives
// alongside internal/functions's registry so both stay in sync.
var funcCallRe = regexp.MustCompile(`\b([A-Za-z_][A-Za-z0-9_]*)\s*\(`)

// sqlKeywordsLikeCalls covers control-flow/DDL keywords that a naive
// regex would mistake for function calls.
var sqlKeywordsLikeCalls = map[string]bool{
	"select": true, "from": true, "where": true, "values": true,
	"as": true, "table": true, "into": true, "group": true, "order": true,
	"if": true, "case": true, "when": true, "exists": true,
}

func checkUnimplementedFunctions(sql string) (string, error) {
	// CREATE TABLE is not checked: funcCallRe would read its
	// `name (col TYPE(p), ...)` column list as function calls.
	if sniff(sql) == KindCreateTable {
		return sql, nil
	}
	for _, m := range funcCallRe.FindAllStringSubmatch(sql, -1) {
		name := strings.ToLower(m[1])
		if sqlKeywordsLikeCalls[name] {
			continue
		}
		if !SupportedFunctions[name] {
			return "", apperror.Newf("sqlfront.checkUnimplementedFunctions", apperror.KindUnimplementedFunction, "function %q is not implemented", name)
		}
	}
	return sql, nil
}

// 5. COPY INTO identifier normalization: strip a leading '@' off stage
// names.
var stageRefRe = regexp.MustCompile(`@([A-Za-z_][A-Za-z0-9_.$]*)`)

func normalizeCopyIntoIdents(sql string) (string, error) {
	if sniff(sql) != KindCopyInto {
		return sql, nil
	}
	return stageRefRe.ReplaceAllString(sql, "$1"), nil
}

// 6. Select expression aliases: assign expr_N to unique non-aliased
// duplicated expressions in the select list so later name resolution
// is unambiguous. Operates on the select-list text directly (splitting
// on top-level commas) rather than a parsed tree, since this step also
// has to run ahead of statement kinds sqlparser's grammar never sees.
func aliasDuplicateExpressions(sql string) (string, error) {
	start, end, ok := locateSelectList(sql)
	if !ok {
		return sql, nil
	}
	items := splitTopLevel(sql[start:end], ',')
	counts := make(map[string]int, len(items))
	for _, it := range items {
		expr, _ := splitAlias(it)
		counts[expr]++
	}

	seen := make(map[string]int, len(items))
	changed := false
	for i, it := range items {
		expr, alias := splitAlias(it)
		switch {
		case alias == "" && counts[expr] > 1:
			seen[expr]++
			items[i] = fmt.Sprintf("%s AS expr_%d", expr, seen[expr])
			changed = true
		case alias != "":
			items[i] = expr + " AS " + alias
		default:
			items[i] = expr
		}
	}
	if !changed {
		return sql, nil
	}
	return sql[:start] + " " + strings.Join(items, ", ") + " " + sql[end:], nil
}

// 7. Inline aliases: textually substitute a select-list alias into
// later select-list expressions and into a trailing QUALIFY clause,
// since both share the select list's name scope in Snowflake.
func inlineAliases(sql string) (string, error) {
	start, end, ok := locateSelectList(sql)
	if !ok {
		return sql, nil
	}
	items := splitTopLevel(sql[start:end], ',')
	type item struct{ expr, alias string }
	parsed := make([]item, len(items))
	for i, it := range items {
		expr, alias := splitAlias(it)
		parsed[i] = item{expr, alias}
	}

	tail := sql[end:]
	changed := false
	for i, p := range parsed {
		if p.alias == "" {
			continue
		}
		for j := i + 1; j < len(parsed); j++ {
			next := substituteIdent(parsed[j].expr, p.alias, p.expr)
			if next != parsed[j].expr {
				parsed[j].expr = next
				changed = true
			}
		}
		if next := substituteIdentInQualify(tail, p.alias, p.expr); next != tail {
			tail = next
			changed = true
		}
	}
	if !changed {
		return sql, nil
	}

	out := make([]string, len(parsed))
	for i, p := range parsed {
		if p.alias != "" {
			out[i] = p.expr + " AS " + p.alias
		} else {
			out[i] = p.expr
		}
	}
	return sql[:start] + " " + strings.Join(out, ", ") + " " + tail, nil
}

// substituteIdent replaces standalone occurrences of alias in s with
// "(expr)", skipping qualified references like t.alias.
func substituteIdent(s, alias, expr string) string {
	re := regexp.MustCompile(`(?i)(^|[^.\w$])(` + regexp.QuoteMeta(alias) + `)\b`)
	return re.ReplaceAllStringFunc(s, func(m string) string {
		sub := re.FindStringSubmatch(m)
		return sub[1] + "(" + expr + ")"
	})
}

// substituteIdentInQualify applies substituteIdent only inside a
// trailing QUALIFY clause, stopping at ORDER BY/LIMIT, leaving
// FROM/WHERE/GROUP BY untouched.
func substituteIdentInQualify(tail, alias, expr string) string {
	upper := strings.ToUpper(tail)
	qIdx := indexTopLevelKeyword(tail, upper, "QUALIFY", 0)
	if qIdx == -1 {
		return tail
	}
	bodyStart := qIdx + len("QUALIFY")
	body := tail[bodyStart:]
	bodyUpper := upper[bodyStart:]
	stopAt := len(body)
	for _, kw := range []string{"ORDER", "LIMIT"} {
		if idx := indexTopLevelKeyword(body, bodyUpper, kw, 0); idx != -1 && idx < stopAt {
			stopAt = idx
		}
	}
	clause := body[:stopAt]
	newClause := substituteIdent(clause, alias, expr)
	if newClause == clause {
		return tail
	}
	return tail[:bodyStart] + newClause + body[stopAt:]
}

// 8. table(RESULT_SCAN(...)) / table(FLATTEN(...)) unwrapping.
var tableFnRe = regexp.MustCompile(`(?i)\btable\s*\(\s*(RESULT_SCAN|FLATTEN)\s*\(`)

func unwrapTableResultScan(sql string) (string, error) {
	return tableFnRe.ReplaceAllString(sql, "$1("), nil
}

// 9. Variant visit: canonicalize variant/structured-type literals.
// Snowflake accepts bare `{...}`/`[...]` object/array literals in
// expression position; normalize them to `PARSE_JSON('...')` calls so
// downstream planning only ever sees a scalar function call.
var variantLiteralRe = regexp.MustCompile(`(?m)(=|,|\(|\s)(\{[^{}]*\}|\[[^\[\]]*\])`)

func canonicalizeVariants(sql string) (string, error) {
	return variantLiteralRe.ReplaceAllStringFunc(sql, func(m string) string {
		sub := variantLiteralRe.FindStringSubmatch(m)
		return fmt.Sprintf("%sPARSE_JSON('%s')", sub[1], strings.ReplaceAll(sub[2], "'", "''"))
	}), nil
}
