package sqlfront

import (
	"github.com/embucket/embucket/internal/apperror"
	"github.com/xwb1989/sqlparser"
)

// Parse rewrites sql through the fixed pipeline, classifies its
// dispatch Kind, and — for kinds sqlparser's grammar covers — parses it
// into an AST. Snowflake-only kinds (MERGE, COPY INTO, CREATE STAGE,
// SHOW) are returned with Parsed left nil; their dedicated handlers in
// internal/query work from Statement.Rewritten directly.
func Parse(sql string) (*Statement, error) {
	rewritten, err := Rewrite(sql)
	if err != nil {
		return nil, err
	}

	kind := sniff(rewritten)
	stmt := &Statement{
		Kind:            kind,
		Rewritten:       rewritten,
		CreateOrReplace: hasOrReplace(rewritten),
		IfNotExists:     hasIfNotExists(rewritten),
		IfExists:        hasIfExists(rewritten),
	}

	if !sqlparserUnderstands(kind) {
		return stmt, nil
	}

	parsed, err := sqlparser.Parse(stripSnowflakeOnlyModifiers(rewritten, kind))
	if err != nil {
		return nil, apperror.New("sqlfront.Parse", apperror.KindSQLParser, err)
	}
	stmt.Parsed = parsed
	return stmt, nil
}

func sqlparserUnderstands(k Kind) bool {
	switch k {
	// CREATE TABLE is excluded too: its handler works from Rewritten's
	// text directly (column list, AS VALUES/AS SELECT tail), and
	// Snowflake's CTAS grammar is outside what this MySQL-dialect
	// parser accepts.
	case KindMergeInto, KindCopyInto, KindCreateStage, KindShow, KindCreateTable:
		return false
	default:
		return true
	}
}

// stripSnowflakeOnlyModifiers removes Snowflake clauses sqlparser's
// MySQL-dialect grammar would otherwise choke on (OR REPLACE, TRANSIENT,
// VOLATILE). OR REPLACE is already captured on Statement for the
// CREATE TABLE/SCHEMA handlers; TRANSIENT and VOLATILE are dropped.
func stripSnowflakeOnlyModifiers(sql string, kind Kind) string {
	if kind != KindCreateTable && kind != KindCreateSchema {
		return sql
	}
	out := replaceWordSeq(sql, []string{"OR", "REPLACE"}, "")
	out = replaceWordSeq(out, []string{"TRANSIENT"}, "")
	out = replaceWordSeq(out, []string{"VOLATILE"}, "")
	return out
}
