// Package sqlfront implements the parsing and AST-rewrite half of C6:
// Snowflake-flavored SQL text goes through an ordered, idempotent
// rewrite pipeline (spec §4.6.3) before being handed to a parser.
// Generic DML/SELECT statements parse with xwb1989/sqlparser, the same
// base grammar the rest of the Go ecosystem reaches for; Snowflake-only
// statement shapes sqlparser has no grammar for (MERGE, COPY INTO,
// CREATE STAGE, SHOW, QUALIFY) are sniffed by leading keyword and
// carried as raw text plus the handful of fields the dispatch table
// in internal/query needs, rather than forcing a full custom grammar.
package sqlfront

import "github.com/xwb1989/sqlparser"

// Kind names the dispatch-table bucket a statement falls into (spec
// §4.6.4).
type Kind int

const (
	KindGeneric Kind = iota
	KindAlterSession
	KindUse
	KindSet
	KindCreateTable
	KindCreateSchema
	KindCreateStage
	KindCopyInto
	KindDropTable
	KindDropView
	KindDropSchema
	KindTruncateTable
	KindShow
	KindMergeInto
)

// Statement is the result of parsing one SQL text: its dispatch Kind,
// the fully rewritten SQL text, and — for kinds sqlparser understands —
// the parsed AST.
type Statement struct {
	Kind     Kind
	Rewritten string
	Parsed   sqlparser.Statement // nil for Snowflake-only kinds (MERGE, COPY INTO, CREATE STAGE, SHOW)

	// CreateOrReplace / IfNotExists / IfExists surface the modifiers
	// spec §4.6.4 calls out explicitly, since sqlparser's grammar
	// doesn't carry Snowflake's OR REPLACE.
	CreateOrReplace bool
	IfNotExists     bool
	IfExists        bool
}
