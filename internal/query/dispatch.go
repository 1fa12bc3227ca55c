package query

import (
	"context"
	"regexp"
	"strings"

	"github.com/embucket/embucket/internal/apperror"
	"github.com/embucket/embucket/internal/execution"
	"github.com/embucket/embucket/internal/icebergmeta"
	"github.com/embucket/embucket/internal/infoschema"
	"github.com/embucket/embucket/internal/metastore"
	"github.com/embucket/embucket/internal/session"
	"github.com/embucket/embucket/internal/sqlfront"
)

// Dispatched is one classified, ready-to-run statement (spec §4.6.4).
// Run executes it against the engine's metastore/catalog/session
// state; the generic path (genericStmt) executes single-table SELECTs
// over internal/execution's TableProvider and reports other DML as
// not implemented.
type Dispatched interface {
	Run(ctx context.Context, e *Engine, q *UserQuery) (Result, error)
}

// Dispatch classifies sql via sqlfront.Parse and routes it to its
// dedicated handler, per the table in spec §4.6.4.
func Dispatch(sql string, sess *session.UserSession) (Dispatched, error) {
	stmt, err := sqlfront.Parse(sql)
	if err != nil {
		return nil, err
	}
	switch stmt.Kind {
	case sqlfront.KindAlterSession, sqlfront.KindUse, sqlfront.KindSet:
		return &sessionPropertyStmt{stmt: stmt}, nil
	case sqlfront.KindCreateSchema:
		return &createSchemaStmt{stmt: stmt}, nil
	case sqlfront.KindCreateTable:
		return &createTableStmt{stmt: stmt}, nil
	case sqlfront.KindDropTable:
		return &dropTableStmt{stmt: stmt}, nil
	case sqlfront.KindDropSchema:
		return &dropSchemaStmt{stmt: stmt}, nil
	case sqlfront.KindTruncateTable:
		return &truncateTableStmt{stmt: stmt}, nil
	case sqlfront.KindShow:
		return &showStmt{stmt: stmt}, nil
	case sqlfront.KindMergeInto:
		return &mergeIntoStmt{stmt: stmt}, nil
	case sqlfront.KindDropView, sqlfront.KindCreateStage, sqlfront.KindCopyInto:
		return &unimplementedStmt{stmt: stmt}, nil
	default:
		return &genericStmt{stmt: stmt}, nil
	}
}

// --- ALTER SESSION / USE / SET ---------------------------------------

type sessionPropertyStmt struct{ stmt *sqlfront.Statement }

func (s *sessionPropertyStmt) Run(ctx context.Context, e *Engine, q *UserQuery) (Result, error) {
	var err error
	switch s.stmt.Kind {
	case sqlfront.KindUse:
		err = applyUse(q.Session, s.stmt.Rewritten)
	default:
		err = applySessionSet(q.Session, s.stmt.Rewritten)
	}
	if err != nil {
		return Result{}, err
	}
	return Result{Kind: "status"}, nil
}

var useRe = regexp.MustCompile(`(?is)^\s*USE\s+(?:(DATABASE|SCHEMA)\s+)?([A-Za-z0-9_."$]+)`)

func applyUse(sess *session.UserSession, sql string) error {
	m := useRe.FindStringSubmatch(sql)
	if m == nil {
		return apperror.Newf("query.applyUse", apperror.KindSQLParser, "could not parse USE statement: %q", sql)
	}
	qualifier := strings.ToUpper(m[1])
	parts := splitIdentParts(m[2])
	switch {
	case qualifier == "DATABASE":
		sess.SetCurrentNamespace(sess.Normalizer.Normalize(parts[0]), "")
	case qualifier == "SCHEMA" && len(parts) == 2:
		sess.SetCurrentNamespace(sess.Normalizer.Normalize(parts[0]), sess.Normalizer.Normalize(parts[1]))
	case qualifier == "SCHEMA":
		sess.SetCurrentNamespace("", sess.Normalizer.Normalize(parts[0]))
	case len(parts) == 2:
		sess.SetCurrentNamespace(sess.Normalizer.Normalize(parts[0]), sess.Normalizer.Normalize(parts[1]))
	default:
		sess.SetCurrentNamespace(sess.Normalizer.Normalize(parts[0]), "")
	}
	return nil
}

var setAssignRe = regexp.MustCompile(`(?is)([A-Za-z_][A-Za-z0-9_]*)\s*=\s*('(?:[^']|'')*'|[^,;]+)`)

// applySessionSet implements `SET var = value` and `ALTER SESSION SET
// var = value[, ...]`: DataFusion-namespaced keys and everything else
// alike land in the session's property bag (spec §4.6.4 — this core
// has no separate config-option store, so the bag is authoritative for
// both).
func applySessionSet(sess *session.UserSession, sql string) error {
	body := sql
	upper := strings.ToUpper(sql)
	if idx := strings.Index(upper, "SET"); idx != -1 {
		body = sql[idx+len("SET"):]
	}
	matches := setAssignRe.FindAllStringSubmatch(body, -1)
	if len(matches) == 0 {
		return apperror.Newf("query.applySessionSet", apperror.KindSQLParser, "could not parse SET statement: %q", sql)
	}
	for _, m := range matches {
		key := strings.ToLower(strings.TrimSpace(m[1]))
		value := unquoteSQLString(m[2])
		sess.SetProperty(key, value)
	}
	return nil
}

// --- CREATE SCHEMA -----------------------------------------------------

type createSchemaStmt struct{ stmt *sqlfront.Statement }

func (s *createSchemaStmt) Run(ctx context.Context, e *Engine, q *UserQuery) (Result, error) {
	name, err := extractObjectName(s.stmt.Rewritten, []string{"SCHEMA", "DATABASE"})
	if err != nil {
		return Result{}, err
	}
	id, err := resolveSchemaObjectName(q.Session, splitIdentParts(name))
	if err != nil {
		return Result{}, err
	}

	if err := e.Metastore.CreateSchema(ctx, metastore.Schema{Database: id.Database, Name: id.Schema}); err != nil {
		if s.stmt.IfNotExists && apperror.Is(err, apperror.KindAlreadyExists) {
			return Result{Kind: "status"}, nil
		}
		return Result{}, err
	}
	return Result{Kind: "status"}, nil
}

// --- CREATE TABLE --------------------------------------------------------

type createTableStmt struct{ stmt *sqlfront.Statement }

func (s *createTableStmt) Run(ctx context.Context, e *Engine, q *UserQuery) (Result, error) {
	name, err := extractObjectName(s.stmt.Rewritten, []string{"TABLE"})
	if err != nil {
		return Result{}, err
	}
	id, err := resolveTableObjectName(q.Session, splitIdentParts(name))
	if err != nil {
		return Result{}, err
	}

	if s.stmt.CreateOrReplace {
		if err := e.Metastore.DeleteTable(ctx, id, true); err != nil && !apperror.Is(err, apperror.KindTableNotFound) {
			return Result{}, err
		}
	}

	valuesBody, isValues := hasAsValues(s.stmt.Rewritten)
	var rows [][]string
	schema := icebergmeta.NewSchema(0, nil)
	if isValues {
		var err error
		rows, err = parseValueTuples(valuesBody)
		if err != nil {
			return Result{}, err
		}
		schema = inferValueSchema(rows)
	} else {
		var err error
		schema, err = buildSchemaFromColumnList(s.stmt.Rewritten)
		if err != nil {
			return Result{}, err
		}
	}

	table, err := e.Metastore.CreateTable(ctx, id, metastore.CreateTableRequest{Schema: schema})
	if err != nil {
		if s.stmt.IfNotExists && apperror.Is(err, apperror.KindAlreadyExists) {
			return Result{Kind: "status"}, nil
		}
		return Result{}, err
	}

	if isValues {
		arrowSchema, err := execution.ArrowSchema(schema)
		if err != nil {
			return Result{}, apperror.New("query.createTableStmt.Run", apperror.KindIceberg, err)
		}
		batch, err := buildValueRecord(arrowSchema, rows)
		if err != nil {
			return Result{}, err
		}
		client, err := e.Metastore.ClientFor(ctx, table)
		if err != nil {
			return Result{}, err
		}
		if err := execution.CommitInsert(ctx, e.Metastore, client, id, table, batch); err != nil {
			return Result{}, err
		}
	}

	if e.Catalogs != nil {
		_ = e.Catalogs.Refresh(ctx)
	}
	return Result{Kind: "status"}, nil
}

var createColumnListRe = regexp.MustCompile(`(?is)\bTABLE\b.*?\(`)

// buildSchemaFromColumnList parses the column-definition parenthetical
// of a CREATE TABLE statement into an Iceberg schema with monotonically
// increasing field ids starting at 0 (spec §4.6.4). `CREATE TABLE ...
// AS SELECT` has no column list here; the appended DML's projected
// schema is out of this layer's scope (see internal/execution), so it
// is created with an empty schema for the caller to evolve via
// UpdateTable once the select's output schema is known.
func buildSchemaFromColumnList(sql string) (icebergmeta.Schema, error) {
	loc := createColumnListRe.FindStringIndex(sql)
	if loc == nil {
		return icebergmeta.NewSchema(0, nil), nil
	}
	body, ok := extractParenGroup(sql, loc[1]-1)
	if !ok {
		return icebergmeta.NewSchema(0, nil), nil
	}

	defs := splitTopLevelComma(body)
	fields := make([]icebergmeta.NestedField, 0, len(defs))
	for _, def := range defs {
		field, ok := parseColumnDef(def)
		if ok {
			fields = append(fields, field)
		}
	}
	return icebergmeta.NewSchema(0, fields), nil
}

func parseColumnDef(def string) (icebergmeta.NestedField, bool) {
	fields := strings.Fields(strings.TrimSpace(def))
	if len(fields) < 2 {
		return icebergmeta.NestedField{}, false
	}
	name := strings.Trim(fields[0], `"`)
	typeName := strings.ToUpper(fields[1])
	if idx := strings.IndexByte(typeName, '('); idx != -1 {
		typeName = typeName[:idx]
	}
	required := strings.Contains(strings.ToUpper(def), "NOT NULL")
	return icebergmeta.NestedField{Name: name, Type: mapColumnType(typeName), Required: required}, true
}

func mapColumnType(t string) icebergmeta.PrimitiveType {
	switch t {
	case "BOOLEAN", "BOOL":
		return icebergmeta.TypeBoolean
	case "INT", "INTEGER", "SMALLINT", "TINYINT", "BYTEINT":
		return icebergmeta.TypeInt
	case "BIGINT", "NUMBER", "DECIMAL", "NUMERIC":
		return icebergmeta.TypeLong
	case "FLOAT", "FLOAT4", "REAL":
		return icebergmeta.TypeFloat
	case "DOUBLE", "FLOAT8":
		return icebergmeta.TypeDouble
	case "DATE":
		return icebergmeta.TypeDate
	case "TIME":
		return icebergmeta.TypeTime
	case "TIMESTAMP", "TIMESTAMP_NTZ", "DATETIME":
		return icebergmeta.TypeTimestamp
	case "TIMESTAMP_LTZ", "TIMESTAMP_TZ":
		return icebergmeta.TypeTimestampTZ
	case "BINARY", "VARBINARY":
		return icebergmeta.TypeBinary
	default:
		return icebergmeta.TypeString
	}
}

// extractParenGroup returns the text inside the matching parenthesis
// pair that opens at sql[openIdx], depth-tracked so a type like
// NUMBER(10,2) inside the column list doesn't close the group early.
func extractParenGroup(sql string, openIdx int) (string, bool) {
	if openIdx < 0 || openIdx >= len(sql) || sql[openIdx] != '(' {
		return "", false
	}
	depth := 0
	for i := openIdx; i < len(sql); i++ {
		switch sql[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return sql[openIdx+1 : i], true
			}
		}
	}
	return "", false
}

func splitTopLevelComma(s string) []string {
	var out []string
	depth := 0
	last := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			if depth > 0 {
				depth--
			}
		case ',':
			if depth == 0 {
				out = append(out, s[last:i])
				last = i + 1
			}
		}
	}
	out = append(out, s[last:])
	return out
}

// --- DROP / TRUNCATE -----------------------------------------------------

type dropTableStmt struct{ stmt *sqlfront.Statement }

func (s *dropTableStmt) Run(ctx context.Context, e *Engine, q *UserQuery) (Result, error) {
	name, err := extractObjectName(s.stmt.Rewritten, []string{"TABLE"})
	if err != nil {
		return Result{}, err
	}
	id, err := resolveTableObjectName(q.Session, splitIdentParts(name))
	if err != nil {
		return Result{}, err
	}
	if err := e.Metastore.DeleteTable(ctx, id, true); err != nil {
		if s.stmt.IfExists && apperror.Is(err, apperror.KindTableNotFound) {
			return Result{Kind: "status"}, nil
		}
		return Result{}, err
	}
	return Result{Kind: "status"}, nil
}

type dropSchemaStmt struct{ stmt *sqlfront.Statement }

func (s *dropSchemaStmt) Run(ctx context.Context, e *Engine, q *UserQuery) (Result, error) {
	name, err := extractObjectName(s.stmt.Rewritten, []string{"SCHEMA", "DATABASE"})
	if err != nil {
		return Result{}, err
	}
	id, err := resolveSchemaObjectName(q.Session, splitIdentParts(name))
	if err != nil {
		return Result{}, err
	}
	if err := e.Metastore.DeleteSchema(ctx, id, false); err != nil {
		if s.stmt.IfExists && apperror.Is(err, apperror.KindSchemaNotFound) {
			return Result{Kind: "status"}, nil
		}
		return Result{}, err
	}
	return Result{Kind: "status"}, nil
}

// truncateTableStmt implements spec §4.6.4's TRUNCATE TABLE handling:
// rewrite to `CREATE OR REPLACE TABLE t AS SELECT * FROM t WHERE
// FALSE`. Building the replacement's schema from the live table avoids
// re-deriving it from a SELECT plan this layer doesn't execute.
type truncateTableStmt struct{ stmt *sqlfront.Statement }

func (s *truncateTableStmt) Run(ctx context.Context, e *Engine, q *UserQuery) (Result, error) {
	name, err := extractObjectName(s.stmt.Rewritten, []string{"TABLE"})
	if err != nil {
		return Result{}, err
	}
	id, err := resolveTableObjectName(q.Session, splitIdentParts(name))
	if err != nil {
		return Result{}, err
	}
	existing, err := e.Metastore.GetTable(ctx, id)
	if err != nil {
		return Result{}, err
	}
	schema := currentSchemaOf(existing.Metadata)
	if err := e.Metastore.DeleteTable(ctx, id, true); err != nil {
		return Result{}, err
	}
	_, err = e.Metastore.CreateTable(ctx, id, metastore.CreateTableRequest{
		Schema:     schema,
		Properties: existing.Properties,
		Format:     existing.Format,
	})
	return Result{Kind: "status"}, err
}

// currentSchemaOf returns a table's current schema, or an empty schema
// with field ids restarting at 0 if its metadata names no current
// schema (shouldn't happen for a live table, but CREATE TABLE needs
// somewhere to fall back to).
func currentSchemaOf(md icebergmeta.TableMetadata) icebergmeta.Schema {
	for _, s := range md.Schemas {
		if s.SchemaID == md.CurrentSchemaID {
			return s
		}
	}
	return icebergmeta.NewSchema(0, nil)
}

// --- SHOW ---------------------------------------------------------------

// showKeywordToView maps SHOW <kind>'s plural keyword to the
// information_schema view it rewrites into (spec §4.6.4: "SHOW
// DATABASES becomes SELECT * FROM <catalog>.information_schema.databases",
// and so on for SCHEMAS/TABLES/COLUMNS).
var showKeywordToView = map[string]string{
	"DATABASES": infoschema.ViewDatabases,
	"SCHEMAS":   infoschema.ViewSchemata,
	"TABLES":    infoschema.ViewTables,
	"COLUMNS":   infoschema.ViewColumns,
}

var showKindRe = regexp.MustCompile(`(?is)^\s*SHOW\s+([A-Za-z]+)`)
var showInRe = regexp.MustCompile(`(?is)\bIN\s+(?:DATABASE|SCHEMA)\s+([A-Za-z0-9_."$]+)`)

// showStmt implements spec §4.6.4's SHOW rewrite by building the target
// information_schema view directly, rather than literally rewriting SQL
// text and re-dispatching it through the logical planner this core
// doesn't have.
type showStmt struct{ stmt *sqlfront.Statement }

func (s *showStmt) Run(ctx context.Context, e *Engine, q *UserQuery) (Result, error) {
	m := showKindRe.FindStringSubmatch(s.stmt.Rewritten)
	if m == nil {
		return Result{}, apperror.Newf("query.showStmt.Run", apperror.KindSQLParser, "could not parse SHOW statement: %q", s.stmt.Rewritten)
	}
	view, ok := showKeywordToView[strings.ToUpper(m[1])]
	if !ok {
		return Result{}, apperror.Newf("query.showStmt.Run", apperror.KindNotImplemented, "SHOW %s has no information_schema view wired in this core", m[1])
	}

	databaseFilter := ""
	if im := showInRe.FindStringSubmatch(s.stmt.Rewritten); im != nil {
		databaseFilter = q.Session.Normalizer.Normalize(splitIdentParts(im[1])[0])
	} else if view != infoschema.ViewDatabases {
		databaseFilter = q.Session.CurrentDatabase()
	}

	rec, err := infoschema.Build(ctx, e.Metastore, view, databaseFilter)
	if err != nil {
		return Result{}, err
	}
	return Result{Kind: "rows", RowsViewed: int(rec.NumRows()), Record: rec}, nil
}

// --- not-yet-dispatched kinds --------------------------------------------

// unimplementedStmt covers statement kinds with a dedicated spec §4.6.4
// row (DROP VIEW, CREATE STAGE/COPY INTO) whose handlers need staging
// infrastructure (external volumes, file formats) this core doesn't
// build; they fail clearly rather than silently no-op. SHOW is handled
// separately by showStmt, and MERGE INTO by mergeIntoStmt, neither of
// which needs that infrastructure.
type unimplementedStmt struct{ stmt *sqlfront.Statement }

func (s *unimplementedStmt) Run(ctx context.Context, e *Engine, q *UserQuery) (Result, error) {
	return Result{}, apperror.Newf("query.unimplementedStmt.Run", apperror.KindNotImplemented, "statement kind %v has no executor wired in this core", s.stmt.Kind)
}

func extractObjectName(sql string, keywords []string) (string, error) {
	re := regexp.MustCompile(`(?is)\b(?:` + strings.Join(keywords, "|") + `)\b\s+(?:IF\s+NOT\s+EXISTS\s+)?(?:IF\s+EXISTS\s+)?([A-Za-z0-9_."$]+)`)
	m := re.FindStringSubmatch(sql)
	if m == nil {
		return "", apperror.Newf("query.extractObjectName", apperror.KindSQLParser, "could not find object name in %q", sql)
	}
	return m[1], nil
}
