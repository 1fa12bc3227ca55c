package query

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/xwb1989/sqlparser"

	"github.com/embucket/embucket/internal/apperror"
	"github.com/embucket/embucket/internal/execution"
	"github.com/embucket/embucket/internal/icebergmeta"
	"github.com/embucket/embucket/internal/metastore"
	"github.com/embucket/embucket/internal/objectstore"
	"github.com/embucket/embucket/internal/sqlfront"
)

// genericStmt is the fallback path for ordinary DML/SELECT. Unlike the
// statement-specific handlers above, it drives a minimal logical plan
// over internal/execution.TableProvider instead of working from
// Rewritten text alone: a single-table scan, a conjunction of
// comparison/BETWEEN predicates, a column or `*` projection, an
// optional COUNT(*), and LIMIT (spec §4.6.4's "Other DML / SELECT"
// row). Joins, subqueries, GROUP BY/ORDER BY, and aggregates other
// than COUNT(*) are out of this core's scope and fail clearly rather
// than silently mis-executing.
type genericStmt struct {
	stmt *sqlfront.Statement
}

func (s *genericStmt) Run(ctx context.Context, e *Engine, q *UserQuery) (Result, error) {
	sel, ok := s.stmt.Parsed.(*sqlparser.Select)
	if !ok {
		return Result{}, apperror.Newf("query.genericStmt.Run", apperror.KindNotImplemented, "no executor wired for: %s", fmt.Sprintf("%.80s", s.stmt.Rewritten))
	}
	return s.runSelect(ctx, e, q, sel)
}

func (s *genericStmt) runSelect(ctx context.Context, e *Engine, q *UserQuery, sel *sqlparser.Select) (Result, error) {
	if len(sel.From) != 1 {
		return Result{}, apperror.Newf("query.genericStmt.runSelect", apperror.KindNotImplemented, "SELECT over more than one table is not executed by this core")
	}
	if _, ok := sel.From[0].(*sqlparser.AliasedTableExpr); !ok {
		return Result{}, apperror.Newf("query.genericStmt.runSelect", apperror.KindNotImplemented, "joins are not executed by this core")
	}
	if len(sel.GroupBy) > 0 || len(sel.OrderBy) > 0 {
		return Result{}, apperror.Newf("query.genericStmt.runSelect", apperror.KindNotImplemented, "GROUP BY/ORDER BY are not executed by this core")
	}

	tableName, err := extractFromTableName(s.stmt.Rewritten)
	if err != nil {
		return Result{}, err
	}
	id, err := resolveTableObjectName(q.Session, splitIdentParts(tableName))
	if err != nil {
		return Result{}, err
	}

	provider, err := tableProvider(ctx, e, id)
	if err != nil {
		return Result{}, err
	}
	schema, err := provider.Schema(ctx)
	if err != nil {
		return Result{}, apperror.New("query.genericStmt.runSelect", apperror.KindIceberg, err)
	}

	filters, err := buildPredicates(sel.Where)
	if err != nil {
		return Result{}, err
	}

	countStar, err := isCountStar(sel)
	if err != nil {
		return Result{}, err
	}

	projection, err := selectProjection(sel, countStar)
	if err != nil {
		return Result{}, err
	}

	limit := -1
	if sel.Limit != nil && sel.Limit.Rowcount != nil {
		if n, ok := intLiteral(sel.Limit.Rowcount); ok {
			limit = int(n)
		}
	}

	reader, err := provider.Scan(ctx, projection, nil, 0)
	if err != nil {
		return Result{}, err
	}
	defer reader.Close()

	matched, err := filterRows(ctx, reader, schema, filters, limit)
	if err != nil {
		return Result{}, err
	}

	if countStar {
		rec := countRecord(int64(matched.NumRows()))
		return Result{Kind: "rows", RowsViewed: 1, Record: rec}, nil
	}
	return Result{Kind: "rows", RowsViewed: int(matched.NumRows()), Record: matched}, nil
}

var fromTableRe = regexp.MustCompile(`(?is)\bFROM\s+([A-Za-z0-9_."$]+)`)

// extractFromTableName pulls the single table reference out of a
// SELECT's FROM clause by text rather than sqlparser.TableName, since
// that type's Qualifier only carries one dotted level and can't
// represent a fully-qualified database.schema.table reference.
func extractFromTableName(sql string) (string, error) {
	m := fromTableRe.FindStringSubmatch(sql)
	if m == nil {
		return "", apperror.Newf("query.extractFromTableName", apperror.KindSQLParser, "could not find a FROM table in %q", sql)
	}
	return m[1], nil
}

// tableProvider builds a fresh IcebergTableProvider straight from the
// metastore for id, bypassing the catalog cache so a statement run
// right after CREATE TABLE/INSERT/MERGE sees its own writes (spec §8
// scenario 1 depends on this: CTAS followed immediately by SELECT
// count(*)).
func tableProvider(ctx context.Context, e *Engine, id metastore.TableIdent) (execution.TableProvider, error) {
	table, err := e.Metastore.GetTable(ctx, id)
	if err != nil {
		return nil, err
	}
	client, err := e.Metastore.ClientFor(ctx, table)
	if err != nil {
		return nil, err
	}
	return &execution.IcebergTableProvider{
		Metadata:    table.Metadata,
		Client:      client,
		DataScanner: execution.ScanTable,
		Inserter: func(ctx context.Context, md icebergmeta.TableMetadata, client objectstore.Client, batch arrow.Record) error {
			current, err := e.Metastore.GetTable(ctx, id)
			if err != nil {
				return err
			}
			return execution.CommitInsert(ctx, e.Metastore, client, id, current, batch)
		},
	}, nil
}

// isCountStar reports whether sel's select list is exactly one
// COUNT(*) (or COUNT(1), COUNT(col)) aggregate — the only aggregate
// this core executes, as a row count over whatever WHERE already kept.
func isCountStar(sel *sqlparser.Select) (bool, error) {
	if len(sel.SelectExprs) != 1 {
		return false, nil
	}
	ae, ok := sel.SelectExprs[0].(*sqlparser.AliasedExpr)
	if !ok {
		return false, nil
	}
	fn, ok := ae.Expr.(*sqlparser.FuncExpr)
	if !ok {
		return false, nil
	}
	return strings.EqualFold(fn.Name.String(), "count"), nil
}

// selectProjection returns the column names a non-aggregate SELECT
// should scan, or nil for `SELECT *` / COUNT(*) (no column pruning
// needed).
func selectProjection(sel *sqlparser.Select, countStar bool) ([]string, error) {
	if countStar {
		return nil, nil
	}
	if len(sel.SelectExprs) == 1 {
		if _, ok := sel.SelectExprs[0].(*sqlparser.StarExpr); ok {
			return nil, nil
		}
	}
	cols := make([]string, 0, len(sel.SelectExprs))
	for _, se := range sel.SelectExprs {
		ae, ok := se.(*sqlparser.AliasedExpr)
		if !ok {
			return nil, apperror.Newf("query.selectProjection", apperror.KindNotImplemented, "unsupported select expression %T", se)
		}
		col, ok := ae.Expr.(*sqlparser.ColName)
		if !ok {
			return nil, apperror.Newf("query.selectProjection", apperror.KindNotImplemented, "unsupported select expression %T", ae.Expr)
		}
		cols = append(cols, strings.ToLower(col.Name.String()))
	}
	return cols, nil
}

// buildPredicates flattens a WHERE clause's top-level AND conjunction
// into execution.Predicates. OR, subqueries, and anything beyond
// comparison/BETWEEN predicates are rejected rather than
// mis-evaluated.
func buildPredicates(where *sqlparser.Where) ([]execution.Predicate, error) {
	if where == nil {
		return nil, nil
	}
	return flattenAnd(where.Expr)
}

func flattenAnd(expr sqlparser.Expr) ([]execution.Predicate, error) {
	switch e := expr.(type) {
	case *sqlparser.AndExpr:
		left, err := flattenAnd(e.Left)
		if err != nil {
			return nil, err
		}
		right, err := flattenAnd(e.Right)
		if err != nil {
			return nil, err
		}
		return append(left, right...), nil
	case *sqlparser.ParenExpr:
		return flattenAnd(e.Expr)
	case *sqlparser.ComparisonExpr:
		p, err := comparisonPredicate(e)
		if err != nil {
			return nil, err
		}
		return []execution.Predicate{p}, nil
	case *sqlparser.RangeCond:
		return rangePredicates(e)
	default:
		return nil, apperror.Newf("query.flattenAnd", apperror.KindNotImplemented, "unsupported WHERE expression %T", expr)
	}
}

func comparisonPredicate(e *sqlparser.ComparisonExpr) (execution.Predicate, error) {
	col, lit, err := colAndLiteral(e.Left, e.Right)
	if err != nil {
		return execution.Predicate{}, err
	}
	op, ok := comparisonOp(e.Operator)
	if !ok {
		return execution.Predicate{}, apperror.Newf("query.comparisonPredicate", apperror.KindNotImplemented, "unsupported comparison operator %q", e.Operator)
	}
	return execution.Predicate{Column: col, Op: op, Value: lit}, nil
}

func comparisonOp(op string) (string, bool) {
	switch op {
	case sqlparser.EqualStr:
		return "=", true
	case sqlparser.NotEqualStr:
		return "!=", true
	case sqlparser.LessThanStr:
		return "<", true
	case sqlparser.LessEqualStr:
		return "<=", true
	case sqlparser.GreaterThanStr:
		return ">", true
	case sqlparser.GreaterEqualStr:
		return ">=", true
	default:
		return "", false
	}
}

func rangePredicates(e *sqlparser.RangeCond) ([]execution.Predicate, error) {
	if e.Operator != sqlparser.BetweenStr {
		return nil, apperror.Newf("query.rangePredicates", apperror.KindNotImplemented, "unsupported range condition %q", e.Operator)
	}
	col, ok := e.Left.(*sqlparser.ColName)
	if !ok {
		return nil, apperror.Newf("query.rangePredicates", apperror.KindNotImplemented, "BETWEEN's left side must be a column")
	}
	from, err := literalValue(e.From)
	if err != nil {
		return nil, err
	}
	to, err := literalValue(e.To)
	if err != nil {
		return nil, err
	}
	name := strings.ToLower(col.Name.String())
	return []execution.Predicate{
		{Column: name, Op: ">=", Value: from},
		{Column: name, Op: "<=", Value: to},
	}, nil
}

// colAndLiteral accepts either side being the column, normalizing to
// (column name, literal value), since SQL permits `col = 1` or
// `1 = col`.
func colAndLiteral(left, right sqlparser.Expr) (string, any, error) {
	if col, ok := left.(*sqlparser.ColName); ok {
		v, err := literalValue(right)
		return strings.ToLower(col.Name.String()), v, err
	}
	if col, ok := right.(*sqlparser.ColName); ok {
		v, err := literalValue(left)
		return strings.ToLower(col.Name.String()), v, err
	}
	return "", nil, apperror.Newf("query.colAndLiteral", apperror.KindNotImplemented, "comparison must have a bare column on one side")
}

func literalValue(expr sqlparser.Expr) (any, error) {
	val, ok := expr.(*sqlparser.SQLVal)
	if !ok {
		return nil, apperror.Newf("query.literalValue", apperror.KindNotImplemented, "unsupported literal expression %T", expr)
	}
	switch val.Type {
	case sqlparser.IntVal:
		n, err := strconv.ParseInt(string(val.Val), 10, 64)
		if err != nil {
			return nil, apperror.New("query.literalValue", apperror.KindSQLParser, err)
		}
		return n, nil
	case sqlparser.FloatVal:
		f, err := strconv.ParseFloat(string(val.Val), 64)
		if err != nil {
			return nil, apperror.New("query.literalValue", apperror.KindSQLParser, err)
		}
		return f, nil
	case sqlparser.StrVal:
		return string(val.Val), nil
	default:
		return nil, apperror.Newf("query.literalValue", apperror.KindNotImplemented, "unsupported literal kind %v", val.Type)
	}
}

func intLiteral(expr sqlparser.Expr) (int64, bool) {
	v, err := literalValue(expr)
	if err != nil {
		return 0, false
	}
	n, ok := v.(int64)
	return n, ok
}

// filterRows drains reader, keeping rows that satisfy every predicate
// in filters (predicates are pushdown-independent: IcebergTableProvider
// never applies them, so this is always where WHERE is enforced), and
// stopping once limit rows have been kept if limit >= 0.
func filterRows(ctx context.Context, reader execution.RecordReader, schema *arrow.Schema, filters []execution.Predicate, limit int) (arrow.Record, error) {
	var kept []arrow.Record
	total := int64(0)
	for {
		if limit >= 0 && total >= int64(limit) {
			break
		}
		rec, err := reader.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, apperror.New("query.filterRows", apperror.KindArrow, err)
		}
		if rec == nil {
			break
		}
		keep, err := keepMask(rec, filters)
		if err != nil {
			return nil, err
		}
		filtered, n := applyMask(rec, keep)
		if limit >= 0 && total+n > int64(limit) {
			filtered, n = sliceRecord(filtered, limit-int(total))
		}
		if n > 0 {
			kept = append(kept, filtered)
			total += n
		}
	}
	return concatRecords(schema, kept)
}

func keepMask(rec arrow.Record, filters []execution.Predicate) ([]bool, error) {
	n := int(rec.NumRows())
	keep := make([]bool, n)
	for i := range keep {
		keep[i] = true
	}
	if len(filters) == 0 {
		return keep, nil
	}
	schema := rec.Schema()
	for _, p := range filters {
		idx := -1
		for i, f := range schema.Fields() {
			if strings.EqualFold(f.Name, p.Column) {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil, apperror.Newf("query.keepMask", apperror.KindNotImplemented, "unknown column %q in WHERE clause", p.Column)
		}
		col := rec.Column(idx)
		for i := 0; i < n; i++ {
			if !keep[i] {
				continue
			}
			ok, err := predicateMatches(col, i, p)
			if err != nil {
				return nil, err
			}
			keep[i] = ok
		}
	}
	return keep, nil
}

func predicateMatches(col arrow.Array, row int, p execution.Predicate) (bool, error) {
	if col.IsNull(row) {
		return false, nil
	}
	switch v := col.(type) {
	case *array.Int32:
		return compareInt64(int64(v.Value(row)), p)
	case *array.Int64:
		return compareInt64(v.Value(row), p)
	case *array.Float32:
		return compareFloat64(float64(v.Value(row)), p)
	case *array.Float64:
		return compareFloat64(v.Value(row), p)
	case *array.String:
		return compareString(v.Value(row), p)
	case *array.Boolean:
		return compareBool(v.Value(row), p)
	default:
		return false, apperror.Newf("query.predicateMatches", apperror.KindNotImplemented, "unsupported column type %T in WHERE clause", col)
	}
}

func compareInt64(v int64, p execution.Predicate) (bool, error) {
	target, err := asInt64(p.Value)
	if err != nil {
		return false, err
	}
	switch p.Op {
	case "=":
		return v == target, nil
	case "!=":
		return v != target, nil
	case "<":
		return v < target, nil
	case "<=":
		return v <= target, nil
	case ">":
		return v > target, nil
	case ">=":
		return v >= target, nil
	default:
		return false, apperror.Newf("query.compareInt64", apperror.KindNotImplemented, "unsupported operator %q", p.Op)
	}
}

func asInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case float64:
		return int64(n), nil
	default:
		return 0, apperror.Newf("query.asInt64", apperror.KindNotImplemented, "cannot compare numeric column to %T", v)
	}
}

func asFloat64(v any) (float64, error) {
	switch n := v.(type) {
	case int64:
		return float64(n), nil
	case float64:
		return n, nil
	default:
		return 0, apperror.Newf("query.asFloat64", apperror.KindNotImplemented, "cannot compare numeric column to %T", v)
	}
}

func compareFloat64(v float64, p execution.Predicate) (bool, error) {
	var target float64
	switch n := p.Value.(type) {
	case int64:
		target = float64(n)
	case float64:
		target = n
	default:
		return false, apperror.Newf("query.compareFloat64", apperror.KindNotImplemented, "cannot compare numeric column to %T", p.Value)
	}
	switch p.Op {
	case "=":
		return v == target, nil
	case "!=":
		return v != target, nil
	case "<":
		return v < target, nil
	case "<=":
		return v <= target, nil
	case ">":
		return v > target, nil
	case ">=":
		return v >= target, nil
	default:
		return false, apperror.Newf("query.compareFloat64", apperror.KindNotImplemented, "unsupported operator %q", p.Op)
	}
}

func compareString(v string, p execution.Predicate) (bool, error) {
	target, ok := p.Value.(string)
	if !ok {
		return false, apperror.Newf("query.compareString", apperror.KindNotImplemented, "cannot compare string column to %T", p.Value)
	}
	switch p.Op {
	case "=":
		return v == target, nil
	case "!=":
		return v != target, nil
	case "<":
		return v < target, nil
	case "<=":
		return v <= target, nil
	case ">":
		return v > target, nil
	case ">=":
		return v >= target, nil
	default:
		return false, apperror.Newf("query.compareString", apperror.KindNotImplemented, "unsupported operator %q", p.Op)
	}
}

func compareBool(v bool, p execution.Predicate) (bool, error) {
	target, ok := p.Value.(bool)
	if !ok {
		if s, ok := p.Value.(string); ok {
			target = strings.EqualFold(s, "true")
		} else {
			return false, apperror.Newf("query.compareBool", apperror.KindNotImplemented, "cannot compare boolean column to %T", p.Value)
		}
	}
	switch p.Op {
	case "=":
		return v == target, nil
	case "!=":
		return v != target, nil
	default:
		return false, apperror.Newf("query.compareBool", apperror.KindNotImplemented, "unsupported operator %q on boolean column", p.Op)
	}
}

// applyMask copies the rows of rec where keep[i] is true into a new
// record, mirroring internal/execution/merge's row-copy idiom since
// arrow-go ships no generic compute-kernel filter this core depends
// on elsewhere.
func applyMask(rec arrow.Record, keep []bool) (arrow.Record, int64) {
	schema := rec.Schema()
	numCols := int(rec.NumCols())
	cols := make([]arrow.Array, numCols)
	var kept int64
	for _, k := range keep {
		if k {
			kept++
		}
	}
	mem := memory.NewGoAllocator()
	for c := 0; c < numCols; c++ {
		builder := array.NewBuilder(mem, schema.Field(c).Type)
		src := rec.Column(c)
		for i, k := range keep {
			if !k {
				continue
			}
			appendArrowValue(builder, src, i)
		}
		cols[c] = builder.NewArray()
		builder.Release()
	}
	return array.NewRecord(schema, cols, kept), kept
}

func sliceRecord(rec arrow.Record, n int) (arrow.Record, int64) {
	if int64(n) >= rec.NumRows() {
		return rec, rec.NumRows()
	}
	return rec.NewSlice(0, int64(n)), int64(n)
}

// concatRecords stitches kept's batches into a single record so Result
// carries one Arrow record, matching showStmt's Result.Record
// convention. An empty kept set still returns a valid zero-row record
// so callers can read NumRows()/Schema() uniformly.
func concatRecords(schema *arrow.Schema, kept []arrow.Record) (arrow.Record, error) {
	if len(kept) == 0 {
		return array.NewRecord(schema, emptyColumns(schema), 0), nil
	}
	if len(kept) == 1 {
		return kept[0], nil
	}
	numCols := int(kept[0].NumCols())
	cols := make([]arrow.Array, numCols)
	mem := memory.NewGoAllocator()
	var total int64
	for _, r := range kept {
		total += r.NumRows()
	}
	for c := 0; c < numCols; c++ {
		builder := array.NewBuilder(mem, schema.Field(c).Type)
		for _, r := range kept {
			src := r.Column(c)
			for i := 0; i < int(r.NumRows()); i++ {
				appendArrowValue(builder, src, i)
			}
		}
		cols[c] = builder.NewArray()
		builder.Release()
	}
	return array.NewRecord(schema, cols, total), nil
}

func emptyColumns(schema *arrow.Schema) []arrow.Array {
	mem := memory.NewGoAllocator()
	cols := make([]arrow.Array, len(schema.Fields()))
	for i, f := range schema.Fields() {
		builder := array.NewBuilder(mem, f.Type)
		cols[i] = builder.NewArray()
		builder.Release()
	}
	return cols
}

// countRecord wraps n as a single-column, single-row record named
// "count(*)" so count(*) results round-trip through Result.Record the
// same way any other projection does.
func countRecord(n int64) arrow.Record {
	schema := arrow.NewSchema([]arrow.Field{{Name: "count(*)", Type: arrow.PrimitiveTypes.Int64}}, nil)
	builder := array.NewInt64Builder(memory.NewGoAllocator())
	builder.Append(n)
	col := builder.NewArray()
	builder.Release()
	return array.NewRecord(schema, []arrow.Array{col}, 1)
}

func appendArrowValue(builder array.Builder, src arrow.Array, i int) {
	if src.IsNull(i) {
		builder.AppendNull()
		return
	}
	switch v := src.(type) {
	case *array.Boolean:
		builder.(*array.BooleanBuilder).Append(v.Value(i))
	case *array.Int32:
		builder.(*array.Int32Builder).Append(v.Value(i))
	case *array.Int64:
		builder.(*array.Int64Builder).Append(v.Value(i))
	case *array.Float32:
		builder.(*array.Float32Builder).Append(v.Value(i))
	case *array.Float64:
		builder.(*array.Float64Builder).Append(v.Value(i))
	case *array.Date32:
		builder.(*array.Date32Builder).Append(v.Value(i))
	case *array.Time64:
		builder.(*array.Time64Builder).Append(v.Value(i))
	case *array.Timestamp:
		builder.(*array.TimestampBuilder).Append(v.Value(i))
	case *array.String:
		builder.(*array.StringBuilder).Append(v.Value(i))
	case *array.Binary:
		builder.(*array.BinaryBuilder).Append(v.Value(i))
	}
}
