package query

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/embucket/embucket/internal/apperror"
	"github.com/embucket/embucket/internal/icebergmeta"
)

// asValuesRe finds a CREATE TABLE statement's `AS VALUES (...), (...)`
// tail, capturing the tuple list verbatim for parseValueTuples.
var asValuesRe = regexp.MustCompile(`(?is)\bAS\s+VALUES\s+(.*)$`)

// hasAsValues reports whether sql's CREATE TABLE body is `AS VALUES
// (...)` rather than an explicit column list (spec §4.6.4's CTAS row).
func hasAsValues(sql string) (string, bool) {
	m := asValuesRe.FindStringSubmatch(sql)
	if m == nil {
		return "", false
	}
	return strings.TrimSpace(m[1]), true
}

// parseValueTuples splits a `(a, b), (c, d)` literal-tuple list into
// its rows of raw literal text, each further split on top-level
// commas so a quoted string containing a comma isn't split.
func parseValueTuples(body string) ([][]string, error) {
	groups := splitTopLevelComma(body)
	rows := make([][]string, 0, len(groups))
	for _, g := range groups {
		g = strings.TrimSpace(g)
		g = strings.TrimPrefix(g, "(")
		g = strings.TrimSuffix(g, ")")
		cells := splitValueCells(g)
		row := make([]string, len(cells))
		for i, c := range cells {
			row[i] = strings.TrimSpace(c)
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return nil, apperror.Newf("query.parseValueTuples", apperror.KindSQLParser, "AS VALUES has no tuples")
	}
	n := len(rows[0])
	for _, row := range rows {
		if len(row) != n {
			return nil, apperror.Newf("query.parseValueTuples", apperror.KindSQLParser, "AS VALUES tuples have mismatched arity")
		}
	}
	return rows, nil
}

// splitValueCells splits one tuple's inside-the-parens text on commas
// not nested inside a quoted string literal.
func splitValueCells(s string) []string {
	var out []string
	var cur strings.Builder
	inQuote := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '\'':
			inQuote = !inQuote
			cur.WriteByte(c)
		case c == ',' && !inQuote:
			out = append(out, cur.String())
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	out = append(out, cur.String())
	return out
}

// inferValueSchema infers an Iceberg schema from the literal shapes in
// rows' first tuple (spec has no explicit column list for `AS VALUES`,
// so columns are named column1, column2, ... following Snowflake's own
// convention for unaliased VALUES output).
func inferValueSchema(rows [][]string) icebergmeta.Schema {
	fields := make([]icebergmeta.NestedField, len(rows[0]))
	for i, cell := range rows[0] {
		fields[i] = icebergmeta.NestedField{
			Name: "column" + strconv.Itoa(i+1),
			Type: inferLiteralType(cell),
		}
	}
	return icebergmeta.NewSchema(0, fields)
}

func inferLiteralType(lit string) icebergmeta.PrimitiveType {
	if strings.HasPrefix(lit, "'") {
		return icebergmeta.TypeString
	}
	if strings.EqualFold(lit, "true") || strings.EqualFold(lit, "false") {
		return icebergmeta.TypeBoolean
	}
	if strings.EqualFold(lit, "null") {
		return icebergmeta.TypeString
	}
	if _, err := strconv.ParseInt(lit, 10, 64); err == nil {
		return icebergmeta.TypeLong
	}
	if _, err := strconv.ParseFloat(lit, 64); err == nil {
		return icebergmeta.TypeDouble
	}
	return icebergmeta.TypeString
}

// buildValueRecord materializes rows as an Arrow record matching
// schema, the shape execution.CommitInsert expects for a table's first
// snapshot.
func buildValueRecord(schema *arrow.Schema, rows [][]string) (arrow.Record, error) {
	mem := memory.NewGoAllocator()
	builders := make([]array.Builder, len(schema.Fields()))
	for i, f := range schema.Fields() {
		builders[i] = array.NewBuilder(mem, f.Type)
	}
	for _, row := range rows {
		for i, cell := range row {
			if err := appendLiteral(builders[i], schema.Field(i).Type, cell); err != nil {
				return nil, err
			}
		}
	}
	cols := make([]arrow.Array, len(builders))
	for i, b := range builders {
		cols[i] = b.NewArray()
		b.Release()
	}
	return array.NewRecord(schema, cols, int64(len(rows))), nil
}

func appendLiteral(b array.Builder, dt arrow.DataType, lit string) error {
	if strings.EqualFold(lit, "null") {
		b.AppendNull()
		return nil
	}
	switch builder := b.(type) {
	case *array.BooleanBuilder:
		v, err := strconv.ParseBool(lit)
		if err != nil {
			return apperror.New("query.appendLiteral", apperror.KindSQLParser, err)
		}
		builder.Append(v)
	case *array.Int32Builder:
		v, err := strconv.ParseInt(lit, 10, 32)
		if err != nil {
			return apperror.New("query.appendLiteral", apperror.KindSQLParser, err)
		}
		builder.Append(int32(v))
	case *array.Int64Builder:
		v, err := strconv.ParseInt(lit, 10, 64)
		if err != nil {
			return apperror.New("query.appendLiteral", apperror.KindSQLParser, err)
		}
		builder.Append(v)
	case *array.Float32Builder:
		v, err := strconv.ParseFloat(lit, 32)
		if err != nil {
			return apperror.New("query.appendLiteral", apperror.KindSQLParser, err)
		}
		builder.Append(float32(v))
	case *array.Float64Builder:
		v, err := strconv.ParseFloat(lit, 64)
		if err != nil {
			return apperror.New("query.appendLiteral", apperror.KindSQLParser, err)
		}
		builder.Append(v)
	case *array.StringBuilder:
		builder.Append(unquoteSQLString(lit))
	default:
		return apperror.Newf("query.appendLiteral", apperror.KindNotImplemented, "unsupported VALUES column type %s", dt)
	}
	return nil
}

// unquoteSQLString strips a 'single-quoted' literal's delimiters and
// un-escapes doubled quotes, the same convention session SET values
// already use (query.applySessionSet).
func unquoteSQLString(lit string) string {
	s := strings.TrimSpace(lit)
	if len(s) >= 2 && s[0] == '\'' && s[len(s)-1] == '\'' {
		s = s[1 : len(s)-1]
	}
	return strings.ReplaceAll(s, "''", "'")
}
