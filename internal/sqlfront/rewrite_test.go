package sqlfront

import (
	"testing"

	"github.com/embucket/embucket/internal/apperror"
	"github.com/stretchr/testify/require"
)

func TestRewriteTopLimit(t *testing.T) {
	out, err := rewriteTopLimit("SELECT TOP 10 a, b FROM t")
	require.NoError(t, err)
	require.Equal(t, "SELECT a, b FROM t LIMIT 10", out)
}

func TestRewriteJSONAccess(t *testing.T) {
	out, err := rewriteJSONAccess("SELECT payload:name FROM t")
	require.NoError(t, err)
	require.Equal(t, "SELECT json_get(payload, 'name') FROM t", out)
}

func TestRewriteFunctionsDatePart(t *testing.T) {
	out, err := rewriteFunctions("SELECT year(created_at) FROM t")
	require.NoError(t, err)
	require.Contains(t, out, "date_part('year', created_at)")
}

func TestCheckUnimplementedFunctionsRejectsUnknown(t *testing.T) {
	_, err := checkUnimplementedFunctions("SELECT totally_made_up_fn(a) FROM t")
	require.Error(t, err)
	require.Equal(t, apperror.KindUnimplementedFunction, apperror.KindOf(err))
}

func TestCheckUnimplementedFunctionsAllowsKnown(t *testing.T) {
	out, err := checkUnimplementedFunctions("SELECT count(a), upper(b) FROM t")
	require.NoError(t, err)
	require.Contains(t, out, "count(a)")
}

func TestNormalizeCopyIntoStripsAt(t *testing.T) {
	out, err := normalizeCopyIntoIdents("COPY INTO t FROM @my_stage")
	require.NoError(t, err)
	require.Equal(t, "COPY INTO t FROM my_stage", out)
}

func TestSniffDetectsMergeAndCopy(t *testing.T) {
	require.Equal(t, KindMergeInto, sniff("MERGE INTO t USING s ON t.id = s.id"))
	require.Equal(t, KindCopyInto, sniff("COPY INTO t FROM @stage"))
	require.Equal(t, KindShow, sniff("SHOW TABLES"))
	require.Equal(t, KindCreateStage, sniff("CREATE STAGE my_stage URL='s3://x'"))
}

func TestParseGenericSelect(t *testing.T) {
	stmt, err := Parse("SELECT TOP 5 id, name FROM users")
	require.NoError(t, err)
	require.Equal(t, KindGeneric, stmt.Kind)
	require.NotNil(t, stmt.Parsed)
	require.Contains(t, stmt.Rewritten, "LIMIT 5")
}

func TestAliasDuplicateExpressionsTagsRepeats(t *testing.T) {
	out, err := aliasDuplicateExpressions("SELECT a+b, c, a+b FROM t")
	require.NoError(t, err)
	require.Equal(t, "SELECT a+b AS expr_1, c, a+b AS expr_2 FROM t", out)
}

func TestAliasDuplicateExpressionsLeavesUniqueAlone(t *testing.T) {
	out, err := aliasDuplicateExpressions("SELECT a, b FROM t")
	require.NoError(t, err)
	require.Equal(t, "SELECT a, b FROM t", out)
}

func TestInlineAliasesSubstitutesLaterExpression(t *testing.T) {
	out, err := inlineAliases("SELECT a+1 AS x, x*2 FROM t")
	require.NoError(t, err)
	require.Equal(t, "SELECT a+1 AS x, (a+1)*2 FROM t", out)
}

func TestInlineAliasesSubstitutesIntoQualify(t *testing.T) {
	out, err := inlineAliases("SELECT a, row_number() over (order by a) AS rn FROM t QUALIFY rn = 1")
	require.NoError(t, err)
	require.Contains(t, out, "QUALIFY (row_number() over (order by a)) = 1")
}

func TestParseMergeIntoStaysRaw(t *testing.T) {
	stmt, err := Parse("MERGE INTO t USING s ON t.id = s.id WHEN MATCHED THEN DELETE")
	require.NoError(t, err)
	require.Equal(t, KindMergeInto, stmt.Kind)
	require.Nil(t, stmt.Parsed)
}
