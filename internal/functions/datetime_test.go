package functions

import (
	"testing"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/require"
)

func timestampArray(vals ...time.Time) *array.Timestamp {
	mem := memory.NewGoAllocator()
	b := array.NewTimestampBuilder(mem, &arrow.TimestampType{Unit: arrow.Microsecond})
	defer b.Release()
	for _, v := range vals {
		b.Append(arrow.Timestamp(v.UnixMicro()))
	}
	return b.NewArray().(*array.Timestamp)
}

func int64Array(vals ...int64) *array.Int64 {
	mem := memory.NewGoAllocator()
	b := array.NewInt64Builder(mem)
	defer b.Release()
	b.AppendValues(vals, nil)
	return b.NewArray().(*array.Int64)
}

func TestConvertSnowflakeFormatMatchesDefaultLayout(t *testing.T) {
	layout := convertSnowflakeFormat("YYYY-MM-DD HH24:MI:SS")
	require.Equal(t, "2006-01-02 15:04:05", layout)
}

func TestToTimestampParsesDefaultFormat(t *testing.T) {
	reg := New()
	out, err := reg.Call("to_timestamp", []arrow.Array{stringArray("2024-03-05 10:30:00.000 +0000")})
	require.NoError(t, err)
	ts := out.(*array.Timestamp)
	require.False(t, ts.IsNull(0))
	got := time.UnixMicro(int64(ts.Value(0))).UTC()
	require.Equal(t, 2024, got.Year())
	require.Equal(t, time.March, got.Month())
	require.Equal(t, 5, got.Day())
}

func TestToTimestampFromEpochSeconds(t *testing.T) {
	reg := New()
	out, err := reg.Call("to_timestamp", []arrow.Array{int64Array(1000000000), int64Array(0)})
	require.NoError(t, err)
	ts := out.(*array.Timestamp)
	got := time.UnixMicro(int64(ts.Value(0))).UTC()
	require.Equal(t, time.Unix(1000000000, 0).UTC(), got)
}

func TestToTimestampFromEpochMillis(t *testing.T) {
	reg := New()
	out, err := reg.Call("to_timestamp", []arrow.Array{int64Array(1000000000123), int64Array(3)})
	require.NoError(t, err)
	ts := out.(*array.Timestamp)
	got := time.UnixMicro(int64(ts.Value(0))).UTC()
	require.Equal(t, time.UnixMilli(1000000000123).UTC(), got)
}

func TestToCharRoundTripsFormat(t *testing.T) {
	reg := New()
	ts := timestampArray(time.Date(2024, 3, 5, 10, 30, 0, 0, time.UTC))
	out, err := reg.Call("to_char", []arrow.Array{ts, stringArray("YYYY-MM-DD")})
	require.NoError(t, err)
	require.Equal(t, "2024-03-05", out.(*array.String).Value(0))
}

func TestDatePartExtractsYear(t *testing.T) {
	reg := New()
	ts := timestampArray(time.Date(2024, 3, 5, 10, 30, 0, 0, time.UTC))
	out, err := reg.Call("date_part", []arrow.Array{stringArray("year"), ts})
	require.NoError(t, err)
	require.Equal(t, int64(2024), out.(*array.Int64).Value(0))
}

func TestDateAddAddsDays(t *testing.T) {
	reg := New()
	ts := timestampArray(time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC))
	out, err := reg.Call("dateadd", []arrow.Array{stringArray("day"), int64Array(10), ts})
	require.NoError(t, err)
	got := time.UnixMicro(int64(out.(*array.Timestamp).Value(0))).UTC()
	require.Equal(t, 15, got.Day())
}

func TestDateDiffCountsDays(t *testing.T) {
	reg := New()
	start := timestampArray(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	end := timestampArray(time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC))
	out, err := reg.Call("datediff", []arrow.Array{stringArray("day"), start, end})
	require.NoError(t, err)
	require.Equal(t, int64(10), out.(*array.Int64).Value(0))
}

func TestToDateTruncatesToCalendarDay(t *testing.T) {
	reg := New()
	out, err := reg.Call("to_date", []arrow.Array{stringArray("2024-03-05 10:30:00.000 +0000")})
	require.NoError(t, err)
	d := out.(*array.Date32)
	require.False(t, d.IsNull(0))
}

func TestDatePartRejectsUnknownUnit(t *testing.T) {
	reg := New()
	ts := timestampArray(time.Now())
	_, err := reg.Call("date_part", []arrow.Array{stringArray("fortnight"), ts})
	require.Error(t, err)
}
