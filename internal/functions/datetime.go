// Datetime scalar functions. Grounded on
// original_source/crates/embucket-functions/src/conversion/to_timestamp.rs:
// convert_snowflake_format_to_chrono's token table is the ground truth
// for convertSnowflakeFormat below, translated to Go's reference-time
// layout strings instead of chrono/strftime directives (Go's time
// package has no strftime-style formatter, so there is no "teacher's
// way" to imitate here beyond the stdlib time package itself — every
// example repo in the pack that touches timestamps uses time.Parse/
// time.Format directly).
package functions

import (
	"strings"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/embucket/embucket/internal/apperror"
)

func datetimeFuncs() []Func {
	return []Func{
		{Name: "to_timestamp", Arity: -1, Call: toTimestamp},
		{Name: "to_date", Arity: -1, Call: toDate},
		{Name: "to_char", Arity: -1, Call: toChar},
		{Name: "date_part", Arity: 2, Call: datePart},
		{Name: "dateadd", Arity: 3, Call: dateAdd},
		{Name: "datediff", Arity: 3, Call: dateDiff},
	}
}

const defaultTimestampFormat = "YYYY-MM-DD HH24:MI:SS.FF3 TZHTZM"

// snowflakeFormatTokens is convert_snowflake_format_to_chrono's
// replacement table, translated from chrono "%" directives to Go's
// reference-date layout, in the same longest-match-first order the
// original applies (case-insensitively, hence the lower-casing).
var snowflakeFormatTokens = []struct{ from, to string }{
	{"yyyy", "2006"}, {"yy", "06"},
	{"mm", "01"}, {"month", "January"}, {"mon", "Jan"},
	{"dd", "02"}, {"dy", "Mon"}, {"day", "Monday"},
	{"hh24", "15"}, {"hh", "03"}, {"am", "pm"}, {"pm", "pm"},
	{"mi", "04"},
	{"ss", "05"},
	{".ff9", ".000000000"}, {".ff6", ".000000"}, {".ff3", ".000"}, {".ff", ".000"},
	{"tzh:tzm", "-07:00"}, {"tzhtzm", "-0700"},
}

func convertSnowflakeFormat(format string) string {
	out := strings.ToLower(format)
	for _, tok := range snowflakeFormatTokens {
		out = strings.ReplaceAll(out, tok.from, tok.to)
	}
	return out
}

// parseTimestampString parses s using format if non-empty (a Snowflake
// format string per convertSnowflakeFormat), otherwise tries the
// default format followed by a short list of common fallbacks.
func parseTimestampString(s, format string) (time.Time, error) {
	if format != "" {
		t, err := time.Parse(convertSnowflakeFormat(format), s)
		if err != nil {
			return time.Time{}, apperror.New("functions.parseTimestampString", apperror.KindInvalidFunctionArgument, err)
		}
		return t, nil
	}
	layouts := []string{
		convertSnowflakeFormat(defaultTimestampFormat),
		time.RFC3339Nano,
		"2006-01-02 15:04:05.999999999",
		"2006-01-02 15:04:05",
		"2006-01-02",
	}
	var lastErr error
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		} else {
			lastErr = err
		}
	}
	return time.Time{}, apperror.New("functions.parseTimestampString", apperror.KindInvalidFunctionArgument, lastErr)
}

// epochToTime implements the scaled-integer path build_from_int_scale
// covers: scale 0/3/6/9 means the integer is seconds/milliseconds/
// microseconds/nanoseconds since the epoch.
func epochToTime(v int64, scale int64) (time.Time, error) {
	switch scale {
	case 0:
		return time.Unix(v, 0).UTC(), nil
	case 3:
		return time.UnixMilli(v).UTC(), nil
	case 6:
		return time.UnixMicro(v).UTC(), nil
	case 9:
		return time.Unix(0, v).UTC(), nil
	default:
		return time.Time{}, apperror.Newf("functions.epochToTime", apperror.KindInvalidFunctionArgument, "invalid scale %d: must be 0, 3, 6, or 9", scale)
	}
}

// toTimestamp implements TO_TIMESTAMP(value[, format_or_scale]): value
// may be a timestamp-looking string or an integer epoch; the second
// argument is a format string for the former and a scale for the
// latter, mirroring to_timestamp.rs's dispatch on the first argument's
// type.
func toTimestamp(args []arrow.Array) (arrow.Array, error) {
	if len(args) < 1 || len(args) > 2 {
		return nil, apperror.Newf("functions.toTimestamp", apperror.KindInvalidFunctionArgument, "to_timestamp expects 1 or 2 arguments, got %d", len(args))
	}
	mem := memory.NewGoAllocator()
	b := array.NewTimestampBuilder(mem, &arrow.TimestampType{Unit: arrow.Microsecond})
	defer b.Release()

	switch v := args[0].(type) {
	case *array.String:
		format := ""
		if len(args) == 2 {
			f, ok := args[1].(*array.String)
			if !ok {
				return nil, apperror.Newf("functions.toTimestamp", apperror.KindInvalidFunctionArgument, "format argument must be a string array, got %T", args[1])
			}
			if f.Len() > 0 && !f.IsNull(0) {
				format = f.Value(0)
			}
		}
		for i := 0; i < v.Len(); i++ {
			if v.IsNull(i) {
				b.AppendNull()
				continue
			}
			t, err := parseTimestampString(v.Value(i), format)
			if err != nil {
				return nil, err
			}
			b.Append(arrow.Timestamp(t.UnixMicro()))
		}
	case *array.Int64:
		var scale int64
		if len(args) == 2 {
			s, ok := args[1].(*array.Int64)
			if !ok {
				return nil, apperror.Newf("functions.toTimestamp", apperror.KindInvalidFunctionArgument, "scale argument must be an int64 array, got %T", args[1])
			}
			if s.Len() > 0 && !s.IsNull(0) {
				scale = s.Value(0)
			}
		}
		for i := 0; i < v.Len(); i++ {
			if v.IsNull(i) {
				b.AppendNull()
				continue
			}
			t, err := epochToTime(v.Value(i), scale)
			if err != nil {
				return nil, err
			}
			b.Append(arrow.Timestamp(t.UnixMicro()))
		}
	default:
		return nil, apperror.Newf("functions.toTimestamp", apperror.KindInvalidFunctionArgument, "unsupported value argument type %T", args[0])
	}
	return b.NewArray(), nil
}

// toDate implements TO_DATE the same way as toTimestamp, truncated to
// the calendar day and returned as Arrow Date32.
func toDate(args []arrow.Array) (arrow.Array, error) {
	ts, err := toTimestamp(args)
	if err != nil {
		return nil, err
	}
	tsArr := ts.(*array.Timestamp)
	defer tsArr.Release()

	mem := memory.NewGoAllocator()
	b := array.NewDate32Builder(mem)
	defer b.Release()
	for i := 0; i < tsArr.Len(); i++ {
		if tsArr.IsNull(i) {
			b.AppendNull()
			continue
		}
		t := time.UnixMicro(int64(tsArr.Value(i))).UTC()
		b.Append(arrow.Date32FromTime(t))
	}
	return b.NewArray(), nil
}

// toChar implements TO_CHAR(timestamp[, format]): formats a timestamp
// array back to strings using the same Snowflake format conversion
// toTimestamp parses with.
func toChar(args []arrow.Array) (arrow.Array, error) {
	if len(args) < 1 || len(args) > 2 {
		return nil, apperror.Newf("functions.toChar", apperror.KindInvalidFunctionArgument, "to_char expects 1 or 2 arguments, got %d", len(args))
	}
	ts, ok := args[0].(*array.Timestamp)
	if !ok {
		return nil, apperror.Newf("functions.toChar", apperror.KindInvalidFunctionArgument, "value argument must be a timestamp array, got %T", args[0])
	}
	format := defaultTimestampFormat
	if len(args) == 2 {
		f, ok := args[1].(*array.String)
		if !ok {
			return nil, apperror.Newf("functions.toChar", apperror.KindInvalidFunctionArgument, "format argument must be a string array, got %T", args[1])
		}
		if f.Len() > 0 && !f.IsNull(0) {
			format = f.Value(0)
		}
	}
	layout := convertSnowflakeFormat(format)

	mem := memory.NewGoAllocator()
	b := array.NewStringBuilder(mem)
	defer b.Release()
	for i := 0; i < ts.Len(); i++ {
		if ts.IsNull(i) {
			b.AppendNull()
			continue
		}
		t := time.UnixMicro(int64(ts.Value(i))).UTC()
		b.Append(t.Format(layout))
	}
	return b.NewArray(), nil
}

// datePartUnits maps DATE_PART/DATEADD/DATEDIFF's part names to the
// field extractor/calendar arithmetic they select.
var datePartUnits = map[string]bool{
	"year": true, "month": true, "day": true,
	"hour": true, "minute": true, "second": true,
}

func normalizePart(part string) (string, error) {
	p := strings.ToLower(strings.TrimSuffix(part, "s"))
	if !datePartUnits[p] {
		return "", apperror.Newf("functions.normalizePart", apperror.KindInvalidFunctionArgument, "unsupported date part %q", part)
	}
	return p, nil
}

func extractPart(t time.Time, part string) int64 {
	switch part {
	case "year":
		return int64(t.Year())
	case "month":
		return int64(t.Month())
	case "day":
		return int64(t.Day())
	case "hour":
		return int64(t.Hour())
	case "minute":
		return int64(t.Minute())
	case "second":
		return int64(t.Second())
	default:
		return 0
	}
}

func addPart(t time.Time, part string, n int64) time.Time {
	switch part {
	case "year":
		return t.AddDate(int(n), 0, 0)
	case "month":
		return t.AddDate(0, int(n), 0)
	case "day":
		return t.AddDate(0, 0, int(n))
	case "hour":
		return t.Add(time.Duration(n) * time.Hour)
	case "minute":
		return t.Add(time.Duration(n) * time.Minute)
	case "second":
		return t.Add(time.Duration(n) * time.Second)
	default:
		return t
	}
}

func diffParts(start, end time.Time, part string) int64 {
	switch part {
	case "year":
		return int64(end.Year() - start.Year())
	case "month":
		return int64((end.Year()-start.Year())*12 + int(end.Month()-start.Month()))
	case "day":
		return int64(end.Sub(start).Hours() / 24)
	case "hour":
		return int64(end.Sub(start).Hours())
	case "minute":
		return int64(end.Sub(start).Minutes())
	case "second":
		return int64(end.Sub(start).Seconds())
	default:
		return 0
	}
}

func timestampValueAt(a arrow.Array, i int) (time.Time, bool, error) {
	ts, ok := a.(*array.Timestamp)
	if !ok {
		return time.Time{}, false, apperror.Newf("functions.timestampValueAt", apperror.KindInvalidFunctionArgument, "expected a timestamp array, got %T", a)
	}
	if ts.IsNull(i) {
		return time.Time{}, true, nil
	}
	return time.UnixMicro(int64(ts.Value(i))).UTC(), false, nil
}

// datePart implements DATE_PART(part, timestamp).
func datePart(args []arrow.Array) (arrow.Array, error) {
	partArr, ok := args[0].(*array.String)
	if !ok || partArr.Len() == 0 {
		return nil, apperror.Newf("functions.datePart", apperror.KindInvalidFunctionArgument, "part argument must be a non-empty string array, got %T", args[0])
	}
	part, err := normalizePart(partArr.Value(0))
	if err != nil {
		return nil, err
	}

	mem := memory.NewGoAllocator()
	b := array.NewInt64Builder(mem)
	defer b.Release()
	n := args[1].Len()
	for i := 0; i < n; i++ {
		t, isNull, err := timestampValueAt(args[1], i)
		if err != nil {
			return nil, err
		}
		if isNull {
			b.AppendNull()
			continue
		}
		b.Append(extractPart(t, part))
	}
	return b.NewArray(), nil
}

func int64ArrayArg(args []arrow.Array, i int, fn string) (*array.Int64, error) {
	a, ok := args[i].(*array.Int64)
	if !ok {
		return nil, apperror.Newf("functions."+fn, apperror.KindInvalidFunctionArgument, "argument %d must be an int64 array, got %T", i, args[i])
	}
	return a, nil
}

// dateAdd implements DATEADD(part, n, timestamp).
func dateAdd(args []arrow.Array) (arrow.Array, error) {
	partArr, ok := args[0].(*array.String)
	if !ok || partArr.Len() == 0 {
		return nil, apperror.Newf("functions.dateAdd", apperror.KindInvalidFunctionArgument, "part argument must be a non-empty string array, got %T", args[0])
	}
	part, err := normalizePart(partArr.Value(0))
	if err != nil {
		return nil, err
	}
	amounts, err := int64ArrayArg(args, 1, "dateAdd")
	if err != nil {
		return nil, err
	}

	mem := memory.NewGoAllocator()
	b := array.NewTimestampBuilder(mem, &arrow.TimestampType{Unit: arrow.Microsecond})
	defer b.Release()
	n := args[2].Len()
	for i := 0; i < n; i++ {
		t, isNull, err := timestampValueAt(args[2], i)
		if err != nil {
			return nil, err
		}
		if isNull || amounts.IsNull(i) {
			b.AppendNull()
			continue
		}
		b.Append(arrow.Timestamp(addPart(t, part, amounts.Value(i)).UnixMicro()))
	}
	return b.NewArray(), nil
}

// dateDiff implements DATEDIFF(part, start, end).
func dateDiff(args []arrow.Array) (arrow.Array, error) {
	partArr, ok := args[0].(*array.String)
	if !ok || partArr.Len() == 0 {
		return nil, apperror.Newf("functions.dateDiff", apperror.KindInvalidFunctionArgument, "part argument must be a non-empty string array, got %T", args[0])
	}
	part, err := normalizePart(partArr.Value(0))
	if err != nil {
		return nil, err
	}

	starts, ends := args[1], args[2]
	if starts.Len() != ends.Len() {
		return nil, apperror.Newf("functions.dateDiff", apperror.KindInvalidFunctionArgument, "start and end arrays must have the same length, got %d and %d", starts.Len(), ends.Len())
	}

	mem := memory.NewGoAllocator()
	b := array.NewInt64Builder(mem)
	defer b.Release()
	for i := 0; i < starts.Len(); i++ {
		start, startNull, err := timestampValueAt(starts, i)
		if err != nil {
			return nil, err
		}
		end, endNull, err := timestampValueAt(ends, i)
		if err != nil {
			return nil, err
		}
		if startNull || endNull {
			b.AppendNull()
			continue
		}
		b.Append(diffParts(start, end, part))
	}
	return b.NewArray(), nil
}
