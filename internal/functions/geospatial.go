// Geospatial scalar functions, grounded on
// original_source/crates/embucket-functions/src/geospatial/accessors/line_string.rs
// and .../measurement/contains.rs for which operations this core's
// ST_* surface needs to cover (construction, measurement, text I/O) and
// original_source/crates/embucket-functions/src/geospatial/data_types.rs's
// use of the geoarrow/geo-traits crates for the shape of the problem —
// none of which has a Go counterpart anywhere in the retrieval pack, so
// geometry storage here is WKT text over arrow.String (see geometry.go)
// rather than a binary columnar geometry array type.
package functions

import (
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/embucket/embucket/internal/apperror"
)

const defaultBufferSegments = 32

func geospatialFuncs() []Func {
	return []Func{
		{Name: "st_point", Arity: 2, Call: stPoint},
		{Name: "st_makeline", Arity: 2, Call: stMakeLine},
		{Name: "st_distance", Arity: 2, Call: stDistance},
		{Name: "st_area", Arity: 1, Call: stArea},
		{Name: "st_astext", Arity: 1, Call: stAsText},
		{Name: "st_geogfromtext", Arity: 1, Call: stGeogFromText},
		{Name: "st_buffer", Arity: 2, Call: stBuffer},
	}
}

func float64ArrayArg(args []arrow.Array, i int, fn string) (*array.Float64, error) {
	a, ok := args[i].(*array.Float64)
	if !ok {
		return nil, apperror.Newf("functions."+fn, apperror.KindInvalidFunctionArgument, "argument %d must be a float64 array, got %T", i, args[i])
	}
	return a, nil
}

func stringArrayArg(args []arrow.Array, i int, fn string) (*array.String, error) {
	a, ok := args[i].(*array.String)
	if !ok {
		return nil, apperror.Newf("functions."+fn, apperror.KindInvalidFunctionArgument, "argument %d must be a string array, got %T", i, args[i])
	}
	return a, nil
}

// stPoint implements ST_POINT(x, y): builds a WKT POINT per row from
// paired x/y float64 arrays.
func stPoint(args []arrow.Array) (arrow.Array, error) {
	xs, err := float64ArrayArg(args, 0, "stPoint")
	if err != nil {
		return nil, err
	}
	ys, err := float64ArrayArg(args, 1, "stPoint")
	if err != nil {
		return nil, err
	}
	if xs.Len() != ys.Len() {
		return nil, apperror.Newf("functions.stPoint", apperror.KindInvalidFunctionArgument, "x and y arrays must have the same length, got %d and %d", xs.Len(), ys.Len())
	}

	mem := memory.NewGoAllocator()
	b := array.NewStringBuilder(mem)
	defer b.Release()
	for i := 0; i < xs.Len(); i++ {
		if xs.IsNull(i) || ys.IsNull(i) {
			b.AppendNull()
			continue
		}
		b.Append(formatPoint(newPoint(xs.Value(i), ys.Value(i))))
	}
	return b.NewArray(), nil
}

// stMakeLine implements ST_MAKELINE(g1, g2): builds a WKT LINESTRING
// connecting the two input points, row by row.
func stMakeLine(args []arrow.Array) (arrow.Array, error) {
	g1, err := stringArrayArg(args, 0, "stMakeLine")
	if err != nil {
		return nil, err
	}
	g2, err := stringArrayArg(args, 1, "stMakeLine")
	if err != nil {
		return nil, err
	}
	if g1.Len() != g2.Len() {
		return nil, apperror.Newf("functions.stMakeLine", apperror.KindInvalidFunctionArgument, "geometry arrays must have the same length, got %d and %d", g1.Len(), g2.Len())
	}

	mem := memory.NewGoAllocator()
	b := array.NewStringBuilder(mem)
	defer b.Release()
	for i := 0; i < g1.Len(); i++ {
		if g1.IsNull(i) || g2.IsNull(i) {
			b.AppendNull()
			continue
		}
		p1, err := asPoint(g1.Value(i))
		if err != nil {
			return nil, err
		}
		p2, err := asPoint(g2.Value(i))
		if err != nil {
			return nil, err
		}
		b.Append(formatLineString(lineString{points: []point{p1, p2}}))
	}
	return b.NewArray(), nil
}

// stDistance implements ST_DISTANCE(g1, g2): great-circle distance in
// meters between two WKT points (spec: GEOGRAPHY semantics, not planar
// GEOMETRY).
func stDistance(args []arrow.Array) (arrow.Array, error) {
	g1, err := stringArrayArg(args, 0, "stDistance")
	if err != nil {
		return nil, err
	}
	g2, err := stringArrayArg(args, 1, "stDistance")
	if err != nil {
		return nil, err
	}
	if g1.Len() != g2.Len() {
		return nil, apperror.Newf("functions.stDistance", apperror.KindInvalidFunctionArgument, "geometry arrays must have the same length, got %d and %d", g1.Len(), g2.Len())
	}

	mem := memory.NewGoAllocator()
	b := array.NewFloat64Builder(mem)
	defer b.Release()
	for i := 0; i < g1.Len(); i++ {
		if g1.IsNull(i) || g2.IsNull(i) {
			b.AppendNull()
			continue
		}
		p1, err := asPoint(g1.Value(i))
		if err != nil {
			return nil, err
		}
		p2, err := asPoint(g2.Value(i))
		if err != nil {
			return nil, err
		}
		b.Append(haversineMeters(p1, p2))
	}
	return b.NewArray(), nil
}

// stArea implements ST_AREA(polygon) in square meters (see
// planarAreaMeters's doc comment for the approximation it makes).
func stArea(args []arrow.Array) (arrow.Array, error) {
	g, err := stringArrayArg(args, 0, "stArea")
	if err != nil {
		return nil, err
	}
	mem := memory.NewGoAllocator()
	b := array.NewFloat64Builder(mem)
	defer b.Release()
	for i := 0; i < g.Len(); i++ {
		if g.IsNull(i) {
			b.AppendNull()
			continue
		}
		geom, err := parseWKT(g.Value(i))
		if err != nil {
			return nil, err
		}
		poly, ok := geom.(polygon)
		if !ok {
			return nil, apperror.Newf("functions.stArea", apperror.KindInvalidFunctionArgument, "ST_AREA requires a POLYGON, got %q", g.Value(i))
		}
		b.Append(planarAreaMeters(poly.ring))
	}
	return b.NewArray(), nil
}

// stAsText implements ST_ASTEXT(geometry): validates and re-serializes
// the input WKT, canonicalizing whitespace the same way every other
// function in this package formats coordinates.
func stAsText(args []arrow.Array) (arrow.Array, error) {
	return normalizeWKT(args, "stAsText")
}

// stGeogFromText implements ST_GEOGFROMTEXT(text): parses and
// validates text as a GEOGRAPHY value. This core has no binary
// geometry storage to convert into, so the round-trip is the
// validation itself.
func stGeogFromText(args []arrow.Array) (arrow.Array, error) {
	return normalizeWKT(args, "stGeogFromText")
}

func normalizeWKT(args []arrow.Array, fn string) (arrow.Array, error) {
	g, err := stringArrayArg(args, 0, fn)
	if err != nil {
		return nil, err
	}
	mem := memory.NewGoAllocator()
	b := array.NewStringBuilder(mem)
	defer b.Release()
	for i := 0; i < g.Len(); i++ {
		if g.IsNull(i) {
			b.AppendNull()
			continue
		}
		geom, err := parseWKT(g.Value(i))
		if err != nil {
			return nil, err
		}
		b.Append(formatGeometry(geom))
	}
	return b.NewArray(), nil
}

// stBuffer implements ST_BUFFER(point, radius): approximates a disc of
// the given radius (meters) around a point as a 32-sided polygon (see
// circlePolygon's doc comment).
func stBuffer(args []arrow.Array) (arrow.Array, error) {
	g, err := stringArrayArg(args, 0, "stBuffer")
	if err != nil {
		return nil, err
	}
	radii, err := float64ArrayArg(args, 1, "stBuffer")
	if err != nil {
		return nil, err
	}
	if g.Len() != radii.Len() {
		return nil, apperror.Newf("functions.stBuffer", apperror.KindInvalidFunctionArgument, "geometry and radius arrays must have the same length, got %d and %d", g.Len(), radii.Len())
	}

	mem := memory.NewGoAllocator()
	b := array.NewStringBuilder(mem)
	defer b.Release()
	for i := 0; i < g.Len(); i++ {
		if g.IsNull(i) || radii.IsNull(i) {
			b.AppendNull()
			continue
		}
		p, err := asPoint(g.Value(i))
		if err != nil {
			return nil, err
		}
		b.Append(formatPolygon(circlePolygon(p, radii.Value(i), defaultBufferSegments)))
	}
	return b.NewArray(), nil
}

func asPoint(wkt string) (point, error) {
	geom, err := parseWKT(wkt)
	if err != nil {
		return point{}, err
	}
	p, ok := geom.(point)
	if !ok {
		return point{}, apperror.Newf("functions.asPoint", apperror.KindInvalidFunctionArgument, "expected a POINT, got %q", wkt)
	}
	return p, nil
}

func formatGeometry(geom interface{}) string {
	switch g := geom.(type) {
	case point:
		return formatPoint(g)
	case lineString:
		return formatLineString(g)
	case polygon:
		return formatPolygon(g)
	default:
		return ""
	}
}
