package functions

import (
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/require"
)

func float64Array(vals ...float64) *array.Float64 {
	mem := memory.NewGoAllocator()
	b := array.NewFloat64Builder(mem)
	defer b.Release()
	b.AppendValues(vals, nil)
	return b.NewArray().(*array.Float64)
}

func stringArray(vals ...string) *array.String {
	mem := memory.NewGoAllocator()
	b := array.NewStringBuilder(mem)
	defer b.Release()
	for _, v := range vals {
		b.Append(v)
	}
	return b.NewArray().(*array.String)
}

func TestSTPointBuildsWKT(t *testing.T) {
	reg := New()
	out, err := reg.Call("st_point", []arrow.Array{float64Array(1, 2), float64Array(3, 4)})
	require.NoError(t, err)
	s := out.(*array.String)
	require.Equal(t, "POINT(1 3)", s.Value(0))
	require.Equal(t, "POINT(2 4)", s.Value(1))
}

func TestSTDistanceIsZeroForSamePoint(t *testing.T) {
	reg := New()
	p := stringArray("POINT(1 1)")
	out, err := reg.Call("st_distance", []arrow.Array{p, p})
	require.NoError(t, err)
	require.InDelta(t, 0, out.(*array.Float64).Value(0), 1e-9)
}

func TestSTDistanceKnownPoints(t *testing.T) {
	reg := New()
	g1 := stringArray("POINT(0 0)")
	g2 := stringArray("POINT(0 1)")
	out, err := reg.Call("st_distance", []arrow.Array{g1, g2})
	require.NoError(t, err)
	// one degree of latitude is ~111.2 km
	require.InDelta(t, 111195, out.(*array.Float64).Value(0), 500)
}

func TestSTMakeLineAndAsText(t *testing.T) {
	reg := New()
	g1 := stringArray("POINT(0 0)")
	g2 := stringArray("POINT(1 1)")
	line, err := reg.Call("st_makeline", []arrow.Array{g1, g2})
	require.NoError(t, err)
	require.Equal(t, "LINESTRING(0 0, 1 1)", line.(*array.String).Value(0))

	text, err := reg.Call("st_astext", []arrow.Array{line})
	require.NoError(t, err)
	require.Equal(t, "LINESTRING(0 0, 1 1)", text.(*array.String).Value(0))
}

func TestSTAreaOfUnitSquareApproximatelyMatchesPlanarArea(t *testing.T) {
	reg := New()
	square := stringArray("POLYGON((0 0, 0 1, 1 1, 1 0, 0 0))")
	out, err := reg.Call("st_area", []arrow.Array{square})
	require.NoError(t, err)
	// ~111.2km x 111.2km at the equator
	require.InDelta(t, 111195.0*111195.0, out.(*array.Float64).Value(0), 1e9)
}

func TestSTGeogFromTextRejectsGarbage(t *testing.T) {
	reg := New()
	_, err := reg.Call("st_geogfromtext", []arrow.Array{stringArray("not a geometry")})
	require.Error(t, err)
}

func TestSTBufferProducesClosedPolygon(t *testing.T) {
	reg := New()
	out, err := reg.Call("st_buffer", []arrow.Array{stringArray("POINT(0 0)"), float64Array(1000)})
	require.NoError(t, err)
	wkt := out.(*array.String).Value(0)
	require.Contains(t, wkt, "POLYGON((")
}

func TestH3LatLngToCellProducesNonEmptyHex(t *testing.T) {
	reg := New()
	mem := memory.NewGoAllocator()
	resB := array.NewInt64Builder(mem)
	resB.Append(9)
	res := resB.NewArray()
	defer resB.Release()

	out, err := reg.Call("h3_latlng_to_cell", []arrow.Array{float64Array(37.77), float64Array(-122.41), res})
	require.NoError(t, err)
	cell := out.(*array.String).Value(0)
	require.NotEmpty(t, cell)
}

func TestRegistryCallRejectsUnknownFunction(t *testing.T) {
	reg := New()
	_, err := reg.Call("st_nonexistent", nil)
	require.Error(t, err)
}

func TestRegistryCallEnforcesArity(t *testing.T) {
	reg := New()
	_, err := reg.Call("st_point", []arrow.Array{float64Array(1)})
	require.Error(t, err)
}
