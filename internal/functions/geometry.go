package functions

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/embucket/embucket/internal/apperror"
)

// point/lineString/polygon are this package's in-memory geometry
// representation. Snowflake's GEOGRAPHY/GEOMETRY columns are backed by
// WKB internally but always accept and print WKT text (ST_AsText,
// ST_GeogFromText); original_source backs the same functions with the
// geoarrow/geo-traits crates' native array types, which have no Go
// counterpart in this retrieval pack, so geometries here are carried
// as parsed WKT instead of a binary columnar geometry encoding.
type point struct{ x, y float64 }

type lineString struct{ points []point }

type polygon struct{ ring []point } // single outer ring; holes are out of scope

const earthRadiusMeters = 6371008.8

func newPoint(x, y float64) point { return point{x: x, y: y} }

func formatPoint(p point) string {
	return fmt.Sprintf("POINT(%s %s)", formatCoord(p.x), formatCoord(p.y))
}

func formatLineString(l lineString) string {
	return fmt.Sprintf("LINESTRING(%s)", joinCoords(l.points))
}

func formatPolygon(p polygon) string {
	return fmt.Sprintf("POLYGON((%s))", joinCoords(p.ring))
}

func joinCoords(pts []point) string {
	parts := make([]string, len(pts))
	for i, p := range pts {
		parts[i] = formatCoord(p.x) + " " + formatCoord(p.y)
	}
	return strings.Join(parts, ", ")
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// parseWKT recognizes the three geometry shapes ST_GeogFromText/ST_AsText
// round-trip in this package: POINT, LINESTRING, POLYGON. Anything else
// fails with KindInvalidFunctionArgument rather than silently producing
// a zero-value geometry.
func parseWKT(s string) (interface{}, error) {
	s = strings.TrimSpace(s)
	upper := strings.ToUpper(s)
	switch {
	case strings.HasPrefix(upper, "POINT"):
		pts, err := parseCoordList(s, "POINT")
		if err != nil {
			return nil, err
		}
		if len(pts) != 1 {
			return nil, apperror.Newf("functions.parseWKT", apperror.KindInvalidFunctionArgument, "POINT must have exactly one coordinate pair: %q", s)
		}
		return pts[0], nil
	case strings.HasPrefix(upper, "LINESTRING"):
		pts, err := parseCoordList(s, "LINESTRING")
		if err != nil {
			return nil, err
		}
		return lineString{points: pts}, nil
	case strings.HasPrefix(upper, "POLYGON"):
		body, ok := innerParens(s, "POLYGON")
		if !ok {
			return nil, apperror.Newf("functions.parseWKT", apperror.KindInvalidFunctionArgument, "malformed POLYGON: %q", s)
		}
		ring, ok := innerParens(body, "")
		if !ok {
			ring = body
		}
		pts, err := parseCoordPairs(ring)
		if err != nil {
			return nil, err
		}
		return polygon{ring: pts}, nil
	default:
		return nil, apperror.Newf("functions.parseWKT", apperror.KindInvalidFunctionArgument, "unrecognized WKT geometry: %q", s)
	}
}

func parseCoordList(s, keyword string) ([]point, error) {
	body, ok := innerParens(s, keyword)
	if !ok {
		return nil, apperror.Newf("functions.parseCoordList", apperror.KindInvalidFunctionArgument, "malformed %s: %q", keyword, s)
	}
	return parseCoordPairs(body)
}

// innerParens returns the text between the first matching outermost
// parenthesis pair after keyword (or after any leading whitespace if
// keyword is empty).
func innerParens(s, keyword string) (string, bool) {
	rest := strings.TrimSpace(s)
	if keyword != "" {
		if len(rest) < len(keyword) || !strings.EqualFold(rest[:len(keyword)], keyword) {
			return "", false
		}
		rest = strings.TrimSpace(rest[len(keyword):])
	}
	if len(rest) == 0 || rest[0] != '(' {
		return "", false
	}
	depth := 0
	for i, r := range rest {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return rest[1:i], true
			}
		}
	}
	return "", false
}

func parseCoordPairs(body string) ([]point, error) {
	pairs := strings.Split(body, ",")
	out := make([]point, 0, len(pairs))
	for _, pair := range pairs {
		fields := strings.Fields(strings.TrimSpace(pair))
		if len(fields) < 2 {
			return nil, apperror.Newf("functions.parseCoordPairs", apperror.KindInvalidFunctionArgument, "malformed coordinate pair: %q", pair)
		}
		x, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return nil, apperror.New("functions.parseCoordPairs", apperror.KindInvalidFunctionArgument, err)
		}
		y, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return nil, apperror.New("functions.parseCoordPairs", apperror.KindInvalidFunctionArgument, err)
		}
		out = append(out, point{x: x, y: y})
	}
	return out, nil
}

// haversineMeters is the great-circle distance between two
// longitude/latitude points, matching ST_DISTANCE's GEOGRAPHY
// (spherical, not planar) semantics.
func haversineMeters(a, b point) float64 {
	lat1, lat2 := degToRad(a.y), degToRad(b.y)
	dLat := degToRad(b.y - a.y)
	dLon := degToRad(b.x - a.x)
	sinLat := math.Sin(dLat / 2)
	sinLon := math.Sin(dLon / 2)
	h := sinLat*sinLat + math.Cos(lat1)*math.Cos(lat2)*sinLon*sinLon
	return 2 * earthRadiusMeters * math.Asin(math.Sqrt(h))
}

func degToRad(d float64) float64 { return d * math.Pi / 180 }

// planarAreaMeters approximates a polygon's geodesic area via an
// equirectangular projection centered on the ring's mean latitude
// (scaling longitude degrees by cos(meanLat)) followed by the shoelace
// formula — a standard small-area approximation, not a true spherical
// excess computation; good to within a fraction of a percent for
// rings spanning at most a few hundred kilometers.
func planarAreaMeters(ring []point) float64 {
	if len(ring) < 3 {
		return 0
	}
	var meanLat float64
	for _, p := range ring {
		meanLat += p.y
	}
	meanLat /= float64(len(ring))
	metersPerDegLat := earthRadiusMeters * math.Pi / 180
	metersPerDegLon := metersPerDegLat * math.Cos(degToRad(meanLat))

	var sum float64
	n := len(ring)
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		xi, yi := ring[i].x*metersPerDegLon, ring[i].y*metersPerDegLat
		xj, yj := ring[j].x*metersPerDegLon, ring[j].y*metersPerDegLat
		sum += xi*yj - xj*yi
	}
	return math.Abs(sum) / 2
}

// circlePolygon approximates ST_BUFFER(point, radiusMeters) as a
// regular n-gon around center, converting the radius from meters to
// degrees via the same equirectangular scale planarAreaMeters uses.
func circlePolygon(center point, radiusMeters float64, segments int) polygon {
	metersPerDegLat := earthRadiusMeters * math.Pi / 180
	metersPerDegLon := metersPerDegLat * math.Cos(degToRad(center.y))
	radiusLat := radiusMeters / metersPerDegLat
	radiusLon := radiusMeters / metersPerDegLon

	ring := make([]point, 0, segments+1)
	for i := 0; i <= segments; i++ {
		theta := 2 * math.Pi * float64(i) / float64(segments)
		ring = append(ring, point{
			x: center.x + radiusLon*math.Cos(theta),
			y: center.y + radiusLat*math.Sin(theta),
		})
	}
	return polygon{ring: ring}
}
