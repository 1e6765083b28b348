package geofence

import (
	"errors"
	"fmt"
	"math"

	"github.com/jengzang/tracking-backend-go/internal/models"
	"github.com/jengzang/tracking-backend-go/internal/spatial"
)

// ErrMalformedGeometry is returned when a stored geometry cannot be evaluated
var ErrMalformedGeometry = errors.New("malformed geometry")

// Contains reports whether (lat, lon) lies inside the geometry. Circles use
// the great-circle distance to the center; polygons use ray casting over the
// outer ring only. Unknown shapes contain nothing; shapes that failed to
// decode are an error.
func Contains(g models.Geometry, lat, lon float64) (bool, error) {
	switch s := g.Shape.(type) {
	case models.Circle:
		if math.IsNaN(s.RadiusMeters) || math.IsInf(s.RadiusMeters, 0) || s.RadiusMeters < 0 {
			return false, fmt.Errorf("%w: invalid radius %v", ErrMalformedGeometry, s.RadiusMeters)
		}
		if !spatial.ValidCoordinate(s.Center.Lat(), s.Center.Lon()) {
			return false, fmt.Errorf("%w: invalid center %v", ErrMalformedGeometry, s.Center)
		}
		return spatial.PointInCircle(lat, lon, s.Center.Lat(), s.Center.Lon(), s.RadiusMeters), nil

	case models.Polygon:
		ring := s.OuterRing()
		if len(ring) < 3 {
			return false, fmt.Errorf("%w: outer ring has %d positions", ErrMalformedGeometry, len(ring))
		}
		return spatial.PointInPolygon(spatial.Point{Lat: lat, Lon: lon}, toPoints(ring)), nil

	case models.MalformedShape:
		return false, fmt.Errorf("%w: %s", ErrMalformedGeometry, s.Reason)

	default:
		return false, nil
	}
}

// Validate checks a geometry submitted for storage. It is stricter than
// Contains: polygons must be closed rings of at least four positions.
func Validate(g models.Geometry) error {
	switch s := g.Shape.(type) {
	case models.Circle:
		if !spatial.ValidCoordinate(s.Center.Lat(), s.Center.Lon()) {
			return fmt.Errorf("%w: circle center out of range", ErrMalformedGeometry)
		}
		if math.IsNaN(s.RadiusMeters) || math.IsInf(s.RadiusMeters, 0) || s.RadiusMeters <= 0 {
			return fmt.Errorf("%w: circle radius must be positive", ErrMalformedGeometry)
		}
		return nil

	case models.Polygon:
		ring := s.OuterRing()
		if len(ring) < 4 {
			return fmt.Errorf("%w: polygon outer ring needs at least 4 positions", ErrMalformedGeometry)
		}
		for _, p := range ring {
			if !spatial.ValidCoordinate(p.Lat(), p.Lon()) {
				return fmt.Errorf("%w: polygon position %v out of range", ErrMalformedGeometry, p)
			}
		}
		if ring[0] != ring[len(ring)-1] {
			return fmt.Errorf("%w: polygon outer ring must be closed", ErrMalformedGeometry)
		}
		return nil

	case nil:
		return fmt.Errorf("%w: geometry is required", ErrMalformedGeometry)

	default:
		return fmt.Errorf("%w: unsupported geometry type %q", ErrMalformedGeometry, g.Kind())
	}
}

func toPoints(ring []models.Position) []spatial.Point {
	points := make([]spatial.Point, len(ring))
	for i, p := range ring {
		points[i] = spatial.Point{Lat: p.Lat(), Lon: p.Lon()}
	}
	return points
}
