package spatial

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHaversineDistance(t *testing.T) {
	t.Run("identical points", func(t *testing.T) {
		assert.Equal(t, 0.0, HaversineDistance(19.4326, -99.1332, 19.4326, -99.1332))
	})

	t.Run("symmetric", func(t *testing.T) {
		d1 := HaversineDistance(19.4326, -99.1332, 40.4168, -3.7038)
		d2 := HaversineDistance(40.4168, -3.7038, 19.4326, -99.1332)
		assert.InDelta(t, d1, d2, 1e-6)
	})

	t.Run("one degree of latitude", func(t *testing.T) {
		// 6371000 * pi / 180
		assert.InDelta(t, 111194.93, HaversineDistance(0, 0, 1, 0), 0.01)
	})

	t.Run("monotonic in separation", func(t *testing.T) {
		near := HaversineDistance(19.4326, -99.1332, 19.4336, -99.1332)
		far := HaversineDistance(19.4326, -99.1332, 19.4346, -99.1332)
		assert.Less(t, near, far)
	})
}

func TestDestinationPointRoundTrip(t *testing.T) {
	lat, lon := DestinationPoint(19.4326, -99.1332, 90, 200)
	assert.InDelta(t, 200, HaversineDistance(19.4326, -99.1332, lat, lon), 0.01)
}

func TestPointInCircle(t *testing.T) {
	assert.True(t, PointInCircle(19.4326, -99.1332, 19.4326, -99.1332, 100))

	lat, lon := DestinationPoint(19.4326, -99.1332, 0, 200)
	assert.False(t, PointInCircle(lat, lon, 19.4326, -99.1332, 100))
}

func TestPointInPolygon(t *testing.T) {
	square := []Point{
		{Lat: 19.43, Lon: -99.14},
		{Lat: 19.44, Lon: -99.14},
		{Lat: 19.44, Lon: -99.13},
		{Lat: 19.43, Lon: -99.13},
		{Lat: 19.43, Lon: -99.14},
	}

	tests := []struct {
		name  string
		point Point
		want  bool
	}{
		{"center", Point{Lat: 19.435, Lon: -99.135}, true},
		{"far outside", Point{Lat: 19.45, Lon: -99.10}, false},
		{"west of square", Point{Lat: 19.435, Lon: -99.15}, false},
		{"north of square", Point{Lat: 19.445, Lon: -99.135}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PointInPolygon(tt.point, square))
		})
	}
}

func TestPointInPolygonConcave(t *testing.T) {
	// U shape opening north; the notch is outside
	u := []Point{
		{Lat: 0, Lon: 0},
		{Lat: 0, Lon: 3},
		{Lat: 3, Lon: 3},
		{Lat: 3, Lon: 2},
		{Lat: 1, Lon: 2},
		{Lat: 1, Lon: 1},
		{Lat: 3, Lon: 1},
		{Lat: 3, Lon: 0},
	}

	assert.True(t, PointInPolygon(Point{Lat: 2, Lon: 0.5}, u))
	assert.True(t, PointInPolygon(Point{Lat: 0.5, Lon: 1.5}, u))
	assert.False(t, PointInPolygon(Point{Lat: 2, Lon: 1.5}, u))
}

func TestPointInPolygonDegenerate(t *testing.T) {
	assert.False(t, PointInPolygon(Point{Lat: 0, Lon: 0}, nil))
	assert.False(t, PointInPolygon(Point{Lat: 0, Lon: 0}, []Point{{0, 0}, {1, 1}}))
}

func TestValidCoordinate(t *testing.T) {
	assert.True(t, ValidCoordinate(19.4, -99.1))
	assert.True(t, ValidCoordinate(-90, 180))
	assert.False(t, ValidCoordinate(91, 0))
	assert.False(t, ValidCoordinate(0, -181))
}
