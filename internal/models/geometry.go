package models

import (
	"encoding/json"
	"fmt"
)

// GeometryType names the shape of a geofence region
type GeometryType string

const (
	GeometryCircle  GeometryType = "Circle"
	GeometryPolygon GeometryType = "Polygon"
)

// Position is a coordinate pair in GeoJSON order: [longitude, latitude]
type Position [2]float64

// Lon returns the longitude component
func (p Position) Lon() float64 { return p[0] }

// Lat returns the latitude component
func (p Position) Lat() float64 { return p[1] }

// Shape is one of Circle, Polygon, UnknownShape or MalformedShape.
type Shape interface {
	Kind() GeometryType
	isShape()
}

// Circle is a region of RadiusMeters around Center
type Circle struct {
	Center       Position
	RadiusMeters float64
}

// Polygon is a region bounded by Rings[0]. Further rings (holes) are kept
// but never evaluated.
type Polygon struct {
	Rings [][]Position
}

// UnknownShape preserves a stored geometry whose type is not recognised.
// It never contains any point.
type UnknownShape struct {
	Type string
}

// MalformedShape marks a stored geometry that could not be decoded. It keeps
// the row listable; containment checks report it as an error.
type MalformedShape struct {
	Type   string
	Reason string
}

func (Circle) Kind() GeometryType           { return GeometryCircle }
func (Polygon) Kind() GeometryType          { return GeometryPolygon }
func (u UnknownShape) Kind() GeometryType   { return GeometryType(u.Type) }
func (m MalformedShape) Kind() GeometryType { return GeometryType(m.Type) }

func (Circle) isShape()         {}
func (Polygon) isShape()        {}
func (UnknownShape) isShape()   {}
func (MalformedShape) isShape() {}

// OuterRing returns the first ring of the polygon, or nil when there is none
func (p Polygon) OuterRing() []Position {
	if len(p.Rings) == 0 {
		return nil
	}
	return p.Rings[0]
}

// Geometry wraps a Shape and encodes it in a GeoJSON-like form:
//
//	{"type":"Circle","center":[lon,lat],"radius":100}
//	{"type":"Polygon","coordinates":[[[lon,lat],...]]}
type Geometry struct {
	Shape Shape
}

// CircleGeometry builds a circle geometry
func CircleGeometry(lat, lon, radiusMeters float64) Geometry {
	return Geometry{Shape: Circle{Center: Position{lon, lat}, RadiusMeters: radiusMeters}}
}

// PolygonGeometry builds a polygon geometry from rings of [lon, lat] positions
func PolygonGeometry(rings ...[]Position) Geometry {
	return Geometry{Shape: Polygon{Rings: rings}}
}

// Kind returns the geometry type, or "" when no shape is set
func (g Geometry) Kind() GeometryType {
	if g.Shape == nil {
		return ""
	}
	return g.Shape.Kind()
}

type geometryJSON struct {
	Type        string       `json:"type"`
	Center      *Position    `json:"center,omitempty"`
	Radius      float64      `json:"radius,omitempty"`
	Coordinates [][]Position `json:"coordinates,omitempty"`
}

type rawGeometryJSON struct {
	Type        string          `json:"type"`
	Center      *Position       `json:"center"`
	Radius      float64         `json:"radius"`
	Coordinates json.RawMessage `json:"coordinates"`
}

// MarshalJSON implements json.Marshaler
func (g Geometry) MarshalJSON() ([]byte, error) {
	switch s := g.Shape.(type) {
	case Circle:
		center := s.Center
		return json.Marshal(geometryJSON{Type: string(GeometryCircle), Center: &center, Radius: s.RadiusMeters})
	case Polygon:
		return json.Marshal(geometryJSON{Type: string(GeometryPolygon), Coordinates: s.Rings})
	case UnknownShape:
		return json.Marshal(geometryJSON{Type: s.Type})
	case MalformedShape:
		return json.Marshal(geometryJSON{Type: s.Type})
	case nil:
		return []byte("null"), nil
	default:
		return nil, fmt.Errorf("unsupported shape %T", s)
	}
}

// UnmarshalJSON implements json.Unmarshaler. Unrecognised types decode to
// UnknownShape instead of failing so one bad stored row cannot break a listing.
func (g *Geometry) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		g.Shape = nil
		return nil
	}

	var raw rawGeometryJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to decode geometry: %w", err)
	}

	switch GeometryType(raw.Type) {
	case GeometryCircle:
		c := Circle{RadiusMeters: raw.Radius}
		if raw.Center != nil {
			c.Center = *raw.Center
		} else if hasCoordinates(raw.Coordinates) {
			center, err := circleCenter(raw.Coordinates)
			if err != nil {
				return err
			}
			c.Center = center
		}
		g.Shape = c
	case GeometryPolygon:
		var rings [][]Position
		if hasCoordinates(raw.Coordinates) {
			if err := json.Unmarshal(raw.Coordinates, &rings); err != nil {
				return fmt.Errorf("failed to decode polygon coordinates: %w", err)
			}
		}
		g.Shape = Polygon{Rings: rings}
	default:
		g.Shape = UnknownShape{Type: raw.Type}
	}
	return nil
}

// MalformedGeometry builds the placeholder geometry for a stored value that
// failed to decode. The type is kept when the payload names one.
func MalformedGeometry(data []byte, err error) Geometry {
	var head struct {
		Type string `json:"type"`
	}
	_ = json.Unmarshal(data, &head)
	return Geometry{Shape: MalformedShape{Type: head.Type, Reason: err.Error()}}
}

func hasCoordinates(raw json.RawMessage) bool {
	return len(raw) > 0 && string(raw) != "null"
}

// circleCenter accepts a flat [lon,lat] pair or the nested [[[lon,lat]]] form
func circleCenter(raw json.RawMessage) (Position, error) {
	var flat Position
	if err := json.Unmarshal(raw, &flat); err == nil {
		return flat, nil
	}
	var nested [][]Position
	if err := json.Unmarshal(raw, &nested); err != nil {
		return Position{}, fmt.Errorf("failed to decode circle center: %w", err)
	}
	if len(nested) == 0 || len(nested[0]) == 0 {
		return Position{}, fmt.Errorf("failed to decode circle center: empty coordinates")
	}
	return nested[0][0], nil
}
