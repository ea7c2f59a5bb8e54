package domain

import (
	"encoding/json"
	"time"

	geo "github.com/kellydunn/golang-geo"
	"github.com/martinlindhe/unit"
)

// Position is a decoded host fix. Both members are optional.
type Position struct {
	Coords    *Coordinates
	Timestamp *time.Time
}

// Coordinates holds the measurements of a single fix. A nil member means the
// host did not report it.
type Coordinates struct {
	Latitude         *float64 // degrees
	Longitude        *float64 // degrees
	Altitude         *unit.Length
	Accuracy         *unit.Length
	AltitudeAccuracy *unit.Length
	Heading          *unit.Angle
	Speed            *unit.Speed
}

// Point returns the fix as a geo.Point. It reports false unless both latitude
// and longitude are present.
func (c *Coordinates) Point() (*geo.Point, bool) {
	if c == nil || c.Latitude == nil || c.Longitude == nil {
		return nil, false
	}
	return geo.NewPoint(*c.Latitude, *c.Longitude), true
}

// Point returns the position's coordinates as a geo.Point.
func (p Position) Point() (*geo.Point, bool) {
	return p.Coords.Point()
}

// positionJSON is the flat serialized form used by sinks.
type positionJSON struct {
	Latitude         *float64   `json:"latitude,omitempty"`
	Longitude        *float64   `json:"longitude,omitempty"`
	Altitude         *float64   `json:"altitude_m,omitempty"`
	Accuracy         *float64   `json:"accuracy_m,omitempty"`
	AltitudeAccuracy *float64   `json:"altitude_accuracy_m,omitempty"`
	Heading          *float64   `json:"heading_deg,omitempty"`
	Speed            *float64   `json:"speed_mps,omitempty"`
	Timestamp        *time.Time `json:"timestamp,omitempty"`
}

// MarshalJSON flattens the position into SI units.
func (p Position) MarshalJSON() ([]byte, error) {
	out := positionJSON{Timestamp: p.Timestamp}
	if c := p.Coords; c != nil {
		out.Latitude = c.Latitude
		out.Longitude = c.Longitude
		out.Altitude = meters(c.Altitude)
		out.Accuracy = meters(c.Accuracy)
		out.AltitudeAccuracy = meters(c.AltitudeAccuracy)
		if c.Heading != nil {
			v := c.Heading.Degrees()
			out.Heading = &v
		}
		if c.Speed != nil {
			v := c.Speed.MetersPerSecond()
			out.Speed = &v
		}
	}
	return json.Marshal(out)
}

func meters(l *unit.Length) *float64 {
	if l == nil {
		return nil
	}
	v := l.Meters()
	return &v
}
