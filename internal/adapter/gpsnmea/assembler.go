package gpsnmea

import (
	"time"

	"github.com/adrianmo/go-nmea"
	"github.com/jonboulle/clockwork"
	"github.com/martinlindhe/unit"

	"github.com/couchcryptid/geolocation-service/internal/domain"
)

const metersPerSecondPerKnot = 1852.0 / 3600.0

// assembler folds GGA and GSA sentences into the fix completed by the next
// valid RMC sentence.
type assembler struct {
	clock clockwork.Clock
	uere  float64 // meters per unit of dilution of precision

	altitude *float64
	hdop     float64
	vdop     float64
}

// feed consumes one sentence and reports a Position when it completes a fix.
func (a *assembler) feed(s nmea.Sentence) (domain.Position, bool) {
	switch m := s.(type) {
	case nmea.GGA:
		if m.FixQuality == nmea.Invalid {
			a.altitude = nil
			a.hdop = 0
			return domain.Position{}, false
		}
		alt := m.Altitude
		a.altitude = &alt
		a.hdop = m.HDOP
	case nmea.GSA:
		a.hdop = m.HDOP
		a.vdop = m.VDOP
	case nmea.RMC:
		if m.Validity != nmea.ValidRMC {
			return domain.Position{}, false
		}
		return a.position(m), true
	}
	return domain.Position{}, false
}

func (a *assembler) position(m nmea.RMC) domain.Position {
	lat, lon := m.Latitude, m.Longitude
	c := &domain.Coordinates{Latitude: &lat, Longitude: &lon}

	if a.altitude != nil {
		alt := unit.Length(*a.altitude) * unit.Meter
		c.Altitude = &alt
	}
	if a.hdop > 0 {
		acc := unit.Length(a.hdop*a.uere) * unit.Meter
		c.Accuracy = &acc
	}
	if a.vdop > 0 {
		acc := unit.Length(a.vdop*a.uere) * unit.Meter
		c.AltitudeAccuracy = &acc
	}

	speed := unit.Speed(m.Speed*metersPerSecondPerKnot) * unit.MetersPerSecond
	c.Speed = &speed
	// Course over ground is meaningless while stationary.
	if m.Speed > 0 {
		heading := unit.Angle(m.Course) * unit.Degree
		c.Heading = &heading
	}

	ts := a.timestamp(m)
	return domain.Position{Coords: c, Timestamp: &ts}
}

// timestamp combines the RMC date and time, falling back to the clock when
// the receiver has not reported them yet.
func (a *assembler) timestamp(m nmea.RMC) time.Time {
	if !m.Date.Valid || !m.Time.Valid {
		return a.clock.Now().UTC().Truncate(time.Millisecond)
	}
	year := 2000 + m.Date.YY
	if m.Date.YY >= 70 {
		year = 1900 + m.Date.YY
	}
	return time.Date(year, time.Month(m.Date.MM), m.Date.DD,
		m.Time.Hour, m.Time.Minute, m.Time.Second, m.Time.Millisecond*int(time.Millisecond), time.UTC)
}

// accuracy returns the horizontal accuracy of pos in meters, and false when
// the fix carries none.
func accuracy(pos domain.Position) (float64, bool) {
	if pos.Coords == nil || pos.Coords.Accuracy == nil {
		return 0, false
	}
	return pos.Coords.Accuracy.Meters(), true
}
