package domain

import (
	"fmt"
	"math"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/martinlindhe/unit"
)

// Host payload member names.
const (
	keyCoords           = "coords"
	keyTimestamp        = "timestamp"
	keyLatitude         = "latitude"
	keyLongitude        = "longitude"
	keyAltitude         = "altitude"
	keyAccuracy         = "accuracy"
	keyAltitudeAccuracy = "altitudeAccuracy"
	keyHeading          = "heading"
	keySpeed            = "speed"
	keyCode             = "code"
	keyMessage          = "message"
)

// CoordinateKeys lists the coords members a host may report.
var CoordinateKeys = []string{
	keyLatitude, keyLongitude, keyAltitude, keyAccuracy, keyAltitudeAccuracy, keyHeading, keySpeed,
}

// IsObject reports whether raw has the shape of a host payload object.
func IsObject(raw any) bool {
	_, ok := raw.(map[string]any)
	return ok
}

// DecodePosition decodes a host success payload. It never fails: any member
// that is missing or has the wrong type is left nil.
func DecodePosition(raw any) Position {
	obj, ok := raw.(map[string]any)
	if !ok {
		return Position{}
	}

	var pos Position
	if c, ok := obj[keyCoords].(map[string]any); ok {
		pos.Coords = decodeCoordinates(c)
	}
	if ms := field[int64](obj, keyTimestamp); ms != nil {
		ts := time.UnixMilli(*ms).UTC()
		pos.Timestamp = &ts
	}
	return pos
}

func decodeCoordinates(obj map[string]any) *Coordinates {
	c := &Coordinates{
		Latitude:  field[float64](obj, keyLatitude),
		Longitude: field[float64](obj, keyLongitude),
	}
	if v := field[float64](obj, keyAltitude); v != nil {
		c.Altitude = length(*v)
	}
	if v := field[float64](obj, keyAccuracy); v != nil {
		c.Accuracy = length(*v)
	}
	if v := field[float64](obj, keyAltitudeAccuracy); v != nil {
		c.AltitudeAccuracy = length(*v)
	}
	if v := field[float64](obj, keyHeading); v != nil {
		a := unit.Angle(*v) * unit.Degree
		c.Heading = &a
	}
	if v := field[float64](obj, keySpeed); v != nil {
		s := unit.Speed(*v) * unit.MetersPerSecond
		c.Speed = &s
	}
	return c
}

// field decodes obj[key] into a T, returning nil when the member is absent,
// null or not convertible without weak typing.
func field[T any](obj map[string]any, key string) *T {
	v, ok := obj[key]
	if !ok || v == nil {
		return nil
	}
	var out T
	if err := mapstructure.Decode(v, &out); err != nil {
		return nil
	}
	return &out
}

func length(m float64) *unit.Length {
	l := unit.Length(m) * unit.Meter
	return &l
}

type rawPositionError struct {
	Code    float64 `mapstructure:"code"`
	Message string  `mapstructure:"message"`
}

// DecodeError decodes a host failure payload. A payload that cannot be
// decoded, including one whose code is not exactly 1, 2 or 3, yields a
// FailedToDeserialize error describing the problem instead.
func DecodeError(raw any) PositionError {
	if !IsObject(raw) {
		return PositionError{
			Code:    FailedToDeserialize,
			Message: fmt.Sprintf("position error payload is not an object: %T", raw),
		}
	}

	var r rawPositionError
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		ErrorUnset: true,
		Result:     &r,
	})
	if err != nil {
		return PositionError{Code: FailedToDeserialize, Message: fmt.Sprintf("build decoder: %v", err)}
	}
	if err := dec.Decode(raw); err != nil {
		return PositionError{Code: FailedToDeserialize, Message: fmt.Sprintf("decode position error: %v", err)}
	}
	// Hosts send numbers as float64; only whole values are codes.
	if math.Trunc(r.Code) != r.Code || !isHostCode(int(r.Code)) {
		return PositionError{
			Code:    FailedToDeserialize,
			Message: fmt.Sprintf("decode position error: unknown code %g: %s", r.Code, r.Message),
		}
	}

	return PositionError{Code: MapCode(uint16(r.Code)), Message: r.Message}
}

// EncodePosition builds the host success payload for pos. It is the inverse
// of DecodePosition and is used by hosts implemented in Go.
func EncodePosition(pos Position) map[string]any {
	obj := map[string]any{}
	if c := pos.Coords; c != nil {
		coords := map[string]any{}
		putFloat(coords, keyLatitude, c.Latitude)
		putFloat(coords, keyLongitude, c.Longitude)
		putFloat(coords, keyAltitude, meters(c.Altitude))
		putFloat(coords, keyAccuracy, meters(c.Accuracy))
		putFloat(coords, keyAltitudeAccuracy, meters(c.AltitudeAccuracy))
		if c.Heading != nil {
			coords[keyHeading] = c.Heading.Degrees()
		}
		if c.Speed != nil {
			coords[keySpeed] = c.Speed.MetersPerSecond()
		}
		obj[keyCoords] = coords
	}
	if pos.Timestamp != nil {
		obj[keyTimestamp] = pos.Timestamp.UnixMilli()
	}
	return obj
}

// EncodeError builds the host failure payload for a host-reported code.
func EncodeError(code PositionErrorCode, message string) map[string]any {
	return map[string]any{
		keyCode:    int(code),
		keyMessage: message,
	}
}

func putFloat(obj map[string]any, key string, v *float64) {
	if v != nil {
		obj[key] = *v
	}
}
