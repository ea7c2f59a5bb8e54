package domain

import (
	"math"
	"time"
)

// NoTimeout is the TimeoutMS value meaning "wait indefinitely".
const NoTimeout uint32 = math.MaxUint32

// PositionOptions configures a single request or watch. Construct it with
// DefaultPositionOptions; the zero value has a zero timeout, which asks the
// host to fail immediately when no cached fix is acceptable.
type PositionOptions struct {
	EnableHighAccuracy bool   `json:"enableHighAccuracy"`
	TimeoutMS          uint32 `json:"timeout"`
	MaximumAge         uint32 `json:"maximumAge"` // milliseconds; 0 demands a fresh fix
}

// DefaultPositionOptions returns low accuracy, no timeout and no cached fixes.
func DefaultPositionOptions() PositionOptions {
	return PositionOptions{
		EnableHighAccuracy: false,
		TimeoutMS:          NoTimeout,
		MaximumAge:         0,
	}
}

// EffectiveOptions returns *opts, or the defaults when opts is nil.
func EffectiveOptions(opts *PositionOptions) PositionOptions {
	if opts == nil {
		return DefaultPositionOptions()
	}
	return *opts
}

// Host encodes the options with the member names fixed by the host contract.
func (o PositionOptions) Host() map[string]any {
	return map[string]any{
		"enableHighAccuracy": o.EnableHighAccuracy,
		"timeout":            o.TimeoutMS,
		"maximumAge":         o.MaximumAge,
	}
}

// Timeout returns the timeout as a duration. It reports false for NoTimeout.
func (o PositionOptions) Timeout() (time.Duration, bool) {
	if o.TimeoutMS == NoTimeout {
		return 0, false
	}
	return time.Duration(o.TimeoutMS) * time.Millisecond, true
}

// MaxAge returns MaximumAge as a duration.
func (o PositionOptions) MaxAge() time.Duration {
	return time.Duration(o.MaximumAge) * time.Millisecond
}
