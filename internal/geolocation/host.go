// Package geolocation issues one-shot position requests and watch
// subscriptions against a host geolocation capability.
package geolocation

import (
	"github.com/couchcryptid/geolocation-service/internal/bridge"
	"github.com/couchcryptid/geolocation-service/internal/domain"
)

// DefaultCapability names the host capability in NoBrowserSupport messages.
const DefaultCapability = "window.navigator.geolocation"

// WatchID is the opaque identifier a host assigns to a watch.
type WatchID int64

// Geolocation is the host capability. Implementations invoke the handle's
// Success and Error callbacks asynchronously. A handle without an error
// callback has a nil Error().
type Geolocation interface {
	// GetCurrentPosition invokes exactly one of the handle's callbacks at
	// most once, or never.
	GetCurrentPosition(h *bridge.Handle, opts domain.PositionOptions)
	// WatchPosition invokes the handle's callbacks zero or more times until
	// the returned id is cleared.
	WatchPosition(h *bridge.Handle, opts domain.PositionOptions) (WatchID, error)
	// ClearWatch stops a watch. Clearing an unknown id is a no-op.
	ClearWatch(id WatchID)
}

// Locator resolves the host capability. It reports false when the capability
// is absent.
type Locator func() (Geolocation, bool)

// Static returns a Locator that always resolves to g.
func Static(g Geolocation) Locator {
	return func() (Geolocation, bool) {
		return g, g != nil
	}
}

// Unavailable is a Locator for environments without a geolocation capability.
func Unavailable() (Geolocation, bool) {
	return nil, false
}
