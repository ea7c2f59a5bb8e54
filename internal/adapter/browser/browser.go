//go:build js && wasm

// Package browser implements the geolocation host capability on
// navigator.geolocation when compiled to WebAssembly.
package browser

import (
	"fmt"
	"syscall/js"

	"github.com/couchcryptid/geolocation-service/internal/bridge"
	"github.com/couchcryptid/geolocation-service/internal/domain"
	"github.com/couchcryptid/geolocation-service/internal/geolocation"
)

// Geolocation wraps a navigator.geolocation object.
type Geolocation struct {
	geo js.Value
}

var _ geolocation.Geolocation = (*Geolocation)(nil)

// Locate resolves window.navigator.geolocation.
func Locate() (geolocation.Geolocation, bool) {
	nav := js.Global().Get("navigator")
	if !isObject(nav) {
		return nil, false
	}
	geo := nav.Get("geolocation")
	if !isObject(geo) {
		return nil, false
	}
	return &Geolocation{geo: geo}, true
}

func (g *Geolocation) GetCurrentPosition(h *bridge.Handle, opts domain.PositionOptions) {
	success, failure := wrap(h)
	g.geo.Call("getCurrentPosition", success, failure, js.ValueOf(opts.Host()))
}

// WatchPosition reports an error when the browser throws or returns anything
// other than a numeric watch id.
func (g *Geolocation) WatchPosition(h *bridge.Handle, opts domain.PositionOptions) (id geolocation.WatchID, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("navigator.geolocation.watchPosition: %v", r)
		}
	}()

	success, failure := wrap(h)
	v := g.geo.Call("watchPosition", success, failure, js.ValueOf(opts.Host()))
	if v.Type() != js.TypeNumber {
		return 0, fmt.Errorf("navigator.geolocation.watchPosition returned %s", v.Type())
	}
	return geolocation.WatchID(v.Int()), nil
}

func (g *Geolocation) ClearWatch(id geolocation.WatchID) {
	g.geo.Call("clearWatch", int(id))
}

// wrap exposes the handle's callbacks as JS functions. The functions are
// released together with the handle.
func wrap(h *bridge.Handle) (js.Value, js.Value) {
	success := js.FuncOf(func(_ js.Value, args []js.Value) any {
		h.Success()(positionPayload(firstArg(args)))
		return nil
	})
	h.OnRelease(success.Release)

	failure := js.Undefined()
	if h.HasError() {
		cb := h.Error()
		fn := js.FuncOf(func(_ js.Value, args []js.Value) any {
			cb(errorPayload(firstArg(args)))
			return nil
		})
		h.OnRelease(fn.Release)
		failure = fn.Value
	}
	return success.Value, failure
}

// positionPayload copies a GeolocationPosition into the host payload shape.
// Non-numeric members are left out.
func positionPayload(v js.Value) any {
	if !isObject(v) {
		return export(v)
	}
	out := map[string]any{}
	if c := v.Get("coords"); isObject(c) {
		coords := map[string]any{}
		for _, key := range domain.CoordinateKeys {
			if m := c.Get(key); m.Type() == js.TypeNumber {
				coords[key] = m.Float()
			}
		}
		out["coords"] = coords
	}
	if ts := v.Get("timestamp"); ts.Type() == js.TypeNumber {
		out["timestamp"] = int64(ts.Float())
	}
	return out
}

// errorPayload copies a GeolocationPositionError. Members keep their JS
// types so the decoder can reject malformed errors.
func errorPayload(v js.Value) any {
	if !isObject(v) {
		return export(v)
	}
	out := map[string]any{}
	for _, key := range []string{"code", "message"} {
		if m := v.Get(key); !m.IsUndefined() {
			out[key] = export(m)
		}
	}
	return out
}

func export(v js.Value) any {
	switch v.Type() {
	case js.TypeNumber:
		return v.Float()
	case js.TypeString:
		return v.String()
	case js.TypeBoolean:
		return v.Bool()
	case js.TypeUndefined, js.TypeNull:
		return nil
	default:
		return v.Type().String()
	}
}

func firstArg(args []js.Value) js.Value {
	if len(args) == 0 {
		return js.Undefined()
	}
	return args[0]
}

func isObject(v js.Value) bool {
	return v.Type() == js.TypeObject
}
