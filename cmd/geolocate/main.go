//go:build js && wasm

// Command geolocate is a WebAssembly demo that logs browser positions to the
// console. It exposes geolocateStop() to cancel the watch.
package main

import (
	"log/slog"
	"os"
	"syscall/js"

	"github.com/couchcryptid/geolocation-service/internal/adapter/browser"
	"github.com/couchcryptid/geolocation-service/internal/domain"
	"github.com/couchcryptid/geolocation-service/internal/geolocation"
	"github.com/couchcryptid/geolocation-service/internal/observability"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	svc := geolocation.New(browser.Locate, logger, observability.NewMetrics())

	onPosition := func(pos domain.Position) { logger.Info("position", "position", pos) }
	onError := func(perr domain.PositionError) {
		logger.Warn("position error", "code", perr.Code.String(), "error", perr.Message)
	}

	svc.RequestPosition(onPosition, onError, nil)

	opts := domain.DefaultPositionOptions()
	opts.EnableHighAccuracy = true
	sub := svc.StartWatch(onPosition, onError, &opts)
	if sub == nil {
		logger.Error("position watch unavailable")
		return
	}

	done := make(chan struct{})
	stop := js.FuncOf(func(js.Value, []js.Value) any {
		if sub.IsActive() {
			sub.Cancel()
			close(done)
		}
		return nil
	})
	js.Global().Set("geolocateStop", stop)

	<-done
	stop.Release()
	logger.Info("watch stopped", "watch_id", sub.ID())
}
