package bridge

import (
	"fmt"
	"log/slog"

	"github.com/couchcryptid/geolocation-service/internal/domain"
	"github.com/couchcryptid/geolocation-service/internal/observability"
)

// Bridge builds host callbacks that decode raw payloads and dispatch them to
// typed consumer callbacks.
type Bridge struct {
	logger  *slog.Logger
	metrics *observability.Metrics
}

// New creates a Bridge.
func New(logger *slog.Logger, metrics *observability.Metrics) *Bridge {
	return &Bridge{logger: logger, metrics: metrics}
}

// Success returns a host callback that decodes a success payload and emits
// the Position to cb. A payload that is not an object at all goes to
// onError as FailedToDeserialize.
func (b *Bridge) Success(cb domain.Callback[domain.Position], onError domain.Callback[domain.PositionError]) HostCallback {
	return func(raw any) {
		defer b.recoverPanic("success")

		if !domain.IsObject(raw) {
			b.metrics.DecodeFailures.WithLabelValues("success").Inc()
			perr := domain.PositionError{
				Code:    domain.FailedToDeserialize,
				Message: fmt.Sprintf("position payload is not an object: %T", raw),
			}
			b.logger.Warn("undecodable position payload", "error", perr.Message, "error_callback", onError != nil)
			onError.Emit(perr)
			return
		}

		b.metrics.CallbacksDispatched.WithLabelValues("success").Inc()
		cb.Emit(domain.DecodePosition(raw))
	}
}

// Error returns a host callback that decodes a failure payload and emits the
// PositionError to cb.
func (b *Bridge) Error(cb domain.Callback[domain.PositionError]) HostCallback {
	return func(raw any) {
		defer b.recoverPanic("error")

		perr := domain.DecodeError(raw)
		if perr.Code == domain.FailedToDeserialize {
			b.metrics.DecodeFailures.WithLabelValues("error").Inc()
			b.logger.Warn("undecodable position error payload", "error", perr.Message)
		}

		b.metrics.CallbacksDispatched.WithLabelValues("error").Inc()
		cb.Emit(perr)
	}
}

// recoverPanic keeps a panicking consumer callback from unwinding into the host.
func (b *Bridge) recoverPanic(kind string) {
	if r := recover(); r != nil {
		b.metrics.CallbackPanics.Inc()
		b.logger.Error("recovered panic in position callback", "kind", kind, "panic", fmt.Sprint(r))
	}
}
