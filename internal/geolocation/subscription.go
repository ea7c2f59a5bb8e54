package geolocation

import (
	"log/slog"
	"runtime"
	"sync"

	"github.com/couchcryptid/geolocation-service/internal/bridge"
	"github.com/couchcryptid/geolocation-service/internal/observability"
)

// Task is a cancellable background activity.
type Task interface {
	IsActive() bool
	Cancel()
}

var _ Task = (*WatchSubscription)(nil)

// Cancellation reasons, as recorded in metrics.
const (
	reasonExplicit = "explicit"
	reasonContext  = "context"
	reasonReleased = "released"
)

// WatchSubscription is an active or cancelled watch. It is cancelled by
// Cancel, Close, the context given to StartWatchContext, or when it becomes
// unreachable while still active. Whichever comes first clears the host
// watch; the rest are no-ops.
type WatchSubscription struct {
	w       *watch
	cleanup runtime.Cleanup
}

func newSubscription(w *watch) *WatchSubscription {
	sub := &WatchSubscription{w: w}
	sub.cleanup = runtime.AddCleanup(sub, func(w *watch) { w.cancel(reasonReleased) }, w)
	return sub
}

// ID returns the host watch id.
func (s *WatchSubscription) ID() WatchID { return s.w.id }

// IsActive reports whether the watch has not been cancelled.
func (s *WatchSubscription) IsActive() bool {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	return s.w.active
}

// Cancel clears the host watch. Only the first call has an effect.
func (s *WatchSubscription) Cancel() {
	s.cleanup.Stop()
	s.w.cancel(reasonExplicit)
}

// Close cancels the subscription. It always returns nil.
func (s *WatchSubscription) Close() error {
	s.Cancel()
	return nil
}

// watch is the state shared by every cancellation path. It must not refer
// back to its WatchSubscription, or the cleanup could never run.
type watch struct {
	mu     sync.Mutex
	host   Geolocation
	id     WatchID
	active bool
	handle *bridge.Handle
	stop   func() bool

	logger  *slog.Logger
	metrics *observability.Metrics
}

// bindStop records the function that detaches the context callback.
func (w *watch) bindStop(stop func() bool) {
	w.mu.Lock()
	if w.active {
		w.stop = stop
		w.mu.Unlock()
		return
	}
	w.mu.Unlock()
	stop()
}

func (w *watch) cancel(reason string) {
	w.mu.Lock()
	if !w.active {
		w.mu.Unlock()
		return
	}
	w.active = false
	stop := w.stop
	w.stop = nil
	w.mu.Unlock()

	if stop != nil {
		stop()
	}
	w.host.ClearWatch(w.id)
	w.handle.Release()

	w.metrics.ActiveWatches.Dec()
	w.metrics.WatchCancellations.WithLabelValues(reason).Inc()
	w.logger.Debug("watch cancelled", "watch_id", w.id, "reason", reason)
}
