// Package gpsnmea implements the geolocation host capability on top of an
// NMEA 0183 receiver.
package gpsnmea

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/adrianmo/go-nmea"
	"github.com/jonboulle/clockwork"
	"go.uber.org/multierr"

	"github.com/couchcryptid/geolocation-service/internal/bridge"
	"github.com/couchcryptid/geolocation-service/internal/domain"
	"github.com/couchcryptid/geolocation-service/internal/geolocation"
)

// ErrClosed is returned by WatchPosition once the host has been closed.
var ErrClosed = errors.New("gpsnmea: host closed")

// ErrNotWatch is returned by WatchPosition for a one-shot handle.
var ErrNotWatch = errors.New("gpsnmea: handle is not a watch handle")

const (
	defaultUERE              = 5.0
	defaultHighAccuracyLimit = 10.0
)

// Option configures a Host.
type Option func(*Host)

// WithClock sets the clock used for fix ages, timeouts and missing timestamps.
func WithClock(c clockwork.Clock) Option {
	return func(h *Host) { h.clock = c }
}

// WithUERE sets the range error, in meters, multiplied by the dilution of
// precision to estimate accuracy.
func WithUERE(meters float64) Option {
	return func(h *Host) { h.uere = meters }
}

// WithHighAccuracyLimit sets the worst accuracy, in meters, delivered to
// requests and watches that enable high accuracy.
func WithHighAccuracyLimit(meters float64) Option {
	return func(h *Host) { h.highAccuracyLimit = meters }
}

type cachedFix struct {
	pos domain.Position
	at  time.Time
}

type request struct {
	handle *bridge.Handle
	opts   domain.PositionOptions
	timer  clockwork.Timer
}

type watcher struct {
	handle *bridge.Handle
	opts   domain.PositionOptions
}

// Host reads sentences from an NMEA source and answers position requests and
// watches with the fixes it assembles.
type Host struct {
	src               io.ReadCloser
	logger            *slog.Logger
	clock             clockwork.Clock
	uere              float64
	highAccuracyLimit float64

	cancelCtx               context.Context
	cancelFunc              func()
	activeBackgroundWorkers sync.WaitGroup

	mu       sync.Mutex
	asm      assembler
	last     *cachedFix
	nextID   geolocation.WatchID
	watchers map[geolocation.WatchID]*watcher
	pending  map[*request]struct{}
	err      error
	closed   bool
}

var _ geolocation.Geolocation = (*Host)(nil)

// NewHost starts reading src. The host owns src and closes it on Close.
func NewHost(src io.ReadCloser, logger *slog.Logger, opts ...Option) *Host {
	h := &Host{
		src:               src,
		logger:            logger,
		clock:             clockwork.NewRealClock(),
		uere:              defaultUERE,
		highAccuracyLimit: defaultHighAccuracyLimit,
		nextID:            1,
		watchers:          make(map[geolocation.WatchID]*watcher),
		pending:           make(map[*request]struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.asm = assembler{clock: h.clock, uere: h.uere}
	h.cancelCtx, h.cancelFunc = context.WithCancel(context.Background())

	h.activeBackgroundWorkers.Add(1)
	go h.run()
	return h
}

// Locator resolves to the host until it fails or is closed.
func (h *Host) Locator() geolocation.Locator {
	return func() (geolocation.Geolocation, bool) {
		h.mu.Lock()
		defer h.mu.Unlock()
		return h, h.err == nil
	}
}

// GetCurrentPosition answers from the last fix when it is no older than
// opts.MaximumAge, otherwise with the next acceptable fix or a timeout.
// No answer is delivered on the calling goroutine.
func (h *Host) GetCurrentPosition(hd *bridge.Handle, opts domain.PositionOptions) {
	h.mu.Lock()
	if h.err != nil {
		err := h.err
		h.mu.Unlock()
		go fail(hd, domain.PositionUnavailable, err.Error())
		return
	}

	if c := h.last; c != nil && opts.MaximumAge > 0 && h.clock.Since(c.at) <= opts.MaxAge() && h.acceptable(c.pos, opts) {
		h.mu.Unlock()
		go hd.Success()(domain.EncodePosition(c.pos))
		return
	}

	timeout, bounded := opts.Timeout()
	if bounded && timeout == 0 {
		h.mu.Unlock()
		go fail(hd, domain.Timeout, "Timeout expired")
		return
	}

	req := &request{handle: hd, opts: opts}
	if bounded {
		req.timer = h.clock.AfterFunc(timeout, func() { h.expire(req) })
	}
	h.pending[req] = struct{}{}
	h.mu.Unlock()
}

// WatchPosition registers hd for every subsequent acceptable fix.
func (h *Host) WatchPosition(hd *bridge.Handle, opts domain.PositionOptions) (geolocation.WatchID, error) {
	if hd.Kind() != bridge.Watch {
		return 0, fmt.Errorf("watch position: %w: %s", ErrNotWatch, hd.Kind())
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.err != nil {
		return 0, fmt.Errorf("watch position: %w", h.err)
	}

	id := h.nextID
	h.nextID++
	h.watchers[id] = &watcher{handle: hd, opts: opts}
	h.logger.Debug("nmea watch registered", "watch_id", id)
	return id, nil
}

// ClearWatch removes a watcher. Unknown ids are ignored.
func (h *Host) ClearWatch(id geolocation.WatchID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.watchers, id)
}

// Close stops the reader, closes the source and fails every pending request.
func (h *Host) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	readErr := h.err
	h.mu.Unlock()

	h.cancelFunc()
	closeErr := h.src.Close()
	h.activeBackgroundWorkers.Wait()

	h.mu.Lock()
	if h.err == nil {
		h.err = ErrClosed
	}
	reqs := h.drainPending()
	h.mu.Unlock()

	for _, r := range reqs {
		fail(r.handle, domain.PositionUnavailable, ErrClosed.Error())
	}

	if closeErr != nil {
		closeErr = fmt.Errorf("close nmea source: %w", closeErr)
	}
	return multierr.Combine(closeErr, readErr)
}

func (h *Host) run() {
	defer h.activeBackgroundWorkers.Done()

	r := bufio.NewReader(h.src)
	for {
		select {
		case <-h.cancelCtx.Done():
			return
		default:
		}

		line, err := r.ReadString('\n')
		if err != nil {
			if h.cancelCtx.Err() == nil {
				h.logger.Error("nmea read failed", "error", err)
				h.terminate(err)
			}
			return
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		s, err := nmea.Parse(line)
		if err != nil {
			h.logger.Debug("skipping nmea sentence", "sentence", line, "error", err)
			continue
		}

		h.mu.Lock()
		pos, ok := h.asm.feed(s)
		h.mu.Unlock()
		if ok {
			h.publish(pos)
		}
	}
}

// publish caches pos and delivers it to every request and watcher that
// accepts it.
func (h *Host) publish(pos domain.Position) {
	h.mu.Lock()
	h.last = &cachedFix{pos: pos, at: h.clock.Now()}

	var reqs []*request
	for r := range h.pending {
		if !h.acceptable(pos, r.opts) {
			continue
		}
		delete(h.pending, r)
		if r.timer != nil {
			r.timer.Stop()
		}
		reqs = append(reqs, r)
	}

	var handles []*bridge.Handle
	for _, id := range slices.Sorted(maps.Keys(h.watchers)) {
		w := h.watchers[id]
		// A released handle can no longer be invoked; its ClearWatch is
		// either in flight or was never issued.
		if w.handle.Released() {
			delete(h.watchers, id)
			h.logger.Debug("dropping released nmea watch", "watch_id", id)
			continue
		}
		if h.acceptable(pos, w.opts) {
			handles = append(handles, w.handle)
		}
	}
	h.mu.Unlock()

	raw := domain.EncodePosition(pos)
	for _, r := range reqs {
		r.handle.Success()(raw)
	}
	for _, hd := range handles {
		hd.Success()(raw)
	}
}

// terminate records a reader failure and reports it to everyone waiting.
func (h *Host) terminate(cause error) {
	h.mu.Lock()
	h.err = fmt.Errorf("read nmea source: %w", cause)
	msg := h.err.Error()
	reqs := h.drainPending()
	var handles []*bridge.Handle
	for _, id := range slices.Sorted(maps.Keys(h.watchers)) {
		handles = append(handles, h.watchers[id].handle)
	}
	h.mu.Unlock()

	for _, r := range reqs {
		fail(r.handle, domain.PositionUnavailable, msg)
	}
	for _, hd := range handles {
		if hd.HasError() {
			hd.Error()(domain.EncodeError(domain.PositionUnavailable, msg))
		}
	}
}

func (h *Host) expire(r *request) {
	h.mu.Lock()
	if _, ok := h.pending[r]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.pending, r)
	h.mu.Unlock()

	fail(r.handle, domain.Timeout, "Timeout expired")
}

// drainPending removes and returns every pending request. h.mu must be held.
func (h *Host) drainPending() []*request {
	reqs := make([]*request, 0, len(h.pending))
	for r := range h.pending {
		if r.timer != nil {
			r.timer.Stop()
		}
		reqs = append(reqs, r)
	}
	clear(h.pending)
	return reqs
}

func (h *Host) acceptable(pos domain.Position, opts domain.PositionOptions) bool {
	if !opts.EnableHighAccuracy {
		return true
	}
	acc, ok := accuracy(pos)
	return ok && acc <= h.highAccuracyLimit
}

// fail reports a terminal error for a one-shot request. A request without an
// error callback is released since nothing can be delivered to it.
func fail(hd *bridge.Handle, code domain.PositionErrorCode, msg string) {
	if !hd.HasError() {
		hd.Release()
		return
	}
	hd.Error()(domain.EncodeError(code, msg))
}
