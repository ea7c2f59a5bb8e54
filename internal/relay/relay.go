// Package relay forwards watch updates to a position sink.
package relay

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	geo "github.com/kellydunn/golang-geo"
	"golang.org/x/time/rate"

	"github.com/couchcryptid/geolocation-service/internal/domain"
	"github.com/couchcryptid/geolocation-service/internal/observability"
)

const (
	queueSize   = 16
	maxAttempts = 3
)

// Sink stores accepted positions.
type Sink interface {
	Publish(ctx context.Context, pos domain.Position) error
}

// Option configures a Relay.
type Option func(*Relay)

// WithBackoff sets the initial and maximum delay between publish retries.
func WithBackoff(initial, maxBackoff time.Duration) Option {
	return func(r *Relay) {
		r.initialBackoff = initial
		r.maxBackoff = maxBackoff
	}
}

// Relay is the consumer of a watch subscription. OnPosition and OnError are
// its callbacks; Run publishes accepted positions until its context ends.
type Relay struct {
	sink    Sink
	limiter *rate.Limiter
	queue   chan domain.Position
	logger  *slog.Logger
	metrics *observability.Metrics
	ready   atomic.Bool

	initialBackoff time.Duration
	maxBackoff     time.Duration

	last *geo.Point // owned by Run
}

// New creates a Relay that publishes at most perSecond positions per second.
func New(sink Sink, perSecond float64, logger *slog.Logger, metrics *observability.Metrics, opts ...Option) *Relay {
	r := &Relay{
		sink:           sink,
		limiter:        rate.NewLimiter(rate.Limit(perSecond), 1),
		queue:          make(chan domain.Position, queueSize),
		logger:         logger,
		metrics:        metrics,
		initialBackoff: 200 * time.Millisecond,
		maxBackoff:     5 * time.Second,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// CheckReadiness returns nil once a position has been published.
func (r *Relay) CheckReadiness(_ context.Context) error {
	if !r.ready.Load() {
		return errors.New("relay has not published any positions yet")
	}
	return nil
}

// OnPosition queues pos for publishing unless it exceeds the publish rate.
// It never blocks the host.
func (r *Relay) OnPosition(pos domain.Position) {
	if !r.limiter.Allow() {
		r.metrics.PositionsDropped.Inc()
		return
	}
	select {
	case r.queue <- pos:
	default:
		r.metrics.PositionsDropped.Inc()
		r.logger.Warn("relay queue full, dropping position")
	}
}

// OnError records a position error reported by the watch.
func (r *Relay) OnError(perr domain.PositionError) {
	r.metrics.PositionErrors.WithLabelValues(perr.Code.String()).Inc()
	r.logger.Warn("position error", "code", perr.Code.String(), "error", perr.Message)
}

// Run publishes queued positions until the context is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	r.logger.Info("relay started", "queue_size", queueSize)
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("relay stopping", "reason", ctx.Err())
			return nil
		case pos := <-r.queue:
			r.publish(ctx, pos)
		}
	}
}

// publish writes pos with exponential backoff between attempts, dropping it
// after maxAttempts failures.
func (r *Relay) publish(ctx context.Context, pos domain.Position) {
	backoff := r.initialBackoff
	for attempt := 1; ; attempt++ {
		err := r.sink.Publish(ctx, pos)
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			return
		}
		r.metrics.PublishErrors.Inc()
		r.logger.Error("publish position failed", "error", err, "attempt", attempt)
		if attempt == maxAttempts {
			r.metrics.PositionsDropped.Inc()
			return
		}
		if !sleepWithContext(ctx, backoff) {
			return
		}
		backoff = nextBackoff(backoff, r.maxBackoff)
	}

	r.metrics.PositionsPublished.Inc()
	r.ready.Store(true)
	r.track(pos)
}

// track logs the great-circle distance since the previous published fix.
func (r *Relay) track(pos domain.Position) {
	p, ok := pos.Point()
	if !ok {
		return
	}
	if r.last != nil {
		r.logger.Debug("position published", "moved_km", r.last.GreatCircleDistance(p))
	} else {
		r.logger.Info("first position published", "lat", p.Lat(), "lng", p.Lng())
	}
	r.last = p
}

func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
