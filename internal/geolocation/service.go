package geolocation

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/geolocation-service/internal/bridge"
	"github.com/couchcryptid/geolocation-service/internal/domain"
	"github.com/couchcryptid/geolocation-service/internal/observability"
)

// Service resolves the host capability on every call and bridges consumer
// callbacks to it. It holds no per-request state.
type Service struct {
	locate     Locator
	capability string
	registry   *bridge.Registry
	bridge     *bridge.Bridge
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// Option configures a Service.
type Option func(*Service)

// WithCapability sets the capability name reported in NoBrowserSupport errors.
func WithCapability(name string) Option {
	return func(s *Service) { s.capability = name }
}

// WithRegistry replaces the process-wide handle registry.
func WithRegistry(r *bridge.Registry) Option {
	return func(s *Service) { s.registry = r }
}

// New creates a Service.
func New(locate Locator, logger *slog.Logger, metrics *observability.Metrics, opts ...Option) *Service {
	s := &Service{
		locate:     locate,
		capability: DefaultCapability,
		registry:   bridge.Default(),
		bridge:     bridge.New(logger, metrics),
		logger:     logger,
		metrics:    metrics,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RequestPosition issues a one-shot position request and returns immediately.
// Without a host capability onError receives NoBrowserSupport; a nil onError
// means nothing is reported. A nil opts uses the defaults.
func (s *Service) RequestPosition(success domain.Callback[domain.Position], onError domain.Callback[domain.PositionError], opts *domain.PositionOptions) {
	host, ok := s.locate()
	if !ok {
		s.metrics.Requests.WithLabelValues("unsupported").Inc()
		s.unsupported(onError)
		return
	}

	h := s.register(bridge.OneShot, success, onError)
	s.metrics.Requests.WithLabelValues("issued").Inc()
	s.logger.Debug("position requested", "handle_id", h.ID())
	host.GetCurrentPosition(h, domain.EffectiveOptions(opts))
}

// StartWatch starts a watch subscription. It returns nil when the host
// capability is absent or the host did not yield a watch id; only the former
// is reported to onError.
func (s *Service) StartWatch(success domain.Callback[domain.Position], onError domain.Callback[domain.PositionError], opts *domain.PositionOptions) *WatchSubscription {
	host, ok := s.locate()
	if !ok {
		s.metrics.WatchStarts.WithLabelValues("unsupported").Inc()
		s.unsupported(onError)
		return nil
	}

	h := s.register(bridge.Watch, success, onError)
	id, err := host.WatchPosition(h, domain.EffectiveOptions(opts))
	if err != nil {
		h.Release()
		s.metrics.WatchStarts.WithLabelValues("failed").Inc()
		s.logger.Warn("watch start failed", "handle_id", h.ID(), "error", err)
		return nil
	}

	s.metrics.WatchStarts.WithLabelValues("active").Inc()
	s.metrics.ActiveWatches.Inc()
	s.logger.Debug("watch started", "watch_id", id, "handle_id", h.ID())
	return newSubscription(&watch{
		host:    host,
		id:      id,
		active:  true,
		handle:  h,
		logger:  s.logger,
		metrics: s.metrics,
	})
}

// StartWatchContext is StartWatch with a subscription that is cancelled when
// ctx is done.
func (s *Service) StartWatchContext(ctx context.Context, success domain.Callback[domain.Position], onError domain.Callback[domain.PositionError], opts *domain.PositionOptions) *WatchSubscription {
	sub := s.StartWatch(success, onError, opts)
	if sub == nil {
		return nil
	}

	w := sub.w
	w.bindStop(context.AfterFunc(ctx, func() { w.cancel(reasonContext) }))
	return sub
}

func (s *Service) register(kind bridge.Kind, success domain.Callback[domain.Position], onError domain.Callback[domain.PositionError]) *bridge.Handle {
	var failure bridge.HostCallback
	if onError != nil {
		failure = s.bridge.Error(onError)
	}
	return s.registry.Register(kind, s.bridge.Success(success, onError), failure)
}

func (s *Service) unsupported(onError domain.Callback[domain.PositionError]) {
	if onError == nil {
		s.logger.Debug("geolocation capability absent", "capability", s.capability)
		return
	}
	onError(domain.PositionError{
		Code:    domain.NoBrowserSupport,
		Message: fmt.Sprintf("Could not get a handle on '%s'", s.capability),
	})
}
