package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/geolocation-service/internal/domain"
)

// positionWait bounds how long GET /position waits for the host to answer.
// Host requests are given the same timeout so they never outlive the HTTP
// request.
const positionWait = 8 * time.Second

// PositionRequester issues one-shot position requests.
// It is implemented by geolocation.Service.
type PositionRequester interface {
	RequestPosition(success domain.Callback[domain.Position], onError domain.Callback[domain.PositionError], opts *domain.PositionOptions)
}

// Server exposes health, readiness, metrics and position HTTP endpoints.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /healthz, /readyz, /metrics and
// /position routes. opts are the options used for GET /position.
func NewServer(addr string, ready sharedobs.ReadinessChecker, positions PositionRequester, opts domain.PositionOptions, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(ready))
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /position", s.handlePosition(positions, boundTimeout(opts)))

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

// boundTimeout caps the host timeout at positionWait.
func boundTimeout(opts domain.PositionOptions) domain.PositionOptions {
	if limit := uint32(positionWait.Milliseconds()); opts.TimeoutMS > limit {
		opts.TimeoutMS = limit
	}
	return opts
}

type positionResult struct {
	pos  domain.Position
	perr *domain.PositionError
}

func (s *Server) handlePosition(positions PositionRequester, opts domain.PositionOptions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), positionWait)
		defer cancel()

		// Buffered so a late host answer never blocks the host.
		done := make(chan positionResult, 1)
		deliver := func(res positionResult) {
			select {
			case done <- res:
			default:
			}
		}
		positions.RequestPosition(
			func(p domain.Position) { deliver(positionResult{pos: p}) },
			func(e domain.PositionError) { deliver(positionResult{perr: &e}) },
			&opts,
		)

		select {
		case res := <-done:
			if res.perr != nil {
				s.logger.Warn("position request failed", "code", res.perr.Code.String(), "error", res.perr.Message)
				writeJSON(w, statusForCode(res.perr.Code), map[string]string{
					"status": "error",
					"code":   res.perr.Code.String(),
					"error":  res.perr.Message,
				})
				return
			}
			writeJSON(w, http.StatusOK, res.pos)
		case <-ctx.Done():
			writeJSON(w, http.StatusGatewayTimeout, map[string]string{
				"status": "error",
				"code":   domain.Timeout.String(),
				"error":  "no position before the request deadline",
			})
		}
	}
}

func statusForCode(code domain.PositionErrorCode) int {
	switch code {
	case domain.PermissionDenied:
		return http.StatusForbidden
	case domain.PositionUnavailable:
		return http.StatusServiceUnavailable
	case domain.Timeout:
		return http.StatusGatewayTimeout
	case domain.FailedToDeserialize:
		return http.StatusBadGateway
	case domain.NoBrowserSupport:
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response
}
