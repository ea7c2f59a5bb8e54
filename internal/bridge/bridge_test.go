package bridge

import (
	"io"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/geolocation-service/internal/domain"
	"github.com/couchcryptid/geolocation-service/internal/observability"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// recorder collects what a bridge delivers to consumer callbacks.
type recorder struct {
	positions []domain.Position
	errors    []domain.PositionError
}

func (r *recorder) onPosition(p domain.Position)     { r.positions = append(r.positions, p) }
func (r *recorder) onError(e domain.PositionError) { r.errors = append(r.errors, e) }

func newTestBridge() (*Bridge, *observability.Metrics) {
	m := observability.NewMetricsForTesting()
	return New(discardLogger(), m), m
}

func TestBridge_Success(t *testing.T) {
	b, m := newTestBridge()
	rec := &recorder{}
	cb := b.Success(rec.onPosition, rec.onError)

	cb(map[string]any{
		"coords":    map[string]any{"latitude": 30.2672, "longitude": -97.7431, "altitude": 149.0},
		"timestamp": int64(1714144200000),
	})

	require.Len(t, rec.positions, 1)
	assert.Empty(t, rec.errors)
	pos := rec.positions[0]
	require.NotNil(t, pos.Coords)
	assert.Equal(t, 30.2672, *pos.Coords.Latitude)
	assert.Equal(t, 149.0, pos.Coords.Altitude.Meters())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CallbacksDispatched.WithLabelValues("success")))
}

func TestBridge_SuccessMalformedRoutesToError(t *testing.T) {
	b, m := newTestBridge()
	rec := &recorder{}
	cb := b.Success(rec.onPosition, rec.onError)

	assert.NotPanics(t, func() { cb("not a position") })

	assert.Empty(t, rec.positions)
	require.Len(t, rec.errors, 1)
	assert.Equal(t, domain.FailedToDeserialize, rec.errors[0].Code)
	assert.Contains(t, rec.errors[0].Message, "string")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DecodeFailures.WithLabelValues("success")))
}

func TestBridge_SuccessMalformedWithoutErrorCallback(t *testing.T) {
	b, _ := newTestBridge()
	rec := &recorder{}
	cb := b.Success(rec.onPosition, nil)

	assert.NotPanics(t, func() { cb(nil) })
	assert.Empty(t, rec.positions)
}

func TestBridge_Error(t *testing.T) {
	b, m := newTestBridge()
	rec := &recorder{}
	cb := b.Error(rec.onError)

	cb(map[string]any{"code": 1.0, "message": "User denied Geolocation"})
	cb(map[string]any{"code": "1", "message": "User denied Geolocation"})

	require.Len(t, rec.errors, 2)
	assert.Equal(t, domain.PositionError{Code: domain.PermissionDenied, Message: "User denied Geolocation"}, rec.errors[0])
	assert.Equal(t, domain.FailedToDeserialize, rec.errors[1].Code)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CallbacksDispatched.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DecodeFailures.WithLabelValues("error")))
}

func TestBridge_ErrorUnknownCodeDoesNotCrash(t *testing.T) {
	b, _ := newTestBridge()
	rec := &recorder{}
	cb := b.Error(rec.onError)

	assert.NotPanics(t, func() { cb(map[string]any{"code": 9, "message": "?"}) })

	require.Len(t, rec.errors, 1)
	assert.Equal(t, domain.FailedToDeserialize, rec.errors[0].Code)
}

func TestBridge_RecoversConsumerPanic(t *testing.T) {
	b, m := newTestBridge()
	cb := b.Success(func(domain.Position) { panic("consumer bug") }, nil)

	assert.NotPanics(t, func() { cb(map[string]any{}) })
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CallbackPanics))
}
