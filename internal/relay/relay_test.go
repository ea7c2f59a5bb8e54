package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/geolocation-service/internal/domain"
	"github.com/couchcryptid/geolocation-service/internal/observability"
)

// --- mocks ---

type mockSink struct {
	mu        sync.Mutex
	errs      []error // returned in order, then nil
	calls     int
	published []domain.Position
}

func (m *mockSink) Publish(_ context.Context, pos domain.Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if len(m.errs) > 0 {
		err := m.errs[0]
		m.errs = m.errs[1:]
		if err != nil {
			return err
		}
	}
	m.published = append(m.published, pos)
	return nil
}

func (m *mockSink) snapshot() (int, []domain.Position) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls, append([]domain.Position(nil), m.published...)
}

// syncBuffer guards a log buffer written from the Run goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func at(lat, lon float64) domain.Position {
	return domain.Position{Coords: &domain.Coordinates{Latitude: &lat, Longitude: &lon}}
}

// runRelay starts r.Run and returns a function that stops it and waits.
func runRelay(t *testing.T, r *Relay) func() {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	return func() {
		cancel()
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Fatal("relay did not stop")
		}
	}
}

// --- tests ---

func TestRelay_PublishesPositions(t *testing.T) {
	sink := &mockSink{}
	metrics := observability.NewMetricsForTesting()
	r := New(sink, 1000, slog.Default(), metrics)
	stop := runRelay(t, r)

	require.Error(t, r.CheckReadiness(context.Background()))
	r.OnPosition(at(30.2672, -97.7431))

	assert.Eventually(t, func() bool {
		_, published := sink.snapshot()
		return len(published) == 1
	}, time.Second, 5*time.Millisecond)
	stop()

	assert.NoError(t, r.CheckReadiness(context.Background()))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.PositionsPublished))
}

func TestRelay_RateLimitDropsExcess(t *testing.T) {
	sink := &mockSink{}
	metrics := observability.NewMetricsForTesting()
	r := New(sink, 0.01, slog.Default(), metrics)
	stop := runRelay(t, r)

	for i := 0; i < 5; i++ {
		r.OnPosition(at(float64(i), 0))
	}

	assert.Eventually(t, func() bool {
		_, published := sink.snapshot()
		return len(published) == 1
	}, time.Second, 5*time.Millisecond)
	stop()

	_, published := sink.snapshot()
	assert.Equal(t, 0.0, *published[0].Coords.Latitude, "the first position passes the limiter")
	assert.Equal(t, 4.0, testutil.ToFloat64(metrics.PositionsDropped))
}

func TestRelay_RetriesFailedPublish(t *testing.T) {
	sink := &mockSink{errs: []error{errors.New("broker down"), errors.New("broker down")}}
	metrics := observability.NewMetricsForTesting()
	r := New(sink, 1000, slog.Default(), metrics, WithBackoff(time.Millisecond, 2*time.Millisecond))
	stop := runRelay(t, r)

	r.OnPosition(at(1, 1))

	assert.Eventually(t, func() bool {
		_, published := sink.snapshot()
		return len(published) == 1
	}, time.Second, 5*time.Millisecond)
	stop()

	calls, _ := sink.snapshot()
	assert.Equal(t, 3, calls)
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.PublishErrors))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.PositionsPublished))
}

func TestRelay_DropsAfterMaxAttempts(t *testing.T) {
	fail := errors.New("broker down")
	sink := &mockSink{errs: []error{fail, fail, fail}}
	metrics := observability.NewMetricsForTesting()
	r := New(sink, 1000, slog.Default(), metrics, WithBackoff(time.Millisecond, time.Millisecond))
	stop := runRelay(t, r)

	r.OnPosition(at(1, 1))

	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(metrics.PositionsDropped) == 1
	}, time.Second, 5*time.Millisecond)
	stop()

	calls, published := sink.snapshot()
	assert.Equal(t, maxAttempts, calls)
	assert.Empty(t, published)
	assert.Error(t, r.CheckReadiness(context.Background()))
}

func TestRelay_LogsDistanceBetweenFixes(t *testing.T) {
	var logs syncBuffer
	logger := slog.New(slog.NewJSONHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	sink := &mockSink{}
	r := New(sink, 1000, logger, observability.NewMetricsForTesting())
	stop := runRelay(t, r)

	r.OnPosition(at(30.2672, -97.7431)) // Austin
	assert.Eventually(t, func() bool {
		_, published := sink.snapshot()
		return len(published) == 1
	}, time.Second, 5*time.Millisecond)
	r.OnPosition(at(29.7604, -95.3698)) // Houston
	assert.Eventually(t, func() bool {
		_, published := sink.snapshot()
		return len(published) == 2
	}, time.Second, 5*time.Millisecond)
	stop()

	var moved float64
	for _, line := range strings.Split(strings.TrimSpace(logs.String()), "\n") {
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		if v, ok := entry["moved_km"].(float64); ok {
			moved = v
		}
	}
	assert.InDelta(t, 235, moved, 5)
}

func TestRelay_PositionWithoutCoordinatesIsPublished(t *testing.T) {
	sink := &mockSink{}
	r := New(sink, 1000, slog.Default(), observability.NewMetricsForTesting())
	stop := runRelay(t, r)

	r.OnPosition(domain.Position{})

	assert.Eventually(t, func() bool {
		_, published := sink.snapshot()
		return len(published) == 1
	}, time.Second, 5*time.Millisecond)
	stop()
}

func TestRelay_OnErrorCountsByCode(t *testing.T) {
	metrics := observability.NewMetricsForTesting()
	r := New(&mockSink{}, 1, slog.Default(), metrics)

	r.OnError(domain.PositionError{Code: domain.PositionUnavailable, Message: "no fix"})
	r.OnError(domain.PositionError{Code: domain.PositionUnavailable, Message: "no fix"})
	r.OnError(domain.PositionError{Code: domain.Timeout, Message: "Timeout expired"})

	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.PositionErrors.WithLabelValues("position_unavailable")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.PositionErrors.WithLabelValues("timeout")))
}

func TestRelay_QueueFullDrops(t *testing.T) {
	metrics := observability.NewMetricsForTesting()
	r := New(&mockSink{}, 1e9, slog.Default(), metrics)
	r.limiter.SetBurst(queueSize + 10)

	for i := 0; i < queueSize+3; i++ {
		r.OnPosition(at(0, 0))
	}

	assert.Len(t, r.queue, queueSize)
	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.PositionsDropped))
}

func TestNextBackoff(t *testing.T) {
	assert.Equal(t, 400*time.Millisecond, nextBackoff(200*time.Millisecond, 5*time.Second))
	assert.Equal(t, 5*time.Second, nextBackoff(4*time.Second, 5*time.Second))
}

func TestSleepWithContext(t *testing.T) {
	assert.True(t, sleepWithContext(context.Background(), 0))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, sleepWithContext(ctx, time.Hour))
}
