package observability

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "info", "json")

	logger.Debug("hidden")
	logger.Info("watch started", "watch_id", 42)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "watch started", line["msg"])
	assert.Equal(t, 42.0, line["watch_id"])
}

func TestNewLogger_Text(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "debug", "text")

	logger.Debug("decoded position")

	assert.Contains(t, buf.String(), "msg=\"decoded position\"")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warning"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel("bogus"))
}

func TestNewMetricsForTesting(t *testing.T) {
	m := NewMetricsForTesting()

	m.CallbacksDispatched.WithLabelValues("success").Inc()
	m.ActiveWatches.Inc()
	m.ActiveWatches.Dec()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.CallbacksDispatched.WithLabelValues("success")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ActiveWatches))
}
