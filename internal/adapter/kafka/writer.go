package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/geolocation-service/internal/config"
	"github.com/couchcryptid/geolocation-service/internal/domain"
)

// Writer produces device positions to a Kafka topic.
// It implements relay.Sink.
type Writer struct {
	writer   *kafkago.Writer
	deviceID string
	logger   *slog.Logger
}

// NewWriter creates a Kafka producer for the configured position topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, deviceID: cfg.DeviceID, logger: logger}
}

// Publish writes one position keyed by device id, so a device's positions
// stay ordered within a partition.
func (w *Writer) Publish(ctx context.Context, pos domain.Position) error {
	msg, err := serializeToMessage(w.deviceID, pos, time.Now())
	if err != nil {
		return err
	}
	if err := w.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write position: %w", err)
	}
	w.logger.Debug("position published", "topic", w.writer.Topic, "device_id", w.deviceID)
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a Position into a Kafka message. Positions
// without a timestamp are stamped with now.
func serializeToMessage(deviceID string, pos domain.Position, now time.Time) (kafkago.Message, error) {
	data, err := json.Marshal(pos)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize position: %w", err)
	}
	observed := now
	if pos.Timestamp != nil {
		observed = *pos.Timestamp
	}
	return kafkago.Message{
		Key:   []byte(deviceID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "device_id", Value: []byte(deviceID)},
			{Key: "observed_at", Value: []byte(observed.UTC().Format(time.RFC3339))},
		},
	}, nil
}
