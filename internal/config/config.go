package config

import (
	"errors"
	"math"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"

	"github.com/couchcryptid/geolocation-service/internal/domain"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// NMEA receiver configuration.
	NMEADevice   string
	NMEABaudRate uint
	NMEAUERE     float64 // meters per unit of dilution of precision
	DeviceID     string

	// Watch options. A zero GeoTimeout means no timeout.
	GeoHighAccuracy   bool
	GeoTimeout        time.Duration
	GeoMaximumAge     time.Duration
	HighAccuracyLimit float64 // meters

	// Relay and Kafka sink configuration.
	PublishRate  float64 // positions per second
	KafkaEnabled bool
	KafkaBrokers []string
	KafkaTopic   string
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	baud, err := strconv.ParseUint(sharedcfg.EnvOrDefault("NMEA_BAUD_RATE", "9600"), 10, 32)
	if err != nil || baud == 0 {
		return nil, errors.New("invalid NMEA_BAUD_RATE")
	}

	uere, err := parsePositiveFloat("NMEA_UERE", "5")
	if err != nil {
		return nil, err
	}
	highAccuracyLimit, err := parsePositiveFloat("HIGH_ACCURACY_LIMIT", "10")
	if err != nil {
		return nil, err
	}
	publishRate, err := parsePositiveFloat("PUBLISH_RATE", "1")
	if err != nil {
		return nil, err
	}

	geoTimeout, err := parseDuration("GEO_TIMEOUT")
	if err != nil {
		return nil, err
	}
	maxAge, err := parseDuration("GEO_MAXIMUM_AGE")
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		NMEADevice:   sharedcfg.EnvOrDefault("NMEA_DEVICE", "/dev/ttyUSB0"),
		NMEABaudRate: uint(baud),
		NMEAUERE:     uere,
		DeviceID:     sharedcfg.EnvOrDefault("DEVICE_ID", "gps-0"),

		GeoHighAccuracy:   os.Getenv("GEO_HIGH_ACCURACY") == "true",
		GeoTimeout:        geoTimeout,
		GeoMaximumAge:     maxAge,
		HighAccuracyLimit: highAccuracyLimit,

		PublishRate:  publishRate,
		KafkaEnabled: sharedcfg.EnvOrDefault("KAFKA_ENABLED", "true") == "true",
		KafkaBrokers: sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaTopic:   sharedcfg.EnvOrDefault("KAFKA_TOPIC", "device-positions"),
	}

	if cfg.KafkaEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_BROKERS is required when KAFKA_ENABLED is true")
	}
	if cfg.KafkaEnabled && cfg.KafkaTopic == "" {
		return nil, errors.New("KAFKA_TOPIC is required when KAFKA_ENABLED is true")
	}

	return cfg, nil
}

// PositionOptions converts the GEO_* settings into watch options.
func (c *Config) PositionOptions() domain.PositionOptions {
	opts := domain.DefaultPositionOptions()
	opts.EnableHighAccuracy = c.GeoHighAccuracy
	if c.GeoTimeout > 0 {
		opts.TimeoutMS = clampMillis(c.GeoTimeout)
	}
	opts.MaximumAge = clampMillis(c.GeoMaximumAge)
	return opts
}

// clampMillis keeps durations below NoTimeout so a long timeout is never
// mistaken for "no timeout".
func clampMillis(d time.Duration) uint32 {
	ms := d.Milliseconds()
	if ms >= int64(domain.NoTimeout) {
		return domain.NoTimeout - 1
	}
	return uint32(ms)
}

func parseDuration(key string) (time.Duration, error) {
	s := os.Getenv(key)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return 0, errors.New("invalid " + key)
	}
	return d, nil
}

func parsePositiveFloat(key, fallback string) (float64, error) {
	v, err := strconv.ParseFloat(sharedcfg.EnvOrDefault(key, fallback), 64)
	if err != nil || v <= 0 || math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, errors.New("invalid " + key)
	}
	return v, nil
}
