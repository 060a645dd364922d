package app

import (
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dkarali/urlmeta/internal/collector"
	"github.com/dkarali/urlmeta/internal/logging"
	"github.com/dkarali/urlmeta/internal/queue"
	"github.com/dkarali/urlmeta/internal/server"
	"github.com/dkarali/urlmeta/internal/store"
)

// Config aggregates the per-component configurations.
type Config struct {
	Server    server.Config
	Store     store.Config
	Collector collector.Config
	Queue     queue.Config
	LogLevel  logging.Level
}

// FromEnv builds the configuration from environment variables, falling back
// to defaults suitable for local development. Explicitly set values pass
// through as-is; out-of-range values are clamped by each package's own
// defaulting, not here. Unparseable values are warned about and ignored.
func FromEnv(logger logging.Logger) Config {
	host := envString("API_HOST", "0.0.0.0")
	port := envString("API_PORT", "8000")

	return Config{
		Server: server.Config{
			ListenAddr:  net.JoinHostPort(host, port),
			ServiceName: envString("SERVICE_NAME", "metadata-collection-api"),
		},
		Store: store.Config{
			URI:      envString("MONGO_URI", "mongodb://localhost:27017"),
			Database: envString("MONGO_DB_NAME", "metadata_service"),
		},
		Collector: collector.Config{
			Timeout: time.Duration(envInt("HTTP_TIMEOUT", 30, logger)) * time.Second,
		},
		Queue: queue.Config{
			BootstrapServers: splitList(envString("KAFKA_BOOTSTRAP_SERVERS", "localhost:9092")),
			Topic:            envString("KAFKA_TOPIC", "metadata-tasks"),
			DLQTopic:         envString("KAFKA_DLQ_TOPIC", "metadata-tasks-dlq"),
			ConsumerGroup:    envString("KAFKA_CONSUMER_GROUP", "metadata-workers"),
			MaxRetries:       envInt("KAFKA_MAX_RETRIES", 3, logger),
		},
		LogLevel: logging.ParseLevel(envString("LOG_LEVEL", "info")),
	}
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// envInt distinguishes unset from explicitly set: only an absent variable or
// a parse failure yields the fallback.
func envInt(key string, fallback int, logger logging.Logger) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		logger.Warn("ignoring unparseable integer in environment",
			logging.Field{Key: "key", Value: key},
			logging.Field{Key: "value", Value: v},
			logging.Field{Key: "default", Value: fallback})
		return fallback
	}
	return n
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
