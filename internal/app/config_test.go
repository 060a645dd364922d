package app

import (
	"reflect"
	"testing"
	"time"

	"github.com/dkarali/urlmeta/internal/logging"
)

func fromTestEnv(t *testing.T) Config {
	t.Helper()
	return FromEnv(logging.NewTestLogger(false))
}

func TestFromEnv_Defaults(t *testing.T) {
	for _, key := range []string{
		"API_HOST", "API_PORT", "SERVICE_NAME",
		"MONGO_URI", "MONGO_DB_NAME", "HTTP_TIMEOUT",
		"KAFKA_BOOTSTRAP_SERVERS", "KAFKA_TOPIC", "KAFKA_DLQ_TOPIC",
		"KAFKA_CONSUMER_GROUP", "KAFKA_MAX_RETRIES", "LOG_LEVEL",
	} {
		t.Setenv(key, "")
	}

	cfg := fromTestEnv(t)

	if cfg.Server.ListenAddr != "0.0.0.0:8000" {
		t.Errorf("ListenAddr = %q, want 0.0.0.0:8000", cfg.Server.ListenAddr)
	}
	if cfg.Store.URI != "mongodb://localhost:27017" || cfg.Store.Database != "metadata_service" {
		t.Errorf("store config = %+v", cfg.Store)
	}
	if cfg.Collector.Timeout != 30*time.Second {
		t.Errorf("collector timeout = %v, want 30s", cfg.Collector.Timeout)
	}
	if !reflect.DeepEqual(cfg.Queue.BootstrapServers, []string{"localhost:9092"}) {
		t.Errorf("bootstrap servers = %v", cfg.Queue.BootstrapServers)
	}
	if cfg.Queue.Topic != "metadata-tasks" || cfg.Queue.DLQTopic != "metadata-tasks-dlq" {
		t.Errorf("queue topics = %+v", cfg.Queue)
	}
	if cfg.Queue.MaxRetries != 3 {
		t.Errorf("max retries = %d, want 3", cfg.Queue.MaxRetries)
	}
	if cfg.LogLevel != logging.LevelInfo {
		t.Errorf("log level = %v, want info", cfg.LogLevel)
	}
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("API_HOST", "127.0.0.1")
	t.Setenv("API_PORT", "9090")
	t.Setenv("MONGO_URI", "mongodb://db:27017")
	t.Setenv("MONGO_DB_NAME", "meta_test")
	t.Setenv("HTTP_TIMEOUT", "5")
	t.Setenv("KAFKA_BOOTSTRAP_SERVERS", "broker1:9092, broker2:9092")
	t.Setenv("KAFKA_MAX_RETRIES", "5")
	t.Setenv("LOG_LEVEL", "debug")

	cfg := fromTestEnv(t)

	if cfg.Server.ListenAddr != "127.0.0.1:9090" {
		t.Errorf("ListenAddr = %q", cfg.Server.ListenAddr)
	}
	if cfg.Store.URI != "mongodb://db:27017" || cfg.Store.Database != "meta_test" {
		t.Errorf("store config = %+v", cfg.Store)
	}
	if cfg.Collector.Timeout != 5*time.Second {
		t.Errorf("collector timeout = %v, want 5s", cfg.Collector.Timeout)
	}
	want := []string{"broker1:9092", "broker2:9092"}
	if !reflect.DeepEqual(cfg.Queue.BootstrapServers, want) {
		t.Errorf("bootstrap servers = %v, want %v", cfg.Queue.BootstrapServers, want)
	}
	if cfg.Queue.MaxRetries != 5 {
		t.Errorf("max retries = %d, want 5", cfg.Queue.MaxRetries)
	}
	if cfg.LogLevel != logging.LevelDebug {
		t.Errorf("log level = %v, want debug", cfg.LogLevel)
	}
}

func TestFromEnv_UnparseableIntFallsBack(t *testing.T) {
	t.Setenv("HTTP_TIMEOUT", "not-a-number")
	t.Setenv("KAFKA_MAX_RETRIES", "three")

	cfg := fromTestEnv(t)
	if cfg.Collector.Timeout != 30*time.Second {
		t.Errorf("collector timeout = %v, want default 30s", cfg.Collector.Timeout)
	}
	if cfg.Queue.MaxRetries != 3 {
		t.Errorf("max retries = %d, want default 3", cfg.Queue.MaxRetries)
	}
}

func TestFromEnv_ExplicitValuesPassThrough(t *testing.T) {
	// An explicit zero is set, not unset. The per-package defaulting decides
	// what to do with out-of-range values, not the env layer.
	t.Setenv("HTTP_TIMEOUT", "0")
	t.Setenv("KAFKA_MAX_RETRIES", "0")

	cfg := fromTestEnv(t)
	if cfg.Collector.Timeout != 0 {
		t.Errorf("collector timeout = %v, want the explicit 0", cfg.Collector.Timeout)
	}
	if cfg.Queue.MaxRetries != 0 {
		t.Errorf("max retries = %d, want the explicit 0", cfg.Queue.MaxRetries)
	}
}
