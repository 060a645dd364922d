package queue

import "testing"

func TestConfigWithDefaults(t *testing.T) {
	t.Parallel()

	t.Run("zero value gets all defaults", func(t *testing.T) {
		cfg := Config{}
		got := cfg.WithDefaults()
		if got.Topic != "metadata-tasks" || got.DLQTopic != "metadata-tasks-dlq" {
			t.Errorf("topics = %+v", got)
		}
		if got.ConsumerGroup != "metadata-workers" {
			t.Errorf("consumer group = %q", got.ConsumerGroup)
		}
		if got.MaxRetries != 3 {
			t.Errorf("max retries = %d, want 3", got.MaxRetries)
		}
	})

	t.Run("out-of-range retries clamp here", func(t *testing.T) {
		cfg := Config{MaxRetries: 0}
		if got := cfg.WithDefaults(); got.MaxRetries != 3 {
			t.Errorf("max retries = %d, want the clamped default 3", got.MaxRetries)
		}
		cfg = Config{MaxRetries: -2}
		if got := cfg.WithDefaults(); got.MaxRetries != 3 {
			t.Errorf("negative max retries = %d, want the clamped default 3", got.MaxRetries)
		}
	})

	t.Run("explicit settings survive", func(t *testing.T) {
		cfg := Config{Topic: "t", DLQTopic: "t-dlq", ConsumerGroup: "g", MaxRetries: 7}
		got := cfg.WithDefaults()
		if got.Topic != "t" || got.DLQTopic != "t-dlq" || got.ConsumerGroup != "g" || got.MaxRetries != 7 {
			t.Errorf("config = %+v, want explicit values untouched", got)
		}
	})
}
