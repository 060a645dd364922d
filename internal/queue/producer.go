// Package queue carries collection tasks between the API and the workers
// over Kafka: a main topic for tasks and retries, and a dead-letter topic
// for tasks that are permanently unprocessable or out of retries.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/dkarali/urlmeta/internal/logging"
)

// ErrBufferFull is returned by Enqueue when the producer cannot buffer the
// record. The caller may drop the enqueue; the pending record stays in the
// store and the next read re-drives it.
var ErrBufferFull = errors.New("queue: producer buffer full")

// Config holds the Kafka settings shared by producer and consumer.
type Config struct {
	BootstrapServers []string
	Topic            string // default metadata-tasks
	DLQTopic         string // default metadata-tasks-dlq
	ConsumerGroup    string // default metadata-workers
	MaxRetries       int    // default 3
}

func (c *Config) WithDefaults() Config {
	out := *c
	if out.Topic == "" {
		out.Topic = "metadata-tasks"
	}
	if out.DLQTopic == "" {
		out.DLQTopic = "metadata-tasks-dlq"
	}
	if out.ConsumerGroup == "" {
		out.ConsumerGroup = "metadata-workers"
	}
	if out.MaxRetries <= 0 {
		out.MaxRetries = 3
	}
	return out
}

// Producer publishes collection tasks. Safe for concurrent use.
type Producer struct {
	client *kgo.Client
	cfg    Config
	logger logging.Logger
}

// NewProducer creates the Kafka producer: acks from all replicas, up to
// three produce retries, a short linger for micro-batching, and snappy
// compression.
func NewProducer(cfg Config, logger logging.Logger) (*Producer, error) {
	cfg = cfg.WithDefaults()
	componentLogger := logger.With(logging.Field{Key: "component", Value: "producer"})

	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.BootstrapServers...),
		kgo.ClientID("metadata-api-producer"),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.RecordRetries(3),
		kgo.RetryBackoffFn(func(int) time.Duration { return 200 * time.Millisecond }),
		kgo.ProducerLinger(10*time.Millisecond),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("queue: create producer client: %w", err)
	}

	componentLogger.Info("kafka producer initialized",
		logging.Field{Key: "bootstrap", Value: cfg.BootstrapServers})

	return &Producer{client: client, cfg: cfg, logger: componentLogger}, nil
}

// EnsureTopics creates the main topic (3 partitions) and the dead-letter
// topic (1 partition) when absent. Already-existing topics are not an error.
func (p *Producer) EnsureTopics(ctx context.Context) error {
	adm := kadm.NewClient(p.client)

	for _, tp := range []struct {
		topic      string
		partitions int32
	}{
		{p.cfg.Topic, 3},
		{p.cfg.DLQTopic, 1},
	} {
		resps, err := adm.CreateTopics(ctx, tp.partitions, 1, nil, tp.topic)
		if err != nil {
			return fmt.Errorf("queue: create topic %s: %w", tp.topic, err)
		}
		for _, resp := range resps.Sorted() {
			switch {
			case resp.Err == nil:
				p.logger.Info("created kafka topic", logging.Field{Key: "topic", Value: resp.Topic})
			case errors.Is(resp.Err, kerr.TopicAlreadyExists):
				p.logger.Debug("kafka topic already exists", logging.Field{Key: "topic", Value: resp.Topic})
			default:
				return fmt.Errorf("queue: create topic %s: %w", resp.Topic, resp.Err)
			}
		}
	}
	return nil
}

// Enqueue publishes a fresh task (implicit retry_count 0) to the main topic.
// The produce is asynchronous; delivery results are logged by the promise.
// A full buffer surfaces as ErrBufferFull.
func (p *Producer) Enqueue(ctx context.Context, url string) error {
	payload, err := json.Marshal(Task{URL: url})
	if err != nil {
		return fmt.Errorf("queue: encode task: %w", err)
	}

	rec := &kgo.Record{Topic: p.cfg.Topic, Key: []byte(url), Value: payload}

	// TryProduce fails the promise in the calling goroutine when the buffer
	// is at capacity, so the channel receive below sees it.
	full := make(chan struct{}, 1)
	p.client.TryProduce(ctx, rec, func(r *kgo.Record, err error) {
		if err != nil {
			if errors.Is(err, kgo.ErrMaxBuffered) {
				select {
				case full <- struct{}{}:
				default:
				}
				return
			}
			p.logger.Error("kafka delivery failed",
				logging.Field{Key: "topic", Value: r.Topic},
				logging.Field{Key: "error", Value: err.Error()})
			return
		}
		p.logger.Debug("kafka message delivered",
			logging.Field{Key: "topic", Value: r.Topic},
			logging.Field{Key: "partition", Value: r.Partition},
			logging.Field{Key: "offset", Value: r.Offset})
	})

	select {
	case <-full:
		p.logger.Warn("kafka producer buffer full, dropping enqueue",
			logging.Field{Key: "url", Value: url})
		return ErrBufferFull
	default:
	}

	p.logger.Info("enqueued url",
		logging.Field{Key: "url", Value: url},
		logging.Field{Key: "topic", Value: p.cfg.Topic})
	return nil
}

// PublishWithRetry republishes a task to the main topic with the incremented
// retry count. Synchronous: the worker needs to know whether the republish
// actually landed before committing the offset.
func (p *Producer) PublishWithRetry(ctx context.Context, url string, retryCount int) error {
	payload, err := json.Marshal(Task{URL: url, RetryCount: retryCount})
	if err != nil {
		return fmt.Errorf("queue: encode retry task: %w", err)
	}

	rec := &kgo.Record{Topic: p.cfg.Topic, Key: []byte(url), Value: payload}
	if err := p.client.ProduceSync(ctx, rec).FirstErr(); err != nil {
		return fmt.Errorf("queue: publish retry for %s: %w", url, err)
	}

	p.logger.Info("re-enqueued url",
		logging.Field{Key: "url", Value: url},
		logging.Field{Key: "retry_count", Value: retryCount})
	return nil
}

// PublishToDLQ publishes a terminally failed task to the dead-letter topic.
// Synchronous, for the same reason as PublishWithRetry.
func (p *Producer) PublishToDLQ(ctx context.Context, url string, retryCount int, errMsg string) error {
	payload, err := json.Marshal(DeadLetter{URL: url, RetryCount: retryCount, Error: errMsg})
	if err != nil {
		return fmt.Errorf("queue: encode dead letter: %w", err)
	}

	rec := &kgo.Record{Topic: p.cfg.DLQTopic, Key: []byte(url), Value: payload}
	if err := p.client.ProduceSync(ctx, rec).FirstErr(); err != nil {
		return fmt.Errorf("queue: publish dead letter for %s: %w", url, err)
	}

	p.logger.Warn("sent url to dlq",
		logging.Field{Key: "url", Value: url},
		logging.Field{Key: "retry_count", Value: retryCount},
		logging.Field{Key: "error", Value: errMsg})
	return nil
}

// Close flushes buffered messages with a bounded timeout and releases the
// client. Unflushed messages are warned about, not waited for.
func (p *Producer) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := p.client.Flush(ctx); err != nil {
		p.logger.Warn("kafka producer closed with unflushed messages",
			logging.Field{Key: "error", Value: err.Error()})
	}
	p.client.Close()
	p.logger.Info("kafka producer closed")
}
