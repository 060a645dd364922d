package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/dkarali/urlmeta/internal/logging"
)

// Handler processes one decoded task to a terminal disposition (success,
// retry republished, or dead-lettered). The consumer commits the offset
// after Handle returns, whatever the disposition was.
type Handler interface {
	Handle(ctx context.Context, task Task)
}

// committer is the slice of the Kafka client the per-record loop needs;
// narrowed so commit discipline is testable without a broker.
type committer interface {
	CommitRecords(ctx context.Context, rs ...*kgo.Record) error
}

// Consumer is the long-lived group consumer driving the worker. Single-owner:
// only Run polls the client.
type Consumer struct {
	client  *kgo.Client
	commits committer
	handler Handler
	cfg     Config
	logger  logging.Logger
}

// NewConsumer creates the group consumer: earliest offset reset, manual
// commits for at-least-once delivery, 30s session timeout, and a rebalance
// window wide enough for a slow fetch (300s).
func NewConsumer(cfg Config, handler Handler, logger logging.Logger) (*Consumer, error) {
	cfg = cfg.WithDefaults()
	componentLogger := logger.With(logging.Field{Key: "component", Value: "consumer"})

	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.BootstrapServers...),
		kgo.ClientID("metadata-worker-consumer"),
		kgo.ConsumerGroup(cfg.ConsumerGroup),
		kgo.ConsumeTopics(cfg.Topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
		kgo.DisableAutoCommit(),
		kgo.SessionTimeout(30*time.Second),
		kgo.RebalanceTimeout(300*time.Second),
		kgo.FetchMaxWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("queue: create consumer client: %w", err)
	}

	componentLogger.Info("kafka consumer created",
		logging.Field{Key: "topic", Value: cfg.Topic},
		logging.Field{Key: "group", Value: cfg.ConsumerGroup})

	return &Consumer{client: client, commits: client, handler: handler, cfg: cfg, logger: componentLogger}, nil
}

// Run polls until ctx is cancelled, dispatching each valid task to the
// handler and committing its offset afterwards. Each poll is bounded to one
// second so shutdown latency is bounded. Always closes the client on return,
// releasing the partition assignment.
func (c *Consumer) Run(ctx context.Context) error {
	defer func() {
		c.client.Close()
		c.logger.Info("kafka consumer closed")
	}()

	for {
		if ctx.Err() != nil {
			return nil
		}

		pollCtx, cancel := context.WithTimeout(ctx, time.Second)
		fetches := c.client.PollFetches(pollCtx)
		cancel()

		if fetches.IsClientClosed() {
			return nil
		}
		for _, fe := range fetches.Errors() {
			if errors.Is(fe.Err, context.DeadlineExceeded) || errors.Is(fe.Err, context.Canceled) {
				continue
			}
			c.logger.Error("kafka fetch error",
				logging.Field{Key: "topic", Value: fe.Topic},
				logging.Field{Key: "partition", Value: fe.Partition},
				logging.Field{Key: "error", Value: fe.Err.Error()})
		}

		c.consumeFetches(ctx, fetches)
	}
}

// consumeFetches runs the per-message protocol over one poll's records: decode,
// dispatch, then exactly one commit per handled record. Undecodable payloads
// are skipped without committing, so no offset is ever acknowledged for a
// message that produced no disposition.
func (c *Consumer) consumeFetches(ctx context.Context, fetches kgo.Fetches) {
	iter := fetches.RecordIter()
	for !iter.Done() {
		rec := iter.Next()

		task, err := DecodeTask(rec.Value)
		if err != nil {
			c.logger.Error("skipping undecodable task message",
				logging.Field{Key: "partition", Value: rec.Partition},
				logging.Field{Key: "offset", Value: rec.Offset},
				logging.Field{Key: "error", Value: err.Error()})
			continue
		}

		c.logger.Info("consumer received task",
			logging.Field{Key: "url", Value: task.URL},
			logging.Field{Key: "retry_count", Value: task.RetryCount},
			logging.Field{Key: "partition", Value: rec.Partition},
			logging.Field{Key: "offset", Value: rec.Offset})

		c.handler.Handle(ctx, task)

		if err := c.commits.CommitRecords(ctx, rec); err != nil {
			c.logger.Warn("failed to commit offset",
				logging.Field{Key: "partition", Value: rec.Partition},
				logging.Field{Key: "offset", Value: rec.Offset},
				logging.Field{Key: "error", Value: err.Error()})
			continue
		}
		c.logger.Debug("committed offset",
			logging.Field{Key: "partition", Value: rec.Partition},
			logging.Field{Key: "offset", Value: rec.Offset})
	}
}
