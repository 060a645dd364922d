// Package worker drives one dequeued task to a terminal disposition:
// collected and stored, republished with an incremented retry count, or
// dead-lettered with the record marked failed.
package worker

import (
	"context"

	"github.com/dkarali/urlmeta/internal/collector"
	"github.com/dkarali/urlmeta/internal/logging"
	"github.com/dkarali/urlmeta/internal/queue"
	"github.com/dkarali/urlmeta/internal/store"
)

// Collector fetches URL metadata with classified failures.
type Collector interface {
	Fetch(ctx context.Context, url string) (*collector.CollectedData, error)
}

// Records is the slice of the store the worker writes through.
type Records interface {
	Upsert(ctx context.Context, url string, fields store.Fields) (string, error)
	MarkFailed(ctx context.Context, url string, reason string) error
}

// Publisher republishes retries and routes dead letters.
type Publisher interface {
	PublishWithRetry(ctx context.Context, url string, retryCount int) error
	PublishToDLQ(ctx context.Context, url string, retryCount int, errMsg string) error
}

// Worker implements queue.Handler.
type Worker struct {
	collector  Collector
	records    Records
	publisher  Publisher
	maxRetries int
	logger     logging.Logger
}

// New creates a Worker. maxRetries is the delivery count at which a
// transient failure is routed to the dead-letter topic instead of retried.
func New(c Collector, r Records, p Publisher, maxRetries int, logger logging.Logger) *Worker {
	return &Worker{
		collector:  c,
		records:    r,
		publisher:  p,
		maxRetries: maxRetries,
		logger:     logger.With(logging.Field{Key: "component", Value: "worker"}),
	}
}

var _ queue.Handler = (*Worker)(nil)

// Handle processes one task to its terminal disposition. It never reports
// an error upward: the consumer commits the offset after Handle returns,
// and the pending record in the store is what re-drives work that slipped
// through a failed publish.
func (w *Worker) Handle(ctx context.Context, task queue.Task) {
	err := w.process(ctx, task.URL)
	if err == nil {
		return
	}

	if collector.IsPermanent(err) {
		w.logger.Error("permanent failure, routing to dlq",
			logging.Field{Key: "url", Value: task.URL},
			logging.Field{Key: "error", Value: err.Error()})
		w.deadLetter(ctx, task.URL, task.RetryCount, err)
		return
	}

	// Transient or unclassified: retry accounting. The n-th delivery carries
	// retry_count n-1; after classification the count is n.
	n := task.RetryCount + 1
	if n < w.maxRetries {
		w.logger.Warn("transient failure, retrying",
			logging.Field{Key: "url", Value: task.URL},
			logging.Field{Key: "attempt", Value: n},
			logging.Field{Key: "max_retries", Value: w.maxRetries},
			logging.Field{Key: "error", Value: err.Error()})
		if perr := w.publisher.PublishWithRetry(ctx, task.URL, n); perr != nil {
			// Committed anyway by the consumer; the record stays pending and
			// the next read re-schedules it.
			w.logger.Error("failed to re-enqueue url",
				logging.Field{Key: "url", Value: task.URL},
				logging.Field{Key: "error", Value: perr.Error()})
		}
		return
	}

	w.logger.Error("transient failure exhausted retries, routing to dlq",
		logging.Field{Key: "url", Value: task.URL},
		logging.Field{Key: "attempts", Value: n},
		logging.Field{Key: "error", Value: err.Error()})
	w.deadLetter(ctx, task.URL, n, err)
}

// process fetches the URL and upserts the completed record. The upsert is
// idempotent on canonical URL, which is what makes duplicate deliveries safe.
func (w *Worker) process(ctx context.Context, url string) error {
	data, err := w.collector.Fetch(ctx, url)
	if err != nil {
		return err
	}

	id, err := w.records.Upsert(ctx, url, store.Fields{
		Headers:    data.Headers,
		Cookies:    data.Cookies,
		PageSource: data.PageSource,
		PageTitle:  data.PageTitle,
		StatusCode: data.StatusCode,
	})
	if err != nil {
		// Store trouble is retryable from the worker's point of view.
		return err
	}

	w.logger.Info("collected and stored metadata",
		logging.Field{Key: "url", Value: url},
		logging.Field{Key: "id", Value: id},
		logging.Field{Key: "size", Value: len(data.PageSource)})
	return nil
}

// deadLetter publishes to the DLQ and, only when that lands, marks the
// record failed. A failed DLQ publish leaves the record pending so the next
// read re-drives collection.
func (w *Worker) deadLetter(ctx context.Context, url string, retryCount int, cause error) {
	if err := w.publisher.PublishToDLQ(ctx, url, retryCount, cause.Error()); err != nil {
		w.logger.Error("failed to publish to dlq",
			logging.Field{Key: "url", Value: url},
			logging.Field{Key: "error", Value: err.Error()})
		return
	}
	if err := w.records.MarkFailed(ctx, url, cause.Error()); err != nil {
		w.logger.Error("failed to mark record failed",
			logging.Field{Key: "url", Value: url},
			logging.Field{Key: "error", Value: err.Error()})
	}
}
