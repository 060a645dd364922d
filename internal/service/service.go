// Package service orchestrates the two client-facing flows over the
// canonicalizer, store, collector and queue: synchronous collection on
// create, and cache-miss scheduling on read.
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/dkarali/urlmeta/internal/collector"
	"github.com/dkarali/urlmeta/internal/logging"
	"github.com/dkarali/urlmeta/internal/store"
	"github.com/dkarali/urlmeta/internal/urlkey"
)

// ErrInvalidURL wraps canonicalization failures so the HTTP surface can map
// them to a 400 without knowing about urlkey.
var ErrInvalidURL = errors.New("invalid url")

// Records is the slice of the store the service reads and writes.
type Records interface {
	FindByURL(ctx context.Context, url string) (*store.MetadataRecord, error)
	Upsert(ctx context.Context, url string, fields store.Fields) (string, error)
	MarkPending(ctx context.Context, url string) (bool, error)
}

// Collector fetches URL metadata with classified failures.
type Collector interface {
	Fetch(ctx context.Context, url string) (*collector.CollectedData, error)
}

// Enqueuer schedules a background collection.
type Enqueuer interface {
	Enqueue(ctx context.Context, url string) error
}

// Service is the metadata orchestrator. Stateless; safe for concurrent use.
type Service struct {
	records   Records
	collector Collector
	enqueuer  Enqueuer
	logger    logging.Logger
}

// New creates a Service.
func New(records Records, c Collector, enqueuer Enqueuer, logger logging.Logger) *Service {
	return &Service{
		records:   records,
		collector: c,
		enqueuer:  enqueuer,
		logger:    logger.With(logging.Field{Key: "component", Value: "service"}),
	}
}

// CreateMetadata is the synchronous create path: canonicalize, fetch, upsert
// completed, return the stored record. Collector errors propagate unchanged
// so the HTTP surface sees the classification.
func (s *Service) CreateMetadata(ctx context.Context, rawURL string) (*store.MetadataRecord, error) {
	url, err := urlkey.Canonicalize(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	s.logger.Info("creating metadata",
		logging.Field{Key: "url", Value: url},
		logging.Field{Key: "raw_url", Value: rawURL})

	data, err := s.collector.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}

	if _, err := s.records.Upsert(ctx, url, store.Fields{
		Headers:    data.Headers,
		Cookies:    data.Cookies,
		PageSource: data.PageSource,
		PageTitle:  data.PageTitle,
		StatusCode: data.StatusCode,
	}); err != nil {
		return nil, err
	}

	rec, err := s.records.FindByURL(ctx, url)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("service: record for %s vanished after upsert", url)
	}
	return rec, nil
}

// GetMetadata is the read path: canonicalize and look up. A completed record
// is a cache hit. Anything else attempts the conditional pending transition
// and, when this caller owns it, schedules a background collection. Enqueue
// failures are swallowed: the pending record persists and the next read
// retries the enqueue.
func (s *Service) GetMetadata(ctx context.Context, rawURL string) (*store.MetadataRecord, bool, error) {
	url, err := urlkey.Canonicalize(rawURL)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}

	rec, err := s.records.FindByURL(ctx, url)
	if err != nil {
		return nil, false, err
	}
	if rec != nil && rec.Status == store.StatusCompleted {
		s.logger.Info("cache hit", logging.Field{Key: "url", Value: url})
		return rec, true, nil
	}

	s.logger.Info("cache miss, scheduling background collection",
		logging.Field{Key: "url", Value: url})

	marked, err := s.records.MarkPending(ctx, url)
	if err != nil {
		return nil, false, err
	}
	if marked {
		if err := s.enqueuer.Enqueue(ctx, url); err != nil {
			s.logger.Error("failed to enqueue url, pending record will be retried on next read",
				logging.Field{Key: "url", Value: url},
				logging.Field{Key: "error", Value: err.Error()})
		}
	}
	return nil, false, nil
}
