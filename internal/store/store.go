// Package store is the MongoDB adapter for metadata records. Every record
// operation is a single round-trip using Mongo's conditional-write primitives;
// the one exception is the explicit one-shot read retry in Upsert after a
// duplicate-key race. The store is the serialization point for all writes to
// one canonical URL, which is what makes MarkPending safe across replicas.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/dkarali/urlmeta/internal/logging"
)

// CollectionName is the single collection all records live in.
const CollectionName = "metadata"

// Config holds the MongoDB connection settings.
type Config struct {
	URI      string
	Database string

	// Connection retry with exponential backoff at startup.
	MaxConnectAttempts int           // default 5
	ConnectBackoffBase time.Duration // default 1s, doubles each attempt
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.Database == "" {
		out.Database = "metadata_service"
	}
	if out.MaxConnectAttempts <= 0 {
		out.MaxConnectAttempts = 5
	}
	if out.ConnectBackoffBase <= 0 {
		out.ConnectBackoffBase = time.Second
	}
	return out
}

// OpError wraps a store failure with the operation that produced it.
type OpError struct {
	Op  string
	Err error
}

func (e *OpError) Error() string { return fmt.Sprintf("store: %s: %v", e.Op, e.Err) }
func (e *OpError) Unwrap() error { return e.Err }

// Store is the MongoDB-backed record store. Safe for concurrent use; the
// underlying client pools connections.
type Store struct {
	client *mongo.Client
	coll   *mongo.Collection
	logger logging.Logger
}

// Connect establishes the MongoDB connection with exponential-backoff retry
// and returns a ready Store. Each attempt is verified with a ping.
func Connect(ctx context.Context, cfg Config, logger logging.Logger) (*Store, error) {
	cfg = cfg.withDefaults()
	componentLogger := logger.With(logging.Field{Key: "component", Value: "store"})

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxConnectAttempts; attempt++ {
		componentLogger.Info("connecting to mongodb",
			logging.Field{Key: "attempt", Value: attempt},
			logging.Field{Key: "max_attempts", Value: cfg.MaxConnectAttempts})

		client, err := mongo.Connect(ctx, options.Client().
			ApplyURI(cfg.URI).
			SetServerSelectionTimeout(5*time.Second).
			SetMaxPoolSize(50).
			SetMinPoolSize(5))
		if err == nil {
			err = client.Ping(ctx, readpref.Primary())
			if err == nil {
				componentLogger.Info("mongodb connection established")
				return &Store{
					client: client,
					coll:   client.Database(cfg.Database).Collection(CollectionName),
					logger: componentLogger,
				}, nil
			}
			_ = client.Disconnect(ctx)
		}
		lastErr = err

		if attempt == cfg.MaxConnectAttempts {
			break
		}
		delay := cfg.ConnectBackoffBase << (attempt - 1)
		componentLogger.Warn("mongodb connection attempt failed",
			logging.Field{Key: "error", Value: err.Error()},
			logging.Field{Key: "retry_in", Value: delay.String()})
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("store: connect cancelled: %w", ctx.Err())
		case <-time.After(delay):
		}
	}

	return nil, fmt.Errorf("store: could not connect to mongodb after %d attempts: %w",
		cfg.MaxConnectAttempts, lastErr)
}

// EnsureIndexes creates the unique url index and the secondary status index.
// Idempotent; Mongo treats re-creation of an identical index as a no-op.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "url", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("idx_url_unique"),
		},
		{
			Keys:    bson.D{{Key: "status", Value: 1}},
			Options: options.Index().SetName("idx_status"),
		},
	})
	if err != nil {
		return &OpError{Op: "ensure_indexes", Err: err}
	}
	s.logger.Info("indexes ensured", logging.Field{Key: "collection", Value: CollectionName})
	return nil
}

// Close disconnects the client.
func (s *Store) Close(ctx context.Context) error {
	if err := s.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("store: disconnect: %w", err)
	}
	s.logger.Info("mongodb connection closed")
	return nil
}

// FindByURL looks up a record by its canonical URL. Returns (nil, nil) when
// no record exists.
func (s *Store) FindByURL(ctx context.Context, url string) (*MetadataRecord, error) {
	var rec MetadataRecord
	err := s.coll.FindOne(ctx, bson.M{"url": url}).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, &OpError{Op: "find_by_url", Err: err}
	}
	return &rec, nil
}

// Upsert atomically writes a completed record for url, preserving created_at
// on updates and setting it on first insertion. Returns the record id.
// A duplicate-key race on concurrent insert is resolved by reading the
// existing record exactly once.
func (s *Store) Upsert(ctx context.Context, url string, fields Fields) (string, error) {
	now := time.Now().UTC()
	res, err := s.coll.UpdateOne(ctx,
		bson.M{"url": url},
		bson.M{
			"$set": bson.M{
				"url":         url,
				"status":      StatusCompleted,
				"headers":     fields.Headers,
				"cookies":     fields.Cookies,
				"page_source": fields.PageSource,
				"page_title":  fields.PageTitle,
				"status_code": fields.StatusCode,
				"updated_at":  now,
			},
			"$setOnInsert": bson.M{"created_at": now},
		},
		options.Update().SetUpsert(true),
	)
	if mongo.IsDuplicateKeyError(err) {
		existing, ferr := s.FindByURL(ctx, url)
		if ferr == nil && existing != nil {
			return existing.ID.Hex(), nil
		}
		return "", &OpError{Op: "upsert", Err: fmt.Errorf("duplicate key conflict for %s", url)}
	}
	if err != nil {
		return "", &OpError{Op: "upsert", Err: err}
	}

	if id, ok := res.UpsertedID.(primitive.ObjectID); ok {
		s.logger.Debug("inserted metadata record",
			logging.Field{Key: "url", Value: url},
			logging.Field{Key: "id", Value: id.Hex()})
		return id.Hex(), nil
	}

	// Updated an existing document; fetch its id.
	existing, err := s.FindByURL(ctx, url)
	if err != nil {
		return "", err
	}
	if existing == nil {
		return "", &OpError{Op: "upsert", Err: fmt.Errorf("record for %s vanished after update", url)}
	}
	return existing.ID.Hex(), nil
}

// MarkPending atomically transitions url to pending, but only when no record
// exists or the existing record has failed. Returns true when the caller owns
// the transition and should enqueue a collection task. This conditional write
// is the cross-replica single-flight primitive: at most one caller gets true
// per pending transition, regardless of how many API replicas race.
func (s *Store) MarkPending(ctx context.Context, url string) (bool, error) {
	now := time.Now().UTC()
	res, err := s.coll.UpdateOne(ctx,
		bson.M{
			"url":    url,
			"status": bson.M{"$nin": bson.A{StatusCompleted, StatusPending}},
		},
		bson.M{
			"$set":         bson.M{"url": url, "status": StatusPending, "updated_at": now},
			"$setOnInsert": bson.M{"created_at": now},
		},
		options.Update().SetUpsert(true),
	)
	if mongo.IsDuplicateKeyError(err) {
		// Another request created the record between the filter evaluation
		// and our insert; it owns the pending transition.
		s.logger.Debug("mark_pending lost insert race", logging.Field{Key: "url", Value: url})
		return false, nil
	}
	if err != nil {
		return false, &OpError{Op: "mark_pending", Err: err}
	}

	if res.UpsertedCount > 0 || res.ModifiedCount > 0 {
		s.logger.Info("marked url pending", logging.Field{Key: "url", Value: url})
		return true, nil
	}
	return false, nil
}

// MarkFailed unconditionally records the failure reason for url. Silent when
// the record is absent; workers never create records through this path.
func (s *Store) MarkFailed(ctx context.Context, url string, reason string) error {
	_, err := s.coll.UpdateOne(ctx,
		bson.M{"url": url},
		bson.M{"$set": bson.M{
			"status":     StatusFailed,
			"error":      reason,
			"updated_at": time.Now().UTC(),
		}},
	)
	if err != nil {
		return &OpError{Op: "mark_failed", Err: err}
	}
	s.logger.Warn("marked url failed",
		logging.Field{Key: "url", Value: url},
		logging.Field{Key: "reason", Value: reason})
	return nil
}
