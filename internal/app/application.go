// Package app wires the components together and owns their lifecycle: store
// first, then queue, then the consumer and HTTP server side by side, torn
// down in reverse.
package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dkarali/urlmeta/internal/collector"
	"github.com/dkarali/urlmeta/internal/logging"
	"github.com/dkarali/urlmeta/internal/queue"
	"github.com/dkarali/urlmeta/internal/server"
	"github.com/dkarali/urlmeta/internal/service"
	"github.com/dkarali/urlmeta/internal/store"
	"github.com/dkarali/urlmeta/internal/worker"
)

// Application holds the assembled components of one process. The API server
// and the queue worker run in the same process; they scale together by
// running more replicas.
type Application struct {
	cfg      Config
	store    *store.Store
	producer *queue.Producer
	consumer *queue.Consumer
	httpSrv  *http.Server
	logger   logging.Logger
}

// NewApplication connects to MongoDB and Kafka and wires every component.
// On error, anything already started is torn down.
func NewApplication(ctx context.Context, cfg Config, logger logging.Logger) (*Application, error) {
	st, err := store.Connect(ctx, cfg.Store, logger)
	if err != nil {
		return nil, err
	}
	if err := st.EnsureIndexes(ctx); err != nil {
		_ = st.Close(ctx)
		return nil, err
	}

	// Normalized once here: the worker's retry threshold must agree with the
	// producer and consumer settings.
	qcfg := cfg.Queue.WithDefaults()

	producer, err := queue.NewProducer(qcfg, logger)
	if err != nil {
		_ = st.Close(ctx)
		return nil, err
	}
	if err := producer.EnsureTopics(ctx); err != nil {
		producer.Close()
		_ = st.Close(ctx)
		return nil, err
	}

	coll := collector.New(cfg.Collector, logger, nil)
	svc := service.New(st, coll, producer, logger)

	w := worker.New(coll, st, producer, qcfg.MaxRetries, logger)
	consumer, err := queue.NewConsumer(qcfg, w, logger)
	if err != nil {
		producer.Close()
		_ = st.Close(ctx)
		return nil, err
	}

	srv := server.NewServer(cfg.Server, svc, logger)

	return &Application{
		cfg:      cfg,
		store:    st,
		producer: producer,
		consumer: consumer,
		httpSrv:  srv.HTTPServer(),
		logger:   logger.With(logging.Field{Key: "component", Value: "app"}),
	}, nil
}

// Run serves HTTP and consumes tasks until ctx is cancelled or either loop
// fails, then shuts everything down in reverse startup order.
func (a *Application) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.consumer.Run(gctx)
	})

	g.Go(func() error {
		a.logger.Info("http server listening",
			logging.Field{Key: "addr", Value: a.httpSrv.Addr})
		if err := a.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return a.httpSrv.Shutdown(shutdownCtx)
	})

	err := g.Wait()

	a.producer.Close()
	closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if cerr := a.store.Close(closeCtx); cerr != nil {
		a.logger.Warn("closing store", logging.Field{Key: "error", Value: cerr.Error()})
	}

	a.logger.Info("application stopped")
	return err
}
