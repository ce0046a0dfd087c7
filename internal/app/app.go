// Package app wires configuration into the service's dependency graph.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/netflixcritic/checker/internal/api"
	"github.com/netflixcritic/checker/internal/blob"
	"github.com/netflixcritic/checker/internal/catalog"
	"github.com/netflixcritic/checker/internal/config"
	"github.com/netflixcritic/checker/internal/evaluator"
	"github.com/netflixcritic/checker/internal/fetch"
	"github.com/netflixcritic/checker/internal/metrics"
	"github.com/netflixcritic/checker/internal/progress"
	"github.com/netflixcritic/checker/internal/publisher"
	"github.com/netflixcritic/checker/internal/ratings"
	"github.com/netflixcritic/checker/internal/runner"
	"github.com/netflixcritic/checker/internal/serp"
	"github.com/netflixcritic/checker/internal/session"
	"github.com/netflixcritic/checker/internal/store"
)

// App contains the application's dependencies.
type App struct {
	cfg    config.Config
	logger *zap.Logger

	store     catalog.Store
	blobStore catalog.BlobStore
	pub       catalog.Publisher
	hub       *progress.Hub
	runner    *runner.Runner
	apiServer *api.Server

	gcsClient *storage.Client
	chromedp  *evaluator.Chromedp

	closeOnce sync.Once
	closeErr  error
}

// New builds the full dependency graph from configuration. Everything
// that can fail is checked here so runtime surprises are scarce.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	metrics.Init()

	a := &App{cfg: cfg, logger: logger}

	pgStore, err := store.NewPostgres(ctx, store.Config{
		DSN:      cfg.DB.DSN,
		MaxConns: cfg.DB.MaxConns,
		MinConns: cfg.DB.MinConns,
	})
	if err != nil {
		return nil, fmt.Errorf("build store: %w", err)
	}
	a.store = pgStore

	if err := a.buildBlobStore(ctx); err != nil {
		a.Close(ctx)
		return nil, err
	}
	if err := a.buildPublisher(ctx); err != nil {
		a.Close(ctx)
		return nil, err
	}

	pool, err := a.buildSessionPool()
	if err != nil {
		a.Close(ctx)
		return nil, err
	}

	eval, err := a.buildEvaluator()
	if err != nil {
		a.Close(ctx)
		return nil, err
	}

	fetcher := fetch.NewRetryingFetcher(
		fetch.NewFetcher(pool, cfg.Target.BaseURL, logger),
		pool,
		fetch.RetryPolicy{
			MaxAttempts: cfg.Retry.MaxAttempts,
			Base:        cfg.RetryBase(),
			Max:         cfg.RetryMax(),
			Jitter:      cfg.RetryJitter(),
		},
		logger,
	)

	searcher := serp.NewClient(serp.Config{
		Endpoint:     cfg.Serp.Endpoint,
		APIKey:       cfg.Serp.APIKey,
		PollAttempts: cfg.Serp.PollAttempts,
		PollInterval: time.Duration(cfg.Serp.PollIntervalMs) * time.Millisecond,
		Timeout:      time.Duration(cfg.Serp.TimeoutSec) * time.Second,
	}, logger)

	a.hub = progress.NewHub(progress.Config{Logger: logger}, progress.NewLogSink(logger))

	clock := catalog.SystemClock{}
	a.runner = runner.New(runner.Config{
		Concurrency:     cfg.Runner.Concurrency,
		Country:         cfg.Target.Country,
		FreshnessWindow: cfg.FreshnessWindow(),
	}, runner.Deps{
		Store:     a.store,
		Blob:      a.blobStore,
		Publisher: a.pub,
		Fetcher:   fetcher,
		Evaluator: eval,
		Searcher:  searcher,
		Extractor: ratings.NewExtractor(clock, logger),
		Emitter:   a.hub,
		Clock:     clock,
		Logger:    logger,
	})

	a.apiServer = api.NewServer(a.runner, a.hub, logger)
	return a, nil
}

// Runner exposes the batch pipelines for the CLI commands.
func (a *App) Runner() *runner.Runner {
	return a.runner
}

func (a *App) buildBlobStore(ctx context.Context) error {
	switch a.cfg.Blob.Provider {
	case "local":
		bs, err := blob.NewLocal(a.cfg.Blob.BaseDir)
		if err != nil {
			return fmt.Errorf("build local blob store: %w", err)
		}
		a.blobStore = bs
	case "gcs":
		client, err := storage.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("create storage client: %w", err)
		}
		a.gcsClient = client
		bs, err := blob.NewGCS(client, a.cfg.Blob.GCSBucket)
		if err != nil {
			return fmt.Errorf("build gcs blob store: %w", err)
		}
		a.blobStore = bs
	case "memory":
		a.blobStore = blob.NewMemory()
	default:
		return fmt.Errorf("unknown blob provider %q", a.cfg.Blob.Provider)
	}
	return nil
}

func (a *App) buildPublisher(ctx context.Context) error {
	switch a.cfg.Publisher.Provider {
	case "pubsub":
		p, err := publisher.NewPubSub(ctx, a.cfg.Publisher.ProjectID, a.cfg.Publisher.TopicID)
		if err != nil {
			return fmt.Errorf("build pubsub publisher: %w", err)
		}
		a.pub = p
	case "memory":
		a.pub = publisher.NewMemory()
	case "none":
		a.pub = nil
	default:
		return fmt.Errorf("unknown publisher provider %q", a.cfg.Publisher.Provider)
	}
	return nil
}

func (a *App) buildSessionPool() (*session.Pool, error) {
	unauthenticated := http.Header{}
	authenticated := http.Header{}
	if ua := a.cfg.Session.UserAgent; ua != "" {
		unauthenticated.Set("User-Agent", ua)
		authenticated.Set("User-Agent", ua)
	}
	if cookie := a.cfg.Session.Cookie; cookie != "" {
		authenticated.Set("Cookie", cookie)
	}

	var headerSource session.HeaderSource
	if a.cfg.Session.HeadersAPIKey != "" {
		headerSource = &session.BrowserHeaderClient{
			Endpoint: a.cfg.Session.HeadersEndpoint,
			APIKey:   a.cfg.Session.HeadersAPIKey,
		}
	}

	pool, err := session.NewPool(session.PoolConfig{
		Tiers: []session.TierConfig{
			{
				Name:        catalog.TierUnauthenticated,
				RPS:         a.cfg.Session.RPS,
				MaxInFlight: a.cfg.Session.MaxInFlight,
				Headers:     unauthenticated,
			},
			{
				Name:        catalog.TierAuthenticated,
				RPS:         a.cfg.Session.RPS,
				MaxInFlight: a.cfg.Session.MaxInFlight,
				Headers:     authenticated,
			},
		},
		ConnectTimeout: time.Duration(a.cfg.Session.ConnectTimeoutSec) * time.Second,
		RequestTimeout: time.Duration(a.cfg.Session.RequestTimeoutSec) * time.Second,
		HeaderSource:   headerSource,
	}, a.logger)
	if err != nil {
		return nil, fmt.Errorf("build session pool: %w", err)
	}
	return pool, nil
}

func (a *App) buildEvaluator() (catalog.Evaluator, error) {
	timeout := time.Duration(a.cfg.Evaluator.TimeoutSec) * time.Second
	switch a.cfg.Evaluator.Provider {
	case "chromedp":
		e, err := evaluator.NewChromedp(evaluator.ChromedpConfig{Timeout: timeout}, a.logger)
		if err != nil {
			return nil, fmt.Errorf("build chromedp evaluator: %w", err)
		}
		a.chromedp = e
		return e, nil
	case "node":
		return evaluator.NewNode(a.cfg.Evaluator.Command, timeout, a.logger), nil
	default:
		return nil, fmt.Errorf("unknown evaluator provider %q", a.cfg.Evaluator.Provider)
	}
}

// Run starts the ops server and blocks until the context is canceled or
// a termination signal arrives.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		a.logger.Info("ops server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("ops server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	return a.Close(shutdownCtx)
}

// Close releases everything the graph holds, tolerating partially built
// graphs. Both Run and the CLI teardown call it; only the first call
// releases anything.
func (a *App) Close(ctx context.Context) error {
	a.closeOnce.Do(func() {
		var errs []error
		if a.hub != nil {
			if err := a.hub.Close(ctx); err != nil {
				errs = append(errs, err)
			}
		}
		if a.pub != nil {
			if err := a.pub.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		if a.chromedp != nil {
			a.chromedp.Close()
		}
		if a.gcsClient != nil {
			if err := a.gcsClient.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		if a.store != nil {
			a.store.Close()
		}
		a.logger.Info("shutdown complete")
		a.closeErr = errors.Join(errs...)
	})
	return a.closeErr
}
