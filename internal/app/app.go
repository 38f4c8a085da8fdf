// Package app wires the resolver to its cache backend and exposes the
// operational modes the CLI runs:
//
//   - Resolve: one-shot resolution of links or free text
//   - Feeds: one pass over the configured feed sources
//   - Serve: HTTP API plus a background feed loop
//   - Cache administration: stats, clear, migrate
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/lueurxax/gnews-link-resolver/internal/core/links"
	"github.com/lueurxax/gnews-link-resolver/internal/core/links/linkextract"
	"github.com/lueurxax/gnews-link-resolver/internal/feed"
	"github.com/lueurxax/gnews-link-resolver/internal/httpapi"
	"github.com/lueurxax/gnews-link-resolver/internal/platform/config"
	"github.com/lueurxax/gnews-link-resolver/internal/platform/observability"
	"github.com/lueurxax/gnews-link-resolver/internal/platform/worker"
	"github.com/lueurxax/gnews-link-resolver/internal/storage/filecache"
	db "github.com/lueurxax/gnews-link-resolver/internal/storage"
)

const (
	feedWorkerName     = "feeds"
	cachePurgeTask     = "cache_purge"
	cachePurgeInterval = time.Hour
	cachePurgeTimeout  = time.Minute
	logFieldBackend    = "backend"
)

// ErrUnknownSource is returned when a --source value matches no configured source.
var ErrUnknownSource = errors.New("unknown feed source")

// App holds the resolver and its cache backend.
type App struct {
	cfg      *config.Config
	database *db.DB
	cache    resultCache
	resolver *links.Resolver
	logger   *zerolog.Logger
}

// New opens the configured cache backend and builds the resolver. The
// postgres backend is migrated before use.
func New(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	a := &App{cfg: cfg, logger: logger}

	switch cfg.CacheBackend {
	case config.CacheBackendPostgres:
		database, err := db.New(ctx, cfg.PostgresDSN, logger)
		if err != nil {
			return nil, fmt.Errorf("connect cache database: %w", err)
		}

		if err := database.Migrate(ctx); err != nil {
			database.Close()
			return nil, fmt.Errorf("migrate cache database: %w", err)
		}

		a.database = database
		a.cache = postgresCache{
			LinkCache:  db.NewLinkCache(database, cfg.CacheTTL(), cfg.CacheMaxEntries),
			maxEntries: cfg.CacheMaxEntries,
			ttl:        cfg.CacheTTL(),
		}
	default:
		store, err := filecache.Open(cfg.CachePath, cfg.CacheTTL(), cfg.CacheMaxEntries, filecache.WithLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("open cache file: %w", err)
		}

		a.cache = fileCache{Store: store}
	}

	logger.Debug().Str(logFieldBackend, cfg.CacheBackend).Msg("result cache ready")

	a.resolver = links.New(cfg, a.cache, logger)

	return a, nil
}

// Close releases the database pool, if any.
func (a *App) Close() {
	if a.database != nil {
		a.database.Close()
	}
}

// Resolver returns the link resolver.
func (a *App) Resolver() *links.Resolver {
	return a.resolver
}

// Resolve returns the publisher URL for link, or ("", false).
func (a *App) Resolve(ctx context.Context, link string) (string, bool) {
	return a.resolver.Resolve(ctx, link)
}

// ResolveText replaces every redirect link found in text with its publisher
// URL. Unresolvable links are left as they are.
func (a *App) ResolveText(ctx context.Context, text string) string {
	return linkextract.ReplaceLinks(text, func(link string) string {
		if !a.resolver.IsEligible(link) {
			return link
		}

		return a.resolver.ResolveItemLink(ctx, link)
	})
}

// RunFeeds processes the configured sources once. An empty sourceID runs
// every eligible source; otherwise only the matching one.
func (a *App) RunFeeds(ctx context.Context, sourceID string, since time.Time) ([]*feed.Result, error) {
	sources, err := config.LoadSources(a.cfg.SourcesFile)
	if err != nil {
		return nil, err
	}

	processor := a.newProcessor()

	if sourceID == "" {
		return processor.ProcessAll(ctx, sources, since)
	}

	src, ok := sources.Find(sourceID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSource, sourceID)
	}

	res, err := processor.ProcessSource(ctx, src, since)
	if err != nil {
		return nil, err
	}

	return []*feed.Result{res}, nil
}

// Serve runs the HTTP server and, when a sources file is present, the feed
// loop. It blocks until ctx is canceled.
func (a *App) Serve(ctx context.Context) error {
	var ready observability.ReadinessChecker
	if a.database != nil {
		ready = a.database
	}

	server := observability.NewServer(a.cfg.HTTPPort, ready, httpapi.NewRouter(a.resolver, a.logger), a.logger)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 1)

	go func() {
		a.logger.Info().Int("port", a.cfg.HTTPPort).Msg("starting http server")

		if err := server.Start(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err

			cancel()
		}

		close(errCh)
	}()

	if err := a.runFeedLoop(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	if err, ok := <-errCh; ok && err != nil {
		return fmt.Errorf("http server: %w", err)
	}

	return nil
}

func (a *App) runFeedLoop(ctx context.Context) error {
	var sources *config.Sources

	if _, err := os.Stat(a.cfg.SourcesFile); err == nil {
		loaded, err := config.LoadSources(a.cfg.SourcesFile)
		if err != nil {
			return err
		}

		sources = loaded
	} else {
		a.logger.Info().Str("path", a.cfg.SourcesFile).Msg("no sources file, feed loop disabled")
	}

	processor := a.newProcessor()

	return worker.Loop(ctx, worker.Config{
		Name:         feedWorkerName,
		PollInterval: a.cfg.FeedInterval,
		Logger:       a.logger,
		Process: func(ctx context.Context) error {
			if sources == nil {
				return nil
			}

			results, err := processor.ProcessAll(ctx, sources, time.Time{})
			a.logger.Debug().Int("sources", len(results)).Msg("feed pass complete")

			return err
		},
		OnError: func(err error) bool {
			a.logger.Warn().Err(err).Msg("feed pass finished with errors")
			return true
		},
		PeriodicTasks: []worker.PeriodicTask{
			{
				Name:     cachePurgeTask,
				Interval: cachePurgeInterval,
				Run:      a.purgeCache,
			},
		},
	})
}

func (a *App) purgeCache(ctx context.Context) {
	var removed int64

	err := worker.RunWithTimeout(ctx, cachePurgeTimeout, func(ctx context.Context) error {
		n, err := a.cache.Purge(ctx)
		removed = n

		return err
	})
	if err != nil {
		a.logger.Warn().Err(err).Msg("cache purge failed")
		return
	}

	if removed > 0 {
		a.logger.Info().Int64("removed", removed).Msg("cache purged")
	}
}

func (a *App) newProcessor() *feed.Processor {
	return feed.NewProcessor(a.resolver, feed.Options{
		ItemLimit: a.cfg.FeedItemLimit,
		UserAgent: a.cfg.UserAgent,
	}, a.logger)
}

// ClearCache removes every cached resolution.
func (a *App) ClearCache(ctx context.Context) error {
	return a.cache.Clear(ctx)
}

// CacheStats reports the size and age range of the cache.
func (a *App) CacheStats(ctx context.Context) (CacheStats, error) {
	return a.cache.Stats(ctx)
}
