package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/lueurxax/gnews-link-resolver/internal/platform/observability"
)

// CacheBackend is the metrics label of the postgres cache.
const CacheBackend = "postgres"

const (
	sqlGetLink = `SELECT resolved_url, created_at FROM gnews_link_cache WHERE url = $1`

	sqlDeleteLinkIfUnchanged = `DELETE FROM gnews_link_cache WHERE url = $1 AND created_at = $2`

	sqlUpsertLink = `
INSERT INTO gnews_link_cache (url, resolved_url, created_at)
VALUES ($1, $2, $3)
ON CONFLICT (url) DO UPDATE SET resolved_url = EXCLUDED.resolved_url, created_at = EXCLUDED.created_at`

	sqlTrimLinks = `
DELETE FROM gnews_link_cache
WHERE url IN (
    SELECT url FROM gnews_link_cache
    ORDER BY created_at DESC, url DESC
    OFFSET $1
)`

	sqlPurgeExpiredLinks = `DELETE FROM gnews_link_cache WHERE created_at < $1`

	sqlClearLinks = `DELETE FROM gnews_link_cache`

	sqlLinkStats = `SELECT count(*), min(created_at), max(created_at) FROM gnews_link_cache`

	sqlLockLinkCache = `SELECT pg_advisory_xact_lock($1)`
)

// LinkCacheStats describes the table contents.
type LinkCacheStats struct {
	Entries int64
	Oldest  time.Time
	Newest  time.Time
}

// LinkCache is the result cache on PostgreSQL. Writers serialize on an
// advisory transaction lock so capacity enforcement is consistent across
// processes.
type LinkCache struct {
	db         *DB
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
}

func NewLinkCache(db *DB, ttl time.Duration, maxEntries int) *LinkCache {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}

	if maxEntries <= 0 {
		maxEntries = defaultCacheMaxEntries
	}

	return &LinkCache{db: db, ttl: ttl, maxEntries: maxEntries, now: time.Now}
}

// Get returns the resolved URL for url. Expired rows are deleted and
// reported as misses; lookup errors are logged and reported as misses.
func (c *LinkCache) Get(ctx context.Context, url string) (string, bool) {
	var (
		resolved  string
		createdAt time.Time
	)

	err := c.db.Pool.QueryRow(ctx, sqlGetLink, url).Scan(&resolved, &createdAt)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			c.db.Logger.Warn().Err(err).Str("url", url).Msg("link cache lookup failed")
		}

		observability.CacheLookups.WithLabelValues(CacheBackend, "miss").Inc()

		return "", false
	}

	if c.now().Sub(createdAt) > c.ttl {
		if _, err := c.db.Pool.Exec(ctx, sqlDeleteLinkIfUnchanged, url, createdAt); err != nil {
			c.db.Logger.Warn().Err(err).Str("url", url).Msg("failed to delete expired link")
		} else {
			observability.CacheEvictions.WithLabelValues(CacheBackend, "expired").Inc()
		}

		observability.CacheLookups.WithLabelValues(CacheBackend, "expired").Inc()

		return "", false
	}

	observability.CacheLookups.WithLabelValues(CacheBackend, "hit").Inc()

	return resolved, true
}

// Set upserts the entry with the current time and trims the table to the
// newest maxEntries rows in the same transaction.
func (c *LinkCache) Set(ctx context.Context, url, resolved string) error {
	return c.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, sqlUpsertLink, url, resolved, c.now().UTC()); err != nil {
			return fmt.Errorf("upsert link: %w", err)
		}

		tag, err := tx.Exec(ctx, sqlTrimLinks, c.maxEntries)
		if err != nil {
			return fmt.Errorf("trim link cache: %w", err)
		}

		if n := tag.RowsAffected(); n > 0 {
			observability.CacheEvictions.WithLabelValues(CacheBackend, "capacity").Add(float64(n))
		}

		return nil
	})
}

// Purge deletes expired rows and enforces the capacity, like the file
// backend does when it opens.
func (c *LinkCache) Purge(ctx context.Context) (int64, error) {
	var removed int64

	err := c.inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, sqlPurgeExpiredLinks, c.now().Add(-c.ttl).UTC())
		if err != nil {
			return fmt.Errorf("purge expired links: %w", err)
		}

		removed += tag.RowsAffected()

		tag, err = tx.Exec(ctx, sqlTrimLinks, c.maxEntries)
		if err != nil {
			return fmt.Errorf("trim link cache: %w", err)
		}

		removed += tag.RowsAffected()

		return nil
	})
	if err != nil {
		return 0, err
	}

	return removed, nil
}

// Clear deletes every row.
func (c *LinkCache) Clear(ctx context.Context) error {
	return c.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, sqlClearLinks); err != nil {
			return fmt.Errorf("clear link cache: %w", err)
		}

		return nil
	})
}

func (c *LinkCache) Stats(ctx context.Context) (LinkCacheStats, error) {
	var (
		st             LinkCacheStats
		oldest, newest *time.Time
	)

	if err := c.db.Pool.QueryRow(ctx, sqlLinkStats).Scan(&st.Entries, &oldest, &newest); err != nil {
		return LinkCacheStats{}, fmt.Errorf("link cache stats: %w", err)
	}

	if oldest != nil {
		st.Oldest = *oldest
	}

	if newest != nil {
		st.Newest = *newest
	}

	observability.CacheEntries.WithLabelValues(CacheBackend).Set(float64(st.Entries))

	return st, nil
}

func (c *LinkCache) inTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := c.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		//nolint:errcheck // rollback after commit is a no-op
		_ = tx.Rollback(ctx)
	}()

	if _, err := tx.Exec(ctx, sqlLockLinkCache, linkCacheLockID); err != nil {
		return fmt.Errorf("lock link cache: %w", err)
	}

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}
