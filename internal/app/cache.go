package app

import (
	"context"
	"time"

	"github.com/lueurxax/gnews-link-resolver/internal/core/links"
	"github.com/lueurxax/gnews-link-resolver/internal/storage/filecache"
	db "github.com/lueurxax/gnews-link-resolver/internal/storage"
)

// CacheStats is the backend-independent view of the result cache.
type CacheStats struct {
	Backend    string        `json:"backend"`
	Location   string        `json:"location"`
	Entries    int64         `json:"entries"`
	MaxEntries int           `json:"max_entries"`
	TTL        time.Duration `json:"ttl"`
	Oldest     *time.Time    `json:"oldest,omitempty"`
	Newest     *time.Time    `json:"newest,omitempty"`
}

// resultCache is a LinkCache with the admin operations the CLI exposes.
type resultCache interface {
	links.LinkCache
	Clear(ctx context.Context) error
	Stats(ctx context.Context) (CacheStats, error)
	// Purge removes expired and excess entries and reports how many went.
	Purge(ctx context.Context) (int64, error)
}

type fileCache struct {
	*filecache.Store
}

func (c fileCache) Stats(ctx context.Context) (CacheStats, error) {
	st, err := c.Store.Stats(ctx)
	if err != nil {
		return CacheStats{}, err
	}

	return CacheStats{
		Backend:    filecache.Backend,
		Location:   st.Path,
		Entries:    int64(st.Entries),
		MaxEntries: st.MaxEntries,
		TTL:        st.TTL,
		Oldest:     timeOrNil(st.Oldest),
		Newest:     timeOrNil(st.Newest),
	}, nil
}

type postgresCache struct {
	*db.LinkCache
	maxEntries int
	ttl        time.Duration
}

func (c postgresCache) Stats(ctx context.Context) (CacheStats, error) {
	st, err := c.LinkCache.Stats(ctx)
	if err != nil {
		return CacheStats{}, err
	}

	return CacheStats{
		Backend:    db.CacheBackend,
		Location:   "gnews_link_cache",
		Entries:    st.Entries,
		MaxEntries: c.maxEntries,
		TTL:        c.ttl,
		Oldest:     timeOrNil(st.Oldest),
		Newest:     timeOrNil(st.Newest),
	}, nil
}

func timeOrNil(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}

	return &t
}
