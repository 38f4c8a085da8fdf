package links

import "context"

// LinkCache stores resolved URLs keyed by the original redirect link.
// Expired entries are reported as misses.
type LinkCache interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, value string) error
}

type noopCache struct{}

func (noopCache) Get(context.Context, string) (string, bool) { return "", false }

func (noopCache) Set(context.Context, string, string) error { return nil }
