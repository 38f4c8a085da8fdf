package links

import (
	"context"
	"time"

	coreerrors "github.com/lueurxax/gnews-link-resolver/internal/core/errors"
)

// StrategyRedirect is the name of the redirect follower.
const StrategyRedirect = "redirect"

const (
	defaultMaxRedirects    = 3
	maxRedirectsCap        = 5
	defaultRedirectTimeout = 5 * time.Second
)

// RedirectFollower asks the aggregator where the link goes: a HEAD request
// with a small redirect budget and a short timeout.
type RedirectFollower struct {
	fetcher      *WebFetcher
	maxRedirects int
	timeout      time.Duration
}

func NewRedirectFollower(fetcher *WebFetcher, maxRedirects int, timeout time.Duration) *RedirectFollower {
	if maxRedirects <= 0 {
		maxRedirects = defaultMaxRedirects
	}

	if maxRedirects > maxRedirectsCap {
		maxRedirects = maxRedirectsCap
	}

	if timeout <= 0 || timeout > defaultRedirectTimeout {
		timeout = defaultRedirectTimeout
	}

	return &RedirectFollower{fetcher: fetcher, maxRedirects: maxRedirects, timeout: timeout}
}

func (f *RedirectFollower) Name() string { return StrategyRedirect }

func (f *RedirectFollower) Attempt(ctx context.Context, in Input) Candidate {
	u, err := f.Follow(ctx, in.Link.Raw)
	if err != nil {
		return unresolvable(err)
	}

	return resolvedCandidate(u)
}

// Follow returns the effective URL reached from link, or an error when the
// request fails or no redirect happened.
func (f *RedirectFollower) Follow(ctx context.Context, link string) (string, error) {
	final, err := f.fetcher.FinalURL(ctx, link, f.maxRedirects, f.timeout)
	if err != nil {
		return "", err
	}

	if final == "" || final == link {
		return "", coreerrors.ErrNoRedirect
	}

	return final, nil
}
