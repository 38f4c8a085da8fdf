package links

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	coreerrors "github.com/lueurxax/gnews-link-resolver/internal/core/errors"
	"github.com/lueurxax/gnews-link-resolver/internal/platform/config"
)

const (
	logKeyURL      = "url"
	logKeyStrategy = "strategy"
	logKeyResolved = "resolved"
)

// Resolver turns aggregator redirect links into publisher URLs. It consults
// the cache, then runs its strategies in order until one yields a URL that
// passes host validation.
type Resolver struct {
	hosts      *HostPolicy
	cache      LinkCache
	strategies []Strategy
	logger     *zerolog.Logger
}

// New builds a Resolver with the default chain: binary decoder, RPC
// resolver, redirect follower. The network strategies share one fetcher.
func New(cfg *config.Config, cache LinkCache, logger *zerolog.Logger) *Resolver {
	fetcher := NewWebFetcher(cfg.FetchRPS, cfg.UserAgent)

	rpc := NewRPCResolver(fetcher, RPCOptions{
		BaseURL:     cfg.BaseURL,
		Locale:      Locale{Language: cfg.Language, Country: cfg.Country, Edition: cfg.Edition},
		PageTimeout: cfg.PageTimeout,
		RPCTimeout:  cfg.RPCTimeout,
	}, logger)

	return NewWithStrategies(
		NewHostPolicy(cfg.RedirectHost, cfg.AggregatorDomains),
		cache,
		logger,
		BinaryDecoder{},
		rpc,
		NewRedirectFollower(fetcher, cfg.RedirectMax, cfg.RedirectTimeout),
	)
}

// NewWithStrategies builds a Resolver with an explicit strategy chain.
func NewWithStrategies(hosts *HostPolicy, cache LinkCache, logger *zerolog.Logger, strategies ...Strategy) *Resolver {
	if hosts == nil {
		hosts = NewHostPolicy(DefaultRedirectHost, nil)
	}

	if cache == nil {
		cache = noopCache{}
	}

	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	return &Resolver{
		hosts:      hosts,
		cache:      cache,
		strategies: strategies,
		logger:     logger,
	}
}

// IsEligible reports whether link is a redirect link this resolver handles.
func (r *Resolver) IsEligible(link string) bool {
	return IsRedirectLink(link, r.hosts.RedirectHost())
}

// Resolve returns the publisher URL for link. It never returns an error:
// any failure yields ("", false) and the caller keeps the original link.
func (r *Resolver) Resolve(ctx context.Context, link string) (string, bool) {
	start := time.Now()

	parsed, err := ParseRedirectLink(link, r.hosts.RedirectHost())
	if err != nil {
		RecordResolve(ResultIneligible, time.Since(start))
		return "", false
	}

	if cached, ok := r.cache.Get(ctx, link); ok {
		if err := r.validate(link, cached); err == nil {
			RecordResolve(ResultCached, time.Since(start))
			return cached, true
		}

		r.logger.Warn().Str(logKeyURL, link).Str(logKeyResolved, cached).Msg("ignoring invalid cached resolution")
	}

	resolved, ok := r.runChain(ctx, parsed)
	if !ok {
		RecordResolve(ResultFailed, time.Since(start))
		r.logger.Debug().Str(logKeyURL, link).Msg("link left unresolved")

		return "", false
	}

	if err := r.cache.Set(ctx, link, resolved); err != nil {
		r.logger.Warn().Err(err).Str(logKeyURL, link).Msg("failed to save resolution to cache")
	}

	RecordResolve(ResultResolved, time.Since(start))

	return resolved, true
}

// ResolveItemLink returns the resolved URL for link, or link itself.
func (r *Resolver) ResolveItemLink(ctx context.Context, link string) string {
	if resolved, ok := r.Resolve(ctx, link); ok {
		return resolved
	}

	return link
}

func (r *Resolver) runChain(ctx context.Context, link *RedirectLink) (string, bool) {
	var previous Candidate

	for _, s := range r.strategies {
		if ctx.Err() != nil {
			return "", false
		}

		name := s.Name()
		candidate := s.Attempt(ctx, Input{Link: link, Previous: previous})
		candidate.Strategy = name

		switch candidate.Kind {
		case Resolved:
			if err := r.validate(link.Raw, candidate.URL); err != nil {
				RecordStrategyAttempt(name, outcomeRejected)
				RecordStrategyError(name, err)
				r.logger.Debug().Err(err).Str(logKeyStrategy, name).Str(logKeyURL, link.Raw).Msg("strategy result rejected")

				candidate = Candidate{Kind: Unresolvable, Strategy: name, Err: err}

				break
			}

			RecordStrategyAttempt(name, outcomeResolved)
			r.logger.Debug().Str(logKeyStrategy, name).Str(logKeyURL, link.Raw).Str(logKeyResolved, candidate.URL).Msg("link resolved")

			return candidate.URL, true
		case NeedsRemoteResolution:
			RecordStrategyAttempt(name, outcomeRemote)
		default:
			r.recordFailure(link.Raw, candidate)
		}

		previous = candidate
	}

	return "", false
}

func (r *Resolver) recordFailure(link string, c Candidate) {
	if errors.Is(c.Err, ErrNotApplicable) {
		RecordStrategyAttempt(c.Strategy, outcomeSkipped)
		return
	}

	RecordStrategyAttempt(c.Strategy, outcomeFailed)
	RecordStrategyError(c.Strategy, c.Err)

	event := r.logger.Debug()
	if errors.Is(c.Err, coreerrors.ErrProtocolShape) {
		event = r.logger.Warn()
	}

	event.Err(c.Err).Str(logKeyStrategy, c.Strategy).Str(logKeyURL, link).Msg("strategy failed")
}

func (r *Resolver) validate(input, candidate string) error {
	if err := r.hosts.Validate(candidate); err != nil {
		return err
	}

	if candidate == input {
		return fmt.Errorf("%w: result equals input", coreerrors.ErrValidation)
	}

	return nil
}
