// Package feed is the host pipeline: it parses upstream feeds and replaces
// aggregator redirect links on items of eligible sources with the publisher
// URLs. Items whose link cannot be resolved keep their original link.
package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/mmcdole/gofeed"
	"github.com/rs/zerolog"

	"github.com/lueurxax/gnews-link-resolver/internal/platform/config"
	"github.com/lueurxax/gnews-link-resolver/internal/platform/observability"
)

const (
	defaultItemLimit = 50
	defaultTimeout   = 30 * time.Second

	outcomeResolved   = "resolved"
	outcomeUnresolved = "unresolved"
	outcomeSkipped    = "skipped"
	outcomeOld        = "too_old"

	logKeySource = "source"
	logKeyRunID  = "run_id"
)

// LinkResolver is the part of the resolver the processor uses.
type LinkResolver interface {
	IsEligible(link string) bool
	Resolve(ctx context.Context, link string) (string, bool)
}

// Item is one feed item after processing.
type Item struct {
	Title        string     `json:"title"`
	Link         string     `json:"link"`
	OriginalLink string     `json:"original_link,omitempty"`
	GUID         string     `json:"guid,omitempty"`
	Published    *time.Time `json:"published,omitempty"`
	Resolved     bool       `json:"resolved"`
}

// Result summarizes one source run.
type Result struct {
	RunID      string    `json:"run_id"`
	SourceID   string    `json:"source_id"`
	SourceName string    `json:"source_name,omitempty"`
	FeedTitle  string    `json:"feed_title,omitempty"`
	Items      []Item    `json:"items"`
	Resolved   int       `json:"resolved"`
	Unresolved int       `json:"unresolved"`
	Skipped    int       `json:"skipped"`
	StartedAt  time.Time `json:"started_at"`
	Duration   string    `json:"duration"`
}

type Options struct {
	ItemLimit int
	Timeout   time.Duration
	UserAgent string
}

type Processor struct {
	resolver  LinkResolver
	itemLimit int
	timeout   time.Duration
	userAgent string
	logger    *zerolog.Logger
}

func NewProcessor(resolver LinkResolver, opts Options, logger *zerolog.Logger) *Processor {
	if opts.ItemLimit <= 0 {
		opts.ItemLimit = defaultItemLimit
	}

	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}

	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	return &Processor{
		resolver:  resolver,
		itemLimit: opts.ItemLimit,
		timeout:   opts.Timeout,
		userAgent: opts.UserAgent,
		logger:    logger,
	}
}

// ProcessAll processes every eligible source. A failing source does not stop
// the others; their errors are joined.
func (p *Processor) ProcessAll(ctx context.Context, sources *config.Sources, since time.Time) ([]*Result, error) {
	var (
		results []*Result
		errs    []error
	)

	for _, src := range sources.Eligible() {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}

		res, err := p.ProcessSource(ctx, src, since)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		results = append(results, res)
	}

	return results, errors.Join(errs...)
}

// ProcessSource fetches and processes one source.
func (p *Processor) ProcessSource(ctx context.Context, src config.Source, since time.Time) (*Result, error) {
	parser := gofeed.NewParser()
	if p.userAgent != "" {
		parser.UserAgent = p.userAgent
	}

	fetchCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	parsed, err := parser.ParseURLWithContext(src.URL, fetchCtx)
	if err != nil {
		observability.FeedFetchErrors.WithLabelValues(src.ID).Inc()
		return nil, fmt.Errorf("fetch feed %s: %w", src.ID, err)
	}

	return p.ProcessFeed(ctx, src, parsed, since), nil
}

// ProcessReader parses a feed document from r and processes it as src.
func (p *Processor) ProcessReader(ctx context.Context, src config.Source, r io.Reader, since time.Time) (*Result, error) {
	parsed, err := gofeed.NewParser().Parse(r)
	if err != nil {
		observability.FeedFetchErrors.WithLabelValues(src.ID).Inc()
		return nil, fmt.Errorf("parse feed %s: %w", src.ID, err)
	}

	return p.ProcessFeed(ctx, src, parsed, since), nil
}

// ProcessFeed rewrites the item links of an already parsed feed. Links are
// only resolved when src is marked clean.
func (p *Processor) ProcessFeed(ctx context.Context, src config.Source, parsed *gofeed.Feed, since time.Time) *Result {
	res := &Result{
		RunID:      uuid.NewString(),
		SourceID:   src.ID,
		SourceName: src.Name,
		FeedTitle:  parsed.Title,
		StartedAt:  time.Now(),
	}

	logger := p.logger.With().Str(logKeyRunID, res.RunID).Str(logKeySource, src.ID).Logger()

	for _, it := range parsed.Items {
		if len(res.Items) >= p.itemLimit {
			break
		}

		published := publishedAt(it)
		if !since.IsZero() && published != nil && published.Before(since) {
			observability.FeedItemsProcessed.WithLabelValues(src.ID, outcomeOld).Inc()
			continue
		}

		item := Item{Title: it.Title, Link: it.Link, GUID: it.GUID, Published: published}

		switch {
		case !src.Clean || !p.resolver.IsEligible(it.Link):
			res.Skipped++
			observability.FeedItemsProcessed.WithLabelValues(src.ID, outcomeSkipped).Inc()
		default:
			if resolved, ok := p.resolver.Resolve(ctx, it.Link); ok {
				item.OriginalLink = it.Link
				item.Link = resolved
				item.Resolved = true
				res.Resolved++
				observability.FeedItemsProcessed.WithLabelValues(src.ID, outcomeResolved).Inc()
			} else {
				res.Unresolved++
				observability.FeedItemsProcessed.WithLabelValues(src.ID, outcomeUnresolved).Inc()
			}
		}

		res.Items = append(res.Items, item)
	}

	res.Duration = time.Since(res.StartedAt).Round(time.Millisecond).String()

	logger.Info().
		Int("items", len(res.Items)).
		Int("resolved", res.Resolved).
		Int("unresolved", res.Unresolved).
		Int("skipped", res.Skipped).
		Msg("feed processed")

	return res
}

func publishedAt(it *gofeed.Item) *time.Time {
	if it.PublishedParsed != nil {
		return it.PublishedParsed
	}

	return it.UpdatedParsed
}
