package links

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"

	coreerrors "github.com/lueurxax/gnews-link-resolver/internal/core/errors"
)

// StrategyRPC is the name of the batchexecute resolver.
const StrategyRPC = "rpc"

const (
	batchExecutePath   = "/_/DotsSplashUi/data/batchexecute"
	signatureAttr      = "data-n-a-sg"
	timestampAttr      = "data-n-a-ts"
	defaultPageTimeout = 10 * time.Second
	defaultRPCTimeout  = 15 * time.Second
)

// articlePagePaths are tried in order when looking for the decoding params.
var articlePagePaths = []string{"/articles/", "/rss/articles/"}

// RPCResolver resolves opaque-token identifiers in two round-trips: the
// article page yields a signature and timestamp, then the batchexecute RPC
// returns the original URL.
type RPCResolver struct {
	fetcher     *WebFetcher
	baseURL     string
	locale      Locale
	pageTimeout time.Duration
	rpcTimeout  time.Duration
	logger      *zerolog.Logger
}

// RPCOptions configures an RPCResolver. Zero values take defaults.
type RPCOptions struct {
	BaseURL     string
	Locale      Locale
	PageTimeout time.Duration
	RPCTimeout  time.Duration
}

func NewRPCResolver(fetcher *WebFetcher, opts RPCOptions, logger *zerolog.Logger) *RPCResolver {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://" + DefaultRedirectHost
	}

	if opts.PageTimeout <= 0 {
		opts.PageTimeout = defaultPageTimeout
	}

	if opts.RPCTimeout <= 0 {
		opts.RPCTimeout = defaultRPCTimeout
	}

	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	return &RPCResolver{
		fetcher:     fetcher,
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		locale:      opts.Locale,
		pageTimeout: opts.PageTimeout,
		rpcTimeout:  opts.RPCTimeout,
		logger:      logger,
	}
}

func (r *RPCResolver) Name() string { return StrategyRPC }

// Attempt only acts on identifiers the binary decoder marked as opaque tokens.
func (r *RPCResolver) Attempt(ctx context.Context, in Input) Candidate {
	if in.Previous.Kind != NeedsRemoteResolution {
		return unresolvable(ErrNotApplicable)
	}

	u, err := r.ResolveIdentifier(ctx, in.Previous.Identifier)
	if err != nil {
		return unresolvable(err)
	}

	return resolvedCandidate(u)
}

// ResolveIdentifier runs both phases for identifier. It never retries.
func (r *RPCResolver) ResolveIdentifier(ctx context.Context, identifier string) (string, error) {
	params, err := r.FetchDecodingParams(ctx, identifier)
	if err != nil {
		return "", err
	}

	return r.batchExecute(ctx, identifier, params)
}

// FetchDecodingParams loads the article page and reads the signature and
// timestamp attributes.
func (r *RPCResolver) FetchDecodingParams(ctx context.Context, identifier string) (DecodingParams, error) {
	var lastErr error

	for _, p := range articlePagePaths {
		pageURL := r.baseURL + p + url.PathEscape(identifier)

		body, err := r.fetcher.Get(ctx, pageURL, r.pageTimeout)
		if err != nil {
			lastErr = err
			continue
		}

		params, err := ParseDecodingParams(body)
		if err != nil {
			r.logger.Debug().Err(err).Str(logKeyURL, pageURL).Msg("article page carried no decoding params")
			lastErr = err

			continue
		}

		return params, nil
	}

	return DecodingParams{}, lastErr
}

// ParseDecodingParams finds the first element carrying both a non-empty
// signature and timestamp attribute.
func ParseDecodingParams(page []byte) (DecodingParams, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return DecodingParams{}, fmt.Errorf("%w: parse article page: %w", coreerrors.ErrParse, err)
	}

	var (
		params DecodingParams
		found  bool
		tsErr  error
	)

	doc.Find("[" + signatureAttr + "][" + timestampAttr + "]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		sig := strings.TrimSpace(s.AttrOr(signatureAttr, ""))
		ts := strings.TrimSpace(s.AttrOr(timestampAttr, ""))

		if sig == "" || ts == "" {
			return true
		}

		n, err := strconv.ParseInt(ts, 10, 64)
		if err != nil {
			tsErr = err
			return true
		}

		params = DecodingParams{Signature: sig, Timestamp: n}
		found = true

		return false
	})

	if !found {
		if tsErr != nil {
			return DecodingParams{}, fmt.Errorf("%w: timestamp: %w", coreerrors.ErrMissingParams, tsErr)
		}

		return DecodingParams{}, coreerrors.ErrMissingParams
	}

	return params, nil
}

func (r *RPCResolver) batchExecute(ctx context.Context, identifier string, params DecodingParams) (string, error) {
	envelope, err := BuildEnvelope(identifier, params, r.locale)
	if err != nil {
		return "", fmt.Errorf("%w: %w", coreerrors.ErrParse, err)
	}

	endpoint := r.baseURL + batchExecutePath + "?rpcids=" + batchExecuteRPCID
	form := url.Values{"f.req": {envelope}}

	body, err := r.fetcher.PostForm(ctx, endpoint, form, r.baseURL+"/", r.rpcTimeout)
	if err != nil {
		return "", err
	}

	u, err := ParseBatchResponse(body)
	if err != nil {
		return "", err
	}

	return u, nil
}
