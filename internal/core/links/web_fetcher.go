package links

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	coreerrors "github.com/lueurxax/gnews-link-resolver/internal/core/errors"
)

const (
	defaultFetchTimeout = 10 * time.Second
	defaultUserAgent    = "Mozilla/5.0 (compatible; gnews-link-resolver/1.0)"
	globalLimiterBurst  = 5
	maxBodySizeMB       = 2
	maxBodySizeBytes    = maxBodySizeMB * 1024 * 1024
	domainLimiterRate   = 1
	domainLimiterBurst  = 2
	formContentType     = "application/x-www-form-urlencoded;charset=UTF-8"
)

// WebFetcher is the rate-limited HTTP client shared by the network strategies.
type WebFetcher struct {
	client         *http.Client
	globalLimiter  *rate.Limiter
	domainLimiters map[string]*rate.Limiter
	mu             sync.RWMutex
	userAgent      string
}

func NewWebFetcher(rps float64, userAgent string) *WebFetcher {
	if rps <= 0 {
		rps = 2
	}

	if userAgent == "" {
		userAgent = defaultUserAgent
	}

	return &WebFetcher{
		client: &http.Client{
			CheckRedirect: func(_ *http.Request, via []*http.Request) error {
				if len(via) >= globalLimiterBurst {
					return coreerrors.ErrTooManyRedirects
				}

				return nil
			},
		},
		globalLimiter:  rate.NewLimiter(rate.Limit(rps), globalLimiterBurst),
		domainLimiters: make(map[string]*rate.Limiter),
		userAgent:      userAgent,
	}
}

// Get fetches rawURL and returns the body of a 200 response.
func (f *WebFetcher) Get(ctx context.Context, rawURL string, timeout time.Duration) ([]byte, error) {
	ctx, cancel := withTimeout(ctx, timeout)
	defer cancel()

	req, err := f.newRequest(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	return f.do(f.client, req)
}

// PostForm posts form to rawURL and returns the body of a 200 response.
func (f *WebFetcher) PostForm(ctx context.Context, rawURL string, form url.Values, referer string, timeout time.Duration) ([]byte, error) {
	ctx, cancel := withTimeout(ctx, timeout)
	defer cancel()

	req, err := f.newRequest(ctx, http.MethodPost, rawURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", formContentType)

	if referer != "" {
		req.Header.Set("Referer", referer)
	}

	return f.do(f.client, req)
}

// FinalURL issues a HEAD request following at most maxRedirects redirects and
// returns the URL of the last request made.
func (f *WebFetcher) FinalURL(ctx context.Context, rawURL string, maxRedirects int, timeout time.Duration) (string, error) {
	ctx, cancel := withTimeout(ctx, timeout)
	defer cancel()

	req, err := f.newRequest(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return "", err
	}

	client := *f.client
	client.CheckRedirect = func(_ *http.Request, via []*http.Request) error {
		if len(via) > maxRedirects {
			return coreerrors.ErrTooManyRedirects
		}

		return nil
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: execute request: %w", coreerrors.ErrNetwork, err)
	}
	defer resp.Body.Close()

	return resp.Request.URL.String(), nil
}

func (f *WebFetcher) newRequest(ctx context.Context, method, rawURL string, body io.Reader) (*http.Request, error) {
	if err := f.wait(ctx, rawURL); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	return req, nil
}

func (f *WebFetcher) do(client *http.Client, req *http.Request) ([]byte, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: execute request: %w", coreerrors.ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %d", coreerrors.ErrHTTPStatusNotOK, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySizeBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read response body: %w", coreerrors.ErrNetwork, err)
	}

	return body, nil
}

func (f *WebFetcher) wait(ctx context.Context, rawURL string) error {
	if err := f.globalLimiter.Wait(ctx); err != nil {
		return fmt.Errorf("global rate limiter wait: %w", err)
	}

	domainLimiter := f.getDomainLimiter(f.extractDomain(rawURL))
	if err := domainLimiter.Wait(ctx); err != nil {
		return fmt.Errorf("domain rate limiter wait: %w", err)
	}

	return nil
}

func (f *WebFetcher) getDomainLimiter(domain string) *rate.Limiter {
	f.mu.RLock()
	limiter, exists := f.domainLimiters[domain]
	f.mu.RUnlock()

	if exists {
		return limiter
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	// Double check
	if limiter, exists := f.domainLimiters[domain]; exists {
		return limiter
	}

	limiter = rate.NewLimiter(domainLimiterRate, domainLimiterBurst)
	f.domainLimiters[domain] = limiter

	return limiter
}

func (f *WebFetcher) extractDomain(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}

	return strings.ToLower(u.Host)
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}

	return context.WithTimeout(ctx, timeout)
}
