package links

import (
	"fmt"
	"net/url"
	"strings"

	coreerrors "github.com/lueurxax/gnews-link-resolver/internal/core/errors"
)

const (
	// DefaultRedirectHost is the host serving aggregator redirect links.
	DefaultRedirectHost = "news.google.com"

	articlesSegment = "articles"
)

// RedirectLink is a parsed aggregator redirect link such as
// https://news.google.com/rss/articles/CBMi...?oc=5.
type RedirectLink struct {
	Raw        string
	Host       string
	Segments   []string
	Query      url.Values
	Identifier string
}

// ParseRedirectLink parses raw and checks that it is served by redirectHost
// and carries an articles/<identifier> path.
func ParseRedirectLink(raw, redirectHost string) (*RedirectLink, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", coreerrors.ErrNotRedirectLink, err)
	}

	host := normalizeHost(u.Host)
	if host == "" || host != normalizeHost(redirectHost) {
		return nil, fmt.Errorf("%w: host %q", coreerrors.ErrNotRedirectLink, u.Host)
	}

	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(segments) < 2 || segments[len(segments)-2] != articlesSegment {
		return nil, fmt.Errorf("%w: no %s/ segment", coreerrors.ErrNotRedirectLink, articlesSegment)
	}

	identifier := segments[len(segments)-1]
	if identifier == "" {
		return nil, fmt.Errorf("%w: empty identifier", coreerrors.ErrNotRedirectLink)
	}

	return &RedirectLink{
		Raw:        raw,
		Host:       host,
		Segments:   segments,
		Query:      u.Query(),
		Identifier: identifier,
	}, nil
}

// IsRedirectLink reports whether raw is an aggregator redirect link for redirectHost.
func IsRedirectLink(raw, redirectHost string) bool {
	_, err := ParseRedirectLink(raw, redirectHost)
	return err == nil
}
