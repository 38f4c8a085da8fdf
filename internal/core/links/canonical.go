package links

import (
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/net/idna"
	"golang.org/x/net/publicsuffix"

	coreerrors "github.com/lueurxax/gnews-link-resolver/internal/core/errors"
)

const wwwPrefix = "www."

// HostPolicy decides whether a candidate URL may be returned to the host:
// it must be absolute and must not point back to the aggregator.
type HostPolicy struct {
	redirectHost      string
	aggregatorDomains map[string]struct{}
}

func NewHostPolicy(redirectHost string, aggregatorDomains []string) *HostPolicy {
	domains := make(map[string]struct{}, len(aggregatorDomains))

	for _, d := range aggregatorDomains {
		if d = normalizeDomain(d); d != "" {
			domains[d] = struct{}{}
		}
	}

	if redirectHost == "" {
		redirectHost = DefaultRedirectHost
	}

	return &HostPolicy{
		redirectHost:      normalizeHost(redirectHost),
		aggregatorDomains: domains,
	}
}

// RedirectHost returns the normalized redirect host.
func (p *HostPolicy) RedirectHost() string {
	return p.redirectHost
}

// Validate returns nil when candidate is an absolute http(s) URL outside the
// aggregator's own domains.
func (p *HostPolicy) Validate(candidate string) error {
	u, err := parseAbsoluteURL(candidate)
	if err != nil {
		return err
	}

	host := normalizeHost(u.Host)
	if host == p.redirectHost {
		return fmt.Errorf("%w: %s", coreerrors.ErrAggregatorHost, host)
	}

	name := normalizeDomain(u.Hostname())
	if _, ok := p.aggregatorDomains[name]; ok {
		return fmt.Errorf("%w: %s", coreerrors.ErrAggregatorHost, name)
	}

	if registrable, err := publicsuffix.EffectiveTLDPlusOne(name); err == nil {
		if _, ok := p.aggregatorDomains[registrable]; ok {
			return fmt.Errorf("%w: %s", coreerrors.ErrAggregatorHost, registrable)
		}
	}

	return nil
}

// IsAbsoluteURL reports whether s is a syntactically valid absolute http(s) URL.
func IsAbsoluteURL(s string) bool {
	_, err := parseAbsoluteURL(s)
	return err == nil
}

func parseAbsoluteURL(s string) (*url.URL, error) {
	if s == "" || strings.TrimSpace(s) != s {
		return nil, fmt.Errorf("%w: %q", coreerrors.ErrNotAbsoluteURL, s)
	}

	u, err := url.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", coreerrors.ErrNotAbsoluteURL, err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: scheme %q", coreerrors.ErrNotAbsoluteURL, u.Scheme)
	}

	if u.Hostname() == "" {
		return nil, fmt.Errorf("%w: missing host", coreerrors.ErrNotAbsoluteURL)
	}

	return u, nil
}

// normalizeHost lowercases host (keeping any port) and converts IDN labels to ASCII.
func normalizeHost(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))

	if ascii, err := idna.Lookup.ToASCII(host); err == nil && ascii != "" {
		return ascii
	}

	return host
}

func normalizeDomain(host string) string {
	host = normalizeHost(host)
	host = strings.TrimPrefix(host, wwwPrefix)

	return strings.TrimSuffix(host, ".")
}
