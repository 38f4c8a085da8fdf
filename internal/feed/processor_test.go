package feed

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lueurxax/gnews-link-resolver/internal/core/links"
	"github.com/lueurxax/gnews-link-resolver/internal/platform/config"
)

const (
	// Decodes offline to https://example.com/news/2024/story.html.
	legacyLink  = "https://news.google.com/rss/articles/CBMiKGh0dHBzOi8vZXhhbXBsZS5jb20vbmV3cy8yMDI0L3N0b3J5Lmh0bWzSAQA?oc=5"
	legacyURL   = "https://example.com/news/2024/story.html"
	opaqueLink  = "https://news.google.com/rss/articles/CBMiDUFVX3lxTE5iQ3ZuT3fSAQA?oc=5"
	directLink  = "https://publisher.example/direct"
	rssTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel><title>Top stories</title>
%s
</channel></rss>`
)

func rssItem(title, link string, published time.Time) string {
	return fmt.Sprintf("<item><title>%s</title><link>%s</link><guid>%s</guid><pubDate>%s</pubDate></item>",
		title, strings.ReplaceAll(link, "&", "&amp;"), title, published.Format(time.RFC1123Z))
}

type stubResolver struct {
	resolved map[string]string
	calls    []string
}

func (s *stubResolver) IsEligible(link string) bool {
	return strings.HasPrefix(link, "https://news.google.com/")
}

func (s *stubResolver) Resolve(_ context.Context, link string) (string, bool) {
	s.calls = append(s.calls, link)
	v, ok := s.resolved[link]

	return v, ok
}

func newFeedServer(t *testing.T, items ...string) string {
	t.Helper()

	body := fmt.Sprintf(rssTemplate, strings.Join(items, "\n"))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)

	return srv.URL
}

func TestProcessSourceRewritesEligibleLinks(t *testing.T) {
	now := time.Now()
	feedURL := newFeedServer(t,
		rssItem("resolved", legacyLink, now),
		rssItem("unresolved", opaqueLink, now),
		rssItem("direct", directLink, now),
	)

	resolver := &stubResolver{resolved: map[string]string{legacyLink: legacyURL}}
	p := NewProcessor(resolver, Options{}, nil)

	res, err := p.ProcessSource(context.Background(), config.Source{ID: "gn", URL: feedURL, Clean: true}, time.Time{})
	require.NoError(t, err)

	require.Equal(t, "Top stories", res.FeedTitle)
	require.NotEmpty(t, res.RunID)
	require.Len(t, res.Items, 3)
	require.Equal(t, 1, res.Resolved)
	require.Equal(t, 1, res.Unresolved)
	require.Equal(t, 1, res.Skipped)

	require.Equal(t, legacyURL, res.Items[0].Link)
	require.Equal(t, legacyLink, res.Items[0].OriginalLink)
	require.True(t, res.Items[0].Resolved)

	require.Equal(t, opaqueLink, res.Items[1].Link, "unresolved items keep the original link")
	require.False(t, res.Items[1].Resolved)

	require.Equal(t, directLink, res.Items[2].Link)
	require.Equal(t, []string{legacyLink, opaqueLink}, resolver.calls, "only redirect links are resolved")
}

func TestProcessSourceNotCleanLeavesLinks(t *testing.T) {
	feedURL := newFeedServer(t, rssItem("a", legacyLink, time.Now()))

	resolver := &stubResolver{resolved: map[string]string{legacyLink: legacyURL}}
	p := NewProcessor(resolver, Options{}, nil)

	res, err := p.ProcessSource(context.Background(), config.Source{ID: "gn", URL: feedURL, Clean: false}, time.Time{})
	require.NoError(t, err)
	require.Equal(t, legacyLink, res.Items[0].Link)
	require.Empty(t, resolver.calls)
}

func TestProcessSourceSinceAndLimit(t *testing.T) {
	now := time.Now()
	feedURL := newFeedServer(t,
		rssItem("old", legacyLink, now.Add(-72*time.Hour)),
		rssItem("new-1", directLink+"/1", now),
		rssItem("new-2", directLink+"/2", now),
		rssItem("new-3", directLink+"/3", now),
	)

	p := NewProcessor(&stubResolver{}, Options{ItemLimit: 2}, nil)

	res, err := p.ProcessSource(context.Background(), config.Source{ID: "gn", URL: feedURL, Clean: true}, now.Add(-24*time.Hour))
	require.NoError(t, err)
	require.Len(t, res.Items, 2)
	require.Equal(t, "new-1", res.Items[0].Title)
	require.Equal(t, "new-2", res.Items[1].Title)
}

func TestProcessAllOnlyEligibleSourcesAndJoinsErrors(t *testing.T) {
	feedURL := newFeedServer(t, rssItem("a", legacyLink, time.Now()))

	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(broken.Close)

	sources := &config.Sources{Sources: []config.Source{
		{ID: "ok", URL: feedURL, Clean: true},
		{ID: "off", URL: feedURL, Clean: false},
		{ID: "broken", URL: broken.URL, Clean: true},
	}}

	resolver := &stubResolver{resolved: map[string]string{legacyLink: legacyURL}}

	results, err := NewProcessor(resolver, Options{}, nil).ProcessAll(context.Background(), sources, time.Time{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "broken")
	require.Len(t, results, 1)
	require.Equal(t, "ok", results[0].SourceID)
	require.Equal(t, legacyURL, results[0].Items[0].Link)
}

func TestProcessReaderWithEngine(t *testing.T) {
	r := links.NewWithStrategies(links.NewHostPolicy(links.DefaultRedirectHost, []string{"google.com"}), nil, nil, links.BinaryDecoder{})
	doc := fmt.Sprintf(rssTemplate, rssItem("story", legacyLink, time.Now()))

	res, err := NewProcessor(r, Options{}, nil).ProcessReader(context.Background(), config.Source{ID: "gn", Clean: true}, strings.NewReader(doc), time.Time{})
	require.NoError(t, err)
	require.Equal(t, legacyURL, res.Items[0].Link)
}

func TestProcessReaderMalformed(t *testing.T) {
	_, err := NewProcessor(&stubResolver{}, Options{}, nil).ProcessReader(context.Background(), config.Source{ID: "gn"}, strings.NewReader("not a feed"), time.Time{})
	require.Error(t, err)
}
