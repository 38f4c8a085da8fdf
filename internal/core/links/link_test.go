package links

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	coreerrors "github.com/lueurxax/gnews-link-resolver/internal/core/errors"
)

func TestParseRedirectLink(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		wantID string
		wantOK bool
	}{
		{name: "rss article", raw: "https://news.google.com/rss/articles/CBMiAbc?oc=5", wantID: "CBMiAbc", wantOK: true},
		{name: "web article", raw: "https://news.google.com/articles/CBMiAbc", wantID: "CBMiAbc", wantOK: true},
		{name: "uppercase host", raw: "https://NEWS.Google.com/rss/articles/XYZ", wantID: "XYZ", wantOK: true},
		{name: "trailing slash", raw: "https://news.google.com/rss/articles/XYZ/", wantID: "XYZ", wantOK: true},
		{name: "other host", raw: "https://example.com/rss/articles/XYZ", wantOK: false},
		{name: "subdomain spoof", raw: "https://news.google.com.evil.example/rss/articles/XYZ", wantOK: false},
		{name: "read path", raw: "https://news.google.com/read/XYZ", wantOK: false},
		{name: "no identifier", raw: "https://news.google.com/rss/articles", wantOK: false},
		{name: "garbage", raw: "::not a url", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			link, err := ParseRedirectLink(tt.raw, DefaultRedirectHost)

			if !tt.wantOK {
				if !errors.Is(err, coreerrors.ErrNotRedirectLink) {
					t.Errorf("ParseRedirectLink(%q) err = %v, want ErrNotRedirectLink", tt.raw, err)
				}

				return
			}

			require.NoError(t, err)
			require.Equal(t, tt.wantID, link.Identifier)
			require.Equal(t, tt.raw, link.Raw)
			require.Equal(t, DefaultRedirectHost, link.Host)
		})
	}
}

func TestParseRedirectLinkQuery(t *testing.T) {
	link, err := ParseRedirectLink("https://news.google.com/rss/articles/ID?oc=5&hl=en-US", DefaultRedirectHost)
	require.NoError(t, err)
	require.Equal(t, "5", link.Query.Get("oc"))
	require.Equal(t, []string{"rss", "articles", "ID"}, link.Segments)
}

func TestHostPolicyValidate(t *testing.T) {
	policy := NewHostPolicy("news.google.com", []string{"google.com", "www.Gstatic.com"})

	tests := []struct {
		name    string
		url     string
		wantErr error
	}{
		{name: "publisher", url: "https://example.com/a", wantErr: nil},
		{name: "publisher with port", url: "http://example.com:8080/a", wantErr: nil},
		{name: "redirect host", url: "https://news.google.com/articles/x", wantErr: coreerrors.ErrAggregatorHost},
		{name: "redirect host uppercase", url: "https://NEWS.GOOGLE.COM/x", wantErr: coreerrors.ErrAggregatorHost},
		{name: "aggregator apex", url: "https://google.com/url?q=x", wantErr: coreerrors.ErrAggregatorHost},
		{name: "aggregator subdomain", url: "https://consent.google.com/ml", wantErr: coreerrors.ErrAggregatorHost},
		{name: "aggregator www", url: "https://www.google.com/", wantErr: coreerrors.ErrAggregatorHost},
		{name: "configured with www", url: "https://gstatic.com/img", wantErr: coreerrors.ErrAggregatorHost},
		{name: "lookalike domain", url: "https://notgoogle.com/a", wantErr: nil},
		{name: "relative", url: "/a/b", wantErr: coreerrors.ErrNotAbsoluteURL},
		{name: "no host", url: "https:///a", wantErr: coreerrors.ErrNotAbsoluteURL},
		{name: "mailto", url: "mailto:a@example.com", wantErr: coreerrors.ErrNotAbsoluteURL},
		{name: "padded", url: " https://example.com/a", wantErr: coreerrors.ErrNotAbsoluteURL},
		{name: "empty", url: "", wantErr: coreerrors.ErrNotAbsoluteURL},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := policy.Validate(tt.url)

			if tt.wantErr == nil {
				require.NoError(t, err)
				return
			}

			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate(%q) err = %v, want %v", tt.url, err, tt.wantErr)
			}

			require.ErrorIs(t, err, coreerrors.ErrValidation)
		})
	}
}

func TestIsAbsoluteURL(t *testing.T) {
	require.True(t, IsAbsoluteURL("https://example.com"))
	require.True(t, IsAbsoluteURL("http://example.com/a?b=c#d"))
	require.False(t, IsAbsoluteURL("example.com/a"))
	require.False(t, IsAbsoluteURL("javascript:alert(1)"))
	require.False(t, IsAbsoluteURL("AU_yqLxyz"))
}
