package linkextract

import (
	"reflect"
	"strings"
	"testing"
)

const redirectLink = "https://news.google.com/rss/articles/CBMiKGh0dHBzOi8vZXhhbXBsZS5jb20vbmV3cy8yMDI0L3N0b3J5Lmh0bWzSAQA?oc=5"

func TestExtractLinks(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []Link
	}{
		{
			name: "single web link",
			text: "Check this out: https://example.com/page",
			want: []Link{
				{URL: "https://example.com/page", Host: "example.com", Position: 16},
			},
		},
		{
			name: "redirect link keeps query",
			text: "via " + redirectLink,
			want: []Link{
				{URL: redirectLink, Host: "news.google.com", Position: 4},
			},
		},
		{
			name: "multiple links deduplicated",
			text: "A https://a.example/x B https://B.example/y C https://a.example/x",
			want: []Link{
				{URL: "https://a.example/x", Host: "a.example", Position: 2},
				{URL: "https://B.example/y", Host: "b.example", Position: 24},
			},
		},
		{
			name: "punctuation trimming",
			text: "Link: https://example.com/.",
			want: []Link{
				{URL: "https://example.com/", Host: "example.com", Position: 6},
			},
		},
		{
			name: "no links",
			text: "nothing here",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractLinks(tt.text); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ExtractLinks() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestReplaceLinks(t *testing.T) {
	text := "Read " + redirectLink + ", or https://example.org/keep."

	got := ReplaceLinks(text, func(link string) string {
		if strings.HasPrefix(link, "https://news.google.com/") {
			return "https://example.com/news/2024/story.html"
		}

		return link
	})

	want := "Read https://example.com/news/2024/story.html, or https://example.org/keep."
	if got != want {
		t.Errorf("ReplaceLinks() = %q, want %q", got, want)
	}
}
