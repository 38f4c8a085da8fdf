// Package linkextract finds http(s) links in free text so each can be handed
// to the resolver.
package linkextract

import (
	"net/url"
	"regexp"
	"strings"
)

type Link struct {
	URL      string
	Host     string
	Position int
}

var urlRegex = regexp.MustCompile(`https?://[^\s<>"{}|\\^\x60\[\]]+`)

const trailingPunct = ".,;:!?)'"

// ExtractLinks returns the unique http(s) links in text in order of appearance.
func ExtractLinks(text string) []Link {
	matches := urlRegex.FindAllStringIndex(text, -1)

	var links []Link

	seen := make(map[string]bool)

	for _, match := range matches {
		rawURL := strings.TrimRight(text[match[0]:match[1]], trailingPunct)

		u, err := url.Parse(rawURL)
		if err != nil || u.Host == "" {
			continue
		}

		if seen[rawURL] {
			continue
		}

		seen[rawURL] = true

		links = append(links, Link{
			URL:      rawURL,
			Host:     strings.ToLower(u.Host),
			Position: match[0],
		})
	}

	return links
}

// ReplaceLinks rewrites every link in text for which replace returns a
// different value. Links are matched on the same boundaries as ExtractLinks.
func ReplaceLinks(text string, replace func(link string) string) string {
	matches := urlRegex.FindAllStringIndex(text, -1)
	if len(matches) == 0 {
		return text
	}

	var b strings.Builder

	last := 0

	for _, m := range matches {
		raw := strings.TrimRight(text[m[0]:m[1]], trailingPunct)
		end := m[0] + len(raw)

		b.WriteString(text[last:m[0]])

		if replaced := replace(raw); replaced != "" {
			b.WriteString(replaced)
		} else {
			b.WriteString(raw)
		}

		last = end
	}

	b.WriteString(text[last:])

	return b.String()
}
