package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig indicates a configuration value that cannot be used.
var ErrInvalidConfig = errors.New("invalid config")

// Source is an upstream feed. Only sources with Clean set have their item
// links resolved.
type Source struct {
	ID    string `yaml:"id"`
	Name  string `yaml:"name"`
	URL   string `yaml:"url"`
	Clean bool   `yaml:"clean"`
}

// Sources is the eligibility list read from the sources file.
type Sources struct {
	Sources []Source `yaml:"sources"`
}

// LoadSources reads the sources file. A missing file yields an empty list.
func LoadSources(path string) (*Sources, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Sources{}, nil
		}

		return nil, fmt.Errorf("read sources file: %w", err)
	}

	return ParseSources(data)
}

// ParseSources decodes and validates a sources document.
func ParseSources(data []byte) (*Sources, error) {
	var s Sources
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse sources file: %w", err)
	}

	seen := make(map[string]struct{}, len(s.Sources))

	for i := range s.Sources {
		src := &s.Sources[i]
		src.URL = strings.TrimSpace(src.URL)

		if src.URL == "" {
			return nil, fmt.Errorf("%w: source %d has no url", ErrInvalidConfig, i)
		}

		if src.ID == "" {
			src.ID = src.URL
		}

		if _, ok := seen[src.ID]; ok {
			return nil, fmt.Errorf("%w: duplicate source id %q", ErrInvalidConfig, src.ID)
		}

		seen[src.ID] = struct{}{}
	}

	return &s, nil
}

// Eligible returns the sources whose links should be cleaned.
func (s *Sources) Eligible() []Source {
	var out []Source

	for _, src := range s.Sources {
		if src.Clean {
			out = append(out, src)
		}
	}

	return out
}

// IsEligible reports whether the source with the given id is marked for cleaning.
func (s *Sources) IsEligible(id string) bool {
	for _, src := range s.Sources {
		if src.ID == id {
			return src.Clean
		}
	}

	return false
}

// Find returns the source with the given id or url.
func (s *Sources) Find(idOrURL string) (Source, bool) {
	for _, src := range s.Sources {
		if src.ID == idOrURL || src.URL == idOrURL {
			return src, true
		}
	}

	return Source{}, false
}
