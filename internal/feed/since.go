package feed

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// ParseSince turns a --since value into a cutoff time. It accepts a
// duration relative to now ("36h", "7d") or any date format dateparse knows.
// An empty value means no cutoff.
func ParseSince(value string, now time.Time) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, nil
	}

	if days, ok := strings.CutSuffix(value, "d"); ok {
		if n, err := strconv.Atoi(days); err == nil && n >= 0 {
			return now.AddDate(0, 0, -n), nil
		}
	}

	if d, err := time.ParseDuration(value); err == nil {
		if d < 0 {
			d = -d
		}

		return now.Add(-d), nil
	}

	t, err := dateparse.ParseIn(value, now.Location())
	if err != nil {
		return time.Time{}, fmt.Errorf("parse since %q: %w", value, err)
	}

	return t, nil
}
