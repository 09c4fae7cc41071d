// Package timeutil parses and formats transcript timestamps.
package timeutil

import (
	"fmt"
	"strconv"
	"strings"

	"transcript-insights-go/internal/types"
)

// ParseTimestamp converts "H:MM:SS", "HH:MM:SS" or "MM:SS" into seconds.
func ParseTimestamp(s string) (int, error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid timestamp %q", s)
	}
	total := 0
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid timestamp %q", s)
		}
		// minutes and seconds fields are bounded, the leading field is not
		if i > 0 && n >= 60 {
			return 0, fmt.Errorf("invalid timestamp %q", s)
		}
		total = total*60 + n
	}
	return total, nil
}

// FormatTimestamp renders seconds as "MM:SS", or "H:MM:SS" from one hour
// up. Untimed values render as the empty string.
func FormatTimestamp(seconds int) string {
	if seconds < 0 {
		return ""
	}
	h := seconds / 3600
	m := (seconds % 3600) / 60
	sec := seconds % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, sec)
	}
	return fmt.Sprintf("%02d:%02d", m, sec)
}

// FormatRange renders a section's time span, e.g. "01:00 - 02:30".
func FormatRange(start, end int) string {
	if start == types.Untimed {
		return ""
	}
	return FormatTimestamp(start) + " - " + FormatTimestamp(end)
}
