// Package reltime formats timestamps relative to a reference time.
package reltime

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is used once a timestamp is a week or more in the past.
const DateLayout = "Jan 2, 2006"

// Format returns a short string describing how long before now captured was.
func Format(captured, now time.Time) string {
	elapsed := now.Sub(captured)
	switch {
	case elapsed < time.Minute:
		return "just now"
	case elapsed < time.Hour:
		return fmt.Sprintf("%dm ago", int(elapsed/time.Minute))
	case elapsed < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(elapsed/time.Hour))
	case elapsed < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(elapsed/(24*time.Hour)))
	default:
		return captured.Format(DateLayout)
	}
}

var layouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// Parse reads the timestamp formats written into frontmatter.
func Parse(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
