package util

import (
	"fmt"
	"time"
)

// FormatRelativeTime formats t relative to now, e.g. "5 min ago".
func FormatRelativeTime(t, now time.Time) string {
	diff := now.Sub(t)

	if diff < 0 {
		diff = -diff
	}

	switch {
	case diff < time.Minute:
		return fmt.Sprintf("%d s ago", int(diff.Seconds()))
	case diff < time.Hour:
		return fmt.Sprintf("%d min ago", int(diff.Minutes()))
	case diff < 24*time.Hour:
		return fmt.Sprintf("%d h ago", int(diff.Hours()))
	case diff < 7*24*time.Hour:
		days := int(diff.Hours() / 24)
		return fmt.Sprintf("%d day%s ago", days, pluralize(days))
	}

	return t.Format("Jan 2")
}

// FormatDuration rounds durations to a readable precision.
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%d ms", d.Milliseconds())
	}

	return d.Round(10 * time.Millisecond).String()
}

func pluralize(n int) string {
	if n > 1 {
		return "s"
	}
	return ""
}
