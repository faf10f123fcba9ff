package cli

import (
	"fmt"
	"time"
)

// FormatDurationShort formats a duration in a short format (M:SS or H:MM:SS).
func FormatDurationShort(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	totalSeconds := int(d.Seconds())
	hours := totalSeconds / 3600
	minutes := (totalSeconds % 3600) / 60
	seconds := totalSeconds % 60

	if hours > 0 {
		return fmt.Sprintf("%d:%02d:%02d", hours, minutes, seconds)
	}
	return fmt.Sprintf("%d:%02d", minutes, seconds)
}

// FormatAge describes how long ago t was, relative to now. Anything older
// than a day is shown as a local date.
func FormatAge(now, t time.Time) string {
	d := now.Sub(t)
	if d < 24*time.Hour {
		return FormatDurationShort(d) + " ago"
	}
	return t.Local().Format("2006-01-02 15:04")
}
