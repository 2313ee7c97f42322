package ui

import (
	"fmt"
	"strings"
	"time"
)

const (
	barFilled = "━"
	barEmpty  = "─"
)

// Bar renders done/total as a fixed-width line. An unknown total (zero)
// renders an empty bar.
func Bar(done, total, width int) string {
	if width <= 0 {
		return ""
	}
	filled := 0
	if total > 0 {
		filled = done * width / total
	}
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	return strings.Repeat(barFilled, filled) + strings.Repeat(barEmpty, width-filled)
}

// ETA estimates the time left after done of total items took elapsed.
func ETA(done, total int, elapsed time.Duration) string {
	if done == 0 || elapsed <= 0 {
		return "calculating..."
	}
	remaining := total - done
	if remaining <= 0 {
		return "0s"
	}
	per := elapsed / time.Duration(done)
	return FormatDuration(per * time.Duration(remaining))
}

// Rate is items per minute.
func Rate(done int, elapsed time.Duration) float64 {
	if elapsed <= 0 {
		return 0
	}
	return float64(done) / elapsed.Minutes()
}

// FormatDuration formats d compactly: 42s, 3m7s, 1h12m.
func FormatDuration(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	default:
		return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
	}
}

// FormatBytes formats a byte count with a binary unit.
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}

	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}

	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// Truncate shortens s to max runes, marking the cut with "...".
func Truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	if max <= 3 {
		return string(r[:max])
	}
	return string(r[:max-3]) + "..."
}
