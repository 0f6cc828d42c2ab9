package util

import (
	"fmt"
	"math"
)

// FormatBytes renders a byte count in binary units, matching the units
// legendary itself reports.
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

// FormatETA renders a remaining-time estimate compactly. Negative, infinite
// and NaN values mean the estimate is unknown.
func FormatETA(seconds float64) string {
	if seconds < 0 || math.IsInf(seconds, 0) || math.IsNaN(seconds) {
		return "--"
	}
	total := int(math.Round(seconds))
	h := total / 3600
	m := total % 3600 / 60
	s := total % 60
	switch {
	case h > 0:
		return fmt.Sprintf("%dh%02dm", h, m)
	case m > 0:
		return fmt.Sprintf("%dm%02ds", m, s)
	default:
		return fmt.Sprintf("%ds", s)
	}
}
