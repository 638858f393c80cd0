package session

import (
	"fmt"
	"time"
)

// FormatExpiry renders a remaining lifetime the way the dashboard shows it.
func FormatExpiry(d time.Duration) string {
	if d <= 0 {
		return "Expired"
	}
	d = d.Truncate(time.Second)
	h := int(d / time.Hour)
	m := int(d % time.Hour / time.Minute)
	s := int(d % time.Minute / time.Second)

	switch {
	case h > 0:
		return fmt.Sprintf("%dh %dm", h, m)
	case m > 0:
		return fmt.Sprintf("%dm %ds", m, s)
	default:
		return fmt.Sprintf("%ds", s)
	}
}
