package machine

import (
	"fmt"
	"time"
)

// FormatUptime renders milliseconds as "Hh Mm Ss". Hours are not wrapped
// into days.
func FormatUptime(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	d := time.Duration(ms) * time.Millisecond
	h := int64(d / time.Hour)
	m := int64(d/time.Minute) % 60
	s := int64(d/time.Second) % 60
	return fmt.Sprintf("%dh %dm %ds", h, m, s)
}
