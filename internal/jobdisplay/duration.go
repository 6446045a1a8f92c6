package jobdisplay

import (
	"fmt"
	"time"
)

// FormatDuration renders a job duration as H:MM:SS. Hours are not wrapped
// at a day. Durations under one second render as "<1s".
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return "<1s"
	}
	total := int64(d / time.Second)
	hours := total / 3600
	minutes := (total % 3600) / 60
	seconds := total % 60
	return fmt.Sprintf("%d:%02d:%02d", hours, minutes, seconds)
}
