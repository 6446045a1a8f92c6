package jobdisplay

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatDuration(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   time.Duration
		want string
	}{
		{in: 0, want: "<1s"},
		{in: 999 * time.Millisecond, want: "<1s"},
		{in: time.Second, want: "0:00:01"},
		{in: 3*time.Second + 900*time.Millisecond, want: "0:00:03"},
		{in: 62 * time.Second, want: "0:01:02"},
		{in: time.Hour + 2*time.Minute + 3*time.Second, want: "1:02:03"},
		{in: 26 * time.Hour, want: "26:00:00"},
	}

	for _, tc := range tests {
		assert.Equal(t, tc.want, FormatDuration(tc.in), "duration %s", tc.in)
	}
}
