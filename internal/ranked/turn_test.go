package ranked

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTurnExpired(t *testing.T) {
	t.Parallel()

	start := time.Date(2024, 9, 1, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name    string
		elapsed time.Duration
		expired bool
	}{
		{"fresh turn", 0, false},
		{"mid window", 7 * time.Second, false},
		{"just inside", 15*time.Second - time.Millisecond, false},
		{"exactly at window", 15 * time.Second, true},
		{"past window", 16 * time.Second, true},
		{"long abandoned", time.Hour, true},
	}

	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			require.Equal(t, c.expired, turnExpired(start, start.Add(c.elapsed), TurnWindow))
		})
	}
}
