package guard

import (
	"testing"
	"time"

	"file-renamer/clock"

	"github.com/stretchr/testify/require"
)

func TestGuard_ShouldSend(t *testing.T) {
	tests := []struct {
		description string
		first       string
		second      string
		gap         time.Duration
		want        bool
	}{
		{description: "same text too soon", first: "50%", second: "50%", gap: time.Second, want: false},
		{description: "same text after interval", first: "50%", second: "50%", gap: 2 * time.Second, want: true},
		{description: "different text immediately", first: "50%", second: "55%", gap: 0, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.description, func(t *testing.T) {
			req := require.New(t)
			c := clock.NewFake(time.Unix(1_700_000_000, 0))
			g := NewGuard(c)

			req.True(g.ShouldSend(1, tt.first, 2*time.Second))
			c.Advance(tt.gap)
			req.Equal(tt.want, g.ShouldSend(1, tt.second, 2*time.Second))
		})
	}
}

func TestGuard_SuppressedMessageDoesNotRefreshTimestamp(t *testing.T) {
	req := require.New(t)
	c := clock.NewFake(time.Unix(1_700_000_000, 0))
	g := NewGuard(c)

	req.True(g.ShouldSend(1, "hello", 2*time.Second))
	c.Advance(time.Second)
	req.False(g.ShouldSend(1, "hello", 2*time.Second))
	c.Advance(time.Second)
	req.True(g.ShouldSend(1, "hello", 2*time.Second))
}

func TestGuard_Prune(t *testing.T) {
	req := require.New(t)
	c := clock.NewFake(time.Unix(1_700_000_000, 0))
	g := NewGuard(c)
	g.ShouldSend(1, "a", time.Second)
	c.Advance(time.Minute)
	g.ShouldSend(2, "b", time.Second)

	req.Equal(1, g.Prune(30*time.Second))
	req.False(g.ShouldSend(2, "b", time.Second))
}
