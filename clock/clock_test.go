package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFake_AfterAdvancesAndRecords(t *testing.T) {
	req := require.New(t)
	start := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	c := NewFake(start)

	fired := <-c.After(3 * time.Second)

	req.Equal(start.Add(3*time.Second), fired)
	req.Equal(start.Add(3*time.Second), c.Now())
	req.Equal([]time.Duration{3 * time.Second}, c.Waits())

	c.Advance(time.Minute)
	req.Equal(start.Add(63*time.Second), c.Now())
}
