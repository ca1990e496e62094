package transfer

import (
	"testing"
	"time"

	"file-renamer/domain"

	"github.com/stretchr/testify/require"
)

func TestPolicy_Allow(t *testing.T) {
	policy := Policy{MinInterval: 5 * time.Second, MinPercentDelta: 5, CompletionPercent: 100}
	last := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	reported := domain.TransferJob{Reported: true, LastReportAt: last, LastReportPercent: 20}

	tests := []struct {
		description string
		job         domain.TransferJob
		now         time.Time
		percent     float64
		want        bool
	}{
		{description: "first report", job: domain.TransferJob{}, now: last, percent: 0.1, want: true},
		{description: "interval and delta met", job: reported, now: last.Add(5 * time.Second), percent: 25, want: true},
		{description: "only interval met", job: reported, now: last.Add(time.Minute), percent: 24.9, want: false},
		{description: "only delta met", job: reported, now: last.Add(4 * time.Second), percent: 60, want: false},
		{description: "terminal report bypasses thresholds", job: reported, now: last.Add(time.Millisecond), percent: 100, want: true},
		{
			description: "terminal report only once",
			job:         domain.TransferJob{Reported: true, Terminal: true, LastReportAt: last, LastReportPercent: 100},
			now:         last.Add(time.Hour), percent: 100, want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.description, func(t *testing.T) {
			require.Equal(t, tt.want, policy.Allow(tt.job, tt.now, tt.percent))
		})
	}
}

func TestFormatDuration(t *testing.T) {
	req := require.New(t)
	req.Equal("7s", FormatDuration(7*time.Second))
	req.Equal("4m05s", FormatDuration(4*time.Minute+5*time.Second))
	req.Equal("1h02m03s", FormatDuration(time.Hour+2*time.Minute+3*time.Second))
}

func TestProgressText(t *testing.T) {
	req := require.New(t)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	job := domain.TransferJob{
		Direction:        domain.Upload,
		TotalBytes:       100 * domain.MB,
		TransferredBytes: 50 * domain.MB,
		StartedAt:        start,
	}

	text := ProgressText("movie.mp4", job, start.Add(10*time.Second))

	req.Contains(text, "Uploading: movie.mp4")
	req.Contains(text, "[■■■■■□□□□□] 50.0%")
	req.Contains(text, "50 MiB / 100 MiB")
	req.Contains(text, "Speed: 5.0 MiB/s | ETA: 10s")
}
