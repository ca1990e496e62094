package transfer

import (
	"fmt"
	"strings"
	"time"

	"file-renamer/domain"

	"github.com/dustin/go-humanize"
)

const barWidth = 10

func ProgressText(label string, job domain.TransferJob, now time.Time) string {
	verb := "Downloading"
	if job.Direction == domain.Upload {
		verb = "Uploading"
	}
	percent := job.Percent()
	filled := int(percent / 100 * barWidth)
	bar := strings.Repeat("■", filled) + strings.Repeat("□", barWidth-filled)

	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s\n", verb, label)
	fmt.Fprintf(&b, "[%s] %.1f%%\n", bar, percent)
	fmt.Fprintf(&b, "%s / %s\n", humanize.IBytes(uint64(job.TransferredBytes)), humanize.IBytes(uint64(job.TotalBytes)))
	fmt.Fprintf(&b, "Speed: %s/s | ETA: %s", humanize.IBytes(uint64(job.Speed(now))), FormatDuration(job.ETA(now)))
	return b.String()
}

// FormatDuration renders durations like 1h02m03s, 4m05s or 7s.
func FormatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	m := (d % time.Hour) / time.Minute
	s := (d % time.Minute) / time.Second
	switch {
	case h > 0:
		return fmt.Sprintf("%dh%02dm%02ds", h, m, s)
	case m > 0:
		return fmt.Sprintf("%dm%02ds", m, s)
	default:
		return fmt.Sprintf("%ds", s)
	}
}
