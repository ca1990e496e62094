package transfer

import (
	"time"

	"file-renamer/domain"
)

// Policy decides which progress reports are worth an outbound edit.
type Policy struct {
	MinInterval       time.Duration
	MinPercentDelta   float64
	CompletionPercent float64
}

// Allow lets through the first report, the terminal report once, and any
// other report only when both the interval and the percent delta are met.
func (p Policy) Allow(job domain.TransferJob, now time.Time, percent float64) bool {
	if !job.Reported {
		return true
	}
	if job.Terminal {
		return false
	}
	if percent >= p.CompletionPercent {
		return true
	}
	return now.Sub(job.LastReportAt) >= p.MinInterval &&
		percent-job.LastReportPercent >= p.MinPercentDelta
}
