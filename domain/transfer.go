package domain

import "time"

type Direction int

const (
	Download Direction = iota
	Upload
)

func (d Direction) String() string {
	if d == Upload {
		return "upload"
	}
	return "download"
}

// TransferJob tracks one download or upload.
// TransferredBytes never decreases during a job.
type TransferJob struct {
	Direction         Direction
	TotalBytes        int64
	TransferredBytes  int64
	StartedAt         time.Time
	LastReportAt      time.Time
	LastReportPercent float64
	Reported          bool
	Terminal          bool
}

func (j TransferJob) Percent() float64 {
	if j.TotalBytes <= 0 {
		return 0
	}
	p := float64(j.TransferredBytes) * 100 / float64(j.TotalBytes)
	if p > 100 {
		return 100
	}
	return p
}

// Speed returns bytes per second since the job started.
func (j TransferJob) Speed(now time.Time) float64 {
	elapsed := now.Sub(j.StartedAt).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(j.TransferredBytes) / elapsed
}

// ETA is zero when the speed is unknown.
func (j TransferJob) ETA(now time.Time) time.Duration {
	speed := j.Speed(now)
	if speed <= 0 || j.TotalBytes <= j.TransferredBytes {
		return 0
	}
	remaining := float64(j.TotalBytes - j.TransferredBytes)
	return time.Duration(remaining / speed * float64(time.Second))
}
