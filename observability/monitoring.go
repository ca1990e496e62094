package observability

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

const maxRecentRuns = 20

// RecentRun is one finished pipeline run, kept for the periodic summary.
type RecentRun struct {
	User     int64
	Name     string
	Outcome  string
	Duration time.Duration
	At       time.Time
}

type MonitoringStats struct {
	DownloadSpeed float64 // MB/s since the previous snapshot
	UploadSpeed   float64
	FilesDone     uint64
	FilesFailed   uint64
	RecentRuns    []RecentRun
}

// MonitoringManager aggregates throughput counters between two snapshots.
type MonitoringManager struct {
	log         *slog.Logger
	mu          sync.RWMutex
	latestStats MonitoringStats

	DownloadedBytes uint64
	UploadedBytes   uint64
	FilesDone       uint64
	FilesFailed     uint64
	LastCheck       time.Time
}

func NewMonitoringManager(log *slog.Logger) *MonitoringManager {
	return &MonitoringManager{
		log:       log,
		LastCheck: time.Now(),
		latestStats: MonitoringStats{
			RecentRuns: make([]RecentRun, 0),
		},
	}
}

func (mm *MonitoringManager) IncrDownloadedBytes(n uint64) {
	atomic.AddUint64(&mm.DownloadedBytes, n)
}

func (mm *MonitoringManager) IncrUploadedBytes(n uint64) {
	atomic.AddUint64(&mm.UploadedBytes, n)
}

// AddRun records a finished run, newest first.
func (mm *MonitoringManager) AddRun(run RecentRun) {
	if run.Outcome == "success" {
		atomic.AddUint64(&mm.FilesDone, 1)
	} else {
		atomic.AddUint64(&mm.FilesFailed, 1)
	}
	mm.mu.Lock()
	defer mm.mu.Unlock()
	mm.latestStats.RecentRuns = append([]RecentRun{run}, mm.latestStats.RecentRuns...)
	if len(mm.latestStats.RecentRuns) > maxRecentRuns {
		mm.latestStats.RecentRuns = mm.latestStats.RecentRuns[:maxRecentRuns]
	}
}

// Snapshot computes speeds since the previous call and resets the byte counters.
func (mm *MonitoringManager) Snapshot(now time.Time) MonitoringStats {
	mm.mu.Lock()
	defer mm.mu.Unlock()

	duration := now.Sub(mm.LastCheck).Seconds()
	if duration > 0 {
		dBytes := atomic.SwapUint64(&mm.DownloadedBytes, 0)
		uBytes := atomic.SwapUint64(&mm.UploadedBytes, 0)
		mm.latestStats.DownloadSpeed = (float64(dBytes) / 1024 / 1024) / duration
		mm.latestStats.UploadSpeed = (float64(uBytes) / 1024 / 1024) / duration
	}
	mm.LastCheck = now
	mm.latestStats.FilesDone = atomic.LoadUint64(&mm.FilesDone)
	mm.latestStats.FilesFailed = atomic.LoadUint64(&mm.FilesFailed)

	return mm.copyLocked()
}

func (mm *MonitoringManager) GetLatest() MonitoringStats {
	mm.mu.RLock()
	defer mm.mu.RUnlock()
	return mm.copyLocked()
}

func (mm *MonitoringManager) copyLocked() MonitoringStats {
	stats := mm.latestStats
	stats.RecentRuns = append([]RecentRun(nil), mm.latestStats.RecentRuns...)
	return stats
}
