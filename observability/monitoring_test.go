package observability

import (
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMonitoringManager_Snapshot(t *testing.T) {
	req := require.New(t)
	mm := NewMonitoringManager(slog.Default())
	start := mm.LastCheck

	mm.IncrDownloadedBytes(4 * 1024 * 1024)
	mm.IncrUploadedBytes(2 * 1024 * 1024)
	mm.AddRun(RecentRun{User: 1, Name: "a.pdf", Outcome: "success"})
	mm.AddRun(RecentRun{User: 2, Name: "b.pdf", Outcome: "upload_failed"})

	stats := mm.Snapshot(start.Add(2 * time.Second))

	req.InDelta(2.0, stats.DownloadSpeed, 0.001)
	req.InDelta(1.0, stats.UploadSpeed, 0.001)
	req.Equal(uint64(1), stats.FilesDone)
	req.Equal(uint64(1), stats.FilesFailed)
	req.Len(stats.RecentRuns, 2)
	req.Equal("b.pdf", stats.RecentRuns[0].Name)

	stats = mm.Snapshot(start.Add(4 * time.Second))
	req.Zero(stats.DownloadSpeed)
}

func TestMonitoringManager_KeepsLastRuns(t *testing.T) {
	req := require.New(t)
	mm := NewMonitoringManager(slog.Default())
	for i := 0; i < 25; i++ {
		mm.AddRun(RecentRun{Name: fmt.Sprintf("%d.bin", i), Outcome: "success"})
	}

	runs := mm.GetLatest().RecentRuns
	req.Len(runs, maxRecentRuns)
	req.Equal("24.bin", runs[0].Name)
}

func TestMetrics_Registered(t *testing.T) {
	req := require.New(t)
	m := NewMetrics(prometheus.NewRegistry())

	m.TransfersTotal.WithLabelValues("download", "ok").Inc()
	m.FloodWaits.Inc()

	req.Equal(1.0, testutil.ToFloat64(m.TransfersTotal.WithLabelValues("download", "ok")))
	req.Equal(1.0, testutil.ToFloat64(m.FloodWaits))
	req.NotNil(m.Handler())
}
