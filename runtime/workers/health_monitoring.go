package workers

import (
	"context"
	"log/slog"
	"os"
	goruntime "runtime"
	"time"

	"file-renamer/contract"
	"file-renamer/domain"
	"file-renamer/observability"

	"github.com/shirou/gopsutil/process"
)

var _ contract.Worker = (*HealthMonitoringWorker)(nil)

type StageCounter interface {
	CountByStage() map[domain.Stage]int
}

type SlotGauge interface {
	Name() string
	InUse() int64
	Capacity() int64
}

// HealthMonitoringWorker samples the process and the pipeline state on a
// fixed interval and publishes it as gauges and a debug log line.
type HealthMonitoringWorker struct {
	log            *slog.Logger
	metrics        *observability.Metrics
	monitoring     *observability.MonitoringManager
	sessions       StageCounter
	pools          []SlotGauge
	metricInterval time.Duration
	proc           *process.Process
}

func NewHealthMonitoringWorker(
	log *slog.Logger,
	metrics *observability.Metrics,
	monitoring *observability.MonitoringManager,
	sessions StageCounter,
	metricInterval time.Duration,
	pools ...SlotGauge,
) *HealthMonitoringWorker {
	return &HealthMonitoringWorker{
		log:            log,
		metrics:        metrics,
		monitoring:     monitoring,
		sessions:       sessions,
		pools:          pools,
		metricInterval: metricInterval,
	}
}

func (w *HealthMonitoringWorker) Run(ctx context.Context) error {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return err
	}
	w.proc = p
	ticker := time.NewTicker(w.metricInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping health monitoring")
			return nil
		case <-ticker.C:
			w.Sample()
		}
	}
}

// Sample takes one measurement.
func (w *HealthMonitoringWorker) Sample() {
	attrs := []any{"goroutines", goruntime.NumGoroutine()}
	w.metrics.Goroutines.Set(float64(goruntime.NumGoroutine()))

	if w.proc != nil {
		if mem, err := w.proc.MemoryInfo(); err != nil {
			w.log.Error("Error while finding process ram usage", "err", err)
		} else {
			w.metrics.MemoryUsage.Set(float64(mem.RSS))
			attrs = append(attrs, "rss", mem.RSS)
		}
		if cpu, err := w.proc.CPUPercent(); err != nil {
			w.log.Error("Error while finding process cpu usage", "err", err)
		} else {
			w.metrics.CPUUsage.Set(cpu)
			attrs = append(attrs, "cpu", cpu)
		}
	}

	counts := w.sessions.CountByStage()
	for _, stage := range []domain.Stage{domain.AwaitingFilename, domain.Processing} {
		w.metrics.ActiveSessions.WithLabelValues(stage.String()).Set(float64(counts[stage]))
		attrs = append(attrs, stage.String(), counts[stage])
	}
	for _, pool := range w.pools {
		attrs = append(attrs, pool.Name()+"_slots", pool.InUse())
	}
	if w.monitoring != nil {
		stats := w.monitoring.Snapshot(time.Now())
		attrs = append(attrs,
			"download_mb_s", stats.DownloadSpeed,
			"upload_mb_s", stats.UploadSpeed,
			"files_done", stats.FilesDone,
			"files_failed", stats.FilesFailed,
		)
	}
	w.log.Debug("Health sample", attrs...)
}
