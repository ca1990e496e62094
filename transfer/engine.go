package transfer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"file-renamer/contract"
	"file-renamer/domain"
	"file-renamer/errors"
	"file-renamer/observability"
)

type DownloadRequest struct {
	UserID domain.UserID
	Status domain.MessageHandle
	File   domain.FileRef
	Dest   string
}

type UploadRequest struct {
	UserID domain.UserID
	Status domain.MessageHandle
	File   domain.OutgoingFile
	Size   int64
}

type EngineConfig struct {
	DownloadSlots      int
	UploadSlots        int
	Policy             Policy
	MessageMinInterval time.Duration
}

// Engine runs downloads and uploads through the transport, one slot per
// transfer, reporting throttled progress on the user's status message.
type Engine struct {
	log        *slog.Logger
	transport  contract.Transport
	downloads  *Pool
	uploads    *Pool
	reporter   ReporterConfig
	metrics    *observability.Metrics
	monitoring *observability.MonitoringManager
}

func NewEngine(
	log *slog.Logger,
	transport contract.Transport,
	clock contract.Clock,
	guard contract.MessageGuard,
	metrics *observability.Metrics,
	monitoring *observability.MonitoringManager,
	cfg EngineConfig,
) *Engine {
	return &Engine{
		log:       log,
		transport: transport,
		downloads: NewPool("download", cfg.DownloadSlots, metrics),
		uploads:   NewPool("upload", cfg.UploadSlots, metrics),
		reporter: ReporterConfig{
			Log:           log,
			Clock:         clock,
			Policy:        cfg.Policy,
			Guard:         guard,
			GuardInterval: cfg.MessageMinInterval,
			Messenger:     transport,
			Metrics:       metrics,
		},
		metrics:    metrics,
		monitoring: monitoring,
	}
}

func (e *Engine) Download(ctx context.Context, req DownloadRequest) error {
	return e.run(ctx, domain.Download, req.UserID, req.Status, req.File.DisplayName(), req.File.Size,
		func(progress contract.ProgressFunc) error {
			return e.transport.DownloadFile(ctx, req.File, req.Dest, progress)
		})
}

func (e *Engine) Upload(ctx context.Context, req UploadRequest) error {
	return e.run(ctx, domain.Upload, req.UserID, req.Status, req.File.FileName, req.Size,
		func(progress contract.ProgressFunc) error {
			return e.transport.SendFile(ctx, req.File, progress)
		})
}

func (e *Engine) Pools() (download, upload *Pool) {
	return e.downloads, e.uploads
}

func (e *Engine) run(
	ctx context.Context,
	direction domain.Direction,
	userID domain.UserID,
	status domain.MessageHandle,
	label string,
	total int64,
	transfer func(progress contract.ProgressFunc) error,
) error {
	pool := e.downloads
	if direction == domain.Upload {
		pool = e.uploads
	}
	release, err := pool.Acquire(ctx)
	if err != nil {
		return e.classify(ctx, direction, err)
	}
	reporter := NewReporter(ctx, e.reporter, direction, userID, status, label, total)
	defer reporter.Close()

	start := e.reporter.Clock.Now()
	// The slot is held for the bytes only, never for a pending progress edit.
	err = func() error {
		defer release()
		return transfer(func(current, total int64) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			reporter.Observe(current, total)
			return nil
		})
	}()
	job := reporter.Job()
	e.observe(direction, job.TransferredBytes, e.reporter.Clock.Now().Sub(start), err)
	if err != nil {
		return e.classify(ctx, direction, err)
	}
	return nil
}

func (e *Engine) observe(direction domain.Direction, bytes int64, elapsed time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "failed"
	}
	if e.monitoring != nil && bytes > 0 {
		if direction == domain.Download {
			e.monitoring.IncrDownloadedBytes(uint64(bytes))
		} else {
			e.monitoring.IncrUploadedBytes(uint64(bytes))
		}
	}
	if e.metrics == nil {
		return
	}
	dir := direction.String()
	e.metrics.TransfersTotal.WithLabelValues(dir, outcome).Inc()
	e.metrics.TransferBytes.WithLabelValues(dir).Add(float64(bytes))
	e.metrics.TransferDuration.WithLabelValues(dir).Observe(elapsed.Seconds())
}

// classify maps transport failures onto TransferError kinds.
func (e *Engine) classify(ctx context.Context, direction domain.Direction, err error) error {
	if te, ok := errors.AsTransfer(err); ok {
		return te
	}
	te := &errors.TransferError{Direction: direction, Kind: errors.TransportFailure, Err: err}
	switch {
	case ctx.Err() != nil || errors.Is(err, context.Canceled):
		te.Kind = errors.TransferCancelled
	case isRateLimit(err, te):
		te.Kind = errors.RateLimited
	case errors.Is(err, errors.ErrSourceUnavailable) || errors.Is(err, os.ErrNotExist):
		te.Kind = errors.SourceUnavailable
	case errors.Is(err, errors.ErrSinkRejected):
		te.Kind = errors.SinkRejected
	}
	e.log.Debug(fmt.Sprintf("%s failed", direction), "kind", te.Kind, "error", err)
	return te
}

func isRateLimit(err error, te *errors.TransferError) bool {
	rl, ok := errors.AsRateLimit(err)
	if ok {
		te.RetryAfter = rl.RetryAfter
	}
	return ok
}
