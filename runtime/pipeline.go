package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"file-renamer/contract"
	"file-renamer/domain"
	"file-renamer/errors"
	"file-renamer/observability"
	"file-renamer/rename"
	"file-renamer/transfer"

	"github.com/google/uuid"
)

var _ contract.Processor = (*Pipeline)(nil)

const (
	stepAdmit     = "admit"
	stepPrepare   = "prepare"
	stepDownload  = "download"
	stepRename    = "rename"
	stepThumbnail = "thumbnail"
	stepUpload    = "upload"
)

type PipelineConfig struct {
	DownloadDir        string
	MessageMinInterval time.Duration
}

// Pipeline runs one file through download, rename and upload.
// Whatever happens inside a run, its work directory is removed before
// Process returns.
type Pipeline struct {
	log        *slog.Logger
	clock      contract.Clock
	sessions   contract.SessionStore
	limiter    contract.RateLimiter
	guard      contract.MessageGuard
	messenger  contract.Messenger
	renamer    *rename.Renamer
	engine     *transfer.Engine
	thumbnails contract.Thumbnailer
	activity   contract.ActivityRecorder
	metrics    *observability.Metrics
	monitoring *observability.MonitoringManager
	config     PipelineConfig
}

func NewPipeline(
	log *slog.Logger,
	clock contract.Clock,
	sessions contract.SessionStore,
	limiter contract.RateLimiter,
	guard contract.MessageGuard,
	messenger contract.Messenger,
	renamer *rename.Renamer,
	engine *transfer.Engine,
	thumbnails contract.Thumbnailer,
	activity contract.ActivityRecorder,
	metrics *observability.Metrics,
	monitoring *observability.MonitoringManager,
	config PipelineConfig,
) *Pipeline {
	return &Pipeline{
		log:        log,
		clock:      clock,
		sessions:   sessions,
		limiter:    limiter,
		guard:      guard,
		messenger:  messenger,
		renamer:    renamer,
		engine:     engine,
		thumbnails: thumbnails,
		activity:   activity,
		metrics:    metrics,
		monitoring: monitoring,
		config:     config,
	}
}

// run holds the per-call state shared by the steps and the deferred cleanup.
type run struct {
	req     domain.RenameRequest
	session domain.Session
	started time.Time
	step    string
	workDir string
	temps   []string
	status  domain.MessageHandle
}

func (p *Pipeline) Process(ctx context.Context, req domain.RenameRequest) (result domain.ProcessingResult) {
	r := &run{req: req, started: p.clock.Now(), step: stepAdmit}
	log := p.log.With("user_id", req.UserID, "file", req.File.DisplayName())

	if err := p.renamer.Validate(req.RequestedName); err != nil {
		return domain.Failed(domain.InvalidFilename, err)
	}
	session, err := p.sessions.AdvanceToProcessing(req.UserID)
	if err != nil {
		log.Debug("Session left before processing", "error", err)
		return domain.Failed(domain.Cancelled, err)
	}
	if !p.limiter.Admit(req.UserID) {
		p.sessions.Rearm(session)
		if p.metrics != nil {
			p.metrics.Rejections.WithLabelValues(domain.RateLimitExceeded.String()).Inc()
		}
		p.activity.Record(ctx, domain.ActivityRecord{
			ID:           uuid.New(),
			Kind:         domain.ActivityFailed,
			UserID:       req.UserID,
			ChatID:       req.ChatID,
			OriginalName: req.File.DisplayName(),
			Size:         req.File.Size,
			Step:         stepAdmit,
			Reason:       errors.ErrRateLimitExceeded.Error(),
			At:           r.started,
		})
		return domain.Failed(domain.RateLimitExceeded, errors.ErrRateLimitExceeded)
	}
	r.session = session

	// Registered first so it runs last, after the run has been finalized.
	defer p.cleanup(log, r)
	defer func() {
		if rec := recover(); rec != nil {
			log.Error("Pipeline panicked", "step", r.step, "panic", rec)
			result = domain.Failed(kindForStep(r.step), fmt.Errorf("%w: %v", errors.ErrWorkerPanic, rec))
		}
		result.Elapsed = p.clock.Now().Sub(r.started)
		p.finish(ctx, log, r, result)
	}()

	return p.execute(ctx, r)
}

func (p *Pipeline) execute(ctx context.Context, r *run) domain.ProcessingResult {
	r.step = stepPrepare
	runID := r.session.RunID
	if runID == uuid.Nil {
		runID = uuid.New()
	}
	r.workDir = filepath.Join(p.config.DownloadDir, runID.String())
	if err := os.MkdirAll(r.workDir, 0o755); err != nil {
		return domain.Failed(domain.DownloadFailed, err)
	}
	r.status = p.notify(ctx, r.req.UserID, r.req.ChatID, textStarting)

	r.step = stepDownload
	local := filepath.Join(r.workDir, fmt.Sprintf("%d_%s",
		p.clock.Now().Unix(), rename.SanitizeDeclared(r.req.File.DisplayName())))
	r.temps = append(r.temps, local)
	err := p.engine.Download(ctx, transfer.DownloadRequest{
		UserID: r.req.UserID,
		Status: r.status,
		File:   r.req.File,
		Dest:   local,
	})
	if err != nil {
		return transferFailure(domain.DownloadFailed, err)
	}

	r.step = stepRename
	if err := ctx.Err(); err != nil {
		return domain.Failed(domain.Cancelled, err)
	}
	renamed, err := p.renamer.Rename(local, r.req.RequestedName)
	if err != nil {
		return domain.Failed(domain.RenameFailed, err)
	}
	r.temps = append(r.temps, renamed)
	info, err := os.Stat(renamed)
	if err != nil {
		return domain.Failed(domain.RenameFailed, err)
	}

	r.step = stepThumbnail
	thumb := ""
	if p.thumbnails != nil {
		thumb, err = p.thumbnails.Thumbnail(ctx, renamed, r.workDir)
		if err != nil {
			p.log.Warn("Thumbnail skipped", "user_id", r.req.UserID, "error", err)
			thumb = ""
		}
		if thumb != "" && strings.HasPrefix(thumb, r.workDir) {
			r.temps = append(r.temps, thumb)
		}
	}

	r.step = stepUpload
	if err := ctx.Err(); err != nil {
		return domain.Failed(domain.Cancelled, err)
	}
	newName := filepath.Base(renamed)
	p.edit(ctx, r, uploadingStatus(newName))
	err = p.engine.Upload(ctx, transfer.UploadRequest{
		UserID: r.req.UserID,
		Status: r.status,
		Size:   info.Size(),
		File: domain.OutgoingFile{
			ChatID:        r.req.ChatID,
			Path:          renamed,
			FileName:      newName,
			Kind:          r.req.File.Kind,
			Caption:       Caption(r.req.File.DisplayName(), newName, info.Size(), p.clock.Now().Sub(r.started)),
			ThumbnailPath: thumb,
		},
	})
	if err != nil {
		return transferFailure(domain.UploadFailed, err)
	}

	if r.status.MessageID != 0 {
		if err := p.messenger.DeleteMessage(ctx, r.status); err != nil {
			p.log.Debug("Status message not deleted", "user_id", r.req.UserID, "error", err)
		}
	}
	return domain.ProcessingResult{
		Success:     true,
		NewFilePath: renamed,
		NewFileName: newName,
		Bytes:       info.Size(),
	}
}

// finish records the outcome and releases the session.
func (p *Pipeline) finish(ctx context.Context, log *slog.Logger, r *run, result domain.ProcessingResult) {
	record := domain.ActivityRecord{
		ID:           uuid.New(),
		Kind:         domain.ActivitySucceeded,
		UserID:       r.req.UserID,
		ChatID:       r.req.ChatID,
		OriginalName: r.req.File.DisplayName(),
		NewName:      result.NewFileName,
		Size:         r.req.File.Size,
		Duration:     result.Elapsed,
		At:           p.clock.Now(),
	}
	outcome := "success"
	if !result.Success {
		record.Kind = domain.ActivityFailed
		record.Step = r.step
		if result.Err != nil {
			record.Reason = result.Err.Error()
		}
		outcome = result.ErrorKind.String()
		log.Warn("File processing failed", "step", r.step, "kind", result.ErrorKind, "error", result.Err)
	}
	p.activity.Record(ctx, record)

	if p.metrics != nil {
		p.metrics.RunsTotal.WithLabelValues(outcome).Inc()
	}
	if p.monitoring != nil {
		p.monitoring.AddRun(observability.RecentRun{
			User:     int64(r.req.UserID),
			Name:     record.OriginalName,
			Outcome:  outcome,
			Duration: result.Elapsed,
			At:       record.At,
		})
	}
	p.sessions.Finish(r.session)
}

// cleanup is best effort: failures are logged and never change the result.
func (p *Pipeline) cleanup(log *slog.Logger, r *run) {
	for _, path := range r.temps {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			log.Warn("Temporary file not removed", "path", path, "error", err)
		}
	}
	if r.workDir == "" {
		return
	}
	if err := os.RemoveAll(r.workDir); err != nil {
		log.Warn("Work directory not removed", "path", r.workDir, "error", err)
	}
}

// notify posts the run's status message, unguarded: progress edits need its handle.
func (p *Pipeline) notify(ctx context.Context, userID domain.UserID, chatID domain.ChatID, text string) domain.MessageHandle {
	handle, err := p.messenger.SendMessage(ctx, chatID, text)
	if err != nil {
		p.log.Debug("Status message not sent", "user_id", userID, "error", err)
		return domain.MessageHandle{}
	}
	return handle
}

func (p *Pipeline) edit(ctx context.Context, r *run, text string) {
	if r.status.MessageID == 0 || !p.guard.ShouldSend(r.req.UserID, text, p.config.MessageMinInterval) {
		return
	}
	if err := p.messenger.EditMessage(ctx, r.status, text); err != nil {
		p.log.Debug("Status message not edited", "user_id", r.req.UserID, "error", err)
	}
}

func transferFailure(kind domain.ErrorKind, err error) domain.ProcessingResult {
	result := domain.Failed(kind, err)
	if te, ok := errors.AsTransfer(err); ok {
		switch te.Kind {
		case errors.TransferCancelled:
			result.ErrorKind = domain.Cancelled
		case errors.RateLimited:
			result.RetryAfter = te.RetryAfter
		}
	}
	return result
}

func kindForStep(step string) domain.ErrorKind {
	switch step {
	case stepRename:
		return domain.RenameFailed
	case stepThumbnail, stepUpload:
		return domain.UploadFailed
	default:
		return domain.DownloadFailed
	}
}
