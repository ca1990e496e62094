package transfer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"file-renamer/contract"
	"file-renamer/domain"
	"file-renamer/errors"
	"file-renamer/observability"
)

// Reporter observes raw transfer callbacks and turns a throttled subset of
// them into edits of the status message. Edits run on their own goroutine
// so a slow or rate-limited edit never holds up the data transfer; only the
// latest accepted text waits to be sent.
type Reporter struct {
	ctx           context.Context
	log           *slog.Logger
	clock         contract.Clock
	policy        Policy
	guard         contract.MessageGuard
	guardInterval time.Duration
	messenger     contract.Messenger
	metrics       *observability.Metrics
	userID        domain.UserID
	status        domain.MessageHandle
	label         string

	mu      sync.Mutex
	job     domain.TransferJob
	closed  bool
	pending chan string
	done    chan struct{}
}

type ReporterConfig struct {
	Log           *slog.Logger
	Clock         contract.Clock
	Policy        Policy
	Guard         contract.MessageGuard
	GuardInterval time.Duration
	Messenger     contract.Messenger
	Metrics       *observability.Metrics
}

func NewReporter(ctx context.Context, cfg ReporterConfig, direction domain.Direction,
	userID domain.UserID, status domain.MessageHandle, label string, total int64) *Reporter {
	r := &Reporter{
		ctx:           ctx,
		log:           cfg.Log,
		clock:         cfg.Clock,
		policy:        cfg.Policy,
		guard:         cfg.Guard,
		guardInterval: cfg.GuardInterval,
		messenger:     cfg.Messenger,
		metrics:       cfg.Metrics,
		userID:        userID,
		status:        status,
		label:         label,
		job: domain.TransferJob{
			Direction:  direction,
			TotalBytes: total,
			StartedAt:  cfg.Clock.Now(),
		},
		pending: make(chan string, 1),
		done:    make(chan struct{}),
	}
	go r.loop()
	return r
}

// Observe feeds one (current, total) callback to the reporter.
func (r *Reporter) Observe(current, total int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	if total > 0 {
		r.job.TotalBytes = total
	}
	if current > r.job.TransferredBytes {
		r.job.TransferredBytes = current
	}

	now := r.clock.Now()
	percent := r.job.Percent()
	if !r.policy.Allow(r.job, now, percent) {
		r.count("throttled")
		return
	}
	text := ProgressText(r.label, r.job, now)
	if !r.guard.ShouldSend(r.userID, text, r.guardInterval) {
		r.count("guarded")
		return
	}
	r.job.Reported = true
	r.job.LastReportAt = now
	r.job.LastReportPercent = percent
	if percent >= r.policy.CompletionPercent {
		r.job.Terminal = true
	}
	r.count("accepted")
	r.offer(text)
}

// Job returns a copy of the tracked transfer.
func (r *Reporter) Job() domain.TransferJob {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.job
}

// Close stops accepting reports and waits for the pending edit, if any.
func (r *Reporter) Close() {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.pending)
	}
	r.mu.Unlock()
	<-r.done
}

// offer must be called with mu held.
func (r *Reporter) offer(text string) {
	select {
	case r.pending <- text:
		return
	default:
	}
	select {
	case <-r.pending:
	default:
	}
	select {
	case r.pending <- text:
	default:
	}
}

func (r *Reporter) loop() {
	defer close(r.done)
	for text := range r.pending {
		r.edit(text)
	}
}

func (r *Reporter) edit(text string) {
	if r.status.MessageID == 0 {
		return
	}
	err := r.messenger.EditMessage(r.ctx, r.status, text)
	if err == nil {
		return
	}
	if rl, ok := errors.AsRateLimit(err); ok {
		if r.metrics != nil {
			r.metrics.FloodWaits.Inc()
		}
		r.log.Warn("Progress edit rate limited, waiting",
			"user_id", r.userID, "retry_after", rl.RetryAfter)
		select {
		case <-r.clock.After(rl.RetryAfter):
		case <-r.ctx.Done():
		}
		return
	}
	r.log.Debug("Progress edit failed", "user_id", r.userID, "error", err)
}

func (r *Reporter) count(decision string) {
	if r.metrics != nil {
		r.metrics.ProgressEdits.WithLabelValues(decision).Inc()
	}
}
