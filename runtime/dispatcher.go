package runtime

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"file-renamer/contract"
	"file-renamer/domain"
	"file-renamer/observability"
	"file-renamer/runtime/workers"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
)

var (
	_ contract.InboundHandler    = (*Dispatcher)(nil)
	_ contract.InboundDispatcher = (*Dispatcher)(nil)
)

type DispatcherConfig struct {
	Shards              int
	BufferSize          int
	MaxFileSize         int64
	HourlyFileLimit     int
	SupportedExtensions []string
	MessageMinInterval  time.Duration
	ReplyTimeout        time.Duration
}

// Dispatcher routes inbound events to per-user shards and drives the
// session state machine. Events of one user always land on the same shard,
// so they are handled in arrival order; users on different shards proceed in parallel.
type Dispatcher struct {
	log       *slog.Logger
	validate  *validator.Validate
	sessions  contract.SessionStore
	limiter   contract.RateLimiter
	guard     contract.MessageGuard
	messenger contract.Messenger
	processor contract.Processor
	metrics   *observability.Metrics
	config    DispatcherConfig
	shards    []chan domain.InboundEvent

	mu      sync.Mutex
	running map[domain.UserID]*activeRun
	wg      sync.WaitGroup
}

type activeRun struct {
	cancel context.CancelFunc
}

func NewDispatcher(
	log *slog.Logger,
	sessions contract.SessionStore,
	limiter contract.RateLimiter,
	guard contract.MessageGuard,
	messenger contract.Messenger,
	processor contract.Processor,
	metrics *observability.Metrics,
	config DispatcherConfig,
) *Dispatcher {
	if config.Shards < 1 {
		config.Shards = 1
	}
	if config.ReplyTimeout <= 0 {
		config.ReplyTimeout = 10 * time.Second
	}
	shards := make([]chan domain.InboundEvent, config.Shards)
	for i := range shards {
		shards[i] = make(chan domain.InboundEvent, config.BufferSize)
	}
	return &Dispatcher{
		log:       log,
		validate:  validator.New(),
		sessions:  sessions,
		limiter:   limiter,
		guard:     guard,
		messenger: messenger,
		processor: processor,
		metrics:   metrics,
		config:    config,
		shards:    shards,
		running:   make(map[domain.UserID]*activeRun),
	}
}

// Workers returns one inbound worker per shard, to be run under supervision.
func (d *Dispatcher) Workers() []contract.Worker {
	return lo.Map(d.shards, func(shard chan domain.InboundEvent, _ int) contract.Worker {
		return workers.NewInboundWorker(shard, d, d.log)
	})
}

// Dispatch queues evt on its user's shard, blocking while the shard is full.
func (d *Dispatcher) Dispatch(ctx context.Context, evt domain.InboundEvent) error {
	shard := d.shards[shardFor(evt.User(), len(d.shards))]
	select {
	case <-ctx.Done():
		return ctx.Err()
	case shard <- evt:
		return nil
	}
}

func shardFor(userID domain.UserID, n int) int {
	i := int(userID % domain.UserID(n))
	if i < 0 {
		i = -i
	}
	return i
}

func (d *Dispatcher) Handle(ctx context.Context, evt domain.InboundEvent) {
	switch e := evt.(type) {
	case domain.FileReceived:
		d.HandleFile(ctx, e)
	case domain.TextReceived:
		d.HandleText(ctx, e)
	case domain.CancelRequested:
		d.HandleCancel(ctx, e)
	default:
		d.log.Debug("Unknown inbound event", "user_id", evt.User())
	}
}

// HandleFile applies admission checks and, when they pass, asks for a name.
func (d *Dispatcher) HandleFile(ctx context.Context, evt domain.FileReceived) {
	if err := d.validate.Struct(evt); err != nil {
		d.log.Warn("Invalid file event", "user_id", evt.SenderID, "error", err)
		return
	}
	file := evt.File
	switch {
	case file.Size > d.config.MaxFileSize:
		d.reject(domain.FileTooLarge)
		d.reply(ctx, evt.SenderID, evt.ChatID, fileTooLarge(file.Size, d.config.MaxFileSize))
		return
	case !d.supported(file):
		d.reject(domain.UnsupportedFormat)
		d.reply(ctx, evt.SenderID, evt.ChatID, unsupportedFormat(file.DisplayName(), d.config.SupportedExtensions))
		return
	case !d.limiter.Check(evt.SenderID):
		d.reject(domain.RateLimitExceeded)
		d.reply(ctx, evt.SenderID, evt.ChatID, rateLimited(d.config.HourlyFileLimit))
		return
	}

	session := d.sessions.BeginAwaiting(evt.SenderID, evt.ChatID, file)
	if session.Stage == domain.Processing {
		d.reply(ctx, evt.SenderID, evt.ChatID, queuedFile(file))
		return
	}
	d.reply(ctx, evt.SenderID, evt.ChatID, promptFilename(file))
}

// HandleText treats text as the requested filename when a file is pending.
func (d *Dispatcher) HandleText(ctx context.Context, evt domain.TextReceived) {
	session, ok := d.sessions.Get(evt.SenderID)
	if !ok || session.Stage == domain.Idle || session.Pending == nil {
		d.reply(ctx, evt.SenderID, evt.ChatID, textSendFileFirst)
		return
	}
	if session.Stage == domain.Processing || d.isRunning(evt.SenderID) {
		d.reply(ctx, evt.SenderID, evt.ChatID, textStillProcessing)
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	active := &activeRun{cancel: cancel}
	d.mu.Lock()
	d.running[evt.SenderID] = active
	d.wg.Add(1)
	d.mu.Unlock()

	req := domain.RenameRequest{
		UserID:        evt.SenderID,
		ChatID:        evt.ChatID,
		File:          *session.Pending,
		RequestedName: strings.TrimSpace(evt.Text),
	}
	go func() {
		defer d.wg.Done()
		defer cancel()
		result := d.processor.Process(runCtx, req)
		d.release(evt.SenderID, active)

		replyCtx := context.WithoutCancel(ctx)
		if text := resultText(result, d.config.HourlyFileLimit); text != "" {
			d.reply(replyCtx, evt.SenderID, evt.ChatID, text)
		}
		if next, ok := d.sessions.Get(evt.SenderID); ok && result.ErrorKind != domain.InvalidFilename &&
			next.Stage == domain.AwaitingFilename && next.Pending != nil && next.Pending.ID != req.File.ID {
			d.reply(replyCtx, evt.SenderID, evt.ChatID, promptFilename(*next.Pending))
		}
	}()
}

// HandleCancel aborts the running pipeline, if any, and clears the session.
func (d *Dispatcher) HandleCancel(ctx context.Context, evt domain.CancelRequested) {
	d.mu.Lock()
	active, running := d.running[evt.SenderID]
	d.mu.Unlock()
	_, hasSession := d.sessions.Get(evt.SenderID)

	if active != nil {
		active.cancel()
	}
	d.sessions.Clear(evt.SenderID)
	if !running && !hasSession {
		d.reply(ctx, evt.SenderID, evt.ChatID, textNothingToCancel)
		return
	}
	d.reply(ctx, evt.SenderID, evt.ChatID, textCancelled)
}

// Wait blocks until every launched pipeline has returned.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) isRunning(userID domain.UserID) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.running[userID]
	return ok
}

func (d *Dispatcher) release(userID domain.UserID, active *activeRun) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running[userID] == active {
		delete(d.running, userID)
	}
}

func (d *Dispatcher) supported(file domain.FileRef) bool {
	if len(d.config.SupportedExtensions) == 0 {
		return true
	}
	return lo.Contains(d.config.SupportedExtensions, strings.ToLower(filepath.Ext(file.Name)))
}

func (d *Dispatcher) reject(kind domain.ErrorKind) {
	if d.metrics != nil {
		d.metrics.Rejections.WithLabelValues(kind.String()).Inc()
	}
}

func (d *Dispatcher) reply(ctx context.Context, userID domain.UserID, chatID domain.ChatID, text string) {
	if !d.guard.ShouldSend(userID, text, d.config.MessageMinInterval) {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, d.config.ReplyTimeout)
	defer cancel()
	if _, err := d.messenger.SendMessage(ctx, chatID, text); err != nil {
		d.log.Warn("Reply not sent", "user_id", userID, "error", err)
	}
}
