package runtime

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"file-renamer/clock"
	"file-renamer/domain"
	"file-renamer/guard"
	"file-renamer/mocks"
	"file-renamer/ratelimit"
	"file-renamer/session"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type outbox struct {
	mu    sync.Mutex
	texts []string
}

func (o *outbox) add(text string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.texts = append(o.texts, text)
}

func (o *outbox) all() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.texts...)
}

type dispatcherFixture struct {
	dispatcher *Dispatcher
	processor  *mocks.MockProcessor
	sessions   *session.Store
	limiter    *ratelimit.Limiter
	clock      *clock.Fake
	sent       *outbox
}

func newDispatcherFixture(t *testing.T, shards int) *dispatcherFixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	c := clock.NewFake(time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC))
	messenger := mocks.NewMockMessenger(ctrl)
	processor := mocks.NewMockProcessor(ctrl)
	sessions := session.NewStore(c)
	limiter := ratelimit.NewLimiter(c, 20, time.Hour)
	sent := &outbox{}
	messenger.EXPECT().SendMessage(gomock.Any(), chat, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ domain.ChatID, text string) (domain.MessageHandle, error) {
			sent.add(text)
			return domain.MessageHandle{ChatID: chat, MessageID: 5}, nil
		}).AnyTimes()

	d := NewDispatcher(slog.Default(), sessions, limiter, guard.NewGuard(c), messenger, processor, nil, DispatcherConfig{
		Shards:              shards,
		BufferSize:          8,
		MaxFileSize:         4 * domain.GB,
		HourlyFileLimit:     20,
		SupportedExtensions: []string{".mp4", ".pdf", ".zip"},
		MessageMinInterval:  2 * time.Second,
	})
	return &dispatcherFixture{dispatcher: d, processor: processor, sessions: sessions,
		limiter: limiter, clock: c, sent: sent}
}

func fileEvent(file domain.FileRef) domain.FileReceived {
	return domain.FileReceived{File: file, ChatID: chat, SenderID: user}
}

func textEvent(text string) domain.TextReceived {
	return domain.TextReceived{Text: text, ChatID: chat, SenderID: user}
}

func TestDispatcher_HandleFileAdmission(t *testing.T) {
	tests := []struct {
		description string
		file        domain.FileRef
		prefill     int
		wantSession bool
		wantReply   string
	}{
		{
			description: "valid file prompts for a name",
			file:        video(),
			wantSession: true,
			wantReply:   promptFilename(video()),
		},
		{
			description: "file above the size limit",
			file:        domain.FileRef{ID: "big", Name: "big.zip", Size: 5 * domain.GB},
			wantReply:   fileTooLarge(5*domain.GB, 4*domain.GB),
		},
		{
			description: "unsupported extension",
			file:        domain.FileRef{ID: "exe", Name: "setup.exe", Size: domain.MB},
			wantReply:   unsupportedFormat("setup.exe", []string{".mp4", ".pdf", ".zip"}),
		},
		{
			description: "hourly quota already used",
			file:        video(),
			prefill:     20,
			wantReply:   rateLimited(20),
		},
	}

	for _, tt := range tests {
		t.Run(tt.description, func(t *testing.T) {
			req := require.New(t)
			f := newDispatcherFixture(t, 1)
			for i := 0; i < tt.prefill; i++ {
				f.limiter.Admit(user)
			}

			f.dispatcher.Handle(context.Background(), fileEvent(tt.file))

			sess, ok := f.sessions.Get(user)
			req.Equal(tt.wantSession, ok)
			if tt.wantSession {
				req.Equal(domain.AwaitingFilename, sess.Stage)
				req.Equal(tt.file.ID, sess.Pending.ID)
			}
			req.Equal([]string{tt.wantReply}, f.sent.all())
			req.Equal(tt.prefill, f.limiter.Count(user))
		})
	}
}

func TestDispatcher_InvalidEventIsDropped(t *testing.T) {
	req := require.New(t)
	f := newDispatcherFixture(t, 1)

	f.dispatcher.Handle(context.Background(), domain.FileReceived{File: video(), ChatID: chat})

	req.Zero(f.sessions.Len())
	req.Empty(f.sent.all())
}

func TestDispatcher_TextWithoutFile(t *testing.T) {
	req := require.New(t)
	f := newDispatcherFixture(t, 1)

	f.dispatcher.Handle(context.Background(), textEvent("hello"))

	req.Equal([]string{textSendFileFirst}, f.sent.all())
}

func TestDispatcher_TextStartsProcessing(t *testing.T) {
	req := require.New(t)
	f := newDispatcherFixture(t, 1)
	f.dispatcher.Handle(context.Background(), fileEvent(video()))

	f.processor.EXPECT().Process(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, r domain.RenameRequest) domain.ProcessingResult {
			req.Equal("my_video", r.RequestedName)
			req.Equal(video(), r.File)
			f.sessions.Clear(user)
			return domain.ProcessingResult{Success: true, NewFileName: "my_video.mp4"}
		})

	f.dispatcher.Handle(context.Background(), textEvent("  my_video \n"))
	f.dispatcher.Wait()

	req.Equal([]string{promptFilename(video())}, f.sent.all())
}

func TestDispatcher_FailureIsReported(t *testing.T) {
	req := require.New(t)
	f := newDispatcherFixture(t, 1)
	f.dispatcher.Handle(context.Background(), fileEvent(video()))

	f.processor.EXPECT().Process(gomock.Any(), gomock.Any()).
		Return(domain.ProcessingResult{ErrorKind: domain.DownloadFailed, RetryAfter: 30 * time.Second})

	f.dispatcher.Handle(context.Background(), textEvent("my_video"))
	f.dispatcher.Wait()

	sent := f.sent.all()
	req.Len(sent, 2)
	req.Contains(sent[1], "Download failed")
	req.Contains(sent[1], "30s")
}

func TestDispatcher_SecondTextWhileRunning(t *testing.T) {
	req := require.New(t)
	f := newDispatcherFixture(t, 1)
	f.dispatcher.Handle(context.Background(), fileEvent(video()))

	started := make(chan struct{})
	proceed := make(chan struct{})
	f.processor.EXPECT().Process(gomock.Any(), gomock.Any()).
		DoAndReturn(func(context.Context, domain.RenameRequest) domain.ProcessingResult {
			close(started)
			<-proceed
			return domain.ProcessingResult{Success: true}
		})

	f.dispatcher.Handle(context.Background(), textEvent("first"))
	<-started
	f.dispatcher.Handle(context.Background(), textEvent("second"))
	close(proceed)
	f.dispatcher.Wait()

	req.Equal([]string{promptFilename(video()), textStillProcessing}, f.sent.all())
}

func TestDispatcher_CancelRunningPipeline(t *testing.T) {
	req := require.New(t)
	f := newDispatcherFixture(t, 1)
	f.dispatcher.Handle(context.Background(), fileEvent(video()))

	started := make(chan struct{})
	f.processor.EXPECT().Process(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, _ domain.RenameRequest) domain.ProcessingResult {
			close(started)
			<-ctx.Done()
			return domain.Failed(domain.Cancelled, ctx.Err())
		})

	f.dispatcher.Handle(context.Background(), textEvent("my_video"))
	<-started
	f.dispatcher.Handle(context.Background(), domain.CancelRequested{ChatID: chat, SenderID: user})
	f.dispatcher.Wait()

	_, ok := f.sessions.Get(user)
	req.False(ok)
	req.Equal([]string{promptFilename(video()), textCancelled}, f.sent.all())
}

func TestDispatcher_CancelWithNothingRunning(t *testing.T) {
	req := require.New(t)
	f := newDispatcherFixture(t, 1)

	f.dispatcher.Handle(context.Background(), domain.CancelRequested{ChatID: chat, SenderID: user})

	req.Equal([]string{textNothingToCancel}, f.sent.all())
}

func TestDispatcher_FileDuringProcessingIsPromptedAfterwards(t *testing.T) {
	req := require.New(t)
	f := newDispatcherFixture(t, 1)
	first := video()
	second := domain.FileRef{ID: "doc-2", Kind: domain.Document, Name: "report.pdf", Size: domain.MB}
	f.dispatcher.Handle(context.Background(), fileEvent(first))

	started := make(chan struct{})
	proceed := make(chan struct{})
	f.processor.EXPECT().Process(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, r domain.RenameRequest) domain.ProcessingResult {
			sess, err := f.sessions.AdvanceToProcessing(r.UserID)
			req.NoError(err)
			close(started)
			<-proceed
			f.sessions.Finish(sess)
			return domain.ProcessingResult{Success: true}
		})

	f.dispatcher.Handle(context.Background(), textEvent("renamed"))
	<-started
	f.dispatcher.Handle(context.Background(), fileEvent(second))
	close(proceed)
	f.dispatcher.Wait()

	sess, ok := f.sessions.Get(user)
	req.True(ok)
	req.Equal(domain.AwaitingFilename, sess.Stage)
	req.Equal(second.ID, sess.Pending.ID)
	req.Equal([]string{promptFilename(first), queuedFile(second), promptFilename(second)}, f.sent.all())
}

func TestDispatcher_ShardFor(t *testing.T) {
	req := require.New(t)

	req.Equal(shardFor(42, 4), shardFor(42, 4))
	req.Equal(2, shardFor(42, 4))
	req.Equal(2, shardFor(-42, 4))
	req.Zero(shardFor(99, 1))
}

func TestDispatcher_DispatchRespectsContext(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	c := clock.NewFake(time.Now())
	d := NewDispatcher(slog.Default(), session.NewStore(c), ratelimit.NewLimiter(c, 20, time.Hour),
		guard.NewGuard(c), mocks.NewMockMessenger(ctrl), mocks.NewMockProcessor(ctrl), nil,
		DispatcherConfig{Shards: 1, BufferSize: 1})

	req.NoError(d.Dispatch(context.Background(), textEvent("first")))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req.ErrorIs(d.Dispatch(ctx, textEvent("second")), context.Canceled)
}

func TestDispatcher_WorkersDeliverInOrder(t *testing.T) {
	req := require.New(t)
	f := newDispatcherFixture(t, 3)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	f.processor.EXPECT().Process(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, r domain.RenameRequest) domain.ProcessingResult {
			defer close(done)
			req.Equal("my_video", r.RequestedName)
			return domain.ProcessingResult{Success: true}
		})

	workers := f.dispatcher.Workers()
	req.Len(workers, 3)
	for _, w := range workers {
		go func() { _ = w.Run(ctx) }()
	}
	req.NoError(f.dispatcher.Dispatch(ctx, fileEvent(video())))
	req.NoError(f.dispatcher.Dispatch(ctx, textEvent("my_video")))

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		req.FailNow("processor was never called")
	}
	f.dispatcher.Wait()
}
