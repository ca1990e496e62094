package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"file-renamer/clock"
	"file-renamer/contract"
	"file-renamer/domain"
	"file-renamer/errors"
	"file-renamer/guard"
	"file-renamer/mocks"
	"file-renamer/ratelimit"
	"file-renamer/rename"
	"file-renamer/session"
	"file-renamer/transfer"

	"github.com/google/uuid"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

const (
	user = domain.UserID(7)
	chat = domain.ChatID(70)
)

var statusHandle = domain.MessageHandle{ChatID: chat, MessageID: 1}

type fixture struct {
	pipeline  *Pipeline
	transport *mocks.MockTransport
	activity  *mocks.MockActivityRecorder
	sessions  *session.Store
	limiter   *ratelimit.Limiter
	guard     *guard.Guard
	clock     *clock.Fake
	dir       string
	edits     atomic.Int32
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	c := clock.NewFake(time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC))
	transport := mocks.NewMockTransport(ctrl)
	activity := mocks.NewMockActivityRecorder(ctrl)
	sessions := session.NewStore(c)
	limiter := ratelimit.NewLimiter(c, 20, time.Hour)
	g := guard.NewGuard(c)
	dir := t.TempDir()
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	engine := transfer.NewEngine(log, transport, c, g, nil, nil, transfer.EngineConfig{
		DownloadSlots:      2,
		UploadSlots:        2,
		Policy:             transfer.Policy{MinInterval: 5 * time.Second, MinPercentDelta: 5, CompletionPercent: 100},
		MessageMinInterval: 2 * time.Second,
	})
	pipeline := NewPipeline(log, c, sessions, limiter, g, transport, rename.NewRenamer(log, 100),
		engine, nil, activity, nil, nil, PipelineConfig{DownloadDir: dir, MessageMinInterval: 2 * time.Second})

	f := &fixture{pipeline: pipeline, transport: transport, activity: activity,
		sessions: sessions, limiter: limiter, guard: g, clock: c, dir: dir}
	transport.EXPECT().SendMessage(gomock.Any(), chat, gomock.Any()).Return(statusHandle, nil).AnyTimes()
	transport.EXPECT().EditMessage(gomock.Any(), statusHandle, gomock.Any()).DoAndReturn(
		func(context.Context, domain.MessageHandle, string) error {
			f.edits.Add(1)
			return nil
		}).AnyTimes()
	transport.EXPECT().DeleteMessage(gomock.Any(), statusHandle).Return(nil).AnyTimes()
	return f
}

func (f *fixture) requireNoLeftovers(t *testing.T) {
	t.Helper()
	entries, err := os.ReadDir(f.dir)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func (f *fixture) expectDownload(payload []byte, err error) {
	f.transport.EXPECT().
		DownloadFile(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, file domain.FileRef, dest string, progress contract.ProgressFunc) error {
			if writeErr := os.WriteFile(dest, payload, 0o600); writeErr != nil {
				return writeErr
			}
			for step := int64(1); step <= 10; step++ {
				f.clock.Advance(time.Second)
				if perr := progress(file.Size*step/10, file.Size); perr != nil {
					return perr
				}
			}
			return err
		})
}

func video() domain.FileRef {
	return domain.FileRef{ID: "vid-1", Kind: domain.Video, Name: "video.mp4", Size: 600 * domain.MB, MimeType: "video/mp4"}
}

func TestPipeline_ProcessSuccess(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	file := video()
	f.sessions.BeginAwaiting(user, chat, file)
	f.expectDownload([]byte("not really 600MB"), nil)

	var sent domain.OutgoingFile
	f.transport.EXPECT().
		SendFile(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, out domain.OutgoingFile, progress contract.ProgressFunc) error {
			sent = out
			content, err := os.ReadFile(out.Path)
			req.NoError(err)
			req.Equal("not really 600MB", string(content))
			return progress(int64(len(content)), int64(len(content)))
		})
	f.activity.EXPECT().Record(gomock.Any(), gomock.Any()).Do(func(_ context.Context, r domain.ActivityRecord) {
		req.Equal(domain.ActivitySucceeded, r.Kind)
		req.Equal("video.mp4", r.OriginalName)
		req.Equal("my_video.mp4", r.NewName)
	})

	result := f.pipeline.Process(context.Background(), domain.RenameRequest{
		UserID: user, ChatID: chat, File: file, RequestedName: "my_video",
	})

	req.True(result.Success, "unexpected failure: %v", result.Err)
	req.Equal("my_video.mp4", result.NewFileName)
	req.Equal("my_video.mp4", sent.FileName)
	req.Equal(domain.Video, sent.Kind)
	req.Equal(chat, sent.ChatID)
	req.Contains(sent.Caption, "Original: video.mp4")
	req.Greater(result.Elapsed, time.Duration(0))
	_, ok := f.sessions.Get(user)
	req.False(ok)
	req.Equal(1, f.limiter.Count(user))
	f.requireNoLeftovers(t)
}

func TestPipeline_ProgressSurvivesGuardedStatusText(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	file := video()
	f.sessions.BeginAwaiting(user, chat, file)
	req.True(f.guard.ShouldSend(user, textStarting, 2*time.Second))
	f.expectDownload([]byte("payload"), nil)
	f.transport.EXPECT().SendFile(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)
	f.activity.EXPECT().Record(gomock.Any(), gomock.Any())

	result := f.pipeline.Process(context.Background(), domain.RenameRequest{
		UserID: user, ChatID: chat, File: file, RequestedName: "my_video",
	})

	req.True(result.Success, "unexpected failure: %v", result.Err)
	req.Positive(f.edits.Load())
	f.requireNoLeftovers(t)
}

func TestPipeline_InvalidFilenameKeepsSession(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	f.sessions.BeginAwaiting(user, chat, video())

	result := f.pipeline.Process(context.Background(), domain.RenameRequest{
		UserID: user, ChatID: chat, File: video(), RequestedName: "a/b",
	})

	req.False(result.Success)
	req.Equal(domain.InvalidFilename, result.ErrorKind)
	req.ErrorIs(result.Err, errors.ErrInvalidFilename)
	sess, ok := f.sessions.Get(user)
	req.True(ok)
	req.Equal(domain.AwaitingFilename, sess.Stage)
	req.Zero(f.limiter.Count(user))
}

func TestPipeline_RateLimitKeepsSessionAndCounter(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	for i := 0; i < 20; i++ {
		req.True(f.limiter.Admit(user))
	}
	f.sessions.BeginAwaiting(user, chat, video())
	f.activity.EXPECT().Record(gomock.Any(), gomock.Any()).Do(func(_ context.Context, r domain.ActivityRecord) {
		req.Equal(domain.ActivityFailed, r.Kind)
		req.Equal("admit", r.Step)
	})

	result := f.pipeline.Process(context.Background(), domain.RenameRequest{
		UserID: user, ChatID: chat, File: video(), RequestedName: "my_video",
	})

	req.Equal(domain.RateLimitExceeded, result.ErrorKind)
	req.Equal(20, f.limiter.Count(user))
	sess, ok := f.sessions.Get(user)
	req.True(ok)
	req.Equal(domain.AwaitingFilename, sess.Stage)
	req.Equal(uuid.Nil, sess.RunID)
	f.requireNoLeftovers(t)
}

func TestPipeline_FailuresCleanUp(t *testing.T) {
	tests := []struct {
		description string
		setup       func(f *fixture)
		wantKind    domain.ErrorKind
		wantStep    string
		wantRetry   time.Duration
	}{
		{
			description: "download fails after writing a partial file",
			setup: func(f *fixture) {
				f.expectDownload([]byte("partial"), fmt.Errorf("connection reset"))
			},
			wantKind: domain.DownloadFailed,
			wantStep: "download",
		},
		{
			description: "download rate limited on the data path",
			setup: func(f *fixture) {
				f.expectDownload([]byte("partial"), &errors.RateLimitError{RetryAfter: 42 * time.Second})
			},
			wantKind:  domain.DownloadFailed,
			wantStep:  "download",
			wantRetry: 42 * time.Second,
		},
		{
			description: "sink rejects the upload",
			setup: func(f *fixture) {
				f.expectDownload([]byte("payload"), nil)
				f.transport.EXPECT().SendFile(gomock.Any(), gomock.Any(), gomock.Any()).Return(errors.ErrSinkRejected)
			},
			wantKind: domain.UploadFailed,
			wantStep: "upload",
		},
		{
			description: "transport panics during upload",
			setup: func(f *fixture) {
				f.expectDownload([]byte("payload"), nil)
				f.transport.EXPECT().SendFile(gomock.Any(), gomock.Any(), gomock.Any()).
					DoAndReturn(func(context.Context, domain.OutgoingFile, contract.ProgressFunc) error {
						panic("nil pointer somewhere")
					})
			},
			wantKind: domain.UploadFailed,
			wantStep: "upload",
		},
	}

	for _, tt := range tests {
		t.Run(tt.description, func(t *testing.T) {
			req := require.New(t)
			f := newFixture(t)
			f.sessions.BeginAwaiting(user, chat, video())
			tt.setup(f)
			f.activity.EXPECT().Record(gomock.Any(), gomock.Any()).Do(func(_ context.Context, r domain.ActivityRecord) {
				req.Equal(domain.ActivityFailed, r.Kind)
				req.Equal(tt.wantStep, r.Step)
				req.NotEmpty(r.Reason)
			})

			result := f.pipeline.Process(context.Background(), domain.RenameRequest{
				UserID: user, ChatID: chat, File: video(), RequestedName: "my_video",
			})

			req.False(result.Success)
			req.Equal(tt.wantKind, result.ErrorKind)
			req.Equal(tt.wantRetry, result.RetryAfter)
			_, ok := f.sessions.Get(user)
			req.False(ok)
			f.requireNoLeftovers(t)
		})
	}
}

func TestPipeline_CancelledMidDownload(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	f.sessions.BeginAwaiting(user, chat, video())
	ctx, cancel := context.WithCancel(context.Background())

	f.transport.EXPECT().
		DownloadFile(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, file domain.FileRef, dest string, progress contract.ProgressFunc) error {
			req.NoError(os.WriteFile(dest, []byte("half"), 0o600))
			cancel()
			return progress(file.Size/2, file.Size)
		})
	f.activity.EXPECT().Record(gomock.Any(), gomock.Any())

	result := f.pipeline.Process(ctx, domain.RenameRequest{
		UserID: user, ChatID: chat, File: video(), RequestedName: "my_video",
	})

	req.Equal(domain.Cancelled, result.ErrorKind)
	f.requireNoLeftovers(t)
}

func TestPipeline_WithoutSessionIsCancelled(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)

	result := f.pipeline.Process(context.Background(), domain.RenameRequest{
		UserID: user, ChatID: chat, File: video(), RequestedName: "my_video",
	})

	req.Equal(domain.Cancelled, result.ErrorKind)
	req.ErrorIs(result.Err, errors.ErrNoActiveSession)
	req.Zero(f.limiter.Count(user))
	f.requireNoLeftovers(t)
}

func TestPipeline_DownloadNameIsSanitized(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	file := domain.FileRef{ID: "x", Name: "../../etc/passwd", Size: 10}
	f.sessions.BeginAwaiting(user, chat, file)

	f.transport.EXPECT().
		DownloadFile(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ domain.FileRef, dest string, _ contract.ProgressFunc) error {
			req.True(strings.HasPrefix(dest, f.dir))
			req.True(strings.HasSuffix(dest, "_passwd"))
			return os.WriteFile(dest, []byte("x"), 0o600)
		})
	f.transport.EXPECT().SendFile(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)
	f.activity.EXPECT().Record(gomock.Any(), gomock.Any())

	result := f.pipeline.Process(context.Background(), domain.RenameRequest{
		UserID: user, ChatID: chat, File: file, RequestedName: "safe",
	})

	req.True(result.Success)
	req.Equal("safe", result.NewFileName)
	f.requireNoLeftovers(t)
}
