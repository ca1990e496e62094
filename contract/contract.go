//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"reflect"
	"time"

	"file-renamer/domain"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

type WorkerName string

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

// ProgressFunc is called by the transport with the bytes moved so far.
// A non-nil return aborts the transfer.
type ProgressFunc func(current, total int64) error

type Messenger interface {
	SendMessage(ctx context.Context, chatID domain.ChatID, text string) (domain.MessageHandle, error)
	EditMessage(ctx context.Context, handle domain.MessageHandle, text string) error
	DeleteMessage(ctx context.Context, handle domain.MessageHandle) error
}

// Transport is the chat platform client.
type Transport interface {
	Messenger
	DownloadFile(ctx context.Context, file domain.FileRef, dest string, progress ProgressFunc) error
	SendFile(ctx context.Context, file domain.OutgoingFile, progress ProgressFunc) error
}

type ActivitySink interface {
	Consume(ctx context.Context, record domain.ActivityRecord) error
}

type ActivityRecorder interface {
	Record(ctx context.Context, record domain.ActivityRecord)
}

// Flusher delivers whatever a stopped worker still holds.
type Flusher interface {
	Flush()
}

type MessageGuard interface {
	ShouldSend(userID domain.UserID, text string, minInterval time.Duration) bool
}

type RateLimiter interface {
	Check(userID domain.UserID) bool
	Admit(userID domain.UserID) bool
}

type SessionStore interface {
	Get(userID domain.UserID) (domain.Session, bool)
	BeginAwaiting(userID domain.UserID, chatID domain.ChatID, file domain.FileRef) domain.Session
	AdvanceToProcessing(userID domain.UserID) (domain.Session, error)
	Finish(session domain.Session) (domain.Session, bool)
	Rearm(session domain.Session) (domain.Session, bool)
	Clear(userID domain.UserID)
	ClearExpired(cutoff time.Time) []domain.Session
}

type Thumbnailer interface {
	// Thumbnail returns the path of a thumbnail for src, or "" when none applies.
	Thumbnail(ctx context.Context, src, workDir string) (string, error)
}

type Processor interface {
	Process(ctx context.Context, req domain.RenameRequest) domain.ProcessingResult
}

// InboundHandler consumes the events of one user in arrival order.
type InboundHandler interface {
	Handle(ctx context.Context, evt domain.InboundEvent)
}

// InboundDispatcher queues events for their user's handler.
type InboundDispatcher interface {
	Dispatch(ctx context.Context, evt domain.InboundEvent) error
}
