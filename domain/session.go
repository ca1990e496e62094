package domain

import (
	"time"

	"github.com/google/uuid"
)

type Stage int

const (
	Idle Stage = iota
	AwaitingFilename
	Processing
)

func (s Stage) String() string {
	switch s {
	case AwaitingFilename:
		return "awaiting_filename"
	case Processing:
		return "processing"
	default:
		return "idle"
	}
}

// Session is the per-user conversation state.
// Pending is set whenever Stage is AwaitingFilename or Processing.
// RunID identifies the pipeline run owning a Processing session, and
// Superseded marks that a newer file replaced Pending during that run.
type Session struct {
	UserID     UserID
	ChatID     ChatID
	Stage      Stage
	Pending    *FileRef
	ReceivedAt time.Time
	RunID      uuid.UUID
	Superseded bool
}

// RateWindow counts files admitted since WindowStart.
type RateWindow struct {
	Count       int
	WindowStart time.Time
}
