package domain

import (
	"time"

	"github.com/google/uuid"
)

type ActivityKind string

const (
	ActivitySucceeded ActivityKind = "SUCCEEDED"
	ActivityFailed    ActivityKind = "FAILED"
)

// ActivityRecord is the audit line written for every finished pipeline run.
type ActivityRecord struct {
	ID           uuid.UUID
	Kind         ActivityKind
	UserID       UserID
	ChatID       ChatID
	OriginalName string
	NewName      string
	Size         int64
	Duration     time.Duration
	Step         string
	Reason       string
	At           time.Time
}
