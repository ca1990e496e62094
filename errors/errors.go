package errors

import (
	stderrors "errors"
	"fmt"
	"time"

	"file-renamer/domain"
)

var (
	ErrWorkerPanic        = fmt.Errorf("worker panic")
	ErrNoActiveSession    = fmt.Errorf("no active session")
	ErrInvalidFilename    = fmt.Errorf("invalid filename")
	ErrNotFound           = fmt.Errorf("file not found")
	ErrCollision          = fmt.Errorf("target already exists")
	ErrRenameIO           = fmt.Errorf("rename failed")
	ErrSourceUnavailable  = fmt.Errorf("source unavailable")
	ErrSinkRejected       = fmt.Errorf("sink rejected transfer")
	ErrFileTooLarge       = fmt.Errorf("file too large")
	ErrUnsupportedFormat  = fmt.Errorf("unsupported format")
	ErrRateLimitExceeded  = fmt.Errorf("hourly file limit reached")
	ErrThumbnailQueueFull = fmt.Errorf("thumbnail queue full")
)

// RateLimitError is returned by the transport when the remote side asks
// the caller to back off.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

// AsRateLimit unwraps a RateLimitError from err.
func AsRateLimit(err error) (*RateLimitError, bool) {
	var rl *RateLimitError
	if stderrors.As(err, &rl) {
		return rl, true
	}
	return nil, false
}

type TransferErrorKind int

const (
	SourceUnavailable TransferErrorKind = iota
	SinkRejected
	RateLimited
	TransportFailure
	TransferCancelled
)

func (k TransferErrorKind) String() string {
	switch k {
	case SourceUnavailable:
		return "source_unavailable"
	case SinkRejected:
		return "sink_rejected"
	case RateLimited:
		return "rate_limited"
	case TransferCancelled:
		return "cancelled"
	default:
		return "transport_error"
	}
}

type TransferError struct {
	Direction  domain.Direction
	Kind       TransferErrorKind
	RetryAfter time.Duration
	Err        error
}

func (e *TransferError) Error() string {
	if e.Kind == RateLimited {
		return fmt.Sprintf("%s %s: retry after %s", e.Direction, e.Kind, e.RetryAfter)
	}
	return fmt.Sprintf("%s %s: %v", e.Direction, e.Kind, e.Err)
}

func (e *TransferError) Unwrap() error { return e.Err }

func AsTransfer(err error) (*TransferError, bool) {
	var te *TransferError
	if stderrors.As(err, &te) {
		return te, true
	}
	return nil, false
}

// Is and As mirror the standard library so callers importing this package
// under its own name do not need a second errors import.
func Is(err, target error) bool { return stderrors.Is(err, target) }

func As(err error, target any) bool { return stderrors.As(err, target) }

func Join(errs ...error) error { return stderrors.Join(errs...) }
