package domain

import "time"

type ErrorKind int

const (
	None ErrorKind = iota
	FileTooLarge
	UnsupportedFormat
	RateLimitExceeded
	InvalidFilename
	DownloadFailed
	RenameFailed
	UploadFailed
	Cancelled
)

func (k ErrorKind) String() string {
	switch k {
	case FileTooLarge:
		return "file_too_large"
	case UnsupportedFormat:
		return "unsupported_format"
	case RateLimitExceeded:
		return "rate_limit_exceeded"
	case InvalidFilename:
		return "invalid_filename"
	case DownloadFailed:
		return "download_failed"
	case RenameFailed:
		return "rename_failed"
	case UploadFailed:
		return "upload_failed"
	case Cancelled:
		return "cancelled"
	default:
		return "none"
	}
}

// ProcessingResult is the outcome of one pipeline run.
type ProcessingResult struct {
	Success     bool
	ErrorKind   ErrorKind
	Err         error
	NewFilePath string
	NewFileName string
	Bytes       int64
	Elapsed     time.Duration
	RetryAfter  time.Duration
}

func Failed(kind ErrorKind, err error) ProcessingResult {
	return ProcessingResult{ErrorKind: kind, Err: err}
}
