package runtime

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"file-renamer/domain"
	"file-renamer/transfer"

	"github.com/dustin/go-humanize"
)

const (
	textSendFileFirst   = "Send me a file first, then I will ask for its new name."
	textStillProcessing = "Your previous file is still being processed, please wait."
	textCancelled       = "Cancelled. Send a new file whenever you are ready."
	textNothingToCancel = "There is nothing to cancel."
	textStarting        = "Preparing your file..."
)

// TimedOutNotice is sent when a pending file expires before a name arrives.
const TimedOutNotice = "No filename received in time, the file was dropped. Send it again to retry."

func promptFilename(file domain.FileRef) string {
	ext := filepath.Ext(file.Name)
	if ext == "" {
		return fmt.Sprintf("Received %s (%s). Send the new filename.",
			file.DisplayName(), humanize.IBytes(uint64(file.Size)))
	}
	return fmt.Sprintf("Received %s (%s). Send the new filename, the %s extension is kept.",
		file.DisplayName(), humanize.IBytes(uint64(file.Size)), ext)
}

func queuedFile(file domain.FileRef) string {
	return fmt.Sprintf("Got %s. I will ask for its name once the current file is done.", file.DisplayName())
}

func fileTooLarge(size, limit int64) string {
	return fmt.Sprintf("This file is %s, the maximum is %s.",
		humanize.IBytes(uint64(size)), humanize.IBytes(uint64(limit)))
}

func unsupportedFormat(name string, supported []string) string {
	return fmt.Sprintf("%s is not a supported format. Supported: %s.",
		name, strings.Join(supported, ", "))
}

func rateLimited(limit int) string {
	return fmt.Sprintf("You reached the limit of %d files per hour. Try again later.", limit)
}

func invalidFilename(err error) string {
	return fmt.Sprintf("That name cannot be used (%v). Send another one.", err)
}

func uploadingStatus(name string) string {
	return fmt.Sprintf("Uploading %s...", name)
}

// Caption is attached to the renamed file.
func Caption(original, renamed string, size int64, elapsed time.Duration) string {
	return fmt.Sprintf("%s\n\nOriginal: %s\nSize: %s\nProcessing time: %s",
		renamed, original, humanize.IBytes(uint64(size)), transfer.FormatDuration(elapsed))
}

// resultText is what the user reads once a run is over; "" means stay silent.
func resultText(result domain.ProcessingResult, limit int) string {
	if result.Success {
		return ""
	}
	switch result.ErrorKind {
	case domain.InvalidFilename:
		return invalidFilename(result.Err)
	case domain.RateLimitExceeded:
		return rateLimited(limit)
	case domain.Cancelled:
		return ""
	case domain.DownloadFailed:
		return failure("Download failed", result)
	case domain.RenameFailed:
		return failure("Rename failed", result)
	default:
		return failure("Upload failed", result)
	}
}

func failure(prefix string, result domain.ProcessingResult) string {
	if result.RetryAfter > 0 {
		return fmt.Sprintf("%s: the server asked to wait %s. Send the file again later.",
			prefix, transfer.FormatDuration(result.RetryAfter))
	}
	return prefix + ". Please send the file again."
}
