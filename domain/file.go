package domain

import "file-renamer/domain/mimetypes"

type FileID string

type UserID int64

type ChatID int64

type FileKind int

const (
	Document FileKind = iota
	Video
	Audio
)

func (k FileKind) String() string {
	switch k {
	case Video:
		return "video"
	case Audio:
		return "audio"
	default:
		return "document"
	}
}

// FileRef is the transport's description of a received file.
// It is resolved once when the file arrives, whatever its kind.
type FileRef struct {
	ID       FileID `validate:"required,max=1024"`
	Kind     FileKind
	Name     string `validate:"max=1024"`
	Size     int64  `validate:"gte=0"`
	MimeType mimetypes.MIME
}

// DisplayName falls back to the file id when the transport did not declare a name.
func (f FileRef) DisplayName() string {
	if f.Name != "" {
		return f.Name
	}
	return string(f.ID)
}

type MessageHandle struct {
	ChatID    ChatID
	MessageID int64
}

const KB = 1024
const MB = KB * KB
const GB = MB * KB

// OutgoingFile describes a file sent back to the user.
type OutgoingFile struct {
	ChatID        ChatID
	Path          string
	FileName      string
	Kind          FileKind
	Caption       string
	ThumbnailPath string
}

// RenameRequest asks the pipeline to deliver File back under RequestedName.
type RenameRequest struct {
	UserID        UserID
	ChatID        ChatID
	File          FileRef
	RequestedName string
}
