// Package local implements a filesystem transport for running the bot
// without a messaging platform.
package local

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"file-renamer/contract"
	"file-renamer/domain"
	"file-renamer/domain/mimetypes"
	"file-renamer/errors"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/gookit/color"
)

var _ contract.Transport = (*Transport)(nil)

type Config struct {
	OutboxDir    string
	MaxUpload    int64
	EditInterval time.Duration
	ChunkSize    int
	Colours      bool
}

// Transport serves registered local files as downloads and copies uploads
// into an outbox directory. Messages are printed to out.
type Transport struct {
	log    *slog.Logger
	clock  contract.Clock
	out    io.Writer
	config Config

	mu         sync.Mutex
	files      map[domain.FileID]string
	nextID     int64
	lastEdit   map[domain.MessageHandle]time.Time
	bufferPool *sync.Pool
}

func NewTransport(log *slog.Logger, clock contract.Clock, out io.Writer, config Config) *Transport {
	if config.ChunkSize <= 0 {
		config.ChunkSize = 512 * domain.KB
	}
	chunk := config.ChunkSize
	return &Transport{
		log:      log,
		clock:    clock,
		out:      out,
		config:   config,
		files:    make(map[domain.FileID]string),
		lastEdit: make(map[domain.MessageHandle]time.Time),
		bufferPool: &sync.Pool{
			New: func() any {
				b := make([]byte, chunk)
				return &b
			},
		},
	}
}

// Register makes path downloadable and describes it the way a platform would.
func (t *Transport) Register(path string) (domain.FileRef, error) {
	info, err := os.Stat(path)
	if err != nil {
		return domain.FileRef{}, fmt.Errorf("%w: %s", errors.ErrNotFound, path)
	}
	if !info.Mode().IsRegular() {
		return domain.FileRef{}, fmt.Errorf("%w: %s is not a regular file", errors.ErrNotFound, path)
	}
	mime := mimetypes.OctetStream
	if detected, err := mimetype.DetectFile(path); err == nil {
		mime = mimetypes.ToMIME(detected.String())
	}
	kind := domain.Document
	switch {
	case mime.IsVideo():
		kind = domain.Video
	case mime.IsAudio():
		kind = domain.Audio
	}

	ref := domain.FileRef{
		ID:       domain.FileID(uuid.NewString()),
		Kind:     kind,
		Name:     filepath.Base(path),
		Size:     info.Size(),
		MimeType: mime,
	}
	t.mu.Lock()
	t.files[ref.ID] = path
	t.mu.Unlock()
	return ref, nil
}

func (t *Transport) DownloadFile(ctx context.Context, file domain.FileRef, dest string, progress contract.ProgressFunc) error {
	t.mu.Lock()
	path, ok := t.files[file.ID]
	t.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: unknown file %s", errors.ErrSourceUnavailable, file.ID)
	}
	src, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: %v", errors.ErrSourceUnavailable, err)
	}
	defer src.Close()

	dst, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	defer dst.Close()

	return t.copy(ctx, dst, src, file.Size, progress)
}

func (t *Transport) SendFile(ctx context.Context, file domain.OutgoingFile, progress contract.ProgressFunc) error {
	info, err := os.Stat(file.Path)
	if err != nil {
		return fmt.Errorf("%w: %v", errors.ErrSourceUnavailable, err)
	}
	if t.config.MaxUpload > 0 && info.Size() > t.config.MaxUpload {
		return fmt.Errorf("%w: %d bytes exceeds %d", errors.ErrSinkRejected, info.Size(), t.config.MaxUpload)
	}
	src, err := os.Open(file.Path)
	if err != nil {
		return fmt.Errorf("%w: %v", errors.ErrSourceUnavailable, err)
	}
	defer src.Close()

	dir := filepath.Join(t.config.OutboxDir, fmt.Sprintf("%d", file.ChatID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrSinkRejected, err)
	}
	target := filepath.Join(dir, file.FileName)
	dst, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("%w: %v", errors.ErrSinkRejected, err)
	}
	defer dst.Close()

	if err := t.copy(ctx, dst, src, info.Size(), progress); err != nil {
		_ = os.Remove(target)
		return err
	}
	t.say(file.ChatID, color.FgGreen, fmt.Sprintf("[%s] %s", file.Kind, target))
	if file.Caption != "" {
		t.say(file.ChatID, color.FgWhite, file.Caption)
	}
	return nil
}

func (t *Transport) copy(ctx context.Context, dst io.Writer, src io.Reader, total int64, progress contract.ProgressFunc) error {
	bufPtr := t.bufferPool.Get().(*[]byte)
	buf := *bufPtr
	defer t.bufferPool.Put(bufPtr)

	var written int64
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, readErr := src.Read(buf)
		if n > 0 {
			if _, err := dst.Write(buf[:n]); err != nil {
				return err
			}
			written += int64(n)
			if written > total {
				total = written
			}
			if progress != nil {
				if err := progress(written, total); err != nil {
					return err
				}
			}
		}
		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			return readErr
		}
	}
}

func (t *Transport) SendMessage(_ context.Context, chatID domain.ChatID, text string) (domain.MessageHandle, error) {
	t.mu.Lock()
	t.nextID++
	handle := domain.MessageHandle{ChatID: chatID, MessageID: t.nextID}
	t.mu.Unlock()
	t.say(chatID, color.FgCyan, fmt.Sprintf("#%d %s", handle.MessageID, text))
	return handle, nil
}

// EditMessage refuses edits that come faster than EditInterval on the same
// message, returning the remaining wait like a platform flood control would.
func (t *Transport) EditMessage(_ context.Context, handle domain.MessageHandle, text string) error {
	now := t.clock.Now()
	t.mu.Lock()
	last, seen := t.lastEdit[handle]
	if seen && t.config.EditInterval > 0 {
		if elapsed := now.Sub(last); elapsed < t.config.EditInterval {
			t.mu.Unlock()
			return &errors.RateLimitError{RetryAfter: t.config.EditInterval - elapsed}
		}
	}
	t.lastEdit[handle] = now
	t.mu.Unlock()
	t.say(handle.ChatID, color.FgYellow, fmt.Sprintf("#%d ~ %s", handle.MessageID, text))
	return nil
}

func (t *Transport) DeleteMessage(_ context.Context, handle domain.MessageHandle) error {
	t.mu.Lock()
	delete(t.lastEdit, handle)
	t.mu.Unlock()
	t.say(handle.ChatID, color.FgDarkGray, fmt.Sprintf("#%d deleted", handle.MessageID))
	return nil
}

func (t *Transport) say(chatID domain.ChatID, fg color.Color, text string) {
	line := fmt.Sprintf("[chat %d] %s", chatID, text)
	if t.config.Colours {
		line = color.New(color.BgBlack, fg).Render(line)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintln(t.out, line)
}
