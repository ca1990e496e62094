package activity

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"file-renamer/contract"
	"file-renamer/domain"
	"file-renamer/repositories"
	"file-renamer/transfer"

	"github.com/dustin/go-humanize"
)

var (
	_ contract.ActivitySink = (*SlogSink)(nil)
	_ contract.ActivitySink = (*ChannelSink)(nil)
	_ contract.ActivitySink = (*RepositorySink)(nil)
)

type SlogSink struct {
	log *slog.Logger
}

func NewSlogSink(log *slog.Logger) *SlogSink {
	return &SlogSink{log: log}
}

func (s *SlogSink) Consume(ctx context.Context, r domain.ActivityRecord) error {
	attrs := []any{
		"user_id", r.UserID,
		"file", r.OriginalName,
		"size", r.Size,
		"duration", r.Duration,
	}
	if r.Kind == domain.ActivitySucceeded {
		s.log.InfoContext(ctx, "File processed", append(attrs, "new_name", r.NewName)...)
		return nil
	}
	s.log.WarnContext(ctx, "File processing failed", append(attrs, "step", r.Step, "error", r.Reason)...)
	return nil
}

// ChannelSink forwards records to the operators' log channel.
type ChannelSink struct {
	messenger contract.Messenger
	channel   domain.ChatID
}

func NewChannelSink(messenger contract.Messenger, channel domain.ChatID) *ChannelSink {
	return &ChannelSink{messenger: messenger, channel: channel}
}

func (s *ChannelSink) Consume(ctx context.Context, r domain.ActivityRecord) error {
	_, err := s.messenger.SendMessage(ctx, s.channel, FormatRecord(r))
	return err
}

type RepositorySink struct {
	repository repositories.IActivityRepository
}

func NewRepositorySink(repository repositories.IActivityRepository) *RepositorySink {
	return &RepositorySink{repository: repository}
}

func (s *RepositorySink) Consume(ctx context.Context, r domain.ActivityRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.repository.Store(r)
}

func FormatRecord(r domain.ActivityRecord) string {
	var b strings.Builder
	if r.Kind == domain.ActivitySucceeded {
		b.WriteString("File renamed\n")
	} else {
		b.WriteString("Rename failed\n")
	}
	fmt.Fprintf(&b, "User: %d\n", r.UserID)
	fmt.Fprintf(&b, "Original: %s\n", r.OriginalName)
	if r.NewName != "" {
		fmt.Fprintf(&b, "New: %s\n", r.NewName)
	}
	fmt.Fprintf(&b, "Size: %s\n", humanize.IBytes(uint64(max(r.Size, 0))))
	fmt.Fprintf(&b, "Time: %s", transfer.FormatDuration(r.Duration))
	if r.Kind != domain.ActivitySucceeded {
		fmt.Fprintf(&b, "\nStep: %s\nReason: %s", r.Step, r.Reason)
	}
	return b.String()
}
