package local

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"file-renamer/contract"
	"file-renamer/domain"
)

var _ contract.Worker = (*Console)(nil)

// Console turns lines typed on in into inbound events:
//
//	/file <path>    send a local file
//	/cancel         cancel the current file
//	@<user> ...     act as another user
//	anything else   plain text, usually the new filename
type Console struct {
	log        *slog.Logger
	in         io.Reader
	transport  *Transport
	dispatcher contract.InboundDispatcher
	clock      contract.Clock
	user       domain.UserID
}

func NewConsole(log *slog.Logger, in io.Reader, transport *Transport, dispatcher contract.InboundDispatcher, clock contract.Clock, user domain.UserID) *Console {
	return &Console{
		log:        log,
		in:         in,
		transport:  transport,
		dispatcher: dispatcher,
		clock:      clock,
		user:       user,
	}
}

// Run returns nil once the input is exhausted.
func (c *Console) Run(ctx context.Context) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(c.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					return err
				default:
					return nil
				}
			}
			evt, err := c.Parse(line)
			if err != nil {
				c.log.Warn("Console input ignored", "line", line, "error", err)
				continue
			}
			if evt == nil {
				continue
			}
			if err := c.dispatcher.Dispatch(ctx, evt); err != nil {
				return err
			}
		}
	}
}

// Parse maps one console line to an event; blank lines yield nil.
func (c *Console) Parse(line string) (domain.InboundEvent, error) {
	line = strings.TrimSpace(line)
	user := c.user
	if strings.HasPrefix(line, "@") {
		head, rest, _ := strings.Cut(line, " ")
		id, err := strconv.ParseInt(strings.TrimPrefix(head, "@"), 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid user %q", head)
		}
		user = domain.UserID(id)
		line = strings.TrimSpace(rest)
	}
	chat := domain.ChatID(user)

	switch {
	case line == "":
		return nil, nil
	case line == "/cancel":
		return domain.CancelRequested{ChatID: chat, SenderID: user}, nil
	case strings.HasPrefix(line, "/file "):
		file, err := c.transport.Register(strings.TrimSpace(strings.TrimPrefix(line, "/file ")))
		if err != nil {
			return nil, err
		}
		return domain.FileReceived{File: file, ChatID: chat, SenderID: user, At: c.clock.Now()}, nil
	default:
		return domain.TextReceived{Text: line, ChatID: chat, SenderID: user, At: c.clock.Now()}, nil
	}
}
