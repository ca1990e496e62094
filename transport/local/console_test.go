package local

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"file-renamer/clock"
	"file-renamer/domain"
	"file-renamer/mocks"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestConsole_Parse(t *testing.T) {
	tr, _, _ := newTransport(t, Config{})
	path := writeFile(t, "clip.txt", 10)
	console := NewConsole(slog.Default(), strings.NewReader(""), tr, nil, clock.NewFake(time.Time{}), 1)

	tests := []struct {
		description string
		line        string
		wantUser    domain.UserID
		wantType    string
		wantErr     bool
	}{
		{description: "blank line", line: "   "},
		{description: "plain text", line: "my_video", wantUser: 1, wantType: "text"},
		{description: "cancel", line: "/cancel", wantUser: 1, wantType: "cancel"},
		{description: "file", line: "/file " + path, wantUser: 1, wantType: "file"},
		{description: "other user", line: "@42 new name", wantUser: 42, wantType: "text"},
		{description: "other user cancels", line: "@42 /cancel", wantUser: 42, wantType: "cancel"},
		{description: "bad user", line: "@abc hi", wantErr: true},
		{description: "missing file", line: "/file /definitely/not/here", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.description, func(t *testing.T) {
			req := require.New(t)

			evt, err := console.Parse(tt.line)

			if tt.wantErr {
				req.Error(err)
				return
			}
			req.NoError(err)
			if tt.wantType == "" {
				req.Nil(evt)
				return
			}
			req.Equal(tt.wantUser, evt.User())
			req.Equal(domain.ChatID(tt.wantUser), evt.Chat())
			switch e := evt.(type) {
			case domain.TextReceived:
				req.Equal("text", tt.wantType)
			case domain.CancelRequested:
				req.Equal("cancel", tt.wantType)
			case domain.FileReceived:
				req.Equal("file", tt.wantType)
				req.Equal("clip.txt", e.File.Name)
			default:
				req.Failf("unexpected event", "%T", evt)
			}
		})
	}
}

func TestConsole_RunDispatchesUntilEOF(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	dispatcher := mocks.NewMockInboundDispatcher(ctrl)
	tr, _, _ := newTransport(t, Config{})
	input := "/file " + writeFile(t, "a.txt", 3) + "\nnew_name\n\n@9 oops x\n/cancel\n"
	console := NewConsole(slog.Default(), strings.NewReader(input), tr, dispatcher, clock.NewFake(time.Time{}), 5)

	gomock.InOrder(
		dispatcher.EXPECT().Dispatch(gomock.Any(), gomock.AssignableToTypeOf(domain.FileReceived{})).Return(nil),
		dispatcher.EXPECT().Dispatch(gomock.Any(), domain.TextReceived{Text: "new_name", ChatID: 5, SenderID: 5}).Return(nil),
		dispatcher.EXPECT().Dispatch(gomock.Any(), domain.TextReceived{Text: "oops x", ChatID: 9, SenderID: 9}).Return(nil),
		dispatcher.EXPECT().Dispatch(gomock.Any(), domain.CancelRequested{ChatID: 5, SenderID: 5}).Return(nil),
	)

	req.NoError(console.Run(context.Background()))
}

func TestConsole_RunStopsOnContext(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	reader, writer := io.Pipe()
	defer writer.Close()
	tr, _, _ := newTransport(t, Config{})
	console := NewConsole(slog.Default(), reader, tr, mocks.NewMockInboundDispatcher(ctrl), clock.NewFake(time.Time{}), 5)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	req.ErrorIs(console.Run(ctx), context.Canceled)
}
