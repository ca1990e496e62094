package workers

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"file-renamer/domain"
	"file-renamer/mocks"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestSessionExpiryWorker_Sweep(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	now := time.Date(2024, 2, 2, 10, 0, 0, 0, time.UTC)
	clock := mocks.NewMockClock(ctrl)
	sessions := mocks.NewMockSessionStore(ctrl)
	messenger := mocks.NewMockMessenger(ctrl)

	clock.EXPECT().Now().Return(now)
	sessions.EXPECT().ClearExpired(now.Add(-300 * time.Second)).Return([]domain.Session{
		{UserID: 1, ChatID: 11, Stage: domain.AwaitingFilename},
		{UserID: 2, ChatID: 22, Stage: domain.AwaitingFilename},
	})
	messenger.EXPECT().SendMessage(gomock.Any(), domain.ChatID(11), "timed out").Return(domain.MessageHandle{}, nil)
	messenger.EXPECT().SendMessage(gomock.Any(), domain.ChatID(22), "timed out").Return(domain.MessageHandle{}, nil)

	hooked := 0
	worker := NewSessionExpiryWorker(slog.Default(), clock, sessions, messenger, 300*time.Second, time.Minute, "timed out").
		WithHook(func() { hooked++ })

	req.Equal(2, worker.Sweep(context.Background()))
	req.Equal(1, hooked)
}
