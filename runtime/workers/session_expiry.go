package workers

import (
	"context"
	"log/slog"
	"time"

	"file-renamer/contract"
)

var _ contract.Worker = (*SessionExpiryWorker)(nil)

// SessionExpiryWorker drops sessions that waited too long for a filename
// and tells their users. Each sweep also runs the registered housekeeping hooks.
type SessionExpiryWorker struct {
	log       *slog.Logger
	clock     contract.Clock
	sessions  contract.SessionStore
	messenger contract.Messenger
	timeout   time.Duration
	interval  time.Duration
	notice    string
	hooks     []func()
}

func NewSessionExpiryWorker(
	log *slog.Logger,
	clock contract.Clock,
	sessions contract.SessionStore,
	messenger contract.Messenger,
	timeout, interval time.Duration,
	notice string,
) *SessionExpiryWorker {
	return &SessionExpiryWorker{
		log:       log,
		clock:     clock,
		sessions:  sessions,
		messenger: messenger,
		timeout:   timeout,
		interval:  interval,
		notice:    notice,
	}
}

func (w *SessionExpiryWorker) WithHook(hook func()) *SessionExpiryWorker {
	w.hooks = append(w.hooks, hook)
	return w
}

func (w *SessionExpiryWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping session expiry")
			return nil
		case <-ticker.C:
			w.Sweep(ctx)
		}
	}
}

// Sweep returns the number of sessions it expired.
func (w *SessionExpiryWorker) Sweep(ctx context.Context) int {
	expired := w.sessions.ClearExpired(w.clock.Now().Add(-w.timeout))
	for _, s := range expired {
		w.log.Info("Session expired waiting for a filename", "user_id", s.UserID)
		if _, err := w.messenger.SendMessage(ctx, s.ChatID, w.notice); err != nil {
			w.log.Debug("Expiry notice not sent", "user_id", s.UserID, "error", err)
		}
	}
	for _, hook := range w.hooks {
		hook()
	}
	return len(expired)
}
