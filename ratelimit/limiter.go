package ratelimit

import (
	"sync"
	"time"

	"file-renamer/contract"
	"file-renamer/domain"
)

var _ contract.RateLimiter = (*Limiter)(nil)

// Limiter caps the number of files a user can process per window.
// A window that has fully elapsed is reset before the check, so the counter
// starts again from zero at exactly start+window.
type Limiter struct {
	mu      sync.Mutex
	clock   contract.Clock
	limit   int
	window  time.Duration
	windows map[domain.UserID]domain.RateWindow
}

func NewLimiter(clock contract.Clock, limit int, window time.Duration) *Limiter {
	return &Limiter{
		clock:   clock,
		limit:   limit,
		window:  window,
		windows: make(map[domain.UserID]domain.RateWindow),
	}
}

// Admit consumes one unit of the user's quota.
// It returns false, without incrementing, when the quota is exhausted.
func (l *Limiter) Admit(userID domain.UserID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	w := l.current(userID)
	if w.Count >= l.limit {
		l.windows[userID] = w
		return false
	}
	w.Count++
	l.windows[userID] = w
	return true
}

// Check reports whether Admit would succeed, without consuming anything.
func (l *Limiter) Check(userID domain.UserID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current(userID).Count < l.limit
}

func (l *Limiter) Count(userID domain.UserID) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current(userID).Count
}

// Prune drops windows that have expired.
func (l *Limiter) Prune() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.clock.Now()
	removed := 0
	for id, w := range l.windows {
		if now.Sub(w.WindowStart) >= l.window {
			delete(l.windows, id)
			removed++
		}
	}
	return removed
}

// current must be called with mu held.
func (l *Limiter) current(userID domain.UserID) domain.RateWindow {
	now := l.clock.Now()
	w, ok := l.windows[userID]
	if !ok || now.Sub(w.WindowStart) >= l.window {
		return domain.RateWindow{WindowStart: now}
	}
	return w
}
