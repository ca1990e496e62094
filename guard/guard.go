package guard

import (
	"sync"
	"time"

	"file-renamer/contract"
	"file-renamer/domain"
)

var _ contract.MessageGuard = (*Guard)(nil)

type sent struct {
	at   time.Time
	text string
}

// Guard suppresses outbound messages that repeat the previous text too soon.
type Guard struct {
	mu    sync.Mutex
	clock contract.Clock
	last  map[domain.UserID]sent
}

func NewGuard(clock contract.Clock) *Guard {
	return &Guard{clock: clock, last: make(map[domain.UserID]sent)}
}

// ShouldSend returns true, and records the message, when there is no previous
// message for the user, the text changed, or minInterval has elapsed.
func (g *Guard) ShouldSend(userID domain.UserID, text string, minInterval time.Duration) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.clock.Now()
	prev, ok := g.last[userID]
	if ok && prev.text == text && now.Sub(prev.at) < minInterval {
		return false
	}
	g.last[userID] = sent{at: now, text: text}
	return true
}

// Prune forgets users whose last message is older than maxAge.
func (g *Guard) Prune(maxAge time.Duration) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.clock.Now()
	removed := 0
	for id, s := range g.last {
		if now.Sub(s.at) >= maxAge {
			delete(g.last, id)
			removed++
		}
	}
	return removed
}
