package session

import (
	"fmt"
	"sync"
	"time"

	"file-renamer/contract"
	"file-renamer/domain"
	"file-renamer/errors"

	"github.com/google/uuid"
)

var _ contract.SessionStore = (*Store)(nil)

// Store keeps one session per user in memory.
// Every mutation holds the lock, so transitions for a user never interleave.
type Store struct {
	mu       sync.Mutex
	clock    contract.Clock
	sessions map[domain.UserID]domain.Session
}

func NewStore(clock contract.Clock) *Store {
	return &Store{clock: clock, sessions: make(map[domain.UserID]domain.Session)}
}

func (s *Store) Get(userID domain.UserID) (domain.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[userID]
	return sess, ok
}

// BeginAwaiting records file as the user's pending file, last file wins.
// A session already Processing keeps its stage and run: the new file waits
// until the running pipeline finishes.
func (s *Store) BeginAwaiting(userID domain.UserID, chatID domain.ChatID, file domain.FileRef) domain.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	ref := file
	current, ok := s.sessions[userID]
	if ok && current.Stage == domain.Processing {
		current.Pending = &ref
		current.ReceivedAt = s.clock.Now()
		current.Superseded = true
		s.sessions[userID] = current
		return current
	}
	sess := domain.Session{
		UserID:     userID,
		ChatID:     chatID,
		Stage:      domain.AwaitingFilename,
		Pending:    &ref,
		ReceivedAt: s.clock.Now(),
	}
	s.sessions[userID] = sess
	return sess
}

// AdvanceToProcessing starts a new run for the pending file.
func (s *Store) AdvanceToProcessing(userID domain.UserID) (domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[userID]
	if !ok || sess.Stage != domain.AwaitingFilename {
		return domain.Session{}, fmt.Errorf("user %d: %w", userID, errors.ErrNoActiveSession)
	}
	sess.Stage = domain.Processing
	sess.RunID = uuid.New()
	sess.Superseded = false
	s.sessions[userID] = sess
	return sess, nil
}

// Finish ends the run identified by run.RunID.
// The session is removed, unless a newer file arrived during the run, in which
// case it goes back to AwaitingFilename with that file and is returned with true.
// A run that no longer owns the session (cancelled, replaced) changes nothing.
func (s *Store) Finish(run domain.Session) (domain.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.sessions[run.UserID]
	if !ok || current.Stage != domain.Processing || current.RunID != run.RunID {
		return current, ok
	}
	if current.Superseded {
		current.Stage = domain.AwaitingFilename
		current.RunID = uuid.Nil
		current.Superseded = false
		// The filename timeout counts from the re-prompt, not from the upload.
		current.ReceivedAt = s.clock.Now()
		s.sessions[run.UserID] = current
		return current, true
	}
	delete(s.sessions, run.UserID)
	return domain.Session{}, false
}

// Rearm puts a run that never started back to AwaitingFilename.
// The pending file and its timer are kept.
func (s *Store) Rearm(run domain.Session) (domain.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.sessions[run.UserID]
	if !ok || current.Stage != domain.Processing || current.RunID != run.RunID {
		return current, false
	}
	current.Stage = domain.AwaitingFilename
	current.RunID = uuid.Nil
	current.Superseded = false
	s.sessions[run.UserID] = current
	return current, true
}

func (s *Store) Clear(userID domain.UserID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, userID)
}

// ClearExpired removes AwaitingFilename sessions received before cutoff.
// Processing sessions are owned by their pipeline and never expire here.
func (s *Store) ClearExpired(cutoff time.Time) []domain.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	var expired []domain.Session
	for id, sess := range s.sessions {
		if sess.Stage == domain.AwaitingFilename && sess.ReceivedAt.Before(cutoff) {
			expired = append(expired, sess)
			delete(s.sessions, id)
		}
	}
	return expired
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// CountByStage is used by the health monitor.
func (s *Store) CountByStage() map[domain.Stage]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[domain.Stage]int, 2)
	for _, sess := range s.sessions {
		counts[sess.Stage]++
	}
	return counts
}
