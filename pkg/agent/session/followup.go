package session

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/knolabs/voicedesk/pkg/agent/types"
)

// ErrSchedulerClosed is returned when scheduling after session teardown.
var ErrSchedulerClosed = errors.New("follow-up scheduler is closed")

// FollowUpScheduler owns the session's delayed re-entry timers. Each
// scheduled follow-up fires exactly once unless cancelled or the session
// closes first; firing injects a synthetic event back into the dispatch
// loop through the fire callback.
type FollowUpScheduler struct {
	logger *slog.Logger
	fire   func(types.FollowUpPayload)

	// afterFunc is swappable so tests can fire timers deterministically.
	afterFunc func(d time.Duration, f func()) *time.Timer

	mu     sync.Mutex
	timers map[string]*time.Timer
	closed bool
}

// NewFollowUpScheduler builds a scheduler. fire is invoked from the timer
// goroutine when a follow-up is due; it must not block.
func NewFollowUpScheduler(logger *slog.Logger, fire func(types.FollowUpPayload)) *FollowUpScheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &FollowUpScheduler{
		logger:    logger,
		fire:      fire,
		afterFunc: time.AfterFunc,
		timers:    make(map[string]*time.Timer),
	}
}

// Schedule arms a timer that re-enters the conversation with payload after
// delay. It returns a cancellation token.
func (s *FollowUpScheduler) Schedule(delay time.Duration, payload types.FollowUpPayload) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", ErrSchedulerClosed
	}

	token := uuid.NewString()
	s.timers[token] = s.afterFunc(delay, func() {
		if !s.take(token) {
			return
		}
		s.logger.Info("follow-up fired", "token", token)
		s.fire(payload)
	})
	s.logger.Info("follow-up scheduled", "token", token, "delay", delay)
	return token, nil
}

// Cancel disarms a pending follow-up. Cancelling twice, or cancelling one
// that already fired, is a no-op.
func (s *FollowUpScheduler) Cancel(token string) {
	s.mu.Lock()
	timer, ok := s.timers[token]
	if ok {
		delete(s.timers, token)
	}
	s.mu.Unlock()
	if ok {
		timer.Stop()
		s.logger.Info("follow-up cancelled", "token", token)
	}
}

// Close cancels all pending follow-ups and rejects new ones, returning how
// many were swept. Timers that already fired are unaffected; none fire after
// Close returns.
func (s *FollowUpScheduler) Close() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0
	}
	s.closed = true
	swept := len(s.timers)
	for token, timer := range s.timers {
		timer.Stop()
		delete(s.timers, token)
	}
	return swept
}

// Pending returns the number of armed follow-ups.
func (s *FollowUpScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// take claims a fired token. It returns false when the token was already
// cancelled or the scheduler closed, in which case the firing is dropped.
func (s *FollowUpScheduler) take(token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	if _, ok := s.timers[token]; !ok {
		return false
	}
	delete(s.timers, token)
	return true
}
