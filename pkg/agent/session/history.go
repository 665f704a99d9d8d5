package session

import (
	"sync"
	"time"

	"github.com/knolabs/voicedesk/pkg/agent/types"
)

// History is the session transcript: an append-only ordered sequence of
// messages. Past entries are never mutated or deleted; ordering defines
// conversational causality. Growth is unbounded for the life of a session.
type History struct {
	mu       sync.RWMutex
	messages []types.Message
}

// NewHistory seeds a transcript with the system prompt.
func NewHistory(systemPrompt string) *History {
	h := &History{messages: make([]types.Message, 0, 16)}
	if systemPrompt != "" {
		h.messages = append(h.messages, types.NewMessage(types.RoleSystem, systemPrompt))
	}
	return h
}

// Append adds a message to the end of the transcript.
func (h *History) Append(msg types.Message) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	h.mu.Lock()
	h.messages = append(h.messages, msg)
	h.mu.Unlock()
}

// Snapshot returns a copy of the transcript in append order.
func (h *History) Snapshot() []types.Message {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]types.Message, len(h.messages))
	copy(out, h.messages)
	return out
}

// Len returns the number of messages appended so far.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.messages)
}
