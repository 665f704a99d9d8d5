// Package room connects the agent to a real-time room. The room server owns
// the media path (capture, VAD, STT, TTS playback); this client exchanges
// transcripts, chat text, and speak commands over a WebSocket.
package room

import (
	"context"

	"github.com/knolabs/voicedesk/pkg/agent/types"
)

// Room is the transport surface the dispatch loop consumes.
type Room interface {
	// Events delivers transcripts, chat messages, and connection changes in
	// arrival order. The channel closes when the connection ends.
	Events() <-chan types.Event

	// Say synthesizes an utterance in the room and mirrors it to the text
	// channel. It blocks until playback completes or ctx is cancelled; on
	// cancellation the remaining playback is stopped when allowInterrupt is
	// set.
	Say(ctx context.Context, text string, allowInterrupt bool) error

	// State reports the current connection state.
	State() types.ConnectionState

	Close() error
}
