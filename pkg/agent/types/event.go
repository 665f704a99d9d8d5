package types

// ConnectionState mirrors the room connection lifecycle.
type ConnectionState string

const (
	ConnConnected    ConnectionState = "connected"
	ConnDisconnected ConnectionState = "disconnected"
)

// Event is the inbound union consumed by a session's dispatch loop. Events
// are processed one at a time in arrival order.
type Event interface {
	eventType() string
}

// Utterance is one finalized unit of user speech mapped to a transcript.
type Utterance struct {
	Text string
}

// ChatText is a text message typed into the room's chat channel.
type ChatText struct {
	Text string
}

// FollowUpFired is the synthetic event injected when a scheduled follow-up
// timer fires. It re-enters the dispatch loop exactly as an external event.
type FollowUpFired struct {
	Payload FollowUpPayload
}

// ConnectionChanged signals a room connection lifecycle transition.
type ConnectionChanged struct {
	State ConnectionState
}

func (Utterance) eventType() string         { return "utterance" }
func (ChatText) eventType() string          { return "chat_text" }
func (FollowUpFired) eventType() string     { return "follow_up_fired" }
func (ConnectionChanged) eventType() string { return "connection_changed" }
