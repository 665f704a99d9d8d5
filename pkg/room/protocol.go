package room

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Wire frame types exchanged with the room server. Audio itself never crosses
// this surface: the room runs the speech engines and sends finalized
// transcripts; the agent sends text to be synthesized.
const (
	FrameTranscript  = "transcript"
	FrameChat        = "chat"
	FrameSpeak       = "speak"
	FrameSpeakDone   = "speak_done"
	FrameSpeakCancel = "speak_cancel"
	FrameBye         = "bye"
)

// InboundFrame is one JSON message from the room server.
type InboundFrame struct {
	Type string `json:"type"`

	// transcript / chat
	Text    string `json:"text,omitempty"`
	IsFinal bool   `json:"is_final,omitempty"`

	// speak_done
	SpeakID string `json:"speak_id,omitempty"`
	State   string `json:"state,omitempty"` // "finished" or "stopped"
}

// SpeakFrame asks the room to synthesize and play an utterance.
type SpeakFrame struct {
	Type           string `json:"type"`
	SpeakID        string `json:"speak_id"`
	Text           string `json:"text"`
	AllowInterrupt bool   `json:"allow_interrupt"`
}

// ChatFrame mirrors an assistant utterance into the room's text channel.
type ChatFrame struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// SpeakCancelFrame stops an in-flight utterance.
type SpeakCancelFrame struct {
	Type    string `json:"type"`
	SpeakID string `json:"speak_id"`
}

// DecodeInbound parses one inbound frame and rejects unknown types.
func DecodeInbound(data []byte) (InboundFrame, error) {
	var frame InboundFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return InboundFrame{}, fmt.Errorf("decode room frame: %w", err)
	}
	switch strings.TrimSpace(frame.Type) {
	case FrameTranscript, FrameChat, FrameSpeakDone, FrameBye:
		return frame, nil
	case "":
		return InboundFrame{}, fmt.Errorf("room frame missing type")
	default:
		return InboundFrame{}, fmt.Errorf("unsupported room frame type %q", frame.Type)
	}
}
