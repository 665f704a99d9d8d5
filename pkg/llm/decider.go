// Package llm is the language-understanding boundary: given the conversation
// so far and the declared tool schemas, it decides whether the next step is a
// direct reply or one or more tool calls. The decision itself is delegated to
// an external model; this package only plumbs it reliably.
package llm

import (
	"context"

	"github.com/knolabs/voicedesk/pkg/agent/types"
)

// Decision is the model's verdict for one turn: either Reply text, or one or
// more tool calls to execute in order, or both.
type Decision struct {
	Reply     string
	ToolCalls []types.ToolCallRequest
}

// Decider maps conversation state to a Decision.
type Decider interface {
	Decide(ctx context.Context, history []types.Message, tools []types.ToolSchema) (Decision, error)
}
