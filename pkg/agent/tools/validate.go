package tools

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/knolabs/voicedesk/pkg/agent/types"
)

// Matches local-part "@" domain "." tld, the same shape the booking flow has
// always required.
var emailRE = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

const emailInvalidMessage = "The email address seems incorrect. Please provide a valid one."

// validateArgs checks an argument map against a schema. It returns a failure
// result with a user-facing corrective message, or nil when the arguments
// conform. It performs no I/O.
func validateArgs(schema types.ToolSchema, args map[string]any) *types.ToolCallResult {
	for _, p := range schema.Parameters {
		raw, present := args[p.Name]
		if !present {
			if !p.Required {
				continue
			}
			return failure(schema.Name, fmt.Sprintf("I'm missing the %s. Could you share it with me?", paramNoun(p)))
		}

		switch p.Type {
		case types.ParamString:
			s, ok := raw.(string)
			if !ok || strings.TrimSpace(s) == "" {
				if p.Required {
					return failure(schema.Name, fmt.Sprintf("I didn't catch the %s. Could you repeat it?", paramNoun(p)))
				}
				continue
			}
			if p.Format == types.FormatEmail && !emailRE.MatchString(strings.TrimSpace(s)) {
				return failure(schema.Name, emailInvalidMessage)
			}
		case types.ParamNumber:
			switch raw.(type) {
			case float64, int, int64:
			default:
				return failure(schema.Name, fmt.Sprintf("The %s doesn't look like a number. Could you repeat it?", paramNoun(p)))
			}
		case types.ParamBoolean:
			if _, ok := raw.(bool); !ok {
				return failure(schema.Name, fmt.Sprintf("I didn't catch the %s. Could you confirm it?", paramNoun(p)))
			}
		}
	}
	return nil
}

// stringArg returns a validated string argument, trimmed.
func stringArg(args map[string]any, name string) string {
	s, _ := args[name].(string)
	return strings.TrimSpace(s)
}

func paramNoun(p types.Param) string {
	return strings.ReplaceAll(p.Name, "_", " ")
}

func failure(tool, message string) *types.ToolCallResult {
	return &types.ToolCallResult{Tool: tool, Outcome: types.OutcomeFailure, Message: message}
}
