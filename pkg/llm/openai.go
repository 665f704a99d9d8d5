package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/knolabs/voicedesk/pkg/agent/types"
)

// OpenAI implements Decider over the chat completions API with function
// calling.
type OpenAI struct {
	client openai.Client
	model  string
}

// NewOpenAI builds a Decider for the given model. Options are passed through
// to the underlying client (API key, base URL).
func NewOpenAI(model string, opts ...option.RequestOption) *OpenAI {
	return &OpenAI{client: openai.NewClient(opts...), model: model}
}

func (o *OpenAI) Decide(ctx context.Context, history []types.Message, tools []types.ToolSchema) (Decision, error) {
	params := openai.ChatCompletionNewParams{
		Model:    o.model,
		Messages: toMessageParams(history),
		Tools:    toToolParams(tools),
	}

	completion, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return Decision{}, fmt.Errorf("chat completion: %w", err)
	}
	if len(completion.Choices) == 0 {
		return Decision{}, fmt.Errorf("chat completion returned no choices")
	}

	msg := completion.Choices[0].Message
	decision := Decision{Reply: strings.TrimSpace(msg.Content)}
	for _, call := range msg.ToolCalls {
		args := make(map[string]any)
		if raw := call.Function.Arguments; strings.TrimSpace(raw) != "" {
			if err := json.Unmarshal([]byte(raw), &args); err != nil {
				return Decision{}, fmt.Errorf("tool call %q arguments: %w", call.Function.Name, err)
			}
		}
		decision.ToolCalls = append(decision.ToolCalls, types.ToolCallRequest{
			ID:        call.ID,
			Tool:      call.Function.Name,
			Arguments: args,
		})
	}
	return decision, nil
}

func toMessageParams(history []types.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(history))
	for _, m := range history {
		switch m.Role {
		case types.RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case types.RoleUser:
			out = append(out, openai.UserMessage(m.Content))
		case types.RoleAssistant:
			out = append(out, assistantMessageParam(m))
		case types.RoleTool:
			out = append(out, openai.ToolMessage(m.Content, m.ToolCallID))
		}
	}
	return out
}

func assistantMessageParam(m types.Message) openai.ChatCompletionMessageParamUnion {
	if len(m.ToolCalls) == 0 {
		return openai.AssistantMessage(m.Content)
	}
	calls := make([]openai.ChatCompletionMessageToolCallUnionParam, 0, len(m.ToolCalls))
	for _, call := range m.ToolCalls {
		args, err := json.Marshal(call.Arguments)
		if err != nil {
			args = []byte("{}")
		}
		calls = append(calls, openai.ChatCompletionMessageToolCallUnionParam{
			OfFunction: &openai.ChatCompletionMessageFunctionToolCallParam{
				ID: call.ID,
				Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
					Name:      call.Tool,
					Arguments: string(args),
				},
			},
		})
	}
	assistant := openai.ChatCompletionAssistantMessageParam{ToolCalls: calls}
	if strings.TrimSpace(m.Content) != "" {
		assistant.Content = openai.ChatCompletionAssistantMessageParamContentUnion{OfString: openai.String(m.Content)}
	}
	return openai.ChatCompletionMessageParamUnion{OfAssistant: &assistant}
}

func toToolParams(tools []types.ToolSchema) []openai.ChatCompletionToolUnionParam {
	if len(tools) == 0 {
		return nil
	}
	out := make([]openai.ChatCompletionToolUnionParam, 0, len(tools))
	for _, schema := range tools {
		properties := make(map[string]any, len(schema.Parameters))
		required := make([]string, 0, len(schema.Parameters))
		for _, p := range schema.Parameters {
			prop := map[string]any{"type": string(p.Type)}
			if p.Description != "" {
				prop["description"] = p.Description
			}
			properties[p.Name] = prop
			if p.Required {
				required = append(required, p.Name)
			}
		}
		out = append(out, openai.ChatCompletionToolUnionParam{
			OfFunction: &openai.ChatCompletionFunctionToolParam{
				Function: openai.FunctionDefinitionParam{
					Name:        schema.Name,
					Description: openai.String(schema.Description),
					Parameters: openai.FunctionParameters{
						"type":       "object",
						"properties": properties,
						"required":   required,
					},
				},
			},
		})
	}
	return out
}
