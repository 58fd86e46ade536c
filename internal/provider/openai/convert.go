package openai

import (
	"encoding/json"

	openaisdk "github.com/sashabaranov/go-openai"

	"github.com/haasonsaas/sentineld/pkg/model"
)

// convertMessages maps the dialect-agnostic Message sequence onto OpenAI's
// flat message list, prepending the system prompt as the first message
// (spec §4.3.1, O-dialect).
func convertMessages(messages []model.Message, system string) []openaisdk.ChatCompletionMessage {
	out := make([]openaisdk.ChatCompletionMessage, 0, len(messages)+1)
	if system != "" {
		out = append(out, openaisdk.ChatCompletionMessage{Role: openaisdk.ChatMessageRoleSystem, Content: system})
	}
	for _, msg := range messages {
		switch msg.Kind {
		case model.KindUserText:
			out = append(out, openaisdk.ChatCompletionMessage{Role: openaisdk.ChatMessageRoleUser, Content: msg.Text})

		case model.KindToolResult:
			for _, r := range msg.Results {
				out = append(out, openaisdk.ChatCompletionMessage{
					Role: openaisdk.ChatMessageRoleTool, Content: r.Content, ToolCallID: r.ToolCallID,
				})
			}

		case model.KindAssistantText:
			out = append(out, openaisdk.ChatCompletionMessage{Role: openaisdk.ChatMessageRoleAssistant, Content: msg.Text})

		case model.KindAssistantToolCalls:
			calls := make([]openaisdk.ToolCall, 0, len(msg.Calls))
			for _, c := range msg.Calls {
				calls = append(calls, openaisdk.ToolCall{
					ID: c.ID, Type: openaisdk.ToolTypeFunction,
					Function: openaisdk.FunctionCall{Name: c.Name, Arguments: string(c.Arguments)},
				})
			}
			out = append(out, openaisdk.ChatCompletionMessage{
				Role: openaisdk.ChatMessageRoleAssistant, Content: msg.Text, ToolCalls: calls,
			})
		}
	}
	return out
}

// convertTools produces {type:"function", function:{name, description,
// parameters}} tool params (spec §4.2 wire-format adapters, O-dialect).
func convertTools(tools []model.ToolDescriptor) []openaisdk.Tool {
	out := make([]openaisdk.Tool, 0, len(tools))
	for _, t := range tools {
		var params any
		if len(t.Parameters) > 0 {
			_ = json.Unmarshal(t.Parameters, &params)
		}
		out = append(out, openaisdk.Tool{
			Type: openaisdk.ToolTypeFunction,
			Function: &openaisdk.FunctionDefinition{
				Name: t.Name, Description: t.Description, Parameters: params,
			},
		})
	}
	return out
}
