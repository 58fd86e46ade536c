package anthropic

import (
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/haasonsaas/sentineld/pkg/model"
)

// convertMessages maps the dialect-agnostic Message sequence onto Anthropic's
// typed content-block message params (spec §4.3.1).
func convertMessages(messages []model.Message) ([]anthropic.MessageParam, error) {
	out := make([]anthropic.MessageParam, 0, len(messages))
	for _, msg := range messages {
		switch msg.Kind {
		case model.KindUserText:
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Text)))

		case model.KindUserToolResults:
			blocks := make([]anthropic.ContentBlockParamUnion, 0, len(msg.Results))
			for _, r := range msg.Results {
				blocks = append(blocks, anthropic.NewToolResultBlock(r.ToolCallID, r.Content, r.IsError))
			}
			out = append(out, anthropic.MessageParam{Role: anthropic.MessageParamRoleUser, Content: blocks})

		case model.KindAssistantText:
			out = append(out, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Text)))

		case model.KindAssistantToolCalls:
			blocks := make([]anthropic.ContentBlockParamUnion, 0, len(msg.Calls)+1)
			if msg.Text != "" {
				blocks = append(blocks, anthropic.NewTextBlock(msg.Text))
			}
			for _, call := range msg.Calls {
				var input any
				if len(call.Arguments) > 0 {
					if err := json.Unmarshal(call.Arguments, &input); err != nil {
						input = map[string]any{}
					}
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(call.ID, input, call.Name))
			}
			out = append(out, anthropic.MessageParam{Role: anthropic.MessageParamRoleAssistant, Content: blocks})

		default:
			return nil, fmt.Errorf("anthropic: unsupported message kind %q", msg.Kind)
		}
	}
	return out, nil
}

// convertTools produces {name, description, input_schema} tool params
// (spec §4.2 wire-format adapters, A-dialect).
func convertTools(tools []model.ToolDescriptor) ([]anthropic.ToolUnionParam, error) {
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		var schema anthropic.ToolInputSchemaParam
		if len(t.Parameters) > 0 {
			if err := json.Unmarshal(t.Parameters, &schema); err != nil {
				return nil, fmt.Errorf("anthropic: tool %q has invalid schema: %w", t.Name, err)
			}
		}
		out = append(out, anthropic.ToolUnionParamOfTool(schema, t.Name))
	}
	return out, nil
}
