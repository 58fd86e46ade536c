// Package openai implements the O-dialect provider (spec §4.1, §6): system
// prompt as the first message, a top-level tool_calls array with
// stringified JSON arguments, role="tool" result turns, and an SSE stream
// of deltas keyed by index.
//
// Grounded on internal/agent/providers/openai.go of the teacher repo, with
// one correction: the teacher's processStream flushes accumulated tool
// calls by ranging a map (unordered); spec §4.1 and testable property #6
// require index order, so this implementation flushes from a sorted slice
// of indices instead (see DESIGN.md).
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sort"
	"strings"

	openaisdk "github.com/sashabaranov/go-openai"

	"github.com/haasonsaas/sentineld/internal/apperr"
	"github.com/haasonsaas/sentineld/internal/provider"
	"github.com/haasonsaas/sentineld/pkg/model"
)

// Config configures the OpenAI (or OpenAI-compatible) provider instance.
type Config struct {
	APIKey    string
	Model     string
	BaseURL   string
	MaxTokens int
}

// Provider is the O-dialect concrete implementation.
type Provider struct {
	client *openaisdk.Client
	cfg    Config
}

// New constructs a Provider from cfg. An empty BaseURL uses OpenAI's default.
func New(cfg Config) *Provider {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}
	sdkCfg := openaisdk.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		sdkCfg.BaseURL = cfg.BaseURL
	}
	return &Provider{client: openaisdk.NewClientWithConfig(sdkCfg), cfg: cfg}
}

func (p *Provider) Name() string           { return "openai" }
func (p *Provider) ModelName() string      { return p.getModel() }
func (p *Provider) Dialect() model.Dialect { return model.DialectO }

func (p *Provider) getModel() string {
	if p.cfg.Model != "" {
		return p.cfg.Model
	}
	return openaisdk.GPT4o
}

func (p *Provider) Chat(ctx context.Context, messages []model.Message, opts provider.ChatOptions) (*provider.ChatResult, error) {
	req := p.buildRequest(messages, opts)
	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, p.wrapError(err)
	}
	return p.toChatResult(resp), nil
}

func (p *Provider) toChatResult(resp openaisdk.ChatCompletionResponse) *provider.ChatResult {
	result := &provider.ChatResult{
		StopReason: provider.StopEndTurn,
		Usage: provider.Usage{
			InputTokens:  int64(resp.Usage.PromptTokens),
			OutputTokens: int64(resp.Usage.CompletionTokens),
		},
	}
	if len(resp.Choices) == 0 {
		return result
	}
	choice := resp.Choices[0]
	result.Content = choice.Message.Content
	for _, tc := range choice.Message.ToolCalls {
		result.ToolCalls = append(result.ToolCalls, model.ToolCall{
			ID: tc.ID, Name: tc.Function.Name, Arguments: json.RawMessage(tc.Function.Arguments),
		})
	}
	if len(result.ToolCalls) > 0 || choice.FinishReason == openaisdk.FinishReasonToolCalls {
		result.StopReason = provider.StopToolUse
	}
	return result
}

func (p *Provider) buildRequest(messages []model.Message, opts provider.ChatOptions) openaisdk.ChatCompletionRequest {
	converted := convertMessages(messages, opts.System)
	req := openaisdk.ChatCompletionRequest{
		Model:     p.getModel(),
		Messages:  converted,
		MaxTokens: maxTokens(p.cfg.MaxTokens, opts.MaxTokens),
	}
	if len(opts.Tools) > 0 {
		req.Tools = convertTools(opts.Tools)
	}
	return req
}

func maxTokens(fallback, override int) int {
	if override > 0 {
		return override
	}
	return fallback
}

// Stream performs one streaming round (grounded on the teacher's
// processStream, corrected to flush in index order).
func (p *Provider) Stream(ctx context.Context, messages []model.Message, opts provider.ChatOptions) <-chan provider.StreamChunk {
	out := make(chan provider.StreamChunk, 8)
	go func() {
		defer close(out)
		req := p.buildRequest(messages, opts)
		req.Stream = true
		stream, err := p.client.CreateChatCompletionStream(ctx, req)
		if err != nil {
			out <- provider.StreamChunk{Kind: provider.ChunkError, Err: p.wrapError(err)}
			return
		}
		defer stream.Close()
		p.processStream(stream, out)
	}()
	return out
}

type pendingToolCall struct {
	id   string
	name string
	args strings.Builder
}

func (p *Provider) processStream(stream *openaisdk.ChatCompletionStream, out chan<- provider.StreamChunk) {
	pending := map[int]*pendingToolCall{}
	var inputTokens, outputTokens int64

	flush := func() {
		indices := make([]int, 0, len(pending))
		for idx := range pending {
			indices = append(indices, idx)
		}
		sort.Ints(indices)
		for _, idx := range indices {
			call := pending[idx]
			var args json.RawMessage = []byte(call.args.String())
			if !json.Valid(args) {
				args = json.RawMessage("{}")
			}
			out <- provider.StreamChunk{Kind: provider.ChunkToolUse, ToolCall: &model.ToolCall{ID: call.id, Name: call.name, Arguments: args}}
		}
		pending = map[int]*pendingToolCall{}
	}

	for {
		resp, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				flush()
				out <- provider.StreamChunk{Kind: provider.ChunkUsage, Usage: provider.Usage{InputTokens: inputTokens, OutputTokens: outputTokens}}
				return
			}
			out <- provider.StreamChunk{Kind: provider.ChunkError, Err: p.wrapError(err)}
			return
		}
		if resp.Usage != nil {
			inputTokens = int64(resp.Usage.PromptTokens)
			outputTokens = int64(resp.Usage.CompletionTokens)
		}
		if len(resp.Choices) == 0 {
			continue
		}
		choice := resp.Choices[0]
		if choice.Delta.Content != "" {
			out <- provider.StreamChunk{Kind: provider.ChunkText, Text: choice.Delta.Content}
		}
		for _, tc := range choice.Delta.ToolCalls {
			idx := 0
			if tc.Index != nil {
				idx = *tc.Index
			}
			call, ok := pending[idx]
			if !ok {
				call = &pendingToolCall{}
				pending[idx] = call
			}
			if tc.ID != "" {
				call.id = tc.ID
			}
			if tc.Function.Name != "" {
				call.name = tc.Function.Name
			}
			call.args.WriteString(tc.Function.Arguments)
		}
		if choice.FinishReason == openaisdk.FinishReasonToolCalls || choice.FinishReason == openaisdk.FinishReasonStop {
			flush()
		}
	}
}

func (p *Provider) wrapError(err error) error {
	if err == nil {
		return nil
	}
	return &apperr.ProviderWireError{Provider: p.Name(), Model: p.cfg.Model, Err: err}
}
