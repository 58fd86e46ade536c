// Package anthropic implements the A-dialect provider (spec §4.1, §6):
// system prompt as a distinct field, typed content blocks, tool_use /
// tool_result blocks, and an SSE stream keyed by content_block_start /
// content_block_delta / content_block_stop events.
//
// Grounded on internal/agent/providers/anthropic.go of the teacher repo.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/haasonsaas/sentineld/internal/apperr"
	"github.com/haasonsaas/sentineld/internal/provider"
	"github.com/haasonsaas/sentineld/pkg/model"
)

// Config configures the Anthropic provider instance.
type Config struct {
	APIKey       string
	Model        string
	BaseURL      string
	MaxTokens    int
	MaxRetries   int
	RetryDelay   time.Duration
	RequestTimeout time.Duration
}

// Provider is the A-dialect concrete implementation.
type Provider struct {
	client  anthropic.Client
	cfg     Config
}

// New constructs a Provider from cfg.
func New(cfg Config) *Provider {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &Provider{client: anthropic.NewClient(opts...), cfg: cfg}
}

func (p *Provider) Name() string           { return "anthropic" }
func (p *Provider) ModelName() string      { return p.getModel("") }
func (p *Provider) Dialect() model.Dialect { return model.DialectA }

func (p *Provider) getModel(override string) string {
	if override != "" {
		return override
	}
	return p.cfg.Model
}

func (p *Provider) getMaxTokens(override int) int {
	if override > 0 {
		return override
	}
	return p.cfg.MaxTokens
}

// Chat performs one non-streaming round, retrying transient failures with
// exponential backoff (grounded on the teacher's Complete method).
func (p *Provider) Chat(ctx context.Context, messages []model.Message, opts provider.ChatOptions) (*provider.ChatResult, error) {
	params, err := p.buildParams(messages, opts)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt <= p.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(p.cfg.RetryDelay * time.Duration(1<<uint(attempt-1))):
			}
		}
		msg, err := p.client.Messages.New(ctx, *params)
		if err == nil {
			return p.toChatResult(msg), nil
		}
		lastErr = err
		if !isRetryableError(err) {
			break
		}
	}
	return nil, p.wrapError(lastErr)
}

func (p *Provider) toChatResult(msg *anthropic.Message) *provider.ChatResult {
	result := &provider.ChatResult{
		StopReason: provider.StopEndTurn,
		Usage: provider.Usage{
			InputTokens:  int64(msg.Usage.InputTokens),
			OutputTokens: int64(msg.Usage.OutputTokens),
		},
	}
	var text strings.Builder
	for _, block := range msg.Content {
		switch variant := block.AsAny().(type) {
		case anthropic.TextBlock:
			text.WriteString(variant.Text)
		case anthropic.ToolUseBlock:
			result.ToolCalls = append(result.ToolCalls, model.ToolCall{
				ID: variant.ID, Name: variant.Name, Arguments: json.RawMessage(variant.JSON.Input.Raw()),
			})
		}
	}
	result.Content = text.String()
	if len(result.ToolCalls) > 0 {
		result.StopReason = provider.StopToolUse
	}
	return result
}

func (p *Provider) buildParams(messages []model.Message, opts provider.ChatOptions) (*anthropic.MessageNewParams, error) {
	converted, err := convertMessages(messages)
	if err != nil {
		return nil, fmt.Errorf("anthropic: failed to convert messages: %w", err)
	}
	params := &anthropic.MessageNewParams{
		Model:     anthropic.Model(p.getModel("")),
		Messages:  converted,
		MaxTokens: int64(p.getMaxTokens(opts.MaxTokens)),
	}
	if opts.System != "" {
		params.System = []anthropic.TextBlockParam{{Type: "text", Text: opts.System}}
	}
	if len(opts.Tools) > 0 {
		tools, err := convertTools(opts.Tools)
		if err != nil {
			return nil, fmt.Errorf("anthropic: failed to convert tools: %w", err)
		}
		params.Tools = tools
	}
	return params, nil
}

// Stream performs one streaming round, translating Anthropic SSE events
// into provider.StreamChunk values (grounded on processStream).
func (p *Provider) Stream(ctx context.Context, messages []model.Message, opts provider.ChatOptions) <-chan provider.StreamChunk {
	out := make(chan provider.StreamChunk, 8)
	go func() {
		defer close(out)
		params, err := p.buildParams(messages, opts)
		if err != nil {
			out <- provider.StreamChunk{Kind: provider.ChunkError, Err: err}
			return
		}
		stream := p.client.Messages.NewStreaming(ctx, *params)
		p.processStream(stream, out)
	}()
	return out
}

// maxEmptyStreamEvents protects against a flood of empty SSE events
// (grounded verbatim on the teacher's malformed-stream guard).
const maxEmptyStreamEvents = 300

func (p *Provider) processStream(stream *ssestream.Stream[anthropic.MessageStreamEventUnion], out chan<- provider.StreamChunk) {
	var currentToolCall *model.ToolCall
	var currentToolInput strings.Builder
	emptyEventCount := 0
	var inputTokens, outputTokens int64

	for stream.Next() {
		event := stream.Current()
		processed := false

		switch event.Type {
		case "message_start":
			ms := event.AsMessageStart()
			if ms.Message.Usage.InputTokens > 0 {
				inputTokens = int64(ms.Message.Usage.InputTokens)
			}
			processed = true

		case "content_block_start":
			block := event.AsContentBlockStart().ContentBlock
			if block.Type == "tool_use" {
				toolUse := block.AsToolUse()
				currentToolCall = &model.ToolCall{ID: toolUse.ID, Name: toolUse.Name}
				currentToolInput.Reset()
				processed = true
			}

		case "content_block_delta":
			delta := event.AsContentBlockDelta().Delta
			switch delta.Type {
			case "text_delta":
				if delta.Text != "" {
					out <- provider.StreamChunk{Kind: provider.ChunkText, Text: delta.Text}
					processed = true
				}
			case "input_json_delta":
				if delta.PartialJSON != "" {
					currentToolInput.WriteString(delta.PartialJSON)
					processed = true
				}
			}

		case "content_block_stop":
			if currentToolCall != nil {
				raw := currentToolInput.String()
				if !json.Valid([]byte(raw)) {
					// Tie-breaking rule (spec §4.1): an unparseable fragment
					// yields arguments: {} rather than failing the stream.
					raw = "{}"
				}
				currentToolCall.Arguments = json.RawMessage(raw)
				out <- provider.StreamChunk{Kind: provider.ChunkToolUse, ToolCall: currentToolCall}
				currentToolCall = nil
				processed = true
			}

		case "message_delta":
			md := event.AsMessageDelta()
			if md.Usage.OutputTokens > 0 {
				outputTokens = int64(md.Usage.OutputTokens)
			}
			processed = true

		case "message_stop":
			out <- provider.StreamChunk{Kind: provider.ChunkUsage, Usage: provider.Usage{InputTokens: inputTokens, OutputTokens: outputTokens}}
			return

		case "error":
			out <- provider.StreamChunk{Kind: provider.ChunkError, Err: p.wrapError(errors.New("anthropic stream error"))}
			return
		}

		if processed {
			emptyEventCount = 0
		} else {
			emptyEventCount++
			if emptyEventCount >= maxEmptyStreamEvents {
				out <- provider.StreamChunk{Kind: provider.ChunkError, Err: p.wrapError(fmt.Errorf("stream appears malformed: %d consecutive empty events", emptyEventCount))}
				return
			}
		}
	}
	if err := stream.Err(); err != nil {
		out <- provider.StreamChunk{Kind: provider.ChunkError, Err: p.wrapError(err)}
	}
}

func (p *Provider) wrapError(err error) error {
	if err == nil {
		return nil
	}
	return &apperr.ProviderWireError{Provider: p.Name(), Model: p.cfg.Model, Err: err}
}

func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, needle := range []string{"rate limit", "429", "500", "502", "503", "504", "timeout", "overloaded"} {
		if strings.Contains(msg, needle) {
			return true
		}
	}
	return false
}
