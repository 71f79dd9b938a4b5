package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"
)

// maxEmptyStreamEvents is the maximum number of consecutive empty events
// before treating the stream as malformed. Protects against streams that
// flood with empty events.
const maxEmptyStreamEvents = 300

// AnthropicEngine implements Engine on Anthropic's Messages API. The SSE
// stream is consumed to completion inside Generate; callers see one blocking
// call per iteration.
//
// Thread Safety:
// AnthropicEngine is safe for concurrent use.
type AnthropicEngine struct {
	client     anthropic.Client
	apiKey     string
	model      string
	maxRetries int
	retryDelay time.Duration
	timeout    time.Duration
}

// AnthropicConfig holds configuration for AnthropicEngine.
type AnthropicConfig struct {
	// APIKey is the Anthropic API authentication key (required).
	APIKey string

	// BaseURL overrides the default API base URL.
	BaseURL string

	// Model is the model ID used for all requests.
	Model string

	// MaxRetries sets the maximum retry attempts for transient failures.
	// Default: 3
	MaxRetries int

	// RetryDelay is the base delay between retries; actual delay uses
	// exponential backoff (retryDelay * 2^attempt). Default: 1s
	RetryDelay time.Duration

	// Timeout bounds one Generate call end to end. Default: 2 minutes
	Timeout time.Duration
}

// NewAnthropicEngine creates an Anthropic-backed reasoning engine.
func NewAnthropicEngine(config AnthropicConfig) (*AnthropicEngine, error) {
	if config.APIKey == "" {
		return nil, errors.New("anthropic: API key is required")
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = 3
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = time.Second
	}
	if config.Timeout <= 0 {
		config.Timeout = 2 * time.Minute
	}
	if config.Model == "" {
		config.Model = "claude-sonnet-4-5"
	}

	options := []option.RequestOption{option.WithAPIKey(config.APIKey)}
	if strings.TrimSpace(config.BaseURL) != "" {
		options = append(options, option.WithBaseURL(config.BaseURL))
	}

	return &AnthropicEngine{
		client:     anthropic.NewClient(options...),
		apiKey:     config.APIKey,
		model:      config.Model,
		maxRetries: config.MaxRetries,
		retryDelay: config.RetryDelay,
		timeout:    config.Timeout,
	}, nil
}

// Name returns the engine identifier used for routing and metrics.
func (e *AnthropicEngine) Name() string {
	return "anthropic"
}

// Available reports whether the engine has credentials configured.
func (e *AnthropicEngine) Available() bool {
	return e.apiKey != ""
}

// Generate sends one request and consumes the response stream to completion.
// Transient failures are retried with exponential backoff.
func (e *AnthropicEngine) Generate(ctx context.Context, req *Request) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	params, err := e.buildParams(req)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt <= e.maxRetries; attempt++ {
		if attempt > 0 {
			// Exponential backoff: retryDelay * 2^(attempt-1)
			backoff := e.retryDelay * time.Duration(math.Pow(2, float64(attempt-1)))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		stream := e.client.Messages.NewStreaming(ctx, params)
		resp, err := e.consumeStream(stream)
		if err == nil {
			return resp, nil
		}
		if !isRetryableError(err) {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("anthropic: max retries exceeded: %w", lastErr)
}

func (e *AnthropicEngine) buildParams(req *Request) (anthropic.MessageNewParams, error) {
	messages, err := convertMessages(req.Messages)
	if err != nil {
		return anthropic.MessageNewParams{}, fmt.Errorf("anthropic: failed to convert messages: %w", err)
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(e.model),
		Messages:  messages,
		MaxTokens: int64(maxTokens),
	}

	if req.System != "" {
		params.System = []anthropic.TextBlockParam{
			{
				Type: "text",
				Text: req.System,
			},
		}
	}

	if len(req.Tools) > 0 {
		tools, err := convertTools(req.Tools)
		if err != nil {
			return anthropic.MessageNewParams{}, fmt.Errorf("anthropic: failed to convert tools: %w", err)
		}
		params.Tools = tools
	}

	return params, nil
}

// consumeStream drains the SSE stream into an ordered fragment list.
//
// Anthropic delivers content as delimited blocks: text arrives through
// text_delta events, tool invocations through a tool_use block start followed
// by input_json_delta fragments. content_block_stop finalizes whichever block
// is open.
func (e *AnthropicEngine) consumeStream(stream *ssestream.Stream[anthropic.MessageStreamEventUnion]) (*Response, error) {
	resp := &Response{StopReason: StopEndTurn}

	var textBuilder strings.Builder
	var currentInvocation *ToolInvocation
	var currentInput strings.Builder
	emptyEventCount := 0

	for stream.Next() {
		event := stream.Current()
		eventProcessed := false

		switch event.Type {
		case "message_start":
			messageStart := event.AsMessageStart()
			if messageStart.Message.Usage.InputTokens > 0 {
				resp.InputTokens = int(messageStart.Message.Usage.InputTokens)
			}
			eventProcessed = true

		case "content_block_start":
			contentBlock := event.AsContentBlockStart().ContentBlock
			if contentBlock.Type == "tool_use" {
				toolUse := contentBlock.AsToolUse()
				currentInvocation = &ToolInvocation{
					ID:   toolUse.ID,
					Name: toolUse.Name,
				}
				currentInput.Reset()
				eventProcessed = true
			}

		case "content_block_delta":
			delta := event.AsContentBlockDelta().Delta
			switch delta.Type {
			case "text_delta":
				if delta.Text != "" {
					textBuilder.WriteString(delta.Text)
					eventProcessed = true
				}
			case "input_json_delta":
				if delta.PartialJSON != "" {
					currentInput.WriteString(delta.PartialJSON)
					eventProcessed = true
				}
			}

		case "content_block_stop":
			if currentInvocation != nil {
				input := currentInput.String()
				if input == "" {
					input = "{}"
				}
				currentInvocation.Input = json.RawMessage(input)
				resp.Fragments = append(resp.Fragments, *currentInvocation)
				currentInvocation = nil
				eventProcessed = true
			} else if textBuilder.Len() > 0 {
				resp.Fragments = append(resp.Fragments, TextFragment{Text: textBuilder.String()})
				textBuilder.Reset()
				eventProcessed = true
			}

		case "message_delta":
			messageDelta := event.AsMessageDelta()
			if messageDelta.Delta.StopReason != "" {
				resp.StopReason = mapStopReason(string(messageDelta.Delta.StopReason))
			}
			if messageDelta.Usage.OutputTokens > 0 {
				resp.OutputTokens = int(messageDelta.Usage.OutputTokens)
			}
			eventProcessed = true

		case "message_stop":
			if textBuilder.Len() > 0 {
				resp.Fragments = append(resp.Fragments, TextFragment{Text: textBuilder.String()})
			}
			return resp, nil

		case "error":
			return nil, errors.New("anthropic: stream error")
		}

		if eventProcessed {
			emptyEventCount = 0
		} else {
			emptyEventCount++
			if emptyEventCount >= maxEmptyStreamEvents {
				return nil, fmt.Errorf("anthropic: stream appears malformed: received %d consecutive empty events", emptyEventCount)
			}
		}
	}

	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("anthropic: stream failed: %w", err)
	}

	// Stream ended without message_stop; keep whatever was collected.
	if textBuilder.Len() > 0 {
		resp.Fragments = append(resp.Fragments, TextFragment{Text: textBuilder.String()})
	}
	return resp, nil
}

func mapStopReason(reason string) StopReason {
	switch reason {
	case "tool_use":
		return StopToolUse
	case "max_tokens":
		return StopMaxTokens
	default:
		return StopEndTurn
	}
}

// convertMessages converts engine-neutral messages to Anthropic API format.
// Every message becomes an array of content blocks: text, then invocation
// results, then tool invocations.
func convertMessages(messages []Message) ([]anthropic.MessageParam, error) {
	var result []anthropic.MessageParam

	for _, msg := range messages {
		var content []anthropic.ContentBlockParamUnion

		if msg.Content != "" {
			content = append(content, anthropic.NewTextBlock(msg.Content))
		}

		for _, res := range msg.Results {
			content = append(content, anthropic.NewToolResultBlock(
				res.InvocationID,
				res.Content,
				res.IsError,
			))
		}

		for _, inv := range msg.Invocations {
			var input map[string]interface{}
			if err := json.Unmarshal(inv.Input, &input); err != nil {
				return nil, fmt.Errorf("invalid tool invocation input: %w", err)
			}
			content = append(content, anthropic.NewToolUseBlock(inv.ID, input, inv.Name))
		}

		if msg.Role == "assistant" {
			result = append(result, anthropic.NewAssistantMessage(content...))
		} else {
			result = append(result, anthropic.NewUserMessage(content...))
		}
	}

	return result, nil
}

// convertTools converts tool specs to Anthropic tool definitions.
func convertTools(tools []ToolSpec) ([]anthropic.ToolUnionParam, error) {
	var result []anthropic.ToolUnionParam

	for _, tool := range tools {
		var schema anthropic.ToolInputSchemaParam
		if err := json.Unmarshal(tool.InputSchema, &schema); err != nil {
			return nil, fmt.Errorf("invalid tool schema for %s: %w", tool.Name, err)
		}

		toolParam := anthropic.ToolUnionParamOfTool(schema, tool.Name)
		if toolParam.OfTool == nil {
			return nil, fmt.Errorf("invalid tool schema for %s: missing tool definition", tool.Name)
		}
		toolParam.OfTool.Description = anthropic.String(tool.Description)

		result = append(result, toolParam)
	}

	return result, nil
}

// isRetryableError classifies transient failures worth retrying: rate
// limits, 5xx server errors, and connection problems. Deadline expiry is not
// retried; the turn's clock has already run out.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	errMsg := err.Error()

	if strings.Contains(errMsg, "rate_limit") ||
		strings.Contains(errMsg, "429") ||
		strings.Contains(errMsg, "too many requests") {
		return true
	}

	if strings.Contains(errMsg, "500") ||
		strings.Contains(errMsg, "502") ||
		strings.Contains(errMsg, "503") ||
		strings.Contains(errMsg, "504") ||
		strings.Contains(errMsg, "internal server error") ||
		strings.Contains(errMsg, "bad gateway") ||
		strings.Contains(errMsg, "service unavailable") ||
		strings.Contains(errMsg, "gateway timeout") {
		return true
	}

	if strings.Contains(errMsg, "connection reset") ||
		strings.Contains(errMsg, "connection refused") ||
		strings.Contains(errMsg, "no such host") {
		return true
	}

	return false
}
