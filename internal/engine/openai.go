package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIEngine implements Engine on OpenAI's chat completions API. Unlike the
// Anthropic adapter it uses the non-streaming endpoint; tool calls arrive
// fully formed in the response.
//
// Thread Safety:
// OpenAIEngine is safe for concurrent use.
type OpenAIEngine struct {
	client     *openai.Client
	apiKey     string
	model      string
	maxRetries int
	retryDelay time.Duration
	timeout    time.Duration
}

// OpenAIConfig holds configuration for OpenAIEngine.
type OpenAIConfig struct {
	// APIKey is the OpenAI API authentication key (required).
	APIKey string

	// Model is the model ID used for all requests.
	Model string

	// MaxRetries sets the maximum retry attempts for transient failures.
	// Default: 3
	MaxRetries int

	// RetryDelay is the base delay between retries; the actual delay grows
	// linearly with the attempt number. Default: 1s
	RetryDelay time.Duration

	// Timeout bounds one Generate call end to end. Default: 2 minutes
	Timeout time.Duration
}

// NewOpenAIEngine creates an OpenAI-backed reasoning engine.
func NewOpenAIEngine(config OpenAIConfig) (*OpenAIEngine, error) {
	if config.APIKey == "" {
		return nil, errors.New("openai: API key is required")
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
		config.Model = "gpt-4o"
	}

	return &OpenAIEngine{
		client:     openai.NewClient(config.APIKey),
		apiKey:     config.APIKey,
		model:      config.Model,
		maxRetries: config.MaxRetries,
		retryDelay: config.RetryDelay,
		timeout:    config.Timeout,
	}, nil
}

// Name returns the engine identifier used for routing and metrics.
func (e *OpenAIEngine) Name() string {
	return "openai"
}

// Available reports whether the engine has credentials configured.
func (e *OpenAIEngine) Available() bool {
	return e.apiKey != ""
}

// Generate sends one chat completion request, retrying transient failures
// with linear backoff.
func (e *OpenAIEngine) Generate(ctx context.Context, req *Request) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	chatReq := openai.ChatCompletionRequest{
		Model:    e.model,
		Messages: convertToOpenAIMessages(req.Messages, req.System),
	}
	if req.MaxTokens > 0 {
		chatReq.MaxTokens = req.MaxTokens
	}
	if len(req.Tools) > 0 {
		chatReq.Tools = convertToOpenAITools(req.Tools)
	}

	var (
		completion openai.ChatCompletionResponse
		lastErr    error
	)
	for attempt := 0; attempt < e.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(e.retryDelay * time.Duration(attempt)):
			}
		}

		completion, lastErr = e.client.CreateChatCompletion(ctx, chatReq)
		if lastErr == nil {
			break
		}
		if !isRetryableError(lastErr) {
			return nil, fmt.Errorf("openai: %w", lastErr)
		}
	}
	if lastErr != nil {
		return nil, fmt.Errorf("openai: max retries exceeded: %w", lastErr)
	}

	if len(completion.Choices) == 0 {
		return nil, errors.New("openai: empty response")
	}
	return convertCompletion(completion), nil
}

func convertCompletion(completion openai.ChatCompletionResponse) *Response {
	choice := completion.Choices[0]

	resp := &Response{
		StopReason:   StopEndTurn,
		InputTokens:  completion.Usage.PromptTokens,
		OutputTokens: completion.Usage.CompletionTokens,
	}
	if choice.Message.Content != "" {
		resp.Fragments = append(resp.Fragments, TextFragment{Text: choice.Message.Content})
	}
	for _, call := range choice.Message.ToolCalls {
		resp.Fragments = append(resp.Fragments, ToolInvocation{
			ID:    call.ID,
			Name:  call.Function.Name,
			Input: json.RawMessage(call.Function.Arguments),
		})
	}

	switch choice.FinishReason {
	case openai.FinishReasonToolCalls:
		resp.StopReason = StopToolUse
	case openai.FinishReasonLength:
		resp.StopReason = StopMaxTokens
	}
	return resp
}

// convertToOpenAIMessages converts engine-neutral messages to OpenAI chat
// format. The system prompt becomes the leading system message; invocation
// results become separate tool-role messages linked by tool call ID.
func convertToOpenAIMessages(messages []Message, system string) []openai.ChatCompletionMessage {
	result := make([]openai.ChatCompletionMessage, 0, len(messages)+1)

	if system != "" {
		result = append(result, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}

	for _, msg := range messages {
		if len(msg.Results) > 0 {
			for _, res := range msg.Results {
				result = append(result, openai.ChatCompletionMessage{
					Role:       openai.ChatMessageRoleTool,
					Content:    res.Content,
					ToolCallID: res.InvocationID,
				})
			}
			if msg.Content == "" && len(msg.Invocations) == 0 {
				continue
			}
		}

		oaiMsg := openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		}
		if len(msg.Invocations) > 0 {
			oaiMsg.ToolCalls = make([]openai.ToolCall, len(msg.Invocations))
			for i, inv := range msg.Invocations {
				oaiMsg.ToolCalls[i] = openai.ToolCall{
					ID:   inv.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      inv.Name,
						Arguments: string(inv.Input),
					},
				}
			}
		}
		result = append(result, oaiMsg)
	}

	return result
}

// convertToOpenAITools converts tool specs to OpenAI function definitions.
// A tool with an unparseable schema degrades to an empty object schema so
// one bad tool does not break the rest.
func convertToOpenAITools(tools []ToolSpec) []openai.Tool {
	result := make([]openai.Tool, len(tools))
	for i, tool := range tools {
		var schemaMap map[string]any
		if err := json.Unmarshal(tool.InputSchema, &schemaMap); err != nil {
			schemaMap = map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			}
		}
		result[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  schemaMap,
			},
		}
	}
	return result
}
