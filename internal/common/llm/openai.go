package llm

import (
	"context"
	"errors"
	"time"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	stderrors "grantpilot-workers/internal/common/errors"
	"grantpilot-workers/internal/common/metrics"
)

// OpenAIClient implements Client using the official openai-go SDK
// (chat completions).
type OpenAIClient struct {
	client         openai.Client
	defaultTimeout time.Duration
}

// OpenAIOptions configures the service endpoint.
type OpenAIOptions struct {
	APIKey         string
	BaseURL        string
	DefaultTimeout time.Duration
}

func NewOpenAIClient(opts OpenAIOptions) (*OpenAIClient, error) {
	if opts.APIKey == "" {
		return nil, errors.New("genai api key missing")
	}
	reqOpts := []option.RequestOption{option.WithAPIKey(opts.APIKey)}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}
	timeout := opts.DefaultTimeout
	if timeout == 0 {
		timeout = 2 * time.Minute
	}
	return &OpenAIClient{
		client:         openai.NewClient(reqOpts...),
		defaultTimeout: timeout,
	}, nil
}

// Complete issues one chat completion. The per-request timeout bounds the
// call even when the caller's context has no deadline.
func (c *OpenAIClient) Complete(ctx context.Context, req Request) (string, error) {
	timeout := req.Timeout
	if timeout == 0 {
		timeout = c.defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.History)+2)
	if req.System != "" {
		msgs = append(msgs, openai.SystemMessage(req.System))
	}
	for _, m := range req.History {
		switch m.Role {
		case RoleAssistant:
			msgs = append(msgs, openai.ChatCompletionMessageParamOfAssistant(m.Content))
		default:
			msgs = append(msgs, openai.UserMessage(m.Content))
		}
	}
	msgs = append(msgs, openai.UserMessage(req.User))

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(req.Model),
		Messages: msgs,
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}
	if req.JSONMode {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}

	start := time.Now()
	resp, err := c.client.Chat.Completions.New(ctx, params)
	metrics.ModelCallDuration.WithLabelValues(req.Model).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ModelCalls.WithLabelValues(req.Model, "error").Inc()
		if errors.Is(err, context.DeadlineExceeded) {
			return "", stderrors.NewLLMTimeoutError(req.Model)
		}
		return "", err
	}
	if len(resp.Choices) == 0 {
		metrics.ModelCalls.WithLabelValues(req.Model, "empty").Inc()
		return "", errors.New("model service returned no choices")
	}
	metrics.ModelCalls.WithLabelValues(req.Model, "ok").Inc()
	return resp.Choices[0].Message.Content, nil
}
