// Package openai implements model.Model on the OpenAI Chat Completions API.
// Structured output is enforced through response_format json_schema, so the
// streamed content deltas carry the action JSON directly.
package openai

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/sgrlab/deepresearch/core"
	"github.com/sgrlab/deepresearch/model"
)

// Options configure the OpenAI model adapter. BaseURL supports
// OpenAI-compatible gateways (OpenRouter, vLLM, local proxies).
type Options struct {
	Model       string
	BaseURL     string
	Temperature float64
	MaxTokens   int64
}

// Model wraps the OpenAI Chat Completions API behind model.Model.
type Model struct {
	client openai.Client
	opts   Options
}

// New creates an OpenAI-backed model. The API key is read from the
// environment by the SDK unless overridden through client options.
func New(apiKey string, optFns ...func(o *Options)) *Model {
	opts := Options{
		Model:       openai.ChatModelGPT4oMini,
		Temperature: 0.4,
		MaxTokens:   8000,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	var reqOpts []option.RequestOption
	if apiKey != "" {
		reqOpts = append(reqOpts, option.WithAPIKey(apiKey))
	}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}
	return &Model{client: openai.NewClient(reqOpts...), opts: opts}
}

// Name implements model.Model.
func (m *Model) Name() string { return "openai/" + m.opts.Model }

// Complete implements model.Model using a streaming chat completion with a
// json_schema response format.
func (m *Model) Complete(ctx context.Context, req model.Request) (<-chan model.Fragment, <-chan error) {
	out := make(chan model.Fragment, 32)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		params := m.buildParams(req)
		stream := m.client.Chat.Completions.NewStreaming(ctx, params)
		for stream.Next() {
			ck := stream.Current()
			for _, ch := range ck.Choices {
				if ch.Delta.Content != "" {
					select {
					case out <- model.Fragment{Text: ch.Delta.Content}:
					case <-ctx.Done():
						errCh <- ctx.Err()
						return
					}
				}
				if ch.FinishReason != "" {
					out <- model.Fragment{FinishReason: ch.FinishReason}
				}
			}
		}
		if err := stream.Err(); err != nil {
			errCh <- fmt.Errorf("openai streaming error: %w", err)
		}
	}()

	return out, errCh
}

// buildParams assembles chat messages and the structured output constraint.
func (m *Model) buildParams(req model.Request) openai.ChatCompletionNewParams {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, msg := range req.Messages {
		switch msg.Role {
		case core.RoleSystem:
			messages = append(messages, openai.SystemMessage(msg.Content))
		case core.RoleAssistant:
			messages = append(messages, openai.AssistantMessage(msg.Content))
		case core.RoleTool:
			messages = append(messages, openai.UserMessage(msg.Content))
		default:
			messages = append(messages, openai.UserMessage(msg.Content))
		}
	}

	params := openai.ChatCompletionNewParams{
		Messages:            messages,
		Model:               m.opts.Model,
		Temperature:         openai.Float(m.opts.Temperature),
		MaxCompletionTokens: openai.Int(m.opts.MaxTokens),
	}
	if req.Schema != nil {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   req.SchemaName,
					Schema: req.Schema,
					Strict: openai.Bool(false),
				},
			},
		}
	}
	return params
}
