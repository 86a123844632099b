// Package anthropic implements model.Model on the Anthropic Messages API.
// Anthropic has no response_format, so structured output is enforced by
// forcing a single tool whose input schema is the action union; the tool
// input streams as partial JSON fragments.
package anthropic

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/sgrlab/deepresearch/core"
	"github.com/sgrlab/deepresearch/model"
)

// Options configure the Anthropic model adapter.
type Options struct {
	Model       anthropic.Model
	Temperature float64
	MaxTokens   int64
}

// Model wraps the Anthropic Messages API behind model.Model.
type Model struct {
	client anthropic.Client
	opts   Options
}

// New creates an Anthropic-backed model.
func New(apiKey string, optFns ...func(o *Options)) *Model {
	opts := Options{
		Model:       anthropic.ModelClaudeSonnet4_20250514,
		Temperature: 0.4,
		MaxTokens:   8000,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if apiKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(apiKey))
	}
	return &Model{client: anthropic.NewClient(clientOpts...), opts: opts}
}

// Name implements model.Model.
func (m *Model) Name() string { return "anthropic/" + string(m.opts.Model) }

// Complete implements model.Model with a streamed, forced tool call.
func (m *Model) Complete(ctx context.Context, req model.Request) (<-chan model.Fragment, <-chan error) {
	out := make(chan model.Fragment, 32)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		params := m.buildParams(req)
		stream := m.client.Messages.NewStreaming(ctx, params)
		finish := "stop"
		for stream.Next() {
			event := stream.Current()
			switch ev := event.AsAny().(type) {
			case anthropic.ContentBlockDeltaEvent:
				switch d := ev.Delta.AsAny().(type) {
				case anthropic.InputJSONDelta:
					if d.PartialJSON == "" {
						continue
					}
					select {
					case out <- model.Fragment{Text: d.PartialJSON}:
					case <-ctx.Done():
						errCh <- ctx.Err()
						return
					}
				}
			case anthropic.MessageDeltaEvent:
				if ev.Delta.StopReason != "" {
					finish = string(ev.Delta.StopReason)
				}
			}
		}
		if err := stream.Err(); err != nil {
			errCh <- fmt.Errorf("anthropic streaming error: %w", err)
			return
		}
		out <- model.Fragment{FinishReason: finish}
	}()

	return out, errCh
}

func (m *Model) buildParams(req model.Request) anthropic.MessageNewParams {
	var system []anthropic.TextBlockParam
	var messages []anthropic.MessageParam
	for _, msg := range req.Messages {
		switch msg.Role {
		case core.RoleSystem:
			system = append(system, anthropic.TextBlockParam{Text: msg.Content})
		case core.RoleAssistant:
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
		default:
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}

	params := anthropic.MessageNewParams{
		Model:       m.opts.Model,
		Messages:    messages,
		MaxTokens:   m.opts.MaxTokens,
		Temperature: anthropic.Float(m.opts.Temperature),
		System:      system,
	}

	if req.Schema != nil {
		inputSchema := anthropic.ToolInputSchemaParam{}
		inputSchema.SetExtraFields(map[string]any{"oneOf": req.Schema["oneOf"]})
		params.Tools = []anthropic.ToolUnionParam{{
			OfTool: &anthropic.ToolParam{
				Name:        req.SchemaName,
				Description: anthropic.String("Select the next research action."),
				InputSchema: inputSchema,
			},
		}}
		params.ToolChoice = anthropic.ToolChoiceUnionParam{
			OfTool: &anthropic.ToolChoiceToolParam{Name: req.SchemaName},
		}
	}
	return params
}
