// Package builtin provides the default single-node GraphRuntime the
// GraphResolver falls back to when a caller streams against a nil graph id.
// It drives a single Anthropic Messages call per turn; it never suspends at
// an interrupt, so GetState always reports an empty snapshot.
package builtin

import (
	"context"
	"errors"
	"fmt"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/agentgraph/engine/runtime/agent/toolerrors"
	"github.com/agentgraph/engine/runtime/checkpoint"
	"github.com/agentgraph/engine/runtime/graphruntime"
)

const nodeName = "agent"

type (
	// MessagesClient captures the subset of the Anthropic SDK used by the
	// builtin runtime so tests can substitute a fake.
	MessagesClient interface {
		NewStreaming(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) *ssestream.Stream[sdk.MessageStreamEventUnion]
	}

	// Params configures the single node's model call, resolved from the
	// caller-supplied llm_params at GraphResolver time.
	Params struct {
		Model       string
		SystemPrompt string
		MaxTokens   int
		Temperature float64
	}

	// Runtime implements graphruntime.Runtime as a single Anthropic Messages
	// call with no tool dispatch and no interrupt support.
	Runtime struct {
		msg    MessagesClient
		params Params
	}
)

// New constructs a builtin single-node Runtime.
func New(msg MessagesClient, params Params) (*Runtime, error) {
	if msg == nil {
		return nil, errors.New("builtin: messages client is required")
	}
	if params.Model == "" {
		return nil, errors.New("builtin: model is required")
	}
	if params.MaxTokens <= 0 {
		params.MaxTokens = 4096
	}
	return &Runtime{msg: msg, params: params}, nil
}

// StreamEvents drives a single model call over input.Messages and emits the
// chain/chat_model event taxonomy the streamengine event loop expects.
func (r *Runtime) StreamEvents(ctx context.Context, input graphruntime.Input, cfg graphruntime.Config) (<-chan graphruntime.Event, error) {
	msgs := make([]sdk.MessageParam, 0, len(input.Messages))
	for _, m := range input.Messages {
		switch m.Role {
		case "user":
			msgs = append(msgs, sdk.NewUserMessage(sdk.NewTextBlock(m.Content)))
		case "assistant":
			msgs = append(msgs, sdk.NewAssistantMessage(sdk.NewTextBlock(m.Content)))
		}
	}
	if len(msgs) == 0 {
		return nil, errors.New("builtin: at least one message is required")
	}

	params := sdk.MessageNewParams{
		Model:     sdk.Model(r.params.Model),
		MaxTokens: int64(r.params.MaxTokens),
		Messages:  msgs,
	}
	if r.params.SystemPrompt != "" {
		params.System = []sdk.TextBlockParam{{Text: r.params.SystemPrompt}}
	}
	if r.params.Temperature > 0 {
		params.Temperature = sdk.Float(r.params.Temperature)
	}

	stream := r.msg.NewStreaming(ctx, params)
	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("builtin: messages.new stream: %w", err)
	}

	out := make(chan graphruntime.Event, 32)
	go r.pump(ctx, stream, out, input.Messages)
	return out, nil
}

// Resume is unsupported: the builtin runtime never suspends at an interrupt,
// so there is nothing to resume from.
func (r *Runtime) Resume(ctx context.Context, cmd graphruntime.Command, cfg graphruntime.Config) (<-chan graphruntime.Event, error) {
	return nil, errors.New("builtin: runtime does not support resume; it never suspends")
}

// GetState always reports an empty snapshot: the builtin runtime has no
// interrupt points.
func (r *Runtime) GetState(ctx context.Context, cfg graphruntime.Config) (checkpoint.Snapshot, error) {
	return checkpoint.Snapshot{}, nil
}

// Cleanup is a no-op: the builtin runtime holds no process-wide resources.
func (r *Runtime) Cleanup(ctx context.Context) error { return nil }

func (r *Runtime) pump(ctx context.Context, stream *ssestream.Stream[sdk.MessageStreamEventUnion], out chan<- graphruntime.Event, history []graphruntime.Message) {
	defer close(out)
	defer func() { _ = stream.Close() }()

	send := func(ev graphruntime.Event) bool {
		select {
		case out <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	if !send(graphruntime.Event{Type: graphruntime.EventChainStart, Node: nodeName, Name: nodeName}) {
		return
	}
	if !send(graphruntime.Event{Type: graphruntime.EventChatModelStart, Node: nodeName, Name: "messages.stream"}) {
		return
	}

	var content string
	for stream.Next() {
		event := stream.Current()
		if delta, ok := event.AsAny().(sdk.ContentBlockDeltaEvent); ok {
			if text, ok := delta.Delta.AsAny().(sdk.TextDelta); ok && text.Text != "" {
				content += text.Text
				if !send(graphruntime.Event{
					Type: graphruntime.EventChatModelStream,
					Node: nodeName,
					Data: graphruntime.EventData{Delta: text.Text},
				}) {
					return
				}
			}
		}
	}
	if err := stream.Err(); err != nil {
		// A context cancellation/deadline means the caller or a stop request
		// ended the call; anything else (network blip, rate limit, 5xx from
		// the model provider) is worth a caller-side retry of the same turn.
		retryable := !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
		toolErr := toolerrors.NewWithCause("messages.new stream failed", err).WithRetryable(retryable)
		send(graphruntime.Event{
			Type: graphruntime.EventChatModelEnd,
			Node: nodeName,
			Data: graphruntime.EventData{Err: toolErr},
		})
		return
	}

	if !send(graphruntime.Event{
		Type: graphruntime.EventChatModelEnd,
		Node: nodeName,
		Data: graphruntime.EventData{Output: map[string]any{"content": content}},
	}) {
		return
	}

	messages := append(append([]graphruntime.Message(nil), history...), graphruntime.Message{
		Role:    "assistant",
		Content: content,
	})
	send(graphruntime.Event{
		Type: graphruntime.EventChainEnd,
		Node: nodeName,
		Name: nodeName,
		Data: graphruntime.EventData{Messages: messages},
	})
}
