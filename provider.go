package counsel

import "context"

// StreamEventType identifies the kind of low-level streaming event.
type StreamEventType string

const (
	// StreamTextDelta carries an incremental text chunk from the model.
	StreamTextDelta StreamEventType = "text-delta"
)

// StreamEvent is a low-level event emitted by a Provider while a streaming
// call is in flight. It is distinct from [Event], the engine's user-facing
// event: the engine consumes StreamEvents and translates them.
type StreamEvent struct {
	// Type identifies the event kind.
	Type StreamEventType `json:"type"`
	// Content carries the text delta.
	Content string `json:"content,omitempty"`
}

// Provider abstracts the chat model backend.
//
// ChatStream follows a two-phase contract: incremental text is delivered on
// ch while the call is in flight, and the returned ChatResponse carries the
// fully accumulated content plus any tool calls, the finish reason, and
// usage. Tool calls are never delivered on the channel; callers that need
// them read the returned response after the channel drains.
//
// Implementations must close ch before returning, on success and on error,
// so that a caller draining ch never blocks forever.
type Provider interface {
	// Chat sends a request and returns a complete response.
	Chat(ctx context.Context, req ChatRequest) (ChatResponse, error)
	// ChatStream streams text deltas into ch, then returns the final
	// accumulated response.
	ChatStream(ctx context.Context, req ChatRequest, ch chan<- StreamEvent) (ChatResponse, error)
	// Name returns the provider name (e.g. "openai", "deepseek").
	Name() string
}
