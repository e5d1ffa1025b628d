package llm

import (
	"context"
	"fmt"
)

type Message struct {
	Role    string
	Content string
}

// Params are per-request overrides; zero values fall back to the
// client's configured defaults.
type Params struct {
	Model       string
	Temperature float32
	MaxTokens   int
}

type Response struct {
	Content          string
	Model            string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Stream is a one-shot lazy sequence of text fragments. Recv returns
// io.EOF when the completion is finished; the stream cannot be
// restarted. Close releases the underlying network stream and must be
// called exactly once.
type Stream interface {
	Recv() (string, error)
	Close() error
}

// Client produces chat completions. Implementations never retry or
// cache; upstream failures surface as *GatewayError.
type Client interface {
	Complete(ctx context.Context, messages []Message, params Params) (Response, error)
	CompleteStream(ctx context.Context, messages []Message, params Params) (Stream, error)
}

// GatewayError carries the upstream completion-service failure.
type GatewayError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *GatewayError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("completion gateway: upstream status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("completion gateway: %s", e.Message)
}

func (e *GatewayError) Unwrap() error { return e.Err }
