// Package chat defines the chat-completion provider abstraction and its
// implementations. Providers are interchangeable behind one interface; the
// rest of the service never talks to a vendor API directly.
package chat

import (
	"context"
)

// Turn is one prior transcript entry passed along for conversational context.
type Turn struct {
	Role string
	Text string
}

// Request is a single completion request with optional history.
type Request struct {
	System  string
	History []Turn
	Prompt  string
}

// Usage reports provider token accounting when available.
type Usage struct {
	PromptTokens     int64
	CompletionTokens int64
	TotalTokens      int64
}

// Reply is a completed model response.
type Reply struct {
	Text  string
	Model string
	Usage Usage
}

// Provider generates one completion per call. Implementations must be safe
// for concurrent use.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req Request) (*Reply, error)
}
