package llm

import "context"

// ProviderAdapter is the interface every provider backend must implement.
type ProviderAdapter interface {
	// Name returns the provider identifier (e.g. "local", "openrouter", "anthropic").
	Name() string

	// Stream sends a request and returns a channel of stream events. The
	// channel is closed when the response ends, fails, or ctx is done.
	Stream(ctx context.Context, req Request) (<-chan StreamEvent, error)
}

// Closer is implemented by adapters that hold resources.
type Closer interface {
	Close() error
}

// Pinger is implemented by adapters that can cheaply check whether their
// endpoint is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}
