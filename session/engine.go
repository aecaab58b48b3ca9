package session

import (
	"context"

	"github.com/martinemde/oxbot/engine"
	"github.com/martinemde/oxbot/llm"
	"github.com/martinemde/oxbot/provider"
)

// Engine produces responses and runs approved code. *engine.Interpreter is
// the production implementation. Abandonment happens through ctx.
type Engine interface {
	Respond(ctx context.Context, req engine.Request) (<-chan engine.Fragment, error)
	Execute(ctx context.Context, req engine.ExecRequest) (<-chan engine.Fragment, error)
	Precheck(language, code string) error
	SetProvider(adapter llm.ProviderAdapter, cfg provider.Config)
}

// RequestTransform rewrites the outgoing request before it reaches the
// engine. Implementations must not mutate req's messages in place.
type RequestTransform interface {
	TransformRequest(ctx context.Context, req llm.Request) (llm.Request, error)
}

// FallbackTransform is a RequestTransform that can step aside when the
// provider rejects what it added. Fallback returns a user-facing notice
// and true when the request should be retried without the transform.
type FallbackTransform interface {
	RequestTransform
	Fallback(err error) (notice string, ok bool)
}

// Recorder persists turns and token usage. transcript.Store implements it.
type Recorder interface {
	RecordTurn(ctx context.Context, sessionID string, turn Turn) error
	RecordUsage(ctx context.Context, sessionID string, usage llm.Usage) error
}

// AdapterFactory builds the wire adapter for a provider configuration.
type AdapterFactory func(provider.Config) (llm.ProviderAdapter, error)
