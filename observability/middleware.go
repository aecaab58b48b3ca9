package observability

import (
	"context"
	"log/slog"
	"time"

	"github.com/martinemde/oxbot/llm"
)

// LLMMiddleware returns stream middleware that records request duration and
// token usage, and logs failed requests. Either argument may be nil.
func LLMMiddleware(m *Metrics, logger *slog.Logger) llm.Middleware {
	if logger == nil {
		logger = NopLogger()
	}
	return func(ctx context.Context, req llm.Request, next func(context.Context, llm.Request) (<-chan llm.StreamEvent, error)) (<-chan llm.StreamEvent, error) {
		start := time.Now()
		events, err := next(ctx, req)
		if err != nil {
			m.RecordLLMRequest(req.Provider, "error", time.Since(start), 0, 0)
			logger.Warn("llm request failed", "provider", req.Provider, "model", req.Model, "error", err)
			return nil, err
		}

		out := make(chan llm.StreamEvent, cap(events))
		go func() {
			defer close(out)
			status := "success"
			var usage llm.Usage
			defer func() {
				m.RecordLLMRequest(req.Provider, status, time.Since(start), usage.InputTokens, usage.OutputTokens)
				logger.Debug("llm request finished", "provider", req.Provider, "model", req.Model,
					"status", status, "duration", time.Since(start), "input_tokens", usage.InputTokens, "output_tokens", usage.OutputTokens)
			}()
			for ev := range events {
				switch ev.Type {
				case llm.StreamFinish:
					if ev.Usage != nil {
						usage = *ev.Usage
					}
				case llm.StreamError:
					status = "error"
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					status = "cancelled"
					return
				}
			}
		}()
		return out, nil
	}
}
