package engine

import (
	"context"
	"log/slog"
	"sync"

	"github.com/martinemde/oxbot/llm"
	"github.com/martinemde/oxbot/provider"
)

// Interpreter is the production execution engine: it streams responses from
// an llm.Client and runs approved code on the local machine.
type Interpreter struct {
	mu     sync.RWMutex
	client *llm.Client
	cfg    provider.Config
	logger *slog.Logger
}

// Option configures an Interpreter.
type Option func(*Interpreter)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(in *Interpreter) {
		if l != nil {
			in.logger = l
		}
	}
}

// WithClient replaces the default llm.Client, typically to install
// middleware or a retry policy.
func WithClient(c *llm.Client) Option {
	return func(in *Interpreter) {
		in.client = c
	}
}

// NewInterpreter creates an interpreter with no provider. SetProvider must
// be called before Respond.
func NewInterpreter(opts ...Option) *Interpreter {
	in := &Interpreter{
		client: llm.NewClient(llm.WithRetryPolicy(llm.DefaultRetryPolicy())),
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// SetProvider swaps the adapter used for subsequent responses.
func (in *Interpreter) SetProvider(adapter llm.ProviderAdapter, cfg provider.Config) {
	in.mu.Lock()
	in.cfg = cfg
	in.mu.Unlock()
	in.client.ReplaceProviders(adapter.Name(), adapter)
	in.logger.Info("provider configured", "provider", adapter.Name(), "model", cfg.Model, "endpoint", cfg.Endpoint)
}

// Config returns the active provider configuration.
func (in *Interpreter) Config() provider.Config {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return in.cfg
}

// Precheck rejects code that must not be offered for execution.
func (in *Interpreter) Precheck(lang, code string) error {
	return Precheck(lang, code)
}

// Execute runs approved code. See the package-level Execute.
func (in *Interpreter) Execute(ctx context.Context, req ExecRequest) (<-chan Fragment, error) {
	in.logger.Debug("executing code", "language", req.Language, "bytes", len(req.Code), "workdir", req.WorkDir,
		"computer_use", req.Capabilities.ComputerUse)
	return Execute(ctx, req)
}

// Ping checks that the configured endpoint answers.
func (in *Interpreter) Ping(ctx context.Context) error {
	return in.client.Ping(ctx)
}

// Respond streams a model response as fragments. The channel closes after an
// end or error fragment, or when ctx is cancelled.
func (in *Interpreter) Respond(ctx context.Context, req Request) (<-chan Fragment, error) {
	cfg := in.Config()

	llmReq := llm.Request{
		Model:       req.Model,
		Messages:    fitContextWindow(req.Messages, req.ContextWindow, req.MaxTokens),
		Temperature: req.Temperature,
	}
	if llmReq.Model == "" {
		llmReq.Model = cfg.WireModel()
	}
	if req.MaxTokens > 0 {
		n := req.MaxTokens
		llmReq.MaxTokens = &n
	}
	if dropped := len(req.Messages) - len(llmReq.Messages); dropped > 0 {
		in.logger.Info("trimmed history to fit context window", "dropped_messages", dropped, "context_window", req.ContextWindow)
	}

	streamCtx, cancel := context.WithCancel(ctx)
	events, err := in.client.Stream(streamCtx, llmReq)
	if err != nil {
		cancel()
		return nil, err
	}

	out := make(chan Fragment, 64)
	go func() {
		defer close(out)
		defer cancel()

		send := func(f Fragment) bool {
			select {
			case out <- f:
				return true
			case <-ctx.Done():
				return false
			}
		}
		emit := func(frags []Fragment) (stop bool, ok bool) {
			for _, f := range frags {
				if !send(f) {
					return false, false
				}
				if f.Kind == FragmentExecuting && Runnable(f.Language) {
					stop = true
				}
			}
			return stop, true
		}

		var scanner fenceScanner
		var usage *llm.Usage
		outputChars := 0

	loop:
		for ev := range events {
			switch ev.Type {
			case llm.TextDelta:
				outputChars += len(ev.Delta)
				stop, ok := emit(scanner.Feed(ev.Delta))
				if !ok {
					return
				}
				if stop {
					// One execution per response; the rest of the stream
					// would speculate about output it has not seen.
					in.logger.Debug("stopping response at runnable code block")
					break loop
				}
			case llm.StreamFinish:
				usage = ev.Usage
			case llm.StreamError:
				send(Fragment{Kind: FragmentError, Err: ev.Error})
				return
			}
		}
		if ctx.Err() != nil {
			return
		}
		if _, ok := emit(scanner.Flush()); !ok {
			return
		}
		if usage == nil {
			estimated := llm.EstimateUsage(llmReq, outputChars)
			usage = &estimated
		}
		send(Fragment{Kind: FragmentEnd, Usage: usage})
	}()
	return out, nil
}

// fitContextWindow drops the oldest non-system messages until the estimated
// prompt fits in window minus the reply budget. The newest message is always
// kept.
func fitContextWindow(messages []llm.Message, window, reserve int) []llm.Message {
	if window <= 0 || len(messages) == 0 {
		return messages
	}
	budget := window - reserve
	if budget <= 0 {
		budget = window / 2
	}

	start := 0
	var system []llm.Message
	if messages[0].Role == llm.RoleSystem {
		system = messages[:1]
		start = 1
	}

	total := 0
	for _, m := range messages {
		total += messageTokens(m)
	}
	for total > budget && start < len(messages)-1 {
		total -= messageTokens(messages[start])
		start++
	}
	if len(system) == 0 {
		return messages[start:]
	}
	if start == 1 {
		return messages
	}
	out := make([]llm.Message, 0, 1+len(messages)-start)
	out = append(out, system...)
	return append(out, messages[start:]...)
}

func messageTokens(m llm.Message) int {
	n := len(m.TextContent())/4 + 4
	if m.HasImage() {
		n += 800
	}
	return n
}
