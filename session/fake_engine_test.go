package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/martinemde/oxbot/engine"
	"github.com/martinemde/oxbot/llm"
	"github.com/martinemde/oxbot/provider"
)

// script is one scripted Respond call.
type script struct {
	frags []engine.Fragment
	err   error
	// block keeps the stream open until ctx is cancelled.
	block bool
}

// fakeEngine replays scripted responses and records executions.
type fakeEngine struct {
	mu        sync.Mutex
	scripts   []script
	fallback  script
	requests  []engine.Request
	execs     []engine.ExecRequest
	providers []provider.Config
	execOut   []engine.Fragment
}

func newFakeEngine(scripts ...script) *fakeEngine {
	return &fakeEngine{
		scripts:  scripts,
		fallback: script{frags: textResponse("done.")},
		execOut: []engine.Fragment{
			{Kind: engine.FragmentOutput, Stream: "stdout", Text: "hi\n"},
			{Kind: engine.FragmentEnd, ExitCode: 0},
		},
	}
}

func (e *fakeEngine) Respond(ctx context.Context, req engine.Request) (<-chan engine.Fragment, error) {
	e.mu.Lock()
	e.requests = append(e.requests, req)
	s := e.fallback
	if len(e.scripts) > 0 {
		s = e.scripts[0]
		e.scripts = e.scripts[1:]
	}
	e.mu.Unlock()

	if s.err != nil {
		return nil, s.err
	}
	ch := make(chan engine.Fragment)
	go func() {
		defer close(ch)
		for _, f := range s.frags {
			select {
			case ch <- f:
			case <-ctx.Done():
				return
			}
		}
		if s.block {
			<-ctx.Done()
		}
	}()
	return ch, nil
}

func (e *fakeEngine) Execute(ctx context.Context, req engine.ExecRequest) (<-chan engine.Fragment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	e.execs = append(e.execs, req)
	out := append([]engine.Fragment(nil), e.execOut...)
	e.mu.Unlock()

	ch := make(chan engine.Fragment, len(out))
	for _, f := range out {
		ch <- f
	}
	close(ch)
	return ch, nil
}

func (e *fakeEngine) Precheck(language, code string) error {
	return engine.Precheck(language, code)
}

func (e *fakeEngine) SetProvider(_ llm.ProviderAdapter, cfg provider.Config) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.providers = append(e.providers, cfg)
}

func (e *fakeEngine) execCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.execs)
}

func (e *fakeEngine) request(i int) engine.Request {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.requests[i]
}

func (e *fakeEngine) requestCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.requests)
}

// nopAdapter satisfies llm.ProviderAdapter without a network.
type nopAdapter struct{}

func (nopAdapter) Name() string { return "nop" }

func (nopAdapter) Stream(context.Context, llm.Request) (<-chan llm.StreamEvent, error) {
	ch := make(chan llm.StreamEvent)
	close(ch)
	return ch, nil
}

func nopFactory(provider.Config) (llm.ProviderAdapter, error) { return nopAdapter{}, nil }

func textResponse(text string) []engine.Fragment {
	return []engine.Fragment{
		{Kind: engine.FragmentMessage, Text: text},
		{Kind: engine.FragmentEnd, Usage: &llm.Usage{InputTokens: 10, OutputTokens: 2, TotalTokens: 12, Requests: 1}},
	}
}

func codeResponse(lang, code string) []engine.Fragment {
	return []engine.Fragment{
		{Kind: engine.FragmentMessage, Text: "Running it.\n"},
		{Kind: engine.FragmentCode, Language: lang, Code: code},
		{Kind: engine.FragmentExecuting, Language: lang, Code: code},
		{Kind: engine.FragmentEnd, Usage: &llm.Usage{InputTokens: 20, OutputTokens: 5, TotalTokens: 25, Requests: 1}},
	}
}

func newTestCoordinator(t *testing.T, eng *fakeEngine, opts ...Option) *Coordinator {
	t.Helper()
	cfg := DefaultConfig()
	cfg.WorkDir = t.TempDir()
	base := []Option{WithConfig(cfg), WithAdapterFactory(nopFactory)}
	c, err := New(eng, append(base, opts...)...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// collectUntil polls events until one of kind arrives.
func collectUntil(t *testing.T, c *Coordinator, kind EventKind) []Event {
	t.Helper()
	deadline := time.After(5 * time.Second)
	var events []Event
	for {
		batch := c.PollEvents()
		events = append(events, batch...)
		for _, ev := range batch {
			if ev.Kind == kind {
				return events
			}
		}
		select {
		case <-c.Ready():
		case <-time.After(10 * time.Millisecond):
		case <-deadline:
			t.Fatalf("timed out waiting for %s; got %v", kind, kinds(events))
		}
	}
}

func kinds(events []Event) []EventKind {
	out := make([]EventKind, len(events))
	for i, ev := range events {
		out[i] = ev.Kind
	}
	return out
}

func indexOf(events []Event, kind EventKind) int {
	for i, ev := range events {
		if ev.Kind == kind {
			return i
		}
	}
	return -1
}

func countKind(events []Event, kind EventKind) int {
	n := 0
	for _, ev := range events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}
