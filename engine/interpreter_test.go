package engine

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/martinemde/oxbot/llm"
	"github.com/martinemde/oxbot/provider"
)

// scriptedAdapter replays text chunks as a stream.
type scriptedAdapter struct {
	chunks []string
	err    error
	usage  *llm.Usage
	reqs   []llm.Request
}

func (a *scriptedAdapter) Name() string { return "scripted" }

func (a *scriptedAdapter) Stream(ctx context.Context, req llm.Request) (<-chan llm.StreamEvent, error) {
	a.reqs = append(a.reqs, req)
	if a.err != nil {
		return nil, a.err
	}
	ch := make(chan llm.StreamEvent)
	go func() {
		defer close(ch)
		send := func(ev llm.StreamEvent) bool {
			select {
			case ch <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}
		for _, c := range a.chunks {
			if !send(llm.StreamEvent{Type: llm.TextDelta, Delta: c}) {
				return
			}
		}
		send(llm.StreamEvent{Type: llm.StreamFinish, Usage: a.usage})
	}()
	return ch, nil
}

func newTestInterpreter(a *scriptedAdapter) *Interpreter {
	in := NewInterpreter()
	in.SetProvider(a, provider.DefaultLocal())
	return in
}

func drain(t *testing.T, ch <-chan Fragment) []Fragment {
	t.Helper()
	var out []Fragment
	for f := range ch {
		out = append(out, f)
	}
	return out
}

func TestRespondTextOnly(t *testing.T) {
	usage := &llm.Usage{InputTokens: 5, OutputTokens: 2, TotalTokens: 7, Requests: 1}
	a := &scriptedAdapter{chunks: []string{"Hello", " there."}, usage: usage}
	in := newTestInterpreter(a)

	ch, err := in.Respond(context.Background(), Request{Messages: []llm.Message{llm.UserMessage("hi")}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	frags := drain(t, ch)
	if len(frags) < 2 {
		t.Fatalf("expected message and end fragments, got %+v", frags)
	}
	last := frags[len(frags)-1]
	if last.Kind != FragmentEnd {
		t.Fatalf("expected end fragment last, got %q", last.Kind)
	}
	if last.Usage == nil || last.Usage.TotalTokens != 7 {
		t.Errorf("expected reported usage, got %+v", last.Usage)
	}
	if got := messageText(frags); got != "Hello there." {
		t.Errorf("unexpected text %q", got)
	}
	if a.reqs[0].Model != "local" {
		t.Errorf("expected wire model from config, got %q", a.reqs[0].Model)
	}
}

func TestRespondStopsAfterRunnableBlock(t *testing.T) {
	a := &scriptedAdapter{chunks: []string{
		"Listing:\n```sh\nls\n```\n",
		"The output shows three files.",
	}}
	in := newTestInterpreter(a)

	ch, err := in.Respond(context.Background(), Request{Messages: []llm.Message{llm.UserMessage("list")}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	frags := drain(t, ch)

	var kinds []FragmentKind
	for _, f := range frags {
		kinds = append(kinds, f.Kind)
	}
	want := []FragmentKind{FragmentMessage, FragmentCode, FragmentExecuting, FragmentEnd}
	if len(kinds) != len(want) {
		t.Fatalf("expected %v, got %v", want, kinds)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Errorf("position %d: expected %q, got %q", i, want[i], kinds[i])
		}
	}
	if frags[len(frags)-1].Usage == nil {
		t.Error("expected estimated usage on early stop")
	}
}

func TestRespondContinuesPastNonRunnableBlock(t *testing.T) {
	a := &scriptedAdapter{chunks: []string{"```json\n{}\n```\n", "after"}}
	in := newTestInterpreter(a)

	ch, err := in.Respond(context.Background(), Request{Messages: []llm.Message{llm.UserMessage("x")}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	frags := drain(t, ch)
	if got := messageText(frags); got != "after" {
		t.Errorf("expected text after non-runnable block, got %q", got)
	}
}

func TestRespondRunsFirstRunnableBlockAfterDataBlock(t *testing.T) {
	a := &scriptedAdapter{chunks: []string{
		"Config:\n```json\n{\"debug\": true}\n```\n",
		"Now run:\n```python\nprint(1)\n```\n",
		"It printed 1.",
	}}
	in := newTestInterpreter(a)

	ch, err := in.Respond(context.Background(), Request{Messages: []llm.Message{llm.UserMessage("x")}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	frags := drain(t, ch)

	var executing []Fragment
	for _, f := range frags {
		if f.Kind == FragmentExecuting {
			executing = append(executing, f)
		}
	}
	if len(executing) != 1 || executing[0].Language != "python" {
		t.Fatalf("expected the python block to be the only execution, got %+v", executing)
	}
	if strings.Contains(messageText(frags), "It printed") {
		t.Error("expected the stream to stop at the runnable block")
	}
}

func TestRespondOpenError(t *testing.T) {
	a := &scriptedAdapter{err: &llm.AuthenticationError{}}
	in := newTestInterpreter(a)
	_, err := in.Respond(context.Background(), Request{Messages: []llm.Message{llm.UserMessage("x")}})
	var authErr *llm.AuthenticationError
	if !errors.As(err, &authErr) {
		t.Errorf("expected AuthenticationError, got %v", err)
	}
}

func TestFitContextWindow(t *testing.T) {
	long := make([]byte, 400)
	for i := range long {
		long[i] = 'x'
	}
	msgs := []llm.Message{
		llm.SystemMessage("sys"),
		llm.UserMessage(string(long)),
		llm.AssistantMessage(string(long)),
		llm.UserMessage("latest"),
	}

	got := fitContextWindow(msgs, 100, 0)
	if got[0].Role != llm.RoleSystem {
		t.Fatal("system message must be kept")
	}
	if got[len(got)-1].TextContent() != "latest" {
		t.Fatal("newest message must be kept")
	}
	if len(got) != 2 {
		t.Errorf("expected old messages dropped, got %d messages", len(got))
	}

	if got := fitContextWindow(msgs, 0, 0); len(got) != len(msgs) {
		t.Error("zero window should disable trimming")
	}
}
