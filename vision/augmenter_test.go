package vision

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/martinemde/oxbot/engine"
	"github.com/martinemde/oxbot/llm"
	"github.com/martinemde/oxbot/provider"
	"github.com/martinemde/oxbot/session"
)

var _ session.FallbackTransform = (*Augmenter)(nil)

func baseRequest() llm.Request {
	return llm.Request{Messages: []llm.Message{
		llm.SystemMessage("sys"),
		llm.UserMessage("first"),
		llm.AssistantMessage("ok"),
		llm.UserMessage("what is on my screen?"),
	}}
}

func countingSource(t *testing.T, calls *int) CaptureSource {
	data := pngBytes(t, 64, 32)
	return CaptureFunc(func(context.Context) ([]byte, error) {
		*calls++
		return data, nil
	})
}

func TestAugmenterDisabledLeavesRequest(t *testing.T) {
	calls := 0
	a := NewAugmenter(WithSource(countingSource(t, &calls)))
	req := baseRequest()
	out, err := a.TransformRequest(context.Background(), req)
	if err != nil {
		t.Fatalf("TransformRequest: %v", err)
	}
	if out.Messages[3].HasImage() || calls != 0 {
		t.Fatalf("disabled augmenter must not capture (calls=%d)", calls)
	}
}

func TestAugmenterAttachesToLatestUserMessageCopy(t *testing.T) {
	calls := 0
	a := NewAugmenter(WithSource(countingSource(t, &calls)), WithEnabled(true))
	req := baseRequest()

	out, err := a.TransformRequest(context.Background(), req)
	if err != nil {
		t.Fatalf("TransformRequest: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected one capture, got %d", calls)
	}
	if !out.Messages[3].HasImage() {
		t.Fatal("expected an image on the latest user message")
	}
	if out.Messages[1].HasImage() {
		t.Error("only the latest user message may carry the image")
	}
	if req.Messages[3].HasImage() || len(req.Messages[3].Content) != 1 {
		t.Error("the caller's request must not be mutated")
	}
	img := out.Messages[3].Content[1].Image
	if img.MediaType != "image/jpeg" || img.Detail != "auto" || len(img.Data) == 0 {
		t.Errorf("unexpected image part %+v", img)
	}
	if st := a.State(); st.LastCapture == "" || st.CapturedAt.IsZero() {
		t.Errorf("expected capture state to be recorded, got %+v", st)
	}
}

func TestAugmenterPendingImageUsedOnce(t *testing.T) {
	calls := 0
	a := NewAugmenter(WithSource(countingSource(t, &calls)), WithEnabled(true))
	a.SetPending(pngBytes(t, 10, 10))

	if _, err := a.TransformRequest(context.Background(), baseRequest()); err != nil {
		t.Fatalf("TransformRequest: %v", err)
	}
	if calls != 0 {
		t.Fatalf("pending image should replace the capture, got %d captures", calls)
	}
	if _, err := a.TransformRequest(context.Background(), baseRequest()); err != nil {
		t.Fatalf("TransformRequest: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected a capture once the pending image was used, got %d", calls)
	}
}

func TestAugmenterSkipsWhenCaptureUnavailable(t *testing.T) {
	a := NewAugmenter(WithEnabled(true))
	out, err := a.TransformRequest(context.Background(), baseRequest())
	if err != nil {
		t.Fatalf("capture unavailability must not fail the request: %v", err)
	}
	if out.Messages[3].HasImage() {
		t.Error("expected text-only request")
	}
}

func TestAugmenterHonoursCatalog(t *testing.T) {
	calls := 0
	a := NewAugmenter(
		WithSource(countingSource(t, &calls)),
		WithEnabled(true),
		WithModel("openrouter/deepseek/deepseek-r1-0528:free"),
	)
	out, err := a.TransformRequest(context.Background(), baseRequest())
	if err != nil {
		t.Fatalf("TransformRequest: %v", err)
	}
	if calls != 0 || out.Messages[3].HasImage() {
		t.Fatal("a model known to be text-only must not receive a screenshot")
	}

	a.SetModel("openrouter/openai/gpt-4o")
	out, _ = a.TransformRequest(context.Background(), baseRequest())
	if !out.Messages[3].HasImage() {
		t.Fatal("a vision model should receive the screenshot")
	}
}

func TestAugmenterFallback(t *testing.T) {
	a := NewAugmenter(WithEnabled(true))

	if _, ok := a.Fallback(errors.New("boom")); ok {
		t.Fatal("only capability errors trigger a fallback")
	}
	capErr := &llm.CapabilityError{ProviderError: llm.ProviderError{SDKError: llm.SDKError{Message: "no images"}}, Capability: "image"}
	notice, ok := a.Fallback(capErr)
	if !ok || notice != FallbackNotice {
		t.Fatalf("expected fallback, got %q %v", notice, ok)
	}
	if a.Enabled() {
		t.Error("expected vision disabled after fallback")
	}
	if _, ok := a.Fallback(capErr); ok {
		t.Error("a disabled augmenter cannot fall back again")
	}
}

func TestFileSource(t *testing.T) {
	dir := t.TempDir()
	if _, err := (FileSource{Path: filepath.Join(dir, "missing.png")}).Capture(context.Background()); !errors.Is(err, ErrCaptureUnavailable) {
		t.Fatalf("expected ErrCaptureUnavailable, got %v", err)
	}
	path := filepath.Join(dir, "shot.png")
	want := pngBytes(t, 4, 4)
	if err := os.WriteFile(path, want, 0o600); err != nil {
		t.Fatal(err)
	}
	got, err := (FileSource{Path: path}).Capture(context.Background())
	if err != nil || len(got) != len(want) {
		t.Fatalf("unexpected capture: %d bytes, %v", len(got), err)
	}
}

// visionRejectingEngine rejects any request that carries an image.
type visionRejectingEngine struct {
	mu       sync.Mutex
	requests []engine.Request
}

func (e *visionRejectingEngine) Respond(ctx context.Context, req engine.Request) (<-chan engine.Fragment, error) {
	e.mu.Lock()
	e.requests = append(e.requests, req)
	e.mu.Unlock()
	for _, m := range req.Messages {
		if m.HasImage() {
			return nil, llm.ErrorFromStatusCode(400, "this model does not support image input", "local", "")
		}
	}
	ch := make(chan engine.Fragment, 2)
	ch <- engine.Fragment{Kind: engine.FragmentMessage, Text: "Here is the answer."}
	ch <- engine.Fragment{Kind: engine.FragmentEnd}
	close(ch)
	return ch, nil
}

func (e *visionRejectingEngine) Execute(context.Context, engine.ExecRequest) (<-chan engine.Fragment, error) {
	return nil, errors.New("not used")
}

func (e *visionRejectingEngine) Precheck(lang, code string) error { return engine.Precheck(lang, code) }

func (e *visionRejectingEngine) SetProvider(llm.ProviderAdapter, provider.Config) {}

func TestRejectedVisionStillDeliversAnswer(t *testing.T) {
	calls := 0
	a := NewAugmenter(WithSource(countingSource(t, &calls)), WithEnabled(true))
	eng := &visionRejectingEngine{}
	cfg := session.DefaultConfig()
	cfg.WorkDir = t.TempDir()
	c, err := session.New(eng, session.WithConfig(cfg), session.WithRequestTransforms(a))
	if err != nil {
		t.Fatalf("session.New: %v", err)
	}
	defer c.Close()

	if err := c.Submit("describe my screen"); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	var notices, answers, errs int
	for _, ev := range c.PollEvents() {
		switch ev.Kind {
		case session.EventNotice:
			notices++
		case session.EventTextDelta:
			if ev.Text == "Here is the answer." {
				answers++
			}
		case session.EventError:
			errs++
		}
	}
	if notices != 1 || answers != 1 || errs != 0 {
		t.Fatalf("expected one notice and the answer, got notices=%d answers=%d errors=%d", notices, answers, errs)
	}
	if a.Enabled() {
		t.Error("vision should stay disabled for the session")
	}
	eng.mu.Lock()
	defer eng.mu.Unlock()
	if len(eng.requests) != 2 {
		t.Fatalf("expected one retry, got %d requests", len(eng.requests))
	}
}
