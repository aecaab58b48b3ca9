package vision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/martinemde/oxbot/llm"
)

// FallbackNotice is shown when the model rejects image input.
const FallbackNotice = "The model does not accept images; vision is disabled for this session."

// State is a snapshot of the augmenter.
type State struct {
	Enabled     bool
	LastCapture string
	CapturedAt  time.Time
}

// Augmenter attaches screenshots to outgoing requests.
type Augmenter struct {
	mu         sync.Mutex
	source     CaptureSource
	enabled    bool
	pending    []byte
	model      string
	detail     string
	lastRef    string
	capturedAt time.Time
	captures   int
	logger     *slog.Logger
}

// Option configures an Augmenter.
type Option func(*Augmenter)

// WithSource sets where screenshots come from.
func WithSource(s CaptureSource) Option {
	return func(a *Augmenter) {
		if s != nil {
			a.source = s
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Augmenter) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithModel sets the model used for the catalog pre-check.
func WithModel(model string) Option {
	return func(a *Augmenter) { a.model = model }
}

// WithDetail sets the image detail hint ("low", "high" or "auto").
func WithDetail(detail string) Option {
	return func(a *Augmenter) { a.detail = detail }
}

// WithEnabled sets the initial enabled flag.
func WithEnabled(on bool) Option {
	return func(a *Augmenter) { a.enabled = on }
}

// NewAugmenter creates a disabled augmenter with no capture source.
func NewAugmenter(opts ...Option) *Augmenter {
	a := &Augmenter{
		source: unavailableSource{},
		detail: "auto",
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// SetEnabled turns augmentation on or off.
func (a *Augmenter) SetEnabled(on bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.enabled = on
}

// Enabled reports whether requests are augmented.
func (a *Augmenter) Enabled() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.enabled
}

// SetModel updates the model used for the catalog pre-check.
func (a *Augmenter) SetModel(model string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.model = model
}

// SetPending supplies the image for the next request instead of a fresh
// capture. It is consumed by one request.
func (a *Augmenter) SetPending(image []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pending = image
}

// State returns the enabled flag and the last capture reference.
func (a *Augmenter) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return State{Enabled: a.enabled, LastCapture: a.lastRef, CapturedAt: a.capturedAt}
}

// TransformRequest returns req with a screenshot attached to a copy of the
// latest user message. A missing capture source leaves req unchanged.
func (a *Augmenter) TransformRequest(ctx context.Context, req llm.Request) (llm.Request, error) {
	a.mu.Lock()
	if !a.enabled {
		a.mu.Unlock()
		return req, nil
	}
	if supported, known := llm.KnownVisionSupport(a.model); known && !supported {
		a.mu.Unlock()
		a.logger.Debug("model does not accept images, skipping screenshot", "model", a.model)
		return req, nil
	}
	data := a.pending
	a.pending = nil
	source := a.source
	detail := a.detail
	a.mu.Unlock()

	idx := req.LastUserIndex()
	if idx < 0 {
		return req, nil
	}

	if data == nil {
		var err error
		data, err = source.Capture(ctx)
		if errors.Is(err, ErrCaptureUnavailable) {
			a.logger.Info("screen capture unavailable, sending text only", "error", err)
			return req, nil
		}
		if err != nil {
			return req, fmt.Errorf("capture screen: %w", err)
		}
	}

	frame, err := Encode(data)
	if err != nil {
		return req, err
	}

	msgs := make([]llm.Message, len(req.Messages))
	copy(msgs, req.Messages)
	m := msgs[idx].Clone()
	m.Content = append(m.Content, llm.ImageDataPart(frame.Data, frame.MediaType, detail))
	msgs[idx] = m
	req.Messages = msgs

	a.mu.Lock()
	a.captures++
	a.capturedAt = time.Now()
	a.lastRef = fmt.Sprintf("screenshot-%d.jpg", a.captures)
	ref := a.lastRef
	a.mu.Unlock()

	a.logger.Debug("attached screenshot", "ref", ref, "width", frame.Width, "height", frame.Height, "bytes", len(frame.Data))
	return req, nil
}

// Fallback disables augmentation when err is a capability rejection. It
// returns the notice for the user and whether the request should be retried.
func (a *Augmenter) Fallback(err error) (string, bool) {
	var capErr *llm.CapabilityError
	if !errors.As(err, &capErr) {
		return "", false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.enabled {
		return "", false
	}
	a.enabled = false
	a.pending = nil
	a.logger.Warn("model rejected image input, vision disabled", "model", a.model, "error", err)
	return FallbackNotice, true
}
