package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/martinemde/oxbot/engine"
	"github.com/martinemde/oxbot/llm"
)

// Turn outcomes, used as metric labels.
const (
	outcomeCompleted = "completed"
	outcomeCancelled = "cancelled"
	outcomeError     = "error"
	outcomeDenied    = "denied"
	outcomeLoop      = "loop"
	outcomeMaxRounds = "max_rounds"
)

// proposal is code the model asked to run.
type proposal struct {
	language string
	code     string
}

// response is the folded result of one provider round.
type response struct {
	segments []Segment
	proposal *proposal
	usage    llm.Usage
}

// worker carries the state of a single turn.
type worker struct {
	c         *Coordinator
	ctx       context.Context
	sessionID string
	turnStart int
	logger    *slog.Logger
}

func (c *Coordinator) run(ctx context.Context, cancel context.CancelFunc, done chan struct{}, sessionID string, userTurn Turn, turnStart int) {
	w := &worker{
		c:         c,
		ctx:       ctx,
		sessionID: sessionID,
		turnStart: turnStart,
		logger:    c.logger.With("session_id", sessionID),
	}
	start := time.Now()
	outcome := outcomeError

	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("turn worker panicked", "panic", r)
			outcome = outcomeError
		}
		c.gate.Reset()
		c.mu.Lock()
		c.events.pushFinal(Event{Kind: EventTurnComplete})
		c.busy = false
		c.cancel = nil
		c.mu.Unlock()
		cancel()
		c.metrics.TurnFinished(outcome)
		w.logger.Info("turn finished", "outcome", outcome, "duration", time.Since(start))
		close(done)
	}()

	w.record(userTurn)
	outcome = w.loop()
}

func (w *worker) loop() string {
	c := w.c
	retried := false
	for round := 0; round < c.cfg.MaxRoundsPerTurn; round++ {
		if w.ctx.Err() != nil {
			return outcomeCancelled
		}

		resp, err := w.respond()
		if err != nil {
			if w.ctx.Err() != nil || isCancellation(err) {
				return outcomeCancelled
			}
			kind := Classify(err)
			if kind == ErrorCapabilityUnsupported && !retried {
				if notice, ok := w.fallback(err); ok {
					retried = true
					c.metrics.VisionFellBack()
					w.logger.Warn("provider rejected augmented request, retrying without it", "error", err)
					if w.emit(Event{Kind: EventNotice, Text: notice}) != nil {
						return outcomeCancelled
					}
					round--
					continue
				}
			}
			w.logger.Error("provider round failed", "round", round, "error_kind", kind, "error", err)
			_ = w.emit(Event{Kind: EventError, ErrorKind: kind, Detail: err.Error()})
			return outcomeError
		}

		if len(resp.segments) > 0 {
			w.appendTurn(NewAssistantTurn(resp.segments))
		}
		w.addUsage(resp.usage)

		p := resp.proposal
		if p == nil {
			return outcomeCompleted
		}
		if c.cfg.LoopWindow > 0 && DetectLoop(w.turnHistory(), c.cfg.LoopWindow) {
			w.logger.Warn("repeated code proposal, stopping turn", "language", p.language, "window", c.cfg.LoopWindow)
			_ = w.emit(Event{Kind: EventNotice, Text: fmt.Sprintf(
				"Stopped: the same code was proposed %d times in a row.", c.cfg.LoopWindow)})
			return outcomeLoop
		}
		decision, err := w.approve(p)
		if err != nil {
			if errors.Is(err, ErrApprovalCancelled) || w.ctx.Err() != nil {
				return outcomeCancelled
			}
			w.logger.Error("approval failed", "error", err)
			return outcomeError
		}
		if decision == Deny {
			if w.emit(Event{Kind: EventExecutionDenied}) != nil {
				return outcomeCancelled
			}
			w.appendTurn(NewUserTurn(DeclineNotice))
			return outcomeDenied
		}
		if w.emit(Event{Kind: EventExecutionApproved}) != nil {
			return outcomeCancelled
		}

		output, err := w.execute(p)
		if output != "" || err == nil {
			w.appendTurn(NewOutputTurn(p.language, output))
		}
		if err != nil {
			return outcomeCancelled
		}
	}

	w.logger.Warn("turn reached round limit", "max_rounds", c.cfg.MaxRoundsPerTurn)
	_ = w.emit(Event{Kind: EventNotice, Text: fmt.Sprintf(
		"Stopped after %d rounds without a final answer.", c.cfg.MaxRoundsPerTurn)})
	return outcomeMaxRounds
}

// respond runs one provider round and folds its fragments into events.
func (w *worker) respond() (response, error) {
	c := w.c
	var resp response

	c.mu.Lock()
	messages := ToMessages(c.history)
	pcfg := c.providerCfg
	c.mu.Unlock()

	req := llm.Request{Messages: messages}
	for _, t := range c.transforms {
		next, err := t.TransformRequest(w.ctx, req)
		if err != nil {
			w.logger.Warn("request transform failed, skipping", "transform", fmt.Sprintf("%T", t), "error", err)
			continue
		}
		req = next
	}

	temp := pcfg.Temperature
	frags, err := c.engine.Respond(w.ctx, engine.Request{
		Messages:      req.Messages,
		ContextWindow: pcfg.ContextWindow,
		MaxTokens:     pcfg.MaxTokens,
		Temperature:   &temp,
	})
	if err != nil {
		return resp, err
	}

	for {
		var (
			f  engine.Fragment
			ok bool
		)
		select {
		case <-w.ctx.Done():
			return resp, w.ctx.Err()
		case f, ok = <-frags:
		}
		if !ok {
			return resp, nil
		}
		if err := w.ctx.Err(); err != nil {
			return resp, err
		}

		switch f.Kind {
		case engine.FragmentMessage:
			if f.Text == "" {
				continue
			}
			resp.segments = appendSegment(resp.segments, Segment{Kind: SegmentText, Text: f.Text})
			if err := w.emit(Event{Kind: EventTextDelta, Text: f.Text}); err != nil {
				return resp, err
			}
		case engine.FragmentCode:
			if err := w.showCode(&resp, f); err != nil {
				return resp, err
			}
		case engine.FragmentExecuting:
			if resp.proposal != nil {
				w.drop(f, "second execution request in one response")
				continue
			}
			if err := c.engine.Precheck(f.Language, f.Code); err != nil {
				w.logger.Info("proposal failed precheck, shown as text", "language", f.Language, "error", err)
				if !hasCode(resp.segments, f.Code) && !hasText(resp.segments, f.Code) {
					if err := w.showCode(&resp, f); err != nil {
						return resp, err
					}
				}
				continue
			}
			if !hasCode(resp.segments, f.Code) {
				if err := w.showCode(&resp, f); err != nil {
					return resp, err
				}
			}
			resp.proposal = &proposal{language: f.Language, code: f.Code}
		case engine.FragmentEnd:
			if f.Usage != nil {
				resp.usage = resp.usage.Add(*f.Usage)
			}
		case engine.FragmentError:
			err := f.Err
			if err == nil {
				err = &llm.StreamErrorType{SDKError: llm.SDKError{Message: f.Text}}
			}
			if Classify(err) == ErrorMalformedFragment {
				w.drop(f, err.Error())
				continue
			}
			return resp, err
		default:
			w.drop(f, "unrecognised fragment")
		}
	}
}

// showCode folds a finished code block into the response. Code the engine
// could run is proposed; anything else is shown as fenced text.
func (w *worker) showCode(resp *response, f engine.Fragment) error {
	if err := w.c.engine.Precheck(f.Language, f.Code); err != nil {
		text := fence(f.Language, f.Code)
		resp.segments = appendSegment(resp.segments, Segment{Kind: SegmentText, Text: text})
		return w.emit(Event{Kind: EventTextDelta, Text: text})
	}
	resp.segments = appendSegment(resp.segments, Segment{Kind: SegmentCode, Language: f.Language, Text: f.Code})
	return w.emit(Event{Kind: EventCodeProposed, Language: f.Language, Code: f.Code})
}

func (w *worker) drop(f engine.Fragment, reason string) {
	w.c.dropped.Add(1)
	w.c.metrics.FragmentDropped(string(f.Kind))
	w.logger.Warn("dropped engine fragment", "kind", f.Kind, "reason", reason)
}

// fallback asks each transform whether it can step aside for err.
func (w *worker) fallback(err error) (string, bool) {
	for _, t := range w.c.transforms {
		ft, ok := t.(FallbackTransform)
		if !ok {
			continue
		}
		if notice, ok := ft.Fallback(err); ok {
			return notice, true
		}
	}
	return "", false
}

// approve opens the gate and waits for a decision. With auto-run on, the
// proposal is approved without waiting.
func (w *worker) approve(p *proposal) (Decision, error) {
	c := w.c
	pending := PendingApproval{
		ID:        uuid.NewString(),
		Language:  p.language,
		Code:      p.code,
		CreatedAt: time.Now(),
	}
	requested := Event{Kind: EventExecutionRequested, Language: p.language, Code: p.code, ApprovalID: pending.ID}

	c.mu.Lock()
	auto := c.caps.AutoRun
	c.mu.Unlock()
	if auto {
		if err := w.emit(requested); err != nil {
			return "", err
		}
		c.metrics.ApprovalResolved("auto")
		return Approve, nil
	}

	if err := c.gate.Open(pending); err != nil {
		return "", err
	}
	defer c.gate.Reset()
	if err := w.emit(requested); err != nil {
		return "", err
	}
	d, err := c.gate.Wait(w.ctx)
	if err != nil {
		c.metrics.ApprovalResolved("cancelled")
		return "", err
	}
	c.metrics.ApprovalResolved(string(d))
	return d, nil
}

// execute runs an approved proposal, relaying output as events. It returns
// the truncated output for history, and an error only when the turn was
// cancelled.
func (w *worker) execute(p *proposal) (string, error) {
	c := w.c
	c.mu.Lock()
	req := engine.ExecRequest{
		Language:     p.language,
		Code:         p.code,
		WorkDir:      c.workDir,
		Capabilities: c.caps,
		Timeout:      c.cfg.ExecTimeout,
	}
	c.mu.Unlock()

	c.execMu.Lock()
	if err := w.ctx.Err(); err != nil {
		c.execMu.Unlock()
		return "", err
	}
	start := time.Now()
	frags, err := c.engine.Execute(w.ctx, req)
	c.execMu.Unlock()
	if err != nil {
		w.logger.Warn("execution failed to start", "language", p.language, "error", err)
		text := "Error: " + err.Error()
		_ = w.emit(Event{Kind: EventExecutionOutput, Text: text + "\n"})
		return text, nil
	}

	var out strings.Builder
	exitCode := 0
	var note string
	for f := range frags {
		switch f.Kind {
		case engine.FragmentOutput:
			out.WriteString(f.Text)
			// Keep draining after a failed push so the process is reaped.
			_ = w.emit(Event{Kind: EventExecutionOutput, Text: f.Text})
		case engine.FragmentEnd:
			exitCode = f.ExitCode
			note = f.Text
		case engine.FragmentError:
			if f.Err != nil {
				note = f.Err.Error()
			}
		default:
			w.drop(f, "unexpected fragment during execution")
		}
	}
	c.metrics.RecordExecution(p.language, exitCode, time.Since(start))
	w.logger.Info("execution finished", "language", p.language, "exit_code", exitCode, "duration", time.Since(start))

	text := c.cfg.OutputLimits.Truncate(out.String())
	if note != "" {
		_ = w.emit(Event{Kind: EventExecutionOutput, Text: note + "\n"})
		text = strings.TrimRight(text, "\n") + "\n" + note
	}
	if exitCode != 0 {
		text = strings.TrimRight(text, "\n") + fmt.Sprintf("\n(exit code %d)", exitCode)
	}
	if strings.TrimSpace(text) == "" {
		text = "(no output)"
	}
	if err := w.ctx.Err(); err != nil {
		return strings.TrimSpace(text), err
	}
	return strings.TrimSpace(text), nil
}

func (w *worker) emit(ev Event) error {
	return w.c.events.Push(w.ctx, ev)
}

func (w *worker) appendTurn(t Turn) {
	w.c.mu.Lock()
	w.c.history = append(w.c.history, t)
	w.c.mu.Unlock()
	w.record(t)
}

func (w *worker) record(t Turn) {
	if w.c.recorder == nil {
		return
	}
	if err := w.c.recorder.RecordTurn(context.WithoutCancel(w.ctx), w.sessionID, t); err != nil {
		w.logger.Warn("failed to record turn", "role", t.Role, "error", err)
	}
}

func (w *worker) addUsage(u llm.Usage) {
	if u == (llm.Usage{}) {
		return
	}
	w.c.mu.Lock()
	w.c.usage = w.c.usage.Add(u)
	w.c.mu.Unlock()
	if w.c.recorder == nil {
		return
	}
	if err := w.c.recorder.RecordUsage(context.WithoutCancel(w.ctx), w.sessionID, u); err != nil {
		w.logger.Warn("failed to record usage", "error", err)
	}
}

// turnHistory returns the turns appended since this turn's user input.
func (w *worker) turnHistory() []Turn {
	w.c.mu.Lock()
	defer w.c.mu.Unlock()
	if w.turnStart > len(w.c.history) {
		return nil
	}
	h := make([]Turn, len(w.c.history)-w.turnStart)
	copy(h, w.c.history[w.turnStart:])
	return h
}

func hasCode(segs []Segment, code string) bool {
	for _, s := range segs {
		if s.Kind == SegmentCode && s.Text == code {
			return true
		}
	}
	return false
}

func hasText(segs []Segment, code string) bool {
	for _, s := range segs {
		if s.Kind == SegmentText && strings.Contains(s.Text, code) {
			return true
		}
	}
	return false
}

func fence(language, code string) string {
	var sb strings.Builder
	writeFence(&sb, language, code)
	return "\n" + sb.String()
}
