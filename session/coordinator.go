package session

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/martinemde/oxbot/engine"
	"github.com/martinemde/oxbot/llm"
	"github.com/martinemde/oxbot/observability"
	"github.com/martinemde/oxbot/provider"
)

// Coordinator runs one supervised conversation. Callers submit input and
// poll events; a worker goroutine drives each turn, pausing at the approval
// gate before any code runs.
type Coordinator struct {
	cfg        Config
	engine     Engine
	logger     *slog.Logger
	metrics    *observability.Metrics
	recorder   Recorder
	transforms []RequestTransform
	newAdapter AdapterFactory
	events     *EventQueue
	gate       *Gate

	mu          sync.Mutex
	id          string
	history     []Turn
	busy        bool
	closed      bool
	cancel      context.CancelFunc
	done        chan struct{}
	caps        engine.Capabilities
	workDir     string
	providerCfg provider.Config
	usage       llm.Usage

	// execMu makes "check cancellation, then start execution" atomic with
	// respect to Cancel.
	execMu  sync.Mutex
	dropped atomic.Int64
}

// New creates a coordinator around eng and configures its provider.
func New(eng Engine, opts ...Option) (*Coordinator, error) {
	c := &Coordinator{
		cfg:        DefaultConfig(),
		engine:     eng,
		logger:     slog.New(slog.DiscardHandler),
		newAdapter: provider.NewAdapter,
		id:         uuid.NewString(),
	}
	for _, opt := range opts {
		opt(c)
	}
	defaults := DefaultConfig()
	if c.cfg.MaxRoundsPerTurn <= 0 {
		c.cfg.MaxRoundsPerTurn = defaults.MaxRoundsPerTurn
	}
	if c.cfg.ExecTimeout <= 0 {
		c.cfg.ExecTimeout = defaults.ExecTimeout
	}
	if c.cfg.OutputLimits.MaxChars <= 0 && c.cfg.OutputLimits.MaxLines <= 0 {
		c.cfg.OutputLimits = defaults.OutputLimits
	}

	c.events = NewEventQueue(c.cfg.EventCapacity)
	c.gate = NewGate(c.logger)
	c.caps = c.cfg.Capabilities
	c.workDir = c.cfg.WorkDir
	if c.workDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("resolve working directory: %w", err)
		}
		c.workDir = wd
	}

	if err := c.applyProvider(c.cfg.Provider); err != nil {
		return nil, err
	}
	c.history = []Turn{c.systemTurnLocked()}
	return c, nil
}

func (c *Coordinator) applyProvider(cfg provider.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	adapter, err := c.newAdapter(cfg)
	if err != nil {
		return fmt.Errorf("build provider adapter: %w", err)
	}
	c.engine.SetProvider(adapter, cfg)
	c.providerCfg = cfg
	return nil
}

func (c *Coordinator) systemTurnLocked() Turn {
	return NewSystemTurn(engine.BuildSystemPrompt(c.cfg.SystemPrompt, engine.Environment{
		WorkDir:     c.workDir,
		Model:       c.providerCfg.Model,
		ComputerUse: c.caps.ComputerUse,
	}))
}

// Submit appends a user turn and starts a worker for it. It returns
// immediately.
func (c *Coordinator) Submit(text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyInput
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrSessionClosed
	}
	if c.busy {
		c.mu.Unlock()
		return ErrSessionBusy
	}
	turn := NewUserTurn(text)
	turnStart := len(c.history)
	c.history = append(c.history, turn)
	c.busy = true
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	c.cancel = cancel
	c.done = done
	id := c.id
	c.mu.Unlock()

	c.logger.Info("turn started", "session_id", id, "history_len", turnStart+1)
	go c.run(ctx, cancel, done, id, turn, turnStart)
	return nil
}

// PollEvents returns every event produced since the last call, in order.
// It never blocks and returns nil when nothing is new.
func (c *Coordinator) PollEvents() []Event {
	return c.events.Drain()
}

// Ready receives a value after new events are queued.
func (c *Coordinator) Ready() <-chan struct{} {
	return c.events.Ready()
}

// ResolveApproval fulfils the pending approval with d.
func (c *Coordinator) ResolveApproval(d Decision) error {
	if d != Approve && d != Deny {
		c.logger.Error("invalid approval decision", "decision", d)
		return fmt.Errorf("%w: unknown decision %q", ErrContractViolation, d)
	}
	if err := c.gate.Resolve(d); err != nil {
		c.logger.Warn("approval resolved with nothing pending", "decision", d)
		return err
	}
	return nil
}

// Cancel stops the in-flight turn. Once it returns, no further code starts
// executing for that turn.
func (c *Coordinator) Cancel() {
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	c.gate.Cancel()
	// Wait out any execution start that already passed its cancellation check.
	c.execMu.Lock()
	defer c.execMu.Unlock()
	c.logger.Info("turn cancelled")
}

// ReconfigureSystemPrompt replaces the system turn. Calling it repeatedly
// never adds a second system turn.
func (c *Coordinator) ReconfigureSystemPrompt(prompt string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg.SystemPrompt = prompt
	c.history[0] = c.systemTurnLocked()
}

// Configure swaps the provider and starts a new conversation.
func (c *Coordinator) Configure(cfg provider.Config) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrSessionClosed
	}
	if c.busy {
		return ErrConfigurationLocked
	}
	if err := c.applyProvider(cfg); err != nil {
		return err
	}
	c.resetLocked()
	c.logger.Info("provider reconfigured", "kind", cfg.Kind, "model", cfg.Model, "endpoint", cfg.Endpoint)
	return nil
}

// NewConversation discards history, usage and undelivered events.
func (c *Coordinator) NewConversation() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrSessionClosed
	}
	if c.busy {
		return ErrSessionBusy
	}
	c.resetLocked()
	return nil
}

func (c *Coordinator) resetLocked() {
	c.id = uuid.NewString()
	c.history = []Turn{c.systemTurnLocked()}
	c.usage = llm.Usage{}
	c.events.Reset()
	c.logger.Info("new conversation", "session_id", c.id)
}

// SetAutoRun toggles executing proposals without waiting for approval.
func (c *Coordinator) SetAutoRun(on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.caps.AutoRun = on
}

// SetCapabilities replaces the capabilities passed to every execution.
func (c *Coordinator) SetCapabilities(caps engine.Capabilities) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.caps = caps
	c.history[0] = c.systemTurnLocked()
}

// Capabilities returns the current capabilities.
func (c *Coordinator) Capabilities() engine.Capabilities {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.caps
}

// SetWorkingDirectory changes where code runs.
func (c *Coordinator) SetWorkingDirectory(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("working directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("working directory: %s is not a directory", dir)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.busy {
		return ErrConfigurationLocked
	}
	c.workDir = dir
	c.history[0] = c.systemTurnLocked()
	return nil
}

// WorkingDirectory returns where code runs.
func (c *Coordinator) WorkingDirectory() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.workDir
}

// ProviderConfig returns the active provider configuration.
func (c *Coordinator) ProviderConfig() provider.Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.providerCfg
}

// History returns a copy of the conversation history.
func (c *Coordinator) History() []Turn {
	c.mu.Lock()
	defer c.mu.Unlock()
	h := make([]Turn, len(c.history))
	copy(h, c.history)
	return h
}

// Busy reports whether a turn is in flight.
func (c *Coordinator) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.busy
}

// Pending returns the approval waiting for a decision, if any.
func (c *Coordinator) Pending() (PendingApproval, bool) {
	return c.gate.Pending()
}

// Usage returns the token usage accumulated by this conversation.
func (c *Coordinator) Usage() llm.Usage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.usage
}

// ID returns the conversation identifier. It changes on NewConversation
// and Configure.
func (c *Coordinator) ID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.id
}

// DroppedFragments returns how many unrecognised engine fragments were
// discarded.
func (c *Coordinator) DroppedFragments() int64 {
	return c.dropped.Load()
}

// Wait blocks until the in-flight turn, if any, finishes.
func (c *Coordinator) Wait(ctx context.Context) error {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close cancels any in-flight turn, waits for the worker and rejects
// further input. Events already queued remain available to PollEvents.
func (c *Coordinator) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	done := c.done
	c.mu.Unlock()

	c.Cancel()
	if done != nil {
		<-done
	}
	c.events.Close()
	return nil
}
