package session

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Decision is the user's answer to a PendingApproval.
type Decision string

const (
	Approve Decision = "approve"
	Deny    Decision = "deny"
)

// GateState is the lifecycle state of a Gate.
type GateState string

const (
	GateEmpty     GateState = "empty"
	GatePending   GateState = "pending"
	GateResolved  GateState = "resolved"
	GateCancelled GateState = "cancelled"
)

// PendingApproval is code waiting for a user decision.
type PendingApproval struct {
	ID        string    `json:"id"`
	Language  string    `json:"language"`
	Code      string    `json:"code"`
	CreatedAt time.Time `json:"created_at"`
}

// Gate blocks the worker until a proposal is approved, denied or cancelled.
// Resolve and Cancel race under the mutex; the first one wins.
type Gate struct {
	mu       sync.Mutex
	state    GateState
	pending  PendingApproval
	decision Decision
	done     chan struct{}
	logger   *slog.Logger
}

// NewGate returns an empty gate.
func NewGate(logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Gate{state: GateEmpty, logger: logger}
}

// Open moves the gate from Empty to Pending.
func (g *Gate) Open(p PendingApproval) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != GateEmpty {
		g.logger.Error("approval gate opened while not empty", "state", g.state, "approval_id", p.ID)
		return ErrContractViolation
	}
	g.state = GatePending
	g.pending = p
	g.decision = ""
	g.done = make(chan struct{})
	return nil
}

// Resolve fulfils the pending approval.
func (g *Gate) Resolve(d Decision) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != GatePending {
		return ErrNoPendingApproval
	}
	g.state = GateResolved
	g.decision = d
	close(g.done)
	return nil
}

// Cancel abandons the pending approval. It reports whether anything was
// pending.
func (g *Gate) Cancel() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != GatePending {
		return false
	}
	g.state = GateCancelled
	close(g.done)
	return true
}

// Wait blocks until the gate is resolved or cancelled, or ctx is done. A
// cancellation, from either Cancel or ctx, returns ErrApprovalCancelled.
func (g *Gate) Wait(ctx context.Context) (Decision, error) {
	g.mu.Lock()
	if g.state == GateEmpty {
		g.mu.Unlock()
		return "", ErrNoPendingApproval
	}
	done := g.done
	g.mu.Unlock()

	select {
	case <-done:
	case <-ctx.Done():
		g.Cancel()
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state == GateResolved {
		return g.decision, nil
	}
	return "", ErrApprovalCancelled
}

// Reset returns the gate to Empty, cancelling anything still pending.
func (g *Gate) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state == GatePending {
		close(g.done)
	}
	g.state = GateEmpty
	g.pending = PendingApproval{}
	g.decision = ""
	g.done = nil
}

// Pending returns the pending approval, if any.
func (g *Gate) Pending() (PendingApproval, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != GatePending {
		return PendingApproval{}, false
	}
	return g.pending, true
}

// State returns the current gate state.
func (g *Gate) State() GateState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}
