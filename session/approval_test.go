package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestGateApprove(t *testing.T) {
	g := NewGate(nil)
	if err := g.Open(PendingApproval{ID: "a1", Language: "python", Code: "print(1)"}); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if g.State() != GatePending {
		t.Fatalf("expected pending, got %s", g.State())
	}
	p, ok := g.Pending()
	if !ok || p.ID != "a1" {
		t.Fatalf("unexpected pending approval %+v", p)
	}

	go func() {
		time.Sleep(10 * time.Millisecond)
		_ = g.Resolve(Approve)
	}()
	d, err := g.Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if d != Approve {
		t.Errorf("expected approve, got %s", d)
	}
	if g.State() != GateResolved {
		t.Errorf("expected resolved, got %s", g.State())
	}
}

func TestGateOpenTwiceIsContractViolation(t *testing.T) {
	g := NewGate(nil)
	if err := g.Open(PendingApproval{ID: "a"}); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := g.Open(PendingApproval{ID: "b"}); !errors.Is(err, ErrContractViolation) {
		t.Fatalf("expected ErrContractViolation, got %v", err)
	}
	p, _ := g.Pending()
	if p.ID != "a" {
		t.Errorf("second Open must not replace the pending approval, got %q", p.ID)
	}
}

func TestGateResolveWithoutPending(t *testing.T) {
	g := NewGate(nil)
	if err := g.Resolve(Approve); !errors.Is(err, ErrNoPendingApproval) {
		t.Fatalf("expected ErrNoPendingApproval, got %v", err)
	}
	if _, err := g.Wait(context.Background()); !errors.Is(err, ErrNoPendingApproval) {
		t.Fatalf("expected ErrNoPendingApproval from Wait, got %v", err)
	}
}

func TestGateResolvesExactlyOnce(t *testing.T) {
	g := NewGate(nil)
	if err := g.Open(PendingApproval{ID: "a"}); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := g.Resolve(Deny); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if err := g.Resolve(Approve); !errors.Is(err, ErrNoPendingApproval) {
		t.Fatalf("expected second Resolve to fail, got %v", err)
	}
	if g.Cancel() {
		t.Error("Cancel after Resolve must not report a cancellation")
	}
	d, err := g.Wait(context.Background())
	if err != nil || d != Deny {
		t.Fatalf("expected deny, got %s, %v", d, err)
	}
}

func TestGateCancelWakesWaiter(t *testing.T) {
	g := NewGate(nil)
	if err := g.Open(PendingApproval{ID: "a"}); err != nil {
		t.Fatalf("Open: %v", err)
	}
	go func() {
		time.Sleep(10 * time.Millisecond)
		g.Cancel()
	}()
	if _, err := g.Wait(context.Background()); !errors.Is(err, ErrApprovalCancelled) {
		t.Fatalf("expected ErrApprovalCancelled, got %v", err)
	}
	if err := g.Resolve(Approve); !errors.Is(err, ErrNoPendingApproval) {
		t.Fatalf("Resolve after Cancel must fail, got %v", err)
	}
}

func TestGateWaitHonoursContext(t *testing.T) {
	g := NewGate(nil)
	if err := g.Open(PendingApproval{ID: "a"}); err != nil {
		t.Fatalf("Open: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := g.Wait(ctx); !errors.Is(err, ErrApprovalCancelled) {
		t.Fatalf("expected ErrApprovalCancelled, got %v", err)
	}
	if g.State() != GateCancelled {
		t.Errorf("expected cancelled state, got %s", g.State())
	}
}

func TestGateResetReturnsToEmpty(t *testing.T) {
	g := NewGate(nil)
	if err := g.Open(PendingApproval{ID: "a"}); err != nil {
		t.Fatalf("Open: %v", err)
	}
	g.Reset()
	if g.State() != GateEmpty {
		t.Fatalf("expected empty, got %s", g.State())
	}
	if err := g.Open(PendingApproval{ID: "b"}); err != nil {
		t.Fatalf("Open after Reset: %v", err)
	}
}

func TestGateResolveCancelRace(t *testing.T) {
	for i := 0; i < 100; i++ {
		g := NewGate(nil)
		if err := g.Open(PendingApproval{ID: "a"}); err != nil {
			t.Fatalf("Open: %v", err)
		}
		var wg sync.WaitGroup
		var resolveErr error
		var cancelled bool
		wg.Add(2)
		go func() { defer wg.Done(); resolveErr = g.Resolve(Approve) }()
		go func() { defer wg.Done(); cancelled = g.Cancel() }()
		wg.Wait()

		if (resolveErr == nil) == cancelled {
			t.Fatalf("exactly one of Resolve and Cancel must win: resolveErr=%v cancelled=%v", resolveErr, cancelled)
		}
		d, err := g.Wait(context.Background())
		if cancelled && !errors.Is(err, ErrApprovalCancelled) {
			t.Fatalf("expected cancellation, got %s, %v", d, err)
		}
		if !cancelled && (err != nil || d != Approve) {
			t.Fatalf("expected approve, got %s, %v", d, err)
		}
	}
}
