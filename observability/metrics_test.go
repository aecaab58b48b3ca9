package observability

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/martinemde/oxbot/llm"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.TurnFinished("completed")
	m.ApprovalResolved("approve")
	m.FragmentDropped("bogus")
	m.VisionFellBack()
	m.RecordLLMRequest("local", "success", time.Second, 1, 1)
	m.RecordExecution("python", 0, time.Second)
	m.SetEndpointUp(true)
}

func TestMetricsRegisterOnRegistry(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)

	m.FragmentDropped("bogus")
	m.FragmentDropped("bogus")
	m.TurnFinished("completed")

	expected := `
		# HELP oxbot_fragments_dropped_total Total number of engine fragments dropped because their shape was unknown
		# TYPE oxbot_fragments_dropped_total counter
		oxbot_fragments_dropped_total{kind="bogus"} 2
	`
	if err := testutil.CollectAndCompare(m.FragmentsDropped, strings.NewReader(expected)); err != nil {
		t.Errorf("unexpected metric value: %v", err)
	}
	if got := testutil.ToFloat64(m.TurnsTotal.WithLabelValues("completed")); got != 1 {
		t.Errorf("expected 1 completed turn, got %v", got)
	}

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(families) == 0 {
		t.Error("expected metrics to be registered")
	}
}

func TestRecordExecutionLabels(t *testing.T) {
	m := NewMetrics(nil)
	m.RecordExecution("python", 0, 10*time.Millisecond)
	m.RecordExecution("python", 2, 10*time.Millisecond)
	m.RecordExecution("shell", -1, 10*time.Millisecond)

	if count := testutil.CollectAndCount(m.ExecDuration); count != 3 {
		t.Errorf("expected 3 label combinations, got %d", count)
	}
}

func TestSetEndpointUp(t *testing.T) {
	m := NewMetrics(nil)
	m.SetEndpointUp(true)
	if got := testutil.ToFloat64(m.EndpointUp); got != 1 {
		t.Errorf("expected 1, got %v", got)
	}
	m.SetEndpointUp(false)
	if got := testutil.ToFloat64(m.EndpointUp); got != 0 {
		t.Errorf("expected 0, got %v", got)
	}
}

type fixedAdapter struct{}

func (fixedAdapter) Name() string { return "fixed" }

func (fixedAdapter) Stream(ctx context.Context, req llm.Request) (<-chan llm.StreamEvent, error) {
	ch := make(chan llm.StreamEvent, 2)
	ch <- llm.StreamEvent{Type: llm.TextDelta, Delta: "hi"}
	ch <- llm.StreamEvent{Type: llm.StreamFinish, Usage: &llm.Usage{InputTokens: 3, OutputTokens: 4}}
	close(ch)
	return ch, nil
}

func TestLLMMiddlewareRecordsUsage(t *testing.T) {
	m := NewMetrics(nil)
	client := llm.NewClient(llm.WithProvider("fixed", fixedAdapter{}), llm.WithMiddleware(LLMMiddleware(m, nil)))

	ch, err := client.Stream(context.Background(), llm.Request{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var n int
	for range ch {
		n++
	}
	if n != 2 {
		t.Errorf("expected events to pass through, got %d", n)
	}
	if got := testutil.ToFloat64(m.LLMTokensUsed.WithLabelValues("fixed", "output")); got != 4 {
		t.Errorf("expected 4 output tokens, got %v", got)
	}
	if count := testutil.CollectAndCount(m.LLMRequestDuration); count != 1 {
		t.Errorf("expected one duration series, got %d", count)
	}
}
