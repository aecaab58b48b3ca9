package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the oxbot collectors. All methods are safe on a nil receiver.
type Metrics struct {
	// TurnsTotal counts finished turns.
	// Labels: outcome (completed|denied|cancelled|error|loop|max_rounds)
	TurnsTotal *prometheus.CounterVec

	// ApprovalsTotal counts execution decisions.
	// Labels: decision (approve|deny|auto|cancelled)
	ApprovalsTotal *prometheus.CounterVec

	// FragmentsDropped counts engine fragments with an unknown shape.
	// Labels: kind
	FragmentsDropped *prometheus.CounterVec

	// VisionFallbacks counts sessions that fell back to text-only requests.
	VisionFallbacks prometheus.Counter

	// LLMRequestDuration measures time from request to end of stream.
	// Labels: provider, status (success|error)
	LLMRequestDuration *prometheus.HistogramVec

	// LLMTokensUsed tracks token consumption.
	// Labels: provider, type (input|output)
	LLMTokensUsed *prometheus.CounterVec

	// ExecDuration measures code execution time in seconds.
	// Labels: language, exit (zero|nonzero|error)
	ExecDuration *prometheus.HistogramVec

	// EndpointUp is 1 while the configured endpoint answers health checks.
	EndpointUp prometheus.Gauge
}

// NewMetrics creates the collectors and registers them on reg. A nil reg
// creates unregistered collectors, which is convenient in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		TurnsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oxbot_turns_total",
				Help: "Total number of finished turns by outcome",
			},
			[]string{"outcome"},
		),
		ApprovalsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oxbot_approvals_total",
				Help: "Total number of execution decisions",
			},
			[]string{"decision"},
		),
		FragmentsDropped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oxbot_fragments_dropped_total",
				Help: "Total number of engine fragments dropped because their shape was unknown",
			},
			[]string{"kind"},
		),
		VisionFallbacks: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "oxbot_vision_fallbacks_total",
				Help: "Total number of times vision was disabled after a capability rejection",
			},
		),
		LLMRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "oxbot_llm_request_duration_seconds",
				Help:    "Duration of streamed LLM requests in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"provider", "status"},
		),
		LLMTokensUsed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oxbot_llm_tokens_total",
				Help: "Total number of tokens used by provider and type",
			},
			[]string{"provider", "type"},
		),
		ExecDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "oxbot_exec_duration_seconds",
				Help:    "Duration of approved code executions in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 120},
			},
			[]string{"language", "exit"},
		),
		EndpointUp: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "oxbot_endpoint_up",
				Help: "Whether the configured LLM endpoint answered its last health check",
			},
		),
	}
}

// TurnFinished records the outcome of a turn.
func (m *Metrics) TurnFinished(outcome string) {
	if m == nil {
		return
	}
	m.TurnsTotal.WithLabelValues(outcome).Inc()
}

// ApprovalResolved records an execution decision.
func (m *Metrics) ApprovalResolved(decision string) {
	if m == nil {
		return
	}
	m.ApprovalsTotal.WithLabelValues(decision).Inc()
}

// FragmentDropped records a dropped fragment of the given kind.
func (m *Metrics) FragmentDropped(kind string) {
	if m == nil {
		return
	}
	m.FragmentsDropped.WithLabelValues(kind).Inc()
}

// VisionFellBack records a vision fallback.
func (m *Metrics) VisionFellBack() {
	if m == nil {
		return
	}
	m.VisionFallbacks.Inc()
}

// RecordLLMRequest records one streamed request.
func (m *Metrics) RecordLLMRequest(provider, status string, d time.Duration, inputTokens, outputTokens int) {
	if m == nil {
		return
	}
	m.LLMRequestDuration.WithLabelValues(provider, status).Observe(d.Seconds())
	if inputTokens > 0 {
		m.LLMTokensUsed.WithLabelValues(provider, "input").Add(float64(inputTokens))
	}
	if outputTokens > 0 {
		m.LLMTokensUsed.WithLabelValues(provider, "output").Add(float64(outputTokens))
	}
}

// RecordExecution records one code execution. A negative exit code means the
// process did not exit normally.
func (m *Metrics) RecordExecution(language string, exitCode int, d time.Duration) {
	if m == nil {
		return
	}
	exit := "zero"
	switch {
	case exitCode < 0:
		exit = "error"
	case exitCode > 0:
		exit = "nonzero"
	}
	m.ExecDuration.WithLabelValues(language, exit).Observe(d.Seconds())
}

// SetEndpointUp records the result of a health check.
func (m *Metrics) SetEndpointUp(up bool) {
	if m == nil {
		return
	}
	m.EndpointUp.Set(boolToFloat(up))
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
