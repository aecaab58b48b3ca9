// Package health watches whether the configured LLM endpoint answers.
package health

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/martinemde/oxbot/observability"
)

// Status is the last known state of the endpoint.
type Status string

const (
	StatusUnknown Status = "unknown"
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
)

// Result is the outcome of one check.
type Result struct {
	Status    Status        `json:"status"`
	Message   string        `json:"message,omitempty"`
	Latency   time.Duration `json:"latency"`
	CheckedAt time.Time     `json:"checked_at"`
}

// Pinger checks an endpoint. *engine.Interpreter implements it, so the
// monitor follows provider changes.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

// Ping calls f.
func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// Monitor polls a Pinger and reports online/offline transitions.
type Monitor struct {
	pinger   Pinger
	interval time.Duration
	timeout  time.Duration
	onChange func(Result)
	metrics  *observability.Metrics
	logger   *slog.Logger

	mu     sync.Mutex
	last   Result
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithInterval sets the time between checks.
func WithInterval(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.interval = d
		}
	}
}

// WithTimeout bounds each check.
func WithTimeout(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// WithOnChange is called whenever the status changes.
func WithOnChange(fn func(Result)) Option {
	return func(m *Monitor) { m.onChange = fn }
}

// WithMetrics exports the status as the endpoint_up gauge.
func WithMetrics(metrics *observability.Metrics) Option {
	return func(m *Monitor) { m.metrics = metrics }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Monitor) {
		if l != nil {
			m.logger = l
		}
	}
}

// NewMonitor creates a monitor that checks every 5s with a 3s timeout.
func NewMonitor(p Pinger, opts ...Option) *Monitor {
	m := &Monitor{
		pinger:   p,
		interval: 5 * time.Second,
		timeout:  3 * time.Second,
		logger:   slog.New(slog.DiscardHandler),
		last:     Result{Status: StatusUnknown},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start runs an immediate check, then polls in the background until Stop
// or ctx is done.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.cancel != nil {
		m.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.CheckNow(ctx)
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.CheckNow(ctx)
			}
		}
	}()
}

// Stop halts polling and waits for an in-flight check.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	m.cancel = nil
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	m.wg.Wait()
}

// CheckNow pings the endpoint once and records the result.
func (m *Monitor) CheckNow(ctx context.Context) Result {
	checkCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	start := time.Now()
	err := m.pinger.Ping(checkCtx)
	res := Result{Status: StatusOnline, Latency: time.Since(start), CheckedAt: time.Now()}
	if err != nil {
		res.Status = StatusOffline
		res.Message = err.Error()
	}

	m.mu.Lock()
	changed := m.last.Status != res.Status
	m.last = res
	m.mu.Unlock()

	m.metrics.SetEndpointUp(res.Status == StatusOnline)
	if changed {
		m.logger.Info("endpoint status changed", "status", res.Status, "latency", res.Latency, "error", res.Message)
		if m.onChange != nil {
			m.onChange(res)
		}
	}
	return res
}

// Last returns the most recent result.
func (m *Monitor) Last() Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}
