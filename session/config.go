package session

import (
	"log/slog"
	"time"

	"github.com/martinemde/oxbot/engine"
	"github.com/martinemde/oxbot/observability"
	"github.com/martinemde/oxbot/provider"
)

// Config holds configuration for a Coordinator.
type Config struct {
	MaxRoundsPerTurn int `yaml:"max_rounds_per_turn" json:"max_rounds_per_turn"`
	// LoopWindow is the number of identical proposals that stop a turn; 0 disables detection.
	LoopWindow    int                 `yaml:"loop_window" json:"loop_window"`
	EventCapacity int                 `yaml:"event_capacity" json:"event_capacity"`
	ExecTimeout   time.Duration       `yaml:"exec_timeout" json:"exec_timeout"`
	OutputLimits  engine.OutputLimits `yaml:"output_limits" json:"output_limits"`
	// SystemPrompt is the base prompt; empty uses engine.DefaultSystemPrompt.
	SystemPrompt string `yaml:"system_prompt,omitempty" json:"system_prompt,omitempty"`
	// WorkDir is where code runs; empty uses the process working directory.
	WorkDir      string              `yaml:"work_dir,omitempty" json:"work_dir,omitempty"`
	Capabilities engine.Capabilities `yaml:"capabilities" json:"capabilities"`
	Provider     provider.Config     `yaml:"provider" json:"provider"`
}

// DefaultConfig returns the default coordinator configuration, targeting a
// local endpoint.
func DefaultConfig() Config {
	return Config{
		MaxRoundsPerTurn: 20,
		LoopWindow:       3,
		EventCapacity:    DefaultEventCapacity,
		ExecTimeout:      2 * time.Minute,
		OutputLimits:     engine.DefaultOutputLimits(),
		Provider:         provider.DefaultLocal(),
	}
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithConfig replaces the default configuration.
func WithConfig(cfg Config) Option {
	return func(c *Coordinator) {
		c.cfg = cfg
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetrics records turn, approval and fragment counters on m.
func WithMetrics(m *observability.Metrics) Option {
	return func(c *Coordinator) {
		c.metrics = m
	}
}

// WithRequestTransforms installs request transforms, applied in order
// before every provider call.
func WithRequestTransforms(transforms ...RequestTransform) Option {
	return func(c *Coordinator) {
		c.transforms = append(c.transforms, transforms...)
	}
}

// WithRecorder persists turns and usage through r.
func WithRecorder(r Recorder) Option {
	return func(c *Coordinator) {
		c.recorder = r
	}
}

// WithAdapterFactory overrides how provider configurations become adapters.
func WithAdapterFactory(f AdapterFactory) Option {
	return func(c *Coordinator) {
		if f != nil {
			c.newAdapter = f
		}
	}
}
