// Package settings persists user preferences in a YAML file.
package settings

import (
	"fmt"
	"strings"
	"time"

	"github.com/martinemde/oxbot/provider"
)

// Settings is the full configuration file.
type Settings struct {
	Provider   ProviderSettings   `yaml:"provider"`
	Features   Features           `yaml:"features"`
	Session    SessionSettings    `yaml:"session"`
	Logging    LoggingSettings    `yaml:"logging"`
	Health     HealthSettings     `yaml:"health"`
	Transcript TranscriptSettings `yaml:"transcript"`
	Metrics    MetricsSettings    `yaml:"metrics"`
}

// ProviderSettings selects the LLM target. Only the target named by Kind is
// used; the other is kept so switching back restores it.
type ProviderSettings struct {
	Kind   provider.Kind  `yaml:"kind"`
	Local  TargetSettings `yaml:"local"`
	Remote TargetSettings `yaml:"remote"`
}

// TargetSettings configures one provider target.
type TargetSettings struct {
	Endpoint      string        `yaml:"endpoint"`
	Model         string        `yaml:"model"`
	Credential    string        `yaml:"credential"`
	ContextWindow int           `yaml:"context_window"`
	Timeout       time.Duration `yaml:"timeout"`
	MaxTokens     int           `yaml:"max_tokens"`
}

// Features are the user-facing toggles.
type Features struct {
	AutoRun     bool `yaml:"auto_run"`
	ComputerUse bool `yaml:"computer_use"`
	Vision      bool `yaml:"vision"`
}

// SessionSettings tune the coordinator.
type SessionSettings struct {
	MaxRoundsPerTurn int           `yaml:"max_rounds_per_turn"`
	LoopWindow       int           `yaml:"loop_window"`
	ExecTimeout      time.Duration `yaml:"exec_timeout"`
	SystemPrompt     string        `yaml:"system_prompt"`
	WorkDir          string        `yaml:"work_dir"`
}

// LoggingSettings configure the process logger.
type LoggingSettings struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// HealthSettings configure the endpoint monitor.
type HealthSettings struct {
	Interval time.Duration `yaml:"interval"`
	Timeout  time.Duration `yaml:"timeout"`
}

// TranscriptSettings configure the conversation database.
type TranscriptSettings struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// MetricsSettings configure the Prometheus endpoint. An empty Addr disables it.
type MetricsSettings struct {
	Addr string `yaml:"addr"`
}

// Defaults returns the settings used when no file exists.
func Defaults() Settings {
	local := provider.DefaultLocal()
	remote := provider.DefaultRemote()
	return Settings{
		Provider: ProviderSettings{
			Kind: provider.KindLocal,
			Local: TargetSettings{
				Endpoint:      local.Endpoint,
				Model:         local.Model,
				ContextWindow: local.ContextWindow,
				Timeout:       local.Timeout,
				MaxTokens:     local.MaxTokens,
			},
			Remote: TargetSettings{
				Endpoint:      remote.Endpoint,
				Model:         remote.Model,
				ContextWindow: remote.ContextWindow,
				Timeout:       remote.Timeout,
				MaxTokens:     remote.MaxTokens,
			},
		},
		Session: SessionSettings{
			MaxRoundsPerTurn: 20,
			LoopWindow:       3,
			ExecTimeout:      2 * time.Minute,
		},
		Logging: LoggingSettings{
			Level:  "info",
			Format: "text",
		},
		Health: HealthSettings{
			Interval: 5 * time.Second,
			Timeout:  3 * time.Second,
		},
		Transcript: TranscriptSettings{
			Enabled: true,
		},
	}
}

// Validate checks the settings for values no component can use.
func (s Settings) Validate() error {
	switch s.Provider.Kind {
	case provider.KindLocal, provider.KindRemote:
	default:
		return fmt.Errorf("provider.kind: %w: %q", provider.ErrUnknownKind, s.Provider.Kind)
	}
	if s.Session.MaxRoundsPerTurn <= 0 {
		return fmt.Errorf("session.max_rounds_per_turn must be positive")
	}
	if s.Session.LoopWindow < 0 {
		return fmt.Errorf("session.loop_window must not be negative")
	}
	if s.Session.ExecTimeout <= 0 {
		return fmt.Errorf("session.exec_timeout must be positive")
	}
	switch strings.ToLower(s.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", s.Logging.Level)
	}
	switch strings.ToLower(s.Logging.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", s.Logging.Format)
	}
	if s.Health.Interval <= 0 || s.Health.Timeout <= 0 {
		return fmt.Errorf("health.interval and health.timeout must be positive")
	}
	return nil
}

// ProviderConfig builds the provider configuration for the selected target.
func (s Settings) ProviderConfig() (provider.Config, error) {
	target := s.Provider.Local
	if s.Provider.Kind == provider.KindRemote {
		target = s.Provider.Remote
	}
	cfg, err := provider.Configure(s.Provider.Kind, target.Endpoint, target.Model, target.Credential)
	if err != nil {
		return provider.Config{}, err
	}
	if target.ContextWindow > 0 {
		cfg.ContextWindow = target.ContextWindow
	}
	if target.Timeout > 0 {
		cfg.Timeout = target.Timeout
	}
	if target.MaxTokens > 0 {
		cfg.MaxTokens = target.MaxTokens
	}
	return cfg, nil
}
