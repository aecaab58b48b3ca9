// Package provider validates LLM target configuration and builds the wire
// adapter for it.
package provider

import (
	"fmt"
	"strings"
	"time"
)

// Kind selects between a local OpenAI-compatible server and a hosted API.
type Kind string

const (
	KindLocal  Kind = "local"
	KindRemote Kind = "remote"
)

// PlaceholderCredential is sent to local servers that ignore the API key.
const PlaceholderCredential = "not-needed"

const (
	DefaultLocalEndpoint  = "http://localhost:1234/v1"
	DefaultLocalModel     = "openai/local"
	DefaultRemoteEndpoint = "https://openrouter.ai/api/v1"
	DefaultRemoteModel    = "openrouter/deepseek/deepseek-r1-0528:free"
)

// KnownPrefixes are the routing prefixes accepted on remote model names.
var KnownPrefixes = []string{"openrouter", "openai", "anthropic", "groq", "mistral", "deepseek", "ollama"}

// Config describes one LLM target. It is a value type; the session swaps it
// only between turns.
type Config struct {
	Kind          Kind          `yaml:"kind" json:"kind"`
	Endpoint      string        `yaml:"endpoint" json:"endpoint"`
	Model         string        `yaml:"model" json:"model"`
	Credential    string        `yaml:"credential" json:"-"`
	ContextWindow int           `yaml:"context_window" json:"context_window"`
	Timeout       time.Duration `yaml:"timeout" json:"timeout"`
	MaxTokens     int           `yaml:"max_tokens" json:"max_tokens"`
	Temperature   float64       `yaml:"temperature" json:"temperature"`
}

// DefaultLocal returns the defaults for a local server.
func DefaultLocal() Config {
	return Config{
		Kind:          KindLocal,
		Endpoint:      DefaultLocalEndpoint,
		Model:         DefaultLocalModel,
		Credential:    PlaceholderCredential,
		ContextWindow: 4096,
		Timeout:       30 * time.Second,
		MaxTokens:     1024,
		Temperature:   0.2,
	}
}

// DefaultRemote returns the defaults for a hosted target. The credential is
// left empty and must be supplied.
func DefaultRemote() Config {
	return Config{
		Kind:          KindRemote,
		Endpoint:      DefaultRemoteEndpoint,
		Model:         DefaultRemoteModel,
		ContextWindow: 64000,
		Timeout:       60 * time.Second,
		MaxTokens:     4096,
		Temperature:   0.2,
	}
}

// Configure fills defaults for empty fields and validates the result.
func Configure(kind Kind, endpoint, model, credential string) (Config, error) {
	var cfg Config
	switch kind {
	case KindLocal:
		cfg = DefaultLocal()
	case KindRemote:
		cfg = DefaultRemote()
	default:
		return Config{}, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}

	if endpoint = strings.TrimSpace(endpoint); endpoint != "" {
		cfg.Endpoint = strings.TrimRight(endpoint, "/")
	}
	if model = strings.TrimSpace(model); model != "" {
		cfg.Model = model
	}
	cfg.Credential = strings.TrimSpace(credential)
	if cfg.Kind == KindLocal && cfg.Credential == "" {
		cfg.Credential = PlaceholderCredential
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the invariants for the configured kind.
func (c Config) Validate() error {
	switch c.Kind {
	case KindLocal:
		if c.Endpoint == "" {
			return fmt.Errorf("provider: local endpoint is empty")
		}
		return nil
	case KindRemote:
		if !HasKnownPrefix(c.Model) {
			return fmt.Errorf("%w: %q (want one of %s)", ErrModelPrefix, c.Model, strings.Join(KnownPrefixes, ", "))
		}
		if c.Credential == "" || c.Credential == PlaceholderCredential {
			return ErrMissingCredential
		}
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, c.Kind)
	}
}

// Prefix returns the routing prefix of the model, or "" for local targets.
func (c Config) Prefix() string {
	if c.Kind == KindLocal {
		return ""
	}
	prefix, _, found := strings.Cut(c.Model, "/")
	if !found {
		return ""
	}
	return prefix
}

// WireModel returns the model name as the endpoint expects it, without the
// routing prefix.
func (c Config) WireModel() string {
	if c.Kind == KindLocal {
		// Local servers ignore the model or expect the name they were started with.
		if _, rest, found := strings.Cut(c.Model, "/"); found && c.Model == DefaultLocalModel {
			return rest
		}
		return c.Model
	}
	_, rest, found := strings.Cut(c.Model, "/")
	if !found {
		return c.Model
	}
	return rest
}

// HasKnownPrefix reports whether model begins with a known routing prefix.
func HasKnownPrefix(model string) bool {
	prefix, rest, found := strings.Cut(model, "/")
	if !found || rest == "" {
		return false
	}
	for _, p := range KnownPrefixes {
		if prefix == p {
			return true
		}
	}
	return false
}

// Redacted returns a copy of the config safe to log or display.
func (c Config) Redacted() Config {
	switch {
	case c.Credential == "" || c.Credential == PlaceholderCredential:
	case len(c.Credential) <= 8:
		c.Credential = "****"
	default:
		c.Credential = c.Credential[:4] + "****"
	}
	return c
}
