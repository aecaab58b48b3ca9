package provider

import (
	"github.com/martinemde/oxbot/llm"
)

// NewAdapter builds the wire adapter for cfg. Local servers and OpenRouter
// speak the chat completions protocol and go through go-openai; other
// prefixes are handed to gollm, which knows their native APIs.
func NewAdapter(cfg Config) (llm.ProviderAdapter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch {
	case cfg.Kind == KindLocal:
		return llm.NewOpenAIAdapter("local", llm.OpenAIConfig{
			BaseURL: cfg.Endpoint,
			APIKey:  cfg.Credential,
			Timeout: cfg.Timeout,
		}), nil
	case cfg.Prefix() == "openrouter":
		return llm.NewOpenAIAdapter("openrouter", llm.OpenAIConfig{
			BaseURL:      cfg.Endpoint,
			APIKey:       cfg.Credential,
			Timeout:      cfg.Timeout,
			IncludeUsage: true,
		}), nil
	default:
		opts := []llm.GollmAdapterOption{llm.WithModel(cfg.WireModel())}
		if cfg.MaxTokens > 0 {
			opts = append(opts, llm.WithMaxTokens(cfg.MaxTokens))
		}
		opts = append(opts, llm.WithTemperature(cfg.Temperature))
		return llm.NewGollmAdapter(cfg.Prefix(), cfg.Credential, opts...)
	}
}
