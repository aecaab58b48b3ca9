package llm

import "strings"

// ModelInfo describes a known model in the catalog.
type ModelInfo struct {
	ID             string   `json:"id"`
	Provider       string   `json:"provider"`
	DisplayName    string   `json:"display_name"`
	ContextWindow  int      `json:"context_window"`
	SupportsVision bool     `json:"supports_vision"`
	Free           bool     `json:"free"`
	Aliases        []string `json:"aliases,omitempty"`
}

// Models is the built-in model catalog. IDs carry the routing prefix used
// in provider configuration.
var Models = []ModelInfo{
	// Local OpenAI-compatible servers. The server decides what actually runs.
	{
		ID: "openai/local", Provider: "local", DisplayName: "Local model",
		ContextWindow: 4096, SupportsVision: false, Free: true,
		Aliases: []string{"local"},
	},

	// OpenRouter
	{
		ID: "openrouter/deepseek/deepseek-r1-0528:free", Provider: "openrouter", DisplayName: "DeepSeek R1 (free)",
		ContextWindow: 64000, SupportsVision: false, Free: true,
		Aliases: []string{"deepseek-r1"},
	},
	{
		ID: "openrouter/meta-llama/llama-3.2-11b-vision-instruct:free", Provider: "openrouter", DisplayName: "Llama 3.2 11B Vision (free)",
		ContextWindow: 131072, SupportsVision: true, Free: true,
		Aliases: []string{"llama-vision"},
	},
	{
		ID: "openrouter/google/gemini-2.0-flash-exp:free", Provider: "openrouter", DisplayName: "Gemini 2.0 Flash (free)",
		ContextWindow: 1048576, SupportsVision: true, Free: true,
		Aliases: []string{"gemini-flash"},
	},
	{
		ID: "openrouter/openai/gpt-4o", Provider: "openrouter", DisplayName: "GPT-4o via OpenRouter",
		ContextWindow: 128000, SupportsVision: true,
	},
	{
		ID: "openrouter/anthropic/claude-sonnet-4.5", Provider: "openrouter", DisplayName: "Claude Sonnet 4.5 via OpenRouter",
		ContextWindow: 200000, SupportsVision: true,
	},

	// Direct providers through gollm.
	{
		ID: "openai/gpt-4o-mini", Provider: "openai", DisplayName: "GPT-4o mini",
		ContextWindow: 128000, SupportsVision: true,
	},
	{
		ID: "anthropic/claude-sonnet-4-5", Provider: "anthropic", DisplayName: "Claude Sonnet 4.5",
		ContextWindow: 200000, SupportsVision: true,
		Aliases: []string{"sonnet"},
	},
	{
		ID: "groq/llama-3.3-70b-versatile", Provider: "groq", DisplayName: "Llama 3.3 70B (Groq)",
		ContextWindow: 131072, SupportsVision: false,
	},
}

// GetModelInfo returns the catalog entry for a model, or nil if unknown.
func GetModelInfo(modelID string) *ModelInfo {
	for i := range Models {
		if Models[i].ID == modelID {
			return &Models[i]
		}
		for _, alias := range Models[i].Aliases {
			if alias == modelID {
				return &Models[i]
			}
		}
	}
	return nil
}

// ListModels returns all known models, optionally filtered by provider.
func ListModels(provider string) []ModelInfo {
	if provider == "" {
		result := make([]ModelInfo, len(Models))
		copy(result, Models)
		return result
	}
	var result []ModelInfo
	for _, m := range Models {
		if m.Provider == provider {
			result = append(result, m)
		}
	}
	return result
}

// GetLatestModel returns the first model for a provider, optionally filtered
// by capability ("vision" or "free").
func GetLatestModel(provider string, capability string) *ModelInfo {
	for i := range Models {
		if Models[i].Provider != provider {
			continue
		}
		switch capability {
		case "":
			return &Models[i]
		case "vision":
			if Models[i].SupportsVision {
				return &Models[i]
			}
		case "free":
			if Models[i].Free {
				return &Models[i]
			}
		}
	}
	return nil
}

// KnownVisionSupport reports what the catalog knows about a model's image
// support. ok is false for models that are not in the catalog.
func KnownVisionSupport(modelID string) (supported bool, ok bool) {
	info := GetModelInfo(modelID)
	if info == nil || info.Provider == "local" {
		return false, false
	}
	return info.SupportsVision, true
}

// SplitModelPrefix splits "openrouter/deepseek/deepseek-r1" into
// ("openrouter", "deepseek/deepseek-r1"). A model without a slash has an
// empty prefix.
func SplitModelPrefix(model string) (prefix, rest string) {
	i := strings.Index(model, "/")
	if i < 0 {
		return "", model
	}
	return model[:i], model[i+1:]
}
