// Package llm provides the provider-agnostic streaming layer that the
// interpreter session talks to.
//
// # Architecture
//
// The package is organized in three layers:
//
//   - Provider Interface: the ProviderAdapter interface and the shared
//     Request, Message and StreamEvent types.
//   - Provider Utilities: the typed error hierarchy, retry logic and the
//     model catalog.
//   - Core Client: a Client that routes requests to a registered adapter and
//     applies stream middleware in registration order.
//
// Two adapters ship with the package. OpenAIAdapter speaks the OpenAI chat
// completions protocol through github.com/sashabaranov/go-openai and is used
// for local inference servers (LM Studio, llama.cpp, vLLM) and OpenRouter.
// GollmAdapter wraps github.com/teilomillet/gollm for the hosted providers
// gollm knows how to reach directly.
//
// # Quick Start
//
//	adapter := llm.NewOpenAIAdapter("local", llm.OpenAIConfig{
//	    BaseURL: "http://localhost:1234/v1",
//	    APIKey:  "not-needed",
//	})
//	client := llm.NewClient(llm.WithProvider("local", adapter))
//
//	events, err := client.Stream(ctx, llm.Request{
//	    Model:    "local-model",
//	    Messages: []llm.Message{llm.UserMessage("Hello")},
//	})
//	if err != nil {
//	    return err
//	}
//	for ev := range events {
//	    fmt.Print(ev.Delta)
//	}
//
// # Vision
//
// Images travel as ContentImage parts on user messages. An adapter that
// cannot forward an image, or a provider that rejects one, reports a
// *CapabilityError so callers can retry without the image:
//
//	var capErr *llm.CapabilityError
//	if errors.As(err, &capErr) {
//	    // drop the image and try again
//	}
package llm
