package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIConfig configures an OpenAIAdapter.
type OpenAIConfig struct {
	BaseURL string
	APIKey  string
	// Timeout bounds how long to wait for response headers. The body of a
	// streaming response is not bounded; cancel the context instead.
	Timeout time.Duration
	// IncludeUsage asks the server to append token usage to the stream.
	// Some local servers reject the stream_options field.
	IncludeUsage bool
}

// OpenAIAdapter talks to any OpenAI-compatible chat completions endpoint:
// LM Studio, llama.cpp server, vLLM, Ollama's /v1 API, or OpenRouter.
type OpenAIAdapter struct {
	name   string
	client *openai.Client
	cfg    OpenAIConfig
}

// NewOpenAIAdapter creates an adapter named name for the configured endpoint.
func NewOpenAIAdapter(name string, cfg OpenAIConfig) *OpenAIAdapter {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	if cfg.Timeout > 0 {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.ResponseHeaderTimeout = cfg.Timeout
		clientConfig.HTTPClient = &http.Client{Transport: transport}
	}
	return &OpenAIAdapter{
		name:   name,
		client: openai.NewClientWithConfig(clientConfig),
		cfg:    cfg,
	}
}

// Name returns the provider identifier.
func (a *OpenAIAdapter) Name() string {
	return a.name
}

// Stream opens a chat completion stream and relays its deltas.
func (a *OpenAIAdapter) Stream(ctx context.Context, req Request) (<-chan StreamEvent, error) {
	chatReq := openai.ChatCompletionRequest{
		Model:    req.Model,
		Messages: a.convertMessages(req.Messages),
		Stream:   true,
	}
	if req.MaxTokens != nil {
		chatReq.MaxTokens = *req.MaxTokens
	}
	if req.Temperature != nil {
		chatReq.Temperature = float32(*req.Temperature)
	}
	if a.cfg.IncludeUsage {
		chatReq.StreamOptions = &openai.StreamOptions{IncludeUsage: true}
	}

	stream, err := a.client.CreateChatCompletionStream(ctx, chatReq)
	if err != nil {
		return nil, a.translateError(ctx, err)
	}

	ch := make(chan StreamEvent, 64)
	go a.processStream(ctx, req, stream, ch)
	return ch, nil
}

func (a *OpenAIAdapter) processStream(ctx context.Context, req Request, stream *openai.ChatCompletionStream, ch chan<- StreamEvent) {
	defer close(ch)
	defer stream.Close()

	send := func(ev StreamEvent) bool {
		select {
		case ch <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	if !send(StreamEvent{Type: StreamStart}) {
		return
	}

	textID := "text_0"
	started := false
	outputChars := 0
	var usage *Usage
	finish := &FinishReason{Reason: "stop", Raw: "stop"}

	for {
		response, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			send(StreamEvent{Type: StreamError, Error: a.translateError(ctx, err)})
			return
		}

		if response.Usage != nil {
			usage = &Usage{
				InputTokens:  response.Usage.PromptTokens,
				OutputTokens: response.Usage.CompletionTokens,
				TotalTokens:  response.Usage.TotalTokens,
				Requests:     1,
			}
		}

		if len(response.Choices) == 0 {
			continue
		}
		choice := response.Choices[0]

		if choice.Delta.Content != "" {
			if !started {
				if !send(StreamEvent{Type: TextStart, TextID: textID}) {
					return
				}
				started = true
			}
			outputChars += len(choice.Delta.Content)
			if !send(StreamEvent{Type: TextDelta, Delta: choice.Delta.Content, TextID: textID}) {
				return
			}
		}

		if choice.FinishReason != "" {
			finish = &FinishReason{Reason: normalizeFinishReason(string(choice.FinishReason)), Raw: string(choice.FinishReason)}
		}
	}

	if started && !send(StreamEvent{Type: TextEnd, TextID: textID}) {
		return
	}

	if usage == nil {
		estimated := EstimateUsage(req, outputChars)
		usage = &estimated
	}
	send(StreamEvent{Type: StreamFinish, FinishReason: finish, Usage: usage})
}

func normalizeFinishReason(raw string) string {
	switch raw {
	case "stop", "length", "content_filter":
		return raw
	case "eos", "end_turn":
		return "stop"
	default:
		return "other"
	}
}

// convertMessages maps messages onto the chat completions shape. Messages
// with images use MultiContent; plain text messages keep the simpler
// Content field that every local server understands.
func (a *OpenAIAdapter) convertMessages(messages []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, msg := range messages {
		role := openai.ChatMessageRoleUser
		switch msg.Role {
		case RoleSystem:
			role = openai.ChatMessageRoleSystem
		case RoleAssistant:
			role = openai.ChatMessageRoleAssistant
		}

		if !msg.HasImage() {
			out = append(out, openai.ChatCompletionMessage{Role: role, Content: msg.TextContent()})
			continue
		}

		parts := make([]openai.ChatMessagePart, 0, len(msg.Content))
		for _, part := range msg.Content {
			switch part.Kind {
			case ContentText:
				parts = append(parts, openai.ChatMessagePart{
					Type: openai.ChatMessagePartTypeText,
					Text: part.Text,
				})
			case ContentImage:
				if part.Image == nil {
					continue
				}
				parts = append(parts, openai.ChatMessagePart{
					Type: openai.ChatMessagePartTypeImageURL,
					ImageURL: &openai.ChatMessageImageURL{
						URL:    part.Image.DataURL(),
						Detail: imageDetail(part.Image.Detail),
					},
				})
			}
		}
		out = append(out, openai.ChatCompletionMessage{Role: role, MultiContent: parts})
	}
	return out
}

func imageDetail(detail string) openai.ImageURLDetail {
	switch detail {
	case "low":
		return openai.ImageURLDetailLow
	case "high":
		return openai.ImageURLDetailHigh
	default:
		return openai.ImageURLDetailAuto
	}
}

// Ping lists the endpoint's models, which every OpenAI-compatible server
// answers without running inference.
func (a *OpenAIAdapter) Ping(ctx context.Context) error {
	if _, err := a.client.ListModels(ctx); err != nil {
		return a.translateError(ctx, err)
	}
	return nil
}

// translateError converts go-openai and transport errors into the llm error
// hierarchy.
func (a *OpenAIAdapter) translateError(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		code := ""
		if apiErr.Code != nil {
			code = fmt.Sprint(apiErr.Code)
		}
		return ErrorFromStatusCode(apiErr.HTTPStatusCode, apiErr.Message, a.name, code)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return ErrorFromStatusCode(reqErr.HTTPStatusCode, reqErr.Error(), a.name, "")
	}

	if ctx.Err() != nil {
		return &AbortError{SDKError: SDKError{Message: "request cancelled", Cause: err}}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return &RequestTimeoutError{SDKError: SDKError{Message: "request to " + a.name + " timed out", Cause: err}}
		}
		return &NetworkError{SDKError: SDKError{Message: "cannot reach " + a.name, Cause: err}}
	}

	return ClassifyMessage(a.name, err)
}
