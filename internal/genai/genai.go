// Package genai wraps the text-generation service used to draft
// configurations from profiled upload data.
package genai

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// Client produces a raw text completion for a prompt. Implementations
// must return UpstreamError when the service call itself fails.
type Client interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// UpstreamError marks a failed call to an external service.
type UpstreamError struct {
	Service string
	Err     error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s upstream: %v", e.Service, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

const systemPrompt = `You are a municipal permitting systems analyst. Given summaries of a city's permitting and licensing data, respond with a single JSON object containing "summary", "record_types", "departments" and "user_roles" describing a complete permitting configuration. Reference departments by name. Do not include any text outside the JSON object.`

// OpenAI calls the chat completion API.
type OpenAI struct {
	client  *openai.Client
	model   string
	timeout time.Duration
	log     *slog.Logger
}

func NewOpenAI(apiKey, model string, timeout time.Duration, log *slog.Logger) *OpenAI {
	return &OpenAI{
		client:  openai.NewClient(apiKey),
		model:   model,
		timeout: timeout,
		log:     log,
	}
}

func (c *OpenAI) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", &UpstreamError{Service: "openai", Err: err}
	}
	if len(resp.Choices) == 0 {
		return "", &UpstreamError{Service: "openai", Err: fmt.Errorf("no choices in response")}
	}
	c.log.Info("completion received",
		"model", c.model,
		"elapsed", time.Since(start).Round(time.Millisecond),
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens)
	return resp.Choices[0].Message.Content, nil
}
