// Package llm generates chat replies through an OpenAI-compatible chat
// completion API, keeping a short shared conversation history.
package llm

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sashabaranov/go-openai"
)

const (
	MaxHistory   = 10
	DefaultModel = "gpt-4o-mini"
)

// GeminiBaseURL is Google's OpenAI-compatible endpoint.
const GeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai/"

var ErrEmptyReply = errors.New("model returned no choices")

// Generator produces a reply to one user message.
type Generator interface {
	Reply(ctx context.Context, message string) (string, error)
}

type Chat struct {
	client *openai.Client
	model  string
	system string

	mu      sync.Mutex
	history []openai.ChatCompletionMessage
}

type Option func(*Chat)

func WithSystemPrompt(prompt string) Option {
	return func(c *Chat) { c.system = prompt }
}

func New(apiKey, baseURL, model string, opts ...Option) *Chat {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = DefaultModel
	}
	c := &Chat{client: openai.NewClientWithConfig(cfg), model: model}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Chat) Model() string { return c.model }

// Reply sends message with the current history. A failed generation leaves
// the history untouched.
func (c *Chat) Reply(ctx context.Context, message string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.history = append(c.history, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: message,
	})

	var messages []openai.ChatCompletionMessage
	if c.system != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: c.system,
		})
	}
	messages = append(messages, c.history...)

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: messages,
	})
	if err != nil {
		c.history = c.history[:len(c.history)-1]
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		c.history = c.history[:len(c.history)-1]
		return "", ErrEmptyReply
	}

	reply := resp.Choices[0].Message.Content
	c.history = append(c.history, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleAssistant,
		Content: reply,
	})
	if n := len(c.history) - MaxHistory; n > 0 {
		c.history = c.history[n:]
	}
	return reply, nil
}

func (c *Chat) History() []openai.ChatCompletionMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]openai.ChatCompletionMessage(nil), c.history...)
}
