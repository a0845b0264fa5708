// Package openai adapts the OpenAI Chat Completions API to the engine's
// llm.Client interface.
package openai

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"

	"github.com/pagesense-ai/pagesense/llm"
)

// Options configure the OpenAI adapter. Fields mirror a deliberately small
// subset of Chat Completion parameters; extend via functional options.
type Options struct {
	Model               string
	Temperature         float64
	MaxCompletionTokens int64
}

// Client wraps the OpenAI API behind llm.Client.
type Client struct {
	client *openai.Client
	opts   Options
}

// New creates an adapter using the default SDK client (API key from env).
func New(optFns ...func(o *Options)) *Client {
	c := openai.NewClient()
	return NewFromClient(&c, optFns...)
}

// NewFromClient creates an adapter from an existing SDK client.
func NewFromClient(client *openai.Client, optFns ...func(o *Options)) *Client {
	opts := Options{
		Model:               openai.ChatModelGPT4oMini,
		Temperature:         0.7,
		MaxCompletionTokens: 4096,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Client{client: client, opts: opts}
}

// Generate implements llm.Client.
func (c *Client) Generate(ctx context.Context, req llm.Request) (*llm.Completion, error) {
	resp, err := c.complete(ctx, req, req.SystemPrompt)
	if err != nil {
		return nil, err
	}
	content, usage, err := firstChoice(resp)
	if err != nil {
		return nil, err
	}
	return &llm.Completion{Content: content, Usage: usage}, nil
}

// GenerateJSON implements llm.Client. The JSON instruction rides on the
// system prompt and the object is extracted tolerantly from the reply.
func (c *Client) GenerateJSON(ctx context.Context, req llm.Request) (*llm.JSONCompletion, error) {
	resp, err := c.complete(ctx, req, llm.JSONInstruction(req.SystemPrompt))
	if err != nil {
		return nil, err
	}
	content, usage, err := firstChoice(resp)
	if err != nil {
		return nil, err
	}
	raw, err := llm.ExtractJSON(content)
	if err != nil {
		return nil, fmt.Errorf("openai json response: %w", err)
	}
	return &llm.JSONCompletion{Raw: raw, Usage: usage}, nil
}

func (c *Client) complete(ctx context.Context, req llm.Request, system string) (*openai.ChatCompletion, error) {
	var messages []openai.ChatCompletionMessageParamUnion
	if system != "" {
		messages = append(messages, openai.SystemMessage(system))
	}
	messages = append(messages, openai.UserMessage(req.Prompt))

	maxTokens := c.opts.MaxCompletionTokens
	if req.MaxTokens > 0 {
		maxTokens = int64(req.MaxTokens)
	}

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages:            messages,
		Model:               c.opts.Model,
		Temperature:         openai.Float(c.opts.Temperature),
		MaxCompletionTokens: openai.Int(maxTokens),
	})
	if err != nil {
		return nil, fmt.Errorf("openai api error: %w", err)
	}
	return resp, nil
}

func firstChoice(resp *openai.ChatCompletion) (string, *llm.TokenUsage, error) {
	if len(resp.Choices) == 0 {
		return "", nil, fmt.Errorf("no choices returned")
	}
	var usage *llm.TokenUsage
	if resp.Usage.PromptTokens > 0 || resp.Usage.CompletionTokens > 0 {
		usage = &llm.TokenUsage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
		}
	}
	return resp.Choices[0].Message.Content, usage, nil
}
