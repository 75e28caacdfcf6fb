package llm

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/PabloGalante/ttrpg-gm/internal/domain"
)

var _ domain.Generator = (*OpenAIClient)(nil)

// OpenAIClient talks to any OpenAI-compatible chat completions endpoint.
type OpenAIClient struct {
	client openai.Client
	model  string
}

func NewOpenAIClient(apiKey, baseURL, model string) *OpenAIClient {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &OpenAIClient{
		client: openai.NewClient(opts...),
		model:  model,
	}
}

func (c *OpenAIClient) Model() string { return c.model }

func (c *OpenAIClient) params(req domain.GenerateRequest) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(c.model),
		Messages:    openaiMessages(req),
		Temperature: openai.Float(req.Temperature),
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.MaxTokens))
	}
	return params
}

func (c *OpenAIClient) Generate(ctx context.Context, req domain.GenerateRequest) (*domain.Generation, error) {
	resp, err := c.client.Chat.Completions.New(ctx, c.params(req))
	if err != nil {
		return nil, fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return nil, errors.New("openai returned empty text")
	}
	return &domain.Generation{
		Text:       resp.Choices[0].Message.Content,
		Model:      c.model,
		TokensUsed: int(resp.Usage.TotalTokens),
	}, nil
}

func (c *OpenAIClient) Stream(ctx context.Context, req domain.GenerateRequest) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		stream := c.client.Chat.Completions.NewStreaming(ctx, c.params(req))
		defer stream.Close()

		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 {
				continue
			}
			text := chunk.Choices[0].Delta.Content
			if text == "" {
				continue
			}
			if !yield(text, nil) {
				return
			}
		}
		if err := stream.Err(); err != nil {
			yield("", fmt.Errorf("openai stream: %w", err))
		}
	}
}
