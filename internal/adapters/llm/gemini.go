package llm

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"google.golang.org/genai"

	"github.com/PabloGalante/ttrpg-gm/internal/domain"
)

var _ domain.Generator = (*GeminiClient)(nil)

type GeminiClient struct {
	client    *genai.Client
	modelName string
}

type GeminiOptions struct {
	// APIKey selects the Gemini API backend. Without it Vertex AI is used
	// with Project and Location.
	APIKey   string
	Project  string
	Location string
	Model    string
}

// NewGeminiClient creates a Generator backed by Gemini.
func NewGeminiClient(ctx context.Context, opts GeminiOptions) (*GeminiClient, error) {
	cc := &genai.ClientConfig{}
	switch {
	case opts.APIKey != "":
		cc.APIKey = opts.APIKey
		cc.Backend = genai.BackendGeminiAPI
	case opts.Project != "" && opts.Location != "":
		cc.Project = opts.Project
		cc.Location = opts.Location
		cc.Backend = genai.BackendVertexAI
	default:
		return nil, errors.New("gemini needs an API key or a project and location")
	}

	modelName := opts.Model
	if modelName == "" {
		modelName = "gemini-2.5-flash"
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	return &GeminiClient{
		client:    client,
		modelName: modelName,
	}, nil
}

func (g *GeminiClient) Model() string { return g.modelName }

// Generate implements domain.Generator.
func (g *GeminiClient) Generate(ctx context.Context, req domain.GenerateRequest) (*domain.Generation, error) {
	res, err := g.client.Models.GenerateContent(ctx, g.modelName, geminiContents(req.Turns), geminiConfig(req))
	if err != nil {
		return nil, fmt.Errorf("gemini generate content: %w", err)
	}

	// Extract only the text, do not print the structs
	text := res.Text()
	if text == "" {
		return nil, errors.New("gemini returned empty text")
	}

	gen := &domain.Generation{Text: text, Model: g.modelName}
	if res.UsageMetadata != nil {
		gen.TokensUsed = int(res.UsageMetadata.TotalTokenCount)
	}
	return gen, nil
}

// Stream implements domain.Generator with the SDK's incremental API.
func (g *GeminiClient) Stream(ctx context.Context, req domain.GenerateRequest) iter.Seq2[string, error] {
	responses := g.client.Models.GenerateContentStream(ctx, g.modelName, geminiContents(req.Turns), geminiConfig(req))
	return func(yield func(string, error) bool) {
		for res, err := range responses {
			if err != nil {
				yield("", fmt.Errorf("gemini stream: %w", err))
				return
			}
			text := res.Text()
			if text == "" {
				continue
			}
			if !yield(text, nil) {
				return
			}
		}
	}
}
