// Package gemini implements the embedding and text-generation capabilities on
// the Gemini API via google.golang.org/genai.
//
// The package holds all SDK-specific code: the rest of the system only sees
// the knowledge.Embedder and generate.Provider contracts, so swapping the
// model provider never touches orchestration code.
package gemini

import (
	"context"
	"fmt"
	"log/slog"

	"google.golang.org/genai"

	"github.com/koopa0/study-assistant/internal/generate"
	"github.com/koopa0/study-assistant/internal/knowledge"
)

// Model defaults. The embedding dimensionality must match what the chunk
// store's vector column was created with.
const (
	DefaultGenerationModel = "gemini-2.5-flash"
	DefaultEmbeddingModel  = "gemini-embedding-001"
	DefaultEmbeddingDim    = 768
)

// Config holds provider settings.
type Config struct {
	APIKey          string
	GenerationModel string
	EmbeddingModel  string
	EmbeddingDim    int32
	Logger          *slog.Logger
}

// Client implements knowledge.Embedder and generate.Provider on the Gemini API.
type Client struct {
	genai           *genai.Client
	generationModel string
	embeddingModel  string
	embeddingDim    int32
	logger          *slog.Logger
}

var (
	_ knowledge.Embedder = (*Client)(nil)
	_ generate.Provider  = (*Client)(nil)
)

// New creates a Gemini client. The API key must be non-empty; credential-less
// operation is the generate package's degraded mode, not this package's concern.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini: API key is required")
	}
	if cfg.GenerationModel == "" {
		cfg.GenerationModel = DefaultGenerationModel
	}
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = DefaultEmbeddingModel
	}
	if cfg.EmbeddingDim <= 0 {
		cfg.EmbeddingDim = DefaultEmbeddingDim
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: creating client: %w", err)
	}

	return &Client{
		genai:           client,
		generationModel: cfg.GenerationModel,
		embeddingModel:  cfg.EmbeddingModel,
		embeddingDim:    cfg.EmbeddingDim,
		logger:          cfg.Logger,
	}, nil
}

// Embed embeds one text and returns the vector with token accounting.
func (c *Client) Embed(ctx context.Context, text string) (knowledge.Embedding, error) {
	dim := c.embeddingDim
	resp, err := c.genai.Models.EmbedContent(ctx, c.embeddingModel, genai.Text(text),
		&genai.EmbedContentConfig{OutputDimensionality: &dim})
	if err != nil {
		return knowledge.Embedding{}, fmt.Errorf("gemini: embedding text: %w", err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Values) == 0 {
		return knowledge.Embedding{}, knowledge.ErrEmptyEmbedding
	}

	return knowledge.Embedding{
		Vector:     resp.Embeddings[0].Values,
		TokenCount: estimateTokens(text),
	}, nil
}

// estimateTokens approximates token counts at four bytes per token.
// The Gemini API does not return embedding token statistics; a separate
// CountTokens call per chunk is not worth the latency during ingestion.
func estimateTokens(text string) int {
	return (len(text) + 3) / 4
}

// Generate performs a single-shot generation call.
func (c *Client) Generate(ctx context.Context, req generate.Request) (generate.Result, error) {
	resp, err := c.genai.Models.GenerateContent(ctx, c.generationModel, buildContents(req), buildConfig(req))
	if err != nil {
		return generate.Result{}, fmt.Errorf("gemini: generate: %w", err)
	}

	result := generate.Result{
		Content: resp.Text(),
		Model:   c.generationModel,
	}
	if resp.UsageMetadata != nil {
		result.TokensUsed = int(resp.UsageMetadata.TotalTokenCount)
	}
	return result, nil
}

// GenerateStream starts a streaming generation call. Fragments are pushed
// from the SDK iterator into the returned Stream; canceling the stream's
// context stops the iterator and frees the underlying connection.
func (c *Client) GenerateStream(ctx context.Context, req generate.Request) (generate.Stream, error) {
	ctx, cancel := context.WithCancel(ctx)
	frags := make(chan string)
	done := make(chan error, 1)

	go func() {
		defer close(frags)
		for resp, err := range c.genai.Models.GenerateContentStream(ctx, c.generationModel, buildContents(req), buildConfig(req)) {
			if err != nil {
				done <- fmt.Errorf("gemini: stream: %w", err)
				return
			}
			text := resp.Text()
			if text == "" {
				continue
			}
			select {
			case frags <- text:
			case <-ctx.Done():
				done <- ctx.Err()
				return
			}
		}
		done <- nil
	}()

	return generate.NewStream(frags, done, cancel), nil
}

// buildContents renders history plus the new user turn as Gemini contents.
func buildContents(req generate.Request) []*genai.Content {
	contents := make([]*genai.Content, 0, len(req.History)+1)
	for _, turn := range req.History {
		role := genai.RoleUser
		if turn.Role == "assistant" {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(turn.Content, genai.Role(role)))
	}
	contents = append(contents, genai.NewContentFromText(req.UserMessage, genai.RoleUser))
	return contents
}

// buildConfig carries the system block (with grounding context, when present).
func buildConfig(req generate.Request) *genai.GenerateContentConfig {
	return &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(req.SystemInstruction(), genai.RoleUser),
	}
}
