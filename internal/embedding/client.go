// Package embedding turns note text into pgvector-ready vectors and keeps
// stored embeddings in sync with note content.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/firebase/genkit/go/ai"

	"github.com/sylvahq/sylva/internal/log"
)

var (
	// ErrEmptyContent indicates there is no text to embed.
	ErrEmptyContent = errors.New("no content to embed")

	// ErrEmbeddingFailed indicates the embedding provider call failed.
	ErrEmbeddingFailed = errors.New("embedding failed")

	// ErrDimensionMismatch indicates the provider returned a vector whose
	// dimension does not match the configured schema.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// Client wraps a Genkit embedder with input validation, a per-call timeout,
// and dimension pinning. Vectors of the wrong dimension are unusable in the
// vector(n) column, so they are rejected here rather than at insert time.
type Client struct {
	embedder  ai.Embedder
	model     string
	dimension int
	timeout   time.Duration
	logger    log.Logger
}

// NewClient creates a Client. model tags stored vectors so that a model
// change invalidates them; dimension 0 disables the dimension check.
func NewClient(embedder ai.Embedder, model string, dimension int, timeout time.Duration, logger log.Logger) *Client {
	if logger == nil {
		logger = log.NewNop()
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		embedder:  embedder,
		model:     model,
		dimension: dimension,
		timeout:   timeout,
		logger:    logger,
	}
}

// EmbedText embeds a single text. Whitespace-only input returns
// ErrEmptyContent without calling the provider.
func (c *Client) EmbedText(ctx context.Context, text string) ([]float32, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyContent
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.embedder.Embed(ctx, &ai.EmbedRequest{
		Input: []*ai.Document{
			ai.DocumentFromText(text, nil),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEmbeddingFailed, err)
	}

	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Embedding) == 0 {
		return nil, fmt.Errorf("%w: provider returned no vector", ErrEmbeddingFailed)
	}

	vec := resp.Embeddings[0].Embedding
	if c.dimension > 0 && len(vec) != c.dimension {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vec), c.dimension)
	}

	c.logger.Debug("embedded text", "model", c.model, "chars", len(text), "dimension", len(vec))
	return vec, nil
}

// Model returns the model tag written alongside stored vectors.
func (c *Client) Model() string { return c.model }

// Dimension returns the pinned vector dimension, or 0 if unpinned.
func (c *Client) Dimension() int { return c.dimension }
