// Package retrieval finds the notes most similar to a query vector, always
// inside an owner scope.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sylvahq/sylva/internal/log"
	"github.com/sylvahq/sylva/internal/note"
)

var (
	// ErrDimensionMismatch indicates a query vector whose dimension does not
	// match the stored embeddings.
	ErrDimensionMismatch = errors.New("query vector dimension mismatch")

	// ErrScopeViolation indicates the store returned a note outside the
	// requested owner scope. It signals a store bug, not bad input.
	ErrScopeViolation = errors.New("search result outside owner scope")
)

// Searcher is the subset of the note store the retriever needs.
type Searcher interface {
	VectorSearch(ctx context.Context, vec []float32, scope note.Scope, model string, threshold float64, limit int) ([]note.SearchResult, error)
}

// Config tunes a Retriever.
type Config struct {
	// Model is the embedding model tag stored vectors must carry.
	Model string

	// Dimension is the expected query vector dimension. 0 disables the check.
	Dimension int

	// Threshold is the minimum cosine similarity for a candidate.
	Threshold float64

	// Limit is the default maximum number of candidates.
	Limit int

	// Timeout bounds each search query.
	Timeout time.Duration
}

// Retriever runs scoped vector searches over the note store. Every search is
// bound to an owner; there is no path to another user's notes.
//
// Safe for concurrent use.
type Retriever struct {
	store  Searcher
	cfg    Config
	logger log.Logger
}

// New creates a Retriever.
func New(store Searcher, cfg Config, logger log.Logger) *Retriever {
	if logger == nil {
		logger = log.NewNop()
	}
	if cfg.Limit < 1 {
		cfg.Limit = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Retriever{store: store, cfg: cfg, logger: logger}
}

// Retrieve returns candidate notes for the query vector, best match first.
// An empty result is a normal outcome, not an error. The scope must name an
// owner or the search is refused with note.ErrMissingScope.
func (r *Retriever) Retrieve(ctx context.Context, vec []float32, scope note.Scope) ([]note.SearchResult, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	if r.cfg.Dimension > 0 && len(vec) != r.cfg.Dimension {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vec), r.cfg.Dimension)
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	results, err := r.store.VectorSearch(ctx, vec, scope, r.cfg.Model, r.cfg.Threshold, r.cfg.Limit)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("vector search timeout: %w", err)
		}
		return nil, fmt.Errorf("retrieving notes: %w", err)
	}

	// The store already filters and orders; double-check the contract here so
	// a store regression cannot leak low-similarity or cross-owner results.
	for _, res := range results {
		if res.Similarity < r.cfg.Threshold {
			return nil, fmt.Errorf("retrieving notes: result below threshold %.2f", r.cfg.Threshold)
		}
		if res.Note.OwnerID != scope.OwnerID {
			return nil, fmt.Errorf("retrieving notes: %w", ErrScopeViolation)
		}
	}

	r.logger.Debug("retrieval completed",
		"owner_id", scope.OwnerID, "candidates", len(results), "threshold", r.cfg.Threshold)
	return results, nil
}

// Threshold returns the configured similarity floor.
func (r *Retriever) Threshold() float64 { return r.cfg.Threshold }
