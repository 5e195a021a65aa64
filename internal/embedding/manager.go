package embedding

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/sylvahq/sylva/internal/log"
	"github.com/sylvahq/sylva/internal/note"
)

// Store is the subset of the note store the manager needs.
type Store interface {
	Get(ctx context.Context, id uuid.UUID) (*note.Note, error)
	UpdateEmbedding(ctx context.Context, id uuid.UUID, vec []float32, model string) error
	FindMissingEmbedding(ctx context.Context, model string, scope note.Scope, limit int) ([]note.Note, error)
	CountMissingEmbedding(ctx context.Context, model string, scope note.Scope) (int, error)
}

// Embedder embeds a single text. *Client satisfies it.
type Embedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
	Model() string
}

// BackfillFailure records one note a backfill run could not embed.
type BackfillFailure struct {
	NoteID uuid.UUID
	Err    error
}

// BackfillResult summarizes a backfill run.
type BackfillResult struct {
	Processed int
	Succeeded int
	Failures  []BackfillFailure
}

// Manager keeps note embeddings current: it re-embeds edited notes and
// backfills notes whose embedding is missing or was built by another model.
//
// Safe for concurrent use.
type Manager struct {
	store     Store
	embedder  Embedder
	batchSize int
	limiter   *rate.Limiter
	logger    log.Logger
}

// NewManager creates a Manager. batchSize notes are embedded concurrently per
// batch, with batchDelay between batches to stay under provider rate limits.
func NewManager(store Store, embedder Embedder, batchSize int, batchDelay time.Duration, logger log.Logger) *Manager {
	if logger == nil {
		logger = log.NewNop()
	}
	if batchSize < 1 {
		batchSize = 1
	}
	if batchDelay <= 0 {
		batchDelay = time.Second
	}
	return &Manager{
		store:     store,
		embedder:  embedder,
		batchSize: batchSize,
		limiter:   rate.NewLimiter(rate.Every(batchDelay), 1),
		logger:    logger,
	}
}

// EmbedNote embeds a note's current text and stores the vector. A note with
// no text returns ErrEmptyContent and is left unembedded.
func (m *Manager) EmbedNote(ctx context.Context, n *note.Note) error {
	vec, err := m.embedder.EmbedText(ctx, n.EmbeddingText())
	if err != nil {
		return fmt.Errorf("embedding note %s: %w", n.ID, err)
	}

	if err := m.store.UpdateEmbedding(ctx, n.ID, vec, m.embedder.Model()); err != nil {
		return fmt.Errorf("storing embedding for note %s: %w", n.ID, err)
	}
	return nil
}

// Refresh re-embeds a note by ID, typically after its content changed.
func (m *Manager) Refresh(ctx context.Context, id uuid.UUID) error {
	n, err := m.store.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("refreshing embedding: %w", err)
	}
	return m.EmbedNote(ctx, n)
}

// BackfillMissing embeds every note in scope whose embedding is missing or
// stale, batch by batch. A zero scope covers all owners, which is how the
// admin CLI runs it; the HTTP surface always passes the caller's scope.
// Failed notes are recorded and skipped; the run stops when a full batch
// makes no progress, so a persistent failure cannot loop forever.
// Re-running is safe: already-embedded notes are never selected again.
func (m *Manager) BackfillMissing(ctx context.Context, scope note.Scope) (BackfillResult, error) {
	var result BackfillResult
	model := m.embedder.Model()

	total, err := m.store.CountMissingEmbedding(ctx, model, scope)
	if err != nil {
		return result, err
	}
	if total == 0 {
		m.logger.Debug("backfill: nothing to do", "model", model)
		return result, nil
	}
	m.logger.Info("backfill started", "model", model, "pending", total, "batch_size", m.batchSize)

	attempted := make(map[uuid.UUID]bool)
	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		// Failed notes keep their place in the oldest-first listing, so fetch
		// far enough past them to reach unattempted work.
		batch, err := m.store.FindMissingEmbedding(ctx, model, scope, m.batchSize+len(attempted))
		if err != nil {
			return result, fmt.Errorf("listing notes for backfill: %w", err)
		}

		fresh := make([]note.Note, 0, m.batchSize)
		for _, n := range batch {
			if !attempted[n.ID] {
				fresh = append(fresh, n)
			}
			if len(fresh) == m.batchSize {
				break
			}
		}
		if len(fresh) == 0 {
			break
		}

		var (
			mu        sync.Mutex
			succeeded int
		)
		g := new(errgroup.Group)
		g.SetLimit(m.batchSize)
		for _, n := range fresh {
			attempted[n.ID] = true
			g.Go(func() error {
				if err := m.EmbedNote(ctx, &n); err != nil {
					m.logger.Warn("backfill: note failed", "id", n.ID, "error", err)
					mu.Lock()
					result.Failures = append(result.Failures, BackfillFailure{NoteID: n.ID, Err: err})
					mu.Unlock()
					return nil
				}
				mu.Lock()
				succeeded++
				mu.Unlock()
				return nil
			})
		}
		_ = g.Wait()

		result.Processed += len(fresh)
		result.Succeeded += succeeded

		if err := m.limiter.Wait(ctx); err != nil {
			return result, err
		}
	}

	m.logger.Info("backfill finished",
		"processed", result.Processed, "succeeded", result.Succeeded, "failed", len(result.Failures))
	return result, nil
}

// IsSkippable reports whether a backfill failure is expected and benign, such
// as a note with no text.
func IsSkippable(err error) bool {
	return errors.Is(err, ErrEmptyContent)
}
