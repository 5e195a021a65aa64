package note

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"

	"github.com/sylvahq/sylva/internal/log"
)

// DB is the subset of pgxpool.Pool the store needs. Defined by the consumer
// so tests can substitute a mock.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store persists notes in PostgreSQL with pgvector embeddings.
// Safe for concurrent use.
type Store struct {
	db     DB
	logger log.Logger
}

// NewStore creates a Store. A nil logger discards output.
func NewStore(db DB, logger log.Logger) *Store {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Store{db: db, logger: logger}
}

const noteColumns = `id, owner_id, dashboard_id, title, content, COALESCE(embedding_model, ''), created_at, updated_at`

// Create inserts a note and fills in its generated ID and timestamps.
// The embedding is not written here; it is backfilled separately.
func (s *Store) Create(ctx context.Context, n *Note) error {
	query := `INSERT INTO notes (owner_id, dashboard_id, title, content)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at`

	err := s.db.QueryRow(ctx, query, n.OwnerID, n.DashboardID, n.Title, n.Content).
		Scan(&n.ID, &n.CreatedAt, &n.UpdatedAt)
	if err != nil {
		return fmt.Errorf("creating note: %w", err)
	}

	s.logger.Debug("created note", "id", n.ID, "owner_id", n.OwnerID)
	return nil
}

// Get fetches a note by ID. Returns ErrNotFound when it does not exist.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*Note, error) {
	query := `SELECT ` + noteColumns + ` FROM notes WHERE id = $1`

	var n Note
	err := s.db.QueryRow(ctx, query, id).Scan(
		&n.ID, &n.OwnerID, &n.DashboardID, &n.Title, &n.Content,
		&n.EmbeddingModel, &n.CreatedAt, &n.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("note %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("getting note %s: %w", id, err)
	}
	return &n, nil
}

// UpdateContent replaces a note's title and content and clears its embedding,
// since the stored vector no longer describes the new text.
func (s *Store) UpdateContent(ctx context.Context, id uuid.UUID, title, content string) error {
	query := `UPDATE notes
		SET title = $2, content = $3, embedding = NULL, embedding_model = NULL, updated_at = now()
		WHERE id = $1`

	tag, err := s.db.Exec(ctx, query, id, title, content)
	if err != nil {
		return fmt.Errorf("updating note %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("note %s: %w", id, ErrNotFound)
	}
	return nil
}

// UpdateEmbedding stores a note's embedding and the model that produced it.
func (s *Store) UpdateEmbedding(ctx context.Context, id uuid.UUID, vec []float32, model string) error {
	query := `UPDATE notes SET embedding = $2, embedding_model = $3, updated_at = now() WHERE id = $1`

	tag, err := s.db.Exec(ctx, query, id, pgvector.NewVector(vec), model)
	if err != nil {
		return fmt.Errorf("updating embedding for note %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("note %s: %w", id, ErrNotFound)
	}

	s.logger.Debug("updated embedding", "id", id, "model", model, "dimension", len(vec))
	return nil
}

// Delete removes a note. Returns ErrNotFound when it does not exist.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM notes WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting note %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("note %s: %w", id, ErrNotFound)
	}
	return nil
}

// FindMissingEmbedding lists notes that have no embedding, or whose embedding
// was produced by a different model than the one given. A zero scope covers
// every owner; a populated one narrows the listing the same way search does.
// Oldest first, so repeated backfill runs make forward progress.
func (s *Store) FindMissingEmbedding(ctx context.Context, model string, scope Scope, limit int) ([]Note, error) {
	query := `SELECT ` + noteColumns + ` FROM notes
		WHERE (embedding IS NULL OR embedding_model IS DISTINCT FROM $1)
		  AND ($2::uuid IS NULL OR owner_id = $2)
		  AND ($3::uuid IS NULL OR dashboard_id = $3)
		ORDER BY updated_at ASC
		LIMIT $4`

	rows, err := s.db.Query(ctx, query, model, nullableID(scope.OwnerID), scope.DashboardID, limit)
	if err != nil {
		return nil, fmt.Errorf("finding notes without embeddings: %w", err)
	}
	defer rows.Close()

	return scanNotes(rows)
}

// CountMissingEmbedding counts notes FindMissingEmbedding would return.
func (s *Store) CountMissingEmbedding(ctx context.Context, model string, scope Scope) (int, error) {
	query := `SELECT COUNT(*) FROM notes
		WHERE (embedding IS NULL OR embedding_model IS DISTINCT FROM $1)
		  AND ($2::uuid IS NULL OR owner_id = $2)
		  AND ($3::uuid IS NULL OR dashboard_id = $3)`

	var count int
	if err := s.db.QueryRow(ctx, query, model, nullableID(scope.OwnerID), scope.DashboardID).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting notes without embeddings: %w", err)
	}
	return count, nil
}

// nullableID maps the zero UUID to SQL NULL so optional filters can be
// expressed as ($n::uuid IS NULL OR col = $n).
func nullableID(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}

// VectorSearch returns the notes most similar to the query vector within the
// given scope, above the similarity threshold, ordered best match first.
// Only notes embedded by the given model participate; vectors built by other
// models are incomparable and are skipped.
func (s *Store) VectorSearch(ctx context.Context, vec []float32, scope Scope, model string, threshold float64, limit int) ([]SearchResult, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}

	query := `SELECT ` + noteColumns + `,
			1 - (embedding <=> $1) AS similarity
		FROM notes
		WHERE embedding IS NOT NULL
		  AND embedding_model = $2
		  AND owner_id = $3
		  AND ($4::uuid IS NULL OR dashboard_id = $4)
		  AND 1 - (embedding <=> $1) >= $5
		ORDER BY embedding <=> $1
		LIMIT $6`

	rows, err := s.db.Query(ctx, query,
		pgvector.NewVector(vec), model, scope.OwnerID, scope.DashboardID, threshold, limit)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		err := rows.Scan(
			&r.Note.ID, &r.Note.OwnerID, &r.Note.DashboardID, &r.Note.Title, &r.Note.Content,
			&r.Note.EmbeddingModel, &r.Note.CreatedAt, &r.Note.UpdatedAt,
			&r.Similarity,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning search result: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("vector search rows: %w", err)
	}

	s.logger.Debug("vector search completed",
		"owner_id", scope.OwnerID, "results", len(results), "threshold", threshold)
	return results, nil
}

// ListByOwner lists a user's notes, newest first.
func (s *Store) ListByOwner(ctx context.Context, ownerID uuid.UUID, limit int) ([]Note, error) {
	query := `SELECT ` + noteColumns + ` FROM notes
		WHERE owner_id = $1
		ORDER BY updated_at DESC
		LIMIT $2`

	rows, err := s.db.Query(ctx, query, ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing notes: %w", err)
	}
	defer rows.Close()

	return scanNotes(rows)
}

func scanNotes(rows pgx.Rows) ([]Note, error) {
	var notes []Note
	for rows.Next() {
		var n Note
		err := rows.Scan(
			&n.ID, &n.OwnerID, &n.DashboardID, &n.Title, &n.Content,
			&n.EmbeddingModel, &n.CreatedAt, &n.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning note: %w", err)
		}
		notes = append(notes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading notes: %w", err)
	}
	return notes, nil
}
