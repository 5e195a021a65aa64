// Package note defines the note model and its PostgreSQL store.
//
// Notes carry an optional pgvector embedding tagged with the model that
// produced it; similarity search only ever matches vectors built by the
// currently configured embedder.
package note

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound indicates no note exists with the given ID.
	ErrNotFound = errors.New("note not found")

	// ErrMissingScope indicates a search was attempted without an owner.
	ErrMissingScope = errors.New("search scope requires an owner")
)

// Note is a user-authored note. Embedding metadata is tracked separately from
// content: a note whose content changed after its last embedding, or whose
// embedding was built by a different model, is treated as unembedded.
type Note struct {
	ID             uuid.UUID
	OwnerID        uuid.UUID
	DashboardID    *uuid.UUID
	Title          string
	Content        string
	EmbeddingModel string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// EmbeddingText returns the text that is embedded for this note: title and
// content joined by a blank line, trimmed. Empty means nothing to embed.
func (n *Note) EmbeddingText() string {
	return strings.TrimSpace(strings.TrimSpace(n.Title) + "\n\n" + strings.TrimSpace(n.Content))
}

// Scope restricts retrieval to one user's notes, optionally narrowed to a
// single dashboard. The owner is mandatory; there is no unscoped search.
type Scope struct {
	OwnerID     uuid.UUID
	DashboardID *uuid.UUID
}

// Validate reports whether the scope can be searched.
func (s Scope) Validate() error {
	if s.OwnerID == uuid.Nil {
		return ErrMissingScope
	}
	return nil
}

// SearchResult pairs a note with its cosine similarity to the query vector,
// in [0, 1] where 1 is an exact match.
type SearchResult struct {
	Note       Note
	Similarity float64
}
