package note_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sylvahq/sylva/internal/log"
	"github.com/sylvahq/sylva/internal/note"
	"github.com/sylvahq/sylva/internal/testutil"
)

const testModel = "gemini-embedding-001"

// unitVec returns a 768-dimension unit vector along the given axis. Orthogonal
// axes have cosine similarity 0, identical axes 1, which makes threshold
// behavior predictable without a real embedder.
func unitVec(axis int) []float32 {
	v := make([]float32, 768)
	v[axis] = 1
	return v
}

func TestStore_CreateGet_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := note.NewStore(db.Pool, log.NewNop())

	dashboard := uuid.New()
	n := &note.Note{
		OwnerID:     uuid.New(),
		DashboardID: &dashboard,
		Title:       "Grocery list",
		Content:     "Milk, eggs, coffee.",
	}

	require.NoError(t, store.Create(ctx, n))
	assert.NotEqual(t, uuid.Nil, n.ID, "Create should fill in the generated ID")
	assert.False(t, n.CreatedAt.IsZero())

	got, err := store.Get(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, n.Title, got.Title)
	assert.Equal(t, n.Content, got.Content)
	assert.Equal(t, n.OwnerID, got.OwnerID)
	require.NotNil(t, got.DashboardID)
	assert.Equal(t, dashboard, *got.DashboardID)
	assert.Empty(t, got.EmbeddingModel, "new note should have no embedding")
}

func TestStore_GetMissing_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	_, err := note.NewStore(db.Pool, log.NewNop()).Get(context.Background(), uuid.New())
	assert.True(t, errors.Is(err, note.ErrNotFound))
}

func TestStore_UpdateEmbedding_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := note.NewStore(db.Pool, log.NewNop())

	n := &note.Note{OwnerID: uuid.New(), Title: "t", Content: "c"}
	require.NoError(t, store.Create(ctx, n))

	require.NoError(t, store.UpdateEmbedding(ctx, n.ID, unitVec(0), testModel))

	got, err := store.Get(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, testModel, got.EmbeddingModel)

	// Unknown ID reports not found.
	err = store.UpdateEmbedding(ctx, uuid.New(), unitVec(0), testModel)
	assert.True(t, errors.Is(err, note.ErrNotFound))
}

func TestStore_UpdateContentClearsEmbedding_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := note.NewStore(db.Pool, log.NewNop())

	n := &note.Note{OwnerID: uuid.New(), Title: "old", Content: "old body"}
	require.NoError(t, store.Create(ctx, n))
	require.NoError(t, store.UpdateEmbedding(ctx, n.ID, unitVec(0), testModel))

	require.NoError(t, store.UpdateContent(ctx, n.ID, "new", "new body"))

	got, err := store.Get(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, "new", got.Title)
	assert.Empty(t, got.EmbeddingModel, "content change must invalidate the embedding")

	missing, err := store.FindMissingEmbedding(ctx, testModel, note.Scope{}, 10)
	require.NoError(t, err)
	require.Len(t, missing, 1)
	assert.Equal(t, n.ID, missing[0].ID)
}

func TestStore_FindMissingEmbedding_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := note.NewStore(db.Pool, log.NewNop())
	owner := uuid.New()

	var embedded, bare, stale note.Note
	for _, target := range []*note.Note{&embedded, &bare, &stale} {
		target.OwnerID = owner
		target.Content = "body"
		require.NoError(t, store.Create(ctx, target))
	}

	require.NoError(t, store.UpdateEmbedding(ctx, embedded.ID, unitVec(0), testModel))
	// An embedding from an older model counts as missing.
	require.NoError(t, store.UpdateEmbedding(ctx, stale.ID, unitVec(0), "text-embedding-004"))

	missing, err := store.FindMissingEmbedding(ctx, testModel, note.Scope{}, 10)
	require.NoError(t, err)

	ids := make([]uuid.UUID, 0, len(missing))
	for _, m := range missing {
		ids = append(ids, m.ID)
	}
	assert.ElementsMatch(t, []uuid.UUID{bare.ID, stale.ID}, ids)

	count, err := store.CountMissingEmbedding(ctx, testModel, note.Scope{})
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	// Scoping to another owner hides everything.
	scoped, err := store.FindMissingEmbedding(ctx, testModel, note.Scope{OwnerID: uuid.New()}, 10)
	require.NoError(t, err)
	assert.Empty(t, scoped)

	ownerScoped, err := store.CountMissingEmbedding(ctx, testModel, note.Scope{OwnerID: owner})
	require.NoError(t, err)
	assert.Equal(t, 2, ownerScoped)
}

func TestStore_VectorSearch_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := note.NewStore(db.Pool, log.NewNop())

	owner := uuid.New()
	otherOwner := uuid.New()
	dashboard := uuid.New()

	seed := func(ownerID uuid.UUID, dashboardID *uuid.UUID, title string, vec []float32) uuid.UUID {
		n := &note.Note{OwnerID: ownerID, DashboardID: dashboardID, Title: title, Content: "body"}
		require.NoError(t, store.Create(ctx, n))
		require.NoError(t, store.UpdateEmbedding(ctx, n.ID, vec, testModel))
		return n.ID
	}

	match := seed(owner, &dashboard, "match", unitVec(0))
	seed(owner, nil, "orthogonal", unitVec(1))
	seed(otherOwner, nil, "other owner exact match", unitVec(0))

	t.Run("threshold excludes dissimilar notes", func(t *testing.T) {
		results, err := store.VectorSearch(ctx, unitVec(0), note.Scope{OwnerID: owner}, testModel, 0.78, 5)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, match, results[0].Note.ID)
		assert.InDelta(t, 1.0, results[0].Similarity, 1e-4)
	})

	t.Run("owner scope is enforced", func(t *testing.T) {
		results, err := store.VectorSearch(ctx, unitVec(0), note.Scope{OwnerID: owner}, testModel, 0.0, 10)
		require.NoError(t, err)
		for _, r := range results {
			assert.Equal(t, owner, r.Note.OwnerID, "results must never cross owners")
		}
	})

	t.Run("dashboard scope narrows results", func(t *testing.T) {
		scope := note.Scope{OwnerID: owner, DashboardID: &dashboard}
		results, err := store.VectorSearch(ctx, unitVec(0), scope, testModel, 0.0, 10)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, match, results[0].Note.ID)
	})

	t.Run("ordered best match first", func(t *testing.T) {
		results, err := store.VectorSearch(ctx, unitVec(0), note.Scope{OwnerID: owner}, testModel, 0.0, 10)
		require.NoError(t, err)
		for i := 1; i < len(results); i++ {
			assert.GreaterOrEqual(t, results[i-1].Similarity, results[i].Similarity)
		}
	})

	t.Run("other embedding model is invisible", func(t *testing.T) {
		results, err := store.VectorSearch(ctx, unitVec(0), note.Scope{OwnerID: owner}, "text-embedding-004", 0.0, 10)
		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("missing scope rejected", func(t *testing.T) {
		_, err := store.VectorSearch(ctx, unitVec(0), note.Scope{}, testModel, 0.78, 5)
		assert.True(t, errors.Is(err, note.ErrMissingScope))
	})
}

func TestStore_Delete_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := note.NewStore(db.Pool, log.NewNop())

	n := &note.Note{OwnerID: uuid.New(), Content: "to be deleted"}
	require.NoError(t, store.Create(ctx, n))
	require.NoError(t, store.Delete(ctx, n.ID))

	_, err := store.Get(ctx, n.ID)
	assert.True(t, errors.Is(err, note.ErrNotFound))

	err = store.Delete(ctx, n.ID)
	assert.True(t, errors.Is(err, note.ErrNotFound))
}
