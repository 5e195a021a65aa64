package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/sylvahq/sylva/internal/note"
)

func candidateSet(n int) []note.SearchResult {
	owner := uuid.New()
	out := make([]note.SearchResult, 0, n)
	for i := range n {
		out = append(out, note.SearchResult{
			Note: note.Note{
				ID:      uuid.New(),
				OwnerID: owner,
				Title:   fmt.Sprintf("note %d", i),
				Content: fmt.Sprintf("content %d", i),
			},
			Similarity: 0.95 - float64(i)*0.02,
		})
	}
	return out
}

func TestFilterFilter(t *testing.T) {
	ctx := context.Background()

	t.Run("selects subset preserving order", func(t *testing.T) {
		candidates := candidateSet(5)
		// Model picks the 4th and 2nd, in scrambled order.
		resp := fmt.Sprintf(`{"notes": [%q, %q]}`, candidates[3].Note.ID, candidates[1].Note.ID)
		f := NewFilter(&mockCompleter{responses: []string{resp}}, "", nil)

		got, err := f.Filter(ctx, "query", candidates)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("got %d notes, want 2", len(got))
		}
		if got[0].Note.ID != candidates[1].Note.ID || got[1].Note.ID != candidates[3].Note.ID {
			t.Error("retrieval order not preserved")
		}
	})

	t.Run("invented ids dropped", func(t *testing.T) {
		candidates := candidateSet(2)
		resp := fmt.Sprintf(`{"notes": [%q, %q]}`, uuid.New(), candidates[0].Note.ID)
		f := NewFilter(&mockCompleter{responses: []string{resp}}, "", nil)

		got, err := f.Filter(ctx, "query", candidates)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(got) != 1 || got[0].Note.ID != candidates[0].Note.ID {
			t.Errorf("got %v", got)
		}
	})

	t.Run("empty selection allowed", func(t *testing.T) {
		f := NewFilter(&mockCompleter{responses: []string{`{"notes": []}`}}, "", nil)

		got, err := f.Filter(ctx, "query", candidateSet(3))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(got) != 0 {
			t.Errorf("got %d notes, want 0", len(got))
		}
	})

	t.Run("wrong shape selects nothing", func(t *testing.T) {
		f := NewFilter(&mockCompleter{responses: []string{`{"notes": "all of them"}`}}, "", nil)

		got, err := f.Filter(ctx, "query", candidateSet(3))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != nil {
			t.Errorf("got %v, want nil", got)
		}
	})

	t.Run("no candidates means no model call", func(t *testing.T) {
		completer := &mockCompleter{}
		f := NewFilter(completer, "", nil)

		got, err := f.Filter(ctx, "query", nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != nil || len(completer.requests) != 0 {
			t.Error("filter should short-circuit with no candidates")
		}
	})

	t.Run("completion error propagates", func(t *testing.T) {
		cause := errors.New("model unavailable")
		f := NewFilter(&mockCompleter{err: cause}, "", nil)

		if _, err := f.Filter(ctx, "query", candidateSet(1)); !errors.Is(err, cause) {
			t.Errorf("got %v, want wrapped cause", err)
		}
	})

	t.Run("prompt carries candidate ids and query", func(t *testing.T) {
		candidates := candidateSet(2)
		completer := &mockCompleter{responses: []string{`{"notes": []}`}}
		f := NewFilter(completer, "", nil)

		if _, err := f.Filter(ctx, "the wifi password", candidates); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		req := completer.lastRequest()
		for _, c := range candidates {
			if !strings.Contains(req.System, c.Note.ID.String()) {
				t.Errorf("system prompt missing candidate id %s", c.Note.ID)
			}
		}
		if req.Prompt != "The user's query is: the wifi password" {
			t.Errorf("prompt = %q", req.Prompt)
		}
	})
}
