package rag

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sylvahq/sylva/internal/llm"
	"github.com/sylvahq/sylva/internal/log"
	"github.com/sylvahq/sylva/internal/note"
)

// Filter narrows retrieval candidates to the notes a query is actually about,
// so the cited sources match the answer instead of everything similarity
// search happened to surface.
type Filter struct {
	llm    Completer
	model  string
	logger log.Logger
}

// NewFilter creates a Filter. model may be empty to use the completer's
// default.
func NewFilter(completer Completer, model string, logger log.Logger) *Filter {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Filter{llm: completer, model: model, logger: logger}
}

type filterResult struct {
	Notes []string `json:"notes"`
}

// Filter returns the subset of candidates the model judged relevant to the
// query, preserving retrieval order. IDs the model invents are dropped. A
// response of unexpected shape selects nothing; only the completion call
// itself can fail.
func (f *Filter) Filter(ctx context.Context, query string, candidates []note.SearchResult) ([]note.SearchResult, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	system, err := filterPrompt(candidates)
	if err != nil {
		return nil, err
	}

	raw, err := f.llm.Complete(ctx, llm.Request{
		Model:  f.model,
		System: system,
		Prompt: "The user's query is: " + query,
		Format: llm.FormatJSON,
	})
	if err != nil {
		return nil, fmt.Errorf("filtering sources: %w", err)
	}

	var result filterResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		f.logger.Warn("filter response has unexpected shape, selecting no sources",
			"raw", llm.Truncate(raw, 200), "error", err)
		return nil, nil
	}

	selected := make(map[string]bool, len(result.Notes))
	for _, id := range result.Notes {
		selected[id] = true
	}

	var filtered []note.SearchResult
	for _, c := range candidates {
		if selected[c.Note.ID.String()] {
			filtered = append(filtered, c)
		}
	}

	f.logger.Debug("filtered sources", "candidates", len(candidates), "selected", len(filtered))
	return filtered, nil
}
