package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sylvahq/sylva/internal/llm"
	"github.com/sylvahq/sylva/internal/log"
	"github.com/sylvahq/sylva/internal/note"
)

// ErrEmptyQuery indicates the query had no content after trimming.
var ErrEmptyQuery = errors.New("empty query")

// NoRelevantNotesResponse is returned verbatim when a note query matches
// nothing; the model is never asked to improvise an unsourced answer.
const NoRelevantNotesResponse = "No relevant notes found."

// Embedder embeds a query. *embedding.Client satisfies it.
type Embedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
}

// Retriever finds scoped candidates. *retrieval.Retriever satisfies it.
type Retriever interface {
	Retrieve(ctx context.Context, vec []float32, scope note.Scope) ([]note.SearchResult, error)
}

// IntentClassifier decides a query's intent. *Classifier satisfies it.
type IntentClassifier interface {
	Classify(ctx context.Context, query string) (Intent, error)
}

// SourceFilter narrows candidates to cited sources. *Filter satisfies it.
type SourceFilter interface {
	Filter(ctx context.Context, query string, candidates []note.SearchResult) ([]note.SearchResult, error)
}

// Answer is the outcome of one query.
type Answer struct {
	// Response is the assistant's reply text.
	Response string

	// Sources lists the notes the reply drew on, best match first.
	// Empty for direct answers and for note queries that matched nothing.
	Sources []note.Note

	// Intent is the classification that routed the query.
	Intent Intent
}

// Assistant runs the full query pipeline.
// Safe for concurrent use.
type Assistant struct {
	classifier    IntentClassifier
	embedder      Embedder
	retriever     Retriever
	llm           Completer
	filter        SourceFilter
	historyWindow int
	logger        log.Logger
}

// Config wires an Assistant.
type Config struct {
	Classifier IntentClassifier
	Embedder   Embedder
	Retriever  Retriever
	Completer  Completer
	Filter     SourceFilter

	// HistoryWindow is how many trailing history messages reach the model.
	HistoryWindow int

	Logger log.Logger
}

// New creates an Assistant.
func New(cfg Config) (*Assistant, error) {
	switch {
	case cfg.Classifier == nil:
		return nil, errors.New("rag: classifier is required")
	case cfg.Embedder == nil:
		return nil, errors.New("rag: embedder is required")
	case cfg.Retriever == nil:
		return nil, errors.New("rag: retriever is required")
	case cfg.Completer == nil:
		return nil, errors.New("rag: completer is required")
	case cfg.Filter == nil:
		return nil, errors.New("rag: filter is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}
	window := cfg.HistoryWindow
	if window < 0 {
		window = 0
	}

	return &Assistant{
		classifier:    cfg.Classifier,
		embedder:      cfg.Embedder,
		retriever:     cfg.Retriever,
		llm:           cfg.Completer,
		filter:        cfg.Filter,
		historyWindow: window,
		logger:        logger,
	}, nil
}

// Answer handles one user query within the given scope. history is the prior
// conversation, oldest first; only the trailing window is forwarded.
//
// Note queries that retrieve nothing return NoRelevantNotesResponse with no
// sources and no model call. All other failures surface as errors; there are
// no partially grounded answers.
func (a *Assistant) Answer(ctx context.Context, query string, history []llm.Message, scope note.Scope) (*Answer, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}

	start := time.Now()

	intent, err := a.classifier.Classify(ctx, query)
	if err != nil {
		// Classification is routing, not content; answer directly rather
		// than fail the whole query.
		a.logger.Warn("classification failed, answering directly", "error", err)
		intent = IntentGeneral
	}

	var answer *Answer
	switch intent {
	case IntentNote:
		answer, err = a.answerFromNotes(ctx, query, history, scope)
	default:
		// Search intent is answered directly as well: the assistant has no
		// web access, and the model says so better than a canned reply.
		answer, err = a.answerDirect(ctx, query, history)
	}
	if err != nil {
		return nil, err
	}

	answer.Intent = intent
	a.logger.Info("answered query",
		"intent", intent, "sources", len(answer.Sources), "elapsed", time.Since(start))
	return answer, nil
}

func (a *Assistant) answerDirect(ctx context.Context, query string, history []llm.Message) (*Answer, error) {
	response, err := a.llm.Complete(ctx, llm.Request{
		System:  directPrompt,
		History: a.window(history),
		Prompt:  query,
	})
	if err != nil {
		return nil, fmt.Errorf("answering query: %w", err)
	}
	return &Answer{Response: response}, nil
}

func (a *Assistant) answerFromNotes(ctx context.Context, query string, history []llm.Message, scope note.Scope) (*Answer, error) {
	vec, err := a.embedder.EmbedText(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	candidates, err := a.retriever.Retrieve(ctx, vec, scope)
	if err != nil {
		return nil, fmt.Errorf("retrieving notes: %w", err)
	}
	if len(candidates) == 0 {
		a.logger.Debug("no candidates above threshold")
		return &Answer{Response: NoRelevantNotesResponse}, nil
	}

	system, err := synthesisPrompt(candidates)
	if err != nil {
		return nil, err
	}
	response, err := a.llm.Complete(ctx, llm.Request{
		System:  system,
		History: a.window(history),
		Prompt:  query,
	})
	if err != nil {
		return nil, fmt.Errorf("synthesizing answer: %w", err)
	}

	sources, err := a.filter.Filter(ctx, query, candidates)
	if err != nil {
		// The answer is already grounded; a filter failure only widens the
		// citation list back to every candidate.
		a.logger.Warn("source filtering failed, citing all candidates", "error", err)
		sources = candidates
	}

	notes := make([]note.Note, 0, len(sources))
	for _, s := range sources {
		notes = append(notes, s.Note)
	}
	return &Answer{Response: response, Sources: notes}, nil
}

// window returns the trailing historyWindow messages.
func (a *Assistant) window(history []llm.Message) []llm.Message {
	if a.historyWindow == 0 || len(history) <= a.historyWindow {
		return history
	}
	return history[len(history)-a.historyWindow:]
}
