package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/goleak"

	"github.com/sylvahq/sylva/internal/llm"
	"github.com/sylvahq/sylva/internal/note"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type mockClassifier struct {
	intent Intent
	err    error
	calls  int
}

func (m *mockClassifier) Classify(_ context.Context, _ string) (Intent, error) {
	m.calls++
	if m.err != nil {
		return IntentGeneral, m.err
	}
	return m.intent, nil
}

type mockVecEmbedder struct {
	vec   []float32
	err   error
	calls int
}

func (m *mockVecEmbedder) EmbedText(_ context.Context, _ string) ([]float32, error) {
	m.calls++
	return m.vec, m.err
}

type mockRetriever struct {
	results  []note.SearchResult
	err      error
	gotVec   []float32
	gotScope note.Scope
	calls    int
}

func (m *mockRetriever) Retrieve(_ context.Context, vec []float32, scope note.Scope) ([]note.SearchResult, error) {
	m.calls++
	m.gotVec = vec
	m.gotScope = scope
	return m.results, m.err
}

type mockFilter struct {
	results []note.SearchResult
	err     error
	calls   int
}

func (m *mockFilter) Filter(_ context.Context, _ string, _ []note.SearchResult) ([]note.SearchResult, error) {
	m.calls++
	return m.results, m.err
}

type deps struct {
	classifier *mockClassifier
	embedder   *mockVecEmbedder
	retriever  *mockRetriever
	completer  *mockCompleter
	filter     *mockFilter
}

func newTestAssistant(t *testing.T, d deps) *Assistant {
	t.Helper()
	a, err := New(Config{
		Classifier:    d.classifier,
		Embedder:      d.embedder,
		Retriever:     d.retriever,
		Completer:     d.completer,
		Filter:        d.filter,
		HistoryWindow: 6,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a
}

func TestAssistantAnswer_NoteIntent(t *testing.T) {
	candidates := candidateSet(5)
	d := deps{
		classifier: &mockClassifier{intent: IntentNote},
		embedder:   &mockVecEmbedder{vec: []float32{0.1, 0.2}},
		retriever:  &mockRetriever{results: candidates},
		completer:  &mockCompleter{responses: []string{"The wifi password is in your Home note."}},
		filter:     &mockFilter{results: candidates[1:3]},
	}
	a := newTestAssistant(t, d)

	scope := note.Scope{OwnerID: uuid.New()}
	got, err := a.Answer(context.Background(), "where is the wifi password?", nil, scope)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Response != "The wifi password is in your Home note." {
		t.Errorf("response = %q", got.Response)
	}
	if got.Intent != IntentNote {
		t.Errorf("intent = %q, want note", got.Intent)
	}
	if len(got.Sources) != 2 {
		t.Fatalf("got %d sources, want 2", len(got.Sources))
	}
	if got.Sources[0].ID != candidates[1].Note.ID || got.Sources[1].ID != candidates[2].Note.ID {
		t.Error("sources do not match the filtered candidates")
	}
	if d.retriever.gotScope != scope {
		t.Errorf("scope not forwarded: got %+v", d.retriever.gotScope)
	}
	if len(d.retriever.gotVec) != 2 {
		t.Error("query embedding not forwarded to retriever")
	}
	req := d.completer.lastRequest()
	if !strings.Contains(req.System, candidates[0].Note.Title) {
		t.Error("synthesis prompt missing candidate content")
	}
}

func TestAssistantAnswer_GeneralIntent(t *testing.T) {
	d := deps{
		classifier: &mockClassifier{intent: IntentGeneral},
		embedder:   &mockVecEmbedder{},
		retriever:  &mockRetriever{},
		completer:  &mockCompleter{responses: []string{"Hello! How can I help?"}},
		filter:     &mockFilter{},
	}
	a := newTestAssistant(t, d)

	got, err := a.Answer(context.Background(), "hello", nil, note.Scope{OwnerID: uuid.New()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Response != "Hello! How can I help?" {
		t.Errorf("response = %q", got.Response)
	}
	if got.Intent != IntentGeneral || got.Sources != nil {
		t.Errorf("got intent %q with %d sources", got.Intent, len(got.Sources))
	}
	if d.embedder.calls != 0 || d.retriever.calls != 0 || d.filter.calls != 0 {
		t.Error("direct answers must not touch retrieval")
	}
}

func TestAssistantAnswer_SearchIntentAnsweredDirectly(t *testing.T) {
	d := deps{
		classifier: &mockClassifier{intent: IntentSearch},
		embedder:   &mockVecEmbedder{},
		retriever:  &mockRetriever{},
		completer:  &mockCompleter{responses: []string{"I can't browse the web."}},
		filter:     &mockFilter{},
	}
	a := newTestAssistant(t, d)

	got, err := a.Answer(context.Background(), "latest Go release?", nil, note.Scope{OwnerID: uuid.New()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Intent != IntentSearch {
		t.Errorf("intent = %q, want search", got.Intent)
	}
	if d.retriever.calls != 0 {
		t.Error("search queries must not hit retrieval")
	}
}

func TestAssistantAnswer_NoCandidates(t *testing.T) {
	d := deps{
		classifier: &mockClassifier{intent: IntentNote},
		embedder:   &mockVecEmbedder{vec: []float32{0.1}},
		retriever:  &mockRetriever{},
		completer:  &mockCompleter{},
		filter:     &mockFilter{},
	}
	a := newTestAssistant(t, d)

	got, err := a.Answer(context.Background(), "anything about dragons?", nil, note.Scope{OwnerID: uuid.New()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Response != NoRelevantNotesResponse {
		t.Errorf("response = %q", got.Response)
	}
	if got.Sources != nil {
		t.Errorf("got %d sources, want none", len(got.Sources))
	}
	if len(d.completer.requests) != 0 {
		t.Error("zero candidates must not trigger synthesis")
	}
	if d.filter.calls != 0 {
		t.Error("zero candidates must not trigger filtering")
	}
}

func TestAssistantAnswer_ClassificationFailureAnswersDirectly(t *testing.T) {
	d := deps{
		classifier: &mockClassifier{err: errors.New("model unavailable")},
		embedder:   &mockVecEmbedder{},
		retriever:  &mockRetriever{},
		completer:  &mockCompleter{responses: []string{"direct answer"}},
		filter:     &mockFilter{},
	}
	a := newTestAssistant(t, d)

	got, err := a.Answer(context.Background(), "query", nil, note.Scope{OwnerID: uuid.New()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Response != "direct answer" || got.Intent != IntentGeneral {
		t.Errorf("got %q intent %q", got.Response, got.Intent)
	}
	if d.retriever.calls != 0 {
		t.Error("failed classification must degrade to a direct answer")
	}
}

func TestAssistantAnswer_FilterFailureCitesAllCandidates(t *testing.T) {
	candidates := candidateSet(3)
	d := deps{
		classifier: &mockClassifier{intent: IntentNote},
		embedder:   &mockVecEmbedder{vec: []float32{0.1}},
		retriever:  &mockRetriever{results: candidates},
		completer:  &mockCompleter{responses: []string{"answer"}},
		filter:     &mockFilter{err: errors.New("model unavailable")},
	}
	a := newTestAssistant(t, d)

	got, err := a.Answer(context.Background(), "query", nil, note.Scope{OwnerID: uuid.New()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got.Sources) != len(candidates) {
		t.Fatalf("got %d sources, want all %d candidates", len(got.Sources), len(candidates))
	}
	for i, c := range candidates {
		if got.Sources[i].ID != c.Note.ID {
			t.Errorf("source %d = %s, want %s", i, got.Sources[i].ID, c.Note.ID)
		}
	}
}

func TestAssistantAnswer_PipelineErrors(t *testing.T) {
	cause := errors.New("boom")
	base := func() deps {
		return deps{
			classifier: &mockClassifier{intent: IntentNote},
			embedder:   &mockVecEmbedder{vec: []float32{0.1}},
			retriever:  &mockRetriever{results: candidateSet(1)},
			completer:  &mockCompleter{responses: []string{"answer"}},
			filter:     &mockFilter{},
		}
	}

	tests := []struct {
		name    string
		corrupt func(*deps)
	}{
		{"embedding fails", func(d *deps) { d.embedder.err = cause }},
		{"retrieval fails", func(d *deps) { d.retriever.err = cause }},
		{"synthesis fails", func(d *deps) { d.completer.err = cause }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := base()
			tt.corrupt(&d)
			a := newTestAssistant(t, d)

			if _, err := a.Answer(context.Background(), "query", nil, note.Scope{OwnerID: uuid.New()}); !errors.Is(err, cause) {
				t.Errorf("got %v, want wrapped cause", err)
			}
		})
	}
}

func TestAssistantAnswer_HistoryWindow(t *testing.T) {
	d := deps{
		classifier: &mockClassifier{intent: IntentGeneral},
		embedder:   &mockVecEmbedder{},
		retriever:  &mockRetriever{},
		completer:  &mockCompleter{responses: []string{"ok"}},
		filter:     &mockFilter{},
	}
	a := newTestAssistant(t, d)

	history := make([]llm.Message, 10)
	for i := range history {
		role := llm.RoleUser
		if i%2 == 1 {
			role = llm.RoleAssistant
		}
		history[i] = llm.Message{Role: role, Content: fmt.Sprintf("turn %d", i)}
	}

	if _, err := a.Answer(context.Background(), "query", history, note.Scope{OwnerID: uuid.New()}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	req := d.completer.lastRequest()
	if len(req.History) != 6 {
		t.Fatalf("forwarded %d history messages, want 6", len(req.History))
	}
	if req.History[0].Content != "turn 4" || req.History[5].Content != "turn 9" {
		t.Error("window must keep the trailing messages")
	}
}

func TestAssistantAnswer_EmptyQuery(t *testing.T) {
	d := deps{
		classifier: &mockClassifier{intent: IntentGeneral},
		embedder:   &mockVecEmbedder{},
		retriever:  &mockRetriever{},
		completer:  &mockCompleter{},
		filter:     &mockFilter{},
	}
	a := newTestAssistant(t, d)

	if _, err := a.Answer(context.Background(), "   \n\t ", nil, note.Scope{OwnerID: uuid.New()}); !errors.Is(err, ErrEmptyQuery) {
		t.Errorf("got %v, want ErrEmptyQuery", err)
	}
	if d.classifier.calls != 0 {
		t.Error("empty queries must be rejected before classification")
	}
}

func TestNew_MissingDependencies(t *testing.T) {
	full := func() Config {
		return Config{
			Classifier: &mockClassifier{},
			Embedder:   &mockVecEmbedder{},
			Retriever:  &mockRetriever{},
			Completer:  &mockCompleter{},
			Filter:     &mockFilter{},
		}
	}

	tests := []struct {
		name    string
		corrupt func(*Config)
	}{
		{"classifier", func(c *Config) { c.Classifier = nil }},
		{"embedder", func(c *Config) { c.Embedder = nil }},
		{"retriever", func(c *Config) { c.Retriever = nil }},
		{"completer", func(c *Config) { c.Completer = nil }},
		{"filter", func(c *Config) { c.Filter = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := full()
			tt.corrupt(&cfg)
			if _, err := New(cfg); err == nil {
				t.Error("expected an error for a missing dependency")
			}
		})
	}

	if _, err := New(full()); err != nil {
		t.Errorf("full config rejected: %v", err)
	}
}
