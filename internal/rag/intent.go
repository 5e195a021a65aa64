package rag

import "fmt"

// Intent is the classified purpose of a user query.
type Intent string

const (
	// IntentNote means the query asks about the user's own notes and needs
	// retrieval.
	IntentNote Intent = "note"

	// IntentGeneral means the model can answer from its own knowledge.
	// It is also the fallback when classification is unusable.
	IntentGeneral Intent = "general"

	// IntentSearch means the query wants information from the internet.
	// Web search is not performed; these queries are answered directly.
	IntentSearch Intent = "search"
)

// Valid reports whether the intent is a known category.
func (i Intent) Valid() bool {
	switch i {
	case IntentNote, IntentGeneral, IntentSearch:
		return true
	}
	return false
}

// ParseIntent converts a raw classification string into an Intent.
// Unknown values return IntentGeneral and an error describing the input.
func ParseIntent(s string) (Intent, error) {
	intent := Intent(s)
	if !intent.Valid() {
		return IntentGeneral, fmt.Errorf("unknown classification %q", s)
	}
	return intent, nil
}
