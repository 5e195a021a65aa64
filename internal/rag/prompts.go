package rag

import (
	"encoding/json"
	"fmt"

	"github.com/sylvahq/sylva/internal/note"
)

// contextPrompt anchors every system prompt in the product's identity.
const contextPrompt = `#CONTEXT#
This is a service named "Sylva."
This service is a personal assistant that helps users manage their notes and tasks.`

// classificationPrompt asks for a single-category JSON verdict on a query.
const classificationPrompt = `#ROLE#
You are a helpful assistant that classifies user's query into one of the following categories: [note, general, search].

` + contextPrompt + `

'note' means that the user is asking a question about the user's notes, and the query needs to be searched in the user's notes.
'general' means that the query can be easily answered by the AI agent's response alone, without any context from user's notes and the internet.
'search' means that the user is looking for information that is not contained in their notes, and the query needs to be searched in the internet.

#RESPONSE FORMAT#
Respond with only the category name, in the following JSON format:
{"classification": category}`

// directPrompt is the system prompt for queries answered without retrieval.
const directPrompt = contextPrompt + `

#ROLE#
You are a helpful assistant that answers the user's questions conversationally.`

// refinedNote is the candidate shape shown to the synthesis model. IDs are
// withheld so the answer cites notes by content, not by identifier.
type refinedNote struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// filterNote is the candidate shape shown to the filter model.
type filterNote struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

// synthesisPrompt builds the system prompt for answering a note query from
// retrieved candidates.
func synthesisPrompt(candidates []note.SearchResult) (string, error) {
	refined := make([]refinedNote, 0, len(candidates))
	for _, c := range candidates {
		refined = append(refined, refinedNote{Title: c.Note.Title, Content: c.Note.Content})
	}
	notesJSON, err := json.Marshal(refined)
	if err != nil {
		return "", fmt.Errorf("marshaling candidate notes: %w", err)
	}

	return contextPrompt + `

#ROLE#
You are a helpful assistant that provides information about the user's notes.

#GOAL#
Respond to the user's query given the relevant notes.

#RELEVANT NOTES#
` + string(notesJSON), nil
}

// filterPrompt builds the system prompt asking which candidates the query is
// actually about.
func filterPrompt(candidates []note.SearchResult) (string, error) {
	shown := make([]filterNote, 0, len(candidates))
	for _, c := range candidates {
		shown = append(shown, filterNote{
			ID:      c.Note.ID.String(),
			Title:   c.Note.Title,
			Content: c.Note.Content,
		})
	}
	notesJSON, err := json.Marshal(shown)
	if err != nil {
		return "", fmt.Errorf("marshaling candidate notes: %w", err)
	}

	return contextPrompt + `

You need to filter the relevant notes based on the user's query.
The notes, to be filtered from, are as follows:
` + string(notesJSON) + `

Return the id's of the relevant notes in the following JSON format:
{"notes": [note1id, note2id, ...]}`, nil
}
