// Package rag orchestrates retrieval-augmented answers over a user's notes.
//
// The pipeline runs in stages:
//
//  1. Classify the query intent (note, general, search).
//  2. For note queries, embed the query and retrieve candidate notes inside
//     the caller's scope.
//  3. Synthesize an answer grounded in the candidates, or answer directly for
//     everything else.
//  4. Filter the candidates down to the notes the answer actually drew on and
//     return them as sources.
//
// No retrieval stage ever leaves the owner scope, and a query that matches no
// notes short-circuits with a fixed response instead of letting the model
// improvise.
package rag
