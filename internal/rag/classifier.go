package rag

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sylvahq/sylva/internal/llm"
	"github.com/sylvahq/sylva/internal/log"
)

// Completer issues one completion. *llm.Client satisfies it.
type Completer interface {
	Complete(ctx context.Context, req llm.Request) (string, error)
}

// Classifier decides whether a query needs note retrieval. It runs on the
// cheap classifier model; a misclassification costs one retrieval round trip
// at worst, so unusable verdicts degrade to IntentGeneral rather than fail.
type Classifier struct {
	llm    Completer
	model  string
	logger log.Logger
}

// NewClassifier creates a Classifier. model may be empty to use the
// completer's default.
func NewClassifier(completer Completer, model string, logger log.Logger) *Classifier {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Classifier{llm: completer, model: model, logger: logger}
}

type classificationResult struct {
	Classification string `json:"classification"`
}

// Classify returns the query's intent. A malformed or out-of-enum verdict
// returns IntentGeneral with no error; only the completion call itself can
// fail.
func (c *Classifier) Classify(ctx context.Context, query string) (Intent, error) {
	raw, err := c.llm.Complete(ctx, llm.Request{
		Model:  c.model,
		System: classificationPrompt,
		Prompt: query,
		Format: llm.FormatJSON,
	})
	if err != nil {
		return IntentGeneral, fmt.Errorf("classifying query: %w", err)
	}

	var result classificationResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		c.logger.Warn("classification response has unexpected shape, treating as general",
			"raw", llm.Truncate(raw, 200), "error", err)
		return IntentGeneral, nil
	}

	intent, err := ParseIntent(result.Classification)
	if err != nil {
		c.logger.Warn("classification outside known categories, treating as general", "error", err)
		return IntentGeneral, nil
	}

	c.logger.Debug("classified query", "intent", intent)
	return intent, nil
}
