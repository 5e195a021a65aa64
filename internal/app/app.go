// Package app assembles the application: configuration, tracing, the
// database pool, Genkit with the configured AI provider, and the query
// pipeline built on top of them. Entry points call Setup once and work
// against the returned App.
package app

import (
	"context"
	"time"

	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sylvahq/sylva/internal/config"
	"github.com/sylvahq/sylva/internal/embedding"
	"github.com/sylvahq/sylva/internal/llm"
	"github.com/sylvahq/sylva/internal/log"
	"github.com/sylvahq/sylva/internal/note"
	"github.com/sylvahq/sylva/internal/rag"
	"github.com/sylvahq/sylva/internal/retrieval"
)

// App is the application container.
type App struct {
	Config *config.Config
	Logger log.Logger

	Genkit *genkit.Genkit
	Pool   *pgxpool.Pool

	Notes      *note.Store
	Embedder   *embedding.Client
	Embeddings *embedding.Manager
	LLM        *llm.Client
	Retriever  *retrieval.Retriever
	Assistant  *rag.Assistant

	otelShutdown func(context.Context) error
	cancel       context.CancelFunc
}

// Close releases all resources. Safe to call on a partially initialized
// App; Setup calls it itself when initialization fails midway.
func (a *App) Close() error {
	if a.cancel != nil {
		a.cancel()
	}

	if a.Pool != nil {
		a.Pool.Close()
	}

	if a.otelShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.otelShutdown(ctx); err != nil {
			if a.Logger != nil {
				a.Logger.Warn("shutting down tracer provider", "error", err)
			}
		}
	}

	return nil
}
