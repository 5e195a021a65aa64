// Package llm wraps Genkit text generation behind a small completion API with
// text and JSON response modes.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"

	"github.com/sylvahq/sylva/internal/log"
)

var (
	// ErrEmptyPrompt indicates a completion was requested with no prompt text.
	ErrEmptyPrompt = errors.New("empty prompt")

	// ErrCompletionFailed indicates the model call failed or returned nothing.
	ErrCompletionFailed = errors.New("completion failed")

	// ErrMalformedResponse indicates a JSON-mode response that is not valid JSON.
	ErrMalformedResponse = errors.New("malformed model response")
)

// Role identifies who authored a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "model"
)

// Message is one turn of chat history.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Format selects the expected response shape.
type Format string

const (
	// FormatText returns the model's prose unchanged.
	FormatText Format = "text"

	// FormatJSON validates the response as JSON after stripping code fences.
	// The prompt itself must instruct the model to answer in JSON.
	FormatJSON Format = "json"
)

// Request describes one completion.
type Request struct {
	// Model is a provider-qualified model name. Empty uses the client default.
	Model string

	// System is the system prompt, optional.
	System string

	// History is prior conversation turns, oldest first.
	History []Message

	// Prompt is the new user message. Required.
	Prompt string

	// Format is the expected response shape. Empty means FormatText.
	Format Format
}

// maxResponseBytes limits response size before JSON parsing.
const maxResponseBytes = 64 * 1024

// Client issues completions through a Genkit instance.
// Safe for concurrent use.
type Client struct {
	g       *genkit.Genkit
	model   string
	timeout time.Duration
	logger  log.Logger
}

// NewClient creates a Client with a default provider-qualified model name.
func NewClient(g *genkit.Genkit, defaultModel string, timeout time.Duration, logger log.Logger) *Client {
	if logger == nil {
		logger = log.NewNop()
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{g: g, model: defaultModel, timeout: timeout, logger: logger}
}

// Complete runs one completion and returns the response text. In JSON mode
// the response is fence-stripped and validated; invalid JSON returns
// ErrMalformedResponse with a truncated sample of the raw output.
func (c *Client) Complete(ctx context.Context, req Request) (string, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return "", ErrEmptyPrompt
	}

	model := req.Model
	if model == "" {
		model = c.model
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	messages := make([]*ai.Message, 0, len(req.History)+1)
	for _, m := range req.History {
		messages = append(messages, &ai.Message{
			Role:    ai.Role(m.Role),
			Content: []*ai.Part{ai.NewTextPart(m.Content)},
		})
	}
	messages = append(messages, &ai.Message{
		Role:    ai.RoleUser,
		Content: []*ai.Part{ai.NewTextPart(req.Prompt)},
	})

	opts := []ai.GenerateOption{
		ai.WithModelName(model),
		ai.WithMessages(messages...),
	}
	if req.System != "" {
		opts = append(opts, ai.WithSystem(req.System))
	}

	start := time.Now()
	resp, err := genkit.Generate(ctx, c.g, opts...)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrCompletionFailed, err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", fmt.Errorf("%w: model returned no text", ErrCompletionFailed)
	}

	c.logger.Debug("completion finished",
		"model", model, "format", req.Format, "chars", len(text), "elapsed", time.Since(start))

	if req.Format == FormatJSON {
		if len(text) > maxResponseBytes {
			return "", fmt.Errorf("%w: response too large: %d bytes", ErrMalformedResponse, len(text))
		}
		text = StripCodeFences(text)
		if !json.Valid([]byte(text)) {
			return "", fmt.Errorf("%w: not valid JSON (raw: %q)", ErrMalformedResponse, Truncate(text, 200))
		}
	}

	return text, nil
}

// Model returns the client's default model name.
func (c *Client) Model() string { return c.model }

// StripCodeFences removes ```json ... ``` wrapping from model output.
func StripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		}
		if idx := strings.LastIndex(s, "```"); idx != -1 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}
	return s
}

// Truncate shortens s to at most n bytes for logging.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
