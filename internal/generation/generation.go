// Package generation turns a recipe query into AI-generated recipes: it builds
// the prompt, calls a text completion backend and validates what comes back.
package generation

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"go.uber.org/zap"

	"pantrychef/internal/recipe"
)

// Completer is a text completion backend such as Gemini or a local
// OpenAI-compatible model.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Client generates recipes through a Completer.
type Client struct {
	backend Completer
	logger  *zap.Logger
}

// NewClient creates a new generation Client.
func NewClient(backend Completer, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{backend: backend, logger: logger.Named("generation")}
}

// Generate asks the backend for recipes matching q. Backend failures are
// wrapped in ErrGenerationUnavailable and unusable output in
// ErrGenerationParse. The client never retries on its own.
func (c *Client) Generate(ctx context.Context, q recipe.Query) ([]recipe.Recipe, error) {
	prompt := BuildPrompt(q)

	text, err := c.backend.Complete(ctx, prompt)
	if err != nil {
		c.logger.Warn("generation backend failed", zap.Error(err))
		if errors.Is(err, recipe.ErrGenerationUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", recipe.ErrGenerationUnavailable, err)
	}

	recipes, err := ParseRecipes(text, q)
	if err != nil {
		c.logger.Warn("generation output rejected",
			zap.Error(err),
			zap.String("raw", truncate(text, 500)))
		return nil, err
	}

	c.logger.Debug("generated recipes", zap.Int("count", len(recipes)))
	return recipes, nil
}

// truncate shortens s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
