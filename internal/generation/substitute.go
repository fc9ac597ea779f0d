package generation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"pantrychef/internal/recipe"
)

// MaxSubstitutions caps how many substitutes are returned for one ingredient.
const MaxSubstitutions = 5

// Substitution sources.
const (
	SourceGenerated = "generated"
	SourceFallback  = "fallback"
)

var fallbackSubstitutions = map[string][]string{
	"chicken": {"turkey", "tofu", "tempeh", "mushrooms"},
	"beef":    {"lamb", "pork", "lentils", "mushrooms"},
	"butter":  {"oil", "margarine", "coconut oil", "ghee"},
	"milk":    {"coconut milk", "almond milk", "soy milk", "water"},
	"eggs":    {"flax eggs", "chia eggs", "applesauce", "banana"},
	"flour":   {"rice flour", "almond flour", "coconut flour", "oat flour"},
}

// FallbackSubstitutions returns the built-in substitutes for ingredient, or
// an empty list when none are known.
func FallbackSubstitutions(ingredient string) []string {
	subs := fallbackSubstitutions[recipe.NormalizeIngredient(ingredient)]
	return append([]string{}, subs...)
}

// BuildSubstitutionPrompt renders the prompt asking for substitutes.
func BuildSubstitutionPrompt(ingredient, cuisine string) string {
	cuisine = recipe.NormalizeCuisine(cuisine)
	if cuisine == "" {
		cuisine = recipe.CuisineGlobal
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Suggest 3-%d common substitutions for %q in %s cooking.\n\n", MaxSubstitutions, ingredient, cuisine)
	b.WriteString("Consider:\n")
	b.WriteString("- Similar flavor profile\n")
	b.WriteString("- Similar cooking properties\n")
	b.WriteString("- Common availability\n")
	fmt.Fprintf(&b, "- Cultural appropriateness for %s cuisine\n\n", cuisine)
	b.WriteString(`Respond with JSON only: {"substitutions": ["substitute1", "substitute2"]}`)
	return b.String()
}

// ParseSubstitutions reads a {"substitutions": [...]} object or a bare array
// of names. Names are normalized and de-duplicated, the ingredient itself is
// dropped and at most MaxSubstitutions are kept.
func ParseSubstitutions(text, ingredient string) ([]string, error) {
	raw, err := extractJSON(text)
	if err != nil {
		return nil, err
	}

	var names []string
	if raw[0] == '[' {
		if err := json.Unmarshal(raw, &names); err != nil {
			return nil, fmt.Errorf("%w: %v", recipe.ErrGenerationParse, err)
		}
	} else {
		var envelope struct {
			Substitutions []string `json:"substitutions"`
		}
		if err := json.Unmarshal(raw, &envelope); err != nil {
			return nil, fmt.Errorf("%w: %v", recipe.ErrGenerationParse, err)
		}
		names = envelope.Substitutions
	}

	self := recipe.NormalizeIngredient(ingredient)
	seen := map[string]bool{self: true}
	var out []string
	for _, name := range names {
		n := recipe.NormalizeIngredient(name)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
		if len(out) == MaxSubstitutions {
			break
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no usable substitutions in response", recipe.ErrGenerationParse)
	}
	return out, nil
}

// Substitutions asks the backend for substitutes for ingredient. Errors are
// classified the same way as Generate.
func (c *Client) Substitutions(ctx context.Context, ingredient, cuisine string) ([]string, error) {
	text, err := c.backend.Complete(ctx, BuildSubstitutionPrompt(ingredient, cuisine))
	if err != nil {
		c.logger.Warn("substitution backend failed", zap.Error(err))
		if errors.Is(err, recipe.ErrGenerationUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", recipe.ErrGenerationUnavailable, err)
	}

	subs, err := ParseSubstitutions(text, ingredient)
	if err != nil {
		c.logger.Warn("substitution output rejected",
			zap.Error(err),
			zap.String("raw", truncate(text, 500)))
		return nil, err
	}
	return subs, nil
}

// Budget is the generation budget shared with recipe searches.
type Budget interface {
	TryConsume(cost int) bool
}

// Substitution is the answer for one ingredient.
type Substitution struct {
	Ingredient    string   `json:"ingredient"`
	Substitutions []string `json:"substitutions"`
	Source        string   `json:"source"`
}

// Substituter answers substitution requests from the backend when one is
// configured and the budget allows, and from the built-in table otherwise.
type Substituter struct {
	client  *Client
	budget  Budget
	timeout time.Duration
	logger  *zap.Logger
}

// NewSubstituter creates a Substituter. client and budget may be nil, in
// which case only the built-in table is used.
func NewSubstituter(client *Client, budget Budget, timeout time.Duration, logger *zap.Logger) *Substituter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	return &Substituter{client: client, budget: budget, timeout: timeout, logger: logger.Named("substitutions")}
}

// Substitute never fails: any backend problem degrades to the built-in table.
func (s *Substituter) Substitute(ctx context.Context, ingredient, cuisine string) Substitution {
	ingredient = recipe.NormalizeIngredient(ingredient)
	res := Substitution{Ingredient: ingredient}

	if s.client != nil && (s.budget == nil || s.budget.TryConsume(1)) {
		cctx, cancel := context.WithTimeout(ctx, s.timeout)
		subs, err := s.client.Substitutions(cctx, ingredient, cuisine)
		cancel()
		if err == nil {
			res.Substitutions = subs
			res.Source = SourceGenerated
			return res
		}
		s.logger.Warn("serving fallback substitutions", zap.String("ingredient", ingredient), zap.Error(err))
	}

	res.Substitutions = FallbackSubstitutions(ingredient)
	res.Source = SourceFallback
	return res
}
