package generation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"pantrychef/internal/recipe"
)

// generatedRecipe is the schema the model is asked to emit. Instructions may
// come back as a list of steps or as one string.
type generatedRecipe struct {
	Name               string          `json:"name"`
	Ingredients        []string        `json:"ingredients"`
	Instructions       json.RawMessage `json:"instructions"`
	Cuisine            string          `json:"cuisine"`
	CuisineType        string          `json:"cuisine_type"`
	Difficulty         int             `json:"difficulty"`
	CookTimeMinutes    int             `json:"cook_time_minutes"`
	Servings           int             `json:"servings"`
	DietaryTags        []string        `json:"dietary_tags"`
	CaloriesPerServing *int            `json:"calories_per_serving"`
}

// ParseRecipes extracts the recipes from the model's raw text. It accepts a
// {"recipes": [...]} envelope, a bare array or a single object, optionally
// wrapped in a markdown code block or surrounding prose. Entries that do not
// form a valid recipe are dropped; if none survive the result is
// ErrGenerationParse.
func ParseRecipes(text string, q recipe.Query) ([]recipe.Recipe, error) {
	raw, err := extractJSON(text)
	if err != nil {
		return nil, err
	}

	var entries []generatedRecipe
	if raw[0] == '[' {
		if err := json.Unmarshal(raw, &entries); err != nil {
			return nil, fmt.Errorf("%w: %v", recipe.ErrGenerationParse, err)
		}
	} else {
		var envelope struct {
			Recipes []generatedRecipe `json:"recipes"`
		}
		if err := json.Unmarshal(raw, &envelope); err != nil {
			return nil, fmt.Errorf("%w: %v", recipe.ErrGenerationParse, err)
		}
		entries = envelope.Recipes
		if entries == nil {
			var single generatedRecipe
			if err := json.Unmarshal(raw, &single); err != nil {
				return nil, fmt.Errorf("%w: %v", recipe.ErrGenerationParse, err)
			}
			entries = []generatedRecipe{single}
		}
	}

	var recipes []recipe.Recipe
	for _, e := range entries {
		r, ok := e.toRecipe(q)
		if !ok {
			continue
		}
		recipes = append(recipes, r)
	}
	if len(recipes) == 0 {
		return nil, fmt.Errorf("%w: no valid recipes in response", recipe.ErrGenerationParse)
	}
	return recipes, nil
}

func (e generatedRecipe) toRecipe(q recipe.Query) (recipe.Recipe, bool) {
	var ingredients []string
	for _, ing := range e.Ingredients {
		if n := recipe.NormalizeIngredient(ing); n != "" {
			ingredients = append(ingredients, n)
		}
	}

	cuisine := recipe.NormalizeCuisine(e.Cuisine)
	if cuisine == "" {
		cuisine = recipe.NormalizeCuisine(e.CuisineType)
	}
	if cuisine == "" {
		cuisine = recipe.NormalizeCuisine(q.Filters.Cuisine)
	}
	if cuisine == "" {
		cuisine = recipe.CuisineGlobal
	}

	var tags []string
	for _, t := range e.DietaryTags {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			tags = append(tags, t)
		}
	}

	r := recipe.Recipe{
		ID:                 uuid.NewString(),
		Name:               strings.TrimSpace(e.Name),
		Ingredients:        ingredients,
		Instructions:       instructionsText(e.Instructions),
		Cuisine:            cuisine,
		Difficulty:         clamp(e.Difficulty, 1, 5, 3),
		CookTimeMinutes:    clamp(e.CookTimeMinutes, 5, 24*60, 30),
		Servings:           clamp(e.Servings, 1, 100, 4),
		DietaryTags:        tags,
		CaloriesPerServing: e.CaloriesPerServing,
		Provenance:         recipe.ProvenanceGenerated,
	}
	if r.CaloriesPerServing != nil && *r.CaloriesPerServing < 0 {
		r.CaloriesPerServing = nil
	}
	if err := r.Validate(); err != nil {
		return recipe.Recipe{}, false
	}
	return r, true
}

// instructionsText turns a list of steps or a single string into numbered lines.
func instructionsText(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ""
	}
	var steps []string
	if err := json.Unmarshal(raw, &steps); err == nil {
		return recipe.NumberSteps(stripNumbering(steps))
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		r := recipe.Recipe{Instructions: text}
		return recipe.NumberSteps(r.Steps())
	}
	return ""
}

func stripNumbering(steps []string) []string {
	out := make([]string, 0, len(steps))
	for _, s := range steps {
		r := recipe.Recipe{Instructions: s}
		out = append(out, strings.Join(r.Steps(), " "))
	}
	return out
}

// clamp bounds v to [lo, hi], using def when v is unset.
func clamp(v, lo, hi, def int) int {
	if v == 0 {
		return def
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// extractJSON returns the outermost JSON object in text, or the outermost
// array when there is no valid object. Prose around the JSON may itself
// contain brackets, so each span is only taken if it is valid JSON.
func extractJSON(text string) ([]byte, error) {
	t := stripMarkdownCodeBlock(text)
	object, hasObject := span(t, '{', '}')
	array, hasArray := span(t, '[', ']')
	if !hasObject && !hasArray {
		if strings.ContainsAny(t, "{[") {
			return nil, fmt.Errorf("%w: unterminated JSON in response", recipe.ErrGenerationParse)
		}
		return nil, fmt.Errorf("%w: no JSON found in response", recipe.ErrGenerationParse)
	}

	switch {
	case hasObject && json.Valid([]byte(object)):
		return []byte(object), nil
	case hasArray && json.Valid([]byte(array)):
		return []byte(array), nil
	case hasObject:
		return []byte(object), nil
	default:
		return []byte(array), nil
	}
}

// span returns text from the first left to the last right byte.
func span(t string, left, right byte) (string, bool) {
	start := strings.IndexByte(t, left)
	end := strings.LastIndexByte(t, right)
	if start == -1 || end < start {
		return "", false
	}
	return t[start : end+1], true
}

func stripMarkdownCodeBlock(content string) string {
	trimmed := strings.TrimSpace(content)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```")
		if idx := strings.Index(trimmed, "\n"); idx != -1 {
			trimmed = trimmed[idx+1:]
		}
		if end := strings.LastIndex(trimmed, "```"); end != -1 {
			trimmed = trimmed[:end]
		}
		return strings.TrimSpace(trimmed)
	}
	return trimmed
}
