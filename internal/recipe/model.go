package recipe

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Cuisine tags known to the engine. The set is open: any non-empty lower-case
// tag is accepted.
const (
	CuisineSudanese      = "sudanese"
	CuisineItalian       = "italian"
	CuisineChinese       = "chinese"
	CuisineIndian        = "indian"
	CuisineMexican       = "mexican"
	CuisineFrench        = "french"
	CuisineJapanese      = "japanese"
	CuisineThai          = "thai"
	CuisineMediterranean = "mediterranean"
	CuisineAmerican      = "american"
	CuisineGlobal        = "global"

	// CuisineAny disables cuisine filtering.
	CuisineAny = "any"
)

// DietaryTags is the recommended dietary vocabulary.
var DietaryTags = []string{
	"vegetarian", "vegan", "gluten-free", "dairy-free", "low-carb",
	"keto", "paleo", "high-protein", "quick", "one-pan",
}

// Provenance tells where a recipe came from.
type Provenance string

const (
	ProvenanceStored    Provenance = "stored"
	ProvenanceGenerated Provenance = "generated"
)

// Recipe represents a recipe either read from the store or produced by the generator.
type Recipe struct {
	ID                 string     `json:"id"`
	Name               string     `json:"name"`
	Ingredients        []string   `json:"ingredients"`
	Instructions       string     `json:"instructions"`
	Cuisine            string     `json:"cuisine"`
	Difficulty         int        `json:"difficulty"`
	CookTimeMinutes    int        `json:"cook_time"`
	Servings           int        `json:"servings"`
	DietaryTags        []string   `json:"dietary_tags"`
	CaloriesPerServing *int       `json:"calories_per_serving,omitempty"`
	Provenance         Provenance `json:"source"`
	Synthesized        bool       `json:"synthesized,omitempty"`
	MatchScore         int        `json:"match_score"`
	CreatedAt          time.Time  `json:"created_at"`
}

// UnmarshalJSON implements the json.Unmarshaler interface for Recipe.
func (r *Recipe) UnmarshalJSON(data []byte) error {
	type Alias Recipe // Create an alias to avoid infinite recursion
	aux := &struct {
		Cuisine     string   `json:"cuisine"`
		DietaryTags []string `json:"dietary_tags"`
		*Alias
	}{
		Alias: (*Alias)(r),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	r.Cuisine = NormalizeCuisine(aux.Cuisine)
	r.DietaryTags = normalizeTags(aux.DietaryTags)

	return nil
}

var stepPrefix = regexp.MustCompile(`^(?:(?i:step)\s*\d+\s*[.):-]?|\d+\s*[.):-])\s*`)

// Steps splits the free-text instructions into ordered steps. Blank lines are
// dropped and leading numbering ("1.", "2)", "Step 3:") is removed.
func (r *Recipe) Steps() []string {
	var steps []string
	for _, line := range strings.Split(r.Instructions, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		line = strings.TrimSpace(stepPrefix.ReplaceAllString(line, ""))
		if line == "" {
			continue
		}
		steps = append(steps, line)
	}
	return steps
}

// Validate checks the recipe invariants: a name, a non-empty ingredient list,
// at least one instruction step and sane numeric fields.
func (r *Recipe) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("%w: recipe name is required", ErrInvalidRequest)
	}
	n := 0
	for _, ing := range r.Ingredients {
		if NormalizeIngredient(ing) != "" {
			n++
		}
	}
	if n == 0 {
		return fmt.Errorf("%w: recipe %q has no ingredients", ErrInvalidRequest, r.Name)
	}
	if len(r.Steps()) == 0 {
		return fmt.Errorf("%w: recipe %q has no instruction steps", ErrInvalidRequest, r.Name)
	}
	if r.Difficulty < 1 || r.Difficulty > 5 {
		return fmt.Errorf("%w: recipe %q difficulty %d out of range", ErrInvalidRequest, r.Name, r.Difficulty)
	}
	if r.CookTimeMinutes <= 0 {
		return fmt.Errorf("%w: recipe %q cook time must be positive", ErrInvalidRequest, r.Name)
	}
	if r.Servings <= 0 {
		return fmt.Errorf("%w: recipe %q servings must be positive", ErrInvalidRequest, r.Name)
	}
	if r.CaloriesPerServing != nil && *r.CaloriesPerServing < 0 {
		return fmt.Errorf("%w: recipe %q calories must not be negative", ErrInvalidRequest, r.Name)
	}
	return nil
}

// HasDietaryTags reports whether the recipe carries every tag in want.
func (r *Recipe) HasDietaryTags(want []string) bool {
	have := make(map[string]bool, len(r.DietaryTags))
	for _, t := range r.DietaryTags {
		have[strings.ToLower(strings.TrimSpace(t))] = true
	}
	for _, t := range want {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" && !have[t] {
			return false
		}
	}
	return true
}

// Filters narrows a search.
type Filters struct {
	Cuisine     string   `json:"cuisine"`
	Dietary     []string `json:"dietary"`
	Difficulty  int      `json:"difficulty"`
	MaxCookTime int      `json:"max_cook_time"`
}

// Query is a normalized search request as seen by the store, cache and generator.
type Query struct {
	Ingredients []string
	Filters     Filters
}

// PantryItem is an ingredient a session keeps at hand.
type PantryItem struct {
	ID             string     `json:"id" db:"id"`
	SessionID      string     `json:"session_id" db:"session_id"`
	IngredientName string     `json:"ingredient_name" db:"ingredient_name"`
	Quantity       *float64   `json:"quantity,omitempty" db:"quantity"`
	Unit           string     `json:"unit,omitempty" db:"unit"`
	ExpiryDate     *time.Time `json:"expiry_date,omitempty" db:"expiry_date"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
}

// CommonIngredient is an entry of the ingredient autocomplete list.
type CommonIngredient struct {
	Name     string `json:"name" db:"name"`
	Category string `json:"category" db:"category"`
}

// SearchLog is the audit record written once per search.
type SearchLog struct {
	SessionID      string
	Ingredients    []string
	Cuisine        string
	Dietary        []string
	ResultsCount   int
	GenerationUsed bool
	CreatedAt      time.Time
}

// IngredientCount is one row of the popular ingredients report.
type IngredientCount struct {
	Ingredient string `json:"ingredient"`
	Count      int    `json:"count"`
}

// NormalizeIngredient lower-cases and trims an ingredient name.
func NormalizeIngredient(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// NormalizeCuisine maps an empty or "any" cuisine to "" and lower-cases the rest.
func NormalizeCuisine(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == CuisineAny {
		return ""
	}
	return s
}

// NormalizeName is the key used to de-duplicate recipes by name.
func NormalizeName(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// IngredientMatches reports whether two ingredient names match by
// case-insensitive containment in either direction, so "tomato" matches
// "tomatoes". Blank names never match.
//
// The rule is lenient on purpose and has known false positives, e.g. "pea"
// matches "peanut".
func IngredientMatches(a, b string) bool {
	a, b = NormalizeIngredient(a), NormalizeIngredient(b)
	if a == "" || b == "" {
		return false
	}
	return strings.Contains(a, b) || strings.Contains(b, a)
}

// SharesIngredient reports whether any of the recipe ingredients matches any selected ingredient.
func SharesIngredient(recipeIngredients, selected []string) bool {
	for _, ri := range recipeIngredients {
		for _, s := range selected {
			if IngredientMatches(ri, s) {
				return true
			}
		}
	}
	return false
}

func normalizeTags(tags []string) []string {
	if tags == nil {
		return nil
	}
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}
