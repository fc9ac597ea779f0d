package recipe

import (
	"context"
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed seed/recipes.yaml
var catalogueYAML []byte

//go:embed seed/ingredients.yaml
var ingredientsYAML []byte

// Seeder is the part of the store used to load the catalogue.
type Seeder interface {
	CountRecipes(ctx context.Context) (int, error)
	Insert(ctx context.Context, recipe *Recipe) (string, error)
}

type catalogueEntry struct {
	Name        string   `yaml:"name"`
	Cuisine     string   `yaml:"cuisine"`
	Difficulty  int      `yaml:"difficulty"`
	CookTime    int      `yaml:"cook_time"`
	Servings    int      `yaml:"servings"`
	Calories    *int     `yaml:"calories"`
	DietaryTags []string `yaml:"dietary_tags"`
	Ingredients []string `yaml:"ingredients"`
	Steps       []string `yaml:"steps"`
}

// Catalogue returns the embedded seed recipes.
func Catalogue() ([]Recipe, error) {
	var entries []catalogueEntry
	if err := yaml.Unmarshal(catalogueYAML, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse seed catalogue: %w", err)
	}

	recipes := make([]Recipe, 0, len(entries))
	for _, e := range entries {
		r := Recipe{
			Name:               e.Name,
			Ingredients:        e.Ingredients,
			Instructions:       NumberSteps(e.Steps),
			Cuisine:            NormalizeCuisine(e.Cuisine),
			Difficulty:         e.Difficulty,
			CookTimeMinutes:    e.CookTime,
			Servings:           e.Servings,
			DietaryTags:        normalizeTags(e.DietaryTags),
			CaloriesPerServing: e.Calories,
			Provenance:         ProvenanceStored,
		}
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("invalid seed recipe: %w", err)
		}
		recipes = append(recipes, r)
	}
	return recipes, nil
}

// Seed inserts the catalogue when the store holds no recipes yet. It returns
// the number of recipes inserted.
func Seed(ctx context.Context, store Seeder) (int, error) {
	n, err := store.CountRecipes(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		return 0, nil
	}

	recipes, err := Catalogue()
	if err != nil {
		return 0, err
	}
	for i := range recipes {
		if _, err := store.Insert(ctx, &recipes[i]); err != nil {
			return i, fmt.Errorf("failed to seed %q: %w", recipes[i].Name, err)
		}
	}
	return len(recipes), nil
}

// NumberSteps renders steps as numbered instruction lines.
func NumberSteps(steps []string) string {
	var b strings.Builder
	n := 0
	for _, s := range steps {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		n++
		if n > 1 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%d. %s", n, s)
	}
	return b.String()
}

// IngredientSeeder is the part of the store used to load common ingredients.
type IngredientSeeder interface {
	AddCommonIngredients(ctx context.Context, ingredients []CommonIngredient) (int, error)
}

// CommonIngredients returns the embedded autocomplete list ordered by
// category and name.
func CommonIngredients() ([]CommonIngredient, error) {
	var byCategory map[string][]string
	if err := yaml.Unmarshal(ingredientsYAML, &byCategory); err != nil {
		return nil, fmt.Errorf("failed to parse common ingredients: %w", err)
	}

	var out []CommonIngredient
	for category, names := range byCategory {
		for _, name := range names {
			if n := NormalizeIngredient(name); n != "" {
				out = append(out, CommonIngredient{Name: n, Category: category})
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

// SeedIngredients adds any common ingredients the store does not have yet and
// returns how many were added.
func SeedIngredients(ctx context.Context, store IngredientSeeder) (int, error) {
	ingredients, err := CommonIngredients()
	if err != nil {
		return 0, err
	}
	return store.AddCommonIngredients(ctx, ingredients)
}
