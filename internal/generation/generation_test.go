package generation

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pantrychef/internal/recipe"
)

// mockCompleter is a mock of the Completer backend.
type mockCompleter struct {
	response       string
	returnError    error
	receivedPrompt string
}

// Complete mocks the Complete method.
func (m *mockCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	m.receivedPrompt = prompt
	if m.returnError != nil {
		return "", m.returnError
	}
	return m.response, nil
}

const validResponse = `{
  "recipes": [
    {
      "name": "Chicken Pilaf",
      "ingredients": ["Chicken", "rice", "onion"],
      "instructions": ["1. Brown the chicken.", "2. Add rice and onion.", "3. Simmer until done."],
      "cuisine": "Global",
      "difficulty": 2,
      "cook_time_minutes": 40,
      "servings": 4,
      "dietary_tags": ["Dairy-Free"],
      "calories_per_serving": 510
    },
    {
      "name": "Broken",
      "ingredients": [],
      "instructions": "1. Nothing."
    }
  ]
}`

func TestClient_Generate(t *testing.T) {
	backend := &mockCompleter{response: "```json\n" + validResponse + "\n```"}
	client := NewClient(backend, nil)

	q := recipe.Query{Ingredients: []string{"chicken", "rice"}, Filters: recipe.Filters{Difficulty: 2, MaxCookTime: 60}}
	recipes, err := client.Generate(context.Background(), q)
	require.NoError(t, err)
	require.Len(t, recipes, 1)

	r := recipes[0]
	assert.Equal(t, "Chicken Pilaf", r.Name)
	assert.Equal(t, []string{"chicken", "rice", "onion"}, r.Ingredients)
	assert.Equal(t, "1. Brown the chicken.\n2. Add rice and onion.\n3. Simmer until done.", r.Instructions)
	assert.Equal(t, "global", r.Cuisine)
	assert.Equal(t, []string{"dairy-free"}, r.DietaryTags)
	assert.Equal(t, recipe.ProvenanceGenerated, r.Provenance)
	assert.NotEmpty(t, r.ID)
	require.NotNil(t, r.CaloriesPerServing)
	assert.Equal(t, 510, *r.CaloriesPerServing)

	assert.Contains(t, backend.receivedPrompt, "INGREDIENTS AVAILABLE: chicken, rice")
}

func TestClient_Generate_BackendError(t *testing.T) {
	backend := &mockCompleter{returnError: errors.New("connection reset")}
	client := NewClient(backend, nil)

	_, err := client.Generate(context.Background(), recipe.Query{Ingredients: []string{"rice"}})
	assert.ErrorIs(t, err, recipe.ErrGenerationUnavailable)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestClient_Generate_Malformed(t *testing.T) {
	backend := &mockCompleter{response: "Sorry, I cannot help with that."}
	client := NewClient(backend, nil)

	_, err := client.Generate(context.Background(), recipe.Query{Ingredients: []string{"rice"}})
	assert.ErrorIs(t, err, recipe.ErrGenerationParse)
}

func TestParseRecipes_Shapes(t *testing.T) {
	q := recipe.Query{Ingredients: []string{"okra"}, Filters: recipe.Filters{Cuisine: "sudanese"}}

	tests := []struct {
		name string
		text string
		want int
	}{
		{"bare array", `[{"name":"Bamia","ingredients":["okra"],"instructions":"Stew the okra."}]`, 1},
		{"single object with prose", `Here you go: {"name":"Bamia","ingredients":["okra"],"instructions":"1. Stew."} Enjoy!`, 1},
		{"envelope", `{"recipes":[{"name":"A","ingredients":["okra"],"instructions":["x"]},{"name":"B","ingredients":["okra"],"instructions":["y"]}]}`, 2},
		{"envelope after bracketed prose", `Note [1]: {"recipes":[{"name":"A","ingredients":["okra"],"instructions":["x"]},{"name":"B","ingredients":["okra"],"instructions":["y"]}]}`, 2},
		{"array of two objects", `[{"name":"A","ingredients":["okra"],"instructions":["x"]},{"name":"B","ingredients":["okra"],"instructions":["y"]}]`, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recipes, err := ParseRecipes(tt.text, q)
			require.NoError(t, err)
			assert.Len(t, recipes, tt.want)
			// Missing fields take defaults and the query cuisine.
			assert.Equal(t, "sudanese", recipes[0].Cuisine)
			assert.Equal(t, 3, recipes[0].Difficulty)
			assert.Equal(t, 30, recipes[0].CookTimeMinutes)
			assert.Equal(t, 4, recipes[0].Servings)
		})
	}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abc...", truncate("abcdef", 3))

	// "é" is two bytes; cutting after its first byte backs off to the rune start.
	got := truncate("aébc", 2)
	assert.Equal(t, "a...", got)
	assert.True(t, utf8.ValidString(got))

	long := strings.Repeat("ملوخية ", 100)
	assert.True(t, utf8.ValidString(truncate(long, 500)))
}

func TestParseRecipes_Rejects(t *testing.T) {
	q := recipe.Query{Ingredients: []string{"rice"}}
	for _, text := range []string{
		"",
		"no json here",
		`{"recipes": []}`,
		`{"recipes": [{"name": "No steps", "ingredients": ["rice"], "instructions": ""}]}`,
		`{"recipes": [{"name": "Truncated", "ingredients": ["rice"]`,
		`{"unrelated": true}`,
	} {
		_, err := ParseRecipes(text, q)
		assert.ErrorIs(t, err, recipe.ErrGenerationParse, "input %q", text)
	}
}

func TestParseRecipes_ClampsNumbers(t *testing.T) {
	text := `{"name":"Feast","ingredients":["rice"],"instructions":["cook"],"difficulty":9,"cook_time_minutes":1,"servings":-2,"calories_per_serving":-5}`
	recipes, err := ParseRecipes(text, recipe.Query{})
	require.NoError(t, err)
	r := recipes[0]
	assert.Equal(t, 5, r.Difficulty)
	assert.Equal(t, 5, r.CookTimeMinutes)
	assert.Equal(t, 1, r.Servings)
	assert.Nil(t, r.CaloriesPerServing)
	assert.Equal(t, "global", r.Cuisine)
}

func TestBuildPrompt(t *testing.T) {
	p := BuildPrompt(recipe.Query{
		Ingredients: []string{"fava beans", "garlic"},
		Filters:     recipe.Filters{Cuisine: "Sudanese", Dietary: []string{"vegan"}, Difficulty: 1, MaxCookTime: 45},
	})
	assert.Contains(t, p, "INGREDIENTS AVAILABLE: fava beans, garlic")
	assert.Contains(t, p, "very simple with minimal cooking steps")
	assert.Contains(t, p, "The recipes must be vegan")
	assert.Contains(t, p, "must not exceed 45 minutes")
	assert.Contains(t, p, "authentic Sudanese cuisine")
	assert.Contains(t, p, `"cuisine": "sudanese"`)
	assert.Contains(t, p, "valid JSON only")

	p = BuildPrompt(recipe.Query{Ingredients: []string{"pasta"}, Filters: recipe.Filters{Cuisine: "italian", Difficulty: 3}})
	assert.Contains(t, p, "Focus on authentic italian cuisine")
	assert.NotContains(t, p, "Sudanese")

	p = BuildPrompt(recipe.Query{Ingredients: []string{"pasta"}, Filters: recipe.Filters{Cuisine: "any"}})
	assert.NotContains(t, p, "Focus on authentic")
	assert.Contains(t, p, `"cuisine": "global"`)
	assert.False(t, strings.Contains(p, "must not exceed"))
}

func TestFallback(t *testing.T) {
	// Always a stir-fry built from the selection.
	got := Fallback(recipe.Query{Ingredients: []string{"Rice", "Chicken"}})
	require.Len(t, got, 1)
	assert.Equal(t, "Chicken Stir-Fry", got[0].Name)
	assert.Contains(t, got[0].Ingredients, "rice")
	assert.True(t, got[0].Synthesized)
	assert.Equal(t, recipe.ProvenanceGenerated, got[0].Provenance)
	assert.NoError(t, got[0].Validate())

	// Two vegetables add a curry.
	got = Fallback(recipe.Query{Ingredients: []string{"tomatoes", "potatoes"}, Filters: recipe.Filters{Cuisine: "indian", MaxCookTime: 20}})
	require.Len(t, got, 2)
	assert.Equal(t, "Tomatoes Stir-Fry", got[0].Name)
	assert.Equal(t, "Mixed Vegetable Curry", got[1].Name)
	assert.Equal(t, "indian", got[1].Cuisine)
	assert.Equal(t, 20, got[1].CookTimeMinutes)

	// Sudanese with beans prefers the bean stew, and the result is capped at two.
	got = Fallback(recipe.Query{Ingredients: []string{"fava beans", "onion", "tomato"}, Filters: recipe.Filters{Cuisine: "sudanese"}})
	require.Len(t, got, MaxFallbackRecipes)
	assert.Equal(t, "Simple Sudanese Bean Stew", got[1].Name)
	for _, r := range got {
		assert.NoError(t, r.Validate())
	}
}
