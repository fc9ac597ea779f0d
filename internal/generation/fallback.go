package generation

import (
	"strings"
	"unicode"

	"pantrychef/internal/recipe"
)

// MaxFallbackRecipes caps how many recipes Fallback synthesizes.
const MaxFallbackRecipes = 2

var (
	proteins   = []string{"chicken", "beef", "lamb", "fish", "shrimp", "tofu", "eggs", "turkey", "pork"}
	vegetables = []string{"onion", "tomato", "carrot", "potato", "spinach", "mushroom", "pepper", "okra", "zucchini", "eggplant", "cabbage", "broccoli"}
	legumes    = []string{"beans", "lentils", "chickpeas"}
)

// Fallback synthesizes minimal recipes from the selected ingredients for use
// when generation fails. It always returns at least the stir-fry.
func Fallback(q recipe.Query) []recipe.Recipe {
	selected := normalized(q.Ingredients)
	cuisine := recipe.NormalizeCuisine(q.Filters.Cuisine)
	if cuisine == "" {
		cuisine = recipe.CuisineGlobal
	}

	out := []recipe.Recipe{stirFry(selected, cuisine, q.Filters.MaxCookTime)}

	if cuisine == recipe.CuisineSudanese && len(pick(selected, legumes)) > 0 {
		out = append(out, sudaneseBeanStew(selected, q.Filters.MaxCookTime))
	} else if veg := pick(selected, vegetables); len(veg) >= 2 {
		out = append(out, vegetableCurry(veg, cuisine, q.Filters.MaxCookTime))
	}

	if len(out) > MaxFallbackRecipes {
		out = out[:MaxFallbackRecipes]
	}
	return out
}

func stirFry(selected []string, cuisine string, maxCookTime int) recipe.Recipe {
	main := "Vegetable"
	if p := pick(selected, proteins); len(p) > 0 {
		main = p[0]
	} else if len(selected) > 0 {
		main = selected[0]
	}
	name := titleCase(main) + " Stir-Fry"

	ingredients := append(append([]string{}, selected...), "oil", "salt", "pepper")
	return recipe.Recipe{
		ID:          "fallback-stir-fry",
		Name:        name,
		Ingredients: dedupe(ingredients),
		Instructions: recipe.NumberSteps([]string{
			"Cut " + strings.Join(selected, ", ") + " into bite-sized pieces.",
			"Heat oil in a large pan or wok over high heat.",
			"Add the ingredients that take longest to cook first and stir-fry until browned.",
			"Add the rest and stir-fry until everything is tender.",
			"Season with salt and pepper and serve hot.",
		}),
		Cuisine:         cuisine,
		Difficulty:      2,
		CookTimeMinutes: capCookTime(25, maxCookTime),
		Servings:        4,
		DietaryTags:     []string{"quick", "one-pan"},
		Provenance:      recipe.ProvenanceGenerated,
		Synthesized:     true,
	}
}

func vegetableCurry(veg []string, cuisine string, maxCookTime int) recipe.Recipe {
	if cuisine != recipe.CuisineSudanese && cuisine != recipe.CuisineIndian {
		cuisine = recipe.CuisineGlobal
	}
	return recipe.Recipe{
		ID:          "fallback-vegetable-curry",
		Name:        "Mixed Vegetable Curry",
		Ingredients: dedupe(append(append([]string{}, veg...), "oil", "cumin", "turmeric", "salt")),
		Instructions: recipe.NumberSteps([]string{
			"Heat oil in a pot.",
			"Add cumin and let it splutter.",
			"Add the chopped vegetables.",
			"Add turmeric and salt.",
			"Cover and cook until the vegetables are tender.",
			"Serve with rice or bread.",
		}),
		Cuisine:         cuisine,
		Difficulty:      2,
		CookTimeMinutes: capCookTime(30, maxCookTime),
		Servings:        4,
		DietaryTags:     []string{"vegetarian", "vegan"},
		Provenance:      recipe.ProvenanceGenerated,
		Synthesized:     true,
	}
}

func sudaneseBeanStew(selected []string, maxCookTime int) recipe.Recipe {
	beans := pick(selected, legumes)[0]
	return recipe.Recipe{
		ID:          "fallback-sudanese-bean-stew",
		Name:        "Simple Sudanese Bean Stew",
		Ingredients: []string{beans, "onions", "tomatoes", "oil", "cumin", "salt"},
		Instructions: recipe.NumberSteps([]string{
			"Soak the " + beans + " overnight if dried.",
			"Cook the " + beans + " until tender.",
			"In another pot, fry onions in oil.",
			"Add tomatoes and cook until soft.",
			"Add the cooked " + beans + ", cumin and salt.",
			"Simmer for 15 minutes and serve with bread.",
		}),
		Cuisine:         recipe.CuisineSudanese,
		Difficulty:      2,
		CookTimeMinutes: capCookTime(45, maxCookTime),
		Servings:        6,
		DietaryTags:     []string{"vegetarian", "high-protein"},
		Provenance:      recipe.ProvenanceGenerated,
		Synthesized:     true,
	}
}

// pick returns the selected ingredients that match any of the candidates.
func pick(selected, candidates []string) []string {
	var out []string
	for _, s := range selected {
		for _, c := range candidates {
			if recipe.IngredientMatches(s, c) {
				out = append(out, s)
				break
			}
		}
	}
	return out
}

func normalized(ingredients []string) []string {
	var out []string
	for _, ing := range ingredients {
		if n := recipe.NormalizeIngredient(ing); n != "" {
			out = append(out, n)
		}
	}
	return dedupe(out)
}

func dedupe(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

func capCookTime(minutes, max int) int {
	if max > 0 && minutes > max {
		return max
	}
	return minutes
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}
