// Package matcher scores and ranks recipes against a set of selected
// ingredients. Everything here is pure and deterministic.
package matcher

import (
	"math"
	"sort"

	"pantrychef/internal/recipe"
)

// Score returns the percentage of the recipe's ingredients covered by the
// selection, rounded to the nearest integer. A recipe ingredient is covered
// when it matches any selected ingredient by containment in either direction.
func Score(r recipe.Recipe, selected []string) int {
	matched := 0
	for _, ing := range r.Ingredients {
		for _, s := range selected {
			if recipe.IngredientMatches(ing, s) {
				matched++
				break
			}
		}
	}
	total := len(r.Ingredients)
	if total < 1 {
		total = 1
	}
	return int(math.Round(float64(matched) / float64(total) * 100))
}

// Rank scores every recipe and returns a new slice ordered by score
// descending, then cook time ascending, then name, then id.
func Rank(recipes []recipe.Recipe, selected []string) []recipe.Recipe {
	ranked := make([]recipe.Recipe, len(recipes))
	for i, r := range recipes {
		r.MatchScore = Score(r, selected)
		ranked[i] = r
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.MatchScore != b.MatchScore {
			return a.MatchScore > b.MatchScore
		}
		if a.CookTimeMinutes != b.CookTimeMinutes {
			return a.CookTimeMinutes < b.CookTimeMinutes
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.ID < b.ID
	})
	return ranked
}

// CountAbove returns how many ranked recipes score at least min.
func CountAbove(ranked []recipe.Recipe, min int) int {
	n := 0
	for _, r := range ranked {
		if r.MatchScore >= min {
			n++
		}
	}
	return n
}

// WithPantry extends the selection with the pantry ingredients not already in
// it. The selection keeps its order and pantry items follow.
func WithPantry(selected []string, pantry []recipe.PantryItem) []string {
	seen := make(map[string]bool, len(selected)+len(pantry))
	out := make([]string, 0, len(selected)+len(pantry))
	for _, s := range selected {
		n := recipe.NormalizeIngredient(s)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	for _, p := range pantry {
		n := recipe.NormalizeIngredient(p.IngredientName)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}
