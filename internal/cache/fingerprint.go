package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"

	"pantrychef/internal/recipe"
)

// canonicalQuery fixes the field order of the serialized fingerprint input.
type canonicalQuery struct {
	Ingredients []string `json:"i"`
	Cuisine     string   `json:"c"`
	Dietary     []string `json:"d"`
	Difficulty  int      `json:"l"`
	MaxCookTime int      `json:"t"`
}

// Fingerprint derives the cache key of a query. Ingredient order, duplicates,
// case and surrounding or repeated whitespace do not change the result.
func Fingerprint(q recipe.Query) string {
	cq := canonicalQuery{
		Ingredients: canonicalSet(q.Ingredients),
		Cuisine:     recipe.NormalizeCuisine(q.Filters.Cuisine),
		Dietary:     canonicalSet(q.Filters.Dietary),
		Difficulty:  q.Filters.Difficulty,
		MaxCookTime: q.Filters.MaxCookTime,
	}
	// Marshalling a struct of strings and ints cannot fail.
	data, _ := json.Marshal(cq)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func canonicalSet(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = recipe.NormalizeName(v)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
