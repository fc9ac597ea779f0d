// Package cache holds the process-wide state shared by concurrent searches:
// the generated recipe cache and the generation rate budget.
package cache

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"pantrychef/internal/recipe"
)

// Default cache settings.
const (
	DefaultTTL        = 300 * time.Second
	DefaultMaxEntries = 100
)

// Cache maps query fingerprints to generated recipe sets. Entries expire
// after the TTL and the oldest entries are evicted once the cache is full.
// It is safe for concurrent use.
type Cache struct {
	lru *expirable.LRU[string, []recipe.Recipe]
}

// New creates a Cache. Non-positive arguments fall back to the defaults.
func New(ttl time.Duration, maxEntries int) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &Cache{lru: expirable.NewLRU[string, []recipe.Recipe](maxEntries, nil, ttl)}
}

// Get returns a copy of the cached recipes for key, or false if absent or expired.
func (c *Cache) Get(key string) ([]recipe.Recipe, bool) {
	v, ok := c.lru.Get(key)
	if !ok {
		return nil, false
	}
	return cloneRecipes(v), true
}

// Put stores a copy of recipes under key, replacing any previous value.
func (c *Cache) Put(key string, recipes []recipe.Recipe) {
	c.lru.Add(key, cloneRecipes(recipes))
}

// Len returns the number of entries, including ones not yet purged after expiry.
func (c *Cache) Len() int {
	return c.lru.Len()
}

func cloneRecipes(in []recipe.Recipe) []recipe.Recipe {
	if in == nil {
		return nil
	}
	out := make([]recipe.Recipe, len(in))
	for i, r := range in {
		r.Ingredients = append([]string(nil), r.Ingredients...)
		r.DietaryTags = append([]string(nil), r.DietaryTags...)
		if r.CaloriesPerServing != nil {
			c := *r.CaloriesPerServing
			r.CaloriesPerServing = &c
		}
		out[i] = r
	}
	return out
}
