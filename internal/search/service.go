// Package search composes the recipe store, the matcher, the generation
// cache and budget, and the generation client into a single search call.
package search

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"pantrychef/internal/cache"
	"pantrychef/internal/generation"
	"pantrychef/internal/matcher"
	"pantrychef/internal/metrics"
	"pantrychef/internal/recipe"
)

// Store is the part of the recipe store used by searches.
type Store interface {
	FindByIngredients(ctx context.Context, ingredients []string, filters recipe.Filters) ([]recipe.Recipe, error)
	AppendSearchLog(ctx context.Context, entry recipe.SearchLog) error
	ListPantry(ctx context.Context, sessionID string) ([]recipe.PantryItem, error)
}

// Generator produces new recipes for a query.
type Generator interface {
	Generate(ctx context.Context, q recipe.Query) ([]recipe.Recipe, error)
}

// Cache holds generated recipe sets by fingerprint.
type Cache interface {
	Get(key string) ([]recipe.Recipe, bool)
	Put(key string, recipes []recipe.Recipe)
}

// Budget limits generation calls.
type Budget interface {
	TryConsume(cost int) bool
}

// Options tunes the orchestrator.
type Options struct {
	// MinLocalResults is how many local recipes must reach MinMatchScore
	// before generation is skipped.
	MinLocalResults   int
	MinMatchScore     int
	MaxResults        int
	MaxIngredients    int
	PantryBias        bool
	GenerationTimeout time.Duration
	// Retries is the number of extra generation attempts after an
	// unavailable backend, each paid from the budget. At most 1.
	Retries int
}

// Request is a search as issued by the presentation layer.
type Request struct {
	Ingredients []string
	Cuisine     string
	Dietary     []string
	Difficulty  int
	MaxCookTime int
	SessionID   string
}

// Result is the ranked answer to a search.
type Result struct {
	Recipes        []recipe.Recipe `json:"recipes"`
	TotalFound     int             `json:"total_found"`
	GenerationUsed bool            `json:"generation_used"`
	Stages         []Stage         `json:"-"`
}

// Service runs searches. It is safe for concurrent use.
type Service struct {
	store     Store
	generator Generator
	cache     Cache
	budget    Budget
	opts      Options
	logger    *zap.Logger
	metrics   *metrics.Metrics
	flights   singleflight.Group
}

// NewService creates a search Service. generator may be nil, in which case
// searches only use stored recipes.
func NewService(store Store, generator Generator, c Cache, budget Budget, opts Options, logger *zap.Logger, m *metrics.Metrics) *Service {
	if opts.MaxResults <= 0 {
		opts.MaxResults = 10
	}
	if opts.MaxIngredients <= 0 {
		opts.MaxIngredients = 10
	}
	if opts.GenerationTimeout <= 0 {
		opts.GenerationTimeout = 45 * time.Second
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if opts.Retries > 1 {
		opts.Retries = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if m == nil {
		m = metrics.NewNop()
	}
	return &Service{
		store:     store,
		generator: generator,
		cache:     c,
		budget:    budget,
		opts:      opts,
		logger:    logger.Named("search"),
		metrics:   m,
	}
}

// Search finds recipes for the request. Only invalid input and a store
// failure that generation cannot make up for are returned as errors.
func (s *Service) Search(ctx context.Context, req Request) (*Result, error) {
	stages := []Stage{StageReceived}

	q, err := s.validate(req)
	if err != nil {
		s.metrics.Searches.WithLabelValues("invalid").Inc()
		return nil, err
	}

	local, storeErr := s.store.FindByIngredients(ctx, q.Ingredients, q.Filters)
	if storeErr != nil {
		s.logger.Warn("local recipe lookup failed", zap.Error(storeErr))
		local = nil
	}
	selected := s.selection(ctx, q, req.SessionID, storeErr == nil)
	ranked := matcher.Rank(local, selected)
	stages = append(stages, StageLocalMatched)

	outcome := outcomeNotNeeded
	var generated []recipe.Recipe
	if matcher.CountAbove(ranked, s.opts.MinMatchScore) < s.opts.MinLocalResults {
		generated, outcome = s.generate(ctx, q)
	}
	if outcome.attempted() {
		stages = append(stages, StageGenerationAttempted)
	} else {
		stages = append(stages, StageGenerationSkipped)
	}

	if storeErr != nil && !outcome.attempted() {
		s.metrics.Searches.WithLabelValues("failed").Inc()
		if !errors.Is(storeErr, recipe.ErrStorageUnavailable) {
			storeErr = fmt.Errorf("%w: %w", recipe.ErrStorageUnavailable, storeErr)
		}
		return nil, fmt.Errorf("search failed without generation fallback: %w", storeErr)
	}

	merged := matcher.Rank(dedupeByName(ranked, generated), selected)
	stages = append(stages, StageMerged)

	entry := recipe.SearchLog{
		SessionID:      req.SessionID,
		Ingredients:    q.Ingredients,
		Cuisine:        q.Filters.Cuisine,
		Dietary:        q.Filters.Dietary,
		ResultsCount:   len(merged),
		GenerationUsed: outcome.attempted(),
	}
	if err := s.store.AppendSearchLog(ctx, entry); err != nil {
		s.metrics.SearchLogFailures.Inc()
		s.logger.Warn("failed to write search log", zap.Error(err))
	}
	stages = append(stages, StageLogged)

	res := &Result{
		Recipes:        merged,
		TotalFound:     len(merged),
		GenerationUsed: outcome.attempted(),
	}
	if len(res.Recipes) > s.opts.MaxResults {
		res.Recipes = res.Recipes[:s.opts.MaxResults]
	}
	if res.Recipes == nil {
		res.Recipes = []recipe.Recipe{}
	}
	stages = append(stages, StageResponded)
	res.Stages = stages

	s.metrics.Searches.WithLabelValues("ok").Inc()
	s.logger.Debug("search completed",
		zap.Strings("ingredients", q.Ingredients),
		zap.Int("local", len(ranked)),
		zap.Int("generated", len(generated)),
		zap.Int("total_found", res.TotalFound),
		zap.Stringer("generation", outcome),
		zap.Strings("stages", stageNames(stages)))
	return res, nil
}

// validate normalizes the request into a query or returns ErrInvalidRequest.
func (s *Service) validate(req Request) (recipe.Query, error) {
	seen := make(map[string]bool, len(req.Ingredients))
	var ingredients []string
	for _, ing := range req.Ingredients {
		n := recipe.NormalizeIngredient(ing)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		ingredients = append(ingredients, n)
	}
	if len(ingredients) == 0 {
		return recipe.Query{}, fmt.Errorf("%w: at least one ingredient is required", recipe.ErrInvalidRequest)
	}
	if len(ingredients) > s.opts.MaxIngredients {
		return recipe.Query{}, fmt.Errorf("%w: at most %d ingredients are allowed", recipe.ErrInvalidRequest, s.opts.MaxIngredients)
	}
	if req.Difficulty < 1 || req.Difficulty > 5 {
		return recipe.Query{}, fmt.Errorf("%w: difficulty must be between 1 and 5, got %d", recipe.ErrInvalidRequest, req.Difficulty)
	}
	if req.MaxCookTime <= 0 {
		return recipe.Query{}, fmt.Errorf("%w: max cook time must be positive, got %d", recipe.ErrInvalidRequest, req.MaxCookTime)
	}

	var dietary []string
	for _, d := range req.Dietary {
		if d = strings.ToLower(strings.TrimSpace(d)); d != "" {
			dietary = append(dietary, d)
		}
	}

	return recipe.Query{
		Ingredients: ingredients,
		Filters: recipe.Filters{
			Cuisine:     recipe.NormalizeCuisine(req.Cuisine),
			Dietary:     dietary,
			Difficulty:  req.Difficulty,
			MaxCookTime: req.MaxCookTime,
		},
	}, nil
}

// selection returns the ingredients recipes are scored against, extended
// with the session's pantry when pantry bias is on.
func (s *Service) selection(ctx context.Context, q recipe.Query, sessionID string, storeUp bool) []string {
	if !s.opts.PantryBias || sessionID == "" || !storeUp {
		return q.Ingredients
	}
	pantry, err := s.store.ListPantry(ctx, sessionID)
	if err != nil {
		s.logger.Warn("failed to read pantry", zap.String("session_id", sessionID), zap.Error(err))
		return q.Ingredients
	}
	return matcher.WithPantry(q.Ingredients, pantry)
}

type flightResult struct {
	recipes []recipe.Recipe
	outcome generationOutcome
}

// generate returns generated recipes for q. Concurrent misses for the same
// fingerprint share one backend call and one budget unit.
func (s *Service) generate(ctx context.Context, q recipe.Query) ([]recipe.Recipe, generationOutcome) {
	if s.generator == nil {
		return nil, outcomeDisabled
	}

	key := cache.Fingerprint(q)
	if cached, ok := s.cache.Get(key); ok {
		s.metrics.CacheHits.Inc()
		return cached, outcomeCacheHit
	}
	s.metrics.CacheMisses.Inc()

	// The shared call outlives any one caller. Each caller only stops waiting
	// for it when its own context ends.
	shared := context.WithoutCancel(ctx)
	ch := s.flights.DoChan(key, func() (interface{}, error) {
		return s.generateOnce(shared, q, key), nil
	})
	select {
	case r := <-ch:
		res := r.Val.(flightResult)
		return res.recipes, res.outcome
	case <-ctx.Done():
		s.metrics.Fallbacks.Inc()
		s.logger.Warn("search cancelled while waiting for generation, serving fallback recipes", zap.Error(ctx.Err()))
		return generation.Fallback(q), outcomeFallback
	}
}

func (s *Service) generateOnce(ctx context.Context, q recipe.Query, key string) flightResult {
	// A flight that finished just before this one may have filled the cache.
	if cached, ok := s.cache.Get(key); ok {
		return flightResult{recipes: cached, outcome: outcomeCacheHit}
	}

	var lastErr error
	for attempt := 0; attempt <= s.opts.Retries; attempt++ {
		if !s.budget.TryConsume(1) {
			if attempt == 0 {
				s.metrics.BudgetRejections.Inc()
				return flightResult{outcome: outcomeBudgetExhausted}
			}
			break
		}

		gctx, cancel := context.WithTimeout(ctx, s.opts.GenerationTimeout)
		recipes, err := s.generator.Generate(gctx, q)
		cancel()
		if err == nil {
			s.metrics.GenerationCalls.WithLabelValues("success").Inc()
			s.cache.Put(key, recipes)
			return flightResult{recipes: recipes, outcome: outcomeGenerated}
		}

		lastErr = err
		if errors.Is(err, recipe.ErrGenerationParse) {
			s.metrics.GenerationCalls.WithLabelValues("parse_error").Inc()
			break
		}
		s.metrics.GenerationCalls.WithLabelValues("unavailable").Inc()
	}

	s.metrics.Fallbacks.Inc()
	s.logger.Warn("generation failed, serving fallback recipes", zap.Error(lastErr))
	return flightResult{recipes: generation.Fallback(q), outcome: outcomeFallback}
}

// dedupeByName concatenates the lists, keeping the first recipe of each
// normalized name. Local recipes come first so they win over generated ones.
func dedupeByName(lists ...[]recipe.Recipe) []recipe.Recipe {
	seen := make(map[string]bool)
	var out []recipe.Recipe
	for _, list := range lists {
		for _, r := range list {
			key := recipe.NormalizeName(r.Name)
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, r)
		}
	}
	return out
}
