package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"pantrychef/internal/generation"
	"pantrychef/internal/recipe"
	"pantrychef/internal/search"
)

// Searcher defines the interface for running recipe searches.
type Searcher interface {
	Search(ctx context.Context, req search.Request) (*search.Result, error)
}

// RecipeStore defines the interface for recipe and pantry data operations.
type RecipeStore interface {
	GetRecipe(ctx context.Context, id string) (*recipe.Recipe, error)
	Insert(ctx context.Context, r *recipe.Recipe) (string, error)
	PopularIngredients(ctx context.Context, limit int) ([]recipe.IngredientCount, error)
	ListPantry(ctx context.Context, sessionID string) ([]recipe.PantryItem, error)
	ListExpiringPantry(ctx context.Context, sessionID string, within time.Duration) ([]recipe.PantryItem, error)
	UpsertPantryItem(ctx context.Context, item *recipe.PantryItem) error
	RemovePantryItem(ctx context.Context, sessionID, ingredient string) error
	SuggestIngredients(ctx context.Context, query string, limit int) ([]string, error)
	Ping(ctx context.Context) error
}

// Substituter suggests replacements for an ingredient.
type Substituter interface {
	Substitute(ctx context.Context, ingredient, cuisine string) generation.Substitution
}

// BudgetReporter exposes the state of the generation budget.
type BudgetReporter interface {
	Remaining() int
	Limit() int
}

const (
	defaultDifficulty  = 3
	defaultMaxCookTime = 60
	dbTimeout          = 5 * time.Second
)

// Handler handles HTTP requests.
type Handler struct {
	Searcher    Searcher
	RecipeStore RecipeStore
	Budget      BudgetReporter
	Substituter Substituter

	// SearchTimeout bounds a whole search, generation included.
	SearchTimeout time.Duration

	logger *zap.Logger
}

// NewHandler creates a new Handler.
func NewHandler(searcher Searcher, recipeStore RecipeStore, budget BudgetReporter, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		Searcher:      searcher,
		RecipeStore:   recipeStore,
		Budget:        budget,
		Substituter:   generation.NewSubstituter(nil, nil, 0, logger),
		SearchTimeout: 60 * time.Second,
		logger:        logger.Named("api"),
	}
}

// SearchRequest is the body of POST /api/recipes/search.
type SearchRequest struct {
	Ingredients         []string `json:"ingredients"`
	CuisinePreference   string   `json:"cuisine_preference"`
	DietaryRestrictions []string `json:"dietary_restrictions"`
	Difficulty          *int     `json:"difficulty"`
	MaxCookTime         *int     `json:"max_cook_time"`
	SessionID           string   `json:"session_id"`
}

// SearchRecipes handles ingredient based recipe searches.
func (h *Handler) SearchRecipes(c *gin.Context) {
	var body SearchRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	req := search.Request{
		Ingredients: body.Ingredients,
		Cuisine:     body.CuisinePreference,
		Dietary:     body.DietaryRestrictions,
		Difficulty:  defaultDifficulty,
		MaxCookTime: defaultMaxCookTime,
		SessionID:   body.SessionID,
	}
	if body.Difficulty != nil {
		req.Difficulty = *body.Difficulty
	}
	if body.MaxCookTime != nil {
		req.MaxCookTime = *body.MaxCookTime
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.SearchTimeout)
	defer cancel()

	res, err := h.Searcher.Search(ctx, req)
	if err != nil {
		h.writeError(c, "search recipes", err)
		return
	}

	c.JSON(http.StatusOK, res)
}

// GetRecipe handles requests to retrieve a single recipe by id.
func (h *Handler) GetRecipe(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), dbTimeout)
	defer cancel()

	r, err := h.RecipeStore.GetRecipe(ctx, c.Param("id"))
	if err != nil {
		h.writeError(c, "get recipe", err)
		return
	}

	c.JSON(http.StatusOK, r)
}

// CreateRecipe stores a user submitted recipe.
func (h *Handler) CreateRecipe(c *gin.Context) {
	var r recipe.Recipe
	if err := c.ShouldBindJSON(&r); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	r.ID = ""
	r.Provenance = recipe.ProvenanceStored
	r.Synthesized = false
	r.MatchScore = 0
	r.CreatedAt = time.Time{}

	ctx, cancel := context.WithTimeout(c.Request.Context(), dbTimeout)
	defer cancel()

	id, err := h.RecipeStore.Insert(ctx, &r)
	if err != nil {
		h.writeError(c, "create recipe", err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"id": id})
}

// PopularIngredients reports the most searched ingredients.
func (h *Handler) PopularIngredients(c *gin.Context) {
	limit, ok := intQuery(c, "limit", 10, 1, 100)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), dbTimeout)
	defer cancel()

	counts, err := h.RecipeStore.PopularIngredients(ctx, limit)
	if err != nil {
		h.writeError(c, "popular ingredients", err)
		return
	}
	if counts == nil {
		counts = []recipe.IngredientCount{}
	}

	c.JSON(http.StatusOK, gin.H{"ingredients": counts})
}

// Health reports database reachability and the generation budget.
func (h *Handler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status, database, code := "ok", "ok", http.StatusOK
	if err := h.RecipeStore.Ping(ctx); err != nil {
		h.logger.Warn("health check failed", zap.Error(err))
		status, database, code = "degraded", "unavailable", http.StatusServiceUnavailable
	}

	body := gin.H{"status": status, "database": database}
	if h.Budget != nil {
		body["generation_budget_remaining"] = h.Budget.Remaining()
		body["generation_budget_limit"] = h.Budget.Limit()
	}
	c.JSON(code, body)
}

// writeError maps domain errors to HTTP status codes.
func (h *Handler) writeError(c *gin.Context, op string, err error) {
	var code int
	switch {
	case errors.Is(err, recipe.ErrInvalidRequest):
		code = http.StatusBadRequest
	case errors.Is(err, recipe.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		code = http.StatusRequestTimeout
	case errors.Is(err, recipe.ErrStorageUnavailable):
		code = http.StatusServiceUnavailable
	default:
		code = http.StatusInternalServerError
	}

	if code >= http.StatusInternalServerError {
		h.logger.Error("request failed", zap.String("op", op), zap.Error(err))
		c.JSON(code, gin.H{"error": op + " failed"})
		return
	}
	c.JSON(code, gin.H{"error": err.Error()})
}

// intQuery reads an optional integer query parameter within [lo, hi]. It
// writes a 400 response and returns false when the value is not valid.
func intQuery(c *gin.Context, name string, def, lo, hi int) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < lo || v > hi {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("%s must be an integer between %d and %d", name, lo, hi)})
		return 0, false
	}
	return v, true
}
