package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"pantrychef/internal/recipe"
)

// PantryItemRequest is the body of POST /api/pantry. ExpiryDate accepts a
// plain date (2006-01-02) or an RFC 3339 timestamp.
type PantryItemRequest struct {
	SessionID      string   `json:"session_id"`
	IngredientName string   `json:"ingredient_name"`
	Quantity       *float64 `json:"quantity"`
	Unit           string   `json:"unit"`
	ExpiryDate     string   `json:"expiry_date"`
}

func parseExpiry(s string) (*time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, true
	}
	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t, true
		}
	}
	return nil, false
}

func sessionID(c *gin.Context) (string, bool) {
	id := strings.TrimSpace(c.Query("session_id"))
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "session_id is required"})
		return "", false
	}
	return id, true
}

// ListPantry returns the pantry of a session.
func (h *Handler) ListPantry(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), dbTimeout)
	defer cancel()

	items, err := h.RecipeStore.ListPantry(ctx, id)
	if err != nil {
		h.writeError(c, "list pantry", err)
		return
	}
	if items == nil {
		items = []recipe.PantryItem{}
	}

	c.JSON(http.StatusOK, gin.H{"items": items})
}

// UpsertPantryItem adds or updates an ingredient in a session's pantry.
func (h *Handler) UpsertPantryItem(c *gin.Context) {
	var body PantryItemRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	expiry, ok := parseExpiry(body.ExpiryDate)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "expiry_date must be YYYY-MM-DD or RFC 3339"})
		return
	}

	item := &recipe.PantryItem{
		SessionID:      strings.TrimSpace(body.SessionID),
		IngredientName: body.IngredientName,
		Quantity:       body.Quantity,
		Unit:           strings.TrimSpace(body.Unit),
		ExpiryDate:     expiry,
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), dbTimeout)
	defer cancel()

	if err := h.RecipeStore.UpsertPantryItem(ctx, item); err != nil {
		h.writeError(c, "upsert pantry item", err)
		return
	}

	c.JSON(http.StatusOK, item)
}

// RemovePantryItem deletes an ingredient from a session's pantry.
func (h *Handler) RemovePantryItem(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), dbTimeout)
	defer cancel()

	if err := h.RecipeStore.RemovePantryItem(ctx, id, c.Param("ingredient")); err != nil {
		h.writeError(c, "remove pantry item", err)
		return
	}

	c.Status(http.StatusNoContent)
}

// ExpiringPantry lists pantry items expiring within the given number of days.
func (h *Handler) ExpiringPantry(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}
	days, ok := intQuery(c, "days", 3, 0, 365)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), dbTimeout)
	defer cancel()

	items, err := h.RecipeStore.ListExpiringPantry(ctx, id, time.Duration(days)*24*time.Hour)
	if err != nil {
		h.writeError(c, "list expiring pantry", err)
		return
	}
	if items == nil {
		items = []recipe.PantryItem{}
	}

	c.JSON(http.StatusOK, gin.H{"items": items, "days": days})
}
