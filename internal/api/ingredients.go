package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// SuggestIngredients returns autocomplete suggestions for the "q" query.
func (h *Handler) SuggestIngredients(c *gin.Context) {
	limit, ok := intQuery(c, "limit", 10, 1, 50)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), dbTimeout)
	defer cancel()

	names, err := h.RecipeStore.SuggestIngredients(ctx, c.Query("q"), limit)
	if err != nil {
		h.writeError(c, "suggest ingredients", err)
		return
	}
	if names == nil {
		names = []string{}
	}

	c.JSON(http.StatusOK, gin.H{"suggestions": names})
}

// SubstituteIngredient suggests replacements for the "ingredient" query in
// the context of the optional "cuisine" query.
func (h *Handler) SubstituteIngredient(c *gin.Context) {
	ingredient := strings.TrimSpace(c.Query("ingredient"))
	if ingredient == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ingredient is required"})
		return
	}

	c.JSON(http.StatusOK, h.Substituter.Substitute(c.Request.Context(), ingredient, c.Query("cuisine")))
}
