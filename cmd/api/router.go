package main

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"pantrychef/internal/api"
	"pantrychef/internal/metrics"
)

// defaultCORSOrigins is used when no origins are configured.
var defaultCORSOrigins = []string{"http://localhost:8081"}

type routerConfig struct {
	CORSOrigins []string
	SearchRPS   float64
	SearchBurst int
}

func newRouter(handler *api.Handler, cfg routerConfig, log *zap.Logger, m *metrics.Metrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(api.RequestLogger(log, m))

	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = defaultCORSOrigins
	}

	// Configure CORS middleware
	r.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	limiter := api.NewClientRateLimiter(cfg.SearchRPS, cfg.SearchBurst)

	r.GET("/health", handler.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	g := r.Group("/api")
	g.POST("/recipes/search", limiter.Middleware(), handler.SearchRecipes)
	g.GET("/recipes/:id", handler.GetRecipe)
	g.POST("/recipes", handler.CreateRecipe)
	g.GET("/pantry", handler.ListPantry)
	g.POST("/pantry", handler.UpsertPantryItem)
	g.GET("/pantry/expiring", handler.ExpiringPantry)
	g.DELETE("/pantry/:ingredient", handler.RemovePantryItem)
	g.GET("/analytics/popular-ingredients", handler.PopularIngredients)
	g.GET("/ingredients/suggest", handler.SuggestIngredients)
	g.GET("/ingredients/substitute", handler.SubstituteIngredient)

	return r
}
