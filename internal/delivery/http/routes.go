package http

import (
	"github.com/gin-gonic/gin"
	"github.com/meshivanshsinghh/opinionflow/config"
	"github.com/meshivanshsinghh/opinionflow/internal/domain"
)

// SetupRouter creates and configures the Gin router
func SetupRouter(cfg *config.Config, handler *Handler, counter domain.CounterStore) *gin.Engine {
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	router.Use(RecoveryMiddleware())
	router.Use(LoggerMiddleware())
	router.Use(CORSMiddleware(cfg.Server.AllowedOrigins))

	router.GET("/health", handler.HealthCheck)

	v1 := router.Group("/api/v1")
	v1.Use(RateLimitMiddleware(counter, cfg.RateLimit.PerIP, cfg.RateLimit.Window))
	{
		products := v1.Group("/products")
		{
			products.POST("/discover", handler.DiscoverProducts)
			products.POST("/custom", handler.AddCustomProduct)
			products.POST("/specifications", handler.GetSpecifications)
			products.GET("/selected", handler.GetSelectedProducts)
			products.GET("/history", handler.GetHistory)
			products.POST("/select/:store/:product_id", handler.SelectProduct)
			products.POST("/refresh/:product_id", handler.RefreshProduct)
		}

		v1.POST("/reviews/extract", handler.ExtractReviews)

		analysis := v1.Group("/analysis")
		{
			analysis.POST("/analyze", handler.AnalyzeReviews)
			analysis.POST("/ask", handler.AskQuestion)
		}

		v1.POST("/cache/cleanup", handler.CleanupCache)
		v1.GET("/tasks", handler.ListTasks)
	}

	return router
}
