package router

import (
	"net/http"

	"github.com/cuongbtq/career-lab/internal/api/handler"
	"github.com/gin-gonic/gin"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies, allowedOrigins []string) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware(allowedOrigins))

	serviceName := deps.ServiceName
	if serviceName == "" {
		serviceName = "career-lab-api"
	}

	r.GET("/health", func(c *gin.Context) {
		if deps.Database != nil {
			if err := deps.Database.HealthCheck(c.Request.Context()); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"status":  "unhealthy",
					"service": serviceName,
					"error":   err.Error(),
				})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": serviceName,
		})
	})

	generationHandler := handler.NewGenerationHandler(deps)
	requestHandler := handler.NewRequestHandler(deps)

	v1 := r.Group("/api/v1")
	{
		// POST /api/v1/generations/:kind - run a generation and wait for it
		v1.POST("/generations/:kind", generationHandler.Generate)

		// POST /api/v1/sessions/:session_id/cancel - abort in-flight generations
		v1.POST("/sessions/:session_id/cancel", generationHandler.CancelSession)

		requests := v1.Group("/requests")
		{
			// POST /api/v1/requests - queue a generation for the worker
			requests.POST("", requestHandler.CreateRequest)

			// GET /api/v1/requests - list archived requests
			requests.GET("", requestHandler.ListRequests)

			// GET /api/v1/requests/:request_id - get one archived request
			requests.GET("/:request_id", requestHandler.GetRequest)
		}
	}

	return r
}
