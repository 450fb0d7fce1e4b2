package routes

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/preetsinghmakkar/CalmConnect/internal/middlewares"
	"github.com/rs/zerolog"
)

// SetupRouter builds the engine with CORS, recovery and request logging.
func SetupRouter(allowOrigins []string, log zerolog.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), middlewares.RequestLogger(log))

	config := cors.DefaultConfig()
	config.AllowOrigins = allowOrigins
	config.AllowCredentials = true
	config.AllowHeaders = []string{
		"Authorization",
		"Content-Type",
		"Origin",
		"Accept",
		middlewares.RequestIDHeader,
	}
	config.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	config.ExposeHeaders = []string{middlewares.RequestIDHeader}
	router.Use(cors.New(config))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	return router
}
