package api

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/choicespecs/user-service-microservice/pkg/middleware"
)

// NewRouter creates and configures the Gin router.
func NewRouter(h *UserHandler) *gin.Engine {
	r := gin.Default()

	// Middleware
	r.Use(middleware.CorrelationID())

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Swagger
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Read routes, served synchronously
	r.GET("/users", h.SearchUsers)
	r.GET("/users/lookup", h.LookupUser)

	// Write routes, queued as commands
	r.POST("/users", h.CreateUser)
	r.PUT("/users/:username", h.UpdateUser)
	r.DELETE("/users/:email", h.DeleteUser)

	return r
}
