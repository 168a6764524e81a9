package api

import (
	"github.com/gin-gonic/gin"

	v1 "github.com/quotaflow/quotaflow/internal/api/v1"
	"github.com/quotaflow/quotaflow/internal/config"
	"github.com/quotaflow/quotaflow/internal/logger"
	"github.com/quotaflow/quotaflow/internal/rest/middleware"
	"github.com/quotaflow/quotaflow/internal/types"
)

type Handlers struct {
	Health     *v1.HealthHandler
	Enrollment *v1.EnrollmentHandler
	Usage      *v1.UsageHandler
}

func NewRouter(handlers Handlers, cfg *config.Configuration, logger *logger.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.Use(
		middleware.RequestIDMiddleware,
		middleware.CORSMiddleware,
		middleware.RateLimitMiddleware(cfg),
	)

	router.GET("/health", handlers.Health.Health)

	v1Group := router.Group("/v1")
	v1Group.Use(authMiddleware(cfg, logger))
	v1Group.Use(middleware.ErrorHandler())
	registerV1Routes(v1Group, handlers)

	return router
}

// authMiddleware picks the principal resolver for the deployment mode:
// local runs unauthenticated with a default operator principal, everything
// else requires an API key or bearer token
func authMiddleware(cfg *config.Configuration, logger *logger.Logger) gin.HandlerFunc {
	if cfg.Deployment.Mode == types.ModeLocal {
		return middleware.GuestAuthenticateMiddleware
	}
	return middleware.AuthenticateMiddleware(cfg, logger)
}

func registerV1Routes(router *gin.RouterGroup, handlers Handlers) {
	enrollments := router.Group("/enrollments")
	{
		enrollments.GET("", handlers.Enrollment.ListEnrollments)
		enrollments.POST("", handlers.Enrollment.CreateEnrollment)
		enrollments.GET("/:id", handlers.Enrollment.GetEnrollment)
		enrollments.DELETE("/:id", handlers.Enrollment.DeleteEnrollment)
	}

	usages := router.Group("/usages")
	{
		usages.GET("", handlers.Usage.ListUsages)
		usages.POST("", handlers.Usage.CreateUsage)
		usages.GET("/:id", handlers.Usage.GetUsage)
		usages.DELETE("/:id", handlers.Usage.DeleteUsage)
	}
}
