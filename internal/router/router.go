package router

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-gradebook-api/internal/handler"
	"github.com/noah-isme/sma-gradebook-api/internal/middleware"
	"github.com/noah-isme/sma-gradebook-api/internal/models"
	"github.com/noah-isme/sma-gradebook-api/pkg/config"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	GradingHandler   *handler.GradingHandler
	GradebookHandler *handler.GradebookHandler
	MetricsHandler   *handler.MetricsHandler
	JWTMiddleware    gin.HandlerFunc
	AuditWriter      middleware.AuditWriter
	Logger           *zap.Logger
}

// Register wires the HTTP routes into the gin engine.
func Register(r *gin.Engine, cfg *config.Config, deps Dependencies) {
	if deps.MetricsHandler != nil {
		r.GET("/health", deps.MetricsHandler.Health)
		r.GET("/ready", deps.MetricsHandler.Ready)
		r.GET("/metrics", deps.MetricsHandler.Prometheus)
	}

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *gin.Context) { c.Next() }
	}
	audit := func(action, resource string) gin.HandlerFunc {
		return middleware.Audit(deps.AuditWriter, deps.Logger, action, resource)
	}

	api := r.Group(cfg.APIPrefix, jwtMiddleware)
	teacher := middleware.RequireRoles(models.RoleTeacher)

	if h := deps.GradingHandler; h != nil {
		submissions := api.Group("/submissions", teacher)
		submissions.POST("/bulk-grade", audit(models.AuditActionBulkGrade, "submissions"), h.BulkGrade)
		submissions.POST("/:id/grade", audit(models.AuditActionGrade, "submission"), h.Grade)
		submissions.POST("/:id/grade-next", audit(models.AuditActionGrade, "submission"), h.GradeNext)

		assignments := api.Group("/assignments", teacher)
		assignments.GET("/:id/next-ungraded", h.NextUngraded)
		assignments.GET("/:id/siblings", h.Siblings)
	}

	if h := deps.GradebookHandler; h != nil {
		assignments := api.Group("/assignments", teacher)
		assignments.GET("/:id/gradebook", h.List)
		assignments.GET("/:id/gradebook/export", h.Export)
		assignments.POST("/:id/gradebook/resync", audit(models.AuditActionGradebookSync, "assignment"), h.Resync)

		students := api.Group("/students", middleware.RequireRoles(models.RoleStudent))
		students.GET("/me/gradebook", h.Mine)
	}
}
