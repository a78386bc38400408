package httptransport

import (
	"log/slog"

	"github.com/callcron/scheduler/internal/transport/http/handler"
	"github.com/callcron/scheduler/internal/transport/http/middleware"
	"github.com/gin-gonic/gin"
	sloggin "github.com/samber/slog-gin"
)

func NewRouter(logger *slog.Logger, jobHandler *handler.JobHandler, authHandler *handler.AuthHandler, jwtKey []byte) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Security())
	r.Use(sloggin.New(logger))
	r.Use(middleware.Metrics())

	// Public auth routes
	r.POST("/auth/magic-link", authHandler.RequestMagicLink)
	r.GET("/auth/verify", authHandler.Verify)

	// Protected job routes: create/list/get/delete plus
	// dispatch_now/pause/resume. reload_jobs is not HTTP-exposed.
	jobs := r.Group("/jobs", middleware.Auth(jwtKey))
	jobs.POST("", jobHandler.Create)
	jobs.GET("", jobHandler.List)
	jobs.GET("/:id", jobHandler.GetByID)
	jobs.DELETE("/:id", jobHandler.Delete)
	jobs.POST("/:id/pause", jobHandler.Pause)
	jobs.POST("/:id/resume", jobHandler.Resume)
	jobs.POST("/:id/dispatch", jobHandler.DispatchNow)
	jobs.GET("/:id/executions", jobHandler.ListExecutions)

	return r
}
