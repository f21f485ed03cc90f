package httptransport

import (
	"log/slog"

	"github.com/ErlanBelekov/task-scheduler/internal/http/handler"
	"github.com/ErlanBelekov/task-scheduler/internal/http/middleware"
	"github.com/gin-gonic/gin"

	sloggin "github.com/samber/slog-gin"
)

func NewRouter(logger *slog.Logger, taskHandler *handler.TaskHandler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Security())
	r.Use(sloggin.New(logger))
	r.Use(middleware.Metrics())

	// Tasks are addressed by ?name= rather than a path segment
	tasks := r.Group("/tasks")
	tasks.GET("", taskHandler.List)
	tasks.POST("", taskHandler.Create)
	tasks.PUT("", taskHandler.Update)
	tasks.DELETE("", taskHandler.Delete)
	tasks.GET("/attempts", taskHandler.ListAttempts)

	return r
}
