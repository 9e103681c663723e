package app

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/studytrack/core/internal/middleware"
	"github.com/studytrack/core/internal/modules/exam"
	"github.com/studytrack/core/internal/modules/gateway/gateway"
	"github.com/studytrack/core/internal/modules/health"
	"github.com/studytrack/core/internal/modules/presence"
	"github.com/studytrack/core/internal/modules/program"
	"github.com/studytrack/core/internal/modules/student"
	"github.com/studytrack/core/internal/modules/topic"
	"github.com/studytrack/core/internal/modules/user"
	"github.com/studytrack/core/internal/pkg/response"
)

func (a *App) registerRoutes(userSvc *user.Service) {
	r := a.router
	authMW := middleware.Auth()

	r.NoRoute(func(c *gin.Context) {
		response.NotFound(c)
	})
	r.NoMethod(func(c *gin.Context) {
		response.MethodNotAllowed(c)
	})

	appInfo := gin.H{
		"name":    "studytrack-core",
		"version": "1.0.0",
	}

	apiPrefix := "/api/v1"

	root := r.Group("")

	// WebSocket gateway
	gateway.RegisterRoutes(root, a.hub)

	// Versioned API. OptionalAuth runs first so the rate limiter can see an
	// authenticated caller and wave it through.
	api := r.Group(apiPrefix)
	api.Use(middleware.OptionalAuth())
	api.Use(middleware.RateLimit(a.rc.Raw()))
	api.Use(middleware.Idempotence(a.rc.Raw()))

	api.GET("", func(c *gin.Context) { c.PureJSON(http.StatusOK, appInfo) })
	api.GET("/info", func(c *gin.Context) { c.PureJSON(http.StatusOK, appInfo) })
	api.GET("/ping", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"data": "pong"}) })
	api.GET("/uptime", func(c *gin.Context) {
		uptimeMs := time.Since(processStart).Milliseconds()
		c.JSON(http.StatusOK, gin.H{
			"timestamp": uptimeMs,
			"humanize":  humanizeDuration(time.Duration(uptimeMs) * time.Millisecond),
		})
	})

	// Infrastructure
	health.RegisterRoutes(api, a.db, a.rc, a.presence, a.sched, authMW)

	// Presence over HTTP (polling fallback for clients without WebSocket)
	presence.NewHandler(a.presence).RegisterRoutes(api, authMW)

	// Dashboard
	teacherMW := middleware.RequireTeacher()
	studentSvc := student.NewService(a.db, a.presence)
	student.NewHandler(studentSvc).RegisterRoutes(api, authMW, teacherMW)
	program.NewHandler(program.NewService(a.db)).RegisterRoutes(api, authMW)
	exam.NewHandler(exam.NewService(a.db)).RegisterRoutes(api, authMW)
	topic.NewHandler(topic.NewService(a.db)).RegisterRoutes(api, authMW)
	user.NewHandler(userSvc).RegisterRoutes(api, authMW)
}

var processStart = time.Now()
