package health

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/studytrack/core/internal/modules/presence"
	"github.com/studytrack/core/internal/pkg/cron"
	pkgredis "github.com/studytrack/core/internal/pkg/redis"
	"github.com/studytrack/core/internal/pkg/response"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

var startedAt = time.Now()

func RegisterRoutes(rg *gin.RouterGroup, db *mongo.Database, rc *pkgredis.Client, ps *presence.Service, sched *cron.Scheduler, authMW gin.HandlerFunc) {
	rg.GET("/health", func(c *gin.Context) {
		ctx := c.Request.Context()
		dbOK := db != nil && db.Client().Ping(ctx, readpref.Primary()) == nil
		redisOK := rc != nil && rc.Ping(ctx) == nil

		status := "ok"
		code := http.StatusOK
		if !dbOK || !redisOK {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}

		c.JSON(code, gin.H{
			"status":   status,
			"database": dbOK,
			"redis":    redisOK,
			"uptime":   time.Since(startedAt).Round(time.Second).String(),
		})
	})

	admin := rg.Group("/health", authMW)
	admin.GET("/presence", func(c *gin.Context) {
		sessions, err := ps.Sessions()
		if err != nil {
			response.ServiceUnavailable(c, "session store unavailable")
			return
		}
		response.OK(c, gin.H{
			"sessions": len(sessions),
		})
	})

	cronGroup := admin.Group("/cron")
	{
		cronGroup.GET("", func(c *gin.Context) {
			items := sched.List()
			byName := make(map[string]cron.ListItem, len(items))
			for _, item := range items {
				byName[item.Name] = item
			}
			response.OK(c, byName)
		})

		cronGroup.POST("/run/:name", func(c *gin.Context) {
			if err := sched.Run(c.Request.Context(), c.Param("name")); err != nil {
				response.NotFoundMsg(c, err.Error())
				return
			}
			response.OK(c, gin.H{"message": "job triggered"})
		})
	}
}
