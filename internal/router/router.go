package router

import (
	"net/http"

	"github.com/eduadocs/backend/config"
	"github.com/eduadocs/backend/internal/handler"
	"github.com/eduadocs/backend/internal/subscriber"
	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
)

func Setup(
	cfg *config.Config,
	wizardHandler *handler.WizardHandler,
	stats *subscriber.WizardEventSubscriber,
) *gin.Engine {
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.Default()

	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: true,
	}))
	// SSE 需要逐条刷新，不能经过 gzip 缓冲
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPathsRegexs([]string{`/events$`})))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	{
		wizardHandler.RegisterRoutes(api)

		if stats != nil {
			api.GET("/stats", func(c *gin.Context) {
				c.JSON(http.StatusOK, stats.Stats())
			})
		}
	}

	return r
}
