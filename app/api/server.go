package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func NewServer(handler *Handler, apiAccessKey string, version string) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		Formatter: func(param gin.LogFormatterParams) string {
			return fmt.Sprintf("%s - [%s] \"%s %s %s %d %s \"%s\" %s\"\n",
				param.ClientIP,
				param.TimeStamp.Format(time.RFC3339),
				param.Method,
				param.Path,
				param.Request.Proto,
				param.StatusCode,
				param.Latency,
				param.Request.UserAgent(),
				param.ErrorMessage,
			)
		},
		SkipPaths: []string{"/health", "/metrics"},
	}))

	r.Use(gin.Recovery())

	r.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-API-Key")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	setupRoutes(r, handler, apiAccessKey, version)

	return r
}

func setupRoutes(r *gin.Engine, handler *Handler, apiAccessKey string, version string) {
	r.GET("/monitors/:name/feed", handler.GetMonitorFeed)

	r.GET("/health", handler.GetHealth)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if apiAccessKey != "" {
		api := r.Group("/api")
		api.Use(authMiddleware(apiAccessKey))
		{
			api.POST("/urls/validate", handler.APIValidateURL)

			api.POST("/searches", handler.APICreateSearch)
			api.GET("/searches", handler.APIListSearches)
			api.GET("/searches/:id", handler.APIGetSearch)
			api.GET("/users/:user/usage", handler.APIGetUsage)

			api.GET("/results/:id", handler.APIGetResult)
			api.POST("/results/:id/save", handler.APISaveResult)
			api.POST("/results/:id/archive", handler.APIArchiveResult)
			api.GET("/archives/:id", handler.APIGetArchive)

			api.GET("/monitors", handler.APIListMonitors)
			api.GET("/monitors/:name", handler.APIGetMonitorDetails)
			api.POST("/monitors/:name/run", handler.APIRunMonitor)
			api.POST("/monitors/:name/reload", handler.APIReloadMonitor)
		}
		slog.Info("API endpoints enabled with authentication")
	} else {
		slog.Info("API endpoints disabled (API_ACCESS_KEY not set)")
	}

	r.GET("/", func(c *gin.Context) {
		endpoints := map[string]string{
			"feed":    "/monitors/<name>/feed",
			"health":  "/health",
			"metrics": "/metrics",
		}

		if apiAccessKey != "" {
			endpoints["validate"] = "/api/urls/validate (POST, requires X-API-Key header)"
			endpoints["searches"] = "/api/searches (GET, POST, requires X-API-Key header)"
			endpoints["usage"] = "/api/users/<user>/usage (requires X-API-Key header)"
			endpoints["results"] = "/api/results/<id> (requires X-API-Key header)"
			endpoints["archives"] = "/api/archives/<id> (requires X-API-Key header)"
			endpoints["monitors"] = "/api/monitors (requires X-API-Key header)"
		}

		c.JSON(http.StatusOK, gin.H{
			"service":     "Research Comb",
			"version":     version,
			"description": "Web research backend with SSRF-safe fetching, deduplication, archiving and search monitors",
			"endpoints":   endpoints,
			"api_status": map[string]interface{}{
				"enabled":       apiAccessKey != "",
				"auth_required": apiAccessKey != "",
				"header":        "X-API-Key",
			},
		})
	})

	r.GET("/favicon.ico", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
}

func authMiddleware(apiAccessKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		providedKey := c.GetHeader("X-API-Key")

		if providedKey == "" {
			authHeader := c.GetHeader("Authorization")
			if strings.HasPrefix(authHeader, "Bearer ") {
				providedKey = strings.TrimPrefix(authHeader, "Bearer ")
			}
		}

		if providedKey == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "API key required",
				"message": "Provide API key in X-API-Key header or Authorization: Bearer <key>",
			})
			c.Abort()
			return
		}

		if providedKey != apiAccessKey {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "Invalid API key",
				"message": "The provided API key is not valid",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
