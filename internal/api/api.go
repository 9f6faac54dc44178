package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/AdvantusAI/m8-collab/internal/api/handlers"
	"github.com/AdvantusAI/m8-collab/internal/api/middleware"
	"github.com/AdvantusAI/m8-collab/internal/domain"
	"github.com/AdvantusAI/m8-collab/internal/export"
	"github.com/AdvantusAI/m8-collab/internal/service"
)

type Services struct {
	Collaboration *service.CollaborationService
	Feeds         *service.FeedService
	Exporter      *export.Exporter
	DefaultUnit   domain.Unit
}

func NewRouter(services *Services, allowedOrigins []string) *gin.Engine {
	router := gin.New()

	router.Use(middleware.RequestID())
	router.Use(middleware.Logger())
	router.Use(middleware.Recovery())
	defaultOrigins := []string{"http://localhost:3000", "http://127.0.0.1:3000"}
	corsConfig := cors.Config{
		AllowOrigins:     defaultOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.RequestIDHeader},
		ExposeHeaders:    []string{"Content-Length", middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(allowedOrigins) > 0 {
		normalizedOrigins, allowAll := normalizeAllowedOrigins(allowedOrigins)
		if allowAll {
			corsConfig.AllowOrigins = nil
			corsConfig.AllowOriginFunc = func(origin string) bool { return true }
		} else if len(normalizedOrigins) > 0 {
			corsConfig.AllowOrigins = normalizedOrigins
		}
	}
	router.Use(cors.New(corsConfig))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	apiGroup := router.Group("/api/v1")

	if services != nil {
		if services.Collaboration != nil {
			h := handlers.NewCollaborationHandler(services.Collaboration, services.Exporter, services.DefaultUnit)
			collab := apiGroup.Group("/collaboration")
			{
				collab.GET("/matrix", h.GetMatrix)
				collab.GET("/summary", h.GetSummary)
				collab.GET("/rollup", h.GetRollup)
				collab.GET("/diagnostics", h.GetDiagnostics)
				collab.POST("/edit", h.PostEdit)
				collab.POST("/rebuild", h.PostRebuild)
				collab.POST("/export", h.PostExport)
			}
		}

		if services.Feeds != nil {
			feedHandler := handlers.NewFeedHandler(services.Feeds)
			apiGroup.POST("/feeds/upload", feedHandler.UploadFeeds)
		}
	}

	return router
}

func normalizeAllowedOrigins(origins []string) ([]string, bool) {
	var (
		parsed   []string
		allowAll bool
	)
	for _, origin := range origins {
		parts := strings.Split(origin, ",")
		for _, part := range parts {
			trimmed := strings.TrimSpace(part)
			if trimmed == "" {
				continue
			}
			if trimmed == "*" {
				allowAll = true
				continue
			}
			parsed = append(parsed, trimmed)
		}
	}
	return parsed, allowAll
}
