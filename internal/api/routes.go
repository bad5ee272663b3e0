package api

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"promptcanvas/internal/auth"
)

// SetupRoutes registers every endpoint on the router. Gallery and user
// routes require a bearer token; the anonymous trial endpoint resolves the
// caller by client IP; admin routes sit behind basic auth and outside the
// per-IP rate limit.
func SetupRoutes(router *gin.Engine, h *Handler, logger *slog.Logger) {
	authRequired := auth.Middleware(h.cfg.Auth.JWTSecret, h.cfg.Debug, logger)

	apiGroup := router.Group("/api", RateLimitMiddleware(h.cfg.Limits.RequestsPerHour))
	{
		images := apiGroup.Group("/images")
		images.POST("/generate-anonymous", auth.AnonymousMiddleware(), h.GenerateImageAnonymous)

		authed := images.Group("", authRequired)
		{
			authed.POST("/generate", h.GenerateImage)
			authed.POST("/save-to-gallery", h.SaveToGallery)
			authed.GET("", h.ListImages)
			authed.GET("/:id", h.GetImage)
			authed.GET("/:id/download", h.DownloadImage)
			authed.DELETE("/:id", h.DeleteImage)
			authed.PATCH("/:id/favorite", h.ToggleFavorite)
		}

		user := apiGroup.Group("/user", authRequired)
		{
			user.GET("/usage", h.UserUsage)
			user.GET("/history", h.UserHistory)
		}
	}

	admin := router.Group("/admin", auth.AdminAuthMiddleware(h.cfg.Auth.AdminPassword))
	{
		admin.GET("/stats", h.AdminStats)
		admin.GET("/analytics", h.AdminAnalytics)
		admin.POST("/usage/reset", h.AdminResetUsage)
		admin.POST("/backup", h.AdminSnapshot)
	}

	router.GET("/healthz", h.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}
