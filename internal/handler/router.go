package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/civitasfix/civitasfix-api/internal/middleware"
	"github.com/civitasfix/civitasfix-api/internal/models"
)

// Handlers bundles every HTTP handler mounted by RegisterRoutes.
type Handlers struct {
	Auth          *AuthHandler
	Users         *UserHandler
	Reports       *ReportHandler
	Notifications *NotificationHandler
	Stats         *StatsHandler
	Metrics       *MetricsHandler
}

// RegisterRoutes mounts the API under prefix. Routes other than health, metrics and the
// auth entry points require a bearer token.
func RegisterRoutes(r gin.IRouter, prefix string, h Handlers, auth middleware.Authenticator) {
	api := r.Group(prefix)
	api.Use(middleware.WithResponseMeta())

	api.GET("/health", h.Metrics.Health)
	api.GET("/ready", h.Metrics.Ready)
	api.GET("/metrics", h.Metrics.Prometheus)

	authRoutes := api.Group("/auth")
	authRoutes.POST("/register", h.Auth.Register)
	authRoutes.POST("/login", h.Auth.Login)

	protected := api.Group("")
	protected.Use(middleware.JWT(auth))
	protected.GET("/auth/me", h.Auth.Me)

	staff := middleware.RequireRoles(models.RoleLecturer, models.RoleAdmin)

	reports := protected.Group("/reports")
	reports.GET("", h.Reports.List)
	reports.GET("/latest", h.Reports.Latest)
	reports.GET("/export", h.Reports.Export)
	reports.POST("", middleware.RequireRoles(models.RoleStudent), h.Reports.Create)
	reports.GET("/:id", h.Reports.Get)
	reports.PATCH("/:id/status", staff, h.Reports.UpdateStatus)
	reports.PATCH("/:id/repair", middleware.RequireRoles(models.RoleLecturer), h.Reports.UpdateRepair)

	notifications := protected.Group("/notifications")
	notifications.GET("", h.Notifications.List)
	notifications.GET("/unread-count", h.Notifications.UnreadCount)
	notifications.POST("/read-all", h.Notifications.MarkAllRead)
	notifications.PATCH("/:id/read", h.Notifications.MarkRead)
	notifications.DELETE("/:id", h.Notifications.Delete)

	stats := protected.Group("/stats")
	stats.GET("/summary", h.Stats.Summary)
	stats.GET("/weekly", h.Stats.Weekly)

	users := protected.Group("/users")
	users.GET("/profile", h.Users.Profile)
	users.PUT("/profile", h.Users.UpdateProfile)
	users.POST("/change-password", h.Users.ChangePassword)
	users.GET("/lecturers", h.Users.Lecturers)
	users.GET("/:id", staff, h.Users.Get)
}
