package main

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/greenway-eco/backend/internal/accounts"
	"github.com/greenway-eco/backend/internal/admin"
	"github.com/greenway-eco/backend/internal/chat"
	"github.com/greenway-eco/backend/internal/chatbot"
	"github.com/greenway-eco/backend/internal/listings"
	"github.com/greenway-eco/backend/internal/middleware"
	"github.com/greenway-eco/backend/internal/policy"
	"github.com/greenway-eco/backend/internal/session"
	"github.com/greenway-eco/backend/pkg/response"
)

// handlers bundles everything the router mounts.
type handlers struct {
	resolver *session.Resolver
	metrics  *middleware.Metrics
	accounts *accounts.Handler
	listings *listings.Handler
	chat     *chat.Handler
	chatbot  *chatbot.Handler
	admin    *admin.Handler
	ready    map[string]func(context.Context) error
}

// readiness reports 503 with the failing dependencies when any check fails.
func readiness(checks map[string]func(context.Context) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		failed := gin.H{}
		for name, check := range checks {
			if err := check(ctx); err != nil {
				failed[name] = err.Error()
			}
		}
		if len(failed) > 0 {
			c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "error": "dependencies unavailable", "data": failed})
			return
		}
		response.OK(c, gin.H{"status": "ready"})
	}
}

func newRouter(h handlers, corsOrigins string, logger *zap.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(corsOrigins))
	router.Use(middleware.Logger(logger))
	router.Use(h.metrics.Handler())

	// Health and metrics
	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })
	router.GET("/ready", readiness(h.ready))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Auth (public)
	authGroup := router.Group("/auth")
	{
		authGroup.POST("/signup", h.accounts.Signup)
		authGroup.POST("/signin", h.accounts.Signin)
		authGroup.POST("/refresh", h.accounts.Refresh)
		authGroup.POST("/logout", h.accounts.Logout)
		authGroup.POST("/reset-password", h.accounts.RequestReset)
		authGroup.POST("/reset-password/confirm", h.accounts.ConfirmReset)
	}

	// Protected API (session required)
	api := router.Group("")
	api.Use(middleware.Session(h.resolver, logger))
	{
		// Listings. Edit and delete are checked against the listing owner.
		api.GET("/listings", middleware.RequireAction(policy.ViewListing, h.metrics), h.listings.List)
		api.GET("/listings/:id", middleware.RequireAction(policy.ViewListing, h.metrics), h.listings.Get)
		api.POST("/listings", middleware.RequireAction(policy.CreateListing, h.metrics), h.listings.Create)
		api.POST("/listings/images", middleware.RequireAction(policy.CreateListing, h.metrics), h.listings.UploadImage)
		api.PATCH("/listings/:id", h.listings.Update)
		api.DELETE("/listings/:id", h.listings.Delete)

		// Profile
		api.GET("/profile", middleware.RequireAction(policy.ViewProfile, h.metrics), h.accounts.GetProfile)
		api.PATCH("/profile", middleware.RequireAction(policy.ViewProfile, h.metrics), h.accounts.UpdateProfile)
		api.DELETE("/profile", middleware.RequireAction(policy.ViewProfile, h.metrics), h.accounts.DeleteProfile)

		// Chat
		api.GET("/chats", middleware.RequireAction(policy.OpenChat, h.metrics), h.chat.Room)
		api.GET("/chats/messages", middleware.RequireAction(policy.OpenChat, h.metrics), h.chat.Messages)

		// Chatbot
		api.POST("/ask-chatbot", middleware.RequireAction(policy.AskChatbot, h.metrics), h.chatbot.Ask)

		// Admin
		api.GET("/admin/panel", middleware.RequireAction(policy.ViewAdminPanel, h.metrics), h.admin.Panel)
		api.POST("/admin/roles", middleware.RequireAction(policy.ManageRoles, h.metrics), h.admin.GrantRole)
	}

	// WebSocket (token in query; no Authorization header required)
	router.GET("/ws/chat", h.chat.ServeWs)

	return router
}
