// Package httpapi exposes the daemon's local HTTP API: pending approvals,
// their resolution, token sync status and the activity feed.
package httpapi

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func NewRouter(h *Handler) *gin.Engine {
	r := gin.Default()

	// The API is loopback-only; CORS still matters for wallet UIs served
	// from a local dev server.
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"http://localhost:3000"},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: true,
	}))

	api := r.Group("/api")
	{
		api.GET("/health", h.Health)

		api.GET("/approvals", h.ListApprovals)
		api.POST("/approvals", h.CreateApproval)
		api.POST("/approvals/:id/resolve", h.ResolveApproval)
		api.GET("/approvals/:id/result", h.ApprovalResult)

		api.GET("/sync/status", h.SyncStatus)
		api.POST("/sync/refresh", h.RequestRefresh)

		api.GET("/activities", h.Activities)
	}

	return r
}
