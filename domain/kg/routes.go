package kg

import (
	"github.com/labstack/echo/v4"

	"github.com/aurora-intel/aurora-core/pkg/auth"
)

// RegisterRoutes registers all KG routes. Reads require any
// authenticated principal; writes require the admin role.
func RegisterRoutes(e *echo.Echo, h *Handler, authMiddleware *auth.Middleware) {
	g := e.Group("/api/kg")
	g.Use(authMiddleware.RequireAuth())

	g.GET("/node/:uid", h.GetNode)
	g.GET("/node/:uid/history", h.History)
	g.GET("/node/:uid/diff", h.Diff)
	g.GET("/nodes", h.BatchNodes)
	g.GET("/find", h.FindNodes)
	g.GET("/edges", h.Edges)
	g.GET("/stats", h.Stats)
	g.GET("/snapshots", h.ListSnapshots)
	g.GET("/snapshot/:hash", h.GetSnapshot)
	g.POST("/verify", h.Verify)

	admin := e.Group("/api/kg")
	admin.Use(authMiddleware.RequireAdmin())
	admin.POST("/commit", h.Commit)
	admin.POST("/snapshot", h.CreateSnapshot)
	admin.POST("/snapshot/sign", h.SignSnapshot)
	admin.POST("/snapshot/attest", h.AttestSnapshot)
}
