package web

import (
	"binder/web/api"
	"binder/web/pages"

	"github.com/rohanthewiz/rweb"
)

// setupRoutes configures all application routes.
func setupRoutes(s *rweb.Server) {
	// Page routes - HTML responses
	s.Get("/", func(ctx rweb.Context) error {
		ctx.Response().SetHeader("Content-Type", "text/html; charset=utf-8")
		return ctx.WriteHTML(pages.StatusPage{Title: "Binder Sync"}.Render())
	})

	// Health check endpoint
	s.Get("/api/v1/health", api.Health)

	// Hierarchy endpoints
	s.Post("/api/v1/nodes", api.CreateNode)              // Create a notebook, section or page
	s.Get("/api/v1/tree", api.GetTree)                   // Full hierarchy
	s.Get("/api/v1/nodes/:id", api.GetNode)              // Single node
	s.Put("/api/v1/nodes/:id/name", api.RenameNode)      // Rename
	s.Put("/api/v1/nodes/:id/parent", api.MoveNode)      // Reparent
	s.Delete("/api/v1/nodes/:id", api.DeleteNode)        // Delete subtree (remote goes to trash)

	// Page content endpoints
	s.Get("/api/v1/pages/:id/content", api.GetPageContent)
	s.Put("/api/v1/pages/:id/content", api.UpdatePageContent)
	s.Get("/api/v1/pages/:id/revisions", api.ListRevisions)

	// Sync control endpoints
	s.Get("/api/v1/sync/status", api.SyncStatus)
	s.Post("/api/v1/sync/trigger", api.TriggerSync)
	s.Post("/api/v1/sync/sweep", api.RunSweep)
	s.Get("/api/v1/sync/sweep", api.LastSweep)
}
