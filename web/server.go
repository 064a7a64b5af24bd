package web

import (
	"binder/models"
	"binder/syncer"
	"binder/web/api"
	"binder/web/pages"

	"github.com/rohanthewiz/logger"
	"github.com/rohanthewiz/rweb"
)

// NewServer creates and configures the RWeb server.
func NewServer(addr string, tree *models.Tree, engine *syncer.Engine) *rweb.Server {
	api.Init(tree, engine)
	pages.Init(tree, engine)

	s := rweb.NewServer(rweb.ServerOptions{
		Address: addr,
		Verbose: true,
	})

	s.Use(rweb.RequestInfo)
	s.Use(CorsMiddleware)
	s.Use(SecurityHeadersMiddleware)
	s.Use(LoggingMiddleware)

	setupRoutes(s)
	return s
}

// NewTestServer creates a server with caller-supplied options, for
// tests that need a dynamic port and a ready signal. The caller must
// have called api.Init / pages.Init (NewServer does this) or pass the
// collaborators through InitHandlers first.
func NewTestServer(opts rweb.ServerOptions) *rweb.Server {
	s := rweb.NewServer(opts)
	s.Use(CorsMiddleware)
	setupRoutes(s)
	return s
}

// InitHandlers wires the handler packages without building a server.
// Used by tests in combination with NewTestServer.
func InitHandlers(tree *models.Tree, engine *syncer.Engine) {
	api.Init(tree, engine)
	pages.Init(tree, engine)
}

// Run starts the server.
func Run(s *rweb.Server, addr string) error {
	logger.Info("Binder web server starting", "address", addr)
	return s.Run()
}
