package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/mikepea/smartmark/pkg/smartmark/apikeys"
	"github.com/mikepea/smartmark/pkg/smartmark/auth"
	"github.com/mikepea/smartmark/pkg/smartmark/bookmarks"
	"github.com/mikepea/smartmark/pkg/smartmark/importexport"
	"github.com/mikepea/smartmark/pkg/smartmark/logger"
	"github.com/mikepea/smartmark/pkg/smartmark/oidc"
	"github.com/mikepea/smartmark/pkg/smartmark/store"
)

// Deps are the collaborators the HTTP routes are built from.
type Deps struct {
	DB        *gorm.DB
	Store     *store.Store
	Logger    logger.Logger
	BaseURL   string
	Heartbeat time.Duration
}

// NewRouter builds the gin engine with every route registered.
func NewRouter(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestID())
	r.Use(Log(d.Logger))

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
		})
	})

	oidcHandler := oidc.NewHandler(d.DB, d.BaseURL, d.Logger)
	r.GET(oidc.ErrorPath, oidcHandler.AuthCodeError)

	api := r.Group("/api")
	{
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{
				"status":  "ok",
				"service": "smartmark",
			})
		})

		// Combined auth middleware (accepts JWT or API key)
		combinedAuth := apikeys.CombinedAuthMiddleware(d.DB, d.Logger)

		authHandler := auth.NewHandler(d.DB)
		authHandler.RegisterRoutes(api.Group("/auth"), combinedAuth)

		oidcHandler.RegisterRoutes(api.Group("/oidc"))

		// API keys routes (JWT only - need to be logged in to manage keys)
		apiKeysHandler := apikeys.NewHandler(d.DB, d.Logger)
		apiKeysHandler.RegisterRoutes(api.Group("", auth.AuthMiddleware()))

		protected := api.Group("", combinedAuth)

		bookmarksHandler := bookmarks.NewHandler(d.Store, d.Heartbeat, d.Logger)
		bookmarksHandler.RegisterRoutes(protected)

		importExportHandler := importexport.NewHandler(d.Store)
		importExportHandler.RegisterRoutes(protected)
	}

	return r
}

// Server wraps the HTTP server.
type Server struct {
	http   *http.Server
	logger logger.Logger
}

// New builds the HTTP server around handler.
func New(addr string, handler http.Handler, log logger.Logger) *Server {
	s := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// No write timeout: the change feed is a long-lived response.
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}
	return &Server{http: s, logger: log}
}

// Start runs the HTTP server (blocks until error or shutdown).
func (s *Server) Start() error {
	s.logger.Infof("HTTP server listening on %s", s.http.Addr)
	return ignoreClosed(s.http.ListenAndServe())
}

// Serve is Start on an existing listener.
func (s *Server) Serve(l net.Listener) error {
	s.logger.Infof("HTTP server listening on %s", l.Addr())
	return ignoreClosed(s.http.Serve(l))
}

// Stop gracefully shuts down the server with the provided context deadline.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("HTTP server shutting down...")
	return s.http.Shutdown(ctx)
}

// http.ErrServerClosed is expected on graceful shutdown.
func ignoreClosed(err error) error {
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
