package server

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/mikepea/smartmark/pkg/smartmark/auth"
	"github.com/mikepea/smartmark/pkg/smartmark/config"
	"github.com/mikepea/smartmark/pkg/smartmark/database"
	"github.com/mikepea/smartmark/pkg/smartmark/feed"
	"github.com/mikepea/smartmark/pkg/smartmark/logger"
	"github.com/mikepea/smartmark/pkg/smartmark/oidc"
	"github.com/mikepea/smartmark/pkg/smartmark/redis"
	"github.com/mikepea/smartmark/pkg/smartmark/store"
)

// App owns every long-lived resource of the server process.
type App struct {
	cfg         *config.Config
	logger      logger.Logger
	db          *gorm.DB
	redisClient *goredis.Client
	broker      feed.Broker
	router      *gin.Engine
	server      *Server
}

// NewApp opens the database, connects the change feed and builds the routes.
func NewApp(ctx context.Context, cfg *config.Config, log logger.Logger) (*App, error) {
	if !cfg.PrettyLog {
		gin.SetMode(gin.ReleaseMode)
	}

	log.Debug("configuration loaded", logger.Any("config", cfg.Redacted()))

	auth.Configure(cfg.JWTSecret, cfg.TokenTTL)
	if cfg.UsesDevSecret() {
		log.Warn("using the development JWT secret; set SMARTMARK_JWT_SECRET in production")
	}

	db, err := database.Open(cfg.DBPath, database.Options{Debug: cfg.LogLevel == "debug"})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	log.Info("database ready", logger.String("path", cfg.DBPath))

	a := &App{cfg: cfg, logger: log, db: db}

	if err := a.connectFeed(ctx); err != nil {
		a.Close()
		return nil, err
	}

	provider, err := oidc.EnsureProvider(db, cfg.OIDC)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to seed OIDC provider: %w", err)
	}
	if provider != nil {
		log.Info("OIDC provider configured",
			logger.String("slug", provider.Slug),
			logger.String("issuer", provider.Issuer))
	}

	a.router = NewRouter(Deps{
		DB:        db,
		Store:     store.New(db, a.broker, log),
		Logger:    log,
		BaseURL:   cfg.BaseURL,
		Heartbeat: cfg.Feed.Heartbeat,
	})
	a.server = New(cfg.ListenAddr, a.router, log)
	return a, nil
}

func (a *App) connectFeed(ctx context.Context) error {
	switch a.cfg.Feed.Backend {
	case config.FeedRedis:
		a.logger.Infof("Connecting to Redis at %s", a.cfg.Redis.Addr)
		client, err := redis.New(ctx, redis.OptionsFromConfig(a.cfg.Redis), a.logger)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		a.redisClient = client
		a.broker = feed.NewRedis(client, a.cfg.Feed.Buffer, a.logger)
	default:
		a.broker = feed.NewMemory(a.cfg.Feed.Buffer, a.logger)
	}
	a.logger.Info("change feed ready", logger.String("backend", a.cfg.Feed.Backend))
	return nil
}

// Router exposes the HTTP handler.
func (a *App) Router() *gin.Engine { return a.router }

// Run serves until SIGINT/SIGTERM or ctx is done, then shuts down.
func (a *App) Run(ctx context.Context) error {
	return a.run(ctx, a.server.Start)
}

// RunListener is Run on an existing listener.
func (a *App) RunListener(ctx context.Context, l net.Listener) error {
	return a.run(ctx, func() error { return a.server.Serve(l) })
}

func (a *App) run(ctx context.Context, serve func() error) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		if err := serve(); err != nil {
			errCh <- fmt.Errorf("http server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("Shutting down gracefully...")
	case err := <-errCh:
		a.Close()
		return err
	}

	// Open event streams end when their feed closes.
	if err := a.broker.Close(); err != nil {
		a.logger.Warn("failed to close change feed", logger.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()
	if err := a.server.Stop(shutdownCtx); err != nil {
		a.Close()
		return fmt.Errorf("failed to stop server: %w", err)
	}

	a.Close()
	a.logger.Info("smartmark stopped cleanly")
	return nil
}

// Close releases the feed, Redis and the database. It is safe to call more
// than once.
func (a *App) Close() {
	if a.broker != nil {
		a.broker.Close()
	}
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Warnf("failed to close redis: %v", err)
		}
		a.redisClient = nil
	}
	if a.db != nil {
		if err := database.Close(a.db); err != nil {
			a.logger.Warnf("failed to close database: %v", err)
		}
		a.db = nil
	}
}
