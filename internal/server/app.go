// Package server wires configuration, storage, the session service and the
// HTTP API together and runs them until a shutdown signal arrives.
package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/fooddelivery/internal/logging"
	"github.com/dmitrijs2005/fooddelivery/internal/server/auth"
	"github.com/dmitrijs2005/fooddelivery/internal/server/config"
	"github.com/dmitrijs2005/fooddelivery/internal/server/limiter"
	"github.com/dmitrijs2005/fooddelivery/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/fooddelivery/internal/server/rest"
	"github.com/dmitrijs2005/fooddelivery/internal/server/services"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

type App struct {
	config   *config.Config
	logger   logging.Logger
	backend  *repomanager.Backend
	redis    *redis.Client
	sessions *services.SessionService
	issuer   *auth.Issuer
	janitor  *services.Janitor
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.New(os.Stdout, "json", c.LogLevel)

	backend, err := repomanager.Open(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	app := &App{config: c, logger: logger, backend: backend}

	var lim limiter.LoginLimiter = limiter.Nop{}
	if c.RedisAddr != "" {
		app.redis = redis.NewClient(&redis.Options{Addr: c.RedisAddr})
		lim = limiter.NewRedisLimiter(app.redis, limiter.Config{
			MaxAttempts: c.LoginMaxAttempts,
			Cooldown:    c.LoginCooldown,
		})
	} else {
		logger.Info(ctx, "login throttling disabled: no redis address configured")
	}

	app.issuer = auth.NewIssuer(c.SecretKey, c.AccessTokenValidityDuration, c.RefreshTokenValidityDuration)
	app.sessions = services.NewSessionService(
		backend.DB,
		backend.Transactor,
		backend.Repos,
		app.issuer,
		auth.NewBcryptHasher(c.BcryptCost),
		services.WithLimiter(lim),
		services.WithLogger(logger),
		services.WithMetrics(services.NewMetrics(nil)),
	)
	app.janitor = services.NewJanitor(backend.DB, backend.Repos, c.RevokedRetention, c.CleanupInterval, logger)

	return app, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// Run serves the HTTP API and the retention janitor until ctx is cancelled
// or a shutdown signal arrives. The first component to fail stops the rest.
func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")
	app.initSignalHandler(cancelFunc)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s := rest.NewHTTPServer(app.config.EndpointAddrHTTP, app.logger, app.sessions, app.issuer)
		return s.Run(ctx)
	})

	g.Go(func() error {
		return app.janitor.Run(ctx)
	})

	err := g.Wait()
	app.close(context.Background())
	app.logger.Info(context.Background(), "App stopped")
	return err
}

func (app *App) close(ctx context.Context) {
	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			app.logger.Error(ctx, "redis close", "error", err)
		}
	}
	if err := app.backend.Close(); err != nil {
		app.logger.Error(ctx, "db close", "error", err)
	}
}
