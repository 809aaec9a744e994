// Package rest exposes the session service over HTTP+JSON using chi.
package rest

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dmitrijs2005/fooddelivery/internal/logging"
	"github.com/dmitrijs2005/fooddelivery/internal/server/auth"
	"github.com/dmitrijs2005/fooddelivery/internal/server/services"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	requestTimeout  = 10 * time.Second
	shutdownTimeout = 5 * time.Second
	maxBodyBytes    = 1 << 20
)

type HTTPServer struct {
	address  string
	sessions *services.SessionService
	issuer   *auth.Issuer
	logger   logging.Logger
}

func NewHTTPServer(a string, l logging.Logger, sessions *services.SessionService, issuer *auth.Issuer) *HTTPServer {
	return &HTTPServer{
		address:  a,
		logger:   l.With("module", "http_server"),
		sessions: sessions,
		issuer:   issuer,
	}
}

// Router builds the route tree. Protected routes sit behind the Bearer
// authenticator.
func (s *HTTPServer) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))

	r.Get("/health", s.health)

	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/register", s.register)
		r.Post("/login", s.login)
		r.Post("/refresh", s.refresh)

		r.Group(func(r chi.Router) {
			r.Use(s.authenticate)
			r.Get("/me", s.me)
			r.Post("/logout", s.logout)
			r.Post("/users/{userID}/revoke", s.revokeUser)
		})
	})

	return r
}

func (s *HTTPServer) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.address,
		Handler:           otelhttp.NewHandler(s.Router(), "fooddelivery-api"),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(ctx, "HTTP server shutdown", "error", err)
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", s.address)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}
