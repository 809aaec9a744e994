package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/dmitrijs2005/fooddelivery/internal/client/api"
	"github.com/dmitrijs2005/fooddelivery/internal/client/config"
	"github.com/dmitrijs2005/fooddelivery/internal/client/credentials"
	"github.com/dmitrijs2005/fooddelivery/internal/client/session"
	"github.com/dmitrijs2005/fooddelivery/internal/client/storage"
	"github.com/dmitrijs2005/fooddelivery/internal/common"
	"github.com/dmitrijs2005/fooddelivery/internal/logging"
)

type App struct {
	config  *config.Config
	session *session.Session
	logger  logging.Logger
	reader  *bufio.Reader
	out     io.Writer
	close   func() error
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.New(os.Stderr, "text", c.LogLevel)

	db, err := storage.InitDatabase(ctx, c.StateDSN)
	if err != nil {
		return nil, fmt.Errorf("error initializing database: %w", err)
	}

	client := api.New(c.ServerURL, c.RequestTimeout)
	s := session.New(client, credentials.NewCache(credentials.NewSQLiteStore(db)), session.Config{
		CheckInterval:  c.CheckInterval,
		RenewalMargin:  c.RenewalMargin,
		RefreshTimeout: c.RefreshTimeout,
	}, logger)

	return &App{
		config:  c,
		session: s,
		logger:  logger,
		reader:  bufio.NewReader(os.Stdin),
		out:     &syncWriter{w: os.Stdout},
		close:   db.Close,
	}, nil
}

// Run resumes a saved session if there is one and serves the REPL until
// the user leaves. The session's credentials are kept for the next run.
func (a *App) Run(ctx context.Context) {
	defer func() {
		a.session.Close()
		if err := a.close(); err != nil {
			a.logger.Error(ctx, "error closing database", "error", err)
		}
	}()

	fmt.Fprintln(a.out, "Food delivery client (type 'help' for commands)")

	if err := a.session.Resume(ctx); err == nil {
		fmt.Fprintf(a.out, "Welcome back, %s\n", a.session.Current().User.Email)
	} else if !errors.Is(err, common.ErrNotLoggedIn) {
		a.logger.Warn(ctx, "could not resume session", "error", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go a.watchTermination(ctx)

	runREPL(ctx, a, a.getStatus, bufio.NewScanner(a.reader))
}

// watchTermination tells the user when a failed renewal has ended the session.
func (a *App) watchTermination(ctx context.Context) {
	for {
		select {
		case err := <-a.session.Terminated():
			fmt.Fprintf(a.out, "\nSession ended: %v\n", err)
		case <-ctx.Done():
			return
		}
	}
}

func (a *App) isLoggedIn() bool {
	return a.session.LoggedIn()
}

func (a *App) getStatus() string {
	if !a.isLoggedIn() {
		return ""
	}
	return fmt.Sprintf("(%s)", a.session.Current().User.Email)
}

// syncWriter lets the termination watcher print while the REPL runs.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}
