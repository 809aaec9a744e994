package services

import (
	"context"
	"time"

	"github.com/dmitrijs2005/fooddelivery/internal/dbx"
	"github.com/dmitrijs2005/fooddelivery/internal/logging"
	"github.com/dmitrijs2005/fooddelivery/internal/server/repositories/repomanager"
)

// Janitor periodically deletes refresh records that were revoked or expired
// longer than the retention period ago.
type Janitor struct {
	db          dbx.DBTX
	repomanager repomanager.RepositoryManager
	retention   time.Duration
	interval    time.Duration
	logger      logging.Logger
	now         func() time.Time
}

func NewJanitor(db dbx.DBTX, m repomanager.RepositoryManager, retention, interval time.Duration, logger logging.Logger) *Janitor {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Janitor{
		db:          db,
		repomanager: m,
		retention:   retention,
		interval:    interval,
		logger:      logger.With("module", "services.janitor"),
		now:         time.Now,
	}
}

// Enabled reports whether Run will purge anything.
func (j *Janitor) Enabled() bool {
	return j.retention > 0 && j.interval > 0
}

// PurgeOnce deletes records older than the retention cut-off.
func (j *Janitor) PurgeOnce(ctx context.Context) (int64, error) {
	before := j.now().Add(-j.retention)
	n, err := j.repomanager.RefreshTokens(j.db).Purge(ctx, before)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		j.logger.Info(ctx, "purged refresh tokens", "count", n, "before", before)
	}
	return n, nil
}

// Run purges once per interval until ctx is cancelled. A disabled janitor
// just waits for cancellation. Purge errors are logged and do not stop
// the loop.
func (j *Janitor) Run(ctx context.Context) error {
	if !j.Enabled() {
		j.logger.Info(ctx, "refresh token retention disabled")
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := j.PurgeOnce(ctx); err != nil {
				j.logger.Error(ctx, "purge failed", "error", err)
			}
		}
	}
}
