// SPDX-License-Identifier: AGPL-3.0-only
package retention

import (
	"context"
	"time"

	"github.com/ksr-verse/MCP/internal/logging"
	"github.com/ksr-verse/MCP/internal/model"
	"github.com/robfig/cron/v3"
)

// sweepSchedule runs the prune once a day, shortly after midnight.
const sweepSchedule = "15 0 * * *"

// Sweeper periodically deletes audit records older than the retention window.
type Sweeper struct {
	cron          *cron.Cron
	store         model.AuditStore
	retentionDays int
	logger        *logging.Logger
	now           func() time.Time
}

// NewSweeper creates a sweeper over the given store. A retentionDays of
// zero disables pruning entirely.
func NewSweeper(store model.AuditStore, retentionDays int, logger *logging.Logger) *Sweeper {
	if logger == nil {
		logger = logging.GetDefaultLogger()
	}
	return &Sweeper{
		cron: cron.New(
			cron.WithChain(
				cron.Recover(cron.DefaultLogger),
			),
		),
		store:         store,
		retentionDays: retentionDays,
		logger:        logger,
		now:           time.Now,
	}
}

// Start schedules the daily sweep and runs one immediately so a
// long-stopped instance catches up on startup. It is a no-op when
// retention is disabled or no store is configured.
func (s *Sweeper) Start(ctx context.Context) error {
	if s.store == nil || s.retentionDays <= 0 {
		s.logger.Debugf("Audit retention sweep disabled")
		return nil
	}

	if _, err := s.cron.AddFunc(sweepSchedule, s.sweep); err != nil {
		return err
	}
	s.cron.Start()

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	s.sweep()
	return nil
}

// Stop halts the cron loop. Running sweeps complete before it returns.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Sweeper) sweep() {
	cutoff := s.now().AddDate(0, 0, -s.retentionDays)
	removed, err := s.store.Prune(cutoff)
	if err != nil {
		s.logger.Errorf("Audit retention sweep failed: %v", err)
		return
	}
	if removed > 0 {
		s.logger.Infof("Audit retention sweep removed %d records older than %s", removed, cutoff.Format(time.RFC3339))
	}
}
