// Package scheduler runs the nightly maintenance job: a timestamped backup
// snapshot of both persisted collections plus a store health log line.
package scheduler

import (
	"log/slog"

	"github.com/robfig/cron/v3"

	"promptcanvas/internal/store"
)

type Scheduler struct {
	store  *store.Store
	logger *slog.Logger
	c      *cron.Cron
}

func NewScheduler(st *store.Store, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		store:  st,
		logger: logger.With("component", "scheduler"),
		c:      cron.New(),
	}
}

// Start registers the daily job and launches the cron loop.
func (s *Scheduler) Start() error {
	if _, err := s.c.AddFunc("@daily", s.runDaily); err != nil {
		return err
	}
	s.c.Start()
	return nil
}

func (s *Scheduler) runDaily() {
	s.logger.Info("running nightly snapshot")
	s.store.Snapshot()
	stats := s.store.Stats()
	s.logger.Info("store health",
		"total_artifacts", stats.TotalArtifacts,
		"total_events", stats.TotalEvents,
		"unique_owners", stats.UniqueOwners,
		"healthy", stats.Healthy,
	)
}

func (s *Scheduler) Stop() {
	s.c.Stop()
}
