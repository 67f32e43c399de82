package memory

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler runs Manager.Consolidate on a fixed interval in the
// background on a robfig/cron engine.
type Scheduler struct {
	cron    *cron.Cron
	manager *Manager
	logger  *slog.Logger
}

// NewScheduler builds a Scheduler that consolidates every interval. A
// non-positive interval disables scheduling; callers can still call
// Manager.Consolidate directly on demand.
func NewScheduler(manager *Manager, interval time.Duration, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{
		cron:    cron.New(cron.WithParser(cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor))),
		manager: manager,
		logger:  logger,
	}
	if interval <= 0 {
		return s, nil
	}

	spec := fmt.Sprintf("@every %s", interval)
	_, err := s.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if err := s.manager.Consolidate(ctx); err != nil {
			s.logger.Error("memory: scheduled consolidation failed", "error", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("memory: schedule consolidation: %w", err)
	}
	return s, nil
}

// Start begins running scheduled consolidation in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the scheduler, waiting for any in-flight run to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
