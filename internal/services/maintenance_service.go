package services

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/bazaarly/kernel/backend/internal/logger"
)

// LimiterSweeper drops idle per-client rate limiters.
type LimiterSweeper interface {
	SweepLimiters(maxIdle time.Duration) int
}

const limiterIdle = 10 * time.Minute

// MaintenanceService runs the kernel's periodic housekeeping: refreshing the schema
// capability cache so a migration applied while running is picked up, and pruning idle
// rate limiters.
type MaintenanceService struct {
	Cron    *cron.Cron
	schema  *SchemaState
	sweeper LimiterSweeper
}

// NewMaintenanceService schedules the jobs without starting the scheduler.
func NewMaintenanceService(schema *SchemaState, sweeper LimiterSweeper) (*MaintenanceService, error) {
	s := &MaintenanceService{Cron: cron.New(), schema: schema, sweeper: sweeper}
	if _, err := s.Cron.AddFunc("@every 1m", s.RefreshSchema); err != nil {
		return nil, fmt.Errorf("schedule schema refresh: %w", err)
	}
	if sweeper != nil {
		if _, err := s.Cron.AddFunc("@every 5m", s.SweepLimiters); err != nil {
			return nil, fmt.Errorf("schedule limiter sweep: %w", err)
		}
	}
	return s, nil
}

// RefreshSchema rechecks the kernel tables and logs any still missing.
func (s *MaintenanceService) RefreshSchema() {
	s.schema.Refresh()
	if missing := s.schema.MissingTables(); len(missing) > 0 {
		logger.Component("maintenance").WithField("tables", missing).Warn("kernel tables missing, run migrations")
	}
}

// SweepLimiters prunes idle rate limiters.
func (s *MaintenanceService) SweepLimiters() {
	if n := s.sweeper.SweepLimiters(limiterIdle); n > 0 {
		logger.Component("maintenance").WithField("removed", n).Debug("swept idle rate limiters")
	}
}

func (s *MaintenanceService) Start() { s.Cron.Start() }

// Stop halts the scheduler and waits for a running job, bounded by ctx.
func (s *MaintenanceService) Stop(ctx context.Context) error {
	select {
	case <-s.Cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
