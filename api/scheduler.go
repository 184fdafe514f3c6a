/*
scheduler.go - Automated commission calculation trigger

PURPOSE:
  Periodically recalculates the current period's commissions for every
  station. The engine itself knows nothing about scheduling: this is an
  ordinary external caller that invokes CalculateCommissions on a cron
  schedule under the system identity.

CONFIGURATION:
  - CronSchedule: standard 5-field cron expression (default nightly)
  - Enabled: whether the trigger is active
*/
package api

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/fuelgrid/commission-engine/commission"
)

// AutoCalcScheduler drives periodic batch calculations.
type AutoCalcScheduler struct {
	Calculator   *commission.Calculator
	CronSchedule string
	Logger       *zap.Logger

	cron *cron.Cron

	// Now is injectable for tests; defaults to time.Now.
	Now func() time.Time
}

func NewAutoCalcScheduler(calc *commission.Calculator, cronSchedule string, logger *zap.Logger) *AutoCalcScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AutoCalcScheduler{
		Calculator:   calc,
		CronSchedule: cronSchedule,
		Logger:       logger,
		cron:         cron.New(),
		Now:          time.Now,
	}
}

// Start registers the cron entry and begins the schedule.
func (s *AutoCalcScheduler) Start() error {
	if _, err := s.cron.AddFunc(s.CronSchedule, s.RunNow); err != nil {
		return err
	}
	s.cron.Start()
	s.Logger.Info("auto-calculation scheduler started",
		zap.String("schedule", s.CronSchedule))
	return nil
}

// Stop stops the schedule; a run in flight completes.
func (s *AutoCalcScheduler) Stop() {
	s.cron.Stop()
	s.Logger.Info("auto-calculation scheduler stopped")
}

// RunNow triggers one immediate calculation of the current period.
func (s *AutoCalcScheduler) RunNow() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	period := commission.PeriodOf(s.Now()).String()
	result, err := s.Calculator.CalculateCommissions(ctx, commission.SystemIdentity, period, nil)
	if err != nil {
		s.Logger.Error("auto-calculation failed", zap.String("period", period), zap.Error(err))
		return
	}

	s.Logger.Info("auto-calculation completed",
		zap.String("period", period),
		zap.Int("completed", len(result.Completed)),
		zap.Int("failed", len(result.Failed)))
}
