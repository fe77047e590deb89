package syncer

import (
	"fmt"

	"github.com/robfig/cron/v3"
)

// CronRunner runs registered jobs on a standard five-field cron schedule.
type CronRunner struct {
	cron *cron.Cron
}

func NewCronRunner() *CronRunner {
	return &CronRunner{cron: cron.New()}
}

// Validate reports whether expr is a well-formed five-field cron expression.
func (r *CronRunner) Validate(expr string) error {
	if _, err := cron.ParseStandard(expr); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return nil
}

// Schedule registers fn on the given expression and starts the runner.
func (r *CronRunner) Schedule(expr string, fn func()) error {
	if _, err := r.cron.AddFunc(expr, fn); err != nil {
		return fmt.Errorf("schedule cron job: %w", err)
	}
	r.cron.Start()
	return nil
}

// Stop halts the runner. Jobs already executing run to completion.
func (r *CronRunner) Stop() {
	r.cron.Stop()
}
