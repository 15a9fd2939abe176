// Package schedsvc runs the periodic jobs of the application.
package schedsvc

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"

	"github.com/halldesk/halldesk/core"
	"github.com/halldesk/halldesk/core/rollover"
	"github.com/halldesk/halldesk/core/user"
)

const jobTimeout = 10 * time.Minute

// Roller moves every active booking to the next month.
type Roller interface {
	ResetAllToNextMonth(ctx context.Context, sess user.Session, now time.Time, resetAttendance bool) (rollover.BatchResult, error)
}

type Scheduler struct {
	cron    *cron.Cron
	roller  Roller
	conf    *core.Config
	logger  core.Logger
	nowFunc func() time.Time
}

func New(roller Roller, conf *core.Config, logger core.Logger) *Scheduler {
	return &Scheduler{
		cron:    cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger))),
		roller:  roller,
		conf:    conf,
		logger:  logger,
		nowFunc: core.NowFunc,
	}
}

// Start registers the jobs and starts the cron. It is a no-op when the scheduler is disabled.
func (s *Scheduler) Start() error {
	if !s.conf.Scheduler.Enabled {
		return nil
	}
	if _, err := s.cron.AddFunc(s.conf.Scheduler.RolloverSpec, func() { _, _ = s.RunRollover() }); err != nil {
		return errors.Wrapf(err, "scheduling rollover %q", s.conf.Scheduler.RolloverSpec)
	}
	s.cron.Start()
	s.logger.Info(fmt.Sprintf("scheduler started: rollover at %q", s.conf.Scheduler.RolloverSpec))
	return nil
}

// Stop stops the cron and waits for running jobs until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
		s.logger.Warn("scheduler: stopped before jobs completed")
	}
}

// RunRollover resets all active bookings to the next month on behalf of the system.
func (s *Scheduler) RunRollover() (rollover.BatchResult, error) {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	res, err := s.roller.ResetAllToNextMonth(ctx, user.SystemSession(), s.nowFunc(), s.conf.Scheduler.ResetAttendance)
	if err != nil {
		s.logger.Error("scheduled rollover failed", err)
		return res, err
	}

	msg := fmt.Sprintf("scheduled rollover to %d-%02d: %d bookings processed, %d registrations created, %d skipped",
		res.Year, res.Month, res.Processed, res.Created, res.Skipped)
	if len(res.Errors) > 0 {
		s.logger.Warn(msg, map[string]interface{}{"errors": res.Errors})
	} else {
		s.logger.Info(msg)
	}
	return res, nil
}
