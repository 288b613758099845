package scheduler

import (
	"context"
	"fmt"

	"github.com/MrSnakeDoc/warden/internal/logger"
	"github.com/robfig/cron/v3"
)

var specParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ValidateSpec reports whether spec is a five-field cron line or a
// descriptor such as "@every 30m".
func ValidateSpec(spec string) error {
	if _, err := specParser.Parse(spec); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	return nil
}

// Start registers RunOnce on spec. Triggers that land while a pass is active
// are dropped by the run lock.
func (s *Scheduler) Start(ctx context.Context, spec string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return fmt.Errorf("scheduler already started")
	}

	c := cron.New(cron.WithParser(specParser))
	if _, err := c.AddFunc(spec, func() {
		if _, ok := s.RunOnce(ctx); !ok {
			logger.Warn("scheduler: scheduled run dropped, previous pass still active")
		}
	}); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	c.Start()
	s.cron = c

	next := c.Entries()[0].Next
	logger.Info("scheduler: maintenance scheduled %q, next run at %s", spec, next.Format("2006-01-02 15:04:05"))
	return nil
}

// Stop halts the schedule and waits for an in-flight scheduled run.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	<-c.Stop().Done()
}
