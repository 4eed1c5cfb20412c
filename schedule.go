package roamtech

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

type ScheduledRun struct {
	// SuiteName is the name of the test suite to be run.
	SuiteName string
	// Schedule defines how often a run is scheduled. For the format see
	// https://pkg.go.dev/github.com/robfig/cron#hdr-CRON_Expression_Format
	Schedule string
	// EntryID identifies the cronjob
	EntryID cron.EntryID
}

func (s *Server) startSchedules() error {
	s.cron = cron.New(cron.WithSeconds())

	for i := range s.schedules {
		schedule := s.schedules[i]

		suite, ok := s.suites[schedule.SuiteName]
		if !ok {
			return fmt.Errorf("starting scheduled suite run: suite %q not found", schedule.SuiteName)
		}

		entryID, err := s.cron.AddFunc(schedule.Schedule, func() {
			if _, err := s.startRun(suite, "scheduled"); err != nil {
				s.log.Error("starting scheduled suite run failed", "suite-name", suite.Name, "error", err)
			}
		})
		if err != nil {
			return fmt.Errorf("adding scheduled suite run %q: %w", schedule.SuiteName, err)
		}

		s.schedules[i].EntryID = entryID

		s.log.Info("scheduled suite run", "suite-name", schedule.SuiteName, "schedule", schedule.Schedule)
	}

	s.cron.Start()

	return nil
}

// stopSchedules waits for running cron jobs to return, suite runs started by
// them are awaited separately.
func (s *Server) stopSchedules(timeout time.Duration) {
	if s.cron == nil {
		return
	}

	select {
	case <-s.cron.Stop().Done():
	case <-time.After(timeout):
		s.log.Warn("timed out waiting for scheduled runs to stop")
	}
}
