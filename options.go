package roamtech

import (
	"io"
	"log/slog"
)

type Option func(s *Server)

func WithTestSuite(suite TestSuite) Option {
	return func(s *Server) {
		s.userSuites = append(s.userSuites, suite)
	}
}

// WithScheduledRun schedules a TestSuite to run at certain intervals.
// Ignored in CLI mode.
func WithScheduledRun(suiteName, schedule string) Option {
	return func(s *Server) {
		s.schedules = append(s.schedules, ScheduledRun{SuiteName: suiteName, Schedule: schedule})
	}
}

// WithSink attaches an additional reporting sink next to the configured ones.
func WithSink(sink Sink) Option {
	return func(s *Server) {
		s.userSinks = append(s.userSinks, sink)
	}
}

// WithRunnerOptions configures the runner, e.g. to provide a browser factory
// for interactive tests.
func WithRunnerOptions(opts ...RunnerOption) Option {
	return func(s *Server) {
		s.runnerOptions = append(s.runnerOptions, opts...)
	}
}

func WithServerLogger(log *slog.Logger) Option {
	return func(s *Server) {
		s.log = log
	}
}

// WithOutput sets the writer of the console reporter, it defaults to stdout.
func WithOutput(w io.Writer) Option {
	return func(s *Server) {
		s.stdout = w
	}
}
