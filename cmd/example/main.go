// Command example runs the jsonplaceholder api suite and the academybugs
// browser suite. Pass -s to start the server instead of a single run.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mobarasa/roamtech-cypress"
	"github.com/mobarasa/roamtech-cypress/internal/exitcode"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	s := roamtech.New(
		roamtech.WithTestSuite(JSONPlaceholder()),
		roamtech.WithTestSuite(AcademyBugs()),
		roamtech.WithScheduledRun("jsonplaceholder", "@every 15m"),
	)

	err := s.Run(ctx, os.Args[1:])
	if err != nil {
		slog.Error(err.Error())
	}

	stop()

	os.Exit(exitcode.FromError(err))
}
