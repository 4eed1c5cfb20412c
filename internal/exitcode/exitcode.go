// Package exitcode maps the outcome of a run to the process exit code.
package exitcode

import (
	"errors"

	"github.com/mobarasa/roamtech-cypress/internal/model"
)

const (
	Success = 0
	// TestFailure is used when at least one test failed or timed out.
	TestFailure = 1
	// Error is used for configuration and runtime errors that prevented
	// the suites from being run.
	Error = 2
)

func FromError(err error) int {
	if err == nil {
		return Success
	}

	var testFailure model.TestFailureError
	if errors.As(err, &testFailure) {
		return TestFailure
	}

	return Error
}
