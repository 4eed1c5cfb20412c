package model

import (
	"fmt"
	"strings"
)

type NotFoundError struct{}

func (e NotFoundError) Error() string {
	return "not found"
}

type DuplicateError struct{}

func (e DuplicateError) Error() string {
	return "duplicate entry"
}

// ConfigError is returned for malformed suite or retry configuration. It
// prevents a suite from being run at all.
type ConfigError struct {
	Field  string
	Reason string
}

func (e ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration %q: %s", e.Field, e.Reason)
}

// ElementNotFoundError is returned by Browser.Locate when no element
// matches the selector.
type ElementNotFoundError struct {
	Selector string
}

func (e ElementNotFoundError) Error() string {
	return fmt.Sprintf("element %q not found", e.Selector)
}

// TestFailureError is returned by a cli run when at least one test
// of a suite failed or timed out.
type TestFailureError struct {
	Suites []Summary
}

func (e TestFailureError) Error() string {
	names := make([]string, 0, len(e.Suites))
	for _, s := range e.Suites {
		names = append(names, s.SuiteName)
	}

	return fmt.Sprintf("test suites failed: %s", strings.Join(names, ", "))
}
