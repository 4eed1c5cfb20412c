// The `model`s package only exists to avoid cyclic dependencies between the
// root package, the storage layer and the reporting sinks. Types required by a
// library user such as `TestFunc` are reexported by the roamtech package.
package model

import (
	"context"
	"time"
)

// Mode is the declared execution mode of a test case.
type Mode string

const (
	// ModeRun is used by network tests that talk to an http api.
	ModeRun Mode = "run"
	// ModeInteractive is used by tests that drive a browser.
	ModeInteractive Mode = "interactive"
)

func (m Mode) Valid() bool {
	return m == ModeRun || m == ModeInteractive
}

// Outcome is the categorical result of a single attempt.
type Outcome string

const (
	OutcomePassed   Outcome = "passed"
	OutcomeFailed   Outcome = "failed"
	OutcomeTimedOut Outcome = "timed-out"
	OutcomeSkipped  Outcome = "skipped"
)

type TestFunc func(t TB)

// TestCase is a single independently runnable check. It must not be modified
// once it has been registered with a suite.
type TestCase struct {
	// ID identifies the test within its suite.
	ID string `json:"id"`
	// Mode decides how often a failing test is retried and whether
	// a browser is provided to the test.
	Mode Mode `json:"mode"`
	// Timeout is the hard wall-clock limit of a single attempt.
	Timeout time.Duration `json:"timeout"`
	Func    TestFunc      `json:"-"`
}

// TestSuite is a static definition of a flat list of test cases
// with an optional Setup and Teardown.
type TestSuite struct {
	// Name of the testsuite
	Name     string `json:"name"`
	Setup    func() error
	Teardown func() error
	Tests    []TestCase
}

// ExecutionAttempt is one concrete execution of a test case. It is never
// modified after it has been appended to a Result.
type ExecutionAttempt struct {
	TestID string `json:"testId"`
	// Attempt is the 1-based attempt counter.
	Attempt int       `json:"attempt"`
	Start   time.Time `json:"start"`
	End     time.Time `json:"end"`
	Outcome Outcome   `json:"outcome"`
	// ErrorDetail is a human readable description of why the attempt did not pass.
	ErrorDetail string `json:"errorDetail,omitempty"`
	// Logs contains log messages written by the test itself.
	Logs string `json:"logs,omitempty"`
}

func (a ExecutionAttempt) Duration() time.Duration {
	return a.End.Sub(a.Start)
}

// Result is the normalized outcome of a test case including all of its attempts
// in chronological order.
type Result struct {
	RunID     string `json:"runId"`
	SuiteName string `json:"suiteName"`
	TestID    string `json:"testId"`
	Mode      Mode   `json:"mode"`
	// Attempts is ordered by attempt number, starting with 1.
	Attempts []ExecutionAttempt `json:"attempts"`
	// FinalOutcome is always the outcome of the last attempt.
	FinalOutcome Outcome       `json:"finalOutcome"`
	Artifacts    []ArtifactRef `json:"artifacts"`
}

func (r Result) LastAttempt() ExecutionAttempt {
	if len(r.Attempts) == 0 {
		return ExecutionAttempt{}
	}

	return r.Attempts[len(r.Attempts)-1]
}

// Flaky is true if the test only passed after being retried.
func (r Result) Flaky() bool {
	return r.FinalOutcome == OutcomePassed && len(r.Attempts) > 1
}

// Duration is the execution time of all attempts summed up.
func (r Result) Duration() time.Duration {
	d := time.Duration(0)

	for _, a := range r.Attempts {
		d += a.Duration()
	}

	return d
}

type ArtifactKind string

const (
	ArtifactScreenshot ArtifactKind = "screenshot"
	ArtifactVideo      ArtifactKind = "video"
	// ArtifactNone marks a capture that had nothing to capture,
	// e.g. for a test without a browser.
	ArtifactNone ArtifactKind = "none"
)

type ArtifactRef struct {
	TestID   string       `json:"testId"`
	Attempt  int          `json:"attempt"`
	Kind     ArtifactKind `json:"kind"`
	Location string       `json:"location,omitempty"`
}

// Summary is the verdict of a suite run.
type Summary struct {
	RunID     string    `json:"runId"`
	SuiteName string    `json:"suiteName"`
	Total     int       `json:"total"`
	Passed    int       `json:"passed"`
	Failed    int       `json:"failed"`
	TimedOut  int       `json:"timedOut"`
	Skipped   int       `json:"skipped"`
	Flaky     int       `json:"flaky"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
}

func (s Summary) Succeeded() bool {
	return s.Failed+s.TimedOut == 0
}

// ExitCode maps the summary to a process exit code. Only
// 0 (success) and 1 (failure) are used.
func (s Summary) ExitCode() int {
	if s.Succeeded() {
		return 0
	}

	return 1
}

// Add counts a final result.
func (s *Summary) Add(r Result) {
	s.Total++

	switch r.FinalOutcome {
	case OutcomePassed:
		s.Passed++
	case OutcomeFailed:
		s.Failed++
	case OutcomeTimedOut:
		s.TimedOut++
	case OutcomeSkipped:
		s.Skipped++
	}

	if r.Flaky() {
		s.Flaky++
	}
}

// SuiteRun is a single (possibly still running) execution of a test suite.
type SuiteRun struct {
	// ID is the identifier of the suite run.
	ID        string `json:"id"`
	SuiteName string `json:"suiteName"`
	// TriggeredBy denotes the origin of the run, e.g. scheduled, cli or via http call.
	TriggeredBy string `json:"triggeredBy"`
	// Running is true until the summary has been computed.
	Running bool `json:"running"`
	// Scheduled is the time when the run was triggered.
	Scheduled time.Time `json:"scheduled"`
	Summary   Summary   `json:"summary"`
	Results   []Result  `json:"results"`
}

// TestContext contains additional test specific information that is collected
// during a test run, e.g. correlation ids.
type TestContext map[string]any

// TB is a carbon copy of the stdlib testing.TB interface + some custom functions. Unfortunately we cannot reuse
// the original testing.TB interface because it deliberately includes the `private()` function
// to prevent others from implementing it.
type TB interface {
	Cleanup(func())
	Error(args ...any)
	Errorf(format string, args ...any)
	Fail()
	FailNow()
	Failed() bool
	Fatal(args ...any)
	Fatalf(format string, args ...any)
	Helper()
	Log(args ...any)
	Logf(format string, args ...any)
	Name() string
	Setenv(key, value string)
	Skip(args ...any)
	SkipNow()
	Skipf(format string, args ...any)
	Skipped() bool
	TempDir() string

	// Context is cancelled when the attempt times out.
	Context() context.Context
	Attempt() int
	HTTP() HTTPClient
	// Browser returns the browser of the current attempt. It is nil
	// for tests that are not interactive.
	Browser() Browser
	Value(key string) any
	SetValue(key string, value any)
}

// SuiteInfo describes a registered suite, it is returned by the http api.
type SuiteInfo struct {
	Name  string     `json:"name"`
	Tests []TestCase `json:"tests"`
}
