package roamtech

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/mobarasa/roamtech-cypress/internal/artifact"
	"github.com/mobarasa/roamtech-cypress/internal/model"
)

// make sure we adhere to the TB interface
var _ model.TB = &T{}

// T is handed to a test function for a single attempt. The test function
// may still be running after the attempt timed out, so all mutable state is
// guarded by mu.
type T struct {
	suiteName string
	testName  string
	attempt   int
	ctx       context.Context
	http      model.HTTPClient
	browser   model.Browser

	mu             sync.Mutex
	logs           strings.Builder
	errors         []string
	result         model.Outcome
	runtimeContext model.TestContext
	cleanupFuncs   []func()
	tempDir        string
}

func (t *T) Cleanup(c func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.cleanupFuncs = append(t.cleanupFuncs, c)
}

func (t *T) Error(args ...any) {
	t.addError(fmt.Sprint(args...))
	t.Fail()
}

func (t *T) Errorf(format string, args ...any) {
	t.addError(fmt.Sprintf(format, args...))
	t.Fail()
}

func (t *T) Fail() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.result = model.OutcomeFailed
}

func (t *T) FailNow() {
	t.Fail()
	panic(failTestErr{})
}

func (t *T) Failed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.result == model.OutcomeFailed
}

func (t *T) Fatal(args ...any) {
	t.Error(args...)
	panic(failTestErr{})
}

func (t *T) Fatalf(format string, args ...any) {
	t.Errorf(format, args...)
	panic(failTestErr{})
}

func (t *T) Helper() {}

func (t *T) Log(args ...any) {
	t.log(fmt.Sprint(args...))
}

func (t *T) Logf(format string, args ...any) {
	t.log(fmt.Sprintf(format, args...))
}

func (t *T) Name() string {
	return t.testName
}

// Setenv is a noop, tests of a suite may run in parallel and must not
// modify the process environment.
func (t *T) Setenv(key, value string) {
}

func (t *T) Skip(args ...any) {
	t.Log(args...)
	t.SkipNow()
}

// SkipNow stops the test. A test that already failed stays failed.
func (t *T) SkipNow() {
	t.mu.Lock()
	if t.result != model.OutcomeFailed {
		t.result = model.OutcomeSkipped
	}
	t.mu.Unlock()

	panic(skipTestErr{})
}

func (t *T) Skipf(format string, args ...any) {
	t.Logf(format, args...)
	t.SkipNow()
}

func (t *T) Skipped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.result == model.OutcomeSkipped
}

// TempDir returns a directory that is removed once the attempt is finished.
func (t *T) TempDir() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.tempDir != "" {
		return t.tempDir
	}

	dir, err := os.MkdirTemp("", fmt.Sprintf("roamtech-%s-%d-", artifact.SanitizeName(t.testName), t.attempt))
	if err != nil {
		panic(fmt.Sprintf("creating temp dir: %v", err))
	}

	t.tempDir = dir
	t.cleanupFuncs = append(t.cleanupFuncs, func() { os.RemoveAll(dir) })

	return dir
}

/* roamtech specific functions that are not part of the testing.TB interface */
/* ------------------------------------------------------------------------- */

func (t *T) Context() context.Context {
	return t.ctx
}

func (t *T) Attempt() int {
	return t.attempt
}

func (t *T) HTTP() model.HTTPClient {
	return t.http
}

func (t *T) Browser() model.Browser {
	return t.browser
}

func (t *T) Value(key string) any {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.runtimeContext[key]
}

func (t *T) SetValue(key string, value any) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.runtimeContext[key] = value
}

func (t *T) Result() model.Outcome {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.result == "" {
		return model.OutcomePassed
	}

	return t.result
}

func (t *T) log(msg string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.logs.WriteString(msg + "\n")
}

func (t *T) addError(msg string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.errors = append(t.errors, msg)
	t.logs.WriteString(msg + "\n")
}

// recovered converts a recovered panic value into the outcome of the attempt.
// Panics that do not originate from T fail the test.
func (t *T) recovered(r any) {
	if r == nil {
		return
	}

	switch r.(type) {
	case failTestErr, skipTestErr:
		return
	}

	t.addError(fmt.Sprintf("panic: %v", r))

	t.mu.Lock()
	t.result = model.OutcomeFailed
	t.mu.Unlock()
}

func (t *T) errorDetail() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch t.result {
	case model.OutcomeFailed:
		if len(t.errors) == 0 {
			return "test failed"
		}
		return strings.Join(t.errors, "\n")
	case model.OutcomeSkipped:
		return strings.TrimSpace(t.logs.String())
	}

	return ""
}

func (t *T) Logs() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.logs.String()
}

// runCleanup runs all cleanup functions in last added, first called order.
func (t *T) runCleanup(log *slog.Logger) {
	t.mu.Lock()
	funcs := t.cleanupFuncs
	t.cleanupFuncs = nil
	t.mu.Unlock()

	for i := len(funcs) - 1; i >= 0; i-- {
		func() {
			defer func() {
				if err := recover(); err != nil {
					log.Warn("cleanup func panic'd", "error", err, "suite-name", t.suiteName, "test-id", t.testName)
				}
			}()

			funcs[i]()
		}()
	}
}

// skipTestErr is passed to panic() to signal
// that a test was skipped.
type skipTestErr struct{}

// failTestErr is passed to panic() to signal
// that a test has failed.
type failTestErr struct{}
