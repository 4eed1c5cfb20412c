package roamtech_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mobarasa/roamtech-cypress"
	"github.com/mobarasa/roamtech-cypress/client"
	"github.com/mobarasa/roamtech-cypress/internal/exitcode"
	"github.com/mobarasa/roamtech-cypress/internal/model"
)

const defaultTimeout = 5 * time.Second

func suites() []roamtech.Option {
	return []roamtech.Option{
		roamtech.WithTestSuite(roamtech.TestSuite{
			Name:  "succeed",
			Tests: []roamtech.TestCase{{ID: "success", Func: Success}},
		}),
		roamtech.WithTestSuite(roamtech.TestSuite{
			Name: "needs-retry",
			Tests: []roamtech.TestCase{
				{ID: "retry-once", Func: failTimes(1)},
			},
		}),
		roamtech.WithTestSuite(roamtech.TestSuite{
			Name:  "failing",
			Tests: []roamtech.TestCase{{ID: "fail", Func: Fail}, {ID: "success", Func: Success}},
		}),
		roamtech.WithServerLogger(discardLogger),
	}
}

type acceptance struct {
	server *roamtech.Server
	client client.Client
	errs   chan error
}

func acceptanceTest(t *testing.T, args ...string) *acceptance {
	t.Helper()

	s := roamtech.New(suites()...)

	// random port and in-memory database
	args = append([]string{"-s", "-p", "0", "-d", "", "-reporters", ""}, args...)

	errs := make(chan error, 1)

	go func() {
		errs <- s.Run(context.Background(), args)
	}()

	s.WaitForStartup()

	a := &acceptance{
		server: s,
		client: client.New(fmt.Sprintf("http://localhost:%d", s.ServerPort()), http.DefaultClient),
		errs:   errs,
	}

	t.Cleanup(a.shutdown(t))

	return a
}

func (a *acceptance) shutdown(t *testing.T) func() {
	return func() {
		a.server.Shutdown()

		assert.NoError(t, <-a.errs, "server should shut down without errors")
	}
}

func (a *acceptance) waitForFinishedRun(t *testing.T, suiteName, runID string) client.SuiteRun {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	for {
		run, err := a.client.GetSuiteRun(ctx, suiteName, runID)
		if errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("timed out waiting for suite run %s to finish", runID)
		}

		if err == nil && !run.Running {
			return run
		}

		time.Sleep(20 * time.Millisecond)
	}
}

func TestStartSuiteRunWithUnknownSuiteReturns404(t *testing.T) {
	t.Parallel()

	a := acceptanceTest(t)

	_, err := a.client.CreateSuiteRun(context.Background(), "not-found")

	var reqError client.RequestError
	require.True(t, errors.As(err, &reqError), "expected error of type RequestError but got %T: %v", err, err)
	assert.Equal(t, http.StatusNotFound, reqError.ResponseCode)
}

func TestSuiteWithNoFailingTestsSucceeds(t *testing.T) {
	t.Parallel()

	a := acceptanceTest(t)

	run, err := a.client.CreateSuiteRun(context.Background(), "succeed")
	require.NoError(t, err, "create suite run should not fail")
	assert.Equal(t, "http", run.TriggeredBy)

	run = a.waitForFinishedRun(t, "succeed", run.ID)

	assert.True(t, run.Summary.Succeeded())
	assert.Equal(t, 1, run.Summary.Passed)
	require.Len(t, run.Results, 1)
}

func TestSuiteWithFailingTestFails(t *testing.T) {
	t.Parallel()

	a := acceptanceTest(t)

	run, err := a.client.CreateSuiteRun(context.Background(), "failing")
	require.NoError(t, err)

	run = a.waitForFinishedRun(t, "failing", run.ID)

	assert.False(t, run.Summary.Succeeded())
	assert.Equal(t, 1, run.Summary.Failed)
	assert.Equal(t, 1, run.Summary.Passed)

	r, err := a.client.GetTestResult(context.Background(), "failing", run.ID, "fail")
	require.NoError(t, err)
	assert.Len(t, r.Attempts, 3)
	assert.Equal(t, model.OutcomeFailed, r.FinalOutcome)

	_, err = a.client.GetTestResult(context.Background(), "failing", run.ID, "unknown")
	assert.Error(t, err)
}

func TestSuiteNeedsRetrySucceedsOnTheSecondAttempt(t *testing.T) {
	t.Parallel()

	a := acceptanceTest(t)

	run, err := a.client.CreateSuiteRun(context.Background(), "needs-retry")
	require.NoError(t, err)

	run = a.waitForFinishedRun(t, "needs-retry", run.ID)

	require.Len(t, run.Results, 1)
	assert.Len(t, run.Results[0].Attempts, 2, "expected 2 test attempts")
	assert.Equal(t, 1, run.Summary.Flaky)
}

func TestListSuitesAndRuns(t *testing.T) {
	t.Parallel()

	a := acceptanceTest(t)

	suites, err := a.client.ListSuites(context.Background())
	require.NoError(t, err)
	require.Len(t, suites, 3)
	assert.Equal(t, "succeed", suites[0].Name)
	assert.Equal(t, "success", suites[0].Tests[0].ID)

	first, err := a.client.CreateSuiteRun(context.Background(), "succeed")
	require.NoError(t, err)
	a.waitForFinishedRun(t, "succeed", first.ID)

	second, err := a.client.CreateSuiteRun(context.Background(), "succeed")
	require.NoError(t, err)
	a.waitForFinishedRun(t, "succeed", second.ID)

	runs, err := a.client.ListSuiteRuns(context.Background(), "succeed")
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, second.ID, runs[0].ID, "latest run should be first")
}

func TestScheduledRunIsCreated(t *testing.T) {
	t.Parallel()

	a := acceptanceTest(t, "-c", writeConfig(t, `
schedules:
  - suite: succeed
    cron: "@every 1s"
`))

	require.Eventually(t, func() bool {
		runs, err := a.client.ListSuiteRuns(context.Background(), "succeed")
		return err == nil && len(runs) > 0 && runs[len(runs)-1].TriggeredBy == "scheduled"
	}, defaultTimeout, 50*time.Millisecond)
}

func TestMetricsAreServed(t *testing.T) {
	t.Parallel()

	a := acceptanceTest(t)

	res, err := http.Get(fmt.Sprintf("http://localhost:%d/metrics", a.server.ServerPort()))
	require.NoError(t, err)
	defer res.Body.Close()

	assert.Equal(t, http.StatusOK, res.StatusCode)
}

func TestCLIRunReturnsTestFailure(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer

	s := roamtech.New(append(suites(), roamtech.WithOutput(&out))...)

	err := s.Run(context.Background(), []string{"-d", "", "-reporters", "console", "succeed", "failing"})

	var failure model.TestFailureError
	require.True(t, errors.As(err, &failure), "expected TestFailureError but got %v", err)
	require.Len(t, failure.Suites, 1)
	assert.Equal(t, "failing", failure.Suites[0].SuiteName)
	assert.Equal(t, exitcode.TestFailure, exitcode.FromError(err))

	assert.Contains(t, out.String(), "suite succeed PASSED")
	assert.Contains(t, out.String(), "suite failing FAILED")
}

func TestCLIRunOfPassingSuiteSucceeds(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	s := roamtech.New(suites()...)

	err := s.Run(context.Background(), []string{"-c", writeConfig(t, fmt.Sprintf(`
reporters: [storage, junit, json]
reportDir: %s
storage:
  driver: badger
`, dir)), "succeed"})

	require.NoError(t, err)
	assert.Equal(t, exitcode.Success, exitcode.FromError(err))

	assert.FileExists(t, filepath.Join(dir, "results.ndjson"))

	junit, err := filepath.Glob(filepath.Join(dir, "junit-succeed-*.xml"))
	require.NoError(t, err)
	assert.Len(t, junit, 1)
}

func TestCLIRunWithUnknownSuiteIsAConfigError(t *testing.T) {
	t.Parallel()

	s := roamtech.New(suites()...)

	err := s.Run(context.Background(), []string{"-reporters", "", "does-not-exist"})

	var configErr model.ConfigError
	assert.True(t, errors.As(err, &configErr), "expected ConfigError but got %v", err)
	assert.Equal(t, exitcode.Error, exitcode.FromError(err))
}

func TestDuplicateSuiteNamesAreRejected(t *testing.T) {
	t.Parallel()

	s := roamtech.New(
		roamtech.WithTestSuite(roamtech.TestSuite{Name: "a", Tests: []roamtech.TestCase{{ID: "a", Func: Success}}}),
		roamtech.WithTestSuite(roamtech.TestSuite{Name: "a", Tests: []roamtech.TestCase{{ID: "a", Func: Success}}}),
		roamtech.WithServerLogger(discardLogger),
	)

	err := s.Run(context.Background(), []string{"-reporters", ""})

	var configErr model.ConfigError
	assert.True(t, errors.As(err, &configErr), "expected ConfigError but got %v", err)
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	return path
}
