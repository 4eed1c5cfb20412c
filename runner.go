package roamtech

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sync"
	"time"

	"github.com/mobarasa/roamtech-cypress/internal/artifact"
	"github.com/mobarasa/roamtech-cypress/internal/config"
	"github.com/mobarasa/roamtech-cypress/internal/httpclient"
	"github.com/mobarasa/roamtech-cypress/internal/metric"
	"github.com/mobarasa/roamtech-cypress/internal/model"
)

// captureTimeout limits how long a single artifact capture may take.
const captureTimeout = 30 * time.Second

// Runner executes test suites. It applies timeouts, retries failed tests,
// captures artifacts and publishes every result to the Aggregator.
type Runner struct {
	config   config.Config
	policy   model.RetryPolicy
	filter   *regexp.Regexp
	capturer artifact.Capturer
	http     model.HTTPClient
	browsers model.BrowserFactory
	report   *Aggregator

	log *slog.Logger
}

type RunnerOption func(r *Runner)

func WithCapturer(c artifact.Capturer) RunnerOption {
	return func(r *Runner) {
		r.capturer = c
	}
}

func WithHTTPClient(c model.HTTPClient) RunnerOption {
	return func(r *Runner) {
		r.http = c
	}
}

// WithBrowserFactory sets the factory used to create a new browser for
// every attempt of an interactive test.
func WithBrowserFactory(f model.BrowserFactory) RunnerOption {
	return func(r *Runner) {
		r.browsers = f
	}
}

func WithLogger(log *slog.Logger) RunnerOption {
	return func(r *Runner) {
		r.log = log
	}
}

// NewRunner creates a runner from a validated configuration.
func NewRunner(c config.Config, report *Aggregator, opts ...RunnerOption) *Runner {
	r := &Runner{
		config: c,
		policy: c.RetryPolicy(),
		filter: c.FilterRegex(),
		report: report,
		log:    slog.Default(),
	}

	for _, o := range opts {
		o(r)
	}

	if r.capturer == nil {
		r.capturer = artifact.NewFileCapturer(c.Artifacts.Dir, r.log)
	}
	if r.http == nil {
		r.http = httpclient.New(c.BaseURL, c.Timeouts.Request, nil)
	}

	return r
}

// PrepareSuite validates a suite and fills in the default timeouts. The returned
// suite must not be modified anymore.
func (r *Runner) PrepareSuite(suite model.TestSuite) (model.TestSuite, error) {
	if suite.Name == "" {
		return model.TestSuite{}, model.ConfigError{Field: "suite.name", Reason: "must not be empty"}
	}

	prepared := suite
	prepared.Tests = make([]model.TestCase, 0, len(suite.Tests))

	ids := map[string]bool{}

	for _, tc := range suite.Tests {
		field := fmt.Sprintf("suite %q test %q", suite.Name, tc.ID)

		if tc.ID == "" {
			return model.TestSuite{}, model.ConfigError{Field: fmt.Sprintf("suite %q", suite.Name), Reason: "test id must not be empty"}
		}
		if ids[tc.ID] {
			return model.TestSuite{}, model.ConfigError{Field: field, Reason: "duplicate test id"}
		}
		ids[tc.ID] = true

		if tc.Mode == "" {
			tc.Mode = model.ModeRun
		}
		if !tc.Mode.Valid() {
			return model.TestSuite{}, model.ConfigError{Field: field, Reason: fmt.Sprintf("unknown mode %q", tc.Mode)}
		}
		if tc.Timeout < 0 {
			return model.TestSuite{}, model.ConfigError{Field: field, Reason: "timeout must be greater than 0"}
		}
		if tc.Timeout == 0 {
			tc.Timeout = r.config.TimeoutFor(tc.Mode)
		}
		if tc.Func == nil {
			return model.TestSuite{}, model.ConfigError{Field: field, Reason: "test function is missing"}
		}

		prepared.Tests = append(prepared.Tests, tc)
	}

	return prepared, nil
}

// RunSuite executes all tests of a prepared suite and returns the summary and
// the results in declaration order. A failing test never aborts the run.
func (r *Runner) RunSuite(ctx context.Context, suite model.TestSuite, runID string) (model.Summary, []model.Result) {
	log := r.log.With("suite-name", suite.Name, "run-id", runID)

	start := time.Now()

	suitesRunning := metric.SuitesRunning.WithLabelValues(suite.Name)
	suitesRunning.Inc()
	defer suitesRunning.Dec()

	results := make([]model.Result, len(suite.Tests))

	if err := safeCall(suite.Setup); err != nil {
		log.Warn("setup of suite failed", "error", err)

		for i, tc := range suite.Tests {
			results[i] = r.notExecuted(suite, runID, tc, model.OutcomeFailed, fmt.Sprintf("suite setup failed: %v", err))
			r.publish(log, results[i])
		}
	} else {
		r.runTests(ctx, log, suite, runID, results)

		if err := safeCall(suite.Teardown); err != nil {
			log.Warn("teardown of suite failed", "error", err)
		}
	}

	summary, err := r.report.Complete(runID, suite.Name, start, time.Now())
	if err != nil {
		log.Warn("suite completion was not reported to all sinks", "error", err)
	}

	log.Info("suite run finished",
		"total", summary.Total,
		"passed", summary.Passed,
		"failed", summary.Failed,
		"timed-out", summary.TimedOut,
		"skipped", summary.Skipped,
	)

	return summary, results
}

// runTests distributes the tests over a bounded number of workers. With a single
// worker results are published in declaration order.
func (r *Runner) runTests(ctx context.Context, log *slog.Logger, suite model.TestSuite, runID string, results []model.Result) {
	workers := r.config.Concurrency
	if workers > len(suite.Tests) {
		workers = len(suite.Tests)
	}

	jobs := make(chan int)

	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for i := range jobs {
				results[i] = r.runTest(ctx, log, suite, runID, suite.Tests[i])
				r.publish(log, results[i])
			}
		}()
	}

	for i := range suite.Tests {
		jobs <- i
	}

	close(jobs)

	wg.Wait()
}

func (r *Runner) publish(log *slog.Logger, result model.Result) {
	if err := r.report.Publish(result); err != nil {
		log.Debug("result was not delivered to all sinks", "test-id", result.TestID, "error", err)
	}
}

// runTest runs a test until it passes or the retry policy gives up. Attempts of
// the same test are always sequential.
func (r *Runner) runTest(ctx context.Context, log *slog.Logger, suite model.TestSuite, runID string, tc model.TestCase) model.Result {
	if r.filter != nil && !r.filter.MatchString(tc.ID) {
		return r.notExecuted(suite, runID, tc, model.OutcomeSkipped, "filtered")
	}
	if ctx.Err() != nil {
		return r.notExecuted(suite, runID, tc, model.OutcomeSkipped, "suite run cancelled")
	}

	result := model.Result{
		RunID:     runID,
		SuiteName: suite.Name,
		TestID:    tc.ID,
		Mode:      tc.Mode,
		Attempts:  []model.ExecutionAttempt{},
		Artifacts: []model.ArtifactRef{},
	}

	for attempt := 1; ; attempt++ {
		attemptLog := log.With("test-id", tc.ID, "attempt", attempt)

		a, browser := r.runAttempt(ctx, attemptLog, suite, tc, attempt)

		result.Attempts = append(result.Attempts, a)

		if a.Outcome != model.OutcomePassed || r.config.Artifacts.Always {
			result.Artifacts = append(result.Artifacts, r.captureArtifacts(ctx, attemptLog, tc.ID, attempt, browser)...)
		}

		if browser != nil {
			if err := browser.Close(); err != nil {
				attemptLog.Warn("closing browser failed", "error", err)
			}
		}

		if a.Outcome != model.OutcomePassed {
			attemptLog.Info("test attempt did not pass", "outcome", a.Outcome, "error", a.ErrorDetail)
		}

		if !r.policy.ShouldRetry(tc.Mode, attempt, a.Outcome) || ctx.Err() != nil {
			break
		}
	}

	result.FinalOutcome = result.LastAttempt().Outcome

	return result
}

// runAttempt executes a single attempt with a hard timeout. The returned browser
// is still open so that artifacts can be captured, the caller must close it.
func (r *Runner) runAttempt(ctx context.Context, log *slog.Logger, suite model.TestSuite, tc model.TestCase, attempt int) (model.ExecutionAttempt, model.Browser) {
	attemptCtx, cancel := context.WithTimeout(ctx, tc.Timeout)
	defer cancel()

	start := time.Now()

	a := model.ExecutionAttempt{
		TestID:  tc.ID,
		Attempt: attempt,
		Start:   start,
	}

	var browser model.Browser

	if tc.Mode == model.ModeInteractive && r.browsers != nil {
		b, err := r.browsers(attemptCtx)
		if err != nil {
			a.End = time.Now()
			a.Outcome = model.OutcomeFailed
			a.ErrorDetail = fmt.Sprintf("creating browser: %v", err)
			return a, nil
		}
		browser = b
	}

	t := &T{
		suiteName:      suite.Name,
		testName:       tc.ID,
		attempt:        attempt,
		ctx:            attemptCtx,
		http:           r.http,
		browser:        browser,
		runtimeContext: model.TestContext{},
	}

	done := make(chan struct{})

	go func() {
		defer close(done)
		defer t.runCleanup(log)
		defer func() {
			t.recovered(recover())
		}()

		tc.Func(t)
	}()

	select {
	case <-done:
	case <-attemptCtx.Done():
	}

	a.End = time.Now()
	a.Logs = t.Logs()

	// An ended context takes precedence over the outcome reported by the test,
	// a still running test function is abandoned.
	switch err := attemptCtx.Err(); {
	case errors.Is(err, context.DeadlineExceeded):
		a.Outcome = model.OutcomeTimedOut
		a.ErrorDetail = fmt.Sprintf("timed out after %s", tc.Timeout)
	case err != nil:
		a.Outcome = model.OutcomeSkipped
		a.ErrorDetail = "suite run cancelled"
	default:
		a.Outcome = t.Result()
		a.ErrorDetail = t.errorDetail()
	}

	return a, browser
}

// captureArtifacts never fails, capture errors are only logged.
func (r *Runner) captureArtifacts(ctx context.Context, log *slog.Logger, testID string, attempt int, browser model.Browser) []model.ArtifactRef {
	kinds := []model.ArtifactKind{}
	if r.config.Artifacts.Screenshots {
		kinds = append(kinds, model.ArtifactScreenshot)
	}
	if r.config.Artifacts.Video {
		kinds = append(kinds, model.ArtifactVideo)
	}

	refs := []model.ArtifactRef{}

	var source any
	if browser != nil {
		source = browser
	}

	for _, kind := range kinds {
		ref, err := r.safeCapture(ctx, testID, attempt, kind, source)
		if err != nil {
			log.Warn("capturing artifact failed", "kind", kind, "error", err)
			continue
		}

		if ref.Kind != model.ArtifactNone {
			refs = append(refs, ref)
		}
	}

	return refs
}

func (r *Runner) safeCapture(ctx context.Context, testID string, attempt int, kind model.ArtifactKind, source any) (ref model.ArtifactRef, err error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), captureTimeout)
	defer cancel()

	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("capturer panic'd: %v", p)
		}
	}()

	return r.capturer.Capture(ctx, testID, attempt, kind, source)
}

// notExecuted creates the result of a test that was never run.
func (r *Runner) notExecuted(suite model.TestSuite, runID string, tc model.TestCase, outcome model.Outcome, detail string) model.Result {
	now := time.Now()

	return model.Result{
		RunID:     runID,
		SuiteName: suite.Name,
		TestID:    tc.ID,
		Mode:      tc.Mode,
		Attempts: []model.ExecutionAttempt{{
			TestID:      tc.ID,
			Attempt:     1,
			Start:       now,
			End:         now,
			Outcome:     outcome,
			ErrorDetail: detail,
		}},
		FinalOutcome: outcome,
		Artifacts:    []model.ArtifactRef{},
	}
}

// safeCall runs a suite setup or teardown function and converts panics into errors.
func safeCall(f func() error) (err error) {
	if f == nil {
		return nil
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%v", r)
		}
	}()

	return f()
}
