package roamtech_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/mobarasa/roamtech-cypress"
	"github.com/mobarasa/roamtech-cypress/internal/config"
	"github.com/mobarasa/roamtech-cypress/internal/model"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func testConfig(t *testing.T) config.Config {
	t.Helper()

	c := config.Default()
	c.Artifacts.Dir = t.TempDir()
	c.ReportDir = t.TempDir()
	c.Timeouts.Default = 2 * time.Second
	c.Reporters = []string{}

	return c
}

// recordingSink remembers everything it receives.
type recordingSink struct {
	name string

	mu        sync.Mutex
	results   []model.Result
	summaries []model.Summary
}

func (s *recordingSink) Name() string {
	if s.name == "" {
		return "recording"
	}
	return s.name
}

func (s *recordingSink) OnResult(r model.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.results = append(s.results, r)
	return nil
}

func (s *recordingSink) OnSuiteComplete(summary model.Summary) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.summaries = append(s.summaries, summary)
	return nil
}

func (s *recordingSink) Results() []model.Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]model.Result{}, s.results...)
}

func (s *recordingSink) Summaries() []model.Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]model.Summary{}, s.summaries...)
}

// panickingSink panics on every call.
type panickingSink struct{}

func (panickingSink) Name() string                        { return "panicking" }
func (panickingSink) OnResult(model.Result) error         { panic("sink exploded") }
func (panickingSink) OnSuiteComplete(model.Summary) error { panic("sink exploded") }

type capture struct {
	testID  string
	attempt int
	kind    model.ArtifactKind
	source  any
}

type fakeCapturer struct {
	err    error
	panics bool

	mu    sync.Mutex
	calls []capture
}

func (c *fakeCapturer) Capture(ctx context.Context, testID string, attempt int, kind model.ArtifactKind, source any) (model.ArtifactRef, error) {
	c.mu.Lock()
	c.calls = append(c.calls, capture{testID: testID, attempt: attempt, kind: kind, source: source})
	c.mu.Unlock()

	if c.panics {
		panic("capturer exploded")
	}
	if c.err != nil {
		return model.ArtifactRef{}, c.err
	}

	return model.ArtifactRef{TestID: testID, Attempt: attempt, Kind: kind, Location: "mem://" + testID}, nil
}

func (c *fakeCapturer) Calls() []capture {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]capture{}, c.calls...)
}

type fakeElement string

func (e fakeElement) Selector() string { return string(e) }

type fakeBrowser struct {
	closed atomic.Bool
}

func (b *fakeBrowser) Screenshot(ctx context.Context) ([]byte, error) {
	return []byte("png"), nil
}

func (b *fakeBrowser) Visit(ctx context.Context, url string) error {
	return nil
}

func (b *fakeBrowser) Locate(ctx context.Context, selector string) (model.Element, error) {
	if selector == "#missing" {
		return nil, model.ElementNotFoundError{Selector: selector}
	}
	return fakeElement(selector), nil
}

func (b *fakeBrowser) Act(ctx context.Context, el model.Element, action model.Action) error {
	return nil
}

func (b *fakeBrowser) Close() error {
	b.closed.Store(true)
	return nil
}

type runner struct {
	*roamtech.Runner
	sink *recordingSink
}

func newRunner(t *testing.T, c config.Config, opts ...roamtech.RunnerOption) runner {
	t.Helper()

	agg := roamtech.NewAggregator(discardLogger)
	sink := &recordingSink{}
	agg.Attach(sink)

	opts = append([]roamtech.RunnerOption{roamtech.WithLogger(discardLogger)}, opts...)

	return runner{Runner: roamtech.NewRunner(c, agg, opts...), sink: sink}
}

func (r runner) run(t *testing.T, suite roamtech.TestSuite) (model.Summary, []model.Result) {
	t.Helper()

	return r.runWithContext(t, context.Background(), suite)
}

func (r runner) runWithContext(t *testing.T, ctx context.Context, suite roamtech.TestSuite) (model.Summary, []model.Result) {
	t.Helper()

	prepared, err := r.PrepareSuite(suite)
	require.NoError(t, err, "preparing suite should succeed")

	return r.RunSuite(ctx, prepared, uuid.NewString())
}

func suiteOf(tests ...roamtech.TestCase) roamtech.TestSuite {
	return roamtech.TestSuite{Name: "suite", Tests: tests}
}

func outcomes(r model.Result) []model.Outcome {
	o := []model.Outcome{}
	for _, a := range r.Attempts {
		o = append(o, a.Outcome)
	}
	return o
}

// Test functions

func Success(t roamtech.TB) {
	t.Log("success")
}

func Fail(t roamtech.TB) {
	t.Fatal("always fails")
}

func Panic(t roamtech.TB) {
	panic("boom")
}

func Skip(t roamtech.TB) {
	t.Skip("not today")
}

func WaitForTimeout(t roamtech.TB) {
	<-t.Context().Done()
}

// failTimes returns a test that fails the first n attempts.
func failTimes(n int) roamtech.TestFunc {
	return func(t roamtech.TB) {
		if t.Attempt() <= n {
			t.Fatalf("attempt %d fails", t.Attempt())
		}
	}
}
