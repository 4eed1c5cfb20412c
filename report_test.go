package roamtech_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mobarasa/roamtech-cypress"
	"github.com/mobarasa/roamtech-cypress/internal/model"
)

type failingSink struct{ recordingSink }

func (s *failingSink) OnResult(r model.Result) error {
	_ = s.recordingSink.OnResult(r)
	return errors.New("disk full")
}

func result(runID, testID string, outcome model.Outcome) model.Result {
	return model.Result{
		RunID:        runID,
		SuiteName:    "suite",
		TestID:       testID,
		Attempts:     []model.ExecutionAttempt{{TestID: testID, Attempt: 1, Outcome: outcome}},
		FinalOutcome: outcome,
	}
}

func TestEverySinkReceivesEveryResultDespiteFaultySinks(t *testing.T) {
	t.Parallel()

	agg := roamtech.NewAggregator(discardLogger)

	first := &recordingSink{name: "first"}
	failing := &failingSink{recordingSink{name: "failing"}}
	last := &recordingSink{name: "last"}

	agg.Attach(first)
	agg.Attach(panickingSink{})
	agg.Attach(failing)
	agg.Attach(last)

	const n = 10

	for i := 0; i < n; i++ {
		err := agg.Publish(result("run", string(rune('a'+i)), model.OutcomePassed))

		var panicErr roamtech.SinkPanicError
		assert.True(t, errors.As(err, &panicErr), "expected SinkPanicError but got %v", err)
		assert.ErrorContains(t, err, "disk full")
	}

	summary, err := agg.Complete("run", "suite", time.Now(), time.Now())
	assert.Error(t, err, "the panicking sink should be reported")

	assert.Len(t, first.Results(), n)
	assert.Len(t, failing.Results(), n)
	assert.Len(t, last.Results(), n)
	require.Len(t, last.Summaries(), 1)
	assert.Equal(t, n, last.Summaries()[0].Total)
	assert.Equal(t, n, summary.Passed)
}

func TestRunnerIsNotAffectedByFaultySinks(t *testing.T) {
	t.Parallel()

	agg := roamtech.NewAggregator(discardLogger)

	sink := &recordingSink{}
	agg.Attach(panickingSink{})
	agg.Attach(sink)

	r := roamtech.NewRunner(testConfig(t), agg, roamtech.WithLogger(discardLogger))

	suite, err := r.PrepareSuite(suiteOf(
		roamtech.TestCase{ID: "a", Func: Success},
		roamtech.TestCase{ID: "b", Func: Fail},
	))
	require.NoError(t, err)

	summary, results := r.RunSuite(context.Background(), suite, "run")

	assert.Len(t, results, 2)
	assert.Len(t, sink.Results(), 2)
	assert.Equal(t, []model.Summary{summary}, sink.Summaries())
}

func TestSummaryCountsEveryTestOnce(t *testing.T) {
	t.Parallel()

	agg := roamtech.NewAggregator(discardLogger)

	require.NoError(t, agg.Publish(result("run", "a", model.OutcomeFailed)))
	require.NoError(t, agg.Publish(result("run", "a", model.OutcomePassed)))
	require.NoError(t, agg.Publish(result("run", "b", model.OutcomeTimedOut)))
	require.NoError(t, agg.Publish(result("other-run", "a", model.OutcomeFailed)))

	summary, err := agg.Complete("run", "suite", time.Now(), time.Now())
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Total)
	assert.Equal(t, 1, summary.Passed)
	assert.Equal(t, 1, summary.TimedOut)
	assert.Equal(t, 0, summary.Failed)
	assert.Equal(t, 1, summary.ExitCode())
}

// concurrencyCheckingSink fails the test if it is called concurrently.
type concurrencyCheckingSink struct {
	t      *testing.T
	active sync.Mutex
	count  int
}

func (s *concurrencyCheckingSink) Name() string { return "concurrency" }

func (s *concurrencyCheckingSink) OnResult(model.Result) error {
	if !s.active.TryLock() {
		s.t.Error("sink was called concurrently")
		return nil
	}
	defer s.active.Unlock()

	time.Sleep(time.Millisecond)
	s.count++

	return nil
}

func (s *concurrencyCheckingSink) OnSuiteComplete(model.Summary) error { return nil }

func TestSinksAreNeverCalledConcurrently(t *testing.T) {
	t.Parallel()

	agg := roamtech.NewAggregator(discardLogger)

	sink := &concurrencyCheckingSink{t: t}
	agg.Attach(sink)

	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)

		go func(i int) {
			defer wg.Done()

			_ = agg.Publish(result("run", string(rune('a'+i)), model.OutcomePassed))
		}(i)
	}

	wg.Wait()

	assert.Equal(t, 20, sink.count)
}
