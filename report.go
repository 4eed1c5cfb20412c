package roamtech

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/mobarasa/roamtech-cypress/internal/metric"
	"github.com/mobarasa/roamtech-cypress/internal/model"
)

// Sink is an independent reporting destination. A sink is never called
// concurrently by the Aggregator.
type Sink interface {
	Name() string
	OnResult(r model.Result) error
	OnSuiteComplete(s model.Summary) error
}

// SinkPanicError is returned when a sink panic'd while handling a result.
type SinkPanicError struct {
	Sink  string
	Value any
}

func (e SinkPanicError) Error() string {
	return fmt.Sprintf("sink %q panic'd: %v", e.Sink, e.Value)
}

type sinkHandle struct {
	mu   sync.Mutex
	sink Sink
}

// Aggregator fans results out to all attached sinks and computes
// the verdict of a suite run once it is complete.
type Aggregator struct {
	mu    sync.Mutex
	sinks []*sinkHandle
	// runs holds the final results of each test by run id and test id.
	runs map[string]map[string]model.Result

	log *slog.Logger
}

func NewAggregator(log *slog.Logger) *Aggregator {
	return &Aggregator{
		sinks: []*sinkHandle{},
		runs:  map[string]map[string]model.Result{},
		log:   log,
	}
}

// Attach registers a sink. Sinks are notified in the order they are attached.
func (a *Aggregator) Attach(s Sink) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.sinks = append(a.sinks, &sinkHandle{sink: s})
}

func (a *Aggregator) Sinks() []Sink {
	a.mu.Lock()
	defer a.mu.Unlock()

	sinks := make([]Sink, 0, len(a.sinks))
	for _, h := range a.sinks {
		sinks = append(sinks, h.sink)
	}

	return sinks
}

// Publish forwards a result to every sink exactly once. A failing sink does not
// prevent delivery to the others, the returned error contains all sink errors.
func (a *Aggregator) Publish(r model.Result) error {
	a.mu.Lock()
	run, ok := a.runs[r.RunID]
	if !ok {
		run = map[string]model.Result{}
		a.runs[r.RunID] = run
	}
	run[r.TestID] = r
	sinks := a.sinks
	a.mu.Unlock()

	return a.broadcast(sinks, func(s Sink) error {
		return s.OnResult(r)
	}, "run-id", r.RunID, "test-id", r.TestID)
}

// Complete computes the summary of all results published for runID and notifies
// all sinks. Results published for runID afterwards start a new summary.
func (a *Aggregator) Complete(runID, suiteName string, start, end time.Time) (model.Summary, error) {
	a.mu.Lock()
	run := a.runs[runID]
	delete(a.runs, runID)
	sinks := a.sinks
	a.mu.Unlock()

	summary := model.Summary{
		RunID:     runID,
		SuiteName: suiteName,
		Start:     start,
		End:       end,
	}

	for _, r := range run {
		summary.Add(r)
	}

	err := a.broadcast(sinks, func(s Sink) error {
		return s.OnSuiteComplete(summary)
	}, "run-id", runID)

	return summary, err
}

func (a *Aggregator) broadcast(sinks []*sinkHandle, deliver func(s Sink) error, logArgs ...any) error {
	var result *multierror.Error

	for _, h := range sinks {
		if err := h.deliver(deliver); err != nil {
			metric.SinkFailures.WithLabelValues(h.sink.Name()).Inc()

			a.log.With(logArgs...).Warn("reporting sink failed", "sink", h.sink.Name(), "error", err)

			result = multierror.Append(result, fmt.Errorf("sink %s: %w", h.sink.Name(), err))
		}
	}

	return result.ErrorOrNil()
}

func (h *sinkHandle) deliver(deliver func(s Sink) error) (err error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			err = SinkPanicError{Sink: h.sink.Name(), Value: r}
		}
	}()

	return deliver(h.sink)
}
