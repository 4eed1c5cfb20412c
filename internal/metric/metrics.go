package metric

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mobarasa/roamtech-cypress/internal/model"
)

var (
	SuitesRunning = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "roamtech_suites_running",
		Help: "The number of test suites currently running",
	}, []string{"suite_name"})

	SuitesRun = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "roamtech_suites_run_total",
		Help: "The number of test suites run since the process was started",
	}, []string{"suite_name", "result"})

	TestsRun = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "roamtech_tests_run_total",
		Help: "The number of tests run since the process was started, by final outcome",
	}, []string{"suite_name", "mode", "outcome"})

	AttemptsRun = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "roamtech_test_attempts_total",
		Help: "The number of test attempts, including retries",
	}, []string{"suite_name", "mode", "outcome"})

	FlakyTests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "roamtech_flaky_tests_total",
		Help: "The number of tests that only passed after a retry",
	}, []string{"suite_name"})

	ArtifactCaptures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "roamtech_artifact_captures_total",
		Help: "The number of artifact captures by kind and status",
	}, []string{"kind", "status"})

	SinkFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "roamtech_sink_failures_total",
		Help: "The number of failed result deliveries to a reporting sink",
	}, []string{"sink"})
)

func SuiteFinished(s model.Summary) {
	result := "passed"
	if !s.Succeeded() {
		result = "failed"
	}

	SuitesRun.WithLabelValues(s.SuiteName, result).Inc()
}

func TestFinished(r model.Result) {
	TestsRun.WithLabelValues(r.SuiteName, string(r.Mode), string(r.FinalOutcome)).Inc()

	for _, a := range r.Attempts {
		AttemptsRun.WithLabelValues(r.SuiteName, string(r.Mode), string(a.Outcome)).Inc()
	}

	if r.Flaky() {
		FlakyTests.WithLabelValues(r.SuiteName).Inc()
	}
}
