package sink

import (
	"github.com/mobarasa/roamtech-cypress/internal/metric"
	"github.com/mobarasa/roamtech-cypress/internal/model"
)

// Metrics updates the prometheus metrics of finished tests and suites.
type Metrics struct{}

func NewMetrics() Metrics {
	return Metrics{}
}

func (Metrics) Name() string {
	return "metrics"
}

func (Metrics) OnResult(r model.Result) error {
	metric.TestFinished(r)
	return nil
}

func (Metrics) OnSuiteComplete(s model.Summary) error {
	metric.SuiteFinished(s)
	return nil
}
