package sink

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mobarasa/roamtech-cypress/internal/artifact"
	"github.com/mobarasa/roamtech-cypress/internal/model"
)

// JUnit writes a junit xml report per suite run to dir.
type JUnit struct {
	dir     string
	results map[string][]model.Result
}

type junitTestSuites struct {
	XMLName  xml.Name         `xml:"testsuites"`
	Name     string           `xml:"name,attr"`
	Tests    int              `xml:"tests,attr"`
	Failures int              `xml:"failures,attr"`
	Skipped  int              `xml:"skipped,attr"`
	Time     string           `xml:"time,attr"`
	Suites   []junitTestSuite `xml:"testsuite"`
}

type junitTestSuite struct {
	Name      string          `xml:"name,attr"`
	Tests     int             `xml:"tests,attr"`
	Failures  int             `xml:"failures,attr"`
	Skipped   int             `xml:"skipped,attr"`
	Time      string          `xml:"time,attr"`
	Timestamp string          `xml:"timestamp,attr"`
	TestCases []junitTestCase `xml:"testcase"`
}

type junitTestCase struct {
	Name      string        `xml:"name,attr"`
	ClassName string        `xml:"classname,attr"`
	Time      string        `xml:"time,attr"`
	Failure   *junitFailure `xml:"failure,omitempty"`
	Skipped   *junitSkipped `xml:"skipped,omitempty"`
	SystemOut string        `xml:"system-out,omitempty"`
}

type junitFailure struct {
	Message string `xml:"message,attr"`
	Type    string `xml:"type,attr"`
	Content string `xml:",chardata"`
}

type junitSkipped struct {
	Message string `xml:"message,attr,omitempty"`
}

func NewJUnit(dir string) *JUnit {
	return &JUnit{dir: dir, results: map[string][]model.Result{}}
}

func (j *JUnit) Name() string {
	return "junit"
}

func (j *JUnit) OnResult(r model.Result) error {
	j.results[r.RunID] = append(j.results[r.RunID], r)
	return nil
}

func (j *JUnit) OnSuiteComplete(s model.Summary) error {
	results := j.results[s.RunID]
	delete(j.results, s.RunID)

	suite := junitTestSuite{
		Name:      s.SuiteName,
		Tests:     s.Total,
		Failures:  s.Failed + s.TimedOut,
		Skipped:   s.Skipped,
		Time:      seconds(s.End.Sub(s.Start).Seconds()),
		Timestamp: s.Start.Format("2006-01-02T15:04:05"),
	}

	for _, r := range results {
		tc := junitTestCase{
			Name:      r.TestID,
			ClassName: s.SuiteName,
			Time:      seconds(r.Duration().Seconds()),
		}

		last := r.LastAttempt()

		switch r.FinalOutcome {
		case model.OutcomeFailed, model.OutcomeTimedOut:
			tc.Failure = &junitFailure{
				Message: fmt.Sprintf("%s after %d attempt(s)", r.FinalOutcome, len(r.Attempts)),
				Type:    string(r.FinalOutcome),
				Content: last.ErrorDetail,
			}
		case model.OutcomeSkipped:
			tc.Skipped = &junitSkipped{Message: last.ErrorDetail}
		}

		tc.SystemOut = last.Logs

		suite.TestCases = append(suite.TestCases, tc)
	}

	report := junitTestSuites{
		Name:     s.SuiteName,
		Tests:    suite.Tests,
		Failures: suite.Failures,
		Skipped:  suite.Skipped,
		Time:     suite.Time,
		Suites:   []junitTestSuite{suite},
	}

	data, err := xml.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling junit report: %w", err)
	}

	if err := os.MkdirAll(j.dir, 0o755); err != nil {
		return fmt.Errorf("creating report dir: %w", err)
	}

	return os.WriteFile(j.Path(s), append([]byte(xml.Header), data...), 0o644)
}

// Path returns the file the report of a suite run is written to.
func (j *JUnit) Path(s model.Summary) string {
	return filepath.Join(j.dir, fmt.Sprintf("junit-%s-%s.xml", artifact.SanitizeName(s.SuiteName), s.RunID))
}

func seconds(s float64) string {
	return fmt.Sprintf("%.3f", s)
}
