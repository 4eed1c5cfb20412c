package sink

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mobarasa/roamtech-cypress/internal/artifact"
	"github.com/mobarasa/roamtech-cypress/internal/html"
	"github.com/mobarasa/roamtech-cypress/internal/model"
)

// HTML writes a self contained html report per suite run to dir.
type HTML struct {
	dir     string
	results map[string][]model.Result
}

func NewHTML(dir string) *HTML {
	return &HTML{dir: dir, results: map[string][]model.Result{}}
}

func (h *HTML) Name() string {
	return "html"
}

func (h *HTML) OnResult(r model.Result) error {
	h.results[r.RunID] = append(h.results[r.RunID], r)
	return nil
}

func (h *HTML) OnSuiteComplete(s model.Summary) error {
	results := h.results[s.RunID]
	delete(h.results, s.RunID)

	if err := os.MkdirAll(h.dir, 0o755); err != nil {
		return fmt.Errorf("creating report dir: %w", err)
	}

	f, err := os.Create(h.Path(s))
	if err != nil {
		return fmt.Errorf("creating html report: %w", err)
	}
	defer f.Close()

	report := html.SuiteRunReport{Summary: s, Results: results, Generated: time.Now()}

	if err = html.RenderSuiteRun(report, f); err != nil {
		return fmt.Errorf("rendering html report: %w", err)
	}

	return f.Close()
}

func (h *HTML) Path(s model.Summary) string {
	return filepath.Join(h.dir, fmt.Sprintf("report-%s-%s.html", artifact.SanitizeName(s.SuiteName), s.RunID))
}
