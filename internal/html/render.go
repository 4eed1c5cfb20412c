package html

import (
	_ "embed"
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/mobarasa/roamtech-cypress/internal/html/util"
	"github.com/mobarasa/roamtech-cypress/internal/model"
)

//go:embed suite-run.tmpl
var suiteRunTemplate string

var templatesByName map[string]*template.Template

// SuiteRunReport is the data rendered by the suite-run template.
type SuiteRunReport struct {
	Summary   model.Summary
	Results   []model.Result
	Generated time.Time
}

func init() {
	templatesByName = make(map[string]*template.Template)

	funcs := template.FuncMap{
		"duration": util.FormatDuration,
		"relative": func(t time.Time) string {
			return util.FormatRelativeTime(t, time.Now())
		},
	}

	templates := []struct {
		name     string
		template string
	}{
		{name: "suite-run", template: suiteRunTemplate},
	}

	for _, t := range templates {
		template, err := template.New(t.name).Funcs(funcs).Parse(t.template)
		if err != nil {
			panic(fmt.Sprintf("unable to parse html template %s: %v", t.name, err))
		}

		templatesByName[t.name] = template
	}
}

func RenderSuiteRun(report SuiteRunReport, w io.Writer) error {
	return templatesByName["suite-run"].Execute(w, report)
}
