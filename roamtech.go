// Package roamtech runs end-to-end test suites. Failing tests are retried
// according to their mode, artifacts of failed attempts are captured and all
// results are fanned out to the configured reporting sinks.
//
// A suite run either happens once from the command line or, in server mode,
// is triggered by an http call or a cron schedule.
package roamtech

import "github.com/mobarasa/roamtech-cypress/internal/model"

// Reexport to allow library users to reference these types

type TestFunc = model.TestFunc
type TB = model.TB
type TestCase = model.TestCase
type TestSuite = model.TestSuite
type Mode = model.Mode
type Result = model.Result
type Summary = model.Summary
type Browser = model.Browser
type BrowserFactory = model.BrowserFactory
type HTTPClient = model.HTTPClient
type Request = model.Request
type Response = model.Response

const (
	ModeRun         = model.ModeRun
	ModeInteractive = model.ModeInteractive
)
