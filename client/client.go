// Package client talks to the http api of a roamtech server.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/mobarasa/roamtech-cypress/internal/model"
)

type SuiteRun = model.SuiteRun
type Suite = model.SuiteInfo
type Result = model.Result

type Client struct {
	http *http.Client
	host string
}

type RequestError struct {
	ResponseCode int
}

func (e RequestError) Error() string {
	return fmt.Sprintf("request failed with status %d", e.ResponseCode)
}

func New(host string, c *http.Client) Client {
	return Client{http: c, host: host}
}

func (c Client) ListSuites(ctx context.Context) ([]Suite, error) {
	var suites []Suite

	if err := c.do(ctx, http.MethodGet, c.url("/suites"), &suites); err != nil {
		return nil, err
	}

	return suites, nil
}

func (c Client) CreateSuiteRun(ctx context.Context, suiteName string) (SuiteRun, error) {
	var run SuiteRun

	if err := c.do(ctx, http.MethodPost, c.url("/suites/%s/runs", suiteName), &run); err != nil {
		return SuiteRun{}, err
	}

	return run, nil
}

func (c Client) ListSuiteRuns(ctx context.Context, suiteName string) ([]SuiteRun, error) {
	var runs []SuiteRun

	if err := c.do(ctx, http.MethodGet, c.url("/suites/%s/runs", suiteName), &runs); err != nil {
		return nil, err
	}

	return runs, nil
}

func (c Client) GetSuiteRun(ctx context.Context, suiteName, runID string) (SuiteRun, error) {
	var run SuiteRun

	if err := c.do(ctx, http.MethodGet, c.url("/suites/%s/runs/%s", suiteName, runID), &run); err != nil {
		return SuiteRun{}, err
	}

	return run, nil
}

func (c Client) GetTestResult(ctx context.Context, suiteName, runID, testID string) (Result, error) {
	var r Result

	if err := c.do(ctx, http.MethodGet, c.url("/suites/%s/runs/%s/test/%s", suiteName, runID, testID), &r); err != nil {
		return Result{}, err
	}

	return r, nil
}

func (c Client) url(path string, args ...string) string {
	escaped := make([]any, len(args))
	for i, a := range args {
		escaped[i] = url.PathEscape(a)
	}

	return fmt.Sprintf(c.host+path, escaped...)
}

func (c Client) do(ctx context.Context, method, target string, body any) error {
	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return err
	}

	req.Header.Add("Accept", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return RequestError{res.StatusCode}
	}

	if body != nil {
		if err = json.NewDecoder(res.Body).Decode(body); err != nil {
			return err
		}
	}

	return nil
}
