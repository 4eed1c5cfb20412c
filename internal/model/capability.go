package model

import (
	"context"
	"net/http"
	"time"
)

type Request struct {
	Method string
	// URL is either absolute or relative to the configured base url.
	URL     string
	Body    []byte
	Headers http.Header
}

type Response struct {
	Status   int
	Headers  http.Header
	Body     []byte
	Duration time.Duration
}

// HTTPClient is used by network tests.
type HTTPClient interface {
	Request(ctx context.Context, req Request) (Response, error)
}

// Element is an opaque handle to a located element.
type Element interface {
	Selector() string
}

type Action struct {
	// Kind is e.g. click, type or clear.
	Kind  string
	Value string
}

// Snapshotter is anything that can produce a screenshot.
type Snapshotter interface {
	Screenshot(ctx context.Context) ([]byte, error)
}

// VideoRecorder is optionally implemented by a Browser that records
// the attempt.
type VideoRecorder interface {
	Video(ctx context.Context) ([]byte, error)
}

// Browser is used by interactive tests. A new browser is created for every
// attempt and closed once the attempt is finished.
type Browser interface {
	Snapshotter
	Visit(ctx context.Context, url string) error
	// Locate returns ElementNotFoundError if the selector does not match.
	Locate(ctx context.Context, selector string) (Element, error)
	Act(ctx context.Context, el Element, action Action) error
	Close() error
}

type BrowserFactory func(ctx context.Context) (Browser, error)
