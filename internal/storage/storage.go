package storage

import (
	"bytes"
	"compress/zlib"
	"context"
	"fmt"
	"io"
	"math/rand"
	"time"

	"github.com/mobarasa/roamtech-cypress/internal/model"
)

// Storage persists suite runs and their results. Load functions return
// model.NotFoundError if nothing was found.
type Storage interface {
	InsertSuiteRun(ctx context.Context, run model.SuiteRun) error
	// UpdateSuiteRun updates the state and summary of a run, results are
	// stored separately with UpsertResult.
	UpdateSuiteRun(ctx context.Context, run model.SuiteRun) error
	// LoadSuiteRun loads a run including its results.
	LoadSuiteRun(ctx context.Context, suiteName, runID string) (model.SuiteRun, error)
	// LoadSuiteRunsByName loads all runs of a suite without results, latest first.
	LoadSuiteRunsByName(ctx context.Context, suiteName string) ([]model.SuiteRun, error)
	// UpsertResult stores a result, replacing an existing result of the same test in the same run.
	UpsertResult(ctx context.Context, r model.Result) error
	LoadResults(ctx context.Context, runID string) ([]model.Result, error)
	Close() error
}

// sortableTime has a fixed width so that stored dates can be ordered as strings.
const sortableTime = "2006-01-02T15:04:05.000000000Z07:00"

func timeFormat(t time.Time) string {
	return t.UTC().Format(sortableTime)
}

func parseDate(t string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, t)
}

func compressedLogs(logs string) ([]byte, error) {
	if logs == "" {
		return nil, nil
	}

	var compressedLogs bytes.Buffer

	w := zlib.NewWriter(&compressedLogs)

	_, err := w.Write([]byte(logs))
	w.Close()

	return compressedLogs.Bytes(), err
}

func decompressLogs(l []byte) (string, error) {
	if len(l) == 0 {
		return "", nil
	}

	reader, err := zlib.NewReader(bytes.NewReader(l))
	if err != nil {
		return "", fmt.Errorf("decompress logs: %w", err)
	}
	defer reader.Close()

	logs, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("decompress logs: %w", err)
	}

	return string(logs), nil
}

const alphaNumericChars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

func randomAlphanumeric(length int) string {
	b := make([]byte, length)
	for i := range b {
		b[i] = alphaNumericChars[rand.Intn(len(alphaNumericChars))]
	}
	return string(b)
}
