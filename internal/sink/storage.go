package sink

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mobarasa/roamtech-cypress/internal/model"
	"github.com/mobarasa/roamtech-cypress/internal/storage"
)

const storageTimeout = 10 * time.Second

// Storage persists every result and the final summary of a suite run.
type Storage struct {
	storage storage.Storage
}

func NewStorage(s storage.Storage) *Storage {
	return &Storage{storage: s}
}

func (s *Storage) Name() string {
	return "storage"
}

func (s *Storage) OnResult(r model.Result) error {
	ctx, cancel := context.WithTimeout(context.Background(), storageTimeout)
	defer cancel()

	return s.storage.UpsertResult(ctx, r)
}

func (s *Storage) OnSuiteComplete(summary model.Summary) error {
	ctx, cancel := context.WithTimeout(context.Background(), storageTimeout)
	defer cancel()

	run, err := s.storage.LoadSuiteRun(ctx, summary.SuiteName, summary.RunID)

	var notFound model.NotFoundError
	if errors.As(err, &notFound) {
		run = model.SuiteRun{
			ID:          summary.RunID,
			SuiteName:   summary.SuiteName,
			TriggeredBy: "unknown",
			Scheduled:   summary.Start,
		}

		if err = s.storage.InsertSuiteRun(ctx, run); err != nil {
			return fmt.Errorf("inserting suite run: %w", err)
		}
	} else if err != nil {
		return fmt.Errorf("loading suite run: %w", err)
	}

	run.Running = false
	run.Summary = summary

	return s.storage.UpdateSuiteRun(ctx, run)
}
