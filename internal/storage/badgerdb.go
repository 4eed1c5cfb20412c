package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/dgraph-io/badger/v4"

	"github.com/mobarasa/roamtech-cypress/internal/model"
)

var _ Storage = &BadgerStorage{}

// BadgerStorage stores suite runs and results as json documents in badger.
// Keys are `run/<suite-name>/<run-id>` and `result/<run-id>/<test-id>`.
type BadgerStorage struct {
	db  *badger.DB
	log *slog.Logger
}

func NewBadgerStorage(dbPath string, log *slog.Logger) (*BadgerStorage, error) {
	s := &BadgerStorage{
		log: log,
	}
	var err error

	opts := badger.DefaultOptions(dbPath).WithLogger(nil)
	if dbPath == "" {
		opts = opts.WithInMemory(true)
	}

	s.db, err = badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening badger database: %w", err)
	}

	return s, nil
}

func (b *BadgerStorage) Close() error {
	return b.db.Close()
}

type BadgerStorageContextKey string

func (b *BadgerStorage) StartTransaction(ctx context.Context) (context.Context, error) {
	txn := b.db.NewTransaction(true)

	return context.WithValue(ctx, BadgerStorageContextKey("transaction"), txn), nil
}

func getTx(ctx context.Context) *badger.Txn {
	v := ctx.Value(BadgerStorageContextKey("transaction"))

	tx, _ := v.(*badger.Txn)

	return tx
}

func (b *BadgerStorage) update(ctx context.Context, ftx func(t *badger.Txn) error) error {
	if tx := getTx(ctx); tx != nil {
		return ftx(tx)
	}

	return b.db.Update(ftx)
}

func (b *BadgerStorage) view(ctx context.Context, ftx func(t *badger.Txn) error) error {
	if tx := getTx(ctx); tx != nil {
		return ftx(tx)
	}

	return b.db.View(ftx)
}

func (b *BadgerStorage) CommitTransaction(ctx context.Context) error {
	return getTx(ctx).Commit()
}

func (b *BadgerStorage) RollbackTransaction(ctx context.Context) {
	getTx(ctx).Discard()
}

func suiteRunKey(suiteName, id string) []byte {
	return []byte(fmt.Sprintf("run/%s/%s", suiteName, id))
}

func resultPrefix(runID string) []byte {
	return []byte(fmt.Sprintf("result/%s/", runID))
}

func resultKey(runID, testID string) []byte {
	return append(resultPrefix(runID), testID...)
}

// storedResult keeps the publishing order of results.
type storedResult struct {
	model.Result
	Sequence uint64 `json:"sequence"`
}

func (b *BadgerStorage) InsertSuiteRun(ctx context.Context, run model.SuiteRun) error {
	return b.update(ctx, func(t *badger.Txn) error {
		key := suiteRunKey(run.SuiteName, run.ID)

		if _, err := t.Get(key); err == nil {
			return model.DuplicateError{}
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("checking suite run: %w", err)
		}

		return setJSON(t, key, withoutResults(run))
	})
}

func (b *BadgerStorage) UpdateSuiteRun(ctx context.Context, run model.SuiteRun) error {
	return b.update(ctx, func(t *badger.Txn) error {
		key := suiteRunKey(run.SuiteName, run.ID)

		if _, err := t.Get(key); errors.Is(err, badger.ErrKeyNotFound) {
			return model.NotFoundError{}
		} else if err != nil {
			return fmt.Errorf("loading suite run: %w", err)
		}

		return setJSON(t, key, withoutResults(run))
	})
}

func (b *BadgerStorage) LoadSuiteRun(ctx context.Context, suiteName, runID string) (model.SuiteRun, error) {
	var run model.SuiteRun

	err := b.view(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get(suiteRunKey(suiteName, runID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return model.NotFoundError{}
		} else if err != nil {
			return fmt.Errorf("loading suite run: %w", err)
		}

		err = item.Value(func(d []byte) error {
			return json.Unmarshal(d, &run)
		})
		if err != nil {
			return fmt.Errorf("unmarshaling suite run: %w", err)
		}

		return nil
	})
	if err != nil {
		return model.SuiteRun{}, err
	}

	run.Results, err = b.LoadResults(ctx, runID)

	return run, err
}

func (b *BadgerStorage) LoadSuiteRunsByName(ctx context.Context, suiteName string) ([]model.SuiteRun, error) {
	runs := []model.SuiteRun{}

	err := b.view(ctx, func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte("run/" + suiteName + "/")

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var run model.SuiteRun

			err := it.Item().Value(func(v []byte) error {
				return json.Unmarshal(v, &run)
			})
			if err != nil {
				return fmt.Errorf("unmarshaling suite run: %w", err)
			}

			run.Results = []model.Result{}
			runs = append(runs, run)
		}

		return nil
	})

	sort.SliceStable(runs, func(i, j int) bool {
		return runs[i].Scheduled.After(runs[j].Scheduled)
	})

	return runs, err
}

func (b *BadgerStorage) UpsertResult(ctx context.Context, r model.Result) error {
	return b.update(ctx, func(t *badger.Txn) error {
		key := resultKey(r.RunID, r.TestID)
		stored := storedResult{Result: r}

		item, err := t.Get(key)
		switch {
		case err == nil:
			var existing storedResult
			if err = item.Value(func(v []byte) error { return json.Unmarshal(v, &existing) }); err != nil {
				return fmt.Errorf("unmarshaling result: %w", err)
			}
			stored.Sequence = existing.Sequence
		case errors.Is(err, badger.ErrKeyNotFound):
			stored.Sequence, err = b.nextSequence(t, r.RunID)
			if err != nil {
				return err
			}
		default:
			return fmt.Errorf("loading result: %w", err)
		}

		return setJSON(t, key, stored)
	})
}

func (b *BadgerStorage) LoadResults(ctx context.Context, runID string) ([]model.Result, error) {
	stored := []storedResult{}

	err := b.view(ctx, func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := resultPrefix(runID)

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var r storedResult

			err := it.Item().Value(func(v []byte) error {
				return json.Unmarshal(v, &r)
			})
			if err != nil {
				return fmt.Errorf("unmarshaling result: %w", err)
			}

			stored = append(stored, r)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(stored, func(i, j int) bool {
		return stored[i].Sequence < stored[j].Sequence
	})

	results := make([]model.Result, 0, len(stored))
	for _, r := range stored {
		results = append(results, r.Result)
	}

	return results, nil
}

// nextSequence counts the results of a run, it must be called within
// the transaction that stores the result.
func (b *BadgerStorage) nextSequence(t *badger.Txn, runID string) (uint64, error) {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false

	it := t.NewIterator(opts)
	defer it.Close()

	prefix := resultPrefix(runID)

	var n uint64
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		n++
	}

	return n, nil
}

func setJSON(t *badger.Txn, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshalling %s: %w", key, err)
	}

	if err = t.Set(key, data); err != nil {
		return fmt.Errorf("storing %s: %w", key, err)
	}

	return nil
}

func withoutResults(run model.SuiteRun) model.SuiteRun {
	run.Results = nil
	return run
}
