package storage

import (
	"sync"

	"github.com/mobarasa/roamtech-cypress/internal/model"
)

// SuiteRunCache keeps suite runs of this process in memory so that
// running suites can be inspected. It is also a reporting sink that
// records results as they are published.
type SuiteRunCache struct {
	m sync.Map
	// lock serializes read-modify-write updates of a run
	lock sync.Mutex
}

func NewSuiteRunCache() *SuiteRunCache {
	return &SuiteRunCache{}
}

func suiteRunCacheKey(suiteName, id string) string {
	return suiteName + "/" + id
}

func (c *SuiteRunCache) Save(run model.SuiteRun) {
	c.m.Store(suiteRunCacheKey(run.SuiteName, run.ID), run)
}

func (c *SuiteRunCache) Load(suiteName, id string) (model.SuiteRun, error) {
	val, ok := c.m.Load(suiteRunCacheKey(suiteName, id))
	if !ok {
		return model.SuiteRun{}, model.NotFoundError{}
	}

	return val.(model.SuiteRun), nil
}

func (c *SuiteRunCache) LoadAndDelete(suiteName, id string) (model.SuiteRun, error) {
	val, ok := c.m.LoadAndDelete(suiteRunCacheKey(suiteName, id))
	if !ok {
		return model.SuiteRun{}, model.NotFoundError{}
	}

	return val.(model.SuiteRun), nil
}

// LoadByName returns all cached runs of a suite.
func (c *SuiteRunCache) LoadByName(suiteName string) []model.SuiteRun {
	runs := []model.SuiteRun{}

	c.m.Range(func(_, v any) bool {
		if run := v.(model.SuiteRun); run.SuiteName == suiteName {
			runs = append(runs, run)
		}
		return true
	})

	return runs
}

func (c *SuiteRunCache) Name() string {
	return "cache"
}

func (c *SuiteRunCache) OnResult(r model.Result) error {
	c.lock.Lock()
	defer c.lock.Unlock()

	run, err := c.Load(r.SuiteName, r.RunID)
	if err != nil {
		return err
	}

	results := make([]model.Result, 0, len(run.Results)+1)
	results = append(results, run.Results...)
	run.Results = append(results, r)

	c.Save(run)

	return nil
}

func (c *SuiteRunCache) OnSuiteComplete(s model.Summary) error {
	c.lock.Lock()
	defer c.lock.Unlock()

	run, err := c.Load(s.SuiteName, s.RunID)
	if err != nil {
		return err
	}

	run.Running = false
	run.Summary = s

	c.Save(run)

	return nil
}
