package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/mobarasa/roamtech-cypress/internal/model"
)

const elasticTimeout = 10 * time.Second

// Elastic indexes every result and summary as a document so that test runs
// can be searched next to the logs of the system under test.
type Elastic struct {
	client *elasticsearch.Client
	index  string
}

func NewElastic(addresses []string, index string) (*Elastic, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: addresses})
	if err != nil {
		return nil, fmt.Errorf("creating elasticsearch client: %w", err)
	}

	return &Elastic{client: client, index: index}, nil
}

func (e *Elastic) Name() string {
	return "elastic-search"
}

type elasticResult struct {
	model.Result
	Type       string    `json:"type"`
	Timestamp  time.Time `json:"@timestamp"`
	DurationMS int64     `json:"durationMs"`
	Flaky      bool      `json:"flaky"`
}

type elasticSummary struct {
	model.Summary
	Type      string    `json:"type"`
	Timestamp time.Time `json:"@timestamp"`
	Succeeded bool      `json:"succeeded"`
}

func (e *Elastic) OnResult(r model.Result) error {
	doc := elasticResult{
		Result:     r,
		Type:       "result",
		Timestamp:  r.LastAttempt().End,
		DurationMS: r.Duration().Milliseconds(),
		Flaky:      r.Flaky(),
	}

	return e.indexDocument(r.RunID+"-"+r.TestID, doc)
}

func (e *Elastic) OnSuiteComplete(s model.Summary) error {
	doc := elasticSummary{
		Summary:   s,
		Type:      "summary",
		Timestamp: s.End,
		Succeeded: s.Succeeded(),
	}

	return e.indexDocument(s.RunID, doc)
}

func (e *Elastic) indexDocument(id string, doc any) error {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(doc); err != nil {
		return fmt.Errorf("encoding document: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), elasticTimeout)
	defer cancel()

	res, err := e.client.Index(
		e.index,
		&buf,
		e.client.Index.WithContext(ctx),
		e.client.Index.WithDocumentID(id),
	)
	if err != nil {
		return fmt.Errorf("indexing document %s: %w", id, err)
	}
	defer res.Body.Close()

	return responseError(res)
}

func responseError(res *esapi.Response) error {
	if !res.IsError() {
		return nil
	}

	body, _ := io.ReadAll(res.Body)

	return fmt.Errorf("elasticsearch returned %s: %s", res.Status(), body)
}
