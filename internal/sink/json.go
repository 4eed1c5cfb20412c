package sink

import (
	"encoding/json"
	"io"

	"github.com/mobarasa/roamtech-cypress/internal/model"
)

// JSON writes newline delimited json records, one per result and
// one per suite summary.
type JSON struct {
	enc *json.Encoder
}

type Record struct {
	// Type is either result or summary.
	Type    string         `json:"type"`
	Result  *model.Result  `json:"result,omitempty"`
	Summary *model.Summary `json:"summary,omitempty"`
}

func NewJSON(w io.Writer) *JSON {
	return &JSON{enc: json.NewEncoder(w)}
}

func (j *JSON) Name() string {
	return "json"
}

func (j *JSON) OnResult(r model.Result) error {
	return j.enc.Encode(Record{Type: "result", Result: &r})
}

func (j *JSON) OnSuiteComplete(s model.Summary) error {
	return j.enc.Encode(Record{Type: "summary", Summary: &s})
}
