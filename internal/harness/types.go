package harness

import (
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/roach88/bsonmend/internal/driver"
)

// Trace event types.
const (
	EventReview  = "review"
	EventReplace = "replace"
	EventFailure = "failure"
)

// TraceEvent is one observable step of a run.
type TraceEvent struct {
	Type     string `json:"type"`
	Record   int    `json:"record"`
	Path     string `json:"path,omitempty"`      // review
	Value    string `json:"value,omitempty"`     // review: text stored for the field
	Accepted bool   `json:"accepted,omitempty"`  // review
	Detail   string `json:"detail,omitempty"`    // failure: error code or message
}

// RecordOutcome is what happened to one record.
type RecordOutcome struct {
	Identity string
	Changed  bool
	Replaced bool
	Failed   bool
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall success: the run finished and every
	// expectation held.
	Pass bool `json:"pass"`

	// Trace contains reviews, replaces and failures in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Outcomes is indexed like Scenario.Records. Records the run never
	// reached have zero outcomes.
	Outcomes []RecordOutcome `json:"-"`

	// Final holds each record as stored after the run.
	Final []bson.Raw `json:"-"`

	Summary driver.Summary `json:"summary"`
}

// NewResult creates a new passing result for n records.
func NewResult(n int) *Result {
	return &Result{
		Pass:     true,
		Trace:    []TraceEvent{},
		Errors:   []string{},
		Outcomes: make([]RecordOutcome, n),
		Final:    make([]bson.Raw, n),
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

func (r *Result) addTrace(e TraceEvent) {
	r.Trace = append(r.Trace, e)
}
