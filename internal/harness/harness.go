package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/roach88/bsonmend/internal/driver"
	"github.com/roach88/bsonmend/internal/layout"
	"github.com/roach88/bsonmend/internal/processor"
	"github.com/roach88/bsonmend/internal/review"
	"github.com/roach88/bsonmend/internal/rewrite"
)

// Harness holds the in-memory collection and the trace of one scenario run.
// It plays every store and history role the real stack talks to.
type Harness struct {
	scenario *Scenario
	records  []bson.Raw
	result   *Result
	current  int
}

// Run executes a scenario and returns the result.
//
// Execution flow:
//  1. Encode records
//  2. Drive them through driver, processor, rewriter and reviewer
//  3. Evaluate expectations against outcomes and final records
//
// An error is returned only when the scenario cannot be set up; a run that
// aborts or an expectation that fails is reported in the Result.
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	h := &Harness{
		scenario: scenario,
		records:  make([]bson.Raw, len(scenario.Records)),
		result:   NewResult(len(scenario.Records)),
		current:  -1,
	}

	for i, r := range scenario.Records {
		doc, err := r.Encode()
		if err != nil {
			return nil, fmt.Errorf("encode records[%d]: %w", i, err)
		}
		h.records[i] = doc
	}

	var decider review.Decider = review.AutoApprove{}
	if len(scenario.Answers) > 0 {
		script := strings.Join(scenario.Answers, "\n") + "\n"
		decider = review.NewPrompter(strings.NewReader(script), io.Discard)
	}
	reviewer := review.NewReviewer(decider, io.Discard, review.WithHistory(h, false))

	proc := processor.New(rewrite.New(reviewer), h, io.Discard, processor.Options{DryRun: scenario.DryRun})
	summary, err := driver.New(h, &recorder{h: h, inner: proc}, driver.Options{}).
		Run(ctx, []string{scenario.Collection})
	h.result.Summary = summary
	if err != nil {
		h.result.AddError(fmt.Sprintf("run aborted: %v", err))
	}

	copy(h.result.Final, h.records)

	for _, exp := range scenario.Expect {
		if err := checkExpectation(h.result, exp); err != nil {
			h.result.AddError(err.Error())
		}
	}

	return h.result, nil
}

// Collections implements driver.Source.
func (h *Harness) Collections(context.Context) ([]string, error) {
	return []string{h.scenario.Collection}, nil
}

// Stream implements driver.Source over a snapshot of the records.
func (h *Harness) Stream(_ context.Context, collection string) (driver.Stream, error) {
	if collection != h.scenario.Collection {
		return nil, fmt.Errorf("no collection %q", collection)
	}
	return &sliceStream{records: append([]bson.Raw(nil), h.records...)}, nil
}

// ReplaceByID implements processor.Replacer.
func (h *Harness) ReplaceByID(_ context.Context, _ string, id bson.RawValue, doc bson.Raw) (bool, error) {
	for i, rec := range h.records {
		got, err := rec.LookupErr("_id")
		if err != nil || !got.Equal(id) {
			continue
		}
		h.records[i] = append(bson.Raw(nil), doc...)
		h.result.addTrace(TraceEvent{Type: EventReplace, Record: i})
		return true, nil
	}
	return false, nil
}

// WasDeclined implements review.History. Scenarios carry no prior runs.
func (h *Harness) WasDeclined(context.Context, review.Request) (bool, error) {
	return false, nil
}

// Record implements review.History by tracing the decision.
func (h *Harness) Record(_ context.Context, d review.Decision) error {
	h.result.addTrace(TraceEvent{
		Type:     EventReview,
		Record:   h.current,
		Path:     d.Path,
		Value:    d.Value(),
		Accepted: d.Accepted,
	})
	return nil
}

// recorder tracks which record is in flight and keeps its outcome.
type recorder struct {
	h     *Harness
	inner driver.RecordProcessor
}

func (r *recorder) Process(ctx context.Context, collection string, record bson.Raw) (processor.Outcome, error) {
	r.h.current++
	i := r.h.current

	outcome, err := r.inner.Process(ctx, collection, record)
	r.h.result.Outcomes[i] = RecordOutcome{
		Identity: outcome.Identity,
		Changed:  outcome.Changed,
		Replaced: outcome.Replaced,
		Failed:   err != nil,
	}
	if err != nil {
		r.h.result.addTrace(TraceEvent{Type: EventFailure, Record: i, Detail: failureDetail(err)})
	}
	return outcome, err
}

// failureDetail is the structural error code when there is one.
func failureDetail(err error) string {
	var se *layout.StructuralError
	if errors.As(err, &se) {
		return string(se.Code)
	}
	return err.Error()
}

type sliceStream struct {
	records []bson.Raw
	pos     int
}

func (s *sliceStream) Next(context.Context) bool {
	if s.pos >= len(s.records) {
		return false
	}
	s.pos++
	return true
}

func (s *sliceStream) Current() bson.Raw           { return s.records[s.pos-1] }
func (s *sliceStream) Err() error                  { return nil }
func (s *sliceStream) Close(context.Context) error { return nil }
