// Package review decides whether a repaired string replaces the original.
//
// The rewriter never talks to a human directly. It hands each candidate to a
// Reviewer, which asks a Decider: AutoApprove for unattended runs, a Prompter
// when an operator confirms every field. A History, when configured, records
// each decision and can answer "was this exact value declined before?" so a
// rerun does not ask again.
package review

import (
	"context"
	"fmt"
	"io"
	"log/slog"
)

// Request describes one candidate repair awaiting a decision.
type Request struct {
	Collection string // record set the record came from
	Identity   string // display form of the record's _id
	Path       string // dotted field path, e.g. "address.lines.1"
	Raw        []byte // original payload bytes, invalid as UTF-8
	Original   string // lossy UTF-8 reading of Raw
	Candidate  string // output of repair.Repair
}

// Decision is the verdict for one field.
type Decision struct {
	Request
	Accepted bool
}

// Value returns the text to store for the field. A declined field keeps the
// lossy reading of the original; the invalid raw bytes are never re-emitted.
func (d Decision) Value() string {
	if d.Accepted {
		return d.Candidate
	}
	return d.Original
}

// Decider is the capability that accepts or rejects a candidate. It may block
// (waiting on a human) and must honour ctx.
type Decider interface {
	Decide(ctx context.Context, req Request) (bool, error)
}

// diffShower is implemented by Deciders that render the field diff before
// asking, so the Reviewer does not print it a second time.
type diffShower interface {
	showsDiff()
}

// AutoApprove accepts every candidate.
type AutoApprove struct{}

// Decide implements Decider.
func (AutoApprove) Decide(context.Context, Request) (bool, error) {
	return true, nil
}

// History persists decisions across runs.
type History interface {
	WasDeclined(ctx context.Context, req Request) (bool, error)
	Record(ctx context.Context, d Decision) error
}

// Reviewer wraps a Decider with console output and optional history.
type Reviewer struct {
	decider      Decider
	out          io.Writer
	styles       Styles
	history      History
	skipDeclined bool
}

// Option configures a Reviewer.
type Option func(*Reviewer)

// WithHistory records every decision in h. When skipDeclined is set, a field
// whose identical original bytes were declined before is declined again
// without consulting the Decider.
func WithHistory(h History, skipDeclined bool) Option {
	return func(r *Reviewer) {
		r.history = h
		r.skipDeclined = skipDeclined
	}
}

// NewReviewer creates a Reviewer that prints accepted repairs to out.
func NewReviewer(decider Decider, out io.Writer, opts ...Option) *Reviewer {
	r := &Reviewer{
		decider: decider,
		out:     out,
		styles:  NewStyles(out),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Review obtains a decision for req.
func (r *Reviewer) Review(ctx context.Context, req Request) (Decision, error) {
	if r.history != nil && r.skipDeclined {
		declined, err := r.history.WasDeclined(ctx, req)
		if err != nil {
			return Decision{}, fmt.Errorf("review %s: history lookup: %w", req.Path, err)
		}
		if declined {
			slog.Info("repair previously declined, keeping original",
				"collection", req.Collection, "id", req.Identity, "path", req.Path)
			return Decision{Request: req}, nil
		}
	}

	accepted, err := r.decider.Decide(ctx, req)
	if err != nil {
		return Decision{}, fmt.Errorf("review %s: %w", req.Path, err)
	}
	d := Decision{Request: req, Accepted: accepted}

	if accepted {
		if _, shown := r.decider.(diffShower); !shown {
			fmt.Fprint(r.out, r.styles.FieldDiff(req.Identity, req.Path, req.Original, req.Candidate))
		}
	} else {
		slog.Info("repair declined",
			"collection", req.Collection, "id", req.Identity, "path", req.Path)
	}

	if r.history != nil {
		if err := r.history.Record(ctx, d); err != nil {
			return Decision{}, fmt.Errorf("review %s: record decision: %w", req.Path, err)
		}
	}
	return d, nil
}
