// Package processor drives one record through rewrite, review and write-back.
package processor

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/roach88/bsonmend/internal/review"
	"github.com/roach88/bsonmend/internal/rewrite"
)

// Replacer performs the identity-keyed conditional replace.
// matched is false when no record with that _id exists any more.
type Replacer interface {
	ReplaceByID(ctx context.Context, collection string, id bson.RawValue, doc bson.Raw) (matched bool, err error)
}

// Options controls persistence.
type Options struct {
	// DryRun suppresses every write-back. Diffs are still reported.
	DryRun bool
}

// Outcome summarizes what happened to one record.
type Outcome struct {
	Identity        string
	Changed         bool
	Diff            string
	Decisions       []review.Decision
	Replaced        bool
	IdentityMissing bool // changed, but _id is absent or unusable: write-back skipped
	Vanished        bool // replace matched no record
}

// ReplaceError reports a failed write-back. Whether it ends the run is the
// caller's decision.
type ReplaceError struct {
	Collection string
	Identity   string
	Err        error
}

func (e *ReplaceError) Error() string {
	return fmt.Sprintf("replace %s in %s: %v", e.Identity, e.Collection, e.Err)
}

func (e *ReplaceError) Unwrap() error {
	return e.Err
}

// Processor processes records one at a time. It holds no per-record state
// and may be shared by concurrent streams.
type Processor struct {
	rewriter *rewrite.Rewriter
	replacer Replacer
	out      io.Writer
	opts     Options
}

// New creates a Processor writing console diagnostics to out.
func New(rewriter *rewrite.Rewriter, replacer Replacer, out io.Writer, opts Options) *Processor {
	return &Processor{
		rewriter: rewriter,
		replacer: replacer,
		out:      out,
		opts:     opts,
	}
}

// Process rewrites record and, when something changed and this is not a dry
// run, replaces it in collection. Nothing is written unless the whole record
// was rebuilt successfully.
func (p *Processor) Process(ctx context.Context, collection string, record bson.Raw) (Outcome, error) {
	id, display, idOK := Identity(record)
	fmt.Fprintln(p.out, display)

	res, err := p.rewriter.Rewrite(ctx, rewrite.Target{Collection: collection, Identity: display}, record)
	if err != nil {
		return Outcome{Identity: display}, fmt.Errorf("rewrite %s: %w", display, err)
	}

	out := Outcome{
		Identity:  display,
		Changed:   res.Changed,
		Decisions: res.Decisions,
	}

	if len(res.Decisions) > 0 {
		diff, err := review.RecordDiff(record, res.Document)
		if err != nil {
			slog.Warn("record diff unavailable", "collection", collection, "id", display, "error", err)
		} else if diff != "" {
			out.Diff = diff
			fmt.Fprint(p.out, diff)
		}
	}

	if !res.Changed {
		return out, nil
	}

	if !idOK {
		out.IdentityMissing = true
		slog.Warn("record has no usable _id, write-back skipped", "collection", collection)
		fmt.Fprintf(p.out, "skipped write-back for %s: no usable _id\n", display)
		return out, nil
	}

	if p.opts.DryRun {
		slog.Debug("dry run, write-back suppressed", "collection", collection, "id", display)
		return out, nil
	}

	matched, err := p.replacer.ReplaceByID(ctx, collection, id, res.Document)
	if err != nil {
		return out, &ReplaceError{Collection: collection, Identity: display, Err: err}
	}
	if !matched {
		out.Vanished = true
		slog.Warn("replace matched no record", "collection", collection, "id", display)
		return out, nil
	}

	out.Replaced = true
	fmt.Fprintf(p.out, "replaced %s in %s (%d field(s) repaired)\n", display, collection, accepted(res.Decisions))
	return out, nil
}

func accepted(decisions []review.Decision) int {
	n := 0
	for _, d := range decisions {
		if d.Accepted {
			n++
		}
	}
	return n
}
