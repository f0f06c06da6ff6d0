// Package driver runs the record processor over whole collections.
//
// Each collection is one stream, drained strictly in order. Streams are
// independent, so several may be in flight when Options.Parallel > 1; the
// default of one keeps console diffs and interactive prompts coherent.
//
// Error policy:
//   - structural corruption in a record: logged, counted, stream continues
//   - failed replace: same, unless the store is unreachable
//   - cursor failure, unreachable store, cancellation: the run stops
package driver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.mongodb.org/mongo-driver/v2/bson"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/bsonmend/internal/layout"
	"github.com/roach88/bsonmend/internal/processor"
)

// Stream yields raw records one at a time. Implemented over a store cursor.
type Stream interface {
	Next(ctx context.Context) bool
	Current() bson.Raw
	Err() error
	Close(ctx context.Context) error
}

// Source enumerates and opens record streams.
type Source interface {
	Collections(ctx context.Context) ([]string, error)
	Stream(ctx context.Context, collection string) (Stream, error)
}

// RecordProcessor handles one record. Implemented by *processor.Processor.
type RecordProcessor interface {
	Process(ctx context.Context, collection string, record bson.Raw) (processor.Outcome, error)
}

// Options configures a Driver.
type Options struct {
	// Parallel is the number of streams in flight. Values below 1 mean 1.
	Parallel int

	// IsConnectivity reports whether a store error means the store is
	// unreachable. A failed replace for which it returns true ends the run.
	IsConnectivity func(error) bool
}

// Driver drains streams through a RecordProcessor.
type Driver struct {
	source    Source
	processor RecordProcessor
	opts      Options
}

// New creates a Driver.
func New(source Source, proc RecordProcessor, opts Options) *Driver {
	if opts.Parallel < 1 {
		opts.Parallel = 1
	}
	return &Driver{
		source:    source,
		processor: proc,
		opts:      opts,
	}
}

// Run processes every record of the named collections, or of all collections
// in the database when none are named. The returned Summary lists
// collections in the order given, including partial counts for a stream that
// was cut short by an error.
func (d *Driver) Run(ctx context.Context, collections []string) (Summary, error) {
	if len(collections) == 0 {
		all, err := d.source.Collections(ctx)
		if err != nil {
			return Summary{}, fmt.Errorf("list collections: %w", err)
		}
		collections = all
		slog.Info("no collections named, processing all", "count", len(all))
	}

	results := make([]CollectionSummary, len(collections))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.opts.Parallel)

	for i, name := range collections {
		i, name := i, name
		results[i].Name = name
		g.Go(func() error {
			return d.drain(gctx, name, &results[i])
		})
	}

	err := g.Wait()
	return Summary{Collections: results}, err
}

// drain processes one stream to completion. Records are processed strictly
// sequentially.
func (d *Driver) drain(ctx context.Context, collection string, sum *CollectionSummary) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	slog.Info("processing collection", "collection", collection)

	stream, err := d.source.Stream(ctx, collection)
	if err != nil {
		return fmt.Errorf("open %s: %w", collection, err)
	}
	defer func() {
		if closeErr := stream.Close(context.WithoutCancel(ctx)); closeErr != nil && err == nil {
			err = fmt.Errorf("close %s: %w", collection, closeErr)
		}
	}()

	for ctx.Err() == nil && stream.Next(ctx) {
		sum.Scanned++

		outcome, procErr := d.processor.Process(ctx, collection, stream.Current())
		sum.add(outcome)
		if procErr == nil {
			continue
		}
		if !d.recordLocal(procErr) {
			return procErr
		}
		sum.Failed++
		slog.Error("record failed", "collection", collection, "id", outcome.Identity, "error", procErr)
	}

	if err := stream.Err(); err != nil {
		return fmt.Errorf("stream %s: %w", collection, err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	slog.Info("collection done", "collection", collection,
		"scanned", sum.Scanned, "changed", sum.Changed, "replaced", sum.Replaced,
		"skipped", sum.Skipped, "failed", sum.Failed)
	return nil
}

// recordLocal reports whether err affects only the current record.
func (d *Driver) recordLocal(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if layout.IsStructural(err) {
		return true
	}
	var re *processor.ReplaceError
	if errors.As(err, &re) {
		return d.opts.IsConnectivity == nil || !d.opts.IsConnectivity(re.Err)
	}
	return false
}
