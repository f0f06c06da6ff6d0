package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/bsonmend/internal/review"
)

// Entry is one stored decision.
type Entry struct {
	Seq        int64  `json:"seq"`
	RunID      string `json:"run_id"`
	Collection string `json:"collection"`
	RecordID   string `json:"record_id"`
	Path       string `json:"path"`
	RawSHA256  string `json:"raw_sha256"`
	Original   string `json:"original"`
	Candidate  string `json:"candidate"`
	Accepted   bool   `json:"accepted"`
}

// WasDeclined reports whether the most recent decision for the same field
// of the same record, with identical original bytes, was a decline.
// A later acceptance of the same bytes clears it.
func (j *Journal) WasDeclined(ctx context.Context, req review.Request) (bool, error) {
	var accepted bool
	err := j.db.QueryRowContext(ctx, `
		SELECT accepted FROM decisions
		WHERE collection = ? AND record_id = ? AND path = ? AND raw_sha256 = ?
		ORDER BY seq DESC
		LIMIT 1
	`, req.Collection, req.Identity, req.Path, Fingerprint(req.Raw)).Scan(&accepted)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup decision: %w", err)
	}
	return !accepted, nil
}

// List returns decisions ordered by seq. An empty runID lists every run.
//
// Returns an empty slice (not nil) if nothing matches.
func (j *Journal) List(ctx context.Context, runID string) ([]Entry, error) {
	query := `
		SELECT seq, run_id, collection, record_id, path, raw_sha256, original, candidate, accepted
		FROM decisions
	`
	var args []any
	if runID != "" {
		query += " WHERE run_id = ?"
		args = append(args, runID)
	}
	query += " ORDER BY seq ASC"

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query decisions: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Seq, &e.RunID, &e.Collection, &e.RecordID, &e.Path,
			&e.RawSHA256, &e.Original, &e.Candidate, &e.Accepted); err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate decisions: %w", err)
	}
	return entries, nil
}

// Runs returns every run, oldest first.
func (j *Journal) Runs(ctx context.Context) ([]Run, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, started_at, database, dry_run, confirm
		FROM runs
		ORDER BY seq ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		var (
			r       Run
			started string
		)
		if err := rows.Scan(&r.ID, &started, &r.Database, &r.DryRun, &r.Confirm); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.StartedAt, err = time.Parse(time.RFC3339Nano, started)
		if err != nil {
			return nil, fmt.Errorf("run %s: parse started_at: %w", r.ID, err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// ForRun returns a review.History that records into run runID.
func (j *Journal) ForRun(runID string) review.History {
	return runHistory{j: j, runID: runID}
}

type runHistory struct {
	j     *Journal
	runID string
}

func (h runHistory) WasDeclined(ctx context.Context, req review.Request) (bool, error) {
	return h.j.WasDeclined(ctx, req)
}

func (h runHistory) Record(ctx context.Context, d review.Decision) error {
	return h.j.Record(ctx, h.runID, d)
}
