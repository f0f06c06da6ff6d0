package journal

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/roach88/bsonmend/internal/review"
)

// Run describes one invocation of fix.
type Run struct {
	ID        string
	StartedAt time.Time
	Database  string
	DryRun    bool
	Confirm   bool
}

// BeginRun inserts a run record. Decisions reference it by ID.
// Uses ON CONFLICT(id) DO NOTHING so a retried BeginRun is harmless.
func (j *Journal) BeginRun(ctx context.Context, run Run) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO runs (id, started_at, database, dry_run, confirm, seq)
		VALUES (?, ?, ?, ?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM runs))
		ON CONFLICT(id) DO NOTHING
	`,
		run.ID,
		run.StartedAt.UTC().Format(time.RFC3339Nano),
		run.Database,
		run.DryRun,
		run.Confirm,
	)
	if err != nil {
		return fmt.Errorf("begin run: %w", err)
	}
	return nil
}

// Record appends one decision to run runID.
func (j *Journal) Record(ctx context.Context, runID string, d review.Decision) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO decisions
		(run_id, collection, record_id, path, raw_sha256, original, candidate, accepted)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		runID,
		d.Collection,
		d.Identity,
		d.Path,
		Fingerprint(d.Raw),
		d.Original,
		d.Candidate,
		d.Accepted,
	)
	if err != nil {
		return fmt.Errorf("record decision: %w", err)
	}
	return nil
}

// Fingerprint returns the hex SHA-256 of raw payload bytes.
func Fingerprint(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
