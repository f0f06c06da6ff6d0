package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/bsonmend/internal/journal"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Journal string
	RunID   string // optional - specific run only
}

// HistoryResult is the history listing.
type HistoryResult struct {
	Runs    []HistoryRun    `json:"runs"`
	Entries []journal.Entry `json:"entries"`
}

// HistoryRun is one run as listed by history.
type HistoryRun struct {
	ID        string `json:"id"`
	StartedAt string `json:"started_at"`
	Database  string `json:"database"`
	DryRun    bool   `json:"dry_run"`
	Confirm   bool   `json:"confirm"`
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	return newHistoryCommand(&HistoryOptions{RootOptions: rootOpts})
}

func newHistoryCommand(opts *HistoryOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List repair decisions recorded in a journal",
		Long: `List the runs and per-field decisions stored in a decision journal.

Examples:
  bsonmend history --journal decisions.db
  bsonmend history --journal decisions.db --run 01932c4e-7d1a-7b3f-9a2e-5c8d4f6e1a2b --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Journal, "journal", "", "path to SQLite decision journal (required)")
	_ = cmd.MarkFlagRequired("journal")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "list one run only")

	return cmd
}

func runHistory(opts *HistoryOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	// Open would create an empty journal; a typo in the path should not.
	if _, err := os.Stat(opts.Journal); err != nil {
		return WrapExitError(ExitCommandError, "journal not found", err)
	}

	j, err := journal.Open(opts.Journal)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open journal", err)
	}
	defer j.Close()

	runs, err := j.Runs(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list runs", err)
	}
	entries, err := j.List(ctx, opts.RunID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list decisions", err)
	}

	result := HistoryResult{Runs: []HistoryRun{}, Entries: entries}
	for _, r := range runs {
		if opts.RunID != "" && r.ID != opts.RunID {
			continue
		}
		result.Runs = append(result.Runs, HistoryRun{
			ID:        r.ID,
			StartedAt: r.StartedAt.Format(time.RFC3339),
			Database:  r.Database,
			DryRun:    r.DryRun,
			Confirm:   r.Confirm,
		})
	}

	if opts.RunID != "" && len(result.Runs) == 0 {
		return NewExitError(ExitCommandError, fmt.Sprintf("run %s not found", opts.RunID))
	}

	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), RunID: opts.RunID}
	return formatter.Report(result, nil, func(w io.Writer) {
		writeHistory(w, result)
	})
}

func writeHistory(w io.Writer, result HistoryResult) {
	if len(result.Runs) == 0 {
		fmt.Fprintln(w, "No runs recorded in journal.")
		return
	}

	byRun := make(map[string][]journal.Entry, len(result.Runs))
	for _, e := range result.Entries {
		byRun[e.RunID] = append(byRun[e.RunID], e)
	}

	for _, r := range result.Runs {
		flags := ""
		if r.DryRun {
			flags += " dry-run"
		}
		if r.Confirm {
			flags += " confirm"
		}
		fmt.Fprintf(w, "Run %s  %s  %s%s\n", r.ID, r.StartedAt, r.Database, flags)

		entries := byRun[r.ID]
		if len(entries) == 0 {
			fmt.Fprintln(w, "  (no decisions)")
		}
		for _, e := range entries {
			status := "✓"
			if !e.Accepted {
				status = "✗"
			}
			fmt.Fprintf(w, "  %s %s [%s][%s] %q -> %q\n", status, e.Collection, e.RecordID, e.Path, e.Original, e.Candidate)
		}
		fmt.Fprintln(w)
	}
}
