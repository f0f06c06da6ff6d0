package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/roach88/bsonmend/internal/config"
	"github.com/roach88/bsonmend/internal/driver"
	"github.com/roach88/bsonmend/internal/journal"
	"github.com/roach88/bsonmend/internal/mongostore"
	"github.com/roach88/bsonmend/internal/processor"
	"github.com/roach88/bsonmend/internal/review"
	"github.com/roach88/bsonmend/internal/rewrite"
)

// FixOptions holds flags for the fix and scan commands.
type FixOptions struct {
	*RootOptions
	ConfigPath string

	// Flag values. Only flags set on the command line override the config file.
	URI          string
	Database     string
	Collections  []string
	Confirm      bool
	DryRun       bool
	Parallel     int
	Journal      string
	SkipDeclined bool

	// Connect allows overriding the store connection (for testing).
	// If nil, defaults to MongoDB.
	Connect Connector

	// RunIDs allows overriding the run ID generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	RunIDs journal.RunIDGenerator

	scan bool
}

// NewFixCommand creates the fix command.
func NewFixCommand(rootOpts *RootOptions) *cobra.Command {
	return newFixCommand(&FixOptions{RootOptions: rootOpts})
}

func newFixCommand(opts *FixOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fix",
		Short: "Repair invalid UTF-8 text fields in place",
		Long: `Stream every record of the selected collections, repair string fields
that are not valid UTF-8 and write changed records back by _id.

Exit codes:
  0 - Run completed, no record failed
  1 - Run completed, some records failed (structural corruption, rejected writes)
  2 - Command error (bad configuration, store unreachable, run aborted)

Examples:
  bsonmend fix --uri mongodb://localhost:27017 --db shop
  bsonmend fix --uri mongodb://localhost:27017 --db shop --col people --confirm
  bsonmend fix --config bsonmend.yaml --dry-run --format json
  bsonmend fix --config bsonmend.yaml --confirm --journal decisions.db --skip-declined`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFix(opts, cmd)
		},
	}

	addStoreFlags(cmd, opts)
	cmd.Flags().BoolVar(&opts.Confirm, "confirm", false, "ask before applying each repair")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "compute and print repairs without writing")
	cmd.Flags().StringVar(&opts.Journal, "journal", "", "path to SQLite decision journal")
	cmd.Flags().BoolVar(&opts.SkipDeclined, "skip-declined", false, "decline repairs already declined in the journal without asking")

	return cmd
}

// addStoreFlags registers the flags shared by fix and scan.
func addStoreFlags(cmd *cobra.Command, opts *FixOptions) {
	flags := cmd.Flags()
	flags.StringVar(&opts.ConfigPath, "config", "", "YAML config file")
	flags.StringVar(&opts.URI, "uri", "", "MongoDB connection string")
	flags.StringVar(&opts.Database, "database", "", "database name (alias --db)")
	flags.StringArrayVar(&opts.Collections, "collection", nil, "collection to process, repeatable (alias --col); default all")
	flags.IntVar(&opts.Parallel, "parallel", 1, "collections processed concurrently")
	flags.SetNormalizeFunc(flagAliases)
}

// flagAliases maps short flag spellings onto their canonical names.
func flagAliases(_ *pflag.FlagSet, name string) pflag.NormalizedName {
	switch name {
	case "db":
		name = "database"
	case "col":
		name = "collection"
	}
	return pflag.NormalizedName(name)
}

// resolveConfig merges the config file with explicitly set flags.
func (opts *FixOptions) resolveConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.Default()
	if opts.ConfigPath != "" {
		loaded, err := config.Load(opts.ConfigPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("uri") {
		cfg.URI = opts.URI
	}
	if flags.Changed("database") {
		cfg.Database = opts.Database
	}
	if flags.Changed("collection") {
		cfg.Collections = opts.Collections
	}
	if flags.Changed("parallel") {
		cfg.Parallel = opts.Parallel
	}
	if flags.Changed("confirm") {
		cfg.Confirm = opts.Confirm
	}
	if flags.Changed("dry-run") {
		cfg.DryRun = opts.DryRun
	}
	if flags.Changed("journal") {
		cfg.Journal = opts.Journal
	}
	if flags.Changed("skip-declined") {
		cfg.SkipDeclined = opts.SkipDeclined
	}

	if opts.scan {
		cfg.DryRun = true
		cfg.Confirm = false
		cfg.Journal = ""
		cfg.SkipDeclined = false
	}

	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// RunReport is the result printed at the end of fix and scan.
type RunReport struct {
	Database    string                     `json:"database"`
	DryRun      bool                       `json:"dry_run"`
	Collections []driver.CollectionSummary `json:"collections"`
	Totals      driver.CollectionSummary   `json:"totals"`
}

func runFix(opts *FixOptions, cmd *cobra.Command) error {
	cfg, err := opts.resolveConfig(cmd)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	runIDs := opts.RunIDs
	if runIDs == nil {
		runIDs = journal.UUIDv7Generator{}
	}
	runID := runIDs.Generate()

	// In JSON mode stdout carries only the report; per-record diagnostics and
	// prompts move to stderr.
	diag := cmd.OutOrStdout()
	if opts.Format == "json" {
		diag = cmd.ErrOrStderr()
	}
	diag = &syncWriter{w: diag}

	connect := opts.Connect
	if connect == nil {
		connect = connectMongo
	}

	slog.Info("starting run", "run", runID, "database", cfg.Database,
		"collections", len(cfg.Collections), "dry_run", cfg.DryRun,
		"confirm", cfg.Confirm, "parallel", cfg.Parallel)

	backend, err := connect(ctx, cfg.URI, cfg.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to connect", err)
	}
	defer func() {
		if closeErr := backend.Close(context.WithoutCancel(ctx)); closeErr != nil {
			slog.Error("error closing store connection", "error", closeErr)
		}
	}()

	reviewer, closeJournal, err := newReviewer(ctx, cmd, cfg, runID, diag)
	if err != nil {
		return err
	}
	defer closeJournal()

	proc := processor.New(rewrite.New(reviewer), backend, diag, processor.Options{DryRun: cfg.DryRun})
	drv := driver.New(backend, proc, driver.Options{
		Parallel:       cfg.Parallel,
		IsConnectivity: mongostore.IsConnectivityError,
	})

	started := time.Now()
	summary, runErr := drv.Run(ctx, cfg.Collections)
	totals := summary.Totals()
	slog.Info("run finished", "run", runID, "elapsed", time.Since(started),
		"scanned", totals.Scanned, "replaced", totals.Replaced, "failed", totals.Failed)

	report := RunReport{
		Database:    cfg.Database,
		DryRun:      cfg.DryRun,
		Collections: summary.Collections,
		Totals:      totals,
	}

	exitErr := classifyRunError(runErr, totals)
	var cliErr *CLIError
	if exitErr != nil {
		cliErr = &CLIError{Code: errorCode(exitErr), Message: exitErr.Error()}
	}

	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), RunID: runID}
	if err := formatter.Report(report, cliErr, func(w io.Writer) {
		writeRunReport(w, runID, report)
	}); err != nil {
		return WrapExitError(ExitCommandError, "failed to write report", err)
	}

	if exitErr != nil {
		return exitErr
	}
	return nil
}

// newReviewer builds the reviewer for cfg: auto-approve or interactive, with
// the journal attached when configured. The returned func closes the journal.
func newReviewer(ctx context.Context, cmd *cobra.Command, cfg *config.Config, runID string, out io.Writer) (*review.Reviewer, func(), error) {
	var decider review.Decider = review.AutoApprove{}
	if cfg.Confirm {
		decider = review.NewPrompter(cmd.InOrStdin(), out)
	}

	if cfg.Journal == "" {
		return review.NewReviewer(decider, out), func() {}, nil
	}

	j, err := journal.Open(cfg.Journal)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "failed to open journal", err)
	}
	closeJournal := func() {
		if err := j.Close(); err != nil {
			slog.Error("error closing journal", "error", err)
		}
	}

	err = j.BeginRun(ctx, journal.Run{
		ID:        runID,
		StartedAt: time.Now(),
		Database:  cfg.Database,
		DryRun:    cfg.DryRun,
		Confirm:   cfg.Confirm,
	})
	if err != nil {
		closeJournal()
		return nil, nil, WrapExitError(ExitCommandError, "failed to start journal run", err)
	}

	return review.NewReviewer(decider, out, review.WithHistory(j.ForRun(runID), cfg.SkipDeclined)), closeJournal, nil
}

// classifyRunError maps the driver result onto exit codes.
func classifyRunError(runErr error, totals driver.CollectionSummary) *ExitError {
	switch {
	case errors.Is(runErr, context.Canceled):
		return WrapExitError(ExitCommandError, "run interrupted", runErr)
	case runErr != nil:
		return WrapExitError(ExitCommandError, "run aborted", runErr)
	case totals.Failed > 0:
		return NewExitError(ExitFailure, fmt.Sprintf("%d record(s) failed", totals.Failed))
	}
	return nil
}

func errorCode(e *ExitError) string {
	if e.Code == ExitFailure {
		return "E_RECORDS"
	}
	return "E_ABORTED"
}

// writeRunReport renders report as text.
func writeRunReport(w io.Writer, runID string, report RunReport) {
	mode := "fix"
	if report.DryRun {
		mode = "dry run"
	}
	fmt.Fprintf(w, "Run %s (%s) on %s: %d collection(s)\n", runID, mode, report.Database, len(report.Collections))
	fmt.Fprintln(w)

	for _, c := range report.Collections {
		status := "✓"
		if c.Failed > 0 {
			status = "✗"
		}
		fmt.Fprintf(w, "%s %s\n", status, c.Name)
		writeCounts(w, c)
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Total")
	writeCounts(w, report.Totals)
}

func writeCounts(w io.Writer, c driver.CollectionSummary) {
	fmt.Fprintf(w, "  Scanned: %d  Changed: %d  Replaced: %d\n", c.Scanned, c.Changed, c.Replaced)
	if c.Declined+c.Skipped+c.Vanished+c.Failed > 0 {
		fmt.Fprintf(w, "  Declined: %d  Skipped: %d  Vanished: %d  Failed: %d\n",
			c.Declined, c.Skipped, c.Vanished, c.Failed)
	}
}
