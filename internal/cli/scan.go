package cli

import (
	"github.com/spf13/cobra"
)

// NewScanCommand creates the scan command: a fix run that never writes,
// never prompts and keeps no journal.
func NewScanCommand(rootOpts *RootOptions) *cobra.Command {
	return newScanCommand(&FixOptions{RootOptions: rootOpts})
}

func newScanCommand(opts *FixOptions) *cobra.Command {
	opts.scan = true

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Report invalid UTF-8 text fields and their repairs without writing",
		Long: `Stream every record of the selected collections and print each invalid
text field with its proposed repair. Nothing is written back.

Examples:
  bsonmend scan --uri mongodb://localhost:27017 --db shop
  bsonmend scan --config bsonmend.yaml --col people --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFix(opts, cmd)
		},
	}

	addStoreFlags(cmd, opts)

	return cmd
}
