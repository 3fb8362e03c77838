package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// CompactOptions holds flags for the compact command.
type CompactOptions struct {
	*RootOptions
}

// NewCompactCommand creates the compact command.
func NewCompactCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompactOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compact <database>",
		Short: "Drop non-leaf revision bodies",
		Long: `Drop the stored bodies of non-leaf revisions and garbage-collect
attachments no surviving revision references. Revision trees keep
their shape; only bodies are removed.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompact(opts, args[0], cmd)
		},
	}

	return cmd
}

func runCompact(opts *CompactOptions, name string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	s, err := opts.openStore(name)
	if err != nil {
		return err
	}

	if err := s.Compact(); err != nil {
		return reportStoreError(formatter, err)
	}

	if formatter.Format == "json" {
		return formatter.Success(map[string]any{"ok": true})
	}
	fmt.Fprintf(formatter.Writer, "Compacted %s\n", name)
	return nil
}
