package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// DeleteOptions holds flags for the delete command.
type DeleteOptions struct {
	*RootOptions
}

// NewDeleteCommand creates the delete command.
func NewDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DeleteOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "delete <database> <id> <rev>",
		Short: "Delete a document",
		Long: `Delete a document by writing a tombstone revision on top of the
given revision. The document stays readable by explicit revision and
keeps appearing in the change feed.`,
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDelete(opts, args[0], args[1], args[2], cmd)
		},
	}

	return cmd
}

func runDelete(opts *DeleteOptions, name, id, rev string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	s, err := opts.openStore(name)
	if err != nil {
		return err
	}

	res, err := s.Delete(id, rev)
	if err != nil {
		return reportStoreError(formatter, err)
	}

	if formatter.Format == "json" {
		return formatter.Success(WriteResponse{OK: true, ID: res.ID, Rev: res.Rev})
	}
	fmt.Fprintf(formatter.Writer, "Deleted %s at revision %s\n", res.ID, res.Rev)
	return nil
}
