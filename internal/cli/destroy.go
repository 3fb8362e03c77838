package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// DestroyOptions holds flags for the destroy command.
type DestroyOptions struct {
	*RootOptions
	Force bool
}

// NewDestroyCommand creates the destroy command.
func NewDestroyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DestroyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "destroy <database>",
		Short: "Destroy a database",
		Long: `Drop every table of a database and remove its change listeners.
Destroyed data is unrecoverable; the command requires --force.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDestroy(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Force, "force", false, "confirm destruction")

	return cmd
}

func runDestroy(opts *DestroyOptions, name string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	if !opts.Force {
		return NewExitError(ExitCommandError, "destroy is irreversible; pass --force to confirm")
	}

	s, err := opts.openStore(name)
	if err != nil {
		return err
	}

	if err := s.Destroy(); err != nil {
		return reportStoreError(formatter, err)
	}

	if formatter.Format == "json" {
		return formatter.Success(map[string]any{"ok": true})
	}
	fmt.Fprintf(formatter.Writer, "Destroyed %s\n", name)
	return nil
}
