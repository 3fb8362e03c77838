package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tansell/docsql/internal/store"
)

// GetOptions holds flags for the get command.
type GetOptions struct {
	*RootOptions
	Rev         string
	Latest      bool
	Attachments bool
}

// NewGetCommand creates the get command.
func NewGetCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &GetOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "get <database> <id>",
		Short: "Read one document",
		Long: `Read a document's winning revision, or an explicit one with --rev.

Local documents (ids under the _local/ prefix) are read from the
local store and carry no revision history.`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGet(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Rev, "rev", "", "read this revision instead of the winning one")
	cmd.Flags().BoolVar(&opts.Latest, "latest", false, "resolve --rev to the current leaf of its branch")
	cmd.Flags().BoolVar(&opts.Attachments, "attachments", false, "inline attachment bodies instead of stubs")

	return cmd
}

func runGet(opts *GetOptions, name, id string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	s, err := opts.openStore(name)
	if err != nil {
		return err
	}

	var body map[string]any
	if strings.HasPrefix(id, "_local/") {
		local, err := s.GetLocal(id)
		if err != nil {
			return reportStoreError(formatter, err)
		}
		body = local
	} else {
		res, err := s.Get(id, store.GetOptions{
			Rev:         opts.Rev,
			Latest:      opts.Latest,
			Attachments: opts.Attachments,
		})
		if err != nil {
			return reportStoreError(formatter, err)
		}
		body = res.Body
	}

	if formatter.Format == "json" {
		return formatter.Success(body)
	}
	data, err := json.MarshalIndent(body, "", "  ")
	if err != nil {
		return WrapExitError(ExitFailure, "encoding document", err)
	}
	fmt.Fprintln(formatter.Writer, string(data))
	return nil
}
