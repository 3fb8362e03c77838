package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// InfoOptions holds flags for the info command.
type InfoOptions struct {
	*RootOptions
}

// InfoResult is the info command payload.
type InfoResult struct {
	Name       string `json:"db_name"`
	DocCount   int64  `json:"doc_count"`
	UpdateSeq  int64  `json:"update_seq"`
	Encoding   string `json:"encoding"`
	InstanceID string `json:"instance_id"`
}

// NewInfoCommand creates the info command.
func NewInfoCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InfoOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "info <database>",
		Short:         "Show database summary",
		Long:          "Show the live document count and current update sequence of a database.",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInfo(opts, args[0], cmd)
		},
	}

	return cmd
}

func runInfo(opts *InfoOptions, name string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	s, err := opts.openStore(name)
	if err != nil {
		return err
	}

	info, err := s.Info()
	if err != nil {
		return reportStoreError(formatter, err)
	}

	result := InfoResult{
		Name:       info.Name,
		DocCount:   info.DocCount,
		UpdateSeq:  info.UpdateSeq,
		Encoding:   info.Encoding,
		InstanceID: s.InstanceID(),
	}

	if formatter.Format == "json" {
		return formatter.Success(result)
	}
	fmt.Fprintf(formatter.Writer, "Database: %s\n", result.Name)
	fmt.Fprintf(formatter.Writer, "Documents: %d\n", result.DocCount)
	fmt.Fprintf(formatter.Writer, "Update sequence: %d\n", result.UpdateSeq)
	fmt.Fprintf(formatter.Writer, "Instance: %s\n", result.InstanceID)
	return nil
}
