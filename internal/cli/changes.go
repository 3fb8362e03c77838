package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tansell/docsql/internal/store"
)

// ChangesOptions holds flags for the changes command.
type ChangesOptions struct {
	*RootOptions
	Since       int64
	Limit       int
	Descending  bool
	IncludeDocs bool
}

// ChangeRow is one feed entry in command output.
type ChangeRow struct {
	ID      string         `json:"id"`
	Seq     int64          `json:"seq"`
	Rev     string         `json:"rev"`
	Deleted bool           `json:"deleted,omitempty"`
	Doc     map[string]any `json:"doc,omitempty"`
}

// ChangesResponse is the changes command payload.
type ChangesResponse struct {
	Results []ChangeRow `json:"results"`
	LastSeq int64       `json:"last_seq"`
}

// NewChangesCommand creates the changes command.
func NewChangesCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ChangesOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "changes <database>",
		Short: "Read the change feed",
		Long: `Read the change feed once, in sequence order. Each document appears
at most once, at its winning revision and latest sequence.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChanges(opts, args[0], cmd)
		},
	}

	cmd.Flags().Int64Var(&opts.Since, "since", 0, "skip changes at or below this sequence")
	cmd.Flags().IntVar(&opts.Limit, "limit", -1, "cap returned changes (-1 for unlimited)")
	cmd.Flags().BoolVar(&opts.Descending, "descending", false, "newest first")
	cmd.Flags().BoolVar(&opts.IncludeDocs, "include-docs", false, "include document bodies")

	return cmd
}

func runChanges(opts *ChangesOptions, name string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	s, err := opts.openStore(name)
	if err != nil {
		return err
	}

	feed := store.ChangesOptions{
		Since:       opts.Since,
		Descending:  opts.Descending,
		IncludeDocs: opts.IncludeDocs,
	}
	if opts.Limit >= 0 {
		feed.Limit = &opts.Limit
	}

	res, err := s.Changes(feed)
	if err != nil {
		return reportStoreError(formatter, err)
	}

	resp := ChangesResponse{
		LastSeq: res.LastSeq,
		Results: make([]ChangeRow, 0, len(res.Results)),
	}
	for _, c := range res.Results {
		row := ChangeRow{ID: c.ID, Seq: c.Seq, Rev: c.Rev, Deleted: c.Deleted}
		if opts.IncludeDocs {
			row.Doc = c.Doc
		}
		resp.Results = append(resp.Results, row)
	}

	if formatter.Format == "json" {
		return formatter.Success(resp)
	}
	for _, row := range resp.Results {
		marker := ""
		if row.Deleted {
			marker = "  (deleted)"
		}
		fmt.Fprintf(formatter.Writer, "%4d  %s  %s%s\n", row.Seq, row.ID, row.Rev, marker)
	}
	fmt.Fprintf(formatter.Writer, "Last sequence: %d\n", resp.LastSeq)
	return nil
}
