package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tansell/docsql/internal/store"
)

// AllDocsOptions holds flags for the all-docs command.
type AllDocsOptions struct {
	*RootOptions
	StartKey     string
	EndKey       string
	Key          string
	ExclusiveEnd bool
	Descending   bool
	Limit        int
	Skip         int
	IncludeDocs  bool
	Conflicts    bool
}

// AllDocsRow is one scan row in command output.
type AllDocsRow struct {
	ID      string         `json:"id"`
	Rev     string         `json:"rev,omitempty"`
	Deleted bool           `json:"deleted,omitempty"`
	Doc     map[string]any `json:"doc,omitempty"`
}

// AllDocsResponse is the all-docs command payload.
type AllDocsResponse struct {
	TotalRows int64        `json:"total_rows"`
	Offset    int          `json:"offset"`
	Rows      []AllDocsRow `json:"rows"`
}

// NewAllDocsCommand creates the all-docs command.
func NewAllDocsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AllDocsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "all-docs <database>",
		Short: "Scan documents in id order",
		Long: `Scan winning revisions over the primary index, in id order.

Bounds are inclusive unless --exclusive-end is set. With --descending
the scan runs high to low and --start is the high bound.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAllDocs(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.StartKey, "start", "", "first id in the scan")
	cmd.Flags().StringVar(&opts.EndKey, "end", "", "last id in the scan")
	cmd.Flags().StringVar(&opts.Key, "key", "", "scan exactly this id")
	cmd.Flags().BoolVar(&opts.ExclusiveEnd, "exclusive-end", false, "exclude --end from the scan")
	cmd.Flags().BoolVar(&opts.Descending, "descending", false, "scan high to low")
	cmd.Flags().IntVar(&opts.Limit, "limit", -1, "cap returned rows (-1 for unlimited)")
	cmd.Flags().IntVar(&opts.Skip, "skip", 0, "skip this many rows")
	cmd.Flags().BoolVar(&opts.IncludeDocs, "include-docs", false, "include document bodies")
	cmd.Flags().BoolVar(&opts.Conflicts, "conflicts", false, "annotate bodies with conflicting leaf revisions")

	return cmd
}

func runAllDocs(opts *AllDocsOptions, name string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	s, err := opts.openStore(name)
	if err != nil {
		return err
	}

	scan := store.AllDocsOptions{
		ExclusiveEnd: opts.ExclusiveEnd,
		Descending:   opts.Descending,
		Skip:         opts.Skip,
		IncludeDocs:  opts.IncludeDocs || opts.Conflicts,
		Conflicts:    opts.Conflicts,
	}
	if cmd.Flags().Changed("start") {
		scan.StartKey = &opts.StartKey
	}
	if cmd.Flags().Changed("end") {
		scan.EndKey = &opts.EndKey
	}
	if cmd.Flags().Changed("key") {
		scan.Key = &opts.Key
	}
	if opts.Limit >= 0 {
		scan.Limit = &opts.Limit
	}

	res, err := s.AllDocs(scan)
	if err != nil {
		return reportStoreError(formatter, err)
	}

	resp := AllDocsResponse{
		TotalRows: res.TotalRows,
		Offset:    res.Offset,
		Rows:      make([]AllDocsRow, 0, len(res.Rows)),
	}
	for _, row := range res.Rows {
		out := AllDocsRow{ID: row.ID, Rev: row.Rev, Deleted: row.Deleted}
		if opts.IncludeDocs {
			out.Doc = row.Doc
		}
		resp.Rows = append(resp.Rows, out)
	}

	if formatter.Format == "json" {
		return formatter.Success(resp)
	}
	fmt.Fprintf(formatter.Writer, "Total: %d, showing %d row(s)\n", resp.TotalRows, len(resp.Rows))
	for _, row := range resp.Rows {
		fmt.Fprintf(formatter.Writer, "  %s  %s\n", row.ID, row.Rev)
	}
	return nil
}
