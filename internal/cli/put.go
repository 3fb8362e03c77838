package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/tansell/docsql/internal/doc"
)

// PutOptions holds flags for the put command.
type PutOptions struct {
	*RootOptions
}

// WriteResponse is the payload for a successful write.
type WriteResponse struct {
	OK  bool   `json:"ok"`
	ID  string `json:"id"`
	Rev string `json:"rev"`
}

// NewPutCommand creates the put command.
func NewPutCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PutOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "put <database> [json]",
		Short: "Write a document",
		Long: `Write a document from a JSON body given as an argument or on stdin.

Updating an existing document requires its current _rev in the body;
a stale or absent _rev yields a conflict. Bodies without _id get a
generated one.`,
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPut(opts, args, cmd)
		},
	}

	return cmd
}

func runPut(opts *PutOptions, args []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	raw, err := readBody(args, cmd.InOrStdin())
	if err != nil {
		return WrapExitError(ExitCommandError, "reading document body", err)
	}

	var body doc.Body
	if err := json.Unmarshal(raw, &body); err != nil {
		if outErr := formatter.Error(ErrCodeBadInput, fmt.Sprintf("invalid JSON body: %v", err), nil); outErr != nil {
			return outErr
		}
		return NewExitError(ExitCommandError, "invalid JSON body")
	}

	s, err := opts.openStore(args[0])
	if err != nil {
		return err
	}

	res, err := s.Put(body)
	if err != nil {
		return reportStoreError(formatter, err)
	}

	if formatter.Format == "json" {
		return formatter.Success(WriteResponse{OK: true, ID: res.ID, Rev: res.Rev})
	}
	fmt.Fprintf(formatter.Writer, "Wrote %s at revision %s\n", res.ID, res.Rev)
	return nil
}

// readBody returns the document body from the second positional argument
// or, when absent, from stdin.
func readBody(args []string, stdin io.Reader) ([]byte, error) {
	if len(args) > 1 {
		return []byte(args[1]), nil
	}
	return io.ReadAll(stdin)
}
