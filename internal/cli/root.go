package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/tansell/docsql/internal/store"
)

// RootOptions holds global flags shared by all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
	Dir     string // directory holding database files
	Config  string // optional YAML config path

	// registry is lazily built from flags and config on first use.
	registry *store.Registry
	config   *Config
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the docsql CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "docsql",
		Short: "docsql - replicating document store on SQLite",
		Long:  "A multi-version document database on SQLite: revision trees, a change feed, and replication-ready bulk writes.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			cfg, err := LoadConfig(opts.Config)
			if err != nil {
				return err
			}
			opts.config = cfg
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Dir, "dir", ".", "directory holding database files")
	cmd.PersistentFlags().StringVar(&opts.Config, "config", "", "path to YAML config file")

	cmd.AddCommand(NewInfoCommand(opts))
	cmd.AddCommand(NewGetCommand(opts))
	cmd.AddCommand(NewPutCommand(opts))
	cmd.AddCommand(NewDeleteCommand(opts))
	cmd.AddCommand(NewAllDocsCommand(opts))
	cmd.AddCommand(NewChangesCommand(opts))
	cmd.AddCommand(NewCompactCommand(opts))
	cmd.AddCommand(NewDestroyCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// openStore opens the named database with the effective options: config
// file values first, command-line flags on top.
func (o *RootOptions) openStore(name string) (*store.Store, error) {
	if o.registry == nil {
		o.registry = store.NewRegistry()
	}
	cfg := o.config
	if cfg == nil {
		cfg = &Config{}
	}

	dir := o.Dir
	if dir == "." && cfg.Dir != "" {
		dir = cfg.Dir
	}

	var logger *slog.Logger
	if o.Verbose {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))
	}

	s, err := o.registry.Open(store.Options{
		Name:              name,
		Dir:               dir,
		RevsLimit:         cfg.RevsLimit,
		DeterministicRevs: cfg.DeterministicRevs,
		AutoCompaction:    cfg.AutoCompaction,
		Logger:            logger,
	})
	if err != nil {
		return nil, WrapExitError(ExitCommandError, fmt.Sprintf("open database %q", name), err)
	}
	return s, nil
}
