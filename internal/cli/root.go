package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"slices"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/roach88/sql4go/internal/config"
)

// Backends a command can run against.
const (
	BackendLocal   = "local"
	BackendElastic = "elastic"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
	Config  string // optional properties file
	Backend string // "local" | "elastic"
	DB      string // SQLite database of the local backend

	logger *slog.Logger
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// ValidBackends defines the allowed backends.
var ValidBackends = []string{BackendLocal, BackendElastic}

// NewRootCommand creates the root command for the sql4go CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "sql4go",
		Short: "sql4go - SQL over a search engine",
		Long: `Translate SELECT statements into search requests and run them.

Statements run against Elasticsearch or against a local SQLite
document store filled with the load command.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			if !slices.Contains(ValidBackends, opts.Backend) {
				return fmt.Errorf("invalid backend %q: must be one of %v", opts.Backend, ValidBackends)
			}
			if err := loadEnv(); err != nil {
				return err
			}
			level := slog.LevelWarn
			if opts.Verbose {
				level = slog.LevelDebug
			}
			opts.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVarP(&opts.Config, "config", "c", "", "properties file (YAML)")
	cmd.PersistentFlags().StringVar(&opts.Backend, "backend", BackendLocal, "search backend (local|elastic)")
	cmd.PersistentFlags().StringVar(&opts.DB, "db", "./sql4go.db", "SQLite database of the local backend")

	cmd.AddCommand(NewExplainCommand(opts))
	cmd.AddCommand(NewQueryCommand(opts))
	cmd.AddCommand(NewLoadCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// Logger returns the logger configured for the running command.
func (o *RootOptions) Logger() *slog.Logger {
	if o.logger == nil {
		return slog.Default()
	}
	return o.logger
}

// Props loads the properties named by --config plus the environment.
func (o *RootOptions) Props() (config.Props, error) {
	props, err := config.Load(o.Config)
	if err != nil {
		return config.Props{}, WrapExitError(ExitCommandError, "failed to load properties", err)
	}
	return props, nil
}

// loadEnv reads .env and then .env.local from the working directory.
// Missing files are skipped; .env.local wins over .env.
func loadEnv() error {
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	if err := godotenv.Overload(".env.local"); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env.local: %w", err)
	}
	return nil
}

// fileExists reports whether path names an existing file.
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
