package cli

import (
	"context"
	"encoding/json"

	"github.com/spf13/cobra"
)

// ExplainOptions holds flags for the explain command.
type ExplainOptions struct {
	*RootOptions
	Indices []string // indices overriding the FROM clause
}

// NewExplainCommand creates the explain command.
func NewExplainCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExplainOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "explain <sql>",
		Short: "Show the search request for a statement",
		Long: `Compile a SELECT statement and print the search request it
translates to, without executing it.

Column types are read from the backend and from the tables listed
in the properties file.

Examples:
  sql4go explain "SELECT name FROM products WHERE price > 10"
  sql4go explain --backend elastic "SELECT category, COUNT(*) FROM products GROUP BY category"`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExplain(cmd, opts, args[0])
		},
	}

	cmd.Flags().StringSliceVar(&opts.Indices, "index", nil, "indices to search instead of the FROM tables")

	return cmd
}

func runExplain(cmd *cobra.Command, opts *ExplainOptions, sql string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	props, err := opts.Props()
	if err != nil {
		return err
	}
	sess, err := openSession(opts.RootOptions, props)
	if err != nil {
		return err
	}
	defer sess.Close(ctx)

	if err := sess.state.BuildRequest(ctx, sql, nil, opts.Indices...); err != nil {
		return reportQueryError(formatter, err)
	}
	data, err := sess.state.Explain()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to render request", err)
	}

	if opts.Format == "json" {
		return formatter.Success(json.RawMessage(data))
	}
	_, err = cmd.OutOrStdout().Write(append(data, '\n'))
	return err
}
