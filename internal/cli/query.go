package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"
)

// QueryOptions holds flags for the query command.
type QueryOptions struct {
	*RootOptions
	MaxRows int      // row cap, 0 for none
	Indices []string // indices overriding the FROM clause
	Metrics bool     // dump metrics to stderr when done
}

// QueryResult is the JSON payload of the query command.
type QueryResult struct {
	QueryID string   `json:"query_id"`
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
	Total   int64    `json:"total"`
	Pages   int      `json:"pages"`
}

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "query <sql>",
		Short: "Execute a statement and print its rows",
		Long: `Execute a SELECT statement against the backend and print every
row of the result, following scroll pages until the result is
exhausted.

Exit codes:
  0 - Rows were printed
  1 - The statement failed to compile or produced no rows
  2 - Command error (missing database, unreachable backend, etc.)

Examples:
  sql4go query "SELECT name, price FROM products WHERE category = 'hats'"
  sql4go query --max-rows 10 --format json "SELECT * FROM products"
  sql4go query --metrics "SELECT category, AVG(price) FROM products GROUP BY category"`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd, opts, args[0])
		},
	}

	cmd.Flags().IntVarP(&opts.MaxRows, "max-rows", "n", 0, "maximum number of rows (0 for no limit)")
	cmd.Flags().StringSliceVar(&opts.Indices, "index", nil, "indices to search instead of the FROM tables")
	cmd.Flags().BoolVar(&opts.Metrics, "metrics", false, "print query metrics to stderr")

	return cmd
}

func runQuery(cmd *cobra.Command, opts *QueryOptions, sql string) error {
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
	if opts.Metrics {
		defer func() {
			if err := writeMetrics(cmd.ErrOrStderr(), sess.registry); err != nil {
				opts.Logger().Warn("write metrics failed", "error", err)
			}
		}()
	}

	state := sess.state
	state.SetMaxRows(opts.MaxRows)
	start := time.Now()
	if err := state.BuildRequest(ctx, sql, nil, opts.Indices...); err != nil {
		return reportQueryError(formatter, err)
	}

	out := QueryResult{QueryID: state.ID(), Columns: state.Heading().Labels(), Rows: [][]any{}}
	rs, err := state.Execute(ctx)
	for err == nil && rs != nil {
		out.Pages++
		out.Total = rs.Total()
		out.Rows = append(out.Rows, rs.VisibleRows()...)
		formatter.VerboseLog("page %d: %d row(s) at offset %d", out.Pages, rs.Len(), rs.Offset())
		rs, err = state.MoreResults(ctx)
	}
	if err != nil {
		return reportQueryError(formatter, err)
	}
	opts.Logger().Info("query finished",
		"query_id", out.QueryID,
		"rows", len(out.Rows),
		"pages", out.Pages,
		"duration", time.Since(start),
	)

	if opts.Format == "json" {
		return json.NewEncoder(formatter.Writer).Encode(CLIResponse{Status: "ok", Data: out, QueryID: out.QueryID})
	}
	cells := make([][]string, len(out.Rows))
	for i, row := range out.Rows {
		cells[i] = make([]string, len(row))
		for j, v := range row {
			cells[i][j] = formatValue(v)
		}
	}
	if err := formatter.Table(out.Columns, cells); err != nil {
		return err
	}
	fmt.Fprintf(formatter.Writer, "%d row(s)\n", len(out.Rows))
	return nil
}

// formatValue renders one cell of the text table.
func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case string:
		return x
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	case map[string]any, []any:
		data, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(data)
	}
	return fmt.Sprint(v)
}

// writeMetrics dumps reg in the Prometheus text exposition format.
func writeMetrics(w io.Writer, reg *prometheus.Registry) error {
	families, err := reg.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("write metrics: %w", err)
		}
	}
	return nil
}
