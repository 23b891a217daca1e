package harness

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/go-cmp/cmp"
)

// AssertionError is returned when an expectation fails.
type AssertionError struct {
	Type     string // what was compared: columns, rows, pages or error
	Expected string
	Actual   string
	Diff     string // row diff, when rows differ
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s", e.Actual)
	if e.Diff != "" {
		fmt.Fprintf(&buf, "\n  Diff (-expected +actual):\n%s", e.Diff)
	}
	return buf.String()
}

// checkStep compares what a step produced with its expectations.
func checkStep(want Expect, got StepResult) []error {
	var errs []error
	if want.Error != "" || got.Code != "" {
		if want.Error != got.Code {
			errs = append(errs, &AssertionError{
				Type:     "error",
				Expected: describeCode(want.Error),
				Actual:   describeCode(got.Code),
			})
		}
		return errs
	}
	if want.Columns != nil && !slices.Equal(want.Columns, got.Columns) {
		errs = append(errs, &AssertionError{
			Type:     "columns",
			Expected: fmt.Sprint(want.Columns),
			Actual:   fmt.Sprint(got.Columns),
		})
	}
	if want.Rows != nil {
		if diff := cmp.Diff(normalizeRows(want.Rows), normalizeRows(got.Rows)); diff != "" {
			errs = append(errs, &AssertionError{
				Type:     "rows",
				Expected: fmt.Sprintf("%d row(s)", len(want.Rows)),
				Actual:   fmt.Sprintf("%d row(s)", len(got.Rows)),
				Diff:     diff,
			})
		}
	}
	if want.Pages > 0 && want.Pages != got.Pages {
		errs = append(errs, &AssertionError{
			Type:     "pages",
			Expected: fmt.Sprint(want.Pages),
			Actual:   fmt.Sprint(got.Pages),
		})
	}
	return errs
}

func describeCode(code string) string {
	if code == "" {
		return "no error"
	}
	return code
}


func normalizeRows(rows [][]any) [][]any {
	out := make([][]any, len(rows))
	for i, row := range rows {
		out[i] = make([]any, len(row))
		for j, v := range row {
			out[i][j] = normalize(v)
		}
	}
	return out
}

// normalize makes YAML-decoded and materialized values comparable:
// every number becomes float64 and times become RFC 3339 text.
func normalize(v any) any {
	switch x := v.(type) {
	case int:
		return float64(x)
	case int8:
		return float64(x)
	case int16:
		return float64(x)
	case int32:
		return float64(x)
	case int64:
		return float64(x)
	case uint:
		return float64(x)
	case uint64:
		return float64(x)
	case float32:
		return float64(x)
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = normalize(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = normalize(e)
		}
		return out
	}
	return v
}
