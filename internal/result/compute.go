package result

import (
	"fmt"

	"github.com/google/cel-go/cel"

	"github.com/roach88/sql4go/internal/model"
)

// Computer evaluates the computed columns of a heading row by row.
type Computer struct {
	columns  []*model.Column
	programs []cel.Program
}

// NewComputer compiles the expression of every computed column of h.
// Expressions see their arguments as the double variables c0..cN.
func NewComputer(h *model.Heading) (*Computer, error) {
	comp := &Computer{}
	for _, c := range h.Computed() {
		if c.Computation == nil {
			return nil, fmt.Errorf("column %s has no expression", c.Label)
		}
		opts := make([]cel.EnvOption, len(c.Computation.Args))
		for i := range c.Computation.Args {
			opts[i] = cel.Variable(argName(i), cel.DoubleType)
		}
		env, err := cel.NewEnv(opts...)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", c.Label, err)
		}
		ast, issues := env.Compile(c.Computation.Expr)
		if issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("column %s: compile %q: %w", c.Label, c.Computation.Expr, issues.Err())
		}
		prg, err := env.Program(ast)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", c.Label, err)
		}
		comp.columns = append(comp.columns, c)
		comp.programs = append(comp.programs, prg)
	}
	return comp, nil
}

func argName(i int) string { return fmt.Sprintf("c%d", i) }

// Empty reports whether there is nothing to compute.
func (comp *Computer) Empty() bool { return len(comp.columns) == 0 }

// Apply fills the computed columns of every row. A computation with a NULL
// or non-numeric argument yields NULL.
func (comp *Computer) Apply(rs *ResultSet) error {
	if rs.Closed() {
		return ErrClosed
	}
	for _, row := range rs.Rows() {
		for i, c := range comp.columns {
			v, err := evaluate(comp.programs[i], c.Computation.Args, row)
			if err != nil {
				return fmt.Errorf("column %s: %w", c.Label, err)
			}
			row[c.Index] = v
		}
	}
	return nil
}

func evaluate(prg cel.Program, args []int, row []any) (any, error) {
	vars := make(map[string]any, len(args))
	for i, col := range args {
		f, ok := model.ToFloat(row[col])
		if !ok {
			return nil, nil
		}
		vars[argName(i)] = f
	}
	out, _, err := prg.Eval(vars)
	if err != nil {
		return nil, err
	}
	f, ok := model.ToFloat(out.Value())
	if !ok {
		return nil, fmt.Errorf("expression produced %T", out.Value())
	}
	return f, nil
}
