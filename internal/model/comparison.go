package model

import (
	"fmt"
	"strings"
)

// Comparison is a HAVING predicate evaluated against a materialized
// aggregate row.
//
// This is a sealed interface: only types in this package implement it, so
// evaluators and printers can switch over the variants exhaustively.
//
// Variants:
//   - Simple: operand op operand
//   - Between: operand [NOT] BETWEEN low AND high
//   - In: operand [NOT] IN (values)
//   - IsNull: operand IS [NOT] NULL
//   - And, Or, Not: boolean composition
//
// A comparison involving a NULL operand is UNKNOWN and evaluates to false;
// Not of UNKNOWN is also false.
type Comparison interface {
	comparisonNode()
}

// CompareOp is a binary comparison operator.
type CompareOp string

const (
	OpEq  CompareOp = "="
	OpNe  CompareOp = "!="
	OpLt  CompareOp = "<"
	OpLte CompareOp = "<="
	OpGt  CompareOp = ">"
	OpGte CompareOp = ">="
)

// ParseCompareOp resolves a SQL comparison operator.
func ParseCompareOp(op string) (CompareOp, error) {
	switch op {
	case "=":
		return OpEq, nil
	case "!=", "<>":
		return OpNe, nil
	case "<":
		return OpLt, nil
	case "<=":
		return OpLte, nil
	case ">":
		return OpGt, nil
	case ">=":
		return OpGte, nil
	}
	return "", fmt.Errorf("unsupported comparison operator %q", op)
}

// Flip returns the operator with its operands swapped (a < b  ==  b > a).
func (op CompareOp) Flip() CompareOp {
	switch op {
	case OpLt:
		return OpGt
	case OpLte:
		return OpGte
	case OpGt:
		return OpLt
	case OpGte:
		return OpLte
	}
	return op
}

func (op CompareOp) holds(cmp int) bool {
	switch op {
	case OpEq:
		return cmp == 0
	case OpNe:
		return cmp != 0
	case OpLt:
		return cmp < 0
	case OpLte:
		return cmp <= 0
	case OpGt:
		return cmp > 0
	case OpGte:
		return cmp >= 0
	}
	return false
}

// Operand is either a heading column (Column >= 0) or a literal Value.
type Operand struct {
	Column int
	Value  any
}

// ColumnOperand references heading column i.
func ColumnOperand(i int) Operand { return Operand{Column: i} }

// LiteralOperand wraps a constant.
func LiteralOperand(v any) Operand { return Operand{Column: -1, Value: v} }

func (o Operand) resolve(row []any) (any, error) {
	if o.Column < 0 {
		return o.Value, nil
	}
	if o.Column >= len(row) {
		return nil, fmt.Errorf("column %d out of range for row of %d values", o.Column, len(row))
	}
	return row[o.Column], nil
}

// Simple compares two operands.
type Simple struct {
	Left  Operand
	Op    CompareOp
	Right Operand
}

func (Simple) comparisonNode() {}

// Between tests low <= operand <= high.
type Between struct {
	Operand Operand
	Low     Operand
	High    Operand
	Negate  bool
}

func (Between) comparisonNode() {}

// In tests membership in a literal list.
type In struct {
	Operand Operand
	Values  []any
	Negate  bool
}

func (In) comparisonNode() {}

// IsNull tests for a missing value.
type IsNull struct {
	Operand Operand
	Negate  bool
}

func (IsNull) comparisonNode() {}

// And holds when every term holds. An empty And is true.
type And struct {
	Terms []Comparison
}

func (And) comparisonNode() {}

// Or holds when any term holds. An empty Or is false.
type Or struct {
	Terms []Comparison
}

func (Or) comparisonNode() {}

// Not negates its term.
type Not struct {
	Term Comparison
}

func (Not) comparisonNode() {}

// truth is a three-valued logic result.
type truth int

const (
	unknown truth = iota
	isFalse
	isTrue
)

func truthOf(b bool) truth {
	if b {
		return isTrue
	}
	return isFalse
}

// Evaluate applies c to row. UNKNOWN is reported as false.
func Evaluate(c Comparison, row []any) (bool, error) {
	t, err := evaluate(c, row)
	return t == isTrue, err
}

func evaluate(c Comparison, row []any) (truth, error) {
	switch n := c.(type) {
	case Simple:
		l, err := n.Left.resolve(row)
		if err != nil {
			return unknown, err
		}
		r, err := n.Right.resolve(row)
		if err != nil {
			return unknown, err
		}
		cmp, ok := Compare(l, r)
		if !ok {
			return unknown, nil
		}
		return truthOf(n.Op.holds(cmp)), nil
	case *Simple:
		return evaluate(*n, row)
	case Between:
		v, err := n.Operand.resolve(row)
		if err != nil {
			return unknown, err
		}
		lo, err := n.Low.resolve(row)
		if err != nil {
			return unknown, err
		}
		hi, err := n.High.resolve(row)
		if err != nil {
			return unknown, err
		}
		c1, ok1 := Compare(v, lo)
		c2, ok2 := Compare(v, hi)
		if !ok1 || !ok2 {
			return unknown, nil
		}
		return truthOf((c1 >= 0 && c2 <= 0) != n.Negate), nil
	case *Between:
		return evaluate(*n, row)
	case In:
		v, err := n.Operand.resolve(row)
		if err != nil {
			return unknown, err
		}
		if v == nil {
			return unknown, nil
		}
		found := false
		for _, candidate := range n.Values {
			if cmp, ok := Compare(v, candidate); ok && cmp == 0 {
				found = true
				break
			}
		}
		return truthOf(found != n.Negate), nil
	case *In:
		return evaluate(*n, row)
	case IsNull:
		v, err := n.Operand.resolve(row)
		if err != nil {
			return unknown, err
		}
		return truthOf((v == nil) != n.Negate), nil
	case *IsNull:
		return evaluate(*n, row)
	case And:
		result := isTrue
		for _, term := range n.Terms {
			t, err := evaluate(term, row)
			if err != nil {
				return unknown, err
			}
			if t == isFalse {
				return isFalse, nil
			}
			if t == unknown {
				result = unknown
			}
		}
		return result, nil
	case *And:
		return evaluate(*n, row)
	case Or:
		result := isFalse
		for _, term := range n.Terms {
			t, err := evaluate(term, row)
			if err != nil {
				return unknown, err
			}
			if t == isTrue {
				return isTrue, nil
			}
			if t == unknown {
				result = unknown
			}
		}
		return result, nil
	case *Or:
		return evaluate(*n, row)
	case Not:
		t, err := evaluate(n.Term, row)
		if err != nil {
			return unknown, err
		}
		switch t {
		case isTrue:
			return isFalse, nil
		case isFalse:
			return isTrue, nil
		}
		return unknown, nil
	case *Not:
		return evaluate(*n, row)
	case nil:
		return isTrue, nil
	default:
		return unknown, fmt.Errorf("unsupported comparison type: %T", c)
	}
}

// Describe renders c for explain output, using heading labels for columns.
func Describe(c Comparison, h *Heading) string {
	operand := func(o Operand) string {
		if o.Column >= 0 && h != nil && o.Column < h.Len() {
			return h.Column(o.Column).Label
		}
		if s, ok := o.Value.(string); ok {
			return "'" + s + "'"
		}
		return fmt.Sprint(o.Value)
	}
	join := func(terms []Comparison, sep string) string {
		parts := make([]string, len(terms))
		for i, t := range terms {
			parts[i] = Describe(t, h)
		}
		return "(" + strings.Join(parts, sep) + ")"
	}

	switch n := c.(type) {
	case Simple:
		return fmt.Sprintf("%s %s %s", operand(n.Left), n.Op, operand(n.Right))
	case Between:
		not := ""
		if n.Negate {
			not = "NOT "
		}
		return fmt.Sprintf("%s %sBETWEEN %s AND %s", operand(n.Operand), not, operand(n.Low), operand(n.High))
	case In:
		vals := make([]string, len(n.Values))
		for i, v := range n.Values {
			vals[i] = operand(LiteralOperand(v))
		}
		not := ""
		if n.Negate {
			not = "NOT "
		}
		return fmt.Sprintf("%s %sIN (%s)", operand(n.Operand), not, strings.Join(vals, ", "))
	case IsNull:
		if n.Negate {
			return operand(n.Operand) + " IS NOT NULL"
		}
		return operand(n.Operand) + " IS NULL"
	case And:
		return join(n.Terms, " AND ")
	case Or:
		return join(n.Terms, " OR ")
	case Not:
		return "NOT " + Describe(n.Term, h)
	case nil:
		return ""
	}
	return fmt.Sprintf("%T", c)
}
