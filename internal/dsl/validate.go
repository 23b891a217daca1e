package dsl

import (
	"fmt"
	"strings"
)

// ValidationResult lists structural problems found in a request.
type ValidationResult struct {
	Valid    bool
	Problems []string
}

// Err returns the problems as a single error, or nil when valid.
func (r ValidationResult) Err() error {
	if r.Valid {
		return nil
	}
	return fmt.Errorf("invalid request: %s", strings.Join(r.Problems, "; "))
}

// Validate checks the structural rules every backend relies on:
//  1. At least one index is targeted
//  2. Aggregating requests return no hits (Size == 0)
//  3. Scrolling requests sort by document order only
//  4. Field names are non-empty and range queries have a bound
//  5. Sibling aggregations have distinct names
//
// Validate is a pure function with no side effects.
func Validate(r *Request) ValidationResult {
	v := &validator{problems: []string{}}
	v.validateRequest(r)
	return ValidationResult{Valid: len(v.problems) == 0, Problems: v.problems}
}

type validator struct {
	problems []string
}

func (v *validator) addProblem(format string, args ...any) {
	v.problems = append(v.problems, fmt.Sprintf(format, args...))
}

func (v *validator) validateRequest(r *Request) {
	if r == nil {
		v.addProblem("nil request")
		return
	}
	if len(r.Indices) == 0 {
		v.addProblem("no indices")
	}
	if r.Size < 0 {
		v.addProblem("negative size %d", r.Size)
	}
	if r.Aggregation != nil {
		if r.Size != 0 {
			v.addProblem("aggregating request must have size 0, got %d", r.Size)
		}
		v.validateAggregation(r.Aggregation)
	}
	if r.Scrolling() {
		for _, s := range r.Sorts {
			if s.Field != DocOrder {
				v.addProblem("scrolling request cannot sort by %q", s.Field)
			}
		}
	}
	for _, s := range r.Sorts {
		if s.Field == "" {
			v.addProblem("sort with empty field")
		}
	}
	if r.Query != nil {
		v.validateQuery(r.Query)
	}
	if r.PostFilter != nil {
		v.validateQuery(r.PostFilter)
	}
}

func (v *validator) validateQuery(q Query) {
	switch n := q.(type) {
	case MatchAll, QueryString, IDs:
	case Term:
		v.checkField("term", n.Field)
	case Terms:
		v.checkField("terms", n.Field)
		if len(n.Values) == 0 {
			v.addProblem("terms query on %q has no values", n.Field)
		}
	case Range:
		v.checkField("range", n.Field)
		if n.GT == nil && n.GTE == nil && n.LT == nil && n.LTE == nil {
			v.addProblem("range query on %q has no bounds", n.Field)
		}
	case Exists:
		v.checkField("exists", n.Field)
	case Wildcard:
		v.checkField("wildcard", n.Field)
	case Bool:
		for _, group := range [][]Query{n.Must, n.Filter, n.Should, n.MustNot} {
			for _, sub := range group {
				v.validateQuery(sub)
			}
		}
	case nil:
		v.addProblem("nil query")
	default:
		v.addProblem("unknown query type: %T", q)
	}
}

func (v *validator) validateAggregation(a Aggregation) {
	switch n := a.(type) {
	case TermsAgg:
		v.checkField("terms aggregation", n.Field)
	case FilterAgg:
		if n.Filter != nil {
			v.validateQuery(n.Filter)
		}
	case MetricAgg:
		v.checkField(string(n.Kind)+" aggregation", n.Field)
	case nil:
		v.addProblem("nil aggregation")
		return
	default:
		v.addProblem("unknown aggregation type: %T", a)
		return
	}
	if a.AggName() == "" {
		v.addProblem("aggregation without a name")
	}

	seen := make(map[string]bool)
	for _, sub := range SubAggregations(a) {
		if sub != nil && seen[sub.AggName()] {
			v.addProblem("duplicate aggregation name %q under %q", sub.AggName(), a.AggName())
		}
		if sub != nil {
			seen[sub.AggName()] = true
		}
		v.validateAggregation(sub)
	}
}

func (v *validator) checkField(kind, field string) {
	if field == "" {
		v.addProblem("%s with empty field", kind)
	}
}
