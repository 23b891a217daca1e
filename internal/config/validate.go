package config

import (
	_ "embed"
	"fmt"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
)

//go:embed schema.cue
var schemaCUE string

// ValidationError reports properties rejected by the schema.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid configuration: " + strings.Join(e.Problems, "; ")
}

// Validate checks props against the embedded CUE schema.
func Validate(p Props) error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}

	def := schema.LookupPath(cue.ParsePath("#Config"))
	value := ctx.Encode(p.asMap())
	if err := value.Err(); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	if err := def.Unify(value).Validate(cue.Concrete(true)); err != nil {
		var problems []string
		for _, e := range cueerrors.Errors(err) {
			problems = append(problems, e.Error())
		}
		return &ValidationError{Problems: problems}
	}
	return nil
}

// asMap mirrors the schema field names.
func (p Props) asMap() map[string]any {
	tables := make([]any, len(p.Tables))
	for i, t := range p.Tables {
		cols := make([]any, len(t.Columns))
		for j, c := range t.Columns {
			cols[j] = map[string]any{"name": c.Name, "type": strings.ToUpper(c.Type)}
		}
		tables[i] = map[string]any{"name": t.Name, "columns": cols}
	}
	hosts := make([]any, len(p.Hosts))
	for i, h := range p.Hosts {
		hosts[i] = h
	}
	return map[string]any{
		"fetch_size":            p.FetchSize,
		"scroll_timeout_sec":    p.ScrollTimeoutSec,
		"query_timeout_ms":      p.QueryTimeoutMs,
		"default_row_length":    p.DefaultRowLength,
		"fragment_size":         p.FragmentSize,
		"fragment_number":       p.FragmentNumber,
		"result_nested_lateral": p.NestedLateral,
		"query_cache_table":     p.QueryCacheTable,
		"results_split":         p.ResultsSplit,
		"hosts":                 hosts,
		"tables":                tables,
	}
}
