package model

import "strings"

// TableRelation is a source named in FROM: an index plus an optional alias.
type TableRelation struct {
	Table string
	Alias string
}

// Names reports whether name refers to this relation by table or alias.
func (r TableRelation) Names(name string) bool {
	if strings.EqualFold(r.Table, name) {
		return true
	}
	return r.Alias != "" && strings.EqualFold(r.Alias, name)
}

// OrderBy is one ORDER BY key.
//
// Column is the resolved Heading index of the key, or -1 when the key is a
// source field that is not projected (only possible when the ordering is
// pushed to the backend).
type OrderBy struct {
	Field  string
	Desc   bool
	Column int
}

// Direction returns "asc" or "desc".
func (o OrderBy) Direction() string {
	if o.Desc {
		return "desc"
	}
	return "asc"
}
