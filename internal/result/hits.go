package result

import (
	"slices"
	"strings"

	"github.com/roach88/sql4go/internal/backend"
	"github.com/roach88/sql4go/internal/model"
)

// HighlightSeparator joins the fragments of a highlighted field.
const HighlightSeparator = " ... "

// HitMaterializer turns document hits into rows.
//
// In lateral mode a column whose path crosses an array of objects expands
// the hit into one row per array element; columns under the same array
// stay aligned on the same element, columns under different arrays
// multiply. Otherwise such a column holds the list of element values.
type HitMaterializer struct {
	heading  *model.Heading
	lateral  bool
	capacity int
}

// NewHitMaterializer creates a materializer for h. capacity is the
// initial row buffer size.
func NewHitMaterializer(h *model.Heading, lateral bool, capacity int) *HitMaterializer {
	return &HitMaterializer{heading: h, lateral: lateral, capacity: capacity}
}

// Materialize converts one page of hits.
func (m *HitMaterializer) Materialize(hits []backend.Hit) (*ResultSet, error) {
	rs := New(m.heading, max(m.capacity, len(hits)))
	for _, hit := range hits {
		for _, row := range m.rows(hit) {
			if err := rs.Add(row); err != nil {
				return nil, err
			}
		}
	}
	return rs, nil
}

// lateralGroup collects the columns read from the elements of one array.
type lateralGroup struct {
	elems   []map[string]any
	columns []*model.Column
}

func (m *HitMaterializer) rows(hit backend.Hit) [][]any {
	base := make([]any, m.heading.Len())
	groups := make(map[string]*lateralGroup)
	var order []string

	for _, c := range m.heading.Columns() {
		switch c.Op {
		case model.OpNone:
			if v, ok := synthetic(hit, c.Field); ok {
				base[c.Index] = Convert(v, c.Type)
				continue
			}
			if m.lateral {
				if prefix, elems, ok := explodePoint(hit.Source, c.Field); ok {
					g, seen := groups[prefix]
					if !seen {
						g = &lateralGroup{elems: elems}
						groups[prefix] = g
						order = append(order, prefix)
					}
					g.columns = append(g.columns, c)
					continue
				}
			}
			base[c.Index] = Convert(lookup(hit.Source, c.Field), c.Type)
		case model.OpHighlight:
			if frags := hit.Highlight[c.Field]; len(frags) > 0 {
				base[c.Index] = strings.Join(frags, HighlightSeparator)
			}
		}
	}

	rows := [][]any{base}
	for _, prefix := range order {
		g := groups[prefix]
		if len(g.elems) == 0 {
			continue
		}
		next := make([][]any, 0, len(rows)*len(g.elems))
		for _, row := range rows {
			for _, elem := range g.elems {
				r := slices.Clone(row)
				for _, c := range g.columns {
					rest := strings.TrimPrefix(c.Field, prefix+".")
					r[c.Index] = Convert(lookup(elem, rest), c.Type)
				}
				next = append(next, r)
			}
		}
		rows = next
	}
	return rows
}

// synthetic returns the value of a hit metadata field.
func synthetic(hit backend.Hit, field string) (any, bool) {
	switch field {
	case model.FieldID:
		return hit.ID, true
	case model.FieldIndex:
		return hit.Index, true
	case model.FieldType:
		return hit.Type, true
	case model.FieldScore:
		if hit.Score == nil {
			return nil, true
		}
		return *hit.Score, true
	}
	return nil, false
}

// lookup resolves a dotted path. A literal key containing dots wins over
// descending into objects. Crossing an array of objects yields the list of
// values found in its elements.
func lookup(src map[string]any, path string) any {
	if src == nil {
		return nil
	}
	if v, ok := src[path]; ok {
		return v
	}
	head, rest, found := strings.Cut(path, ".")
	if !found {
		return nil
	}
	switch child := src[head].(type) {
	case map[string]any:
		return lookup(child, rest)
	case []any:
		var values []any
		for _, e := range child {
			if obj, ok := e.(map[string]any); ok {
				if v := lookup(obj, rest); v != nil {
					values = append(values, v)
				}
			}
		}
		return values
	}
	return nil
}

// explodePoint finds the first array of objects crossed by path and
// returns its dotted prefix and elements.
func explodePoint(src map[string]any, path string) (string, []map[string]any, bool) {
	if _, literal := src[path]; literal {
		return "", nil, false
	}
	segs := strings.Split(path, ".")
	cur := src
	for i, seg := range segs[:len(segs)-1] {
		switch v := cur[seg].(type) {
		case map[string]any:
			cur = v
		case []any:
			elems := make([]map[string]any, 0, len(v))
			for _, e := range v {
				obj, ok := e.(map[string]any)
				if !ok {
					return "", nil, false
				}
				elems = append(elems, obj)
			}
			return strings.Join(segs[:i+1], "."), elems, true
		default:
			return "", nil, false
		}
	}
	return "", nil, false
}
