package compiler

import (
	"strconv"

	"github.com/xwb1989/sqlparser"

	"github.com/roach88/sql4go/internal/model"
)

// parseOrderBy resolves ORDER BY keys.
//
// When aggregating every key must resolve to a heading column since the
// ordering is applied to materialized rows. Otherwise keys are pushed to
// the backend, so an unprojected source field is accepted (Column == -1)
// but computed and aggregate columns are not.
func parseOrderBy(orderBy sqlparser.OrderBy, h *model.Heading, rels []model.TableRelation, columns model.ColumnTypes, aggregating bool) ([]model.OrderBy, error) {
	out := make([]model.OrderBy, 0, len(orderBy))
	for _, order := range orderBy {
		key, err := orderKey(order.Expr, h, rels, columns, aggregating)
		if err != nil {
			return nil, err
		}
		key.Desc = order.Direction == sqlparser.DescScr
		out = append(out, key)
	}
	return out, nil
}

func orderKey(expr sqlparser.Expr, h *model.Heading, rels []model.TableRelation, columns model.ColumnTypes, aggregating bool) (model.OrderBy, error) {
	var col *model.Column
	switch e := expr.(type) {
	case *sqlparser.ColName:
		c, err := resolveColumn(e, h, rels)
		if err != nil {
			if aggregating {
				return model.OrderBy{}, inClause(err, "ORDER BY")
			}
			field, _ := resolveField(columns, stripQualifier(e, rels))
			return model.OrderBy{Field: field, Column: -1}, nil
		}
		col = c
	case *sqlparser.FuncExpr:
		c, err := resolveAggregate(e, h, rels)
		if err != nil {
			return model.OrderBy{}, inClause(err, "ORDER BY")
		}
		col = c
	case *sqlparser.SQLVal:
		if e.Type != sqlparser.IntVal {
			return model.OrderBy{}, newError(ErrInvalidOrder, "ORDER BY", "cannot order by %s", sqlparser.String(expr))
		}
		n, err := strconv.Atoi(string(e.Val))
		vis := h.Visible()
		if err != nil || n < 1 || n > len(vis) {
			return model.OrderBy{}, newError(ErrInvalidOrder, "ORDER BY", "position %s is out of range", e.Val)
		}
		col = vis[n-1]
	default:
		return model.OrderBy{}, newError(ErrInvalidOrder, "ORDER BY", "cannot order by %s", sqlparser.String(expr))
	}

	if col.Op == model.OpComputed {
		return model.OrderBy{}, newError(ErrInvalidOrder, "ORDER BY", "cannot order by computed column %s", col.Label)
	}
	if !aggregating && col.Op != model.OpNone {
		return model.OrderBy{}, newError(ErrInvalidOrder, "ORDER BY", "cannot order by %s without aggregation", col.Label)
	}
	return model.OrderBy{Field: col.Field, Column: col.Index}, nil
}
