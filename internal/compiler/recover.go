package compiler

import (
	"strings"

	"github.com/xwb1989/sqlparser"

	"github.com/roach88/sql4go/internal/model"
)

// token is a lexical token with its byte span in the SQL text.
type token struct {
	id    int
	raw   string
	start int
	end   int
}

// tokenize scans sql with the parser's own tokenizer and attaches source
// spans. ok is false if the text cannot be scanned or the spans cannot be
// trusted.
func tokenize(sql string) (tokens []token, ok bool) {
	tkn := sqlparser.NewStringTokenizer(sql)
	prevEnd := 0
	for {
		id, raw := tkn.Scan()
		if id == 0 {
			return tokens, true
		}
		if id == sqlparser.LEX_ERROR {
			return nil, false
		}
		end := tkn.Position - 1
		if end > len(sql) {
			end = len(sql)
		}
		start := prevEnd
		for start < end && isBlank(sql[start]) {
			start++
		}
		if start >= end {
			return nil, false
		}
		t := token{id: id, raw: string(raw), start: start, end: end}
		if !t.consistent(sql) {
			return nil, false
		}
		tokens = append(tokens, t)
		prevEnd = end
	}
}

func isBlank(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

// consistent checks the span against the scanned bytes.
func (t token) consistent(sql string) bool {
	text := sql[t.start:t.end]
	switch t.id {
	case sqlparser.ID:
		return strings.EqualFold(strings.Trim(text, "`"), t.raw)
	case sqlparser.STRING:
		return text[0] == '\'' || text[0] == '"'
	}
	return true
}

// selectItemTexts returns the literal source text of each top-level select
// item, with any alias removed. hasAlias tells, per item, whether the AST
// carries an alias that must be stripped from the end of the item.
func selectItemTexts(sql string, hasAlias []bool) ([]string, bool) {
	tokens, ok := tokenize(sql)
	if !ok {
		return nil, false
	}

	i := 0
	for i < len(tokens) && tokens[i].id != sqlparser.SELECT {
		i++
	}
	i++
	for i < len(tokens) && (tokens[i].id == sqlparser.DISTINCT || tokens[i].id == sqlparser.ALL) {
		i++
	}

	var items [][]token
	var current []token
	depth := 0
	for ; i < len(tokens); i++ {
		t := tokens[i]
		if depth == 0 && t.id == sqlparser.FROM {
			break
		}
		switch t.id {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				items = append(items, current)
				current = nil
				continue
			}
		}
		current = append(current, t)
	}
	items = append(items, current)

	if len(items) != len(hasAlias) {
		return nil, false
	}
	texts := make([]string, len(items))
	for n, item := range items {
		if hasAlias[n] && len(item) > 1 {
			item = item[:len(item)-1]
			if len(item) > 1 && item[len(item)-1].id == sqlparser.AS {
				item = item[:len(item)-1]
			}
		}
		if len(item) == 0 {
			return nil, false
		}
		texts[n] = sql[item[0].start:item[len(item)-1].end]
	}
	return texts, true
}

// recoverLabels relabels unaliased expression columns (aggregates,
// HIGHLIGHT, computed) with the exact text the user wrote. Column order
// is untouched. It reports whether the SQL text could be aligned with the
// select list; when it cannot, labels keep their formatted form.
func recoverLabels(sql string, exprs sqlparser.SelectExprs, items []int, h *model.Heading) (bool, error) {
	hasAlias := make([]bool, len(exprs))
	for i, expr := range exprs {
		if ae, ok := expr.(*sqlparser.AliasedExpr); ok && !ae.As.IsEmpty() {
			hasAlias[i] = true
		}
	}
	texts, ok := selectItemTexts(sql, hasAlias)
	if !ok {
		return false, nil
	}

	for i, expr := range exprs {
		ae, isAliased := expr.(*sqlparser.AliasedExpr)
		if !isAliased || hasAlias[i] || items[i] < 0 {
			continue
		}
		if _, isCol := ae.Expr.(*sqlparser.ColName); isCol {
			continue
		}
		if h.Column(items[i]).Label == texts[i] {
			continue
		}
		if err := h.Relabel(items[i], texts[i]); err != nil {
			return true, newError(ErrDuplicateLabel, "SELECT", "%v", err)
		}
	}
	return true, nil
}

// resolveTypes aligns every column's source field with the spelling used by
// the metadata and assigns declared types.
func resolveTypes(h *model.Heading, columns model.ColumnTypes) {
	for _, c := range h.Columns() {
		switch {
		case c.Op == model.OpNone:
			c.Field, c.Type = resolveField(columns, c.Field)
		case c.Op == model.OpHighlight:
			c.Field, _ = resolveField(columns, c.Field)
		case c.Op.Aggregate() && c.Field != model.FieldAll:
			c.Field, _ = resolveField(columns, c.Field)
		}
	}
}
