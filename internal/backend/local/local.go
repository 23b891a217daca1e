// Package local executes search requests against documents kept in a
// SQLite store.
//
// It serves the CLI without a cluster and gives tests a real backend.
// Queries, sorts and aggregations are compiled to SQL; scroll cursors are
// kept in memory and expire after their keep-alive.
package local

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/sql4go/internal/backend"
	"github.com/roach88/sql4go/internal/dsl"
	"github.com/roach88/sql4go/internal/model"
	"github.com/roach88/sql4go/internal/querysql"
	"github.com/roach88/sql4go/internal/store"
)

// ErrScrollNotFound is returned for unknown or expired scroll ids.
var ErrScrollNotFound = errors.New("scroll not found")

// Backend runs requests on a store. It is safe for concurrent use.
type Backend struct {
	store    *store.Store
	compiler *querysql.SQLCompiler
	logger   *slog.Logger
	now      func() time.Time

	mu      sync.Mutex
	scrolls map[string]*cursor
}

var _ backend.Client = (*Backend)(nil)

// cursor is an open scroll.
type cursor struct {
	req     *dsl.Request
	offset  int
	total   int64
	expires time.Time
}

// Option configures a Backend.
type Option func(*Backend)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Backend) { b.logger = l }
}

// WithClock sets the time source used for scroll expiry.
func WithClock(now func() time.Time) Option {
	return func(b *Backend) { b.now = now }
}

// New creates a backend over s.
func New(s *store.Store, opts ...Option) *Backend {
	b := &Backend{
		store:    s,
		compiler: querysql.NewSQLCompiler(),
		logger:   slog.Default(),
		now:      time.Now,
		scrolls:  make(map[string]*cursor),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Search runs req. A scrolling request opens a cursor positioned after
// the first page.
func (b *Backend) Search(ctx context.Context, req *dsl.Request) (*backend.Response, error) {
	total, err := b.count(ctx, req)
	if err != nil {
		return nil, err
	}
	if req.Aggregating() {
		aggs, err := b.aggregate(ctx, req)
		if err != nil {
			return nil, err
		}
		return &backend.Response{Total: total, Aggregations: aggs}, nil
	}

	hits, err := b.page(ctx, req, 0)
	if err != nil {
		return nil, err
	}
	resp := &backend.Response{Total: total, Hits: hits}
	if req.Scrolling() {
		id := uuid.NewString()
		b.mu.Lock()
		b.expireLocked()
		b.scrolls[id] = &cursor{req: req, offset: len(hits), total: total, expires: b.now().Add(req.Scroll)}
		b.mu.Unlock()
		resp.ScrollID = id
		b.logger.Debug("scroll opened", "scroll_id", id, "total", total)
	}
	return resp, nil
}

// Scroll returns the next page of an open cursor and extends its
// keep-alive to ttl.
func (b *Backend) Scroll(ctx context.Context, scrollID string, ttl time.Duration) (*backend.Response, error) {
	b.mu.Lock()
	b.expireLocked()
	cur, ok := b.scrolls[scrollID]
	if !ok {
		b.mu.Unlock()
		return nil, fmt.Errorf("scroll %s: %w", scrollID, ErrScrollNotFound)
	}
	req, offset, total := cur.req, cur.offset, cur.total
	b.mu.Unlock()

	hits, err := b.page(ctx, req, offset)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	if cur, ok := b.scrolls[scrollID]; ok {
		cur.offset = offset + len(hits)
		cur.expires = b.now().Add(ttl)
	}
	b.mu.Unlock()
	return &backend.Response{Total: total, Hits: hits, ScrollID: scrollID}, nil
}

// ClearScroll releases a cursor. Unknown ids are ignored since the cursor
// may already have expired.
func (b *Backend) ClearScroll(_ context.Context, scrollID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.scrolls[scrollID]; ok {
		delete(b.scrolls, scrollID)
		b.logger.Debug("scroll cleared", "scroll_id", scrollID)
	}
	return nil
}

// OpenScrolls returns the number of live cursors.
func (b *Backend) OpenScrolls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.expireLocked()
	return len(b.scrolls)
}

func (b *Backend) expireLocked() {
	now := b.now()
	for id, cur := range b.scrolls {
		if now.After(cur.expires) {
			delete(b.scrolls, id)
			b.logger.Debug("scroll expired", "scroll_id", id)
		}
	}
}

func (b *Backend) count(ctx context.Context, req *dsl.Request) (int64, error) {
	stmt, err := b.compiler.CompileCount(req)
	if err != nil {
		return 0, err
	}
	var total int64
	if err := b.store.DB().QueryRowContext(ctx, stmt.SQL, stmt.Params...).Scan(&total); err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	return total, nil
}

func (b *Backend) page(ctx context.Context, req *dsl.Request, offset int) ([]backend.Hit, error) {
	if req.Size <= 0 {
		return nil, nil
	}
	stmt, err := b.compiler.CompileSearch(req, offset, req.Size)
	if err != nil {
		return nil, err
	}
	rows, err := b.store.Query(ctx, stmt.SQL, stmt.Params...)
	if err != nil {
		return nil, fmt.Errorf("search documents: %w", err)
	}
	defer rows.Close()

	terms := highlightTerms(req.EffectiveQuery())
	var score *float64
	if req.Query != nil {
		one := 1.0
		score = &one
	}
	var hits []backend.Hit
	for rows.Next() {
		doc, err := store.ScanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		hit := backend.Hit{ID: doc.ID, Index: doc.Index, Type: doc.Type, Score: score, Source: doc.Source}
		if req.Highlight != nil {
			hit.Highlight = highlight(doc.Source, req.Highlight, terms)
		}
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return hits, nil
}

func (b *Backend) aggregate(ctx context.Context, req *dsl.Request) (backend.Aggregations, error) {
	plan, err := b.compiler.CompileAggregation(req)
	if err != nil {
		return nil, err
	}
	rows, err := b.store.Query(ctx, plan.SQL, plan.Params...)
	if err != nil {
		return nil, fmt.Errorf("aggregate documents: %w", err)
	}
	defer rows.Close()

	width := len(plan.Terms) + 1 + len(plan.Metrics)
	var table [][]any
	for rows.Next() {
		row := make([]any, width)
		ptrs := make([]any, width)
		for i := range row {
			ptrs[i] = &row[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan aggregation: %w", err)
		}
		for i, v := range row {
			if raw, ok := v.([]byte); ok {
				row[i] = string(raw)
			}
		}
		table = append(table, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate aggregation: %w", err)
	}

	if len(plan.Terms) == 0 {
		filter := plan.Levels[0]
		agg := &backend.Aggregation{Sub: backend.Aggregations{}}
		if len(table) == 1 {
			agg.DocCount, _ = table[0][0].(int64)
			agg.Sub = metrics(plan, table[0])
		}
		return backend.Aggregations{filter.AggName(): agg}, nil
	}
	root := plan.Terms[0]
	return backend.Aggregations{root.Name: {Buckets: buckets(plan, table, 0)}}, nil
}

// buckets groups rows by the key of terms level, ordered like the search
// engine orders them: larger document counts first, then by key.
func buckets(plan *querysql.AggregationPlan, rows [][]any, level int) []*backend.Bucket {
	countCol := len(plan.Terms)
	var out []*backend.Bucket
	groups := make(map[any][][]any)
	for _, row := range rows {
		key := row[level]
		if _, ok := groups[key]; !ok {
			out = append(out, &backend.Bucket{Key: key})
		}
		groups[key] = append(groups[key], row)
	}
	for _, bucket := range out {
		group := groups[bucket.Key]
		for _, row := range group {
			n, _ := row[countCol].(int64)
			bucket.DocCount += n
		}
		if level == len(plan.Terms)-1 {
			bucket.Aggregations = metrics(plan, group[0])
			continue
		}
		child := plan.Terms[level+1]
		bucket.Aggregations = backend.Aggregations{child.Name: {Buckets: buckets(plan, group, level+1)}}
	}
	slices.SortStableFunc(out, func(a, b *backend.Bucket) int {
		if c := cmp.Compare(b.DocCount, a.DocCount); c != 0 {
			return c
		}
		return model.CompareNullsFirst(a.Key, b.Key)
	})
	if size := plan.Terms[level].Size; size > 0 && len(out) > size {
		out = out[:size]
	}
	return out
}

func metrics(plan *querysql.AggregationPlan, row []any) backend.Aggregations {
	out := make(backend.Aggregations, len(plan.Metrics))
	base := len(plan.Terms) + 1
	for i, m := range plan.Metrics {
		agg := &backend.Aggregation{}
		if f, ok := model.ToFloat(row[base+i]); ok {
			agg.Value = &f
		}
		out[m.Name] = agg
	}
	return out
}

// highlightTerms collects the free-text terms of q.
func highlightTerms(q dsl.Query) []string {
	switch n := q.(type) {
	case dsl.QueryString:
		if n.Query != "" {
			return []string{n.Query}
		}
	case dsl.Bool:
		var out []string
		for _, group := range [][]dsl.Query{n.Must, n.Filter, n.Should} {
			for _, sub := range group {
				out = append(out, highlightTerms(sub)...)
			}
		}
		return out
	}
	return nil
}

// highlight marks the terms in the requested string fields. Fields
// without a match get no entry.
func highlight(source map[string]any, h *dsl.Highlight, terms []string) map[string][]string {
	out := make(map[string][]string)
	for _, field := range h.Fields {
		text, ok := source[field].(string)
		if !ok {
			continue
		}
		if frag, ok := mark(text, terms); ok {
			out[field] = []string{frag}
		}
	}
	return out
}

func mark(text string, terms []string) (string, bool) {
	for _, term := range terms {
		loc := regexp.MustCompile("(?i)" + regexp.QuoteMeta(term)).FindStringIndex(text)
		if loc == nil {
			continue
		}
		i, j := loc[0], loc[1]
		return text[:i] + "<em>" + text[i:j] + "</em>" + text[j:], true
	}
	return "", false
}
