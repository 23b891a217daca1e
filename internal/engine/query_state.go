package engine

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"github.com/xwb1989/sqlparser"

	"github.com/roach88/sql4go/internal/backend"
	"github.com/roach88/sql4go/internal/compiler"
	"github.com/roach88/sql4go/internal/config"
	"github.com/roach88/sql4go/internal/metrics"
	"github.com/roach88/sql4go/internal/model"
	"github.com/roach88/sql4go/internal/result"
)

// Option configures a QueryState.
type Option func(*QueryState)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *QueryState) { s.logger = l }
}

// WithMetrics sets the metrics sink. Nil disables metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *QueryState) { s.metrics = m }
}

// WithCatalog sets the source of table column types. Types declared in
// the properties take precedence over catalog types.
func WithCatalog(c backend.Catalog) Option {
	return func(s *QueryState) { s.catalog = c }
}

// WithIDGenerator sets the query id generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(s *QueryState) { s.ids = g }
}

// QueryState executes one compiled statement at a time against a client.
type QueryState struct {
	client   backend.Client
	props    config.Props
	compiler *compiler.Compiler
	catalog  backend.Catalog
	logger   *slog.Logger
	metrics  *metrics.Metrics
	ids      IDGenerator
	opts     []Option

	maxRows  int
	id       string
	compiled *compiler.Compiled
	computer *result.Computer
	lateral  bool

	scrollID string
	result   *result.ResultSet
	// hitsSeen counts hits consumed by the current hit result. With
	// lateral expansion rows outnumber hits, so exhaustion is judged on
	// hits.
	hitsSeen int64
	closed   bool
}

// New creates a state issuing requests through client.
func New(client backend.Client, props config.Props, opts ...Option) *QueryState {
	s := &QueryState{
		client:  client,
		props:   props,
		logger:  slog.Default(),
		ids:     UUIDv7Generator{},
		opts:    opts,
		maxRows: compiler.Unlimited,
		lateral: props.NestedLateral,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.compiler = compiler.New(props, compiler.WithLogger(s.logger))
	return s
}

// Copy returns a fresh, uncompiled state on the same client and options.
func (s *QueryState) Copy() *QueryState {
	c := New(s.client, s.props, s.opts...)
	c.maxRows = s.maxRows
	return c
}

// SetMaxRows caps the rows of the next built request. Zero or a negative
// value removes the cap.
func (s *QueryState) SetMaxRows(n int) {
	if n <= 0 {
		n = compiler.Unlimited
	}
	s.maxRows = n
}

// MaxRows returns the row cap, compiler.Unlimited when none.
func (s *QueryState) MaxRows() int { return s.maxRows }

// Limit returns the effective row limit of the built request: the
// smaller of the row cap and the SQL LIMIT. Zero or less means no limit.
func (s *QueryState) Limit() int {
	if s.compiled == nil {
		return compiler.Unlimited
	}
	return s.compiled.Limit
}

// Heading returns the heading of the built request, nil before one is
// built.
func (s *QueryState) Heading() *model.Heading {
	if s.compiled == nil {
		return nil
	}
	return s.compiled.Heading
}

// Compiled returns the built request, nil before one is built.
func (s *QueryState) Compiled() *compiler.Compiled { return s.compiled }

// ID returns the id of the built request.
func (s *QueryState) ID() string { return s.id }

// BuildRequest compiles sql into the request this state executes. stmt is
// the parsed form of sql; nil parses sql. When indices are given they
// replace the indices named in FROM.
//
// Any scroll and result of a previous request are released first.
func (s *QueryState) BuildRequest(ctx context.Context, sql string, stmt *sqlparser.Select, indices ...string) error {
	if s.closed {
		return errClosed()
	}
	s.closeResult()
	if err := s.releaseScroll(ctx); err != nil {
		s.logger.Warn("release scroll failed", "query_id", s.id, "error", err)
	}
	s.compiled, s.computer, s.id = nil, nil, ""

	if stmt == nil {
		parsed, err := compiler.Parse(sql)
		if err != nil {
			s.metrics.QueryFinished(metrics.OutcomeCompileError)
			return err
		}
		stmt = parsed
	}
	types, err := s.tableTypes(ctx, compiler.Tables(stmt))
	if err != nil {
		return err
	}
	compiled, err := s.compiler.Compile(sql, stmt, s.maxRows, types)
	if err != nil {
		s.metrics.QueryFinished(metrics.OutcomeCompileError)
		return err
	}
	computer, err := result.NewComputer(compiled.Heading)
	if err != nil {
		return fmt.Errorf("prepare computed columns: %w", err)
	}
	if len(indices) > 0 {
		compiled.Request.Indices = indices
	}

	s.compiled = compiled
	s.computer = computer
	s.id = s.ids.Generate()
	s.logger.Debug("request built",
		"query_id", s.id,
		"indices", compiled.Request.Indices,
		"limit", compiled.Limit,
	)
	return nil
}

// tableTypes merges catalog types with the types declared in the
// properties. Declared columns win.
func (s *QueryState) tableTypes(ctx context.Context, tables []string) (model.TableTypes, error) {
	declared, err := s.props.TableTypes()
	if err != nil {
		return nil, err
	}
	if s.catalog == nil || len(tables) == 0 {
		return declared, nil
	}
	types, err := s.catalog.Types(ctx, tables...)
	if err != nil {
		return nil, fmt.Errorf("fetch column types: %w", err)
	}
	if types == nil {
		types = make(model.TableTypes)
	}
	for table, cols := range declared {
		merged := make(model.ColumnTypes, len(types[table])+len(cols))
		maps.Copy(merged, types[table])
		maps.Copy(merged, cols)
		types[table] = merged
	}
	return types, nil
}

// Explain returns the JSON body of the built request.
func (s *QueryState) Explain() ([]byte, error) {
	if s.closed {
		return nil, errClosed()
	}
	if s.compiled == nil {
		return nil, errNotCompiled()
	}
	return s.compiled.Request.Explain()
}

// Execute runs the built request and returns the first page, expanding
// nested arrays as configured by result_nested_lateral.
func (s *QueryState) Execute(ctx context.Context) (*result.ResultSet, error) {
	return s.ExecuteLateral(ctx, s.props.NestedLateral)
}

// ExecuteLateral runs the built request and returns the first page. When
// lateral is set, arrays of nested objects expand into one row per
// element.
//
// A first page without rows is reported as a NO_RESULT error.
func (s *QueryState) ExecuteLateral(ctx context.Context, lateral bool) (*result.ResultSet, error) {
	if s.closed {
		return nil, errClosed()
	}
	if s.compiled == nil {
		return nil, errNotCompiled()
	}
	s.closeResult()
	if err := s.releaseScroll(ctx); err != nil {
		s.logger.Warn("release scroll failed", "query_id", s.id, "error", err)
	}
	s.lateral = lateral
	s.hitsSeen = 0

	req := s.compiled.Request
	start := time.Now()
	resp, err := s.client.Search(ctx, req)
	s.metrics.ObserveBackend(metrics.OpSearch, start, err)
	if err != nil {
		s.metrics.QueryFinished(metrics.OutcomeBackendError)
		return nil, fmt.Errorf("search %v: %w", req.Indices, err)
	}
	s.holdScroll(resp.ScrollID)

	rs, err := s.convert(ctx, resp, 0)
	if err != nil {
		s.metrics.QueryFinished(metrics.OutcomeBackendError)
		s.abandon(ctx)
		return nil, err
	}
	if rs == nil || rs.Len() == 0 {
		s.metrics.QueryFinished(metrics.OutcomeNoResult)
		s.abandon(ctx)
		if rs != nil {
			rs.Close()
		}
		return nil, errNoResult(s.id)
	}
	s.metrics.QueryFinished(metrics.OutcomeOK)
	s.accept(ctx, rs)
	s.logger.Debug("query executed",
		"query_id", s.id,
		"rows", rs.Len(),
		"total", rs.Total(),
		"scroll", s.scrollID != "",
	)
	return rs, nil
}

// MoreResults returns the next page, or nil when there are no more rows.
// The previous page is closed before the next one is fetched.
func (s *QueryState) MoreResults(ctx context.Context) (*result.ResultSet, error) {
	if s.closed {
		return nil, errClosed()
	}
	if s.compiled == nil {
		return nil, errNotCompiled()
	}
	if s.result == nil || s.exhausted() {
		return nil, nil
	}
	offset := s.result.Offset() + int64(s.result.Len())
	s.closeResult()
	if s.scrollID == "" {
		return nil, nil
	}

	resp, err := s.scroll(ctx)
	if err != nil {
		s.abandon(ctx)
		return nil, err
	}
	rs, err := s.convert(ctx, resp, offset)
	if err != nil {
		s.abandon(ctx)
		return nil, err
	}
	if rs == nil || rs.Len() == 0 {
		s.abandon(ctx)
		if rs != nil {
			rs.Close()
		}
		return nil, nil
	}
	s.accept(ctx, rs)
	s.logger.Debug("page fetched", "query_id", s.id, "offset", offset, "rows", rs.Len())
	return rs, nil
}

// Close releases the scroll and the current result. Later calls on the
// state fail with CLOSED; closing again is a no-op.
func (s *QueryState) Close(ctx context.Context) error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.closeResult()
	return s.releaseScroll(ctx)
}

// accept makes rs the current result and releases the scroll once the
// result is exhausted.
func (s *QueryState) accept(ctx context.Context, rs *result.ResultSet) {
	s.result = rs
	s.metrics.AddRows(rs.Len())
	if s.exhausted() {
		if err := s.releaseScroll(ctx); err != nil {
			s.logger.Warn("release scroll failed", "query_id", s.id, "error", err)
		}
	}
}

// abandon drops the current result and scroll after a failed or empty
// fetch.
func (s *QueryState) abandon(ctx context.Context) {
	s.closeResult()
	if err := s.releaseScroll(ctx); err != nil {
		s.logger.Warn("release scroll failed", "query_id", s.id, "error", err)
	}
}

func (s *QueryState) exhausted() bool {
	if s.result == nil {
		return true
	}
	if s.compiled.Aggregating() {
		// All buckets arrive in one response; HAVING and LIMIT only drop rows.
		return true
	}
	return s.hitsSeen >= s.result.Total()
}

// convert materializes one backend page. offset is the number of rows
// returned before this page.
func (s *QueryState) convert(ctx context.Context, resp *backend.Response, offset int64) (*result.ResultSet, error) {
	c := s.compiled
	if !c.Aggregating() && len(resp.Hits) == 0 && resp.ScrollID != "" {
		// An empty page while scrolling is not the end of the scroll.
		next, err := s.scroll(ctx)
		if err != nil {
			return nil, err
		}
		resp = next
	}
	if c.Aggregating() {
		return s.convertAggregations(resp)
	}
	return s.convertHits(resp, offset)
}

func (s *QueryState) convertAggregations(resp *backend.Response) (*result.ResultSet, error) {
	c := s.compiled
	if !resp.Aggregated() {
		return nil, nil
	}
	m := result.NewAggregationMaterializer(c.Heading, s.props.DefaultRowLength)
	rs, err := m.Materialize(c.Request.Aggregation, resp.Aggregations)
	if err != nil {
		return nil, fmt.Errorf("materialize aggregations: %w", err)
	}
	if rs.Len() == 0 {
		rs.Close()
		return nil, nil
	}
	// Total counts buckets before HAVING and the limit.
	total := int64(rs.Len())
	// HAVING may name a computed column, so values are filled in first.
	if err := s.computer.Apply(rs); err != nil {
		return nil, fmt.Errorf("compute columns: %w", err)
	}
	if err := rs.Filter(c.Having); err != nil {
		return nil, err
	}
	if err := rs.Sort(c.OrderBy); err != nil {
		return nil, err
	}
	if c.Limit > 0 {
		rs.Truncate(c.Limit)
	}
	rs.SetTotal(total)
	return rs, nil
}

func (s *QueryState) convertHits(resp *backend.Response, offset int64) (*result.ResultSet, error) {
	c := s.compiled
	total := resp.Total
	if c.Limit > 0 {
		total = min(total, int64(c.Limit))
	}
	hits := resp.Hits
	if remaining := max(total-s.hitsSeen, 0); int64(len(hits)) > remaining {
		hits = hits[:remaining]
	}
	m := result.NewHitMaterializer(c.Heading, s.lateral, s.props.DefaultRowLength)
	rs, err := m.Materialize(hits)
	if err != nil {
		return nil, fmt.Errorf("materialize hits: %w", err)
	}
	s.hitsSeen += int64(len(hits))
	rs.SetOffset(offset)
	rs.SetTotal(total)
	if err := s.computer.Apply(rs); err != nil {
		return nil, fmt.Errorf("compute columns: %w", err)
	}
	return rs, nil
}

// scroll advances the held scroll.
func (s *QueryState) scroll(ctx context.Context) (*backend.Response, error) {
	start := time.Now()
	resp, err := s.client.Scroll(ctx, s.scrollID, s.props.ScrollTimeout())
	s.metrics.ObserveBackend(metrics.OpScroll, start, err)
	if err != nil {
		return nil, fmt.Errorf("scroll: %w", err)
	}
	s.holdScroll(resp.ScrollID)
	return resp, nil
}

// holdScroll records the scroll id returned by the backend. The backend
// may hand out a new id on every page.
func (s *QueryState) holdScroll(id string) {
	if id == "" || id == s.scrollID {
		return
	}
	if s.scrollID == "" {
		s.metrics.ScrollOpened()
		s.logger.Debug("scroll opened", "query_id", s.id, "scroll_id", id)
	}
	s.scrollID = id
}

// releaseScroll clears the held scroll, if any. The id is forgotten even
// when clearing fails so that it is never released twice.
func (s *QueryState) releaseScroll(ctx context.Context) error {
	if s.scrollID == "" {
		return nil
	}
	id := s.scrollID
	s.scrollID = ""
	s.metrics.ScrollReleased()

	start := time.Now()
	err := s.client.ClearScroll(ctx, id)
	s.metrics.ObserveBackend(metrics.OpClearScroll, start, err)
	if err != nil {
		return fmt.Errorf("clear scroll: %w", err)
	}
	s.logger.Debug("scroll released", "query_id", s.id, "scroll_id", id)
	return nil
}

func (s *QueryState) closeResult() {
	if s.result != nil {
		s.result.Close()
		s.result = nil
	}
}
