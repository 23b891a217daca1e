package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"strconv"
	"time"

	"github.com/roach88/sql4go/internal/backend/local"
	"github.com/roach88/sql4go/internal/compiler"
	"github.com/roach88/sql4go/internal/config"
	"github.com/roach88/sql4go/internal/engine"
	"github.com/roach88/sql4go/internal/store"
	"github.com/roach88/sql4go/internal/testutil"
)

// epoch is the fixed start of the scenario clock.
var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// Harness runs the steps of one scenario on a shared store.
type Harness struct {
	store   *store.Store
	backend *local.Backend
	catalog *local.Catalog
	props   config.Props
	ids     *testutil.FixedIDGenerator
	logger  *slog.Logger
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database. A returned error means
// the scenario could not be set up; unmet expectations are reported in
// the result.
func Run(scenario *Scenario) (*Result, error) {
	st, err := store.Open(store.InMemory)
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	ctx := context.Background()
	if err := loadDocuments(ctx, st, scenario); err != nil {
		return nil, err
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := testutil.NewManualClock(epoch)
	h := &Harness{
		store:   st,
		backend: local.New(st, local.WithLogger(logger), local.WithClock(clock.Now)),
		catalog: local.NewCatalog(st),
		props:   scenario.Properties.Apply(config.Default()),
		ids:     testutil.NewFixedIDGenerator(scenario.QueryID),
		logger:  logger,
	}

	result := NewResult()
	for i, step := range scenario.Steps {
		got, err := h.runStep(ctx, i, step, result)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
		result.Steps = append(result.Steps, got)
		for _, failure := range checkStep(step.Expect, got) {
			result.AddError(fmt.Sprintf("step %d (%s): %v", i, step.SQL, failure))
		}
		if n := h.backend.OpenScrolls(); n > 0 {
			result.AddError(fmt.Sprintf("step %d (%s): %d scroll(s) left open", i, step.SQL, n))
		}
	}
	return result, nil
}

// loadDocuments stores the scenario's documents and column declarations,
// index by index in name order.
func loadDocuments(ctx context.Context, st *store.Store, scenario *Scenario) error {
	for _, index := range slices.Sorted(maps.Keys(scenario.Documents)) {
		docs := make([]store.Document, 0, len(scenario.Documents[index]))
		for i, src := range scenario.Documents[index] {
			doc := store.Document{Index: index, ID: strconv.Itoa(i + 1), Source: make(map[string]any, len(src))}
			for k, v := range src {
				if k == "_id" {
					doc.ID = fmt.Sprint(v)
					continue
				}
				doc.Source[k] = v
			}
			docs = append(docs, doc)
		}
		if err := st.PutBatch(ctx, docs); err != nil {
			return fmt.Errorf("load %s: %w", index, err)
		}
	}
	for _, index := range slices.Sorted(maps.Keys(scenario.Columns)) {
		if err := st.DeclareColumns(ctx, index, scenario.Columns[index]); err != nil {
			return fmt.Errorf("declare %s columns: %w", index, err)
		}
	}
	return nil
}

// runStep executes one statement on a fresh query state, reading every
// page. Compile and query errors are recorded in the returned StepResult;
// other errors abort the scenario.
func (h *Harness) runStep(ctx context.Context, i int, step Step, result *Result) (StepResult, error) {
	state := engine.New(h.backend, h.props,
		engine.WithCatalog(h.catalog),
		engine.WithLogger(h.logger),
		engine.WithIDGenerator(h.ids),
	)
	defer state.Close(ctx)
	state.SetMaxRows(step.MaxRows)

	var got StepResult
	fail := func(err error) (StepResult, error) {
		code := ErrorCode(err)
		if code == "" {
			return got, err
		}
		got.Code = code
		result.addEvent(TraceEvent{Step: i, Type: EventError, QueryID: state.ID(), Code: code})
		return got, nil
	}

	if err := state.BuildRequest(ctx, step.SQL, nil); err != nil {
		return fail(err)
	}
	req := state.Compiled().Request
	result.addEvent(TraceEvent{
		Step:        i,
		Type:        EventRequest,
		QueryID:     state.ID(),
		Indices:     req.Indices,
		Aggregating: req.Aggregating(),
		Scroll:      req.Scrolling(),
	})
	got.Columns = state.Heading().Labels()

	rs, err := state.Execute(ctx)
	if err != nil {
		return fail(err)
	}
	for rs != nil {
		got.Pages++
		got.Rows = append(got.Rows, rs.VisibleRows()...)
		result.addEvent(TraceEvent{
			Step:    i,
			Type:    EventPage,
			QueryID: state.ID(),
			Offset:  rs.Offset(),
			Rows:    rs.Len(),
			Total:   rs.Total(),
		})
		if rs, err = state.MoreResults(ctx); err != nil {
			return fail(err)
		}
	}
	return got, nil
}

// ErrorCode returns the code of a compile or query error, or "" for any
// other error.
func ErrorCode(err error) string {
	if ce, ok := compiler.IsCompileError(err); ok {
		return ce.Code
	}
	if qe, ok := engine.AsQueryError(err); ok {
		return string(qe.Code)
	}
	return ""
}
