package cli

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/sql4go/internal/backend"
	"github.com/roach88/sql4go/internal/backend/elastic"
	"github.com/roach88/sql4go/internal/backend/local"
	"github.com/roach88/sql4go/internal/compiler"
	"github.com/roach88/sql4go/internal/config"
	"github.com/roach88/sql4go/internal/engine"
	"github.com/roach88/sql4go/internal/metrics"
	"github.com/roach88/sql4go/internal/store"
)

// session is a query state bound to the backend selected by the flags.
type session struct {
	state    *engine.QueryState
	registry *prometheus.Registry
	close    func() error
}

// openSession connects to the backend and prepares a query state.
func openSession(opts *RootOptions, props config.Props) (*session, error) {
	logger := opts.Logger()
	client, catalog, closeFn, err := openBackend(opts, props)
	if err != nil {
		return nil, err
	}
	reg := prometheus.NewRegistry()
	state := engine.New(client, props,
		engine.WithCatalog(catalog),
		engine.WithLogger(logger),
		engine.WithMetrics(metrics.New(reg)),
		engine.WithIDGenerator(engine.UUIDv7Generator{}),
	)
	return &session{state: state, registry: reg, close: closeFn}, nil
}

// Close releases the query state and the backend.
func (s *session) Close(ctx context.Context) error {
	stateErr := s.state.Close(ctx)
	if err := s.close(); err != nil {
		return err
	}
	return stateErr
}

func openBackend(opts *RootOptions, props config.Props) (backend.Client, backend.Catalog, func() error, error) {
	switch opts.Backend {
	case BackendElastic:
		es, err := elastic.Dial(props.Hosts...)
		if err != nil {
			return nil, nil, nil, WrapExitError(ExitCommandError, "failed to connect to Elasticsearch", err)
		}
		client := elastic.NewClient(es, opts.Logger())
		catalog := elastic.NewCatalog(es, elastic.DefaultMappingTTL)
		return client, catalog, func() error { es.Stop(); return nil }, nil
	default:
		if !fileExists(opts.DB) {
			return nil, nil, nil, NewExitError(ExitCommandError, fmt.Sprintf("database not found: %s", opts.DB))
		}
		st, err := store.Open(opts.DB)
		if err != nil {
			return nil, nil, nil, WrapExitError(ExitCommandError, "failed to open database", err)
		}
		b := local.New(st, local.WithLogger(opts.Logger()))
		return b, local.NewCatalog(st), st.Close, nil
	}
}

// reportQueryError writes a compile or query error through the formatter
// and turns it into an exit error. Other errors are returned unchanged.
func reportQueryError(f *OutputFormatter, err error) error {
	if ce, ok := compiler.IsCompileError(err); ok {
		var details any
		if ce.Clause != "" {
			details = map[string]string{"clause": ce.Clause}
		}
		if ferr := f.Error(ce.Code, ce.Message, details); ferr != nil {
			return ferr
		}
		return WrapExitError(ExitFailure, "compile failed", err)
	}
	if qe, ok := engine.AsQueryError(err); ok {
		if ferr := f.Error(string(qe.Code), qe.Message, nil); ferr != nil {
			return ferr
		}
		return WrapExitError(ExitFailure, "query failed", err)
	}
	return WrapExitError(ExitCommandError, "query failed", err)
}
