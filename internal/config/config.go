// Package config loads the properties that drive compilation and execution.
//
// Properties come from, in increasing precedence: built-in defaults, an
// optional YAML file and SQL4GO_* environment variables. The decoded result
// is checked against an embedded CUE schema before use.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/roach88/sql4go/internal/model"
)

// EnvPrefix is the prefix of environment variables overriding properties,
// e.g. SQL4GO_FETCH_SIZE.
const EnvPrefix = "SQL4GO"

// Defaults.
const (
	DefaultFetchSize        = 10000
	DefaultScrollTimeoutSec = 60
	DefaultQueryTimeoutMs   = 10000
	DefaultRowLength        = 1000
	DefaultFragmentSize     = 100
	DefaultFragmentNumber   = 1
	DefaultQueryCacheTable  = "query_cache"
)

// ColumnSpec declares the type of one column.
type ColumnSpec struct {
	Name string `mapstructure:"name" yaml:"name"`
	Type string `mapstructure:"type" yaml:"type"`
}

// TableSpec declares the known columns of one table (index).
type TableSpec struct {
	Name    string       `mapstructure:"name" yaml:"name"`
	Columns []ColumnSpec `mapstructure:"columns" yaml:"columns"`
}

// Props is the configuration bag consulted by the compiler and executor.
type Props struct {
	// FetchSize is the page size of scrolling requests.
	FetchSize int `mapstructure:"fetch_size"`

	ScrollTimeoutSec int `mapstructure:"scroll_timeout_sec"`
	QueryTimeoutMs   int `mapstructure:"query_timeout_ms"`

	// DefaultRowLength is the initial capacity of result row buffers.
	DefaultRowLength int `mapstructure:"default_row_length"`

	FragmentSize   int `mapstructure:"fragment_size"`
	FragmentNumber int `mapstructure:"fragment_number"`

	// NestedLateral expands arrays of nested objects into one row per
	// element instead of returning them as a single value.
	NestedLateral bool `mapstructure:"result_nested_lateral"`

	// QueryCacheTable is the pseudo-table name that enables the request
	// cache when listed in FROM.
	QueryCacheTable string `mapstructure:"query_cache_table"`

	// ResultsSplit is carried for compatibility and not used by the core.
	ResultsSplit bool `mapstructure:"results_split"`

	Tables []TableSpec `mapstructure:"tables"`

	// Elasticsearch connection settings used by the CLI.
	Hosts []string `mapstructure:"hosts"`
}

// Default returns the built-in properties.
func Default() Props {
	return Props{
		FetchSize:        DefaultFetchSize,
		ScrollTimeoutSec: DefaultScrollTimeoutSec,
		QueryTimeoutMs:   DefaultQueryTimeoutMs,
		DefaultRowLength: DefaultRowLength,
		FragmentSize:     DefaultFragmentSize,
		FragmentNumber:   DefaultFragmentNumber,
		NestedLateral:    true,
		QueryCacheTable:  DefaultQueryCacheTable,
		Hosts:            []string{"http://127.0.0.1:9200"},
	}
}

// ScrollTimeout returns the scroll keep-alive.
func (p Props) ScrollTimeout() time.Duration {
	return time.Duration(p.ScrollTimeoutSec) * time.Second
}

// QueryTimeout returns the per-request timeout.
func (p Props) QueryTimeout() time.Duration {
	return time.Duration(p.QueryTimeoutMs) * time.Millisecond
}

// TableTypes converts the declared tables into the column-type metadata
// consumed by the compiler.
func (p Props) TableTypes() (model.TableTypes, error) {
	out := make(model.TableTypes, len(p.Tables))
	for _, table := range p.Tables {
		cols := out[table.Name]
		if cols == nil {
			cols = make(model.ColumnTypes, len(table.Columns))
			out[table.Name] = cols
		}
		for _, col := range table.Columns {
			typ, err := model.ParseSQLType(col.Type)
			if err != nil {
				return nil, fmt.Errorf("table %q column %q: %w", table.Name, col.Name, err)
			}
			cols[col.Name] = typ
		}
	}
	return out, nil
}

// Load reads properties from path (optional) and the environment, then
// validates them. An empty path loads defaults and environment only.
func Load(path string) (Props, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Props{}, fmt.Errorf("read config %s: %w", path, err)
			}
		}
	}

	var props Props
	if err := v.Unmarshal(&props); err != nil {
		return Props{}, fmt.Errorf("decode config: %w", err)
	}
	if err := Validate(props); err != nil {
		return Props{}, err
	}
	return props, nil
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("fetch_size", d.FetchSize)
	v.SetDefault("scroll_timeout_sec", d.ScrollTimeoutSec)
	v.SetDefault("query_timeout_ms", d.QueryTimeoutMs)
	v.SetDefault("default_row_length", d.DefaultRowLength)
	v.SetDefault("fragment_size", d.FragmentSize)
	v.SetDefault("fragment_number", d.FragmentNumber)
	v.SetDefault("result_nested_lateral", d.NestedLateral)
	v.SetDefault("query_cache_table", d.QueryCacheTable)
	v.SetDefault("results_split", d.ResultsSplit)
	v.SetDefault("tables", []any{})
	v.SetDefault("hosts", d.Hosts)
}
