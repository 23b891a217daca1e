package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/sql4go/internal/config"
)

// Scenario defines an end-to-end query scenario.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden
	// trace file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// QueryID is the fixed id given to every query. Defaults to
	// "test-query-default".
	QueryID string `yaml:"query_id,omitempty"`

	Properties Properties `yaml:"properties,omitempty"`

	// Columns declares column types per index, overriding inferred ones.
	Columns map[string]map[string]string `yaml:"columns,omitempty"`

	// Documents are loaded per index before the first step. A document's
	// _id field becomes its id; documents without one are numbered from 1.
	Documents map[string][]map[string]any `yaml:"documents"`

	Steps []Step `yaml:"steps"`
}

// Properties overrides the default properties for a scenario.
type Properties struct {
	FetchSize     *int  `yaml:"fetch_size,omitempty"`
	NestedLateral *bool `yaml:"result_nested_lateral,omitempty"`
}

// Apply returns p with the overrides applied.
func (o Properties) Apply(p config.Props) config.Props {
	if o.FetchSize != nil {
		p.FetchSize = *o.FetchSize
	}
	if o.NestedLateral != nil {
		p.NestedLateral = *o.NestedLateral
	}
	return p
}

// Step is one SQL statement and what it should produce.
type Step struct {
	SQL string `yaml:"sql"`

	// MaxRows caps the rows of the statement. Zero means no cap.
	MaxRows int `yaml:"max_rows,omitempty"`

	Expect Expect `yaml:"expect"`
}

// Expect lists the expectations of a step. Unset fields are not checked.
type Expect struct {
	Columns []string `yaml:"columns,omitempty"`
	Rows    [][]any  `yaml:"rows,omitempty"`
	Pages   int      `yaml:"pages,omitempty"`
	Error   string   `yaml:"error,omitempty"`
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses a scenario document.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// FindScenarios returns the YAML files under dir whose base name matches
// filter (a filepath.Match pattern, empty for all), sorted.
func FindScenarios(dir, filter string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := filepath.Ext(path)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}
		if filter != "" {
			name := strings.TrimSuffix(filepath.Base(path), ext)
			matched, err := filepath.Match(filter, name)
			if err != nil {
				return fmt.Errorf("invalid filter pattern: %w", err)
			}
			if !matched {
				return nil
			}
		}
		files = append(files, path)
		return nil
	})
	slices.Sort(files)
	return files, err
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if s.Properties.FetchSize != nil && *s.Properties.FetchSize <= 0 {
		return fmt.Errorf("properties.fetch_size must be positive")
	}
	for i, step := range s.Steps {
		if strings.TrimSpace(step.SQL) == "" {
			return fmt.Errorf("steps[%d]: sql is required", i)
		}
		if step.MaxRows < 0 {
			return fmt.Errorf("steps[%d]: max_rows must be non-negative", i)
		}
		if step.Expect.Error != "" && (len(step.Expect.Rows) > 0 || step.Expect.Pages > 0) {
			return fmt.Errorf("steps[%d].expect: error excludes rows and pages", i)
		}
	}
	return nil
}
