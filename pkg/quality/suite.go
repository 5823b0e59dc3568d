// Package quality checks a written output against a declarative suite of
// expectations and reports a pass/fail verdict per check.
package quality

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	yaml "gopkg.in/yaml.v3"

	"github.com/wdm0006/labeletl/pkg/etl"
)

const (
	ExpectColumnsMatchOrderedList = "table_columns_match_ordered_list"
	ExpectColumnNotNull           = "column_values_not_null"
	ExpectRowCountBetween         = "table_row_count_between"
	ExpectColumnOfType            = "column_values_of_type"
	ExpectColumnInSet             = "column_values_in_set"
	ExpectColumnBetween           = "column_values_between"
)

// DefaultSuiteName names the suite applied when none is configured.
const DefaultSuiteName = "parquet_output_suite"

type Suite struct {
	Name   string        `json:"name" yaml:"name" toml:"name"`
	Checks []Expectation `json:"checks" yaml:"checks" toml:"checks"`
}

type Expectation struct {
	ID      string   `json:"id" yaml:"id" toml:"id"`
	Type    string   `json:"type" yaml:"type" toml:"type"`
	Column  string   `json:"column,omitempty" yaml:"column,omitempty" toml:"column,omitempty"`
	Columns []string `json:"columns,omitempty" yaml:"columns,omitempty" toml:"columns,omitempty"`
	Types   []string `json:"types,omitempty" yaml:"types,omitempty" toml:"types,omitempty"`
	Values  []string `json:"values,omitempty" yaml:"values,omitempty" toml:"values,omitempty"`
	Min     *float64 `json:"min,omitempty" yaml:"min,omitempty" toml:"min,omitempty"`
	Max     *float64 `json:"max,omitempty" yaml:"max,omitempty" toml:"max,omitempty"`
}

func ptr(v float64) *float64 { return &v }

// DefaultSuite expects the label layout: ordered columns, a non-null key, at
// least one row and text-compatible column types. Confidence may be stored as
// a float by typed encodings.
func DefaultSuite() Suite {
	return Suite{
		Name: DefaultSuiteName,
		Checks: []Expectation{
			{ID: "columns_ordered", Type: ExpectColumnsMatchOrderedList, Columns: []string{"ImageID", "LabelName", "Confidence"}},
			{ID: "image_id_not_null", Type: ExpectColumnNotNull, Column: etl.DefaultKeyField},
			{ID: "row_count_min", Type: ExpectRowCountBetween, Min: ptr(1)},
			{ID: "image_id_type", Type: ExpectColumnOfType, Column: "ImageID", Types: []string{"string"}},
			{ID: "label_name_type", Type: ExpectColumnOfType, Column: "LabelName", Types: []string{"string"}},
			{ID: "confidence_type", Type: ExpectColumnOfType, Column: "Confidence", Types: []string{"string", "float"}},
		},
	}
}

// Validate reports the first structural problem in the suite.
func (s Suite) Validate() error {
	if len(s.Checks) == 0 {
		return errors.New("suite.checks must be non-empty")
	}
	seen := make(map[string]struct{}, len(s.Checks))
	for i, c := range s.Checks {
		id := strings.TrimSpace(c.ID)
		if id == "" {
			return fmt.Errorf("suite.checks[%d].id is required", i)
		}
		if _, ok := seen[id]; ok {
			return fmt.Errorf("suite.checks[%d].id must be unique (duplicate %q)", i, id)
		}
		seen[id] = struct{}{}

		kind := strings.ToLower(strings.TrimSpace(c.Type))
		needColumn := func() error {
			if strings.TrimSpace(c.Column) == "" {
				return fmt.Errorf("suite.checks[%d] %s requires column", i, kind)
			}
			return nil
		}
		switch kind {
		case "":
			return fmt.Errorf("suite.checks[%d].type is required", i)
		case ExpectColumnsMatchOrderedList:
			if len(c.Columns) == 0 {
				return fmt.Errorf("suite.checks[%d] %s requires columns", i, kind)
			}
		case ExpectColumnNotNull:
			if err := needColumn(); err != nil {
				return err
			}
		case ExpectRowCountBetween:
			if c.Min == nil && c.Max == nil {
				return fmt.Errorf("suite.checks[%d] %s requires min or max", i, kind)
			}
			if c.Min != nil && *c.Min < 0 {
				return fmt.Errorf("suite.checks[%d].min must be >= 0", i)
			}
			if c.Min != nil && c.Max != nil && *c.Min > *c.Max {
				return fmt.Errorf("suite.checks[%d].min must be <= max", i)
			}
		case ExpectColumnOfType:
			if err := needColumn(); err != nil {
				return err
			}
			if len(c.Types) == 0 {
				return fmt.Errorf("suite.checks[%d] %s requires types", i, kind)
			}
			for _, t := range c.Types {
				if _, err := etl.ParseKind(t); err != nil {
					return fmt.Errorf("suite.checks[%d].types: %w", i, err)
				}
			}
		case ExpectColumnInSet:
			if err := needColumn(); err != nil {
				return err
			}
			if len(c.Values) == 0 {
				return fmt.Errorf("suite.checks[%d] %s requires values", i, kind)
			}
		case ExpectColumnBetween:
			if err := needColumn(); err != nil {
				return err
			}
			if c.Min == nil && c.Max == nil {
				return fmt.Errorf("suite.checks[%d] %s requires min or max", i, kind)
			}
			if c.Min != nil && c.Max != nil && *c.Min > *c.Max {
				return fmt.Errorf("suite.checks[%d].min must be <= max", i)
			}
		default:
			return fmt.Errorf("suite.checks[%d].type unsupported: %q", i, kind)
		}
	}
	return nil
}

// LoadSuite reads a suite from a .yaml, .yml, .toml or .json file and validates it.
func LoadSuite(path string) (Suite, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Suite{}, fmt.Errorf("read suite: %w", err)
	}
	var s Suite
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, &s)
	case ".toml":
		err = toml.Unmarshal(b, &s)
	case ".json":
		err = json.Unmarshal(b, &s)
	default:
		return Suite{}, fmt.Errorf("suite %s: unsupported extension", path)
	}
	if err != nil {
		return Suite{}, fmt.Errorf("parse suite %s: %w", path, err)
	}
	if s.Name == "" {
		s.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if err := s.Validate(); err != nil {
		return Suite{}, fmt.Errorf("suite %s: %w", path, err)
	}
	return s, nil
}
