package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	yaml "gopkg.in/yaml.v3"
)

// Load builds the configuration from defaults, then the optional file at path
// (.yaml, .yml, .toml or .json), then environment variables, and validates it.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	root := reflect.ValueOf(cfg).Elem()

	if err := walk(root, "", applyDefault); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	if path != "" {
		values, err := readFile(path)
		if err != nil {
			return nil, fmt.Errorf("config file: %w", err)
		}
		if err := applyFile(root, values); err != nil {
			return nil, fmt.Errorf("config file %s: %w", path, err)
		}
	}
	if err := walk(root, "", applyEnv); err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

type visitFunc func(field reflect.StructField, v reflect.Value, key string) error

// walk visits every settable leaf field, passing its dotted file key.
func walk(v reflect.Value, prefix string, fn visitFunc) error {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		fv := v.Field(i)
		if !fv.CanSet() {
			continue
		}
		key := field.Tag.Get("key")
		if key == "" {
			key = strings.ToLower(field.Name)
		}
		if prefix != "" {
			key = prefix + "." + key
		}
		if field.Type.Kind() == reflect.Struct {
			if err := walk(fv, key, fn); err != nil {
				return err
			}
			continue
		}
		if err := fn(field, fv, key); err != nil {
			return err
		}
	}
	return nil
}

func applyDefault(field reflect.StructField, v reflect.Value, _ string) error {
	def, ok := field.Tag.Lookup("default")
	if !ok || def == "" {
		return nil
	}
	if err := setField(v, def); err != nil {
		return fmt.Errorf("invalid default for %s: %w", field.Name, err)
	}
	return nil
}

func applyEnv(field reflect.StructField, v reflect.Value, _ string) error {
	name := field.Tag.Get("env")
	if name == "" {
		return nil
	}
	value := os.Getenv(name)
	if value == "" {
		if alt := field.Tag.Get("envAlt"); alt != "" {
			value = os.Getenv(alt)
		}
	}
	if value == "" {
		return nil
	}
	if err := setField(v, value); err != nil {
		return fmt.Errorf("invalid value for %s=%q: %w", name, value, err)
	}
	return nil
}

func applyFile(root reflect.Value, values map[string]string) error {
	seen := make(map[string]bool, len(values))
	err := walk(root, "", func(_ reflect.StructField, v reflect.Value, key string) error {
		raw, ok := values[key]
		if !ok {
			return nil
		}
		seen[key] = true
		if err := setField(v, raw); err != nil {
			return fmt.Errorf("invalid value for %s=%q: %w", key, raw, err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	var unknown []string
	for k := range values {
		if !seen[k] {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return fmt.Errorf("unknown keys: %s", strings.Join(unknown, ", "))
	}
	return nil
}

// readFile decodes a config file into dotted keys with string values, so every
// format goes through the same conversions as environment variables.
func readFile(path string) (map[string]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	doc := map[string]any{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, &doc)
	case ".toml":
		err = toml.Unmarshal(b, &doc)
	case ".json":
		err = json.Unmarshal(b, &doc)
	default:
		return nil, fmt.Errorf("%s: unsupported extension", path)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	out := map[string]string{}
	flatten("", doc, out)
	return out, nil
}

func flatten(prefix string, m map[string]any, out map[string]string) {
	for k, v := range m {
		key := strings.ToLower(k)
		if prefix != "" {
			key = prefix + "." + key
		}
		if sub, ok := v.(map[string]any); ok {
			flatten(key, sub, out)
			continue
		}
		out[key] = scalar(v)
	}
}

func scalar(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case []any:
		parts := make([]string, 0, len(x))
		for _, e := range x {
			parts = append(parts, scalar(e))
		}
		return strings.Join(parts, ",")
	default:
		return fmt.Sprint(x)
	}
}

// setField sets a reflect.Value from a string based on its type.
func setField(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("invalid duration: %w", err)
			}
			field.Set(reflect.ValueOf(d))
			return nil
		}
		i, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid integer: %w", err)
		}
		field.SetInt(i)

	case reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid number: %w", err)
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean: %w", err)
		}
		field.SetBool(b)

	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice type: %s", field.Type().Elem().Kind())
		}
		parts := strings.Split(value, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				result = append(result, p)
			}
		}
		field.Set(reflect.ValueOf(result))

	default:
		return fmt.Errorf("unsupported field type: %s", field.Kind())
	}
	return nil
}

// Validate checks that the configuration is usable and reports every problem.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("SERVER_PORT (%d) must be 1-65535", c.Server.Port))
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, "SERVER_SHUTDOWN_TIMEOUT must be positive")
	}
	if c.Server.RequestTimeout <= 0 {
		errs = append(errs, "SERVER_REQUEST_TIMEOUT must be positive")
	}

	if strings.TrimSpace(c.Pipeline.Input) == "" {
		errs = append(errs, "PIPELINE_INPUT is required")
	}
	if strings.TrimSpace(c.Pipeline.OutputRoot) == "" {
		errs = append(errs, "PIPELINE_OUTPUT_ROOT is required")
	}
	if !ValidFormat(c.Pipeline.Format) {
		errs = append(errs, fmt.Sprintf("PIPELINE_FORMAT (%q) must be one of: %s", c.Pipeline.Format, strings.Join(Formats, ", ")))
	}
	if strings.TrimSpace(c.Pipeline.KeyField) == "" {
		errs = append(errs, "PIPELINE_KEY_FIELD is required")
	}
	if c.Pipeline.SampleLimit < 0 {
		errs = append(errs, "PIPELINE_SAMPLE_LIMIT must be non-negative")
	}
	if d := c.Pipeline.Delimiter; d != "auto" && len([]rune(d)) != 1 {
		errs = append(errs, fmt.Sprintf("PIPELINE_DELIMITER (%q) must be a single character or \"auto\"", d))
	}
	if c.Pipeline.Parallel <= 0 {
		errs = append(errs, "PIPELINE_PARQUET_PARALLEL must be positive")
	}

	if c.ObjectStore.Enabled {
		if c.ObjectStore.Endpoint == "" {
			errs = append(errs, "OBJECTSTORE_ENDPOINT is required when the object store is enabled")
		}
		if c.ObjectStore.Bucket == "" {
			errs = append(errs, "OBJECTSTORE_BUCKET is required when the object store is enabled")
		}
		if c.ObjectStore.AccessKey == "" || c.ObjectStore.SecretKey == "" {
			errs = append(errs, "OBJECTSTORE_ACCESS_KEY and OBJECTSTORE_SECRET_KEY are required when the object store is enabled")
		}
	}

	if c.Rate.Enabled && (c.Rate.RunsPerMinute <= 0 || c.Rate.Burst <= 0) {
		errs = append(errs, "RATE_LIMIT_RUNS_PER_MINUTE and RATE_LIMIT_BURST must be positive when rate limiting is enabled")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, fmt.Sprintf("LOG_LEVEL (%q) must be one of: debug, info, warn, error", c.Logging.Level))
	}
	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, fmt.Sprintf("LOG_FORMAT (%q) must be one of: text, json", c.Logging.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// Formats lists the accepted output formats.
var Formats = []string{"csv", "parquet", "parquet-typed"}

func ValidFormat(f string) bool {
	for _, v := range Formats {
		if f == v {
			return true
		}
	}
	return false
}
