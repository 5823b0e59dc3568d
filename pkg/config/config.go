// Package config loads labeletl settings from defaults, an optional file and
// environment variables, in increasing order of precedence.
package config

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server      ServerConfig      `key:"server"`
	Pipeline    PipelineConfig    `key:"pipeline"`
	Logging     LoggingConfig     `key:"logging"`
	ObjectStore ObjectStoreConfig `key:"objectstore"`
	Rate        RateLimitConfig   `key:"rate"`
	CORS        CORSConfig        `key:"cors"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `key:"host" env:"SERVER_HOST" default:"0.0.0.0"`
	Port            int           `key:"port" env:"SERVER_PORT" envAlt:"PORT" default:"8080"`
	ReadTimeout     time.Duration `key:"read_timeout" env:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `key:"write_timeout" env:"SERVER_WRITE_TIMEOUT" default:"5m"`
	IdleTimeout     time.Duration `key:"idle_timeout" env:"SERVER_IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `key:"shutdown_timeout" env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout bounds a whole request, including a synchronous run.
	RequestTimeout time.Duration `key:"request_timeout" env:"SERVER_REQUEST_TIMEOUT" default:"4m"`

	// TrustProxy takes the client address from X-Real-IP / X-Forwarded-For.
	// Enable only behind a proxy that overwrites those headers.
	TrustProxy bool `key:"trust_proxy" env:"SERVER_TRUST_PROXY" default:"false"`
}

// PipelineConfig holds the fixed run inputs. Requests never override paths.
type PipelineConfig struct {
	Input       string `key:"input" env:"PIPELINE_INPUT" default:"data/labels.csv"`
	OutputRoot  string `key:"output_root" env:"PIPELINE_OUTPUT_ROOT" default:"data/output"`
	Format      string `key:"format" env:"PIPELINE_FORMAT" default:"csv"`
	KeyField    string `key:"key_field" env:"PIPELINE_KEY_FIELD" default:"ImageID"`
	SampleLimit int    `key:"sample_limit" env:"PIPELINE_SAMPLE_LIMIT" default:"5"`

	// Delimiter is a single character, or "auto" to sniff it from the header line.
	Delimiter string `key:"delimiter" env:"PIPELINE_DELIMITER" default:","`

	Validate  bool   `key:"validate" env:"PIPELINE_VALIDATE" default:"false"`
	SuitePath string `key:"suite" env:"PIPELINE_SUITE"`

	// Latest keeps data/output/latest_processed.csv after CSV runs.
	Latest   bool  `key:"latest" env:"PIPELINE_LATEST" default:"true"`
	Parallel int64 `key:"parquet_parallel" env:"PIPELINE_PARQUET_PARALLEL" default:"4"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `key:"level" env:"LOG_LEVEL" default:"info"`
	Format string `key:"format" env:"LOG_FORMAT" default:"text"`
}

// ObjectStoreConfig enables uploading finished outputs to S3-compatible storage.
type ObjectStoreConfig struct {
	Enabled      bool   `key:"enabled" env:"OBJECTSTORE_ENABLED" default:"false"`
	Endpoint     string `key:"endpoint" env:"OBJECTSTORE_ENDPOINT" envAlt:"MINIO_ENDPOINT"`
	AccessKey    string `key:"access_key" env:"OBJECTSTORE_ACCESS_KEY" envAlt:"MINIO_ACCESS_KEY"`
	SecretKey    string `key:"secret_key" env:"OBJECTSTORE_SECRET_KEY" envAlt:"MINIO_SECRET_KEY"`
	Bucket       string `key:"bucket" env:"OBJECTSTORE_BUCKET" default:"labeletl"`
	Prefix       string `key:"prefix" env:"OBJECTSTORE_PREFIX" default:"outputs"`
	Region       string `key:"region" env:"OBJECTSTORE_REGION" default:"us-east-1"`
	UseSSL       bool   `key:"use_ssl" env:"OBJECTSTORE_USE_SSL" default:"false"`
	CreateBucket bool   `key:"create_bucket" env:"OBJECTSTORE_CREATE_BUCKET" default:"true"`
}

// RateLimitConfig throttles the run trigger endpoints.
type RateLimitConfig struct {
	Enabled       bool    `key:"enabled" env:"RATE_LIMIT_ENABLED" default:"true"`
	RunsPerMinute float64 `key:"runs_per_minute" env:"RATE_LIMIT_RUNS_PER_MINUTE" default:"30"`
	Burst         int     `key:"burst" env:"RATE_LIMIT_BURST" default:"5"`
}

// CORSConfig applies to the JSON API only.
type CORSConfig struct {
	AllowedOrigins []string `key:"allowed_origins" env:"CORS_ALLOWED_ORIGINS" default:"*"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// String returns a representation safe for logging; secrets are masked.
func (c *Config) String() string {
	secret := ""
	if c.ObjectStore.SecretKey != "" {
		secret = "[MASKED]"
	}
	return fmt.Sprintf("Config{Server: {Addr: %q}, Pipeline: {Input: %q, OutputRoot: %q, Format: %q, Validate: %v}, "+
		"ObjectStore: {Enabled: %v, Endpoint: %q, Bucket: %q, SecretKey: %q}, Rate: {Enabled: %v, RunsPerMinute: %g}, "+
		"Logging: {Level: %q, Format: %q}}",
		c.Server.Addr(), c.Pipeline.Input, c.Pipeline.OutputRoot, c.Pipeline.Format, c.Pipeline.Validate,
		c.ObjectStore.Enabled, c.ObjectStore.Endpoint, c.ObjectStore.Bucket, secret,
		c.Rate.Enabled, c.Rate.RunsPerMinute, c.Logging.Level, c.Logging.Format)
}
