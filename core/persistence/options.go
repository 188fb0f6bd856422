package persistence

import (
	"fmt"
	"os"
	"time"

	"github.com/asaidimu/go-docstore/core/schema"
	"gopkg.in/yaml.v3"
)

// RateLimitOptions throttles store calls. A zero rate disables throttling.
type RateLimitOptions struct {
	RequestsPerSecond float64 `yaml:"requestsPerSecond"`
	Burst             int     `yaml:"burst"`
}

// Options configures a Persistence instance.
type Options struct {
	// StatementCacheSize is the capacity of the prepared-statement cache.
	StatementCacheSize int `yaml:"statementCacheSize"`
	// StatementCacheTTL expires prepared statements after this long.
	StatementCacheTTL time.Duration `yaml:"statementCacheTTL"`
	// BatchSize is the number of rows requested per round-trip.
	BatchSize int `yaml:"batchSize"`
	// MaxResults caps the rows a single cursor may return.
	MaxResults int `yaml:"maxResults"`
	// TagObjectIDs stores ObjectIDs with a type tag so they read back typed.
	TagObjectIDs bool `yaml:"tagObjectIds"`
	// RestoreDates reads ISO-8601 strings back as time.Time.
	RestoreDates bool `yaml:"restoreDates"`
	// KeyColumn is the column of tables created with a simple key.
	KeyColumn string `yaml:"keyColumn"`
	// Tables overrides the key schema used to create specific tables.
	Tables          map[string]*schema.KeySchema `yaml:"tables"`
	RateLimit       RateLimitOptions             `yaml:"rateLimit"`
	DDLTimeout      time.Duration                `yaml:"ddlTimeout"`
	DDLPollInterval time.Duration                `yaml:"ddlPollInterval"`
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		StatementCacheSize: 500,
		StatementCacheTTL:  10 * time.Minute,
		MaxResults:         10000,
		KeyColumn:          schema.DefaultKeyColumn,
		DDLTimeout:         30 * time.Second,
		DDLPollInterval:    500 * time.Millisecond,
	}
}

// LoadOptions reads a YAML file over DefaultOptions.
func LoadOptions(path string) (Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Options{}, fmt.Errorf("failed to read options file %s: %w", path, err)
	}
	return ParseOptions(data)
}

// ParseOptions decodes YAML over DefaultOptions and validates the result.
func ParseOptions(data []byte) (Options, error) {
	opts := DefaultOptions()
	if err := yaml.Unmarshal(data, &opts); err != nil {
		return Options{}, fmt.Errorf("failed to parse options: %w", err)
	}
	if err := opts.Validate(); err != nil {
		return Options{}, err
	}
	return opts, nil
}

// Validate rejects settings no component can honor.
func (o Options) Validate() error {
	switch {
	case o.StatementCacheSize <= 0:
		return fmt.Errorf("statementCacheSize must be positive, got %d", o.StatementCacheSize)
	case o.StatementCacheTTL < 0:
		return fmt.Errorf("statementCacheTTL must not be negative")
	case o.BatchSize < 0:
		return fmt.Errorf("batchSize must not be negative, got %d", o.BatchSize)
	case o.MaxResults < 0:
		return fmt.Errorf("maxResults must not be negative, got %d", o.MaxResults)
	case o.KeyColumn == "":
		return fmt.Errorf("keyColumn must not be empty")
	case o.RateLimit.RequestsPerSecond < 0 || o.RateLimit.Burst < 0:
		return fmt.Errorf("rateLimit must not be negative")
	case o.DDLTimeout < 0 || o.DDLPollInterval < 0:
		return fmt.Errorf("ddl timings must not be negative")
	}
	for name, keys := range o.Tables {
		if keys == nil {
			return fmt.Errorf("table %q has an empty key override", name)
		}
		if err := keys.Validate(); err != nil {
			return fmt.Errorf("table %q: %w", name, err)
		}
	}
	return nil
}

// KeysFor returns the key schema new tables named name are created with.
func (o Options) KeysFor(name string) *schema.KeySchema {
	if keys, ok := o.Tables[name]; ok && keys != nil {
		return keys
	}
	return schema.NewSimpleKey(o.KeyColumn)
}

func (o Options) execOptions() ExecOptions {
	return ExecOptions{
		BatchSize:    o.BatchSize,
		MaxResults:   o.MaxResults,
		TagObjectIDs: o.TagObjectIDs,
	}
}

func (o Options) marshalOptions() schema.MarshalOptions {
	return schema.MarshalOptions{
		TagObjectIDs: o.TagObjectIDs,
		RestoreDates: o.RestoreDates,
	}
}
