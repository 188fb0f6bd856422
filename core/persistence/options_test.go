package persistence

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/asaidimu/go-docstore/core/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOptions(t *testing.T) {
	data := []byte(`
statementCacheSize: 64
statementCacheTTL: 90s
batchSize: 200
maxResults: 500
tagObjectIds: true
keyColumn: pk
tables:
  events:
    isComposite: true
    primaryKeyFields: [stream, seq]
    shardKeyFields: [stream]
rateLimit:
  requestsPerSecond: 20
  burst: 5
ddlTimeout: 1m
`)

	opts, err := ParseOptions(data)
	require.NoError(t, err)
	assert.Equal(t, 64, opts.StatementCacheSize)
	assert.Equal(t, 90*time.Second, opts.StatementCacheTTL)
	assert.Equal(t, 200, opts.BatchSize)
	assert.Equal(t, 500, opts.MaxResults)
	assert.True(t, opts.TagObjectIDs)
	assert.False(t, opts.RestoreDates)
	assert.Equal(t, "pk", opts.KeyColumn)
	assert.Equal(t, RateLimitOptions{RequestsPerSecond: 20, Burst: 5}, opts.RateLimit)
	assert.Equal(t, time.Minute, opts.DDLTimeout)
	assert.Equal(t, 500*time.Millisecond, opts.DDLPollInterval, "unset fields keep their defaults")

	events := opts.KeysFor("events")
	assert.True(t, events.IsComposite)
	assert.Equal(t, []string{"stream", "seq"}, events.KeyColumns())
	assert.Equal(t, schema.NewSimpleKey("pk"), opts.KeysFor("users"))

	assert.Equal(t, ExecOptions{BatchSize: 200, MaxResults: 500, TagObjectIDs: true}, opts.execOptions())
}

func TestParseOptions_Empty(t *testing.T) {
	opts, err := ParseOptions(nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultOptions(), opts)
}

func TestOptions_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Options)
		errMsg string
	}{
		{name: "defaults", mutate: func(*Options) {}},
		{name: "zero cache", mutate: func(o *Options) { o.StatementCacheSize = 0 }, errMsg: "statementCacheSize"},
		{name: "negative batch", mutate: func(o *Options) { o.BatchSize = -1 }, errMsg: "batchSize"},
		{name: "negative cap", mutate: func(o *Options) { o.MaxResults = -1 }, errMsg: "maxResults"},
		{name: "empty key column", mutate: func(o *Options) { o.KeyColumn = "" }, errMsg: "keyColumn"},
		{name: "negative rate", mutate: func(o *Options) { o.RateLimit.RequestsPerSecond = -1 }, errMsg: "rateLimit"},
		{name: "negative ddl timeout", mutate: func(o *Options) { o.DDLTimeout = -time.Second }, errMsg: "ddl"},
		{
			name:   "nil table override",
			mutate: func(o *Options) { o.Tables = map[string]*schema.KeySchema{"a": nil} },
			errMsg: `table "a"`,
		},
		{
			name: "shard key not a prefix",
			mutate: func(o *Options) {
				o.Tables = map[string]*schema.KeySchema{"a": schema.NewCompositeKey([]string{"x", "y"}, []string{"y"})}
			},
			errMsg: "prefix",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := DefaultOptions()
			tt.mutate(&opts)
			err := opts.Validate()
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestLoadOptions(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "docstore.yaml")
	require.NoError(t, os.WriteFile(path, []byte("maxResults: 42\nrestoreDates: true\n"), 0o600))

	opts, err := LoadOptions(path)
	require.NoError(t, err)
	assert.Equal(t, 42, opts.MaxResults)
	assert.Equal(t, schema.MarshalOptions{RestoreDates: true}, opts.marshalOptions())

	_, err = LoadOptions(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte("statementCacheSize: -3\n"), 0o600))
	_, err = LoadOptions(path)
	assert.ErrorContains(t, err, "statementCacheSize")
}
