package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/asaidimu/go-docstore/core/query"
	"github.com/asaidimu/go-docstore/core/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestCompileFind(t *testing.T) {
	out, err := execute(t, "compile", "find", "--table", "users",
		"--filter", `{"age":{"$gt":21}}`, "--sort", `{"age":-1}`, "--limit", "5")
	require.NoError(t, err)

	var got compiledStatement
	require.NoError(t, json.Unmarshal([]byte(out), &got))

	filter, err := schema.ParseJSON([]byte(`{"age":{"$gt":21}}`))
	require.NoError(t, err)
	sort, err := schema.ParseJSON([]byte(`{"age":-1}`))
	require.NoError(t, err)
	want, err := query.NewStatementBuilder().Select(
		query.Table{Name: "users", Keys: schema.NewSimpleKey("id")},
		filter,
		query.FindOptions{Sort: sort, Limit: 5},
	)
	require.NoError(t, err)

	assert.Equal(t, want.Text, got.Statement)
	require.Len(t, got.Bindings, want.Bindings.Len())
	assert.Equal(t, want.Bindings.Bindings()[0].Name, got.Bindings[0].Name)
}

func TestCompileDelete(t *testing.T) {
	out, err := execute(t, "compile", "delete", "--table", "users", "--filter", `{"age":30}`)
	require.NoError(t, err)

	var got compiledStatement
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, `DECLARE $age NUMBER; DELETE FROM users t WHERE t."age"[] =any $age`, got.Statement)
	require.Len(t, got.Bindings, 1)
	assert.Equal(t, "$age", got.Bindings[0].Name)
}

func TestCompileRejectsBadFilter(t *testing.T) {
	_, err := execute(t, "compile", "count", "--table", "users", "--filter", `{"age":`)
	assert.Error(t, err)
}

func TestCompileUpdateRequiresUpdate(t *testing.T) {
	_, err := execute(t, "compile", "update", "--table", "users", "--filter", `{"_id":"a"}`, "--update", "")
	assert.ErrorContains(t, err, "--update is required")
}

func TestSchemaCommands(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "catalog.db")
	file := filepath.Join(dir, "users.json")
	require.NoError(t, os.WriteFile(file, []byte(`{"name":"users","version":"1.0.0","fields":{"name":{"name":"name","type":"string"}}}`), 0o600))

	_, err := execute(t, "schema", "put", "--db", db, "--file", file)
	require.NoError(t, err)

	out, err := execute(t, "schema", "get", "users", "--db", db)
	require.NoError(t, err)
	var def schema.SchemaDefinition
	require.NoError(t, json.Unmarshal([]byte(out), &def))
	assert.Equal(t, "1.0.0", def.Version)
	assert.Contains(t, def.Fields, "name")

	out, err = execute(t, "schema", "list", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "users\t1.0.0")

	_, err = execute(t, "schema", "get", "orders", "--db", db)
	assert.ErrorContains(t, err, "not found")
}

func TestKeySchemaFromFlags(t *testing.T) {
	configured := schema.NewSimpleKey("id")
	tests := []struct {
		name    string
		columns []string
		shard   []string
		want    *schema.KeySchema
		wantErr bool
	}{
		{name: "configured", want: configured},
		{name: "simple", columns: []string{"uid"}, want: schema.NewSimpleKey("uid")},
		{name: "composite", columns: []string{"stream", "seq"}, want: schema.NewCompositeKey([]string{"stream", "seq"}, nil)},
		{name: "bad shard", columns: []string{"a", "b"}, shard: []string{"b"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := keySchemaFromFlags(tt.columns, tt.shard, configured)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
