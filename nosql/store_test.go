package nosql

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/asaidimu/go-docstore/core/persistence"
	"github.com/asaidimu/go-docstore/core/schema"
	"github.com/oracle/nosql-go-sdk/nosqldb"
	"github.com/oracle/nosql-go-sdk/nosqldb/nosqlerr"
	"github.com/oracle/nosql-go-sdk/nosqldb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockClient struct {
	mock.Mock
}

var _ Client = (*mockClient)(nil)

func (m *mockClient) Prepare(req *nosqldb.PrepareRequest) (*nosqldb.PrepareResult, error) {
	args := m.Called(req)
	res, _ := args.Get(0).(*nosqldb.PrepareResult)
	return res, args.Error(1)
}

func (m *mockClient) Query(req *nosqldb.QueryRequest) (*nosqldb.QueryResult, error) {
	args := m.Called(req)
	res, _ := args.Get(0).(*nosqldb.QueryResult)
	return res, args.Error(1)
}

func (m *mockClient) Put(req *nosqldb.PutRequest) (*nosqldb.PutResult, error) {
	args := m.Called(req)
	res, _ := args.Get(0).(*nosqldb.PutResult)
	return res, args.Error(1)
}

func (m *mockClient) Get(req *nosqldb.GetRequest) (*nosqldb.GetResult, error) {
	args := m.Called(req)
	res, _ := args.Get(0).(*nosqldb.GetResult)
	return res, args.Error(1)
}

func (m *mockClient) Delete(req *nosqldb.DeleteRequest) (*nosqldb.DeleteResult, error) {
	args := m.Called(req)
	res, _ := args.Get(0).(*nosqldb.DeleteResult)
	return res, args.Error(1)
}

func (m *mockClient) DoTableRequest(req *nosqldb.TableRequest) (*nosqldb.TableResult, error) {
	args := m.Called(req)
	res, _ := args.Get(0).(*nosqldb.TableResult)
	return res, args.Error(1)
}

func (m *mockClient) GetTable(req *nosqldb.GetTableRequest) (*nosqldb.TableResult, error) {
	args := m.Called(req)
	res, _ := args.Get(0).(*nosqldb.TableResult)
	return res, args.Error(1)
}

func (m *mockClient) GetIndexes(req *nosqldb.GetIndexesRequest) (*nosqldb.GetIndexesResult, error) {
	args := m.Called(req)
	res, _ := args.Get(0).(*nosqldb.GetIndexesResult)
	return res, args.Error(1)
}

func newTestStore(client *mockClient) *Store {
	return NewStore(client, Options{DDLPollInterval: 5 * time.Millisecond}, nil)
}

func TestStore_PutRowOptions(t *testing.T) {
	tests := []struct {
		name    string
		opt     persistence.PutOption
		want    types.PutOption
		written bool
	}{
		{name: "if absent", opt: persistence.PutIfAbsent, want: types.PutIfAbsent, written: true},
		{name: "if present refused", opt: persistence.PutIfPresent, want: types.PutIfPresent},
		{name: "always", opt: persistence.PutAlways, written: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := new(mockClient)
			result := &nosqldb.PutResult{}
			if tt.written {
				result.Version = types.Version{1}
			}
			client.On("Put", mock.MatchedBy(func(req *nosqldb.PutRequest) bool {
				return req.TableName == "users" && req.PutOption == tt.want
			})).Return(result, nil).Once()

			ok, err := newTestStore(client).PutRow(context.Background(), "users", schema.Document{"id": "a"}, tt.opt)
			require.NoError(t, err)
			assert.Equal(t, tt.written, ok)
			client.AssertExpectations(t)
		})
	}
}

func TestStore_GetRow(t *testing.T) {
	client := new(mockClient)
	client.On("Get", mock.MatchedBy(func(req *nosqldb.GetRequest) bool { return req.TableName == "users" })).
		Return(&nosqldb.GetResult{Value: types.NewMapValue(map[string]any{
			"id":   "a",
			"tags": []any{"x", types.NewMapValue(map[string]any{"k": 1})},
		})}, nil).Once()
	client.On("Get", mock.Anything).Return(&nosqldb.GetResult{}, nil).Once()

	store := newTestStore(client)
	row, found, err := store.GetRow(context.Background(), "users", schema.Document{"id": "a"})
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, schema.Document{"id": "a", "tags": []any{"x", map[string]any{"k": 1}}}, row)

	_, found, err = store.GetRow(context.Background(), "users", schema.Document{"id": "b"})
	require.NoError(t, err)
	assert.False(t, found)
}

func TestStore_DeleteRow(t *testing.T) {
	client := new(mockClient)
	client.On("Delete", mock.Anything).Return(&nosqldb.DeleteResult{Success: true}, nil).Once()

	ok, err := newTestStore(client).DeleteRow(context.Background(), "users", schema.Document{"id": "a"})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestStore_DescribeTable(t *testing.T) {
	client := new(mockClient)
	client.On("GetTable", mock.MatchedBy(func(req *nosqldb.GetTableRequest) bool { return req.TableName == "events" })).
		Return(&nosqldb.TableResult{
			TableName: "events",
			State:     types.Active,
			Schema:    `{"name":"events","shardKey":["stream"],"primaryKey":["stream","seq"],"fields":[{"name":"stream","type":"STRING"},{"name":"seq","type":"LONG"}]}`,
		}, nil).Once()
	client.On("GetTable", mock.Anything).Return(nil, nosqlerr.New(nosqlerr.TableNotFound, "table %s not found", "missing")).Once()

	store := newTestStore(client)
	info, err := store.DescribeTable(context.Background(), "events")
	require.NoError(t, err)
	assert.True(t, info.Keys.IsComposite)
	assert.Equal(t, []string{"stream", "seq"}, info.Keys.KeyColumns())
	assert.Equal(t, []string{"stream"}, info.Keys.ShardKeyFields)
	assert.Equal(t, "LONG", info.Keys.ColumnType("seq"))
	assert.Equal(t, "STRING", info.Keys.ColumnType("stream"))

	_, err = store.DescribeTable(context.Background(), "missing")
	assert.ErrorIs(t, err, persistence.ErrTableNotFound)
}

func TestKeySchemaOf(t *testing.T) {
	keys, err := keySchemaOf(`{"primaryKey":["id"],"shardKey":["id"]}`)
	require.NoError(t, err)
	assert.Equal(t, schema.NewSimpleKey("id"), keys)

	keys, err = keySchemaOf("")
	require.NoError(t, err)
	assert.Nil(t, keys)

	_, err = keySchemaOf(`{"primaryKey":[]}`)
	assert.Error(t, err)
	_, err = keySchemaOf(`not json`)
	assert.Error(t, err)
}

func TestStore_RunDDLWaitsForActive(t *testing.T) {
	client := new(mockClient)
	client.On("DoTableRequest", mock.MatchedBy(func(req *nosqldb.TableRequest) bool {
		return req.Statement == "CREATE INDEX IF NOT EXISTS age_1 ON users(age AS ANYATOMIC)"
	})).Return(&nosqldb.TableResult{TableName: "users", State: types.Updating}, nil).Once()
	client.On("GetTable", mock.Anything).Return(&nosqldb.TableResult{TableName: "users", State: types.Updating}, nil).Once()
	client.On("GetTable", mock.Anything).Return(&nosqldb.TableResult{TableName: "users", State: types.Active}, nil).Once()

	store := newTestStore(client)
	handle, err := store.RunDDL(context.Background(), "CREATE INDEX IF NOT EXISTS age_1 ON users(age AS ANYATOMIC)")
	require.NoError(t, err)
	require.NoError(t, handle.Wait(context.Background()))
	client.AssertExpectations(t)
}

func TestStore_RunDDLWaitHonorsContext(t *testing.T) {
	client := new(mockClient)
	client.On("DoTableRequest", mock.Anything).Return(&nosqldb.TableResult{TableName: "users", State: types.Creating}, nil).Once()
	client.On("GetTable", mock.Anything).Return(&nosqldb.TableResult{TableName: "users", State: types.Creating}, nil)

	handle, err := newTestStore(client).RunDDL(context.Background(), "CREATE TABLE users (id STRING, PRIMARY KEY(SHARD(id))) AS JSON COLLECTION")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err = handle.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestStore_RunDDLMapsExists(t *testing.T) {
	client := new(mockClient)
	client.On("DoTableRequest", mock.Anything).Return(nil, nosqlerr.New(nosqlerr.TableExists, "exists")).Once()

	_, err := newTestStore(client).RunDDL(context.Background(), "CREATE TABLE users (id STRING, PRIMARY KEY(id))")
	assert.ErrorIs(t, err, persistence.ErrTableExists)
}

func TestStore_ListIndexes(t *testing.T) {
	client := new(mockClient)
	client.On("GetIndexes", mock.Anything).Return(&nosqldb.GetIndexesResult{
		Indexes: []nosqldb.IndexInfo{{IndexName: "age_1", FieldNames: []string{"age"}}},
	}, nil).Once()

	indexes, err := newTestStore(client).ListIndexes(context.Background(), "users")
	require.NoError(t, err)
	assert.Equal(t, []persistence.IndexInfo{{Name: "age_1", Fields: []string{"age"}}}, indexes)
}

func TestStore_HonorsCanceledContext(t *testing.T) {
	client := new(mockClient)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	store := newTestStore(client)
	_, err := store.Prepare(ctx, "SELECT * FROM users t")
	assert.ErrorIs(t, err, context.Canceled)
	_, _, err = store.GetRow(ctx, "users", schema.Document{"id": "a"})
	assert.ErrorIs(t, err, context.Canceled)
	client.AssertNumberOfCalls(t, "Prepare", 0)
	client.AssertNumberOfCalls(t, "Get", 0)
}

func TestMapError(t *testing.T) {
	plain := errors.New("boom")
	assert.Same(t, plain, mapError(plain))
	assert.NoError(t, mapError(nil))
}
