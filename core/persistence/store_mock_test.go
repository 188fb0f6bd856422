package persistence

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/asaidimu/go-docstore/core/query"
	"github.com/asaidimu/go-docstore/core/schema"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var (
	ctxAny = mock.Anything
	anyArg = mock.Anything
)

type mockStore struct {
	mock.Mock
}

var _ Store = (*mockStore)(nil)

func (m *mockStore) Prepare(ctx context.Context, text string) (PreparedStatement, error) {
	args := m.Called(ctx, text)
	ps, _ := args.Get(0).(PreparedStatement)
	return ps, args.Error(1)
}

func (m *mockStore) Execute(ctx context.Context, ps PreparedStatement, bindings map[string]any, opts ExecOptions) (BatchSource, error) {
	args := m.Called(ctx, ps, bindings, opts)
	source, _ := args.Get(0).(BatchSource)
	return source, args.Error(1)
}

func (m *mockStore) PutRow(ctx context.Context, table string, row schema.Document, opt PutOption) (bool, error) {
	args := m.Called(ctx, table, row, opt)
	return args.Bool(0), args.Error(1)
}

func (m *mockStore) GetRow(ctx context.Context, table string, key schema.Document) (schema.Document, bool, error) {
	args := m.Called(ctx, table, key)
	row, _ := args.Get(0).(schema.Document)
	return row, args.Bool(1), args.Error(2)
}

func (m *mockStore) DeleteRow(ctx context.Context, table string, key schema.Document) (bool, error) {
	args := m.Called(ctx, table, key)
	return args.Bool(0), args.Error(1)
}

func (m *mockStore) RunDDL(ctx context.Context, text string) (DDLHandle, error) {
	args := m.Called(ctx, text)
	handle, _ := args.Get(0).(DDLHandle)
	return handle, args.Error(1)
}

func (m *mockStore) DescribeTable(ctx context.Context, table string) (*TableInfo, error) {
	args := m.Called(ctx, table)
	info, _ := args.Get(0).(*TableInfo)
	return info, args.Error(1)
}

func (m *mockStore) ListIndexes(ctx context.Context, table string) ([]IndexInfo, error) {
	args := m.Called(ctx, table)
	indexes, _ := args.Get(0).([]IndexInfo)
	return indexes, args.Error(1)
}

// expectStatement scripts Prepare and Execute for one statement text.
func (m *mockStore) expectStatement(text string, source BatchSource) {
	m.On("Prepare", mock.Anything, text).Return(testStatement(text), nil).Once()
	m.On("Execute", mock.Anything, testStatement(text), mock.Anything, mock.Anything).Return(source, nil).Once()
}

type testStatement string

func (s testStatement) Text() string {
	return string(s)
}

// scriptedSource replays fixed batches, optionally failing at one of them.
type scriptedSource struct {
	mu      sync.Mutex
	batches [][]map[string]any
	failAt  int
	err     error
	next    int
	closed  int
}

func newSource(batches ...[]map[string]any) *scriptedSource {
	return &scriptedSource{batches: batches, failAt: -1}
}

func failingSource(failAt int, err error, batches ...[]map[string]any) *scriptedSource {
	return &scriptedSource{batches: batches, failAt: failAt, err: err}
}

func (s *scriptedSource) Next(_ context.Context) ([]map[string]any, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.next == s.failAt {
		return nil, false, s.err
	}
	if s.next >= len(s.batches) {
		return nil, true, nil
	}
	batch := s.batches[s.next]
	s.next++
	return batch, s.next == len(s.batches) && s.failAt < 0, nil
}

func (s *scriptedSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return nil
}

func (s *scriptedSource) closeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type testDDL struct {
	err error
}

func (d testDDL) Wait(context.Context) error {
	return d.err
}

func rows(docs ...map[string]any) []map[string]any {
	return docs
}

func newTestTable(name string, keys *schema.KeySchema, exec ExecOptions) *Table {
	if keys == nil {
		keys = schema.NewSimpleKey(schema.DefaultKeyColumn)
	}
	return &Table{
		Name:   name,
		Keys:   keys,
		Exec:   exec,
		Values: schema.NewRowMarshaller(keys, schema.MarshalOptions{}),
	}
}

func newTestExecutor(store Store) *Executor {
	return NewExecutor(store, NewStatementCache(16, time.Minute, nil, nil), nil, nil)
}

func mustSelect(t *testing.T, table *Table, filter any) *query.Statement {
	t.Helper()
	stmt, err := query.NewStatementBuilder().Select(table.Target(), filter, query.FindOptions{})
	require.NoError(t, err)
	return stmt
}

func selectAll(table *Table) *query.Statement {
	stmt, err := query.NewStatementBuilder().Select(table.Target(), nil, query.FindOptions{})
	if err != nil {
		panic(err)
	}
	return stmt
}
