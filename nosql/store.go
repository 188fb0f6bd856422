// Package nosql implements persistence.Store over the Oracle NoSQL Database
// Go SDK.
package nosql

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/asaidimu/go-docstore/core/persistence"
	"github.com/asaidimu/go-docstore/core/schema"
	"github.com/oracle/nosql-go-sdk/nosqldb"
	"github.com/oracle/nosql-go-sdk/nosqldb/nosqlerr"
	"github.com/oracle/nosql-go-sdk/nosqldb/types"
	"go.uber.org/zap"
)

// Client is the subset of *nosqldb.Client the store uses.
type Client interface {
	Prepare(req *nosqldb.PrepareRequest) (*nosqldb.PrepareResult, error)
	Query(req *nosqldb.QueryRequest) (*nosqldb.QueryResult, error)
	Put(req *nosqldb.PutRequest) (*nosqldb.PutResult, error)
	Get(req *nosqldb.GetRequest) (*nosqldb.GetResult, error)
	Delete(req *nosqldb.DeleteRequest) (*nosqldb.DeleteResult, error)
	DoTableRequest(req *nosqldb.TableRequest) (*nosqldb.TableResult, error)
	GetTable(req *nosqldb.GetTableRequest) (*nosqldb.TableResult, error)
	GetIndexes(req *nosqldb.GetIndexesRequest) (*nosqldb.GetIndexesResult, error)
}

var _ Client = (*nosqldb.Client)(nil)

// Options configures a Store.
type Options struct {
	// Timeout bounds every single request. Zero uses the SDK default.
	Timeout time.Duration
	// DDLPollInterval is how often pending DDL is checked for completion.
	DDLPollInterval time.Duration
}

// Store adapts a NoSQL client to persistence.Store.
type Store struct {
	client Client
	opts   Options
	logger *zap.Logger
}

var _ persistence.Store = (*Store)(nil)

// Connect opens a client for endpoint in cloudsim mode, the unauthenticated
// mode of the local simulator and the on-premise proxy.
func Connect(endpoint string, opts Options, logger *zap.Logger) (*Store, *nosqldb.Client, error) {
	client, err := nosqldb.NewClient(nosqldb.Config{
		Endpoint: endpoint,
		Mode:     "cloudsim",
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to %s: %w", endpoint, err)
	}
	return NewStore(client, opts, logger), client, nil
}

// NewStore wraps client.
func NewStore(client Client, opts Options, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.DDLPollInterval <= 0 {
		opts.DDLPollInterval = persistence.DefaultOptions().DDLPollInterval
	}
	return &Store{client: client, opts: opts, logger: logger}
}

// Prepare implements persistence.Store.
func (s *Store) Prepare(ctx context.Context, text string) (persistence.PreparedStatement, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	res, err := s.client.Prepare(&nosqldb.PrepareRequest{Statement: text, Timeout: s.opts.Timeout})
	if err != nil {
		return nil, err
	}
	return &preparedStatement{text: text, stmt: &res.PreparedStatement}, nil
}

// Execute implements persistence.Store.
func (s *Store) Execute(ctx context.Context, ps persistence.PreparedStatement, bindings map[string]any, opts persistence.ExecOptions) (persistence.BatchSource, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prepared, ok := ps.(*preparedStatement)
	if !ok {
		return nil, fmt.Errorf("statement %q was not prepared by this store", ps.Text())
	}
	req := &nosqldb.QueryRequest{
		PreparedStatement: prepared.stmt,
		Timeout:           s.opts.Timeout,
	}
	if opts.BatchSize > 0 {
		req.Limit = uint(opts.BatchSize)
	}
	return &querySource{client: s.client, stmt: prepared, bindings: bindings, req: req, logger: s.logger}, nil
}

// PutRow implements persistence.Store.
func (s *Store) PutRow(ctx context.Context, table string, row schema.Document, opt persistence.PutOption) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	req := &nosqldb.PutRequest{
		TableName: table,
		Value:     types.NewMapValue(map[string]any(row)),
		Timeout:   s.opts.Timeout,
	}
	switch opt {
	case persistence.PutIfAbsent:
		req.PutOption = types.PutIfAbsent
	case persistence.PutIfPresent:
		req.PutOption = types.PutIfPresent
	}
	res, err := s.client.Put(req)
	if err != nil {
		return false, mapError(err)
	}
	return res.Version != nil, nil
}

// GetRow implements persistence.Store.
func (s *Store) GetRow(ctx context.Context, table string, key schema.Document) (schema.Document, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	res, err := s.client.Get(&nosqldb.GetRequest{
		TableName: table,
		Key:       types.NewMapValue(map[string]any(key)),
		Timeout:   s.opts.Timeout,
	})
	if err != nil {
		return nil, false, mapError(err)
	}
	if res.Value == nil {
		return nil, false, nil
	}
	return schema.Document(fromMapValue(res.Value)), true, nil
}

// DeleteRow implements persistence.Store.
func (s *Store) DeleteRow(ctx context.Context, table string, key schema.Document) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	res, err := s.client.Delete(&nosqldb.DeleteRequest{
		TableName: table,
		Key:       types.NewMapValue(map[string]any(key)),
		Timeout:   s.opts.Timeout,
	})
	if err != nil {
		return false, mapError(err)
	}
	return res.Success, nil
}

// RunDDL implements persistence.Store. The returned handle polls the table
// until it leaves its transitional state.
func (s *Store) RunDDL(ctx context.Context, text string) (persistence.DDLHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.logger.Debug("Submitting DDL", zap.String("statement", text))
	res, err := s.client.DoTableRequest(&nosqldb.TableRequest{Statement: text, Timeout: s.opts.Timeout})
	if err != nil {
		return nil, mapError(err)
	}
	return &ddlHandle{store: s, table: res.TableName, state: res.State}, nil
}

// DescribeTable implements persistence.Store.
func (s *Store) DescribeTable(ctx context.Context, table string) (*persistence.TableInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	res, err := s.client.GetTable(&nosqldb.GetTableRequest{TableName: table, Timeout: s.opts.Timeout})
	if err != nil {
		return nil, mapError(err)
	}
	keys, err := keySchemaOf(res.Schema)
	if err != nil {
		return nil, fmt.Errorf("table %s: %w", table, err)
	}
	return &persistence.TableInfo{Name: res.TableName, Keys: keys, State: res.State.String()}, nil
}

// ListIndexes implements persistence.Store.
func (s *Store) ListIndexes(ctx context.Context, table string) ([]persistence.IndexInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	res, err := s.client.GetIndexes(&nosqldb.GetIndexesRequest{TableName: table, Timeout: s.opts.Timeout})
	if err != nil {
		return nil, mapError(err)
	}
	out := make([]persistence.IndexInfo, 0, len(res.Indexes))
	for _, idx := range res.Indexes {
		out = append(out, persistence.IndexInfo{Name: idx.IndexName, Fields: idx.FieldNames})
	}
	return out, nil
}

// preparedStatement guards the SDK statement, whose bind variables are
// shared state.
type preparedStatement struct {
	text string
	mu   sync.Mutex
	stmt *nosqldb.PreparedStatement
}

func (p *preparedStatement) Text() string {
	return p.text
}

// querySource pulls one batch per Query call until the request is done.
type querySource struct {
	client   Client
	stmt     *preparedStatement
	bindings map[string]any
	req      *nosqldb.QueryRequest
	logger   *zap.Logger
	done     bool
}

func (q *querySource) Next(ctx context.Context) ([]map[string]any, bool, error) {
	if q.done {
		return nil, true, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	res, err := q.query()
	if err != nil {
		return nil, false, mapError(err)
	}
	values, err := res.GetResults()
	if err != nil {
		return nil, false, err
	}
	rows := make([]map[string]any, 0, len(values))
	for _, v := range values {
		rows = append(rows, fromMapValue(v))
	}
	q.done = q.req.IsDone()
	return rows, q.done, nil
}

// query binds the variables and sends one request while holding the
// statement, since continuation requests resend the bindings.
func (q *querySource) query() (*nosqldb.QueryResult, error) {
	q.stmt.mu.Lock()
	defer q.stmt.mu.Unlock()
	for name, value := range q.bindings {
		if err := q.stmt.stmt.SetVariable(name, value); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", name, err)
		}
	}
	return q.client.Query(q.req)
}

func (q *querySource) Close() error {
	q.done = true
	return nil
}

// ddlHandle waits for a table to become active after DDL.
type ddlHandle struct {
	store *Store
	table string
	state types.TableState
}

func (h *ddlHandle) Wait(ctx context.Context) error {
	if h.settled() {
		return nil
	}
	ticker := time.NewTicker(h.store.opts.DDLPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for table %s: %w", h.table, ctx.Err())
		case <-ticker.C:
		}
		res, err := h.store.client.GetTable(&nosqldb.GetTableRequest{TableName: h.table, Timeout: h.store.opts.Timeout})
		if err != nil {
			if nosqlerr.Is(err, nosqlerr.TableNotFound) && h.state == types.Dropping {
				return nil
			}
			return mapError(err)
		}
		h.state = res.State
		h.store.logger.Debug("Polled table state", zap.String("table", h.table), zap.Stringer("state", h.state))
		if h.settled() {
			return nil
		}
	}
}

func (h *ddlHandle) settled() bool {
	return h.state == types.Active || h.state == types.Dropped
}

// mapError translates SDK errors the persistence layer branches on.
func mapError(err error) error {
	switch {
	case err == nil:
		return nil
	case nosqlerr.Is(err, nosqlerr.TableNotFound):
		return fmt.Errorf("%w: %v", persistence.ErrTableNotFound, err)
	case nosqlerr.Is(err, nosqlerr.TableExists):
		return fmt.Errorf("%w: %v", persistence.ErrTableExists, err)
	}
	return err
}

// tableSchema is the part of the JSON table description that carries the key.
type tableSchema struct {
	PrimaryKey []string `json:"primaryKey"`
	ShardKey   []string `json:"shardKey"`
	Fields     []struct {
		Name string `json:"name"`
		Type string `json:"type"`
	} `json:"fields"`
}

// keySchemaOf derives the key schema from a table's JSON description. An
// empty description yields nil, leaving the default to the caller.
func keySchemaOf(description string) (*schema.KeySchema, error) {
	if description == "" {
		return nil, nil
	}
	var ts tableSchema
	if err := json.Unmarshal([]byte(description), &ts); err != nil {
		return nil, fmt.Errorf("unreadable table schema: %w", err)
	}
	if len(ts.PrimaryKey) == 0 {
		return nil, errors.New("table schema declares no primary key")
	}

	var keys *schema.KeySchema
	if len(ts.PrimaryKey) == 1 {
		keys = schema.NewSimpleKey(ts.PrimaryKey[0])
	} else {
		keys = schema.NewCompositeKey(ts.PrimaryKey, ts.ShardKey)
	}
	for _, f := range ts.Fields {
		if keys.IsKeyColumn(f.Name) && f.Type != "" && f.Type != schema.DefaultKeyType {
			if keys.Types == nil {
				keys.Types = map[string]string{}
			}
			keys.Types[f.Name] = f.Type
		}
	}
	return keys, keys.Validate()
}
