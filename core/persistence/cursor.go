package persistence

import (
	"context"
	"fmt"

	"github.com/asaidimu/go-docstore/core/query"
	"github.com/asaidimu/go-docstore/core/schema"
	"go.uber.org/zap"
)

type cursorState int

const (
	// cursorCreated has not talked to the store yet.
	cursorCreated cursorState = iota
	// cursorRunning has an open batch source.
	cursorRunning
	// cursorExhausted has received the last batch or failed; only the
	// buffer remains.
	cursorExhausted
	// cursorClosed was closed by the caller.
	cursorClosed
)

func (s cursorState) String() string {
	switch s {
	case cursorCreated:
		return "created"
	case cursorRunning:
		return "running"
	case cursorExhausted:
		return "exhausted"
	default:
		return "closed"
	}
}

// BatchCursor is a lazy, pull-based iterator over the results of one
// statement. The first pull prepares and executes the statement; documents
// are then served from a local buffer that is refilled one store round-trip
// at a time. A cursor serves a single consumer and is not safe for
// concurrent use.
type BatchCursor struct {
	exec  *Executor
	table *Table
	stmt  *query.Statement
	opts  ExecOptions

	state    cursorState
	source   BatchSource
	buffered []schema.Document
	seen     int
	err      error
}

func newBatchCursor(exec *Executor, table *Table, stmt *query.Statement, opts ExecOptions) *BatchCursor {
	return &BatchCursor{
		exec:  exec,
		table: table,
		stmt:  stmt,
		opts:  opts,
	}
}

// HasNext reports whether Next will return a document, fetching batches
// from the store as needed.
func (c *BatchCursor) HasNext(ctx context.Context) (bool, error) {
	for len(c.buffered) == 0 {
		if c.state == cursorClosed {
			return false, nil
		}
		if c.err != nil {
			return false, c.err
		}
		switch c.state {
		case cursorExhausted:
			return false, nil
		case cursorCreated:
			c.start(ctx)
		case cursorRunning:
			c.fetch(ctx)
		}
	}
	return true, nil
}

// Next returns the next document, or nil once the results are exhausted or
// the cursor is closed.
func (c *BatchCursor) Next(ctx context.Context) (schema.Document, error) {
	ok, err := c.HasNext(ctx)
	if err != nil || !ok {
		return nil, err
	}
	doc := c.buffered[0]
	c.buffered[0] = nil
	c.buffered = c.buffered[1:]
	return doc, nil
}

// ToArray drains the cursor into a slice and closes it. It fails with
// ErrResultLimitExceeded rather than truncating when the results exceed the
// cursor's cap.
func (c *BatchCursor) ToArray(ctx context.Context) ([]schema.Document, error) {
	defer c.Close()
	docs := make([]schema.Document, 0)
	for {
		ok, err := c.HasNext(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			return docs, nil
		}
		docs = append(docs, c.buffered...)
		clear(c.buffered)
		c.buffered = c.buffered[:0]
	}
}

// Close releases the batch source. It is idempotent and terminal: no store
// call is made afterwards, and HasNext reports false with no error.
func (c *BatchCursor) Close() error {
	if c.state == cursorClosed {
		return nil
	}
	err := c.release()
	c.state = cursorClosed
	c.buffered = nil
	return err
}

// Seen returns the number of rows received from the store so far.
func (c *BatchCursor) Seen() int {
	return c.seen
}

func (c *BatchCursor) start(ctx context.Context) {
	source, err := c.exec.open(ctx, c.table, c.stmt, c.opts)
	if err != nil {
		c.fail(err)
		return
	}
	c.source = source
	c.state = cursorRunning
}

func (c *BatchCursor) fetch(ctx context.Context) {
	rows, done, err := c.source.Next(ctx)
	if err != nil {
		c.fail(c.exec.executionFailed("fetch", c.table.Name, err))
		return
	}
	c.exec.metrics.batch(len(rows))
	if limit := c.opts.MaxResults; limit > 0 && c.seen+len(rows) > limit {
		c.fail(fmt.Errorf("%w: %s returned more than %d rows", ErrResultLimitExceeded, c.table.Name, limit))
		return
	}
	c.seen += len(rows)
	c.exec.logger.Debug("Fetched batch",
		zap.String("table", c.table.Name),
		zap.Int("rows", len(rows)),
		zap.Int("seen", c.seen),
		zap.Bool("done", done),
	)
	for _, row := range rows {
		c.buffered = append(c.buffered, c.table.Values.FromRow(row))
	}
	if done {
		c.release()
		c.state = cursorExhausted
	}
}

func (c *BatchCursor) fail(err error) {
	c.err = err
	c.buffered = nil
	c.release()
	c.state = cursorExhausted
}

func (c *BatchCursor) release() error {
	if c.source == nil {
		return nil
	}
	err := c.source.Close()
	c.source = nil
	return err
}
