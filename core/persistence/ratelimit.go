package persistence

import (
	"context"

	"github.com/asaidimu/go-docstore/core/schema"
	"golang.org/x/time/rate"
)

// RateLimitedStore throttles every round-trip of the wrapped store with a
// token bucket. Batch fetches of an open source count as round-trips.
type RateLimitedStore struct {
	store   Store
	limiter *rate.Limiter
}

var _ Store = (*RateLimitedStore)(nil)

// NewRateLimitedStore wraps store. A non-positive rate returns store
// unchanged.
func NewRateLimitedStore(store Store, opts RateLimitOptions) Store {
	if opts.RequestsPerSecond <= 0 {
		return store
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}
	return &RateLimitedStore{
		store:   store,
		limiter: rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst),
	}
}

func (s *RateLimitedStore) Prepare(ctx context.Context, text string) (PreparedStatement, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return s.store.Prepare(ctx, text)
}

func (s *RateLimitedStore) Execute(ctx context.Context, ps PreparedStatement, bindings map[string]any, opts ExecOptions) (BatchSource, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	source, err := s.store.Execute(ctx, ps, bindings, opts)
	if err != nil {
		return nil, err
	}
	return &rateLimitedSource{source: source, limiter: s.limiter}, nil
}

func (s *RateLimitedStore) PutRow(ctx context.Context, table string, row schema.Document, opt PutOption) (bool, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return false, err
	}
	return s.store.PutRow(ctx, table, row, opt)
}

func (s *RateLimitedStore) GetRow(ctx context.Context, table string, key schema.Document) (schema.Document, bool, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, false, err
	}
	return s.store.GetRow(ctx, table, key)
}

func (s *RateLimitedStore) DeleteRow(ctx context.Context, table string, key schema.Document) (bool, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return false, err
	}
	return s.store.DeleteRow(ctx, table, key)
}

func (s *RateLimitedStore) RunDDL(ctx context.Context, text string) (DDLHandle, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return s.store.RunDDL(ctx, text)
}

func (s *RateLimitedStore) DescribeTable(ctx context.Context, table string) (*TableInfo, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return s.store.DescribeTable(ctx, table)
}

func (s *RateLimitedStore) ListIndexes(ctx context.Context, table string) ([]IndexInfo, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return s.store.ListIndexes(ctx, table)
}

type rateLimitedSource struct {
	source  BatchSource
	limiter *rate.Limiter
}

func (s *rateLimitedSource) Next(ctx context.Context) ([]map[string]any, bool, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, false, err
	}
	return s.source.Next(ctx)
}

func (s *rateLimitedSource) Close() error {
	return s.source.Close()
}
