package main

import (
	"context"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/jonwraymond/memo/intercept"
)

// Operation identifiers of the demo service.
const (
	OpQueryData             = "DataService.QueryData"
	OpQueryDataWithoutCache = "DataService.QueryDataWithoutCache"
)

// DataService simulates a slow backend. Every real query returns a row
// with a fresh request ID, so cached and recomputed results are easy to
// tell apart.
type DataService struct {
	id      uuid.UUID
	queries atomic.Int64
}

// NewDataService creates a service with a random identity.
func NewDataService() *DataService {
	return &DataService{id: uuid.New()}
}

// CacheIdentity makes service instances with the same ID share cache
// entries.
func (s *DataService) CacheIdentity() any {
	return s.id
}

// Queries returns the number of real queries executed.
func (s *DataService) Queries() int64 {
	return s.queries.Load()
}

// QueryData returns the row for id.
func (s *DataService) QueryData(_ context.Context, id int) ([]any, error) {
	s.queries.Add(1)
	return []any{id, uuid.NewString()}, nil
}

// QueryDataWithoutCache returns the row for id. It is never registered for
// caching.
func (s *DataService) QueryDataWithoutCache(ctx context.Context, id int) ([]any, error) {
	return s.QueryData(ctx, id)
}

// dataServiceClient routes the service's queries through an interceptor.
type dataServiceClient struct {
	QueryData             func(context.Context, int) ([]any, error)
	QueryDataWithoutCache func(context.Context, int) ([]any, error)
}

func newDataServiceClient(ic *intercept.Interceptor, svc *DataService) *dataServiceClient {
	return &dataServiceClient{
		QueryData:             intercept.Method1(ic, svc, OpQueryData, svc.QueryData),
		QueryDataWithoutCache: intercept.Method1(ic, svc, OpQueryDataWithoutCache, svc.QueryDataWithoutCache),
	}
}
