package model

import (
	"context"
	"sync"
)

// ResultCapture carries the last executed query result out of a graph
// invocation. Graph state dies with the invocation, so the executor publishes
// here and the runner reads it back when a later stage fails and a degraded
// reply must still be grounded in the fetched data.
type ResultCapture struct {
	mu  sync.Mutex
	res *QueryResult
}

func (c *ResultCapture) Store(res QueryResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.res = &res
}

func (c *ResultCapture) Load() (QueryResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.res == nil {
		return QueryResult{}, false
	}
	return *c.res, true
}

type resultCaptureKey struct{}

func WithResultCapture(ctx context.Context, c *ResultCapture) context.Context {
	return context.WithValue(ctx, resultCaptureKey{}, c)
}

func ResultCaptureFrom(ctx context.Context) (*ResultCapture, bool) {
	c, ok := ctx.Value(resultCaptureKey{}).(*ResultCapture)
	return c, ok
}
