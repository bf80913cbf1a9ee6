package health

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/jonwraymond/memo/resilience"
)

// BulkheadChecker reports computations rejected by concurrency limits.
// It is degraded while rejections keep growing between checks.
type BulkheadChecker struct {
	source func() map[string]resilience.BulkheadMetrics

	mu   sync.Mutex
	seen map[string]int64
}

// NewBulkheadChecker creates a checker over source, typically
// (*intercept.Interceptor).Bulkheads.
func NewBulkheadChecker(source func() map[string]resilience.BulkheadMetrics) *BulkheadChecker {
	return &BulkheadChecker{source: source, seen: make(map[string]int64)}
}

// Name returns "bulkheads".
func (c *BulkheadChecker) Name() string {
	return "bulkheads"
}

// Check compares rejection counts with the previous check.
func (c *BulkheadChecker) Check(ctx context.Context) Result {
	if err := ctx.Err(); err != nil {
		return Result{Status: StatusUnhealthy, Message: "context cancelled", Error: err}
	}

	metrics := c.source()
	details := make(map[string]any, len(metrics))
	var rejecting []string

	c.mu.Lock()
	for op, m := range metrics {
		details[op] = map[string]any{
			"active":         m.Active,
			"max_active":     m.MaxActive,
			"max_concurrent": m.MaxConcurrent,
			"rejected":       m.Rejected,
		}
		if m.Rejected > c.seen[op] {
			rejecting = append(rejecting, op)
		}
		c.seen[op] = m.Rejected
	}
	c.mu.Unlock()

	if len(rejecting) > 0 {
		slices.Sort(rejecting)
		return Result{
			Status:  StatusDegraded,
			Message: fmt.Sprintf("computations rejected for %s", strings.Join(rejecting, ", ")),
			Details: details,
		}
	}
	return Result{Status: StatusHealthy, Message: fmt.Sprintf("%d limited operations", len(metrics)), Details: details}
}
