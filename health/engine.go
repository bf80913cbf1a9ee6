package health

import (
	"context"
	"fmt"

	"github.com/jonwraymond/memo/cache"
)

// EngineCheckerConfig configures the cache engine checker.
type EngineCheckerConfig struct {
	// MaxEntries is the entry count at which the engine is unhealthy.
	// Zero disables the size check.
	MaxEntries int

	// WarnRatio is the fraction of MaxEntries at which the engine is
	// degraded. Default: 0.8
	WarnRatio float64

	// MaxErrorRatio is the fraction of failed computations above which the
	// engine is degraded. Default: 0.5
	MaxErrorRatio float64

	// MinComputes is the number of computations required before the error
	// ratio is evaluated. Default: 10
	MinComputes int64
}

// EngineChecker reports the health of a cache engine from its statistics.
type EngineChecker struct {
	engine *cache.Engine
	config EngineCheckerConfig
}

// NewEngineChecker creates a checker for engine.
func NewEngineChecker(engine *cache.Engine, config EngineCheckerConfig) *EngineChecker {
	if config.WarnRatio <= 0 || config.WarnRatio > 1 {
		config.WarnRatio = 0.8
	}
	if config.MaxErrorRatio <= 0 || config.MaxErrorRatio > 1 {
		config.MaxErrorRatio = 0.5
	}
	if config.MinComputes <= 0 {
		config.MinComputes = 10
	}
	return &EngineChecker{engine: engine, config: config}
}

// Name returns "cache".
func (c *EngineChecker) Name() string {
	return "cache"
}

// Check evaluates the engine's current statistics.
func (c *EngineChecker) Check(ctx context.Context) Result {
	if err := ctx.Err(); err != nil {
		return Result{Status: StatusUnhealthy, Message: "context cancelled", Error: err}
	}

	s := c.engine.Stats()
	details := map[string]any{
		"entries":  s.Entries,
		"hits":     s.Hits,
		"misses":   s.Misses,
		"expired":  s.Expired,
		"computes": s.Computes,
		"errors":   s.Errors,
		"shared":   s.Shared,
	}
	if lookups := s.Hits + s.Misses; lookups > 0 {
		details["hit_ratio"] = float64(s.Hits) / float64(lookups)
	}

	if limit := c.config.MaxEntries; limit > 0 {
		switch {
		case s.Entries >= limit:
			return Result{
				Status:  StatusUnhealthy,
				Message: fmt.Sprintf("cache holds %d entries, limit %d", s.Entries, limit),
				Details: details,
				Error:   ErrCheckFailed,
			}
		case float64(s.Entries) >= c.config.WarnRatio*float64(limit):
			return Result{
				Status:  StatusDegraded,
				Message: fmt.Sprintf("cache holds %d entries, approaching limit %d", s.Entries, limit),
				Details: details,
			}
		}
	}

	if s.Computes >= c.config.MinComputes {
		ratio := float64(s.Errors) / float64(s.Computes)
		details["error_ratio"] = ratio
		if ratio > c.config.MaxErrorRatio {
			return Result{
				Status:  StatusDegraded,
				Message: fmt.Sprintf("%.0f%% of computations failed", ratio*100),
				Details: details,
			}
		}
	}

	return Result{Status: StatusHealthy, Message: "cache operating normally", Details: details}
}
