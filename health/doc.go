// Package health reports whether a memoizing cache is operating normally.
//
// The cache never evicts entries, so its size grows with the number of
// distinct calls. EngineChecker turns that growth, along with the share of
// failing computations, into a Healthy, Degraded or Unhealthy status.
// Checks are combined by an Aggregator and exposed over HTTP:
//
//	agg := health.NewAggregator()
//	agg.Register(health.NewEngineChecker(engine, health.EngineCheckerConfig{
//	    MaxEntries: 100_000,
//	}))
//	health.RegisterHandlers(mux, agg)
package health
