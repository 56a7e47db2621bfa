/*
Package monitoring provides Prometheus metrics for contexts, script runs,
the event loop, the HTTP API and REPL sessions.

Metrics implements contextify.Observer, so an engine reports lifecycle and
run outcomes without importing Prometheus itself. Snapshot adds a latency
summary (mean, p50, p95, p99) over the most recent runs for /stats.

	metrics := monitoring.NewMetrics()
	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))
*/
package monitoring
