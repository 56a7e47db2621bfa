/*
Package tracing provides lightweight request and script-run tracing.

Spans carry a trace ID and a span ID, propagate through context.Context and
the X-Trace-ID / X-Span-ID headers, and are written to the structured log
by a buffered collector once finished.

# Usage

	tracer := tracing.New("contextify", logger)
	defer tracer.Close()

	router.Use(tracing.HTTPMiddleware(tracer))

	err := tracer.Trace(ctx, "context.run", func(ctx context.Context, span *tracing.Span) error {
		span.SetTag("context", id)
		return run()
	})
*/
package tracing
