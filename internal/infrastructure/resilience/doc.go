/*
Package resilience provides a circuit breaker for resources that can get
stuck failing.

The registry keeps one breaker per context. A context whose runs keep
dying inside the engine (stack overflow, interrupted execution) is
quarantined for a cooldown instead of burning CPU on every request.

# Usage

	breaker := resilience.New(cid, resilience.Settings{
		Threshold: 3,
		Cooldown:  30 * time.Second,
		IsFailure: func(err error) bool {
			return contextify.KindOf(err) == contextify.KindEngineFatal
		},
	})

	res, err := resilience.Do(breaker, func() (*RunResult, error) {
		return run(source)
	})

# States

	Closed --[threshold failures]-> Open --[cooldown]-> Half-Open --[probe ok]-> Closed
	                                  ^                     |
	                                  +----[probe failed]---+
*/
package resilience
