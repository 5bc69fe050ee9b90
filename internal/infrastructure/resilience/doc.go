/*
Package resilience provides the circuit breaker that guards calls to the
language model provider.

The breaker is closed while calls succeed and opens once ReadyToTrip
accepts the failure counts. While open it rejects calls with ErrCircuitOpen
until Timeout elapses, then lets MaxRequests trial calls through in half-open
state. Errors matched by IsExcluded (caller cancellation by default) are
not counted.

	breaker := resilience.New("llm", resilience.Settings{
		MaxRequests: 2,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts resilience.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: resilience.LogStateChanges(logger),
	})

	err := breaker.Call(ctx, func(ctx context.Context) error {
		return client.send(ctx, req)
	})

State transitions:

	Closed --[failures]-> Open --[timeout]-> Half-Open --[successes]-> Closed
	                                           |
	                                       [failure]
	                                           v
	                                          Open
*/
package resilience
