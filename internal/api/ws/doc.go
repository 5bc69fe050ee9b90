// Package ws relays the sandbox protocol between the browser sandbox page
// and the server-side host of its session.
//
// Each page connects to /sandbox/ws?session=<id>. The connection becomes the
// session's frame: a reconnect recreates the frame under a new instance, so
// messages still in flight from the old page are discarded as stale. Code
// injected through the API before the page reports frameReady is queued and
// only the latest copy is delivered.
//
// Sessions with no page connected are dropped once idle for DefaultIdleTTL.
//
// Message Types (Page → Server):
//   - frameReady: the page can accept code
//   - executionReady: injected code mounted
//   - executionError: injected code threw (message, optional stack)
//
// Message Types (Server → Page):
//   - inject: code to execute
//
// Example Usage:
//
//	relay := ws.NewRelay(logger).WithMetrics(metrics)
//	router.GET("/sandbox/ws", relay.HandleConnection)
//	router.POST("/api/sandbox/:session/inject", relay.HandleInject)
package ws
