// Package ws provides WebSocket REPL sessions against live contexts.
//
// A client connects to /v1/contexts/:id/repl and exchanges JSON frames.
// Frames of one session run in order on the context's lock, so a REPL and
// concurrent HTTP runs never interleave inside the engine.
//
// Message Types (Client → Server):
//   - run: Run source in the context
//   - globals: Snapshot the context's globals
//   - ping: Keep-alive ping
//
// Message Types (Server → Client):
//   - welcome: Session and context IDs
//   - result: Run outcome with value, console output and timing
//   - globals: Globals snapshot
//   - error: Failure with script error details
//   - pong: Reply to ping
//
// Example Usage:
//
//	handler := ws.NewHandler(manager, metrics, logger)
//	handler.Register(router)
package ws
