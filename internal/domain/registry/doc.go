// Package registry keeps the live contexts behind the HTTP and WebSocket API.
//
// Each registered context owns an event loop for its timers and a mutex
// that serializes every run, snapshot and disposal, so concurrent requests
// against one context queue up while different contexts run in parallel.
//
// Components:
//   - Manager: create, run, inspect and dispose contexts by ID
//   - Seeder: preloads contexts from seed files on startup
//
// Features:
//   - Optional context limit
//   - Idle expiry via Sweep / StartSweeper
//   - Per-run tracing spans and Prometheus metrics
//   - Quarantine of contexts that keep failing inside the engine
//
// Example Usage:
//
//	manager := registry.NewManager(registry.DefaultOptions())
//	info, err := manager.Create(seed)
//	res, err := manager.Run(ctx, info.ID, "x = 1 + 1", "repl.js")
//	globals, err := manager.Globals(info.ID)
package registry
