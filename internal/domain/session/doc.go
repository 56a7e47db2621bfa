// Package session saves and restores the globals of registered contexts.
//
// A snapshot captures a context's globals as JSON. Restoring one creates a
// fresh context seeded with those globals; the original context is left
// untouched. Only data survives the trip: functions and accessors are
// written as their placeholder strings.
//
// Snapshots are cached in memory and, when a directory is configured,
// written zstd-compressed to <dir>/<snapshot id>.json.zst so they outlive
// the process.
//
// Example Usage:
//
//	manager := session.NewManager(reg, "/var/lib/contextify/snapshots", log)
//	snap, err := manager.Save(ctx, cid, session.SaveOptions{Name: "checkpoint"})
//	info, err := manager.Restore(ctx, snap.ID)
package session
