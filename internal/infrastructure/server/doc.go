// Package server assembles the registry, middleware, routes and telemetry
// into a runnable HTTP server.
package server
