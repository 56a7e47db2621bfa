// Command contextify runs JavaScript inside isolated contexts whose globals
// live in host objects, from the command line or over HTTP.
//
// Usage:
//
//	# Run scripts, each in a fresh context
//	contextify run -j 4 'scripts/**/*.js'
//
//	# Share one context across scripts, seeded from YAML
//	contextify run --shared --seed globals.yaml a.js b.js
//
//	# Serve the HTTP and WebSocket API
//	contextify serve --port 8000
//
// Configuration comes from CONTEXTIFY_* environment variables and an
// optional .env file. Flags override both.
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main

import "github.com/GriffinCanCode/contextify/internal/cli"

func main() {
	cli.Execute()
}
