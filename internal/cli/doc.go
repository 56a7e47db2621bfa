// Package cli implements the contextify command line.
//
//	contextify run [--seed globals.yaml] [--shared] [-j N] [--json] scripts/*.js
//	contextify serve [--port 8000] [--seed-dir seeds/]
//	contextify version
package cli
