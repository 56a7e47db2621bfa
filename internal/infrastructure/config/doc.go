// Package config provides 12-factor configuration for contextify.
//
// Configuration is loaded from CONTEXTIFY_* environment variables with
// defaults, after optional .env files have been applied.
//
// Example Usage:
//
//	cfg, err := config.Load(".env")
//	if err != nil {
//		return err
//	}
//	fmt.Printf("listening on %s\n", cfg.Server.Addr())
//
// Environment Variables:
//   - CONTEXTIFY_SERVER_HOST, CONTEXTIFY_SERVER_PORT
//   - CONTEXTIFY_ENGINE_CONSOLE, CONTEXTIFY_ENGINE_FILENAME, CONTEXTIFY_ENGINE_MAX_CONSOLE
//   - CONTEXTIFY_LOG_LEVEL, CONTEXTIFY_LOG_DEVELOPMENT
//   - CONTEXTIFY_RATE_RPS, CONTEXTIFY_RATE_BURST, CONTEXTIFY_RATE_ENABLED
//   - CONTEXTIFY_REGISTRY_MAX_CONTEXTS, CONTEXTIFY_REGISTRY_IDLE_TTL
package config
