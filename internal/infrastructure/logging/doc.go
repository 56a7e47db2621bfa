// Package logging provides structured logging using uber/zap.
//
// Production loggers write JSON; development loggers write colored console
// output. Script console calls are routed through Logger.Console so a
// context's console.warn lands at warn level.
//
//	logger := logging.NewDefault()
//	logger.Info("context created", zap.String("context", id))
package logging
