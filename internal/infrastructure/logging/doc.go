// Package logging provides structured logging using uber/zap.
//
// Two modes:
//   - Production: JSON output for machine parsing
//   - Development: colored console output
//
// Components receive a *zap.Logger from Component so every entry carries
// the component name:
//
//	logger := logging.NewDefault()
//	compilerLog := logger.Component("compiler")
//	compilerLog.Info("Compiled", zap.Int("diagnostics", 0))
package logging
