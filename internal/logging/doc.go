// Package logging provides structured logging utilities for the ticktick-mcp
// application.
//
// This package centralizes logging patterns to ensure consistent, structured
// logging throughout the codebase using the standard library's slog package.
//
// # Key Features
//
//   - Structured logging with slog
//   - Consistent attribute naming across the codebase
//   - Token sanitization helpers
//   - Logger adapter interface for flexibility
//
// # Usage Patterns
//
// Create a logger with standard attributes:
//
//	logger := logging.WithOperation(slog.Default(), "list_tasks")
//	logger.Info("listing tasks",
//	    logging.Status("success"))
//
// # Security Considerations
//
// Access and refresh tokens are never logged directly; use SanitizeToken
// when a log line needs to reference a credential.
package logging
