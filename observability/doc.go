// Package observability builds the structured logger and the Prometheus
// collectors shared by the oxbot packages.
//
// Loggers are plain *slog.Logger values whose handler redacts API keys and
// bearer tokens before records are written. Metrics are registered on a
// caller-supplied registry so tests and embedders never touch the global
// default registry. A nil *Metrics is valid and records nothing.
package observability
