// Package server provides the MCP server context, health checks, and
// the dedicated metrics server for the ticktick-mcp application.
//
// # Key Components
//
// ServerContext holds the shared state tool handlers depend on: the task
// service, the credential store, the metrics recorder, and the read-only
// flag. It owns a cancellable context used for graceful shutdown.
//
// HealthChecker serves Kubernetes-style liveness (/healthz) and
// readiness (/readyz) probes, plus a detailed endpoint with uptime and
// credential state. Missing TickTick credentials are surfaced in the
// probe output without failing readiness, since the server can still
// explain how to run the authorization flow.
//
// MetricsServer exposes Prometheus metrics on a dedicated port, kept
// separate from the MCP transport so operational data is not reachable
// through the tool surface.
package server
