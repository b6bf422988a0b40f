// Package instrumentation provides OpenTelemetry instrumentation for the
// ticktick-mcp server.
//
// This package enables production-grade observability through:
//   - OpenTelemetry metrics for upstream API calls, token refreshes, cache
//     lookups, and MCP tool invocations
//   - Distributed tracing for tool invocations and upstream API calls
//   - Prometheus metrics export via /metrics endpoint on a dedicated port
//   - OTLP export support for modern observability platforms
//
// # Metrics
//
// The package exposes the following metric categories:
//
// TickTick API Metrics:
//   - ticktick_api_operations_total: Counter of upstream operations by operation and status
//   - ticktick_api_operation_duration_seconds: Histogram of upstream operation durations
//
// OAuth Authentication Metrics:
//   - oauth_token_refresh_total: Counter of token refresh attempts by result
//
// Cache Metrics:
//   - cache_lookups_total: Counter of cache lookups by namespace and result (hit/miss)
//
// MCP Tool Metrics:
//   - mcp_tool_invocations_total: Counter of MCP tool invocations by tool name and status
//   - mcp_tool_duration_seconds: Histogram of MCP tool execution durations
//
// # Tracing
//
// Distributed tracing spans are created for:
//   - MCP tool invocations (tool.<name>)
//   - Upstream API calls (ticktick.<operation>)
//
// # Configuration
//
// Instrumentation can be configured via environment variables:
//   - INSTRUMENTATION_ENABLED: Enable/disable instrumentation (default: true)
//   - METRICS_EXPORTER: Metrics exporter type (prometheus, otlp, stdout, default: prometheus)
//   - TRACING_EXPORTER: Tracing exporter type (otlp, stdout, none, default: none)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OTLP endpoint for traces/metrics
//   - OTEL_TRACES_SAMPLER_ARG: Sampling rate (0.0 to 1.0, default: 0.1)
//   - OTEL_SERVICE_NAME: Service name (default: ticktick-mcp)
//
// # Example Usage
//
//	provider, err := instrumentation.NewProvider(ctx, instrumentation.Config{
//		ServiceName:    "ticktick-mcp",
//		ServiceVersion: "0.1.0",
//		Enabled:        true,
//	})
//	if err != nil {
//		return err
//	}
//	defer provider.Shutdown(ctx)
//
//	recorder := provider.Metrics()
//	recorder.RecordAPIOperation(ctx, "list_tasks", "success", time.Since(start))
//	recorder.RecordToolInvocation(ctx, "ticktick_get_tasks", "success", time.Since(start))
package instrumentation
