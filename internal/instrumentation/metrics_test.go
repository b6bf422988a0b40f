package instrumentation

import (
	"context"
	"testing"
	"time"
)

func newTestProvider(t *testing.T, ctx context.Context) *Provider {
	t.Helper()

	provider, err := NewProvider(ctx, Config{
		ServiceName:     "test-service",
		ServiceVersion:  "1.0.0",
		Enabled:         true,
		MetricsExporter: "prometheus",
		TracingExporter: "none",
	})
	if err != nil {
		t.Fatalf("failed to create provider: %v", err)
	}
	t.Cleanup(func() { _ = provider.Shutdown(ctx) })

	return provider
}

func TestMetrics_RecordAPIOperation(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	metrics := newTestProvider(t, ctx).Metrics()
	if metrics == nil {
		t.Fatal("expected metrics to be non-nil")
	}

	// Should not panic
	metrics.RecordAPIOperation(ctx, "list_tasks", StatusSuccess, 200*time.Millisecond)
	metrics.RecordAPIOperation(ctx, "create_task", StatusError, 500*time.Millisecond)
}

func TestMetrics_RecordTokenRefresh(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	metrics := newTestProvider(t, ctx).Metrics()

	// Should not panic
	metrics.RecordTokenRefresh(ctx, OAuthResultSuccess)
	metrics.RecordTokenRefresh(ctx, OAuthResultFailure)
}

func TestMetrics_RecordCacheLookup(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	metrics := newTestProvider(t, ctx).Metrics()

	// Should not panic
	metrics.RecordCacheLookup(ctx, "tasks", CacheHit)
	metrics.RecordCacheLookup(ctx, "projects", CacheMiss)
}

func TestMetrics_RecordToolInvocation(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	metrics := newTestProvider(t, ctx).Metrics()

	// Should not panic
	metrics.RecordToolInvocation(ctx, "ticktick_get_tasks", StatusSuccess, 100*time.Millisecond)
	metrics.RecordToolInvocation(ctx, "ticktick_create_task", StatusError, 50*time.Millisecond)
}

func TestMetrics_ZeroValueIsNoOp(t *testing.T) {
	ctx := context.Background()

	// A zero-value Metrics must be safe to use when instrumentation is
	// disabled.
	var metrics Metrics
	metrics.RecordAPIOperation(ctx, "list_tasks", StatusSuccess, time.Millisecond)
	metrics.RecordTokenRefresh(ctx, OAuthResultSuccess)
	metrics.RecordCacheLookup(ctx, "tasks", CacheHit)
	metrics.RecordToolInvocation(ctx, "ticktick_get_tasks", StatusSuccess, time.Millisecond)
}
