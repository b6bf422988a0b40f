package server

import (
	"context"
	"testing"

	"github.com/teemow/ticktick-mcp/internal/instrumentation"
)

func TestServerContext_Shutdown(t *testing.T) {
	sc := NewServerContext(context.Background(), nil, nil)

	if sc.IsShutdown() {
		t.Error("expected fresh context to not be shut down")
	}

	if err := sc.Shutdown(); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if !sc.IsShutdown() {
		t.Error("expected context to be shut down")
	}

	select {
	case <-sc.Context().Done():
	default:
		t.Error("expected underlying context to be cancelled")
	}

	// Second shutdown is a no-op
	if err := sc.Shutdown(); err != nil {
		t.Errorf("second Shutdown() error = %v", err)
	}
}

func TestServerContext_ReadOnly(t *testing.T) {
	sc := NewServerContext(context.Background(), nil, nil)

	if sc.ReadOnly() {
		t.Error("expected read-only to default to false")
	}

	sc.SetReadOnly(true)
	if !sc.ReadOnly() {
		t.Error("expected read-only after SetReadOnly(true)")
	}
}

func TestServerContext_Metrics(t *testing.T) {
	sc := NewServerContext(context.Background(), nil, nil)

	if sc.Metrics() != nil {
		t.Error("expected nil metrics by default")
	}

	m := &instrumentation.Metrics{}
	sc.SetMetrics(m)
	if sc.Metrics() != m {
		t.Error("expected stored metrics recorder")
	}
}
