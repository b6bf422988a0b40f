package server

import (
	"context"
	"sync"

	"github.com/teemow/ticktick-mcp/internal/auth"
	"github.com/teemow/ticktick-mcp/internal/instrumentation"
	"github.com/teemow/ticktick-mcp/internal/tasks"
)

// ServerContext holds the shared state for the MCP server: the task
// service, the credential store, and the instrumentation recorder.
type ServerContext struct {
	ctx      context.Context
	cancel   context.CancelFunc
	service  *tasks.Service
	store    *auth.Store
	metrics  *instrumentation.Metrics
	readOnly bool
	mu       sync.RWMutex
	shutdown bool
}

// NewServerContext creates a new server context wrapping the given task
// service and credential store.
func NewServerContext(ctx context.Context, service *tasks.Service, store *auth.Store) *ServerContext {
	shutdownCtx, cancel := context.WithCancel(ctx)

	return &ServerContext{
		ctx:     shutdownCtx,
		cancel:  cancel,
		service: service,
		store:   store,
	}
}

// Context returns the server context.
func (sc *ServerContext) Context() context.Context {
	return sc.ctx
}

// Service returns the task service.
func (sc *ServerContext) Service() *tasks.Service {
	return sc.service
}

// Store returns the credential store.
func (sc *ServerContext) Store() *auth.Store {
	return sc.store
}

// SetMetrics sets the metrics recorder used by tool handlers.
func (sc *ServerContext) SetMetrics(m *instrumentation.Metrics) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.metrics = m
}

// Metrics returns the metrics recorder, or nil when instrumentation is
// not configured.
func (sc *ServerContext) Metrics() *instrumentation.Metrics {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.metrics
}

// SetReadOnly toggles whether write tools are registered and allowed.
func (sc *ServerContext) SetReadOnly(readOnly bool) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.readOnly = readOnly
}

// ReadOnly reports whether the server rejects write operations.
func (sc *ServerContext) ReadOnly() bool {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.readOnly
}

// IsShutdown returns whether the server has been shutdown.
func (sc *ServerContext) IsShutdown() bool {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.shutdown
}

// Shutdown shuts down the server context.
func (sc *ServerContext) Shutdown() error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.shutdown {
		return nil
	}

	sc.shutdown = true
	sc.cancel()
	return nil
}
