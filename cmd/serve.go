package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/teemow/ticktick-mcp/internal/cache"
	"github.com/teemow/ticktick-mcp/internal/instrumentation"
	"github.com/teemow/ticktick-mcp/internal/resources"
	"github.com/teemow/ticktick-mcp/internal/server"
	"github.com/teemow/ticktick-mcp/internal/tasks"
	"github.com/teemow/ticktick-mcp/internal/ticktick"
	"github.com/teemow/ticktick-mcp/internal/tools/task_tools"
)

type serveFlags struct {
	credentialFlags

	debug     bool
	transport string
	httpAddr  string
	yolo      bool

	baseURL          string
	cacheTTLTasks    time.Duration
	cacheTTLProjects time.Duration
	cacheTTLSearch   time.Duration

	disableStreaming bool
	metricsEnabled   bool
	metricsAddr      string
}

func newServeCmd() *cobra.Command {
	var flags serveFlags

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the TickTick MCP server",
		Long: `Start the MCP server exposing TickTick task management tools.

The server requires stored OAuth credentials; run 'ticktick-mcp auth login'
first. By default only read tools are registered. Pass --yolo to also
register tools that create, update, complete, or delete tasks.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(&flags)
		},
	}

	flags.credentialFlags.register(cmd)
	cmd.Flags().BoolVar(&flags.debug, "debug", false, "Enable debug logging")
	cmd.Flags().StringVar(&flags.transport, "transport", "stdio", "Transport type: 'stdio' or 'streamable-http'")
	cmd.Flags().StringVar(&flags.httpAddr, "http-addr", ":8080", "Listen address for the streamable-http transport")
	cmd.Flags().BoolVar(&flags.yolo, "yolo", false, "Enable write tools (create, update, complete, delete)")
	cmd.Flags().StringVar(&flags.baseURL, "base-url", "", "Override the TickTick API base URL")
	cmd.Flags().DurationVar(&flags.cacheTTLTasks, "cache-ttl-tasks", tasks.DefaultTaskTTL, "Cache TTL for task listings")
	cmd.Flags().DurationVar(&flags.cacheTTLProjects, "cache-ttl-projects", tasks.DefaultProjectTTL, "Cache TTL for project listings")
	cmd.Flags().DurationVar(&flags.cacheTTLSearch, "cache-ttl-search", tasks.DefaultSearchTTL, "Cache TTL for search results")
	cmd.Flags().BoolVar(&flags.disableStreaming, "disable-streaming", false, "Disable streaming responses on the streamable-http transport")
	cmd.Flags().BoolVar(&flags.metricsEnabled, "metrics-enabled", true, "Enable the Prometheus metrics server (non-stdio transports only)")
	cmd.Flags().StringVar(&flags.metricsAddr, "metrics-addr", server.DefaultMetricsAddr, "Listen address for the metrics server")

	return cmd
}

func runServe(flags *serveFlags) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logLevel := slog.LevelInfo
	if flags.debug {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	instrConfig := instrumentation.DefaultConfig()
	instrConfig.ServiceVersion = version
	provider, err := instrumentation.NewProvider(ctx, instrConfig)
	if err != nil {
		return fmt.Errorf("failed to initialize instrumentation: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			slog.Error("failed to shut down instrumentation", "error", err)
		}
	}()
	metrics := provider.Metrics()

	store, err := flags.buildStore()
	if err != nil {
		return err
	}
	if !store.HasCredentials() {
		slog.Warn("no stored credentials; API calls will fail until 'ticktick-mcp auth login' is run")
	}

	apiClient := ticktick.NewClient(store, ticktick.Config{
		BaseURL: flags.baseURL,
		Logger:  logger,
		Metrics: metrics,
	})

	resultCache := cache.New(cache.WithLookupHook(func(namespace string, hit bool) {
		result := instrumentation.CacheMiss
		if hit {
			result = instrumentation.CacheHit
		}
		metrics.RecordCacheLookup(context.Background(), namespace, result)
	}))

	service := tasks.NewService(apiClient, resultCache, tasks.Options{
		TaskTTL:    flags.cacheTTLTasks,
		ProjectTTL: flags.cacheTTLProjects,
		SearchTTL:  flags.cacheTTLSearch,
		Logger:     logger,
	})

	sc := server.NewServerContext(ctx, service, store)
	defer sc.Shutdown()
	sc.SetMetrics(metrics)

	readOnly := !flags.yolo
	sc.SetReadOnly(readOnly)
	if readOnly {
		slog.Info("running in read-only mode, write tools disabled (use --yolo to enable)")
	} else {
		slog.Warn("write tools enabled, tasks can be created, modified, and deleted")
	}

	mcpSrv := mcpserver.NewMCPServer(
		"ticktick-mcp",
		version,
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithResourceCapabilities(false, false),
	)

	if err := registerAll(mcpSrv, sc, readOnly); err != nil {
		return fmt.Errorf("failed to register MCP handlers: %w", err)
	}

	healthChecker := server.NewHealthChecker(sc)

	// The metrics listener is a second HTTP port; with the stdio
	// transport the process is a short-lived subprocess of the MCP host
	// and scraping it makes no sense.
	if flags.metricsEnabled && flags.transport != "stdio" && provider.Enabled() {
		metricsServer, err := server.NewMetricsServer(server.MetricsServerConfig{
			Addr:                    flags.metricsAddr,
			Enabled:                 true,
			InstrumentationProvider: provider,
			HealthChecker:           healthChecker,
		})
		if err != nil {
			return fmt.Errorf("failed to create metrics server: %w", err)
		}

		metricsReady := make(chan struct{})
		metricsErr := make(chan error, 1)
		go func() {
			if err := metricsServer.StartWithReadySignal(metricsReady); err != nil && err != http.ErrServerClosed {
				metricsErr <- err
			}
		}()
		select {
		case <-metricsReady:
		case err := <-metricsErr:
			return fmt.Errorf("failed to start metrics server: %w", err)
		case <-time.After(5 * time.Second):
			return fmt.Errorf("timed out waiting for metrics server to start")
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
			defer cancel()
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				slog.Error("failed to shut down metrics server", "error", err)
			}
		}()
	}

	switch flags.transport {
	case "stdio":
		return runStdioServer(ctx, mcpSrv)
	case "streamable-http":
		return runStreamableHTTPServer(ctx, mcpSrv, healthChecker, flags)
	default:
		return fmt.Errorf("unknown transport %q, must be 'stdio' or 'streamable-http'", flags.transport)
	}
}

// registerAll wires every tool and resource into the MCP server. New
// registration functions go here.
func registerAll(s *mcpserver.MCPServer, sc *server.ServerContext, readOnly bool) error {
	if err := task_tools.RegisterTaskTools(s, sc, readOnly); err != nil {
		return fmt.Errorf("failed to register task tools: %w", err)
	}
	if err := resources.RegisterTaskResources(s, sc); err != nil {
		return fmt.Errorf("failed to register task resources: %w", err)
	}
	return nil
}

func runStdioServer(ctx context.Context, mcpSrv *mcpserver.MCPServer) error {
	slog.Info("starting MCP server", "transport", "stdio", "version", version)

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- mcpserver.ServeStdio(mcpSrv)
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received")
		return nil
	case err := <-serverDone:
		if err != nil {
			return fmt.Errorf("stdio server error: %w", err)
		}
		return nil
	}
}

func runStreamableHTTPServer(ctx context.Context, mcpSrv *mcpserver.MCPServer, health *server.HealthChecker, flags *serveFlags) error {
	opts := []mcpserver.StreamableHTTPOption{
		mcpserver.WithEndpointPath("/mcp"),
	}
	if flags.disableStreaming {
		opts = append(opts, mcpserver.WithDisableStreaming(true))
	}
	httpSrv := mcpserver.NewStreamableHTTPServer(mcpSrv, opts...)

	mux := http.NewServeMux()
	mux.Handle("/mcp", httpSrv)
	health.RegisterHealthEndpoints(mux)

	srv := &http.Server{
		Addr:              flags.httpAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("starting MCP server", "transport", "streamable-http", "addr", flags.httpAddr, "version", version)

	serverDone := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverDone <- err
		} else {
			serverDone <- nil
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shut down HTTP server: %w", err)
		}
		return nil
	case err := <-serverDone:
		if err != nil {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	}
}
