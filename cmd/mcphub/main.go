package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"mcphub/configs"
	"mcphub/internal/adapter/inbound/mcphttp"
	"mcphub/internal/adapter/outbound/agentroute"
	"mcphub/internal/adapter/outbound/sandbox"
	"mcphub/internal/domain"
	"mcphub/internal/elicitation"
	"mcphub/internal/server"
	"mcphub/internal/tenant"
	"mcphub/internal/toolsvc"

	"github.com/mark3labs/mcp-go/mcp"
	mcpGoServer "github.com/mark3labs/mcp-go/server"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const version = "0.1.0"

func main() {
	// === Command Line Flags ===
	var (
		transport string
		group     string
	)
	flag.StringVar(&transport, "transport", "http", "Transport mode: http or stdio")
	flag.StringVar(&group, "group", "", "Group to serve in stdio mode")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// === Configuration ===
	cfg, err := configs.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// === Logging ===
	logLevel := cfg.ParsedLogLevel()
	var logger *slog.Logger

	if transport == "stdio" {
		// In STDIO mode, log to file to avoid interfering with stdio communication
		logFile, err := os.OpenFile("/tmp/mcphub.log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			logger = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: logLevel}))
		} else {
			logger = slog.New(slog.NewTextHandler(logFile, &slog.HandlerOptions{Level: logLevel}))
		}
	} else {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	}

	slog.SetDefault(logger)
	logger.Info("Logger initialized.", slog.String("level", logLevel.String()), slog.String("transport", transport))

	// === OpenTelemetry Initialization ===
	shutdownOtel, err := initOtelProvider(cfg)
	if err != nil {
		logger.Error("Failed to initialize OpenTelemetry.", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := shutdownOtel(context.Background()); err != nil {
			logger.Error("Failed to shutdown OpenTelemetry TracerProvider.", slog.Any("error", err))
		}
	}()

	// === Dependency Injection ===
	logger.Info("Initializing dependencies...")

	httpClient := &http.Client{
		Timeout: cfg.HTTPClientTimeout,
	}

	tenants := tenant.NewState()
	hub := elicitation.NewHub(logger)
	coordinator := elicitation.NewCoordinator(tenants, hub, cfg.ElicitationTimeout, logger)

	groups := buildGroups(cfg, httpClient, tenants, logger)
	if len(groups) == 0 {
		logger.Warn("No groups configured; the server will only serve admin endpoints.")
	}

	factory := server.NewFactory(groups, coordinator, tenants, logger)
	logger.Info("Group factory initialized.", slog.Any("groups", factory.ListGroups()))

	// === Transport Mode Selection ===
	switch transport {
	case "stdio":
		if group == "" {
			logger.Error("STDIO mode requires -group")
			os.Exit(1)
		}
		if err := serveStdio(ctx, factory, group, logger); err != nil {
			logger.Error("STDIO server error", slog.Any("error", err))
			os.Exit(1)
		}

	case "http":
		mux := http.NewServeMux()
		handlers := mcphttp.NewHandlers(factory, coordinator, hub, tenants, version, logger)
		handlers.Register(mux)

		srv := &http.Server{
			Addr:         cfg.ListenAddr,
			Handler:      mux,
			ReadTimeout:  cfg.ServerReadTimeout,
			WriteTimeout: cfg.ServerWriteTimeout,
			IdleTimeout:  cfg.ServerIdleTimeout,
		}

		go func() {
			logger.Info("HTTP server starting.", slog.String("address", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("HTTP server failed to start.", slog.Any("error", err))
				stop()
			}
		}()

		// Wait for interrupt signal.
		<-ctx.Done()

		logger.Info("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server graceful shutdown failed.", slog.Any("error", err))
		}
		logger.Info("Server shut down gracefully.")

	default:
		logger.Error("Invalid transport mode", slog.String("transport", transport))
		os.Exit(1)
	}
}

// buildGroups turns the YAML group definitions into domain configurations:
// file-backed resources, the built-in workspace tool service, and the
// dynamic agent/sandbox hooks.
func buildGroups(cfg *configs.Config, httpClient *http.Client, tenants *tenant.State, logger *slog.Logger) []*domain.GroupConfig {
	agentClient := agentroute.NewClient(httpClient, logger)

	groups := make([]*domain.GroupConfig, 0, len(cfg.Groups))
	for _, gc := range cfg.Groups {
		g := &domain.GroupConfig{
			Name:         gc.Name,
			ToolServices: []domain.ToolService{workspaceService(gc.Name, tenants)},
		}

		for _, rc := range gc.Resources {
			g.Resources = append(g.Resources, fileResource(rc))
		}

		switch {
		case len(gc.Agents) > 0:
			if gc.Sandbox != nil {
				logger.Warn("Group configures both agents and a sandbox; agents take precedence",
					slog.String("group", gc.Name))
			}
			agents := make([]agentroute.Agent, 0, len(gc.Agents))
			for _, ac := range gc.Agents {
				agents = append(agents, agentroute.Agent{
					Name:    ac.Name,
					URL:     ac.URL,
					Enabled: ac.IsEnabled(),
				})
			}
			executor := agentroute.NewExecutor(agentroute.NewStaticDirectory(agents), agentClient, logger)
			g.DynamicLoader = executor
			g.DynamicExecutor = executor

		case gc.Sandbox != nil:
			executor := sandbox.NewExecutor(sandbox.NewClient(gc.Sandbox.Endpoint, httpClient, logger), logger)
			g.DynamicLoader = executor
			g.DynamicExecutor = executor
		}

		groups = append(groups, g)
	}
	return groups
}

// fileResource exposes a document from disk. An empty file is a load
// failure, not empty content.
func fileResource(rc configs.ResourceConfig) domain.Resource {
	return domain.Resource{
		URI:         rc.URI,
		Name:        rc.Name,
		Description: rc.Description,
		MIMEType:    rc.MIMEType,
		Load: func(ctx context.Context) (string, error) {
			data, err := os.ReadFile(rc.File)
			if err != nil {
				return "", fmt.Errorf("load %s: %w", rc.File, err)
			}
			if len(data) == 0 {
				return "", domain.ErrNoContent
			}
			return string(data), nil
		},
	}
}

// workspaceService is the built-in static tool service every group carries:
// basic workspace introspection plus an operator-facing confirmation tool
// that exercises the elicitation pipeline end to end.
func workspaceService(groupName string, tenants *tenant.State) domain.ToolService {
	return toolsvc.New("workspace").
		Add(domain.ToolDeclaration{
			Tool: mcp.Tool{
				Name:        "workspace_info",
				Description: "Report the group name and the currently active project.",
				InputSchema: mcp.ToolInputSchema{Type: "object", Properties: map[string]any{}},
			},
		}, func(ctx context.Context, args map[string]any, elicit domain.ElicitFunc) (any, error) {
			info := map[string]any{"group": groupName}
			if project, ok := tenants.Active(); ok {
				info["project"] = project
			}
			return info, nil
		}).
		Add(domain.ToolDeclaration{
			Tool: mcp.Tool{
				Name:        "confirm_action",
				Description: "Ask the active observer to confirm a message before proceeding.",
				InputSchema: mcp.ToolInputSchema{
					Type: "object",
					Properties: map[string]any{
						"message": map[string]any{
							"type":        "string",
							"description": "What the observer is asked to confirm.",
						},
					},
					Required: []string{"message"},
				},
			},
			UIResource: "ui://mcphub/confirm-dialog",
		}, func(ctx context.Context, args map[string]any, elicit domain.ElicitFunc) (any, error) {
			message, _ := args["message"].(string)
			outcome, err := elicit(ctx, message, map[string]any{
				"type": "object",
				"properties": map[string]any{
					"note": map[string]any{"type": "string"},
				},
			})
			if err != nil {
				return nil, err
			}
			return outcome, nil
		})
}

// serveStdio exposes one group's static tools and resources over stdio using
// the mcp-go server. Dynamic tools need a tenant-scoped HTTP session and are
// not served here.
func serveStdio(ctx context.Context, factory *server.Factory, groupName string, logger *slog.Logger) error {
	inst, err := factory.GetOrCreateInstance(groupName)
	if err != nil {
		return err
	}

	mcpSrv := mcpGoServer.NewMCPServer(
		"mcphub",
		version,
		mcpGoServer.WithToolCapabilities(true),
		mcpGoServer.WithResourceCapabilities(true, true),
		mcpGoServer.WithRecovery(),
	)

	for _, decl := range inst.StaticDeclarations() {
		toolName := decl.Tool.Name
		mcpSrv.AddTool(decl.Tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return inst.CallTool(ctx, toolName, request.GetArguments(), "")
		})
	}
	for _, res := range inst.ListResources() {
		uri := res.URI
		mcpSrv.AddResource(res, func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
			return inst.ReadResource(ctx, uri)
		})
	}

	logger.Info("Starting in STDIO mode", slog.String("group", groupName))
	stdioServer := mcpGoServer.NewStdioServer(mcpSrv)
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

// initOtelProvider initializes the OpenTelemetry SDK and sets up the OTLP
// trace exporter. It returns a shutdown function to be called on exit.
func initOtelProvider(cfg *configs.Config) (func(context.Context) error, error) {
	ctx := context.Background()

	if cfg.OtelExporterOtlpEndpoint == "" {
		slog.Info("OTEL_EXPORTER_OTLP_ENDPOINT not set, OpenTelemetry tracing disabled.")
		return func(context.Context) error { return nil }, nil
	}

	grpcOpts := []grpc.DialOption{}
	if cfg.OtelExporterOtlpInsecure {
		grpcOpts = append(grpcOpts, grpc.WithTransportCredentials(insecure.NewCredentials()))
		slog.Warn("Using insecure connection for OTLP exporter.")
	}

	conn, err := grpc.NewClient(cfg.OtelExporterOtlpEndpoint, grpcOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection to OTLP endpoint: %w", err)
	}

	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to create OTLP trace exporter: %w", err)
	}

	r, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String("mcphub"),
		),
	)
	if err != nil {
		_ = traceExporter.Shutdown(ctx)
		_ = conn.Close()
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(r),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	slog.Info("OpenTelemetry TracerProvider configured.", "endpoint", cfg.OtelExporterOtlpEndpoint)

	return func(ctx context.Context) error {
		providerErr := tp.Shutdown(ctx)
		connErr := conn.Close()
		return errors.Join(providerErr, connErr)
	}, nil
}
