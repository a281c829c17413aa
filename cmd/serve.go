package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	gomcp "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/semantic-router/router/pkg/config"
	"github.com/semantic-router/router/pkg/contentstore"
	"github.com/semantic-router/router/pkg/mcpclient"
	"github.com/semantic-router/router/pkg/metrics"
	"github.com/semantic-router/router/pkg/resultprocessor"
	"github.com/semantic-router/router/pkg/router"
	"github.com/semantic-router/router/pkg/supervisor"
	"github.com/semantic-router/router/pkg/taskpool"
	"github.com/semantic-router/router/pkg/telemetry"
	"github.com/semantic-router/router/pkg/types"
)

// toolDescriptionRefresh is how often the registered semantic_router
// tool's description is rebuilt from the live server directory.
const toolDescriptionRefresh = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the semantic_router meta-tool",
	Long: `Starts the router as an MCP server exposing a single semantic_router
tool that does discovery, lifecycle, execution, and content retrieval
against the configured servers.

Transports:
  stdio (default) - for local desktop apps (Claude Desktop, Cursor)
  http            - for remote deployments, served at /mcp

Example:
  router serve --servers mcpServers.json --transport http --port 8080`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("servers", "s", "", "path to the servers-config JSON file (mcpServers map, required)")
	_ = serveCmd.MarkFlagRequired("servers")

	serveCmd.Flags().String("transport", "", "transport type: stdio or http (overrides server.transport)")
	serveCmd.Flags().Int("port", 0, "HTTP server port (overrides server.port)")
	serveCmd.Flags().String("host", "", "HTTP server host (overrides server.host)")
}

func runServe(cmd *cobra.Command, args []string) error {
	serversPath, _ := cmd.Flags().GetString("servers")

	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if v, _ := cmd.Flags().GetString("transport"); v != "" {
		cfg.Server.Transport = v
	}
	if v, _ := cmd.Flags().GetInt("port"); v != 0 {
		cfg.Server.Port = v
	}
	if v, _ := cmd.Flags().GetString("host"); v != "" {
		cfg.Server.Host = v
	}

	servers, err := config.LoadServers(serversPath)
	if err != nil {
		return fmt.Errorf("loading servers config: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nShutting down...")
		cancel()
	}()

	embedder, err := buildEmbeddingClient(cfg)
	if err != nil {
		return fmt.Errorf("creating embedding client: %w", err)
	}

	index, err := buildVectorIndex(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connecting to vector index: %w", err)
	}
	defer func() { _ = index.Close() }()

	store := contentstore.New(cfg.Storage.ContentPath, cfg.Router.MaxResultTokens)

	var vision = embedder
	if !cfg.Embedding.DescribeImages {
		vision = nil
	}
	processor := resultprocessor.New(store, vision)

	sup := supervisor.New(servers, mcpclient.Start,
		time.Duration(cfg.Router.IdleTTLSeconds)*time.Second, nil)
	defer func() { _ = sup.Shutdown(context.Background()) }()

	// taskpool's handler must dispatch through the Router, but the Router
	// needs the pool at construction time; rtr is assigned once both exist
	// and is only read by the handler after pool.Start().
	var rtr *router.Router
	pool := taskpool.New(cfg.Router.PoolWorkers, cfg.Router.QueueDepth,
		func(ctx context.Context, task *types.Task) (*types.ResultEnvelope, error) {
			return rtr.HandlerFor()(ctx, task)
		})

	rtr = router.New(index, embedder, sup, processor, store, pool, cfg.Router.CallTimeoutSecs)
	pool.Start()
	defer func() { _ = pool.Shutdown(context.Background()) }()

	m := metrics.New()

	tp, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:     cfg.Telemetry.Tracing.Enabled,
		Exporter:    cfg.Telemetry.Tracing.Exporter,
		Endpoint:    cfg.Telemetry.Tracing.Endpoint,
		SampleRate:  cfg.Telemetry.Tracing.SampleRate,
		ServiceName: "semantic-router",
		Insecure:    cfg.Telemetry.Tracing.Insecure,
	})
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}
	defer func() { _ = tp.Shutdown(context.Background()) }()

	s := server.NewMCPServer(
		"semantic-router",
		"1.0.0",
		server.WithToolCapabilities(false),
	)
	handler := dispatchHandler(rtr, tp, m)
	s.AddTool(semanticRouterTool(serverDirectory(sup)), handler)
	go refreshToolDescription(ctx, s, sup, handler)

	switch cfg.Server.Transport {
	case "stdio":
		if err := server.ServeStdio(s); err != nil {
			return fmt.Errorf("MCP server error: %w", err)
		}

	case "http":
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		fmt.Printf("semantic-router MCP server starting on http://%s\n", addr)
		fmt.Printf("  Endpoint: http://%s/mcp\n", addr)
		fmt.Printf("  Health:   http://%s/health\n", addr)
		fmt.Printf("  Metrics:  http://%s/metrics\n", addr)

		mux := http.NewServeMux()
		mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		})
		mux.Handle("/metrics", m.Handler())

		mcpHandler := server.NewStreamableHTTPServer(s, server.WithStateful(true))
		mux.Handle("/mcp", m.Middleware("/mcp", mcpHandler.ServeHTTP))

		httpServer := &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		}

		go func() {
			<-ctx.Done()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), types.DefaultShutdownGrace*time.Second)
			defer shutdownCancel()
			_ = httpServer.Shutdown(shutdownCtx)
		}()

		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("HTTP server error: %w", err)
		}

	default:
		return fmt.Errorf("unsupported transport: %s (use 'stdio' or 'http')", cfg.Server.Transport)
	}

	return nil
}

// refreshToolDescription periodically re-registers the semantic_router
// tool under the same name with a freshly built server directory, so the
// calling model's view of "what's indexed" stays live without enlarging
// the static input schema on every call.
func refreshToolDescription(ctx context.Context, s *server.MCPServer, sup *supervisor.Supervisor, handler server.ToolHandlerFunc) {
	ticker := time.NewTicker(toolDescriptionRefresh)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.AddTool(semanticRouterTool(serverDirectory(sup)), handler)
		}
	}
}

// serverDirectory renders the configured servers and their hints into the
// directory text embedded in the tool description, so the model sees
// what's available without a separate discovery round-trip.
func serverDirectory(sup *supervisor.Supervisor) string {
	configs := sup.Configs()
	if len(configs) == 0 {
		return "No servers are currently configured."
	}

	names := make([]string, 0, len(configs))
	for name := range configs {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("Configured servers:\n")
	for _, name := range names {
		cfg := configs[name]
		fmt.Fprintf(&b, "  - %s", name)
		if len(cfg.Hints) > 0 {
			fmt.Fprintf(&b, " (%s)", strings.Join(cfg.Hints, "; "))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// semanticRouterTool declares the single meta-tool's schema: one
// "operation" selector plus every field any operation needs, with
// directory describing the currently indexed servers embedded into the
// description text rather than the (static) parameter schema.
func semanticRouterTool(directory string) gomcp.Tool {
	return gomcp.NewTool("semantic_router",
		gomcp.WithDescription(fmt.Sprintf(`Discover, start, invoke, and retrieve results from MCP tool servers
without loading every server's schema into context up front.

Operations (set "operation" to one of):
  search_tools         - semantic search over indexed tool descriptions (query, top_k, server_filter)
  get_server_info      - a server's hints, tool count and blocked tools (server_name)
  list_server_tools     - a server's indexed tools (server_name)
  get_tool_details      - one tool's full input schema (server_name, tool_name)
  manage_server         - start or shut down a server (server_name, action: start|shutdown)
  list_running_servers  - currently running child servers
  execute_tool          - invoke a tool (server_name, tool_name, arguments, in_background, priority)
  poll_task_result      - poll a background execution (task_id)
  get_content           - fetch a chunk of an offloaded result (ref_id, chunk_index)

%s`, directory)),
		gomcp.WithString("operation", gomcp.Required(), gomcp.Description("One of the operations listed above.")),
		gomcp.WithString("query", gomcp.Description("search_tools: the natural-language query.")),
		gomcp.WithNumber("top_k", gomcp.Description("search_tools: max hits to return (default 5, max 50).")),
		gomcp.WithString("server_filter", gomcp.Description("search_tools: restrict results to one server.")),
		gomcp.WithString("server_name", gomcp.Description("the target server's name.")),
		gomcp.WithString("tool_name", gomcp.Description("the target tool's name.")),
		gomcp.WithString("action", gomcp.Description("manage_server: start or shutdown.")),
		gomcp.WithObject("arguments", gomcp.Description("execute_tool: the tool call's arguments.")),
		gomcp.WithBoolean("in_background", gomcp.Description("execute_tool: run asynchronously and return a task_id.")),
		gomcp.WithNumber("priority", gomcp.Description("execute_tool: background task priority, higher runs first.")),
		gomcp.WithString("task_id", gomcp.Description("poll_task_result: the task to poll.")),
		gomcp.WithString("ref_id", gomcp.Description("get_content: the content reference to fetch.")),
		gomcp.WithNumber("chunk_index", gomcp.Description("get_content: which chunk to fetch.")),
	)
}

// dispatchHandler adapts mcp-go's CallToolRequest/CallToolResult to the
// Router's Request/ResultEnvelope, with a dispatch span and operation
// metrics wrapped around every call.
func dispatchHandler(rtr *router.Router, tp *telemetry.Provider, m *metrics.Metrics) server.ToolHandlerFunc {
	return func(ctx context.Context, request gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
		raw, err := json.Marshal(request.GetArguments())
		if err != nil {
			return gomcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
		}
		var req router.Request
		if err := json.Unmarshal(raw, &req); err != nil {
			return gomcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
		}

		ctx, span := tp.StartDispatch(ctx, req.Operation)
		defer span.End()

		start := time.Now()
		env, err := rtr.Dispatch(ctx, req)
		outcome := "ok"
		if err != nil {
			outcome = "error"
			telemetry.RecordError(span, err)
		}
		m.RecordOperation(req.Operation, outcome, time.Since(start))
		telemetry.RecordResult(span, "envelope", time.Since(start))

		if err != nil {
			return gomcp.NewToolResultError(err.Error()), nil
		}
		return gomcp.NewToolResultText(envelopeText(env)), nil
	}
}

// envelopeText renders a ResultEnvelope's parts into the plain text an
// MCP tool result carries back to the model.
func envelopeText(env *types.ResultEnvelope) string {
	if env == nil || len(env.Parts) == 0 {
		return ""
	}
	var b strings.Builder
	for i, part := range env.Parts {
		if i > 0 {
			b.WriteString("\n")
		}
		switch part.Kind {
		case types.PartInlineText:
			b.WriteString(part.Text)
		case types.PartContentRefPreview:
			fmt.Fprintf(&b, "[offloaded %s result: ref_id=%s total_chunks=%d mime=%s]",
				part.RefKind, part.RefID, part.TotalChunks, part.Mime)
			if part.Preview != "" {
				fmt.Fprintf(&b, "\npreview: %s", part.Preview)
			}
		}
	}
	return b.String()
}
