package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/semantic-router/router/pkg/cache"
	"github.com/semantic-router/router/pkg/config"
	"github.com/semantic-router/router/pkg/indexer"
	"github.com/semantic-router/router/pkg/mcpclient"
	"github.com/semantic-router/router/pkg/types"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Populate the vector index from configured MCP servers",
	Long: `Starts each configured server just long enough to list its tools,
enriches and embeds each tool's description, and upserts the resulting
records into the vector index. Servers already indexed are skipped
unless --force or the server's own "overwrite" setting is set.

Example:
  router index --servers mcpServers.json`,
	RunE: runIndex,
}

func init() {
	rootCmd.AddCommand(indexCmd)

	indexCmd.Flags().StringP("servers", "s", "", "path to the servers-config JSON file (mcpServers map, required)")
	_ = indexCmd.MarkFlagRequired("servers")
	indexCmd.Flags().Bool("force", false, "reindex every server even if already indexed")
	indexCmd.Flags().Int("workers", 0, "number of servers to index concurrently (0 = default)")
}

func runIndex(cmd *cobra.Command, args []string) error {
	serversPath, _ := cmd.Flags().GetString("servers")
	force, _ := cmd.Flags().GetBool("force")
	workers, _ := cmd.Flags().GetInt("workers")

	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	servers, err := config.LoadServers(serversPath)
	if err != nil {
		return fmt.Errorf("loading servers config: %w", err)
	}
	if len(servers) == 0 {
		fmt.Fprintln(os.Stderr, "No servers found in", serversPath)
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nInterrupted, cleaning up...")
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

	describeCache := cache.NewMemoryCache(cache.DefaultConfig())
	defer func() { _ = describeCache.Close() }()

	ix := indexer.New(sessionFor, index, embedder, embedder, indexer.Config{
		Workers: workers,
		Cache:   describeCache,
	})

	fmt.Fprintf(os.Stderr, "Indexing %d server(s)...\n", len(servers))

	bar := progressbar.NewOptions64(
		int64(len(servers)),
		progressbar.OptionSetDescription("Indexing"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("servers"),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionFullWidth(),
		progressbar.OptionSetRenderBlankState(true),
	)

	results := ix.Index(ctx, servers, force)
	_ = bar.Add64(int64(len(results)))
	_ = bar.Finish()
	fmt.Fprintln(os.Stderr)

	failed := printIndexSummary(results)
	if failed > 0 {
		return fmt.Errorf("%d server(s) failed to index", failed)
	}
	return nil
}

// sessionFor satisfies indexer.Session: a short-lived client session
// against one server, closed as soon as its tools are listed.
func sessionFor(ctx context.Context, cfg *types.ServerConfig) ([]mcpclient.ToolDescriptor, error) {
	client, err := mcpclient.Start(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer func() { _ = client.Shutdown() }()
	return client.ListTools(ctx)
}

func printIndexSummary(results []indexer.ServerResult) int {
	fmt.Println()
	fmt.Println("=== Index Complete ===")
	fmt.Println()

	failed := 0
	for _, r := range results {
		switch {
		case r.Err != nil:
			failed++
			fmt.Printf("  %-24s FAILED  (%d tools indexed before failure): %v\n", r.ServerName, r.ToolCount, r.Err)
		case r.Skipped:
			fmt.Printf("  %-24s SKIPPED (%d tools already indexed)\n", r.ServerName, r.ToolCount)
		default:
			fmt.Printf("  %-24s OK      (%d tools)\n", r.ServerName, r.ToolCount)
		}
	}

	fmt.Println()
	fmt.Printf("Servers indexed: %d, skipped: %d, failed: %d\n",
		len(results)-failed, countSkipped(results), failed)
	fmt.Println()
	return failed
}

func countSkipped(results []indexer.ServerResult) int {
	n := 0
	for _, r := range results {
		if r.Skipped {
			n++
		}
	}
	return n
}
