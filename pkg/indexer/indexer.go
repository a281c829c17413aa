// Package indexer populates the VectorIndex from configured servers: for
// each one it starts a short-lived session, lists tools, enriches and
// embeds each tool's description, and upserts the resulting ToolRecords —
// then removes stale records for tools the server no longer advertises.
package indexer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/semantic-router/router/pkg/cache"
	"github.com/semantic-router/router/pkg/embedding"
	"github.com/semantic-router/router/pkg/mcpclient"
	"github.com/semantic-router/router/pkg/types"
	"github.com/semantic-router/router/pkg/vectorindex"
)

// Session starts a temporary MCP client session against one server and
// lists its tools; satisfied by mcpclient.Start + (*mcpclient.Client).ListTools,
// split out so the indexer can be tested against a fake.
type Session func(ctx context.Context, cfg *types.ServerConfig) ([]mcpclient.ToolDescriptor, error)

// Config bounds the indexer's batch worker pool and memoization.
type Config struct {
	Workers int
	Cache   cache.Cache // optional; nil disables Describer memoization
}

// Indexer drives the configs -> VectorIndex pipeline.
type Indexer struct {
	session  Session
	index    vectorindex.Index
	embedder embedding.Embedder
	describe embedding.Describer // optional; nil falls back to raw document
	cfg      Config
}

// New builds an Indexer. describe may be nil.
func New(session Session, index vectorindex.Index, embedder embedding.Embedder, describe embedding.Describer, cfg Config) *Indexer {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	return &Indexer{session: session, index: index, embedder: embedder, describe: describe, cfg: cfg}
}

// ServerResult reports one server's indexing outcome.
type ServerResult struct {
	ServerName string
	Skipped    bool
	ToolCount  int
	Err        error
}

// Index runs the pipeline over every config, skipping servers already
// indexed unless force or the config's Overwrite flag is set. Servers run
// concurrently, bounded by Config.Workers; a failure on one server does
// not stop the others (partial failure is reported per-server).
func (ix *Indexer) Index(ctx context.Context, configs map[string]*types.ServerConfig, force bool) []ServerResult {
	jobs := make(chan *types.ServerConfig, len(configs))
	for _, cfg := range configs {
		jobs <- cfg
	}
	close(jobs)

	results := make(chan ServerResult, len(configs))
	var wg sync.WaitGroup
	for i := 0; i < ix.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for cfg := range jobs {
				results <- ix.indexServer(ctx, cfg, force)
			}
		}()
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	out := make([]ServerResult, 0, len(configs))
	for r := range results {
		out = append(out, r)
	}
	return out
}

func (ix *Indexer) indexServer(ctx context.Context, cfg *types.ServerConfig, force bool) ServerResult {
	if cfg.Ignore {
		return ServerResult{ServerName: cfg.Name, Skipped: true}
	}

	if !force && !cfg.Overwrite {
		existing, err := ix.index.Scroll(ctx, vectorindex.Filter{ServerName: cfg.Name})
		if err == nil && len(existing) > 0 {
			return ServerResult{ServerName: cfg.Name, Skipped: true, ToolCount: len(existing)}
		}
	}

	previous := existingNames(ctx, ix.index, cfg.Name)

	tools, err := ix.session(ctx, cfg)
	if err != nil {
		return ServerResult{ServerName: cfg.Name, Err: err}
	}

	seen := make([]string, 0, len(tools))
	for _, tool := range tools {
		if err := ix.indexTool(ctx, cfg, tool); err != nil {
			return ServerResult{ServerName: cfg.Name, Err: err, ToolCount: len(seen)}
		}
		seen = append(seen, tool.Name)
	}

	if err := ix.index.DeleteByServer(ctx, cfg.Name, staleTools(seen, previous)); err != nil {
		return ServerResult{ServerName: cfg.Name, Err: err, ToolCount: len(seen)}
	}

	return ServerResult{ServerName: cfg.Name, ToolCount: len(seen)}
}

func (ix *Indexer) indexTool(ctx context.Context, cfg *types.ServerConfig, tool mcpclient.ToolDescriptor) error {
	document := buildDocument(cfg, tool)

	description := document
	if ix.describe != nil {
		if cached, ok := ix.lookupDescription(document); ok {
			description = cached
		} else if enriched, err := ix.describe.Describe(ctx, document); err == nil {
			description = enriched
			ix.storeDescription(document, enriched)
		}
		// On Describer failure, fall back silently to the raw document per
		// the component contract.
	}

	vector, err := ix.embedder.Embed(ctx, description)
	if err != nil {
		return types.WrapError(types.ErrUpstreamLLMError, fmt.Sprintf("embedding tool %s/%s", cfg.Name, tool.Name), err)
	}

	record := types.ToolRecord{
		ServerName:          cfg.Name,
		ToolName:            tool.Name,
		OriginalDescription: tool.Description,
		InputSchema:         tool.InputSchema,
		EnrichedDescription: description,
		EmbeddingVector:     vector,
		Blocked:             cfg.IsBlocked(tool.Name),
	}
	if err := ix.index.Upsert(ctx, record); err != nil {
		return types.WrapError(types.ErrStorageError, fmt.Sprintf("upserting tool %s/%s", cfg.Name, tool.Name), err)
	}
	return nil
}

func (ix *Indexer) lookupDescription(document string) (string, bool) {
	if ix.cfg.Cache == nil {
		return "", false
	}
	v, err := ix.cfg.Cache.Get(context.Background(), cache.CacheKeyForText("describe", document))
	if err != nil {
		return "", false
	}
	return string(v), true
}

func (ix *Indexer) storeDescription(document, description string) {
	if ix.cfg.Cache == nil {
		return
	}
	_ = ix.cfg.Cache.Set(context.Background(), cache.CacheKeyForText("describe", document), []byte(description), time.Hour)
}

// buildDocument assembles the text handed to the Describer/Embedder:
// server name, hints, tool name/description, and a per-parameter summary
// pulled from the opaque JSON schema.
func buildDocument(cfg *types.ServerConfig, tool mcpclient.ToolDescriptor) string {
	var b bytes.Buffer
	fmt.Fprintf(&b, "server: %s\n", cfg.Name)
	if len(cfg.Hints) > 0 {
		fmt.Fprintf(&b, "hints: %v\n", cfg.Hints)
	}
	fmt.Fprintf(&b, "tool: %s\n", tool.Name)
	fmt.Fprintf(&b, "description: %s\n", tool.Description)
	if params := summarizeParameters(tool.InputSchema); params != "" {
		fmt.Fprintf(&b, "parameters: %s\n", params)
	}
	return b.String()
}

func summarizeParameters(schema json.RawMessage) string {
	if len(schema) == 0 {
		return ""
	}
	var parsed struct {
		Properties map[string]struct {
			Type        string `json:"type"`
			Description string `json:"description"`
		} `json:"properties"`
	}
	if err := json.Unmarshal(schema, &parsed); err != nil {
		return ""
	}
	var b bytes.Buffer
	first := true
	for name, p := range parsed.Properties {
		if !first {
			b.WriteString("; ")
		}
		first = false
		fmt.Fprintf(&b, "%s (%s)", name, p.Type)
		if p.Description != "" {
			fmt.Fprintf(&b, ": %s", p.Description)
		}
	}
	return b.String()
}

func existingNames(ctx context.Context, index vectorindex.Index, serverName string) []string {
	records, err := index.Scroll(ctx, vectorindex.Filter{ServerName: serverName})
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(records))
	for _, r := range records {
		names = append(names, r.ToolName)
	}
	return names
}

// staleTools returns entries of previous that are absent from current.
func staleTools(current, previous []string) []string {
	set := make(map[string]struct{}, len(current))
	for _, n := range current {
		set[n] = struct{}{}
	}
	var stale []string
	for _, n := range previous {
		if _, ok := set[n]; !ok {
			stale = append(stale, n)
		}
	}
	return stale
}
