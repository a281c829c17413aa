// Package router implements the single semantic_router meta-tool:
// discovery (search_tools, get_server_info, list_server_tools,
// get_tool_details), lifecycle (manage_server, list_running_servers),
// execution (execute_tool, poll_task_result), and content retrieval
// (get_content).
package router

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/semantic-router/router/pkg/contentstore"
	"github.com/semantic-router/router/pkg/embedding"
	"github.com/semantic-router/router/pkg/resultprocessor"
	"github.com/semantic-router/router/pkg/supervisor"
	"github.com/semantic-router/router/pkg/taskpool"
	"github.com/semantic-router/router/pkg/types"
	"github.com/semantic-router/router/pkg/vectorindex"
)

// Request is the single semantic_router call's argument envelope: exactly
// one Operation, with the fields that operation needs set.
type Request struct {
	Operation string `json:"operation"`

	Query string `json:"query,omitempty"`
	// TopK is a pointer so an explicit top_k:0 (return no hits) is
	// distinguishable from an omitted field (DefaultSearchTopK applies).
	TopK         *int   `json:"top_k,omitempty"`
	ServerFilter string `json:"server_filter,omitempty"`

	ServerName string `json:"server_name,omitempty"`
	ToolName   string `json:"tool_name,omitempty"`

	Action string `json:"action,omitempty"` // manage_server: start | shutdown

	Arguments    json.RawMessage `json:"arguments,omitempty"`
	InBackground bool            `json:"in_background,omitempty"`
	Priority     int             `json:"priority,omitempty"`

	TaskID string `json:"task_id,omitempty"`

	RefID      string `json:"ref_id,omitempty"`
	ChunkIndex int    `json:"chunk_index,omitempty"`
}

// Router dispatches semantic_router calls to its component ports.
type Router struct {
	index           vectorindex.Index
	embedder        embedding.Embedder
	supervisor      *supervisor.Supervisor
	processor       *resultprocessor.Processor
	store           *contentstore.Store
	pool            *taskpool.Pool
	callTimeoutSecs int
}

// New builds a Router over its component ports.
func New(index vectorindex.Index, embedder embedding.Embedder, sup *supervisor.Supervisor, processor *resultprocessor.Processor, store *contentstore.Store, pool *taskpool.Pool, callTimeoutSecs int) *Router {
	if callTimeoutSecs <= 0 {
		callTimeoutSecs = types.DefaultCallTimeoutSecs
	}
	return &Router{
		index:           index,
		embedder:        embedder,
		supervisor:      sup,
		processor:       processor,
		store:           store,
		pool:            pool,
		callTimeoutSecs: callTimeoutSecs,
	}
}

// Dispatch executes one semantic_router call. It never returns a
// transport-level error for a router-level failure: RouterErrors are
// rendered into the envelope's text via EnvelopeText, per the
// error-handling contract.
func (r *Router) Dispatch(ctx context.Context, req Request) (*types.ResultEnvelope, error) {
	var (
		env *types.ResultEnvelope
		err error
	)

	switch req.Operation {
	case "search_tools":
		env, err = r.searchTools(ctx, req)
	case "get_server_info":
		env, err = r.getServerInfo(ctx, req)
	case "list_server_tools":
		env, err = r.listServerTools(ctx, req)
	case "get_tool_details":
		env, err = r.getToolDetails(ctx, req)
	case "manage_server":
		env, err = r.manageServer(ctx, req)
	case "list_running_servers":
		env, err = r.listRunningServers(ctx, req)
	case "execute_tool":
		env, err = r.executeTool(ctx, req)
	case "poll_task_result":
		env, err = r.pollTaskResult(ctx, req)
	case "get_content":
		env, err = r.getContent(ctx, req)
	default:
		err = types.NewError(types.ErrConfigError, fmt.Sprintf("unknown operation %q", req.Operation))
	}

	if err != nil {
		return types.InlineText(types.AsRouterError(err).EnvelopeText()), nil
	}
	return env, nil
}

type searchHit struct {
	ServerName          string  `json:"server_name"`
	ToolName            string  `json:"tool_name"`
	Score               float32 `json:"score"`
	EnrichedDescription string  `json:"enriched_description"`
}

func (r *Router) searchTools(ctx context.Context, req Request) (*types.ResultEnvelope, error) {
	topK := types.DefaultSearchTopK
	if req.TopK != nil {
		topK = *req.TopK
	}
	if topK > types.MaxSearchTopK {
		return nil, types.NewError(types.ErrConfigError, fmt.Sprintf("top_k must be <= %d", types.MaxSearchTopK))
	}
	if topK < 0 {
		topK = 0
	}

	vector, err := r.embedder.Embed(ctx, req.Query)
	if err != nil {
		return nil, types.WrapError(types.ErrUpstreamLLMError, "embedding search query", err)
	}

	filter := vectorindex.Filter{}
	if req.ServerFilter != "" {
		filter.ServerName = req.ServerFilter
	}

	results, err := r.index.Search(ctx, vector, topK, filter)
	if err != nil {
		return nil, types.WrapError(types.ErrStorageError, "searching tool index", err)
	}

	hits := make([]searchHit, 0, len(results))
	for _, res := range results {
		hits = append(hits, searchHit{
			ServerName:          res.Record.ServerName,
			ToolName:            res.Record.ToolName,
			Score:               res.Score,
			EnrichedDescription: res.Record.EnrichedDescription,
		})
	}
	return jsonEnvelope(hits)
}

func (r *Router) getServerInfo(ctx context.Context, req Request) (*types.ResultEnvelope, error) {
	records, err := r.index.Scroll(ctx, vectorindex.Filter{ServerName: req.ServerName})
	if err != nil {
		return nil, types.WrapError(types.ErrStorageError, "scrolling server tools", err)
	}
	if len(records) == 0 {
		return nil, types.NewError(types.ErrUnknownServer, fmt.Sprintf("no indexed server named %q", req.ServerName))
	}

	var blocked []string
	for _, rec := range records {
		if rec.Blocked {
			blocked = append(blocked, rec.ToolName)
		}
	}

	info := map[string]interface{}{
		"server_name":   req.ServerName,
		"tool_count":    len(records),
		"blocked_tools": blocked,
	}
	if r.supervisor != nil {
		if cfg, ok := r.supervisor.Configs()[req.ServerName]; ok && cfg != nil {
			info["hints"] = cfg.Hints
			info["source"] = cfg.Source
		}
	}
	return jsonEnvelope(info)
}

func (r *Router) listServerTools(ctx context.Context, req Request) (*types.ResultEnvelope, error) {
	records, err := r.index.Scroll(ctx, vectorindex.Filter{ServerName: req.ServerName})
	if err != nil {
		return nil, types.WrapError(types.ErrStorageError, "scrolling server tools", err)
	}
	if len(records) == 0 {
		return nil, types.NewError(types.ErrUnknownServer, fmt.Sprintf("no indexed server named %q", req.ServerName))
	}

	sort.Slice(records, func(i, j int) bool { return records[i].ToolName < records[j].ToolName })

	type toolSummary struct {
		ToolName    string `json:"tool_name"`
		Description string `json:"description"`
		Blocked     bool   `json:"blocked"`
	}
	out := make([]toolSummary, 0, len(records))
	for _, rec := range records {
		out = append(out, toolSummary{ToolName: rec.ToolName, Description: rec.EnrichedDescription, Blocked: rec.Blocked})
	}
	return jsonEnvelope(out)
}

func (r *Router) getToolDetails(ctx context.Context, req Request) (*types.ResultEnvelope, error) {
	record, err := r.findTool(ctx, req.ServerName, req.ToolName)
	if err != nil {
		return nil, err
	}

	var schema interface{}
	if err := json.Unmarshal(record.InputSchema, &schema); err != nil {
		schema = string(record.InputSchema)
	}

	out := map[string]interface{}{
		"server_name":          record.ServerName,
		"tool_name":            record.ToolName,
		"original_description": record.OriginalDescription,
		"enriched_description": record.EnrichedDescription,
		"input_schema":         schema,
		"blocked":              record.Blocked,
	}
	return jsonEnvelope(out)
}

func (r *Router) manageServer(ctx context.Context, req Request) (*types.ResultEnvelope, error) {
	switch req.Action {
	case "start":
		if err := r.supervisor.StartNow(ctx, req.ServerName); err != nil {
			return nil, err
		}
	case "shutdown":
		if err := r.supervisor.Stop(req.ServerName); err != nil {
			return nil, err
		}
	default:
		return nil, types.NewError(types.ErrConfigError, fmt.Sprintf("unknown manage_server action %q", req.Action))
	}

	for _, rs := range r.supervisor.ListRunning() {
		if rs.ServerName == req.ServerName {
			return jsonEnvelope(rs)
		}
	}
	return jsonEnvelope(map[string]interface{}{"server_name": req.ServerName, "state": "absent"})
}

func (r *Router) listRunningServers(ctx context.Context, req Request) (*types.ResultEnvelope, error) {
	running := r.supervisor.ListRunning()
	sort.Slice(running, func(i, j int) bool { return running[i].ServerName < running[j].ServerName })
	return jsonEnvelope(running)
}

func (r *Router) executeTool(ctx context.Context, req Request) (*types.ResultEnvelope, error) {
	record, err := r.findTool(ctx, req.ServerName, req.ToolName)
	if err != nil {
		return nil, err
	}
	if record.Blocked {
		return nil, types.NewError(types.ErrBlocked, fmt.Sprintf("tool %s/%s is blocked", req.ServerName, req.ToolName))
	}

	if req.InBackground {
		taskID, err := r.pool.Submit(req.ServerName, req.ToolName, req.Arguments, req.Priority)
		if err != nil {
			return nil, err
		}
		return jsonEnvelope(map[string]string{"task_id": taskID})
	}

	return r.callTool(ctx, req.ServerName, req.ToolName, req.Arguments)
}

// callTool acquires a ready client, invokes the tool, and releases the
// acquisition regardless of outcome; used both synchronously here and by
// the task pool's background handler.
func (r *Router) callTool(ctx context.Context, serverName, toolName string, arguments json.RawMessage) (*types.ResultEnvelope, error) {
	client, err := r.supervisor.Acquire(ctx, serverName)
	if err != nil {
		return nil, err
	}
	defer r.supervisor.Release(serverName)

	result, err := client.CallTool(ctx, toolName, arguments, time.Duration(r.callTimeoutSecs)*time.Second)
	if err != nil {
		return nil, err
	}
	if result.IsError {
		return nil, types.NewError(types.ErrUpstreamLLMError, fmt.Sprintf("tool %s/%s reported an error", serverName, toolName))
	}

	return r.processor.Process(ctx, result.Content)
}

func (r *Router) pollTaskResult(ctx context.Context, req Request) (*types.ResultEnvelope, error) {
	task, err := r.pool.Poll(req.TaskID)
	if err != nil {
		return nil, err
	}

	out := map[string]interface{}{
		"task_id": task.TaskID,
		"status":  task.Status,
	}
	if task.Status.Terminal() {
		if task.Status == types.TaskSucceeded {
			out["result"] = task.Result
		} else if task.Error != "" {
			out["error"] = task.Error
		}
	}
	return jsonEnvelope(out)
}

func (r *Router) getContent(ctx context.Context, req Request) (*types.ResultEnvelope, error) {
	data, ref, err := r.store.Get(req.RefID, req.ChunkIndex)
	if err != nil {
		return nil, err
	}

	out := map[string]interface{}{
		"ref_id":       ref.RefID,
		"kind":         ref.Kind,
		"total_chunks": ref.TotalChunks,
		"mime":         ref.Mime,
	}
	if ref.Kind == types.ContentTextChunked {
		out["text"] = string(data)
	} else {
		out["data_base64"] = data
	}
	return jsonEnvelope(out)
}

func (r *Router) findTool(ctx context.Context, serverName, toolName string) (*types.ToolRecord, error) {
	records, err := r.index.Scroll(ctx, vectorindex.Filter{ServerName: serverName})
	if err != nil {
		return nil, types.WrapError(types.ErrStorageError, "scrolling server tools", err)
	}
	if len(records) == 0 {
		return nil, types.NewError(types.ErrUnknownServer, fmt.Sprintf("no indexed server named %q", serverName))
	}
	for _, rec := range records {
		if rec.ToolName == toolName {
			found := rec
			return &found, nil
		}
	}
	return nil, types.NewError(types.ErrUnknownTool, fmt.Sprintf("no tool named %q on server %q", toolName, serverName))
}

func jsonEnvelope(v interface{}) (*types.ResultEnvelope, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, types.WrapError(types.ErrInternal, "encoding response", err)
	}
	return types.InlineText(string(b)), nil
}

// HandlerFor builds the taskpool.Handler a Pool uses to run background
// execute_tool calls, sharing the same callTool path as the synchronous
// case.
func (r *Router) HandlerFor() func(ctx context.Context, task *types.Task) (*types.ResultEnvelope, error) {
	return func(ctx context.Context, task *types.Task) (*types.ResultEnvelope, error) {
		return r.callTool(ctx, task.ServerName, task.ToolName, task.Arguments)
	}
}
