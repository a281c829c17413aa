// Package mcpclient manages one child MCP server process per running tool
// server: spawning it over stdio, performing the protocol handshake, and
// exposing list_tools/call_tool/shutdown as a narrow port so the rest of
// the program never touches mark3labs/mcp-go's client package directly.
package mcpclient

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	gomcp "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/semantic-router/router/pkg/types"
)

const protocolVersion = "2024-11-05"

// ToolDescriptor is a tool as advertised by a child server's tools/list,
// trimmed to the fields the indexer and result processor need.
type ToolDescriptor struct {
	Name        string
	Description string
	InputSchema json.RawMessage
}

// CallResult is the raw content returned by a tools/call, before
// ResultProcessor turns it into a ResultEnvelope.
type CallResult struct {
	Content []mcp.Content
	IsError bool
}

// Client owns one child MCP server process, reached over stdio.
type Client struct {
	serverName string
	timeout    time.Duration

	raw *gomcp.Client

	crashOnce sync.Once
	onCrash   func()
}

// SetCrashCallback registers fn to run the first time this client detects
// its process has died mid-call. The supervisor registers its own
// on_terminated notification here right after constructing the client,
// rather than holding a back-pointer to the supervisor.
func (c *Client) SetCrashCallback(fn func()) {
	c.onCrash = fn
}

// Start spawns the child process described by cfg and performs the
// initialize handshake. The caller owns the returned Client's lifetime and
// must call Shutdown when done with it.
func Start(ctx context.Context, cfg *types.ServerConfig) (*Client, error) {
	env := make([]string, 0, len(cfg.Env))
	for k, v := range cfg.Env {
		env = append(env, k+"="+v)
	}

	raw, err := gomcp.NewStdioMCPClient(cfg.Command, env, cfg.Args...)
	if err != nil {
		return nil, types.WrapError(types.ErrServerCrashed, fmt.Sprintf("spawning server %q", cfg.Name), err)
	}

	timeout := time.Duration(cfg.EffectiveTimeoutSeconds()) * time.Second
	startCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = protocolVersion
	initReq.Params.ClientInfo = mcp.Implementation{Name: "semantic-router", Version: "1.0.0"}

	if _, err := raw.Initialize(startCtx, initReq); err != nil {
		_ = raw.Close()
		if startCtx.Err() != nil {
			return nil, types.NewError(types.ErrServerUnavailable, fmt.Sprintf("server %q did not complete handshake within %s", cfg.Name, timeout))
		}
		return nil, types.WrapError(types.ErrProtocolError, fmt.Sprintf("initializing server %q", cfg.Name), err)
	}

	return &Client{serverName: cfg.Name, timeout: timeout, raw: raw}, nil
}

// ListTools returns the child server's advertised tools.
func (c *Client) ListTools(ctx context.Context) ([]ToolDescriptor, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.raw.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, c.classify(ctx, err, "listing tools")
	}

	out := make([]ToolDescriptor, 0, len(resp.Tools))
	for _, t := range resp.Tools {
		schema, err := json.Marshal(t.InputSchema)
		if err != nil {
			schema = json.RawMessage("{}")
		}
		out = append(out, ToolDescriptor{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: schema,
		})
	}
	return out, nil
}

// CallTool invokes a tool synchronously, with timeout bounded by deadline
// when it is non-zero (otherwise the server's configured default applies).
func (c *Client) CallTool(ctx context.Context, toolName string, arguments json.RawMessage, deadline time.Duration) (*CallResult, error) {
	effective := c.timeout
	if deadline > 0 {
		effective = deadline
	}
	ctx, cancel := context.WithTimeout(ctx, effective)
	defer cancel()

	var args map[string]interface{}
	if len(arguments) > 0 {
		if err := json.Unmarshal(arguments, &args); err != nil {
			return nil, types.WrapError(types.ErrProtocolError, "decoding tool arguments", err)
		}
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = toolName
	req.Params.Arguments = args

	resp, err := c.raw.CallTool(ctx, req)
	if err != nil {
		return nil, c.classify(ctx, err, fmt.Sprintf("calling tool %q", toolName))
	}

	return &CallResult{Content: resp.Content, IsError: resp.IsError}, nil
}

// Shutdown closes the underlying process/transport. Idempotent.
func (c *Client) Shutdown() error {
	if c.raw == nil {
		return nil
	}
	return c.raw.Close()
}

// ServerName returns the name this client was started for.
func (c *Client) ServerName() string { return c.serverName }

func (c *Client) classify(ctx context.Context, err error, action string) error {
	if ctx.Err() != nil {
		return types.NewError(types.ErrTimeout, fmt.Sprintf("%s on server %q timed out", action, c.serverName))
	}
	if isTransportDeath(err) {
		c.crashOnce.Do(func() {
			if c.onCrash != nil {
				c.onCrash()
			}
		})
		return types.WrapError(types.ErrServerCrashed, fmt.Sprintf("%s on server %q: process appears to have died", action, c.serverName), err)
	}
	return types.WrapError(types.ErrProtocolError, fmt.Sprintf("%s on server %q", action, c.serverName), err)
}

// isTransportDeath reports whether err looks like the stdio pipe to a
// child process closed out from under us, rather than a well-formed
// protocol-level rejection.
func isTransportDeath(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	for _, marker := range []string{"EOF", "broken pipe", "closed pipe", "file already closed", "connection reset", "process already finished", "signal:"} {
		if strings.Contains(s, marker) {
			return true
		}
	}
	return false
}
