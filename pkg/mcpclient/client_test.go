package mcpclient

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/semantic-router/router/pkg/types"
)

func TestStart_UnknownCommand(t *testing.T) {
	cfg := &types.ServerConfig{
		Name:           "nonexistent",
		Command:        "this-binary-does-not-exist-anywhere",
		TimeoutSeconds: 1,
	}

	_, err := Start(context.Background(), cfg)
	if err == nil {
		t.Fatal("expected an error spawning a nonexistent command")
	}
	re := types.AsRouterError(err)
	if re.Kind != types.ErrServerCrashed && re.Kind != types.ErrServerUnavailable {
		t.Errorf("expected SERVER_CRASHED or SERVER_UNAVAILABLE, got %s", re.Kind)
	}
}

func TestStart_HandshakeTimeout(t *testing.T) {
	// `sleep` never speaks the MCP protocol, so the handshake should time
	// out against the server's configured timeout rather than hang.
	cfg := &types.ServerConfig{
		Name:           "sleeper",
		Command:        "sleep",
		Args:           []string{"5"},
		TimeoutSeconds: 1,
	}

	start := time.Now()
	_, err := Start(context.Background(), cfg)
	elapsed := time.Since(start)

	if err == nil {
		t.Fatal("expected handshake to fail against a non-MCP process")
	}
	if elapsed > 4*time.Second {
		t.Errorf("expected to fail within the configured 1s timeout, took %s", elapsed)
	}
}

func TestClassify_TransportDeathReportsServerCrashed(t *testing.T) {
	c := &Client{serverName: "fs"}

	var crashed int
	c.SetCrashCallback(func() { crashed++ })

	err := c.classify(context.Background(), errors.New("write: broken pipe"), "calling tool \"read_file\"")
	re := types.AsRouterError(err)
	if re.Kind != types.ErrServerCrashed {
		t.Fatalf("expected SERVER_CRASHED, got %s", re.Kind)
	}
	if crashed != 1 {
		t.Errorf("expected crash callback invoked once, got %d", crashed)
	}

	// A second classify call against the same dead client must not fire
	// the callback again.
	_ = c.classify(context.Background(), errors.New("write: broken pipe"), "calling tool \"read_file\"")
	if crashed != 1 {
		t.Errorf("expected crash callback still invoked exactly once, got %d", crashed)
	}
}

func TestClassify_OrdinaryProtocolErrorUnaffected(t *testing.T) {
	c := &Client{serverName: "fs"}
	err := c.classify(context.Background(), errors.New("invalid params: missing \"path\""), "calling tool \"read_file\"")
	re := types.AsRouterError(err)
	if re.Kind != types.ErrProtocolError {
		t.Errorf("expected PROTOCOL_ERROR, got %s", re.Kind)
	}
}
