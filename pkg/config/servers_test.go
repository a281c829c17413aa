package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadServers(t *testing.T) {
	t.Setenv("FS_ROOT", "/srv/data")

	content := `{
  "mcpServers": {
    "fs": {
      "command": "mcp-server-fs",
      "args": ["--root", "${FS_ROOT}"],
      "hints": ["local filesystem access"],
      "timeout_seconds": 10
    },
    "gh": {
      "command": "mcp-server-github",
      "blocked_tools": ["delete_repository"],
      "overwrite": true
    },
    "scratch": {
      "command": "mcp-server-scratch",
      "ignore": true
    }
  }
}`
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "servers.json")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write servers config: %v", err)
	}

	servers, err := LoadServers(path)
	if err != nil {
		t.Fatalf("LoadServers failed: %v", err)
	}

	if len(servers) != 3 {
		t.Fatalf("expected 3 servers, got %d", len(servers))
	}

	fs := servers["fs"]
	if fs.Name != "fs" {
		t.Errorf("expected name fs, got %s", fs.Name)
	}
	if fs.Args[1] != "/srv/data" {
		t.Errorf("expected interpolated arg /srv/data, got %s", fs.Args[1])
	}
	if fs.EffectiveTimeoutSeconds() != 10 {
		t.Errorf("expected timeout 10, got %d", fs.EffectiveTimeoutSeconds())
	}

	gh := servers["gh"]
	if !gh.IsBlocked("delete_repository") {
		t.Error("expected delete_repository to be blocked")
	}
	if !gh.Overwrite {
		t.Error("expected gh.overwrite true")
	}
	if gh.EffectiveTimeoutSeconds() != 30 {
		t.Errorf("expected default timeout 30, got %d", gh.EffectiveTimeoutSeconds())
	}

	if !servers["scratch"].Ignore {
		t.Error("expected scratch.ignore true")
	}
}

func TestLoadServers_MissingCommand(t *testing.T) {
	content := `{"mcpServers": {"bad": {}}}`
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "servers.json")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write servers config: %v", err)
	}

	_, err := LoadServers(path)
	if err == nil {
		t.Error("expected error for missing command")
	}
}

func TestLoadServers_FileNotFound(t *testing.T) {
	_, err := LoadServers("/nonexistent/servers.json")
	if err == nil {
		t.Error("expected error for missing file")
	}
}
