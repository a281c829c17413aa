package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Server.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Server.Transport != "stdio" {
		t.Errorf("expected default transport stdio, got %s", cfg.Server.Transport)
	}
	if cfg.Embedding.EmbeddingModel != "text-embedding-3-small" {
		t.Errorf("expected default embedding model text-embedding-3-small, got %s", cfg.Embedding.EmbeddingModel)
	}
	if cfg.Embedding.Dimensions != 1024 {
		t.Errorf("expected default dimensions 1024, got %d", cfg.Embedding.Dimensions)
	}
	if cfg.Router.MaxResultTokens != 5000 {
		t.Errorf("expected default max_result_tokens 5000, got %d", cfg.Router.MaxResultTokens)
	}
	if cfg.Router.IdleTTLSeconds != 300 {
		t.Errorf("expected default idle_ttl_seconds 300, got %d", cfg.Router.IdleTTLSeconds)
	}
}

func withRequiredFields(cfg *Config) *Config {
	cfg.Embedding.APIKey = "sk-test"
	cfg.Storage.ContentPath = "/tmp/content"
	cfg.Storage.QdrantStoragePath = "/tmp/qdrant"
	return cfg
}

func TestValidate_ValidConfig(t *testing.T) {
	cfg := withRequiredFields(DefaultConfig())
	if err := Validate(cfg); err != nil {
		t.Errorf("complete default config should be valid: %v", err)
	}
}

func TestValidate_MissingRequired(t *testing.T) {
	cfg := DefaultConfig()
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected error for missing api_key/content_path/qdrant location")
	}
	for _, want := range []string{"embedding.api_key", "storage.content_path", "storage.qdrant_storage_path"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected error to mention %q, got %v", want, err)
		}
	}
}

func TestValidate_InvalidPort(t *testing.T) {
	cfg := withRequiredFields(DefaultConfig())
	cfg.Server.Port = 70000
	if err := Validate(cfg); err == nil {
		t.Error("expected error for invalid port")
	}
}

func TestValidate_InvalidTransport(t *testing.T) {
	cfg := withRequiredFields(DefaultConfig())
	cfg.Server.Transport = "websocket"
	if err := Validate(cfg); err == nil {
		t.Error("expected error for unsupported transport")
	}
}

func TestValidate_InvalidVectorBackend(t *testing.T) {
	cfg := withRequiredFields(DefaultConfig())
	cfg.Storage.VectorBackend = "elasticsearch"
	if err := Validate(cfg); err == nil {
		t.Error("expected error for unsupported vector backend")
	}
}

func TestValidate_PineconeRequiresAPIKey(t *testing.T) {
	cfg := withRequiredFields(DefaultConfig())
	cfg.Storage.VectorBackend = "pinecone"
	if err := Validate(cfg); err == nil {
		t.Error("expected error for pinecone backend without api key")
	}
	cfg.Storage.PineconeAPIKey = "key"
	if err := Validate(cfg); err != nil {
		t.Errorf("expected valid config once pinecone_api_key is set: %v", err)
	}
}

func TestValidate_InvalidExporter(t *testing.T) {
	cfg := withRequiredFields(DefaultConfig())
	cfg.Telemetry.Tracing.Exporter = "jaeger"
	if err := Validate(cfg); err == nil {
		t.Error("expected error for unsupported exporter")
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.Port = -1
	cfg.Router.MaxResultTokens = 0
	err := Validate(cfg)
	if err == nil {
		t.Error("expected multiple validation errors")
	}
}

func TestInterpolateEnv(t *testing.T) {
	t.Setenv("TEST_VAR", "hello")

	tests := []struct {
		input    string
		expected string
	}{
		{"${TEST_VAR}", "hello"},
		{"prefix-${TEST_VAR}-suffix", "prefix-hello-suffix"},
		{"${NONEXISTENT_VAR:-fallback}", "fallback"},
		{"${NONEXISTENT_VAR}", "${NONEXISTENT_VAR}"},
		{"no-vars-here", "no-vars-here"},
		{"${TEST_VAR:-default}", "hello"}, // env var exists, ignore default
	}

	for _, tt := range tests {
		result := InterpolateEnv(tt.input)
		if result != tt.expected {
			t.Errorf("InterpolateEnv(%q) = %q, want %q", tt.input, result, tt.expected)
		}
	}
}

func TestLoadFromFile(t *testing.T) {
	content := `
server:
  port: 9090
  host: 127.0.0.1
  transport: http

embedding:
  api_key: sk-test
  dimensions: 1536

storage:
  content_path: /var/lib/router/content
  vector_backend: qdrant
  qdrant_storage_path: /var/lib/router/qdrant

router:
  max_result_tokens: 8000
  idle_ttl_seconds: 60
`
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "semantic-router.yaml")
	if err := os.WriteFile(cfgPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := LoadFromFile(cfgPath)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("expected host 127.0.0.1, got %s", cfg.Server.Host)
	}
	if cfg.Server.Transport != "http" {
		t.Errorf("expected transport http, got %s", cfg.Server.Transport)
	}
	if cfg.Embedding.Dimensions != 1536 {
		t.Errorf("expected dimensions 1536, got %d", cfg.Embedding.Dimensions)
	}
	if cfg.Router.MaxResultTokens != 8000 {
		t.Errorf("expected max_result_tokens 8000, got %d", cfg.Router.MaxResultTokens)
	}
	if cfg.Router.IdleTTLSeconds != 60 {
		t.Errorf("expected idle_ttl_seconds 60, got %d", cfg.Router.IdleTTLSeconds)
	}
}

func TestLoadFromFile_WithEnvInterpolation(t *testing.T) {
	t.Setenv("TEST_API_KEY", "sk-test-123")

	content := `
embedding:
  api_key: ${TEST_API_KEY}
storage:
  content_path: /tmp/content
  qdrant_storage_path: /tmp/qdrant
`
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "semantic-router.yaml")
	if err := os.WriteFile(cfgPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := LoadFromFile(cfgPath)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}

	if cfg.Embedding.APIKey != "sk-test-123" {
		t.Errorf("expected interpolated API key, got %s", cfg.Embedding.APIKey)
	}
}

func TestLoadFromFile_InvalidFile(t *testing.T) {
	_, err := LoadFromFile("/nonexistent/path/semantic-router.yaml")
	if err == nil {
		t.Error("expected error for nonexistent file")
	}
}

func TestLoadFromFile_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "semantic-router.yaml")
	if err := os.WriteFile(cfgPath, []byte("{{invalid yaml"), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := LoadFromFile(cfgPath)
	if err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func TestLoadFromFile_InvalidValues(t *testing.T) {
	content := `
server:
  port: 99999
router:
  max_result_tokens: -1
`
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "semantic-router.yaml")
	if err := os.WriteFile(cfgPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := LoadFromFile(cfgPath)
	if err == nil {
		t.Error("expected validation error")
	}
}

func TestLoadFromFile_DefaultsPreserved(t *testing.T) {
	content := `
embedding:
  api_key: sk-test
storage:
  content_path: /tmp/content
  qdrant_storage_path: /tmp/qdrant
server:
  port: 3000
`
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "semantic-router.yaml")
	if err := os.WriteFile(cfgPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := LoadFromFile(cfgPath)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}

	if cfg.Server.Port != 3000 {
		t.Errorf("expected port 3000, got %d", cfg.Server.Port)
	}
	if cfg.Router.MaxResultTokens != 5000 {
		t.Errorf("expected default max_result_tokens 5000, got %d", cfg.Router.MaxResultTokens)
	}
	if cfg.Embedding.EmbeddingModel != "text-embedding-3-small" {
		t.Errorf("expected default embedding model, got %s", cfg.Embedding.EmbeddingModel)
	}
}

func TestGenerateTemplate(t *testing.T) {
	tmpl := GenerateTemplate()

	required := []string{
		"server:", "transport:", "port:", "host:",
		"embedding:", "embedding_model:", "dimensions:",
		"storage:", "vector_backend:", "content_path:",
		"router:", "max_result_tokens:", "idle_ttl_seconds:",
		"telemetry:", "exporter:",
	}

	for _, s := range required {
		if !strings.Contains(tmpl, s) {
			t.Errorf("template missing %q", s)
		}
	}
}
