// Package config provides configuration file support for the router.
// It handles loading, validation, and environment variable interpolation
// for router.yaml configuration files, and loading the separate
// servers-config JSON file (the mcpServers map).
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the full router process configuration: transport,
// provider credentials/models, storage locations, and observability.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Router    RouterConfig    `mapstructure:"router"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// ServerConfig holds the outward MCP transport settings (§6: stdio or
// HTTP on <host>:<port>/mcp).
type ServerConfig struct {
	Transport    string        `mapstructure:"transport"` // "stdio" or "http"
	Port         int           `mapstructure:"port"`
	Host         string        `mapstructure:"host"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// EmbeddingConfig holds Embedder/Describer/Vision provider settings.
type EmbeddingConfig struct {
	APIKey          string `mapstructure:"api_key"`
	EmbeddingModel  string `mapstructure:"embedding_model"`
	DescriptorModel string `mapstructure:"descriptor_model"`
	VisionModel     string `mapstructure:"vision_model"`
	Dimensions      int    `mapstructure:"dimensions"`
	DescribeImages  bool   `mapstructure:"describe_images"`
}

// StorageConfig holds ContentStore and VectorIndex locations.
type StorageConfig struct {
	ContentPath      string `mapstructure:"content_path"`
	VectorBackend    string `mapstructure:"vector_backend"` // "qdrant" or "pinecone"
	QdrantStoragePath string `mapstructure:"qdrant_storage_path"`
	QdrantURL        string `mapstructure:"qdrant_url"`
	PineconeAPIKey   string `mapstructure:"pinecone_api_key"`
	PineconeIndex    string `mapstructure:"pinecone_index"`
}

// RouterConfig holds runtime knobs for the core subsystems.
type RouterConfig struct {
	MaxResultTokens int `mapstructure:"max_result_tokens"`
	IdleTTLSeconds  int `mapstructure:"idle_ttl_seconds"`
	PoolWorkers     int `mapstructure:"pool_workers"`
	QueueDepth      int `mapstructure:"queue_depth"`
	CallTimeoutSecs int `mapstructure:"call_timeout_seconds"`
}

// TelemetryConfig holds observability settings.
type TelemetryConfig struct {
	Tracing TracingConfig `mapstructure:"tracing"`
}

// TracingConfig holds OpenTelemetry tracing settings.
type TracingConfig struct {
	Enabled    bool    `mapstructure:"enabled"`
	Exporter   string  `mapstructure:"exporter"`
	Endpoint   string  `mapstructure:"endpoint"`
	SampleRate float64 `mapstructure:"sample_rate"`
	Insecure   bool    `mapstructure:"insecure"`
}

// DefaultConfig returns a Config with sensible defaults, matching the
// environment/configuration table.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Transport:    "stdio",
			Port:         8080,
			Host:         "0.0.0.0",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 60 * time.Second,
		},
		Embedding: EmbeddingConfig{
			EmbeddingModel:  "text-embedding-3-small",
			DescriptorModel: "gpt-4.1-mini",
			VisionModel:     "gpt-4.1-mini",
			Dimensions:      1024,
			DescribeImages:  true,
		},
		Storage: StorageConfig{
			VectorBackend: "qdrant",
		},
		Router: RouterConfig{
			MaxResultTokens: 5000,
			IdleTTLSeconds:  300,
			PoolWorkers:     4,
			QueueDepth:      1024,
			CallTimeoutSecs: 120,
		},
		Telemetry: TelemetryConfig{
			Tracing: TracingConfig{
				Enabled:    false,
				Exporter:   "otlp",
				Endpoint:   "localhost:4317",
				SampleRate: 1.0,
				Insecure:   true,
			},
		},
	}
}

// Load reads configuration from the given viper instance and returns
// a validated Config. Environment variables in string values are
// interpolated using ${VAR} syntax.
func Load(v *viper.Viper) (*Config, error) {
	cfg := DefaultConfig()

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	interpolateConfig(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromFile reads a specific config file and returns a validated Config.
func LoadFromFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return Load(v)
}

// Validate checks the configuration for errors and returns a descriptive
// error if any field is invalid. A validation failure is a CONFIG_ERROR:
// fail-fast at startup, per the error-handling taxonomy.
func Validate(cfg *Config) error {
	var errs []string

	validTransports := map[string]bool{"stdio": true, "http": true}
	if !validTransports[cfg.Server.Transport] {
		errs = append(errs, fmt.Sprintf("server.transport: unsupported transport %q (supported: stdio, http)", cfg.Server.Transport))
	}
	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port: must be between 0 and 65535, got %d", cfg.Server.Port))
	}
	if cfg.Server.ReadTimeout < 0 {
		errs = append(errs, "server.read_timeout: must be non-negative")
	}
	if cfg.Server.WriteTimeout < 0 {
		errs = append(errs, "server.write_timeout: must be non-negative")
	}

	if cfg.Embedding.APIKey == "" {
		errs = append(errs, "embedding.api_key: required (OPENAI_API_KEY)")
	}
	if cfg.Embedding.Dimensions <= 0 {
		errs = append(errs, "embedding.dimensions: must be positive")
	}

	validBackends := map[string]bool{"qdrant": true, "pinecone": true}
	if !validBackends[cfg.Storage.VectorBackend] {
		errs = append(errs, fmt.Sprintf("storage.vector_backend: unsupported backend %q (supported: qdrant, pinecone)", cfg.Storage.VectorBackend))
	}
	if cfg.Storage.VectorBackend == "qdrant" && cfg.Storage.QdrantStoragePath == "" && cfg.Storage.QdrantURL == "" {
		errs = append(errs, "storage.qdrant_storage_path or storage.qdrant_url: one is required when vector_backend is qdrant")
	}
	if cfg.Storage.VectorBackend == "pinecone" && cfg.Storage.PineconeAPIKey == "" {
		errs = append(errs, "storage.pinecone_api_key: required when vector_backend is pinecone")
	}
	if cfg.Storage.ContentPath == "" {
		errs = append(errs, "storage.content_path: required (CONTENT_STORAGE_PATH)")
	}

	if cfg.Router.MaxResultTokens <= 0 {
		errs = append(errs, "router.max_result_tokens: must be positive")
	}
	if cfg.Router.IdleTTLSeconds < 0 {
		errs = append(errs, "router.idle_ttl_seconds: must be non-negative")
	}
	if cfg.Router.PoolWorkers <= 0 {
		errs = append(errs, "router.pool_workers: must be positive")
	}
	if cfg.Router.QueueDepth <= 0 {
		errs = append(errs, "router.queue_depth: must be positive")
	}

	validExporters := map[string]bool{"otlp": true, "stdout": true, "none": true, "": true}
	if !validExporters[cfg.Telemetry.Tracing.Exporter] {
		errs = append(errs, fmt.Sprintf("telemetry.tracing.exporter: unsupported exporter %q (supported: otlp, stdout, none)", cfg.Telemetry.Tracing.Exporter))
	}
	if cfg.Telemetry.Tracing.SampleRate < 0 || cfg.Telemetry.Tracing.SampleRate > 1 {
		errs = append(errs, fmt.Sprintf("telemetry.tracing.sample_rate: must be between 0 and 1, got %f", cfg.Telemetry.Tracing.SampleRate))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// envVarPattern matches ${VAR} or ${VAR:-default} syntax.
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// InterpolateEnv replaces ${VAR} and ${VAR:-default} patterns in a string
// with the corresponding environment variable values.
func InterpolateEnv(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := envVarPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		varName := parts[1]
		defaultVal := ""
		if len(parts) >= 3 {
			defaultVal = parts[2]
		}

		if val, ok := os.LookupEnv(varName); ok {
			return val
		}
		if defaultVal != "" {
			return defaultVal
		}
		return match
	})
}

// interpolateConfig applies environment variable interpolation to all
// string fields in the config.
func interpolateConfig(cfg *Config) {
	cfg.Server.Host = InterpolateEnv(cfg.Server.Host)
	cfg.Embedding.APIKey = InterpolateEnv(cfg.Embedding.APIKey)
	cfg.Embedding.EmbeddingModel = InterpolateEnv(cfg.Embedding.EmbeddingModel)
	cfg.Embedding.DescriptorModel = InterpolateEnv(cfg.Embedding.DescriptorModel)
	cfg.Embedding.VisionModel = InterpolateEnv(cfg.Embedding.VisionModel)
	cfg.Storage.ContentPath = InterpolateEnv(cfg.Storage.ContentPath)
	cfg.Storage.VectorBackend = InterpolateEnv(cfg.Storage.VectorBackend)
	cfg.Storage.QdrantStoragePath = InterpolateEnv(cfg.Storage.QdrantStoragePath)
	cfg.Storage.QdrantURL = InterpolateEnv(cfg.Storage.QdrantURL)
	cfg.Storage.PineconeAPIKey = InterpolateEnv(cfg.Storage.PineconeAPIKey)
	cfg.Storage.PineconeIndex = InterpolateEnv(cfg.Storage.PineconeIndex)
	cfg.Telemetry.Tracing.Exporter = InterpolateEnv(cfg.Telemetry.Tracing.Exporter)
	cfg.Telemetry.Tracing.Endpoint = InterpolateEnv(cfg.Telemetry.Tracing.Endpoint)
}

// GenerateTemplate returns a YAML template string with all available
// configuration options and their defaults, suitable for writing to
// a router.yaml file.
func GenerateTemplate() string {
	return `# Semantic Router Configuration

server:
  transport: stdio     # stdio or http
  port: 8080
  host: 0.0.0.0
  read_timeout: 30s
  write_timeout: 60s

embedding:
  api_key: ${OPENAI_API_KEY}
  embedding_model: text-embedding-3-small
  descriptor_model: gpt-4.1-mini
  vision_model: gpt-4.1-mini
  dimensions: 1024
  describe_images: true

storage:
  content_path: ${CONTENT_STORAGE_PATH}
  vector_backend: qdrant         # qdrant or pinecone
  qdrant_storage_path: ""        # local embedded storage path
  qdrant_url: ""                 # or a remote Qdrant URL
  pinecone_api_key: ""
  pinecone_index: ""

router:
  max_result_tokens: 5000
  idle_ttl_seconds: 300
  pool_workers: 4
  queue_depth: 1024
  call_timeout_seconds: 120

telemetry:
  tracing:
    enabled: false
    exporter: otlp       # otlp, stdout, or none
    endpoint: localhost:4317
    sample_rate: 1.0     # 0.0 to 1.0
    insecure: true
`
}
