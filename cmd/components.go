package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/semantic-router/router/pkg/config"
	"github.com/semantic-router/router/pkg/embedding/openai"
	"github.com/semantic-router/router/pkg/types"
	"github.com/semantic-router/router/pkg/vectorindex"
	"github.com/semantic-router/router/pkg/vectorindex/pinecone"
	"github.com/semantic-router/router/pkg/vectorindex/qdrant"
)

// toolsCollection is the single Qdrant collection / Pinecone index
// namespace this router indexes tool records into.
const toolsCollection = "semantic_router_tools"

// buildEmbeddingClient constructs the shared OpenAI-backed client that
// answers the Embedder, Describer, and Vision ports.
func buildEmbeddingClient(cfg *config.Config) (*openai.Client, error) {
	return openai.NewClient(openai.Config{
		APIKey:          cfg.Embedding.APIKey,
		EmbeddingModel:  cfg.Embedding.EmbeddingModel,
		DescriptorModel: cfg.Embedding.DescriptorModel,
		VisionModel:     cfg.Embedding.VisionModel,
		Dimensions:      cfg.Embedding.Dimensions,
	})
}

// buildVectorIndex dials the configured VectorIndex backend.
func buildVectorIndex(ctx context.Context, cfg *config.Config) (vectorindex.Index, error) {
	switch cfg.Storage.VectorBackend {
	case "pinecone":
		return pinecone.New(ctx, pinecone.Config{
			APIKey:    cfg.Storage.PineconeAPIKey,
			IndexName: cfg.Storage.PineconeIndex,
		})

	case "qdrant":
		if cfg.Storage.QdrantURL == "" {
			return nil, types.NewError(types.ErrConfigError,
				"storage.qdrant_url is required: this router's qdrant client speaks gRPC to a remote instance and has no embedded-storage mode, so storage.qdrant_storage_path alone cannot be used")
		}
		host, port, useTLS, err := splitQdrantURL(cfg.Storage.QdrantURL)
		if err != nil {
			return nil, err
		}
		return qdrant.New(ctx, qdrant.Config{
			Host:       host,
			GRPCPort:   port,
			Collection: toolsCollection,
			Dimensions: cfg.Embedding.Dimensions,
			UseTLS:     useTLS,
		})

	default:
		return nil, types.NewError(types.ErrConfigError, fmt.Sprintf("unsupported vector backend %q", cfg.Storage.VectorBackend))
	}
}

// splitQdrantURL parses a QDRANT_URL of the form "[scheme://]host[:port]"
// into the Host/GRPCPort/UseTLS fields the gRPC client wants.
func splitQdrantURL(raw string) (host string, port int, useTLS bool, err error) {
	addr := raw
	if strings.HasPrefix(addr, "https://") {
		useTLS = true
		addr = strings.TrimPrefix(addr, "https://")
	} else if strings.HasPrefix(addr, "http://") {
		addr = strings.TrimPrefix(addr, "http://")
	}
	addr = strings.TrimSuffix(addr, "/")

	if idx := strings.LastIndex(addr, ":"); idx >= 0 {
		host = addr[:idx]
		port, err = strconv.Atoi(addr[idx+1:])
		if err != nil {
			return "", 0, false, types.NewError(types.ErrConfigError, fmt.Sprintf("storage.qdrant_url: invalid port in %q", raw))
		}
		return host, port, useTLS, nil
	}
	return addr, 0, useTLS, nil
}
