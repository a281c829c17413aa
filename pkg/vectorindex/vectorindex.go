// Package vectorindex defines the narrow port to the vector database
// that holds the single collection of ToolRecords, plus the concrete
// adapters in its qdrant and pinecone subpackages.
package vectorindex

import (
	"context"

	"github.com/semantic-router/router/pkg/types"
)

// Filter restricts a Search or Scroll to a subset of the collection:
// equality on ServerName, and set-membership on Blocked (nil means no
// constraint on that field).
type Filter struct {
	ServerName string
	Blocked    *bool
}

// Match reports whether payload satisfies the filter.
func (f Filter) Match(serverName string, blocked bool) bool {
	if f.ServerName != "" && f.ServerName != serverName {
		return false
	}
	if f.Blocked != nil && *f.Blocked != blocked {
		return false
	}
	return true
}

// ScoredRecord is one ranked hit from Search.
type ScoredRecord struct {
	ToolID string
	Score  float32
	Record types.ToolRecord
}

// Index is the VectorIndex port: upsert-by-id, query-by-vector-with-
// filter, and scroll-by-filter over one collection of ToolRecords.
type Index interface {
	// Upsert writes or replaces the record at ToolID(record), with a
	// fresh embedding vector. Idempotent by deterministic id.
	Upsert(ctx context.Context, record types.ToolRecord) error

	// Search returns up to topK records ranked by similarity to vector,
	// restricted by filter, ordered best-first.
	Search(ctx context.Context, vector []float32, topK int, filter Filter) ([]ScoredRecord, error)

	// Scroll yields every record matching filter, used by
	// list_server_tools.
	Scroll(ctx context.Context, filter Filter) ([]types.ToolRecord, error)

	// DeleteByServer removes every record for serverName whose tool_name
	// is in toolNames. An empty toolNames deletes nothing.
	DeleteByServer(ctx context.Context, serverName string, toolNames []string) error

	// Close releases the underlying connection.
	Close() error
}
