package types

import (
	"crypto/sha256"
	"encoding/hex"
)

// ToolRecord is one indexed tool: its identity, its upstream-declared
// schema, and the enriched description/embedding the Indexer produced
// for semantic search.
type ToolRecord struct {
	ServerName           string
	ToolName             string
	OriginalDescription  string
	InputSchema          []byte // opaque JSON, never parsed client-side
	EnrichedDescription  string
	EmbeddingVector      []float32
	Blocked              bool
}

// ToolID returns the stable identity of a (server_name, tool_name) pair,
// used as the deterministic VectorIndex upsert id.
func ToolID(serverName, toolName string) string {
	h := sha256.New()
	h.Write([]byte(serverName))
	h.Write([]byte{0})
	h.Write([]byte(toolName))
	return hex.EncodeToString(h.Sum(nil))
}

// ID returns this record's stable identity.
func (t *ToolRecord) ID() string {
	return ToolID(t.ServerName, t.ToolName)
}
