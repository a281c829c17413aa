package indexer

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/semantic-router/router/pkg/mcpclient"
	"github.com/semantic-router/router/pkg/types"
	"github.com/semantic-router/router/pkg/vectorindex"
	"github.com/semantic-router/router/pkg/vectorindex/fake"
)

type fakeEmbedder struct{ dim int }

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{float32(len(text)), 0, 0}, nil
}
func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i], _ = f.Embed(ctx, t)
	}
	return out, nil
}
func (f *fakeEmbedder) Dimension() int    { return f.dim }
func (f *fakeEmbedder) ModelName() string { return "fake" }

type fakeDescriber struct {
	calls int
	desc  string
}

func (f *fakeDescriber) Describe(ctx context.Context, document string) (string, error) {
	f.calls++
	return f.desc, nil
}

func sessionOf(tools map[string][]mcpclient.ToolDescriptor) Session {
	return func(ctx context.Context, cfg *types.ServerConfig) ([]mcpclient.ToolDescriptor, error) {
		return tools[cfg.Name], nil
	}
}

func TestIndex_UpsertsAllTools(t *testing.T) {
	idx := fake.New()
	session := sessionOf(map[string][]mcpclient.ToolDescriptor{
		"fs": {
			{Name: "read_file", Description: "reads a file", InputSchema: json.RawMessage(`{"properties":{"path":{"type":"string"}}}`)},
			{Name: "write_file", Description: "writes a file"},
		},
	})

	ix := New(session, idx, &fakeEmbedder{dim: 3}, nil, Config{})
	results := ix.Index(context.Background(), map[string]*types.ServerConfig{
		"fs": {Name: "fs", Command: "fs-server"},
	}, false)

	if len(results) != 1 || results[0].Err != nil {
		t.Fatalf("unexpected results: %+v", results)
	}
	if results[0].ToolCount != 2 {
		t.Errorf("expected 2 tools indexed, got %d", results[0].ToolCount)
	}

	records, _ := idx.Scroll(context.Background(), vectoridxFilter("fs"))
	if len(records) != 2 {
		t.Fatalf("expected 2 records in index, got %d", len(records))
	}
}

func TestIndex_SkipsAlreadyIndexedWithoutForce(t *testing.T) {
	idx := fake.New()
	_ = idx.Upsert(context.Background(), types.ToolRecord{ServerName: "fs", ToolName: "read_file", EmbeddingVector: []float32{1}})

	sessionCalled := false
	session := func(ctx context.Context, cfg *types.ServerConfig) ([]mcpclient.ToolDescriptor, error) {
		sessionCalled = true
		return nil, nil
	}

	ix := New(session, idx, &fakeEmbedder{dim: 3}, nil, Config{})
	results := ix.Index(context.Background(), map[string]*types.ServerConfig{
		"fs": {Name: "fs", Command: "fs-server"},
	}, false)

	if len(results) != 1 || !results[0].Skipped {
		t.Fatalf("expected server to be skipped, got %+v", results)
	}
	if sessionCalled {
		t.Error("expected session not to be started for an already-indexed server")
	}
}

func TestIndex_ForceReindexesEvenIfPresent(t *testing.T) {
	idx := fake.New()
	_ = idx.Upsert(context.Background(), types.ToolRecord{ServerName: "fs", ToolName: "read_file", EmbeddingVector: []float32{1}})

	session := sessionOf(map[string][]mcpclient.ToolDescriptor{
		"fs": {{Name: "read_file", Description: "reads a file"}},
	})

	ix := New(session, idx, &fakeEmbedder{dim: 3}, nil, Config{})
	results := ix.Index(context.Background(), map[string]*types.ServerConfig{
		"fs": {Name: "fs", Command: "fs-server"},
	}, true)

	if len(results) != 1 || results[0].Skipped {
		t.Fatalf("expected force to re-index, got %+v", results)
	}
}

func TestIndex_DeletesStaleTools(t *testing.T) {
	idx := fake.New()
	_ = idx.Upsert(context.Background(), types.ToolRecord{ServerName: "fs", ToolName: "old_tool", EmbeddingVector: []float32{1}})

	session := sessionOf(map[string][]mcpclient.ToolDescriptor{
		"fs": {{Name: "new_tool", Description: "a new tool"}},
	})

	ix := New(session, idx, &fakeEmbedder{dim: 3}, nil, Config{})
	ix.Index(context.Background(), map[string]*types.ServerConfig{
		"fs": {Name: "fs", Command: "fs-server", Overwrite: true},
	}, false)

	records, _ := idx.Scroll(context.Background(), vectoridxFilter("fs"))
	if len(records) != 1 || records[0].ToolName != "new_tool" {
		t.Errorf("expected only new_tool to remain, got %+v", records)
	}
}

func TestIndex_BlockedToolMarked(t *testing.T) {
	idx := fake.New()
	session := sessionOf(map[string][]mcpclient.ToolDescriptor{
		"fs": {{Name: "delete_file", Description: "deletes a file"}},
	})

	ix := New(session, idx, &fakeEmbedder{dim: 3}, nil, Config{})
	ix.Index(context.Background(), map[string]*types.ServerConfig{
		"fs": {Name: "fs", Command: "fs-server", BlockedTools: map[string]bool{"delete_file": true}},
	}, false)

	records, _ := idx.Scroll(context.Background(), vectoridxFilter("fs"))
	if len(records) != 1 || !records[0].Blocked {
		t.Errorf("expected delete_file to be marked blocked, got %+v", records)
	}
}

func TestIndex_DescriberFailureFallsBackToRawDescription(t *testing.T) {
	idx := fake.New()
	session := sessionOf(map[string][]mcpclient.ToolDescriptor{
		"fs": {{Name: "read_file", Description: "raw description"}},
	})

	ix := New(session, idx, &fakeEmbedder{dim: 3}, failingDescriber{}, Config{})
	ix.Index(context.Background(), map[string]*types.ServerConfig{
		"fs": {Name: "fs", Command: "fs-server"},
	}, false)

	records, _ := idx.Scroll(context.Background(), vectoridxFilter("fs"))
	if len(records) != 1 || records[0].EnrichedDescription != "server: fs\ntool: read_file\ndescription: raw description\n" {
		t.Errorf("expected fallback to the raw description document, got %+v", records)
	}
}

func TestIndex_IgnoredServerSkipped(t *testing.T) {
	idx := fake.New()
	sessionCalled := false
	session := func(ctx context.Context, cfg *types.ServerConfig) ([]mcpclient.ToolDescriptor, error) {
		sessionCalled = true
		return nil, nil
	}

	ix := New(session, idx, &fakeEmbedder{dim: 3}, nil, Config{})
	results := ix.Index(context.Background(), map[string]*types.ServerConfig{
		"fs": {Name: "fs", Command: "fs-server", Ignore: true},
	}, true)

	if len(results) != 1 || !results[0].Skipped {
		t.Fatalf("expected ignored server to be skipped, got %+v", results)
	}
	if sessionCalled {
		t.Error("expected session not to be started for an ignored server")
	}
}

type failingDescriber struct{}

func (failingDescriber) Describe(ctx context.Context, document string) (string, error) {
	return "", context.DeadlineExceeded
}

func vectoridxFilter(serverName string) vectorindex.Filter {
	return vectorindex.Filter{ServerName: serverName}
}
