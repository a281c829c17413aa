// Package fake is an in-memory vectorindex.Index test double, used by
// other packages' tests instead of a live Qdrant/Pinecone backend.
package fake

import (
	"context"
	"sort"
	"sync"

	"github.com/semantic-router/router/pkg/mathutil"
	"github.com/semantic-router/router/pkg/types"
	"github.com/semantic-router/router/pkg/vectorindex"
)

// Index is a thread-safe in-memory vectorindex.Index.
type Index struct {
	mu      sync.Mutex
	records map[string]types.ToolRecord
}

// New returns an empty fake Index.
func New() *Index {
	return &Index{records: make(map[string]types.ToolRecord)}
}

func (f *Index) Upsert(_ context.Context, record types.ToolRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[record.ID()] = record
	return nil
}

func (f *Index) Search(_ context.Context, vector []float32, topK int, filter vectorindex.Filter) ([]vectorindex.ScoredRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if topK <= 0 {
		return nil, nil
	}

	var scored []vectorindex.ScoredRecord
	for id, record := range f.records {
		if !filter.Match(record.ServerName, record.Blocked) {
			continue
		}
		score := mathutil.CosineSimilarity(vector, record.EmbeddingVector)
		scored = append(scored, vectorindex.ScoredRecord{ToolID: id, Score: float32(score), Record: record})
	}

	sort.Slice(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if len(scored) > topK {
		scored = scored[:topK]
	}
	return scored, nil
}

func (f *Index) Scroll(_ context.Context, filter vectorindex.Filter) ([]types.ToolRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []types.ToolRecord
	for _, record := range f.records {
		if filter.Match(record.ServerName, record.Blocked) {
			out = append(out, record)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ToolName < out[j].ToolName })
	return out, nil
}

func (f *Index) DeleteByServer(_ context.Context, serverName string, toolNames []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, name := range toolNames {
		delete(f.records, types.ToolID(serverName, name))
	}
	return nil
}

func (f *Index) Close() error { return nil }

var _ vectorindex.Index = (*Index)(nil)
