// Package pinecone adapts vectorindex.Index onto Pinecone's data-plane
// gRPC API, selectable as the alternate VectorIndex backend alongside
// qdrant.
package pinecone

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/pinecone-io/go-pinecone/v3/pinecone"
	"github.com/semantic-router/router/pkg/types"
	"github.com/semantic-router/router/pkg/vectorindex"
	"google.golang.org/protobuf/types/known/structpb"
)

// Config holds Pinecone connection settings.
type Config struct {
	APIKey    string
	IndexName string
	Namespace string

	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// Client implements vectorindex.Index against Pinecone.
type Client struct {
	cfg     Config
	pc      *pinecone.Client
	idxConn *pinecone.IndexConnection
}

// New resolves the configured index's host and opens a data-plane
// connection.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, types.NewError(types.ErrConfigError, "pinecone api key is required")
	}
	if cfg.IndexName == "" {
		return nil, types.NewError(types.ErrConfigError, "pinecone index name is required")
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 100 * time.Millisecond
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 30 * time.Second
	}

	pc, err := pinecone.NewClient(pinecone.NewClientParams{ApiKey: cfg.APIKey})
	if err != nil {
		return nil, types.WrapError(types.ErrStorageError, "creating pinecone client", err)
	}

	idx, err := pc.DescribeIndex(ctx, cfg.IndexName)
	if err != nil {
		return nil, types.WrapError(types.ErrStorageError, fmt.Sprintf("describing pinecone index %q", cfg.IndexName), err)
	}

	idxConn, err := pc.Index(pinecone.NewIndexConnParams{Host: idx.Host, Namespace: cfg.Namespace})
	if err != nil {
		return nil, types.WrapError(types.ErrStorageError, "connecting to pinecone index", err)
	}

	return &Client{cfg: cfg, pc: pc, idxConn: idxConn}, nil
}

// Upsert implements vectorindex.Index, retrying on rate-limit/
// unavailable responses with exponential backoff.
func (c *Client) Upsert(ctx context.Context, record types.ToolRecord) error {
	values := record.EmbeddingVector
	meta, err := toMetadata(record)
	if err != nil {
		return err
	}

	vec := &pinecone.Vector{Id: record.ID(), Values: &values, Metadata: meta}

	backoff := c.cfg.InitialBackoff
	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if attempt > 0 {
			time.Sleep(backoff)
			backoff = time.Duration(math.Min(float64(backoff*2), float64(c.cfg.MaxBackoff)))
		}

		_, err := c.idxConn.UpsertVectors(ctx, []*pinecone.Vector{vec})
		if err == nil {
			return nil
		}
		lastErr = err
		if !isRetryableError(err) {
			break
		}
	}

	return types.WrapError(types.ErrStorageError, fmt.Sprintf("upserting tool record %s/%s", record.ServerName, record.ToolName), lastErr)
}

// Search implements vectorindex.Index. Pinecone's query API has no
// server-side equality filter on arbitrary payload fields exposed here,
// so server_name/blocked filtering is applied client-side on the
// returned matches' metadata.
func (c *Client) Search(ctx context.Context, vector []float32, topK int, filter vectorindex.Filter) ([]vectorindex.ScoredRecord, error) {
	if topK <= 0 {
		return nil, nil
	}

	resp, err := c.idxConn.QueryByVectorValues(ctx, &pinecone.QueryByVectorValuesRequest{
		Vector:          vector,
		TopK:            uint32(topK),
		IncludeMetadata: true,
	})
	if err != nil {
		return nil, types.WrapError(types.ErrStorageError, "querying pinecone", err)
	}

	out := make([]vectorindex.ScoredRecord, 0, len(resp.Matches))
	for _, match := range resp.Matches {
		record, err := fromMetadata(match.Vector.Metadata)
		if err != nil {
			continue
		}
		if !filter.Match(record.ServerName, record.Blocked) {
			continue
		}
		out = append(out, vectorindex.ScoredRecord{ToolID: match.Vector.Id, Score: match.Score, Record: record})
	}
	return out, nil
}

// Scroll implements vectorindex.Index via Pinecone's list-then-fetch
// pattern, paging through vector ids in the namespace and fetching their
// metadata, filtering client-side.
func (c *Client) Scroll(ctx context.Context, filter vectorindex.Filter) ([]types.ToolRecord, error) {
	var out []types.ToolRecord
	var nextToken *string

	for {
		listResp, err := c.idxConn.ListVectors(ctx, &pinecone.ListVectorsRequest{
			Limit:           int32Ptr(100),
			PaginationToken: nextToken,
		})
		if err != nil {
			return nil, types.WrapError(types.ErrStorageError, "listing pinecone vectors", err)
		}
		if len(listResp.VectorIds) == 0 {
			break
		}

		ids := make([]string, 0, len(listResp.VectorIds))
		for _, id := range listResp.VectorIds {
			if id != nil {
				ids = append(ids, *id)
			}
		}

		fetchResp, err := c.idxConn.FetchVectors(ctx, ids)
		if err != nil {
			return nil, types.WrapError(types.ErrStorageError, "fetching pinecone vectors", err)
		}
		for _, v := range fetchResp.Vectors {
			record, err := fromMetadata(v.Metadata)
			if err != nil {
				continue
			}
			if !filter.Match(record.ServerName, record.Blocked) {
				continue
			}
			out = append(out, record)
		}

		if listResp.Pagination == nil || listResp.Pagination.Next == "" {
			break
		}
		nextToken = &listResp.Pagination.Next
	}

	return out, nil
}

// DeleteByServer implements vectorindex.Index.
func (c *Client) DeleteByServer(ctx context.Context, serverName string, toolNames []string) error {
	if len(toolNames) == 0 {
		return nil
	}
	ids := make([]string, 0, len(toolNames))
	for _, name := range toolNames {
		ids = append(ids, types.ToolID(serverName, name))
	}
	if err := c.idxConn.DeleteVectorsById(ctx, ids); err != nil {
		return types.WrapError(types.ErrStorageError, fmt.Sprintf("deleting stale records for %s", serverName), err)
	}
	return nil
}

// Close implements vectorindex.Index.
func (c *Client) Close() error {
	return c.idxConn.Close()
}

func toMetadata(record types.ToolRecord) (*pinecone.Metadata, error) {
	m := map[string]interface{}{
		"server_name":          record.ServerName,
		"tool_name":            record.ToolName,
		"original_description": record.OriginalDescription,
		"enriched_description": record.EnrichedDescription,
		"input_schema":         string(record.InputSchema),
		"blocked":              record.Blocked,
	}
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, types.WrapError(types.ErrInternal, "encoding pinecone metadata", err)
	}
	return s, nil
}

func fromMetadata(meta *pinecone.Metadata) (types.ToolRecord, error) {
	if meta == nil {
		return types.ToolRecord{}, fmt.Errorf("vector has no metadata")
	}
	m := meta.AsMap()

	str := func(key string) string {
		if v, ok := m[key].(string); ok {
			return v
		}
		return ""
	}

	record := types.ToolRecord{
		ServerName:          str("server_name"),
		ToolName:            str("tool_name"),
		OriginalDescription: str("original_description"),
		EnrichedDescription: str("enriched_description"),
		InputSchema:         []byte(str("input_schema")),
	}
	if v, ok := m["blocked"].(bool); ok {
		record.Blocked = v
	}
	if record.ServerName == "" || record.ToolName == "" {
		return record, fmt.Errorf("metadata missing server_name/tool_name")
	}
	return record, nil
}

func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	for _, marker := range []string{"429", "503", "rate limit", "unavailable", "temporarily"} {
		if strings.Contains(s, marker) {
			return true
		}
	}
	return false
}

func int32Ptr(n int32) *int32 { return &n }
