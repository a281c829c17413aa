// Package qdrant adapts vectorindex.Index onto Qdrant's gRPC Points API.
package qdrant

import (
	"context"
	"crypto/tls"
	"fmt"

	pb "github.com/qdrant/go-client/qdrant"
	"github.com/semantic-router/router/pkg/types"
	"github.com/semantic-router/router/pkg/vectorindex"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
)

// Config holds Qdrant connection settings.
type Config struct {
	// Host and GRPCPort address a remote Qdrant instance (QDRANT_URL).
	Host     string
	GRPCPort int

	// Collection is the single collection this router indexes tool
	// records into.
	Collection string

	Dimensions int
	APIKey     string
	UseTLS     bool
}

// Client implements vectorindex.Index against Qdrant.
type Client struct {
	cfg    Config
	conn   *grpc.ClientConn
	points pb.PointsClient
}

// New dials Qdrant and ensures the configured collection exists with
// cosine distance and the configured dimensionality.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.Host == "" {
		return nil, types.NewError(types.ErrConfigError, "qdrant host is required")
	}
	if cfg.Collection == "" {
		return nil, types.NewError(types.ErrConfigError, "qdrant collection is required")
	}
	if cfg.GRPCPort <= 0 {
		cfg.GRPCPort = 6334
	}
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = types.DefaultDimensions
	}

	var opts []grpc.DialOption
	if cfg.UseTLS {
		opts = append(opts, grpc.WithTransportCredentials(credentials.NewTLS(&tls.Config{})))
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.GRPCPort)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, types.WrapError(types.ErrStorageError, fmt.Sprintf("connecting to qdrant at %s", addr), err)
	}

	c := &Client{cfg: cfg, conn: conn, points: pb.NewPointsClient(conn)}
	if err := c.ensureCollection(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return c, nil
}

func (c *Client) withAuth(ctx context.Context) context.Context {
	if c.cfg.APIKey == "" {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, "api-key", c.cfg.APIKey)
}

func (c *Client) ensureCollection(ctx context.Context) error {
	collections := pb.NewCollectionsClient(c.conn)
	_, err := collections.Get(c.withAuth(ctx), &pb.GetCollectionInfoRequest{CollectionName: c.cfg.Collection})
	if err == nil {
		return nil
	}

	_, err = collections.Create(c.withAuth(ctx), &pb.CreateCollection{
		CollectionName: c.cfg.Collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(c.cfg.Dimensions),
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return types.WrapError(types.ErrStorageError, "creating qdrant collection", err)
	}
	return nil
}

// Upsert implements vectorindex.Index.
func (c *Client) Upsert(ctx context.Context, record types.ToolRecord) error {
	payload, err := toPayload(record)
	if err != nil {
		return err
	}

	point := &pb.PointStruct{
		Id:      &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: record.ID()}},
		Vectors: &pb.Vectors{VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: record.EmbeddingVector}}},
		Payload: payload,
	}

	_, err = c.points.Upsert(c.withAuth(ctx), &pb.UpsertPoints{
		CollectionName: c.cfg.Collection,
		Points:         []*pb.PointStruct{point},
	})
	if err != nil {
		return types.WrapError(types.ErrStorageError, fmt.Sprintf("upserting tool record %s/%s", record.ServerName, record.ToolName), err)
	}
	return nil
}

// Search implements vectorindex.Index.
func (c *Client) Search(ctx context.Context, vector []float32, topK int, filter vectorindex.Filter) ([]vectorindex.ScoredRecord, error) {
	if topK <= 0 {
		return nil, nil
	}

	req := &pb.SearchPoints{
		CollectionName: c.cfg.Collection,
		Vector:         vector,
		Limit:          uint64(topK),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
		Filter:         buildFilter(filter),
	}

	resp, err := c.points.Search(c.withAuth(ctx), req)
	if err != nil {
		return nil, types.WrapError(types.ErrStorageError, "searching qdrant", err)
	}

	out := make([]vectorindex.ScoredRecord, 0, len(resp.Result))
	for _, point := range resp.Result {
		record, err := fromPayload(point.Payload)
		if err != nil {
			continue
		}
		out = append(out, vectorindex.ScoredRecord{ToolID: pointIDString(point.Id), Score: point.Score, Record: record})
	}
	return out, nil
}

// Scroll implements vectorindex.Index.
func (c *Client) Scroll(ctx context.Context, filter vectorindex.Filter) ([]types.ToolRecord, error) {
	var out []types.ToolRecord
	var offset *pb.PointId

	for {
		req := &pb.ScrollPoints{
			CollectionName: c.cfg.Collection,
			Filter:         buildFilter(filter),
			Limit:          ptrUint32(256),
			WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
			Offset:         offset,
		}

		resp, err := c.points.Scroll(c.withAuth(ctx), req)
		if err != nil {
			return nil, types.WrapError(types.ErrStorageError, "scrolling qdrant", err)
		}

		for _, point := range resp.Result {
			record, err := fromPayload(point.Payload)
			if err != nil {
				continue
			}
			out = append(out, record)
		}

		if resp.NextPageOffset == nil {
			break
		}
		offset = resp.NextPageOffset
	}

	return out, nil
}

// DeleteByServer implements vectorindex.Index.
func (c *Client) DeleteByServer(ctx context.Context, serverName string, toolNames []string) error {
	if len(toolNames) == 0 {
		return nil
	}

	ids := make([]*pb.PointId, 0, len(toolNames))
	for _, name := range toolNames {
		ids = append(ids, &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: types.ToolID(serverName, name)}})
	}

	_, err := c.points.Delete(c.withAuth(ctx), &pb.DeletePoints{
		CollectionName: c.cfg.Collection,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Points{
				Points: &pb.PointsIdsList{Ids: ids},
			},
		},
	})
	if err != nil {
		return types.WrapError(types.ErrStorageError, fmt.Sprintf("deleting stale records for %s", serverName), err)
	}
	return nil
}

// Close implements vectorindex.Index.
func (c *Client) Close() error {
	return c.conn.Close()
}

func buildFilter(filter vectorindex.Filter) *pb.Filter {
	var conditions []*pb.Condition

	if filter.ServerName != "" {
		conditions = append(conditions, &pb.Condition{
			ConditionOneOf: &pb.Condition_Field{
				Field: &pb.FieldCondition{
					Key:   "server_name",
					Match: &pb.Match{MatchValue: &pb.Match_Keyword{Keyword: filter.ServerName}},
				},
			},
		})
	}

	if filter.Blocked != nil {
		conditions = append(conditions, &pb.Condition{
			ConditionOneOf: &pb.Condition_Field{
				Field: &pb.FieldCondition{
					Key:   "blocked",
					Match: &pb.Match{MatchValue: &pb.Match_Boolean{Boolean: *filter.Blocked}},
				},
			},
		})
	}

	if len(conditions) == 0 {
		return nil
	}
	return &pb.Filter{Must: conditions}
}

// toPayload and fromPayload round-trip a ToolRecord through Qdrant's
// payload map. input_schema is opaque JSON, so it's stored as a string
// rather than decoded into a struct value.
func toPayload(record types.ToolRecord) (map[string]*pb.Value, error) {
	return map[string]*pb.Value{
		"server_name":           {Kind: &pb.Value_StringValue{StringValue: record.ServerName}},
		"tool_name":             {Kind: &pb.Value_StringValue{StringValue: record.ToolName}},
		"original_description":  {Kind: &pb.Value_StringValue{StringValue: record.OriginalDescription}},
		"enriched_description":  {Kind: &pb.Value_StringValue{StringValue: record.EnrichedDescription}},
		"input_schema":          {Kind: &pb.Value_StringValue{StringValue: string(record.InputSchema)}},
		"blocked":               {Kind: &pb.Value_BoolValue{BoolValue: record.Blocked}},
	}, nil
}

func fromPayload(payload map[string]*pb.Value) (types.ToolRecord, error) {
	get := func(key string) string {
		if v, ok := payload[key]; ok {
			return v.GetStringValue()
		}
		return ""
	}

	record := types.ToolRecord{
		ServerName:          get("server_name"),
		ToolName:             get("tool_name"),
		OriginalDescription:  get("original_description"),
		EnrichedDescription:  get("enriched_description"),
		InputSchema:          []byte(get("input_schema")),
	}
	if v, ok := payload["blocked"]; ok {
		record.Blocked = v.GetBoolValue()
	}
	if record.ServerName == "" || record.ToolName == "" {
		return record, fmt.Errorf("payload missing server_name/tool_name")
	}
	return record, nil
}

func pointIDString(id *pb.PointId) string {
	if id == nil {
		return ""
	}
	switch v := id.PointIdOptions.(type) {
	case *pb.PointId_Uuid:
		return v.Uuid
	case *pb.PointId_Num:
		return fmt.Sprintf("%d", v.Num)
	default:
		return ""
	}
}

func ptrUint32(n uint32) *uint32 { return &n }
