// Package resultprocessor turns the raw content parts returned by a
// tools/call into the bounded-size ResultEnvelope the router hands back:
// small text stays inline, everything else (long text, images, audio,
// other binary) is offloaded to the content store and replaced by a
// preview.
package resultprocessor

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/semantic-router/router/pkg/contentstore"
	"github.com/semantic-router/router/pkg/embedding"
	"github.com/semantic-router/router/pkg/types"
)

// Processor converts mcpclient.CallResult content into a ResultEnvelope.
type Processor struct {
	store  *contentstore.Store
	vision embedding.Vision // optional: nil disables image captioning
}

// New builds a Processor. vision may be nil, in which case image parts
// are stored without a vision_description.
func New(store *contentstore.Store, vision embedding.Vision) *Processor {
	return &Processor{store: store, vision: vision}
}

// Process converts content parts, in order, into a ResultEnvelope. All
// content_ref parts produced from one call share callID, so get_content
// requests issued right after execute_tool can be correlated back to it.
func (p *Processor) Process(ctx context.Context, content []mcp.Content) (*types.ResultEnvelope, error) {
	if len(content) == 0 {
		return &types.ResultEnvelope{}, nil
	}

	callID := uuid.NewString()
	env := &types.ResultEnvelope{Parts: make([]types.ResultPart, 0, len(content))}

	for _, c := range content {
		part, err := p.processOne(ctx, c, callID)
		if err != nil {
			return nil, err
		}
		env.Parts = append(env.Parts, part)
	}
	return env, nil
}

func (p *Processor) processOne(ctx context.Context, c mcp.Content, callID string) (types.ResultPart, error) {
	switch v := c.(type) {
	case mcp.TextContent:
		return p.processText(v.Text, callID)
	case mcp.ImageContent:
		return p.processBinary(ctx, mustDecodeBase64(v.Data), v.MIMEType, types.ContentImage, callID)
	case mcp.AudioContent:
		return p.processBinary(ctx, mustDecodeBase64(v.Data), v.MIMEType, types.ContentAudio, callID)
	case mcp.EmbeddedResource:
		return p.processEmbeddedResource(v, callID)
	default:
		return types.ResultPart{}, types.NewError(types.ErrProtocolError, fmt.Sprintf("unsupported content type %T", c))
	}
}

func (p *Processor) processText(text, callID string) (types.ResultPart, error) {
	ref, preview, err := p.store.PutText(text, callID)
	if err != nil {
		return types.ResultPart{}, types.WrapError(types.ErrStorageError, "storing text result", err)
	}
	if ref == nil {
		// Inlined: small enough that the store returned no ref.
		return types.ResultPart{Kind: types.PartInlineText, Text: preview}, nil
	}
	return types.ResultPart{
		Kind:        types.PartContentRefPreview,
		RefID:       ref.RefID,
		RefKind:     ref.Kind,
		Preview:     preview,
		TotalChunks: ref.TotalChunks,
		Mime:        ref.Mime,
	}, nil
}

func (p *Processor) processBinary(ctx context.Context, data []byte, mime string, kind types.ContentKind, callID string) (types.ResultPart, error) {
	ref, err := p.store.PutBinary(data, mime, kind, callID)
	if err != nil {
		return types.ResultPart{}, types.WrapError(types.ErrStorageError, "storing binary result", err)
	}

	preview := ""
	if kind == types.ContentImage && p.vision != nil {
		desc, err := p.vision.DescribeImage(ctx, data, mime)
		if err == nil {
			preview = desc
			_ = p.store.SetVisionDescription(ref.RefID, desc)
		}
	}

	return types.ResultPart{
		Kind:        types.PartContentRefPreview,
		RefID:       ref.RefID,
		RefKind:     ref.Kind,
		Preview:     preview,
		TotalChunks: ref.TotalChunks,
		Mime:        ref.Mime,
	}, nil
}

func (p *Processor) processEmbeddedResource(res mcp.EmbeddedResource, callID string) (types.ResultPart, error) {
	switch r := res.Resource.(type) {
	case mcp.TextResourceContents:
		return p.processText(r.Text, callID)
	case mcp.BlobResourceContents:
		data := mustDecodeBase64(r.Blob)
		ref, err := p.store.PutBinary(data, r.MIMEType, types.ContentBinary, callID)
		if err != nil {
			return types.ResultPart{}, types.WrapError(types.ErrStorageError, "storing embedded resource", err)
		}
		return types.ResultPart{
			Kind:        types.PartContentRefPreview,
			RefID:       ref.RefID,
			RefKind:     ref.Kind,
			TotalChunks: ref.TotalChunks,
			Mime:        ref.Mime,
		}, nil
	default:
		return types.ResultPart{}, types.NewError(types.ErrProtocolError, fmt.Sprintf("unsupported embedded resource type %T", res.Resource))
	}
}

// mustDecodeBase64 decodes MCP's base64-encoded binary content fields,
// falling back to the raw bytes of the string if it isn't valid base64
// (some servers have been seen sending raw bytes despite the spec).
func mustDecodeBase64(s string) []byte {
	if decoded, err := base64.StdEncoding.DecodeString(s); err == nil {
		return decoded
	}
	return []byte(s)
}
