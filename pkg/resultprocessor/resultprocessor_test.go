package resultprocessor

import (
	"context"
	"encoding/base64"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/semantic-router/router/pkg/contentstore"
	"github.com/semantic-router/router/pkg/types"
)

type fakeVision struct {
	description string
	calls       int
}

func (f *fakeVision) DescribeImage(ctx context.Context, data []byte, mime string) (string, error) {
	f.calls++
	return f.description, nil
}

func TestProcess_InlinesSmallText(t *testing.T) {
	store := contentstore.New(t.TempDir(), 5000)
	p := New(store, nil)

	env, err := p.Process(context.Background(), []mcp.Content{mcp.TextContent{Type: "text", Text: "short result"}})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(env.Parts) != 1 || env.Parts[0].Kind != types.PartInlineText {
		t.Fatalf("expected one inline_text part, got %+v", env.Parts)
	}
	if env.Parts[0].Text != "short result" {
		t.Errorf("Text = %q", env.Parts[0].Text)
	}
}

func TestProcess_ChunksLargeText(t *testing.T) {
	store := contentstore.New(t.TempDir(), 10)
	p := New(store, nil)

	big := strings.Repeat("word ", 200)
	env, err := p.Process(context.Background(), []mcp.Content{mcp.TextContent{Type: "text", Text: big}})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(env.Parts) != 1 || env.Parts[0].Kind != types.PartContentRefPreview {
		t.Fatalf("expected one content_ref_preview part, got %+v", env.Parts)
	}
	if env.Parts[0].TotalChunks < 2 {
		t.Errorf("expected multiple chunks, got %d", env.Parts[0].TotalChunks)
	}
}

func TestProcess_ImageUsesVisionDescription(t *testing.T) {
	store := contentstore.New(t.TempDir(), 5000)
	vision := &fakeVision{description: "a red square"}
	p := New(store, vision)

	data := base64.StdEncoding.EncodeToString([]byte{0xFF, 0xD8, 0xFF})
	env, err := p.Process(context.Background(), []mcp.Content{
		mcp.ImageContent{Type: "image", Data: data, MIMEType: "image/jpeg"},
	})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(env.Parts) != 1 {
		t.Fatalf("expected 1 part, got %d", len(env.Parts))
	}
	if env.Parts[0].Preview != "a red square" {
		t.Errorf("Preview = %q", env.Parts[0].Preview)
	}
	if vision.calls != 1 {
		t.Errorf("expected 1 vision call, got %d", vision.calls)
	}
}

func TestProcess_PreservesPartOrderAndSharesCallID(t *testing.T) {
	store := contentstore.New(t.TempDir(), 5000)
	p := New(store, nil)

	env, err := p.Process(context.Background(), []mcp.Content{
		mcp.TextContent{Type: "text", Text: "first"},
		mcp.TextContent{Type: "text", Text: "second"},
	})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(env.Parts) != 2 {
		t.Fatalf("expected 2 parts, got %d", len(env.Parts))
	}
	if env.Parts[0].Text != "first" || env.Parts[1].Text != "second" {
		t.Errorf("parts out of order: %+v", env.Parts)
	}
}

func TestProcess_EmptyContent(t *testing.T) {
	store := contentstore.New(t.TempDir(), 5000)
	p := New(store, nil)

	env, err := p.Process(context.Background(), nil)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(env.Parts) != 0 {
		t.Errorf("expected no parts, got %d", len(env.Parts))
	}
}
