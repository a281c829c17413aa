// Package contentstore is the durable offload for large or binary tool
// results: text past the inline threshold is chunked to disk, binary
// payloads are stored verbatim, and everything is addressed later by a
// ContentRef's ref_id.
package contentstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/semantic-router/router/pkg/types"
)

const previewMaxChars = 500

// charsPerToken approximates token count as chars/4, so chunk boundaries
// land close to where an LLM-facing token estimate would predict.
const charsPerToken = 4

func estimateTokens(text string) int {
	if len(text) == 0 {
		return 0
	}
	return (len(text) + charsPerToken - 1) / charsPerToken
}

// manifest is the sidecar persisted alongside a ContentRef's chunks.
type manifest struct {
	RefID       string            `json:"ref_id"`
	Kind        types.ContentKind `json:"kind"`
	TotalChunks int               `json:"total_chunks"`
	Mime        string            `json:"mime"`
	SizeBytes   int64             `json:"size_bytes"`
	VisionDesc  string            `json:"vision_description,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	CallID      string            `json:"call_id"`
}

func (m *manifest) ref() *types.ContentRef {
	return &types.ContentRef{
		RefID:       m.RefID,
		Kind:        m.Kind,
		TotalChunks: m.TotalChunks,
		Mime:        m.Mime,
		SizeBytes:   m.SizeBytes,
		VisionDesc:  m.VisionDesc,
		CreatedAt:   m.CreatedAt,
		CallID:      m.CallID,
	}
}

// Store is the ContentStore: a UUID-addressed blob store
// rooted at a directory, one subdirectory per ref_id.
type Store struct {
	root            string
	maxResultTokens int
}

// New returns a Store rooted at root, chunking text past maxResultTokens.
func New(root string, maxResultTokens int) *Store {
	if maxResultTokens <= 0 {
		maxResultTokens = types.DefaultMaxResultTokens
	}
	return &Store{root: root, maxResultTokens: maxResultTokens}
}

func (s *Store) refDir(refID string) string {
	return filepath.Join(s.root, refID)
}

// PutText stores content, inlining it when its estimated token count is
// within the threshold. When inlined, ref is nil and preview is content
// itself; otherwise content is split into ordered chunks and ref
// describes the durable record.
func (s *Store) PutText(content, callID string) (ref *types.ContentRef, preview string, err error) {
	if estimateTokens(content) <= s.maxResultTokens {
		return nil, content, nil
	}

	chunks := chunkText(content, s.maxResultTokens*charsPerToken)
	refID := uuid.NewString()

	if err := s.writeChunks(refID, chunks, types.ContentTextChunked); err != nil {
		return nil, "", err
	}

	m := &manifest{
		RefID:       refID,
		Kind:        types.ContentTextChunked,
		TotalChunks: len(chunks),
		Mime:        "text/plain",
		SizeBytes:   int64(len(content)),
		CreatedAt:   time.Now(),
		CallID:      callID,
	}
	if err := s.writeManifest(refID, m); err != nil {
		return nil, "", err
	}

	return m.ref(), truncate(chunks[0], previewMaxChars), nil
}

// PutBinary stores a single blob verbatim; total_chunks is always 1.
func (s *Store) PutBinary(data []byte, mime string, kind types.ContentKind, callID string) (*types.ContentRef, error) {
	refID := uuid.NewString()

	if err := s.writeChunks(refID, [][]byte{data}, kind); err != nil {
		return nil, err
	}

	m := &manifest{
		RefID:       refID,
		Kind:        kind,
		TotalChunks: 1,
		Mime:        mime,
		SizeBytes:   int64(len(data)),
		CreatedAt:   time.Now(),
		CallID:      callID,
	}
	if err := s.writeManifest(refID, m); err != nil {
		return nil, err
	}

	return m.ref(), nil
}

// SetVisionDescription rewrites the manifest for refID to carry a Vision
// description, produced after PutBinary for an IMAGE ref when
// DESCRIBE_IMAGES is enabled.
func (s *Store) SetVisionDescription(refID, description string) error {
	m, err := s.readManifest(refID)
	if err != nil {
		return err
	}
	m.VisionDesc = description
	return s.writeManifest(refID, m)
}

// Get returns the bytes of chunk chunkIndex (0-based) for refID, plus its
// manifest as a ContentRef.
func (s *Store) Get(refID string, chunkIndex int) ([]byte, *types.ContentRef, error) {
	m, err := s.readManifest(refID)
	if err != nil {
		return nil, nil, err
	}
	if chunkIndex < 0 || chunkIndex >= m.TotalChunks {
		return nil, nil, types.NewError(types.ErrStorageError, fmt.Sprintf("OUT_OF_RANGE: chunk %d of %d for ref %s", chunkIndex, m.TotalChunks, refID))
	}

	path := filepath.Join(s.refDir(refID), chunkFileName(chunkIndex, m.Kind))
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, types.WrapError(types.ErrStorageError, fmt.Sprintf("reading chunk %d of ref %s", chunkIndex, refID), err)
	}

	return data, m.ref(), nil
}

func chunkFileName(index int, kind types.ContentKind) string {
	if kind == types.ContentTextChunked {
		return fmt.Sprintf("chunk_%d.txt", index)
	}
	return fmt.Sprintf("chunk_%d.bin", index)
}

// writeChunks writes len(chunks) chunk files atomically: it builds the
// whole ref directory in a temp location, then renames it into place so
// readers never observe a partial chunk set.
func (s *Store) writeChunks(refID string, chunks [][]byte, kind types.ContentKind) error {
	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return types.WrapError(types.ErrStorageError, "creating content store root", err)
	}

	tmpDir, err := os.MkdirTemp(s.root, "tmp-"+refID+"-")
	if err != nil {
		return types.WrapError(types.ErrStorageError, "creating temp dir", err)
	}
	defer os.RemoveAll(tmpDir)

	for i, chunk := range chunks {
		name := chunkFileName(i, kind)
		if err := os.WriteFile(filepath.Join(tmpDir, name), chunk, 0o644); err != nil {
			return types.WrapError(types.ErrStorageError, fmt.Sprintf("writing chunk %d", i), err)
		}
	}

	dest := s.refDir(refID)
	if err := os.Rename(tmpDir, dest); err != nil {
		return types.WrapError(types.ErrStorageError, "publishing ref directory", err)
	}
	return nil
}

func (s *Store) writeManifest(refID string, m *manifest) error {
	data, err := json.Marshal(m)
	if err != nil {
		return types.WrapError(types.ErrStorageError, "marshaling manifest", err)
	}
	path := filepath.Join(s.refDir(refID), "manifest.json")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return types.WrapError(types.ErrStorageError, "writing manifest", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return types.WrapError(types.ErrStorageError, "publishing manifest", err)
	}
	return nil
}

func (s *Store) readManifest(refID string) (*manifest, error) {
	path := filepath.Join(s.refDir(refID), "manifest.json")
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, types.NewError(types.ErrStorageError, fmt.Sprintf("NOT_FOUND: ref %s", refID))
	}
	if err != nil {
		return nil, types.WrapError(types.ErrStorageError, fmt.Sprintf("reading manifest for ref %s", refID), err)
	}
	var m manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, types.WrapError(types.ErrStorageError, fmt.Sprintf("parsing manifest for ref %s", refID), err)
	}
	return &m, nil
}

// chunkText splits content into ordered pieces no larger than maxChars,
// preferring to break on paragraph/line boundaries.
func chunkText(content string, maxChars int) [][]byte {
	if maxChars <= 0 {
		maxChars = 1
	}
	var chunks [][]byte
	remaining := content
	for len(remaining) > 0 {
		if len(remaining) <= maxChars {
			chunks = append(chunks, []byte(remaining))
			break
		}
		cut := maxChars
		if idx := lastNewline(remaining[:maxChars]); idx > maxChars/2 {
			cut = idx
		}
		chunks = append(chunks, []byte(remaining[:cut]))
		remaining = remaining[cut:]
	}
	return chunks
}

func lastNewline(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '\n' {
			return i + 1
		}
	}
	return -1
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
