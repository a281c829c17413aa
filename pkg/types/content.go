package types

import "time"

// ContentKind classifies a ContentRef's payload.
type ContentKind string

const (
	ContentTextChunked ContentKind = "TEXT_CHUNKED"
	ContentImage       ContentKind = "IMAGE"
	ContentAudio       ContentKind = "AUDIO"
	ContentBinary      ContentKind = "BINARY"
)

// ContentRef is the durable record for one offloaded payload. It is
// immutable once published: readers see either every chunk or no ref at
// all, never a partial set.
type ContentRef struct {
	RefID        string
	Kind         ContentKind
	TotalChunks  int
	Mime         string
	SizeBytes    int64
	VisionDesc   string // set for IMAGE when DESCRIBE_IMAGES is enabled
	CreatedAt    time.Time

	// CallID is the call_id shared by every ContentRef produced within
	// one ResultProcessor invocation, recorded on the manifest for
	// debugging correlated offloads.
	CallID string
}
