package types

// PartKind distinguishes the two kinds of ResultEnvelope parts.
type PartKind string

const (
	PartInlineText        PartKind = "inline_text"
	PartContentRefPreview PartKind = "content_ref_preview"
)

// ResultPart is one entry of a ResultEnvelope. For PartInlineText only
// Text is set; for PartContentRefPreview, RefID/Kind/Preview/TotalChunks/
// Mime are set and Text is empty.
type ResultPart struct {
	Kind PartKind

	// Set when Kind == PartInlineText.
	Text string

	// Set when Kind == PartContentRefPreview.
	RefID       string
	RefKind     ContentKind
	Preview     string
	TotalChunks int
	Mime        string
}

// ResultEnvelope is what tool execution returns to the calling model: an
// ordered list of parts preserving the upstream part order.
type ResultEnvelope struct {
	Parts []ResultPart
}

// InlineText builds a single-part envelope carrying plain text — used
// both for successful short results and for RouterError propagation
// ("ERROR:<kind>: <message>" per the error-handling contract).
func InlineText(text string) *ResultEnvelope {
	return &ResultEnvelope{Parts: []ResultPart{{Kind: PartInlineText, Text: text}}}
}
