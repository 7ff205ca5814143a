package chunk

// Chunker defaults.
const (
	DefaultChunkSize = 512
	DefaultOverlap   = 50

	// BreakLookback bounds how far back from the window end a break point is
	// searched for.
	BreakLookback = 100
)

// Separators are the preferred break points, strongest first. When none is
// found inside the lookback window the chunk is cut at the window end.
var Separators = []string{"\n\n", "\n", ". ", "! ", "? ", "; ", ", ", " "}

// Chunk is a contiguous slice of a document.
// StartChar and EndChar are byte offsets, so content[StartChar:EndChar] == Text.
type Chunk struct {
	Text      string
	StartChar int
	EndChar   int
}

// Len returns the chunk length in bytes.
func (c Chunk) Len() int {
	return c.EndChar - c.StartChar
}
