package chunker

// Kind classifies the structural role of a unit.
type Kind string

const (
	KindHeading   Kind = "heading"
	KindParagraph Kind = "paragraph"
	KindListItem  Kind = "list_item"
	KindTableLike Kind = "table_like"
)

// TextBlock is a raw extracted fragment from a document page. Blocks arrive
// from the extraction layer with a document-wide monotonic Order.
type TextBlock struct {
	Text   string
	Page   int // 1-based page number
	Order  int
	BBox   *[4]float64 // optional layout bounding box, when the source has one
	Source string      // "pdf", "pdftotext", "docx", "txt", ...
}

// Unit is a classified segment between raw extraction and final chunks.
// SectionPath is the heading stack at the unit's position, snapshotted at
// creation time.
type Unit struct {
	Text        string
	Kind        Kind
	PageStart   int
	PageEnd     int
	Order       int
	SectionPath []string
}

// ChunkResult is a final chunk ready for storage and indexing. ChunkIndex is
// assigned as a dense 0..N-1 sequence after the whole pipeline completes.
type ChunkResult struct {
	ChunkIndex  int
	Text        string
	PageStart   int
	PageEnd     int
	SectionPath []string
}
