// Package event defines the asynchronous notifications delivered to the
// presentation boundary. Every background task reports exactly one terminal
// event; the merge job additionally reports progress events.
package event

// Event is implemented by all notification types.
type Event interface {
	event()
}

// ThumbnailReady reports a successfully rendered first-page thumbnail.
type ThumbnailReady struct {
	Path string
	PNG  []byte
}

// ThumbnailFailed reports that thumbnail rendering failed for a document.
type ThumbnailFailed struct {
	Path    string
	Message string
}

// PagesReady reports measured document metadata. PageCount is 0 when the
// document structure could not be parsed but the file itself was readable.
type PagesReady struct {
	Path      string
	PageCount int
	FileSize  int64
}

// MergeProgress reports merge completion as an integer percentage.
type MergeProgress struct {
	Percent int
}

// MergeDone reports a successful merge and the destination path.
type MergeDone struct {
	OutputPath string
}

// MergeFailed reports a failed merge with the offending source, if any.
type MergeFailed struct {
	Message string
}

func (ThumbnailReady) event()  {}
func (ThumbnailFailed) event() {}
func (PagesReady) event()      {}
func (MergeProgress) event()   {}
func (MergeDone) event()       {}
func (MergeFailed) event()     {}
