// Package layers defines the records that flow between the bronze, silver and gold layers
package layers

import "time"

// Layer names one of the three table layers
type Layer string

// Layer names as stored in the file ledger and used for sink routing
const (
	Bronze Layer = "bronze"
	Silver Layer = "silver"
	Gold   Layer = "gold"
)

// RawFileRecord is one captured source file. Content == nil means no binary content was
// captured for the file; an empty non-nil slice is a captured zero-length file
type RawFileRecord struct {
	Path             string
	ModificationTime time.Time
	Length           int64
	Content          []byte
}

// HasContent reports whether the capture carried a content blob
func (r RawFileRecord) HasContent() bool { return r.Content != nil }

// DecryptedRecord is the silver projection of a RawFileRecord. Text is nil iff the raw
// record had no content
type DecryptedRecord struct {
	Path string
	Text *string
}
