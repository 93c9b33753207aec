package nzb

import (
	"errors"
	"fmt"
)

// ErrNoRegularFile is returned when every file in an otherwise valid
// document is a par2 repair file. A manifest has to describe actual
// content, not just its repair data.
var ErrNoRegularFile = errors.New("nzb: document contains only par2 repair files")

// DocumentError reports input that is not a recognizable NZB document:
// unparseable XML, a missing root element, or a root element that is
// not <nzb>.
type DocumentError struct {
	Reason string
	Err    error
}

func (e *DocumentError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("nzb: %s: %v", e.Reason, e.Err)
	}
	return "nzb: " + e.Reason
}

func (e *DocumentError) Unwrap() error { return e.Err }

// AttributeError reports a required attribute that is missing, empty
// where a value is required, or not parseable as the expected type.
// FileIndex locates the offending <file> element (0-based, document
// order); SegmentIndex locates the segment within it, or is -1 for
// file-level attributes.
type AttributeError struct {
	Attr         string
	FileIndex    int
	SegmentIndex int
}

func (e *AttributeError) Error() string {
	if e.SegmentIndex >= 0 {
		return fmt.Sprintf("nzb: file %d, segment %d: missing or invalid attribute %q", e.FileIndex, e.SegmentIndex, e.Attr)
	}
	return fmt.Sprintf("nzb: file %d: missing or invalid attribute %q", e.FileIndex, e.Attr)
}

// EmptyCollectionError reports a file with no groups or no segments,
// or a document with no files. FileIndex is -1 for the document-level
// case.
type EmptyCollectionError struct {
	Collection string
	FileIndex  int
}

func (e *EmptyCollectionError) Error() string {
	if e.FileIndex < 0 {
		return fmt.Sprintf("nzb: document has no %s", e.Collection)
	}
	return fmt.Sprintf("nzb: file %d has no %s", e.FileIndex, e.Collection)
}

// DuplicateSegmentError reports two segments within one file sharing a
// segment number.
type DuplicateSegmentError struct {
	FileIndex int
	Number    int
}

func (e *DuplicateSegmentError) Error() string {
	return fmt.Sprintf("nzb: file %d: duplicate segment number %d", e.FileIndex, e.Number)
}
