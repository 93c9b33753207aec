// Package nzb parses NZB documents — the XML manifests describing
// multi-part Usenet posts — into validated, immutable domain values.
//
// Parsing is a single fail-fast pass: the result is either a fully
// valid Document or a typed error, never a partial document. Filenames
// carry no dedicated field in the format, so they are recovered
// heuristically from each file's free-text subject line; a failed
// recovery is a valid outcome, not an error.
package nzb

import (
	"time"

	"nzbwatch/internal/natsort"
)

// Meta holds the optional creator-defined metadata of a document.
// Title and Category keep the first occurrence when repeated;
// passwords and tags may repeat and keep document order.
type Meta struct {
	Title     string   `json:"title,omitempty"`
	Passwords []string `json:"passwords,omitempty"`
	Tags      []string `json:"tags,omitempty"`
	Category  string   `json:"category,omitempty"`
}

// Segment is one posted article of a file.
type Segment struct {
	MessageID string `json:"message_id"`
	Bytes     int64  `json:"bytes"`
	Number    int    `json:"number"`
}

// File is one logical file of the post. Groups are unique and sorted,
// segments unique by number and sorted ascending; both are normalized
// at construction, not views. Values are never mutated after parsing.
type File struct {
	Poster   string    `json:"poster"`
	PostedAt time.Time `json:"posted_at"`
	Subject  string    `json:"subject"`
	Groups   []string  `json:"groups"`
	Segments []Segment `json:"segments"`
}

// Document is a parsed and validated NZB. Files are sorted in natural
// order of their display identity. Meta is nil when the document had
// no head block, and non-nil (possibly zero) when it had one.
type Document struct {
	Meta  *Meta  `json:"meta,omitempty"`
	Files []File `json:"files"`
}

// Size returns the total declared byte size of all files.
func (d *Document) Size() int64 {
	var total int64
	for i := range d.Files {
		total += d.Files[i].Size()
	}
	return total
}

// MainFile returns the primary payload: the first file in natural
// order that is not a par2 repair file. The parser guarantees at least
// one such file exists.
func (d *Document) MainFile() *File {
	for i := range d.Files {
		if !d.Files[i].IsPar2() {
			return &d.Files[i]
		}
	}
	return nil
}

// Par2Files returns the repair files, in document order.
func (d *Document) Par2Files() []File {
	var out []File
	for _, f := range d.Files {
		if f.IsPar2() {
			out = append(out, f)
		}
	}
	return out
}

// Par2Size returns the total declared byte size of the repair files.
func (d *Document) Par2Size() int64 {
	var total int64
	for i := range d.Files {
		if d.Files[i].IsPar2() {
			total += d.Files[i].Size()
		}
	}
	return total
}

// Par2Percentage returns the share of the total size taken up by
// repair files, in percent.
func (d *Document) Par2Percentage() float64 {
	total := d.Size()
	if total == 0 {
		return 0
	}
	return float64(d.Par2Size()) / float64(total) * 100
}

// HasExtension reports whether any file has the given extension. A
// leading dot and letter case are ignored.
func (d *Document) HasExtension(ext string) bool {
	for i := range d.Files {
		if d.Files[i].HasExtension(ext) {
			return true
		}
	}
	return false
}

// HasPar2 reports whether the document carries any repair files.
func (d *Document) HasPar2() bool {
	for i := range d.Files {
		if d.Files[i].IsPar2() {
			return true
		}
	}
	return false
}

// HasRar reports whether any file is a rar archive volume.
func (d *Document) HasRar() bool {
	for i := range d.Files {
		if d.Files[i].IsRar() {
			return true
		}
	}
	return false
}

// IsRar reports whether every file is a rar archive volume.
func (d *Document) IsRar() bool {
	for i := range d.Files {
		if !d.Files[i].IsRar() {
			return false
		}
	}
	return len(d.Files) > 0
}

// IsObfuscated reports whether any file name looks machine generated.
func (d *Document) IsObfuscated() bool {
	for i := range d.Files {
		if d.Files[i].IsObfuscated() {
			return true
		}
	}
	return false
}

// Filenames returns the unique extracted file names, naturally sorted.
// Files whose name could not be recovered are omitted.
func (d *Document) Filenames() []string {
	return collectUnique(d.Files, func(f *File) string { return f.Name() })
}

// Posters returns the unique poster strings, naturally sorted.
func (d *Document) Posters() []string {
	return collectUnique(d.Files, func(f *File) string { return f.Poster })
}

// Groups returns the unique newsgroup names across all files,
// naturally sorted.
func (d *Document) Groups() []string {
	seen := make(map[string]struct{})
	var out []string
	for i := range d.Files {
		for _, g := range d.Files[i].Groups {
			if _, ok := seen[g]; !ok {
				seen[g] = struct{}{}
				out = append(out, g)
			}
		}
	}
	natsort.Sort(out)
	return out
}

func collectUnique(files []File, key func(*File) string) []string {
	seen := make(map[string]struct{})
	var out []string
	for i := range files {
		v := key(&files[i])
		if v == "" {
			continue
		}
		if _, ok := seen[v]; !ok {
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	natsort.Sort(out)
	return out
}
