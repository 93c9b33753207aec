package nzb

import (
	"regexp"
	"strings"
)

// rar volumes: .rar plus the split-volume suffixes .r01, .s01 and so
// on used by old-style multi-part archives.
var rarNameRe = regexp.MustCompile(`(?i)(\.rar|\.r\d\d|\.s\d\d|\.t\d\d|\.u\d\d|\.v\d\d)$`)

const par2Extension = "par2"

// Size returns the declared byte size of the file, summed over its
// segments.
func (f *File) Size() int64 {
	var total int64
	for _, s := range f.Segments {
		total += s.Bytes
	}
	return total
}

// Name returns the display name recovered from the subject line, or ""
// when no heuristic matched.
func (f *File) Name() string {
	return extractName(f.Subject)
}

// Stem returns the recovered name without its extension.
func (f *File) Stem() string {
	stem, _ := splitExt(f.Name())
	return stem
}

// Extension returns the recovered name's extension without the dot, or
// "" when the name has none or could not be recovered.
func (f *File) Extension() string {
	_, ext := splitExt(f.Name())
	return ext
}

// HasExtension reports whether the file has the given extension. A
// leading dot on ext and letter case are ignored.
func (f *File) HasExtension(ext string) bool {
	ext = strings.TrimSpace(strings.TrimPrefix(ext, "."))
	own := f.Extension()
	return own != "" && ext != "" && strings.EqualFold(own, ext)
}

// IsPar2 reports whether the file is a par2 repair file.
func (f *File) IsPar2() bool {
	return f.HasExtension(par2Extension)
}

// IsRar reports whether the file is a rar archive volume.
func (f *File) IsRar() bool {
	name := f.Name()
	return name != "" && rarNameRe.MatchString(name)
}

// IsObfuscated reports whether the file name looks machine generated.
// A file whose name could not be recovered at all counts as
// obfuscated.
func (f *File) IsObfuscated() bool {
	if f.Name() == "" {
		return true
	}
	return isProbablyObfuscated(f.Stem())
}

// displayIdentity is the sort key for document ordering: the recovered
// name when extraction succeeded, otherwise the raw subject.
func (f *File) displayIdentity() string {
	if name := f.Name(); name != "" {
		return name
	}
	return f.Subject
}
