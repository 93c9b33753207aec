package nzb

import (
	"cmp"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"time"

	xpp "github.com/mmcdole/goxpp"
	"golang.org/x/net/html/charset"

	"nzbwatch/internal/natsort"
)

// Parse reads an NZB document and returns it validated, or the first
// structural error encountered. The stream may be in any encoding the
// XML declaration names; declarations and DOCTYPEs are tolerated.
func Parse(r io.Reader) (*Document, error) {
	p := xpp.NewXMLPullParser(r, false, charset.NewReaderLabel)

	if err := findRoot(p); err != nil {
		return nil, err
	}

	var meta *Meta
	var files []File

	for {
		tok, err := p.NextTag()
		if err != nil {
			return nil, &DocumentError{Reason: "malformed document", Err: err}
		}
		if tok == xpp.EndTag {
			break
		}
		switch strings.ToLower(p.Name) {
		case "head":
			m, err := parseHead(p)
			if err != nil {
				return nil, err
			}
			if meta == nil {
				meta = m
			}
		case "file":
			f, err := parseFile(p, len(files))
			if err != nil {
				return nil, err
			}
			files = append(files, f)
		default:
			if err := p.Skip(); err != nil {
				return nil, &DocumentError{Reason: "malformed document", Err: err}
			}
		}
	}

	if len(files) == 0 {
		return nil, &EmptyCollectionError{Collection: "files", FileIndex: -1}
	}
	if !slices.ContainsFunc(files, func(f File) bool { return !f.IsPar2() }) {
		return nil, ErrNoRegularFile
	}

	slices.SortStableFunc(files, func(a, b File) int {
		return natsort.Compare(a.displayIdentity(), b.displayIdentity())
	})

	return &Document{Meta: meta, Files: files}, nil
}

// ParseString parses an NZB document held in memory.
func ParseString(s string) (*Document, error) {
	return Parse(strings.NewReader(s))
}

// findRoot advances to the document's root element and verifies it is
// <nzb>.
func findRoot(p *xpp.XMLPullParser) error {
	for {
		tok, err := p.Next()
		if err != nil {
			return &DocumentError{Reason: "not valid XML", Err: err}
		}
		switch tok {
		case xpp.StartTag:
			if !strings.EqualFold(p.Name, "nzb") {
				return &DocumentError{Reason: fmt.Sprintf("unexpected root element <%s>", p.Name)}
			}
			return nil
		case xpp.EndDocument:
			return &DocumentError{Reason: "document has no root element"}
		}
	}
}

// parseHead consumes a <head> block. Meta entries with unknown types
// or empty text are ignored; title and category keep the first
// occurrence.
func parseHead(p *xpp.XMLPullParser) (*Meta, error) {
	meta := &Meta{}
	for {
		tok, err := p.NextTag()
		if err != nil {
			return nil, &DocumentError{Reason: "malformed head block", Err: err}
		}
		if tok == xpp.EndTag {
			return meta, nil
		}
		if !strings.EqualFold(p.Name, "meta") {
			if err := p.Skip(); err != nil {
				return nil, &DocumentError{Reason: "malformed head block", Err: err}
			}
			continue
		}

		// The type attribute has to be read before NextText advances
		// past the start tag.
		typ := strings.ToLower(strings.TrimSpace(p.Attribute("type")))
		text, err := p.NextText()
		if err != nil {
			return nil, &DocumentError{Reason: "malformed head block", Err: err}
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}

		switch typ {
		case "title":
			if meta.Title == "" {
				meta.Title = text
			}
		case "password":
			meta.Passwords = append(meta.Passwords, text)
		case "tag":
			meta.Tags = append(meta.Tags, text)
		case "category":
			if meta.Category == "" {
				meta.Category = text
			}
		}
	}
}

// parseFile consumes one <file> element and returns it fully
// normalized: groups deduped and sorted, segments unique by number and
// sorted ascending.
func parseFile(p *xpp.XMLPullParser, index int) (File, error) {
	poster, ok := attrValue(p, "poster")
	if !ok {
		return File{}, &AttributeError{Attr: "poster", FileIndex: index, SegmentIndex: -1}
	}

	dateRaw, ok := attrValue(p, "date")
	secs, err := strconv.ParseInt(strings.TrimSpace(dateRaw), 10, 64)
	if !ok || err != nil {
		return File{}, &AttributeError{Attr: "date", FileIndex: index, SegmentIndex: -1}
	}

	// An empty subject is tolerated; name extraction simply fails
	// downstream. Only a missing attribute is a structural error.
	subject, ok := attrValue(p, "subject")
	if !ok {
		return File{}, &AttributeError{Attr: "subject", FileIndex: index, SegmentIndex: -1}
	}

	var groups []string
	var segments []Segment

	for {
		tok, err := p.NextTag()
		if err != nil {
			return File{}, &DocumentError{Reason: fmt.Sprintf("malformed file %d", index), Err: err}
		}
		if tok == xpp.EndTag {
			break
		}
		switch strings.ToLower(p.Name) {
		case "groups":
			gs, err := parseGroups(p, index)
			if err != nil {
				return File{}, err
			}
			groups = append(groups, gs...)
		case "segments":
			segs, err := parseSegments(p, index, len(segments))
			if err != nil {
				return File{}, err
			}
			segments = append(segments, segs...)
		default:
			if err := p.Skip(); err != nil {
				return File{}, &DocumentError{Reason: fmt.Sprintf("malformed file %d", index), Err: err}
			}
		}
	}

	if len(groups) == 0 {
		return File{}, &EmptyCollectionError{Collection: "groups", FileIndex: index}
	}
	if len(segments) == 0 {
		return File{}, &EmptyCollectionError{Collection: "segments", FileIndex: index}
	}

	groups = dedupeStrings(groups)
	natsort.Sort(groups)

	numbers := make(map[int]struct{}, len(segments))
	for _, s := range segments {
		if _, dup := numbers[s.Number]; dup {
			return File{}, &DuplicateSegmentError{FileIndex: index, Number: s.Number}
		}
		numbers[s.Number] = struct{}{}
	}
	slices.SortFunc(segments, func(a, b Segment) int { return cmp.Compare(a.Number, b.Number) })

	return File{
		Poster:   poster,
		PostedAt: time.Unix(secs, 0).UTC(),
		Subject:  subject,
		Groups:   groups,
		Segments: segments,
	}, nil
}

func parseGroups(p *xpp.XMLPullParser, fileIndex int) ([]string, error) {
	var groups []string
	for {
		tok, err := p.NextTag()
		if err != nil {
			return nil, &DocumentError{Reason: fmt.Sprintf("malformed groups block in file %d", fileIndex), Err: err}
		}
		if tok == xpp.EndTag {
			return groups, nil
		}
		if !strings.EqualFold(p.Name, "group") {
			if err := p.Skip(); err != nil {
				return nil, &DocumentError{Reason: fmt.Sprintf("malformed groups block in file %d", fileIndex), Err: err}
			}
			continue
		}
		text, err := p.NextText()
		if err != nil {
			return nil, &DocumentError{Reason: fmt.Sprintf("malformed groups block in file %d", fileIndex), Err: err}
		}
		if g := strings.TrimSpace(text); g != "" {
			groups = append(groups, g)
		}
	}
}

func parseSegments(p *xpp.XMLPullParser, fileIndex, offset int) ([]Segment, error) {
	var segments []Segment
	for {
		tok, err := p.NextTag()
		if err != nil {
			return nil, &DocumentError{Reason: fmt.Sprintf("malformed segments block in file %d", fileIndex), Err: err}
		}
		if tok == xpp.EndTag {
			return segments, nil
		}
		if !strings.EqualFold(p.Name, "segment") {
			if err := p.Skip(); err != nil {
				return nil, &DocumentError{Reason: fmt.Sprintf("malformed segments block in file %d", fileIndex), Err: err}
			}
			continue
		}

		segIndex := offset + len(segments)

		bytesRaw, ok := attrValue(p, "bytes")
		size, err := strconv.ParseInt(strings.TrimSpace(bytesRaw), 10, 64)
		if !ok || err != nil || size < 0 {
			return nil, &AttributeError{Attr: "bytes", FileIndex: fileIndex, SegmentIndex: segIndex}
		}

		numRaw, ok := attrValue(p, "number")
		number, err := strconv.Atoi(strings.TrimSpace(numRaw))
		if !ok || err != nil || number < 1 {
			return nil, &AttributeError{Attr: "number", FileIndex: fileIndex, SegmentIndex: segIndex}
		}

		text, err := p.NextText()
		if err != nil {
			return nil, &DocumentError{Reason: fmt.Sprintf("malformed segments block in file %d", fileIndex), Err: err}
		}
		id := strings.TrimSpace(text)
		if id == "" {
			return nil, &AttributeError{Attr: "message-id", FileIndex: fileIndex, SegmentIndex: segIndex}
		}

		segments = append(segments, Segment{MessageID: id, Bytes: size, Number: number})
	}
}

// attrValue looks up an attribute by local name, distinguishing a
// missing attribute from one present with an empty value.
func attrValue(p *xpp.XMLPullParser, name string) (string, bool) {
	for _, a := range p.Attrs {
		if strings.EqualFold(a.Name.Local, name) {
			return a.Value, true
		}
	}
	return "", false
}

func dedupeStrings(ss []string) []string {
	seen := make(map[string]struct{}, len(ss))
	out := ss[:0]
	for _, s := range ss {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
