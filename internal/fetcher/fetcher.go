// Package fetcher handles downloading indexer feeds and NZB documents.
package fetcher

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"nzbwatch/internal/nzb"
)

// DefaultMaxNZBSize caps how much of an NZB response is read. Real
// manifests run from a few KB to a few MB; anything bigger is junk.
const DefaultMaxNZBSize = 25 << 20

const userAgent = "nzbwatch/1.0"

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// FeedItem represents a single indexer feed entry carrying an NZB
// link.
type FeedItem struct {
	Title string
	Link  string
	GUID  string
}

// Fetcher downloads indexer feeds and NZB documents.
type Fetcher struct {
	client     HTTPClient
	timeout    time.Duration
	maxNZBSize int64
}

// New creates a Fetcher with the given HTTP client.
func New(client HTTPClient) *Fetcher {
	return &Fetcher{
		client:     client,
		timeout:    30 * time.Second,
		maxNZBSize: DefaultMaxNZBSize,
	}
}

// SetMaxNZBSize overrides the NZB download size cap.
func (f *Fetcher) SetMaxNZBSize(n int64) {
	if n > 0 {
		f.maxNZBSize = n
	}
}

// FetchFeed downloads and parses an indexer RSS feed from the given
// URL.
func (f *Fetcher) FetchFeed(ctx context.Context, url string) (*gofeed.Feed, error) {
	body, err := f.get(ctx, url, 5<<20)
	if err != nil {
		return nil, err
	}

	feed, err := gofeed.NewParser().ParseString(string(body))
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}
	return feed, nil
}

// FetchNZB downloads and parses an NZB document from the given URL.
// Gzip-compressed responses are detected by magic bytes and unpacked
// transparently.
func (f *Fetcher) FetchNZB(ctx context.Context, url string) (*nzb.Document, error) {
	body, err := f.get(ctx, url, f.maxNZBSize)
	if err != nil {
		return nil, err
	}

	doc, err := parseMaybeGzipped(body)
	if err != nil {
		return nil, fmt.Errorf("parse nzb from %s: %w", url, err)
	}
	return doc, nil
}

// ReadNZB parses an NZB document from a local file, unpacking gzip
// when the content calls for it.
func ReadNZB(path string) (*nzb.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read nzb: %w", err)
	}
	doc, err := parseMaybeGzipped(data)
	if err != nil {
		return nil, fmt.Errorf("parse nzb %s: %w", path, err)
	}
	return doc, nil
}

func (f *Fetcher) get(ctx context.Context, url string, limit int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

func parseMaybeGzipped(data []byte) (*nzb.Document, error) {
	r := io.Reader(bytes.NewReader(data))
	if len(data) >= 2 && data[0] == 0x1f && data[1] == 0x8b {
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("gunzip: %w", err)
		}
		defer func() { _ = gz.Close() }()
		r = gz
	}
	return nzb.Parse(r)
}

// ItemGUID returns the GUID for a feed item. If the item has no GUID,
// a SHA-256 hash of title+link is used.
func ItemGUID(item *gofeed.Item) string {
	if item.GUID != "" {
		return item.GUID
	}
	h := sha256.Sum256([]byte(item.Title + "|" + item.Link))
	return fmt.Sprintf("sha256:%x", h[:16])
}

// NZBItems extracts the feed entries that carry a usable NZB link, in
// feed order.
func NZBItems(feed *gofeed.Feed) []FeedItem {
	var out []FeedItem
	for _, item := range feed.Items {
		link := nzbLink(item)
		if link == "" {
			continue
		}
		out = append(out, FeedItem{
			Title: item.Title,
			Link:  link,
			GUID:  ItemGUID(item),
		})
	}
	return out
}

// nzbLink picks the item's NZB download URL: an enclosure with the
// NZB mime type wins, then the plain item link.
func nzbLink(item *gofeed.Item) string {
	for _, enc := range item.Enclosures {
		if strings.EqualFold(enc.Type, "application/x-nzb") && enc.URL != "" {
			return enc.URL
		}
	}
	return strings.TrimSpace(item.Link)
}
