package scheduler

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"nzbwatch/internal/fetcher"
	"nzbwatch/internal/model"
	"nzbwatch/internal/storage"
)

type sentMessage struct {
	ChatID int64
	Text   string
}

type mockSender struct {
	mu       sync.Mutex
	messages []sentMessage
}

func (m *mockSender) SendMessage(chatID int64, text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, sentMessage{ChatID: chatID, Text: text})
}

func (m *mockSender) getMessages() []sentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]sentMessage, len(m.messages))
	copy(cp, m.messages)
	return cp
}

// mockHTTP serves canned bodies per URL, the feed and the NZBs it
// links to.
type mockHTTP struct {
	bodies map[string][]byte
}

func (m *mockHTTP) Do(req *http.Request) (*http.Response, error) {
	body, ok := m.bodies[req.URL.String()]
	if !ok {
		return &http.Response{StatusCode: 404, Body: io.NopCloser(bytes.NewReader(nil))}, nil
	}
	return &http.Response{
		StatusCode: 200,
		Body:       io.NopCloser(bytes.NewReader(body)),
	}, nil
}

const (
	feedURL   = "https://indexer.example/rss"
	nzbURLA   = "https://indexer.example/getnzb/abc123.nzb"
	nzbURLB   = "https://indexer.example/getnzb/def456.nzb"
	feedGUIDA = "abc123"
	feedGUIDB = "def456"
)

func loadFixture(t *testing.T, path string) []byte {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read fixture %s: %v", path, err)
	}
	return data
}

// newMockHTTP serves the sample feed plus a valid NZB behind each of
// its two links, one of them gzipped.
func newMockHTTP(t *testing.T) *mockHTTP {
	t.Helper()
	return &mockHTTP{bodies: map[string][]byte{
		feedURL: loadFixture(t, "../../testdata/sample_feed.xml"),
		nzbURLA: loadFixture(t, "../../testdata/sample.nzb"),
		nzbURLB: loadFixture(t, "../../testdata/sample.nzb.gz"),
	}}
}

func newTestStore(t *testing.T) *storage.SQLite {
	t.Helper()
	s, err := storage.NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newTestScheduler(store storage.Storage, client fetcher.HTTPClient, sender Sender) *Scheduler {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(store, fetcher.New(client), sender, log)
}

func createSource(t *testing.T, store storage.Storage, src model.Source) model.Source {
	t.Helper()
	if err := store.CreateSource(context.Background(), &src); err != nil {
		t.Fatalf("create source: %v", err)
	}
	return src
}

func TestSchedulerProcessesDueSources(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	src := createSource(t, store, model.Source{
		ChatID:          100,
		Name:            "indexer",
		Kind:            model.SourceRSS,
		URL:             feedURL,
		IntervalMinutes: 15,
		IsActive:        true,
	})

	sender := &mockSender{}
	sched := newTestScheduler(store, newMockHTTP(t), sender)
	sched.checkAll(ctx)

	msgs := sender.getMessages()
	if diff := cmp.Diff(2, len(msgs)); diff != "" {
		t.Fatalf("message count mismatch (-want +got):\n%s", diff)
	}
	for _, m := range msgs {
		if m.ChatID != 100 {
			t.Errorf("chatID = %d, want 100", m.ChatID)
		}
	}

	downloads, err := store.ListDownloads(ctx, 100, 10)
	if err != nil {
		t.Fatalf("list downloads: %v", err)
	}
	if len(downloads) != 2 {
		t.Fatalf("expected 2 queued downloads, got %d", len(downloads))
	}
	// Newest first: the gzipped second item lands last, so it lists
	// first.
	if got, want := downloads[0].Title, "Sintel S01E02 1080p"; got != want {
		t.Errorf("downloads[0].Title = %q, want %q", got, want)
	}
	if got, want := downloads[0].MainFile, "Big Buck Bunny - S01E01.mkv"; got != want {
		t.Errorf("downloads[0].MainFile = %q, want %q", got, want)
	}
	if got, want := downloads[0].Size, int64(739067+739549+980+741); got != want {
		t.Errorf("downloads[0].Size = %d, want %d", got, want)
	}
	if got, want := downloads[0].FileCount, 3; got != want {
		t.Errorf("downloads[0].FileCount = %d, want %d", got, want)
	}

	for _, guid := range []string{feedGUIDA, feedGUIDB} {
		seen, err := store.IsSeen(ctx, src.ID, guid)
		if err != nil {
			t.Fatalf("is seen: %v", err)
		}
		if !seen {
			t.Errorf("expected %s to be marked seen", guid)
		}
	}
}

func TestSchedulerSkipsSeenItems(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	src := createSource(t, store, model.Source{
		ChatID: 100, Name: "indexer", Kind: model.SourceRSS, URL: feedURL,
		IntervalMinutes: 15, IsActive: true,
	})

	for _, guid := range []string{feedGUIDA, feedGUIDB} {
		if err := store.MarkSeen(ctx, src.ID, guid); err != nil {
			t.Fatalf("mark seen %s: %v", guid, err)
		}
	}

	sender := &mockSender{}
	sched := newTestScheduler(store, newMockHTTP(t), sender)
	sched.checkAll(ctx)

	if msgs := sender.getMessages(); len(msgs) != 0 {
		t.Errorf("expected no messages for seen items, got %d", len(msgs))
	}
}

func TestSchedulerRejectedByRules(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	src := createSource(t, store, model.Source{
		ChatID: 100, Name: "indexer", Kind: model.SourceRSS, URL: feedURL,
		IntervalMinutes: 15, IsActive: true,
	})

	if err := store.CreateRule(ctx, &model.Rule{
		SourceID: src.ID,
		Kind:     model.RuleInclude,
		Scope:    model.ScopeTitle,
		Value:    "bunny",
	}); err != nil {
		t.Fatalf("create rule: %v", err)
	}

	sender := &mockSender{}
	sched := newTestScheduler(store, newMockHTTP(t), sender)
	sched.checkAll(ctx)

	msgs := sender.getMessages()
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}

	// The rejected item is still marked seen so it is not refetched.
	seen, err := store.IsSeen(ctx, src.ID, feedGUIDB)
	if err != nil {
		t.Fatalf("is seen: %v", err)
	}
	if !seen {
		t.Error("expected rejected item to be marked seen")
	}
}

func TestSchedulerDirectNZBSource(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	src := createSource(t, store, model.Source{
		ChatID: 100, Name: "one shot", Kind: model.SourceNZB, URL: nzbURLA,
		IntervalMinutes: 15, IsActive: true,
	})

	sender := &mockSender{}
	sched := newTestScheduler(store, newMockHTTP(t), sender)
	sched.checkAll(ctx)

	if msgs := sender.getMessages(); len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}

	seen, err := store.IsSeen(ctx, src.ID, nzbURLA)
	if err != nil {
		t.Fatalf("is seen: %v", err)
	}
	if !seen {
		t.Error("expected direct source URL to be marked seen")
	}

	// A second pass must not requeue it.
	src.LastCheckAt = nil
	if err := store.UpdateSource(ctx, &src); err != nil {
		t.Fatalf("reset last check: %v", err)
	}
	sched.checkAll(ctx)
	if msgs := sender.getMessages(); len(msgs) != 1 {
		t.Errorf("expected no new message on second pass, got %d total", len(msgs))
	}
}

func TestSchedulerBadNZBSkipped(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	src := createSource(t, store, model.Source{
		ChatID: 100, Name: "indexer", Kind: model.SourceRSS, URL: feedURL,
		IntervalMinutes: 15, IsActive: true,
	})

	client := newMockHTTP(t)
	client.bodies[nzbURLA] = []byte("not an nzb")

	sender := &mockSender{}
	sched := newTestScheduler(store, client, sender)
	sched.checkAll(ctx)

	// Only the valid second item is queued; the broken one is skipped
	// and still marked seen so it is not refetched every tick.
	if msgs := sender.getMessages(); len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	seen, err := store.IsSeen(ctx, src.ID, feedGUIDA)
	if err != nil {
		t.Fatalf("is seen: %v", err)
	}
	if !seen {
		t.Error("expected broken item to be marked seen")
	}
}

func TestSchedulerUpdatesLastCheck(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	src := createSource(t, store, model.Source{
		ChatID: 100, Name: "indexer", Kind: model.SourceRSS, URL: feedURL,
		IntervalMinutes: 15, IsActive: true,
	})

	before := time.Now().UTC().Add(-time.Second)

	sched := newTestScheduler(store, newMockHTTP(t), &mockSender{})
	sched.checkAll(ctx)

	updated, err := store.GetSource(ctx, src.ID)
	if err != nil {
		t.Fatalf("get source: %v", err)
	}
	if updated.LastCheckAt == nil {
		t.Fatal("expected LastCheckAt to be set")
	}
	if updated.LastCheckAt.Before(before) {
		t.Errorf("LastCheckAt %v is before test start %v", updated.LastCheckAt, before)
	}
}

func TestSchedulerFetchError(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	src := createSource(t, store, model.Source{
		ChatID: 100, Name: "bad indexer", Kind: model.SourceRSS, URL: "https://bad.example/rss",
		IntervalMinutes: 15, IsActive: true,
	})

	sender := &mockSender{}
	sched := newTestScheduler(store, &mockHTTP{bodies: map[string][]byte{}}, sender)
	sched.checkAll(ctx)

	if msgs := sender.getMessages(); len(msgs) != 0 {
		t.Errorf("expected no messages on fetch error, got %d", len(msgs))
	}

	// last_check_at should still be updated even on error
	updated, err := store.GetSource(ctx, src.ID)
	if err != nil {
		t.Fatalf("get source: %v", err)
	}
	if updated.LastCheckAt == nil {
		t.Error("expected LastCheckAt to be set even after fetch error")
	}
}

func TestSchedulerCancelledContext(t *testing.T) {
	store := newTestStore(t)

	createSource(t, store, model.Source{
		ChatID: 100, Name: "indexer", Kind: model.SourceRSS, URL: feedURL,
		IntervalMinutes: 15, IsActive: true,
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sender := &mockSender{}
	sched := newTestScheduler(store, newMockHTTP(t), sender)
	sched.checkAll(ctx)

	if msgs := sender.getMessages(); len(msgs) != 0 {
		t.Errorf("expected no messages when context cancelled, got %d", len(msgs))
	}
}

func TestSchedulerRunStopsOnCancel(t *testing.T) {
	store := newTestStore(t)
	sender := &mockSender{}
	sched := newTestScheduler(store, &mockHTTP{bodies: map[string][]byte{}}, sender)
	sched.SetTickInterval(10 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		sched.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after context cancellation")
	}
}

func TestSchedulerInactiveSourceSkipped(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	createSource(t, store, model.Source{
		ChatID: 100, Name: "inactive", Kind: model.SourceRSS, URL: feedURL,
		IntervalMinutes: 15, IsActive: false,
	})

	sender := &mockSender{}
	sched := newTestScheduler(store, newMockHTTP(t), sender)
	sched.checkAll(ctx)

	if msgs := sender.getMessages(); len(msgs) != 0 {
		t.Errorf("inactive source should not produce messages, got %d", len(msgs))
	}
}
