package storage

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"nzbwatch/internal/model"
)

var ignoreTimestamps = cmpopts.IgnoreFields(model.Source{}, "CreatedAt", "LastCheckAt")
var ignoreRuleTS = cmpopts.IgnoreFields(model.Rule{}, "CreatedAt")
var ignoreDownloadTS = cmpopts.IgnoreFields(model.Download{}, "CreatedAt")

func newTestDB(t *testing.T) *SQLite {
	t.Helper()
	s, err := NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSourceCRUD(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)

	tests := []struct {
		name string
		src  model.Source
	}{
		{
			name: "rss source",
			src: model.Source{
				ChatID:          12345,
				Name:            "indexer",
				Kind:            model.SourceRSS,
				URL:             "https://indexer.example/rss",
				IntervalMinutes: 15,
				IsActive:        true,
			},
		},
		{
			name: "inactive direct nzb source",
			src: model.Source{
				ChatID:          67890,
				Name:            "direct",
				Kind:            model.SourceNZB,
				URL:             "https://indexer.example/getnzb/abc.nzb",
				IntervalMinutes: 60,
				IsActive:        false,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := tt.src
			if err := s.CreateSource(ctx, &src); err != nil {
				t.Fatalf("create: %v", err)
			}
			if src.ID == 0 {
				t.Fatal("expected non-zero ID")
			}

			got, err := s.GetSource(ctx, src.ID)
			if err != nil {
				t.Fatalf("get: %v", err)
			}

			want := tt.src
			want.ID = src.ID
			if diff := cmp.Diff(want, *got, ignoreTimestamps); diff != "" {
				t.Errorf("GetSource mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestListSources(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)

	chatID := int64(111)
	sources := []model.Source{
		{ChatID: chatID, Name: "src A", Kind: model.SourceRSS, URL: "https://a.example/rss", IntervalMinutes: 10, IsActive: true},
		{ChatID: chatID, Name: "src B", Kind: model.SourceNZB, URL: "https://b.example/x.nzb", IntervalMinutes: 30, IsActive: false},
		{ChatID: 999, Name: "other chat", Kind: model.SourceRSS, URL: "https://c.example/rss", IntervalMinutes: 15, IsActive: true},
	}
	for i := range sources {
		if err := s.CreateSource(ctx, &sources[i]); err != nil {
			t.Fatalf("create source %d: %v", i, err)
		}
	}

	got, err := s.ListSources(ctx, chatID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 sources, got %d", len(got))
	}

	want := []model.Source{
		{ID: sources[0].ID, ChatID: chatID, Name: "src A", Kind: model.SourceRSS, URL: "https://a.example/rss", IntervalMinutes: 10, IsActive: true},
		{ID: sources[1].ID, ChatID: chatID, Name: "src B", Kind: model.SourceNZB, URL: "https://b.example/x.nzb", IntervalMinutes: 30, IsActive: false},
	}
	if diff := cmp.Diff(want, got, ignoreTimestamps); diff != "" {
		t.Errorf("ListSources mismatch (-want +got):\n%s", diff)
	}
}

func TestUpdateSource(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)

	src := model.Source{ChatID: 1, Name: "old", Kind: model.SourceRSS, URL: "https://old.example", IntervalMinutes: 10, IsActive: true}
	if err := s.CreateSource(ctx, &src); err != nil {
		t.Fatalf("create: %v", err)
	}

	now := time.Now().UTC().Truncate(time.Second)
	src.Name = "new"
	src.IntervalMinutes = 60
	src.IsActive = false
	src.LastCheckAt = &now

	if err := s.UpdateSource(ctx, &src); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, err := s.GetSource(ctx, src.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	want := model.Source{
		ID: src.ID, ChatID: 1, Name: "new", Kind: model.SourceRSS, URL: "https://old.example",
		IntervalMinutes: 60, IsActive: false,
	}
	if diff := cmp.Diff(want, *got, ignoreTimestamps); diff != "" {
		t.Errorf("UpdateSource mismatch (-want +got):\n%s", diff)
	}
	if got.LastCheckAt == nil {
		t.Fatal("expected LastCheckAt to be set")
	}
}

func TestDeleteSourceCascade(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)

	src := model.Source{ChatID: 1, Name: "s", Kind: model.SourceRSS, URL: "https://s.example", IntervalMinutes: 15, IsActive: true}
	if err := s.CreateSource(ctx, &src); err != nil {
		t.Fatalf("create source: %v", err)
	}

	r := model.Rule{SourceID: src.ID, Kind: model.RuleInclude, Scope: model.ScopeAll, Value: "test"}
	if err := s.CreateRule(ctx, &r); err != nil {
		t.Fatalf("create rule: %v", err)
	}
	if err := s.MarkSeen(ctx, src.ID, "guid-1"); err != nil {
		t.Fatalf("mark seen: %v", err)
	}
	d := model.Download{SourceID: src.ID, Title: "t", URL: "https://s.example/x.nzb"}
	if err := s.CreateDownload(ctx, &d); err != nil {
		t.Fatalf("create download: %v", err)
	}

	if err := s.DeleteSource(ctx, src.ID); err != nil {
		t.Fatalf("delete source: %v", err)
	}

	if _, err := s.GetSource(ctx, src.ID); err == nil {
		t.Fatal("expected error getting deleted source")
	}

	rules, err := s.ListRules(ctx, src.ID)
	if err != nil {
		t.Fatalf("list rules: %v", err)
	}
	if len(rules) != 0 {
		t.Errorf("expected 0 rules, got %d", len(rules))
	}

	seen, err := s.IsSeen(ctx, src.ID, "guid-1")
	if err != nil {
		t.Fatalf("is seen: %v", err)
	}
	if seen {
		t.Error("expected seen entry to be deleted")
	}

	downloads, err := s.ListDownloads(ctx, 1, 10)
	if err != nil {
		t.Fatalf("list downloads: %v", err)
	}
	if len(downloads) != 0 {
		t.Errorf("expected 0 downloads, got %d", len(downloads))
	}
}

func TestRuleCRUD(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)

	src := model.Source{ChatID: 1, Name: "s", Kind: model.SourceRSS, URL: "https://s.example", IntervalMinutes: 15, IsActive: true}
	if err := s.CreateSource(ctx, &src); err != nil {
		t.Fatalf("create source: %v", err)
	}

	tests := []struct {
		name string
		rule model.Rule
	}{
		{
			name: "include word",
			rule: model.Rule{SourceID: src.ID, Kind: model.RuleInclude, Scope: model.ScopeAll, Value: "1080p"},
		},
		{
			name: "exclude regex title only",
			rule: model.Rule{SourceID: src.ID, Kind: model.RuleExcludeRe, Scope: model.ScopeTitle, Value: "(?i)cam.?rip"},
		},
		{
			name: "max size",
			rule: model.Rule{SourceID: src.ID, Kind: model.RuleMaxSize, Scope: model.ScopeAll, Value: "8G"},
		},
		{
			name: "reject obfuscated",
			rule: model.Rule{SourceID: src.ID, Kind: model.RuleRejectObfuscated, Scope: model.ScopeAll, Value: ""},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := tt.rule
			if err := s.CreateRule(ctx, &r); err != nil {
				t.Fatalf("create: %v", err)
			}
			if r.ID == 0 {
				t.Fatal("expected non-zero ID")
			}

			got, err := s.GetRule(ctx, r.ID)
			if err != nil {
				t.Fatalf("get: %v", err)
			}

			want := tt.rule
			want.ID = r.ID
			if diff := cmp.Diff(want, *got, ignoreRuleTS); diff != "" {
				t.Errorf("GetRule mismatch (-want +got):\n%s", diff)
			}
		})
	}

	allRules, err := s.ListRules(ctx, src.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(allRules) != len(tests) {
		t.Fatalf("expected %d rules, got %d", len(tests), len(allRules))
	}

	if err := s.DeleteRule(ctx, allRules[0].ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	remaining, _ := s.ListRules(ctx, src.ID)
	if len(remaining) != len(tests)-1 {
		t.Errorf("expected %d rules after delete, got %d", len(tests)-1, len(remaining))
	}
}

func TestSeenNZBs(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)

	src := model.Source{ChatID: 1, Name: "s", Kind: model.SourceRSS, URL: "https://s.example", IntervalMinutes: 15, IsActive: true}
	if err := s.CreateSource(ctx, &src); err != nil {
		t.Fatalf("create source: %v", err)
	}

	seen, err := s.IsSeen(ctx, src.ID, "guid-1")
	if err != nil {
		t.Fatalf("is seen: %v", err)
	}
	if seen {
		t.Error("expected guid-1 to be unseen")
	}

	if err := s.MarkSeen(ctx, src.ID, "guid-1"); err != nil {
		t.Fatalf("mark seen: %v", err)
	}

	seen, err = s.IsSeen(ctx, src.ID, "guid-1")
	if err != nil {
		t.Fatalf("is seen: %v", err)
	}
	if !seen {
		t.Error("expected guid-1 to be seen after marking")
	}

	// Duplicate insert should not error.
	if err := s.MarkSeen(ctx, src.ID, "guid-1"); err != nil {
		t.Fatalf("mark seen duplicate: %v", err)
	}
}

func TestDownloads(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)

	src := model.Source{ChatID: 42, Name: "s", Kind: model.SourceRSS, URL: "https://s.example", IntervalMinutes: 15, IsActive: true}
	if err := s.CreateSource(ctx, &src); err != nil {
		t.Fatalf("create source: %v", err)
	}
	other := model.Source{ChatID: 99, Name: "o", Kind: model.SourceRSS, URL: "https://o.example", IntervalMinutes: 15, IsActive: true}
	if err := s.CreateSource(ctx, &other); err != nil {
		t.Fatalf("create other source: %v", err)
	}

	downloads := []model.Download{
		{SourceID: src.ID, Title: "first", URL: "https://s.example/1.nzb", Size: 100, FileCount: 3, MainFile: "a.mkv"},
		{SourceID: src.ID, Title: "second", URL: "https://s.example/2.nzb", Size: 200, FileCount: 1, MainFile: "b.mkv", Password: true},
		{SourceID: other.ID, Title: "other chat", URL: "https://o.example/3.nzb", Size: 300, FileCount: 2, MainFile: "c.mkv"},
	}
	for i := range downloads {
		if err := s.CreateDownload(ctx, &downloads[i]); err != nil {
			t.Fatalf("create download %d: %v", i, err)
		}
		if downloads[i].ID == 0 {
			t.Fatal("expected non-zero ID")
		}
	}

	got, err := s.ListDownloads(ctx, 42, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}

	// Newest first, scoped to the chat.
	want := []model.Download{downloads[1], downloads[0]}
	if diff := cmp.Diff(want, got, ignoreDownloadTS); diff != "" {
		t.Errorf("ListDownloads mismatch (-want +got):\n%s", diff)
	}

	limited, err := s.ListDownloads(ctx, 42, 1)
	if err != nil {
		t.Fatalf("list limited: %v", err)
	}
	if len(limited) != 1 || limited[0].Title != "second" {
		t.Fatalf("expected only the newest download, got %+v", limited)
	}
}

func TestListDueSources(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)

	past := time.Now().UTC().Add(-30 * time.Minute).Truncate(time.Second)
	recent := time.Now().UTC().Add(-2 * time.Minute).Truncate(time.Second)

	sources := []struct {
		name    string
		src     model.Source
		wantDue bool
	}{
		{
			name:    "never checked",
			src:     model.Source{ChatID: 1, Name: "A", Kind: model.SourceRSS, URL: "https://a.example", IntervalMinutes: 15, IsActive: true},
			wantDue: true,
		},
		{
			name:    "checked long ago",
			src:     model.Source{ChatID: 1, Name: "B", Kind: model.SourceRSS, URL: "https://b.example", IntervalMinutes: 15, IsActive: true, LastCheckAt: &past},
			wantDue: true,
		},
		{
			name:    "checked recently",
			src:     model.Source{ChatID: 1, Name: "C", Kind: model.SourceNZB, URL: "https://c.example", IntervalMinutes: 15, IsActive: true, LastCheckAt: &recent},
			wantDue: false,
		},
		{
			name:    "inactive",
			src:     model.Source{ChatID: 1, Name: "D", Kind: model.SourceRSS, URL: "https://d.example", IntervalMinutes: 15, IsActive: false},
			wantDue: false,
		},
	}

	for i := range sources {
		if err := s.CreateSource(ctx, &sources[i].src); err != nil {
			t.Fatalf("create: %v", err)
		}
		if sources[i].src.LastCheckAt != nil {
			if err := s.UpdateSource(ctx, &sources[i].src); err != nil {
				t.Fatalf("update: %v", err)
			}
		}
	}

	got, err := s.ListDueSources(ctx)
	if err != nil {
		t.Fatalf("list due: %v", err)
	}

	var wantIDs []int64
	for _, f := range sources {
		if f.wantDue {
			wantIDs = append(wantIDs, f.src.ID)
		}
	}

	var gotIDs []int64
	for _, f := range got {
		gotIDs = append(gotIDs, f.ID)
	}

	if diff := cmp.Diff(wantIDs, gotIDs); diff != "" {
		t.Errorf("due source IDs mismatch (-want +got):\n%s", diff)
	}
}

// Ensure the Storage interface is satisfied.
var _ Storage = (*SQLite)(nil)
