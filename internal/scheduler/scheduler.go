package scheduler

import (
	"context"
	"log/slog"
	"time"

	"nzbwatch/internal/bot"
	"nzbwatch/internal/fetcher"
	"nzbwatch/internal/filter"
	"nzbwatch/internal/model"
	"nzbwatch/internal/storage"
)

// Sender is the interface for sending Telegram messages.
type Sender interface {
	SendMessage(chatID int64, text string)
}

// Scheduler periodically checks NZB sources and queues accepted
// downloads.
type Scheduler struct {
	store   storage.Storage
	fetcher *fetcher.Fetcher
	sender  Sender
	log     *slog.Logger
	tick    time.Duration
}

// New creates a Scheduler that polls sources with the given fetcher.
func New(store storage.Storage, f *fetcher.Fetcher, sender Sender, log *slog.Logger) *Scheduler {
	return &Scheduler{
		store:   store,
		fetcher: f,
		sender:  sender,
		log:     log,
		tick:    1 * time.Minute,
	}
}

// SetTickInterval overrides the default 1-minute check interval.
func (s *Scheduler) SetTickInterval(d time.Duration) {
	s.tick = d
}

// Run starts the scheduler loop, blocking until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	s.checkAll(ctx)

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.checkAll(ctx)
		}
	}
}

func (s *Scheduler) checkAll(ctx context.Context) {
	sources, err := s.store.ListDueSources(ctx)
	if err != nil {
		s.log.Error("list due sources", "error", err)
		return
	}

	for _, src := range sources {
		if ctx.Err() != nil {
			return
		}
		s.processSource(ctx, src)
	}
}

func (s *Scheduler) processSource(ctx context.Context, src model.Source) {
	s.log.Debug("checking source", "source_id", src.ID, "name", src.Name, "kind", src.Kind)

	var items []fetcher.FeedItem
	switch src.Kind {
	case model.SourceNZB:
		// A direct source is one fixed URL; its GUID is the URL so it
		// is only ever processed once.
		items = []fetcher.FeedItem{{Title: src.Name, Link: src.URL, GUID: src.URL}}
	default:
		feed, err := s.fetcher.FetchFeed(ctx, src.URL)
		if err != nil {
			s.log.Error("fetch feed", "source_id", src.ID, "url", src.URL, "error", err)
			s.updateLastCheck(ctx, &src)
			return
		}
		items = fetcher.NZBItems(feed)
	}

	rules, err := s.store.ListRules(ctx, src.ID)
	if err != nil {
		s.log.Error("list rules", "source_id", src.ID, "error", err)
		return
	}

	accepted := 0
	for _, item := range items {
		if ctx.Err() != nil {
			return
		}
		seen, err := s.store.IsSeen(ctx, src.ID, item.GUID)
		if err != nil {
			s.log.Error("check seen", "source_id", src.ID, "guid", item.GUID, "error", err)
			continue
		}
		if seen {
			continue
		}

		if s.processItem(ctx, src, item, rules) {
			accepted++
			// Rate limit: ~20 messages/sec max for Telegram
			time.Sleep(50 * time.Millisecond)
		}

		if err := s.store.MarkSeen(ctx, src.ID, item.GUID); err != nil {
			s.log.Error("mark seen", "source_id", src.ID, "guid", item.GUID, "error", err)
		}
	}

	if accepted > 0 {
		s.log.Info("queued downloads", "source_id", src.ID, "name", src.Name, "count", accepted)
	}

	s.updateLastCheck(ctx, &src)
}

// processItem fetches and validates one NZB and queues it when the
// source's rules accept it. Invalid documents are logged and skipped;
// the item still counts as seen so it is not refetched every tick.
func (s *Scheduler) processItem(ctx context.Context, src model.Source, item fetcher.FeedItem, rules []model.Rule) bool {
	doc, err := s.fetcher.FetchNZB(ctx, item.Link)
	if err != nil {
		s.log.Warn("fetch nzb", "source_id", src.ID, "url", item.Link, "error", err)
		return false
	}

	if !filter.Match(filter.Candidate{Title: item.Title, Document: doc}, rules) {
		s.log.Debug("rejected by rules", "source_id", src.ID, "title", item.Title)
		return false
	}

	d := model.Download{
		SourceID:  src.ID,
		Title:     item.Title,
		URL:       item.Link,
		Size:      doc.Size(),
		FileCount: len(doc.Files),
		Password:  doc.Meta != nil && len(doc.Meta.Passwords) > 0,
	}
	if main := doc.MainFile(); main != nil {
		d.MainFile = main.Name()
	}

	if err := s.store.CreateDownload(ctx, &d); err != nil {
		s.log.Error("create download", "source_id", src.ID, "title", item.Title, "error", err)
		return false
	}

	s.sender.SendMessage(src.ChatID, bot.FormatDownload(src.Name, d))
	return true
}

func (s *Scheduler) updateLastCheck(ctx context.Context, src *model.Source) {
	now := time.Now().UTC()
	src.LastCheckAt = &now
	if err := s.store.UpdateSource(ctx, src); err != nil {
		s.log.Error("update last check", "source_id", src.ID, "error", err)
	}
}
