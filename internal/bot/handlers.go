package bot

import (
	"context"
	"fmt"

	"nzbwatch/internal/fetcher"
	"nzbwatch/internal/filter"
	"nzbwatch/internal/model"
)

func (b *Bot) handleStart(chatID int64) {
	b.reply(chatID, `Welcome to nzbwatch!

Watch indexer feeds and get validated NZBs queued for you.

Quick start:
1. /add <url> — watch an indexer RSS feed
2. /include <id> <word> — only accept matching posts
3. /inspect <url> — examine a single NZB

Use /help for the full command reference.`)
}

func (b *Bot) handleHelp(chatID int64) {
	b.reply(chatID, `Source management:
/add <url> [nzb] — watch an indexer feed (or one NZB URL)
/list — show all sources
/info <id> — source details
/remove <id> — delete a source
/rename <id> <name> — rename a source
/interval <id> <min> — set check interval (1-1440)
/pause <id> — pause checking
/resume <id> — resume checking
/check <id> — force check now

Rule management:
/rules <id> — show rules for a source
/include <id> [-s scope] <word> — accept matching posts
/exclude <id> [-s scope] <word> — reject matching posts
/include_re <id> [-s scope] <regex> — accept by regex
/exclude_re <id> [-s scope] <regex> — reject by regex
/minsize <id> <size> — reject posts below size (e.g. 700M)
/maxsize <id> <size> — reject posts above size (e.g. 8G)
/nopassword <id> — reject password-protected posts
/noobfuscated <id> — reject obfuscated posts
/rmrule <rule_id> — remove a rule

Other:
/queue — latest accepted downloads
/inspect <url> — fetch and summarize one NZB

Scope flag: -s title | filenames | all (default: all)`)
}

func (b *Bot) handleAdd(ctx context.Context, chatID int64, args string) {
	url, kind, err := ParseAddArgs(args)
	if err != nil {
		b.reply(chatID, "Usage: /add <url> [nzb]")
		return
	}

	name := url
	if kind == model.SourceRSS {
		feed, err := b.fetcher.FetchFeed(ctx, url)
		if err != nil {
			b.reply(chatID, fmt.Sprintf("Failed to fetch feed: %v", err))
			return
		}
		if feed.Title != "" {
			name = feed.Title
		}
	} else {
		doc, err := b.fetcher.FetchNZB(ctx, url)
		if err != nil {
			b.reply(chatID, fmt.Sprintf("Failed to fetch NZB: %v", err))
			return
		}
		if doc.Meta != nil && doc.Meta.Title != "" {
			name = doc.Meta.Title
		}
	}

	src := &model.Source{
		ChatID:          chatID,
		Name:            name,
		Kind:            kind,
		URL:             url,
		IntervalMinutes: 15,
		IsActive:        true,
	}
	if err := b.store.CreateSource(ctx, src); err != nil {
		b.reply(chatID, fmt.Sprintf("Failed to save source: %v", err))
		return
	}

	b.reply(chatID, fmt.Sprintf("Source added successfully!\n#%d %s (every %d min)\nURL: %s\nNo rules yet. Use /include, /exclude to add rules.",
		src.ID, src.Name, src.IntervalMinutes, src.URL))
}

func (b *Bot) handleList(ctx context.Context, chatID int64) {
	sources, err := b.store.ListSources(ctx, chatID)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}

	counts := make(map[int64]int)
	for _, src := range sources {
		rules, err := b.store.ListRules(ctx, src.ID)
		if err != nil {
			continue
		}
		counts[src.ID] = len(rules)
	}

	b.reply(chatID, FormatSourceList(sources, counts))
}

func (b *Bot) handleInfo(ctx context.Context, chatID int64, args string) {
	id, err := ParseIDArg(args)
	if err != nil {
		b.reply(chatID, "Usage: /info <id>")
		return
	}

	src, err := b.getOwnedSource(ctx, chatID, id)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Source #%d not found.", id))
		return
	}

	rules, _ := b.store.ListRules(ctx, src.ID)
	b.reply(chatID, FormatSourceInfo(src, rules))
}

func (b *Bot) handleRemove(ctx context.Context, chatID int64, args string) {
	id, err := ParseIDArg(args)
	if err != nil {
		b.reply(chatID, "Usage: /remove <id>")
		return
	}

	src, err := b.getOwnedSource(ctx, chatID, id)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Source #%d not found.", id))
		return
	}

	if err := b.store.DeleteSource(ctx, id); err != nil {
		b.reply(chatID, fmt.Sprintf("Error deleting source: %v", err))
		return
	}
	b.reply(chatID, fmt.Sprintf("Source #%d \"%s\" deleted.", id, src.Name))
}

func (b *Bot) handleRename(ctx context.Context, chatID int64, args string) {
	id, name, err := ParseRenameArgs(args)
	if err != nil {
		b.reply(chatID, err.Error())
		return
	}

	src, err := b.getOwnedSource(ctx, chatID, id)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Source #%d not found.", id))
		return
	}

	src.Name = name
	if err := b.store.UpdateSource(ctx, src); err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, fmt.Sprintf("Source #%d renamed to \"%s\".", id, name))
}

func (b *Bot) handleInterval(ctx context.Context, chatID int64, args string) {
	id, mins, err := ParseIntervalArgs(args)
	if err != nil {
		b.reply(chatID, err.Error())
		return
	}

	src, err := b.getOwnedSource(ctx, chatID, id)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Source #%d not found.", id))
		return
	}

	src.IntervalMinutes = mins
	if err := b.store.UpdateSource(ctx, src); err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, fmt.Sprintf("Source #%d interval set to %d min.", id, mins))
}

func (b *Bot) handlePause(ctx context.Context, chatID int64, args string) {
	b.setActive(ctx, chatID, args, false, "paused", "/pause <id>")
}

func (b *Bot) handleResume(ctx context.Context, chatID int64, args string) {
	b.setActive(ctx, chatID, args, true, "resumed", "/resume <id>")
}

func (b *Bot) setActive(ctx context.Context, chatID int64, args string, active bool, verb, usage string) {
	id, err := ParseIDArg(args)
	if err != nil {
		b.reply(chatID, "Usage: "+usage)
		return
	}

	src, err := b.getOwnedSource(ctx, chatID, id)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Source #%d not found.", id))
		return
	}

	src.IsActive = active
	if err := b.store.UpdateSource(ctx, src); err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, fmt.Sprintf("Source #%d \"%s\" %s.", id, src.Name, verb))
}

func (b *Bot) handleCheck(ctx context.Context, chatID int64, args string) {
	id, err := ParseIDArg(args)
	if err != nil {
		b.reply(chatID, "Usage: /check <id>")
		return
	}

	src, err := b.getOwnedSource(ctx, chatID, id)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Source #%d not found.", id))
		return
	}

	var items []fetcher.FeedItem
	if src.Kind == model.SourceNZB {
		items = []fetcher.FeedItem{{Title: src.Name, Link: src.URL, GUID: src.URL}}
	} else {
		feed, err := b.fetcher.FetchFeed(ctx, src.URL)
		if err != nil {
			b.reply(chatID, fmt.Sprintf("Failed to fetch: %v", err))
			return
		}
		items = fetcher.NZBItems(feed)
	}

	rules, _ := b.store.ListRules(ctx, src.ID)

	accepted := 0
	for _, item := range items {
		seen, _ := b.store.IsSeen(ctx, src.ID, item.GUID)
		if seen {
			continue
		}

		doc, err := b.fetcher.FetchNZB(ctx, item.Link)
		if err != nil {
			b.log.Warn("fetch nzb", "source_id", src.ID, "url", item.Link, "error", err)
			_ = b.store.MarkSeen(ctx, src.ID, item.GUID)
			continue
		}
		if !filter.Match(filter.Candidate{Title: item.Title, Document: doc}, rules) {
			_ = b.store.MarkSeen(ctx, src.ID, item.GUID)
			continue
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
		if err := b.store.CreateDownload(ctx, &d); err != nil {
			b.reply(chatID, fmt.Sprintf("Error: %v", err))
			return
		}
		b.reply(chatID, FormatDownload(src.Name, d))
		_ = b.store.MarkSeen(ctx, src.ID, item.GUID)
		accepted++
	}

	if accepted == 0 {
		b.reply(chatID, fmt.Sprintf("No new matching NZBs in #%d \"%s\".", src.ID, src.Name))
		return
	}
	b.reply(chatID, fmt.Sprintf("Queued %d NZB(s) from #%d \"%s\".", accepted, src.ID, src.Name))
}

func (b *Bot) handleRules(ctx context.Context, chatID int64, args string) {
	id, err := ParseIDArg(args)
	if err != nil {
		b.reply(chatID, "Usage: /rules <id>")
		return
	}

	src, err := b.getOwnedSource(ctx, chatID, id)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Source #%d not found.", id))
		return
	}

	rules, _ := b.store.ListRules(ctx, src.ID)
	b.reply(chatID, FormatRuleList(src, rules))
}

func (b *Bot) handleAddRule(ctx context.Context, chatID int64, args string, kind string) {
	parsed, err := ParseRuleCommand(args)
	if err != nil {
		b.reply(chatID, err.Error())
		return
	}

	src, err := b.getOwnedSource(ctx, chatID, parsed.SourceID)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Source #%d not found.", parsed.SourceID))
		return
	}

	rk := model.RuleKind(kind)
	if rk == model.RuleIncludeRe || rk == model.RuleExcludeRe {
		if err := filter.ValidateRegex(parsed.Value); err != nil {
			b.reply(chatID, fmt.Sprintf("Invalid regex: %v", err))
			return
		}
	}

	r := &model.Rule{
		SourceID: parsed.SourceID,
		Kind:     rk,
		Scope:    parsed.Scope,
		Value:    parsed.Value,
	}
	if err := b.store.CreateRule(ctx, r); err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}

	b.reply(chatID, fmt.Sprintf("Rule R%d added to #%d \"%s\": %s %s (%s)",
		r.ID, src.ID, src.Name, kind, parsed.Value, scopeLabel(parsed.Scope)))
}

func (b *Bot) handleSizeRule(ctx context.Context, chatID int64, args string, kind string) {
	id, value, err := ParseValueArgs(args)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Usage: /%s <id> <size>", commandForKind(kind)))
		return
	}

	src, err := b.getOwnedSource(ctx, chatID, id)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Source #%d not found.", id))
		return
	}

	if _, err := filter.ParseSize(value); err != nil {
		b.reply(chatID, fmt.Sprintf("Invalid size %q. Use e.g. 700M, 4.5G.", value))
		return
	}

	r := &model.Rule{
		SourceID: id,
		Kind:     model.RuleKind(kind),
		Scope:    model.ScopeAll,
		Value:    value,
	}
	if err := b.store.CreateRule(ctx, r); err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, fmt.Sprintf("Rule R%d added to #%d \"%s\": %s %s",
		r.ID, src.ID, src.Name, kind, value))
}

func (b *Bot) handleRejectRule(ctx context.Context, chatID int64, args string, kind string) {
	id, err := ParseIDArg(args)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Usage: /%s <id>", commandForKind(kind)))
		return
	}

	src, err := b.getOwnedSource(ctx, chatID, id)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Source #%d not found.", id))
		return
	}

	r := &model.Rule{
		SourceID: id,
		Kind:     model.RuleKind(kind),
		Scope:    model.ScopeAll,
	}
	if err := b.store.CreateRule(ctx, r); err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, fmt.Sprintf("Rule R%d added to #%d \"%s\": %s",
		r.ID, src.ID, src.Name, kind))
}

func (b *Bot) handleRmRule(ctx context.Context, chatID int64, args string) {
	id, err := ParseIDArg(args)
	if err != nil {
		b.reply(chatID, "Usage: /rmrule <rule_id>")
		return
	}

	r, err := b.store.GetRule(ctx, id)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Rule R%d not found.", id))
		return
	}

	src, err := b.getOwnedSource(ctx, chatID, r.SourceID)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Rule R%d not found.", id))
		return
	}

	if err := b.store.DeleteRule(ctx, id); err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, fmt.Sprintf("Rule R%d removed from #%d \"%s\".", id, src.ID, src.Name))
}

func (b *Bot) handleQueue(ctx context.Context, chatID int64) {
	downloads, err := b.store.ListDownloads(ctx, chatID, 10)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, FormatQueue(downloads))
}

func (b *Bot) handleInspect(ctx context.Context, chatID int64, args string) {
	if args == "" {
		b.reply(chatID, "Usage: /inspect <url>")
		return
	}

	doc, err := b.fetcher.FetchNZB(ctx, args)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Failed: %v", err))
		return
	}
	b.reply(chatID, FormatInspect(args, doc))
}

// getOwnedSource loads a source and verifies it belongs to the chat.
func (b *Bot) getOwnedSource(ctx context.Context, chatID, id int64) (*model.Source, error) {
	src, err := b.store.GetSource(ctx, id)
	if err != nil {
		return nil, err
	}
	if src.ChatID != chatID {
		return nil, fmt.Errorf("source %d not owned by chat %d", id, chatID)
	}
	return src, nil
}

func commandForKind(kind string) string {
	switch kind {
	case "min_size":
		return "minsize"
	case "max_size":
		return "maxsize"
	case "reject_password":
		return "nopassword"
	case "reject_obfuscated":
		return "noobfuscated"
	}
	return kind
}
