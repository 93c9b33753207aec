package bot

import (
	"fmt"
	"strings"

	"nzbwatch/internal/model"
	"nzbwatch/internal/nzb"
)

const (
	statusActive = "active"
	statusPaused = "paused"
)

// FormatDownload formats an accepted NZB as a Telegram notification
// message.
func FormatDownload(sourceName string, d model.Download) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s]\n\n", sourceName)
	b.WriteString(d.Title)
	fmt.Fprintf(&b, "\n\n%s in %d file(s)", humanSize(d.Size), d.FileCount)
	if d.MainFile != "" {
		fmt.Fprintf(&b, "\nMain file: %s", d.MainFile)
	}
	if d.Password {
		b.WriteString("\nPassword protected")
	}
	if d.URL != "" {
		b.WriteString("\n\n")
		b.WriteString(d.URL)
	}
	return b.String()
}

// FormatSourceList formats a list of sources for display.
func FormatSourceList(sources []model.Source, ruleCounts map[int64]int) string {
	if len(sources) == 0 {
		return "You have no sources yet. Use /add <url> to add one."
	}
	var b strings.Builder
	b.WriteString("Your sources:\n")
	for _, src := range sources {
		status := statusActive
		if !src.IsActive {
			status = statusPaused
		}
		fmt.Fprintf(&b, "\n#%d %s  (%s, every %d min) [%s]\n", src.ID, src.Name, src.Kind, src.IntervalMinutes, status)
		if n := ruleCounts[src.ID]; n == 0 {
			b.WriteString("   no rules\n")
		} else {
			fmt.Fprintf(&b, "   %d rule(s)\n", n)
		}
	}
	return b.String()
}

// FormatSourceInfo formats detailed information about a single source.
func FormatSourceInfo(src *model.Source, rules []model.Rule) string {
	var b strings.Builder
	status := statusActive
	if !src.IsActive {
		status = statusPaused
	}
	fmt.Fprintf(&b, "#%d %s [%s]\n", src.ID, src.Name, status)
	fmt.Fprintf(&b, "Kind: %s\n", src.Kind)
	fmt.Fprintf(&b, "URL: %s\n", src.URL)
	fmt.Fprintf(&b, "Interval: every %d min\n", src.IntervalMinutes)
	if src.LastCheckAt != nil {
		fmt.Fprintf(&b, "Last check: %s\n", src.LastCheckAt.Format("2006-01-02 15:04 UTC"))
	}
	b.WriteString("\n")
	b.WriteString(FormatRuleList(src, rules))
	return b.String()
}

// FormatRuleList formats the rules of a source grouped by kind.
func FormatRuleList(src *model.Source, rules []model.Rule) string {
	if len(rules) == 0 {
		return fmt.Sprintf("No rules for #%d \"%s\".\nUse /include, /exclude, /minsize, /maxsize to add rules.", src.ID, src.Name)
	}

	groups := make(map[string][]model.Rule)
	for _, r := range rules {
		groups[ruleGroup(r.Kind)] = append(groups[ruleGroup(r.Kind)], r)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Rules for #%d \"%s\":\n", src.ID, src.Name)

	order := []string{"Include (word)", "Include (regex)", "Exclude (word)", "Exclude (regex)", "Size", "Reject"}
	for _, groupName := range order {
		rs := groups[groupName]
		if len(rs) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n%s:\n", groupName)
		for _, r := range rs {
			switch r.Kind {
			case model.RuleMinSize:
				fmt.Fprintf(&b, "  R%d: at least %s\n", r.ID, r.Value)
			case model.RuleMaxSize:
				fmt.Fprintf(&b, "  R%d: at most %s\n", r.ID, r.Value)
			case model.RuleRejectPassword:
				fmt.Fprintf(&b, "  R%d: no password-protected posts\n", r.ID)
			case model.RuleRejectObfuscated:
				fmt.Fprintf(&b, "  R%d: no obfuscated posts\n", r.ID)
			default:
				fmt.Fprintf(&b, "  R%d: %s (%s)\n", r.ID, r.Value, scopeLabel(r.Scope))
			}
		}
	}
	return b.String()
}

// FormatQueue formats the latest accepted downloads.
func FormatQueue(downloads []model.Download) string {
	if len(downloads) == 0 {
		return "The queue is empty."
	}
	var b strings.Builder
	b.WriteString("Latest downloads:\n")
	for _, d := range downloads {
		fmt.Fprintf(&b, "\nD%d %s\n   %s, %d file(s)", d.ID, d.Title, humanSize(d.Size), d.FileCount)
		if d.MainFile != "" {
			fmt.Fprintf(&b, ", main: %s", d.MainFile)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// FormatInspect formats a one-off NZB summary for /inspect.
func FormatInspect(url string, doc *nzb.Document) string {
	var b strings.Builder
	if doc.Meta != nil && doc.Meta.Title != "" {
		fmt.Fprintf(&b, "%s\n", doc.Meta.Title)
	} else {
		fmt.Fprintf(&b, "%s\n", url)
	}

	fmt.Fprintf(&b, "Size: %s in %d file(s)\n", humanSize(doc.Size()), len(doc.Files))
	if main := doc.MainFile(); main != nil && main.Name() != "" {
		fmt.Fprintf(&b, "Main file: %s (%s)\n", main.Name(), humanSize(main.Size()))
	}
	if doc.HasPar2() {
		fmt.Fprintf(&b, "Repair: %d par2 file(s), %.1f%% of total\n", len(doc.Par2Files()), doc.Par2Percentage())
	}
	if doc.HasRar() {
		b.WriteString("Contains rar archives\n")
	}
	if doc.Meta != nil && len(doc.Meta.Passwords) > 0 {
		b.WriteString("Password protected\n")
	}
	if doc.IsObfuscated() {
		b.WriteString("Obfuscated file names\n")
	}
	if groups := doc.Groups(); len(groups) > 0 {
		fmt.Fprintf(&b, "Groups: %s\n", strings.Join(groups, ", "))
	}
	return b.String()
}

func scopeLabel(s model.RuleScope) string {
	switch s {
	case model.ScopeTitle:
		return "title only"
	case model.ScopeFilenames:
		return "filenames only"
	default:
		return "title+filenames"
	}
}

func ruleGroup(kind model.RuleKind) string {
	switch kind {
	case model.RuleInclude:
		return "Include (word)"
	case model.RuleIncludeRe:
		return "Include (regex)"
	case model.RuleExclude:
		return "Exclude (word)"
	case model.RuleExcludeRe:
		return "Exclude (regex)"
	case model.RuleMinSize, model.RuleMaxSize:
		return "Size"
	default:
		return "Reject"
	}
}

// humanSize renders a byte count with a binary unit suffix.
func humanSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
