// Package filter implements the NZB matching engine.
package filter

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"nzbwatch/internal/model"
	"nzbwatch/internal/nzb"
)

// Candidate represents a fetched NZB to be matched against rules.
// Title is the indexer-provided item title, which may differ from the
// names inside the document.
type Candidate struct {
	Title    string
	Document *nzb.Document
}

// Match checks whether a candidate passes the given set of rules.
// If no rules are provided, the candidate always passes.
// Include rules use OR logic (at least one must match).
// Exclude, size and reject rules use AND logic (none must trip).
func Match(c Candidate, rules []model.Rule) bool {
	if len(rules) == 0 {
		return true
	}

	hasIncludes := false
	anyIncludeMatched := false

	for _, r := range rules {
		switch r.Kind {
		case model.RuleInclude, model.RuleIncludeRe:
			hasIncludes = true
			if matchesText(c, r) {
				anyIncludeMatched = true
			}
		case model.RuleExclude, model.RuleExcludeRe:
			if matchesText(c, r) {
				return false
			}
		case model.RuleMinSize:
			min, err := ParseSize(r.Value)
			if err == nil && c.Document != nil && c.Document.Size() < min {
				return false
			}
		case model.RuleMaxSize:
			max, err := ParseSize(r.Value)
			if err == nil && c.Document != nil && c.Document.Size() > max {
				return false
			}
		case model.RuleRejectPassword:
			if hasPassword(c.Document) {
				return false
			}
		case model.RuleRejectObfuscated:
			if c.Document != nil && c.Document.IsObfuscated() {
				return false
			}
		}
	}

	if hasIncludes && !anyIncludeMatched {
		return false
	}
	return true
}

func matchesText(c Candidate, r model.Rule) bool {
	text := textForScope(c, r.Scope)
	switch r.Kind {
	case model.RuleInclude, model.RuleExclude:
		return strings.Contains(text, strings.ToLower(r.Value))
	case model.RuleIncludeRe, model.RuleExcludeRe:
		re, err := regexp.Compile("(?i)" + r.Value)
		if err != nil {
			return false
		}
		return re.MatchString(text)
	}
	return false
}

func textForScope(c Candidate, scope model.RuleScope) string {
	switch scope {
	case model.ScopeTitle:
		return strings.ToLower(c.Title)
	case model.ScopeFilenames:
		return strings.ToLower(joinedFilenames(c.Document))
	default:
		return strings.ToLower(c.Title + " " + joinedFilenames(c.Document))
	}
}

func joinedFilenames(doc *nzb.Document) string {
	if doc == nil {
		return ""
	}
	return strings.Join(doc.Filenames(), " ")
}

func hasPassword(doc *nzb.Document) bool {
	return doc != nil && doc.Meta != nil && len(doc.Meta.Passwords) > 0
}

// ValidateRegex checks whether a pattern is a valid regular expression.
func ValidateRegex(pattern string) error {
	_, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return fmt.Errorf("invalid regex: %w", err)
	}
	return nil
}

// ParseSize parses a human size like "700M", "4.5G" or "1200" (bytes)
// into a byte count. Supported suffixes are K, M, G and T, binary
// multiples of 1024.
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(strings.ToUpper(s))
	if s == "" {
		return 0, fmt.Errorf("empty size")
	}

	mult := int64(1)
	switch s[len(s)-1] {
	case 'K':
		mult = 1 << 10
		s = s[:len(s)-1]
	case 'M':
		mult = 1 << 20
		s = s[:len(s)-1]
	case 'G':
		mult = 1 << 30
		s = s[:len(s)-1]
	case 'T':
		mult = 1 << 40
		s = s[:len(s)-1]
	}

	n, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid size %q", s)
	}
	return int64(n * float64(mult)), nil
}
