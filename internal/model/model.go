// Package model defines the domain types used across the application.
package model

import "time"

// SourceKind defines where a source's NZBs come from.
type SourceKind string

// Supported source kinds.
const (
	// SourceRSS polls an indexer RSS feed and picks up the NZB links
	// of new items.
	SourceRSS SourceKind = "rss"
	// SourceNZB fetches a single NZB URL directly on every check.
	SourceNZB SourceKind = "nzb"
)

// Source represents a watched NZB source subscription.
type Source struct {
	ID              int64
	ChatID          int64
	Name            string
	Kind            SourceKind
	URL             string
	IntervalMinutes int
	IsActive        bool
	LastCheckAt     *time.Time
	CreatedAt       time.Time
}

// RuleKind defines the type of filter rule.
type RuleKind string

// Supported rule kinds.
const (
	RuleInclude          RuleKind = "include"
	RuleExclude          RuleKind = "exclude"
	RuleIncludeRe        RuleKind = "include_re"
	RuleExcludeRe        RuleKind = "exclude_re"
	RuleMinSize          RuleKind = "min_size"
	RuleMaxSize          RuleKind = "max_size"
	RuleRejectPassword   RuleKind = "reject_password"
	RuleRejectObfuscated RuleKind = "reject_obfuscated"
)

// RuleScope defines which part of a parsed NZB a text rule matches
// against. Size and reject rules ignore the scope.
type RuleScope string

// Supported rule scopes.
const (
	ScopeTitle     RuleScope = "title"
	ScopeFilenames RuleScope = "filenames"
	ScopeAll       RuleScope = "all"
)

// Rule represents a single filtering rule attached to a source.
type Rule struct {
	ID        int64
	SourceID  int64
	Kind      RuleKind
	Scope     RuleScope
	Value     string
	CreatedAt time.Time
}

// SeenNZB tracks an NZB that has already been processed for a source.
type SeenNZB struct {
	SourceID int64
	GUID     string
	SeenAt   time.Time
}

// Download is an accepted NZB queued for the operator, with the
// summary extracted from the parsed document.
type Download struct {
	ID        int64
	SourceID  int64
	Title     string
	URL       string
	Size      int64
	FileCount int
	MainFile  string
	Password  bool
	CreatedAt time.Time
}
