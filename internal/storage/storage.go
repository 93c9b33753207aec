// Package storage defines the persistence interface and its implementations.
package storage

import (
	"context"

	"nzbwatch/internal/model"
)

// Storage is the interface for all persistence operations.
type Storage interface {
	CreateSource(ctx context.Context, src *model.Source) error
	GetSource(ctx context.Context, id int64) (*model.Source, error)
	ListSources(ctx context.Context, chatID int64) ([]model.Source, error)
	ListDueSources(ctx context.Context) ([]model.Source, error)
	UpdateSource(ctx context.Context, src *model.Source) error
	DeleteSource(ctx context.Context, id int64) error

	CreateRule(ctx context.Context, r *model.Rule) error
	ListRules(ctx context.Context, sourceID int64) ([]model.Rule, error)
	GetRule(ctx context.Context, id int64) (*model.Rule, error)
	DeleteRule(ctx context.Context, id int64) error

	MarkSeen(ctx context.Context, sourceID int64, guid string) error
	IsSeen(ctx context.Context, sourceID int64, guid string) (bool, error)

	CreateDownload(ctx context.Context, d *model.Download) error
	ListDownloads(ctx context.Context, chatID int64, limit int) ([]model.Download, error)

	Close() error
}
