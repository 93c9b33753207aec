package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration.

	"nzbwatch/internal/model"
	"nzbwatch/migrations"
)

const timeLayout = "2006-01-02T15:04:05Z"

// SQLite implements Storage backed by a SQLite database.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=OFF"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("disable foreign keys: %w", err)
	}

	if err := migrations.Run(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// CreateSource inserts a new source and populates its ID and CreatedAt.
func (s *SQLite) CreateSource(ctx context.Context, src *model.Source) error {
	now := time.Now().UTC().Format(timeLayout)
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO sources (chat_id, name, kind, url, interval_minutes, is_active, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		src.ChatID, src.Name, string(src.Kind), src.URL, src.IntervalMinutes, boolToInt(src.IsActive), now,
	)
	if err != nil {
		return fmt.Errorf("insert source: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	src.ID = id
	src.CreatedAt, _ = time.Parse(timeLayout, now)
	return nil
}

// GetSource returns a single source by its ID.
func (s *SQLite) GetSource(ctx context.Context, id int64) (*model.Source, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, chat_id, name, kind, url, interval_minutes, is_active, last_check_at, created_at
		 FROM sources WHERE id = ?`, id,
	)
	return scanSource(row)
}

// ListSources returns all sources belonging to the given chat.
func (s *SQLite) ListSources(ctx context.Context, chatID int64) ([]model.Source, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, chat_id, name, kind, url, interval_minutes, is_active, last_check_at, created_at
		 FROM sources WHERE chat_id = ? ORDER BY id`, chatID,
	)
	if err != nil {
		return nil, fmt.Errorf("query sources: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanSources(rows)
}

// ListDueSources returns all active sources that are due for checking.
func (s *SQLite) ListDueSources(ctx context.Context) ([]model.Source, error) {
	now := time.Now().UTC().Format(timeLayout)
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, chat_id, name, kind, url, interval_minutes, is_active, last_check_at, created_at
		 FROM sources
		 WHERE is_active = 1
		   AND (last_check_at IS NULL
		        OR datetime(last_check_at, '+' || interval_minutes || ' minutes') <= datetime(?))`,
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("query due sources: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanSources(rows)
}

// UpdateSource persists changes to an existing source.
func (s *SQLite) UpdateSource(ctx context.Context, src *model.Source) error {
	var lastCheck *string
	if src.LastCheckAt != nil {
		v := src.LastCheckAt.UTC().Format(timeLayout)
		lastCheck = &v
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE sources SET name = ?, kind = ?, url = ?, interval_minutes = ?, is_active = ?, last_check_at = ?
		 WHERE id = ?`,
		src.Name, string(src.Kind), src.URL, src.IntervalMinutes, boolToInt(src.IsActive), lastCheck, src.ID,
	)
	if err != nil {
		return fmt.Errorf("update source: %w", err)
	}
	return nil
}

// DeleteSource removes a source and its associated rules, seen NZBs
// and downloads.
func (s *SQLite) DeleteSource(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM seen_nzbs WHERE source_id = ?`, id); err != nil {
		return fmt.Errorf("delete seen_nzbs: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM downloads WHERE source_id = ?`, id); err != nil {
		return fmt.Errorf("delete downloads: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM rules WHERE source_id = ?`, id); err != nil {
		return fmt.Errorf("delete rules: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM sources WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete source: %w", err)
	}
	return tx.Commit()
}

// CreateRule inserts a new rule and populates its ID and CreatedAt.
func (s *SQLite) CreateRule(ctx context.Context, r *model.Rule) error {
	now := time.Now().UTC().Format(timeLayout)
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO rules (source_id, kind, scope, value, created_at) VALUES (?, ?, ?, ?, ?)`,
		r.SourceID, string(r.Kind), string(r.Scope), r.Value, now,
	)
	if err != nil {
		return fmt.Errorf("insert rule: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	r.ID = id
	r.CreatedAt, _ = time.Parse(timeLayout, now)
	return nil
}

// ListRules returns all rules for the given source.
func (s *SQLite) ListRules(ctx context.Context, sourceID int64) ([]model.Rule, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, source_id, kind, scope, value, created_at FROM rules WHERE source_id = ? ORDER BY id`, sourceID,
	)
	if err != nil {
		return nil, fmt.Errorf("query rules: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var rules []model.Rule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

// GetRule returns a single rule by its ID.
func (s *SQLite) GetRule(ctx context.Context, id int64) (*model.Rule, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, source_id, kind, scope, value, created_at FROM rules WHERE id = ?`, id,
	)
	r, err := scanRule(row)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// DeleteRule removes a rule by its ID.
func (s *SQLite) DeleteRule(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM rules WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete rule: %w", err)
	}
	return nil
}

// MarkSeen records that an NZB has been processed for a source.
func (s *SQLite) MarkSeen(ctx context.Context, sourceID int64, guid string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO seen_nzbs (source_id, guid) VALUES (?, ?)`,
		sourceID, guid,
	)
	if err != nil {
		return fmt.Errorf("mark seen: %w", err)
	}
	return nil
}

// IsSeen checks whether an NZB has already been processed for a source.
func (s *SQLite) IsSeen(ctx context.Context, sourceID int64, guid string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM seen_nzbs WHERE source_id = ? AND guid = ?`,
		sourceID, guid,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check seen: %w", err)
	}
	return count > 0, nil
}

// CreateDownload inserts an accepted NZB and populates its ID and
// CreatedAt.
func (s *SQLite) CreateDownload(ctx context.Context, d *model.Download) error {
	now := time.Now().UTC().Format(timeLayout)
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO downloads (source_id, title, url, size, file_count, main_file, password, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		d.SourceID, d.Title, d.URL, d.Size, d.FileCount, d.MainFile, boolToInt(d.Password), now,
	)
	if err != nil {
		return fmt.Errorf("insert download: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	d.ID = id
	d.CreatedAt, _ = time.Parse(timeLayout, now)
	return nil
}

// ListDownloads returns the latest accepted NZBs across all of the
// chat's sources, newest first.
func (s *SQLite) ListDownloads(ctx context.Context, chatID int64, limit int) ([]model.Download, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT d.id, d.source_id, d.title, d.url, d.size, d.file_count, d.main_file, d.password, d.created_at
		 FROM downloads d
		 JOIN sources s ON s.id = d.source_id
		 WHERE s.chat_id = ?
		 ORDER BY d.id DESC
		 LIMIT ?`, chatID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query downloads: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var downloads []model.Download
	for rows.Next() {
		var d model.Download
		var password int
		var createdStr string
		if err := rows.Scan(&d.ID, &d.SourceID, &d.Title, &d.URL, &d.Size, &d.FileCount, &d.MainFile, &password, &createdStr); err != nil {
			return nil, fmt.Errorf("scan download: %w", err)
		}
		d.Password = password == 1
		d.CreatedAt, _ = time.Parse(timeLayout, createdStr)
		downloads = append(downloads, d)
	}
	return downloads, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSource(row scannable) (*model.Source, error) {
	var src model.Source
	var kindStr string
	var isActive int
	var lastCheck, created sql.NullString
	err := row.Scan(&src.ID, &src.ChatID, &src.Name, &kindStr, &src.URL, &src.IntervalMinutes, &isActive, &lastCheck, &created)
	if err != nil {
		return nil, fmt.Errorf("scan source: %w", err)
	}
	src.Kind = model.SourceKind(kindStr)
	src.IsActive = isActive == 1
	if lastCheck.Valid {
		t, _ := time.Parse(timeLayout, lastCheck.String)
		src.LastCheckAt = &t
	}
	if created.Valid {
		src.CreatedAt, _ = time.Parse(timeLayout, created.String)
	}
	return &src, nil
}

func scanSources(rows *sql.Rows) ([]model.Source, error) {
	var sources []model.Source
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		sources = append(sources, *src)
	}
	return sources, rows.Err()
}

func scanRule(row scannable) (model.Rule, error) {
	var r model.Rule
	var kindStr, scopeStr, createdStr string
	err := row.Scan(&r.ID, &r.SourceID, &kindStr, &scopeStr, &r.Value, &createdStr)
	if err != nil {
		return r, fmt.Errorf("scan rule: %w", err)
	}
	r.Kind = model.RuleKind(kindStr)
	r.Scope = model.RuleScope(scopeStr)
	r.CreatedAt, _ = time.Parse(timeLayout, createdStr)
	return r, nil
}
