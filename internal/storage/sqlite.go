package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/bunchhieng/saveit/internal/model"
	"github.com/bunchhieng/saveit/internal/store"
)

// SQLiteStorage implements Storage using SQLite. Links are written one row
// at a time; position grows with every insert and is read highest first.
type SQLiteStorage struct {
	db *sqlx.DB
}

// NewSQLiteStorage creates a new SQLite storage instance.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	var dsn string
	if dbPath == ":memory:" {
		dsn = dbPath + "?_pragma=journal_mode(DELETE)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)"
	} else {
		dsn = dbPath + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)"
	}

	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every new connection to :memory: is a separate empty database.
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(context.Background(), db.DB); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

type linkRow struct {
	ID                string         `db:"id"`
	Position          int            `db:"position"`
	URL               string         `db:"url"`
	Title             string         `db:"title"`
	Description       sql.NullString `db:"description"`
	ImageURL          sql.NullString `db:"image_url"`
	Content           sql.NullString `db:"content"`
	Tags              string         `db:"tags"`
	Category          sql.NullString `db:"category"`
	Status            string         `db:"status"`
	ReadingProgress   float64        `db:"reading_progress"`
	EstimatedReadTime sql.NullInt64  `db:"estimated_read_time"`
	Note              sql.NullString `db:"note"`
	CreatedAt         string         `db:"created_at"`
	Groups            string         `db:"groups_json"`
	Prompt            sql.NullString `db:"prompt"`
	Summary           sql.NullString `db:"summary"`
	Response          sql.NullString `db:"response"`
}

const linkColumns = `id, position, url, title, description, image_url, content, tags, category, status,
	reading_progress, estimated_read_time, note, created_at, groups_json, prompt, summary, response`

func newLinkRow(l model.Link, position int) (linkRow, error) {
	tags, err := json.Marshal(nonNil(l.Tags))
	if err != nil {
		return linkRow{}, fmt.Errorf("encode tags: %w", err)
	}
	groups, err := json.Marshal(nonNil(l.Groups))
	if err != nil {
		return linkRow{}, fmt.Errorf("encode groups: %w", err)
	}

	row := linkRow{
		ID:              l.ID,
		Position:        position,
		URL:             l.URL,
		Title:           l.Title,
		Description:     nullString(l.Description),
		ImageURL:        nullString(l.ImageURL),
		Content:         nullString(l.Content),
		Tags:            string(tags),
		Category:        nullString(l.Category),
		Status:          string(l.Status),
		ReadingProgress: l.ReadingProgress,
		Note:            nullString(l.Note),
		CreatedAt:       l.CreatedAt.UTC().Format(time.RFC3339Nano),
		Groups:          string(groups),
		Prompt:          nullString(l.Prompt),
		Summary:         nullString(l.Summary),
		Response:        nullString(l.Response),
	}
	if l.EstimatedReadTime != nil {
		row.EstimatedReadTime = sql.NullInt64{Int64: int64(*l.EstimatedReadTime), Valid: true}
	}
	return row, nil
}

func (r *linkRow) toLink() (model.Link, error) {
	link := model.Link{
		ID:              r.ID,
		URL:             r.URL,
		Title:           r.Title,
		Description:     stringPtr(r.Description),
		ImageURL:        stringPtr(r.ImageURL),
		Content:         stringPtr(r.Content),
		Category:        stringPtr(r.Category),
		Status:          model.Status(r.Status),
		ReadingProgress: r.ReadingProgress,
		Note:            stringPtr(r.Note),
		CreatedAt:       parseSQLiteTime(r.CreatedAt),
		Prompt:          stringPtr(r.Prompt),
		Summary:         stringPtr(r.Summary),
		Response:        stringPtr(r.Response),
	}
	if err := json.Unmarshal([]byte(r.Tags), &link.Tags); err != nil {
		return model.Link{}, fmt.Errorf("decode tags of %s: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(r.Groups), &link.Groups); err != nil {
		return model.Link{}, fmt.Errorf("decode groups of %s: %w", r.ID, err)
	}
	if r.EstimatedReadTime.Valid {
		v := int(r.EstimatedReadTime.Int64)
		link.EstimatedReadTime = &v
	}
	return link, nil
}

// LoadLinks returns every link in display order.
func (s *SQLiteStorage) LoadLinks(ctx context.Context) ([]model.Link, error) {
	var rows []linkRow
	err := s.db.SelectContext(ctx, &rows, "SELECT "+linkColumns+" FROM links ORDER BY position DESC")
	if err != nil {
		return nil, fmt.Errorf("list links: %w", err)
	}

	links := make([]model.Link, 0, len(rows))
	for i := range rows {
		link, err := rows[i].toLink()
		if err != nil {
			return nil, err
		}
		links = append(links, link)
	}
	return links, nil
}

const linkValues = `:id, :position, :url, :title, :description, :image_url, :content, :tags, :category, :status,
	:reading_progress, :estimated_read_time, :note, :created_at, :groups_json, :prompt, :summary, :response`

const linkAssignments = `url = :url, title = :title, description = :description, image_url = :image_url,
	content = :content, tags = :tags, category = :category, status = :status,
	reading_progress = :reading_progress, estimated_read_time = :estimated_read_time, note = :note,
	created_at = :created_at, groups_json = :groups_json, prompt = :prompt, summary = :summary, response = :response`

// InsertLinks stores links above every stored row, links[0] topmost.
func (s *SQLiteStorage) InsertLinks(ctx context.Context, links []model.Link) error {
	if len(links) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var top int
	if err := tx.GetContext(ctx, &top, "SELECT COALESCE(MAX(position), 0) FROM links"); err != nil {
		return fmt.Errorf("get top position: %w", err)
	}

	const upsert = `INSERT INTO links (` + linkColumns + `) VALUES (` + linkValues + `)
		ON CONFLICT(id) DO UPDATE SET ` + linkAssignments

	for i, l := range links {
		row, err := newLinkRow(l, top+len(links)-i)
		if err != nil {
			return err
		}
		if _, err := tx.NamedExecContext(ctx, upsert, row); err != nil {
			return fmt.Errorf("insert link %s: %w", l.URL, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit links: %w", err)
	}
	return nil
}

// UpdateLink overwrites the row with link.ID, keeping its position.
func (s *SQLiteStorage) UpdateLink(ctx context.Context, link model.Link) error {
	row, err := newLinkRow(link, 0)
	if err != nil {
		return err
	}
	if _, err := s.db.NamedExecContext(ctx, "UPDATE links SET "+linkAssignments+" WHERE id = :id", row); err != nil {
		return fmt.Errorf("update link %s: %w", link.ID, err)
	}
	return nil
}

// DeleteLink removes the row with id.
func (s *SQLiteStorage) DeleteLink(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM links WHERE id = ?", id); err != nil {
		return fmt.Errorf("delete link %s: %w", id, err)
	}
	return nil
}

// ClearLinks removes every row.
func (s *SQLiteStorage) ClearLinks(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM links"); err != nil {
		return fmt.Errorf("clear links: %w", err)
	}
	return nil
}

// LoadTags returns the registered tags in alphabetical order.
func (s *SQLiteStorage) LoadTags(ctx context.Context) ([]string, error) {
	var tags []string
	if err := s.db.SelectContext(ctx, &tags, "SELECT name FROM tags ORDER BY name ASC"); err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	return tags, nil
}

// AddTags registers tags, ignoring the ones already present.
func (s *SQLiteStorage) AddTags(ctx context.Context, tags []string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, tag := range tags {
		if _, err := tx.ExecContext(ctx, "INSERT OR IGNORE INTO tags (name) VALUES (?)", tag); err != nil {
			return fmt.Errorf("insert tag %s: %w", tag, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tags: %w", err)
	}
	return nil
}

// LoadReminder returns the stored reminder settings or the defaults.
func (s *SQLiteStorage) LoadReminder(ctx context.Context) (model.ReminderSettings, error) {
	var value string
	err := s.db.GetContext(ctx, &value, "SELECT value FROM settings WHERE key = ?", store.ReminderCollection)
	if errors.Is(err, sql.ErrNoRows) {
		return model.DefaultReminderSettings(), nil
	}
	if err != nil {
		return model.ReminderSettings{}, fmt.Errorf("get reminder settings: %w", err)
	}

	settings := model.DefaultReminderSettings()
	if err := json.Unmarshal([]byte(value), &settings); err != nil {
		return model.ReminderSettings{}, fmt.Errorf("decode reminder settings: %w", err)
	}
	return settings, nil
}

// SaveReminder stores the reminder settings.
func (s *SQLiteStorage) SaveReminder(ctx context.Context, settings model.ReminderSettings) error {
	value, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("encode reminder settings: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, datetime('now'))
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, store.ReminderCollection, string(value))
	if err != nil {
		return fmt.Errorf("save reminder settings: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func parseSQLiteTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t
	}
	if t, err := time.Parse("2006-01-02 15:04:05", s); err == nil {
		return t
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t
	}
	return time.Time{}
}
