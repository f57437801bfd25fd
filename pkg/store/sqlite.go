package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

type SQLiteStore struct {
	db *sql.DB
}

var _ CanvasStore = &SQLiteStore{}

func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("sqlite canvas store: empty dsn")
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	if s == nil || s.db == nil {
		return errors.New("sqlite canvas store: db is nil")
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS canvases (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			template TEXT NOT NULL DEFAULT '',
			canvas_js TEXT NOT NULL,
			created_at_ms INTEGER NOT NULL,
			modified_at_ms INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS canvases_by_modified ON canvases(modified_at_ms DESC);`,
	}
	for _, st := range stmts {
		if _, err := s.db.Exec(st); err != nil {
			return errors.Wrap(err, "sqlite canvas store: migrate")
		}
	}
	return nil
}

func (s *SQLiteStore) Save(ctx context.Context, c *Canvas) error {
	if s == nil || s.db == nil {
		return errors.New("sqlite canvas store: db is nil")
	}
	if c == nil {
		return errors.New("sqlite canvas store: nil canvas")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	now := time.Now()
	if c.ID == "" {
		c.ID = uuid.NewString()
		c.Created = now
	}
	if c.Created.IsZero() {
		c.Created = now
	}
	c.Modified = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO canvases(id, name, template, canvas_js, created_at_ms, modified_at_ms)
		VALUES(?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			template = excluded.template,
			canvas_js = excluded.canvas_js,
			modified_at_ms = excluded.modified_at_ms
	`, c.ID, c.Name, c.Template, c.CanvasJS, c.Created.UnixMilli(), c.Modified.UnixMilli())
	if err != nil {
		return errors.Wrap(err, "sqlite canvas store: upsert")
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*Canvas, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("sqlite canvas store: db is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, template, canvas_js, created_at_ms, modified_at_ms
		FROM canvases WHERE id = ?
	`, id)
	c, err := scanCanvas(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(ErrNotFound, "id %s", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "sqlite canvas store: get")
	}
	return c, nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]*Canvas, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("sqlite canvas store: db is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, template, canvas_js, created_at_ms, modified_at_ms
		FROM canvases
		ORDER BY modified_at_ms DESC
	`)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite canvas store: list")
	}
	defer func() { _ = rows.Close() }()

	items := []*Canvas{}
	for rows.Next() {
		c, err := scanCanvas(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	if s == nil || s.db == nil {
		return errors.New("sqlite canvas store: db is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM canvases WHERE id = ?`, id)
	if err != nil {
		return errors.Wrap(err, "sqlite canvas store: delete")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "sqlite canvas store: delete")
	}
	if n == 0 {
		return errors.Wrapf(ErrNotFound, "id %s", id)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCanvas(row rowScanner) (*Canvas, error) {
	var c Canvas
	var createdMs, modifiedMs int64
	if err := row.Scan(&c.ID, &c.Name, &c.Template, &c.CanvasJS, &createdMs, &modifiedMs); err != nil {
		return nil, err
	}
	c.Created = time.UnixMilli(createdMs)
	c.Modified = time.UnixMilli(modifiedMs)
	return &c, nil
}

// SQLiteDSNForFile builds a DSN enabling WAL and a busy timeout, suitable
// for concurrent readers alongside the single writer.
func SQLiteDSNForFile(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", errors.New("sqlite canvas store: empty path")
	}
	return fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", path), nil
}
