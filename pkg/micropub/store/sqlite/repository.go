// Package sqlite stores posts in a SQLite database using the pure Go modernc driver
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-micropub/pkg/micropub"
	"github.com/tendant/simple-micropub/pkg/micropub/store"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS micropub_posts (
    id TEXT PRIMARY KEY,
    slug TEXT NOT NULL UNIQUE,
    post_type TEXT NOT NULL,
    status TEXT NOT NULL,
    properties TEXT NOT NULL,
    client_id TEXT NOT NULL DEFAULT '',
    author TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    deleted_at TEXT
);
CREATE INDEX IF NOT EXISTS idx_micropub_posts_created ON micropub_posts (created_at);
`

// timestamps are stored fixed width so they sort as text
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const columns = `id, slug, post_type, status, properties, client_id, author, created_at, updated_at, deleted_at`

// Repository implements store.Repository on SQLite
type Repository struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and ensures the schema exists
func Open(path string) (*Repository, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// WAL lets readers proceed during writes; busy_timeout makes writers wait.
	if _, err := db.Exec(`
		PRAGMA journal_mode=WAL;
		PRAGMA busy_timeout=5000;
		PRAGMA synchronous=NORMAL;
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure database: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(4)

	r := &Repository{db: db}
	if err := r.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return r, nil
}

// Close closes the underlying database
func (r *Repository) Close() error {
	return r.db.Close()
}

func (r *Repository) ensureSchema() error {
	if _, err := r.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

func (r *Repository) Create(ctx context.Context, post *store.Post) error {
	props, err := json.Marshal(post.Properties)
	if err != nil {
		return fmt.Errorf("failed to encode properties: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO micropub_posts (`+columns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, NULL)`,
		post.ID.String(), post.Slug, string(post.Type), string(post.Status), string(props),
		post.ClientID, post.Author, formatTime(post.CreatedAt), formatTime(post.UpdatedAt),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return store.ErrSlugTaken
		}
		return fmt.Errorf("failed to insert post: %w", err)
	}
	return nil
}

func (r *Repository) GetBySlug(ctx context.Context, slug string) (*store.Post, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+columns+` FROM micropub_posts WHERE slug = ? AND deleted_at IS NULL`, slug)
	post, err := scanPost(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrPostNotFound
	}
	return post, err
}

func (r *Repository) Update(ctx context.Context, post *store.Post) error {
	props, err := json.Marshal(post.Properties)
	if err != nil {
		return fmt.Errorf("failed to encode properties: %w", err)
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE micropub_posts SET properties = ?, status = ?, updated_at = ?
		WHERE slug = ? AND deleted_at IS NULL`,
		string(props), string(post.Status), formatTime(post.UpdatedAt), post.Slug,
	)
	if err != nil {
		return fmt.Errorf("failed to update post: %w", err)
	}
	return expectOneRow(res)
}

func (r *Repository) Delete(ctx context.Context, slug string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE micropub_posts SET deleted_at = ?, updated_at = ?
		WHERE slug = ? AND deleted_at IS NULL`,
		formatTime(at), formatTime(at), slug,
	)
	if err != nil {
		return fmt.Errorf("failed to delete post: %w", err)
	}
	return expectOneRow(res)
}

func (r *Repository) List(ctx context.Context, limit int) ([]*store.Post, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+columns+` FROM micropub_posts WHERE deleted_at IS NULL ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list posts: %w", err)
	}
	defer rows.Close()

	var posts []*store.Post
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, post)
	}
	return posts, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPost(row scanner) (*store.Post, error) {
	var (
		id, slug, postType, status, props string
		clientID, author                  string
		createdAt, updatedAt              string
		deletedAt                         sql.NullString
	)
	if err := row.Scan(&id, &slug, &postType, &status, &props, &clientID, &author, &createdAt, &updatedAt, &deletedAt); err != nil {
		return nil, err
	}

	post := &store.Post{
		Slug:     slug,
		Type:     micropub.PostType(postType),
		Status:   micropub.Status(status),
		ClientID: clientID,
		Author:   author,
	}
	var err error
	if post.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("invalid post id %q: %w", id, err)
	}
	if err := json.Unmarshal([]byte(props), &post.Properties); err != nil {
		return nil, fmt.Errorf("failed to decode properties: %w", err)
	}
	if post.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if post.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	if deletedAt.Valid {
		at, err := parseTime(deletedAt.String)
		if err != nil {
			return nil, err
		}
		post.DeletedAt = &at
	}
	return post, nil
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrPostNotFound
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return t, nil
}
