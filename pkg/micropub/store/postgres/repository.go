// Package postgres stores posts in PostgreSQL through pgx
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tendant/simple-micropub/pkg/micropub"
	"github.com/tendant/simple-micropub/pkg/micropub/store"
)

// DBTX is an interface that allows us to use either a database connection or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

const schema = `
CREATE TABLE IF NOT EXISTS micropub_posts (
    id UUID PRIMARY KEY,
    slug TEXT NOT NULL,
    post_type TEXT NOT NULL,
    status TEXT NOT NULL,
    properties JSONB NOT NULL,
    client_id TEXT NOT NULL DEFAULT '',
    author TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL,
    deleted_at TIMESTAMPTZ,
    CONSTRAINT micropub_posts_slug_key UNIQUE (slug)
);
CREATE INDEX IF NOT EXISTS idx_micropub_posts_created ON micropub_posts (created_at DESC);
`

const columns = `id, slug, post_type, status, properties, client_id, author, created_at, updated_at, deleted_at`

// Repository implements store.Repository using PostgreSQL
type Repository struct {
	db DBTX
}

// New creates a new PostgreSQL repository
func New(db DBTX) *Repository {
	return &Repository{db: db}
}

// NewWithPool creates a new PostgreSQL repository with connection pool
func NewWithPool(pool *pgxpool.Pool) *Repository {
	return &Repository{db: pool}
}

// EnsureSchema creates the posts table when it does not exist
func (r *Repository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, schema); err != nil {
		return r.handlePostgresError("ensure schema", err)
	}
	return nil
}

// Error handling helper
func (r *Repository) handlePostgresError(operation string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return store.ErrSlugTaken
		case "23502": // not_null_violation
			return fmt.Errorf("required field %s is missing", pgErr.ColumnName)
		case "42P01": // undefined_table
			return fmt.Errorf("table does not exist - database migration required")
		default:
			return fmt.Errorf("database error in %s: %s (code: %s)", operation, pgErr.Message, pgErr.Code)
		}
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrPostNotFound
	}

	return fmt.Errorf("database error in %s: %w", operation, err)
}

func (r *Repository) Create(ctx context.Context, post *store.Post) error {
	props, err := json.Marshal(post.Properties)
	if err != nil {
		return fmt.Errorf("failed to encode properties: %w", err)
	}

	query := `
		INSERT INTO micropub_posts (` + columns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULL)`
	_, err = r.db.Exec(ctx, query,
		post.ID, post.Slug, string(post.Type), string(post.Status), props,
		post.ClientID, post.Author, post.CreatedAt, post.UpdatedAt,
	)
	if err != nil {
		return r.handlePostgresError("create post", err)
	}
	return nil
}

func (r *Repository) GetBySlug(ctx context.Context, slug string) (*store.Post, error) {
	query := `SELECT ` + columns + ` FROM micropub_posts WHERE slug = $1 AND deleted_at IS NULL`
	post, err := scanPost(r.db.QueryRow(ctx, query, slug))
	if err != nil {
		return nil, r.handlePostgresError("get post", err)
	}
	return post, nil
}

func (r *Repository) Update(ctx context.Context, post *store.Post) error {
	props, err := json.Marshal(post.Properties)
	if err != nil {
		return fmt.Errorf("failed to encode properties: %w", err)
	}

	query := `
		UPDATE micropub_posts SET properties = $1, status = $2, updated_at = $3
		WHERE slug = $4 AND deleted_at IS NULL`
	tag, err := r.db.Exec(ctx, query, props, string(post.Status), post.UpdatedAt, post.Slug)
	if err != nil {
		return r.handlePostgresError("update post", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrPostNotFound
	}
	return nil
}

func (r *Repository) Delete(ctx context.Context, slug string, at time.Time) error {
	query := `
		UPDATE micropub_posts SET deleted_at = $1, updated_at = $1
		WHERE slug = $2 AND deleted_at IS NULL`
	tag, err := r.db.Exec(ctx, query, at, slug)
	if err != nil {
		return r.handlePostgresError("delete post", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrPostNotFound
	}
	return nil
}

func (r *Repository) List(ctx context.Context, limit int) ([]*store.Post, error) {
	query := `SELECT ` + columns + ` FROM micropub_posts WHERE deleted_at IS NULL ORDER BY created_at DESC`
	args := []interface{}{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, r.handlePostgresError("list posts", err)
	}
	defer rows.Close()

	var posts []*store.Post
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, r.handlePostgresError("list posts", err)
		}
		posts = append(posts, post)
	}
	if err := rows.Err(); err != nil {
		return nil, r.handlePostgresError("list posts", err)
	}
	return posts, nil
}

func scanPost(row pgx.Row) (*store.Post, error) {
	var (
		post             store.Post
		postType, status string
		props            []byte
	)
	err := row.Scan(
		&post.ID, &post.Slug, &postType, &status, &props,
		&post.ClientID, &post.Author, &post.CreatedAt, &post.UpdatedAt, &post.DeletedAt,
	)
	if err != nil {
		return nil, err
	}
	post.Type = micropub.PostType(postType)
	post.Status = micropub.Status(status)
	if err := json.Unmarshal(props, &post.Properties); err != nil {
		return nil, fmt.Errorf("failed to decode properties: %w", err)
	}
	return &post, nil
}
