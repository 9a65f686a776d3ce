// Package store is a reference Micropub host: it persists posts through a
// Repository and implements the create, update and delete hooks plus URL
// lookup expected by micropub.Endpoint.
package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-micropub/pkg/micropub"
)

var (
	// ErrPostNotFound indicates no live post has the slug
	ErrPostNotFound = errors.New("post not found")

	// ErrSlugTaken indicates another post already uses the slug
	ErrSlugTaken = errors.New("slug already in use")
)

// Post is a stored post
type Post struct {
	ID         uuid.UUID
	Slug       string
	Type       micropub.PostType
	Status     micropub.Status
	Properties micropub.Properties
	ClientID   string
	Author     string
	CreatedAt  time.Time
	UpdatedAt  time.Time
	DeletedAt  *time.Time
}

// Repository persists posts. Deleted posts are kept with DeletedAt set and
// are invisible to GetBySlug and List.
type Repository interface {
	Create(ctx context.Context, post *Post) error
	GetBySlug(ctx context.Context, slug string) (*Post, error)
	Update(ctx context.Context, post *Post) error
	Delete(ctx context.Context, slug string, at time.Time) error
	List(ctx context.Context, limit int) ([]*Post, error)
}

// Slugify lowercases s and joins runs of letters and digits with dashes
func Slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	prev := false
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			prev = false
		default:
			if !prev && b.Len() > 0 {
				b.WriteByte('-')
				prev = true
			}
		}
	}
	return strings.TrimRight(b.String(), "-")
}

// Page is the micropub.Page handed to update and delete hooks
type Page struct {
	Post *Post
	url  string
}

func (p *Page) URL() string {
	return p.url
}
