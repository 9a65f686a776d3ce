// Package memory provides an in-process store.Repository for tests and development
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/tendant/simple-micropub/pkg/micropub/store"
)

// Repository keeps posts in a map keyed by slug
type Repository struct {
	mu    sync.RWMutex
	posts map[string]*store.Post
}

// New creates an empty in-memory repository
func New() *Repository {
	return &Repository{
		posts: make(map[string]*store.Post),
	}
}

func (r *Repository) Create(ctx context.Context, post *store.Post) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.posts[post.Slug]; exists {
		return store.ErrSlugTaken
	}
	r.posts[post.Slug] = copyPost(post)
	return nil
}

func (r *Repository) GetBySlug(ctx context.Context, slug string) (*store.Post, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	post, exists := r.posts[slug]
	if !exists || post.DeletedAt != nil {
		return nil, store.ErrPostNotFound
	}
	return copyPost(post), nil
}

func (r *Repository) Update(ctx context.Context, post *store.Post) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, exists := r.posts[post.Slug]
	if !exists || existing.DeletedAt != nil {
		return store.ErrPostNotFound
	}
	r.posts[post.Slug] = copyPost(post)
	return nil
}

func (r *Repository) Delete(ctx context.Context, slug string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	post, exists := r.posts[slug]
	if !exists || post.DeletedAt != nil {
		return store.ErrPostNotFound
	}
	post.DeletedAt = &at
	post.UpdatedAt = at
	return nil
}

func (r *Repository) List(ctx context.Context, limit int) ([]*store.Post, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*store.Post
	for _, post := range r.posts {
		if post.DeletedAt == nil {
			result = append(result, copyPost(post))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func copyPost(p *store.Post) *store.Post {
	c := *p
	c.Properties = p.Properties.Clone()
	if p.DeletedAt != nil {
		at := *p.DeletedAt
		c.DeletedAt = &at
	}
	return &c
}
