// Package storetest runs the same behavioural checks against every store.Repository
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-micropub/pkg/micropub"
	"github.com/tendant/simple-micropub/pkg/micropub/store"
)

// NewPost returns a listed note with the given slug and content
func NewPost(slug, content string, created time.Time) *store.Post {
	return &store.Post{
		ID:     uuid.New(),
		Slug:   slug,
		Type:   micropub.PostTypeNote,
		Status: micropub.StatusListed,
		Properties: micropub.Properties{
			"content":  {content},
			"category": {"go", "indieweb"},
		},
		ClientID:  "https://client.example/",
		Author:    "https://example.com/",
		CreatedAt: created.UTC().Truncate(time.Microsecond),
		UpdatedAt: created.UTC().Truncate(time.Microsecond),
	}
}

// Run exercises repo. newRepo must return an empty repository.
func Run(t *testing.T, newRepo func(t *testing.T) store.Repository) {
	t.Run("CreateAndGet", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		post := NewPost("hello", "Hello world", time.Now())

		require.NoError(t, repo.Create(ctx, post))

		got, err := repo.GetBySlug(ctx, "hello")
		require.NoError(t, err)
		assert.Equal(t, post.ID, got.ID)
		assert.Equal(t, micropub.PostTypeNote, got.Type)
		assert.Equal(t, micropub.StatusListed, got.Status)
		assert.Equal(t, "Hello world", got.Properties.FirstString("content"))
		assert.Equal(t, []string{"go", "indieweb"}, got.Properties.Strings("category"))
		assert.Equal(t, "https://client.example/", got.ClientID)
		assert.True(t, post.CreatedAt.Equal(got.CreatedAt))
		assert.Nil(t, got.DeletedAt)
	})

	t.Run("DuplicateSlug", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		require.NoError(t, repo.Create(ctx, NewPost("dup", "one", time.Now())))
		err := repo.Create(ctx, NewPost("dup", "two", time.Now()))
		assert.ErrorIs(t, err, store.ErrSlugTaken)
	})

	t.Run("GetMissing", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.GetBySlug(context.Background(), "nope")
		assert.ErrorIs(t, err, store.ErrPostNotFound)
	})

	t.Run("Update", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		post := NewPost("edit-me", "before", time.Now())
		require.NoError(t, repo.Create(ctx, post))

		post.Properties["content"] = []interface{}{"after"}
		post.UpdatedAt = post.UpdatedAt.Add(time.Minute)
		require.NoError(t, repo.Update(ctx, post))

		got, err := repo.GetBySlug(ctx, "edit-me")
		require.NoError(t, err)
		assert.Equal(t, "after", got.Properties.FirstString("content"))
		assert.True(t, post.UpdatedAt.Equal(got.UpdatedAt))

		missing := NewPost("missing", "x", time.Now())
		assert.ErrorIs(t, repo.Update(ctx, missing), store.ErrPostNotFound)
	})

	t.Run("SoftDelete", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		require.NoError(t, repo.Create(ctx, NewPost("gone", "bye", time.Now())))

		require.NoError(t, repo.Delete(ctx, "gone", time.Now()))

		_, err := repo.GetBySlug(ctx, "gone")
		assert.ErrorIs(t, err, store.ErrPostNotFound)
		assert.ErrorIs(t, repo.Delete(ctx, "gone", time.Now()), store.ErrPostNotFound)

		// deleted slugs stay reserved
		assert.ErrorIs(t, repo.Create(ctx, NewPost("gone", "again", time.Now())), store.ErrSlugTaken)
	})

	t.Run("ListNewestFirst", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

		require.NoError(t, repo.Create(ctx, NewPost("first", "1", base)))
		require.NoError(t, repo.Create(ctx, NewPost("second", "2", base.Add(time.Hour))))
		require.NoError(t, repo.Create(ctx, NewPost("third", "3", base.Add(2*time.Hour))))
		require.NoError(t, repo.Delete(ctx, "second", base.Add(3*time.Hour)))

		posts, err := repo.List(ctx, 0)
		require.NoError(t, err)
		require.Len(t, posts, 2)
		assert.Equal(t, "third", posts[0].Slug)
		assert.Equal(t, "first", posts[1].Slug)

		posts, err = repo.List(ctx, 1)
		require.NoError(t, err)
		require.Len(t, posts, 1)
		assert.Equal(t, "third", posts[0].Slug)
	})
}
