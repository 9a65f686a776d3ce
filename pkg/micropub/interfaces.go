package micropub

import (
	"context"
	"io"
)

// TokenVerifier turns a bearer token into an AuthContext.
// Implementations return ErrInvalidToken (or wrap it) when the token is rejected.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*AuthContext, error)
}

// TokenVerifierFunc adapts a function to TokenVerifier
type TokenVerifierFunc func(ctx context.Context, token string) (*AuthContext, error)

func (f TokenVerifierFunc) Verify(ctx context.Context, token string) (*AuthContext, error) {
	return f(ctx, token)
}

// Page is an opaque host reference to an existing post
type Page interface {
	URL() string
}

// PageResolver looks up existing posts by their public URL.
// Returns ErrPageNotFound when no post has that URL.
type PageResolver interface {
	FindByURL(ctx context.Context, rawURL string) (Page, error)
}

// MediaStore moves a spooled upload into permanent storage under key
// (token/filename) and returns the final location.
type MediaStore interface {
	Move(ctx context.Context, tempPath, key, mimeType string) (string, error)
}

// MediaReader serves stored media back by key
type MediaReader interface {
	Open(ctx context.Context, key string) (io.ReadCloser, string, error)
}

// Observer receives one call per handled request
type Observer interface {
	ObserveAction(action Action, status int)
}

// NotifyFunc is called after a media upload has been stored
type NotifyFunc func(ctx context.Context, url string, upload *StoredUpload)
