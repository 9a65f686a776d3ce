package micropub

import "context"

// Host hooks receive normalized requests and perform the actual storage work.
// A nil hook means the host does not support that action.

// CreateFunc stores a new post and reports where it lives.
// Returning ErrDeclined, or a nil result, means the post was not created.
type CreateFunc func(ctx context.Context, post *Post) (*CreateResult, error)

// UpdateFunc applies an update to an existing post.
// Returning ErrDeclined means the post was left unchanged.
type UpdateFunc func(ctx context.Context, req *UpdateRequest) error

// DeleteFunc deletes a post.
// Returning ErrDeclined means the post was not deleted.
type DeleteFunc func(ctx context.Context, req *DeleteRequest) error

// Hooks bundles the three optional host capabilities
type Hooks struct {
	Create CreateFunc
	Update UpdateFunc
	Delete DeleteFunc
}

// Creator is implemented by hosts that can create posts
type Creator interface {
	Create(ctx context.Context, post *Post) (*CreateResult, error)
}

// Updater is implemented by hosts that can update posts
type Updater interface {
	Update(ctx context.Context, req *UpdateRequest) error
}

// Deleter is implemented by hosts that can delete posts
type Deleter interface {
	Delete(ctx context.Context, req *DeleteRequest) error
}

// HooksFrom builds Hooks from whichever of Creator, Updater and Deleter v implements
func HooksFrom(v interface{}) Hooks {
	var h Hooks
	if c, ok := v.(Creator); ok {
		h.Create = c.Create
	}
	if u, ok := v.(Updater); ok {
		h.Update = u.Update
	}
	if d, ok := v.(Deleter); ok {
		h.Delete = d.Delete
	}
	return h
}
