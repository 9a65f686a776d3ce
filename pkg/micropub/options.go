package micropub

import (
	"log/slog"
	"net/http"
)

// Option configures an Endpoint
type Option func(*Endpoint)

// WithConfig sets the host configuration merged into q=config answers
func WithConfig(cfg EndpointConfig) Option {
	return func(e *Endpoint) {
		e.config = cfg
	}
}

// WithHooks sets the host create, update and delete hooks
func WithHooks(h Hooks) Option {
	return func(e *Endpoint) {
		e.hooks = h
	}
}

// WithTokenVerifier sets the verifier used for every mutating request
func WithTokenVerifier(v TokenVerifier) Option {
	return func(e *Endpoint) {
		e.verifier = v
	}
}

// WithPageResolver sets the lookup used to resolve update and delete targets
func WithPageResolver(p PageResolver) Option {
	return func(e *Endpoint) {
		e.pages = p
	}
}

// WithLogger sets the structured logger
func WithLogger(l *slog.Logger) Option {
	return func(e *Endpoint) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithFallback sets the handler for requests that are not Micropub requests
func WithFallback(h http.Handler) Option {
	return func(e *Endpoint) {
		if h != nil {
			e.fallback = h
		}
	}
}

// WithObserver receives the action and status of every handled request
func WithObserver(o Observer) Option {
	return func(e *Endpoint) {
		e.observer = o
	}
}

// WithRequiredScope requires scope for action. An empty scope removes the
// check. Create always requires "create" and is not affected.
func WithRequiredScope(action Action, scope string) Option {
	return func(e *Endpoint) {
		if action == ActionCreate {
			return
		}
		if scope == "" {
			delete(e.scopes, action)
			return
		}
		e.scopes[action] = scope
	}
}

// WithNormalizeOptions sets the body parsing limits
func WithNormalizeOptions(opts NormalizeOptions) Option {
	return func(e *Endpoint) {
		e.parse = opts
	}
}
