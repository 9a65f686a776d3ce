package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/tendant/simple-micropub/pkg/micropub"
	"github.com/tendant/simple-micropub/pkg/micropub/store"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// PostsHandler is a read-only JSON view of the reference store
type PostsHandler struct {
	service *store.Service
	logger  *slog.Logger
}

// NewPostsHandler creates a handler over service
func NewPostsHandler(service *store.Service, logger *slog.Logger) *PostsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostsHandler{service: service, logger: logger}
}

// Routes mounts GET / and GET /{slug}
func (h *PostsHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.List)
	r.Get("/{slug}", h.Get)
	return r
}

type postResponse struct {
	URL        string              `json:"url"`
	Type       micropub.PostType   `json:"type"`
	Status     micropub.Status     `json:"status"`
	Properties micropub.Properties `json:"properties"`
	ClientID   string              `json:"client_id,omitempty"`
	CreatedAt  time.Time           `json:"created_at"`
	UpdatedAt  time.Time           `json:"updated_at"`
}

func (h *PostsHandler) toResponse(p *store.Post) postResponse {
	return postResponse{
		URL:        h.service.URLFor(p.Slug),
		Type:       p.Type,
		Status:     p.Status,
		Properties: p.Properties,
		ClientID:   p.ClientID,
		CreatedAt:  p.CreatedAt,
		UpdatedAt:  p.UpdatedAt,
	}
}

// List returns recent listed posts. Drafts and unlisted posts are skipped.
func (h *PostsHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, r, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxListLimit)
	}

	posts, err := h.service.List(r.Context(), 0)
	if err != nil {
		h.logger.Error("failed to list posts", "error", err)
		writeError(w, r, http.StatusInternalServerError, "failed to list posts")
		return
	}

	items := make([]postResponse, 0, limit)
	for _, p := range posts {
		if p.Status != micropub.StatusListed {
			continue
		}
		items = append(items, h.toResponse(p))
		if len(items) == limit {
			break
		}
	}
	render.JSON(w, r, map[string]interface{}{"items": items})
}

// Get returns one post. Drafts are only shown with ?preview=1.
func (h *PostsHandler) Get(w http.ResponseWriter, r *http.Request) {
	post, err := h.service.Get(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		if errors.Is(err, store.ErrPostNotFound) {
			writeError(w, r, http.StatusNotFound, "post not found")
			return
		}
		h.logger.Error("failed to get post", "error", err)
		writeError(w, r, http.StatusInternalServerError, "failed to get post")
		return
	}
	if post.Status == micropub.StatusDraft && r.URL.Query().Get("preview") != "1" {
		writeError(w, r, http.StatusNotFound, "post not found")
		return
	}
	render.JSON(w, r, h.toResponse(post))
}

func writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	render.Status(r, status)
	render.JSON(w, r, map[string]string{"error": message})
}
