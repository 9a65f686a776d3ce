package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"reflect"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/tendant/simple-micropub/pkg/micropub"
)

const (
	maxSlugLength   = 60
	maxSlugAttempts = 10
)

// Service implements the micropub host hooks on top of a Repository
type Service struct {
	repo    Repository
	baseURL string
	media   *micropub.MediaResolver
	logger  *slog.Logger
	now     func() time.Time
}

// Option configures a Service
type Option func(*Service)

// WithMediaResolver stores files attached to create requests and records their URLs
func WithMediaResolver(m *micropub.MediaResolver) Option {
	return func(s *Service) {
		s.media = m
	}
}

// WithLogger sets the structured logger
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// New creates a Service publishing posts at baseURL + slug
func New(repo Repository, baseURL string, opts ...Option) (*Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("repository is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}

	s := &Service{
		repo:    repo,
		baseURL: strings.TrimRight(baseURL, "/") + "/",
		logger:  slog.Default(),
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Hooks returns the micropub hooks backed by this service
func (s *Service) Hooks() micropub.Hooks {
	return micropub.HooksFrom(s)
}

// URLFor returns the public URL of slug
func (s *Service) URLFor(slug string) string {
	return s.baseURL + slug
}

// Create stores a new post. Drafts are reported with a preview URL.
func (s *Service) Create(ctx context.Context, in *micropub.Post) (*micropub.CreateResult, error) {
	now := s.now()
	props := in.Fields.Clone()
	if props == nil {
		props = micropub.Properties{}
	}
	if !props.Has("published") {
		props["published"] = []interface{}{now.Format(time.RFC3339)}
	}

	if err := s.attachFiles(ctx, props, in.Files); err != nil {
		return nil, err
	}

	post := &Post{
		ID:         uuid.New(),
		Type:       in.Type,
		Status:     in.Status,
		Properties: props,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if post.Status == "" {
		post.Status = micropub.StatusListed
	}
	if in.Client != nil {
		post.ClientID = in.Client.ClientID
		post.Author = in.Client.Me
	}

	base := s.slugFor(in, post.ID)
	for attempt := 1; ; attempt++ {
		post.Slug = base
		if attempt > 1 {
			post.Slug = fmt.Sprintf("%s-%d", base, attempt)
		}
		if attempt > maxSlugAttempts {
			post.Slug = base + "-" + post.ID.String()[:8]
		}

		err := s.repo.Create(ctx, post)
		if err == nil {
			break
		}
		if !errors.Is(err, ErrSlugTaken) || attempt > maxSlugAttempts {
			return nil, fmt.Errorf("failed to store post: %w", err)
		}
	}

	s.logger.Info("post created", "slug", post.Slug, "type", post.Type, "status", post.Status)

	postURL := s.URLFor(post.Slug)
	if post.Status == micropub.StatusDraft {
		return micropub.CreatedWithPreview(postURL, postURL+"?preview=1"), nil
	}
	return micropub.Created(postURL), nil
}

// slugFor picks mp-slug, then the name, then the start of the content, then the post ID
func (s *Service) slugFor(in *micropub.Post, id uuid.UUID) string {
	candidates := []string{in.Slug, in.Fields.FirstString("name"), in.Fields.FirstString("content")}
	for _, c := range candidates {
		if slug := truncateSlug(Slugify(micropub.StripTags(c))); slug != "" {
			return slug
		}
	}
	return id.String()[:8]
}

func truncateSlug(slug string) string {
	if utf8.RuneCountInString(slug) <= maxSlugLength {
		return slug
	}
	slug = slug[:maxSlugLength]
	if i := strings.LastIndex(slug, "-"); i > 0 {
		slug = slug[:i]
	}
	return strings.TrimRight(slug, "-")
}

func (s *Service) attachFiles(ctx context.Context, props micropub.Properties, files map[string][]*micropub.UploadedFile) error {
	if len(files) == 0 || s.media == nil {
		return nil
	}
	for field, uploads := range files {
		for _, upload := range uploads {
			stored, err := s.media.Resolve(ctx, upload)
			if err != nil {
				return err
			}
			props[field] = append(props[field], stored.URL)
		}
	}
	return nil
}

// Update applies replace, then add, then delete operations
func (s *Service) Update(ctx context.Context, req *micropub.UpdateRequest) error {
	post, err := s.postFor(ctx, req.Page, req.URL)
	if err != nil {
		return err
	}

	props := post.Properties.Clone()
	if props == nil {
		props = micropub.Properties{}
	}
	for k, v := range req.Replace {
		props[k] = append([]interface{}(nil), v...)
	}
	for k, v := range req.Add {
		props[k] = append(props[k], v...)
	}
	for _, k := range req.Remove {
		delete(props, k)
	}
	for k, remove := range req.RemoveValues {
		props[k] = without(props[k], remove)
		if len(props[k]) == 0 {
			delete(props, k)
		}
	}

	post.Properties = props
	post.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, post); err != nil {
		return fmt.Errorf("failed to update post: %w", err)
	}

	s.logger.Info("post updated", "slug", post.Slug)
	return nil
}

func without(values, remove []interface{}) []interface{} {
	out := values[:0:0]
	for _, v := range values {
		drop := false
		for _, r := range remove {
			if reflect.DeepEqual(v, r) {
				drop = true
				break
			}
		}
		if !drop {
			out = append(out, v)
		}
	}
	return out
}

// Delete soft-deletes the post. Unknown posts are declined.
func (s *Service) Delete(ctx context.Context, req *micropub.DeleteRequest) error {
	if req.Page == nil {
		return micropub.ErrDeclined
	}
	post, err := s.postFor(ctx, req.Page, req.URL)
	if err != nil {
		if errors.Is(err, micropub.ErrPageNotFound) {
			return micropub.ErrDeclined
		}
		return err
	}

	if err := s.repo.Delete(ctx, post.Slug, s.now()); err != nil {
		if errors.Is(err, ErrPostNotFound) {
			return micropub.ErrDeclined
		}
		return fmt.Errorf("failed to delete post: %w", err)
	}

	s.logger.Info("post deleted", "slug", post.Slug)
	return nil
}

// FindByURL resolves a public post URL
func (s *Service) FindByURL(ctx context.Context, rawURL string) (micropub.Page, error) {
	slug, ok := s.slugFromURL(rawURL)
	if !ok {
		return nil, micropub.ErrPageNotFound
	}

	post, err := s.repo.GetBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, ErrPostNotFound) {
			return nil, micropub.ErrPageNotFound
		}
		return nil, err
	}
	return &Page{Post: post, url: s.URLFor(post.Slug)}, nil
}

// Get returns the live post stored under slug
func (s *Service) Get(ctx context.Context, slug string) (*Post, error) {
	return s.repo.GetBySlug(ctx, slug)
}

// List returns the most recent live posts
func (s *Service) List(ctx context.Context, limit int) ([]*Post, error) {
	return s.repo.List(ctx, limit)
}

func (s *Service) slugFromURL(rawURL string) (string, bool) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", false
	}
	u.RawQuery = ""
	u.Fragment = ""

	rest, ok := strings.CutPrefix(strings.TrimRight(u.String(), "/"), s.baseURL)
	if !ok || rest == "" || strings.Contains(rest, "/") {
		return "", false
	}
	return rest, true
}

func (s *Service) postFor(ctx context.Context, page micropub.Page, rawURL string) (*Post, error) {
	if p, ok := page.(*Page); ok && p != nil && p.Post != nil {
		return p.Post, nil
	}
	resolved, err := s.FindByURL(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	return resolved.(*Page).Post, nil
}
