package micropub

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/render"
)

// Response is a protocol response before it is written to the wire
type Response struct {
	Status int
	Header http.Header
	Body   interface{}
}

func newResponse(status int) *Response {
	return &Response{Status: status, Header: http.Header{}}
}

func errorResponse(perr *Error) *Response {
	resp := newResponse(perr.Status)
	if perr.Status == http.StatusUnauthorized {
		resp.Header.Set("WWW-Authenticate", perr.WWWAuthenticate())
	}
	resp.Body = perr.Body()
	return resp
}

// Write sends the response using render for JSON bodies
func (resp *Response) Write(w http.ResponseWriter, r *http.Request) {
	for k, vals := range resp.Header {
		for _, v := range vals {
			w.Header().Add(k, v)
		}
	}
	if resp.Body == nil {
		w.WriteHeader(resp.Status)
		return
	}
	render.Status(r, resp.Status)
	render.JSON(w, r, resp.Body)
}

// Endpoint is the Micropub endpoint. It is safe for concurrent use.
type Endpoint struct {
	config   EndpointConfig
	hooks    Hooks
	verifier TokenVerifier
	pages    PageResolver
	logger   *slog.Logger
	fallback http.Handler
	observer Observer
	scopes   map[Action]string
	parse    NormalizeOptions
}

// New creates an Endpoint. A token verifier is required, and a page
// resolver is required when an update or delete hook is set.
func New(opts ...Option) (*Endpoint, error) {
	e := &Endpoint{
		logger:   slog.Default(),
		fallback: http.NotFoundHandler(),
		scopes:   map[Action]string{ActionCreate: "create"},
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.verifier == nil {
		return nil, fmt.Errorf("token verifier is required")
	}
	if (e.hooks.Update != nil || e.hooks.Delete != nil) && e.pages == nil {
		return nil, fmt.Errorf("page resolver is required for update and delete hooks")
	}

	return e, nil
}

// Config returns the merged endpoint configuration
func (e *Endpoint) Config() EndpointConfig {
	return MergeConfig(e.config)
}

func (e *Endpoint) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		e.fallback.ServeHTTP(w, r)
		return
	}

	req, err := Normalize(r, e.parse)
	if err != nil {
		perr := AsError(err)
		e.observe(ActionUnknown, perr.Status)
		errorResponse(perr).Write(w, r)
		return
	}
	defer req.Cleanup()

	resp := e.Handle(r.Context(), req)
	if resp == nil {
		e.fallback.ServeHTTP(w, r)
		return
	}
	resp.Write(w, r)
}

// Handle runs the protocol state machine for a normalized request.
// A nil response means the request is not a Micropub request and should
// be passed to the fallback handler.
func (e *Endpoint) Handle(ctx context.Context, req *Request) *Response {
	switch {
	case req.Method == http.MethodGet && req.Query != "":
		return e.finish(ActionQuery, e.query(req.Query))
	case req.Method == http.MethodPost:
		auth, err := e.authenticate(ctx, req.Token)
		if err != nil {
			return e.finish(ActionUnknown, errorResponse(AsError(err)))
		}

		action := req.ResolveAction()
		var resp *Response
		switch action {
		case ActionCreate:
			resp = e.create(ctx, req, auth)
		case ActionUpdate:
			resp = e.update(ctx, req, auth)
		case ActionDelete:
			resp = e.delete(ctx, req, auth)
		default:
			resp = errorResponse(InvalidRequest("Your request did not contain any data."))
		}
		return e.finish(action, resp)
	}
	return nil
}

func (e *Endpoint) finish(action Action, resp *Response) *Response {
	e.observe(action, resp.Status)
	return resp
}

func (e *Endpoint) observe(action Action, status int) {
	if e.observer != nil {
		e.observer.ObserveAction(action, status)
	}
}

func (e *Endpoint) query(q string) *Response {
	body, ok := ResolveQuery(e.config, q)
	if !ok {
		return errorResponse(InvalidRequest(fmt.Sprintf("The query '%s' is not supported by this endpoint.", q)))
	}
	resp := newResponse(http.StatusOK)
	resp.Body = body
	return resp
}

func (e *Endpoint) authenticate(ctx context.Context, token string) (*AuthContext, error) {
	return authenticate(ctx, e.verifier, e.logger, token)
}

func authenticate(ctx context.Context, verifier TokenVerifier, logger *slog.Logger, token string) (*AuthContext, error) {
	if token == "" {
		return nil, ErrMissingToken
	}
	auth, err := verifier.Verify(ctx, token)
	if err != nil {
		var perr *Error
		if errors.As(err, &perr) {
			return nil, perr
		}
		if !errors.Is(err, ErrInvalidToken) {
			logger.Error("token verification failed", "error", err)
		}
		return nil, Forbidden("The access token could not be verified.")
	}
	if auth == nil {
		return nil, Forbidden("The access token could not be verified.")
	}
	return auth, nil
}

func (e *Endpoint) checkScope(action Action, auth *AuthContext, description string) *Response {
	scope, ok := e.scopes[action]
	if !ok || auth.HasScope(scope) {
		return nil
	}
	return errorResponse(InsufficientScope(scope, description))
}

func (e *Endpoint) create(ctx context.Context, req *Request, auth *AuthContext) *Response {
	if resp := e.checkScope(ActionCreate, auth, "Scope of submitted token does not allow creating content."); resp != nil {
		return resp
	}
	if e.hooks.Create == nil {
		return errorResponse(InvalidRequest("The endpoint could not create the post"))
	}

	post := &Post{
		Type:     DiscoverPostType(req),
		Fields:   req.Properties,
		Status:   req.Status,
		Slug:     req.Command("mp-slug"),
		Commands: req.Commands,
		HTML:     req.HTML,
		Client:   auth,
	}
	if len(req.Files) > 0 {
		post.Files = req.Files
	}

	result, err := e.hooks.Create(ctx, post)
	if err != nil {
		return e.hookFailure(ActionCreate, err, "The endpoint did not return a URL for the post.")
	}

	switch {
	case result == nil:
	case !result.Body && result.Preview == "" && result.URL != "":
		resp := newResponse(http.StatusCreated)
		resp.Header.Set("Location", result.URL)
		return resp
	case result.Preview != "":
		resp := newResponse(http.StatusCreated)
		resp.Header.Set("Location", result.Preview)
		resp.Body = map[string]string{"url": result.URL, "preview": result.Preview}
		return resp
	case result.URL != "":
		resp := newResponse(http.StatusCreated)
		resp.Header.Set("Location", result.URL)
		resp.Body = map[string]string{"url": result.URL}
		return resp
	}
	return errorResponse(InvalidRequest("The endpoint did not return a URL for the post."))
}

func (e *Endpoint) update(ctx context.Context, req *Request, auth *AuthContext) *Response {
	if resp := e.checkScope(ActionUpdate, auth, "Scope of submitted token does not allow updating content."); resp != nil {
		return resp
	}
	if e.hooks.Update == nil {
		return errorResponse(InvalidRequest("Updating posts is not supported by this endpoint."))
	}

	page, err := e.pages.FindByURL(ctx, req.URL)
	if err != nil || page == nil {
		if err != nil && !errors.Is(err, ErrPageNotFound) {
			e.logger.Error("failed to resolve post", "url", req.URL, "error", err)
		}
		return errorResponse(InvalidRequest("The post you are trying to update does not exist."))
	}

	err = e.hooks.Update(ctx, &UpdateRequest{
		Page:         page,
		URL:          req.URL,
		Replace:      req.Replace,
		Add:          req.Add,
		Remove:       req.Delete,
		RemoveValues: req.DeleteValues,
		HTML:         req.HTML,
		Client:       auth,
	})
	if err != nil {
		return e.hookFailure(ActionUpdate, err, "The endpoint could not update the post.")
	}

	resp := newResponse(http.StatusOK)
	resp.Header.Set("Location", page.URL())
	resp.Body = map[string]string{
		"success":             "update",
		"success_description": "Your post has been updated.",
	}
	return resp
}

func (e *Endpoint) delete(ctx context.Context, req *Request, auth *AuthContext) *Response {
	if resp := e.checkScope(ActionDelete, auth, "Scope of submitted token does not allow deleting content."); resp != nil {
		return resp
	}
	if e.hooks.Delete == nil {
		return errorResponse(InvalidRequest("Deleting posts is not supported by this endpoint."))
	}

	page, err := e.pages.FindByURL(ctx, req.URL)
	if err != nil {
		if !errors.Is(err, ErrPageNotFound) {
			e.logger.Error("failed to resolve post", "url", req.URL, "error", err)
		}
		page = nil
	}

	if err := e.hooks.Delete(ctx, &DeleteRequest{Page: page, URL: req.URL, Client: auth}); err != nil {
		return e.hookFailure(ActionDelete, err, "The endpoint could not delete the post.")
	}

	resp := newResponse(http.StatusOK)
	resp.Body = map[string]string{
		"success":             "delete",
		"success_description": "Your post has been deleted.",
	}
	return resp
}

// hookFailure converts a hook error. Declines get the generic message,
// anything else is reported with its own message.
func (e *Endpoint) hookFailure(action Action, err error, declined string) *Response {
	if errors.Is(err, ErrDeclined) {
		return errorResponse(InvalidRequest(declined))
	}
	e.logger.Error("micropub hook failed", "error", &HookError{Action: action, Err: err})
	return errorResponse(AsError(err))
}
