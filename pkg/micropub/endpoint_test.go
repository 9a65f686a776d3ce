package micropub

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePage string

func (p fakePage) URL() string { return string(p) }

type fakePages map[string]Page

func (f fakePages) FindByURL(ctx context.Context, rawURL string) (Page, error) {
	if p, ok := f[rawURL]; ok {
		return p, nil
	}
	return nil, ErrPageNotFound
}

func verifierWithScopes(scopes ...string) TokenVerifier {
	return TokenVerifierFunc(func(ctx context.Context, token string) (*AuthContext, error) {
		if token != "good" {
			return nil, ErrInvalidToken
		}
		return &AuthContext{Me: "https://example.com/", ClientID: "https://client.example/", Scopes: scopes}, nil
	})
}

type recordingObserver struct {
	actions []Action
	status  []int
}

func (o *recordingObserver) ObserveAction(action Action, status int) {
	o.actions = append(o.actions, action)
	o.status = append(o.status, status)
}

func newTestEndpoint(t *testing.T, opts ...Option) *Endpoint {
	t.Helper()
	base := []Option{
		WithTokenVerifier(verifierWithScopes("create", "update", "delete")),
		WithPageResolver(fakePages{"https://example.com/posts/1": fakePage("https://example.com/posts/1")}),
	}
	e, err := New(append(base, opts...)...)
	require.NoError(t, err)
	return e
}

func serve(e http.Handler, r *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	e.ServeHTTP(w, r)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func authed(r *http.Request) *http.Request {
	r.Header.Set("Authorization", "Bearer good")
	return r
}

func createForm() *http.Request {
	return authed(formRequest(url.Values{"h": {"entry"}, "content": {"Hello world"}}))
}

func TestNew_RequiresVerifier(t *testing.T) {
	_, err := New()
	assert.Error(t, err)
}

func TestNew_RequiresPageResolverForUpdate(t *testing.T) {
	_, err := New(
		WithTokenVerifier(verifierWithScopes("create")),
		WithHooks(Hooks{Update: func(ctx context.Context, req *UpdateRequest) error { return nil }}),
	)
	assert.Error(t, err)
}

func TestEndpoint_ConfigQueries(t *testing.T) {
	e := newTestEndpoint(t, WithConfig(EndpointConfig{
		MediaEndpoint: "https://example.com/micropub/media",
		Categories:    []string{"foo", "bar"},
	}))

	w := serve(e, httptest.NewRequest(http.MethodGet, "/micropub?q=config", nil))
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "https://example.com/micropub/media", body["media-endpoint"])
	assert.ElementsMatch(t, []interface{}{"slug", "syndicate-to"}, body["mp"])

	w = serve(e, httptest.NewRequest(http.MethodGet, "/micropub?q=category", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []interface{}{"foo", "bar"}, decodeBody(t, w)["categories"])

	w = serve(e, httptest.NewRequest(http.MethodGet, "/micropub?q=post-types", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = serve(e, httptest.NewRequest(http.MethodGet, "/micropub?q=unknown-selector", nil))
	require.Equal(t, http.StatusBadRequest, w.Code)
	body = decodeBody(t, w)
	assert.Equal(t, "invalid_request", body["error"])
	assert.Equal(t, "The query 'unknown-selector' is not supported by this endpoint.", body["error_description"])
}

func TestEndpoint_GetWithoutQueryFallsBack(t *testing.T) {
	e := newTestEndpoint(t)
	w := serve(e, httptest.NewRequest(http.MethodGet, "/micropub", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = serve(e, httptest.NewRequest(http.MethodPut, "/micropub", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestEndpoint_AuthFailures(t *testing.T) {
	calls := 0
	e := newTestEndpoint(t, WithHooks(Hooks{Create: func(ctx context.Context, post *Post) (*CreateResult, error) {
		calls++
		return Created("https://example.com/posts/new"), nil
	}}))

	w := serve(e, formRequest(url.Values{"h": {"entry"}, "content": {"x"}}))
	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "unauthorized", decodeBody(t, w)["error"])
	assert.NotEmpty(t, w.Header().Get("WWW-Authenticate"))

	r := formRequest(url.Values{"h": {"entry"}, "content": {"x"}})
	r.Header.Set("Authorization", "Bearer bad")
	w = serve(e, r)
	require.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "forbidden", decodeBody(t, w)["error"])

	assert.Zero(t, calls)
}

func TestEndpoint_CreateRequiresCreateScope(t *testing.T) {
	calls := 0
	e := newTestEndpoint(t,
		WithTokenVerifier(verifierWithScopes("update")),
		WithHooks(Hooks{Create: func(ctx context.Context, post *Post) (*CreateResult, error) {
			calls++
			return Created("https://example.com/posts/new"), nil
		}}),
	)

	w := serve(e, createForm())
	require.Equal(t, http.StatusUnauthorized, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "insufficient_scope", body["error"])
	assert.Equal(t, "Scope of submitted token does not allow creating content.", body["error_description"])
	assert.Equal(t, 0, calls)
}

func TestEndpoint_CreateScopeCannotBeReplaced(t *testing.T) {
	tests := []struct {
		name   string
		scopes []string
		status int
		calls  int
	}{
		{"create token accepted", []string{"create"}, http.StatusCreated, 1},
		{"other scopes rejected", []string{"update", "post"}, http.StatusUnauthorized, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			e := newTestEndpoint(t,
				WithTokenVerifier(verifierWithScopes(tt.scopes...)),
				WithRequiredScope(ActionCreate, "post"),
				WithRequiredScope(ActionCreate, ""),
				WithRequiredScope(ActionCreate, "post"),
				WithHooks(Hooks{Create: func(ctx context.Context, post *Post) (*CreateResult, error) {
					calls++
					return Created("https://example.com/posts/new"), nil
				}}),
			)

			w := serve(e, createForm())
			require.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.calls, calls)
			if tt.status == http.StatusUnauthorized {
				body := decodeBody(t, w)
				assert.Equal(t, "insufficient_scope", body["error"])
				assert.Equal(t, "create", body["scope"])
			}
		})
	}
}

func TestEndpoint_CreateResults(t *testing.T) {
	tests := []struct {
		name         string
		result       *CreateResult
		err          error
		wantStatus   int
		wantLocation string
		wantBody     map[string]interface{}
	}{
		{
			name:         "bare url",
			result:       Created("https://example.com/posts/new"),
			wantStatus:   http.StatusCreated,
			wantLocation: "https://example.com/posts/new",
		},
		{
			name:         "url and preview",
			result:       CreatedWithPreview("https://example.com/posts/new", "https://example.com/preview/new"),
			wantStatus:   http.StatusCreated,
			wantLocation: "https://example.com/preview/new",
			wantBody:     map[string]interface{}{"url": "https://example.com/posts/new", "preview": "https://example.com/preview/new"},
		},
		{
			name:         "url with body",
			result:       &CreateResult{URL: "https://example.com/posts/new", Body: true},
			wantStatus:   http.StatusCreated,
			wantLocation: "https://example.com/posts/new",
			wantBody:     map[string]interface{}{"url": "https://example.com/posts/new"},
		},
		{
			name:       "nil result",
			wantStatus: http.StatusBadRequest,
			wantBody:   map[string]interface{}{"error": "invalid_request", "error_description": "The endpoint did not return a URL for the post."},
		},
		{
			name:       "declined",
			err:        ErrDeclined,
			wantStatus: http.StatusBadRequest,
			wantBody:   map[string]interface{}{"error": "invalid_request", "error_description": "The endpoint did not return a URL for the post."},
		},
		{
			name:       "hook error message passes through",
			err:        errors.New("disk full"),
			wantStatus: http.StatusBadRequest,
			wantBody:   map[string]interface{}{"error": "invalid_request", "error_description": "disk full"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEndpoint(t, WithHooks(Hooks{Create: func(ctx context.Context, post *Post) (*CreateResult, error) {
				return tt.result, tt.err
			}}))

			w := serve(e, createForm())
			require.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantLocation, w.Header().Get("Location"))
			if tt.wantBody == nil {
				assert.Empty(t, w.Body.String())
			} else {
				assert.Equal(t, tt.wantBody, decodeBody(t, w))
			}
		})
	}
}

func TestEndpoint_CreateBuildsPost(t *testing.T) {
	var got *Post
	e := newTestEndpoint(t, WithHooks(Hooks{Create: func(ctx context.Context, post *Post) (*CreateResult, error) {
		got = post
		return Created("https://example.com/posts/new"), nil
	}}))

	r := authed(jsonRequest(`{
		"type": ["h-entry"],
		"properties": {
			"like-of": ["https://other.example/post"],
			"content": [{"html": "<p>Nice</p>"}],
			"mp-slug": ["liked"],
			"post-status": ["draft"]
		}
	}`))
	w := serve(e, r)
	require.Equal(t, http.StatusCreated, w.Code)

	require.NotNil(t, got)
	assert.Equal(t, PostTypeFavorite, got.Type)
	assert.Equal(t, "liked", got.Slug)
	assert.Equal(t, StatusDraft, got.Status)
	assert.Equal(t, "<p>Nice</p>", got.HTML)
	assert.Nil(t, got.Files)
	require.NotNil(t, got.Client)
	assert.Equal(t, "https://client.example/", got.Client.ClientID)
}

func TestEndpoint_CreateNotConfigured(t *testing.T) {
	e := newTestEndpoint(t)
	w := serve(e, createForm())
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "The endpoint could not create the post", decodeBody(t, w)["error_description"])
}

func TestEndpoint_UnrecognizedPost(t *testing.T) {
	e := newTestEndpoint(t)
	w := serve(e, authed(formRequest(url.Values{"content": {"no type"}})))
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Your request did not contain any data.", decodeBody(t, w)["error_description"])
}

func TestEndpoint_Update(t *testing.T) {
	var got *UpdateRequest
	e := newTestEndpoint(t, WithHooks(Hooks{Update: func(ctx context.Context, req *UpdateRequest) error {
		got = req
		return nil
	}}))

	w := serve(e, authed(jsonRequest(`{
		"action": "update",
		"url": "https://example.com/posts/1",
		"replace": {"content": ["Updated"]},
		"delete": ["category"]
	}`)))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "https://example.com/posts/1", w.Header().Get("Location"))
	body := decodeBody(t, w)
	assert.Equal(t, "update", body["success"])
	assert.Equal(t, "Your post has been updated.", body["success_description"])

	require.NotNil(t, got)
	assert.Equal(t, "https://example.com/posts/1", got.Page.URL())
	assert.Equal(t, "Updated", got.Replace.FirstString("content"))
	assert.Equal(t, []string{"category"}, got.Remove)
}

func TestEndpoint_UpdateUnknownPost(t *testing.T) {
	calls := 0
	e := newTestEndpoint(t, WithHooks(Hooks{Update: func(ctx context.Context, req *UpdateRequest) error {
		calls++
		return nil
	}}))

	w := serve(e, authed(jsonRequest(`{"action":"update","url":"https://example.com/missing","replace":{"content":["x"]}}`)))
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "The post you are trying to update does not exist.", decodeBody(t, w)["error_description"])
	assert.Zero(t, calls)
}

func TestEndpoint_UpdateFailures(t *testing.T) {
	e := newTestEndpoint(t)
	w := serve(e, authed(jsonRequest(`{"action":"update","url":"https://example.com/posts/1","replace":{"content":["x"]}}`)))
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Updating posts is not supported by this endpoint.", decodeBody(t, w)["error_description"])

	e = newTestEndpoint(t, WithHooks(Hooks{Update: func(ctx context.Context, req *UpdateRequest) error {
		return ErrDeclined
	}}))
	w = serve(e, authed(jsonRequest(`{"action":"update","url":"https://example.com/posts/1","replace":{"content":["x"]}}`)))
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "The endpoint could not update the post.", decodeBody(t, w)["error_description"])
}

func TestEndpoint_Delete(t *testing.T) {
	var got *DeleteRequest
	e := newTestEndpoint(t, WithHooks(Hooks{Delete: func(ctx context.Context, req *DeleteRequest) error {
		got = req
		return nil
	}}))

	w := serve(e, authed(formRequest(url.Values{"action": {"delete"}, "url": {"https://example.com/posts/1"}})))
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "delete", body["success"])
	assert.Equal(t, "Your post has been deleted.", body["success_description"])
	require.NotNil(t, got)
	assert.NotNil(t, got.Page)

	w = serve(e, authed(formRequest(url.Values{"action": {"delete"}, "url": {"https://example.com/missing"}})))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, got.Page)
	assert.Equal(t, "https://example.com/missing", got.URL)
}

func TestEndpoint_DeleteFailures(t *testing.T) {
	e := newTestEndpoint(t)
	w := serve(e, authed(formRequest(url.Values{"action": {"delete"}, "url": {"https://example.com/posts/1"}})))
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Deleting posts is not supported by this endpoint.", decodeBody(t, w)["error_description"])

	e = newTestEndpoint(t, WithHooks(Hooks{Delete: func(ctx context.Context, req *DeleteRequest) error {
		return ErrDeclined
	}}))
	w = serve(e, authed(formRequest(url.Values{"action": {"delete"}, "url": {"https://example.com/posts/1"}})))
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "The endpoint could not delete the post.", decodeBody(t, w)["error_description"])
}

func TestEndpoint_RequiredScopeForDelete(t *testing.T) {
	e := newTestEndpoint(t,
		WithTokenVerifier(verifierWithScopes("create")),
		WithRequiredScope(ActionDelete, "delete"),
		WithHooks(Hooks{Delete: func(ctx context.Context, req *DeleteRequest) error { return nil }}),
	)

	w := serve(e, authed(formRequest(url.Values{"action": {"delete"}, "url": {"https://example.com/posts/1"}})))
	require.Equal(t, http.StatusUnauthorized, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "insufficient_scope", body["error"])
	assert.Equal(t, "delete", body["scope"])
}

func TestEndpoint_Observer(t *testing.T) {
	obs := &recordingObserver{}
	e := newTestEndpoint(t, WithObserver(obs), WithHooks(Hooks{Create: func(ctx context.Context, post *Post) (*CreateResult, error) {
		return Created("https://example.com/posts/new"), nil
	}}))

	serve(e, createForm())
	serve(e, httptest.NewRequest(http.MethodGet, "/micropub?q=config", nil))

	assert.Equal(t, []Action{ActionCreate, ActionQuery}, obs.actions)
	assert.Equal(t, []int{http.StatusCreated, http.StatusOK}, obs.status)
}

func TestEndpoint_TokenConflict(t *testing.T) {
	e := newTestEndpoint(t)
	r := formRequest(url.Values{"h": {"entry"}, "access_token": {"good"}})
	r.Header.Set("Authorization", "Bearer good")

	w := serve(e, r)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.True(t, strings.Contains(decodeBody(t, w)["error_description"].(string), "both"))
}

func TestHooksFrom(t *testing.T) {
	h := HooksFrom(onlyCreator{})
	assert.NotNil(t, h.Create)
	assert.Nil(t, h.Update)
	assert.Nil(t, h.Delete)
}

type onlyCreator struct{}

func (onlyCreator) Create(ctx context.Context, post *Post) (*CreateResult, error) {
	return Created("https://example.com/"), nil
}
