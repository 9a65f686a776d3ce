package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"mime/multipart"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-micropub/pkg/micropub"
	"github.com/tendant/simple-micropub/pkg/micropub/auth"
	mediamemory "github.com/tendant/simple-micropub/pkg/micropub/storage/memory"
	"github.com/tendant/simple-micropub/pkg/micropub/store"
	"github.com/tendant/simple-micropub/pkg/micropub/store/memory"
)

var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d}

func multipartBody(t *testing.T, field, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

type testServer struct {
	router  http.Handler
	metrics *Metrics
	backend *mediamemory.Backend
	service *store.Service
}

func newTestServer(t *testing.T, opts ...func(*RouterConfig)) *testServer {
	t.Helper()

	verifier := auth.NewStaticVerifier()
	verifier.Add("token", micropub.AuthContext{Me: "https://example.com/", ClientID: "test", Scopes: []string{"create", "media"}})

	service, err := store.New(memory.New(), "https://example.com/posts")
	require.NoError(t, err)

	metrics := NewMetrics()
	endpoint, err := micropub.New(
		micropub.WithTokenVerifier(verifier),
		micropub.WithHooks(service.Hooks()),
		micropub.WithPageResolver(service),
		micropub.WithObserver(metrics),
		micropub.WithConfig(micropub.EndpointConfig{MediaEndpoint: "https://example.com/micropub/media"}),
	)
	require.NoError(t, err)

	backend := mediamemory.New()
	resolver := &micropub.MediaResolver{
		Backend:  backend,
		RootURL:  "https://example.com/media",
		NewToken: func() (string, error) { return "tok12345", nil },
	}
	media, err := micropub.NewMediaEndpoint(resolver, verifier, micropub.WithMediaObserver(metrics))
	require.NoError(t, err)

	cfg := RouterConfig{
		Endpoint: endpoint,
		Media:    media,
		Files:    backend,
		Posts:    service,
		Metrics:  metrics,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	router := NewRouter(cfg)
	return &testServer{router: router, metrics: metrics, backend: backend, service: service}
}

func (s *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)
	return rr
}

func TestRouter_Health(t *testing.T) {
	s := newTestServer(t)
	rr := s.do(httptest.NewRequest(http.MethodGet, HealthPath, nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
}

func TestRouter_ConfigQuery(t *testing.T) {
	s := newTestServer(t)
	rr := s.do(httptest.NewRequest(http.MethodGet, MicropubPath+"?q=config", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "https://example.com/micropub/media", body["media-endpoint"])
}

func TestRouter_CreateAndView(t *testing.T) {
	s := newTestServer(t)

	form := url.Values{"h": {"entry"}, "content": {"Hello from the router"}}
	req := httptest.NewRequest(http.MethodPost, MicropubPath, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer token")
	rr := s.do(req)
	require.Equal(t, http.StatusCreated, rr.Code)
	assert.Equal(t, "https://example.com/posts/hello-from-the-router", rr.Header().Get("Location"))

	rr = s.do(httptest.NewRequest(http.MethodGet, PostsPath+"/hello-from-the-router", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var post map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &post))
	assert.Equal(t, "note", post["type"])
	assert.Equal(t, "https://example.com/posts/hello-from-the-router", post["url"])

	rr = s.do(httptest.NewRequest(http.MethodGet, PostsPath+"/", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var list struct {
		Items []map[string]interface{} `json:"items"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &list))
	assert.Len(t, list.Items, 1)
}

func TestRouter_DraftsNeedPreview(t *testing.T) {
	s := newTestServer(t)
	_, err := s.service.Create(context.Background(), &micropub.Post{
		Type:   micropub.PostTypeNote,
		Fields: micropub.Properties{"content": {"secret draft"}},
		Status: micropub.StatusDraft,
	})
	require.NoError(t, err)

	assert.Equal(t, http.StatusNotFound, s.do(httptest.NewRequest(http.MethodGet, PostsPath+"/secret-draft", nil)).Code)
	assert.Equal(t, http.StatusOK, s.do(httptest.NewRequest(http.MethodGet, PostsPath+"/secret-draft?preview=1", nil)).Code)

	rr := s.do(httptest.NewRequest(http.MethodGet, PostsPath+"/", nil))
	assert.JSONEq(t, `{"items":[]}`, rr.Body.String())

	assert.Equal(t, http.StatusBadRequest, s.do(httptest.NewRequest(http.MethodGet, PostsPath+"/?limit=zero", nil)).Code)
}

func TestRouter_UnauthorizedCreate(t *testing.T) {
	s := newTestServer(t)

	form := url.Values{"h": {"entry"}, "content": {"nope"}}
	req := httptest.NewRequest(http.MethodPost, MicropubPath, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := s.do(req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Contains(t, rr.Header().Get("WWW-Authenticate"), "Bearer")
}

func TestRouter_MediaUploadAndServe(t *testing.T) {
	s := newTestServer(t)

	body, contentType := multipartBody(t, "file", "photo.png", pngHeader)
	req := httptest.NewRequest(http.MethodPost, MediaPath, body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer token")
	rr := s.do(req)

	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.Equal(t, "https://example.com/media/tok12345/photo.png", rr.Header().Get("Location"))
	assert.Equal(t, 1, s.backend.Len())

	rr = s.do(httptest.NewRequest(http.MethodGet, FilesPath+"/tok12345/photo.png", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "image/png", rr.Header().Get("Content-Type"))
	assert.Equal(t, pngHeader, rr.Body.Bytes())

	rr = s.do(httptest.NewRequest(http.MethodGet, FilesPath+"/tok12345/missing.png", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestRouter_MediaUploadOverBodyLimit(t *testing.T) {
	s := newTestServer(t, func(cfg *RouterConfig) { cfg.MaxBodyBytes = 1024 })

	body, contentType := multipartBody(t, "file", "large.png", append(pngHeader, make([]byte, 4096)...))
	req := httptest.NewRequest(http.MethodPost, MediaPath, body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer token")
	rr := s.do(req)

	require.Equal(t, http.StatusBadRequest, rr.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "invalid_request", resp["error"])
	assert.Equal(t, "The uploaded file exceeds the maximum file size.", resp["error_description"])
	assert.Equal(t, 0, s.backend.Len())
}

func TestRouter_Metrics(t *testing.T) {
	s := newTestServer(t)
	s.do(httptest.NewRequest(http.MethodGet, MicropubPath+"?q=config", nil))

	rr := s.do(httptest.NewRequest(http.MethodGet, MetricsPath, nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `micropub_actions_total{action="query",status="200"} 1`)
	assert.Contains(t, rr.Body.String(), "micropub_http_request_duration_seconds")
}
