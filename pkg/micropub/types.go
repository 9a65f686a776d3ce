package micropub

import (
	"fmt"
	"strings"
	"time"
)

// PostType is the semantic classification of a post
type PostType string

const (
	PostTypeNote     PostType = "note"
	PostTypeArticle  PostType = "article"
	PostTypeReply    PostType = "reply"
	PostTypeShare    PostType = "share"
	PostTypeFavorite PostType = "favorite"
	PostTypeBookmark PostType = "bookmark"
	PostTypeVideo    PostType = "video"
	PostTypePhoto    PostType = "photo"
	PostTypeCheckin  PostType = "checkin"
	PostTypeRSVP     PostType = "rsvp"
)

// Status is the publication state requested for a post
type Status string

const (
	StatusListed   Status = "listed"
	StatusUnlisted Status = "unlisted"
	StatusDraft    Status = "draft"
)

// Action is the operation a POST request asks for
type Action string

const (
	ActionCreate  Action = "create"
	ActionUpdate  Action = "update"
	ActionDelete  Action = "delete"
	ActionQuery   Action = "query"
	ActionMedia   Action = "media"
	ActionUnknown Action = "unknown"
)

// Properties holds microformats2 style properties where each key maps to a list of values
type Properties map[string][]interface{}

// Has reports whether the property is present with at least one value
func (p Properties) Has(key string) bool {
	return len(p[key]) > 0
}

// First returns the first value of a property or nil
func (p Properties) First(key string) interface{} {
	values := p[key]
	if len(values) == 0 {
		return nil
	}
	return values[0]
}

// FirstString returns the first value of a property as text. Nested objects
// yield their "html" member, falling back to "value".
func (p Properties) FirstString(key string) string {
	return valueString(p.First(key))
}

// Strings returns every value of a property as text
func (p Properties) Strings(key string) []string {
	values := p[key]
	if len(values) == 0 {
		return nil
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		out = append(out, valueString(v))
	}
	return out
}

// Clone returns a copy with independent value lists
func (p Properties) Clone() Properties {
	if p == nil {
		return nil
	}
	out := make(Properties, len(p))
	for k, v := range p {
		out[k] = append([]interface{}(nil), v...)
	}
	return out
}

func valueString(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case map[string]interface{}:
		if html, ok := val["html"].(string); ok {
			return html
		}
		if value, ok := val["value"].(string); ok {
			return value
		}
		return ""
	default:
		return fmt.Sprint(val)
	}
}

// AuthContext is the identity and capabilities behind a verified token
type AuthContext struct {
	Me       string    `json:"me"`
	ClientID string    `json:"client_id"`
	Scopes   []string  `json:"scopes"`
	IssuedAt time.Time `json:"issued_at"`
}

// HasScope reports whether the token was granted the named scope
func (a *AuthContext) HasScope(scope string) bool {
	if a == nil {
		return false
	}
	for _, s := range a.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// ParseScopes splits a space separated scope string
func ParseScopes(scope string) []string {
	return strings.Fields(scope)
}

// UploadedFile is a file received in a multipart request and spooled to disk
type UploadedFile struct {
	Field        string
	TempPath     string
	OriginalName string
	MimeHint     string
	Size         int64
	SizeError    bool
}

// StoredUpload describes a media file after it reached permanent storage
type StoredUpload struct {
	Key      string `json:"key"`
	Path     string `json:"path"`
	URL      string `json:"url"`
	Filename string `json:"filename"`
	MimeType string `json:"mime_type"`
}

// Post is the normalized form of a create request handed to the create hook
type Post struct {
	Type     PostType
	Fields   Properties
	Status   Status
	Slug     string
	Commands map[string][]string
	Files    map[string][]*UploadedFile
	HTML     string
	Client   *AuthContext
}

// UpdateRequest is handed to the update hook once the target page is resolved
type UpdateRequest struct {
	Page         Page
	URL          string
	Replace      Properties
	Add          Properties
	Remove       []string
	RemoveValues Properties
	HTML         string
	Client       *AuthContext
}

// DeleteRequest is handed to the delete hook. Page is nil when the host
// could not resolve URL.
type DeleteRequest struct {
	Page   Page
	URL    string
	Client *AuthContext
}

// CreateResult is what a create hook returns on success.
//
// A result with Body unset answers with a bare 201 and a Location header.
// With Body set, or when Preview is given, the URL (and preview) are also
// returned as JSON.
type CreateResult struct {
	URL     string
	Preview string
	Body    bool
}

// Created returns a result that redirects to url
func Created(url string) *CreateResult {
	return &CreateResult{URL: url}
}

// CreatedWithPreview returns a result that reports url and preview in the body
func CreatedWithPreview(url, preview string) *CreateResult {
	return &CreateResult{URL: url, Preview: preview, Body: true}
}
