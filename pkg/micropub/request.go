package micropub

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"os"
	"strings"
)

const (
	defaultMaxMemory = 32 << 20
)

// Request is the canonical form of an incoming Micropub request.
// It is built once by Normalize and not modified afterwards.
type Request struct {
	Method string
	Query  string
	Token  string

	// Type is the microformats type without its "h-" prefix, e.g. "entry".
	Type       string
	Properties Properties
	Commands   map[string][]string
	Files      map[string][]*UploadedFile

	Action       string
	URL          string
	Replace      Properties
	Add          Properties
	Delete       []string
	DeleteValues Properties

	HTML   string
	Status Status
}

// NormalizeOptions controls body parsing
type NormalizeOptions struct {
	// MaxMemory is the multipart memory limit before parts spill to disk
	MaxMemory int64
	// MaxFileSize flags larger uploads with SizeError instead of spooling them. Zero disables the check.
	MaxFileSize int64
	// TempDir receives spooled uploads. Empty means os.TempDir().
	TempDir string
}

// Normalize parses r into a Request. Parse failures are returned as
// invalid_request protocol errors. Callers must call Cleanup on the result.
func Normalize(r *http.Request, opts NormalizeOptions) (*Request, error) {
	if opts.MaxMemory <= 0 {
		opts.MaxMemory = defaultMaxMemory
	}

	req := &Request{
		Method:     r.Method,
		Query:      r.URL.Query().Get("q"),
		Properties: Properties{},
		Commands:   map[string][]string{},
		Files:      map[string][]*UploadedFile{},
	}

	headerToken := bearerToken(r.Header.Get("Authorization"))

	var bodyToken string
	if r.Method == http.MethodPost {
		var err error
		bodyToken, err = req.parseBody(r, opts)
		if err != nil {
			req.Cleanup()
			return nil, err
		}
	}

	if headerToken != "" && bodyToken != "" {
		req.Cleanup()
		return nil, InvalidRequest("The request included an access token in both the header and the body.")
	}
	req.Token = headerToken
	if req.Token == "" {
		req.Token = bodyToken
	}

	req.Status = resolveStatus(req.Properties, req.Commands)
	return req, nil
}

// Cleanup removes spooled upload files that were not moved elsewhere
func (req *Request) Cleanup() {
	for _, files := range req.Files {
		for _, f := range files {
			if f.TempPath != "" {
				_ = os.Remove(f.TempPath)
			}
		}
	}
}

// Command returns the first value of an mp- command, e.g. Command("mp-slug")
func (req *Request) Command(name string) string {
	if values := req.Commands[name]; len(values) > 0 {
		return values[0]
	}
	return ""
}

// HasUpdateOperations reports whether any of replace, add or delete is present
func (req *Request) HasUpdateOperations() bool {
	return len(req.Replace) > 0 || len(req.Add) > 0 || len(req.Delete) > 0 || len(req.DeleteValues) > 0
}

// ResolveAction derives the requested action from the request shape
func (req *Request) ResolveAction() Action {
	switch strings.ToLower(req.Action) {
	case "delete":
		if req.URL != "" {
			return ActionDelete
		}
	case "update":
		if req.URL != "" && req.HasUpdateOperations() {
			return ActionUpdate
		}
	case "":
		if req.Type != "" {
			return ActionCreate
		}
	}
	return ActionUnknown
}

func (req *Request) parseBody(r *http.Request, opts NormalizeOptions) (string, error) {
	contentType := r.Header.Get("Content-Type")
	mediaType := "application/x-www-form-urlencoded"
	if contentType != "" {
		var err error
		mediaType, _, err = mime.ParseMediaType(contentType)
		if err != nil {
			return "", InvalidRequest("The request content type could not be parsed.")
		}
	}

	switch mediaType {
	case "application/json":
		return req.parseJSON(r.Body)
	case "multipart/form-data":
		if err := r.ParseMultipartForm(opts.MaxMemory); err != nil {
			if isBodyTooLarge(err) {
				return "", InvalidRequest("The uploaded file exceeds the maximum file size.")
			}
			return "", InvalidRequest(fmt.Sprintf("The request body could not be parsed: %v", err))
		}
		defer r.MultipartForm.RemoveAll()
		token := req.parseForm(r.MultipartForm.Value)
		if err := req.spoolFiles(r.MultipartForm.File, opts); err != nil {
			return "", err
		}
		return token, nil
	case "application/x-www-form-urlencoded":
		if err := r.ParseForm(); err != nil {
			if isBodyTooLarge(err) {
				return "", InvalidRequest("The request body exceeds the maximum size.")
			}
			return "", InvalidRequest(fmt.Sprintf("The request body could not be parsed: %v", err))
		}
		return req.parseForm(r.PostForm), nil
	default:
		return "", InvalidRequest(fmt.Sprintf("The content type '%s' is not supported by this endpoint.", mediaType))
	}
}

// isBodyTooLarge reports whether err comes from an http.MaxBytesReader limit
func isBodyTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}

func (req *Request) parseForm(values map[string][]string) string {
	var token string
	_, hasAction := values["action"]

	for rawKey, vals := range values {
		if len(vals) == 0 {
			continue
		}
		key := strings.TrimSuffix(rawKey, "[]")
		switch {
		case key == "h":
			req.Type = vals[0]
		case key == "access_token":
			token = vals[0]
		case key == "action":
			req.Action = vals[0]
		case key == "url" && hasAction:
			req.URL = vals[0]
		case key == "content[html]":
			req.HTML = vals[0]
			req.Properties["content"] = []interface{}{map[string]interface{}{"html": vals[0]}}
		case strings.HasPrefix(key, "mp-"):
			req.Commands[key] = append(req.Commands[key], vals...)
		default:
			for _, v := range vals {
				req.Properties[key] = append(req.Properties[key], v)
			}
		}
	}
	return token
}

type jsonBody struct {
	Type        []string                 `json:"type"`
	Properties  map[string][]interface{} `json:"properties"`
	Action      string                   `json:"action"`
	URL         string                   `json:"url"`
	Replace     map[string][]interface{} `json:"replace"`
	Add         map[string][]interface{} `json:"add"`
	Delete      json.RawMessage          `json:"delete"`
	AccessToken string                   `json:"access_token"`
}

func (req *Request) parseJSON(body io.Reader) (string, error) {
	var payload jsonBody
	if err := json.NewDecoder(body).Decode(&payload); err != nil {
		if isBodyTooLarge(err) {
			return "", InvalidRequest("The request body exceeds the maximum size.")
		}
		return "", InvalidRequest("The JSON body could not be parsed.")
	}

	if len(payload.Type) > 0 {
		req.Type = strings.TrimPrefix(payload.Type[0], "h-")
	}
	req.Action = payload.Action
	req.URL = payload.URL

	for key, vals := range payload.Properties {
		if strings.HasPrefix(key, "mp-") {
			for _, v := range vals {
				req.Commands[key] = append(req.Commands[key], valueString(v))
			}
			continue
		}
		req.Properties[key] = vals
	}

	if payload.Replace != nil {
		req.Replace = Properties(payload.Replace)
	}
	if payload.Add != nil {
		req.Add = Properties(payload.Add)
	}
	if len(payload.Delete) > 0 && string(payload.Delete) != "null" {
		if err := req.parseDelete(payload.Delete); err != nil {
			return "", err
		}
	}

	req.HTML = htmlContent(req.Properties)
	if req.HTML == "" {
		req.HTML = htmlContent(req.Replace)
	}

	return payload.AccessToken, nil
}

// parseDelete accepts either a list of property names or a map of values to remove
func (req *Request) parseDelete(raw json.RawMessage) error {
	var names []string
	if err := json.Unmarshal(raw, &names); err == nil {
		req.Delete = names
		return nil
	}
	var values map[string][]interface{}
	if err := json.Unmarshal(raw, &values); err == nil {
		req.DeleteValues = Properties(values)
		return nil
	}
	return InvalidRequest("The 'delete' property must be a list of property names or an object of values.")
}

func (req *Request) spoolFiles(files map[string][]*multipart.FileHeader, opts NormalizeOptions) error {
	for rawKey, headers := range files {
		key := strings.TrimSuffix(rawKey, "[]")
		for _, fh := range headers {
			upload := &UploadedFile{
				Field:        key,
				OriginalName: fh.Filename,
				MimeHint:     fh.Header.Get("Content-Type"),
				Size:         fh.Size,
			}
			if opts.MaxFileSize > 0 && fh.Size > opts.MaxFileSize {
				upload.SizeError = true
			} else {
				path, err := spool(fh, opts.TempDir)
				if err != nil {
					return InvalidRequest(err.Error())
				}
				upload.TempPath = path
			}
			req.Files[key] = append(req.Files[key], upload)
		}
	}
	return nil
}

func spool(fh *multipart.FileHeader, dir string) (string, error) {
	src, err := fh.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open upload: %w", err)
	}
	defer src.Close()

	dst, err := os.CreateTemp(dir, "micropub-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(dst.Name())
		return "", fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(dst.Name())
		return "", fmt.Errorf("failed to write temp file: %w", err)
	}
	return dst.Name(), nil
}

func bearerToken(header string) string {
	const prefix = "bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

func htmlContent(props Properties) string {
	if props == nil {
		return ""
	}
	if obj, ok := props.First("content").(map[string]interface{}); ok {
		if html, ok := obj["html"].(string); ok {
			return html
		}
	}
	return ""
}

// resolveStatus maps post-status and visibility onto a single Status
func resolveStatus(props Properties, commands map[string][]string) Status {
	postStatus := props.FirstString("post-status")
	if v := commands["mp-post-status"]; postStatus == "" && len(v) > 0 {
		postStatus = v[0]
	}
	if strings.EqualFold(postStatus, "draft") {
		return StatusDraft
	}

	visibility := props.FirstString("visibility")
	if v := commands["mp-visibility"]; visibility == "" && len(v) > 0 {
		visibility = v[0]
	}
	switch strings.ToLower(visibility) {
	case "unlisted", "private":
		return StatusUnlisted
	}
	return StatusListed
}
