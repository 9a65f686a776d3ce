package micropub

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"math/big"
	"mime"
	"net/http"
	"os"
	"path"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const tokenAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// TokenLength is the length of the random directory segment of a media key
const TokenLength = 8

// mimeExtensions maps sniffed content types to file extensions
var mimeExtensions = map[string]string{
	"image/jpeg":       "jpg",
	"image/png":        "png",
	"image/gif":        "gif",
	"image/webp":       "webp",
	"image/bmp":        "bmp",
	"image/svg+xml":    "svg",
	"image/x-icon":     "ico",
	"image/heic":       "heic",
	"video/mp4":        "mp4",
	"video/webm":       "webm",
	"video/quicktime":  "mov",
	"video/avi":        "avi",
	"audio/mpeg":       "mp3",
	"audio/ogg":        "ogg",
	"audio/wave":       "wav",
	"audio/wav":        "wav",
	"audio/aiff":       "aiff",
	"audio/mp4":        "m4a",
	"application/ogg":  "ogg",
	"application/pdf":  "pdf",
	"application/zip":  "zip",
	"application/json": "json",
	"text/plain":       "txt",
	"text/html":        "html",
	"text/xml":         "xml",
	"text/css":         "css",
}

// MediaResolver moves uploads into a MediaStore and computes their public URL
type MediaResolver struct {
	Backend MediaStore
	RootURL string

	// NewToken generates the directory token. Defaults to RandomToken(TokenLength).
	NewToken func() (string, error)
}

// Store resolves the first upload in field
func (m *MediaResolver) Store(ctx context.Context, files map[string][]*UploadedFile, field string) (*StoredUpload, error) {
	uploads := files[field]
	if len(uploads) == 0 {
		return nil, InvalidRequest(fmt.Sprintf("Your request did not include a file upload named '%s'.", field))
	}
	return m.Resolve(ctx, uploads[0])
}

// Resolve derives a safe filename for file, moves it under a fresh token
// directory and returns where it ended up.
func (m *MediaResolver) Resolve(ctx context.Context, file *UploadedFile) (*StoredUpload, error) {
	if file.SizeError {
		return nil, InvalidRequest("The uploaded file exceeds the maximum file size.")
	}
	if m.Backend == nil {
		return nil, InvalidRequest("media storage is not configured")
	}

	filename, mimeType, err := UploadFilename(file)
	if err != nil {
		return nil, InvalidRequest(err.Error())
	}

	newToken := m.NewToken
	if newToken == nil {
		newToken = func() (string, error) { return RandomToken(TokenLength) }
	}
	token, err := newToken()
	if err != nil {
		return nil, InvalidRequest(fmt.Sprintf("failed to generate upload token: %v", err))
	}

	key := token + "/" + filename
	location, err := m.Backend.Move(ctx, file.TempPath, key, mimeType)
	if err != nil {
		return nil, InvalidRequest(err.Error())
	}

	return &StoredUpload{
		Key:      key,
		Path:     location,
		URL:      strings.TrimRight(m.RootURL, "/") + "/" + key,
		Filename: filename,
		MimeType: mimeType,
	}, nil
}

// UploadFilename returns the stored filename and content type for an upload.
// Empty or temporary extensions are replaced with one derived from the
// sniffed content type.
func UploadFilename(file *UploadedFile) (string, string, error) {
	name := SafeName(file.OriginalName)
	ext := strings.TrimPrefix(path.Ext(name), ".")

	mimeType, err := sniffMime(file)
	if err != nil {
		return "", "", err
	}

	if ext == "" || ext == "tmp" || ext == "temp" {
		base := strings.TrimSuffix(name, path.Ext(name))
		if base == "" {
			base = "upload"
		}
		return SafeName(base + "." + MimeToExtension(mimeType)), mimeType, nil
	}
	return name, mimeType, nil
}

func sniffMime(file *UploadedFile) (string, error) {
	f, err := os.Open(file.TempPath)
	if err != nil {
		return "", fmt.Errorf("failed to open upload: %w", err)
	}
	defer f.Close()

	buffer := make([]byte, 512)
	n, _ := f.Read(buffer)
	contentType := http.DetectContentType(buffer[:n])
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		contentType = mediaType
	}
	if contentType == "application/octet-stream" && file.MimeHint != "" {
		if mediaType, _, err := mime.ParseMediaType(file.MimeHint); err == nil {
			contentType = mediaType
		}
	}
	return contentType, nil
}

// MimeToExtension maps a content type to a file extension, "bin" when unknown
func MimeToExtension(mimeType string) string {
	if ext, ok := mimeExtensions[strings.ToLower(mimeType)]; ok {
		return ext
	}
	if exts, err := mime.ExtensionsByType(mimeType); err == nil && len(exts) > 0 {
		return strings.TrimPrefix(exts[0], ".")
	}
	return "bin"
}

// asciiLetters covers letters that do not decompose into a base letter plus marks
var asciiLetters = strings.NewReplacer(
	"ø", "o", "æ", "ae", "œ", "oe", "ß", "ss", "đ", "d", "ł", "l", "þ", "th", "ı", "i",
)

// transliterate drops combining marks after canonical decomposition, so ü becomes u
func transliterate(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return asciiLetters.Replace(out)
}

// SafeName lowercases and transliterates a filename, then replaces every run
// of characters outside a-z, 0-9, '@', '.', '_' and '-' with a single dash.
func SafeName(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" {
		return ""
	}

	var b strings.Builder
	dash := false
	for _, r := range transliterate(strings.ToLower(name)) {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)), r == '@', r == '.', r == '_', r == '-':
			b.WriteRune(r)
			dash = r == '-'
		default:
			if !dash {
				b.WriteByte('-')
				dash = true
			}
		}
	}
	return strings.Trim(b.String(), "-.")
}

// RandomToken returns n random alphanumeric characters
func RandomToken(n int) (string, error) {
	limit := big.NewInt(int64(len(tokenAlphabet)))
	out := make([]byte, n)
	for i := range out {
		idx, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", err
		}
		out[i] = tokenAlphabet[idx.Int64()]
	}
	return string(out), nil
}

// MediaEndpoint accepts multipart uploads in the "file" field
type MediaEndpoint struct {
	resolver *MediaResolver
	verifier TokenVerifier
	logger   *slog.Logger
	fallback http.Handler
	observer Observer
	notify   NotifyFunc
	scope    string
	parse    NormalizeOptions
}

// MediaOption configures a MediaEndpoint
type MediaOption func(*MediaEndpoint)

// WithMediaLogger sets the structured logger
func WithMediaLogger(l *slog.Logger) MediaOption {
	return func(m *MediaEndpoint) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithNotifier sets a callback invoked after every stored upload
func WithNotifier(fn NotifyFunc) MediaOption {
	return func(m *MediaEndpoint) {
		m.notify = fn
	}
}

// WithMediaScope requires scope on upload tokens
func WithMediaScope(scope string) MediaOption {
	return func(m *MediaEndpoint) {
		m.scope = scope
	}
}

// WithMediaObserver receives the status of every upload
func WithMediaObserver(o Observer) MediaOption {
	return func(m *MediaEndpoint) {
		m.observer = o
	}
}

// WithMediaFallback sets the handler for non-POST requests
func WithMediaFallback(h http.Handler) MediaOption {
	return func(m *MediaEndpoint) {
		if h != nil {
			m.fallback = h
		}
	}
}

// WithUploadLimits sets multipart parsing limits
func WithUploadLimits(opts NormalizeOptions) MediaOption {
	return func(m *MediaEndpoint) {
		m.parse = opts
	}
}

// NewMediaEndpoint creates a media endpoint
func NewMediaEndpoint(resolver *MediaResolver, verifier TokenVerifier, opts ...MediaOption) (*MediaEndpoint, error) {
	if resolver == nil || resolver.Backend == nil {
		return nil, fmt.Errorf("media resolver with a store is required")
	}
	if verifier == nil {
		return nil, fmt.Errorf("token verifier is required")
	}

	m := &MediaEndpoint{
		resolver: resolver,
		verifier: verifier,
		logger:   slog.Default(),
		fallback: http.NotFoundHandler(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

func (m *MediaEndpoint) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		m.fallback.ServeHTTP(w, r)
		return
	}

	resp := m.handle(r)
	m.observe(resp.Status)
	resp.Write(w, r)
}

func (m *MediaEndpoint) handle(r *http.Request) *Response {
	ctx := r.Context()

	req, err := Normalize(r, m.parse)
	if err != nil {
		return errorResponse(AsError(err))
	}
	defer req.Cleanup()

	auth, err := authenticate(ctx, m.verifier, m.logger, req.Token)
	if err != nil {
		return errorResponse(AsError(err))
	}
	if m.scope != "" && !auth.HasScope(m.scope) {
		return errorResponse(InsufficientScope(m.scope, "Scope of submitted token does not allow uploading media."))
	}

	stored, err := m.resolver.Store(ctx, req.Files, "file")
	if err != nil {
		m.logger.Error("media upload failed", "error", err)
		return errorResponse(AsError(err))
	}

	m.logger.Info("media stored", "url", stored.URL, "client_id", auth.ClientID)
	if m.notify != nil {
		m.notify(ctx, stored.URL, stored)
	}

	resp := newResponse(http.StatusCreated)
	resp.Header.Set("Location", stored.URL)
	return resp
}

func (m *MediaEndpoint) observe(status int) {
	if m.observer != nil {
		m.observer.ObserveAction(ActionMedia, status)
	}
}
