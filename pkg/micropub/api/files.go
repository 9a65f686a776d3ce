package api

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/tendant/simple-micropub/pkg/micropub"
)

// FilesHandler serves stored media back by key
type FilesHandler struct {
	reader micropub.MediaReader
	logger *slog.Logger
}

// NewFilesHandler creates a handler reading from reader
func NewFilesHandler(reader micropub.MediaReader, logger *slog.Logger) *FilesHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &FilesHandler{reader: reader, logger: logger}
}

// Routes mounts GET /{token}/{filename}
func (h *FilesHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/{token}/{filename}", h.ServeFile)
	return r
}

// ServeFile streams one stored upload
func (h *FilesHandler) ServeFile(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	filename := chi.URLParam(r, "filename")
	if token == "" || filename == "" || strings.Contains(token, "..") || strings.Contains(filename, "..") {
		http.NotFound(w, r)
		return
	}

	body, contentType, err := h.reader.Open(r.Context(), token+"/"+filename)
	if err != nil {
		if errors.Is(err, micropub.ErrMediaNotFound) {
			http.NotFound(w, r)
			return
		}
		h.logger.Error("failed to open media", "key", token+"/"+filename, "error", err)
		http.Error(w, "failed to read media", http.StatusInternalServerError)
		return
	}
	defer body.Close()

	if contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		h.logger.Warn("failed to stream media", "key", token+"/"+filename, "error", err)
	}
}
