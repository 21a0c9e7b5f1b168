package api

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/screenflowr/internal/apperr"
	"github.com/starford/screenflowr/internal/catalog"
	"github.com/starford/screenflowr/internal/storage"
)

const maxImportBytes = 2 << 30 // 2 GB

// RecordingsHandler serves the recordings saved by the local sink.
type RecordingsHandler struct {
	store   storage.Provider
	catalog catalog.Catalog
}

// NewRecordingsHandler creates a handler over the recordings directory and
// its catalog.
func NewRecordingsHandler(store storage.Provider, cat catalog.Catalog) *RecordingsHandler {
	return &RecordingsHandler{store: store, catalog: cat}
}

// recordingName extracts and validates the recording path from the URL.
func recordingName(r *http.Request) (string, error) {
	raw := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if decoded, err := url.PathUnescape(raw); err == nil {
		raw = decoded
	}
	return cleanName(raw)
}

// cleanName accepts relative recording paths that stay inside the root.
func cleanName(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("filename is required")
	}
	cleaned := path.Clean(strings.ReplaceAll(name, "\\", "/"))
	if path.IsAbs(cleaned) || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("invalid filename: %s", name)
	}
	if !storage.IsRecording(cleaned) {
		return "", fmt.Errorf("not a recording: %s", name)
	}
	return cleaned, nil
}

// List handles GET /api/recordings.
//
//	@Summary		List recordings saved to the local directory
//	@Tags			recordings
//	@Produce		json
//	@Param			limit	query		int	false	"Page size"
//	@Param			offset	query		int	false	"Page offset"
//	@Success		200		{object}	RecordingListResponse
//	@Security		BearerAuth
//	@Router			/recordings [get]
func (h *RecordingsHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	rows, total, err := h.catalog.List(limit, offset)
	if err != nil {
		slog.Error("list recordings failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, RecordingListResponse{Recordings: rows, Total: total})
}

// ServeFile handles GET /api/recordings/*.
func (h *RecordingsHandler) ServeFile(w http.ResponseWriter, r *http.Request) {
	name, err := recordingName(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	data, err := h.store.Read(name)
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
		return
	}
	w.Header().Set("Content-Type", catalog.MIMEForFilename(name))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", path.Base(name)))
	_, _ = w.Write(data)
}

// Import handles POST /api/recordings (multipart/form-data, field "file"),
// copying an external recording into the recordings directory.
func (h *RecordingsHandler) Import(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxImportBytes)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("file too large or invalid multipart"))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("missing 'file' field in multipart form"))
		return
	}
	defer file.Close()

	name, err := cleanName(path.Base(header.Filename))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	if _, err := h.catalog.Get(name); err == nil {
		writeJSON(w, http.StatusConflict, errorBody("recording already exists"))
		return
	}
	data, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("failed to read file"))
		return
	}
	if err := h.store.Write(name, data); err != nil {
		slog.Error("import recording failed", slog.String("filename", name), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("failed to write file"))
		return
	}
	meta, err := h.store.Stat(name)
	if err == nil {
		err = h.catalog.Record(catalog.Recording{
			Filename:  name,
			Checksum:  meta.Checksum,
			Size:      meta.Size,
			CreatedAt: meta.ModTime,
		})
	}
	if err != nil {
		slog.Warn("import recording: catalog failed", slog.String("filename", name), slog.String("error", err.Error()))
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"filename": name,
		"size":     len(data),
		"url":      "/api/recordings/" + name,
	})
}

// Delete handles DELETE /api/recordings/*.
func (h *RecordingsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	name, err := recordingName(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	if _, err := h.catalog.Get(name); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
			return
		}
		writeError(w, "delete recording", err)
		return
	}
	if err := h.store.Delete(name); err != nil {
		slog.Warn("delete recording: file already gone", slog.String("filename", name), slog.String("error", err.Error()))
	}
	if err := h.catalog.Delete(name); err != nil {
		writeError(w, "delete recording", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
