package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/screenflowr/internal/recorder"
)

// Handler holds API route handlers.
type Handler struct {
	svc *recorder.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *recorder.Service) *Handler {
	return &Handler{svc: svc}
}

// --- Session ---

// GetSession handles GET /api/session.
//
//	@Summary		Current recording session
//	@Tags			session
//	@Produce		json
//	@Success		200	{object}	session.Snapshot
//	@Security		BearerAuth
//	@Router			/session [get]
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Status())
}

// StartSession handles POST /api/session/start.
//
//	@Summary		Acquire devices and start recording
//	@Tags			session
//	@Produce		json
//	@Success		200	{object}	session.Snapshot
//	@Failure		403	{object}	errResponse
//	@Failure		409	{object}	errResponse
//	@Failure		503	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/session/start [post]
func (h *Handler) StartSession(w http.ResponseWriter, r *http.Request) {
	snap, err := h.svc.Start(r.Context())
	if err != nil {
		writeError(w, "start session", err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// PauseSession handles POST /api/session/pause.
func (h *Handler) PauseSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Pause())
}

// ResumeSession handles POST /api/session/resume.
func (h *Handler) ResumeSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Resume())
}

// StopSession handles POST /api/session/stop.
//
//	@Summary		Stop recording and store the artifact
//	@Tags			session
//	@Produce		json
//	@Success		200	{object}	StopResponse
//	@Failure		500	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/session/stop [post]
func (h *Handler) StopSession(w http.ResponseWriter, r *http.Request) {
	a, err := h.svc.Stop(r.Context())
	if err != nil {
		writeError(w, "stop session", err)
		return
	}
	writeJSON(w, http.StatusOK, StopResponse{Session: h.svc.Status(), Artifact: a})
}

// --- Devices ---

// GetDevices handles GET /api/devices.
func (h *Handler) GetDevices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Devices())
}

// SetCamera handles PUT /api/devices/camera.
func (h *Handler) SetCamera(w http.ResponseWriter, r *http.Request) {
	var req EnabledRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Enabled == nil {
		writeJSON(w, http.StatusBadRequest, errorBody("enabled is required"))
		return
	}
	writeJSON(w, http.StatusOK, h.svc.SetCamera(r.Context(), *req.Enabled))
}

// SetMicrophone handles PUT /api/devices/microphone.
func (h *Handler) SetMicrophone(w http.ResponseWriter, r *http.Request) {
	var req EnabledRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Enabled == nil {
		writeJSON(w, http.StatusBadRequest, errorBody("enabled is required"))
		return
	}
	writeJSON(w, http.StatusOK, h.svc.SetMicrophone(r.Context(), *req.Enabled))
}

// --- Artifacts ---

// ListArtifacts handles GET /api/artifacts.
//
//	@Summary		List finished recordings
//	@Tags			artifacts
//	@Produce		json
//	@Success		200	{object}	ArtifactListResponse
//	@Security		BearerAuth
//	@Router			/artifacts [get]
func (h *Handler) ListArtifacts(w http.ResponseWriter, r *http.Request) {
	items := h.svc.Artifacts()
	writeJSON(w, http.StatusOK, ArtifactListResponse{Artifacts: items, Total: len(items)})
}

// GetArtifact handles GET /api/artifacts/{id}.
func (h *Handler) GetArtifact(w http.ResponseWriter, r *http.Request) {
	a, err := h.svc.Artifact(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "get artifact", err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// DownloadArtifact handles GET /api/artifacts/{id}/download.
//
//	@Summary		Download the recording payload
//	@Tags			artifacts
//	@Produce		octet-stream
//	@Param			id	path	string	true	"Artifact id"
//	@Success		200
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/artifacts/{id}/download [get]
func (h *Handler) DownloadArtifact(w http.ResponseWriter, r *http.Request) {
	a, err := h.svc.Artifact(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "download artifact", err)
		return
	}
	w.Header().Set("Content-Type", a.MIMEType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", a.Filename()))
	http.ServeContent(w, r, a.Filename(), a.CreatedAt, bytes.NewReader(a.Payload))
}

// DeleteArtifact handles DELETE /api/artifacts/{id}.
func (h *Handler) DeleteArtifact(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteArtifact(chi.URLParam(r, "id")); err != nil {
		writeError(w, "delete artifact", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UploadArtifact handles POST /api/artifacts/{id}/uploads.
//
//	@Summary		Upload an artifact to sinks (fire-and-forget)
//	@Tags			artifacts
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string			true	"Artifact id"
//	@Param			body	body		UploadRequest	false	"Sinks to use"
//	@Success		202		{array}		sink.Status
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/artifacts/{id}/uploads [post]
func (h *Handler) UploadArtifact(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req UploadRequest
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if err := h.svc.Upload(r.Context(), id, req.Sinks); err != nil {
		writeError(w, "upload artifact", err)
		return
	}
	statuses, _ := h.svc.UploadStatuses(id)
	writeJSON(w, http.StatusAccepted, statuses)
}

// UploadStatuses handles GET /api/artifacts/{id}/uploads.
func (h *Handler) UploadStatuses(w http.ResponseWriter, r *http.Request) {
	statuses, err := h.svc.UploadStatuses(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "upload statuses", err)
		return
	}
	writeJSON(w, http.StatusOK, statuses)
}

// ListSinks handles GET /api/sinks.
func (h *Handler) ListSinks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, SinkListResponse{Sinks: h.svc.Sinks()})
}
