package api

import (
	"bytes"
	"net/http"
)

// GetAnnotations handles GET /api/annotations.
//
//	@Summary		Annotation layer state, tool settings and live gesture
//	@Tags			annotations
//	@Produce		json
//	@Success		200	{object}	recorder.AnnotationView
//	@Security		BearerAuth
//	@Router			/annotations [get]
func (h *Handler) GetAnnotations(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Annotations())
}

// SetTool handles PUT /api/annotations/tool. Fields left out of the body
// keep their current values.
func (h *Handler) SetTool(w http.ResponseWriter, r *http.Request) {
	settings := h.svc.Annotations().Settings
	if !decodeJSON(w, r, &settings) {
		return
	}
	if err := h.svc.SetTool(settings); err != nil {
		writeError(w, "set tool", err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

// BeginGesture handles POST /api/annotations/gesture/begin.
func (h *Handler) BeginGesture(w http.ResponseWriter, r *http.Request) {
	var req PointRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.svc.BeginGesture(req.pos()); err != nil {
		writeError(w, "begin gesture", err)
		return
	}
	writeJSON(w, http.StatusOK, h.svc.Annotations())
}

// MoveGesture handles POST /api/annotations/gesture/move.
func (h *Handler) MoveGesture(w http.ResponseWriter, r *http.Request) {
	var req PointRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	h.svc.MoveGesture(req.pos())
	w.WriteHeader(http.StatusNoContent)
}

// CommitGesture handles POST /api/annotations/gesture/commit.
func (h *Handler) CommitGesture(w http.ResponseWriter, r *http.Request) {
	c, err := h.svc.CommitGesture()
	if err != nil {
		writeError(w, "commit gesture", err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// CancelGesture handles POST /api/annotations/gesture/cancel.
func (h *Handler) CancelGesture(w http.ResponseWriter, r *http.Request) {
	h.svc.CancelGesture()
	w.WriteHeader(http.StatusNoContent)
}

// PlaceText handles POST /api/annotations/text.
func (h *Handler) PlaceText(w http.ResponseWriter, r *http.Request) {
	var req TextRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	placed, err := h.svc.PlaceText(PointRequest{X: req.X, Y: req.Y}.pos(), req.Text)
	if err != nil {
		writeError(w, "place text", err)
		return
	}
	writeJSON(w, http.StatusOK, TextResponse{Placed: placed})
}

// Undo handles POST /api/annotations/undo.
func (h *Handler) Undo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, UndoResponse{Undone: h.svc.Undo()})
}

// ClearAnnotations handles POST /api/annotations/clear.
func (h *Handler) ClearAnnotations(w http.ResponseWriter, r *http.Request) {
	h.svc.ClearAnnotations()
	w.WriteHeader(http.StatusNoContent)
}

// RenderPNG handles GET /api/annotations/render.png.
func (h *Handler) RenderPNG(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := h.svc.RenderPNG(&buf); err != nil {
		writeError(w, "render png", err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(buf.Bytes())
}

// ExportPDF handles GET /api/annotations/export.pdf.
func (h *Handler) ExportPDF(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := h.svc.ExportPDF(&buf); err != nil {
		writeError(w, "export pdf", err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="annotations.pdf"`)
	_, _ = w.Write(buf.Bytes())
}
