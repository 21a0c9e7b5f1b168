package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/screenflowr/internal/recorder"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
// recordings, if non-nil, exposes the local sink's saved recordings.
func NewRouter(svc *recorder.Service, authEnabled bool, token string, sseHandler http.Handler, recordings *RecordingsHandler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	r.Route("/session", func(r chi.Router) {
		r.Get("/", h.GetSession)
		r.Post("/start", h.StartSession)
		r.Post("/pause", h.PauseSession)
		r.Post("/resume", h.ResumeSession)
		r.Post("/stop", h.StopSession)
	})

	r.Route("/devices", func(r chi.Router) {
		r.Get("/", h.GetDevices)
		r.Put("/camera", h.SetCamera)
		r.Put("/microphone", h.SetMicrophone)
	})

	r.Route("/annotations", func(r chi.Router) {
		r.Get("/", h.GetAnnotations)
		r.Put("/tool", h.SetTool)
		r.Post("/gesture/begin", h.BeginGesture)
		r.Post("/gesture/move", h.MoveGesture)
		r.Post("/gesture/commit", h.CommitGesture)
		r.Post("/gesture/cancel", h.CancelGesture)
		r.Post("/text", h.PlaceText)
		r.Post("/undo", h.Undo)
		r.Post("/clear", h.ClearAnnotations)
		r.Get("/render.png", h.RenderPNG)
		r.Get("/export.pdf", h.ExportPDF)
		r.Get("/ws", h.GestureSocket)
	})

	r.Route("/artifacts", func(r chi.Router) {
		r.Get("/", h.ListArtifacts)
		r.Get("/{id}", h.GetArtifact)
		r.Get("/{id}/download", h.DownloadArtifact)
		r.Delete("/{id}", h.DeleteArtifact)
		r.Post("/{id}/uploads", h.UploadArtifact)
		r.Get("/{id}/uploads", h.UploadStatuses)
	})

	r.Get("/sinks", h.ListSinks)

	if recordings != nil {
		r.Get("/recordings", recordings.List)
		r.Post("/recordings", recordings.Import)
		r.Get("/recordings/*", recordings.ServeFile)
		r.Delete("/recordings/*", recordings.Delete)
	}

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
