package api

import (
	"github.com/starford/screenflowr/internal/annotation"
	"github.com/starford/screenflowr/internal/artifact"
	"github.com/starford/screenflowr/internal/catalog"
	"github.com/starford/screenflowr/internal/session"
)

// EnabledRequest toggles an optional device.
type EnabledRequest struct {
	Enabled *bool `json:"enabled" example:"true" validate:"required"`
}

// PointRequest carries a pointer position in canvas pixels.
type PointRequest struct {
	X float64 `json:"x" example:"120"`
	Y float64 `json:"y" example:"80"`
}

func (p PointRequest) pos() annotation.Pos { return annotation.Pos{X: p.X, Y: p.Y} }

// TextRequest places a text label.
type TextRequest struct {
	X    float64 `json:"x" example:"40"`
	Y    float64 `json:"y" example:"60"`
	Text string  `json:"text" example:"Look here" validate:"required"`
}

// TextResponse reports whether a label was placed.
type TextResponse struct {
	Placed bool `json:"placed"`
}

// UndoResponse reports whether a mutation was undone.
type UndoResponse struct {
	Undone bool `json:"undone"`
}

// StopResponse is returned by POST /session/stop.
type StopResponse struct {
	Session  session.Snapshot   `json:"session"`
	Artifact *artifact.Artifact `json:"artifact,omitempty"`
}

// ArtifactListResponse wraps the artifact list.
type ArtifactListResponse struct {
	Artifacts []*artifact.Artifact `json:"artifacts" validate:"required"`
	Total     int                  `json:"total" example:"2" validate:"required"`
}

// UploadRequest selects sinks; an empty list means every enabled sink.
type UploadRequest struct {
	Sinks []string `json:"sinks" example:"local-filesystem,drive"`
}

// SinkListResponse lists enabled sinks.
type SinkListResponse struct {
	Sinks []string `json:"sinks" validate:"required"`
}

// RecordingListResponse wraps paginated saved recordings.
type RecordingListResponse struct {
	Recordings []catalog.Recording `json:"recordings" validate:"required"`
	Total      int                 `json:"total" example:"42" validate:"required"`
}

// WSMessage is a pointer message on the annotation WebSocket.
type WSMessage struct {
	Type string  `json:"type"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
}

// WSReply is sent back for committed gestures and errors.
type WSReply struct {
	Type      string                `json:"type"`
	Committed *annotation.Committed `json:"committed,omitempty"`
	Error     string                `json:"error,omitempty"`
}
