// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes the recorder to LLM agents via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/screenflowr/internal/annotation"
	"github.com/starford/screenflowr/internal/catalog"
	"github.com/starford/screenflowr/internal/recorder"
	"github.com/starford/screenflowr/internal/storage"
)

const sessionURI = "screenflowr://session"

// Server wraps the MCP server with recorder tools.
type Server struct {
	mcp     *server.MCPServer
	svc     *recorder.Service
	store   storage.Provider
	catalog catalog.Catalog
	fetcher *fetcher
}

// New creates a new MCP server with all tools registered. store and cat may
// be nil, in which case import_recording is not offered.
func New(svc *recorder.Service, store storage.Provider, cat catalog.Catalog) *Server {
	s := &Server{svc: svc, store: store, catalog: cat, fetcher: newFetcher(maxImportSize)}

	s.mcp = server.NewMCPServer(
		"Screenflowr",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("recording_status",
		mcp.WithDescription("Report the recording state, elapsed seconds and device flags."),
	), s.recordingStatus)

	s.mcp.AddTool(mcp.NewTool("start_recording",
		mcp.WithDescription("Start a new screen recording. Fails if a recording is already running."),
	), s.startRecording)

	s.mcp.AddTool(mcp.NewTool("pause_recording",
		mcp.WithDescription("Pause the running recording. Paused time is not counted."),
	), s.pauseRecording)

	s.mcp.AddTool(mcp.NewTool("resume_recording",
		mcp.WithDescription("Resume a paused recording."),
	), s.resumeRecording)

	s.mcp.AddTool(mcp.NewTool("stop_recording",
		mcp.WithDescription("Stop the recording and store the result as an artifact."),
	), s.stopRecording)

	s.mcp.AddTool(mcp.NewTool("list_artifacts",
		mcp.WithDescription("List finished recordings held in memory, newest last."),
	), s.listArtifacts)

	s.mcp.AddTool(mcp.NewTool("delete_artifact",
		mcp.WithDescription("Discard a finished recording."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Artifact ID")),
	), s.deleteArtifact)

	s.mcp.AddTool(mcp.NewTool("upload_artifact",
		mcp.WithDescription("Upload an artifact and wait for every sink to finish. "+
			"Each sink reports its own outcome."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Artifact ID")),
		mcp.WithString("sinks", mcp.Description("Comma-separated sink names (empty for every enabled sink)")),
	), s.uploadArtifact)

	s.mcp.AddTool(mcp.NewTool("annotation_state",
		mcp.WithDescription("Return committed annotations, tool settings and counts."),
	), s.annotationState)

	s.mcp.AddTool(mcp.NewTool("place_text",
		mcp.WithDescription("Place a text label on the annotation canvas with the current color."),
		mcp.WithNumber("x", mcp.Required(), mcp.Description("X position in canvas pixels")),
		mcp.WithNumber("y", mcp.Required(), mcp.Description("Y position in canvas pixels")),
		mcp.WithString("text", mcp.Required(), mcp.Description("Label text; blank text is ignored")),
	), s.placeText)

	s.mcp.AddTool(mcp.NewTool("undo_annotation",
		mcp.WithDescription("Revert the most recent annotation change."),
	), s.undoAnnotation)

	s.mcp.AddTool(mcp.NewTool("clear_annotations",
		mcp.WithDescription("Remove every annotation. The clear itself can be undone."),
	), s.clearAnnotations)

	s.mcp.AddTool(mcp.NewTool("get_usage_guide",
		mcp.WithDescription("Returns how the recording and annotation tools fit together. "+
			"Call this before driving a recording."),
	), s.getUsageGuide)

	if store != nil && cat != nil {
		s.mcp.AddTool(mcp.NewTool("import_recording",
			mcp.WithDescription("Copy a WebM or MP4 file into the recordings directory. "+
				"Accepts an http(s) URL or a base64 data URI."),
			mcp.WithString("url", mcp.Required(), mcp.Description("http(s) URL or data:video/webm;base64,... URI")),
			mcp.WithString("filename", mcp.Description("Target filename (derived from the URL when empty)")),
		), s.importRecording)
	}

	s.mcp.AddResource(
		mcp.NewResource(sessionURI, "Recording Session",
			mcp.WithResourceDescription("Live snapshot of the recording session."),
			mcp.WithMIMEType("application/json"),
		),
		s.readSessionResource,
	)
	s.mcp.AddResource(
		mcp.NewResource(guideURI, "Usage Guide",
			mcp.WithResourceDescription("How to drive recordings and annotations."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readGuideResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) *mcp.CallToolResult {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultText(string(out))
}

func (s *Server) recordingStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.svc.Status()), nil
}

func (s *Server) startRecording(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	snap, err := s.svc.Start(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(snap), nil
}

func (s *Server) pauseRecording(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.svc.Pause()), nil
}

func (s *Server) resumeRecording(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.svc.Resume()), nil
}

func (s *Server) stopRecording(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	a, err := s.svc.Stop(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if a == nil {
		return mcp.NewToolResultText("nothing was recording"), nil
	}
	return jsonResult(a), nil
}

func (s *Server) listArtifacts(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	items := s.svc.Artifacts()
	if len(items) == 0 {
		return mcp.NewToolResultText("no artifacts"), nil
	}
	return jsonResult(items), nil
}

func (s *Server) deleteArtifact(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.svc.DeleteArtifact(id); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("deleted: %s", id)), nil
}

func (s *Server) uploadArtifact(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var names []string
	if raw, err := req.RequireString("sinks"); err == nil {
		for _, n := range strings.Split(raw, ",") {
			if n = strings.TrimSpace(n); n != "" {
				names = append(names, n)
			}
		}
	}

	statuses, err := s.svc.UploadWait(ctx, id, names)
	if statuses == nil && err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res := jsonResult(statuses)
	// Partial failures still report every sink.
	res.IsError = err != nil
	return res, nil
}

func (s *Server) annotationState(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.svc.Annotations()), nil
}

func (s *Server) placeText(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	x, err := req.RequireFloat("x")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	y, err := req.RequireFloat("y")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	text, err := req.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	placed, err := s.svc.PlaceText(annotation.Pos{X: x, Y: y}, text)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if !placed {
		return mcp.NewToolResultText("blank text ignored"), nil
	}
	return mcp.NewToolResultText("placed"), nil
}

func (s *Server) undoAnnotation(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if !s.svc.Undo() {
		return mcp.NewToolResultText("nothing to undo"), nil
	}
	return mcp.NewToolResultText("undone"), nil
}

func (s *Server) clearAnnotations(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.svc.ClearAnnotations()
	return mcp.NewToolResultText("cleared"), nil
}

func (s *Server) getUsageGuide(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(UsageGuide), nil
}

func (s *Server) readSessionResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	out, err := json.Marshal(s.svc.Status())
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      sessionURI,
			MIMEType: "application/json",
			Text:     string(out),
		},
	}, nil
}

func (s *Server) readGuideResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      guideURI,
			MIMEType: "text/markdown",
			Text:     UsageGuide,
		},
	}, nil
}
