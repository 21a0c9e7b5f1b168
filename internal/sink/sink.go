// Package sink delivers finished artifacts to external destinations: the
// local recordings directory, a generic HTTP endpoint and Google Drive.
package sink

import (
	"context"
	"net/http"
	"time"

	"github.com/starford/screenflowr/internal/artifact"
)

// Sink names.
const (
	NameLocal  = "local-filesystem"
	NameRemote = "generic-remote"
	NameDrive  = "drive"
)

// Result is the outcome of a single upload.
type Result struct {
	Success  bool   `json:"success"`
	Location string `json:"location,omitempty"`
}

// Sink accepts artifacts.
type Sink interface {
	Name() string
	Upload(ctx context.Context, a *artifact.Artifact) (Result, error)
}

const defaultTimeout = 5 * time.Minute

func defaultClient() *http.Client {
	return &http.Client{Timeout: defaultTimeout}
}
