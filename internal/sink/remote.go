package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"

	"github.com/starford/screenflowr/internal/artifact"
)

// Remote posts artifacts as multipart/form-data to a single endpoint. The
// endpoint answers with JSON carrying the stored file's url.
type Remote struct {
	url    string
	token  string
	client *http.Client
}

var _ Sink = (*Remote)(nil)

// NewRemote creates a generic remote sink. client may be nil.
func NewRemote(endpoint, token string, client *http.Client) *Remote {
	if client == nil {
		client = defaultClient()
	}
	return &Remote{url: endpoint, token: token, client: client}
}

func (r *Remote) Name() string { return NameRemote }

type remoteResponse struct {
	Success *bool  `json:"success"`
	URL     string `json:"url"`
	Error   string `json:"error"`
}

func (r *Remote) Upload(ctx context.Context, a *artifact.Artifact) (Result, error) {
	body, contentType, err := formBody(a)
	if err != nil {
		return Result{}, fmt.Errorf("remote: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, body)
	if err != nil {
		return Result{}, fmt.Errorf("remote: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("remote: %w", err)
	}
	defer resp.Body.Close()

	var out remoteResponse
	_ = json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if out.Error != "" {
			return Result{}, fmt.Errorf("remote: status %d: %s", resp.StatusCode, out.Error)
		}
		return Result{}, fmt.Errorf("remote: status %d", resp.StatusCode)
	}
	if out.Success != nil && !*out.Success {
		return Result{}, fmt.Errorf("remote: rejected: %s", out.Error)
	}
	return Result{Success: true, Location: out.URL}, nil
}

// formBody encodes a as the "file" field of a multipart form.
func formBody(a *artifact.Artifact) (io.Reader, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, a.Filename()))
	h.Set("Content-Type", a.MIMEType)
	part, err := mw.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(a.Payload); err != nil {
		return nil, "", err
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return &buf, mw.FormDataContentType(), nil
}
