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
	"net/url"
	"strings"

	"github.com/starford/screenflowr/internal/artifact"
)

// DefaultDriveEndpoint is the Google APIs base URL.
const DefaultDriveEndpoint = "https://www.googleapis.com"

// DriveOptions configures a Drive sink.
type DriveOptions struct {
	Endpoint    string
	Token       string
	FolderID    string
	SharePublic bool
	Client      *http.Client
}

// Drive uploads artifacts with the Drive v3 multipart upload and optionally
// grants anyone-with-the-link read access.
type Drive struct {
	opts DriveOptions
}

var _ Sink = (*Drive)(nil)

// NewDrive creates a Drive sink.
func NewDrive(opts DriveOptions) *Drive {
	if opts.Endpoint == "" {
		opts.Endpoint = DefaultDriveEndpoint
	}
	opts.Endpoint = strings.TrimRight(opts.Endpoint, "/")
	if opts.Client == nil {
		opts.Client = defaultClient()
	}
	return &Drive{opts: opts}
}

func (d *Drive) Name() string { return NameDrive }

type driveMetadata struct {
	Name     string   `json:"name"`
	MimeType string   `json:"mimeType,omitempty"`
	Parents  []string `json:"parents,omitempty"`
}

type driveFile struct {
	ID string `json:"id"`
}

type driveError struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (d *Drive) Upload(ctx context.Context, a *artifact.Artifact) (Result, error) {
	meta := driveMetadata{Name: a.Filename(), MimeType: a.MIMEType}
	if d.opts.FolderID != "" {
		meta.Parents = []string{d.opts.FolderID}
	}
	body, contentType, err := relatedBody(meta, a)
	if err != nil {
		return Result{}, fmt.Errorf("drive: %w", err)
	}

	var file driveFile
	endpoint := d.opts.Endpoint + "/upload/drive/v3/files?uploadType=multipart&fields=id"
	if err := d.do(ctx, endpoint, contentType, body, &file); err != nil {
		return Result{}, fmt.Errorf("drive: create file: %w", err)
	}
	if file.ID == "" {
		return Result{}, fmt.Errorf("drive: create file: empty id")
	}

	if d.opts.SharePublic {
		perm, _ := json.Marshal(map[string]string{"role": "reader", "type": "anyone"})
		endpoint := d.opts.Endpoint + "/drive/v3/files/" + url.PathEscape(file.ID) + "/permissions"
		if err := d.do(ctx, endpoint, "application/json", bytes.NewReader(perm), nil); err != nil {
			return Result{}, fmt.Errorf("drive: share %s: %w", file.ID, err)
		}
	}
	return Result{Success: true, Location: "https://drive.google.com/file/d/" + file.ID + "/view"}, nil
}

func (d *Drive) do(ctx context.Context, endpoint, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+d.opts.Token)

	resp, err := d.opts.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var de driveError
		if json.Unmarshal(raw, &de) == nil && de.Error.Message != "" {
			return fmt.Errorf("status %d: %s", resp.StatusCode, de.Error.Message)
		}
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(raw, out)
}

// relatedBody builds the multipart/related payload: JSON metadata first,
// then the media.
func relatedBody(meta driveMetadata, a *artifact.Artifact) (io.Reader, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	mh := make(textproto.MIMEHeader)
	mh.Set("Content-Type", "application/json; charset=UTF-8")
	part, err := mw.CreatePart(mh)
	if err != nil {
		return nil, "", err
	}
	if err := json.NewEncoder(part).Encode(meta); err != nil {
		return nil, "", err
	}

	ph := make(textproto.MIMEHeader)
	ph.Set("Content-Type", a.MIMEType)
	part, err = mw.CreatePart(ph)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(a.Payload); err != nil {
		return nil, "", err
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return &buf, "multipart/related; boundary=" + mw.Boundary(), nil
}
