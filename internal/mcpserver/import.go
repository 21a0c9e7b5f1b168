package mcpserver

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/screenflowr/internal/catalog"
	"github.com/starford/screenflowr/internal/storage"
)

const maxImportSize = 512 << 20 // 512 MB

var (
	mimeToExt = map[string]string{
		"video/webm": ".webm",
		"video/mp4":  ".mp4",
	}

	unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9._-]`)
)

type importResult struct {
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
	Checksum string `json:"checksum"`
	URL      string `json:"url"`
}

func (s *Server) importRecording(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rawURL, err := req.RequireString("url")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var (
		data []byte
		ext  string
	)
	if strings.HasPrefix(rawURL, "data:") {
		data, ext, err = decodeDataURI(rawURL)
	} else {
		data, ext, err = s.fetcher.fetch(ctx, rawURL)
	}
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(data) > maxImportSize {
		return mcp.NewToolResultError(fmt.Sprintf("recording is %d bytes, the limit is %d", len(data), maxImportSize)), nil
	}

	filename := targetName(req.GetString("filename", ""), rawURL, ext)
	if !storage.IsRecording(filename) {
		return mcp.NewToolResultError(fmt.Sprintf("%s is not a .webm or .mp4 file", filename)), nil
	}
	if err := checkContainer(data, strings.ToLower(filepath.Ext(filename))); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if _, err := s.catalog.Get(filename); err == nil {
		return mcp.NewToolResultError(fmt.Sprintf("%s already exists", filename)), nil
	}
	if err := s.store.Write(filename, data); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("save recording: %v", err)), nil
	}
	meta, err := s.store.Stat(filename)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.catalog.Record(catalog.Recording{
		Filename:  filename,
		Checksum:  meta.Checksum,
		Size:      meta.Size,
		CreatedAt: meta.ModTime,
	}); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("catalog recording: %v", err)), nil
	}

	out, _ := json.Marshal(importResult{
		Filename: filename,
		Size:     meta.Size,
		Checksum: meta.Checksum,
		URL:      "/api/recordings/" + filename,
	})
	return mcp.NewToolResultText(string(out)), nil
}

// errBlockedHost is returned for hosts the importer refuses to contact.
var errBlockedHost = errors.New("blocked host")

// decodeDataURI parses a data:<mediatype>;base64,<data> URI and returns the
// payload with the extension implied by the media type.
func decodeDataURI(uri string) ([]byte, string, error) {
	header, body, ok := strings.Cut(strings.TrimPrefix(uri, "data:"), ",")
	if !ok {
		return nil, "", errors.New("data URI has no payload")
	}
	mediaType, isBase64 := strings.CutSuffix(header, ";base64")
	if !isBase64 {
		return nil, "", errors.New("data URI must be base64 encoded")
	}
	mediaType, _, _ = strings.Cut(mediaType, ";")
	ext, known := mimeToExt[mediaType]
	if !known {
		return nil, "", fmt.Errorf("data URI media type %q is not a recording", mediaType)
	}

	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding} {
		if data, err := enc.DecodeString(body); err == nil {
			return data, ext, nil
		}
	}
	return nil, "", errors.New("data URI payload is not valid base64")
}

// fetcher downloads remote recordings, refusing loopback and cloud metadata
// hosts on the first request and on every redirect.
type fetcher struct {
	client *http.Client
	limit  int64
}

func newFetcher(limit int64) *fetcher {
	f := &fetcher{limit: limit}
	f.client = &http.Client{
		Timeout: 5 * time.Minute,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return allowHost(req.URL.Hostname())
		},
	}
	return f
}

const maxRedirects = 5

func (f *fetcher) fetch(ctx context.Context, rawURL string) ([]byte, string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, "", fmt.Errorf("parse url: %w", err)
	}
	switch u.Scheme {
	case "http", "https":
	default:
		return nil, "", fmt.Errorf("scheme %q not allowed, use http or https", u.Scheme)
	}
	if err := allowHost(u.Hostname()); err != nil {
		return nil, "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, "", fmt.Errorf("build request: %w", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("download: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("download: unexpected status %s", resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.limit+1))
	if err != nil {
		return nil, "", fmt.Errorf("download: read body: %w", err)
	}
	if int64(len(data)) > f.limit {
		return nil, "", fmt.Errorf("download exceeds %d bytes", f.limit)
	}
	mediaType, _, _ := strings.Cut(resp.Header.Get("Content-Type"), ";")
	return data, mimeToExt[strings.TrimSpace(mediaType)], nil
}

// allowHost rejects loopback, link-local (which covers the 169.254.169.254
// metadata endpoint) and unspecified addresses. Unresolvable names pass so the
// HTTP client reports the DNS error.
func allowHost(host string) error {
	if strings.EqualFold(host, "metadata.google.internal") {
		return fmt.Errorf("%w: %s", errBlockedHost, host)
	}
	ips := []net.IP{net.ParseIP(host)}
	if ips[0] == nil {
		resolved, err := net.LookupIP(host)
		if err != nil {
			return nil //nolint:nilerr // surfaced by the HTTP client
		}
		ips = resolved
	}
	for _, ip := range ips {
		if ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsUnspecified() {
			return fmt.Errorf("%w: %s resolves to %s", errBlockedHost, host, ip)
		}
	}
	return nil
}

// targetName picks the saved filename: the caller's choice, else the last
// URL path segment, else a UUID with the detected extension.
func targetName(requested, rawURL, detectedExt string) string {
	name := requested
	if name == "" && !strings.HasPrefix(rawURL, "data:") {
		if u, err := url.Parse(rawURL); err == nil {
			if base := path.Base(u.Path); strings.Contains(base, ".") {
				name = base
			}
		}
	}
	if name == "" {
		ext := detectedExt
		if ext == "" {
			ext = ".webm"
		}
		name = uuid.NewString() + ext
	}
	name = unsafeChars.ReplaceAllString(filepath.Base(name), "_")
	if strings.Trim(name, "._") == "" {
		return uuid.NewString() + ".webm"
	}
	return name
}

var ebmlMagic = []byte{0x1a, 0x45, 0xdf, 0xa3}

// checkContainer verifies the payload starts like the container its
// extension claims.
func checkContainer(data []byte, ext string) error {
	switch ext {
	case ".webm":
		if !bytes.HasPrefix(data, ebmlMagic) {
			return errors.New("payload is not WebM: missing EBML header")
		}
	case ".mp4":
		if len(data) < 8 || string(data[4:8]) != "ftyp" {
			return errors.New("payload is not MP4: missing ftyp box")
		}
	default:
		return fmt.Errorf("no container check for %s", ext)
	}
	return nil
}
