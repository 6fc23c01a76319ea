// Package stylize calls the external stylization service that pre-processes
// an image before quantization.
package stylize

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

var (
	// ErrStylize marks any stylization failure: network errors, non-2xx
	// responses, and malformed payloads. There is no fallback to the raw
	// input; callers treat the run as failed.
	ErrStylize = errors.New("stylize: request failed")

	// ErrTimeout marks an expired deadline on the outbound call.
	ErrTimeout = errors.New("stylize: request timed out")
)

// archiveImageName is the file the service places inside archive responses.
const archiveImageName = "output_colored.png"

type Options struct {
	BaseURL    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// Client talks to the stylization service. The service accepts raw image
// bytes as a multipart upload and answers with either a stylized image or a
// zip archive containing one.
type Client struct {
	httpClient *http.Client
	baseURL    string
	timeout    time.Duration
}

func NewClient(opts Options) *Client {
	base := strings.TrimRight(opts.BaseURL, "/")
	if base == "" {
		base = "http://localhost:8001"
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	return &Client{httpClient: client, baseURL: base, timeout: timeout}
}

// Result is the tagged response variant: exactly one shape is populated,
// decided by inspecting the payload rather than by a flag.
type Result struct {
	Image   []byte
	Archive []byte
}

// Bytes unwraps the stylized image regardless of the response shape.
func (r *Result) Bytes() ([]byte, error) {
	if len(r.Image) > 0 {
		return r.Image, nil
	}
	if len(r.Archive) > 0 {
		return extractArchiveImage(r.Archive)
	}
	return nil, fmt.Errorf("%w: empty response", ErrStylize)
}

// Apply posts the image to the service and returns the stylized bytes.
func (c *Client) Apply(ctx context.Context, imageBytes []byte) ([]byte, error) {
	res, err := c.do(ctx, imageBytes)
	if err != nil {
		return nil, err
	}
	return res.Bytes()
}

func (c *Client) do(ctx context.Context, imageBytes []byte) (*Result, error) {
	if c == nil {
		return nil, fmt.Errorf("%w: client not configured", ErrStylize)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	part, err := mw.CreateFormFile("file", "input.png")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStylize, err)
	}
	if _, err := part.Write(imageBytes); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStylize, err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStylize, err)
	}

	endpoint := c.baseURL + "/stylize"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStylize, err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrStylize, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: http %d", ErrStylize, resp.StatusCode)
	}
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrStylize, err)
	}
	if len(payload) == 0 {
		return nil, fmt.Errorf("%w: empty response body", ErrStylize)
	}

	if isZip(payload) {
		return &Result{Archive: payload}, nil
	}
	return &Result{Image: payload}, nil
}

// isZip sniffs the zip local-file-header magic.
func isZip(b []byte) bool {
	return len(b) >= 4 && b[0] == 'P' && b[1] == 'K' && b[2] == 0x03 && b[3] == 0x04
}

func extractArchiveImage(archive []byte) ([]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		return nil, fmt.Errorf("%w: bad archive: %v", ErrStylize, err)
	}
	for _, f := range zr.File {
		if f.Name != archiveImageName {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("%w: open %s: %v", ErrStylize, f.Name, err)
		}
		defer rc.Close()
		data, err := io.ReadAll(rc)
		if err != nil {
			return nil, fmt.Errorf("%w: read %s: %v", ErrStylize, f.Name, err)
		}
		return data, nil
	}
	return nil, fmt.Errorf("%w: archive missing %s", ErrStylize, archiveImageName)
}
