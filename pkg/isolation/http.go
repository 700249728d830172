package isolation

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"time"

	_ "golang.org/x/image/webp"
)

// maxErrorBody limits how much of a failed response ends up in the error
const maxErrorBody = 512

// HTTPRemover posts panels to a rembg-compatible matting server.
//
// The request is a multipart form with the PNG-encoded panel in the "file"
// field and the model name in "model". Any image format the server answers
// with and the image package can decode is accepted.
type HTTPRemover struct {
	endpoint string
	model    string
	client   *http.Client
}

// NewHTTPRemover validates endpoint and returns a remover that uses it.
// A zero timeout leaves requests bounded only by the caller's context.
func NewHTTPRemover(endpoint, model string, timeout time.Duration) (*HTTPRemover, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid matting endpoint: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid matting endpoint %q: scheme must be http or https", endpoint)
	}
	return &HTTPRemover{
		endpoint: endpoint,
		model:    model,
		client:   &http.Client{Timeout: timeout},
	}, nil
}

// RemoveBackground sends img to the server and decodes the matted result
func (h *HTTPRemover) RemoveBackground(ctx context.Context, img image.Image) (image.Image, error) {
	body, contentType, err := h.encodeRequest(img)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build matting request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "image/png")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("matting request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("matting server returned %s: %s", resp.Status, bytes.TrimSpace(msg))
	}

	out, format, err := image.Decode(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to decode matting response: %w", err)
	}
	if format == "jpeg" {
		return nil, errors.New("matting server returned a format without alpha")
	}
	return out, nil
}

func (h *HTTPRemover) encodeRequest(img image.Image) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile("file", "panel.png")
	if err != nil {
		return nil, "", err
	}
	if err := png.Encode(part, img); err != nil {
		return nil, "", fmt.Errorf("failed to encode panel: %w", err)
	}
	if h.model != "" {
		if err := w.WriteField("model", h.model); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}
