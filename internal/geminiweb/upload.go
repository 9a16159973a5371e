package geminiweb

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// uploadFile pushes a local file to the attachment staging endpoint and
// returns the opaque resource id the generate payload references it by.
func (c *Client) uploadFile(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path) // #nosec G304 -- path is a request-scoped temp file
	if err != nil {
		return "", &APIError{Operation: "upload", Message: "opening " + path, Err: err}
	}
	defer func() { _ = f.Close() }()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return "", &APIError{Operation: "upload", Message: "building form", Err: err}
	}
	if _, err := io.Copy(part, f); err != nil {
		return "", &APIError{Operation: "upload", Message: "reading " + path, Err: err}
	}
	if err := mw.Close(); err != nil {
		return "", &APIError{Operation: "upload", Message: "finalizing form", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpointUpload, &buf)
	if err != nil {
		return "", &APIError{Operation: "upload", Message: "building request", Err: err}
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Push-ID", uploadPushID)
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &APIError{Operation: "upload", Message: "request failed", Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", &APIError{Operation: "upload", Message: fmt.Sprintf("unexpected status %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &APIError{Operation: "upload", Message: "reading response", Err: err}
	}

	resourceID := strings.TrimSpace(string(body))
	if resourceID == "" {
		return "", &APIError{Operation: "upload", Message: "empty resource id"}
	}
	return resourceID, nil
}
