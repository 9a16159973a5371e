// Package gateway - attachments.go stages multipart uploads as temp files.
//
// DESIGN: The upstream client takes attachment paths, so multipart uploads
// are staged to disk first. Staged files are request-scoped: release runs on
// every exit path, and a failed removal is logged but never masks the
// handler's primary result.
package gateway

import (
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
)

// stageUpload copies one multipart part into a temp file, preserving the
// original extension so the upstream sees a recognizable filename.
func stageUpload(header *multipart.FileHeader) (string, error) {
	src, err := header.Open()
	if err != nil {
		return "", fmt.Errorf("opening upload %q: %w", header.Filename, err)
	}
	defer func() { _ = src.Close() }()

	ext := filepath.Ext(header.Filename)
	dst, err := os.CreateTemp("", "gateway-upload-*"+ext)
	if err != nil {
		return "", fmt.Errorf("staging upload %q: %w", header.Filename, err)
	}

	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		_ = os.Remove(dst.Name())
		return "", fmt.Errorf("writing upload %q: %w", header.Filename, err)
	}
	if err := dst.Close(); err != nil {
		_ = os.Remove(dst.Name())
		return "", fmt.Errorf("closing staged upload %q: %w", header.Filename, err)
	}
	return dst.Name(), nil
}

// releaseStaged removes staged files. Individual failures are swallowed and
// logged; the caller's result stands regardless.
func releaseStaged(paths []string) {
	for _, path := range paths {
		if path == "" {
			continue
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			log.Warn().Str("path", path).Err(err).Msg("failed to release staged upload")
		}
	}
}
