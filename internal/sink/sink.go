// Package sink persists assembled media buffers and direct-URL downloads
// into the local filesystem, applying filename sanitization and the
// overwrite/uniquify conflict policies.
package sink

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/mediasieve/mediasieve/internal/fetch"
)

// ConflictPolicy selects filesystem behavior when the target path exists.
type ConflictPolicy string

const (
	// Overwrite replaces an existing file. Used when re-downloading the
	// same logical asset should refresh it in place.
	Overwrite ConflictPolicy = "overwrite"

	// Uniquify appends " (N)" before the extension until the name is
	// free, so repeated assembly attempts never clobber prior results.
	Uniquify ConflictPolicy = "uniquify"
)

// Sink writes downloads under a root directory.
type Sink struct {
	root   string
	logger hclog.Logger
}

// New creates a sink rooted at dir, creating it if needed.
func New(dir string, logger hclog.Logger) (*Sink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	return &Sink{root: dir, logger: logger}, nil
}

// Root returns the sink's root directory.
func (s *Sink) Root() string { return s.root }

// WriteBytes persists an assembled buffer as <root>/<folder>/<name>.
// The bytes land in a temp file first and are renamed into place; if the
// rename fails the sink falls back to writing the final path directly.
func (s *Sink) WriteBytes(folder, name string, data []byte, policy ConflictPolicy) (string, error) {
	target, err := s.resolveTarget(folder, name, policy)
	if err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".mediasieve-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("failed to write %s: %w", target, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("failed to write %s: %w", target, err)
	}

	if err := os.Rename(tmpName, target); err != nil {
		// Rename can fail on some filesystems; recover with a plain
		// write of the final path.
		os.Remove(tmpName)
		s.logger.Warn("rename failed, writing target directly", "target", target, "error", err)
		if err := os.WriteFile(target, data, 0o644); err != nil {
			return "", fmt.Errorf("failed to write %s: %w", target, err)
		}
	}

	s.logger.Info("wrote file", "path", target, "bytes", len(data))
	return target, nil
}

// DownloadURL streams a URL straight to <root>/<folder>/<name> without
// buffering the body in memory. onProgress, when non-nil, receives the
// running byte count and the total (-1 if the server did not say).
func (s *Sink) DownloadURL(ctx context.Context, client *fetch.Client, url, folder, name string, policy ConflictPolicy, onProgress func(written, total int64)) (string, error) {
	target, err := s.resolveTarget(folder, name, policy)
	if err != nil {
		return "", err
	}

	body, total, err := client.Stream(ctx, url)
	if err != nil {
		return "", err
	}
	defer body.Close()

	out, err := os.Create(target)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", target, err)
	}

	var written int64
	buf := make([]byte, 256*1024)
	for {
		n, readErr := body.Read(buf)
		if n > 0 {
			if _, writeErr := out.Write(buf[:n]); writeErr != nil {
				out.Close()
				os.Remove(target)
				return "", fmt.Errorf("failed to write %s: %w", target, writeErr)
			}
			written += int64(n)
			if onProgress != nil {
				onProgress(written, total)
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			out.Close()
			os.Remove(target)
			return "", fmt.Errorf("failed to read %s: %w", url, readErr)
		}
	}

	if err := out.Close(); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", target, err)
	}

	s.logger.Info("downloaded file", "path", target, "bytes", written)
	return target, nil
}

// resolveTarget sanitizes the folder and name, creates the folder, and
// applies the conflict policy.
func (s *Sink) resolveTarget(folder, name string, policy ConflictPolicy) (string, error) {
	folder = SanitizeName(folder)
	if folder == "" {
		folder = "videos"
	}
	name = SanitizeName(name)
	if name == "" {
		name = "video"
	}

	dir := filepath.Join(s.root, folder)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create folder %s: %w", dir, err)
	}

	target := filepath.Join(dir, name)
	if policy == Uniquify {
		target = uniquePath(target)
	}
	return target, nil
}

// uniquePath returns path itself if free, otherwise the first
// "name (N).ext" variant that does not exist yet.
func uniquePath(path string) string {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return path
	}

	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(path, ext)
	for n := 1; ; n++ {
		candidate := fmt.Sprintf("%s (%d)%s", stem, n, ext)
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate
		}
	}
}
