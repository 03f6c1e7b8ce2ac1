// Package documents locates the documents named by extraction requests.
// Paths are local files (resolved against a base directory when relative) or
// object store URLs of the form s3://bucket/key.
package documents

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ternarybob/arbor"
)

// ErrDocumentNotFound is returned when a document path does not resolve to a readable file
var ErrDocumentNotFound = errors.New("document not found")

const objectScheme = "s3://"

// Info describes a resolved document
type Info struct {
	Path     string `json:"path"`
	Name     string `json:"name"`
	Size     int64  `json:"size"`
	MIMEType string `json:"mime_type,omitempty"`
	Pages    int    `json:"pages,omitempty"`
}

// Opener returns a fresh reader over a document and its size (-1 when unknown)
type Opener func(ctx context.Context) (io.ReadCloser, int64, error)

// Resolver maps document paths onto local files or object store entries
type Resolver struct {
	baseDir string
	objects *ObjectStore
	logger  arbor.ILogger
}

// NewResolver creates a Resolver. objects may be nil, in which case s3:// paths are rejected.
func NewResolver(baseDir string, objects *ObjectStore, logger arbor.ILogger) *Resolver {
	return &Resolver{
		baseDir: baseDir,
		objects: objects,
		logger:  logger,
	}
}

// IsObjectPath reports whether path names an object store entry
func IsObjectPath(path string) bool {
	return strings.HasPrefix(path, objectScheme)
}

func (r *Resolver) localPath(path string) string {
	if filepath.IsAbs(path) || r.baseDir == "" {
		return filepath.Clean(path)
	}
	return filepath.Join(r.baseDir, path)
}

// Stat checks that the document exists and returns its basic info
func (r *Resolver) Stat(ctx context.Context, path string) (*Info, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("%w: empty path", ErrDocumentNotFound)
	}

	if IsObjectPath(path) {
		if r.objects == nil {
			return nil, fmt.Errorf("%w: object storage is not configured for %s", ErrDocumentNotFound, path)
		}
		return r.objects.Stat(ctx, path)
	}

	local := r.localPath(path)
	info, err := os.Stat(local)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrDocumentNotFound, path)
		}
		return nil, fmt.Errorf("failed to stat document %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", ErrDocumentNotFound, path)
	}

	return &Info{
		Path: local,
		Name: filepath.Base(local),
		Size: info.Size(),
	}, nil
}

// Open returns an Opener that reads the document afresh on every call
func (r *Resolver) Open(path string) Opener {
	if IsObjectPath(path) {
		return func(ctx context.Context) (io.ReadCloser, int64, error) {
			if r.objects == nil {
				return nil, 0, fmt.Errorf("%w: object storage is not configured for %s", ErrDocumentNotFound, path)
			}
			return r.objects.Open(ctx, path)
		}
	}

	local := r.localPath(path)
	return func(ctx context.Context) (io.ReadCloser, int64, error) {
		f, err := os.Open(local)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, 0, fmt.Errorf("%w: %s", ErrDocumentNotFound, path)
			}
			return nil, 0, err
		}
		info, err := f.Stat()
		if err != nil {
			f.Close()
			return nil, 0, err
		}
		return f, info.Size(), nil
	}
}

// Name returns the file name used when uploading path
func Name(path string) string {
	if IsObjectPath(path) {
		return filepath.Base(strings.TrimPrefix(path, objectScheme))
	}
	return filepath.Base(path)
}
