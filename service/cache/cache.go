package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrNotFound is matched by every NotFoundError via errors.Is.
var ErrNotFound = errors.New("transaction not cached")

// NotFoundError is returned by Read when no document is stored for a signature.
type NotFoundError struct {
	Signature string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("transaction %s not cached", e.Signature)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// Cache is a content-addressed store of raw transaction documents keyed by signature.
// Implementations never reach the network.
type Cache interface {
	// Exists reports whether a document for signature is durably stored.
	Exists(ctx context.Context, signature string) (bool, error)

	// Read returns the stored document, or a *NotFoundError.
	Read(ctx context.Context, signature string) (json.RawMessage, error)

	// Write stores doc under signature, replacing any previous document.
	// A concurrent Read never observes a partially written document.
	Write(ctx context.Context, signature string, doc json.RawMessage) error
}

// FileCache stores one pretty-printed JSON file per signature in a single folder.
type FileCache struct {
	dir string
}

// NewFileCache returns a FileCache rooted at dir. The folder is created by
// the first Write, so an unused cache leaves nothing on disk.
func NewFileCache(dir string) (*FileCache, error) {
	if dir == "" {
		return nil, fmt.Errorf("cache folder is required")
	}
	return &FileCache{dir: dir}, nil
}

// Dir returns the folder backing the cache.
func (c *FileCache) Dir() string {
	return c.dir
}

// Exists reports whether <dir>/<signature>.json is present.
func (c *FileCache) Exists(ctx context.Context, signature string) (bool, error) {
	path, err := c.path(signature)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("failed to stat cached transaction %s: %w", signature, err)
}

// Read returns the stored document bytes exactly as written.
func (c *FileCache) Read(ctx context.Context, signature string) (json.RawMessage, error) {
	path, err := c.path(signature)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &NotFoundError{Signature: signature}
		}
		return nil, fmt.Errorf("failed to read cached transaction %s: %w", signature, err)
	}
	return json.RawMessage(data), nil
}

// Write pretty-prints doc into a temp file in the cache folder and renames it into place.
// The rename is atomic on POSIX filesystems, so readers see either the old or the new file.
func (c *FileCache) Write(ctx context.Context, signature string, doc json.RawMessage) error {
	path, err := c.path(signature)
	if err != nil {
		return err
	}
	if !json.Valid(doc) {
		return fmt.Errorf("refusing to cache invalid JSON for transaction %s", signature)
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, doc, "", "    "); err != nil {
		return fmt.Errorf("failed to format transaction %s: %w", signature, err)
	}
	pretty.WriteByte('\n')

	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create cache folder %q: %w", c.dir, err)
	}
	tmp, err := os.CreateTemp(c.dir, "."+signature+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", signature, err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(pretty.Bytes()); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("failed to write transaction %s: %w", signature, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("failed to sync transaction %s: %w", signature, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("failed to close transaction %s: %w", signature, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("failed to move transaction %s into cache: %w", signature, err)
	}
	return nil
}

// path maps a signature to its file, rejecting anything that could escape the folder.
func (c *FileCache) path(signature string) (string, error) {
	if signature == "" || strings.ContainsAny(signature, `/\`) || strings.HasPrefix(signature, ".") {
		return "", fmt.Errorf("invalid signature %q", signature)
	}
	return filepath.Join(c.dir, signature+".json"), nil
}
