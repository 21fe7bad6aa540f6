package storage

import (
	"errors"
	"io"
	"path"
	"strings"
)

var (
	ErrNotFound = errors.New("blob not found")
	ErrBadKey   = errors.New("invalid blob key")
)

// BlobStore keeps uploaded sheets and exported workbooks next to the run record.
type BlobStore interface {
	Put(key string, r io.Reader) (string, error) // returns canonical key
	Get(key string) (io.ReadCloser, error)
	URL(key string) (string, error) // fs returns "file://..." for dev
}

// RunKey is the canonical key for a file belonging to a run.
func RunKey(runID, name string) string {
	return path.Join("runs", runID, path.Base(strings.ReplaceAll(name, "\\", "/")))
}

// cleanKey rejects keys that are empty, absolute or climb out of the store root.
func cleanKey(key string) (string, error) {
	k := path.Clean(strings.ReplaceAll(key, "\\", "/"))
	if key == "" || k == "." || strings.HasPrefix(k, "/") || k == ".." || strings.HasPrefix(k, "../") {
		return "", ErrBadKey
	}
	return k, nil
}
