package capture

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// captureExt is the capture file suffix.
const captureExt = ".glcap"

// ErrNotFound reports a capture name the store does not have.
var ErrNotFound = errors.New("capture: no such capture")

// Store creates and retrieves named captures. FileStore is the standard
// implementation; the S3 archive store in s3_example.go is a build-tagged
// alternative for shipping captures off the gateway.
type Store interface {
	// Create opens a new capture stream. The name is a caller-chosen
	// prefix; the store appends a timestamp and returns the full name.
	Create(name string) (io.WriteCloser, string, error)

	// Open reads an existing capture by its full name.
	Open(name string) (io.ReadCloser, error)

	// List returns the store's capture names, oldest first.
	List() ([]string, error)
}

// FileStore keeps captures as files in one directory.
type FileStore struct {
	dir string
}

// NewFileStore creates the directory if needed and returns a store over
// it.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("capture: create store dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Create opens a new capture file named <prefix>-<timestamp>.glcap.
func (s *FileStore) Create(name string) (io.WriteCloser, string, error) {
	full := fmt.Sprintf("%s-%s%s",
		sanitize(name), time.Now().UTC().Format("20060102-150405"), captureExt)
	f, err := os.OpenFile(filepath.Join(s.dir, full),
		os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, "", fmt.Errorf("capture: create %s: %w", full, err)
	}
	return f, full, nil
}

// Open reads an existing capture.
func (s *FileStore) Open(name string) (io.ReadCloser, error) {
	f, err := os.Open(filepath.Join(s.dir, filepath.Base(name)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, err
	}
	return f, nil
}

// List returns capture names sorted oldest first. The timestamp in the
// name makes lexical order chronological.
func (s *FileStore) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), captureExt) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// sanitize keeps capture prefixes path-safe.
func sanitize(name string) string {
	if name == "" {
		return "capture"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z',
			r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '-'
		}
	}, name)
}
