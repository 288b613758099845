package objectstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/MrSnakeDoc/warden/internal/logger"
	"github.com/MrSnakeDoc/warden/internal/utils"
)

// Store is durable blob storage keyed by a logical name.
type Store interface {
	// Get returns the blob stored under name. Missing blobs yield ErrNotFound.
	Get(ctx context.Context, name string) ([]byte, Meta, error)

	// Put replaces the blob stored under name atomically.
	Put(ctx context.Context, name string, data []byte) error
}

var (
	ErrNotFound = errors.New("object not found")
	ErrCorrupt  = errors.New("object failed integrity check")
)

// FS keeps each blob as <dir>/<name> with a <name>.meta.json sidecar.
type FS struct {
	dir string
	mu  sync.Mutex // serializes writers; readers rely on atomic renames
	now func() time.Time
}

func NewFS(dataDir string) (*FS, error) {
	if strings.TrimSpace(dataDir) == "" {
		return nil, fmt.Errorf("object store directory is required")
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", dataDir, err)
	}
	return &FS{dir: dataDir, now: time.Now}, nil
}

func (s *FS) Get(ctx context.Context, name string) ([]byte, Meta, error) {
	if err := ctx.Err(); err != nil {
		return nil, Meta{}, err
	}
	blobPath, metaPath, err := s.paths(name)
	if err != nil {
		return nil, Meta{}, err
	}

	data, err := os.ReadFile(blobPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, Meta{}, ErrNotFound
		}
		return nil, Meta{}, fmt.Errorf("read %s: %w", name, err)
	}

	var m Meta
	if err := utils.ReadJSON(metaPath, &m); err != nil {
		// A blob without its sidecar predates meta files; trust the bytes.
		if errors.Is(err, os.ErrNotExist) {
			return data, Meta{Name: name, SizeBytes: int64(len(data)), SHA256: utils.Sha256Hex(data)}, nil
		}
		return nil, Meta{}, fmt.Errorf("read meta %s: %w", name, err)
	}

	if m.SizeBytes != int64(len(data)) {
		return nil, m, fmt.Errorf("%w: %s size %d, meta says %d", ErrCorrupt, name, len(data), m.SizeBytes)
	}
	if m.SHA256 != "" {
		if err := utils.VerifyChecksum(data, m.SHA256); err != nil {
			return nil, m, fmt.Errorf("%w: %s: %v", ErrCorrupt, name, err)
		}
	}
	return data, m, nil
}

// Put writes the blob first and the sidecar second, both atomically, so a
// reader never sees meta describing bytes that are not on disk yet.
func (s *FS) Put(ctx context.Context, name string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	blobPath, metaPath, err := s.paths(name)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	logger.Debug("object store: writing %s (size=%s)", blobPath, utils.HumanSize(int64(len(data))))

	if err := utils.WriteBytesAtomic(blobPath, data); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	m := Meta{
		Name:      name,
		SizeBytes: int64(len(data)),
		SHA256:    utils.Sha256Hex(data),
		StoredAt:  s.now().UTC(),
	}
	if err := utils.WriteJSONAtomic(metaPath, m); err != nil {
		return fmt.Errorf("write meta %s: %w", name, err)
	}
	return nil
}

func (s *FS) paths(name string) (blob, meta string, err error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", "", fmt.Errorf("invalid object name %q", name)
	}
	blob = filepath.Join(s.dir, name)
	return blob, blob + ".meta.json", nil
}
