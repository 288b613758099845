package cachestore

import (
	"context"
	"errors"

	"github.com/MrSnakeDoc/warden/internal/errs"
)

var ErrNotFound = errors.New("cache entry not found")

// ScanFunc receives one stored pair. err is non-nil when the value of that
// single key could not be read; the scan itself continues.
type ScanFunc func(key string, value []byte, err error) error

// Backend is the raw key/value layer under Store.
type Backend interface {
	Name() string
	// SupportsRangeQueries reports whether prefix scans are available. Every
	// Store operation is refused when it is false.
	SupportsRangeQueries() bool
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Scan(ctx context.Context, prefix string, fn ScanFunc) error
	Close() error
}

// compactor is implemented by backends that can reclaim space after deletes.
type compactor interface {
	Compact() error
}

// None is the backend of deployments without a capable store.
type None struct{}

func (None) Name() string               { return "none" }
func (None) SupportsRangeQueries() bool { return false }
func (n None) Get(context.Context, string) ([]byte, error) {
	return nil, errs.New(errs.StorageUnsupported, nil, n.Name())
}
func (n None) Set(context.Context, string, []byte) error {
	return errs.New(errs.StorageUnsupported, nil, n.Name())
}
func (n None) Delete(context.Context, string) error {
	return errs.New(errs.StorageUnsupported, nil, n.Name())
}
func (n None) Scan(context.Context, string, ScanFunc) error {
	return errs.New(errs.StorageUnsupported, nil, n.Name())
}
func (None) Close() error { return nil }
