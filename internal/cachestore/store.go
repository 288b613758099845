// Package cachestore keeps derived per-video data under a global byte
// ceiling. Writes are never refused for size; the ceiling is enforced by
// ValidateSize during maintenance.
package cachestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/MrSnakeDoc/warden/internal/config"
	"github.com/MrSnakeDoc/warden/internal/errs"
	"github.com/MrSnakeDoc/warden/internal/logger"
	"github.com/MrSnakeDoc/warden/internal/utils"
)

type Options struct {
	MaxSize    int64
	DefaultTTL time.Duration
}

type Stats struct {
	TotalSize    int64   `json:"totalSize"`
	FileCount    int     `json:"fileCount"`
	MaxSize      int64   `json:"maxSize"`
	UsagePercent float64 `json:"usagePercent"` // TotalSize/MaxSize, 1.0 is full
	ExpiredCount int     `json:"expiredCount"`
	LegacyCount  int     `json:"legacyCount"`
}

type Store struct {
	backend    Backend
	maxSize    int64
	defaultTTL time.Duration
	queries    atomic.Int64
	now        func() time.Time
}

func New(b Backend, opts Options) *Store {
	d := config.DefaultConfig().Cache
	if opts.MaxSize <= 0 {
		opts.MaxSize = d.MaxSize
	}
	if opts.DefaultTTL <= 0 {
		opts.DefaultTTL = d.DefaultTTL
	}
	return &Store{
		backend:    b,
		maxSize:    opts.MaxSize,
		defaultTTL: opts.DefaultTTL,
		now:        time.Now,
	}
}

// Open builds the backend named in cfg. An empty badger path persists
// under the state directory.
func Open(cfg config.CacheConfig) (*Store, error) {
	opts := Options{MaxSize: cfg.MaxSize, DefaultTTL: cfg.DefaultTTL}
	switch cfg.Backend {
	case config.BackendNone:
		return New(None{}, opts), nil
	case config.BackendBadger, "":
		path, err := config.CachePath(cfg)
		if err != nil {
			return nil, err
		}
		b, err := OpenBadger(path)
		if err != nil {
			return nil, err
		}
		return New(b, opts), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}

func (s *Store) Supported() bool     { return s.backend.SupportsRangeQueries() }
func (s *Store) BackendName() string { return s.backend.Name() }
func (s *Store) MaxSize() int64      { return s.maxSize }

// Queries is the running count of backend round trips.
func (s *Store) Queries() int64 { return s.queries.Load() }

func (s *Store) Close() error { return s.backend.Close() }

func (s *Store) check() error {
	if !s.backend.SupportsRangeQueries() {
		return errs.New(errs.StorageUnsupported, nil, s.backend.Name())
	}
	return nil
}

// Put stores payload under key. ttl <= 0 uses the default TTL.
func (s *Store) Put(ctx context.Context, key string, payload []byte, ttl time.Duration) error {
	if err := s.check(); err != nil {
		return err
	}
	norm := NormalizeKey(key)
	if norm == "" {
		return errors.New("cache key is empty")
	}
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	now := s.now()
	e := Entry{
		Key:           norm,
		Payload:       payload,
		SizeBytes:     int64(len(payload)),
		CreatedAt:     now,
		ExpiresAt:     now.Add(ttl),
		SchemaVersion: SchemaVersion,
	}
	return s.write(ctx, e)
}

// Get returns the live entry for key, or ErrNotFound when absent or expired.
func (s *Store) Get(ctx context.Context, key string) (Entry, error) {
	if err := s.check(); err != nil {
		return Entry{}, err
	}
	k := currentKey(key)
	s.queries.Add(1)
	raw, err := s.backend.Get(ctx, k)
	if err != nil {
		return Entry{}, err
	}
	e, err := decodeEntry(raw)
	if err != nil {
		return Entry{}, errs.New(errs.StorageEntryCorrupt, err, k)
	}
	if e.Expired(s.now()) {
		return Entry{}, ErrNotFound
	}
	return e, nil
}

func (s *Store) Stats(ctx context.Context) (Stats, error) {
	if err := s.check(); err != nil {
		return Stats{}, err
	}
	entries, err := s.scanCurrent(ctx, "stats")
	if err != nil {
		return Stats{}, err
	}
	now := s.now()
	st := Stats{MaxSize: s.maxSize}
	for _, se := range entries {
		st.FileCount++
		st.TotalSize += se.entry.SizeBytes
		if se.entry.Expired(now) {
			st.ExpiredCount++
		}
	}
	s.queries.Add(1)
	err = s.backend.Scan(ctx, legacyPrefix, func(string, []byte, error) error {
		st.LegacyCount++
		return nil
	})
	if err != nil {
		return Stats{}, fmt.Errorf("error scanning %s: %w", legacyPrefix, err)
	}
	if st.MaxSize > 0 {
		st.UsagePercent = float64(st.TotalSize) / float64(st.MaxSize)
	}
	return st, nil
}

// CleanupExpired removes every entry whose expiry has passed.
func (s *Store) CleanupExpired(ctx context.Context) (int, error) {
	if err := s.check(); err != nil {
		return 0, err
	}
	entries, err := s.scanCurrent(ctx, "cleanup")
	if err != nil {
		return 0, err
	}
	now := s.now()
	removed := 0
	for _, se := range entries {
		if !se.entry.Expired(now) {
			continue
		}
		if s.remove(ctx, "cleanup", se.key) {
			removed++
		}
	}
	if removed > 0 {
		s.compact()
	}
	logger.Debug("cachestore: cleanup removed %d of %d entries", removed, len(entries))
	return removed, nil
}

// ValidateSize evicts oldest-created entries once the total exceeds the
// ceiling, stopping as soon as the total drops strictly below it. A pass
// that lands exactly on the ceiling keeps evicting: [30,30,30] with a
// ceiling of 60 removes two entries, not one.
func (s *Store) ValidateSize(ctx context.Context) (int, error) {
	if err := s.check(); err != nil {
		return 0, err
	}
	entries, err := s.scanCurrent(ctx, "validate")
	if err != nil {
		return 0, err
	}
	var total int64
	for _, se := range entries {
		total += se.entry.SizeBytes
	}
	if total <= s.maxSize {
		return 0, nil
	}

	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i].entry, entries[j].entry
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return entries[i].key < entries[j].key
	})

	before := total
	removed := 0
	for _, se := range entries {
		if total < s.maxSize {
			break
		}
		if s.remove(ctx, "validate", se.key) {
			total -= se.entry.SizeBytes
			removed++
		}
	}
	if removed > 0 {
		s.compact()
	}
	logger.Info("cachestore: evicted %d entries, %s -> %s (max %s)",
		removed, utils.HumanSize(before), utils.HumanSize(total), utils.HumanSize(s.maxSize))
	return removed, nil
}

// MigrateLegacy rewrites legacy entries into the current layout and deletes
// the legacy copies. Running it again after completion is a no-op.
func (s *Store) MigrateLegacy(ctx context.Context) (int, error) {
	if err := s.check(); err != nil {
		return 0, err
	}

	type legacy struct {
		key   string
		entry legacyEntry
	}
	var found []legacy
	s.queries.Add(1)
	err := s.backend.Scan(ctx, legacyPrefix, func(key string, raw []byte, err error) error {
		if err != nil {
			s.corrupt("migrate", key, err)
			return nil
		}
		l, err := decodeLegacy(raw)
		if err != nil {
			s.corrupt("migrate", key, err)
			return nil
		}
		found = append(found, legacy{key: key, entry: l})
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("error scanning %s: %w", legacyPrefix, err)
	}

	migrated := 0
	for _, l := range found {
		if ctx.Err() != nil {
			return migrated, ctx.Err()
		}
		norm := NormalizeKey(strings.TrimPrefix(l.key, legacyPrefix))
		if norm == "" {
			s.corrupt("migrate", l.key, errors.New("empty key after normalization"))
			continue
		}
		created := l.entry.CreatedAt
		if created.IsZero() {
			created = s.now()
		}
		e := Entry{
			Key:           norm,
			Payload:       l.entry.Payload,
			SizeBytes:     int64(len(l.entry.Payload)),
			CreatedAt:     created,
			ExpiresAt:     created.Add(s.defaultTTL),
			SchemaVersion: SchemaVersion,
		}

		if !s.newerExists(ctx, e) {
			if err := s.write(ctx, e); err != nil {
				s.corrupt("migrate", l.key, err)
				continue
			}
		}
		if !s.remove(ctx, "migrate", l.key) {
			continue
		}
		migrated++
	}
	if migrated > 0 {
		logger.Info("cachestore: migrated %d legacy entries", migrated)
	}
	return migrated, nil
}

// newerExists reports whether a current-layout entry at least as recent as e
// already occupies its key.
func (s *Store) newerExists(ctx context.Context, e Entry) bool {
	s.queries.Add(1)
	raw, err := s.backend.Get(ctx, currentKey(e.Key))
	if err != nil {
		return false
	}
	existing, err := decodeEntry(raw)
	if err != nil {
		return false
	}
	return !existing.CreatedAt.Before(e.CreatedAt)
}

type scanned struct {
	key   string
	entry Entry
}

func (s *Store) scanCurrent(ctx context.Context, op string) ([]scanned, error) {
	var out []scanned
	s.queries.Add(1)
	err := s.backend.Scan(ctx, currentPrefix, func(key string, raw []byte, err error) error {
		if err != nil {
			s.corrupt(op, key, err)
			return nil
		}
		e, err := decodeEntry(raw)
		if err != nil {
			s.corrupt(op, key, err)
			return nil
		}
		out = append(out, scanned{key: key, entry: e})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("error scanning %s: %w", currentPrefix, err)
	}
	return out, nil
}

func (s *Store) write(ctx context.Context, e Entry) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("error encoding entry %q: %w", e.Key, err)
	}
	s.queries.Add(1)
	if err := s.backend.Set(ctx, currentKey(e.Key), raw); err != nil {
		return fmt.Errorf("error writing entry %q: %w", e.Key, err)
	}
	return nil
}

func (s *Store) remove(ctx context.Context, op, key string) bool {
	s.queries.Add(1)
	if err := s.backend.Delete(ctx, key); err != nil {
		s.corrupt(op, key, err)
		return false
	}
	return true
}

func (s *Store) corrupt(op, key string, err error) {
	logger.Warn("cachestore: %s: %v", op, errs.New(errs.StorageEntryCorrupt, err, key))
}

func (s *Store) compact() {
	c, ok := s.backend.(compactor)
	if !ok {
		return
	}
	if err := c.Compact(); err != nil {
		logger.Warn("cachestore: compaction failed: %v", err)
	}
}
