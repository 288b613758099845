package cachestore

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/MrSnakeDoc/warden/internal/config"
	"github.com/MrSnakeDoc/warden/internal/errs"
	"github.com/MrSnakeDoc/warden/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	logger.UseTestMode()
	os.Exit(m.Run())
}

// --- helpers ---

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestStore(t *testing.T, maxSize int64) (*Store, *Badger, *clock) {
	t.Helper()
	b, err := OpenBadger(config.CacheMemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })

	c := &clock{t: time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)}
	s := New(b, Options{MaxSize: maxSize, DefaultTTL: time.Hour})
	s.now = c.now
	return s, b, c
}

func putLegacy(t *testing.T, b Backend, rawKey string, payload []byte, created time.Time) {
	t.Helper()
	raw, err := json.Marshal(legacyEntry{Payload: payload, CreatedAt: created})
	require.NoError(t, err)
	require.NoError(t, b.Set(context.Background(), legacyPrefix+rawKey, raw))
}

func keys(t *testing.T, b Backend, prefix string) []string {
	t.Helper()
	var out []string
	require.NoError(t, b.Scan(context.Background(), prefix, func(k string, _ []byte, _ error) error {
		out = append(out, k)
		return nil
	}))
	return out
}

// flaky fails Delete for one key.
type flaky struct {
	Backend
	failKey string
}

func (f flaky) Delete(ctx context.Context, key string) error {
	if key == f.failKey {
		return errors.New("disk hiccup")
	}
	return f.Backend.Delete(ctx, key)
}

// --- tests ---

func TestPutGet_NormalizesKey(t *testing.T) {
	s, _, _ := newTestStore(t, 1<<20)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "  Video   ABC\t42 ", []byte("segment"), 0))

	e, err := s.Get(ctx, "video abc 42")
	require.NoError(t, err)
	assert.Equal(t, "video abc 42", e.Key)
	assert.Equal(t, []byte("segment"), e.Payload)
	assert.Equal(t, int64(7), e.SizeBytes)
	assert.Equal(t, SchemaVersion, e.SchemaVersion)
	assert.Equal(t, time.Hour, e.ExpiresAt.Sub(e.CreatedAt))
}

func TestGet_ExpiredIsNotFound(t *testing.T) {
	s, _, c := newTestStore(t, 1<<20)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "k", []byte("v"), time.Minute))
	c.advance(time.Minute)

	_, err := s.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPut_NeverRejectsForSize(t *testing.T) {
	s, _, _ := newTestStore(t, 10)
	require.NoError(t, s.Put(context.Background(), "big", make([]byte, 100), 0))

	st, err := s.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(100), st.TotalSize)
	assert.InDelta(t, 10.0, st.UsagePercent, 0.001)
}

func TestCleanupExpired_Idempotent(t *testing.T) {
	s, b, c := newTestStore(t, 1<<20)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "short-1", []byte("a"), time.Minute))
	require.NoError(t, s.Put(ctx, "short-2", []byte("b"), time.Minute))
	require.NoError(t, s.Put(ctx, "long", []byte("c"), 3*time.Hour))
	c.advance(10 * time.Minute)

	n, err := s.CleanupExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = s.CleanupExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, []string{currentPrefix + "long"}, keys(t, b, currentPrefix))
}

func TestValidateSize_EvictsOldestFirst(t *testing.T) {
	s, b, c := newTestStore(t, 60)
	ctx := context.Background()

	for i, size := range []int{40, 30, 20, 10} {
		require.NoError(t, s.Put(ctx, string(rune('a'+i)), make([]byte, size), 0))
		c.advance(time.Second)
	}

	n, err := s.ValidateSize(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.ElementsMatch(t, []string{currentPrefix + "c", currentPrefix + "d"}, keys(t, b, currentPrefix))

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.LessOrEqual(t, st.TotalSize, st.MaxSize)
	assert.Equal(t, int64(30), st.TotalSize)
}

func TestValidateSize_ExactFitIsAlsoEvicted(t *testing.T) {
	s, b, c := newTestStore(t, 60)
	ctx := context.Background()
	for _, k := range []string{"a", "b", "c"} {
		require.NoError(t, s.Put(ctx, k, make([]byte, 30), 0))
		c.advance(time.Second)
	}

	n, err := s.ValidateSize(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{currentPrefix + "c"}, keys(t, b, currentPrefix))

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(30), st.TotalSize)
	assert.InDelta(t, 0.5, st.UsagePercent, 0.001)
}

func TestValidateSize_UnderCeilingIsNoop(t *testing.T) {
	s, _, _ := newTestStore(t, 60)
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "a", make([]byte, 30), 0))
	require.NoError(t, s.Put(ctx, "b", make([]byte, 30), 0))

	n, err := s.ValidateSize(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestMigrateLegacy_TwiceIsNoop(t *testing.T) {
	s, b, c := newTestStore(t, 1<<20)
	ctx := context.Background()
	created := c.t.Add(-10 * time.Minute)

	putLegacy(t, b, "  Some  VIDEO ", []byte("one"), created)
	putLegacy(t, b, "other", []byte("two"), created)

	n, err := s.MigrateLegacy(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Empty(t, keys(t, b, legacyPrefix))

	n, err = s.MigrateLegacy(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	e, err := s.Get(ctx, "some video")
	require.NoError(t, err)
	assert.Equal(t, SchemaVersion, e.SchemaVersion)
	assert.True(t, created.Equal(e.CreatedAt))
	assert.True(t, e.ExpiresAt.After(e.CreatedAt))
	assert.Equal(t, []byte("one"), e.Payload)
}

func TestMigrateLegacy_StaleEntryExpiresOnNextCleanup(t *testing.T) {
	s, b, c := newTestStore(t, 1<<20)
	ctx := context.Background()
	putLegacy(t, b, "ancient", []byte("x"), c.t.Add(-48*time.Hour))

	n, err := s.MigrateLegacy(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	removed, err := s.CleanupExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
}

func TestMigrateLegacy_KeepsNewerCurrentEntry(t *testing.T) {
	s, b, c := newTestStore(t, 1<<20)
	ctx := context.Background()
	putLegacy(t, b, "dup", []byte("old"), c.t.Add(-time.Minute))
	require.NoError(t, s.Put(ctx, "dup", []byte("new"), 0))

	n, err := s.MigrateLegacy(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	e, err := s.Get(ctx, "dup")
	require.NoError(t, err)
	assert.Equal(t, []byte("new"), e.Payload)
}

func TestCorruptEntriesAreSkipped(t *testing.T) {
	s, b, c := newTestStore(t, 1<<20)
	ctx := context.Background()

	require.NoError(t, b.Set(ctx, currentPrefix+"garbage", []byte("{not json")))
	require.NoError(t, b.Set(ctx, legacyPrefix+"garbage", []byte("also not json")))
	require.NoError(t, s.Put(ctx, "fine", []byte("v"), time.Minute))
	c.advance(time.Hour)

	n, err := s.CleanupExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = s.MigrateLegacy(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, st.FileCount)
	assert.Equal(t, 1, st.LegacyCount)
}

func TestDeleteFailureDoesNotAbortPass(t *testing.T) {
	b, err := OpenBadger(config.CacheMemoryPath)
	require.NoError(t, err)
	defer b.Close()

	s := New(flaky{Backend: b, failKey: currentPrefix + "a"}, Options{MaxSize: 1 << 20, DefaultTTL: time.Hour})
	c := &clock{t: time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)}
	s.now = c.now
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "a", []byte("1"), time.Minute))
	require.NoError(t, s.Put(ctx, "b", []byte("2"), time.Minute))
	c.advance(time.Hour)

	n, err := s.CleanupExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestUnsupportedBackend(t *testing.T) {
	s := New(None{}, Options{})
	ctx := context.Background()

	assert.False(t, s.Supported())

	_, err := s.Stats(ctx)
	assert.ErrorIs(t, err, errs.ErrStorageUnsupported)
	_, err = s.CleanupExpired(ctx)
	assert.ErrorIs(t, err, errs.ErrStorageUnsupported)
	_, err = s.ValidateSize(ctx)
	assert.ErrorIs(t, err, errs.ErrStorageUnsupported)
	_, err = s.MigrateLegacy(ctx)
	assert.ErrorIs(t, err, errs.ErrStorageUnsupported)
	assert.ErrorIs(t, s.Put(ctx, "k", nil, 0), errs.ErrStorageUnsupported)
	assert.Zero(t, s.Queries())
}

func TestQueriesCountsRoundTrips(t *testing.T) {
	s, _, _ := newTestStore(t, 1<<20)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "a", []byte("1"), 0))
	_, err := s.Get(ctx, "a")
	require.NoError(t, err)
	_, err = s.CleanupExpired(ctx)
	require.NoError(t, err)

	assert.Equal(t, int64(3), s.Queries())
}

func TestOpen(t *testing.T) {
	s, err := Open(config.CacheConfig{Backend: config.BackendNone})
	require.NoError(t, err)
	assert.Equal(t, "none", s.BackendName())

	s, err = Open(config.CacheConfig{Backend: config.BackendBadger, Path: t.TempDir()})
	require.NoError(t, err)
	assert.True(t, s.Supported())
	assert.NoError(t, s.Close())

	_, err = Open(config.CacheConfig{Backend: "redis"})
	assert.Error(t, err)
}

func TestOpen_DefaultConfigPersistsAcrossReopen(t *testing.T) {
	state := t.TempDir()
	t.Setenv("XDG_STATE_HOME", state)
	cfg := config.DefaultConfig().Cache
	ctx := context.Background()

	s, err := Open(cfg)
	require.NoError(t, err)
	require.NoError(t, s.Put(ctx, "some video", []byte(`{"title":"clip"}`), 0))
	require.NoError(t, s.Close())

	assert.DirExists(t, filepath.Join(state, "warden", "cache"))

	s, err = Open(cfg)
	require.NoError(t, err)
	defer s.Close()

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.FileCount)

	e, err := s.Get(ctx, "some video")
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"title":"clip"}`), e.Payload)
}

func TestOpen_MemoryPathIsThrowaway(t *testing.T) {
	cfg := config.CacheConfig{Backend: config.BackendBadger, Path: config.CacheMemoryPath}
	ctx := context.Background()

	s, err := Open(cfg)
	require.NoError(t, err)
	require.NoError(t, s.Put(ctx, "k", []byte("v"), 0))
	require.NoError(t, s.Close())

	s, err = Open(cfg)
	require.NoError(t, err)
	defer s.Close()
	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, st.FileCount)
}

func TestNormalizeKey(t *testing.T) {
	assert.Equal(t, "a b c", NormalizeKey("  A \t B\nc  "))
	assert.Equal(t, "", NormalizeKey("   "))
}
