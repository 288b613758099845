package channels

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/MrSnakeDoc/warden/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	logger.UseTestMode()
	os.Exit(m.Run())
}

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := OpenDB(context.Background(), filepath.Join(t.TempDir(), "state", "channels.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func servePlaylist(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOpenDB_MigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "channels.db")
	db, err := OpenDB(context.Background(), path)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = OpenDB(context.Background(), path)
	require.NoError(t, err)
	defer db.Close()

	var n int
	require.NoError(t, db.sqlDB.QueryRow(`SELECT COUNT(*) FROM schema_migrations`).Scan(&n))
	assert.Equal(t, 1, n)
}

func TestOpenDB_RequiresPath(t *testing.T) {
	_, err := OpenDB(context.Background(), "  ")
	assert.Error(t, err)
}

func TestRefresh_FirstWorkingSourceWins(t *testing.T) {
	broken := servePlaylist(t, http.StatusBadGateway, "")
	empty := servePlaylist(t, http.StatusOK, "#EXTM3U\n")
	good := servePlaylist(t, http.StatusOK, samplePlaylist)

	db := openTestDB(t)
	r := NewRefresher(db, Options{Sources: []string{broken.URL, empty.URL, good.URL}, FetchTimeout: time.Second})
	fixed := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return fixed }

	sum, err := r.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Summary{Source: good.URL, EPGURL: "http://epg.example/guide.xml", Channels: 3, Groups: 2}, sum)

	list, err := r.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "news.one", list[0].ID)
	assert.Equal(t, 3, list[2].Position)

	lr, ok, err := r.LastRefresh(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, good.URL, lr.Source)
	assert.Equal(t, 3, lr.Channels)
	assert.True(t, fixed.Equal(lr.RefreshedAt))
	assert.Positive(t, r.Queries())
}

func TestRefresh_ReplacesPreviousSet(t *testing.T) {
	first := servePlaylist(t, http.StatusOK, samplePlaylist)
	second := servePlaylist(t, http.StatusOK, "#EXTM3U\n#EXTINF:-1,Solo\nhttp://s/solo\n")
	db := openTestDB(t)

	_, err := NewRefresher(db, Options{Sources: []string{first.URL}}).Refresh(context.Background())
	require.NoError(t, err)
	_, err = NewRefresher(db, Options{Sources: []string{second.URL}}).Refresh(context.Background())
	require.NoError(t, err)

	list, err := db.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Solo", list[0].Name)
}

func TestRefresh_AllSourcesFailKeepsStoredSet(t *testing.T) {
	good := servePlaylist(t, http.StatusOK, samplePlaylist)
	bad := servePlaylist(t, http.StatusInternalServerError, "")
	db := openTestDB(t)

	_, err := NewRefresher(db, Options{Sources: []string{good.URL}}).Refresh(context.Background())
	require.NoError(t, err)

	_, err = NewRefresher(db, Options{Sources: []string{bad.URL}}).Refresh(context.Background())
	assert.Error(t, err)

	list, err := db.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, list, 3)
}

func TestRefresh_NoSources(t *testing.T) {
	r := NewRefresher(openTestDB(t), Options{})
	assert.False(t, r.Configured())
	_, err := r.Refresh(context.Background())
	assert.ErrorIs(t, err, ErrNoSources)
}

func TestList_EmptyBeforeFirstRefresh(t *testing.T) {
	db := openTestDB(t)
	list, err := db.List(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)

	_, ok, err := db.LastRefresh(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}
