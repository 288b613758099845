package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/MrSnakeDoc/warden/internal/cachestore"
	"github.com/MrSnakeDoc/warden/internal/channels"
	"github.com/MrSnakeDoc/warden/internal/logger"
	"github.com/MrSnakeDoc/warden/internal/probe"
	"github.com/MrSnakeDoc/warden/internal/resolver"
	"github.com/MrSnakeDoc/warden/internal/scheduler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	logger.UseTestMode()
	os.Exit(m.Run())
}

// --- fakes ---

type fakeResolver struct {
	rec       resolver.Record
	lastForce bool
	lastURL   string
}

func (f *fakeResolver) Resolve(_ context.Context, force bool, override string) resolver.Record {
	f.lastForce, f.lastURL = force, override
	return f.rec
}

type fakeProber struct{ got string }

func (f *fakeProber) Probe(_ context.Context, raw string) probe.Result {
	f.got = raw
	return probe.Result{URL: raw, Accessible: true, StatusCode: 200, ContentType: "video/mp4"}
}

type fakeMaintenance struct {
	report  *scheduler.Report
	busy    bool
	running bool
	runs    int
}

func (f *fakeMaintenance) RunOnce(context.Context) (scheduler.Report, bool) {
	if f.busy {
		return scheduler.Report{}, false
	}
	f.runs++
	rep := scheduler.Report{
		ID:       "run-1",
		Duration: 2 * time.Second,
		Tasks: []scheduler.TaskResult{
			{Name: scheduler.TaskArtifactRefresh, Status: scheduler.StatusSuccess},
			{Name: scheduler.TaskCacheCleanup, Status: scheduler.StatusFailed, Detail: "disk full"},
		},
	}
	f.report = &rep
	return rep, true
}

func (f *fakeMaintenance) LastReport() (scheduler.Report, bool) {
	if f.report == nil {
		return scheduler.Report{}, false
	}
	return *f.report, true
}

func (f *fakeMaintenance) Running() bool { return f.running }

func (f *fakeMaintenance) Exclusive(fn func() error) (bool, error) {
	if f.busy {
		return false, nil
	}
	return true, fn()
}

type fakeCache struct {
	supported bool
	statsErr  error
	cleaned   int
}

func (f *fakeCache) Supported() bool { return f.supported }
func (f *fakeCache) Stats(context.Context) (cachestore.Stats, error) {
	if f.statsErr != nil {
		return cachestore.Stats{}, f.statsErr
	}
	return cachestore.Stats{TotalSize: 30, FileCount: 2, MaxSize: 60, UsagePercent: 0.5}, nil
}
func (f *fakeCache) CleanupExpired(context.Context) (int, error) {
	f.cleaned++
	return 4, nil
}
func (f *fakeCache) ValidateSize(context.Context) (int, error) { return 1, nil }

type fakeChannels struct{}

func (fakeChannels) List(context.Context) ([]channels.Channel, error) {
	return []channels.Channel{{Position: 1, ID: "news.one", Name: "News One", StreamURL: "http://s/1"}}, nil
}
func (fakeChannels) LastRefresh(context.Context) (channels.LastRefresh, bool, error) {
	return channels.LastRefresh{Source: "http://src/list.m3u", Channels: 1, RefreshedAt: time.Unix(0, 0).UTC()}, true, nil
}

type fixture struct {
	srv   *Server
	res   *fakeResolver
	prb   *fakeProber
	mt    *fakeMaintenance
	cache *fakeCache
}

func newFixture() *fixture {
	f := &fixture{
		res: &fakeResolver{rec: resolver.Record{
			Bytes: []byte("PK\x03\x04jar"), Size: 7, Tier: resolver.TierRemote,
			Checksum: "deadbeef", Success: true, Cached: false,
		}},
		prb:   &fakeProber{},
		mt:    &fakeMaintenance{},
		cache: &fakeCache{supported: true},
	}
	f.srv = New(Deps{Resolver: f.res, Prober: f.prb, Maintenance: f.mt, Cache: f.cache, Channels: fakeChannels{}})
	return f
}

func do(t *testing.T, h http.Handler, method, target string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(method, target, nil))
	var body map[string]any
	if strings.HasPrefix(rr.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	}
	return rr, body
}

// --- tests ---

func TestMaintenanceRun(t *testing.T) {
	f := newFixture()

	rr, body := do(t, f.srv, http.MethodPost, "/api/maintenance/run")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, true, body["success"])
	assert.Contains(t, body["message"], "1 failed task")
	stats := body["stats"].(map[string]any)
	assert.Equal(t, 2.0, stats["durationSeconds"])
	assert.Len(t, stats["tasks"], 2)
}

func TestMaintenanceRun_Skipped(t *testing.T) {
	f := newFixture()
	f.mt.busy = true

	rr, body := do(t, f.srv, http.MethodPost, "/api/maintenance/run")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, true, body["skipped"])
	assert.Equal(t, "maintenance already running", body["message"])
	assert.Nil(t, body["stats"])
}

func TestMaintenanceRun_WrongMethod(t *testing.T) {
	f := newFixture()
	rr, _ := do(t, f.srv, http.MethodGet, "/api/maintenance/run")
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
	assert.Zero(t, f.mt.runs)
}

func TestMaintenanceStatus(t *testing.T) {
	f := newFixture()

	rr, body := do(t, f.srv, http.MethodGet, "/api/maintenance/status")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, false, body["success"])
	assert.Zero(t, f.mt.runs, "status never triggers a run")

	do(t, f.srv, http.MethodPost, "/api/maintenance/run")
	rr, body = do(t, f.srv, http.MethodGet, "/api/maintenance/status")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "run-1", body["stats"].(map[string]any)["id"])
	assert.Equal(t, 1, f.mt.runs)
}

func TestArtifact(t *testing.T) {
	f := newFixture()

	rr, _ := do(t, f.srv, http.MethodGet, "/api/artifact?forceRefresh=1&overrideUrl=https://mirror.example/p.jar")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "PK\x03\x04jar", rr.Body.String())
	assert.Equal(t, "remote", rr.Header().Get("X-Artifact-Source"))
	assert.Equal(t, "7", rr.Header().Get("X-Artifact-Size"))
	assert.Equal(t, "false", rr.Header().Get("X-Artifact-Cache-Hit"))
	assert.Equal(t, "true", rr.Header().Get("X-Artifact-Success"))
	assert.Equal(t, "deadbeef", rr.Header().Get("X-Artifact-Checksum"))
	assert.True(t, f.res.lastForce)
	assert.Equal(t, "https://mirror.example/p.jar", f.res.lastURL)
}

func TestArtifact_BadParams(t *testing.T) {
	f := newFixture()

	rr, _ := do(t, f.srv, http.MethodGet, "/api/artifact?forceRefresh=maybe")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr, _ = do(t, f.srv, http.MethodGet, "/api/artifact?overrideUrl=file:///etc/passwd")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHealth(t *testing.T) {
	f := newFixture()

	rr, body := do(t, f.srv, http.MethodGet, "/api/health")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, false, body["success"])

	rr, body = do(t, f.srv, http.MethodGet, "/api/health?url=https%3A%2F%2Fhost%2Fpath%3Babcdef")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "https://host/path;abcdef", f.prb.got)
	assert.Equal(t, true, body["accessible"])
}

func TestCacheStats(t *testing.T) {
	f := newFixture()

	rr, body := do(t, f.srv, http.MethodGet, "/api/cache/stats")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 30.0, body["totalSize"])
	assert.Equal(t, 2.0, body["fileCount"])
	assert.Equal(t, 60.0, body["maxSize"])
	assert.Equal(t, 0.5, body["usagePercent"])
}

func TestCacheStats_Unsupported(t *testing.T) {
	f := newFixture()
	f.cache.supported = false

	rr, body := do(t, f.srv, http.MethodGet, "/api/cache/stats")
	assert.Equal(t, http.StatusNotImplemented, rr.Code)
	assert.Equal(t, false, body["supported"])

	rr, _ = do(t, f.srv, http.MethodPost, "/api/cache/cleanup")
	assert.Equal(t, http.StatusNotImplemented, rr.Code)
	assert.Zero(t, f.cache.cleaned)
}

func TestCacheStats_InternalError(t *testing.T) {
	f := newFixture()
	f.cache.statsErr = errors.New("badger closed")

	rr, body := do(t, f.srv, http.MethodGet, "/api/cache/stats")
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "badger closed", body["message"])
}

func TestCacheCleanup(t *testing.T) {
	f := newFixture()

	rr, body := do(t, f.srv, http.MethodPost, "/api/cache/cleanup")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 4.0, body["removed"])
	assert.Equal(t, 1.0, body["evicted"])
	assert.Equal(t, 30.0, body["totalSize"])

	f.mt.busy = true
	rr, body = do(t, f.srv, http.MethodPost, "/api/cache/cleanup")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, true, body["skipped"])
	assert.Equal(t, 1, f.cache.cleaned)
}

func TestChannels(t *testing.T) {
	f := newFixture()

	rr, body := do(t, f.srv, http.MethodGet, "/api/channels")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 1.0, body["count"])
	assert.Equal(t, "http://src/list.m3u", body["source"])
	list := body["channels"].([]any)
	assert.Equal(t, "news.one", list[0].(map[string]any)["id"])
}

func TestChannels_NotConfigured(t *testing.T) {
	srv := New(Deps{Maintenance: &fakeMaintenance{}})
	rr, _ := do(t, srv, http.MethodGet, "/api/channels")
	assert.Equal(t, http.StatusNotImplemented, rr.Code)
}

type panicProber struct{}

func (panicProber) Probe(context.Context, string) probe.Result { panic("boom") }

func TestRecoverMiddleware(t *testing.T) {
	srv := New(Deps{Prober: panicProber{}, Maintenance: &fakeMaintenance{}})
	rr, body := do(t, srv, http.MethodGet, "/api/health?url=http://x")
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, false, body["success"])
}

func TestListenAndServe_StopsOnCancel(t *testing.T) {
	srv := New(Deps{Maintenance: &fakeMaintenance{}})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.ListenAndServe(ctx, "127.0.0.1:0") }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
