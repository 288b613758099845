// Package scheduler runs maintenance passes: artifact refresh, cache
// expiry and eviction, legacy migration and live-channel refresh. At most one
// pass runs at a time; overlapping triggers are dropped, not queued.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/MrSnakeDoc/warden/internal/channels"
	"github.com/MrSnakeDoc/warden/internal/logger"
	"github.com/MrSnakeDoc/warden/internal/resolver"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

const (
	TaskArtifactRefresh = "artifact-refresh"
	TaskCacheCleanup    = "cache-cleanup-expired"
	TaskCacheValidate   = "cache-validate-size"
	TaskCacheMigrate    = "cache-migrate-legacy"
	TaskChannelRefresh  = "live-channel-refresh"
)

type ArtifactResolver interface {
	Resolve(ctx context.Context, forceRefresh bool, overrideURL string) resolver.Record
}

type CacheMaintainer interface {
	Supported() bool
	CleanupExpired(ctx context.Context) (int, error)
	ValidateSize(ctx context.Context) (int, error)
	MigrateLegacy(ctx context.Context) (int, error)
	Queries() int64
}

type ChannelRefresher interface {
	Configured() bool
	Refresh(ctx context.Context) (channels.Summary, error)
	Queries() int64
}

// Deps are the collaborators of a pass. Nil members make their tasks skip.
type Deps struct {
	Resolver ArtifactResolver
	Cache    CacheMaintainer
	Channels ChannelRefresher
}

type Options struct {
	TaskTimeout     time.Duration
	MigrateOnStart  bool
	MigrateEveryRun bool
}

type Scheduler struct {
	deps Deps
	opts Options

	mu               sync.Mutex
	running          bool
	last             *Report
	migrated         bool
	migrateRequested bool

	cron   *cron.Cron
	memory func() int64
	now    func() time.Time
}

func New(deps Deps, opts Options) *Scheduler {
	if opts.TaskTimeout <= 0 {
		opts.TaskTimeout = 2 * time.Minute
	}
	return &Scheduler{
		deps:   deps,
		opts:   opts,
		memory: sampleMemory,
		now:    time.Now,
	}
}

// RunOnce executes one pass. ok is false when another pass held the lock;
// the returned report is then empty. The lock is released even when the
// pass panics.
func (s *Scheduler) RunOnce(ctx context.Context) (Report, bool) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		logger.Debug("scheduler: run skipped, another pass is active")
		return Report{}, false
	}
	s.running = true
	migrateSkip := s.migrateSkipReason()
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	rep := Report{ID: uuid.NewString(), StartTime: s.now()}
	memBefore := s.memory()
	queriesBefore := s.queries()

	migrateOK := false
	for _, t := range s.tasks(migrateSkip) {
		res := s.runTask(ctx, t)
		if t.name == TaskCacheMigrate && res.Status == StatusSuccess {
			migrateOK = true
		}
		rep.Tasks = append(rep.Tasks, res)
	}

	rep.EndTime = s.now()
	rep.Duration = rep.EndTime.Sub(rep.StartTime)
	rep.MemoryUsed = s.memory() - memBefore
	rep.DBQueries = s.queries() - queriesBefore

	s.mu.Lock()
	if migrateOK {
		s.migrated = true
		s.migrateRequested = false
	}
	s.last = &rep
	s.mu.Unlock()

	logger.Event("maintenance run finished",
		"id", rep.ID,
		"duration", rep.Duration.Truncate(time.Millisecond).String(),
		"tasks", len(rep.Tasks),
		"failed", rep.Failed(),
		"dbQueries", rep.DBQueries)
	return rep, true
}

// LastReport returns the most recent report without triggering a run.
func (s *Scheduler) LastReport() (Report, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return Report{}, false
	}
	return *s.last, true
}

// Running reports whether a pass currently holds the lock.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// RequestMigration makes the next pass run the legacy migration even when it
// already succeeded in this process.
func (s *Scheduler) RequestMigration() {
	s.mu.Lock()
	s.migrateRequested = true
	s.mu.Unlock()
}

// migrateSkipReason must be called with mu held.
func (s *Scheduler) migrateSkipReason() string {
	switch {
	case s.opts.MigrateEveryRun, s.migrateRequested:
		return ""
	case s.migrated:
		return "already migrated in this process"
	case !s.opts.MigrateOnStart:
		return "migration not requested"
	}
	return ""
}

func (s *Scheduler) queries() int64 {
	var n int64
	if s.deps.Cache != nil {
		n += s.deps.Cache.Queries()
	}
	if s.deps.Channels != nil {
		n += s.deps.Channels.Queries()
	}
	return n
}

// runTask bounds t by the task timeout and converts a panic into a failure.
// A task that ignores its context is abandoned once the deadline passes.
func (s *Scheduler) runTask(parent context.Context, t task) TaskResult {
	ctx, cancel := context.WithTimeout(parent, s.opts.TaskTimeout)
	defer cancel()

	type outcome struct {
		status Status
		detail string
	}
	done := make(chan outcome, 1)
	start := time.Now()

	go func() {
		defer func() {
			if p := recover(); p != nil {
				logger.LogError("scheduler: task %s panicked: %v", t.name, p)
				done <- outcome{StatusFailed, fmt.Sprintf("panic: %v", p)}
			}
		}()
		st, detail := t.run(ctx)
		done <- outcome{st, detail}
	}()

	var out outcome
	select {
	case out = <-done:
	case <-ctx.Done():
		out = outcome{StatusFailed, fmt.Sprintf("timed out after %s", s.opts.TaskTimeout)}
		if parent.Err() != nil {
			out.detail = "canceled: " + parent.Err().Error()
		}
	}

	res := TaskResult{Name: t.name, Status: out.status, Detail: out.detail, Duration: time.Since(start)}
	switch res.Status {
	case StatusFailed:
		logger.Warn("scheduler: %s failed: %s", res.Name, res.Detail)
	default:
		logger.Debug("scheduler: %s %s (%s) in %s", res.Name, res.Status, res.Detail, res.Duration.Truncate(time.Millisecond))
	}
	return res
}

// Exclusive runs fn while holding the run lock, so manual cache maintenance
// never interleaves with a pass. ok is false when a pass is active.
func (s *Scheduler) Exclusive(fn func() error) (ok bool, err error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return false, nil
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()
	return true, fn()
}
