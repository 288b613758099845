package scheduler

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrSnakeDoc/warden/internal/errs"
	"github.com/MrSnakeDoc/warden/internal/resolver"
	"github.com/MrSnakeDoc/warden/internal/utils"
)

type task struct {
	name string
	run  func(ctx context.Context) (Status, string)
}

// tasks lists the pass in its fixed order; later tasks rely on earlier ones
// (size validation assumes expiry already ran).
// A non-empty migrateSkip replaces the migration with a skip carrying that reason.
func (s *Scheduler) tasks(migrateSkip string) []task {
	migrateTask := task{TaskCacheMigrate, s.migrateLegacy}
	if migrateSkip != "" {
		migrateTask.run = func(context.Context) (Status, string) {
			return StatusSkipped, migrateSkip
		}
	}
	return []task{
		{TaskArtifactRefresh, s.refreshArtifact},
		{TaskCacheCleanup, s.cacheStep(func(ctx context.Context) (int, error) {
			return s.deps.Cache.CleanupExpired(ctx)
		}, "removed %d expired entries")},
		{TaskCacheValidate, s.cacheStep(func(ctx context.Context) (int, error) {
			return s.deps.Cache.ValidateSize(ctx)
		}, "evicted %d entries")},
		migrateTask,
		{TaskChannelRefresh, s.refreshChannels},
	}
}

func (s *Scheduler) refreshArtifact(ctx context.Context) (Status, string) {
	if s.deps.Resolver == nil {
		return StatusSkipped, "no resolver configured"
	}
	rec := s.deps.Resolver.Resolve(ctx, true, "")
	detail := fmt.Sprintf("tier=%s size=%s sha256=%.12s", rec.Tier, utils.HumanSize(int64(rec.Size)), rec.Checksum)
	if rec.Tier == resolver.TierFallback || !rec.Success {
		return StatusFailed, "all live tiers failed, serving embedded fallback; " + detail
	}
	return StatusSuccess, detail
}

func (s *Scheduler) migrateLegacy(ctx context.Context) (Status, string) {
	return s.cacheStep(func(ctx context.Context) (int, error) {
		return s.deps.Cache.MigrateLegacy(ctx)
	}, "migrated %d legacy entries")(ctx)
}

func (s *Scheduler) cacheStep(op func(context.Context) (int, error), format string) func(context.Context) (Status, string) {
	return func(ctx context.Context) (Status, string) {
		if s.deps.Cache == nil || !s.deps.Cache.Supported() {
			return StatusSkipped, "cache backend does not support range queries"
		}
		n, err := op(ctx)
		if errors.Is(err, errs.ErrStorageUnsupported) {
			return StatusSkipped, err.Error()
		}
		if err != nil {
			return StatusFailed, err.Error()
		}
		return StatusSuccess, fmt.Sprintf(format, n)
	}
}

func (s *Scheduler) refreshChannels(ctx context.Context) (Status, string) {
	if s.deps.Channels == nil || !s.deps.Channels.Configured() {
		return StatusSkipped, "no playlist sources configured"
	}
	sum, err := s.deps.Channels.Refresh(ctx)
	if err != nil {
		return StatusFailed, err.Error()
	}
	return StatusSuccess, fmt.Sprintf("%d channels in %d groups from %s", sum.Channels, sum.Groups, sum.Source)
}
