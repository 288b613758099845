package internal

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/MrSnakeDoc/warden/internal/cachestore"
	"github.com/MrSnakeDoc/warden/internal/config"
	"github.com/MrSnakeDoc/warden/internal/errs"
	"github.com/MrSnakeDoc/warden/internal/logger"
	"github.com/MrSnakeDoc/warden/internal/middleware"
	"github.com/MrSnakeDoc/warden/internal/utils"

	"github.com/spf13/cobra"
)

func NewCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and maintain the bounded query cache",
	}
	cmd.PersistentFlags().Bool("json", false, "Print results as JSON")

	cmd.AddCommand(
		newCacheStatsCmd(),
		newCacheCleanupCmd(),
		newCacheMigrateCmd(),
		newCachePutCmd(),
		newCacheGetCmd(),
	)
	return cmd
}

// withCache opens the configured cache store for the duration of fn.
func withCache(cmd *cobra.Command, fn func(s *cachestore.Store) error) error {
	cfg, err := middleware.Get[*config.Config](cmd, middleware.CtxKeyConfig)
	if err != nil {
		return err
	}
	if cfg.Cache.Backend == config.BackendBadger && cfg.Cache.Path == config.CacheMemoryPath {
		logger.Warn("cache.path is %q, operating on a throwaway in-memory cache", config.CacheMemoryPath)
	}
	s, err := cachestore.Open(cfg.Cache)
	if err != nil {
		return err
	}
	defer func() {
		if err := s.Close(); err != nil {
			logger.Warn("Failed to close cache: %v", err)
		}
	}()

	err = fn(s)
	if errors.Is(err, errs.ErrStorageUnsupported) {
		logger.Warn("Cache backend %q does not support range/size queries", s.BackendName())
		return middleware.ErrLogged
	}
	return err
}

func newCacheStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show cache usage",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withCache(cmd, func(s *cachestore.Store) error {
				st, err := s.Stats(cmd.Context())
				if err != nil {
					return err
				}
				if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
					return printJSON(cmd, st)
				}
				return renderCacheStats(st)
			})
		},
	}
}

func newCacheCleanupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Remove expired entries and enforce the size ceiling",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withCache(cmd, func(s *cachestore.Store) error {
				removed, err := s.CleanupExpired(cmd.Context())
				if err != nil {
					return err
				}
				evicted, err := s.ValidateSize(cmd.Context())
				if err != nil {
					return err
				}
				logger.Success("Removed %d expired entries, evicted %d", removed, evicted)

				st, err := s.Stats(cmd.Context())
				if err != nil {
					return err
				}
				if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
					return printJSON(cmd, st)
				}
				return renderCacheStats(st)
			})
		},
	}
}

func newCacheMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Convert legacy entries to the current layout",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withCache(cmd, func(s *cachestore.Store) error {
				n, err := s.MigrateLegacy(cmd.Context())
				if err != nil {
					return err
				}
				logger.Success("Migrated %d legacy entries", n)
				return nil
			})
		},
	}
}

func newCachePutCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "put <key> [file]",
		Short: "Store a payload (read from file or stdin)",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var r io.Reader = cmd.InOrStdin()
			if len(args) == 2 {
				f, err := os.Open(args[1])
				if err != nil {
					return err
				}
				defer utils.Close(args[1], f)
				r = f
			}
			payload, err := io.ReadAll(r)
			if err != nil {
				return fmt.Errorf("read payload: %w", err)
			}
			ttl, _ := cmd.Flags().GetDuration("ttl")

			return withCache(cmd, func(s *cachestore.Store) error {
				if err := s.Put(cmd.Context(), args[0], payload, ttl); err != nil {
					return err
				}
				logger.Success("Stored %s under %q", utils.HumanSize(int64(len(payload))), cachestore.NormalizeKey(args[0]))
				return nil
			})
		},
	}
	cmd.Flags().Duration("ttl", 0, "Entry lifetime (default cache.default_ttl)")
	return cmd
}

func newCacheGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Print a live entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCache(cmd, func(s *cachestore.Store) error {
				e, err := s.Get(cmd.Context(), args[0])
				if errors.Is(err, cachestore.ErrNotFound) {
					return middleware.Reject(errs.InvalidArgument, args[0], "no live cache entry")
				}
				if err != nil {
					return err
				}
				if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
					return printJSON(cmd, e)
				}
				_, err = cmd.OutOrStdout().Write(e.Payload)
				return err
			})
		},
	}
}

func renderCacheStats(st cachestore.Stats) error {
	table := logger.CreateTable([]string{"Total", "Entries", "Ceiling", "Usage", "Expired", "Legacy"})
	if err := table.Append([]string{
		utils.HumanSize(st.TotalSize),
		fmt.Sprint(st.FileCount),
		utils.HumanSize(st.MaxSize),
		formatUsage(st.UsagePercent),
		fmt.Sprint(st.ExpiredCount),
		fmt.Sprint(st.LegacyCount),
	}); err != nil {
		return fmt.Errorf("an error occurred while appending to the table: %w", err)
	}
	if err := table.Render(); err != nil {
		return fmt.Errorf("an error occurred while rendering the table: %w", err)
	}
	return nil
}


// formatUsage renders a usage ratio as a percentage.
func formatUsage(ratio float64) string {
	return fmt.Sprintf("%.1f%%", ratio*100)
}
