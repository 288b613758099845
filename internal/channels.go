package internal

import (
	"fmt"
	"time"

	"github.com/MrSnakeDoc/warden/internal/app"
	"github.com/MrSnakeDoc/warden/internal/channels"
	"github.com/MrSnakeDoc/warden/internal/config"
	"github.com/MrSnakeDoc/warden/internal/logger"
	"github.com/MrSnakeDoc/warden/internal/middleware"

	"github.com/spf13/cobra"
)

func NewChannelsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "channels",
		Short: "List stored live channels",
		Example: `warden channels
warden channels --refresh --group News`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := middleware.Get[*config.Config](cmd, middleware.CtxKeyConfig)
			if err != nil {
				return err
			}
			path, err := app.ChannelsDBPath(cfg.Channels)
			if err != nil {
				return err
			}
			db, err := channels.OpenDB(cmd.Context(), path)
			if err != nil {
				return err
			}
			defer func() {
				if err := db.Close(); err != nil {
					logger.Warn("Failed to close channel store: %v", err)
				}
			}()

			r := channels.NewRefresher(db, channels.Options{
				Sources:      cfg.Channels.Sources,
				FetchTimeout: cfg.Channels.FetchTimeout,
				UserAgent:    cfg.Resolver.UserAgent,
			})

			if refresh, _ := cmd.Flags().GetBool("refresh"); refresh {
				sum, err := r.Refresh(cmd.Context())
				if err != nil {
					return err
				}
				logger.Success("Stored %d channels in %d groups from %s", sum.Channels, sum.Groups, sum.Source)
			}

			list, err := r.List(cmd.Context())
			if err != nil {
				return err
			}
			if group, _ := cmd.Flags().GetString("group"); group != "" {
				list = filterGroup(list, group)
			}

			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				return printJSON(cmd, list)
			}

			if last, ok, err := r.LastRefresh(cmd.Context()); err != nil {
				return err
			} else if ok {
				logger.Info("Last refresh %s from %s", last.RefreshedAt.Local().Format(time.DateTime), last.Source)
			} else {
				logger.Warn("Channel list has never been refreshed")
			}
			return renderChannels(list)
		},
	}

	cmd.Flags().Bool("refresh", false, "Fetch the playlist sources before listing")
	cmd.Flags().StringP("group", "g", "", "Only show channels in this group")
	cmd.Flags().Bool("json", false, "Print channels as JSON")
	return cmd
}

func filterGroup(list []channels.Channel, group string) []channels.Channel {
	out := make([]channels.Channel, 0, len(list))
	for _, c := range list {
		if c.Group == group {
			out = append(out, c)
		}
	}
	return out
}

func renderChannels(list []channels.Channel) error {
	table := logger.CreateTable([]string{"#", "ID", "Name", "Group"})
	for _, c := range list {
		if err := table.Append([]string{fmt.Sprint(c.Position), c.ID, c.Name, c.Group}); err != nil {
			return fmt.Errorf("an error occurred while appending to the table: %w", err)
		}
	}
	if err := table.Render(); err != nil {
		return fmt.Errorf("an error occurred while rendering the table: %w", err)
	}
	return nil
}
