package internal

import (
	"os/signal"
	"sync"
	"syscall"

	"github.com/MrSnakeDoc/warden/internal/errs"
	"github.com/MrSnakeDoc/warden/internal/logger"
	"github.com/MrSnakeDoc/warden/internal/middleware"
	"github.com/MrSnakeDoc/warden/internal/scheduler"

	"github.com/spf13/cobra"
)

func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and run maintenance on a schedule",
		Long: `Serve the maintenance HTTP API.
Maintenance passes are triggered by the scheduler.cron expression unless
--no-schedule is given; POST /api/maintenance/run triggers one on demand.`,
		Example: `warden serve --addr 0.0.0.0:8787
warden serve --cron "*/15 * * * *" --run-now`,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			noSchedule, _ := cmd.Flags().GetBool("no-schedule")
			if noSchedule && cmd.Flags().Changed("cron") {
				return middleware.Reject(errs.InvalidFlags, "--cron cannot be combined with --no-schedule")
			}
			if spec, _ := cmd.Flags().GetString("cron"); spec != "" {
				if err := scheduler.ValidateSpec(spec); err != nil {
					return middleware.Reject(errs.InvalidArgument, spec, err.Error())
				}
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer closeApp(a)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			addr := a.Config.Server.Address
			if v, _ := cmd.Flags().GetString("addr"); v != "" {
				addr = v
			}

			if noSchedule, _ := cmd.Flags().GetBool("no-schedule"); !noSchedule {
				spec := a.Config.Scheduler.Cron
				if v, _ := cmd.Flags().GetString("cron"); v != "" {
					spec = v
				}
				if err := a.Scheduler.Start(ctx, spec); err != nil {
					return err
				}
				defer a.Scheduler.Stop()
			}

			var wg sync.WaitGroup
			defer wg.Wait()
			if runNow, _ := cmd.Flags().GetBool("run-now"); runNow {
				wg.Add(1)
				go func() {
					defer wg.Done()
					a.Scheduler.RunOnce(ctx)
				}()
			}

			if err := a.Server().ListenAndServe(ctx, addr); err != nil {
				return err
			}
			logger.Success("Server stopped")
			return nil
		},
	}

	cmd.Flags().String("addr", "", "Listen address (overrides server.address)")
	cmd.Flags().String("cron", "", "Maintenance schedule (overrides scheduler.cron)")
	cmd.Flags().Bool("no-schedule", false, "Only run maintenance when triggered over HTTP")
	cmd.Flags().Bool("run-now", false, "Start a maintenance pass immediately")
	return cmd
}
