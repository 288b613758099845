package internal

import (
	"fmt"
	"time"

	"github.com/MrSnakeDoc/warden/internal/logger"
	"github.com/MrSnakeDoc/warden/internal/printer"
	"github.com/MrSnakeDoc/warden/internal/scheduler"
	"github.com/MrSnakeDoc/warden/internal/utils"

	"github.com/spf13/cobra"
)

func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one maintenance pass and print its report",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer closeApp(a)

			if migrate, _ := cmd.Flags().GetBool("migrate"); migrate {
				a.Scheduler.RequestMigration()
			}

			rep, ok := a.Scheduler.RunOnce(cmd.Context())
			if !ok {
				logger.Warn("Maintenance already running, nothing to do")
				return nil
			}

			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				if err := printJSON(cmd, rep); err != nil {
					return err
				}
			} else if err := renderReport(rep); err != nil {
				return err
			}

			strict, _ := cmd.Flags().GetBool("strict")
			if n := rep.Failed(); n > 0 && strict {
				return fmt.Errorf("%d maintenance task(s) failed", n)
			}
			return nil
		},
	}

	cmd.Flags().Bool("json", false, "Print the report as JSON")
	cmd.Flags().Bool("migrate", false, "Force the legacy cache migration in this pass")
	cmd.Flags().Bool("strict", false, "Exit non-zero when a task failed")
	return cmd
}

func renderReport(rep scheduler.Report) error {
	p := printer.NewColorPrinter(!logger.FlagJSON)
	table := logger.CreateTable([]string{"Task", "Status", "Duration", "Detail"})

	for _, t := range rep.Tasks {
		if err := table.Append([]string{t.Name, prettyStatus(p, t.Status), t.Duration.Truncate(time.Millisecond).String(), t.Detail}); err != nil {
			return fmt.Errorf("an error occurred while appending to the table: %w", err)
		}
	}
	if err := table.Render(); err != nil {
		return fmt.Errorf("an error occurred while rendering the table: %w", err)
	}

	logger.Info("Run %s took %s, memory %s, %d storage queries",
		rep.ID, rep.Duration.Truncate(time.Millisecond), signedSize(rep.MemoryUsed), rep.DBQueries)
	if n := rep.Failed(); n > 0 {
		logger.Warn("%d task(s) failed", n)
	} else {
		logger.Success("All tasks completed")
	}
	return nil
}

func prettyStatus(p *printer.ColorPrinter, s scheduler.Status) string {
	switch s {
	case scheduler.StatusSuccess:
		return p.Success("✓ %s", s)
	case scheduler.StatusFailed:
		return p.Error("✗ %s", s)
	default:
		return p.Warning("- %s", s)
	}
}

func signedSize(n int64) string {
	if n < 0 {
		return utils.HumanSize(n)
	}
	return "+" + utils.HumanSize(n)
}
