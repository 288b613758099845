package internal

import (
	"fmt"

	"github.com/MrSnakeDoc/warden/internal/config"
	"github.com/MrSnakeDoc/warden/internal/logger"
	"github.com/MrSnakeDoc/warden/internal/middleware"
	"github.com/MrSnakeDoc/warden/internal/printer"
	"github.com/MrSnakeDoc/warden/internal/probe"
	"github.com/MrSnakeDoc/warden/internal/utils"

	"github.com/spf13/cobra"
)

func NewProbeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "probe <url>...",
		Short: "Check whether stream URLs are reachable",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := middleware.Get[*config.Config](cmd, middleware.CtxKeyConfig)
			if err != nil {
				return err
			}
			prober := probe.New(nil, cfg.Resolver.UserAgent)

			results := make([]probe.Result, 0, len(args))
			for _, u := range args {
				results = append(results, prober.Probe(cmd.Context(), u))
			}

			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				return printJSON(cmd, results)
			}
			return renderProbes(results)
		},
	}

	cmd.Flags().Bool("json", false, "Print results as JSON")
	return cmd
}

func renderProbes(results []probe.Result) error {
	p := printer.NewColorPrinter(!logger.FlagJSON)
	table := logger.CreateTable([]string{"URL", "Status", "Type", "Size", "Error"})

	for _, r := range results {
		status := p.Error("✗ %d", r.StatusCode)
		if r.Accessible {
			status = p.Success("✓ %d", r.StatusCode)
		} else if r.StatusCode == 0 {
			status = p.Error("✗ unreachable")
		}
		size := "—"
		if r.ContentLength > 0 {
			size = utils.HumanSize(r.ContentLength)
		}
		if err := table.Append([]string{r.URL, status, r.ContentType, size, r.Error}); err != nil {
			return fmt.Errorf("an error occurred while appending to the table: %w", err)
		}
	}
	if err := table.Render(); err != nil {
		return fmt.Errorf("an error occurred while rendering the table: %w", err)
	}
	return nil
}
