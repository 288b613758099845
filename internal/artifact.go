package internal

import (
	"strings"

	"github.com/MrSnakeDoc/warden/internal/errs"
	"github.com/MrSnakeDoc/warden/internal/logger"
	"github.com/MrSnakeDoc/warden/internal/middleware"
	"github.com/MrSnakeDoc/warden/internal/resolver"
	"github.com/MrSnakeDoc/warden/internal/utils"

	"github.com/spf13/cobra"
)

func NewArtifactCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "artifact",
		Short: "Resolve the player plugin artifact",
		Long: `Resolve the player plugin artifact through the tier chain
(memory, object store, override, remote candidates, embedded fallback)
and report which tier served it.`,
		Example: `warden artifact
warden artifact --force -o plugin.jar
warden artifact --override https://mirror.example/plugin.jar`,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			override, _ := cmd.Flags().GetString("override")
			if override != "" && !strings.HasPrefix(override, "http://") && !strings.HasPrefix(override, "https://") {
				return middleware.Reject(errs.InvalidArgument, override, "--override expects an http(s) URL")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer closeApp(a)

			force, _ := cmd.Flags().GetBool("force")
			override, _ := cmd.Flags().GetString("override")
			out, _ := cmd.Flags().GetString("output")

			rec := a.Resolver.Resolve(cmd.Context(), force, override)

			if out != "" {
				if err := utils.WriteBytesAtomic(out, rec.Bytes); err != nil {
					return err
				}
				logger.Success("Wrote %s to %s", utils.HumanSize(int64(rec.Size)), out)
			}

			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				return printJSON(cmd, rec)
			}
			reportArtifact(rec)
			return nil
		},
	}

	cmd.Flags().BoolP("force", "f", false, "Bypass the in-memory copy")
	cmd.Flags().String("override", "", "Try this URL before the remote candidates")
	cmd.Flags().StringP("output", "o", "", "Write the artifact bytes to this file")
	cmd.Flags().Bool("json", false, "Print the resolution record as JSON")
	return cmd
}

func reportArtifact(rec resolver.Record) {
	src := string(rec.Tier)
	if rec.Source != "" {
		src += " (" + rec.Source + ")"
	}
	if !rec.Success {
		logger.Warn("All live tiers failed, serving the embedded fallback")
	}
	logger.Info("Source:   %s", src)
	logger.Info("Size:     %s", utils.HumanSize(int64(rec.Size)))
	logger.Info("SHA-256:  %s", rec.Checksum)
	logger.Info("Cached:   %t", rec.Cached)
}
