package internal

import (
	"fmt"
	"path/filepath"

	"github.com/MrSnakeDoc/warden/internal/config"
	"github.com/MrSnakeDoc/warden/internal/logger"
	"github.com/MrSnakeDoc/warden/internal/utils"

	"github.com/spf13/cobra"
)

func NewInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default configuration file",
		Long: `Write the default warden configuration.
The file goes to --config when given, otherwise ~/.config/warden/config.yml.
An existing file is kept unless --force is set.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, _ := cmd.Flags().GetString("config")
			force, _ := cmd.Flags().GetBool("force")

			if path == "" {
				dir, err := config.GetConfigDir()
				if err != nil {
					return err
				}
				path = filepath.Join(dir, "config.yml")
			}

			exists, err := utils.FileExists(path)
			if err != nil {
				return err
			}
			if exists && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}

			cfg := config.DefaultConfig()
			if err := cfg.Save(path); err != nil {
				return err
			}
			logger.Success("Wrote default configuration to %s", path)
			return nil
		},
	}

	cmd.Flags().BoolP("force", "f", false, "Overwrite an existing configuration file")
	return cmd
}
