package middleware

import (
	"context"

	"github.com/MrSnakeDoc/warden/internal/config"
	"github.com/spf13/cobra"
)

// LoadConfig resolves the effective configuration (file named by --config,
// then WARDEN_* variables) and stores it in the command context.
func LoadConfig(cmd *cobra.Command, args []string, next func(cmd *cobra.Command, args []string) error) error {
	path, _ := cmd.Flags().GetString("config")

	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cmd.SetContext(context.WithValue(ctx, CtxKeyConfig, cfg))

	return next(cmd, args)
}
