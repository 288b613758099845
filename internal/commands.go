package internal

import (
	"encoding/json"

	"github.com/MrSnakeDoc/warden/internal/app"
	"github.com/MrSnakeDoc/warden/internal/config"
	"github.com/MrSnakeDoc/warden/internal/logger"
	"github.com/MrSnakeDoc/warden/internal/middleware"
	"github.com/spf13/cobra"
)

var defaultCommands = []middleware.CommandFactory{
	NewInitCmd,
	middleware.UseMiddlewareChain(middleware.LoadConfig)(NewServeCmd),
	middleware.UseMiddlewareChain(middleware.LoadConfig)(NewRunCmd),
	middleware.UseMiddlewareChain(middleware.LoadConfig)(NewArtifactCmd),
	middleware.UseMiddlewareChain(middleware.RequireHTTPArgs, middleware.LoadConfig)(NewProbeCmd),
	middleware.UseMiddlewareChain(middleware.LoadConfig)(NewCacheCmd),
	middleware.UseMiddlewareChain(middleware.LoadConfig)(NewChannelsCmd),
}

func RegisterSubCommands(cmd *cobra.Command) {
	for _, factory := range defaultCommands {
		cmd.AddCommand(factory())
	}
}

// openApp builds the collaborators from the configuration stored by LoadConfig.
func openApp(cmd *cobra.Command) (*app.App, error) {
	cfg, err := middleware.Get[*config.Config](cmd, middleware.CtxKeyConfig)
	if err != nil {
		return nil, err
	}
	return app.Build(cmd.Context(), cfg)
}

func closeApp(a *app.App) {
	if err := a.Close(); err != nil {
		logger.Warn("Failed to close stores: %v", err)
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
