package internal

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/MrSnakeDoc/warden/internal/logger"
	"github.com/MrSnakeDoc/warden/internal/middleware"

	"github.com/spf13/cobra"
)

var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "warden",
		Short: "Maintenance daemon for the video aggregation front end",
		Long: `Warden keeps the video aggregation front end healthy.
It resolves the player plugin artifact through its tier chain, probes stream URLs,
bounds the query cache and refreshes the live-channel list on a schedule.`,
		Example: `warden serve
warden run --json
warden artifact --force -o plugin.jar`,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			logger.ConfigureLoggerFromFlags()
		},
		Run: func(cmd *cobra.Command, _ []string) {
			if v, _ := cmd.Flags().GetBool("version"); v {
				fmt.Printf("Version: %s (commit %s, built %s)\n", Version, Commit, Date)
				return
			}
			_ = cmd.Help()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.Flags().BoolP("version", "v", false, "Print version information")
	pf := cmd.PersistentFlags()
	pf.StringP("config", "c", "", "Path to the configuration file (default ~/.config/warden/config.yml)")
	pf.CountVarP(&logger.FlagVerboseCount, "verbose", "V", "Increase verbosity (-V for debug)")
	pf.BoolVarP(&logger.FlagQuiet, "quiet", "q", false, "Only print errors")
	pf.BoolVarP(&logger.FlagSilent, "silent", "s", false, "Print nothing")
	pf.BoolVar(&logger.FlagJSON, "log-json", false, "Emit logs as JSON lines")

	RegisterSubCommands(cmd)

	return cmd
}

func Execute() error {
	root := NewRootCmd()

	if os.Getenv("COMP_LINE") != "" ||
		(len(os.Args) > 1 && strings.HasPrefix(os.Args[1], "__complete")) {
		return root.Execute()
	}

	if err := root.Execute(); err != nil {
		if errors.Is(err, middleware.ErrLogged) {
			return err
		}
		logger.LogError("%v", err)
		return err
	}
	return nil
}
