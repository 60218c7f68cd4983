package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/go-dashboard-client/internal/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// cli carries state shared by every command. app is built once the config has
// been loaded, before any command runs.
type cli struct {
	configPath string
	verbose    bool
	app        *app
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	cmd := &cobra.Command{
		Use:          "dashboard",
		Short:        "Dashboard API client",
		Long:         "Signs in through the identity provider, calls the dashboard API and keeps calculation history in sync.",
		SilenceUsage: true,
		Version:      version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(c.configPath)
			if err != nil {
				return err
			}
			setupLogging(cmd.ErrOrStderr(), cfg.GetLogLevel(), c.verbose)
			c.app, err = newApp(cfg)
			return err
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if c.app != nil {
				c.app.Close()
			}
		},
	}
	cmd.PersistentFlags().StringVar(&c.configPath, "config", os.Getenv("DASHBOARD_CONFIG"), "YAML config file; environment variables override it")
	cmd.PersistentFlags().BoolVar(&c.verbose, "verbose", false, "Enable debug logging")

	cmd.AddCommand(
		c.newLoginCmd(),
		c.newLogoutCmd(),
		c.newSignUpCmd(),
		c.newResetPasswordCmd(),
		c.newWhoamiCmd(),
		c.newCalcCmd(),
		c.newNotificationsCmd(),
		c.newStatsCmd(),
		c.newRateLimitsCmd(),
		c.newSyncDaemonCmd(),
	)
	return cmd
}

func setupLogging(w io.Writer, level string, verbose bool) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	if verbose {
		lvl = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(lvl)
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}).With().Timestamp().Logger()
	if err != nil {
		log.Warn().Str("level", level).Msg("Unknown log level, using info")
	}
}

func displayAppname(w io.Writer, appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	fmt.Fprintln(w, myFigure.String())
}
