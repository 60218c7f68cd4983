package main

import (
	"context"
	"errors"
	"runtime/debug"
	"time"

	"github.com/jrsteele09/go-dashboard-client/calcsync"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 5 * time.Second

func (c *cli) newSyncDaemonCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync-daemon",
		Short: "Keep the session fresh and retry pending records on a schedule until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			displayAppname(cmd.ErrOrStderr(), c.app.cfg.GetAppName())
			return c.runDaemon(cmd.Context())
		},
	}
}

func (c *cli) runDaemon(ctx context.Context) (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("Recovered from panic")
			returnError = errors.New("panic recovered")
		}
	}()

	if c.app.cfg.GetOIDCIssuer() != "" {
		if _, err := c.app.session(ctx); err != nil {
			return err
		}
		c.app.provider.StartAutoRefresh(ctx)
	} else {
		log.Warn().Msg("No identity provider configured, syncing with the stored credential only")
	}

	scheduler, err := calcsync.NewScheduler(c.app.engine, c.app.cfg.GetSyncSchedule())
	if err != nil {
		return err
	}
	scheduler.Start()
	log.Info().Str("schedule", c.app.cfg.GetSyncSchedule()).Msg("Sync daemon started")

	// first pass right away rather than waiting a whole interval
	if report, err := c.app.engine.RetrySync(ctx); err != nil {
		log.Err(err).Int("remaining", report.Remaining).Msg("Initial calculation sync failed")
	}

	<-ctx.Done()
	return shutdown(scheduler)
}

func shutdown(scheduler *calcsync.Scheduler) error {
	select {
	case <-scheduler.Stop().Done():
		log.Info().Msg("Sync daemon stopped")
		return nil
	case <-time.After(shutdownTimeout):
		return errors.New("timed out waiting for a running sync to finish")
	}
}
