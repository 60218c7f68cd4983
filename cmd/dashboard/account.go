package main

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func (c *cli) newNotificationsCmd() *cobra.Command {
	var unread bool
	var limit int
	cmd := &cobra.Command{
		Use:   "notifications",
		Short: "List notifications",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			params := map[string]string{}
			if unread {
				params["unread_only"] = "true"
			}
			if limit > 0 {
				params["limit"] = strconv.Itoa(limit)
			}
			notifications, err := c.app.client.Notifications.List(cmd.Context(), params)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tREAD\tTITLE\tCREATED")
			for _, n := range notifications {
				read := " "
				if n.IsRead {
					read = "x"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", n.ID, read, n.Title, n.CreatedAt)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&unread, "unread", false, "Only unread notifications")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number to list")
	return cmd
}

func (c *cli) newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show usage statistics for the signed-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			stats, err := c.app.client.User.Stats(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Requests total:      %d\n", stats.TotalRequests)
			fmt.Fprintf(out, "Requests today:      %d\n", stats.RequestsToday)
			fmt.Fprintf(out, "Requests this month: %d\n", stats.RequestsThisMonth)
			fmt.Fprintf(out, "API keys:            %d\n", stats.APIKeysCount)
			fmt.Fprintf(out, "Active sessions:     %d\n", stats.ActiveSessions)
			return nil
		},
	}
}

func (c *cli) newRateLimitsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ratelimits",
		Short: "Show the default and per-key rate limits",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			limits, err := c.app.client.Developer.RateLimits(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "KEY\tLIMIT\tWINDOW")
			fmt.Fprintf(tw, "default\t%d\t%ds\n", limits.Default.Limit, limits.Default.WindowSeconds)
			for _, k := range limits.Keys {
				fmt.Fprintf(tw, "%s\t%d\t%ds\n", k.Prefix, k.RateLimit.Limit, k.RateLimit.WindowSeconds)
			}
			return tw.Flush()
		},
	}
}
