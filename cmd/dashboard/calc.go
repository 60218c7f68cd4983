package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/jrsteele09/go-dashboard-client/calcsync"
	"github.com/jrsteele09/go-dashboard-client/internal/utils"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func (c *cli) newCalcCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "calc",
		Short: "Work with the calculation history",
	}
	cmd.AddCommand(
		c.newCalcSaveCmd(),
		c.newCalcListCmd(),
		c.newCalcSyncCmd(),
		c.newCalcDeleteCmd(),
	)
	return cmd
}

func (c *cli) newCalcSaveCmd() *cobra.Command {
	var company, name, inputArg, resultArg string
	cmd := &cobra.Command{
		Use:   "save",
		Short: "Calculate and save a record, keeping it locally if the backend is unreachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			input, err := readJSONObject(inputArg)
			if err != nil {
				return fmt.Errorf("--input: %w", err)
			}
			if _, ok := input["company"]; !ok {
				input["company"] = company
			}

			var result map[string]any
			if resultArg != "" {
				if result, err = readJSONObject(resultArg); err != nil {
					return fmt.Errorf("--result: %w", err)
				}
			} else if result, err = c.app.client.Emissions.Calculate(cmd.Context(), input); err != nil {
				return err
			}

			outcome := c.app.engine.Save(cmd.Context(), calcsync.SaveInput{
				Company: company,
				Input:   input,
				Result:  result,
				Name:    utils.PtrOrNil(name),
			})
			out := cmd.OutOrStdout()
			if outcome.Pending {
				fmt.Fprintf(out, "Saved locally as %s, it will sync when the backend is reachable\n", outcome.Record.LocalID)
				return nil
			}
			fmt.Fprintf(out, "Saved %s\n", utils.Value(outcome.Record.ID))
			return nil
		},
	}
	cmd.Flags().StringVar(&company, "company", "", "Company name")
	cmd.Flags().StringVar(&name, "name", "", "Optional record name")
	cmd.Flags().StringVar(&inputArg, "input", "{}", "Calculation input as JSON, or @file")
	cmd.Flags().StringVar(&resultArg, "result", "", "Precomputed result as JSON, or @file; skips the remote calculation")
	_ = cmd.MarkFlagRequired("company")
	return cmd
}

func (c *cli) newCalcListCmd() *cobra.Command {
	var offline bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the calculation history, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !offline {
				if err := c.app.engine.Refresh(cmd.Context()); err != nil {
					log.Warn().Err(err).Msg("Unable to refresh history, showing the local copy")
				}
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tCOMPANY\tNAME\tTIMESTAMP\tSTATUS")
			for _, rec := range c.app.engine.History() {
				status, id := "synced", utils.Value(rec.ID)
				if rec.Pending() {
					status, id = "pending", rec.LocalID
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", id, rec.Company, utils.Value(rec.Name), rec.Timestamp.Local().Format(time.DateTime), status)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&offline, "offline", false, "Show the local copy without contacting the backend")
	return cmd
}

func (c *cli) newCalcSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Retry syncing pending records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := c.app.engine.RetrySync(cmd.Context())
			fmt.Fprintf(cmd.OutOrStdout(), "Migrated %d, %d still pending\n", report.Migrated, report.Remaining)
			return err
		},
	}
}

func (c *cli) newCalcDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a record by server id, or by local id for a pending record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, rec := range c.app.engine.History() {
				if utils.Value(rec.ID) == args[0] || (rec.Pending() && rec.LocalID == args[0]) {
					if err := c.app.engine.Delete(cmd.Context(), rec); err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
					return nil
				}
			}
			return fmt.Errorf("no calculation %q in the history", args[0])
		},
	}
}

// readJSONObject parses arg as a JSON object, reading it from a file when it
// starts with @.
func readJSONObject(arg string) (map[string]any, error) {
	data := []byte(arg)
	if path, ok := strings.CutPrefix(arg, "@"); ok {
		var err error
		if data, err = os.ReadFile(path); err != nil {
			return nil, err
		}
	}
	obj := map[string]any{}
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, err
	}
	if obj == nil {
		obj = map[string]any{}
	}
	return obj, nil
}
