package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/jkoval/apptrack/internal/config"
)

// --- run ---

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Process pending inbox threads once",
	Long: `Process pending inbox threads once.

Fetches threads under the pending label, classifies each message and
updates the tracker. Prints the run report.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/runs", nil)
		if err != nil {
			return err
		}

		var report struct {
			RunID          string        `json:"run_id"`
			Duration       time.Duration `json:"duration"`
			Fetched        int           `json:"fetched"`
			Skipped        int           `json:"skipped"`
			Processed      int           `json:"processed"`
			Created        int           `json:"created"`
			Updated        int           `json:"updated"`
			Manual         int           `json:"manual"`
			Failed         int           `json:"failed"`
			BudgetExceeded bool          `json:"budget_exceeded"`
		}
		if err := decodeJSON(resp, &report); err != nil {
			return err
		}

		printSuccess("Run %s finished in %s", report.RunID, report.Duration.Round(time.Millisecond))
		printStatus("Fetched", "%d", report.Fetched)
		printStatus("Skipped", "%d", report.Skipped)
		printStatus("Processed", "%d", report.Processed)
		printStatus("Created", "%d", report.Created)
		printStatus("Updated", "%d", report.Updated)
		printStatus("Needs review", "%d", report.Manual)
		if report.Failed > 0 {
			printWarning("%d message(s) failed and were left pending", report.Failed)
		}
		if report.BudgetExceeded {
			printWarning("time budget exceeded; remaining threads left pending")
		}
		return nil
	},
}

// --- list ---

type applicationRow struct {
	ID         string `json:"id"`
	Platform   string `json:"platform"`
	Company    string `json:"company"`
	JobTitle   string `json:"job_title"`
	Status     string `json:"status"`
	PeakStatus string `json:"peak_status"`
	LastUpdate string `json:"last_update"`
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List tracked applications",
	RunE: func(cmd *cobra.Command, args []string) error {
		statusFilter, _ := cmd.Flags().GetString("status")
		asJSON, _ := cmd.Flags().GetBool("json")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		path := "/applications"
		if statusFilter != "" {
			path += "?status=" + url.QueryEscape(statusFilter)
		}
		resp, err := client.get(cmd.Context(), path)
		if err != nil {
			return err
		}

		if asJSON {
			var raw json.RawMessage
			if err := decodeJSON(resp, &raw); err != nil {
				return err
			}
			var buf bytes.Buffer
			if err := json.Indent(&buf, raw, "", "  "); err != nil {
				return err
			}
			fmt.Println(buf.String())
			return nil
		}

		var rows []applicationRow
		if err := decodeJSON(resp, &rows); err != nil {
			return err
		}

		if len(rows) == 0 {
			fmt.Println("No applications tracked yet.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tCOMPANY\tTITLE\tSTATUS\tPEAK\tPLATFORM\tUPDATED")
		for _, r := range rows {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
				shortID(r.ID),
				truncate(r.Company, 30),
				truncate(r.JobTitle, 30),
				r.Status,
				r.PeakStatus,
				r.Platform,
				shortDate(r.LastUpdate),
			)
		}
		return w.Flush()
	},
}

func init() {
	listCmd.Flags().String("status", "", "filter by status (e.g. Applied, Rejected)")
	listCmd.Flags().Bool("json", false, "print raw JSON")
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}

// shortDate keeps the date part of an RFC3339 timestamp. Anything shorter
// passes through untouched.
func shortDate(s string) string {
	if len(s) > 10 {
		return s[:10]
	}
	return s
}

// --- funnel ---

var funnelCmd = &cobra.Command{
	Use:   "funnel",
	Short: "Show funnel, platform and weekly aggregates",
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/aggregates")
		if err != nil {
			return err
		}

		var agg struct {
			Funnel []struct {
				Label string `json:"label"`
				Count int    `json:"count"`
			} `json:"funnel"`
			PeakFunnel []struct {
				Label string `json:"label"`
				Count int    `json:"count"`
			} `json:"peak_funnel"`
			Platforms []struct {
				Label string `json:"label"`
				Count int    `json:"count"`
			} `json:"platforms"`
			Weekly []struct {
				Label string `json:"label"`
				Count int    `json:"count"`
			} `json:"weekly"`
		}
		if err := decodeJSON(resp, &agg); err != nil {
			return err
		}

		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(agg)
		}

		fmt.Println(colorize(colorBold, "Funnel (current status)"))
		for _, c := range agg.Funnel {
			fmt.Printf("  %-22s %d\n", c.Label, c.Count)
		}
		fmt.Println(colorize(colorBold, "\nFunnel (peak status)"))
		for _, c := range agg.PeakFunnel {
			fmt.Printf("  %-22s %d\n", c.Label, c.Count)
		}
		if len(agg.Platforms) > 0 {
			fmt.Println(colorize(colorBold, "\nPlatforms"))
			for _, c := range agg.Platforms {
				fmt.Printf("  %-22s %d\n", c.Label, c.Count)
			}
		}
		if len(agg.Weekly) > 0 {
			fmt.Println(colorize(colorBold, "\nApplications per week"))
			for _, c := range agg.Weekly {
				fmt.Printf("  %-22s %d\n", c.Label, c.Count)
			}
		}
		return nil
	},
}

func init() {
	funnelCmd.Flags().Bool("json", false, "print raw JSON")
}

// --- merge ---

var mergeCmd = &cobra.Command{
	Use:   "merge <source-id> <dest-id>",
	Short: "Merge two application rows into one",
	Long: `Merge two application rows into one.

Folds the source row into the destination row and deletes the source.
Use this when one real application was split across two rows, for
example after a manual-review entry was identified.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		body := map[string]string{"source_id": args[0], "dest_id": args[1]}
		resp, err := client.post(cmd.Context(), "/applications/merge", body)
		if err != nil {
			return err
		}

		var merged applicationRow
		if err := decodeJSON(resp, &merged); err != nil {
			return err
		}

		printSuccess("Merged into %s (%s — %s, %s)", shortID(merged.ID), merged.Company, merged.JobTitle, merged.Status)
		return nil
	},
}

// --- sweep ---

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Mark long-inactive applications as rejected",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/sweep", nil)
		if err != nil {
			return err
		}

		var result map[string]int
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Swept %d stale application(s)", result["swept"])
		return nil
	},
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
