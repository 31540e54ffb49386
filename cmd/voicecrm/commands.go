package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kalambet/voicecrm/internal/config"
	"github.com/kalambet/voicecrm/internal/crm"
	"github.com/kalambet/voicecrm/internal/eval"
	"github.com/kalambet/voicecrm/internal/logger"
	"github.com/kalambet/voicecrm/internal/provider"
)

// --- history ---

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List or delete saved interactions on a running server",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved interactions, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		serverURL, _ := cmd.Flags().GetString("url")
		limit, _ := cmd.Flags().GetInt("limit")
		asJSON, _ := cmd.Flags().GetBool("json")

		client, err := newAPIClient(serverURL)
		if err != nil {
			return err
		}
		entries, err := fetchHistory(cmd.Context(), client)
		if err != nil {
			return err
		}
		if limit > 0 && len(entries) > limit {
			entries = entries[:limit]
		}

		if asJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(entries)
		}

		if len(entries) == 0 {
			fmt.Fprintln(out, "No interactions found.")
			return nil
		}
		for _, e := range entries {
			fmt.Fprintln(out, formatHistoryLine(e))
		}
		return nil
	},
}

var historyDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a saved interaction (e.g. db-12)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		serverURL, _ := cmd.Flags().GetString("url")

		client, err := newAPIClient(serverURL)
		if err != nil {
			return err
		}
		if err := deleteHistory(cmd.Context(), client, args[0]); err != nil {
			return err
		}

		printSuccess("Deleted %s", args[0])
		return nil
	},
}

func init() {
	historyCmd.PersistentFlags().String("url", "", "server base URL (default: http://127.0.0.1:<server.port>)")
	historyListCmd.Flags().Int("limit", 0, "maximum number of interactions to show (0 = all)")
	historyListCmd.Flags().Bool("json", false, "print the raw JSON listing")
	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyDeleteCmd)
}

func fetchHistory(ctx context.Context, client *apiClient) ([]crm.HistoryEntry, error) {
	resp, err := client.get(ctx, "/history")
	if err != nil {
		return nil, err
	}
	var entries []crm.HistoryEntry
	if err := decodeJSON(resp, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func deleteHistory(ctx context.Context, client *apiClient, id string) error {
	resp, err := client.delete(ctx, "/history/"+url.PathEscape(id))
	if err != nil {
		return err
	}
	var result map[string]string
	return decodeJSON(resp, &result)
}

func formatHistoryLine(e crm.HistoryEntry) string {
	name := orDash(e.CustomerName)
	place := orDash(e.City)
	if e.Locality != nil && *e.Locality != "" {
		place += " / " + *e.Locality
	}
	return fmt.Sprintf("%s  %s  %s  %s  %s",
		colorize(colorCyan, e.ID),
		e.CreatedAt,
		colorize(colorBold, name),
		orDash(e.Phone),
		place,
	)
}

func orDash(s *string) string {
	if s == nil || *s == "" {
		return "-"
	}
	return *s
}

// --- eval ---

var evalCmd = &cobra.Command{
	Use:   "eval",
	Short: "Run extraction over the canned call notes and write a report",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("output") {
			cfg.Eval.OutputDir, _ = cmd.Flags().GetString("output")
		}
		if cmd.Flags().Changed("concurrency") {
			cfg.Eval.Concurrency, _ = cmd.Flags().GetInt("concurrency")
		}

		ai := newAIStack(cfg)
		if !ai.client.HasAPIKey() {
			return provider.ErrMissingAPIKey
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		log := logger.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)
		runner := eval.NewRunner(ai.extractor, cfg.Eval.Concurrency, log)

		printStep("Running %d cases with %s", len(eval.DefaultCases), cfg.AI.ExtractModel)
		results, err := runner.Run(ctx, eval.DefaultCases)
		if err != nil {
			return fmt.Errorf("eval interrupted: %w", err)
		}
		return writeEvalReport(cfg.Eval.OutputDir, results)
	},
}

func init() {
	evalCmd.Flags().String("output", "", "directory for eval_results.json and eval_results.xlsx")
	evalCmd.Flags().Int("concurrency", 1, "number of cases extracted in parallel")
}

func writeEvalReport(dir string, results []eval.CaseResult) error {
	jsonPath, err := eval.WriteJSON(dir, results)
	if err != nil {
		return err
	}
	xlsxPath, err := eval.WriteXLSX(dir, results)
	if err != nil {
		return err
	}

	s := eval.Summarize(results)
	printStatus("Passed", "%d/%d", s.Passed, s.Total)
	printStatus("Failed", "%d", s.Failed)
	printStatus("Errors", "%d", s.Errors)
	printSuccess("Results saved to %s and %s", jsonPath, xlsxPath)
	return nil
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

		for _, k := range config.ShowAll(cfg) {
			fmt.Fprintf(out, "  %s = %s  (%s)\n", colorize(colorBold, k.Key), k.Value, k.EnvVar)
		}
		if cfg.AI.APIKey == "" {
			printWarning("%v", provider.ErrMissingAPIKey)
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

		printSuccess("Set %s = %s (written to %s)", key, value, config.ConfigFilePath())
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
