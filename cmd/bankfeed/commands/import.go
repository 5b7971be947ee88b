package commands

import (
	"os"
	"time"

	"bankfeed/lib/banks"
	"bankfeed/lib/serviceutil"
	"bankfeed/lib/sqliteutil"
	"bankfeed/services/importer"
	"bankfeed/services/ledger"
	"bankfeed/services/ledger/db"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"
)

var importDays *int

func init() {
	importDays = importCmd.Flags().Int("days", 0, "How many days back to import, overrides the config.")
	rootCmd.AddCommand(importCmd)
}

var importCmd = &cobra.Command{
	Use:   "import [--days <n>]",
	Short: "Fetches recent transactions from every configured account and stores them.",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := readConfig()
		if err != nil {
			serviceutil.Fatal("failed to read config", err)
		}
		days := cfg.Days
		if *importDays > 0 {
			days = *importDays
		}

		targets, err := buildTargets(cfg)
		if err != nil {
			serviceutil.Fatal("failed to load browser sessions", err)
		}

		database, err := sqliteutil.OpenDB(db.Schema, cfg.Db)
		if err != nil {
			serviceutil.Fatal("failed to open db", err)
		}
		defer database.Close()

		service := importer.NewService(ledger.NewService(database), importer.Options{
			Concurrency: cfg.Concurrency,
		})

		summary := service.Run(cmd.Context(), targets, banks.LastDays(days))
		renderSummary(summary)

		if summary.Failed() {
			os.Exit(1)
		}
	},
}

func renderSummary(summary importer.RunSummary) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Account", "Institution", "Outcome", "Pages", "Fetched", "Inserted", "Updated", "Took"})
	for _, r := range summary.Results {
		outcome := string(r.Outcome)
		if r.Err != nil {
			outcome += ": " + r.Err.Error()
		}
		t.AppendRow(table.Row{
			r.Account.Name(),
			r.Account.Institution,
			outcome,
			r.Pages,
			r.Transactions,
			r.Inserted,
			r.Updated,
			r.Duration.Round(time.Millisecond),
		})
	}
	t.AppendFooter(table.Row{
		"", "", "",
		"", "", "",
		"ok", summary.Count(importer.OutcomeSuccess),
	})
	t.Render()
}
