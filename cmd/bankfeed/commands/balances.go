package commands

import (
	"os"

	"bankfeed/lib/banks"
	"bankfeed/lib/banks/registry"
	"bankfeed/lib/serviceutil"
	"bankfeed/lib/sqliteutil"
	"bankfeed/services/ledger"
	"bankfeed/services/ledger/db"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"
)

var balancesStored *bool

func init() {
	balancesStored = balancesCmd.Flags().Bool("stored", false, "Show the last recorded balances instead of fetching.")
	rootCmd.AddCommand(balancesCmd)
}

var balancesCmd = &cobra.Command{
	Use:   "balances [--stored]",
	Short: "Fetches the current balance of every configured account without importing.",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := readConfig()
		if err != nil {
			serviceutil.Fatal("failed to read config", err)
		}

		database, err := sqliteutil.OpenDB(db.Schema, cfg.Db)
		if err != nil {
			serviceutil.Fatal("failed to open db", err)
		}
		defer database.Close()
		store := ledger.NewService(database)

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"Account", "Institution", "Balance", "As Of"})

		if *balancesStored {
			for _, acct := range cfg.Accounts {
				balance, capturedAt, ok, err := store.Balance(cmd.Context(), acct.Name())
				if err != nil {
					serviceutil.Fatal("failed to read balance", err)
				}
				if !ok {
					t.AppendRow(table.Row{acct.Name(), acct.Institution, "-", "never"})
					continue
				}
				t.AppendRow(table.Row{
					acct.Name(), acct.Institution,
					balance.StringFixed(2),
					capturedAt.Format("2006-01-02 15:04"),
				})
			}
			t.Render()
			return
		}

		targets, err := buildTargets(cfg)
		if err != nil {
			serviceutil.Fatal("failed to load browser sessions", err)
		}
		for _, target := range targets {
			acct := target.Account
			client, err := registry.New(acct, target.Session, banks.Limits{})
			if err != nil {
				serviceutil.Fatal("failed to build connector", err)
			}
			fetcher, ok := client.(banks.BalanceFetcher)
			if !ok {
				t.AppendRow(table.Row{acct.Name(), acct.Institution, "unsupported", ""})
				continue
			}
			balance, err := fetcher.Balance(cmd.Context(), acct)
			if err != nil {
				t.AppendRow(table.Row{acct.Name(), acct.Institution, "error: " + err.Error(), ""})
				continue
			}
			if err := store.RecordBalance(cmd.Context(), acct.Institution, acct.Name(), balance); err != nil {
				serviceutil.Fatal("failed to record balance", err)
			}
			t.AppendRow(table.Row{acct.Name(), acct.Institution, balance.StringFixed(2), "now"})
		}
		t.Render()
	},
}
