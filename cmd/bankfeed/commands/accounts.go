package commands

import (
	"os"

	"bankfeed/lib/serviceutil"
	"bankfeed/lib/sqliteutil"
	"bankfeed/services/ledger"
	"bankfeed/services/ledger/db"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"
)

func init() {
	rootCmd.AddCommand(accountsCmd)
}

var accountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "Lists configured accounts and how much history is stored for each.",
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
		t.AppendHeader(table.Row{"Account", "Institution", "Kind", "Stored", "Newest"})
		for _, acct := range cfg.Accounts {
			stored, err := store.Transactions(cmd.Context(), acct.Name())
			if err != nil {
				serviceutil.Fatal("failed to read transactions", err)
			}
			newest := ""
			if len(stored) > 0 {
				newest = stored[0].PostedDate.Format("2006-01-02")
			}
			t.AppendRow(table.Row{acct.Name(), acct.Institution, acct.Kind, len(stored), newest})
		}
		t.Render()
	},
}
