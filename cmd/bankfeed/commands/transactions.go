package commands

import (
	"os"

	"bankfeed/lib/banks"
	"bankfeed/lib/serviceutil"
	"bankfeed/lib/sqliteutil"
	"bankfeed/services/ledger"
	"bankfeed/services/ledger/db"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"
)

var transactionsAccount *string
var transactionsLimit *int

func init() {
	transactionsAccount = transactionsCmd.Flags().String("account", "", "Only show one account's transactions.")
	transactionsLimit = transactionsCmd.Flags().Int("limit", 50, "Maximum rows to show, 0 for all.")
	rootCmd.AddCommand(transactionsCmd)
}

var transactionsCmd = &cobra.Command{
	Use:   "transactions [--account <name>] [--limit <n>]",
	Short: "Shows stored transactions, newest first.",
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

		var txns []banks.Transaction
		if *transactionsAccount != "" {
			txns, err = store.Transactions(cmd.Context(), *transactionsAccount)
		} else {
			txns, err = store.AllTransactions(cmd.Context())
		}
		if err != nil {
			serviceutil.Fatal("failed to read transactions", err)
		}
		if *transactionsLimit > 0 && len(txns) > *transactionsLimit {
			txns = txns[:*transactionsLimit]
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"Date", "Account", "Amount", "Status", "Description"})
		for _, txn := range txns {
			t.AppendRow(table.Row{
				txn.PostedDate.Format("2006-01-02"),
				txn.AccountID,
				txn.Amount.StringFixed(2),
				txn.Status,
				txn.Description,
			})
		}
		t.Render()
	},
}
