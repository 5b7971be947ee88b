package ledger

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"bankfeed/lib/banks"
	"bankfeed/lib/sqliteutil"
	"bankfeed/lib/testutil"
	"bankfeed/services/ledger/db"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func txn(accountID, externalID string, amount string, date time.Time, status banks.Status) banks.Transaction {
	return banks.Transaction{
		AccountID:   accountID,
		ExternalID:  externalID,
		PostedDate:  banks.Midnight(date),
		Amount:      decimal.RequireFromString(amount),
		Currency:    "USD",
		Description: "GROCERY STORE",
		Status:      status,
	}
}

func TestUpsertIdempotent(t *testing.T) {
	setup, cleanup := testutil.SetupService(t, testutil.ServiceParams{
		Name:     "services/ledger",
		DbSchema: db.Schema,
	})
	defer cleanup()
	service := NewService(setup.DB)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	date := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	batch := []banks.Transaction{
		txn("checking", "t1", "-42.50", date, banks.Posted),
		txn("checking", "t2", "1200", date, banks.Posted),
	}

	res, err := service.Upsert(ctx, banks.Chase, batch)
	require.NoError(t, err)
	require.Equal(t, UpsertResult{Inserted: 2}, res)

	res, err = service.Upsert(ctx, banks.Chase, batch)
	require.NoError(t, err)
	require.Equal(t, UpsertResult{}, res)

	stored, err := service.Transactions(ctx, "checking")
	require.NoError(t, err)
	require.Len(t, stored, 2)
}

func TestUpsertSeparatesAccounts(t *testing.T) {
	setup, cleanup := testutil.SetupService(t, testutil.ServiceParams{
		Name:     "services/ledger",
		DbSchema: db.Schema,
	})
	defer cleanup()
	service := NewService(setup.DB)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	date := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	res, err := service.Upsert(ctx, banks.Chase, []banks.Transaction{
		txn("checking", "t1", "-42.50", date, banks.Posted),
		txn("savings", "t1", "-42.50", date, banks.Posted),
	})
	require.NoError(t, err)
	require.Equal(t, UpsertResult{Inserted: 2}, res)

	stored, err := service.Transactions(ctx, "savings")
	require.NoError(t, err)
	require.Len(t, stored, 1)
}

func TestUpsertPendingToPosted(t *testing.T) {
	setup, cleanup := testutil.SetupService(t, testutil.ServiceParams{
		Name:     "services/ledger",
		DbSchema: db.Schema,
	})
	defer cleanup()
	service := NewService(setup.DB)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	date := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)

	_, err := service.Upsert(ctx, banks.CapitalOne, []banks.Transaction{
		txn("savings", "t1", "-10", date, banks.Pending),
	})
	require.NoError(t, err)

	res, err := service.Upsert(ctx, banks.CapitalOne, []banks.Transaction{
		txn("savings", "t1", "-10", date, banks.Posted),
	})
	require.NoError(t, err)
	require.Equal(t, UpsertResult{Updated: 1}, res)

	stored, err := service.Transactions(ctx, "savings")
	require.NoError(t, err)
	require.Equal(t, banks.Posted, stored[0].Status)

	// posted never moves back to pending
	res, err = service.Upsert(ctx, banks.CapitalOne, []banks.Transaction{
		txn("savings", "t1", "-10", date, banks.Pending),
	})
	require.NoError(t, err)
	require.Equal(t, UpsertResult{}, res)

	stored, err = service.Transactions(ctx, "savings")
	require.NoError(t, err)
	require.Equal(t, banks.Posted, stored[0].Status)
}

func TestUpsertImmutableDrift(t *testing.T) {
	setup, cleanup := testutil.SetupService(t, testutil.ServiceParams{
		Name:     "services/ledger",
		DbSchema: db.Schema,
	})
	defer cleanup()
	service := NewService(setup.DB)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	date := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)

	_, err := service.Upsert(ctx, banks.Chase, []banks.Transaction{
		txn("checking", "t1", "-42.50", date, banks.Posted),
	})
	require.NoError(t, err)

	_, err = service.Upsert(ctx, banks.Chase, []banks.Transaction{
		txn("checking", "t1", "-99.99", date, banks.Posted),
	})
	var perr *banks.ParseError
	require.ErrorAs(t, err, &perr)

	// the failed batch must not have written anything
	stored, err := service.Transactions(ctx, "checking")
	require.NoError(t, err)
	require.Equal(t, "-42.5", stored[0].Amount.String())
}

func TestUpsertMutableUpdates(t *testing.T) {
	setup, cleanup := testutil.SetupService(t, testutil.ServiceParams{
		Name:     "services/ledger",
		DbSchema: db.Schema,
	})
	defer cleanup()
	service := NewService(setup.DB)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	date := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)

	first := txn("checking", "t1", "-42.50", date, banks.Posted)
	_, err := service.Upsert(ctx, banks.Chase, []banks.Transaction{first})
	require.NoError(t, err)

	second := first
	second.Description = "GROCERY STORE #1042"
	second.Category = "Card"
	res, err := service.Upsert(ctx, banks.Chase, []banks.Transaction{second})
	require.NoError(t, err)
	require.Equal(t, UpsertResult{Updated: 1}, res)

	stored, err := service.Transactions(ctx, "checking")
	require.NoError(t, err)
	require.Equal(t, "GROCERY STORE #1042", stored[0].Description)
	require.Equal(t, "Card", stored[0].Category)
}

// Accounts at different institutions import in parallel; their batch
// commits against one file-backed database must all land.
func TestUpsertConcurrentAccounts(t *testing.T) {
	database, err := sqliteutil.OpenDB(db.Schema, filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	defer database.Close()
	service := NewService(database)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*30)
	defer cancel()

	const rows = 200
	date := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	insts := banks.Institutions()

	errs := make([]error, len(insts))
	var wg sync.WaitGroup
	for i, inst := range insts {
		wg.Add(1)
		go func(i int, inst banks.Institution) {
			defer wg.Done()
			batch := make([]banks.Transaction, 0, rows)
			for n := 0; n < rows; n++ {
				batch = append(batch, txn(string(inst)+"-checking", fmt.Sprintf("t%d", n), "-1.25", date, banks.Posted))
			}
			_, errs[i] = service.Upsert(ctx, inst, batch)
		}(i, inst)
	}
	wg.Wait()

	for i, inst := range insts {
		require.NoError(t, errs[i], inst)
		stored, err := service.Transactions(ctx, string(inst)+"-checking")
		require.NoError(t, err)
		require.Len(t, stored, rows)
	}
}

func TestBalanceSnapshots(t *testing.T) {
	setup, cleanup := testutil.SetupService(t, testutil.ServiceParams{
		Name:     "services/ledger",
		DbSchema: db.Schema,
	})
	defer cleanup()
	service := NewService(setup.DB)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	_, _, ok, err := service.Balance(ctx, "checking")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, service.RecordBalance(ctx, banks.Chase, "checking", decimal.RequireFromString("1044.23")))
	require.NoError(t, service.RecordBalance(ctx, banks.Chase, "checking", decimal.RequireFromString("998.01")))

	balance, _, ok, err := service.Balance(ctx, "checking")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "998.01", balance.String())
}
