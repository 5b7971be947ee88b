package banks

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestWindows(t *testing.T) {
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	windows := DateRange{From: from, To: to}.Windows(60)

	// newest first, contiguous, clamped at the range start
	want := []DateRange{
		{From: time.Date(2026, 4, 2, 0, 0, 0, 0, time.UTC), To: to},
		{From: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), To: time.Date(2026, 4, 2, 0, 0, 0, 0, time.UTC)},
		{From: from, To: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)},
	}
	if diff := cmp.Diff(want, windows); diff != "" {
		t.Fatal(diff)
	}
}

func TestWindowsSingle(t *testing.T) {
	r := DateRange{
		From: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC),
	}
	windows := r.Windows(60)
	require.Len(t, windows, 1)
	require.Equal(t, r, windows[0])

	require.Equal(t, []DateRange{r}, r.Windows(0))
}

func TestDedupe(t *testing.T) {
	a := Transaction{AccountID: "checking", ExternalID: "1", Description: "first"}
	b := Transaction{AccountID: "checking", ExternalID: "1", Description: "second"}
	c := Transaction{AccountID: "savings", ExternalID: "1"}

	out := Dedupe([]Transaction{a, b, c})
	require.Len(t, out, 2)
	// first occurrence wins
	require.Equal(t, "first", out[0].Description)
	require.Equal(t, "savings", out[1].AccountID)
}

func TestDeriveIDStable(t *testing.T) {
	date := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	amount := decimal.RequireFromString("-42.50")

	first := DeriveID("GROCERY STORE", DateKey(date), AmountKey(amount))
	second := DeriveID("GROCERY STORE", DateKey(date), AmountKey(amount))
	require.Equal(t, first, second)
	require.Len(t, first, 32)

	// field boundaries matter: moving a character across the joint must
	// change the key
	require.NotEqual(t,
		DeriveID("ab", "c"),
		DeriveID("a", "bc"),
	)
	require.NotEqual(t, first, DeriveID("GROCERY STORE", DateKey(date), AmountKey(amount.Neg())))
}

func TestAmountKeyNormalizes(t *testing.T) {
	// different renderings of the same number must produce one key
	require.Equal(t,
		AmountKey(decimal.RequireFromString("-42.50")),
		AmountKey(decimal.RequireFromString("-42.5")),
	)
}

func TestParseAmount(t *testing.T) {
	for input, want := range map[string]string{
		"$1,234.56":  "1234.56",
		"-$12.00":    "-12",
		"($45.00)":   "-45",
		"  $0.99 ":   "0.99",
		"1234567.89": "1234567.89",
	} {
		got, err := ParseAmount(input)
		require.NoError(t, err, input)
		require.Equal(t, want, got.String(), input)
	}

	_, err := ParseAmount("not money")
	require.Error(t, err)
}

func TestParseDateTruncates(t *testing.T) {
	got, err := ParseDate("2006-01-02T15:04:05Z07:00", "2026-03-14T18:30:00-07:00")
	require.NoError(t, err)
	require.Equal(t, time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC), got)
}

func TestValidateAccount(t *testing.T) {
	require.NoError(t, ValidateAccount(Account{Institution: Chase, ID: "x"}))
	require.Error(t, ValidateAccount(Account{Institution: "not-a-bank", ID: "x"}))
	require.Error(t, ValidateAccount(Account{Institution: Chase}))
}

func TestAccountName(t *testing.T) {
	require.Equal(t, "checking", Account{ID: "123", Nickname: "checking"}.Name())
	require.Equal(t, "123", Account{ID: "123"}.Name())
}
