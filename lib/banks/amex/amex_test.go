package amex

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"bankfeed/lib/banks"
	"bankfeed/lib/browser"

	"github.com/stretchr/testify/require"
)

const periodsFixture = `[
	{"statement_start_date": "2026-02-15", "statement_end_date": "2026-03-14"},
	{"statement_start_date": "2026-01-15", "statement_end_date": "2026-02-14"},
	{"statement_start_date": "2025-01-15", "statement_end_date": "2025-02-14"}
]`

const transactionsFixture = `{
	"transactions": [
		{
			"identifier": "amex-1",
			"charge_date": "2026-03-12",
			"description": "GROCERY STORE",
			"amount": 42.50,
			"extended_details": {"category": {"category_name": "Merchandise"}}
		},
		{
			"identifier": "amex-2",
			"charge_date": "2026-03-01",
			"description": "PAYMENT RECEIVED - THANK YOU",
			"amount": -500.00,
			"extended_details": {}
		}
	]
}`

func testServer(t *testing.T, handler http.Handler) *Client {
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := NewClient(browser.NewSession("", nil, nil), banks.Limits{})
	client.http.SetBaseURL(srv.URL)
	return client
}

func TestFetchEnumeratesOverlappingStatements(t *testing.T) {
	var fetched [][2]string
	client := testServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "card-token", r.Header.Get("account_tokens"))
		switch r.URL.Path {
		case "/api/servicing/v1/financials/statement_periods":
			w.Write([]byte(periodsFixture))
		case "/api/servicing/v1/financials/transactions":
			q := r.URL.Query()
			require.Equal(t, "1000", q.Get("limit"))
			require.Equal(t, "posted", q.Get("status"))
			fetched = append(fetched, [2]string{q.Get("start_date"), q.Get("end_date")})
			w.Write([]byte(`{"transactions": []}`))
		default:
			t.Errorf("unexpected path %q", r.URL.Path)
		}
	}))

	acct := banks.Account{Institution: banks.Amex, ID: "card-token"}
	r := banks.DateRange{
		From: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC),
	}
	err := client.Fetch(context.Background(), acct, r, func(p banks.Page) error { return nil })
	require.NoError(t, err)

	// the year-old statement does not overlap the range and is skipped
	require.Equal(t, [][2]string{
		{"2026-02-15", "2026-03-14"},
		{"2026-01-15", "2026-02-14"},
	}, fetched)
}

func TestNormalizeFlipsCardSigns(t *testing.T) {
	client := testServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	acct := banks.Account{Institution: banks.Amex, ID: "card-token", Nickname: "amex"}

	txns, err := client.Normalize(acct, banks.Page{Body: []byte(transactionsFixture)})
	require.NoError(t, err)
	require.Len(t, txns, 2)

	// a charge is money leaving the account
	require.Equal(t, "amex-1", txns[0].ExternalID)
	require.Equal(t, "-42.5", txns[0].Amount.String())
	require.Equal(t, "Merchandise", txns[0].Category)

	// a payment onto the card is money arriving
	require.Equal(t, "amex-2", txns[1].ExternalID)
	require.Equal(t, "500", txns[1].Amount.String())
	require.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), txns[1].PostedDate)
}

func TestBalanceMatchesAccountToken(t *testing.T) {
	client := testServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/servicing/v1/financials/balances", r.URL.Path)
		w.Write([]byte(`[
			{"account_token": "other-card", "statement_balance_amount": 99.99},
			{"account_token": "card-token", "statement_balance_amount": 1250.00}
		]`))
	}))

	balance, err := client.Balance(context.Background(), banks.Account{Institution: banks.Amex, ID: "card-token"})
	require.NoError(t, err)
	// owing money on the card is a negative position
	require.Equal(t, "-1250", balance.String())
}

func TestBalanceMissingToken(t *testing.T) {
	client := testServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"account_token": "other-card", "statement_balance_amount": 99.99}]`))
	}))

	_, err := client.Balance(context.Background(), banks.Account{Institution: banks.Amex, ID: "card-token"})
	var perr *banks.ParseError
	require.ErrorAs(t, err, &perr)
}
