package chase

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"bankfeed/lib/banks"
	"bankfeed/lib/browser"

	"github.com/stretchr/testify/require"
)

const activityFixture = `{
	"presentBalance": 1044.23,
	"activities": [
		{
			"activityDate": "20260312",
			"description": "GROCERY STORE #1042",
			"amount": -42.50,
			"transactionId": "txn-1",
			"activityTypeGroupFilter": "DEBIT_CARD"
		},
		{
			"activityDate": "20260310",
			"description": "PAYROLL DEPOSIT",
			"amount": 2500.00,
			"transactionId": "txn-2",
			"activityTypeGroupFilter": "DEPOSIT"
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

func TestFetchNormalize(t *testing.T) {
	var gotBody string
	client := testServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/svc/rr/accounts/secure/v4/activity/dda/list", r.URL.Path)
		require.Equal(t, "NONE", r.Header.Get("x-jpmc-csrf-token"))
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.Write([]byte(activityFixture))
	}))

	acct := banks.Account{Institution: banks.Chase, ID: "987654", Nickname: "checking"}
	var pages []banks.Page
	err := client.Fetch(context.Background(), acct, banks.LastDays(30), func(p banks.Page) error {
		pages = append(pages, p)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, pages, 1)
	require.Equal(t, "accountId=987654", gotBody)

	txns, err := client.Normalize(acct, pages[0])
	require.NoError(t, err)
	require.Len(t, txns, 2)

	require.Equal(t, "checking", txns[0].AccountID)
	require.Equal(t, "txn-1", txns[0].ExternalID)
	require.Equal(t, time.Date(2026, 3, 12, 0, 0, 0, 0, time.UTC), txns[0].PostedDate)
	require.Equal(t, "-42.5", txns[0].Amount.String())
	require.Equal(t, "Card", txns[0].Category)
	require.Equal(t, banks.Posted, txns[0].Status)

	require.Equal(t, "txn-2", txns[1].ExternalID)
	require.Equal(t, "2500", txns[1].Amount.String())
}

func TestNormalizeRejectsMissingID(t *testing.T) {
	client := testServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	acct := banks.Account{Institution: banks.Chase, ID: "987654"}
	_, err := client.Normalize(acct, banks.Page{Body: []byte(`{
		"activities": [{"activityDate": "20260312", "description": "x", "amount": 1}]
	}`)})

	var perr *banks.ParseError
	require.ErrorAs(t, err, &perr)
	require.Equal(t, banks.Chase, perr.Institution)
}

func TestFetchLoginWall(t *testing.T) {
	client := testServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><form action="/web/auth/logon"></form></html>`))
	}))

	acct := banks.Account{Institution: banks.Chase, ID: "987654"}
	err := client.Fetch(context.Background(), acct, banks.LastDays(30), func(p banks.Page) error {
		t.Error("must not emit after hitting a login wall")
		return nil
	})
	require.ErrorIs(t, err, banks.ErrSessionExpired)
}

func TestBalance(t *testing.T) {
	client := testServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(activityFixture))
	}))

	balance, err := client.Balance(context.Background(), banks.Account{Institution: banks.Chase, ID: "987654"})
	require.NoError(t, err)
	require.Equal(t, "1044.23", balance.String())
}
