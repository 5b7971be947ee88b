package firsttechfed

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"bankfeed/lib/banks"
	"bankfeed/lib/browser"

	"github.com/stretchr/testify/require"
)

func row(id, amount, year, month, day, desc, category string) string {
	return fmt.Sprintf(`
		<div class="transaction-row" data-transaction-id=%q data-amount=%q data-selected-category=%q>
			<span class="date">
				<span class="month">%s</span>
				<span class="day">%s</span>
				<span class="year">%s</span>
			</span>
			<span class="description">  %s
			</span>
		</div>`, id, amount, category, month, day, year, desc)
}

const pendingPage = `<div class="transactions">
	<div class="transaction-row pending">
		<span class="description">CARD HOLD</span>
	</div>
</div>`

var postedPage = `<div class="transactions">
	<div id="posted_transactions"></div>` +
	row("ftf-1", "-42.50", "2026", "Mar", "12", "GROCERY STORE", "Groceries") +
	row("ftf-2", "2500", "2026", "Mar", "10", "PAYROLL", "") +
	`</div>`

var lastPage = `<div class="transactions">` +
	row("ftf-3", "-8.75", "2026", "Mar", "2", "COFFEE", "") +
	`<div class="is-last-page"></div>
</div>`

func testServer(t *testing.T, handler http.Handler) *Client {
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := NewClient(browser.NewSession("", nil, nil), banks.Limits{})
	client.http.SetBaseURL(srv.URL)
	return client
}

func TestFetchSkipsPendingPages(t *testing.T) {
	client := testServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/MyAccountsV2/Transactions", r.URL.Path)
		require.Equal(t, "XMLHttpRequest", r.Header.Get("x-requested-with"))
		require.Equal(t, "share-1", r.URL.Query().Get("account_identifier"))

		switch r.URL.Query().Get("start") {
		case "0":
			require.Empty(t, r.URL.Query().Get("isLoadingMore"))
			w.Write([]byte(pendingPage))
		case "1":
			require.Equal(t, "true", r.URL.Query().Get("isLoadingMore"))
			w.Write([]byte(postedPage))
		case "2":
			w.Write([]byte(lastPage))
		default:
			t.Errorf("unexpected page %q", r.URL.Query().Get("start"))
		}
	}))

	acct := banks.Account{Institution: banks.FirstTechFed, ID: "share-1"}
	var pages []banks.Page
	err := client.Fetch(context.Background(), acct, banks.LastDays(30), func(p banks.Page) error {
		pages = append(pages, p)
		return nil
	})
	require.NoError(t, err)

	// the pending-only leading page is fetched but never emitted; the
	// walk ends at the is-last-page marker
	require.Len(t, pages, 2)
	require.Equal(t, 2, pages[0].Number)
	require.Equal(t, 3, pages[1].Number)
}

func TestNormalize(t *testing.T) {
	client := testServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	acct := banks.Account{Institution: banks.FirstTechFed, ID: "share-1", Nickname: "checking"}

	txns, err := client.Normalize(acct, banks.Page{Body: []byte(postedPage)})
	require.NoError(t, err)
	require.Len(t, txns, 2)

	require.Equal(t, "checking", txns[0].AccountID)
	require.Equal(t, "ftf-1", txns[0].ExternalID)
	require.Equal(t, "-42.5", txns[0].Amount.String())
	require.Equal(t, time.Date(2026, 3, 12, 0, 0, 0, 0, time.UTC), txns[0].PostedDate)
	require.Equal(t, "GROCERY STORE", txns[0].Description)
	require.Equal(t, "Groceries", txns[0].Category)
	require.Equal(t, banks.Posted, txns[0].Status)

	require.Equal(t, "ftf-2", txns[1].ExternalID)
	require.Equal(t, "2500", txns[1].Amount.String())
}

func TestNormalizeRejectsMangledRow(t *testing.T) {
	client := testServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	acct := banks.Account{Institution: banks.FirstTechFed, ID: "share-1"}

	mangled := `<div class="transactions">
		<div class="transaction-row" data-transaction-id="x" data-amount="-1">
			<span class="month">Mar</span><span class="day">12</span><span class="year">2026</span>
		</div>
	</div>`
	_, err := client.Normalize(acct, banks.Page{Body: []byte(mangled)})

	var perr *banks.ParseError
	require.ErrorAs(t, err, &perr)
	require.Equal(t, banks.FirstTechFed, perr.Institution)
}

func TestFetchLoginWall(t *testing.T) {
	client := testServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/Authentication/SignIn" {
			w.Write([]byte("<html>sign in</html>"))
			return
		}
		http.Redirect(w, r, "/Authentication/SignIn", http.StatusFound)
	}))

	acct := banks.Account{Institution: banks.FirstTechFed, ID: "share-1"}
	err := client.Fetch(context.Background(), acct, banks.LastDays(30), func(p banks.Page) error {
		t.Error("must not emit after hitting a login wall")
		return nil
	})
	require.ErrorIs(t, err, banks.ErrSessionExpired)
}
