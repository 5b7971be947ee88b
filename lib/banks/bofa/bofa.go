// Package bofa drives Bank of America's deposit-activity gateway. The
// endpoint paginates with an opaque item token and reports no
// transaction ids, so external ids are derived from the fields the
// gateway renders stably.
package bofa

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"bankfeed/lib/banks"
	"bankfeed/lib/browser"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("banks/bofa")

const (
	BaseUrl = "https://secure.bankofamerica.com"
	Referer = "https://secure.bankofamerica.com/"
)

var loginMarkers = []string{"/login/sign-in", "/auth/reauth"}

func CookieHosts() []string {
	return []string{".bankofamerica.com", "secure.bankofamerica.com"}
}

type Client struct {
	http   *resty.Client
	limits banks.Limits
}

func NewClient(sess browser.Session, limits banks.Limits) *Client {
	limits = limits.WithDefaults()
	sess = sess.WithHeaders(map[string]string{
		"content-type": "application/json",
	})
	return &Client{
		http:   banks.NewHttpClient(BaseUrl, sess, limits, "banks/bofa/http"),
		limits: limits,
	}
}

type activityRequest struct {
	Payload struct {
		AccountToken string `json:"accountToken"`
	} `json:"payload"`
	PagingRules struct {
		PagingRequestedItemCount int    `json:"pagingRequestedItemCount"`
		PagingStartingItemToken  string `json:"pagingStartingItemToken,omitempty"`
	} `json:"pagingRules"`
}

func (c *Client) activityPage(ctx context.Context, acct banks.Account, token string) (*resty.Response, error) {
	var req activityRequest
	req.Payload.AccountToken = acct.ID
	req.PagingRules.PagingRequestedItemCount = 50
	req.PagingRules.PagingStartingItemToken = token

	res, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		Post("/ogateway/addapi/v1/activity")
	if cerr := banks.ResponseError(res, err, loginMarkers...); cerr != nil {
		return nil, cerr
	}
	return res, nil
}

// Fetch walks the token cursor until the gateway stops handing one
// out, or the page ceiling hits.
func (c *Client) Fetch(ctx context.Context, acct banks.Account, r banks.DateRange, emit func(banks.Page) error) error {
	ctx, span := tracer.Start(ctx, "Fetch")
	defer span.End()

	token := ""
	for page := 1; page <= c.limits.MaxPages; page++ {
		res, err := c.activityPage(ctx, acct, token)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}
		if err := emit(banks.Page{Number: page, Body: res.Body()}); err != nil {
			return err
		}

		var paging struct {
			PagingRules struct {
				PagingNextPageItemToken string `json:"pagingNextPageItemToken"`
			} `json:"pagingRules"`
		}
		if err := json.Unmarshal(res.Body(), &paging); err != nil {
			perr := &banks.ParseError{Institution: banks.BankOfAmerica, Fragment: res.String(), Cause: err}
			span.RecordError(perr)
			span.SetStatus(codes.Error, perr.Error())
			return perr
		}
		token = paging.PagingRules.PagingNextPageItemToken
		if token == "" {
			break
		}
	}
	return nil
}

type depositActivity struct {
	Payload struct {
		DepositActivity struct {
			Summary struct {
				Account struct {
					AvailableBalance struct {
						Amount json.Number `json:"amount"`
					} `json:"availableBalance"`
				} `json:"account"`
			} `json:"summary"`
			TransactionList struct {
				Transactions []json.RawMessage `json:"transactions"`
			} `json:"transactionList"`
		} `json:"depositActivity"`
	} `json:"payload"`
}

type depositTransaction struct {
	PostedTimestamp      json.Number `json:"postedTimestamp"`
	PreferredDescription string      `json:"preferredDescription"`
	Amount               struct {
		Amount json.Number `json:"amount"`
	} `json:"amount"`
}

func (c *Client) Normalize(acct banks.Account, page banks.Page) ([]banks.Transaction, error) {
	var parsed depositActivity
	if err := decodeNumbers(page.Body, &parsed); err != nil {
		return nil, &banks.ParseError{Institution: banks.BankOfAmerica, Fragment: string(page.Body), Cause: err}
	}

	var out []banks.Transaction
	for _, raw := range parsed.Payload.DepositActivity.TransactionList.Transactions {
		var t depositTransaction
		if err := decodeNumbers(raw, &t); err != nil {
			return nil, &banks.ParseError{Institution: banks.BankOfAmerica, Fragment: string(raw), Cause: err}
		}

		tsMillis, err := t.PostedTimestamp.Int64()
		if err != nil {
			return nil, &banks.ParseError{Institution: banks.BankOfAmerica, Fragment: string(raw), Cause: err}
		}
		date := banks.Midnight(time.UnixMilli(tsMillis).UTC())

		amount, err := decimal.NewFromString(t.Amount.Amount.String())
		if err != nil {
			return nil, &banks.ParseError{Institution: banks.BankOfAmerica, Fragment: string(raw), Cause: err}
		}
		if t.PreferredDescription == "" {
			return nil, &banks.ParseError{
				Institution: banks.BankOfAmerica,
				Fragment:    string(raw),
				Cause:       fmt.Errorf("transaction without preferredDescription"),
			}
		}

		out = append(out, banks.Transaction{
			AccountID: acct.Name(),
			// the gateway exposes no transaction id; description, date
			// and amount are the fields it reports stably across runs
			ExternalID:  banks.DeriveID(t.PreferredDescription, banks.DateKey(date), banks.AmountKey(amount)),
			PostedDate:  date,
			Amount:      amount,
			Currency:    "USD",
			Description: t.PreferredDescription,
			Status:      banks.Posted,
		})
	}
	return banks.Dedupe(out), nil
}

func (c *Client) Balance(ctx context.Context, acct banks.Account) (decimal.Decimal, error) {
	ctx, span := tracer.Start(ctx, "Balance")
	defer span.End()

	res, err := c.activityPage(ctx, acct, "")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return decimal.Decimal{}, err
	}

	var parsed depositActivity
	if err := decodeNumbers(res.Body(), &parsed); err != nil {
		return decimal.Decimal{}, &banks.ParseError{Institution: banks.BankOfAmerica, Fragment: res.String(), Cause: err}
	}
	balance, err := decimal.NewFromString(parsed.Payload.DepositActivity.Summary.Account.AvailableBalance.Amount.String())
	if err != nil {
		return decimal.Decimal{}, &banks.ParseError{Institution: banks.BankOfAmerica, Fragment: res.String(), Cause: err}
	}
	return balance, nil
}

func decodeNumbers(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}
