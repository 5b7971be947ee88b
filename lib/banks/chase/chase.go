// Package chase drives the Chase consumer site's DDA activity
// endpoint. Chase returns the whole activity list in one JSON response
// with natural transaction ids and already-signed amounts, which makes
// it the simplest connector of the set.
package chase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"bankfeed/lib/banks"
	"bankfeed/lib/browser"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("banks/chase")

const (
	BaseUrl = "https://secure05b.chase.com"
	Referer = "https://secure05b.chase.com/web/auth/dashboard"
)

// substrings of the final URL or body that mean the session got
// bounced to the login flow
var loginMarkers = []string{"/web/auth/logon", "/web/auth/session-expired"}

func CookieHosts() []string {
	return []string{".chase.com", "secure05b.chase.com"}
}

type Client struct {
	http   *resty.Client
	limits banks.Limits
}

func NewClient(sess browser.Session, limits banks.Limits) *Client {
	limits = limits.WithDefaults()
	sess = sess.WithHeaders(map[string]string{
		"x-jpmc-csrf-token": "NONE",
	})
	return &Client{
		http:   banks.NewHttpClient(BaseUrl, sess, limits, "banks/chase/http"),
		limits: limits,
	}
}

func (c *Client) activityList(ctx context.Context, acct banks.Account) (*resty.Response, error) {
	res, err := c.http.R().
		SetContext(ctx).
		SetHeader("content-type", "application/x-www-form-urlencoded").
		SetBody(fmt.Sprintf("accountId=%s", acct.ID)).
		Post("/svc/rr/accounts/secure/v4/activity/dda/list")
	if cerr := banks.ResponseError(res, err, loginMarkers...); cerr != nil {
		return nil, cerr
	}
	return res, nil
}

// Fetch yields exactly one page: the endpoint has no pagination, the
// requested range is applied by the caller on the normalized output.
func (c *Client) Fetch(ctx context.Context, acct banks.Account, r banks.DateRange, emit func(banks.Page) error) error {
	ctx, span := tracer.Start(ctx, "Fetch")
	defer span.End()

	res, err := c.activityList(ctx, acct)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return emit(banks.Page{Number: 1, Body: res.Body()})
}

type activityPage struct {
	PresentBalance json.Number       `json:"presentBalance"`
	Activities     []json.RawMessage `json:"activities"`
}

type activity struct {
	ActivityDate            string      `json:"activityDate"`
	Description             string      `json:"description"`
	Amount                  json.Number `json:"amount"`
	TransactionID           string      `json:"transactionId"`
	ActivityTypeGroupFilter string      `json:"activityTypeGroupFilter"`
}

func (c *Client) Normalize(acct banks.Account, page banks.Page) ([]banks.Transaction, error) {
	var parsed activityPage
	if err := decodeNumbers(page.Body, &parsed); err != nil {
		return nil, &banks.ParseError{Institution: banks.Chase, Fragment: string(page.Body), Cause: err}
	}

	var out []banks.Transaction
	for _, raw := range parsed.Activities {
		var a activity
		if err := decodeNumbers(raw, &a); err != nil {
			return nil, &banks.ParseError{Institution: banks.Chase, Fragment: string(raw), Cause: err}
		}

		date, err := banks.ParseDate("20060102", a.ActivityDate)
		if err != nil {
			return nil, &banks.ParseError{Institution: banks.Chase, Fragment: string(raw), Cause: err}
		}
		amount, err := decimal.NewFromString(a.Amount.String())
		if err != nil {
			return nil, &banks.ParseError{Institution: banks.Chase, Fragment: string(raw), Cause: err}
		}
		if a.TransactionID == "" {
			return nil, &banks.ParseError{
				Institution: banks.Chase,
				Fragment:    string(raw),
				Cause:       fmt.Errorf("activity without transactionId"),
			}
		}

		out = append(out, banks.Transaction{
			AccountID:   acct.Name(),
			ExternalID:  a.TransactionID,
			PostedDate:  date,
			Amount:      amount,
			Currency:    "USD",
			Description: a.Description,
			Category:    categories[a.ActivityTypeGroupFilter],
			Status:      banks.Posted,
		})
	}
	return banks.Dedupe(out), nil
}

func (c *Client) Balance(ctx context.Context, acct banks.Account) (decimal.Decimal, error) {
	ctx, span := tracer.Start(ctx, "Balance")
	defer span.End()

	res, err := c.activityList(ctx, acct)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return decimal.Decimal{}, err
	}

	var parsed activityPage
	if err := decodeNumbers(res.Body(), &parsed); err != nil {
		return decimal.Decimal{}, &banks.ParseError{Institution: banks.Chase, Fragment: res.String(), Cause: err}
	}
	balance, err := decimal.NewFromString(parsed.PresentBalance.String())
	if err != nil {
		return decimal.Decimal{}, &banks.ParseError{Institution: banks.Chase, Fragment: res.String(), Cause: err}
	}
	return balance, nil
}

// decodeNumbers unmarshals with json.Number so amounts never round
// trip through float64.
func decodeNumbers(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}

// the slice of chase's activity-type taxonomy that actually shows up
// on a consumer checking account
var categories = map[string]string{
	"ACCT_XFER":       "Account transfer",
	"ACH_CREDIT":      "ACH credit",
	"ACH_DEBIT":       "ACH debit",
	"ATM":             "ATM transaction",
	"BILL_PAYMENT":    "Bill payment",
	"CHECK_DEPOSIT":   "Deposit",
	"CHECK_PAID":      "Check",
	"DEBIT_CARD":      "Card",
	"DEPOSIT":         "Deposit",
	"FEE_TRANSACTION": "Fee",
	"MISC_CREDIT":     "Misc. credit",
	"MISC_DEBIT":      "Misc. debit",
	"QUICKPAY_CREDIT": "QuickPay credit",
	"QUICKPAY_DEBIT":  "QuickPay debit",
	"REFUND":          "Refund",
}
