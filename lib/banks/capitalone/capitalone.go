// Package capitalone drives the Capital One "ease" edge API. It pages
// by date window rather than cursor, reports amounts as unsigned
// magnitudes with a debit/credit flag, and is the one institution in
// the set that exposes pending activity with stable ids.
package capitalone

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"bankfeed/lib/banks"
	"bankfeed/lib/browser"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("banks/capitalone")

const (
	BaseUrl = "https://myaccounts.capitalone.com"
	Referer = "https://myaccounts.capitalone.com/accountSummary"
)

var loginMarkers = []string{"verified.capitalone.com", "/sign-in"}

func CookieHosts() []string {
	return []string{"capitalone.com", ".capitalone.com", "myaccounts.capitalone.com", ".myaccounts.capitalone.com"}
}

type Client struct {
	http   *resty.Client
	limits banks.Limits
}

func NewClient(sess browser.Session, limits banks.Limits) *Client {
	limits = limits.WithDefaults()
	return &Client{
		http:   banks.NewHttpClient(BaseUrl, sess, limits, "banks/capitalone/http"),
		limits: limits,
	}
}

// Fetch issues one request per date window, newest first.
func (c *Client) Fetch(ctx context.Context, acct banks.Account, r banks.DateRange, emit func(banks.Page) error) error {
	ctx, span := tracer.Start(ctx, "Fetch")
	defer span.End()

	page := 0
	for _, window := range r.Windows(c.limits.WindowDays) {
		page++
		if page > c.limits.MaxPages {
			break
		}

		res, err := c.http.R().
			SetContext(ctx).
			SetHeader("accept", "application/json;v=2").
			SetQueryParams(map[string]string{
				"startDate": window.From.Format("2006-01-02"),
				"endDate":   window.To.Format("2006-01-02"),
			}).
			Get(fmt.Sprintf("/ease-app-web/edge/Bank/accounts/%s/transactions", acct.ID))
		if cerr := banks.ResponseError(res, err, loginMarkers...); cerr != nil {
			span.RecordError(cerr)
			span.SetStatus(codes.Error, cerr.Error())
			return cerr
		}
		if err := emit(banks.Page{Number: page, Body: res.Body()}); err != nil {
			return err
		}
	}
	return nil
}

type transactionsPage struct {
	Posted  []json.RawMessage `json:"posted"`
	Pending []json.RawMessage `json:"pending"`
}

type transaction struct {
	EffectiveDate          string      `json:"effectiveDate"`
	DebitCardType          string      `json:"debitCardType"`
	TransactionTotalAmount json.Number `json:"transactionTotalAmount"`
	StatementDescription   string      `json:"statementDescription"`
	TransactionID          string      `json:"transactionId"`
	TransactionOverview    struct {
		Category string `json:"category"`
	} `json:"transactionOverview"`
}

func (c *Client) Normalize(acct banks.Account, page banks.Page) ([]banks.Transaction, error) {
	var parsed transactionsPage
	if err := decodeNumbers(page.Body, &parsed); err != nil {
		return nil, &banks.ParseError{Institution: banks.CapitalOne, Fragment: string(page.Body), Cause: err}
	}

	var out []banks.Transaction
	for _, raw := range parsed.Posted {
		t, err := c.normalizeOne(acct, raw, banks.Posted)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	for _, raw := range parsed.Pending {
		t, err := c.normalizeOne(acct, raw, banks.Pending)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return banks.Dedupe(out), nil
}

func (c *Client) normalizeOne(acct banks.Account, raw json.RawMessage, status banks.Status) (banks.Transaction, error) {
	var t transaction
	if err := decodeNumbers(raw, &t); err != nil {
		return banks.Transaction{}, &banks.ParseError{Institution: banks.CapitalOne, Fragment: string(raw), Cause: err}
	}

	// effectiveDate comes as an ISO timestamp, only the date part is
	// meaningful
	datePart, _, _ := strings.Cut(t.EffectiveDate, "T")
	date, err := banks.ParseDate("2006-01-02", datePart)
	if err != nil {
		return banks.Transaction{}, &banks.ParseError{Institution: banks.CapitalOne, Fragment: string(raw), Cause: err}
	}

	amount, err := decimal.NewFromString(t.TransactionTotalAmount.String())
	if err != nil {
		return banks.Transaction{}, &banks.ParseError{Institution: banks.CapitalOne, Fragment: string(raw), Cause: err}
	}
	// amounts arrive as magnitudes with a flag; canonical is debits
	// negative
	switch t.DebitCardType {
	case "Debit":
		amount = amount.Neg()
	case "Credit":
		// already positive
	default:
		return banks.Transaction{}, &banks.ParseError{
			Institution: banks.CapitalOne,
			Fragment:    string(raw),
			Cause:       fmt.Errorf("unknown debitCardType %q", t.DebitCardType),
		}
	}

	if t.TransactionID == "" {
		return banks.Transaction{}, &banks.ParseError{
			Institution: banks.CapitalOne,
			Fragment:    string(raw),
			Cause:       fmt.Errorf("transaction without transactionId"),
		}
	}

	return banks.Transaction{
		AccountID:   acct.Name(),
		ExternalID:  t.TransactionID,
		PostedDate:  date,
		Amount:      amount,
		Currency:    "USD",
		Description: t.StatementDescription,
		Category:    t.TransactionOverview.Category,
		Status:      status,
	}, nil
}

func (c *Client) Balance(ctx context.Context, acct banks.Account) (decimal.Decimal, error) {
	ctx, span := tracer.Start(ctx, "Balance")
	defer span.End()

	res, err := c.http.R().
		SetContext(ctx).
		SetHeader("accept", "application/json;v=1").
		SetQueryParams(map[string]string{
			"productId":   "3800",
			"productType": "SA",
		}).
		Get(fmt.Sprintf("/ease-app-web/edge/Bank/accountdetail/getaccountbyid/%s", acct.ID))
	if cerr := banks.ResponseError(res, err, loginMarkers...); cerr != nil {
		span.RecordError(cerr)
		span.SetStatus(codes.Error, cerr.Error())
		return decimal.Decimal{}, cerr
	}

	var parsed struct {
		AccountDetails struct {
			CurrentBalance json.Number `json:"currentBalance"`
		} `json:"accountDetails"`
	}
	if err := decodeNumbers(res.Body(), &parsed); err != nil {
		return decimal.Decimal{}, &banks.ParseError{Institution: banks.CapitalOne, Fragment: res.String(), Cause: err}
	}
	balance, err := decimal.NewFromString(parsed.AccountDetails.CurrentBalance.String())
	if err != nil {
		return decimal.Decimal{}, &banks.ParseError{Institution: banks.CapitalOne, Fragment: res.String(), Cause: err}
	}
	return balance, nil
}

func decodeNumbers(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}
