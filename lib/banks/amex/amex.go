// Package amex drives the American Express servicing API. Activity is
// organized by statement period rather than date cursor, so Fetch first
// lists the periods, keeps the ones overlapping the requested range and
// pulls each one's posted transactions. Amounts arrive card-signed
// (charges positive) and get flipped into the canonical debits-negative
// convention.
package amex

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

var tracer = otel.Tracer("banks/amex")

const (
	BaseUrl = "https://global.americanexpress.com"
	Referer = "https://global.americanexpress.com/activity"
)

var loginMarkers = []string{"/login", "/account/login"}

func CookieHosts() []string {
	return []string{".americanexpress.com", "global.americanexpress.com"}
}

type Client struct {
	http   *resty.Client
	limits banks.Limits
}

func NewClient(sess browser.Session, limits banks.Limits) *Client {
	limits = limits.WithDefaults()
	return &Client{
		http:   banks.NewHttpClient(BaseUrl, sess, limits, "banks/amex/http"),
		limits: limits,
	}
}

type statementPeriod struct {
	StatementStartDate string `json:"statement_start_date"`
	StatementEndDate   string `json:"statement_end_date"`
}

func (c *Client) statementPeriods(ctx context.Context, acct banks.Account) ([]statementPeriod, error) {
	res, err := c.http.R().
		SetContext(ctx).
		SetHeader("account_tokens", acct.ID).
		Get("/api/servicing/v1/financials/statement_periods")
	if cerr := banks.ResponseError(res, err, loginMarkers...); cerr != nil {
		return nil, cerr
	}

	var periods []statementPeriod
	if err := json.Unmarshal(res.Body(), &periods); err != nil {
		return nil, &banks.ParseError{Institution: banks.Amex, Fragment: res.String(), Cause: err}
	}
	return periods, nil
}

// overlaps reports whether the statement period intersects the
// requested range. Period dates parse lazily here; a malformed period
// is kept so normalization surfaces the parse error instead of the
// period silently vanishing.
func overlaps(p statementPeriod, r banks.DateRange) bool {
	start, err := banks.ParseDate("2006-01-02", p.StatementStartDate)
	if err != nil {
		return true
	}
	end, err := banks.ParseDate("2006-01-02", p.StatementEndDate)
	if err != nil {
		return true
	}
	return !end.Before(r.From) && !start.After(r.To)
}

func (c *Client) Fetch(ctx context.Context, acct banks.Account, r banks.DateRange, emit func(banks.Page) error) error {
	ctx, span := tracer.Start(ctx, "Fetch")
	defer span.End()

	periods, err := c.statementPeriods(ctx, acct)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	page := 0
	for _, period := range periods {
		if !overlaps(period, r) {
			continue
		}
		page++
		if page > c.limits.MaxPages {
			break
		}

		res, err := c.http.R().
			SetContext(ctx).
			SetHeader("account_tokens", acct.ID).
			SetQueryParams(map[string]string{
				"limit":      "1000",
				"status":     "posted",
				"start_date": period.StatementStartDate,
				"end_date":   period.StatementEndDate,
			}).
			Get("/api/servicing/v1/financials/transactions")
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
	Transactions []json.RawMessage `json:"transactions"`
}

type transaction struct {
	Identifier      string      `json:"identifier"`
	ChargeDate      string      `json:"charge_date"`
	Description     string      `json:"description"`
	Amount          json.Number `json:"amount"`
	ExtendedDetails struct {
		Category struct {
			CategoryName string `json:"category_name"`
		} `json:"category"`
	} `json:"extended_details"`
}

func (c *Client) Normalize(acct banks.Account, page banks.Page) ([]banks.Transaction, error) {
	var parsed transactionsPage
	if err := decodeNumbers(page.Body, &parsed); err != nil {
		return nil, &banks.ParseError{Institution: banks.Amex, Fragment: string(page.Body), Cause: err}
	}

	var out []banks.Transaction
	for _, raw := range parsed.Transactions {
		var t transaction
		if err := decodeNumbers(raw, &t); err != nil {
			return nil, &banks.ParseError{Institution: banks.Amex, Fragment: string(raw), Cause: err}
		}

		date, err := banks.ParseDate("2006-01-02", t.ChargeDate)
		if err != nil {
			return nil, &banks.ParseError{Institution: banks.Amex, Fragment: string(raw), Cause: err}
		}
		amount, err := decimal.NewFromString(t.Amount.String())
		if err != nil {
			return nil, &banks.ParseError{Institution: banks.Amex, Fragment: string(raw), Cause: err}
		}
		if t.Identifier == "" {
			return nil, &banks.ParseError{
				Institution: banks.Amex,
				Fragment:    string(raw),
				Cause:       fmt.Errorf("transaction without identifier"),
			}
		}

		out = append(out, banks.Transaction{
			AccountID:  acct.Name(),
			ExternalID: t.Identifier,
			PostedDate: date,
			// charges report positive, payments negative; canonical is
			// the opposite
			Amount:      amount.Neg(),
			Currency:    "USD",
			Description: t.Description,
			Category:    t.ExtendedDetails.Category.CategoryName,
			Status:      banks.Posted,
		})
	}
	return banks.Dedupe(out), nil
}

func (c *Client) Balance(ctx context.Context, acct banks.Account) (decimal.Decimal, error) {
	ctx, span := tracer.Start(ctx, "Balance")
	defer span.End()

	res, err := c.http.R().
		SetContext(ctx).
		SetHeader("account_tokens", acct.ID).
		Get("/api/servicing/v1/financials/balances")
	if cerr := banks.ResponseError(res, err, loginMarkers...); cerr != nil {
		span.RecordError(cerr)
		span.SetStatus(codes.Error, cerr.Error())
		return decimal.Decimal{}, cerr
	}

	var parsed []struct {
		AccountToken           string      `json:"account_token"`
		StatementBalanceAmount json.Number `json:"statement_balance_amount"`
	}
	if err := decodeNumbers(res.Body(), &parsed); err != nil {
		return decimal.Decimal{}, &banks.ParseError{Institution: banks.Amex, Fragment: res.String(), Cause: err}
	}
	for _, entry := range parsed {
		if entry.AccountToken != acct.ID {
			continue
		}
		balance, err := decimal.NewFromString(entry.StatementBalanceAmount.String())
		if err != nil {
			return decimal.Decimal{}, &banks.ParseError{Institution: banks.Amex, Fragment: res.String(), Cause: err}
		}
		return balance.Neg(), nil
	}
	return decimal.Decimal{}, &banks.ParseError{
		Institution: banks.Amex,
		Fragment:    res.String(),
		Cause:       fmt.Errorf("no balance entry for account token"),
	}
}

func decodeNumbers(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}
