// Package marcus drives the Marcus savings GraphQL endpoint. Every
// operation goes through a single POST URL selected by operationName.
// Activities carry no ids at all; the ending balance after each
// transaction is folded into the derived id because same-day,
// same-amount, same-description rows are otherwise common on a savings
// account (recurring transfers).
package marcus

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

var tracer = otel.Tracer("banks/marcus")

const (
	BaseUrl = "https://api.marcus.com"
	Referer = "https://www.marcus.com/us/en/dashboard"
)

var loginMarkers = []string{"/us/en/login", "signin.marcus.com"}

// graphql error codes the gateway uses for a dead session
var authErrorCodes = map[string]bool{
	"UNAUTHENTICATED": true,
	"UNAUTHORIZED":    true,
	"SESSION_EXPIRED": true,
}

func CookieHosts() []string {
	return []string{".marcus.com", "www.marcus.com", "api.marcus.com"}
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
		http:   banks.NewHttpClient(BaseUrl, sess, limits, "banks/marcus/http"),
		limits: limits,
	}
}

type graphqlRequest struct {
	OperationName string         `json:"operationName"`
	Variables     map[string]any `json:"variables"`
	Query         string         `json:"query"`
}

type graphqlError struct {
	Message    string `json:"message"`
	Extensions struct {
		Code string `json:"code"`
	} `json:"extensions"`
}

const activitiesQuery = `query savingsAccountDetailSavingsPostedActivities($accountId: String!, $startDate: String!, $endDate: String!) {
  savingsAccount(accountId: $accountId) {
    postedActivities(startDate: $startDate, endDate: $endDate) {
      postedDate
      description
      amount
      endingBalance
    }
  }
}`

const balanceQuery = `query savingsAccountDetail($accountId: String!) {
  savingsAccount(accountId: $accountId) {
    currentBalance
  }
}`

func (c *Client) query(ctx context.Context, op string, query string, vars map[string]any) (*resty.Response, error) {
	res, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("operationName", op).
		SetBody(graphqlRequest{OperationName: op, Variables: vars, Query: query}).
		Post("/cos/")
	if cerr := banks.ResponseError(res, err, loginMarkers...); cerr != nil {
		return nil, cerr
	}

	// graphql reports auth failure as a 200 with an errors array
	var envelope struct {
		Errors []graphqlError `json:"errors"`
	}
	if err := json.Unmarshal(res.Body(), &envelope); err != nil {
		return nil, &banks.ParseError{Institution: banks.Marcus, Fragment: res.String(), Cause: err}
	}
	for _, gerr := range envelope.Errors {
		if authErrorCodes[gerr.Extensions.Code] {
			return nil, banks.ErrSessionExpired
		}
	}
	if len(envelope.Errors) > 0 {
		return nil, &banks.ParseError{
			Institution: banks.Marcus,
			Fragment:    res.String(),
			Cause:       fmt.Errorf("graphql error: %s", envelope.Errors[0].Message),
		}
	}
	return res, nil
}

// Fetch issues one posted-activities query per date window, newest
// first.
func (c *Client) Fetch(ctx context.Context, acct banks.Account, r banks.DateRange, emit func(banks.Page) error) error {
	ctx, span := tracer.Start(ctx, "Fetch")
	defer span.End()

	page := 0
	for _, window := range r.Windows(c.limits.WindowDays) {
		page++
		if page > c.limits.MaxPages {
			break
		}

		res, err := c.query(ctx, "savingsAccountDetailSavingsPostedActivities", activitiesQuery, map[string]any{
			"accountId": acct.ID,
			"startDate": window.From.Format("2006-01-02"),
			"endDate":   window.To.Format("2006-01-02"),
		})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}
		if err := emit(banks.Page{Number: page, Body: res.Body()}); err != nil {
			return err
		}
	}
	return nil
}

type activitiesPage struct {
	Data struct {
		SavingsAccount struct {
			PostedActivities []json.RawMessage `json:"postedActivities"`
		} `json:"savingsAccount"`
	} `json:"data"`
}

type postedActivity struct {
	PostedDate    string      `json:"postedDate"`
	Description   string      `json:"description"`
	Amount        json.Number `json:"amount"`
	EndingBalance json.Number `json:"endingBalance"`
}

func (c *Client) Normalize(acct banks.Account, page banks.Page) ([]banks.Transaction, error) {
	var parsed activitiesPage
	if err := decodeNumbers(page.Body, &parsed); err != nil {
		return nil, &banks.ParseError{Institution: banks.Marcus, Fragment: string(page.Body), Cause: err}
	}

	var out []banks.Transaction
	for _, raw := range parsed.Data.SavingsAccount.PostedActivities {
		var a postedActivity
		if err := decodeNumbers(raw, &a); err != nil {
			return nil, &banks.ParseError{Institution: banks.Marcus, Fragment: string(raw), Cause: err}
		}

		date, err := banks.ParseDate("2006-01-02", a.PostedDate)
		if err != nil {
			return nil, &banks.ParseError{Institution: banks.Marcus, Fragment: string(raw), Cause: err}
		}
		amount, err := decimal.NewFromString(a.Amount.String())
		if err != nil {
			return nil, &banks.ParseError{Institution: banks.Marcus, Fragment: string(raw), Cause: err}
		}
		endingBalance, err := decimal.NewFromString(a.EndingBalance.String())
		if err != nil {
			return nil, &banks.ParseError{Institution: banks.Marcus, Fragment: string(raw), Cause: err}
		}
		if a.Description == "" {
			return nil, &banks.ParseError{
				Institution: banks.Marcus,
				Fragment:    string(raw),
				Cause:       fmt.Errorf("activity without description"),
			}
		}

		out = append(out, banks.Transaction{
			AccountID: acct.Name(),
			ExternalID: banks.DeriveID(
				a.Description,
				banks.DateKey(date),
				banks.AmountKey(amount),
				banks.AmountKey(endingBalance),
			),
			PostedDate:  date,
			Amount:      amount,
			Currency:    "USD",
			Description: a.Description,
			Status:      banks.Posted,
		})
	}
	return banks.Dedupe(out), nil
}

func (c *Client) Balance(ctx context.Context, acct banks.Account) (decimal.Decimal, error) {
	ctx, span := tracer.Start(ctx, "Balance")
	defer span.End()

	res, err := c.query(ctx, "savingsAccountDetail", balanceQuery, map[string]any{
		"accountId": acct.ID,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return decimal.Decimal{}, err
	}

	var parsed struct {
		Data struct {
			SavingsAccount struct {
				CurrentBalance json.Number `json:"currentBalance"`
			} `json:"savingsAccount"`
		} `json:"data"`
	}
	if err := decodeNumbers(res.Body(), &parsed); err != nil {
		return decimal.Decimal{}, &banks.ParseError{Institution: banks.Marcus, Fragment: res.String(), Cause: err}
	}
	balance, err := decimal.NewFromString(parsed.Data.SavingsAccount.CurrentBalance.String())
	if err != nil {
		return decimal.Decimal{}, &banks.ParseError{Institution: banks.Marcus, Fragment: res.String(), Cause: err}
	}
	return balance, nil
}

func decodeNumbers(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}
