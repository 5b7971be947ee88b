// Package firsttechfed scrapes First Tech's online banking transaction
// list, which only exists as server-rendered HTML. Rows carry their
// data in attributes; pagination is offset-based and terminated by an
// is-last-page marker div. Pending rows render before a
// posted_transactions anchor and carry no stable ids, so pages before
// the anchor are skipped entirely, as pending activity can't be keyed.
package firsttechfed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"bankfeed/lib/banks"
	"bankfeed/lib/browser"
	"bankfeed/lib/htmlutil"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("banks/firsttechfed")

const (
	BaseUrl = "https://banking.firsttechfed.com"
	Referer = "https://banking.firsttechfed.com/MyAccountsV2"
)

var loginMarkers = []string{"/Authentication/SignIn", "DigitalBanking/Login"}

func CookieHosts() []string {
	return []string{"banking.firsttechfed.com", ".banking.firsttechfed.com", ".firsttechfed.com", "firsttechfed.com"}
}

type Client struct {
	http   *resty.Client
	limits banks.Limits
}

func NewClient(sess browser.Session, limits banks.Limits) *Client {
	limits = limits.WithDefaults()
	sess = sess.WithHeaders(map[string]string{
		"accept":           "application/json, text/javascript, */*; q=0.01",
		"x-requested-with": "XMLHttpRequest",
	})
	return &Client{
		http:   banks.NewHttpClient(BaseUrl, sess, limits, "banks/firsttechfed/http"),
		limits: limits,
	}
}

// Fetch walks offset pages until the markup says it ran out. The
// connector has to peek at each page anyway to find the terminator, so
// it also swallows the leading pending-only pages here rather than
// making the normalizer track state across pages.
func (c *Client) Fetch(ctx context.Context, acct banks.Account, r banks.DateRange, emit func(banks.Page) error) error {
	ctx, span := tracer.Start(ctx, "Fetch")
	defer span.End()

	postedSeen := false
	for page := 0; page < c.limits.MaxPages; page++ {
		req := c.http.R().
			SetContext(ctx).
			SetQueryParams(map[string]string{
				"sort":               "PostingDate",
				"dir":                "desc",
				"account_identifier": acct.ID,
				"start":              fmt.Sprint(page),
				"limit":              "25",
			})
		if page > 0 {
			req.SetQueryParam("isLoadingMore", "true")
		}
		res, err := req.Get("/MyAccountsV2/Transactions")
		if cerr := banks.ResponseError(res, err, loginMarkers...); cerr != nil {
			span.RecordError(cerr)
			span.SetStatus(codes.Error, cerr.Error())
			return cerr
		}

		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body()))
		if err != nil {
			perr := &banks.ParseError{Institution: banks.FirstTechFed, Fragment: res.String(), Cause: err}
			span.RecordError(perr)
			span.SetStatus(codes.Error, perr.Error())
			return perr
		}

		if doc.Find("div#posted_transactions").Length() > 0 {
			postedSeen = true
		}
		if postedSeen {
			if err := emit(banks.Page{Number: page + 1, Body: res.Body()}); err != nil {
				return err
			}
		}
		if doc.Find("div.is-last-page").Length() > 0 {
			break
		}
	}
	return nil
}

func (c *Client) Normalize(acct banks.Account, page banks.Page) ([]banks.Transaction, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return nil, &banks.ParseError{Institution: banks.FirstTechFed, Fragment: string(page.Body), Cause: err}
	}

	var out []banks.Transaction
	var rowErr error
	doc.Find("div.transaction-row").EachWithBreak(func(_ int, row *goquery.Selection) bool {
		t, err := c.normalizeRow(acct, row)
		if err != nil {
			rowErr = err
			return false
		}
		out = append(out, t)
		return true
	})
	if rowErr != nil {
		return nil, rowErr
	}
	return banks.Dedupe(out), nil
}

func (c *Client) normalizeRow(acct banks.Account, row *goquery.Selection) (banks.Transaction, error) {
	fragment := func() string {
		html, _ := goquery.OuterHtml(row)
		return html
	}

	id, ok := row.Attr("data-transaction-id")
	if !ok || id == "" {
		return banks.Transaction{}, &banks.ParseError{
			Institution: banks.FirstTechFed,
			Fragment:    fragment(),
			Cause:       fmt.Errorf("row without data-transaction-id"),
		}
	}

	rawAmount, ok := row.Attr("data-amount")
	if !ok {
		return banks.Transaction{}, &banks.ParseError{
			Institution: banks.FirstTechFed,
			Fragment:    fragment(),
			Cause:       fmt.Errorf("row without data-amount"),
		}
	}
	amount, err := decimal.NewFromString(rawAmount)
	if err != nil {
		return banks.Transaction{}, &banks.ParseError{Institution: banks.FirstTechFed, Fragment: fragment(), Cause: err}
	}

	month := htmlutil.CleanText(row.Find("span.month").Text())
	day := htmlutil.CleanText(row.Find("span.day").Text())
	year := htmlutil.CleanText(row.Find("span.year").Text())
	date, err := banks.ParseDate("2006 Jan 2", fmt.Sprintf("%s %s %s", year, month, day))
	if err != nil {
		return banks.Transaction{}, &banks.ParseError{Institution: banks.FirstTechFed, Fragment: fragment(), Cause: err}
	}

	description := htmlutil.CleanText(row.Find("span.description").Text())
	if description == "" {
		return banks.Transaction{}, &banks.ParseError{
			Institution: banks.FirstTechFed,
			Fragment:    fragment(),
			Cause:       fmt.Errorf("row without description"),
		}
	}

	return banks.Transaction{
		AccountID:   acct.Name(),
		ExternalID:  id,
		PostedDate:  date,
		Amount:      amount,
		Currency:    "USD",
		Description: description,
		Category:    row.AttrOr("data-selected-category", ""),
		Status:      banks.Posted,
	}, nil
}

func (c *Client) Balance(ctx context.Context, acct banks.Account) (decimal.Decimal, error) {
	ctx, span := tracer.Start(ctx, "Balance")
	defer span.End()

	res, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("accountIdentifier", acct.ID).
		Get("/MyAccountsV2/GetCurrentAccountBalance")
	if cerr := banks.ResponseError(res, err, loginMarkers...); cerr != nil {
		span.RecordError(cerr)
		span.SetStatus(codes.Error, cerr.Error())
		return decimal.Decimal{}, cerr
	}

	var parsed struct {
		Balance string `json:"Balance"`
	}
	if err := json.Unmarshal(res.Body(), &parsed); err != nil {
		return decimal.Decimal{}, &banks.ParseError{Institution: banks.FirstTechFed, Fragment: res.String(), Cause: err}
	}
	balance, err := banks.ParseAmount(parsed.Balance)
	if err != nil {
		return decimal.Decimal{}, &banks.ParseError{Institution: banks.FirstTechFed, Fragment: res.String(), Cause: err}
	}
	return balance, nil
}
