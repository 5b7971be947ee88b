// Package banks defines the canonical transaction model shared by every
// institution connector, plus the fetch/normalize machinery they are
// built from.
package banks

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type Institution string

const (
	Chase         Institution = "chase"
	BankOfAmerica Institution = "bofa"
	CapitalOne    Institution = "capitalone"
	FirstTechFed  Institution = "firsttechfed"
	Marcus        Institution = "marcus"
	Amex          Institution = "amex"
)

// Institutions is the closed set of supported institution tags.
func Institutions() []Institution {
	return []Institution{Chase, BankOfAmerica, CapitalOne, FirstTechFed, Marcus, Amex}
}

func ValidInstitution(tag Institution) bool {
	for _, i := range Institutions() {
		if i == tag {
			return true
		}
	}
	return false
}

type Kind string

const (
	Checking   Kind = "checking"
	Savings    Kind = "savings"
	CreditCard Kind = "credit-card"
)

// Account identifies one bank relationship. ID is whatever the
// institution uses to address the account in its own endpoints, it is
// opaque to everything but the matching connector.
type Account struct {
	Institution Institution `json:"institution"`
	Kind        Kind        `json:"kind"`
	ID          string      `json:"id"`
	Nickname    string      `json:"nickname"`
}

// Name is the identifier transactions are stored under.
func (a Account) Name() string {
	if a.Nickname != "" {
		return a.Nickname
	}
	return a.ID
}

type Status string

const (
	Pending Status = "pending"
	Posted  Status = "posted"
)

// Transaction is the canonical record shape, independent of which
// institution produced it. Amounts are signed: debits negative,
// credits positive, whatever convention the institution reports in.
type Transaction struct {
	AccountID   string
	ExternalID  string
	PostedDate  time.Time
	Amount      decimal.Decimal
	Currency    string
	Description string
	Category    string
	Status      Status
}

// Key is the natural identity of a transaction across repeated imports.
func (t Transaction) Key() string {
	return t.AccountID + "\x00" + t.ExternalID
}

// Page is one raw chunk of an institution's paginated response, as
// fetched. It only lives long enough to be handed to the paired
// normalizer.
type Page struct {
	Number int
	Body   []byte
}

// DateRange is the inclusive [From, To] span a fetch should cover.
type DateRange struct {
	From time.Time
	To   time.Time
}

// LastDays is the range ending now covering the given number of days.
func LastDays(days int) DateRange {
	now := time.Now()
	return DateRange{From: now.AddDate(0, 0, -days), To: now}
}

// Windows splits the range into spans of at most `days` days, newest
// first, mirroring how bank activity UIs page backwards through
// history. The institutions that filter by date cap how wide one
// request may be. Adjacent windows share their boundary day; anything
// reported twice collapses in Dedupe.
func (r DateRange) Windows(days int) []DateRange {
	if days <= 0 {
		return []DateRange{r}
	}
	var out []DateRange
	to := r.To
	for to.After(r.From) {
		from := to.AddDate(0, 0, -days)
		if from.Before(r.From) {
			from = r.From
		}
		out = append(out, DateRange{From: from, To: to})
		to = from
	}
	return out
}

// Connector fetches raw payload pages for one account. Each call
// re-runs pagination from scratch; emit returning an error stops the
// walk early.
type Connector interface {
	Fetch(ctx context.Context, acct Account, r DateRange, emit func(Page) error) error
}

// Normalizer converts one raw page into canonical transactions.
type Normalizer interface {
	Normalize(acct Account, page Page) ([]Transaction, error)
}

// BalanceFetcher is implemented by connectors whose institution exposes
// a current balance.
type BalanceFetcher interface {
	Balance(ctx context.Context, acct Account) (decimal.Decimal, error)
}

// Limits bounds a connector's worst case run against a misbehaving
// source.
type Limits struct {
	// hard ceiling on pages fetched in one call
	MaxPages int
	// widest date window a single request may cover, for institutions
	// that filter by date
	WindowDays int
	// transient failure retries per http call
	MaxRetries int
	// exponential backoff bounds
	RetryWait    time.Duration
	RetryMaxWait time.Duration
	// per http call, not per fetch
	Timeout time.Duration
}

func (l Limits) WithDefaults() Limits {
	if l.MaxPages == 0 {
		l.MaxPages = 40
	}
	if l.WindowDays == 0 {
		l.WindowDays = 60
	}
	if l.MaxRetries == 0 {
		l.MaxRetries = 3
	}
	if l.RetryWait == 0 {
		l.RetryWait = 2 * time.Second
	}
	if l.RetryMaxWait == 0 {
		l.RetryMaxWait = 30 * time.Second
	}
	if l.Timeout == 0 {
		l.Timeout = 30 * time.Second
	}
	return l
}

// Dedupe drops within-batch duplicates of (AccountID, ExternalID),
// first occurrence wins. Institutions routinely return overlapping
// date windows across pages.
func Dedupe(txns []Transaction) []Transaction {
	seen := make(map[string]bool, len(txns))
	out := txns[:0]
	for _, t := range txns {
		if seen[t.Key()] {
			continue
		}
		seen[t.Key()] = true
		out = append(out, t)
	}
	return out
}

// ValidateAccount rejects configuration errors before any network
// activity happens.
func ValidateAccount(a Account) error {
	if !ValidInstitution(a.Institution) {
		return fmt.Errorf("unsupported institution %q", a.Institution)
	}
	if a.ID == "" {
		return fmt.Errorf("account for %q has no id", a.Institution)
	}
	return nil
}
