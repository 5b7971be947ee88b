// Package registry binds institution tags to their connector
// implementations. It exists so the importer can depend on one
// constructor instead of every institution package, and so tests can
// swap the whole set out.
package registry

import (
	"fmt"

	"bankfeed/lib/banks"
	"bankfeed/lib/banks/amex"
	"bankfeed/lib/banks/bofa"
	"bankfeed/lib/banks/capitalone"
	"bankfeed/lib/banks/chase"
	"bankfeed/lib/banks/firsttechfed"
	"bankfeed/lib/banks/marcus"
	"bankfeed/lib/browser"
)

// Client is what every institution package provides: paginated fetch
// plus page normalization. Balance support is optional and discovered
// with a type assertion on banks.BalanceFetcher.
type Client interface {
	banks.Connector
	banks.Normalizer
}

// New builds the connector for an account's institution against the
// given session.
func New(acct banks.Account, sess browser.Session, limits banks.Limits) (Client, error) {
	switch acct.Institution {
	case banks.Chase:
		return chase.NewClient(sess, limits), nil
	case banks.BankOfAmerica:
		return bofa.NewClient(sess, limits), nil
	case banks.CapitalOne:
		return capitalone.NewClient(sess, limits), nil
	case banks.FirstTechFed:
		return firsttechfed.NewClient(sess, limits), nil
	case banks.Marcus:
		return marcus.NewClient(sess, limits), nil
	case banks.Amex:
		return amex.NewClient(sess, limits), nil
	default:
		return nil, fmt.Errorf("unsupported institution %q", acct.Institution)
	}
}

// CookieHosts returns the cookie-store hosts whose cookies an
// institution's endpoints need.
func CookieHosts(inst banks.Institution) []string {
	switch inst {
	case banks.Chase:
		return chase.CookieHosts()
	case banks.BankOfAmerica:
		return bofa.CookieHosts()
	case banks.CapitalOne:
		return capitalone.CookieHosts()
	case banks.FirstTechFed:
		return firsttechfed.CookieHosts()
	case banks.Marcus:
		return marcus.CookieHosts()
	case banks.Amex:
		return amex.CookieHosts()
	default:
		return nil
	}
}

// Referer returns the page an institution's endpoints expect requests
// to originate from.
func Referer(inst banks.Institution) string {
	switch inst {
	case banks.Chase:
		return chase.Referer
	case banks.BankOfAmerica:
		return bofa.Referer
	case banks.CapitalOne:
		return capitalone.Referer
	case banks.FirstTechFed:
		return firsttechfed.Referer
	case banks.Marcus:
		return marcus.Referer
	case banks.Amex:
		return amex.Referer
	default:
		return ""
	}
}
