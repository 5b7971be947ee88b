package banks

import (
	"crypto/md5"
	"encoding/hex"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DeriveID builds a stable natural key for institutions that don't
// hand out transaction ids: NUL-joined canonical field renderings,
// md5-hexed. The same underlying transaction must derive the same key
// on every run, so callers should only feed it fields the institution
// reports stably (see each normalizer for what that is).
func DeriveID(parts ...string) string {
	sum := md5.Sum([]byte(strings.Join(parts, "\x00")))
	return hex.EncodeToString(sum[:])
}

// canonical renderings for DeriveID inputs

func DateKey(t time.Time) string {
	return t.Format("2006-01-02")
}

func AmountKey(d decimal.Decimal) string {
	return d.String()
}
