// Package fx translates member trial balances into the group reporting
// currency using method-per-account-type rates and computes the cumulative
// translation adjustment.
package fx

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Method selects which rate of a quote applies to a balance.
type Method string

const (
	MethodClosing Method = "CLOSING"
	MethodAverage Method = "AVERAGE"
	MethodOpening Method = "OPENING"
)

// Quote carries the three period rates for one currency pair.
type Quote struct {
	Pair    string
	Closing decimal.Decimal
	Average decimal.Decimal
	Opening decimal.Decimal
}

// Rate returns the rate for a method, zero when the method is unknown.
func (q Quote) Rate(method Method) decimal.Decimal {
	switch method {
	case MethodClosing:
		return q.Closing
	case MethodAverage:
		return q.Average
	case MethodOpening:
		return q.Opening
	}
	return decimal.Zero
}

// RateSet is the quotes available to one translation pass. Historical maps
// member account identities to acquisition-date rates that override the
// opening rate for equity balances.
type RateSet struct {
	Quotes     map[string]Quote
	Historical map[int64]decimal.Decimal
}

// Quote looks up the quote for a pair key.
func (s RateSet) Quote(pair string) (Quote, bool) {
	q, ok := s.Quotes[strings.ToUpper(strings.TrimSpace(pair))]
	return q, ok
}

// Pair builds the canonical pair key, e.g. Pair("eur", "usd") == "EURUSD".
func Pair(from, to string) string {
	return strings.ToUpper(strings.TrimSpace(from)) + strings.ToUpper(strings.TrimSpace(to))
}

// MissingRateError reports an absent or non-positive rate. Translation never
// substitutes a stale or unity rate.
type MissingRateError struct {
	Pair   string
	Method Method
}

func (e MissingRateError) Error() string {
	return fmt.Sprintf("fx: no %s rate for pair %s", strings.ToLower(string(e.Method)), e.Pair)
}
