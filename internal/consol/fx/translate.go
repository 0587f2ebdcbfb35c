package fx

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/atlas-ledger/atlas-ledger/internal/ledger/accounts"
	"github.com/atlas-ledger/atlas-ledger/internal/ledger/money"
)

// MethodForType maps account types onto translation rate methods: monetary
// positions at the closing rate, equity at the opening rate, flows at the
// period average.
func MethodForType(t accounts.AccountType) Method {
	switch t {
	case accounts.TypeAsset, accounts.TypeLiability:
		return MethodClosing
	case accounts.TypeEquity:
		return MethodOpening
	default:
		return MethodAverage
	}
}

// Translation is the outcome of translating one member's balances.
type Translation struct {
	// Balances holds the translated natural balances keyed by member
	// account, in the group currency.
	Balances map[int64]money.Amount
	// CTA is the credit-side plug that keeps the translated balances
	// self-balancing. Negative means a debit-side adjustment.
	CTA money.Amount
	// Applied is false when functional and group currency match and the
	// balances passed through untouched.
	Applied bool
}

// Translate converts a member's natural balances from its functional
// currency into the group currency. When the currencies match the balances
// pass through unchanged and no rates are consulted. A missing or
// non-positive rate is a hard failure.
func Translate(
	balances map[int64]money.Amount,
	chart map[int64]accounts.Account,
	functionalCurrency string,
	groupCurrency string,
	rates RateSet,
) (Translation, error) {
	functional := strings.ToUpper(strings.TrimSpace(functionalCurrency))
	group := strings.ToUpper(strings.TrimSpace(groupCurrency))

	if functional == group {
		out := make(map[int64]money.Amount, len(balances))
		for id, bal := range balances {
			out[id] = bal
		}
		return Translation{Balances: out, CTA: money.Zero(group)}, nil
	}

	pair := functional + group
	quote, ok := rates.Quote(pair)
	if !ok {
		return Translation{}, MissingRateError{Pair: pair, Method: MethodClosing}
	}

	out := make(map[int64]money.Amount, len(balances))
	rawSum := decimal.Zero
	for id, bal := range balances {
		acct, ok := chart[id]
		if !ok {
			continue
		}
		rate, err := rateFor(acct, pair, quote, rates.Historical)
		if err != nil {
			return Translation{}, err
		}
		translated := bal.Value.Mul(rate)
		out[id] = money.New(translated, group)

		raw := translated
		if accounts.SignMultiplier(acct) < 0 {
			raw = raw.Neg()
		}
		rawSum = rawSum.Add(raw)
	}

	// The raw debit-minus-credit sum of the translated balances is exactly
	// the credit-side plug that restores balance.
	return Translation{
		Balances: out,
		CTA:      money.New(rawSum, group),
		Applied:  true,
	}, nil
}

func rateFor(acct accounts.Account, pair string, quote Quote, historical map[int64]decimal.Decimal) (decimal.Decimal, error) {
	method := MethodForType(acct.Type)
	if acct.Type == accounts.TypeEquity {
		if rate, ok := historical[acct.ID]; ok && rate.IsPositive() {
			return rate, nil
		}
	}
	rate := quote.Rate(method)
	if !rate.IsPositive() {
		return decimal.Zero, MissingRateError{Pair: pair, Method: method}
	}
	return rate, nil
}
