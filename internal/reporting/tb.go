package reporting

import (
	"time"

	"github.com/atlas-ledger/atlas-ledger/internal/ledger/accounts"
	"github.com/atlas-ledger/atlas-ledger/internal/ledger/money"
	"github.com/atlas-ledger/atlas-ledger/internal/reporting/aggregate"
)

// TrialBalanceRow is one postable account partitioned into the debit or
// credit column.
type TrialBalanceRow struct {
	AccountID int64
	Code      string
	Name      string
	Debit     money.Amount
	Credit    money.Amount
}

// TrialBalance lists per-account balances with column totals. IsBalanced is
// computed and reported, never asserted, so data-integrity bugs surface as a
// report flag rather than a crash.
type TrialBalance struct {
	CompanyID    int64
	Currency     string
	AsOf         time.Time
	Rows         []TrialBalanceRow
	TotalDebits  money.Amount
	TotalCredits money.Amount
	IsBalanced   bool
}

// BuildTrialBalance aggregates all postable accounts as of the snapshot
// date. Zero-balance accounts are excluded unless opts says otherwise.
func BuildTrialBalance(in Inputs, asOf time.Time, opts Options) (TrialBalance, error) {
	if err := in.validate(); err != nil {
		return TrialBalance{}, err
	}
	currency := in.currency()
	index := accounts.Index(in.Accounts)

	balances, err := aggregate.Balances(in.Company.ID, index, in.Entries, aggregate.AsOf(asOf), currency)
	if err != nil {
		return TrialBalance{}, err
	}

	tb := TrialBalance{
		CompanyID:    in.Company.ID,
		Currency:     currency,
		AsOf:         asOf,
		TotalDebits:  money.Zero(currency),
		TotalCredits: money.Zero(currency),
	}

	for _, acct := range in.sortedAccounts() {
		if !acct.Postable {
			continue
		}
		balance, touched := balances[acct.ID]
		if !touched {
			balance = money.Zero(currency)
		}
		if balance.IsZero() && !opts.IncludeZeroBalances {
			continue
		}

		row := TrialBalanceRow{
			AccountID: acct.ID,
			Code:      acct.Code,
			Name:      acct.Name,
			Debit:     money.Zero(currency),
			Credit:    money.Zero(currency),
		}
		// A natural-positive balance sits on the account's normal side; a
		// negative (contra) balance flips to the opposite column.
		natural := balance
		contra := balance.IsNegative()
		if contra {
			natural = balance.Neg()
		}
		debitSide := acct.NormalBalance == accounts.NormalDebit
		if contra {
			debitSide = !debitSide
		}
		if debitSide {
			row.Debit = natural
			if tb.TotalDebits, err = tb.TotalDebits.Add(natural); err != nil {
				return TrialBalance{}, err
			}
		} else {
			row.Credit = natural
			if tb.TotalCredits, err = tb.TotalCredits.Add(natural); err != nil {
				return TrialBalance{}, err
			}
		}
		tb.Rows = append(tb.Rows, row)
	}

	cmp, err := tb.TotalDebits.Cmp(tb.TotalCredits)
	if err != nil {
		return TrialBalance{}, err
	}
	tb.IsBalanced = cmp == 0
	return tb, nil
}
