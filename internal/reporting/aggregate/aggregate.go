// Package aggregate folds posted journal entries into per-account signed
// balances. It is the single linear pass every report generator builds on.
package aggregate

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atlas-ledger/atlas-ledger/internal/ledger/accounts"
	"github.com/atlas-ledger/atlas-ledger/internal/ledger/journals"
	"github.com/atlas-ledger/atlas-ledger/internal/ledger/money"
)

// Window bounds which posting dates count towards a balance. A nil Start
// makes the window point-in-time (everything up to End), matching trial
// balance and balance sheet semantics; a set Start restricts to the period
// used by flow statements.
type Window struct {
	Start *time.Time
	End   time.Time
}

// AsOf builds a point-in-time window.
func AsOf(t time.Time) Window {
	return Window{End: t}
}

// Period builds a bounded period window.
func Period(start, end time.Time) Window {
	return Window{Start: &start, End: end}
}

// Contains reports whether a posting date falls inside the window.
func (w Window) Contains(t time.Time) bool {
	if t.After(w.End) {
		return false
	}
	if w.Start != nil && t.Before(*w.Start) {
		return false
	}
	return true
}

// OrphanedLineError reports a journal line referencing an account that is
// absent from the chart of accounts. This is a data-integrity fault: the
// aggregation fails rather than silently skipping the line.
type OrphanedLineError struct {
	JournalID int64
	LineID    int64
	AccountID int64
}

func (e OrphanedLineError) Error() string {
	return fmt.Sprintf("aggregate: journal %d line %d references unknown account %d", e.JournalID, e.LineID, e.AccountID)
}

// Balances folds the entries of one company into a per-account balance in
// the given ledger currency. Only entries that are POSTED with a posting
// date inside the window count. Each line contributes debit minus credit in
// functional-currency terms; the final sum is multiplied by the account's
// sign multiplier so that normal-side balances come out positive.
//
// The result contains every account touched by a counted line, including
// those that net to zero; zero-balance filtering is a presentation decision
// left to the report builders.
func Balances(
	companyID int64,
	index map[int64]accounts.Account,
	entries []journals.JournalEntry,
	window Window,
	currency string,
) (map[int64]money.Amount, error) {
	raw := make(map[int64]decimal.Decimal)

	for _, entry := range entries {
		if entry.CompanyID != companyID {
			continue
		}
		if entry.Status != journals.StatusPosted || entry.PostingDate == nil {
			continue
		}
		if !window.Contains(*entry.PostingDate) {
			continue
		}
		for _, line := range entry.Lines {
			acct, ok := index[line.AccountID]
			if !ok {
				return nil, OrphanedLineError{JournalID: entry.ID, LineID: line.ID, AccountID: line.AccountID}
			}
			functional := line.Functional.Value()
			if functional.Currency != currency {
				return nil, money.CurrencyMismatchError{Op: "aggregate", Left: currency, Right: functional.Currency}
			}
			raw[acct.ID] = raw[acct.ID].Add(line.Functional.Signed())
		}
	}

	balances := make(map[int64]money.Amount, len(raw))
	for accountID, sum := range raw {
		acct := index[accountID]
		if accounts.SignMultiplier(acct) < 0 {
			sum = sum.Neg()
		}
		balances[accountID] = money.New(sum, currency)
	}
	return balances, nil
}
