package reporting

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/atlas-ledger/atlas-ledger/internal/ledger/accounts"
	"github.com/atlas-ledger/atlas-ledger/internal/ledger/money"
	"github.com/atlas-ledger/atlas-ledger/internal/reporting/aggregate"
)

// BalanceSheet is the structured output for the balance sheet report.
// IsBalanced reports whether TotalAssets equals TotalLiabilitiesAndEquity.
type BalanceSheet struct {
	CompanyID       int64
	Currency        string
	AsOf            time.Time
	ComparativeDate *time.Time

	CurrentAssets         Section
	NonCurrentAssets      Section
	CurrentLiabilities    Section
	NonCurrentLiabilities Section
	Equity                Section

	TotalAssets               money.Amount
	TotalLiabilities          money.Amount
	TotalEquity               money.Amount
	TotalLiabilitiesAndEquity money.Amount
	IsBalanced                bool
}

// BuildBalanceSheet places each account via the classifier into its balance
// sheet section as of the snapshot date. Income statement balances as of the
// same date are folded into Equity as a current period earnings line so the
// accounting equation holds on a live ledger. A comparative date adds
// per-line comparative amounts with variance.
func BuildBalanceSheet(in Inputs, asOf time.Time, comparative *time.Time, opts Options) (BalanceSheet, error) {
	if err := in.validate(); err != nil {
		return BalanceSheet{}, err
	}
	currency := in.currency()
	index := accounts.Index(in.Accounts)

	balances, err := aggregate.Balances(in.Company.ID, index, in.Entries, aggregate.AsOf(asOf), currency)
	if err != nil {
		return BalanceSheet{}, err
	}
	var comparativeBalances map[int64]money.Amount
	if comparative != nil {
		comparativeBalances, err = aggregate.Balances(in.Company.ID, index, in.Entries, aggregate.AsOf(*comparative), currency)
		if err != nil {
			return BalanceSheet{}, err
		}
	}

	bs := BalanceSheet{
		CompanyID:       in.Company.ID,
		Currency:        currency,
		AsOf:            asOf,
		ComparativeDate: comparative,
	}
	sections := map[accounts.SectionKey]*Section{
		accounts.SectionCurrentAssets:         newSection(accounts.SectionCurrentAssets, currency),
		accounts.SectionNonCurrentAssets:      newSection(accounts.SectionNonCurrentAssets, currency),
		accounts.SectionCurrentLiabilities:    newSection(accounts.SectionCurrentLiabilities, currency),
		accounts.SectionNonCurrentLiabilities: newSection(accounts.SectionNonCurrentLiabilities, currency),
		accounts.SectionEquity:                newSection(accounts.SectionEquity, currency),
	}

	earnings := decimal.Zero
	comparativeEarnings := decimal.Zero
	for _, acct := range in.sortedAccounts() {
		if !acct.Postable {
			continue
		}
		placement, err := accounts.SectionFor(acct.Category)
		if err != nil {
			return BalanceSheet{}, err
		}
		balance := balanceOrZero(balances, acct.ID, currency)

		if placement.Statement == accounts.StatementIncomeStatement {
			// Revenue and expense balances roll into equity as retained
			// current period earnings rather than appearing as lines.
			if acct.Type == accounts.TypeRevenue {
				earnings = earnings.Add(balance.Value)
			} else {
				earnings = earnings.Sub(balance.Value)
			}
			if comparativeBalances != nil {
				cb := balanceOrZero(comparativeBalances, acct.ID, currency)
				if acct.Type == accounts.TypeRevenue {
					comparativeEarnings = comparativeEarnings.Add(cb.Value)
				} else {
					comparativeEarnings = comparativeEarnings.Sub(cb.Value)
				}
			}
			continue
		}

		if balance.IsZero() && !opts.IncludeZeroBalances {
			if comparativeBalances == nil || balanceOrZero(comparativeBalances, acct.ID, currency).IsZero() {
				continue
			}
		}
		item := LineItem{
			AccountID: acct.ID,
			Code:      acct.Code,
			Name:      acct.Name,
			Style:     StyleNormal,
			Indent:    1,
			Amount:    balance,
		}
		if comparativeBalances != nil {
			item = withComparative(item, balanceOrZero(comparativeBalances, acct.ID, currency))
		}
		section := sections[placement.Section]
		section.Lines = append(section.Lines, item)
		if section.Subtotal, err = section.Subtotal.Add(balance); err != nil {
			return BalanceSheet{}, err
		}
	}

	if !earnings.IsZero() || (comparativeBalances != nil && !comparativeEarnings.IsZero()) {
		equity := sections[accounts.SectionEquity]
		item := LineItem{
			Name:   "Current Period Earnings",
			Style:  StyleSubtotal,
			Indent: 1,
			Amount: money.New(earnings, currency),
		}
		if comparativeBalances != nil {
			item = withComparative(item, money.New(comparativeEarnings, currency))
		}
		equity.Lines = append(equity.Lines, item)
		if equity.Subtotal, err = equity.Subtotal.Add(item.Amount); err != nil {
			return BalanceSheet{}, err
		}
	}

	bs.CurrentAssets = *sections[accounts.SectionCurrentAssets]
	bs.NonCurrentAssets = *sections[accounts.SectionNonCurrentAssets]
	bs.CurrentLiabilities = *sections[accounts.SectionCurrentLiabilities]
	bs.NonCurrentLiabilities = *sections[accounts.SectionNonCurrentLiabilities]
	bs.Equity = *sections[accounts.SectionEquity]

	if bs.TotalAssets, err = bs.CurrentAssets.Subtotal.Add(bs.NonCurrentAssets.Subtotal); err != nil {
		return BalanceSheet{}, err
	}
	if bs.TotalLiabilities, err = bs.CurrentLiabilities.Subtotal.Add(bs.NonCurrentLiabilities.Subtotal); err != nil {
		return BalanceSheet{}, err
	}
	bs.TotalEquity = bs.Equity.Subtotal
	if bs.TotalLiabilitiesAndEquity, err = bs.TotalLiabilities.Add(bs.TotalEquity); err != nil {
		return BalanceSheet{}, err
	}
	cmp, err := bs.TotalAssets.Cmp(bs.TotalLiabilitiesAndEquity)
	if err != nil {
		return BalanceSheet{}, err
	}
	bs.IsBalanced = cmp == 0
	return bs, nil
}

func newSection(key accounts.SectionKey, currency string) *Section {
	return &Section{Key: key, Label: sectionLabel(key), Subtotal: money.Zero(currency)}
}
