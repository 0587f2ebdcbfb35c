package reporting

import (
	"time"

	"github.com/atlas-ledger/atlas-ledger/internal/ledger/accounts"
	"github.com/atlas-ledger/atlas-ledger/internal/ledger/money"
	"github.com/atlas-ledger/atlas-ledger/internal/reporting/aggregate"
)

// IncomeStatement aggregates revenue and expense activity over a period.
type IncomeStatement struct {
	CompanyID   int64
	Currency    string
	PeriodStart time.Time
	PeriodEnd   time.Time

	Revenue  Section
	Expenses []Section

	TotalRevenue  money.Amount
	TotalExpenses money.Amount
	NetIncome     money.Amount
}

// BuildIncomeStatement aggregates over [start, end] and sections revenue and
// expense accounts in the fixed expense ordering.
func BuildIncomeStatement(in Inputs, start, end time.Time, opts Options) (IncomeStatement, error) {
	if err := in.validate(); err != nil {
		return IncomeStatement{}, err
	}
	currency := in.currency()
	index := accounts.Index(in.Accounts)

	balances, err := aggregate.Balances(in.Company.ID, index, in.Entries, aggregate.Period(start, end), currency)
	if err != nil {
		return IncomeStatement{}, err
	}

	revenue := newSection(accounts.SectionRevenue, currency)
	expenseSections := make(map[accounts.SectionKey]*Section, len(accounts.ExpenseSections))
	for _, key := range accounts.ExpenseSections {
		expenseSections[key] = newSection(key, currency)
	}

	for _, acct := range in.sortedAccounts() {
		if !acct.Postable {
			continue
		}
		if acct.Type != accounts.TypeRevenue && acct.Type != accounts.TypeExpense {
			continue
		}
		placement, err := accounts.SectionFor(acct.Category)
		if err != nil {
			return IncomeStatement{}, err
		}
		balance := balanceOrZero(balances, acct.ID, currency)
		if balance.IsZero() && !opts.IncludeZeroBalances {
			continue
		}
		item := LineItem{
			AccountID: acct.ID,
			Code:      acct.Code,
			Name:      acct.Name,
			Style:     StyleNormal,
			Indent:    1,
			Amount:    balance,
		}
		section := revenue
		if acct.Type == accounts.TypeExpense {
			section = expenseSections[placement.Section]
		}
		section.Lines = append(section.Lines, item)
		if section.Subtotal, err = section.Subtotal.Add(balance); err != nil {
			return IncomeStatement{}, err
		}
	}

	is := IncomeStatement{
		CompanyID:     in.Company.ID,
		Currency:      currency,
		PeriodStart:   start,
		PeriodEnd:     end,
		Revenue:       *revenue,
		TotalRevenue:  revenue.Subtotal,
		TotalExpenses: money.Zero(currency),
	}
	for _, key := range accounts.ExpenseSections {
		section := expenseSections[key]
		is.Expenses = append(is.Expenses, *section)
		if is.TotalExpenses, err = is.TotalExpenses.Add(section.Subtotal); err != nil {
			return IncomeStatement{}, err
		}
	}
	if is.NetIncome, err = is.TotalRevenue.Sub(is.TotalExpenses); err != nil {
		return IncomeStatement{}, err
	}
	return is, nil
}
