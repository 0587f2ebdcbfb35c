// Package reporting turns aggregated ledger balances into structured
// financial reports. Every builder is a pure function over a snapshot of
// input records: it either returns a complete, internally consistent report
// or fails outright.
package reporting

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/atlas-ledger/atlas-ledger/internal/ledger/accounts"
	"github.com/atlas-ledger/atlas-ledger/internal/ledger/companies"
	"github.com/atlas-ledger/atlas-ledger/internal/ledger/journals"
	"github.com/atlas-ledger/atlas-ledger/internal/ledger/money"
)

// LineStyle controls how a report line renders.
type LineStyle string

const (
	StyleNormal   LineStyle = "NORMAL"
	StyleSubtotal LineStyle = "SUBTOTAL"
	StyleTotal    LineStyle = "TOTAL"
	StyleHeader   LineStyle = "HEADER"
)

// LineItem is one row of a report section.
type LineItem struct {
	AccountID   int64
	Code        string
	Name        string
	Style       LineStyle
	Indent      int
	Amount      money.Amount
	Comparative *money.Amount
	Variance    *money.Amount
	VariancePct *decimal.Decimal
}

// Section holds ordered line items plus their subtotal.
type Section struct {
	Key      accounts.SectionKey
	Label    string
	Lines    []LineItem
	Subtotal money.Amount
}

// UnknownCompanyError reports a report request for a company the caller
// never supplied. Surfaced before aggregation begins.
type UnknownCompanyError struct {
	CompanyID int64
}

func (e UnknownCompanyError) Error() string {
	return fmt.Sprintf("reporting: unknown company %d", e.CompanyID)
}

// Inputs bundles the snapshot of persisted records a builder consumes.
// Builders never mutate it.
type Inputs struct {
	Company  companies.Company
	Accounts []accounts.Account
	Entries  []journals.JournalEntry
}

// Options tunes report generation. The zero value excludes zero-balance
// accounts, the trial balance default.
type Options struct {
	IncludeZeroBalances bool
}

func (in Inputs) validate() error {
	if in.Company.ID == 0 {
		return UnknownCompanyError{CompanyID: in.Company.ID}
	}
	return nil
}

func (in Inputs) currency() string {
	return in.Company.FunctionalCurrency
}

// sortedAccounts returns the chart ordered by account code for stable
// report line ordering.
func (in Inputs) sortedAccounts() []accounts.Account {
	sorted := make([]accounts.Account, len(in.Accounts))
	copy(sorted, in.Accounts)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Code < sorted[j].Code })
	return sorted
}

func sectionLabel(key accounts.SectionKey) string {
	switch key {
	case accounts.SectionCurrentAssets:
		return "Current Assets"
	case accounts.SectionNonCurrentAssets:
		return "Non-Current Assets"
	case accounts.SectionCurrentLiabilities:
		return "Current Liabilities"
	case accounts.SectionNonCurrentLiabilities:
		return "Non-Current Liabilities"
	case accounts.SectionEquity:
		return "Equity"
	case accounts.SectionRevenue:
		return "Revenue"
	case accounts.SectionCostOfGoodsSold:
		return "Cost of Goods Sold"
	case accounts.SectionOperatingExpenses:
		return "Operating Expenses"
	case accounts.SectionSellingExpenses:
		return "Selling Expenses"
	case accounts.SectionAdministrativeExpenses:
		return "Administrative Expenses"
	case accounts.SectionFinanceExpenses:
		return "Finance Expenses"
	case accounts.SectionTaxExpenses:
		return "Tax Expenses"
	case accounts.SectionOperatingActivities:
		return "Operating Activities"
	case accounts.SectionInvestingActivities:
		return "Investing Activities"
	case accounts.SectionFinancingActivities:
		return "Financing Activities"
	case accounts.SectionNonCashActivities:
		return "Non-Cash Activities"
	}
	return string(key)
}

// withComparative fills the comparative, variance, and variance% fields of a
// line item. Variance% is left nil when the comparative is zero or absent.
func withComparative(item LineItem, comparative money.Amount) LineItem {
	cmp := comparative
	item.Comparative = &cmp
	variance, err := item.Amount.Sub(comparative)
	if err != nil {
		return item
	}
	item.Variance = &variance
	if !comparative.IsZero() {
		pct := variance.Value.Div(comparative.Value).Mul(decimal.NewFromInt(100))
		item.VariancePct = &pct
	}
	return item
}

func balanceOrZero(balances map[int64]money.Amount, accountID int64, currency string) money.Amount {
	if bal, ok := balances[accountID]; ok {
		return bal
	}
	return money.Zero(currency)
}
