package accounts

import "fmt"

// Statement identifies which financial statement a section belongs to.
type Statement string

const (
	StatementBalanceSheet    Statement = "BALANCE_SHEET"
	StatementIncomeStatement Statement = "INCOME_STATEMENT"
)

// SectionKey identifies a named section inside a statement.
type SectionKey string

const (
	SectionCurrentAssets         SectionKey = "CURRENT_ASSETS"
	SectionNonCurrentAssets      SectionKey = "NON_CURRENT_ASSETS"
	SectionCurrentLiabilities    SectionKey = "CURRENT_LIABILITIES"
	SectionNonCurrentLiabilities SectionKey = "NON_CURRENT_LIABILITIES"
	SectionEquity                SectionKey = "EQUITY"

	SectionRevenue                SectionKey = "REVENUE"
	SectionCostOfGoodsSold        SectionKey = "COST_OF_GOODS_SOLD"
	SectionOperatingExpenses      SectionKey = "OPERATING_EXPENSES"
	SectionSellingExpenses        SectionKey = "SELLING_EXPENSES"
	SectionAdministrativeExpenses SectionKey = "ADMINISTRATIVE_EXPENSES"
	SectionFinanceExpenses        SectionKey = "FINANCE_EXPENSES"
	SectionTaxExpenses            SectionKey = "TAX_EXPENSES"

	SectionOperatingActivities SectionKey = "OPERATING_ACTIVITIES"
	SectionInvestingActivities SectionKey = "INVESTING_ACTIVITIES"
	SectionFinancingActivities SectionKey = "FINANCING_ACTIVITIES"
	SectionNonCashActivities   SectionKey = "NON_CASH_ACTIVITIES"
)

// ExpenseSections orders the income statement expense sections for display.
var ExpenseSections = []SectionKey{
	SectionCostOfGoodsSold,
	SectionOperatingExpenses,
	SectionSellingExpenses,
	SectionAdministrativeExpenses,
	SectionFinanceExpenses,
	SectionTaxExpenses,
}

// Placement locates a category on a statement.
type Placement struct {
	Statement Statement
	Section   SectionKey
}

// SectionFor maps every category to exactly one statement section.
func SectionFor(c AccountCategory) (Placement, error) {
	switch c {
	case CategoryCurrentAsset:
		return Placement{StatementBalanceSheet, SectionCurrentAssets}, nil
	case CategoryNonCurrentAsset, CategoryFixedAsset, CategoryIntangibleAsset:
		return Placement{StatementBalanceSheet, SectionNonCurrentAssets}, nil
	case CategoryCurrentLiability:
		return Placement{StatementBalanceSheet, SectionCurrentLiabilities}, nil
	case CategoryNonCurrentLiability, CategoryLongTermDebt:
		return Placement{StatementBalanceSheet, SectionNonCurrentLiabilities}, nil
	case CategoryShareCapital, CategoryRetainedEarnings, CategoryOtherComprehensiveIncome:
		return Placement{StatementBalanceSheet, SectionEquity}, nil
	case CategoryOperatingRevenue, CategoryOtherRevenue:
		return Placement{StatementIncomeStatement, SectionRevenue}, nil
	case CategoryCostOfGoodsSold:
		return Placement{StatementIncomeStatement, SectionCostOfGoodsSold}, nil
	case CategoryOperatingExpense:
		return Placement{StatementIncomeStatement, SectionOperatingExpenses}, nil
	case CategorySellingExpense:
		return Placement{StatementIncomeStatement, SectionSellingExpenses}, nil
	case CategoryAdministrativeExpense:
		return Placement{StatementIncomeStatement, SectionAdministrativeExpenses}, nil
	case CategoryFinanceExpense:
		return Placement{StatementIncomeStatement, SectionFinanceExpenses}, nil
	case CategoryTaxExpense:
		return Placement{StatementIncomeStatement, SectionTaxExpenses}, nil
	}
	return Placement{}, fmt.Errorf("accounts: no section for category %q", c)
}

// CashFlowSection maps a cash-flow category to its statement section.
func CashFlowSection(c CashFlowCategory) (SectionKey, error) {
	switch c {
	case CashFlowOperating:
		return SectionOperatingActivities, nil
	case CashFlowInvesting:
		return SectionInvestingActivities, nil
	case CashFlowFinancing:
		return SectionFinancingActivities, nil
	case CashFlowNonCash:
		return SectionNonCashActivities, nil
	}
	return "", fmt.Errorf("accounts: unknown cash flow category %q", c)
}

// SignMultiplier returns +1 for debit-normal accounts and -1 for
// credit-normal accounts, so that normal-side balances present positive.
func SignMultiplier(a Account) int64 {
	if a.NormalBalance == NormalDebit {
		return 1
	}
	return -1
}
