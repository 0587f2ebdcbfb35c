package accounts

import (
	"errors"
	"fmt"
	"time"
)

// AccountType enumerates the five fundamental account types.
type AccountType string

const (
	TypeAsset     AccountType = "ASSET"
	TypeLiability AccountType = "LIABILITY"
	TypeEquity    AccountType = "EQUITY"
	TypeRevenue   AccountType = "REVENUE"
	TypeExpense   AccountType = "EXPENSE"
)

// AccountCategory refines an account type for reporting placement.
type AccountCategory string

const (
	CategoryCurrentAsset    AccountCategory = "CURRENT_ASSET"
	CategoryNonCurrentAsset AccountCategory = "NON_CURRENT_ASSET"
	CategoryFixedAsset      AccountCategory = "FIXED_ASSET"
	CategoryIntangibleAsset AccountCategory = "INTANGIBLE_ASSET"

	CategoryCurrentLiability    AccountCategory = "CURRENT_LIABILITY"
	CategoryNonCurrentLiability AccountCategory = "NON_CURRENT_LIABILITY"
	CategoryLongTermDebt        AccountCategory = "LONG_TERM_DEBT"

	CategoryShareCapital     AccountCategory = "SHARE_CAPITAL"
	CategoryRetainedEarnings AccountCategory = "RETAINED_EARNINGS"
	CategoryOtherComprehensiveIncome AccountCategory = "OTHER_COMPREHENSIVE_INCOME"

	CategoryOperatingRevenue AccountCategory = "OPERATING_REVENUE"
	CategoryOtherRevenue     AccountCategory = "OTHER_REVENUE"

	CategoryCostOfGoodsSold       AccountCategory = "COST_OF_GOODS_SOLD"
	CategoryOperatingExpense      AccountCategory = "OPERATING_EXPENSE"
	CategorySellingExpense        AccountCategory = "SELLING_EXPENSE"
	CategoryAdministrativeExpense AccountCategory = "ADMINISTRATIVE_EXPENSE"
	CategoryFinanceExpense        AccountCategory = "FINANCE_EXPENSE"
	CategoryTaxExpense            AccountCategory = "TAX_EXPENSE"
)

// Categories lists every known category in display order.
var Categories = []AccountCategory{
	CategoryCurrentAsset,
	CategoryNonCurrentAsset,
	CategoryFixedAsset,
	CategoryIntangibleAsset,
	CategoryCurrentLiability,
	CategoryNonCurrentLiability,
	CategoryLongTermDebt,
	CategoryShareCapital,
	CategoryRetainedEarnings,
	CategoryOtherComprehensiveIncome,
	CategoryOperatingRevenue,
	CategoryOtherRevenue,
	CategoryCostOfGoodsSold,
	CategoryOperatingExpense,
	CategorySellingExpense,
	CategoryAdministrativeExpense,
	CategoryFinanceExpense,
	CategoryTaxExpense,
}

// NormalBalance indicates the side on which an account's balance is
// conventionally positive.
type NormalBalance string

const (
	NormalDebit  NormalBalance = "DEBIT"
	NormalCredit NormalBalance = "CREDIT"
)

// CashFlowCategory buckets an account for the cash flow statement. Accounts
// representing cash and cash equivalents carry no cash-flow category.
type CashFlowCategory string

const (
	CashFlowOperating CashFlowCategory = "OPERATING"
	CashFlowInvesting CashFlowCategory = "INVESTING"
	CashFlowFinancing CashFlowCategory = "FINANCING"
	CashFlowNonCash   CashFlowCategory = "NON_CASH"
)

// Account models a chart of accounts node.
type Account struct {
	ID            int64
	CompanyID     int64
	Code          string
	Name          string
	Type          AccountType
	Category      AccountCategory
	NormalBalance NormalBalance
	Postable      bool
	ParentID      *int64
	CashFlow      *CashFlowCategory
	Active        bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

var (
	// ErrNormalBalanceConflict indicates a stored normal balance that
	// contradicts the account type.
	ErrNormalBalanceConflict = errors.New("accounts: normal balance contradicts account type")
	// ErrCategoryConflict indicates a category outside the account type.
	ErrCategoryConflict = errors.New("accounts: category does not belong to account type")
)

// NormalBalanceFor returns the conventional balance side for a type:
// Asset/Expense accounts are debit-normal, the rest credit-normal.
func NormalBalanceFor(t AccountType) NormalBalance {
	switch t {
	case TypeAsset, TypeExpense:
		return NormalDebit
	case TypeLiability, TypeEquity, TypeRevenue:
		return NormalCredit
	}
	return ""
}

// TypeOf maps a category to its owning account type.
func TypeOf(c AccountCategory) (AccountType, error) {
	switch c {
	case CategoryCurrentAsset, CategoryNonCurrentAsset, CategoryFixedAsset, CategoryIntangibleAsset:
		return TypeAsset, nil
	case CategoryCurrentLiability, CategoryNonCurrentLiability, CategoryLongTermDebt:
		return TypeLiability, nil
	case CategoryShareCapital, CategoryRetainedEarnings, CategoryOtherComprehensiveIncome:
		return TypeEquity, nil
	case CategoryOperatingRevenue, CategoryOtherRevenue:
		return TypeRevenue, nil
	case CategoryCostOfGoodsSold, CategoryOperatingExpense, CategorySellingExpense,
		CategoryAdministrativeExpense, CategoryFinanceExpense, CategoryTaxExpense:
		return TypeExpense, nil
	}
	return "", fmt.Errorf("accounts: unknown category %q", c)
}

// Validate checks the structural invariants on the account record.
func (a Account) Validate() error {
	typ, err := TypeOf(a.Category)
	if err != nil {
		return err
	}
	if typ != a.Type {
		return fmt.Errorf("%w: category %s on type %s", ErrCategoryConflict, a.Category, a.Type)
	}
	if a.NormalBalance != NormalBalanceFor(a.Type) {
		return fmt.Errorf("%w: %s account stored as %s-normal", ErrNormalBalanceConflict, a.Type, a.NormalBalance)
	}
	return nil
}

// Index builds a lookup map keyed by account identity.
func Index(list []Account) map[int64]Account {
	idx := make(map[int64]Account, len(list))
	for _, a := range list {
		idx[a.ID] = a
	}
	return idx
}
