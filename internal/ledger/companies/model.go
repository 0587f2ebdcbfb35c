package companies

import (
	"github.com/shopspring/decimal"
)

// Company models a legal entity owning its own ledger.
type Company struct {
	ID                 int64
	Code               string
	Name               string
	FunctionalCurrency string
	Active             bool
}

// ConsolidationMethod enumerates how a member folds into the group.
type ConsolidationMethod string

const (
	MethodFull         ConsolidationMethod = "FULL"
	MethodEquity       ConsolidationMethod = "EQUITY"
	MethodProportional ConsolidationMethod = "PROPORTIONAL"
)

// Member describes a consolidation group member with its ownership stake.
type Member struct {
	CompanyID        int64
	CompanyName      string
	OwnershipPercent decimal.Decimal
	Method           ConsolidationMethod
	Enabled          bool
}

// WhollyOwned reports whether the parent owns the full stake.
func (m Member) WhollyOwned() bool {
	return m.OwnershipPercent.GreaterThanOrEqual(decimal.NewFromInt(100))
}

// MinorityFraction returns the non-controlling share as a fraction in [0,1].
func (m Member) MinorityFraction() decimal.Decimal {
	hundred := decimal.NewFromInt(100)
	frac := hundred.Sub(m.OwnershipPercent).Div(hundred)
	if frac.IsNegative() {
		return decimal.Zero
	}
	return frac
}

// ConsolidationGroup is a set of member companies reporting in one currency.
type ConsolidationGroup struct {
	ID                int64
	Name              string
	ReportingCurrency string
	Members           []Member
}

// Member returns the membership record for a company.
func (g ConsolidationGroup) Member(companyID int64) (Member, bool) {
	for _, m := range g.Members {
		if m.CompanyID == companyID {
			return m, true
		}
	}
	return Member{}, false
}
