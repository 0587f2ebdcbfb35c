package reporting

import (
	"time"

	"github.com/atlas-ledger/atlas-ledger/internal/ledger/accounts"
	"github.com/atlas-ledger/atlas-ledger/internal/ledger/money"
	"github.com/atlas-ledger/atlas-ledger/internal/reporting/aggregate"
)

// CashFlowStatement buckets period movements of cash-relevant accounts into
// the three activity sections. NetChangeInCash is the sum of the three
// section totals and equals the period-over-period movement of the cash
// accounts themselves (which carry no cash-flow category and are excluded
// from the sections).
type CashFlowStatement struct {
	CompanyID   int64
	Currency    string
	PeriodStart time.Time
	PeriodEnd   time.Time

	Operating Section
	Investing Section
	Financing Section
	NonCash   Section

	NetChangeInCash money.Amount
}

// BuildCashFlowStatement aggregates period movements and buckets them by
// each account's cash-flow category. A movement's cash effect is the
// negation of its raw debit-minus-credit sum: an increase in a liability or
// revenue is an inflow, an increase in a non-cash asset or an expense is an
// outflow. Non-cash category movements are reported separately and excluded
// from the net change.
func BuildCashFlowStatement(in Inputs, start, end time.Time, opts Options) (CashFlowStatement, error) {
	if err := in.validate(); err != nil {
		return CashFlowStatement{}, err
	}
	currency := in.currency()
	index := accounts.Index(in.Accounts)

	balances, err := aggregate.Balances(in.Company.ID, index, in.Entries, aggregate.Period(start, end), currency)
	if err != nil {
		return CashFlowStatement{}, err
	}

	sections := map[accounts.SectionKey]*Section{
		accounts.SectionOperatingActivities: newSection(accounts.SectionOperatingActivities, currency),
		accounts.SectionInvestingActivities: newSection(accounts.SectionInvestingActivities, currency),
		accounts.SectionFinancingActivities: newSection(accounts.SectionFinancingActivities, currency),
		accounts.SectionNonCashActivities:   newSection(accounts.SectionNonCashActivities, currency),
	}

	for _, acct := range in.sortedAccounts() {
		if !acct.Postable || acct.CashFlow == nil {
			continue
		}
		sectionKey, err := accounts.CashFlowSection(*acct.CashFlow)
		if err != nil {
			return CashFlowStatement{}, err
		}
		movement := balanceOrZero(balances, acct.ID, currency)
		if movement.IsZero() && !opts.IncludeZeroBalances {
			continue
		}
		// Natural balances are sign-multiplied; undo that to recover the raw
		// debit-minus-credit movement, whose negation is the cash effect.
		raw := movement
		if accounts.SignMultiplier(acct) < 0 {
			raw = movement.Neg()
		}
		cashEffect := raw.Neg()

		section := sections[sectionKey]
		section.Lines = append(section.Lines, LineItem{
			AccountID: acct.ID,
			Code:      acct.Code,
			Name:      acct.Name,
			Style:     StyleNormal,
			Indent:    1,
			Amount:    cashEffect,
		})
		if section.Subtotal, err = section.Subtotal.Add(cashEffect); err != nil {
			return CashFlowStatement{}, err
		}
	}

	cf := CashFlowStatement{
		CompanyID:   in.Company.ID,
		Currency:    currency,
		PeriodStart: start,
		PeriodEnd:   end,
		Operating:   *sections[accounts.SectionOperatingActivities],
		Investing:   *sections[accounts.SectionInvestingActivities],
		Financing:   *sections[accounts.SectionFinancingActivities],
		NonCash:     *sections[accounts.SectionNonCashActivities],
	}
	net := money.Zero(currency)
	for _, section := range []Section{cf.Operating, cf.Investing, cf.Financing} {
		if net, err = net.Add(section.Subtotal); err != nil {
			return CashFlowStatement{}, err
		}
	}
	cf.NetChangeInCash = net
	return cf, nil
}
