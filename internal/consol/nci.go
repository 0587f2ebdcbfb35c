package consol

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/atlas-ledger/atlas-ledger/internal/ledger/accounts"
	"github.com/atlas-ledger/atlas-ledger/internal/ledger/companies"
)

// nciResult holds the non-controlling interest apportionment: natural-terms
// adjustments per group account plus the total presented on the NCI line.
type nciResult struct {
	adjustments map[int64]decimal.Decimal
	total       decimal.Decimal
	issues      []Issue
}

// computeNCI apportions the minority share of equity and net income for
// members that are not wholly owned. Equity balances move from the member's
// equity accounts to the NCI line; the income share moves from group
// retained earnings to the NCI line so the trial balance stays balanced.
func computeNCI(
	group companies.ConsolidationGroup,
	memberBalances map[int64]map[int64]decimal.Decimal,
	mapping *Mapping,
) nciResult {
	result := nciResult{
		adjustments: make(map[int64]decimal.Decimal),
		total:       decimal.Zero,
	}
	groupAccounts := mapping.GroupAccounts()

	for _, member := range group.Members {
		if member.Method != companies.MethodFull || member.WhollyOwned() {
			continue
		}
		fraction := member.MinorityFraction()
		if fraction.IsZero() {
			continue
		}
		balances := memberBalances[member.CompanyID]

		income := decimal.Zero
		for groupAccountID, natural := range balances {
			ga, ok := groupAccounts[groupAccountID]
			if !ok {
				continue
			}
			switch ga.Type {
			case accounts.TypeEquity:
				if groupAccountID == mapping.NCIAccountID {
					continue
				}
				share := natural.Mul(fraction)
				result.adjustments[groupAccountID] = result.adjustments[groupAccountID].Sub(share)
				result.total = result.total.Add(share)
			case accounts.TypeRevenue:
				income = income.Add(natural)
			case accounts.TypeExpense:
				income = income.Sub(natural)
			}
		}

		incomeShare := income.Mul(fraction)
		if incomeShare.IsZero() {
			continue
		}
		if mapping.RetainedEarningsID == 0 {
			result.issues = append(result.issues, Issue{
				Severity: SeverityWarning,
				Code:     "NCI_NO_RETAINED_EARNINGS",
				Message:  fmt.Sprintf("no group retained earnings account; income share for member %d left with the parent", member.CompanyID),
				Entity:   "company",
				EntityID: member.CompanyID,
			})
			continue
		}
		result.adjustments[mapping.RetainedEarningsID] = result.adjustments[mapping.RetainedEarningsID].Sub(incomeShare)
		result.total = result.total.Add(incomeShare)
	}

	if !result.total.IsZero() && mapping.NCIAccountID != 0 {
		result.adjustments[mapping.NCIAccountID] = result.adjustments[mapping.NCIAccountID].Add(result.total)
	}
	return result
}
