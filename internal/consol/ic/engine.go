// Package ic pairs intercompany exposures between consolidation group
// members so the elimination step can zero their combined effect.
package ic

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// Exposure is the netted intercompany position one company holds against a
// partner on one group account. Amount is raw debit-minus-credit in the
// group currency: positive for receivable-side balances, negative for
// payable-side balances.
type Exposure struct {
	CompanyID      int64
	PartnerID      int64
	GroupAccountID int64
	Amount         decimal.Decimal
}

// Pair is one matched receivable/payable exposure between two companies.
type Pair struct {
	CompanyAID       int64
	CompanyBID       int64
	ARGroupAccountID int64
	APGroupAccountID int64
	Amount           decimal.Decimal
}

// Unmatched is residual intercompany balance left after pairing. Reported
// as a validation-style issue by the pipeline; it does not fail the run.
type Unmatched struct {
	CompanyID      int64
	PartnerID      int64
	GroupAccountID int64
	Amount         decimal.Decimal
}

// Result summarises one matching pass.
type Result struct {
	Pairs     []Pair
	Unmatched []Unmatched
	Total     decimal.Decimal
}

// Match pairs each company's receivable exposures against the partner's
// payable exposures. The eliminated amount per pairing is the smaller
// absolute side; residue beyond the tolerance is reported unmatched.
func Match(exposures []Exposure, tolerance decimal.Decimal) Result {
	type directed struct {
		companyID int64
		partnerID int64
	}
	receivables := make(map[directed][]Exposure)
	payables := make(map[directed][]Exposure)

	for _, exp := range exposures {
		if exp.Amount.IsZero() {
			continue
		}
		key := directed{companyID: exp.CompanyID, partnerID: exp.PartnerID}
		if exp.Amount.IsPositive() {
			receivables[key] = append(receivables[key], exp)
		} else {
			payables[key] = append(payables[key], exp)
		}
	}

	result := Result{Total: decimal.Zero}
	keys := make([]directed, 0, len(receivables))
	for key := range receivables {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].companyID != keys[j].companyID {
			return keys[i].companyID < keys[j].companyID
		}
		return keys[i].partnerID < keys[j].partnerID
	})

	consumed := make(map[directed]bool)
	for _, key := range keys {
		mirror := directed{companyID: key.partnerID, partnerID: key.companyID}
		arSide := receivables[key]
		apSide := payables[mirror]
		consumed[mirror] = true

		ar := sumExposures(arSide)
		ap := sumExposures(apSide).Abs()
		matched := decimal.Min(ar, ap)
		if matched.IsPositive() {
			pair := Pair{
				CompanyAID: key.companyID,
				CompanyBID: key.partnerID,
				Amount:     matched,
			}
			if len(arSide) > 0 {
				pair.ARGroupAccountID = arSide[0].GroupAccountID
			}
			if len(apSide) > 0 {
				pair.APGroupAccountID = apSide[0].GroupAccountID
			}
			result.Pairs = append(result.Pairs, pair)
			result.Total = result.Total.Add(matched)
		}

		residual := ar.Sub(ap)
		if residual.Abs().GreaterThan(tolerance) {
			side := arSide
			partner := key
			if residual.IsNegative() {
				side = apSide
				partner = mirror
			}
			if len(side) > 0 {
				result.Unmatched = append(result.Unmatched, Unmatched{
					CompanyID:      partner.companyID,
					PartnerID:      partner.partnerID,
					GroupAccountID: side[0].GroupAccountID,
					Amount:         residual,
				})
			}
		}
	}

	// Payable exposures whose mirror had no receivable at all.
	payableKeys := make([]directed, 0)
	for key := range payables {
		if !consumed[key] {
			payableKeys = append(payableKeys, key)
		}
	}
	sort.Slice(payableKeys, func(i, j int) bool {
		if payableKeys[i].companyID != payableKeys[j].companyID {
			return payableKeys[i].companyID < payableKeys[j].companyID
		}
		return payableKeys[i].partnerID < payableKeys[j].partnerID
	})
	for _, key := range payableKeys {
		total := sumExposures(payables[key])
		if total.Abs().GreaterThan(tolerance) {
			result.Unmatched = append(result.Unmatched, Unmatched{
				CompanyID:      key.companyID,
				PartnerID:      key.partnerID,
				GroupAccountID: payables[key][0].GroupAccountID,
				Amount:         total,
			})
		}
	}
	return result
}

func sumExposures(exposures []Exposure) decimal.Decimal {
	sum := decimal.Zero
	for _, exp := range exposures {
		sum = sum.Add(exp.Amount)
	}
	return sum
}

// SourceLink builds the deterministic identity for an eliminated pair.
func SourceLink(period string, companyA, companyB int64) string {
	return fmt.Sprintf("IC_ARAP|%s|%d|%d", period, companyA, companyB)
}
