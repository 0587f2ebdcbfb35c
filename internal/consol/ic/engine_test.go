package ic

import (
	"testing"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

var tolerance = dec("0.01")

func TestMatchReceivableAgainstPayable(t *testing.T) {
	exposures := []Exposure{
		{CompanyID: 1, PartnerID: 2, GroupAccountID: 10, Amount: dec("500")},
		{CompanyID: 2, PartnerID: 1, GroupAccountID: 20, Amount: dec("-500")},
	}
	result := Match(exposures, tolerance)
	if len(result.Pairs) != 1 {
		t.Fatalf("expected 1 pair, got %d", len(result.Pairs))
	}
	pair := result.Pairs[0]
	if !pair.Amount.Equal(dec("500")) {
		t.Fatalf("expected matched amount 500, got %s", pair.Amount)
	}
	if pair.ARGroupAccountID != 10 || pair.APGroupAccountID != 20 {
		t.Fatalf("pair accounts wrong: %+v", pair)
	}
	if len(result.Unmatched) != 0 {
		t.Fatalf("expected no unmatched, got %+v", result.Unmatched)
	}
	if !result.Total.Equal(dec("500")) {
		t.Fatalf("expected total 500, got %s", result.Total)
	}
}

func TestPartialMatchReportsResidual(t *testing.T) {
	exposures := []Exposure{
		{CompanyID: 1, PartnerID: 2, GroupAccountID: 10, Amount: dec("800")},
		{CompanyID: 2, PartnerID: 1, GroupAccountID: 20, Amount: dec("-500")},
	}
	result := Match(exposures, tolerance)
	if len(result.Pairs) != 1 || !result.Pairs[0].Amount.Equal(dec("500")) {
		t.Fatalf("expected 500 matched, got %+v", result.Pairs)
	}
	if len(result.Unmatched) != 1 {
		t.Fatalf("expected 1 unmatched residual, got %+v", result.Unmatched)
	}
	if !result.Unmatched[0].Amount.Equal(dec("300")) {
		t.Fatalf("expected residual 300, got %s", result.Unmatched[0].Amount)
	}
}

func TestResidualWithinToleranceIgnored(t *testing.T) {
	exposures := []Exposure{
		{CompanyID: 1, PartnerID: 2, GroupAccountID: 10, Amount: dec("500.005")},
		{CompanyID: 2, PartnerID: 1, GroupAccountID: 20, Amount: dec("-500")},
	}
	result := Match(exposures, tolerance)
	if len(result.Unmatched) != 0 {
		t.Fatalf("sub-tolerance residual should be ignored, got %+v", result.Unmatched)
	}
}

func TestUnmirroredPayableReportedUnmatched(t *testing.T) {
	exposures := []Exposure{
		{CompanyID: 2, PartnerID: 1, GroupAccountID: 20, Amount: dec("-400")},
	}
	result := Match(exposures, tolerance)
	if len(result.Pairs) != 0 {
		t.Fatalf("no pair expected, got %+v", result.Pairs)
	}
	if len(result.Unmatched) != 1 || !result.Unmatched[0].Amount.Equal(dec("-400")) {
		t.Fatalf("expected unmatched payable -400, got %+v", result.Unmatched)
	}
}

func TestZeroExposuresProduceNothing(t *testing.T) {
	result := Match([]Exposure{{CompanyID: 1, PartnerID: 2, Amount: decimal.Zero}}, tolerance)
	if len(result.Pairs) != 0 || len(result.Unmatched) != 0 {
		t.Fatalf("zero exposure should be dropped: %+v", result)
	}
}

func TestSourceLinkDeterministic(t *testing.T) {
	if SourceLink("2025-03", 1, 2) != "IC_ARAP|2025-03|1|2" {
		t.Fatalf("unexpected source link: %s", SourceLink("2025-03", 1, 2))
	}
}
