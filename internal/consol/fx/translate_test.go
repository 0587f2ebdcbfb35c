package fx

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/atlas-ledger/atlas-ledger/internal/ledger/accounts"
	"github.com/atlas-ledger/atlas-ledger/internal/ledger/money"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func memberChart() map[int64]accounts.Account {
	return accounts.Index([]accounts.Account{
		{ID: 1, Code: "1000", Name: "Cash", Type: accounts.TypeAsset, Category: accounts.CategoryCurrentAsset, NormalBalance: accounts.NormalDebit, Postable: true},
		{ID: 2, Code: "3000", Name: "Share Capital", Type: accounts.TypeEquity, Category: accounts.CategoryShareCapital, NormalBalance: accounts.NormalCredit, Postable: true},
		{ID: 3, Code: "4000", Name: "Sales", Type: accounts.TypeRevenue, Category: accounts.CategoryOperatingRevenue, NormalBalance: accounts.NormalCredit, Postable: true},
		{ID: 4, Code: "5000", Name: "Wages", Type: accounts.TypeExpense, Category: accounts.CategoryOperatingExpense, NormalBalance: accounts.NormalDebit, Postable: true},
	})
}

func eur(v string) money.Amount { return money.New(dec(v), "EUR") }

func TestIdentityTranslation(t *testing.T) {
	balances := map[int64]money.Amount{1: eur("100"), 3: eur("40")}
	// Rates deliberately bogus: identity must never consult them.
	rates := RateSet{Quotes: map[string]Quote{"EUREUR": {Pair: "EUREUR", Closing: dec("9")}}}

	got, err := Translate(balances, memberChart(), "EUR", "eur", rates)
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if got.Applied {
		t.Fatal("identity translation must not be marked applied")
	}
	if !got.CTA.IsZero() {
		t.Fatalf("identity translation must not produce CTA, got %s", got.CTA)
	}
	for id, want := range balances {
		if !got.Balances[id].Equal(want) {
			t.Fatalf("account %d changed under identity translation: %s", id, got.Balances[id])
		}
	}
}

func TestMethodSelectionByAccountType(t *testing.T) {
	rates := RateSet{Quotes: map[string]Quote{
		"EURUSD": {Pair: "EURUSD", Closing: dec("1.10"), Average: dec("1.05"), Opening: dec("1.00")},
	}}
	balances := map[int64]money.Amount{
		1: eur("100"), // asset -> closing
		2: eur("200"), // equity -> opening
		3: eur("300"), // revenue -> average
	}
	got, err := Translate(balances, memberChart(), "EUR", "USD", rates)
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if !got.Applied {
		t.Fatal("cross-currency translation should be marked applied")
	}
	if !got.Balances[1].Value.Equal(dec("110")) {
		t.Fatalf("asset should use closing rate: %s", got.Balances[1])
	}
	if !got.Balances[2].Value.Equal(dec("200")) {
		t.Fatalf("equity should use opening rate: %s", got.Balances[2])
	}
	if !got.Balances[3].Value.Equal(dec("315")) {
		t.Fatalf("revenue should use average rate: %s", got.Balances[3])
	}
	if got.Balances[1].Currency != "USD" {
		t.Fatalf("translated currency should be USD, got %s", got.Balances[1].Currency)
	}
}

func TestHistoricalOverrideForEquity(t *testing.T) {
	rates := RateSet{
		Quotes: map[string]Quote{
			"EURUSD": {Pair: "EURUSD", Closing: dec("1.10"), Average: dec("1.05"), Opening: dec("1.00")},
		},
		Historical: map[int64]decimal.Decimal{2: dec("0.90")},
	}
	got, err := Translate(map[int64]money.Amount{2: eur("200")}, memberChart(), "EUR", "USD", rates)
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if !got.Balances[2].Value.Equal(dec("180")) {
		t.Fatalf("historical override ignored: %s", got.Balances[2])
	}
}

func TestCTAKeepsTranslatedBalancesSelfBalancing(t *testing.T) {
	rates := RateSet{Quotes: map[string]Quote{
		"EURUSD": {Pair: "EURUSD", Closing: dec("2"), Average: dec("1.5"), Opening: dec("1")},
	}}
	// Balanced in EUR: cash 100 dr, capital 60 cr, sales 50 cr, wages 10 dr.
	balances := map[int64]money.Amount{
		1: eur("100"),
		2: eur("60"),
		3: eur("50"),
		4: eur("10"),
	}
	got, err := Translate(balances, memberChart(), "EUR", "USD", rates)
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	// Raw: +200 (cash) -60 (capital) -75 (sales) +15 (wages) = +80.
	if !got.CTA.Value.Equal(dec("80")) {
		t.Fatalf("expected CTA 80, got %s", got.CTA)
	}
	rawSum := decimal.Zero
	chart := memberChart()
	for id, bal := range got.Balances {
		raw := bal.Value
		if accounts.SignMultiplier(chart[id]) < 0 {
			raw = raw.Neg()
		}
		rawSum = rawSum.Add(raw)
	}
	// Adding CTA on the credit side must zero the raw sum.
	if !rawSum.Sub(got.CTA.Value).IsZero() {
		t.Fatalf("CTA does not balance the translated trial balance: raw=%s cta=%s", rawSum, got.CTA.Value)
	}
}

func TestMissingRateIsHardFailure(t *testing.T) {
	_, err := Translate(map[int64]money.Amount{1: eur("1")}, memberChart(), "EUR", "USD", RateSet{})
	var missing MissingRateError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingRateError, got %v", err)
	}
	if missing.Pair != "EURUSD" {
		t.Fatalf("unexpected pair: %s", missing.Pair)
	}

	partial := RateSet{Quotes: map[string]Quote{
		"EURUSD": {Pair: "EURUSD", Closing: dec("1.10")},
	}}
	_, err = Translate(map[int64]money.Amount{3: eur("1")}, memberChart(), "EUR", "USD", partial)
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingRateError for average method, got %v", err)
	}
	if missing.Method != MethodAverage {
		t.Fatalf("expected average method gap, got %s", missing.Method)
	}
}

func TestValidateReportsAllGapsInOnePass(t *testing.T) {
	rates := RateSet{Quotes: map[string]Quote{
		"EURUSD": {Pair: "EURUSD", Closing: dec("1.1")},
	}}
	gaps, err := Validate(rates, []Requirement{
		{Pair: "EURUSD", Methods: []Method{MethodClosing, MethodAverage}},
		{Pair: "GBPUSD", Methods: []Method{MethodClosing}},
	})
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if len(gaps) != 2 {
		t.Fatalf("expected 2 gaps, got %d: %+v", len(gaps), gaps)
	}
	if gaps[0].Pair != "EURUSD" || len(gaps[0].Methods) != 1 || gaps[0].Methods[0] != MethodAverage {
		t.Fatalf("unexpected first gap: %+v", gaps[0])
	}
	if gaps[1].Pair != "GBPUSD" {
		t.Fatalf("unexpected second gap: %+v", gaps[1])
	}
}

func TestValidateRejectsUnknownMethod(t *testing.T) {
	if _, err := Validate(RateSet{}, []Requirement{{Pair: "EURUSD", Methods: []Method{Method("SPOT")}}}); err == nil {
		t.Fatal("expected error for unsupported method")
	}
}
