package reporting

import (
	"testing"
	"time"

	"github.com/atlas-ledger/atlas-ledger/internal/ledger/accounts"
	"github.com/atlas-ledger/atlas-ledger/internal/ledger/companies"
	"github.com/atlas-ledger/atlas-ledger/internal/ledger/journals"
	"github.com/atlas-ledger/atlas-ledger/internal/ledger/money"
)

var (
	asOf        = time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC)
	periodStart = time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
)

func acme() companies.Company {
	return companies.Company{ID: 1, Code: "ACME", Name: "Acme Corp", FunctionalCurrency: "USD", Active: true}
}

func cf(c accounts.CashFlowCategory) *accounts.CashFlowCategory { return &c }

func chart() []accounts.Account {
	return []accounts.Account{
		{ID: 1, CompanyID: 1, Code: "1000", Name: "Cash", Type: accounts.TypeAsset, Category: accounts.CategoryCurrentAsset, NormalBalance: accounts.NormalDebit, Postable: true, Active: true},
		{ID: 2, CompanyID: 1, Code: "1100", Name: "Accounts Receivable", Type: accounts.TypeAsset, Category: accounts.CategoryCurrentAsset, NormalBalance: accounts.NormalDebit, Postable: true, Active: true, CashFlow: cf(accounts.CashFlowOperating)},
		{ID: 3, CompanyID: 1, Code: "2000", Name: "Accounts Payable", Type: accounts.TypeLiability, Category: accounts.CategoryCurrentLiability, NormalBalance: accounts.NormalCredit, Postable: true, Active: true, CashFlow: cf(accounts.CashFlowFinancing)},
		{ID: 4, CompanyID: 1, Code: "3000", Name: "Share Capital", Type: accounts.TypeEquity, Category: accounts.CategoryShareCapital, NormalBalance: accounts.NormalCredit, Postable: true, Active: true, CashFlow: cf(accounts.CashFlowFinancing)},
		{ID: 5, CompanyID: 1, Code: "4000", Name: "Sales", Type: accounts.TypeRevenue, Category: accounts.CategoryOperatingRevenue, NormalBalance: accounts.NormalCredit, Postable: true, Active: true, CashFlow: cf(accounts.CashFlowOperating)},
		{ID: 6, CompanyID: 1, Code: "5000", Name: "Rent", Type: accounts.TypeExpense, Category: accounts.CategoryOperatingExpense, NormalBalance: accounts.NormalDebit, Postable: true, Active: true, CashFlow: cf(accounts.CashFlowOperating)},
	}
}

func usdAmount(t *testing.T, v string) money.Amount {
	t.Helper()
	a, err := money.FromString(v, "USD")
	if err != nil {
		t.Fatalf("parse %s: %v", v, err)
	}
	return a
}

func entry(id int64, date time.Time, lines ...journals.JournalLine) journals.JournalEntry {
	d := date
	return journals.JournalEntry{
		ID:              id,
		CompanyID:       1,
		Status:          journals.StatusPosted,
		Currency:        "USD",
		TransactionDate: date,
		PostingDate:     &d,
		Lines:           lines,
	}
}

func dr(t *testing.T, accountID int64, v string) journals.JournalLine {
	la := journals.Debit(usdAmount(t, v))
	return journals.JournalLine{AccountID: accountID, Amount: la, Functional: la}
}

func cr(t *testing.T, accountID int64, v string) journals.JournalLine {
	la := journals.Credit(usdAmount(t, v))
	return journals.JournalLine{AccountID: accountID, Amount: la, Functional: la}
}

func TestTrialBalanceSingleBalancedEntry(t *testing.T) {
	in := Inputs{
		Company:  acme(),
		Accounts: chart(),
		Entries: []journals.JournalEntry{
			entry(1, periodStart, dr(t, 1, "1000"), cr(t, 5, "1000")),
		},
	}
	tb, err := BuildTrialBalance(in, asOf, Options{})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(tb.Rows) != 2 {
		t.Fatalf("expected 2 line items, got %d", len(tb.Rows))
	}
	if !tb.TotalDebits.Equal(usdAmount(t, "1000")) || !tb.TotalCredits.Equal(usdAmount(t, "1000")) {
		t.Fatalf("expected 1000/1000 totals, got %s/%s", tb.TotalDebits, tb.TotalCredits)
	}
	if !tb.IsBalanced {
		t.Fatal("balanced ledger reported unbalanced")
	}
}

func TestTrialBalanceZeroBalanceOption(t *testing.T) {
	in := Inputs{
		Company:  acme(),
		Accounts: chart(),
		Entries: []journals.JournalEntry{
			entry(1, periodStart, dr(t, 1, "500"), cr(t, 5, "500")),
		},
	}

	excluded, err := BuildTrialBalance(in, asOf, Options{IncludeZeroBalances: false})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(excluded.Rows) != 2 {
		t.Fatalf("exclude-zero trial balance should have 2 rows, got %d", len(excluded.Rows))
	}

	included, err := BuildTrialBalance(in, asOf, Options{IncludeZeroBalances: true})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(included.Rows) != len(chart()) {
		t.Fatalf("include-zero trial balance should list all %d postable accounts, got %d", len(chart()), len(included.Rows))
	}
}

func TestTrialBalanceEmptyLedger(t *testing.T) {
	in := Inputs{Company: acme(), Accounts: chart()}
	tb, err := BuildTrialBalance(in, asOf, Options{})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(tb.Rows) != 0 {
		t.Fatalf("empty ledger should yield zero rows, got %d", len(tb.Rows))
	}
	if !tb.IsBalanced {
		t.Fatal("empty ledger should be vacuously balanced")
	}
}

func TestTrialBalanceUnknownCompany(t *testing.T) {
	_, err := BuildTrialBalance(Inputs{Accounts: chart()}, asOf, Options{})
	if _, ok := err.(UnknownCompanyError); !ok {
		t.Fatalf("expected UnknownCompanyError, got %v", err)
	}
}

func TestIncomeStatementNetIncome(t *testing.T) {
	in := Inputs{
		Company:  acme(),
		Accounts: chart(),
		Entries: []journals.JournalEntry{
			entry(1, periodStart, dr(t, 1, "10000"), cr(t, 5, "10000")),
			entry(2, periodStart.AddDate(0, 0, 5), dr(t, 6, "3000"), cr(t, 1, "3000")),
		},
	}
	is, err := BuildIncomeStatement(in, periodStart, asOf, Options{})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if !is.TotalRevenue.Equal(usdAmount(t, "10000")) {
		t.Fatalf("expected revenue 10000, got %s", is.TotalRevenue)
	}
	if !is.TotalExpenses.Equal(usdAmount(t, "3000")) {
		t.Fatalf("expected expenses 3000, got %s", is.TotalExpenses)
	}
	if !is.NetIncome.Equal(usdAmount(t, "7000")) {
		t.Fatalf("expected net income 7000, got %s", is.NetIncome)
	}
}

func TestIncomeStatementIgnoresOutOfPeriodEntries(t *testing.T) {
	before := periodStart.AddDate(0, -1, 0)
	in := Inputs{
		Company:  acme(),
		Accounts: chart(),
		Entries: []journals.JournalEntry{
			entry(1, before, dr(t, 1, "500"), cr(t, 5, "500")),
			entry(2, periodStart, dr(t, 1, "100"), cr(t, 5, "100")),
		},
	}
	is, err := BuildIncomeStatement(in, periodStart, asOf, Options{})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if !is.TotalRevenue.Equal(usdAmount(t, "100")) {
		t.Fatalf("expected only in-period revenue 100, got %s", is.TotalRevenue)
	}
}

func TestBalanceSheetEquation(t *testing.T) {
	in := Inputs{
		Company:  acme(),
		Accounts: chart(),
		Entries: []journals.JournalEntry{
			// Capital injection.
			entry(1, periodStart, dr(t, 1, "10000"), cr(t, 4, "10000")),
			// Loan.
			entry(2, periodStart, dr(t, 1, "5000"), cr(t, 3, "5000")),
			// Receivable for cash.
			entry(3, periodStart, dr(t, 2, "3000"), cr(t, 1, "3000")),
		},
	}
	bs, err := BuildBalanceSheet(in, asOf, nil, Options{})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if !bs.TotalAssets.Equal(usdAmount(t, "15000")) {
		t.Fatalf("expected total assets 15000, got %s", bs.TotalAssets)
	}
	if !bs.TotalLiabilitiesAndEquity.Equal(usdAmount(t, "15000")) {
		t.Fatalf("expected liabilities+equity 15000, got %s", bs.TotalLiabilitiesAndEquity)
	}
	if !bs.IsBalanced {
		t.Fatal("balance sheet equation violated")
	}
}

func TestBalanceSheetFoldsEarningsIntoEquity(t *testing.T) {
	in := Inputs{
		Company:  acme(),
		Accounts: chart(),
		Entries: []journals.JournalEntry{
			entry(1, periodStart, dr(t, 1, "10000"), cr(t, 4, "10000")),
			entry(2, periodStart, dr(t, 1, "2000"), cr(t, 5, "2000")),
			entry(3, periodStart, dr(t, 6, "500"), cr(t, 1, "500")),
		},
	}
	bs, err := BuildBalanceSheet(in, asOf, nil, Options{})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if !bs.IsBalanced {
		t.Fatalf("expected balanced sheet, assets=%s vs l+e=%s", bs.TotalAssets, bs.TotalLiabilitiesAndEquity)
	}
	if !bs.TotalEquity.Equal(usdAmount(t, "11500")) {
		t.Fatalf("equity should include 1500 of current earnings, got %s", bs.TotalEquity)
	}
}

func TestBalanceSheetComparativeVariance(t *testing.T) {
	comparativeDate := periodStart.AddDate(0, 0, 4)
	in := Inputs{
		Company:  acme(),
		Accounts: chart(),
		Entries: []journals.JournalEntry{
			entry(1, periodStart, dr(t, 1, "1000"), cr(t, 4, "1000")),
			entry(2, periodStart.AddDate(0, 0, 10), dr(t, 1, "500"), cr(t, 4, "500")),
		},
	}
	bs, err := BuildBalanceSheet(in, asOf, &comparativeDate, Options{})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	var cash *LineItem
	for i := range bs.CurrentAssets.Lines {
		if bs.CurrentAssets.Lines[i].Code == "1000" {
			cash = &bs.CurrentAssets.Lines[i]
		}
	}
	if cash == nil {
		t.Fatal("cash line missing")
	}
	if cash.Comparative == nil || !cash.Comparative.Equal(usdAmount(t, "1000")) {
		t.Fatalf("expected comparative 1000, got %v", cash.Comparative)
	}
	if cash.Variance == nil || !cash.Variance.Equal(usdAmount(t, "500")) {
		t.Fatalf("expected variance 500, got %v", cash.Variance)
	}
	if cash.VariancePct == nil || cash.VariancePct.StringFixed(0) != "50" {
		t.Fatalf("expected variance pct 50, got %v", cash.VariancePct)
	}
}

func TestCashFlowNetChangeMatchesCashMovement(t *testing.T) {
	in := Inputs{
		Company:  acme(),
		Accounts: chart(),
		Entries: []journals.JournalEntry{
			// Capital raise: +10000 cash (financing inflow).
			entry(1, periodStart, dr(t, 1, "10000"), cr(t, 4, "10000")),
			// Credit sale: revenue without cash, AR up (operating).
			entry(2, periodStart, dr(t, 2, "3000"), cr(t, 5, "3000")),
			// Cash expense: -500 cash.
			entry(3, periodStart, dr(t, 6, "500"), cr(t, 1, "500")),
		},
	}
	cfStmt, err := BuildCashFlowStatement(in, periodStart, asOf, Options{})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	// Cash moved +10000 - 500 = +9500.
	if !cfStmt.NetChangeInCash.Equal(usdAmount(t, "9500")) {
		t.Fatalf("expected net change 9500, got %s", cfStmt.NetChangeInCash)
	}
	if !cfStmt.Financing.Subtotal.Equal(usdAmount(t, "10000")) {
		t.Fatalf("expected financing 10000, got %s", cfStmt.Financing.Subtotal)
	}
	// Operating: revenue +3000, AR increase -3000, expense -500.
	if !cfStmt.Operating.Subtotal.Equal(usdAmount(t, "-500")) {
		t.Fatalf("expected operating -500, got %s", cfStmt.Operating.Subtotal)
	}
}
