package money

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func amt(t *testing.T, v, ccy string) Amount {
	t.Helper()
	a, err := FromString(v, ccy)
	if err != nil {
		t.Fatalf("parse %s: %v", v, err)
	}
	return a
}

func TestAddSameCurrency(t *testing.T) {
	got, err := amt(t, "10.25", "USD").Add(amt(t, "4.75", "usd"))
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if !got.Equal(amt(t, "15", "USD")) {
		t.Fatalf("expected 15 USD, got %s", got)
	}
}

func TestAddCurrencyMismatch(t *testing.T) {
	_, err := amt(t, "10", "USD").Add(amt(t, "10", "EUR"))
	var mismatch CurrencyMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected CurrencyMismatchError, got %v", err)
	}
	if mismatch.Left != "USD" || mismatch.Right != "EUR" {
		t.Fatalf("unexpected currencies in error: %+v", mismatch)
	}
}

func TestSubAndNeg(t *testing.T) {
	got, err := amt(t, "10", "IDR").Sub(amt(t, "25", "IDR"))
	if err != nil {
		t.Fatalf("sub: %v", err)
	}
	if !got.Equal(amt(t, "-15", "IDR")) {
		t.Fatalf("expected -15 IDR, got %s", got)
	}
	if !got.Neg().Equal(amt(t, "15", "IDR")) {
		t.Fatalf("neg failed: %s", got.Neg())
	}
}

func TestCmp(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"1", "2", -1},
		{"2", "2", 0},
		{"3", "2", 1},
	}
	for _, tt := range cases {
		got, err := amt(t, tt.a, "USD").Cmp(amt(t, tt.b, "USD"))
		if err != nil {
			t.Fatalf("cmp: %v", err)
		}
		if got != tt.want {
			t.Fatalf("cmp(%s,%s) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
	if _, err := amt(t, "1", "USD").Cmp(amt(t, "1", "JPY")); err == nil {
		t.Fatal("expected mismatch error")
	}
}

func TestNoRoundingInsideArithmetic(t *testing.T) {
	a := New(decimal.RequireFromString("0.105"), "USD")
	sum, err := a.Add(a)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if !sum.Value.Equal(decimal.RequireFromString("0.21")) {
		t.Fatalf("expected exact 0.21, got %s", sum.Value)
	}
	if !a.Round2().Value.Equal(decimal.RequireFromString("0.11")) {
		t.Fatalf("round2 should round half up: %s", a.Round2().Value)
	}
}

func TestIsZero(t *testing.T) {
	if !Zero("USD").IsZero() {
		t.Fatal("zero amount should report zero")
	}
	if amt(t, "0.0001", "USD").IsZero() {
		t.Fatal("non-zero amount reported zero")
	}
}
