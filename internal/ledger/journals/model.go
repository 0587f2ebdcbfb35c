package journals

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/atlas-ledger/atlas-ledger/internal/ledger/money"
)

// EntryStatus enumerates the journal entry lifecycle. Only POSTED entries
// are visible to the reporting engine.
type EntryStatus string

const (
	StatusDraft           EntryStatus = "DRAFT"
	StatusPendingApproval EntryStatus = "PENDING_APPROVAL"
	StatusApproved        EntryStatus = "APPROVED"
	StatusPosted          EntryStatus = "POSTED"
	StatusVoided          EntryStatus = "VOIDED"
)

// Side identifies the debit or credit side of a line amount.
type Side string

const (
	SideDebit  Side = "DEBIT"
	SideCredit Side = "CREDIT"
)

// LineAmount holds exactly one of a debit or a credit amount. The XOR
// invariant is structural: there is no way to build a line amount carrying
// both sides.
type LineAmount struct {
	side  Side
	value money.Amount
}

// Debit constructs a debit-side line amount.
func Debit(a money.Amount) LineAmount {
	return LineAmount{side: SideDebit, value: a}
}

// Credit constructs a credit-side line amount.
func Credit(a money.Amount) LineAmount {
	return LineAmount{side: SideCredit, value: a}
}

// Side returns which side the amount sits on.
func (la LineAmount) Side() Side {
	return la.side
}

// Value returns the unsigned magnitude with its currency.
func (la LineAmount) Value() money.Amount {
	return la.value
}

// Signed returns debit minus credit: positive for debits, negative for
// credits.
func (la LineAmount) Signed() decimal.Decimal {
	if la.side == SideCredit {
		return la.value.Value.Neg()
	}
	return la.value.Value
}

// JournalEntry captures posting metadata and its lines.
type JournalEntry struct {
	ID              int64
	CompanyID       int64
	Number          int64
	PeriodID        int64
	Status          EntryStatus
	Currency        string
	TransactionDate time.Time
	PostingDate     *time.Time
	SourceModule    string
	SourceID        uuid.UUID
	Memo            string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	Lines           []JournalLine
}

// JournalLine stores one side of a double entry against an account. Amount
// is denominated in the entry currency; Functional carries the equivalent in
// the company's functional currency (identical when the entry is not
// cross-currency).
type JournalLine struct {
	ID               int64
	JournalID        int64
	AccountID        int64
	Amount           LineAmount
	Functional       LineAmount
	PartnerCompanyID *int64
	Memo             string
}

// Intercompany reports whether the line references a partner company.
func (l JournalLine) Intercompany() bool {
	return l.PartnerCompanyID != nil
}

// VisibleAsOf reports whether the entry counts for a snapshot at asOf:
// the entry must be posted with a posting date on or before the snapshot.
func (e JournalEntry) VisibleAsOf(asOf time.Time) bool {
	if e.Status != StatusPosted || e.PostingDate == nil {
		return false
	}
	return !e.PostingDate.After(asOf)
}
