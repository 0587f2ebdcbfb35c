package consol

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/atlas-ledger/atlas-ledger/internal/consol/ic"
)

// EliminationLine is one side of an elimination entry against a group
// account.
type EliminationLine struct {
	GroupAccountID int64
	Debit          decimal.Decimal
	Credit         decimal.Decimal
	Memo           string
}

// EliminationEntry reverses one matched intercompany pair. Entries are
// tracked by identity on the run record, never silently merged into
// aggregated balances.
type EliminationEntry struct {
	ID         uuid.UUID
	GroupID    int64
	Period     string
	SourceLink string
	Lines      []EliminationLine
	CreatedAt  time.Time
}

// BuildEliminations generates one entry per matched pair: debit the payable
// group account and credit the receivable group account so the pair's
// combined effect on the consolidated trial balance nets to zero.
func BuildEliminations(groupID int64, period string, pairs []ic.Pair, now time.Time) []EliminationEntry {
	entries := make([]EliminationEntry, 0, len(pairs))
	for _, pair := range pairs {
		entries = append(entries, EliminationEntry{
			ID:         uuid.New(),
			GroupID:    groupID,
			Period:     period,
			SourceLink: ic.SourceLink(period, pair.CompanyAID, pair.CompanyBID),
			CreatedAt:  now,
			Lines: []EliminationLine{
				{
					GroupAccountID: pair.APGroupAccountID,
					Debit:          pair.Amount,
					Memo:           fmt.Sprintf("IC elimination AP %d -> %d", pair.CompanyBID, pair.CompanyAID),
				},
				{
					GroupAccountID: pair.ARGroupAccountID,
					Credit:         pair.Amount,
					Memo:           fmt.Sprintf("IC elimination AR %d -> %d", pair.CompanyAID, pair.CompanyBID),
				},
			},
		})
	}
	return entries
}

// eliminationAdjustments converts elimination entries into natural-terms
// per-account deltas: both the receivable and the payable lose their
// natural-positive balance.
func eliminationAdjustments(pairs []ic.Pair) map[int64]decimal.Decimal {
	adjustments := make(map[int64]decimal.Decimal)
	for _, pair := range pairs {
		adjustments[pair.ARGroupAccountID] = adjustments[pair.ARGroupAccountID].Sub(pair.Amount)
		adjustments[pair.APGroupAccountID] = adjustments[pair.APGroupAccountID].Sub(pair.Amount)
	}
	return adjustments
}
