package reporting

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/atlas-ledger/atlas-ledger/internal/ledger/accounts"
	"github.com/atlas-ledger/atlas-ledger/internal/ledger/companies"
	"github.com/atlas-ledger/atlas-ledger/internal/ledger/journals"
	"github.com/atlas-ledger/atlas-ledger/internal/ledger/money"
	"github.com/atlas-ledger/atlas-ledger/internal/ledger/periods"
)

// ErrPeriodNotFound indicates the requested fiscal period is missing.
var ErrPeriodNotFound = errors.New("reporting: period not found")

// PgRepository implements Repository against PostgreSQL. Numeric columns
// travel as text so amounts survive the round trip without float conversion.
type PgRepository struct {
	pool *pgxpool.Pool
}

// NewPgRepository constructs a reporting repository.
func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func (r *PgRepository) GetCompany(ctx context.Context, companyID int64) (companies.Company, error) {
	var c companies.Company
	err := r.pool.QueryRow(ctx, `
		SELECT id, code, name, functional_currency, is_active
		FROM companies
		WHERE id = $1`, companyID,
	).Scan(&c.ID, &c.Code, &c.Name, &c.FunctionalCurrency, &c.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return companies.Company{}, UnknownCompanyError{CompanyID: companyID}
	}
	return c, err
}

func (r *PgRepository) Accounts(ctx context.Context, companyID int64) ([]accounts.Account, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, company_id, code, name, type, category, normal_balance,
		       is_postable, parent_id, cash_flow_category, is_active
		FROM accounts
		WHERE company_id = $1 AND is_active
		ORDER BY code`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chart []accounts.Account
	for rows.Next() {
		var (
			acct     accounts.Account
			cashFlow *string
		)
		if err := rows.Scan(
			&acct.ID, &acct.CompanyID, &acct.Code, &acct.Name,
			&acct.Type, &acct.Category, &acct.NormalBalance,
			&acct.Postable, &acct.ParentID, &cashFlow, &acct.Active,
		); err != nil {
			return nil, err
		}
		if cashFlow != nil {
			cf := accounts.CashFlowCategory(*cashFlow)
			acct.CashFlow = &cf
		}
		chart = append(chart, acct)
	}
	return chart, rows.Err()
}

func (r *PgRepository) Entries(ctx context.Context, companyID int64, asOf time.Time) ([]journals.JournalEntry, error) {
	company, err := r.GetCompany(ctx, companyID)
	if err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT e.id, e.company_id, e.entry_number, e.period_id, e.status,
		       e.currency, e.transaction_date, e.posting_date,
		       l.id, l.account_id, l.debit::text, l.credit::text,
		       l.base_debit::text, l.base_credit::text, l.partner_company_id
		FROM journal_entries e
		JOIN journal_lines l ON l.journal_id = e.id
		WHERE e.company_id = $1
		  AND e.status = 'POSTED'
		  AND e.posting_date <= $2
		ORDER BY e.id, l.id`, companyID, asOf)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []journals.JournalEntry
	byID := make(map[int64]int)
	for rows.Next() {
		var (
			entry      journals.JournalEntry
			line       journals.JournalLine
			debit      string
			credit     string
			baseDebit  string
			baseCredit string
		)
		if err := rows.Scan(
			&entry.ID, &entry.CompanyID, &entry.Number, &entry.PeriodID,
			&entry.Status, &entry.Currency, &entry.TransactionDate, &entry.PostingDate,
			&line.ID, &line.AccountID, &debit, &credit,
			&baseDebit, &baseCredit, &line.PartnerCompanyID,
		); err != nil {
			return nil, err
		}
		line.JournalID = entry.ID

		line.Amount, err = lineAmount(debit, credit, entry.Currency)
		if err != nil {
			return nil, fmt.Errorf("reporting: journal %d line %d: %w", entry.ID, line.ID, err)
		}
		line.Functional, err = lineAmount(baseDebit, baseCredit, company.FunctionalCurrency)
		if err != nil {
			return nil, fmt.Errorf("reporting: journal %d line %d: %w", entry.ID, line.ID, err)
		}

		idx, seen := byID[entry.ID]
		if !seen {
			entries = append(entries, entry)
			idx = len(entries) - 1
			byID[entry.ID] = idx
		}
		entries[idx].Lines = append(entries[idx].Lines, line)
	}
	return entries, rows.Err()
}

func (r *PgRepository) FindPeriod(ctx context.Context, companyID int64, code string) (periods.Period, error) {
	var p periods.Period
	err := r.pool.QueryRow(ctx, `
		SELECT id, company_id, code, start_date, end_date, status
		FROM fiscal_periods
		WHERE company_id = $1 AND code = $2`, companyID, strings.TrimSpace(code),
	).Scan(&p.ID, &p.CompanyID, &p.Code, &p.StartDate, &p.EndDate, &p.Status)
	if errors.Is(err, pgx.ErrNoRows) {
		return periods.Period{}, ErrPeriodNotFound
	}
	return p, err
}

func lineAmount(debit, credit, currency string) (journals.LineAmount, error) {
	d, err := decimal.NewFromString(debit)
	if err != nil {
		return journals.LineAmount{}, fmt.Errorf("parse debit %q: %w", debit, err)
	}
	c, err := decimal.NewFromString(credit)
	if err != nil {
		return journals.LineAmount{}, fmt.Errorf("parse credit %q: %w", credit, err)
	}
	if !c.IsZero() {
		return journals.Credit(money.New(c, currency)), nil
	}
	return journals.Debit(money.New(d, currency)), nil
}
