package consol

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/atlas-ledger/atlas-ledger/internal/consol/fx"
	"github.com/atlas-ledger/atlas-ledger/internal/ledger/accounts"
	"github.com/atlas-ledger/atlas-ledger/internal/ledger/companies"
	"github.com/atlas-ledger/atlas-ledger/internal/ledger/journals"
	"github.com/atlas-ledger/atlas-ledger/internal/ledger/money"
	"github.com/atlas-ledger/atlas-ledger/internal/ledger/periods"
)

// ErrPeriodNotFound indicates the requested period code is missing.
var ErrPeriodNotFound = errors.New("consol: period not found")

// PgRepository implements Repository against PostgreSQL. Numeric columns are
// selected as text and parsed into decimals so no precision is lost in
// transit.
type PgRepository struct {
	pool *pgxpool.Pool
}

// NewPgRepository constructs a consolidation repository.
func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func (r *PgRepository) GetGroup(ctx context.Context, groupID int64) (companies.ConsolidationGroup, error) {
	var group companies.ConsolidationGroup
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, reporting_currency
		FROM consolidation_groups
		WHERE id = $1`, groupID,
	).Scan(&group.ID, &group.Name, &group.ReportingCurrency)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return companies.ConsolidationGroup{}, ErrGroupNotFound
		}
		return companies.ConsolidationGroup{}, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT m.company_id, c.name, m.ownership_percent::text, m.method, m.enabled
		FROM consolidation_group_members m
		JOIN companies c ON c.id = m.company_id
		WHERE m.group_id = $1
		ORDER BY m.company_id`, groupID)
	if err != nil {
		return companies.ConsolidationGroup{}, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			member  companies.Member
			percent string
			method  string
		)
		if err := rows.Scan(&member.CompanyID, &member.CompanyName, &percent, &method, &member.Enabled); err != nil {
			return companies.ConsolidationGroup{}, err
		}
		member.OwnershipPercent, err = decimal.NewFromString(percent)
		if err != nil {
			return companies.ConsolidationGroup{}, fmt.Errorf("consol: ownership percent for member %d: %w", member.CompanyID, err)
		}
		member.Method = companies.ConsolidationMethod(method)
		group.Members = append(group.Members, member)
	}
	return group, rows.Err()
}

func (r *PgRepository) GetCompany(ctx context.Context, companyID int64) (companies.Company, error) {
	var c companies.Company
	err := r.pool.QueryRow(ctx, `
		SELECT id, code, name, functional_currency, is_active
		FROM companies
		WHERE id = $1`, companyID,
	).Scan(&c.ID, &c.Code, &c.Name, &c.FunctionalCurrency, &c.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return companies.Company{}, fmt.Errorf("consol: company %d not found", companyID)
	}
	return c, err
}

func (r *PgRepository) FindPeriod(ctx context.Context, code string) (periods.Period, error) {
	var p periods.Period
	err := r.pool.QueryRow(ctx, `
		SELECT id, code, start_date, end_date, status
		FROM fiscal_periods
		WHERE code = $1`, strings.TrimSpace(code),
	).Scan(&p.ID, &p.Code, &p.StartDate, &p.EndDate, &p.Status)
	if errors.Is(err, pgx.ErrNoRows) {
		return periods.Period{}, ErrPeriodNotFound
	}
	return p, err
}

func (r *PgRepository) MemberAccounts(ctx context.Context, companyID int64) ([]accounts.Account, error) {
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

func (r *PgRepository) MemberEntries(ctx context.Context, companyID int64, asOf time.Time) ([]journals.JournalEntry, error) {
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
			return nil, fmt.Errorf("consol: journal %d line %d: %w", entry.ID, line.ID, err)
		}
		line.Functional, err = lineAmount(baseDebit, baseCredit, company.FunctionalCurrency)
		if err != nil {
			return nil, fmt.Errorf("consol: journal %d line %d: %w", entry.ID, line.ID, err)
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

func (r *PgRepository) GroupMapping(ctx context.Context, groupID int64) (*Mapping, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, code, name, type, normal_balance, role
		FROM consol_group_accounts
		WHERE group_id = $1
		ORDER BY code`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var (
		chart      []GroupAccount
		retainedID int64
		nciID      int64
		ctaID      int64
	)
	for rows.Next() {
		var (
			ga   GroupAccount
			role *string
		)
		if err := rows.Scan(&ga.ID, &ga.Code, &ga.Name, &ga.Type, &ga.NormalBalance, &role); err != nil {
			return nil, err
		}
		if role != nil {
			switch *role {
			case "RETAINED_EARNINGS":
				retainedID = ga.ID
			case "NCI":
				nciID = ga.ID
			case "CTA":
				ctaID = ga.ID
			}
		}
		chart = append(chart, ga)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	mapping := NewMapping(chart, retainedID, nciID).WithCTAAccount(ctaID)

	links, err := r.pool.Query(ctx, `
		SELECT m.company_id, m.account_id, m.group_account_id
		FROM consol_account_mappings m
		JOIN consolidation_group_members gm
		  ON gm.group_id = $1 AND gm.company_id = m.company_id
		ORDER BY m.company_id, m.account_id`, groupID)
	if err != nil {
		return nil, err
	}
	defer links.Close()

	for links.Next() {
		var companyID, accountID, groupAccountID int64
		if err := links.Scan(&companyID, &accountID, &groupAccountID); err != nil {
			return nil, err
		}
		if err := mapping.Link(companyID, accountID, groupAccountID); err != nil {
			return nil, err
		}
	}
	return mapping, links.Err()
}

func (r *PgRepository) Rates(ctx context.Context, period string) (fx.RateSet, error) {
	set := fx.RateSet{
		Quotes:     make(map[string]fx.Quote),
		Historical: make(map[int64]decimal.Decimal),
	}

	rows, err := r.pool.Query(ctx, `
		SELECT pair, closing_rate::text, average_rate::text, opening_rate::text
		FROM fx_rates
		WHERE period_code = $1`, period)
	if err != nil {
		return fx.RateSet{}, err
	}
	defer rows.Close()

	for rows.Next() {
		var quote fx.Quote
		var closing, average, opening string
		if err := rows.Scan(&quote.Pair, &closing, &average, &opening); err != nil {
			return fx.RateSet{}, err
		}
		if quote.Closing, err = decimal.NewFromString(closing); err != nil {
			return fx.RateSet{}, fmt.Errorf("consol: closing rate for %s: %w", quote.Pair, err)
		}
		if quote.Average, err = decimal.NewFromString(average); err != nil {
			return fx.RateSet{}, fmt.Errorf("consol: average rate for %s: %w", quote.Pair, err)
		}
		if quote.Opening, err = decimal.NewFromString(opening); err != nil {
			return fx.RateSet{}, fmt.Errorf("consol: opening rate for %s: %w", quote.Pair, err)
		}
		set.Quotes[strings.ToUpper(quote.Pair)] = quote
	}
	if err := rows.Err(); err != nil {
		return fx.RateSet{}, err
	}

	hist, err := r.pool.Query(ctx, `
		SELECT account_id, rate::text
		FROM fx_historical_rates`)
	if err != nil {
		return fx.RateSet{}, err
	}
	defer hist.Close()

	for hist.Next() {
		var accountID int64
		var rate string
		if err := hist.Scan(&accountID, &rate); err != nil {
			return fx.RateSet{}, err
		}
		if set.Historical[accountID], err = decimal.NewFromString(rate); err != nil {
			return fx.RateSet{}, fmt.Errorf("consol: historical rate for account %d: %w", accountID, err)
		}
	}
	return set, hist.Err()
}

func (r *PgRepository) LatestCompletedRun(ctx context.Context, groupID int64, period string) (Run, error) {
	return r.scanRun(r.pool.QueryRow(ctx, `
		SELECT payload
		FROM consolidation_runs
		WHERE group_id = $1 AND period = $2 AND status = 'COMPLETED'
		ORDER BY created_at DESC
		LIMIT 1`, groupID, period))
}

func (r *PgRepository) GetRun(ctx context.Context, id uuid.UUID) (Run, error) {
	return r.scanRun(r.pool.QueryRow(ctx, `
		SELECT payload
		FROM consolidation_runs
		WHERE id = $1`, id))
}

func (r *PgRepository) ListRuns(ctx context.Context, groupID int64, limit int) ([]Run, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT payload
		FROM consolidation_runs
		WHERE group_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, groupID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var run Run
		if err := json.Unmarshal(payload, &run); err != nil {
			return nil, fmt.Errorf("consol: decode run payload: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// SaveRun inserts a run record. The full run state travels as a JSONB
// payload next to the columns the list and conflict queries filter on.
func (r *PgRepository) SaveRun(ctx context.Context, run Run) error {
	payload, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("consol: encode run payload: %w", err)
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO consolidation_runs (id, group_id, period, status, created_by, created_at, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		run.ID, run.GroupID, run.Period, run.Status, run.CreatedBy, run.CreatedAt, payload)
	return err
}

func (r *PgRepository) UpdateRun(ctx context.Context, run Run) error {
	payload, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("consol: encode run payload: %w", err)
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE consolidation_runs
		SET status = $2, payload = $3
		WHERE id = $1`,
		run.ID, run.Status, payload)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRunNotFound
	}
	return nil
}

func (r *PgRepository) scanRun(row pgx.Row) (Run, error) {
	var payload []byte
	if err := row.Scan(&payload); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Run{}, ErrRunNotFound
		}
		return Run{}, err
	}
	var run Run
	if err := json.Unmarshal(payload, &run); err != nil {
		return Run{}, fmt.Errorf("consol: decode run payload: %w", err)
	}
	return run, nil
}
