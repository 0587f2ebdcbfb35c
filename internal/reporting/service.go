package reporting

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/atlas-ledger/atlas-ledger/internal/ledger/accounts"
	"github.com/atlas-ledger/atlas-ledger/internal/ledger/companies"
	"github.com/atlas-ledger/atlas-ledger/internal/ledger/journals"
	"github.com/atlas-ledger/atlas-ledger/internal/ledger/periods"
)

// Repository loads the report input snapshot for one company.
type Repository interface {
	GetCompany(ctx context.Context, companyID int64) (companies.Company, error)
	Accounts(ctx context.Context, companyID int64) ([]accounts.Account, error)
	Entries(ctx context.Context, companyID int64, asOf time.Time) ([]journals.JournalEntry, error)
	FindPeriod(ctx context.Context, companyID int64, code string) (periods.Period, error)
}

// Service builds reports over repository snapshots. Identical concurrent
// snapshot loads are collapsed through singleflight because report pages are
// commonly opened side by side for the same company and date.
type Service struct {
	repo   Repository
	logger *slog.Logger
	sf     singleflight.Group
}

// NewService wires a reporting service.
func NewService(repo Repository, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

func (s *Service) loadInputs(ctx context.Context, companyID int64, asOf time.Time) (Inputs, error) {
	key := fmt.Sprintf("inputs:%d:%d", companyID, asOf.Unix())
	v, err, shared := s.sf.Do(key, func() (any, error) {
		company, err := s.repo.GetCompany(ctx, companyID)
		if err != nil {
			return Inputs{}, err
		}
		chart, err := s.repo.Accounts(ctx, companyID)
		if err != nil {
			return Inputs{}, err
		}
		entries, err := s.repo.Entries(ctx, companyID, asOf)
		if err != nil {
			return Inputs{}, err
		}
		return Inputs{Company: company, Accounts: chart, Entries: entries}, nil
	})
	if err != nil {
		return Inputs{}, err
	}
	if shared {
		s.log().Debug("report snapshot load shared",
			slog.Int64("company_id", companyID), slog.Time("as_of", asOf))
	}
	return v.(Inputs), nil
}

// TrialBalance builds the company trial balance as of a date.
func (s *Service) TrialBalance(ctx context.Context, companyID int64, asOf time.Time, opts Options) (TrialBalance, error) {
	in, err := s.loadInputs(ctx, companyID, asOf)
	if err != nil {
		return TrialBalance{}, err
	}
	return BuildTrialBalance(in, asOf, opts)
}

// BalanceSheet builds the company balance sheet, optionally with a
// comparative column at an earlier date.
func (s *Service) BalanceSheet(ctx context.Context, companyID int64, asOf time.Time, comparative *time.Time, opts Options) (BalanceSheet, error) {
	in, err := s.loadInputs(ctx, companyID, asOf)
	if err != nil {
		return BalanceSheet{}, err
	}
	return BuildBalanceSheet(in, asOf, comparative, opts)
}

// IncomeStatement builds the income statement over an explicit window.
func (s *Service) IncomeStatement(ctx context.Context, companyID int64, start, end time.Time, opts Options) (IncomeStatement, error) {
	in, err := s.loadInputs(ctx, companyID, end)
	if err != nil {
		return IncomeStatement{}, err
	}
	return BuildIncomeStatement(in, start, end, opts)
}

// IncomeStatementForPeriod builds the income statement for a fiscal period
// resolved by code.
func (s *Service) IncomeStatementForPeriod(ctx context.Context, companyID int64, code string, opts Options) (IncomeStatement, error) {
	period, err := s.repo.FindPeriod(ctx, companyID, code)
	if err != nil {
		return IncomeStatement{}, err
	}
	return s.IncomeStatement(ctx, companyID, period.StartDate, period.EndDate, opts)
}

// CashFlowStatement derives the cash flow statement over an explicit window.
func (s *Service) CashFlowStatement(ctx context.Context, companyID int64, start, end time.Time, opts Options) (CashFlowStatement, error) {
	in, err := s.loadInputs(ctx, companyID, end)
	if err != nil {
		return CashFlowStatement{}, err
	}
	return BuildCashFlowStatement(in, start, end, opts)
}

// CashFlowForPeriod derives the cash flow statement for a fiscal period
// resolved by code.
func (s *Service) CashFlowForPeriod(ctx context.Context, companyID int64, code string, opts Options) (CashFlowStatement, error) {
	period, err := s.repo.FindPeriod(ctx, companyID, code)
	if err != nil {
		return CashFlowStatement{}, err
	}
	return s.CashFlowStatement(ctx, companyID, period.StartDate, period.EndDate, opts)
}

func (s *Service) log() *slog.Logger {
	if s.logger != nil {
		return s.logger.With(slog.String("component", "reporting_service"))
	}
	return slog.Default().With(slog.String("component", "reporting_service"))
}
