package consol

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/atlas-ledger/atlas-ledger/internal/consol/fx"
	"github.com/atlas-ledger/atlas-ledger/internal/ledger/accounts"
	"github.com/atlas-ledger/atlas-ledger/internal/ledger/companies"
	"github.com/atlas-ledger/atlas-ledger/internal/ledger/journals"
	"github.com/atlas-ledger/atlas-ledger/internal/ledger/periods"
)

// ErrRunLocked indicates another run for the same group and period is
// executing right now.
var ErrRunLocked = errors.New("consol: run already in progress for group and period")

// Repository loads consolidation inputs and persists run records.
type Repository interface {
	GetGroup(ctx context.Context, groupID int64) (companies.ConsolidationGroup, error)
	GetCompany(ctx context.Context, companyID int64) (companies.Company, error)
	FindPeriod(ctx context.Context, code string) (periods.Period, error)
	MemberAccounts(ctx context.Context, companyID int64) ([]accounts.Account, error)
	MemberEntries(ctx context.Context, companyID int64, asOf time.Time) ([]journals.JournalEntry, error)
	GroupMapping(ctx context.Context, groupID int64) (*Mapping, error)
	Rates(ctx context.Context, period string) (fx.RateSet, error)
	LatestCompletedRun(ctx context.Context, groupID int64, period string) (Run, error)
	GetRun(ctx context.Context, id uuid.UUID) (Run, error)
	ListRuns(ctx context.Context, groupID int64, limit int) ([]Run, error)
	SaveRun(ctx context.Context, run Run) error
	UpdateRun(ctx context.Context, run Run) error
}

// RunLocker serialises runs per group and period across processes.
type RunLocker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// LockKey builds the distributed lock key for one group and period.
func LockKey(groupID int64, period string) string {
	return fmt.Sprintf("consol:run:%d:%s", groupID, period)
}

// Service exposes consolidation runs to the transport and job layers.
type Service struct {
	repo     Repository
	locker   RunLocker
	pipeline *Pipeline
	logger   *slog.Logger
	lockTTL  time.Duration
	now      func() time.Time
}

// NewService wires a consolidation service.
func NewService(repo Repository, locker RunLocker, pipeline *Pipeline, logger *slog.Logger) *Service {
	return &Service{
		repo:     repo,
		locker:   locker,
		pipeline: pipeline,
		logger:   logger,
		lockTTL:  10 * time.Minute,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithLockTTL overrides how long the run lock is held at most.
func (s *Service) WithLockTTL(ttl time.Duration) *Service {
	if ttl > 0 {
		s.lockTTL = ttl
	}
	return s
}

// WithClock overrides the clock for deterministic tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

// StartRun executes a consolidation run synchronously and returns the final
// run record. A completed run for the same group and period blocks a new one
// unless ForceRegeneration is set; a concurrently executing run always does.
// Pipeline failures are recorded on the run and returned as the error.
func (s *Service) StartRun(ctx context.Context, groupID int64, periodCode string, opts Options, actorID int64) (Run, error) {
	group, err := s.repo.GetGroup(ctx, groupID)
	if err != nil {
		return Run{}, err
	}
	period, err := s.repo.FindPeriod(ctx, periodCode)
	if err != nil {
		return Run{}, err
	}

	if !opts.ForceRegeneration {
		if _, err := s.repo.LatestCompletedRun(ctx, groupID, period.Code); err == nil {
			return Run{}, fmt.Errorf("%w: group %d period %s", ErrRunConflict, groupID, period.Code)
		} else if !errors.Is(err, ErrRunNotFound) {
			return Run{}, err
		}
	}

	key := LockKey(groupID, period.Code)
	acquired, err := s.locker.Acquire(ctx, key, s.lockTTL)
	if err != nil {
		return Run{}, fmt.Errorf("consol: acquire run lock: %w", err)
	}
	if !acquired {
		return Run{}, fmt.Errorf("%w: group %d period %s", ErrRunLocked, groupID, period.Code)
	}
	defer func() {
		if err := s.locker.Release(context.WithoutCancel(ctx), key); err != nil {
			s.log().Warn("failed to release run lock",
				slog.String("key", key), slog.Any("error", err))
		}
	}()

	input, err := s.loadInput(ctx, group, period)
	if err != nil {
		return Run{}, err
	}

	run := NewRun(groupID, period.Code, input.AsOf, opts, actorID, s.now())
	if err := s.repo.SaveRun(ctx, run); err != nil {
		return Run{}, fmt.Errorf("consol: save run: %w", err)
	}

	execErr := s.pipeline.Execute(ctx, &run, input)
	if err := s.repo.UpdateRun(context.WithoutCancel(ctx), run); err != nil {
		s.log().Error("failed to persist run state",
			slog.String("run_id", run.ID.String()), slog.Any("error", err))
		if execErr == nil {
			execErr = fmt.Errorf("consol: update run: %w", err)
		}
	}
	return run, execErr
}

func (s *Service) loadInput(ctx context.Context, group companies.ConsolidationGroup, period periods.Period) (PipelineInput, error) {
	mapping, err := s.repo.GroupMapping(ctx, group.ID)
	if err != nil {
		return PipelineInput{}, err
	}
	rates, err := s.repo.Rates(ctx, period.Code)
	if err != nil {
		return PipelineInput{}, err
	}

	asOf := period.EndDate
	members := make(map[int64]MemberData, len(group.Members))
	for _, member := range group.Members {
		if !member.Enabled {
			continue
		}
		company, err := s.repo.GetCompany(ctx, member.CompanyID)
		if err != nil {
			return PipelineInput{}, fmt.Errorf("consol: member company %d: %w", member.CompanyID, err)
		}
		chart, err := s.repo.MemberAccounts(ctx, member.CompanyID)
		if err != nil {
			return PipelineInput{}, fmt.Errorf("consol: member %d accounts: %w", member.CompanyID, err)
		}
		entries, err := s.repo.MemberEntries(ctx, member.CompanyID, asOf)
		if err != nil {
			return PipelineInput{}, fmt.Errorf("consol: member %d entries: %w", member.CompanyID, err)
		}
		members[member.CompanyID] = MemberData{Company: company, Accounts: chart, Entries: entries}
	}

	return PipelineInput{
		Group:   group,
		Period:  period,
		AsOf:    asOf,
		Members: members,
		Mapping: mapping,
		Rates:   rates,
	}, nil
}

// GetRun returns one run record by identity.
func (s *Service) GetRun(ctx context.Context, id uuid.UUID) (Run, error) {
	return s.repo.GetRun(ctx, id)
}

// ListRuns returns the most recent runs for a group, newest first.
func (s *Service) ListRuns(ctx context.Context, groupID int64, limit int) ([]Run, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.repo.ListRuns(ctx, groupID, limit)
}

// GetTrialBalance returns the consolidated trial balance of a completed run.
func (s *Service) GetTrialBalance(ctx context.Context, runID uuid.UUID) (*ConsolidatedTrialBalance, error) {
	run, err := s.repo.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.TrialBalance == nil {
		return nil, fmt.Errorf("consol: run %s has no trial balance (status %s)", runID, run.Status)
	}
	return run.TrialBalance, nil
}

func (s *Service) log() *slog.Logger {
	if s.logger != nil {
		return s.logger.With(slog.String("component", "consol_service"))
	}
	return slog.Default().With(slog.String("component", "consol_service"))
}
