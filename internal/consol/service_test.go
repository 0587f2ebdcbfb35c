package consol

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/atlas-ledger/atlas-ledger/internal/consol/fx"
	"github.com/atlas-ledger/atlas-ledger/internal/ledger/accounts"
	"github.com/atlas-ledger/atlas-ledger/internal/ledger/companies"
	"github.com/atlas-ledger/atlas-ledger/internal/ledger/journals"
	"github.com/atlas-ledger/atlas-ledger/internal/ledger/periods"
)

type mockRepository struct {
	mock.Mock
}

func (m *mockRepository) GetGroup(ctx context.Context, groupID int64) (companies.ConsolidationGroup, error) {
	args := m.Called(ctx, groupID)
	return args.Get(0).(companies.ConsolidationGroup), args.Error(1)
}

func (m *mockRepository) GetCompany(ctx context.Context, companyID int64) (companies.Company, error) {
	args := m.Called(ctx, companyID)
	return args.Get(0).(companies.Company), args.Error(1)
}

func (m *mockRepository) FindPeriod(ctx context.Context, code string) (periods.Period, error) {
	args := m.Called(ctx, code)
	return args.Get(0).(periods.Period), args.Error(1)
}

func (m *mockRepository) MemberAccounts(ctx context.Context, companyID int64) ([]accounts.Account, error) {
	args := m.Called(ctx, companyID)
	return args.Get(0).([]accounts.Account), args.Error(1)
}

func (m *mockRepository) MemberEntries(ctx context.Context, companyID int64, asOf time.Time) ([]journals.JournalEntry, error) {
	args := m.Called(ctx, companyID, asOf)
	return args.Get(0).([]journals.JournalEntry), args.Error(1)
}

func (m *mockRepository) GroupMapping(ctx context.Context, groupID int64) (*Mapping, error) {
	args := m.Called(ctx, groupID)
	return args.Get(0).(*Mapping), args.Error(1)
}

func (m *mockRepository) Rates(ctx context.Context, period string) (fx.RateSet, error) {
	args := m.Called(ctx, period)
	return args.Get(0).(fx.RateSet), args.Error(1)
}

func (m *mockRepository) LatestCompletedRun(ctx context.Context, groupID int64, period string) (Run, error) {
	args := m.Called(ctx, groupID, period)
	return args.Get(0).(Run), args.Error(1)
}

func (m *mockRepository) GetRun(ctx context.Context, id uuid.UUID) (Run, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(Run), args.Error(1)
}

func (m *mockRepository) ListRuns(ctx context.Context, groupID int64, limit int) ([]Run, error) {
	args := m.Called(ctx, groupID, limit)
	return args.Get(0).([]Run), args.Error(1)
}

func (m *mockRepository) SaveRun(ctx context.Context, run Run) error {
	return m.Called(ctx, run).Error(0)
}

func (m *mockRepository) UpdateRun(ctx context.Context, run Run) error {
	return m.Called(ctx, run).Error(0)
}

type mockLocker struct {
	mock.Mock
}

func (m *mockLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	args := m.Called(ctx, key, ttl)
	return args.Bool(0), args.Error(1)
}

func (m *mockLocker) Release(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}

// expectFixtureLoad arms the repository with the standard two-member group.
func expectFixtureLoad(t *testing.T, repo *mockRepository, in PipelineInput) {
	t.Helper()
	repo.On("GetGroup", mock.Anything, int64(1)).Return(in.Group, nil)
	repo.On("FindPeriod", mock.Anything, "2025-03").Return(in.Period, nil)
	repo.On("GroupMapping", mock.Anything, int64(1)).Return(in.Mapping, nil)
	repo.On("Rates", mock.Anything, "2025-03").Return(in.Rates, nil)
	for id, data := range in.Members {
		repo.On("GetCompany", mock.Anything, id).Return(data.Company, nil)
		repo.On("MemberAccounts", mock.Anything, id).Return(data.Accounts, nil)
		repo.On("MemberEntries", mock.Anything, id, in.Period.EndDate).Return(data.Entries, nil)
	}
}

func TestStartRunConflictWithoutForce(t *testing.T) {
	repo := new(mockRepository)
	locker := new(mockLocker)
	in := twoMemberInput(t)

	repo.On("GetGroup", mock.Anything, int64(1)).Return(in.Group, nil)
	repo.On("FindPeriod", mock.Anything, "2025-03").Return(in.Period, nil)
	existing := NewRun(1, "2025-03", asOf, Options{}, 42, fixture)
	existing.Status = RunCompleted
	repo.On("LatestCompletedRun", mock.Anything, int64(1), "2025-03").Return(existing, nil)

	svc := NewService(repo, locker, newTestPipeline(), nil)
	_, err := svc.StartRun(context.Background(), 1, "2025-03", Options{}, 42)
	require.ErrorIs(t, err, ErrRunConflict)
	locker.AssertNotCalled(t, "Acquire", mock.Anything, mock.Anything, mock.Anything)
}

func TestStartRunForceRegenerationBypassesConflict(t *testing.T) {
	repo := new(mockRepository)
	locker := new(mockLocker)
	in := twoMemberInput(t)

	expectFixtureLoad(t, repo, in)
	repo.On("SaveRun", mock.Anything, mock.Anything).Return(nil)
	repo.On("UpdateRun", mock.Anything, mock.Anything).Return(nil)
	locker.On("Acquire", mock.Anything, LockKey(1, "2025-03"), mock.Anything).Return(true, nil)
	locker.On("Release", mock.Anything, LockKey(1, "2025-03")).Return(nil)

	svc := NewService(repo, locker, newTestPipeline(), nil)
	run, err := svc.StartRun(context.Background(), 1, "2025-03", Options{ForceRegeneration: true}, 42)
	require.NoError(t, err)
	require.Equal(t, RunCompleted, run.Status)
	require.NotNil(t, run.TrialBalance)
	// The conflict probe is skipped entirely under force.
	repo.AssertNotCalled(t, "LatestCompletedRun", mock.Anything, mock.Anything, mock.Anything)
	repo.AssertExpectations(t)
	locker.AssertExpectations(t)
}

func TestStartRunBlockedByLock(t *testing.T) {
	repo := new(mockRepository)
	locker := new(mockLocker)
	in := twoMemberInput(t)

	repo.On("GetGroup", mock.Anything, int64(1)).Return(in.Group, nil)
	repo.On("FindPeriod", mock.Anything, "2025-03").Return(in.Period, nil)
	repo.On("LatestCompletedRun", mock.Anything, int64(1), "2025-03").Return(Run{}, ErrRunNotFound)
	locker.On("Acquire", mock.Anything, LockKey(1, "2025-03"), mock.Anything).Return(false, nil)

	svc := NewService(repo, locker, newTestPipeline(), nil)
	_, err := svc.StartRun(context.Background(), 1, "2025-03", Options{}, 42)
	require.ErrorIs(t, err, ErrRunLocked)
	repo.AssertNotCalled(t, "SaveRun", mock.Anything, mock.Anything)
}

func TestStartRunPersistsFailedRun(t *testing.T) {
	repo := new(mockRepository)
	locker := new(mockLocker)
	in := twoMemberInput(t)
	// Break the mapping so the validation step fails the run.
	broken := NewMapping(groupChart(), gaRE, gaNCI)
	linkMember(t, broken, 1)
	in.Mapping = broken

	expectFixtureLoad(t, repo, in)
	repo.On("LatestCompletedRun", mock.Anything, int64(1), "2025-03").Return(Run{}, ErrRunNotFound)
	repo.On("SaveRun", mock.Anything, mock.Anything).Return(nil)
	var persisted Run
	repo.On("UpdateRun", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		persisted = args.Get(1).(Run)
	}).Return(nil)
	locker.On("Acquire", mock.Anything, mock.Anything, mock.Anything).Return(true, nil)
	locker.On("Release", mock.Anything, mock.Anything).Return(nil)

	svc := NewService(repo, locker, newTestPipeline(), nil)
	run, err := svc.StartRun(context.Background(), 1, "2025-03", Options{}, 42)
	require.ErrorIs(t, err, ErrValidationFailed)
	require.Equal(t, RunFailed, run.Status)
	require.Equal(t, RunFailed, persisted.Status)
	locker.AssertExpectations(t)
}

func TestGetTrialBalanceRequiresCompletedRun(t *testing.T) {
	repo := new(mockRepository)
	run := NewRun(1, "2025-03", asOf, Options{}, 42, fixture)
	repo.On("GetRun", mock.Anything, run.ID).Return(run, nil)

	svc := NewService(repo, new(mockLocker), newTestPipeline(), nil)
	_, err := svc.GetTrialBalance(context.Background(), run.ID)
	require.Error(t, err)
}

func TestListRunsClampsLimit(t *testing.T) {
	repo := new(mockRepository)
	repo.On("ListRuns", mock.Anything, int64(1), 20).Return([]Run{}, nil)

	svc := NewService(repo, new(mockLocker), newTestPipeline(), nil)
	_, err := svc.ListRuns(context.Background(), 1, -5)
	require.NoError(t, err)
	repo.AssertExpectations(t)
}

func TestGetRunPassthrough(t *testing.T) {
	repo := new(mockRepository)
	id := uuid.New()
	repo.On("GetRun", mock.Anything, id).Return(Run{}, ErrRunNotFound)

	svc := NewService(repo, new(mockLocker), newTestPipeline(), nil)
	_, err := svc.GetRun(context.Background(), id)
	require.True(t, errors.Is(err, ErrRunNotFound))
}
