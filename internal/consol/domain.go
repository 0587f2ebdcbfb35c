// Package consol implements the group consolidation pipeline: translation,
// aggregation, intercompany matching, elimination, non-controlling interest,
// and the consolidated trial balance.
package consol

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/atlas-ledger/atlas-ledger/internal/ledger/accounts"
	"github.com/atlas-ledger/atlas-ledger/internal/ledger/money"
)

// RunStatus captures the lifecycle of a consolidation run.
type RunStatus string

const (
	RunPending    RunStatus = "PENDING"
	RunInProgress RunStatus = "IN_PROGRESS"
	RunCompleted  RunStatus = "COMPLETED"
	RunFailed     RunStatus = "FAILED"
	RunCancelled  RunStatus = "CANCELLED"
)

// StepStatus captures the lifecycle of one pipeline step.
type StepStatus string

const (
	StepPending    StepStatus = "PENDING"
	StepInProgress StepStatus = "IN_PROGRESS"
	StepCompleted  StepStatus = "COMPLETED"
	StepFailed     StepStatus = "FAILED"
	StepSkipped    StepStatus = "SKIPPED"
)

// StepID identifies one of the seven ordered pipeline stages.
type StepID string

const (
	StepValidate          StepID = "VALIDATE"
	StepTranslate         StepID = "TRANSLATE"
	StepAggregate         StepID = "AGGREGATE"
	StepMatchIntercompany StepID = "MATCH_INTERCOMPANY"
	StepEliminate         StepID = "ELIMINATE"
	StepComputeNCI        StepID = "COMPUTE_NCI"
	StepGenerateTB        StepID = "GENERATE_TRIAL_BALANCE"
)

// StepOrder fixes the execution sequence. No step begins before its
// predecessor reaches Completed or Skipped.
var StepOrder = []StepID{
	StepValidate,
	StepTranslate,
	StepAggregate,
	StepMatchIntercompany,
	StepEliminate,
	StepComputeNCI,
	StepGenerateTB,
}

// Step is the append-only audit record of one pipeline stage.
type Step struct {
	ID           StepID
	Status       StepStatus
	StartedAt    *time.Time
	CompletedAt  *time.Time
	Duration     time.Duration
	ErrorMessage string
	Details      string
}

// Severity grades a validation issue.
type Severity string

const (
	SeverityError   Severity = "ERROR"
	SeverityWarning Severity = "WARNING"
)

// Issue is one validation finding with enough context to locate the record.
type Issue struct {
	Severity Severity
	Code     string
	Message  string
	Entity   string
	EntityID int64
}

// ValidationResult aggregates every data problem found before a run, so an
// accountant sees them all in one pass instead of fixing one per attempt.
type ValidationResult struct {
	IsValid bool
	Issues  []Issue
}

// WarningsOnly reports whether no issue is error-severity.
func (v ValidationResult) WarningsOnly() bool {
	for _, issue := range v.Issues {
		if issue.Severity == SeverityError {
			return false
		}
	}
	return true
}

// Options tune a single consolidation run.
type Options struct {
	SkipValidation                 bool
	ContinueOnWarnings             bool
	IncludeEquityMethodInvestments bool
	ForceRegeneration              bool
}

// Run is the append-only audit record of one pipeline execution. It is
// owned by the pipeline driver; report generators never mutate it.
type Run struct {
	ID           uuid.UUID
	GroupID      int64
	Period       string
	AsOf         time.Time
	Status       RunStatus
	Steps        []Step
	Validation   *ValidationResult
	TrialBalance *ConsolidatedTrialBalance
	Eliminations []uuid.UUID
	Options      Options
	ErrorMessage string
	CreatedBy    int64
	CreatedAt    time.Time
	StartedAt    *time.Time
	CompletedAt  *time.Time
}

// NewRun seeds a pending run with every step pending.
func NewRun(groupID int64, period string, asOf time.Time, opts Options, actorID int64, now time.Time) Run {
	steps := make([]Step, len(StepOrder))
	for i, id := range StepOrder {
		steps[i] = Step{ID: id, Status: StepPending}
	}
	return Run{
		ID:        uuid.New(),
		GroupID:   groupID,
		Period:    period,
		AsOf:      asOf,
		Status:    RunPending,
		Steps:     steps,
		Options:   opts,
		CreatedBy: actorID,
		CreatedAt: now,
	}
}

// StepIndex locates a step record by identity.
func (r Run) StepIndex(id StepID) int {
	for i, step := range r.Steps {
		if step.ID == id {
			return i
		}
	}
	return -1
}

// DeriveStatus computes the run status from its step records: failed if any
// step failed, in progress while any step runs, completed only when every
// step is completed or skipped.
func (r Run) DeriveStatus() RunStatus {
	if r.Status == RunCancelled {
		return RunCancelled
	}
	sawPending := false
	for _, step := range r.Steps {
		switch step.Status {
		case StepFailed:
			return RunFailed
		case StepInProgress:
			return RunInProgress
		case StepPending:
			sawPending = true
		}
	}
	if sawPending {
		if r.StartedAt != nil {
			return RunInProgress
		}
		return RunPending
	}
	return RunCompleted
}

// GroupAccount is one node of the shared group chart of accounts that
// member accounts map onto.
type GroupAccount struct {
	ID            int64
	Code          string
	Name          string
	Type          accounts.AccountType
	NormalBalance accounts.NormalBalance
}

// Mapping links member company accounts to group accounts. Accounts are
// matched through this mapping, never by assuming identical identities
// across companies.
type Mapping struct {
	accounts map[int64]GroupAccount
	members  map[memberAccountKey]int64
	// RetainedEarningsID designates the group account absorbing the
	// parent-side offset of the NCI income share.
	RetainedEarningsID int64
	// NCIAccountID designates the equity account presenting the
	// non-controlling interest line.
	NCIAccountID int64
	// CTAAccountID designates the equity account absorbing the cumulative
	// translation adjustment. Zero leaves CTA out of the aggregation, which
	// unbalances the trial balance for translated groups.
	CTAAccountID int64
}

type memberAccountKey struct {
	companyID int64
	accountID int64
}

// NewMapping builds a mapping from the group chart and member links.
func NewMapping(groupAccounts []GroupAccount, retainedEarningsID, nciAccountID int64) *Mapping {
	m := &Mapping{
		accounts:           make(map[int64]GroupAccount, len(groupAccounts)),
		members:            make(map[memberAccountKey]int64),
		RetainedEarningsID: retainedEarningsID,
		NCIAccountID:       nciAccountID,
	}
	for _, ga := range groupAccounts {
		m.accounts[ga.ID] = ga
	}
	return m
}

// WithCTAAccount designates the translation adjustment account.
func (m *Mapping) WithCTAAccount(groupAccountID int64) *Mapping {
	m.CTAAccountID = groupAccountID
	return m
}

// Link registers a member account against a group account.
func (m *Mapping) Link(companyID, accountID, groupAccountID int64) error {
	if _, ok := m.accounts[groupAccountID]; !ok {
		return fmt.Errorf("consol: link to unknown group account %d", groupAccountID)
	}
	m.members[memberAccountKey{companyID: companyID, accountID: accountID}] = groupAccountID
	return nil
}

// GroupAccountFor resolves a member account to its group account.
func (m *Mapping) GroupAccountFor(companyID, accountID int64) (GroupAccount, bool) {
	id, ok := m.members[memberAccountKey{companyID: companyID, accountID: accountID}]
	if !ok {
		return GroupAccount{}, false
	}
	ga, ok := m.accounts[id]
	return ga, ok
}

// GroupAccounts returns the group chart indexed by identity.
func (m *Mapping) GroupAccounts() map[int64]GroupAccount {
	return m.accounts
}

// MemberShare records one member's contribution to a consolidated line.
type MemberShare struct {
	CompanyID   int64
	CompanyName string
	Amount      money.Amount
}

// ConsolidatedAccount is the final per-account view of the consolidated
// trial balance: aggregated post-translation, netted by eliminations and
// NCI, summing to the consolidated amount.
type ConsolidatedAccount struct {
	GroupAccountID int64
	Code           string
	Name           string
	Type           accounts.AccountType
	Aggregated     money.Amount
	Elimination    money.Amount
	NCI            money.Amount
	Consolidated   money.Amount
	Members        []MemberShare
}

// ConsolidatedTrialBalance is the pipeline's resulting artifact.
type ConsolidatedTrialBalance struct {
	GroupID           int64
	Period            string
	Currency          string
	Lines             []ConsolidatedAccount
	TotalDebits       money.Amount
	TotalCredits      money.Amount
	TotalEliminations money.Amount
	TotalNCI          money.Amount
	IsBalanced        bool
	GeneratedAt       time.Time
}

var (
	// ErrRunConflict indicates a completed run already exists for the
	// group and period and ForceRegeneration was not requested.
	ErrRunConflict = errors.New("consol: completed run already exists for period")
	// ErrRunNotFound indicates the requested run does not exist.
	ErrRunNotFound = errors.New("consol: run not found")
	// ErrGroupNotFound indicates the consolidation group does not exist.
	ErrGroupNotFound = errors.New("consol: group not found")
	// ErrValidationFailed indicates blocking validation issues stopped the
	// run before translation.
	ErrValidationFailed = errors.New("consol: validation failed")
	// ErrMappingIncomplete indicates a member account without a group
	// account mapping.
	ErrMappingIncomplete = errors.New("consol: account mapping incomplete")
)
