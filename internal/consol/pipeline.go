package consol

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/atlas-ledger/atlas-ledger/internal/consol/fx"
	"github.com/atlas-ledger/atlas-ledger/internal/consol/ic"
	"github.com/atlas-ledger/atlas-ledger/internal/ledger/accounts"
	"github.com/atlas-ledger/atlas-ledger/internal/ledger/companies"
	"github.com/atlas-ledger/atlas-ledger/internal/ledger/journals"
	"github.com/atlas-ledger/atlas-ledger/internal/ledger/money"
	"github.com/atlas-ledger/atlas-ledger/internal/ledger/periods"
	"github.com/atlas-ledger/atlas-ledger/internal/reporting/aggregate"
)

// MemberData is the input snapshot for one member company.
type MemberData struct {
	Company  companies.Company
	Accounts []accounts.Account
	Entries  []journals.JournalEntry
}

// PipelineInput bundles everything one run consumes. The pipeline never
// mutates it.
type PipelineInput struct {
	Group   companies.ConsolidationGroup
	Period  periods.Period
	AsOf    time.Time
	Members map[int64]MemberData
	Mapping *Mapping
	Rates   fx.RateSet
}

// Pipeline executes the seven consolidation steps sequentially. The driver
// loop is the only mutation point for step records, so two steps can never
// be in progress at once.
type Pipeline struct {
	logger    *slog.Logger
	now       func() time.Time
	tolerance decimal.Decimal
}

// NewPipeline constructs a pipeline with the default match tolerance.
func NewPipeline(logger *slog.Logger) *Pipeline {
	return &Pipeline{
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
		tolerance: decimal.RequireFromString("0.01"),
	}
}

// WithClock overrides the clock for deterministic tests.
func (p *Pipeline) WithClock(now func() time.Time) {
	if now != nil {
		p.now = now
	}
}

type stepOutcome struct {
	skipped bool
	details string
}

type execState struct {
	in PipelineInput
	// functional holds per-member natural balances keyed by member account.
	functional map[int64]map[int64]money.Amount
	// translated holds per-member translation outcomes after step 2.
	translated map[int64]fx.Translation
	// memberGroup holds per-member natural balances keyed by group account,
	// in the group currency.
	memberGroup map[int64]map[int64]decimal.Decimal
	aggregated  map[int64]decimal.Decimal
	ctaTotal    decimal.Decimal
	match       ic.Result
	elimAdj     map[int64]decimal.Decimal
	nci         nciResult
}

// Execute drives one run through every step. Cancellation is cooperative:
// the context is checked between steps, never mid-step.
func (p *Pipeline) Execute(ctx context.Context, run *Run, in PipelineInput) error {
	st := &execState{
		in:          in,
		functional:  make(map[int64]map[int64]money.Amount),
		translated:  make(map[int64]fx.Translation),
		memberGroup: make(map[int64]map[int64]decimal.Decimal),
		aggregated:  make(map[int64]decimal.Decimal),
		elimAdj:     make(map[int64]decimal.Decimal),
	}
	started := p.now()
	run.StartedAt = &started
	run.Status = RunInProgress

	for i := range run.Steps {
		if err := ctx.Err(); err != nil {
			run.Status = RunCancelled
			run.ErrorMessage = fmt.Sprintf("cancelled before step %s", run.Steps[i].ID)
			p.log().Info("consolidation run cancelled",
				slog.String("run_id", run.ID.String()),
				slog.String("step", string(run.Steps[i].ID)))
			return err
		}

		step := &run.Steps[i]
		stepStart := p.now()
		step.Status = StepInProgress
		step.StartedAt = &stepStart

		outcome, err := p.runStep(ctx, step.ID, run, st)

		stepEnd := p.now()
		step.CompletedAt = &stepEnd
		step.Duration = stepEnd.Sub(stepStart)
		step.Details = outcome.details

		if err != nil {
			step.Status = StepFailed
			step.ErrorMessage = err.Error()
			run.Status = RunFailed
			run.ErrorMessage = fmt.Sprintf("step %s: %s", step.ID, err)
			run.CompletedAt = &stepEnd
			p.log().Error("consolidation step failed",
				slog.String("run_id", run.ID.String()),
				slog.String("step", string(step.ID)),
				slog.Any("error", err))
			return err
		}
		if outcome.skipped {
			step.Status = StepSkipped
		} else {
			step.Status = StepCompleted
		}
	}

	completed := p.now()
	run.CompletedAt = &completed
	run.Status = run.DeriveStatus()
	p.log().Info("consolidation run completed",
		slog.String("run_id", run.ID.String()),
		slog.Int64("group_id", run.GroupID),
		slog.String("period", run.Period))
	return nil
}

func (p *Pipeline) runStep(ctx context.Context, id StepID, run *Run, st *execState) (stepOutcome, error) {
	switch id {
	case StepValidate:
		return p.stepValidate(run, st)
	case StepTranslate:
		return p.stepTranslate(ctx, st)
	case StepAggregate:
		return p.stepAggregate(st)
	case StepMatchIntercompany:
		return p.stepMatchIntercompany(run, st)
	case StepEliminate:
		return p.stepEliminate(run, st)
	case StepComputeNCI:
		return p.stepComputeNCI(run, st)
	case StepGenerateTB:
		return p.stepGenerateTB(run, st)
	}
	return stepOutcome{}, fmt.Errorf("consol: unknown step %q", id)
}

// processedMembers returns the enabled full-consolidation members in
// deterministic order. Equity-method members never enter line-by-line
// aggregation.
func (st *execState) processedMembers() []companies.Member {
	members := make([]companies.Member, 0, len(st.in.Group.Members))
	for _, m := range st.in.Group.Members {
		if !m.Enabled || m.Method != companies.MethodFull {
			continue
		}
		members = append(members, m)
	}
	sort.Slice(members, func(i, j int) bool { return members[i].CompanyID < members[j].CompanyID })
	return members
}

func (st *execState) ensureFunctionalBalances() error {
	for _, member := range st.processedMembers() {
		if _, done := st.functional[member.CompanyID]; done {
			continue
		}
		data := st.in.Members[member.CompanyID]
		index := accounts.Index(data.Accounts)
		balances, err := aggregate.Balances(
			member.CompanyID,
			index,
			data.Entries,
			aggregate.AsOf(st.in.AsOf),
			data.Company.FunctionalCurrency,
		)
		if err != nil {
			return err
		}
		st.functional[member.CompanyID] = balances
	}
	return nil
}

func (st *execState) needsTranslation() bool {
	group := st.in.Group.ReportingCurrency
	for _, member := range st.processedMembers() {
		if st.in.Members[member.CompanyID].Company.FunctionalCurrency != group {
			return true
		}
	}
	return false
}

func (p *Pipeline) stepValidate(run *Run, st *execState) (stepOutcome, error) {
	if run.Options.SkipValidation {
		return stepOutcome{skipped: true, details: "validation skipped by request"}, nil
	}

	issues := make([]Issue, 0)
	group := st.in.Group
	if len(group.Members) == 0 {
		issues = append(issues, Issue{
			Severity: SeverityError, Code: "GROUP_EMPTY",
			Message: "consolidation group has no members",
			Entity:  "consolidation_group", EntityID: group.ID,
		})
	}

	for _, member := range group.Members {
		if !member.Enabled {
			continue
		}
		data, ok := st.in.Members[member.CompanyID]
		if !ok || data.Company.ID == 0 {
			issues = append(issues, Issue{
				Severity: SeverityError, Code: "MEMBER_MISSING",
				Message: "member company record not supplied",
				Entity:  "company", EntityID: member.CompanyID,
			})
			continue
		}
		if member.Method != companies.MethodFull {
			severity := SeverityError
			message := fmt.Sprintf("member uses %s consolidation; only full consolidation is supported", member.Method)
			if run.Options.IncludeEquityMethodInvestments && member.Method == companies.MethodEquity {
				severity = SeverityWarning
				message = "equity-method member excluded from line-by-line aggregation"
			}
			issues = append(issues, Issue{
				Severity: severity, Code: "MEMBER_METHOD",
				Message: message,
				Entity:  "company", EntityID: member.CompanyID,
			})
		}
		if member.Method != companies.MethodFull {
			// Excluded from line-by-line aggregation, so mapping and
			// chart completeness do not gate the run.
			continue
		}
		if len(data.Accounts) == 0 {
			issues = append(issues, Issue{
				Severity: SeverityError, Code: "CHART_EMPTY",
				Message: "member has no chart of accounts",
				Entity:  "company", EntityID: member.CompanyID,
			})
			continue
		}

		index := accounts.Index(data.Accounts)
		for _, acct := range data.Accounts {
			if _, ok := st.in.Mapping.GroupAccountFor(member.CompanyID, acct.ID); !ok {
				issues = append(issues, Issue{
					Severity: SeverityError, Code: "MAPPING_MISSING",
					Message: fmt.Sprintf("account %s has no group account mapping", acct.Code),
					Entity:  "account", EntityID: acct.ID,
				})
			}
		}
		for _, entry := range data.Entries {
			if !entry.VisibleAsOf(st.in.AsOf) {
				continue
			}
			for _, line := range entry.Lines {
				if _, ok := index[line.AccountID]; !ok {
					issues = append(issues, Issue{
						Severity: SeverityError, Code: "ORPHANED_LINE",
						Message: fmt.Sprintf("journal %d line %d references unknown account %d", entry.ID, line.ID, line.AccountID),
						Entity:  "journal_entry", EntityID: entry.ID,
					})
				}
			}
		}
	}

	if st.in.Period.Status == periods.StatusOpen {
		issues = append(issues, Issue{
			Severity: SeverityWarning, Code: "PERIOD_OPEN",
			Message: fmt.Sprintf("period %s is still open; balances may change", st.in.Period.Code),
			Entity:  "period", EntityID: st.in.Period.ID,
		})
	}

	reqs := make([]fx.Requirement, 0)
	for _, member := range st.processedMembers() {
		functional := st.in.Members[member.CompanyID].Company.FunctionalCurrency
		if functional == group.ReportingCurrency || functional == "" {
			continue
		}
		reqs = append(reqs, fx.Requirement{
			Pair:    fx.Pair(functional, group.ReportingCurrency),
			Methods: []fx.Method{fx.MethodClosing, fx.MethodAverage, fx.MethodOpening},
		})
	}
	gaps, err := fx.Validate(st.in.Rates, reqs)
	if err != nil {
		return stepOutcome{}, err
	}
	for _, gap := range gaps {
		issues = append(issues, Issue{
			Severity: SeverityError, Code: "FX_RATE_MISSING",
			Message: fmt.Sprintf("missing %v rate(s) for pair %s", gap.Methods, gap.Pair),
			Entity:  "fx_rate",
		})
	}

	result := ValidationResult{IsValid: len(issues) == 0, Issues: issues}
	run.Validation = &result
	if result.IsValid {
		return stepOutcome{details: "no issues found"}, nil
	}
	if result.WarningsOnly() && run.Options.ContinueOnWarnings {
		return stepOutcome{details: fmt.Sprintf("%d warning(s), continuing by request", len(issues))}, nil
	}
	return stepOutcome{details: fmt.Sprintf("%d issue(s) found", len(issues))}, ErrValidationFailed
}

func (p *Pipeline) stepTranslate(ctx context.Context, st *execState) (stepOutcome, error) {
	if err := st.ensureFunctionalBalances(); err != nil {
		return stepOutcome{}, err
	}
	if !st.needsTranslation() {
		return stepOutcome{skipped: true, details: "all members report in the group currency"}, nil
	}

	members := st.processedMembers()
	results := make([]fx.Translation, len(members))
	// Per-member translation is independent until the cross-member sum; run
	// it concurrently as a pure optimisation.
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, member := range members {
		i, member := i, member
		g.Go(func() error {
			data := st.in.Members[member.CompanyID]
			translation, err := fx.Translate(
				st.functional[member.CompanyID],
				accounts.Index(data.Accounts),
				data.Company.FunctionalCurrency,
				st.in.Group.ReportingCurrency,
				st.in.Rates,
			)
			if err != nil {
				return fmt.Errorf("member %d: %w", member.CompanyID, err)
			}
			results[i] = translation
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return stepOutcome{}, err
	}

	applied := 0
	for i, member := range members {
		st.translated[member.CompanyID] = results[i]
		st.ctaTotal = st.ctaTotal.Add(results[i].CTA.Value)
		if results[i].Applied {
			applied++
		}
	}
	return stepOutcome{details: fmt.Sprintf("translated %d of %d members", applied, len(members))}, nil
}

func (p *Pipeline) stepAggregate(st *execState) (stepOutcome, error) {
	if err := st.ensureFunctionalBalances(); err != nil {
		return stepOutcome{}, err
	}
	for _, member := range st.processedMembers() {
		balances := st.functional[member.CompanyID]
		if translation, ok := st.translated[member.CompanyID]; ok {
			balances = translation.Balances
		}
		perGroup := make(map[int64]decimal.Decimal)
		for accountID, balance := range balances {
			ga, ok := st.in.Mapping.GroupAccountFor(member.CompanyID, accountID)
			if !ok {
				return stepOutcome{}, fmt.Errorf("%w: company %d account %d", ErrMappingIncomplete, member.CompanyID, accountID)
			}
			perGroup[ga.ID] = perGroup[ga.ID].Add(balance.Value)
			st.aggregated[ga.ID] = st.aggregated[ga.ID].Add(balance.Value)
		}
		st.memberGroup[member.CompanyID] = perGroup
	}
	if !st.ctaTotal.IsZero() && st.in.Mapping.CTAAccountID != 0 {
		st.aggregated[st.in.Mapping.CTAAccountID] = st.aggregated[st.in.Mapping.CTAAccountID].Add(st.ctaTotal)
	}
	return stepOutcome{details: fmt.Sprintf("aggregated %d group accounts", len(st.aggregated))}, nil
}

func (p *Pipeline) stepMatchIntercompany(run *Run, st *execState) (stepOutcome, error) {
	exposures, err := st.buildExposures()
	if err != nil {
		return stepOutcome{}, err
	}
	if len(exposures) == 0 {
		return stepOutcome{skipped: true, details: "no intercompany activity"}, nil
	}
	st.match = ic.Match(exposures, p.tolerance)

	if len(st.match.Unmatched) > 0 {
		if run.Validation == nil {
			run.Validation = &ValidationResult{IsValid: true}
		}
		for _, u := range st.match.Unmatched {
			run.Validation.Issues = append(run.Validation.Issues, Issue{
				Severity: SeverityWarning, Code: "IC_UNMATCHED",
				Message: fmt.Sprintf("unmatched intercompany balance %s against partner %d", u.Amount.Round(2), u.PartnerID),
				Entity:  "company", EntityID: u.CompanyID,
			})
		}
	}
	return stepOutcome{details: fmt.Sprintf("%d pair(s) matched, %d unmatched", len(st.match.Pairs), len(st.match.Unmatched))}, nil
}

func (st *execState) buildExposures() ([]ic.Exposure, error) {
	type exposureKey struct {
		companyID      int64
		partnerID      int64
		groupAccountID int64
	}
	sums := make(map[exposureKey]decimal.Decimal)
	group := st.in.Group.ReportingCurrency

	for _, member := range st.processedMembers() {
		data := st.in.Members[member.CompanyID]
		functional := data.Company.FunctionalCurrency
		rate := decimal.NewFromInt(1)
		if functional != group {
			quote, ok := st.in.Rates.Quote(fx.Pair(functional, group))
			if !ok || !quote.Closing.IsPositive() {
				return nil, fx.MissingRateError{Pair: fx.Pair(functional, group), Method: fx.MethodClosing}
			}
			rate = quote.Closing
		}
		for _, entry := range data.Entries {
			if !entry.VisibleAsOf(st.in.AsOf) {
				continue
			}
			for _, line := range entry.Lines {
				if !line.Intercompany() {
					continue
				}
				ga, ok := st.in.Mapping.GroupAccountFor(member.CompanyID, line.AccountID)
				if !ok {
					return nil, fmt.Errorf("%w: company %d account %d", ErrMappingIncomplete, member.CompanyID, line.AccountID)
				}
				key := exposureKey{
					companyID:      member.CompanyID,
					partnerID:      *line.PartnerCompanyID,
					groupAccountID: ga.ID,
				}
				sums[key] = sums[key].Add(line.Functional.Signed().Mul(rate))
			}
		}
	}

	exposures := make([]ic.Exposure, 0, len(sums))
	for key, amount := range sums {
		exposures = append(exposures, ic.Exposure{
			CompanyID:      key.companyID,
			PartnerID:      key.partnerID,
			GroupAccountID: key.groupAccountID,
			Amount:         amount,
		})
	}
	sort.Slice(exposures, func(i, j int) bool {
		if exposures[i].CompanyID != exposures[j].CompanyID {
			return exposures[i].CompanyID < exposures[j].CompanyID
		}
		if exposures[i].PartnerID != exposures[j].PartnerID {
			return exposures[i].PartnerID < exposures[j].PartnerID
		}
		return exposures[i].GroupAccountID < exposures[j].GroupAccountID
	})
	return exposures, nil
}

func (p *Pipeline) stepEliminate(run *Run, st *execState) (stepOutcome, error) {
	if len(st.match.Pairs) == 0 {
		return stepOutcome{skipped: true, details: "no matched intercompany pairs"}, nil
	}
	entries := BuildEliminations(run.GroupID, run.Period, st.match.Pairs, p.now())
	for _, entry := range entries {
		run.Eliminations = append(run.Eliminations, entry.ID)
	}
	st.elimAdj = eliminationAdjustments(st.match.Pairs)
	return stepOutcome{details: fmt.Sprintf("generated %d elimination entr(ies)", len(entries))}, nil
}

func (p *Pipeline) stepComputeNCI(run *Run, st *execState) (stepOutcome, error) {
	partial := false
	for _, member := range st.processedMembers() {
		if !member.WhollyOwned() {
			partial = true
			break
		}
	}
	if !partial {
		return stepOutcome{skipped: true, details: "all members wholly owned"}, nil
	}

	st.nci = computeNCI(st.in.Group, st.memberGroup, st.in.Mapping)
	if len(st.nci.issues) > 0 {
		if run.Validation == nil {
			run.Validation = &ValidationResult{IsValid: true}
		}
		run.Validation.Issues = append(run.Validation.Issues, st.nci.issues...)
	}
	return stepOutcome{details: fmt.Sprintf("non-controlling interest %s", st.nci.total.Round(2))}, nil
}

func (p *Pipeline) stepGenerateTB(run *Run, st *execState) (stepOutcome, error) {
	currency := st.in.Group.ReportingCurrency
	groupAccounts := st.in.Mapping.GroupAccounts()

	touched := make(map[int64]struct{}, len(st.aggregated))
	for id := range st.aggregated {
		touched[id] = struct{}{}
	}
	for id := range st.elimAdj {
		touched[id] = struct{}{}
	}
	for id := range st.nci.adjustments {
		touched[id] = struct{}{}
	}

	ids := make([]int64, 0, len(touched))
	for id := range touched {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		gi, gj := groupAccounts[ids[i]], groupAccounts[ids[j]]
		if gi.Code != gj.Code {
			return gi.Code < gj.Code
		}
		return ids[i] < ids[j]
	})

	tb := &ConsolidatedTrialBalance{
		GroupID:           run.GroupID,
		Period:            run.Period,
		Currency:          currency,
		TotalDebits:       money.Zero(currency),
		TotalCredits:      money.Zero(currency),
		TotalEliminations: money.New(st.match.Total.Round(2), currency),
		TotalNCI:          money.New(st.nci.total.Round(2), currency),
		GeneratedAt:       p.now(),
	}

	totalDebits := decimal.Zero
	totalCredits := decimal.Zero
	for _, id := range ids {
		ga, ok := groupAccounts[id]
		if !ok {
			return stepOutcome{}, fmt.Errorf("consol: consolidated balance on unknown group account %d", id)
		}
		aggregated := st.aggregated[id]
		elimination := st.elimAdj[id]
		nci := st.nci.adjustments[id]
		consolidated := aggregated.Add(elimination).Add(nci)

		line := ConsolidatedAccount{
			GroupAccountID: id,
			Code:           ga.Code,
			Name:           ga.Name,
			Type:           ga.Type,
			Aggregated:     money.New(aggregated.Round(2), currency),
			Elimination:    money.New(elimination.Round(2), currency),
			NCI:            money.New(nci.Round(2), currency),
			Consolidated:   money.New(consolidated.Round(2), currency),
		}
		for _, member := range st.processedMembers() {
			if share, ok := st.memberGroup[member.CompanyID][id]; ok && !share.IsZero() {
				line.Members = append(line.Members, MemberShare{
					CompanyID:   member.CompanyID,
					CompanyName: member.CompanyName,
					Amount:      money.New(share.Round(2), currency),
				})
			}
		}
		tb.Lines = append(tb.Lines, line)

		// Natural-positive balances land on the account's normal side.
		rounded := consolidated.Round(2)
		debitSide := ga.NormalBalance == accounts.NormalDebit
		if rounded.IsNegative() {
			rounded = rounded.Neg()
			debitSide = !debitSide
		}
		if debitSide {
			totalDebits = totalDebits.Add(rounded)
		} else {
			totalCredits = totalCredits.Add(rounded)
		}
	}

	tb.TotalDebits = money.New(totalDebits, currency)
	tb.TotalCredits = money.New(totalCredits, currency)
	tb.IsBalanced = totalDebits.Equal(totalCredits)
	run.TrialBalance = tb
	return stepOutcome{details: fmt.Sprintf("%d consolidated account(s)", len(tb.Lines))}, nil
}

func (p *Pipeline) log() *slog.Logger {
	if p != nil && p.logger != nil {
		return p.logger.With(slog.String("component", "consol_pipeline"))
	}
	return slog.Default().With(slog.String("component", "consol_pipeline"))
}
