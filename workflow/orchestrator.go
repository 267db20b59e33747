package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/oleodata/cco_backend/config"
	"github.com/oleodata/cco_backend/models"
	"github.com/oleodata/cco_backend/utils"
)

const orchestratorModule = "workflow/orchestrator.go"

const applyLockTTL = 30 * time.Second

// Orchestrator drives a correction session from analysis to apply,
// enforcing the status transitions along the way.
type Orchestrator struct {
	entities EntityRepository
	rates    RateRepository
	sessions SessionStore
	analyzer *GapAnalyzer
	engine   *CorrectionEngine
	locker   ApplyLocker
	logger   *logrus.Logger
	validate *validator.Validate
	now      func() time.Time
}

func NewOrchestrator(entities EntityRepository, rates RateRepository, sessions SessionStore, locker ApplyLocker, logger *logrus.Logger) *Orchestrator {
	return &Orchestrator{
		entities: entities,
		rates:    rates,
		sessions: sessions,
		analyzer: NewGapAnalyzer(rates, logger),
		engine:   NewCorrectionEngine(entities, rates, logger),
		locker:   locker,
		logger:   logger,
		validate: validator.New(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

type startAnalysisInput struct {
	CCOID  string `validate:"required"`
	UserID string `validate:"required"`
}

// AnalysisSummary is what StartAnalysis reports back.
type AnalysisSummary struct {
	SessionID        string               `json:"sessionId"`
	CCOID            string               `json:"ccoId"`
	Status           models.SessionStatus `json:"status"`
	ScenarioDetected models.Scenario      `json:"scenarioDetected"`
	GapsFound        int                  `json:"gapsFound"`
	ForaPeriodoFound int                  `json:"correcoesForaPeriodo"`
	DuplicatasFound  int                  `json:"duplicatasEncontradas"`
	CurrentValue     decimal.Decimal      `json:"valorAtual"`
	NextStep         string               `json:"nextStep"`
}

// ProposalsResult is what GenerateProposals reports back.
type ProposalsResult struct {
	SessionID       string                      `json:"sessionId"`
	Status          models.SessionStatus        `json:"status"`
	Scenario        models.Scenario             `json:"scenario"`
	Proposals       []models.CorrectionProposal `json:"proposals"`
	FinancialImpact models.FinancialImpact      `json:"financialImpact"`
	Validation      *ValidationReport           `json:"validation"`
}

// FinalPreview summarizes the approved subset of a session.
type FinalPreview struct {
	ApprovedCount int             `json:"approvedCount"`
	TotalImpact   decimal.Decimal `json:"totalImpact"`
	CurrentValue  decimal.Decimal `json:"currentValue"`
	FinalValue    decimal.Decimal `json:"finalValue"`
}

// ApprovalResult is what ApproveCorrections reports back.
type ApprovalResult struct {
	SessionID string               `json:"sessionId"`
	Status    models.SessionStatus `json:"status"`
	Preview   FinalPreview         `json:"preview"`
}

// ApplyOutcome is what ApplyCorrections reports back.
type ApplyOutcome struct {
	SessionID string               `json:"sessionId"`
	Status    models.SessionStatus `json:"status"`
	Result    *ApplyResult         `json:"result"`
}

// StartAnalysis loads the account, runs the analyzer and opens a
// session in ANALYZING with the detected scenario.
func (o *Orchestrator) StartAnalysis(ctx context.Context, ccoID, userID string) (*AnalysisSummary, error) {
	if err := o.validate.Struct(startAnalysisInput{CCOID: ccoID, UserID: userID}); err != nil {
		return nil, utils.NewValidationError("invalid analysis request: %v", err)
	}

	cco, err := o.entities.FindByID(ctx, ccoID)
	if err != nil {
		config.LogError(o.logger, orchestratorModule, "StartAnalysis", "loading account",
			map[string]interface{}{"ccoId": ccoID}, err)
		return nil, err
	}

	now := o.now()
	result := o.analyzer.Analyze(ctx, cco, now)
	scenario := classifyScenario(cco, result)

	session := &models.CorrectionSession{
		SessionID:        uuid.NewString(),
		CCOID:            ccoID,
		UserID:           userID,
		Status:           models.StatusAnalyzing,
		ScenarioDetected: scenario,
		Gaps:             result.Gaps,
		ForaPeriodo:      result.ForaPeriodo,
		Duplicatas:       result.Duplicatas,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := o.sessions.Save(ctx, session); err != nil {
		return nil, err
	}

	config.LogInfo(o.logger, orchestratorModule, "StartAnalysis", "analysis complete", map[string]interface{}{
		"sessionId": session.SessionID,
		"ccoId":     ccoID,
		"cenario":   scenario,
		"gaps":      len(result.Gaps),
	})
	return &AnalysisSummary{
		SessionID:        session.SessionID,
		CCOID:            ccoID,
		Status:           session.Status,
		ScenarioDetected: scenario,
		GapsFound:        len(result.Gaps),
		ForaPeriodoFound: len(result.ForaPeriodo),
		DuplicatasFound:  len(result.Duplicatas),
		CurrentValue:     cco.CurrentValue(),
		NextStep:         "gerar_propostas_correcao",
	}, nil
}

// classifyScenario maps the findings onto the correction scenarios, in
// priority order. Duplicates always win: removing them first changes
// every later calculation.
func classifyScenario(cco *models.CCO, result models.AnalysisResult) models.Scenario {
	hasGaps := len(result.Gaps) > 0
	hasFora := len(result.ForaPeriodo) > 0
	hasRecovery := cco.HasRecovery()
	hasPosteriors := hasIndexAfterEarliestGap(cco, result.Gaps)

	switch {
	case len(result.Duplicatas) > 0:
		return models.ScenarioDuplicatas
	case hasGaps && !hasFora && !hasRecovery && !hasPosteriors:
		return models.ScenarioZero
	case hasGaps && (hasFora || hasPosteriors) && !hasRecovery:
		return models.ScenarioOne
	case (hasGaps || hasFora) && hasRecovery:
		return models.ScenarioTwo
	case hasFora && !hasGaps && !hasRecovery:
		return models.ScenarioForaApenas
	default:
		return models.ScenarioComplexo
	}
}

func hasIndexAfterEarliestGap(cco *models.CCO, gaps []models.Gap) bool {
	if len(gaps) == 0 {
		return false
	}
	earliest := utils.PeriodDate(gaps[0].Ano, gaps[0].Mes, 1)
	for _, g := range gaps[1:] {
		if d := utils.PeriodDate(g.Ano, g.Mes, 1); d.Before(earliest) {
			earliest = d
		}
	}
	for i := range cco.CorrecoesMonetarias {
		entry := &cco.CorrecoesMonetarias[i]
		if entry.Tipo.IsIndex() && entry.EffectiveDate().After(earliest) {
			return true
		}
	}
	return false
}

// GenerateProposals prices the corrections for the detected scenario
// and moves the session to PREVIEW. Scenarios without automatic
// proposals still reach PREVIEW, with an empty batch, so the findings
// can be reviewed.
func (o *Orchestrator) GenerateProposals(ctx context.Context, sessionID string) (*ProposalsResult, error) {
	session, err := o.sessions.FindByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !session.Status.CanTransitionTo(models.StatusPreview) {
		return nil, utils.NewValidationError("session %s is %s, proposals require ANALYZING", sessionID, session.Status)
	}

	cco, err := o.entities.FindByID(ctx, session.CCOID)
	if err != nil {
		return nil, err
	}

	var proposals []models.CorrectionProposal
	switch session.ScenarioDetected {
	case models.ScenarioZero:
		proposals = o.engine.CalculateScenario0(ctx, cco, session.Gaps)
	case models.ScenarioOne:
		proposals = o.engine.CalculateScenario1(ctx, cco, session.Gaps, session.ForaPeriodo)
	case models.ScenarioTwo:
		proposals = o.engine.CalculateScenario2(ctx, cco, session.Gaps, session.ForaPeriodo)
	case models.ScenarioDuplicatas:
		proposals = o.engine.CalculateDuplicates(ctx, cco, session.Duplicatas)
	default:
		config.LogInfo(o.logger, orchestratorModule, "GenerateProposals", "scenario reviewed manually",
			map[string]interface{}{"sessionId": sessionID, "cenario": session.ScenarioDetected})
	}

	report := ValidateProposals(proposals)
	for _, msg := range report.Errors {
		config.LogWarn(o.logger, orchestratorModule, "GenerateProposals", "proposal validation error",
			map[string]interface{}{"sessionId": sessionID}, msg)
	}

	session.Proposals = proposals
	session.FinancialImpact = financialImpact(proposals)
	session.Status = models.StatusPreview
	session.UpdatedAt = o.now()
	if err := o.sessions.Save(ctx, session); err != nil {
		return nil, err
	}

	return &ProposalsResult{
		SessionID:       sessionID,
		Status:          session.Status,
		Scenario:        session.ScenarioDetected,
		Proposals:       proposals,
		FinancialImpact: session.FinancialImpact,
		Validation:      report,
	}, nil
}

func financialImpact(proposals []models.CorrectionProposal) models.FinancialImpact {
	impact := models.FinancialImpact{
		TotalImpact:    decimal.Zero,
		TotalAdditions: decimal.Zero,
		TotalUpdates:   decimal.Zero,
		TotalRemovals:  decimal.Zero,
		ProposalsCount: len(proposals),
	}
	for _, p := range proposals {
		switch p.Type {
		case models.ProposalIPCAAddition:
			impact.TotalAdditions = impact.TotalAdditions.Add(p.Impact)
		case models.ProposalIPCAUpdate:
			impact.TotalUpdates = impact.TotalUpdates.Add(p.Impact)
		case models.ProposalDuplicataAdjustment:
			impact.TotalRemovals = impact.TotalRemovals.Add(p.ProposedValue)
		}
	}
	impact.TotalImpact = impact.TotalAdditions.Add(impact.TotalUpdates).Add(impact.TotalRemovals)
	return impact
}

// ApproveCorrections records which proposals the user accepted and
// moves the session to APPROVED. Unknown ids reject the whole call
// without touching the session.
func (o *Orchestrator) ApproveCorrections(ctx context.Context, sessionID string, approvedIDs []string) (*ApprovalResult, error) {
	session, err := o.sessions.FindByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !session.Status.CanTransitionTo(models.StatusApproved) {
		return nil, utils.NewValidationError("session %s is %s, approval requires PREVIEW", sessionID, session.Status)
	}

	var unknown []string
	for _, id := range approvedIDs {
		if session.ProposalByID(id) == nil {
			unknown = append(unknown, id)
		}
	}
	if len(unknown) > 0 {
		return nil, utils.NewValidationError("unknown proposal ids: %v", unknown)
	}

	session.ApprovedIDs = approvedIDs
	session.Status = models.StatusApproved
	session.UpdatedAt = o.now()
	if err := o.sessions.Save(ctx, session); err != nil {
		return nil, err
	}

	cco, err := o.entities.FindByID(ctx, session.CCOID)
	if err != nil {
		return nil, err
	}
	return &ApprovalResult{
		SessionID: sessionID,
		Status:    session.Status,
		Preview:   finalPreview(cco, session.ApprovedProposals()),
	}, nil
}

// finalPreview totals the approved impact. Once a compensation is in
// the batch it already carries the cascaded gap money, so only
// compensations count; summing the gaps too would double the total.
func finalPreview(cco *models.CCO, approved []models.CorrectionProposal) FinalPreview {
	total := decimal.Zero
	hasCompensation := false
	for _, p := range approved {
		if p.Type == models.ProposalCompensation {
			hasCompensation = true
			break
		}
	}
	for _, p := range approved {
		if hasCompensation {
			if p.Type == models.ProposalCompensation {
				total = total.Add(p.Impact)
			}
			continue
		}
		if p.Type == models.ProposalIPCAAddition || p.Type == models.ProposalIPCAUpdate {
			total = total.Add(p.Impact)
		}
	}
	current := cco.CurrentValue()
	return FinalPreview{
		ApprovedCount: len(approved),
		TotalImpact:   total,
		CurrentValue:  current,
		FinalValue:    current.Add(total),
	}
}

// RejectCorrections closes the session without applying anything.
func (o *Orchestrator) RejectCorrections(ctx context.Context, sessionID string) (*models.CorrectionSession, error) {
	session, err := o.sessions.FindByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !session.Status.CanTransitionTo(models.StatusRejected) {
		return nil, utils.NewValidationError("session %s is %s and cannot be rejected", sessionID, session.Status)
	}
	session.Status = models.StatusRejected
	session.UpdatedAt = o.now()
	if err := o.sessions.Save(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// ApplyCorrections persists the approved proposals into the corrected
// snapshot, serialized per account. A failed apply parks the session in
// ERROR with the cause recorded; the call can be repeated once the
// cause is fixed.
func (o *Orchestrator) ApplyCorrections(ctx context.Context, sessionID string) (*ApplyOutcome, error) {
	session, err := o.sessions.FindByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !session.Status.CanTransitionTo(models.StatusApplied) {
		return nil, utils.NewValidationError("session %s is %s, apply requires APPROVED or ERROR", sessionID, session.Status)
	}

	if o.locker != nil {
		lock, err := o.locker.Obtain(ctx, "correcao:apply:"+session.CCOID, applyLockTTL, nil)
		if err != nil {
			config.LogError(o.logger, orchestratorModule, "ApplyCorrections", "obtaining apply lock",
				map[string]interface{}{"ccoId": session.CCOID}, err)
			return nil, fmt.Errorf("account %s is being corrected by another operation: %w", session.CCOID, err)
		}
		defer func() {
			if releaseErr := lock.Release(context.Background()); releaseErr != nil && !errors.Is(releaseErr, context.Canceled) {
				config.LogWarn(o.logger, orchestratorModule, "ApplyCorrections", "releasing apply lock",
					map[string]interface{}{"ccoId": session.CCOID}, releaseErr.Error())
			}
		}()
	}

	result, applyErr := o.dispatchApply(ctx, session)
	now := o.now()
	if applyErr != nil {
		session.Status = models.StatusError
		session.ErrorMessage = applyErr.Error()
		session.UpdatedAt = now
		if saveErr := o.sessions.Save(ctx, session); saveErr != nil {
			config.LogError(o.logger, orchestratorModule, "ApplyCorrections", "saving failed session",
				map[string]interface{}{"sessionId": sessionID}, saveErr)
		}
		return nil, applyErr
	}

	session.Status = models.StatusApplied
	session.ErrorMessage = ""
	session.AppliedAt = &now
	session.UpdatedAt = now
	if err := o.sessions.Save(ctx, session); err != nil {
		return nil, err
	}

	config.LogInfo(o.logger, orchestratorModule, "ApplyCorrections", "corrections applied", map[string]interface{}{
		"sessionId":  sessionID,
		"ccoId":      session.CCOID,
		"inserted":   result.EntriesInserted,
		"updated":    result.EntriesUpdated,
		"removed":    result.EntriesRemoved,
		"finalValue": result.FinalValue,
	})
	return &ApplyOutcome{SessionID: sessionID, Status: session.Status, Result: result}, nil
}

func (o *Orchestrator) dispatchApply(ctx context.Context, session *models.CorrectionSession) (*ApplyResult, error) {
	approved := session.ApprovedProposals()
	if len(approved) == 0 {
		return nil, utils.NewValidationError("session %s has no approved proposals", session.SessionID)
	}

	switch session.ScenarioDetected {
	case models.ScenarioZero, models.ScenarioOne:
		cco, err := o.entities.FindByID(ctx, session.CCOID)
		if err != nil {
			return nil, err
		}
		return o.engine.ApplyGapCorrections(ctx, cco, approved)
	case models.ScenarioTwo:
		cco, err := o.entities.FindByID(ctx, session.CCOID)
		if err != nil {
			return nil, err
		}
		return o.engine.ApplyRecoveryCorrections(ctx, cco, approved)
	case models.ScenarioDuplicatas:
		cco, err := o.entities.FindByID(ctx, session.CCOID)
		if err != nil {
			return nil, err
		}
		return o.engine.ApplyDuplicateCorrections(ctx, cco, approved)
	case models.ScenarioIPCAVigente:
		cco, err := o.loadCorrected(ctx, session.CCOID)
		if err != nil {
			return nil, err
		}
		return o.engine.ApplyCurrentYearCorrection(ctx, cco, approved)
	default:
		return nil, utils.NewValidationError("scenario %s has no automatic apply", session.ScenarioDetected)
	}
}

// loadCorrected prefers the corrected snapshot and falls back to the
// original document when no correction was ever applied.
func (o *Orchestrator) loadCorrected(ctx context.Context, ccoID string) (*models.CCO, error) {
	cco, err := o.entities.FindCorrectedByID(ctx, ccoID)
	if err == nil {
		return cco, nil
	}
	if errors.Is(err, utils.ErrorRecordNotFound) {
		return o.entities.FindByID(ctx, ccoID)
	}
	return nil, err
}

// GetSessionStatus returns the session as stored.
func (o *Orchestrator) GetSessionStatus(ctx context.Context, sessionID string) (*models.CorrectionSession, error) {
	return o.sessions.FindByID(ctx, sessionID)
}
