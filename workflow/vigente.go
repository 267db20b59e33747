package workflow

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/oleodata/cco_backend/config"
	"github.com/oleodata/cco_backend/models"
	"github.com/oleodata/cco_backend/utils"
)

const vigenteModule = "workflow/vigente.go"

// VigenteResult is the outcome of the standing current-year index
// check for one account.
type VigenteResult struct {
	CCOID      string                    `json:"ccoId"`
	Applicable bool                      `json:"applicable"`
	Reason     string                    `json:"reason,omitempty"`
	Periodo    string                    `json:"periodo,omitempty"`
	Session    *models.CorrectionSession `json:"session,omitempty"`
}

// EvaluateCurrentYearIndex checks whether the account's current-year
// index correction is due and, when it is, opens a session already in
// PREVIEW with the addition priced. The anniversary month is the month
// after recognition; a December recognition rolls over to January.
func (o *Orchestrator) EvaluateCurrentYearIndex(ctx context.Context, ccoID, userID string) (*VigenteResult, error) {
	if err := o.validate.Struct(startAnalysisInput{CCOID: ccoID, UserID: userID}); err != nil {
		return nil, utils.NewValidationError("invalid evaluation request: %v", err)
	}

	cco, err := o.loadCorrected(ctx, ccoID)
	if err != nil {
		return nil, err
	}
	if cco.DataReconhecimento.IsZero() {
		return nil, utils.NewValidationError("account %s has no recognition date", ccoID)
	}

	notApplicable := func(reason string) *VigenteResult {
		config.LogInfo(o.logger, vigenteModule, "EvaluateCurrentYearIndex", "correction not applicable",
			map[string]interface{}{"ccoId": ccoID, "motivo": reason})
		return &VigenteResult{CCOID: ccoID, Applicable: false, Reason: reason}
	}

	current := cco.CurrentValue()
	if current.Sign() <= 0 {
		return notApplicable("saldo atual não positivo"), nil
	}

	now := o.now()
	params := config.GetCorrectionParams()

	year := now.Year()
	month := int(cco.DataReconhecimento.Month()) + 1
	if month > 12 {
		month = 1
	}
	period := utils.PeriodKey(year, month)

	anniversary := utils.PeriodDate(year, month, params.VigenteCutoffDay)
	if now.Before(anniversary) {
		return notApplicable(fmt.Sprintf("aniversário %s ainda não alcançado", anniversary.Format("02/01/2006"))), nil
	}
	if cco.IndexCorrectionAt(year, month) != nil {
		return notApplicable(fmt.Sprintf("correção de %s já aplicada", period)), nil
	}

	rateYear, rateMonth := utils.ShiftPeriod(year, month, params.RateMonthOffset)
	rate, err := o.rates.GetRate(ctx, rateYear, rateMonth, models.EntryTypeIPCA)
	if err != nil {
		return notApplicable(fmt.Sprintf("taxa IPCA não encontrada para %s", utils.PeriodKey(rateYear, rateMonth))), nil
	}

	proposals := o.currentYearProposals(cco, current, rate, year, month, rateYear, rateMonth)
	session := &models.CorrectionSession{
		SessionID:        uuid.NewString(),
		CCOID:            ccoID,
		UserID:           userID,
		Status:           models.StatusPreview,
		ScenarioDetected: models.ScenarioIPCAVigente,
		Proposals:        proposals,
		FinancialImpact:  financialImpact(proposals),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := o.sessions.Save(ctx, session); err != nil {
		return nil, err
	}

	config.LogInfo(o.logger, vigenteModule, "EvaluateCurrentYearIndex", "current-year correction proposed",
		map[string]interface{}{"ccoId": ccoID, "sessionId": session.SessionID, "periodo": period})
	return &VigenteResult{CCOID: ccoID, Applicable: true, Periodo: period, Session: session}, nil
}

// currentYearProposals prices the addition and, when the history ends
// in a rectification dated after the anniversary day, a date change
// that keeps the new index entry ordered after it.
func (o *Orchestrator) currentYearProposals(cco *models.CCO, current, rate decimal.Decimal, year, month, rateYear, rateMonth int) []models.CorrectionProposal {
	period := utils.PeriodKey(year, month)
	proposed := current.Mul(rate)

	proposals := []models.CorrectionProposal{{
		CorrectionID:  uuid.NewString(),
		Type:          models.ProposalIPCAAddition,
		Scenario:      models.ScenarioIPCAVigente,
		TargetDate:    utils.PeriodDate(year, month, 16),
		TargetPeriod:  period,
		CurrentValue:  current,
		ProposedValue: proposed,
		Impact:        proposed.Sub(current),
		RateApplied:   rate,
		RatePeriod:    utils.PeriodKey(rateYear, rateMonth),
		Description:   fmt.Sprintf("Correção IPCA vigente para %s", period),
		BusinessRules: []string{"IPCA_VIGENTE"},
	}}

	if n := len(cco.CorrecoesMonetarias); n > 0 {
		last := cco.CorrecoesMonetarias[n-1]
		if last.Tipo == models.EntryTypeRetificacao {
			proposals = append(proposals, models.CorrectionProposal{
				CorrectionID:  uuid.NewString(),
				Type:          models.ProposalCorrectionDateChange,
				Scenario:      models.ScenarioIPCAVigente,
				TargetDate:    utils.PeriodDate(year, month, 15),
				TargetPeriod:  "CHANGE_ORDER",
				RateApplied:   decimal.NewFromInt(1),
				Description:   fmt.Sprintf("Ajuste de data da retificação para antes da correção de %s", period),
				BusinessRules: []string{"IPCA_VIGENTE"},
			})
		}
	}
	return proposals
}
