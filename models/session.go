package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CascadeStep records one multiplication of a value being re-propagated
// through the rates that followed it.
type CascadeStep struct {
	Periodo     string          `json:"periodo"`
	Taxa        decimal.Decimal `json:"taxa"`
	ValorAntes  decimal.Decimal `json:"valorAntes"`
	ValorDepois decimal.Decimal `json:"valorDepois"`
	Incremento  decimal.Decimal `json:"incremento"`
}

// CorrectionProposal is one concrete change offered for approval.
type CorrectionProposal struct {
	CorrectionID  string          `json:"correctionId"`
	Type          ProposalType    `json:"type"`
	Scenario      Scenario        `json:"scenario"`
	TargetDate    time.Time       `json:"targetDate,omitempty"`
	TargetPeriod  string          `json:"targetPeriod,omitempty"`
	CurrentValue  decimal.Decimal `json:"currentValue"`
	ProposedValue decimal.Decimal `json:"proposedValue"`
	Impact        decimal.Decimal `json:"impact"`
	RateApplied   decimal.Decimal `json:"rateApplied"`
	RatePeriod    string          `json:"ratePeriod,omitempty"`
	Description   string          `json:"description"`
	Dependencies  []string        `json:"dependencies,omitempty"`
	BusinessRules []string        `json:"businessRulesApplied,omitempty"`
	RemoveIndex   *int            `json:"removeIndex,omitempty"`
	CascadeSteps  []CascadeStep   `json:"cascadeSteps,omitempty"`
	Unresolvable  bool            `json:"unresolvable,omitempty"`
	ErrorReason   string          `json:"errorReason,omitempty"`
}

// FinancialImpact summarizes the money a proposal set moves.
type FinancialImpact struct {
	TotalImpact    decimal.Decimal `json:"totalImpact"`
	TotalAdditions decimal.Decimal `json:"totalAdditions"`
	TotalUpdates   decimal.Decimal `json:"totalUpdates"`
	TotalRemovals  decimal.Decimal `json:"totalRemovals"`
	ProposalsCount int             `json:"proposalsCount"`
}

// CorrectionSession is the audit trail of one reconciliation: findings,
// proposals, approvals and outcome.
type CorrectionSession struct {
	SessionID        string                  `json:"sessionId"`
	CCOID            string                  `json:"ccoId"`
	UserID           string                  `json:"userId"`
	Status           SessionStatus           `json:"status"`
	ScenarioDetected Scenario                `json:"scenarioDetected"`
	Gaps             []Gap                   `json:"gapsIdentified"`
	ForaPeriodo      []OutOfPeriodCorrection `json:"correcoesForaPeriodo"`
	Duplicatas       []DuplicateCorrection   `json:"duplicatasEncontradas"`
	Proposals        []CorrectionProposal    `json:"correcoesPropostas"`
	ApprovedIDs      []string                `json:"correcoesAprovadas"`
	FinancialImpact  FinancialImpact         `json:"impactoFinanceiro"`
	CreatedAt        time.Time               `json:"createdAt"`
	UpdatedAt        time.Time               `json:"updatedAt"`
	AppliedAt        *time.Time              `json:"appliedAt,omitempty"`
	ErrorMessage     string                  `json:"errorMessage,omitempty"`
}

// ProposalByID returns the proposal with the given id, or nil.
func (s *CorrectionSession) ProposalByID(id string) *CorrectionProposal {
	for i := range s.Proposals {
		if s.Proposals[i].CorrectionID == id {
			return &s.Proposals[i]
		}
	}
	return nil
}

// ApprovedProposals resolves the approved ids back to proposals,
// preserving proposal order.
func (s *CorrectionSession) ApprovedProposals() []CorrectionProposal {
	approved := make(map[string]bool, len(s.ApprovedIDs))
	for _, id := range s.ApprovedIDs {
		approved[id] = true
	}
	var out []CorrectionProposal
	for _, p := range s.Proposals {
		if approved[p.CorrectionID] {
			out = append(out, p)
		}
	}
	return out
}
