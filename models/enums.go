package models

// CorrectionEntryType classifies an entry of a cost account's monetary
// correction history.
type CorrectionEntryType string

const (
	EntryTypeIPCA               CorrectionEntryType = "IPCA"
	EntryTypeIGPM               CorrectionEntryType = "IGPM"
	EntryTypeRetificacao        CorrectionEntryType = "RETIFICACAO"
	EntryTypeRecuperacao        CorrectionEntryType = "RECUPERACAO"
	EntryTypeInvalidacaoParcial CorrectionEntryType = "INVALIDACAO_RECONHECIMENTO_PARCIAL"
	EntryTypeCompensacao        CorrectionEntryType = "COMPENSACAO"
	EntryTypeReativacao         CorrectionEntryType = "REATIVACAO"
)

// IsIndex reports whether the entry multiplies the balance by a
// published monthly index.
func (t CorrectionEntryType) IsIndex() bool {
	return t == EntryTypeIPCA || t == EntryTypeIGPM
}

// ProposalType is the kind of change a correction proposal asks for.
type ProposalType string

const (
	ProposalIPCAAddition         ProposalType = "IPCA_ADDITION"
	ProposalIPCAUpdate           ProposalType = "IPCA_UPDATE"
	ProposalCompensation         ProposalType = "COMPENSATION"
	ProposalReactivation         ProposalType = "REACTIVATION"
	ProposalDuplicataRemoval     ProposalType = "DUPLICATA_REMOVAL"
	ProposalDuplicataAdjustment  ProposalType = "DUPLICATA_ADJUSTMENT"
	ProposalCorrectionDateChange ProposalType = "CORRECTION_DATE_CHANGE"
)

// SessionStatus is the lifecycle state of a correction session.
type SessionStatus string

const (
	StatusAnalyzing SessionStatus = "ANALYZING"
	StatusPreview   SessionStatus = "PREVIEW"
	StatusApproved  SessionStatus = "APPROVED"
	StatusApplied   SessionStatus = "APPLIED"
	StatusRejected  SessionStatus = "REJECTED"
	StatusError     SessionStatus = "ERROR"
)

// CanTransitionTo enforces the session state machine. APPLIED and
// REJECTED are terminal. ERROR is not: the failure is recorded on the
// session and the apply can be re-invoked once the cause is fixed.
func (s SessionStatus) CanTransitionTo(next SessionStatus) bool {
	if next == StatusError {
		return s != StatusApplied && s != StatusRejected
	}
	switch s {
	case StatusAnalyzing:
		return next == StatusPreview
	case StatusPreview:
		return next == StatusApproved || next == StatusRejected
	case StatusApproved:
		return next == StatusApplied || next == StatusRejected
	case StatusError:
		return next == StatusApplied
	default:
		return false
	}
}

// IsTerminal reports whether no further transition is possible.
func (s SessionStatus) IsTerminal() bool {
	return s == StatusApplied || s == StatusRejected
}

// Scenario labels the correction pattern detected for an account.
type Scenario string

const (
	ScenarioZero        Scenario = "CENARIO_0"
	ScenarioOne         Scenario = "CENARIO_1"
	ScenarioTwo         Scenario = "CENARIO_2"
	ScenarioDuplicatas  Scenario = "CENARIO_DUPLICATAS"
	ScenarioForaApenas  Scenario = "CENARIO_CORRECAO_FORA_APENAS"
	ScenarioComplexo    Scenario = "CENARIO_COMPLEXO"
	ScenarioIPCAVigente Scenario = "CENARIO_IPCA_VIGENTE"
)

// SupportsAutomaticProposals reports whether the engine generates
// proposals for the scenario, as opposed to report-only findings.
func (s Scenario) SupportsAutomaticProposals() bool {
	switch s {
	case ScenarioZero, ScenarioOne, ScenarioTwo, ScenarioDuplicatas, ScenarioIPCAVigente:
		return true
	}
	return false
}

// GapPriority ranks how urgent a missing correction is.
type GapPriority string

const (
	PriorityAlta  GapPriority = "ALTA"
	PriorityMedia GapPriority = "MEDIA"
	PriorityBaixa GapPriority = "BAIXA"
)
