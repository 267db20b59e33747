package workflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/oleodata/cco_backend/models"
	"github.com/oleodata/cco_backend/utils"
)

func newTestOrchestrator(entities EntityRepository, rates RateRepository, sessions SessionStore, now time.Time) *Orchestrator {
	orch := NewOrchestrator(entities, rates, sessions, nil, testLogger())
	orch.now = func() time.Time { return now }
	orch.engine.now = orch.now
	return orch
}

func TestClassifyScenario(t *testing.T) {
	gap := models.Gap{Ano: 2023, Mes: 9, ValorBase: money("1000")}
	fora := models.OutOfPeriodCorrection{AnoAplicado: 2024, MesAplicado: 11}
	dup := models.DuplicateCorrection{Indice: 1, Ano: 2023, Mes: 9}

	plain := testCCO("c", date(2022, 8, 10), "1000")
	recovered := testCCO("c", date(2022, 8, 10), "1000",
		recoveryCorrection(date(2024, 3, 10), "1000", "0"))
	withPosterior := testCCO("c", date(2022, 8, 10), "1000",
		indexCorrection(date(2024, 11, 10), "1000", "1040", "1.04"))
	recoveredWithPosterior := testCCO("c", date(2022, 8, 10), "1000",
		indexCorrection(date(2024, 11, 10), "1000", "1040", "1.04"),
		recoveryCorrection(date(2024, 12, 10), "1040", "0"))

	gaps := []models.Gap{gap}
	foras := []models.OutOfPeriodCorrection{fora}
	dups := []models.DuplicateCorrection{dup}

	cases := []struct {
		name   string
		cco    *models.CCO
		result models.AnalysisResult
		want   models.Scenario
	}{
		{"nothing detected", plain, models.AnalysisResult{}, models.ScenarioComplexo},
		{"nothing detected on recovered account", recovered, models.AnalysisResult{}, models.ScenarioComplexo},
		{"out-of-period only", plain, models.AnalysisResult{ForaPeriodo: foras}, models.ScenarioForaApenas},
		{"out-of-period with recovery", recovered, models.AnalysisResult{ForaPeriodo: foras}, models.ScenarioTwo},
		{"gaps only", plain, models.AnalysisResult{Gaps: gaps}, models.ScenarioZero},
		{"gaps with posterior correction", withPosterior, models.AnalysisResult{Gaps: gaps}, models.ScenarioOne},
		{"gaps with recovery", recovered, models.AnalysisResult{Gaps: gaps}, models.ScenarioTwo},
		{"gaps with posterior and recovery", recoveredWithPosterior, models.AnalysisResult{Gaps: gaps}, models.ScenarioTwo},
		{"gaps with out-of-period", plain, models.AnalysisResult{Gaps: gaps, ForaPeriodo: foras}, models.ScenarioOne},
		{"gaps with out-of-period and posterior", withPosterior, models.AnalysisResult{Gaps: gaps, ForaPeriodo: foras}, models.ScenarioOne},
		{"gaps with out-of-period and recovery", recovered, models.AnalysisResult{Gaps: gaps, ForaPeriodo: foras}, models.ScenarioTwo},
		{"everything but duplicates", recoveredWithPosterior, models.AnalysisResult{Gaps: gaps, ForaPeriodo: foras}, models.ScenarioTwo},
		{"duplicates only", plain, models.AnalysisResult{Duplicatas: dups}, models.ScenarioDuplicatas},
		{"duplicates win over gaps", plain, models.AnalysisResult{Gaps: gaps, Duplicatas: dups}, models.ScenarioDuplicatas},
		{"duplicates win over out-of-period with recovery", recovered, models.AnalysisResult{ForaPeriodo: foras, Duplicatas: dups}, models.ScenarioDuplicatas},
		{"duplicates win over every other finding", recoveredWithPosterior, models.AnalysisResult{Gaps: gaps, ForaPeriodo: foras, Duplicatas: dups}, models.ScenarioDuplicatas},
	}
	for _, c := range cases {
		if got := classifyScenario(c.cco, c.result); got != c.want {
			t.Errorf("%s: classified %s, want %s", c.name, got, c.want)
		}
	}
}

func TestSessionFlowScenario0(t *testing.T) {
	cco := testCCO("cco-1", date(2022, 8, 10), "1000000")
	entities := newFakeEntityRepo(cco)
	rates := newFakeRateRepo().set(2023, 8, "1.045").set(2024, 8, "1.04")
	sessions := newFakeSessionStore()
	orch := newTestOrchestrator(entities, rates, sessions, date(2025, 1, 10))
	ctx := context.Background()

	summary, err := orch.StartAnalysis(ctx, "cco-1", "maria")
	if err != nil {
		t.Fatalf("StartAnalysis: %v", err)
	}
	if summary.Status != models.StatusAnalyzing {
		t.Errorf("status after analysis = %s, want ANALYZING", summary.Status)
	}
	if summary.ScenarioDetected != models.ScenarioZero {
		t.Errorf("scenario = %s, want CENARIO_0", summary.ScenarioDetected)
	}
	if summary.GapsFound != 2 {
		t.Errorf("gaps found = %d, want 2", summary.GapsFound)
	}
	if summary.NextStep != "gerar_propostas_correcao" {
		t.Errorf("next step = %q", summary.NextStep)
	}

	proposals, err := orch.GenerateProposals(ctx, summary.SessionID)
	if err != nil {
		t.Fatalf("GenerateProposals: %v", err)
	}
	if proposals.Status != models.StatusPreview {
		t.Errorf("status after proposals = %s, want PREVIEW", proposals.Status)
	}
	if len(proposals.Proposals) != 2 {
		t.Fatalf("proposals = %d, want 2", len(proposals.Proposals))
	}
	if !proposals.Validation.Valid {
		t.Errorf("validation errors: %v", proposals.Validation.Errors)
	}

	ids := []string{proposals.Proposals[0].CorrectionID, proposals.Proposals[1].CorrectionID}
	approval, err := orch.ApproveCorrections(ctx, summary.SessionID, ids)
	if err != nil {
		t.Fatalf("ApproveCorrections: %v", err)
	}
	if approval.Status != models.StatusApproved {
		t.Errorf("status after approval = %s, want APPROVED", approval.Status)
	}
	wantTotal := proposals.Proposals[0].Impact.Add(proposals.Proposals[1].Impact)
	if !approval.Preview.TotalImpact.Equal(wantTotal) {
		t.Errorf("preview total = %s, want %s", approval.Preview.TotalImpact, wantTotal)
	}

	outcome, err := orch.ApplyCorrections(ctx, summary.SessionID)
	if err != nil {
		t.Fatalf("ApplyCorrections: %v", err)
	}
	if outcome.Status != models.StatusApplied {
		t.Errorf("status after apply = %s, want APPLIED", outcome.Status)
	}
	if outcome.Result.EntriesInserted != 2 {
		t.Errorf("entries inserted = %d, want 2", outcome.Result.EntriesInserted)
	}

	stored, err := orch.GetSessionStatus(ctx, summary.SessionID)
	if err != nil {
		t.Fatalf("GetSessionStatus: %v", err)
	}
	if stored.AppliedAt == nil {
		t.Error("applied session without AppliedAt")
	}
	if entities.corrected["cco-1"] == nil {
		t.Error("corrected snapshot not persisted")
	}
}

func TestGenerateProposalsRequiresAnalyzingStatus(t *testing.T) {
	sessions := newFakeSessionStore()
	sessions.sessions["s1"] = models.CorrectionSession{SessionID: "s1", CCOID: "cco-1", Status: models.StatusPreview}
	orch := newTestOrchestrator(newFakeEntityRepo(), newFakeRateRepo(), sessions, date(2025, 1, 10))

	_, err := orch.GenerateProposals(context.Background(), "s1")
	if !utils.IsValidationError(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestApproveRejectsUnknownIDsWithoutMutation(t *testing.T) {
	sessions := newFakeSessionStore()
	sessions.sessions["s1"] = models.CorrectionSession{
		SessionID: "s1",
		CCOID:     "cco-1",
		Status:    models.StatusPreview,
		Proposals: []models.CorrectionProposal{{CorrectionID: "p1"}},
	}
	orch := newTestOrchestrator(newFakeEntityRepo(), newFakeRateRepo(), sessions, date(2025, 1, 10))

	_, err := orch.ApproveCorrections(context.Background(), "s1", []string{"p1", "ghost"})
	if !utils.IsValidationError(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if sessions.sessions["s1"].Status != models.StatusPreview {
		t.Error("failed approval must leave the session untouched")
	}
}

func TestRejectCorrections(t *testing.T) {
	sessions := newFakeSessionStore()
	sessions.sessions["s1"] = models.CorrectionSession{SessionID: "s1", Status: models.StatusPreview}
	orch := newTestOrchestrator(newFakeEntityRepo(), newFakeRateRepo(), sessions, date(2025, 1, 10))

	session, err := orch.RejectCorrections(context.Background(), "s1")
	if err != nil {
		t.Fatalf("RejectCorrections: %v", err)
	}
	if session.Status != models.StatusRejected {
		t.Errorf("status = %s, want REJECTED", session.Status)
	}

	if _, err := orch.RejectCorrections(context.Background(), "s1"); !utils.IsValidationError(err) {
		t.Fatalf("rejecting a rejected session must fail, got %v", err)
	}
}

func TestApplyFailureParksSessionInError(t *testing.T) {
	cco := testCCO("cco-1", date(2022, 8, 10), "1000000")
	entities := newFakeEntityRepo(cco)
	entities.saveErr = errors.New("mongo unavailable")
	rates := newFakeRateRepo().set(2023, 8, "1.045").set(2024, 8, "1.04")
	sessions := newFakeSessionStore()
	orch := newTestOrchestrator(entities, rates, sessions, date(2025, 1, 10))
	ctx := context.Background()

	summary, err := orch.StartAnalysis(ctx, "cco-1", "maria")
	if err != nil {
		t.Fatalf("StartAnalysis: %v", err)
	}
	proposals, err := orch.GenerateProposals(ctx, summary.SessionID)
	if err != nil {
		t.Fatalf("GenerateProposals: %v", err)
	}
	ids := make([]string, 0, len(proposals.Proposals))
	for _, p := range proposals.Proposals {
		ids = append(ids, p.CorrectionID)
	}
	if _, err := orch.ApproveCorrections(ctx, summary.SessionID, ids); err != nil {
		t.Fatalf("ApproveCorrections: %v", err)
	}

	if _, err := orch.ApplyCorrections(ctx, summary.SessionID); err == nil {
		t.Fatal("expected apply to fail")
	}
	stored := sessions.sessions[summary.SessionID]
	if stored.Status != models.StatusError {
		t.Errorf("status = %s, want ERROR", stored.Status)
	}
	if stored.ErrorMessage == "" {
		t.Error("failed session without error message")
	}
}

func TestApplyCanBeRetriedAfterFailure(t *testing.T) {
	cco := testCCO("cco-1", date(2022, 8, 10), "1000000")
	entities := newFakeEntityRepo(cco)
	entities.saveErr = errors.New("mongo unavailable")
	rates := newFakeRateRepo().set(2023, 8, "1.045").set(2024, 8, "1.04")
	sessions := newFakeSessionStore()
	orch := newTestOrchestrator(entities, rates, sessions, date(2025, 1, 10))
	ctx := context.Background()

	summary, err := orch.StartAnalysis(ctx, "cco-1", "maria")
	if err != nil {
		t.Fatalf("StartAnalysis: %v", err)
	}
	proposals, err := orch.GenerateProposals(ctx, summary.SessionID)
	if err != nil {
		t.Fatalf("GenerateProposals: %v", err)
	}
	ids := make([]string, 0, len(proposals.Proposals))
	for _, p := range proposals.Proposals {
		ids = append(ids, p.CorrectionID)
	}
	if _, err := orch.ApproveCorrections(ctx, summary.SessionID, ids); err != nil {
		t.Fatalf("ApproveCorrections: %v", err)
	}
	if _, err := orch.ApplyCorrections(ctx, summary.SessionID); err == nil {
		t.Fatal("expected the first apply to fail")
	}
	if sessions.sessions[summary.SessionID].Status != models.StatusError {
		t.Fatalf("status after failure = %s, want ERROR", sessions.sessions[summary.SessionID].Status)
	}

	// repository back, same session, same call
	entities.saveErr = nil
	outcome, err := orch.ApplyCorrections(ctx, summary.SessionID)
	if err != nil {
		t.Fatalf("retry after failure: %v", err)
	}
	if outcome.Status != models.StatusApplied {
		t.Errorf("status after retry = %s, want APPLIED", outcome.Status)
	}
	stored := sessions.sessions[summary.SessionID]
	if stored.ErrorMessage != "" {
		t.Errorf("error message not cleared on successful retry: %q", stored.ErrorMessage)
	}
	if stored.AppliedAt == nil {
		t.Error("retried session without AppliedAt")
	}
	if entities.corrected["cco-1"] == nil {
		t.Error("corrected snapshot not persisted on retry")
	}
}

func TestFinalPreviewCountsCompensationOnly(t *testing.T) {
	cco := testCCO("cco-1", date(2022, 8, 10), "50000")
	approved := []models.CorrectionProposal{
		{Type: models.ProposalIPCAAddition, Impact: money("1500")},
		{Type: models.ProposalCompensation, Impact: money("1560")},
	}

	preview := finalPreview(cco, approved)
	if !preview.TotalImpact.Equal(money("1560")) {
		t.Errorf("total = %s, want the compensation impact only", preview.TotalImpact)
	}

	noComp := finalPreview(cco, approved[:1])
	if !noComp.TotalImpact.Equal(money("1500")) {
		t.Errorf("total without compensation = %s, want 1500", noComp.TotalImpact)
	}
}

func TestGenerateProposalsReportOnlyScenario(t *testing.T) {
	cco := testCCO("cco-1", date(2022, 8, 10), "1000000",
		indexCorrection(date(2023, 11, 20), "1000000", "1045000", "1.045"),
		indexCorrection(date(2024, 9, 10), "1045000", "1086800", "1.04"))
	entities := newFakeEntityRepo(cco)
	rates := newFakeRateRepo().set(2023, 8, "1.045").set(2024, 8, "1.04")
	sessions := newFakeSessionStore()
	orch := newTestOrchestrator(entities, rates, sessions, date(2025, 1, 10))
	ctx := context.Background()

	summary, err := orch.StartAnalysis(ctx, "cco-1", "maria")
	if err != nil {
		t.Fatalf("StartAnalysis: %v", err)
	}
	if summary.ScenarioDetected != models.ScenarioForaApenas {
		t.Fatalf("scenario = %s, want CENARIO_CORRECAO_FORA_APENAS", summary.ScenarioDetected)
	}

	proposals, err := orch.GenerateProposals(ctx, summary.SessionID)
	if err != nil {
		t.Fatalf("GenerateProposals: %v", err)
	}
	if proposals.Status != models.StatusPreview {
		t.Errorf("status = %s, report-only scenarios still reach PREVIEW", proposals.Status)
	}
	if len(proposals.Proposals) != 0 {
		t.Errorf("proposals = %d, want none for a report-only scenario", len(proposals.Proposals))
	}
}

func TestEvaluateCurrentYearIndexNotYetDue(t *testing.T) {
	cco := testCCO("cco-1", date(2020, 5, 10), "100000")
	entities := newFakeEntityRepo(cco)
	sessions := newFakeSessionStore()
	orch := newTestOrchestrator(entities, newFakeRateRepo(), sessions, date(2025, 6, 10))

	result, err := orch.EvaluateCurrentYearIndex(context.Background(), "cco-1", "maria")
	if err != nil {
		t.Fatalf("EvaluateCurrentYearIndex: %v", err)
	}
	if result.Applicable {
		t.Fatal("anniversary day not reached, correction must not apply")
	}
	if len(sessions.sessions) != 0 {
		t.Error("inapplicable evaluation must not open a session")
	}
}

func TestEvaluateCurrentYearIndexCreatesPreview(t *testing.T) {
	last := models.MonetaryCorrection{
		Tipo:                  models.EntryTypeRetificacao,
		DataCorrecao:          date(2025, 2, 10),
		ValorReconhecidoComOH: money("104000"),
		TaxaCorrecao:          money("1"),
	}
	cco := testCCO("cco-1", date(2020, 5, 10), "100000",
		indexCorrection(date(2024, 6, 16), "100000", "104000", "1.04"), last)
	entities := newFakeEntityRepo(cco)
	rates := newFakeRateRepo().set(2025, 5, "1.05")
	sessions := newFakeSessionStore()
	orch := newTestOrchestrator(entities, rates, sessions, date(2025, 6, 20))

	result, err := orch.EvaluateCurrentYearIndex(context.Background(), "cco-1", "maria")
	if err != nil {
		t.Fatalf("EvaluateCurrentYearIndex: %v", err)
	}
	if !result.Applicable {
		t.Fatalf("correction should be due: %s", result.Reason)
	}
	if result.Periodo != "06/2025" {
		t.Errorf("period = %s, want 06/2025", result.Periodo)
	}
	session := result.Session
	if session.Status != models.StatusPreview {
		t.Errorf("session status = %s, want PREVIEW", session.Status)
	}
	if session.ScenarioDetected != models.ScenarioIPCAVigente {
		t.Errorf("scenario = %s, want CENARIO_IPCA_VIGENTE", session.ScenarioDetected)
	}
	if len(session.Proposals) != 2 {
		t.Fatalf("proposals = %d, want addition + date change", len(session.Proposals))
	}
	addition := session.Proposals[0]
	if !addition.ProposedValue.Equal(money("109200")) {
		t.Errorf("proposed = %s, want 109200", addition.ProposedValue)
	}
	change := session.Proposals[1]
	if change.Type != models.ProposalCorrectionDateChange {
		t.Errorf("second proposal type = %s, want CORRECTION_DATE_CHANGE", change.Type)
	}
	if change.TargetPeriod != "CHANGE_ORDER" {
		t.Errorf("change period = %s, want CHANGE_ORDER", change.TargetPeriod)
	}
}

func TestEvaluateCurrentYearIndexDecemberRecognition(t *testing.T) {
	cco := testCCO("cco-1", date(2020, 12, 5), "100000")
	entities := newFakeEntityRepo(cco)
	rates := newFakeRateRepo().set(2024, 12, "1.04")
	sessions := newFakeSessionStore()
	orch := newTestOrchestrator(entities, rates, sessions, date(2025, 6, 20))

	result, err := orch.EvaluateCurrentYearIndex(context.Background(), "cco-1", "maria")
	if err != nil {
		t.Fatalf("EvaluateCurrentYearIndex: %v", err)
	}
	if !result.Applicable {
		t.Fatalf("January anniversary already passed: %s", result.Reason)
	}
	if result.Periodo != "01/2025" {
		t.Errorf("period = %s, want the January rollover 01/2025", result.Periodo)
	}
}

func TestEvaluateCurrentYearIndexSkipsZeroBalance(t *testing.T) {
	cco := testCCO("cco-1", date(2020, 5, 10), "100000",
		recoveryCorrection(date(2024, 3, 10), "100000", "0"))
	entities := newFakeEntityRepo(cco)
	sessions := newFakeSessionStore()
	orch := newTestOrchestrator(entities, newFakeRateRepo(), sessions, date(2025, 6, 20))

	result, err := orch.EvaluateCurrentYearIndex(context.Background(), "cco-1", "maria")
	if err != nil {
		t.Fatalf("EvaluateCurrentYearIndex: %v", err)
	}
	if result.Applicable {
		t.Fatal("zeroed balance must not receive a current-year correction")
	}
}

func TestFinancialImpactAggregation(t *testing.T) {
	impact := financialImpact([]models.CorrectionProposal{
		{Type: models.ProposalIPCAAddition, Impact: money("45000")},
		{Type: models.ProposalIPCAUpdate, Impact: money("2000")},
		{Type: models.ProposalDuplicataAdjustment, ProposedValue: money("-46800"), Impact: money("-46800")},
		{Type: models.ProposalReactivation, Impact: money("999999")},
	})

	if !impact.TotalAdditions.Equal(money("45000")) {
		t.Errorf("additions = %s, want 45000", impact.TotalAdditions)
	}
	if !impact.TotalUpdates.Equal(money("2000")) {
		t.Errorf("updates = %s, want 2000", impact.TotalUpdates)
	}
	if !impact.TotalRemovals.Equal(money("-46800")) {
		t.Errorf("removals = %s, want -46800", impact.TotalRemovals)
	}
	// reactivations do not move money
	if !impact.TotalImpact.Equal(money("200")) {
		t.Errorf("total = %s, want 200", impact.TotalImpact)
	}
	if impact.ProposalsCount != 4 {
		t.Errorf("count = %d, want 4", impact.ProposalsCount)
	}
}

func TestEvaluateCurrentYearIndexAlreadyCorrected(t *testing.T) {
	cco := testCCO("cco-1", date(2020, 5, 10), "104000",
		indexCorrection(date(2025, 6, 16), "100000", "104000", "1.04"))
	entities := newFakeEntityRepo(cco)
	sessions := newFakeSessionStore()
	orch := newTestOrchestrator(entities, newFakeRateRepo(), sessions, date(2025, 6, 20))

	result, err := orch.EvaluateCurrentYearIndex(context.Background(), "cco-1", "maria")
	if err != nil {
		t.Fatalf("EvaluateCurrentYearIndex: %v", err)
	}
	if result.Applicable {
		t.Fatal("period already corrected, evaluation must not apply")
	}
}
