package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func money(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestCurrentValueFallsBackToRoot(t *testing.T) {
	cco := &CCO{ID: "c1", ValorReconhecidoComOH: money("1000000")}
	if !cco.CurrentValue().Equal(money("1000000")) {
		t.Errorf("CurrentValue = %s, want root value", cco.CurrentValue())
	}

	cco.CorrecoesMonetarias = []MonetaryCorrection{
		{Tipo: EntryTypeIPCA, ValorReconhecidoComOH: money("1045000"), DataCorrecao: time.Date(2024, 9, 16, 0, 0, 0, 0, time.UTC)},
		{Tipo: EntryTypeIPCA, ValorReconhecidoComOH: money("1092025"), DataCorrecao: time.Date(2025, 9, 16, 0, 0, 0, 0, time.UTC)},
	}
	if !cco.CurrentValue().Equal(money("1092025")) {
		t.Errorf("CurrentValue = %s, want 1092025", cco.CurrentValue())
	}
}

func TestValueAt(t *testing.T) {
	cco := &CCO{
		ID:                    "c1",
		ValorReconhecidoComOH: money("1000000"),
		CorrecoesMonetarias: []MonetaryCorrection{
			{Tipo: EntryTypeIPCA, ValorReconhecidoComOH: money("1045000"), DataCorrecao: time.Date(2024, 9, 16, 0, 0, 0, 0, time.UTC)},
		},
	}
	before := time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC)
	after := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	if !cco.ValueAt(before).Equal(money("1000000")) {
		t.Errorf("ValueAt(before) = %s, want root", cco.ValueAt(before))
	}
	if !cco.ValueAt(after).Equal(money("1045000")) {
		t.Errorf("ValueAt(after) = %s, want 1045000", cco.ValueAt(after))
	}
}

func TestEffectiveDatePrefersCorrectionDate(t *testing.T) {
	applied := time.Date(2024, 9, 16, 0, 0, 0, 0, time.UTC)
	created := time.Date(2024, 10, 2, 0, 0, 0, 0, time.UTC)
	entry := MonetaryCorrection{DataCorrecao: applied, DataCriacaoCorrecao: created}
	if !entry.EffectiveDate().Equal(applied) {
		t.Error("EffectiveDate should prefer DataCorrecao")
	}
	entry.DataCorrecao = time.Time{}
	if !entry.EffectiveDate().Equal(created) {
		t.Error("EffectiveDate should fall back to DataCriacaoCorrecao")
	}
}

func TestIndexCorrectionAt(t *testing.T) {
	cco := &CCO{
		ID: "c1",
		CorrecoesMonetarias: []MonetaryCorrection{
			{Tipo: EntryTypeRetificacao, DataCorrecao: time.Date(2024, 9, 10, 0, 0, 0, 0, time.UTC)},
			{Tipo: EntryTypeIPCA, DataCorrecao: time.Date(2024, 9, 16, 0, 0, 0, 0, time.UTC)},
		},
	}
	if cco.IndexCorrectionAt(2024, 9) == nil {
		t.Error("expected index correction in 09/2024")
	}
	if cco.IndexCorrectionAt(2025, 9) != nil {
		t.Error("unexpected index correction in 09/2025")
	}
}

func TestSessionStatusTransitions(t *testing.T) {
	allowed := []struct{ from, to SessionStatus }{
		{StatusAnalyzing, StatusPreview},
		{StatusPreview, StatusApproved},
		{StatusPreview, StatusRejected},
		{StatusApproved, StatusApplied},
		{StatusApproved, StatusRejected},
		{StatusApproved, StatusError},
		{StatusError, StatusApplied},
		{StatusError, StatusError},
	}
	for _, c := range allowed {
		if !c.from.CanTransitionTo(c.to) {
			t.Errorf("%s -> %s should be allowed", c.from, c.to)
		}
	}
	denied := []struct{ from, to SessionStatus }{
		{StatusAnalyzing, StatusApproved},
		{StatusAnalyzing, StatusApplied},
		{StatusPreview, StatusApplied},
		{StatusApplied, StatusPreview},
		{StatusApplied, StatusError},
		{StatusRejected, StatusApproved},
		{StatusError, StatusPreview},
		{StatusError, StatusRejected},
	}
	for _, c := range denied {
		if c.from.CanTransitionTo(c.to) {
			t.Errorf("%s -> %s should be denied", c.from, c.to)
		}
	}
}

func TestApprovedProposalsKeepsProposalOrder(t *testing.T) {
	s := &CorrectionSession{
		Proposals: []CorrectionProposal{
			{CorrectionID: "a"}, {CorrectionID: "b"}, {CorrectionID: "c"},
		},
		ApprovedIDs: []string{"c", "a"},
	}
	got := s.ApprovedProposals()
	if len(got) != 2 || got[0].CorrectionID != "a" || got[1].CorrectionID != "c" {
		t.Errorf("ApprovedProposals = %+v, want [a c] in proposal order", got)
	}
}
