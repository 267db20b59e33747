package workflow

import (
	"testing"

	"github.com/oleodata/cco_backend/models"
)

func TestValidateProposalsAcceptsCleanBatch(t *testing.T) {
	report := ValidateProposals([]models.CorrectionProposal{
		{Type: models.ProposalIPCAAddition, TargetDate: date(2023, 9, 16), TargetPeriod: "09/2023", ProposedValue: money("1045000"), RateApplied: money("1.045")},
		{Type: models.ProposalIPCAAddition, TargetDate: date(2024, 9, 16), TargetPeriod: "09/2024", ProposedValue: money("1086800"), RateApplied: money("1.04")},
	})
	if !report.Valid {
		t.Fatalf("clean batch flagged invalid: %v", report.Errors)
	}
	if len(report.Warnings) != 0 {
		t.Errorf("unexpected warnings: %v", report.Warnings)
	}
	if report.ProposalsChecked != 2 {
		t.Errorf("checked = %d, want 2", report.ProposalsChecked)
	}
}

func TestValidateProposalsNegativeValueIsError(t *testing.T) {
	report := ValidateProposals([]models.CorrectionProposal{
		{Type: models.ProposalIPCAAddition, TargetDate: date(2023, 9, 16), TargetPeriod: "09/2023", ProposedValue: money("-10"), RateApplied: money("1.04")},
	})
	if report.Valid {
		t.Fatal("negative proposed value must invalidate the batch")
	}
	if len(report.Errors) != 1 {
		t.Errorf("errors = %v, want exactly one", report.Errors)
	}
}

func TestValidateProposalsNegativeAdjustmentIsAllowed(t *testing.T) {
	report := ValidateProposals([]models.CorrectionProposal{
		{Type: models.ProposalDuplicataAdjustment, TargetDate: date(2025, 1, 10), TargetPeriod: "AJUSTE", ProposedValue: money("-46800"), RateApplied: money("1")},
	})
	if !report.Valid {
		t.Fatalf("a negative duplicate adjustment must not invalidate: %v", report.Errors)
	}
}

func TestValidateProposalsWarnings(t *testing.T) {
	report := ValidateProposals([]models.CorrectionProposal{
		{Type: models.ProposalIPCAAddition, TargetDate: date(2023, 9, 16), TargetPeriod: "09/2023", ProposedValue: money("100"), RateApplied: money("2.5")},
		{Type: models.ProposalIPCAUpdate, TargetDate: date(2023, 9, 16), TargetPeriod: "09/2023", ProposedValue: money("100"), RateApplied: money("1.0")},
		{Type: models.ProposalIPCAAddition, TargetDate: date(2024, 9, 16), TargetPeriod: "09/2024", RateApplied: money("1.04")},
	})
	if !report.Valid {
		t.Fatalf("warnings must not invalidate: %v", report.Errors)
	}
	// out-of-range rate, neutral rate on an index proposal, overlapping
	// dates and a zero proposed value
	if len(report.Warnings) != 4 {
		t.Errorf("warnings = %d (%v), want 4", len(report.Warnings), report.Warnings)
	}
}

func TestValidateProposalsSkipsReactivation(t *testing.T) {
	report := ValidateProposals([]models.CorrectionProposal{
		{Type: models.ProposalReactivation, TargetPeriod: "REATIVACAO", RateApplied: money("1")},
	})
	if !report.Valid || len(report.Warnings) != 0 {
		t.Errorf("reactivation must pass untouched, got errors=%v warnings=%v", report.Errors, report.Warnings)
	}
}
