package workflow

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/oleodata/cco_backend/models"
)

var (
	rateLowerBound = decimal.RequireFromString("0.5")
	rateUpperBound = decimal.RequireFromString("2.0")
	rateIdentity   = decimal.NewFromInt(1)
)

// ValidationReport is the consistency check run over a proposal batch
// before it is offered for approval. Errors make the batch invalid,
// warnings are informational.
type ValidationReport struct {
	Valid            bool     `json:"valid"`
	Warnings         []string `json:"warnings"`
	Errors           []string `json:"errors"`
	ProposalsChecked int      `json:"proposalsChecked"`
}

// ValidateProposals checks temporal ordering, value sanity and rate
// plausibility across the batch.
func ValidateProposals(proposals []models.CorrectionProposal) *ValidationReport {
	report := &ValidationReport{Valid: true, ProposalsChecked: len(proposals)}
	checkTemporalSequence(proposals, report)
	checkValues(proposals, report)
	checkRates(proposals, report)
	report.Valid = len(report.Errors) == 0
	return report
}

// checkTemporalSequence flags proposals landing on the same date.
// Reactivations carry no calendar position and are skipped.
func checkTemporalSequence(proposals []models.CorrectionProposal, report *ValidationReport) {
	var ordered []models.CorrectionProposal
	for _, p := range proposals {
		if p.Type == models.ProposalReactivation {
			continue
		}
		ordered = append(ordered, p)
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].TargetDate.Before(ordered[j].TargetDate)
	})
	for i := 1; i < len(ordered); i++ {
		if !ordered[i].TargetDate.After(ordered[i-1].TargetDate) {
			report.Warnings = append(report.Warnings, fmt.Sprintf(
				"datas sobrepostas: %s (%s) e %s (%s)",
				ordered[i-1].TargetPeriod, ordered[i-1].TargetDate.Format("02/01/2006"),
				ordered[i].TargetPeriod, ordered[i].TargetDate.Format("02/01/2006")))
		}
	}
}

func checkValues(proposals []models.CorrectionProposal, report *ValidationReport) {
	for _, p := range proposals {
		if p.Type == models.ProposalReactivation || p.Unresolvable {
			continue
		}
		switch p.ProposedValue.Sign() {
		case -1:
			if p.Type == models.ProposalDuplicataAdjustment {
				continue
			}
			report.Errors = append(report.Errors, fmt.Sprintf(
				"valor proposto negativo para %s: %s", p.TargetPeriod, p.ProposedValue))
		case 0:
			if p.Type == models.ProposalDuplicataRemoval {
				continue
			}
			report.Warnings = append(report.Warnings, fmt.Sprintf(
				"valor proposto zerado para %s", p.TargetPeriod))
		}
	}
}

func checkRates(proposals []models.CorrectionProposal, report *ValidationReport) {
	for _, p := range proposals {
		if p.Unresolvable {
			continue
		}
		rate := p.RateApplied
		if rate.IsZero() {
			continue
		}
		if rate.LessThan(rateLowerBound) || rate.GreaterThan(rateUpperBound) {
			report.Warnings = append(report.Warnings, fmt.Sprintf(
				"taxa fora da faixa esperada para %s: %s", p.TargetPeriod, rate))
		}
		isIndexProposal := p.Type == models.ProposalIPCAAddition || p.Type == models.ProposalIPCAUpdate
		if isIndexProposal && rate.Equal(rateIdentity) {
			report.Warnings = append(report.Warnings, fmt.Sprintf(
				"taxa neutra (1.0) para correção de índice em %s", p.TargetPeriod))
		}
	}
}
