package workflow

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/oleodata/cco_backend/config"
	"github.com/oleodata/cco_backend/models"
)

const systemScanModule = "workflow/systemScan.go"

// AnalyzeSystem runs the gap analysis over every account matching the
// filters and aggregates the findings into a report. Accounts with
// clean histories are counted but not listed.
func (a *GapAnalyzer) AnalyzeSystem(ctx context.Context, entities EntityRepository, filters models.SystemFilters, now time.Time) (*models.SystemReport, error) {
	ccos, err := entities.FindByFilters(ctx, filters)
	if err != nil {
		config.LogError(a.logger, systemScanModule, "AnalyzeSystem", "loading ccos", filters, err)
		return nil, err
	}

	report := &models.SystemReport{
		AnalyzedAt: now,
		Filters:    filters,
		Stats: models.SystemStats{
			GapsPorAno:       make(map[int]int),
			GapsPorContrato:  make(map[string]int),
			ForaPorContrato:  make(map[string]int),
			ValorBaseComGaps: decimal.Zero,
		},
	}

	for _, cco := range ccos {
		report.Stats.TotalAnalisadas++
		result := a.Analyze(ctx, cco, now)
		if !result.HasFindings() {
			continue
		}

		if len(result.Gaps) > 0 {
			report.Stats.ComGaps++
			report.Stats.TotalGaps += len(result.Gaps)
			report.Stats.GapsPorContrato[cco.ContratoCPP] += len(result.Gaps)
			for _, gap := range result.Gaps {
				report.Stats.GapsPorAno[gap.Ano]++
				report.Stats.ValorBaseComGaps = report.Stats.ValorBaseComGaps.Add(gap.ValorBase)
			}
		}
		if len(result.ForaPeriodo) > 0 {
			report.Stats.ComForaPeriodo++
			report.Stats.TotalForaPeriodo += len(result.ForaPeriodo)
			report.Stats.ForaPorContrato[cco.ContratoCPP] += len(result.ForaPeriodo)
		}
		if len(result.Duplicatas) > 0 {
			report.Stats.ComDuplicatas++
			report.Stats.TotalDuplicatas += len(result.Duplicatas)
		}

		report.Findings = append(report.Findings, models.EntityFindings{
			CCOID:              cco.ID,
			ContratoCPP:        cco.ContratoCPP,
			Campo:              cco.Campo,
			Remessa:            cco.Remessa,
			FaseRemessa:        cco.FaseRemessa,
			DataReconhecimento: cco.DataReconhecimento,
			ValorAtual:         cco.CurrentValue(),
			Result:             result,
		})
	}

	config.LogInfo(a.logger, systemScanModule, "AnalyzeSystem", "scan finished", map[string]interface{}{
		"analisadas": report.Stats.TotalAnalisadas,
		"comGaps":    report.Stats.ComGaps,
		"totalGaps":  report.Stats.TotalGaps,
	})
	return report, nil
}
