package workflow

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/oleodata/cco_backend/config"
	"github.com/oleodata/cco_backend/models"
	"github.com/oleodata/cco_backend/utils"
)

const gapAnalyzerModule = "workflow/gapAnalyzer.go"

// rateDiffTolerance: applied and expected factors closer than this are
// considered equal.
var rateDiffTolerance = decimal.RequireFromString("0.0001")

// GapAnalyzer walks a cost account's anniversary calendar and reports
// missing, late and duplicated index corrections. It never writes.
type GapAnalyzer struct {
	rates  RateRepository
	params config.CorrectionParams
	logger *logrus.Logger
}

func NewGapAnalyzer(rates RateRepository, logger *logrus.Logger) *GapAnalyzer {
	return &GapAnalyzer{
		rates:  rates,
		params: config.GetCorrectionParams(),
		logger: logger,
	}
}

// firstAnniversary computes the first correction anniversary from the
// recognition date: the following month, one year later. A December
// recognition rolls to January two years later.
func firstAnniversary(recognition time.Time) (year, month int) {
	m := int(recognition.Month())
	y := recognition.Year()
	if m == 12 {
		return y + 2, 1
	}
	return y + 1, m + 1
}

// applicationDeadline is the last moment an anniversary correction is
// considered on time.
func (a *GapAnalyzer) applicationDeadline(year, month int) time.Time {
	return utils.EndOfDay(year, month, a.params.CutoffDay)
}

// rateReference maps an anniversary month to the index reference month.
func (a *GapAnalyzer) rateReference(year, month int) (int, int) {
	return utils.ShiftPeriod(year, month, a.params.RateMonthOffset)
}

type indexEntry struct {
	entry     *models.MonetaryCorrection
	appliedAt time.Time
	listIndex int
}

// indexEntriesByPeriod maps (year, month) of application to the index
// entry. A later entry for the same period wins, mirroring how
// duplicates shadow the original.
func indexEntriesByPeriod(cco *models.CCO) map[[2]int]indexEntry {
	out := make(map[[2]int]indexEntry)
	for i := range cco.CorrecoesMonetarias {
		entry := &cco.CorrecoesMonetarias[i]
		if !entry.Tipo.IsIndex() {
			continue
		}
		d := entry.EffectiveDate()
		if d.IsZero() {
			continue
		}
		out[[2]int{d.Year(), int(d.Month())}] = indexEntry{entry: entry, appliedAt: d, listIndex: i}
	}
	return out
}

// indexEntriesByYear groups index entries by application year for the
// late-match fallback search.
func indexEntriesByYear(cco *models.CCO) map[int][]indexEntry {
	out := make(map[int][]indexEntry)
	for i := range cco.CorrecoesMonetarias {
		entry := &cco.CorrecoesMonetarias[i]
		if !entry.Tipo.IsIndex() {
			continue
		}
		d := entry.EffectiveDate()
		if d.IsZero() {
			continue
		}
		out[d.Year()] = append(out[d.Year()], indexEntry{entry: entry, appliedAt: d, listIndex: i})
	}
	return out
}

// findLateMatch looks for an index correction that belongs to the given
// anniversary but was applied late: in the anniversary year or the
// next, after mid anniversary month, less than MaxLateMonths behind.
func (a *GapAnalyzer) findLateMatch(byYear map[int][]indexEntry, year, month int) *indexEntry {
	anniversary := utils.PeriodDate(year, month, 15)
	for _, searchYear := range []int{year, year + 1} {
		for i := range byYear[searchYear] {
			candidate := byYear[searchYear][i]
			if !candidate.appliedAt.After(anniversary) {
				continue
			}
			lag := utils.MonthsBetween(anniversary, candidate.appliedAt)
			if lag < a.params.MaxLateMonths {
				return &candidate
			}
			config.LogWarn(a.logger, gapAnalyzerModule, "findLateMatch", "correction too late to match anniversary",
				map[string]interface{}{"aniversario": utils.PeriodKey(year, month), "aplicado": candidate.appliedAt, "mesesAtraso": lag}, "ignoring correction")
		}
	}
	return nil
}

func gapPriority(anniversary, now time.Time) models.GapPriority {
	yearsLate := float64(now.Sub(anniversary).Hours()) / 24 / 365.25
	switch {
	case yearsLate > 3:
		return models.PriorityAlta
	case yearsLate > 1:
		return models.PriorityMedia
	default:
		return models.PriorityBaixa
	}
}

// Analyze inspects one account as of 'now'. The same input always
// produces the same result.
func (a *GapAnalyzer) Analyze(ctx context.Context, cco *models.CCO, now time.Time) models.AnalysisResult {
	result := models.AnalysisResult{CCOID: cco.ID, AnalyzedAt: now}
	if cco.DataReconhecimento.IsZero() {
		return result
	}

	byPeriod := indexEntriesByPeriod(cco)
	byYear := indexEntriesByYear(cco)
	chronological := chronologicalEntries(cco)

	year, month := firstAnniversary(cco.DataReconhecimento)
	for year <= now.Year() {
		if year == now.Year() && month >= int(now.Month()) {
			if month > int(now.Month()) || now.Day() < a.params.CutoffDay {
				break
			}
		}

		deadline := a.applicationDeadline(year, month)
		rateYear, rateMonth := a.rateReference(year, month)

		match, ok := byPeriod[[2]int{year, month}]
		if !ok {
			if late := a.findLateMatch(byYear, year, month); late != nil {
				match, ok = *late, true
			}
		}

		if !ok {
			base := cco.ValueAt(deadline)
			if base.Sign() <= 0 {
				config.LogInfo(a.logger, gapAnalyzerModule, "Analyze", "gap ignored, non-positive base",
					map[string]interface{}{"ccoId": cco.ID, "periodo": utils.PeriodKey(year, month), "base": base})
				year++
				continue
			}
			result.Gaps = append(result.Gaps, models.Gap{
				Ano:        year,
				Mes:        month,
				AnoTaxa:    rateYear,
				MesTaxa:    rateMonth,
				ValorBase:  base,
				DataLimite: deadline,
				Prioridade: gapPriority(utils.PeriodDate(year, month, 16), now),
			})
		} else if match.appliedAt.After(deadline) {
			result.ForaPeriodo = append(result.ForaPeriodo,
				a.buildOutOfPeriod(ctx, cco, chronological, match, year, month, rateYear, rateMonth, deadline))
		}

		year++
	}

	result.Duplicatas = findDuplicates(cco)
	return result
}

type chronoEntry struct {
	tipo      models.CorrectionEntryType
	appliedAt time.Time
	before    decimal.Decimal
	after     decimal.Decimal
	impact    decimal.Decimal
}

func chronologicalEntries(cco *models.CCO) []chronoEntry {
	var out []chronoEntry
	for i := range cco.CorrecoesMonetarias {
		c := &cco.CorrecoesMonetarias[i]
		d := c.EffectiveDate()
		if d.IsZero() {
			continue
		}
		out = append(out, chronoEntry{
			tipo:      c.Tipo,
			appliedAt: d,
			before:    c.ValorReconhecidoComOhOriginal,
			after:     c.ValorReconhecidoComOH,
			impact:    c.Impact(),
		})
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].appliedAt.Before(out[j-1].appliedAt); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

// interveningChanges lists non-index entries applied in [from, to].
func interveningChanges(chronological []chronoEntry, from, to time.Time) []models.InterveningChange {
	var out []models.InterveningChange
	for _, c := range chronological {
		if c.appliedAt.Before(from) || c.appliedAt.After(to) {
			continue
		}
		if c.tipo.IsIndex() {
			continue
		}
		out = append(out, models.InterveningChange{
			Tipo:          c.tipo,
			DataAplicacao: c.appliedAt,
			ValorAntes:    c.before,
			ValorDepois:   c.after,
			ValorImpacto:  c.impact,
		})
	}
	return out
}

func (a *GapAnalyzer) buildOutOfPeriod(ctx context.Context, cco *models.CCO, chronological []chronoEntry,
	match indexEntry, year, month, rateYear, rateMonth int, deadline time.Time) models.OutOfPeriodCorrection {

	changes := interveningChanges(chronological, deadline, match.appliedAt)

	appliedRate := match.entry.TaxaCorrecao
	expectedRate, expectedOk := decimal.Zero, false
	if rate, err := a.rates.GetRate(ctx, rateYear, rateMonth, match.entry.Tipo); err == nil {
		expectedRate, expectedOk = rate, true
	} else if !errors.Is(err, utils.ErrorRateNotFound) {
		config.LogError(a.logger, gapAnalyzerModule, "buildOutOfPeriod", "resolving expected rate",
			map[string]interface{}{"ccoId": cco.ID, "periodo": utils.PeriodKey(rateYear, rateMonth)}, err)
	}

	rateDiff := decimal.Zero
	needsAdjustment := true
	if expectedOk {
		rateDiff = appliedRate.Sub(expectedRate).Abs()
		needsAdjustment = rateDiff.GreaterThan(rateDiffTolerance)
	}

	baseBefore := match.entry.ValorReconhecidoComOhOriginal
	baseAtApplication := match.entry.ValorReconhecidoComOH
	if len(changes) > 0 {
		// Strip the intervening impacts off the current balance to
		// reconstruct the value the correction should have seen.
		reconstructed := cco.CurrentValue()
		for i := len(changes) - 1; i >= 0; i-- {
			reconstructed = reconstructed.Sub(changes[i].ValorImpacto)
		}
		if len(changes) == 1 {
			baseBefore = changes[0].ValorAntes
			baseAtApplication = changes[0].ValorDepois
		} else {
			baseBefore = reconstructed
			baseAtApplication = reconstructed
		}
	}

	return models.OutOfPeriodCorrection{
		AnoAniversario:     year,
		MesAniversario:     month,
		AnoAplicado:        match.appliedAt.Year(),
		MesAplicado:        int(match.appliedAt.Month()),
		DataLimite:         deadline,
		DataAplicacao:      match.appliedAt,
		DiasAtraso:         int(match.appliedAt.Sub(deadline).Hours() / 24),
		TipoCorrecao:       match.entry.Tipo,
		TaxaAplicada:       appliedRate,
		TaxaEsperada:       expectedRate,
		TaxaEsperadaOk:     expectedOk,
		DiferencaTaxa:      rateDiff,
		NecessitaAjuste:    needsAdjustment,
		TeveAlteracoes:     len(changes) > 0,
		Alteracoes:         changes,
		ValorBaseAntes:     baseBefore,
		ValorBaseAplicacao: baseAtApplication,
		ValorAposCorrecao:  match.entry.ValorReconhecidoComOH,
	}
}

// findDuplicates flags a second index entry landing on an application
// month that was already corrected. The earlier entry is kept as the
// legitimate one.
func findDuplicates(cco *models.CCO) []models.DuplicateCorrection {
	var out []models.DuplicateCorrection
	seen := make(map[[2]int]struct {
		date  time.Time
		index int
	})
	for i := range cco.CorrecoesMonetarias {
		entry := &cco.CorrecoesMonetarias[i]
		if !entry.Tipo.IsIndex() {
			continue
		}
		d := entry.EffectiveDate()
		if d.IsZero() {
			continue
		}
		key := [2]int{d.Year(), int(d.Month())}
		if first, ok := seen[key]; ok {
			if d.After(first.date) {
				out = append(out, models.DuplicateCorrection{
					Indice:         i,
					Ano:            d.Year(),
					Mes:            int(d.Month()),
					ValorDuplicado: entry.DiferencaValor,
					DataOriginal:   first.date,
					DataDuplicata:  d,
				})
			}
			continue
		}
		seen[key] = struct {
			date  time.Time
			index int
		}{d, i}
	}
	return out
}
