package workflow

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/oleodata/cco_backend/config"
	"github.com/oleodata/cco_backend/models"
	"github.com/oleodata/cco_backend/utils"
)

const correctionEngineModule = "workflow/correctionEngine.go"

// CorrectionEngine turns analysis findings into concrete correction
// proposals and, once approved, applies them to the corrected snapshot
// of the account. Calculations never write.
type CorrectionEngine struct {
	entities EntityRepository
	rates    RateRepository
	params   config.CorrectionParams
	logger   *logrus.Logger
	now      func() time.Time
}

func NewCorrectionEngine(entities EntityRepository, rates RateRepository, logger *logrus.Logger) *CorrectionEngine {
	return &CorrectionEngine{
		entities: entities,
		rates:    rates,
		params:   config.GetCorrectionParams(),
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// gapCalc pairs a gap addition proposal with its calendar position so
// later recalculations can tell which gaps precede them.
type gapCalc struct {
	proposal models.CorrectionProposal
	ano      int
	mes      int
	gapID    string
}

func (g gapCalc) monthStart() time.Time {
	return utils.PeriodDate(g.ano, g.mes, 1)
}

// gapProposal prices one missing correction. The base chains on the
// previous gap's corrected value so consecutive gaps compound. A
// missing rate degrades to an unresolvable proposal instead of failing
// the whole batch.
func (e *CorrectionEngine) gapProposal(ctx context.Context, gap models.Gap, prev *models.CorrectionProposal, scenario models.Scenario, rule string) *models.CorrectionProposal {
	base := gap.ValorBase
	if prev != nil {
		base = prev.ProposedValue
	}
	if base.Sign() <= 0 {
		config.LogInfo(e.logger, correctionEngineModule, "gapProposal", "gap skipped, non-positive base",
			map[string]interface{}{"periodo": gap.Period(), "base": base})
		return nil
	}

	description := fmt.Sprintf("Correção IPCA faltante para %s", gap.Period())
	rate, err := e.rates.GetRate(ctx, gap.AnoTaxa, gap.MesTaxa, models.EntryTypeIPCA)
	if err != nil {
		config.LogError(e.logger, correctionEngineModule, "gapProposal", "resolving gap rate",
			map[string]interface{}{"periodoTaxa": gap.RatePeriod()}, err)
		return &models.CorrectionProposal{
			CorrectionID:  uuid.NewString(),
			Type:          models.ProposalIPCAAddition,
			Scenario:      scenario,
			TargetDate:    gap.TargetDate(),
			TargetPeriod:  gap.Period(),
			RatePeriod:    gap.RatePeriod(),
			Description:   description,
			BusinessRules: []string{rule},
			Unresolvable:  true,
			ErrorReason:   fmt.Sprintf("taxa IPCA não encontrada para %s", gap.RatePeriod()),
		}
	}

	proposed := base.Mul(rate)
	return &models.CorrectionProposal{
		CorrectionID:  uuid.NewString(),
		Type:          models.ProposalIPCAAddition,
		Scenario:      scenario,
		TargetDate:    gap.TargetDate(),
		TargetPeriod:  gap.Period(),
		CurrentValue:  base,
		ProposedValue: proposed,
		Impact:        proposed.Sub(base),
		RateApplied:   rate,
		RatePeriod:    gap.RatePeriod(),
		Description:   description,
		BusinessRules: []string{rule},
	}
}

func (e *CorrectionEngine) gapProposals(ctx context.Context, gaps []models.Gap, scenario models.Scenario, rule string) []gapCalc {
	var out []gapCalc
	var prev *models.CorrectionProposal
	for _, gap := range gaps {
		p := e.gapProposal(ctx, gap, prev, scenario, rule)
		prev = p
		if p == nil {
			continue
		}
		out = append(out, gapCalc{
			proposal: *p,
			ano:      gap.Ano,
			mes:      gap.Mes,
			gapID:    gap.ID(),
		})
	}
	return out
}

// CalculateScenario0 handles the plain case: only missing corrections,
// nothing applied after them.
func (e *CorrectionEngine) CalculateScenario0(ctx context.Context, cco *models.CCO, gaps []models.Gap) []models.CorrectionProposal {
	if cco.FlgRecuperado {
		config.LogWarn(e.logger, correctionEngineModule, "CalculateScenario0", "recovered account",
			map[string]interface{}{"ccoId": cco.ID}, "account flagged as recovered, scenario may not fit")
	}
	var out []models.CorrectionProposal
	for _, calc := range e.gapProposals(ctx, gaps, models.ScenarioZero, "CENARIO_0_GAP_SIMPLES") {
		out = append(out, calc.proposal)
	}
	return out
}

// posteriorCorrection is an index correction applied after the gaps,
// whose base was computed without them.
type posteriorCorrection struct {
	ano           int
	mes           int
	tipo          models.CorrectionEntryType
	rate          decimal.Decimal
	incorrectBase decimal.Decimal
	currentValue  decimal.Decimal
}

// CalculateScenario1 prices the gaps and then recalculates every index
// correction applied after them, whose base missed the gap impacts.
func (e *CorrectionEngine) CalculateScenario1(ctx context.Context, cco *models.CCO, gaps []models.Gap, fora []models.OutOfPeriodCorrection) []models.CorrectionProposal {
	gapCalcs := e.gapProposals(ctx, gaps, models.ScenarioOne, "CENARIO_1_GAP_COM_CORRECAO_POSTERIOR")

	var out []models.CorrectionProposal
	for _, calc := range gapCalcs {
		out = append(out, calc.proposal)
	}

	// A late correction shows up both in the account history and in the
	// out-of-period findings; dedupe by applied period, the in-history
	// reading carries the authoritative current value.
	posteriors := e.posteriorsFromAccount(cco, gapCalcs)
	seen := make(map[[2]int]bool, len(posteriors))
	for _, p := range posteriors {
		seen[[2]int{p.ano, p.mes}] = true
	}
	for _, o := range fora {
		key := [2]int{o.AnoAplicado, o.MesAplicado}
		if seen[key] {
			continue
		}
		seen[key] = true
		posteriors = append(posteriors, posteriorCorrection{
			ano:           o.AnoAplicado,
			mes:           o.MesAplicado,
			tipo:          o.TipoCorrecao,
			rate:          o.TaxaAplicada,
			incorrectBase: o.ValorBaseAplicacao,
			currentValue:  o.ValorBaseAplicacao.Mul(o.TaxaAplicada),
		})
	}

	for _, posterior := range posteriors {
		if update := e.recalculation(posterior, gapCalcs); update != nil {
			out = append(out, *update)
		}
	}
	return out
}

func (e *CorrectionEngine) posteriorsFromAccount(cco *models.CCO, gapCalcs []gapCalc) []posteriorCorrection {
	if len(gapCalcs) == 0 {
		return nil
	}
	earliest := gapCalcs[0].monthStart()
	for _, g := range gapCalcs[1:] {
		if g.monthStart().Before(earliest) {
			earliest = g.monthStart()
		}
	}

	var out []posteriorCorrection
	for i := range cco.CorrecoesMonetarias {
		entry := &cco.CorrecoesMonetarias[i]
		if !entry.Tipo.IsIndex() {
			continue
		}
		d := entry.EffectiveDate()
		if d.IsZero() || !d.After(earliest) {
			continue
		}
		out = append(out, posteriorCorrection{
			ano:           d.Year(),
			mes:           int(d.Month()),
			tipo:          entry.Tipo,
			rate:          entry.TaxaCorrecao,
			incorrectBase: entry.ValorReconhecidoComOhOriginal,
			currentValue:  entry.ValorReconhecidoComOH,
		})
	}
	return out
}

// recalculation reprices one posterior correction: the correct base is
// the incorrect one plus the impacts of every gap that precedes it.
func (e *CorrectionEngine) recalculation(posterior posteriorCorrection, gapCalcs []gapCalc) *models.CorrectionProposal {
	appliedMonth := utils.PeriodDate(posterior.ano, posterior.mes, 1)

	adjustment := decimal.Zero
	var deps []string
	for _, g := range gapCalcs {
		if g.monthStart().Before(appliedMonth) {
			adjustment = adjustment.Add(g.proposal.Impact)
			deps = append(deps, g.gapID)
		}
	}
	if len(deps) == 0 {
		return nil
	}

	correctBase := posterior.incorrectBase.Add(adjustment)
	proposed := correctBase.Mul(posterior.rate)
	period := utils.PeriodKey(posterior.ano, posterior.mes)
	return &models.CorrectionProposal{
		CorrectionID:  uuid.NewString(),
		Type:          models.ProposalIPCAUpdate,
		Scenario:      models.ScenarioOne,
		TargetDate:    e.now(),
		TargetPeriod:  period,
		CurrentValue:  posterior.currentValue,
		ProposedValue: proposed,
		Impact:        proposed.Sub(posterior.currentValue),
		RateApplied:   posterior.rate,
		Description:   fmt.Sprintf("Recálculo de correção %s %s", posterior.tipo, period),
		Dependencies:  deps,
		BusinessRules: []string{"CENARIO_1_GAP_COM_CORRECAO_POSTERIOR"},
	}
}

// CalculateScenario2 handles gaps on a recovered account: price the
// gaps, compensate the recovery for the positive gaps that precede it
// (cascading through later index rates) and reactivate the account
// when the additions leave a positive balance.
func (e *CorrectionEngine) CalculateScenario2(ctx context.Context, cco *models.CCO, gaps []models.Gap, fora []models.OutOfPeriodCorrection) []models.CorrectionProposal {
	gapCalcs := e.gapProposals(ctx, gaps, models.ScenarioTwo, "CENARIO_2_GAP_COM_RECUPERACAO")

	var out []models.CorrectionProposal
	for _, calc := range gapCalcs {
		out = append(out, calc.proposal)
	}

	if recovery := cco.LastRecovery(); recovery != nil && len(gapCalcs) > 0 {
		if compensation := e.compensation(cco, gapCalcs, recovery.EffectiveDate()); compensation != nil {
			out = append(out, *compensation)
		}
	}

	if cco.FlgRecuperado {
		totalAdditions := decimal.Zero
		for _, p := range out {
			totalAdditions = totalAdditions.Add(p.Impact)
		}
		if totalAdditions.Sign() > 0 {
			out = append(out, models.CorrectionProposal{
				CorrectionID:  uuid.NewString(),
				Type:          models.ProposalReactivation,
				Scenario:      models.ScenarioTwo,
				TargetDate:    e.now(),
				TargetPeriod:  "REATIVACAO",
				ProposedValue: totalAdditions,
				RateApplied:   decimal.NewFromInt(1),
				Description:   "Reativação da CCO - flgRecuperado: true → false",
				BusinessRules: []string{"CENARIO_2_GAP_COM_RECUPERACAO"},
			})
		}
	}
	return out
}

func (e *CorrectionEngine) compensation(cco *models.CCO, gapCalcs []gapCalc, recoveryDate time.Time) *models.CorrectionProposal {
	var prior []gapCalc
	total := decimal.Zero
	for _, g := range gapCalcs {
		if g.monthStart().Before(recoveryDate) && g.proposal.Impact.Sign() > 0 {
			prior = append(prior, g)
			total = total.Add(g.proposal.Impact)
		}
	}
	if len(prior) == 0 || total.Sign() <= 0 {
		config.LogInfo(e.logger, correctionEngineModule, "compensation", "no positive gap precedes the recovery",
			map[string]interface{}{"ccoId": cco.ID})
		return nil
	}

	latestGap := prior[0].monthStart()
	for _, g := range prior[1:] {
		if g.monthStart().After(latestGap) {
			latestGap = g.monthStart()
		}
	}

	final, steps := cascade(total, indexRatesAfter(cco, latestGap))

	deps := make([]string, 0, len(prior))
	for _, g := range prior {
		deps = append(deps, g.gapID)
	}

	return &models.CorrectionProposal{
		CorrectionID:  uuid.NewString(),
		Type:          models.ProposalCompensation,
		Scenario:      models.ScenarioTwo,
		TargetDate:    e.now(),
		TargetPeriod:  "COMPENSACAO",
		ProposedValue: final,
		Impact:        final,
		RateApplied:   decimal.NewFromInt(1),
		Description:   compensationDescription(total, steps, final),
		Dependencies:  deps,
		CascadeSteps:  steps,
		BusinessRules: []string{"CENARIO_2_GAP_COM_RECUPERACAO"},
	}
}

type cascadeRate struct {
	periodo string
	taxa    decimal.Decimal
}

func indexRatesAfter(cco *models.CCO, after time.Time) []cascadeRate {
	type dated struct {
		at   time.Time
		rate cascadeRate
	}
	var entries []dated
	for i := range cco.CorrecoesMonetarias {
		entry := &cco.CorrecoesMonetarias[i]
		if !entry.Tipo.IsIndex() {
			continue
		}
		d := entry.EffectiveDate()
		if d.IsZero() || !d.After(after) {
			continue
		}
		entries = append(entries, dated{at: d, rate: cascadeRate{
			periodo: utils.PeriodKey(d.Year(), int(d.Month())),
			taxa:    entry.TaxaCorrecao,
		}})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].at.Before(entries[j].at) })
	out := make([]cascadeRate, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.rate)
	}
	return out
}

// cascade propagates a value through later index rates, recording each
// multiplication.
func cascade(base decimal.Decimal, rates []cascadeRate) (decimal.Decimal, []models.CascadeStep) {
	running := base
	var steps []models.CascadeStep
	for _, r := range rates {
		after := running.Mul(r.taxa)
		steps = append(steps, models.CascadeStep{
			Periodo:     r.periodo,
			Taxa:        r.taxa,
			ValorAntes:  running,
			ValorDepois: after,
			Incremento:  after.Sub(running),
		})
		running = after
	}
	return running, steps
}

func compensationDescription(totalGaps decimal.Decimal, steps []models.CascadeStep, final decimal.Decimal) string {
	var b strings.Builder
	b.WriteString("Compensação por gaps IPCA/IGPM aplicados após recuperação. ")
	fmt.Fprintf(&b, "Valor base gaps: R$ %s", utils.FormatMoney(totalGaps))
	if len(steps) == 0 {
		b.WriteString(". Nenhuma correção posterior identificada")
		return b.String()
	}
	fmt.Fprintf(&b, ". Efeito cascata aplicado sobre %d correção(ões) posterior(es): ", len(steps))
	parts := make([]string, 0, len(steps))
	for _, s := range steps {
		parts = append(parts, fmt.Sprintf("%s (taxa %s): R$ %s → R$ %s",
			s.Periodo, s.Taxa.StringFixed(4), utils.FormatMoney(s.ValorAntes), utils.FormatMoney(s.ValorDepois)))
	}
	b.WriteString(strings.Join(parts, "; "))
	fmt.Fprintf(&b, ". Compensação final: R$ %s", utils.FormatMoney(final))
	return b.String()
}

// CalculateDuplicates proposes removing each duplicated index entry,
// one consolidated adjustment undoing the duplicated money (with its
// cascade through later rates) and a reactivation when the account is
// flagged recovered but keeps a balance.
func (e *CorrectionEngine) CalculateDuplicates(ctx context.Context, cco *models.CCO, duplicates []models.DuplicateCorrection) []models.CorrectionProposal {
	var out []models.CorrectionProposal

	compensationTotal := decimal.Zero
	removedTotal := decimal.Zero
	var allSteps []models.CascadeStep

	for _, dup := range duplicates {
		rates := duplicatePosteriorRates(cco, dup)
		cascaded, steps := cascade(dup.ValorDuplicado, rates)
		compensationTotal = compensationTotal.Add(cascaded)
		removedTotal = removedTotal.Add(dup.ValorDuplicado)
		allSteps = append(allSteps, steps...)

		idx := dup.Indice
		out = append(out, models.CorrectionProposal{
			CorrectionID:  uuid.NewString(),
			Type:          models.ProposalDuplicataRemoval,
			Scenario:      models.ScenarioDuplicatas,
			TargetDate:    e.now(),
			TargetPeriod:  dup.Periodo(),
			CurrentValue:  dup.ValorDuplicado,
			Impact:        dup.ValorDuplicado.Neg(),
			RateApplied:   decimal.NewFromInt(1),
			Description:   fmt.Sprintf("Remoção de correção IPCA duplicada - período %s na data %s", dup.Periodo(), dup.DataDuplicata.Format("02/01/2006")),
			RemoveIndex:   &idx,
			CascadeSteps:  steps,
			BusinessRules: []string{"CENARIO_DUPLICATAS_REMOCAO"},
		})
	}

	if removedTotal.Sign() > 0 || compensationTotal.Sign() > 0 {
		deps := make([]string, 0, len(out))
		for _, p := range out {
			deps = append(deps, p.CorrectionID)
		}
		proposed := removedTotal.Neg()
		if compensationTotal.GreaterThan(removedTotal) {
			proposed = compensationTotal.Neg()
		}
		description := fmt.Sprintf("Ajuste compensatório por remoção de %d duplicata(s)", len(duplicates))
		if len(allSteps) > 0 {
			description += fmt.Sprintf(". Efeito cascata aplicado sobre %d correção(ões) posterior(es)", len(allSteps))
			for _, s := range allSteps {
				description += fmt.Sprintf(". %s (taxa %s): R$ %s", s.Periodo, s.Taxa.StringFixed(4), utils.FormatMoney(s.Incremento))
			}
		}
		out = append(out, models.CorrectionProposal{
			CorrectionID:  uuid.NewString(),
			Type:          models.ProposalDuplicataAdjustment,
			Scenario:      models.ScenarioDuplicatas,
			TargetDate:    e.now(),
			TargetPeriod:  "AJUSTE",
			ProposedValue: proposed,
			Impact:        compensationTotal.Neg(),
			RateApplied:   decimal.NewFromInt(1),
			Description:   description,
			Dependencies:  deps,
			CascadeSteps:  allSteps,
			BusinessRules: []string{"CENARIO_DUPLICATAS_AJUSTE"},
		})
	}

	estimated := cco.CurrentValue().Sub(compensationTotal)
	if cco.FlgRecuperado && !estimated.IsZero() {
		deps := make([]string, 0, len(out))
		for _, p := range out {
			deps = append(deps, p.CorrectionID)
		}
		out = append(out, models.CorrectionProposal{
			CorrectionID:  uuid.NewString(),
			Type:          models.ProposalReactivation,
			Scenario:      models.ScenarioDuplicatas,
			TargetDate:    e.now(),
			TargetPeriod:  "REATIVACAO",
			ProposedValue: estimated,
			Impact:        estimated,
			RateApplied:   decimal.NewFromInt(1),
			Description:   "Reativação da CCO após remoção de duplicatas",
			Dependencies:  deps,
			BusinessRules: []string{"CENARIO_DUPLICATAS_REATIVACAO"},
		})
	}
	return out
}

// duplicatePosteriorRates lists the index rates applied after the
// duplicated entry, by list position and date.
func duplicatePosteriorRates(cco *models.CCO, dup models.DuplicateCorrection) []cascadeRate {
	var out []cascadeRate
	for i := range cco.CorrecoesMonetarias {
		if i <= dup.Indice {
			continue
		}
		entry := &cco.CorrecoesMonetarias[i]
		if !entry.Tipo.IsIndex() {
			continue
		}
		d := entry.EffectiveDate()
		if d.IsZero() || !d.After(dup.DataDuplicata) {
			continue
		}
		out = append(out, cascadeRate{
			periodo: utils.PeriodKey(d.Year(), int(d.Month())),
			taxa:    entry.TaxaCorrecao,
		})
	}
	return out
}
