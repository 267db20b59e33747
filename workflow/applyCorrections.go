package workflow

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/oleodata/cco_backend/config"
	"github.com/oleodata/cco_backend/models"
	"github.com/oleodata/cco_backend/utils"
)

const applyCorrectionsModule = "workflow/applyCorrections.go"

// ApplyResult summarizes one apply run over a single account.
type ApplyResult struct {
	CCOID              string          `json:"ccoId"`
	EntriesInserted    int             `json:"entriesInserted"`
	EntriesUpdated     int             `json:"entriesUpdated"`
	EntriesRemoved     int             `json:"entriesRemoved"`
	FinalValue         decimal.Decimal `json:"finalValue"`
	Reactivated        bool            `json:"reactivated"`
	ProposalsApplied   int             `json:"proposalsApplied"`
	ProposalsSkipped   int             `json:"proposalsSkipped"`
	AppliedAt          time.Time       `json:"appliedAt"`
	CorrectionsApplied []string        `json:"correctionsApplied"`
}

type mergeInsertion struct {
	entry models.MonetaryCorrection
	ano   int
	mes   int
}

// mergeCorrections rebuilds the correction list with the approved
// changes folded in: updated periods keep their position with the new
// value, missing periods get their new entry, everything ends up in
// chronological order. Entries without any usable date are dropped.
func mergeCorrections(original []models.MonetaryCorrection, insertions []mergeInsertion, updates map[[2]int]models.CorrectionProposal, now time.Time, logger *logrus.Logger) []models.MonetaryCorrection {
	type dated struct {
		at    time.Time
		entry models.MonetaryCorrection
	}
	var merged []dated
	present := make(map[[2]int]bool)

	for i := range original {
		entry := original[i]
		d := entry.EffectiveDate()
		if d.IsZero() {
			config.LogWarn(logger, applyCorrectionsModule, "mergeCorrections", "entry without date dropped",
				map[string]interface{}{"tipo": entry.Tipo, "valor": entry.ValorReconhecidoComOH}, "correction entry has neither correction nor creation date")
			continue
		}
		key := [2]int{d.Year(), int(d.Month())}
		if entry.Tipo.IsIndex() {
			present[key] = true
			if update, ok := updates[key]; ok {
				entry.ValorReconhecidoComOH = update.ProposedValue
				entry.Observacao = fmt.Sprintf("%s - Recalculado em %s", update.Description, now.Format("02/01/2006"))
				entry.DataCriacaoCorrecao = now
			}
		}
		merged = append(merged, dated{at: d, entry: entry})
	}

	for _, ins := range insertions {
		key := [2]int{ins.ano, ins.mes}
		if present[key] {
			config.LogWarn(logger, applyCorrectionsModule, "mergeCorrections", "insertion skipped",
				map[string]interface{}{"periodo": utils.PeriodKey(ins.ano, ins.mes)}, "period already holds an index correction")
			continue
		}
		present[key] = true
		merged = append(merged, dated{at: ins.entry.EffectiveDate(), entry: ins.entry})
	}

	sort.SliceStable(merged, func(i, j int) bool { return merged[i].at.Before(merged[j].at) })
	out := make([]models.MonetaryCorrection, 0, len(merged))
	for _, m := range merged {
		out = append(out, m.entry)
	}
	return out
}

// rebuildAccumulators re-derives the running amounts and accumulated
// rate fields of every index entry from the list order, so the
// persisted history stays internally consistent after edits.
func rebuildAccumulators(corrections []models.MonetaryCorrection) []models.MonetaryCorrection {
	out := make([]models.MonetaryCorrection, len(corrections))
	copy(out, corrections)

	var (
		first           = true
		lancamentoTotal decimal.Decimal
		naoReconhecido  decimal.Decimal
		reconhecivel    decimal.Decimal
		naoRecuperacao  decimal.Decimal
		acumulado       decimal.Decimal
		acumuladoReais  decimal.Decimal
	)
	for i := range out {
		entry := &out[i]
		if !entry.Tipo.IsIndex() {
			continue
		}
		taxa := entry.TaxaCorrecao
		if first {
			lancamentoTotal = entry.ValorLancamentoTotal.Mul(taxa)
			naoReconhecido = entry.ValorNaoReconhecido.Mul(taxa)
			reconhecivel = entry.ValorReconhecivel.Mul(taxa)
			naoRecuperacao = entry.ValorNaoPassivelRecuperacao.Mul(taxa)
			acumulado = taxa
			acumuladoReais = entry.DiferencaValor
			first = false
		} else {
			lancamentoTotal = lancamentoTotal.Mul(taxa)
			naoReconhecido = naoReconhecido.Mul(taxa)
			reconhecivel = reconhecivel.Mul(taxa)
			naoRecuperacao = naoRecuperacao.Mul(taxa)
			acumulado = acumulado.Add(taxa)
			acumuladoReais = acumuladoReais.Add(entry.DiferencaValor)
		}
		entry.ValorLancamentoTotal = utils.RoundMoney(lancamentoTotal)
		entry.ValorNaoReconhecido = utils.RoundMoney(naoReconhecido)
		entry.ValorReconhecivel = utils.RoundMoney(reconhecivel)
		entry.ValorNaoPassivelRecuperacao = utils.RoundMoney(naoRecuperacao)
		entry.IgpmAcumulado = utils.RoundMoney(acumulado)
		entry.IgpmAcumuladoReais = utils.RoundMoney(acumuladoReais)
	}
	return out
}

// newIndexEntry materializes an approved gap addition as a correction
// history entry.
func newIndexEntry(cco *models.CCO, p models.CorrectionProposal, now time.Time) models.MonetaryCorrection {
	return models.MonetaryCorrection{
		Tipo:                          models.EntryTypeIPCA,
		SubTipo:                       string(models.EntryTypeRetificacao),
		Contrato:                      cco.ContratoCPP,
		Campo:                         cco.Campo,
		DataCorrecao:                  p.TargetDate,
		DataCriacaoCorrecao:           now,
		ValorReconhecido:              cco.ValorReconhecido,
		ValorReconhecidoComOH:         p.ProposedValue,
		ValorReconhecidoComOhOriginal: p.CurrentValue,
		OverHeadExploracao:            cco.OverHeadExploracao,
		OverHeadProducao:              cco.OverHeadProducao,
		OverHeadTotal:                 cco.OverHeadTotal,
		DiferencaValor:                p.ProposedValue.Sub(p.CurrentValue),
		TaxaCorrecao:                  p.RateApplied,
		FaseRemessa:                   cco.FaseRemessa,
		QuantidadeLancamento:          cco.QuantidadeLancamento,
		ValorLancamentoTotal:          cco.ValorLancamentoTotal,
		ValorNaoPassivelRecuperacao:   cco.ValorNaoPassivelRecuperacao,
		ValorReconhecivel:             cco.ValorReconhecivel,
		ValorNaoReconhecido:           cco.ValorNaoReconhecido,
		ValorReconhecidoExploracao:    cco.ValorReconhecidoExploracao,
		ValorReconhecidoProducao:      cco.ValorReconhecidoProducao,
		Ativo:                         true,
		Observacao:                    fmt.Sprintf("%s - Aplicado em %s", p.Description, now.Format("02/01/2006")),
		Transferencia:                 false,
	}
}

// newCompensationEntry records a recovery compensation in the history.
func newCompensationEntry(cco *models.CCO, p models.CorrectionProposal, now time.Time) models.MonetaryCorrection {
	entry := newIndexEntry(cco, p, now)
	entry.Tipo = models.EntryTypeRetificacao
	entry.SubTipo = string(models.EntryTypeCompensacao)
	entry.DataCorrecao = now
	return entry
}

// duplicateAdjustmentEntry builds the consolidated entry that undoes
// the duplicated money, valued from the last surviving entry.
func duplicateAdjustmentEntry(cco *models.CCO, last models.MonetaryCorrection, total decimal.Decimal, removedPeriods []string, now time.Time) models.MonetaryCorrection {
	newValue := total.Neg()
	if total.Sign() < 0 {
		newValue = last.ValorReconhecidoComOH.Add(total)
	}
	return models.MonetaryCorrection{
		Tipo:                          models.EntryTypeRetificacao,
		SubTipo:                       string(models.EntryTypeCompensacao),
		Contrato:                      cco.ContratoCPP,
		Campo:                         cco.Campo,
		DataCorrecao:                  now,
		DataCriacaoCorrecao:           now,
		ValorReconhecido:              last.ValorReconhecido,
		ValorReconhecidoComOH:         newValue,
		ValorReconhecidoComOhOriginal: last.ValorReconhecidoComOH,
		OverHeadExploracao:            last.OverHeadExploracao,
		OverHeadProducao:              last.OverHeadProducao,
		OverHeadTotal:                 last.OverHeadTotal,
		DiferencaValor:                total,
		TaxaCorrecao:                  decimal.NewFromInt(1),
		FaseRemessa:                   cco.FaseRemessa,
		QuantidadeLancamento:          last.QuantidadeLancamento,
		ValorLancamentoTotal:          last.ValorLancamentoTotal,
		ValorNaoPassivelRecuperacao:   last.ValorNaoPassivelRecuperacao,
		ValorReconhecivel:             last.ValorReconhecivel,
		ValorNaoReconhecido:           last.ValorNaoReconhecido,
		ValorReconhecidoExploracao:    last.ValorReconhecidoExploracao,
		ValorReconhecidoProducao:      last.ValorReconhecidoProducao,
		Ativo:                         true,
		Observacao: fmt.Sprintf("Ajuste por remoção de correções duplicadas nos períodos %s - Aplicado em %s",
			strings.Join(removedPeriods, ", "), now.Format("02/01/2006")),
	}
}

func additionsAndUpdates(approved []models.CorrectionProposal, logger *logrus.Logger) ([]models.CorrectionProposal, map[[2]int]models.CorrectionProposal, int) {
	var additions []models.CorrectionProposal
	updates := make(map[[2]int]models.CorrectionProposal)
	skipped := 0
	for _, p := range approved {
		if p.Unresolvable {
			config.LogWarn(logger, applyCorrectionsModule, "additionsAndUpdates", "unresolvable proposal skipped",
				map[string]interface{}{"periodo": p.TargetPeriod, "motivo": p.ErrorReason}, "proposal has no rate, cannot be applied")
			skipped++
			continue
		}
		switch p.Type {
		case models.ProposalIPCAAddition:
			additions = append(additions, p)
		case models.ProposalIPCAUpdate:
			ano, mes, err := utils.ParsePeriodKey(p.TargetPeriod)
			if err != nil {
				config.LogError(logger, applyCorrectionsModule, "additionsAndUpdates", "parsing update period",
					map[string]interface{}{"periodo": p.TargetPeriod}, err)
				skipped++
				continue
			}
			updates[[2]int{ano, mes}] = p
		}
	}
	return additions, updates, skipped
}

func (e *CorrectionEngine) persistCorrected(ctx context.Context, cco *models.CCO, corrections []models.MonetaryCorrection, reactivate bool) (*models.CCO, error) {
	corrected := *cco
	corrected.CorrecoesMonetarias = rebuildAccumulators(corrections)
	if reactivate {
		corrected.FlgRecuperado = false
	}
	if err := e.entities.SaveCorrected(ctx, &corrected); err != nil {
		config.LogError(e.logger, applyCorrectionsModule, "persistCorrected", "saving corrected account",
			map[string]interface{}{"ccoId": cco.ID}, err)
		return nil, err
	}
	return &corrected, nil
}

func applyResult(cco *models.CCO, approved []models.CorrectionProposal, inserted, updated, removed, skipped int, reactivated bool, now time.Time) *ApplyResult {
	ids := make([]string, 0, len(approved))
	for _, p := range approved {
		ids = append(ids, p.CorrectionID)
	}
	return &ApplyResult{
		CCOID:              cco.ID,
		EntriesInserted:    inserted,
		EntriesUpdated:     updated,
		EntriesRemoved:     removed,
		FinalValue:         cco.CurrentValue(),
		Reactivated:        reactivated,
		ProposalsApplied:   len(approved) - skipped,
		ProposalsSkipped:   skipped,
		AppliedAt:          now,
		CorrectionsApplied: ids,
	}
}

// ApplyGapCorrections persists the approved additions and
// recalculations of scenarios 0 and 1 into the corrected snapshot.
func (e *CorrectionEngine) ApplyGapCorrections(ctx context.Context, cco *models.CCO, approved []models.CorrectionProposal) (*ApplyResult, error) {
	now := e.now()
	additions, updates, skipped := additionsAndUpdates(approved, e.logger)

	insertions := make([]mergeInsertion, 0, len(additions))
	for _, p := range additions {
		ano, mes, err := utils.ParsePeriodKey(p.TargetPeriod)
		if err != nil {
			return nil, fmt.Errorf("invalid target period %q: %w", p.TargetPeriod, err)
		}
		insertions = append(insertions, mergeInsertion{entry: newIndexEntry(cco, p, now), ano: ano, mes: mes})
	}

	merged := mergeCorrections(cco.CorrecoesMonetarias, insertions, updates, now, e.logger)
	corrected, err := e.persistCorrected(ctx, cco, merged, false)
	if err != nil {
		return nil, err
	}
	return applyResult(corrected, approved, len(insertions), len(updates), 0, skipped, false, now), nil
}

// ApplyRecoveryCorrections persists scenario 2: gap additions plus the
// compensation entries, clearing the recovered flag when reactivation
// was approved.
func (e *CorrectionEngine) ApplyRecoveryCorrections(ctx context.Context, cco *models.CCO, approved []models.CorrectionProposal) (*ApplyResult, error) {
	now := e.now()
	additions, updates, skipped := additionsAndUpdates(approved, e.logger)

	insertions := make([]mergeInsertion, 0, len(additions))
	for _, p := range additions {
		ano, mes, err := utils.ParsePeriodKey(p.TargetPeriod)
		if err != nil {
			return nil, fmt.Errorf("invalid target period %q: %w", p.TargetPeriod, err)
		}
		insertions = append(insertions, mergeInsertion{entry: newIndexEntry(cco, p, now), ano: ano, mes: mes})
	}

	merged := mergeCorrections(cco.CorrecoesMonetarias, insertions, updates, now, e.logger)

	reactivate := false
	compensations := 0
	for _, p := range approved {
		switch p.Type {
		case models.ProposalCompensation:
			merged = append(merged, newCompensationEntry(cco, p, now))
			compensations++
		case models.ProposalReactivation:
			reactivate = true
		}
	}

	corrected, err := e.persistCorrected(ctx, cco, merged, reactivate)
	if err != nil {
		return nil, err
	}
	return applyResult(corrected, approved, len(insertions)+compensations, len(updates), 0, skipped, reactivate, now), nil
}

// ApplyDuplicateCorrections removes the approved duplicated entries,
// appends the consolidated adjustment and reactivates the account when
// approved.
func (e *CorrectionEngine) ApplyDuplicateCorrections(ctx context.Context, cco *models.CCO, approved []models.CorrectionProposal) (*ApplyResult, error) {
	now := e.now()

	var removeIndices []int
	var removedPeriods []string
	total := decimal.Zero
	reactivate := false
	for _, p := range approved {
		switch p.Type {
		case models.ProposalDuplicataRemoval:
			if p.RemoveIndex == nil {
				return nil, utils.NewValidationError("removal proposal %s without list index", p.CorrectionID)
			}
			removeIndices = append(removeIndices, *p.RemoveIndex)
			removedPeriods = append(removedPeriods, p.TargetPeriod)
		case models.ProposalDuplicataAdjustment:
			total = total.Add(p.ProposedValue)
		case models.ProposalReactivation:
			reactivate = true
		}
	}

	corrections := make([]models.MonetaryCorrection, len(cco.CorrecoesMonetarias))
	copy(corrections, cco.CorrecoesMonetarias)

	sort.Sort(sort.Reverse(sort.IntSlice(removeIndices)))
	for _, idx := range removeIndices {
		if idx < 0 || idx >= len(corrections) {
			return nil, utils.NewValidationError("removal index %d out of range", idx)
		}
		corrections = append(corrections[:idx], corrections[idx+1:]...)
	}

	inserted := 0
	if !total.IsZero() && len(corrections) > 0 {
		last := corrections[len(corrections)-1]
		corrections = append(corrections, duplicateAdjustmentEntry(cco, last, total, removedPeriods, now))
		inserted = 1
	}

	corrected, err := e.persistCorrected(ctx, cco, corrections, reactivate)
	if err != nil {
		return nil, err
	}
	return applyResult(corrected, approved, inserted, 0, len(removeIndices), 0, reactivate, now), nil
}

// ApplyCurrentYearCorrection persists the current-year index addition
// produced by the standing evaluation. The account passed in must be
// the corrected snapshot. At most one addition is accepted; the
// optional date change fixes the ordering of a trailing rectification
// before the new entry lands.
func (e *CorrectionEngine) ApplyCurrentYearCorrection(ctx context.Context, cco *models.CCO, approved []models.CorrectionProposal) (*ApplyResult, error) {
	now := e.now()

	var additions []models.CorrectionProposal
	var dateChange *models.CorrectionProposal
	for i, p := range approved {
		switch p.Type {
		case models.ProposalIPCAAddition:
			additions = append(additions, p)
		case models.ProposalCorrectionDateChange:
			dateChange = &approved[i]
		}
	}
	if len(additions) > 1 {
		return nil, utils.NewValidationError("current-year apply expects at most one addition, got %d", len(additions))
	}

	corrections := make([]models.MonetaryCorrection, len(cco.CorrecoesMonetarias))
	copy(corrections, cco.CorrecoesMonetarias)

	updated := 0
	if dateChange != nil && len(corrections) > 0 {
		corrections[len(corrections)-1].DataCorrecao = dateChange.TargetDate
		updated = 1
	}

	inserted := 0
	for _, p := range additions {
		corrections = append(corrections, newIndexEntry(cco, p, now))
		inserted++
	}

	corrected, err := e.persistCorrected(ctx, cco, corrections, false)
	if err != nil {
		return nil, err
	}
	return applyResult(corrected, approved, inserted, updated, 0, 0, false, now), nil
}
