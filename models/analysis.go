package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/oleodata/cco_backend/utils"
)

// Gap is an anniversary month whose index correction was never applied.
type Gap struct {
	Ano        int             `json:"ano"`
	Mes        int             `json:"mes"`
	AnoTaxa    int             `json:"anoTaxa"`
	MesTaxa    int             `json:"mesTaxa"`
	ValorBase  decimal.Decimal `json:"valorBase"`
	DataLimite time.Time       `json:"dataLimite"`
	Prioridade GapPriority     `json:"prioridade"`
}

// Period is the anniversary month as "MM/YYYY".
func (g Gap) Period() string {
	return utils.PeriodKey(g.Ano, g.Mes)
}

// RatePeriod is the index reference month as "MM/YYYY".
func (g Gap) RatePeriod() string {
	return utils.PeriodKey(g.AnoTaxa, g.MesTaxa)
}

// TargetDate is the day the missing correction would have been applied.
func (g Gap) TargetDate() time.Time {
	return utils.PeriodDate(g.Ano, g.Mes, 16)
}

// ID names the gap for proposal dependency links.
func (g Gap) ID() string {
	return fmt.Sprintf("gap_%d%02d", g.Ano, g.Mes)
}

// InterveningChange is a non-index entry applied between a correction's
// deadline and its actual late application.
type InterveningChange struct {
	Tipo          CorrectionEntryType `json:"tipo"`
	DataAplicacao time.Time           `json:"dataAplicacao"`
	ValorAntes    decimal.Decimal     `json:"valorAntes"`
	ValorDepois   decimal.Decimal     `json:"valorDepois"`
	ValorImpacto  decimal.Decimal     `json:"valorImpacto"`
}

// OutOfPeriodCorrection is an index correction applied after its
// anniversary deadline but still close enough to match it.
type OutOfPeriodCorrection struct {
	AnoAniversario     int                 `json:"anoAniversario"`
	MesAniversario     int                 `json:"mesAniversario"`
	AnoAplicado        int                 `json:"anoAplicado"`
	MesAplicado        int                 `json:"mesAplicado"`
	DataLimite         time.Time           `json:"dataLimite"`
	DataAplicacao      time.Time           `json:"dataAplicacao"`
	DiasAtraso         int                 `json:"diasAtraso"`
	TipoCorrecao       CorrectionEntryType `json:"tipoCorrecao"`
	TaxaAplicada       decimal.Decimal     `json:"taxaAplicada"`
	TaxaEsperada       decimal.Decimal     `json:"taxaEsperada"`
	TaxaEsperadaOk     bool                `json:"taxaEsperadaEncontrada"`
	DiferencaTaxa      decimal.Decimal     `json:"diferencaTaxa"`
	NecessitaAjuste    bool                `json:"necessitaAjuste"`
	TeveAlteracoes     bool                `json:"teveAlteracoesNoPeriodo"`
	Alteracoes         []InterveningChange `json:"alteracoesNoPeriodo,omitempty"`
	ValorBaseAntes     decimal.Decimal     `json:"valorBaseAntesAlteracoes"`
	ValorBaseAplicacao decimal.Decimal     `json:"valorBaseNaAplicacao"`
	ValorAposCorrecao  decimal.Decimal     `json:"valorAposCorrecao"`
}

// PeriodoAniversario is the missed anniversary as "MM/YYYY".
func (o OutOfPeriodCorrection) PeriodoAniversario() string {
	return utils.PeriodKey(o.AnoAniversario, o.MesAniversario)
}

// DuplicateCorrection is a second index entry for an anniversary month
// that was already corrected.
type DuplicateCorrection struct {
	Indice         int             `json:"indice"`
	Ano            int             `json:"ano"`
	Mes            int             `json:"mes"`
	ValorDuplicado decimal.Decimal `json:"valorDuplicado"`
	DataOriginal   time.Time       `json:"dataOriginal"`
	DataDuplicata  time.Time       `json:"dataDuplicata"`
}

// Periodo is the duplicated anniversary as "MM/YYYY".
func (d DuplicateCorrection) Periodo() string {
	return utils.PeriodKey(d.Ano, d.Mes)
}

// AnalysisResult carries everything the analyzer found for one account.
type AnalysisResult struct {
	CCOID       string                  `json:"ccoId"`
	AnalyzedAt  time.Time               `json:"analyzedAt"`
	Gaps        []Gap                   `json:"gaps"`
	ForaPeriodo []OutOfPeriodCorrection `json:"correcoesForaPeriodo"`
	Duplicatas  []DuplicateCorrection   `json:"duplicatas"`
}

func (r AnalysisResult) HasFindings() bool {
	return len(r.Gaps) > 0 || len(r.ForaPeriodo) > 0 || len(r.Duplicatas) > 0
}

// SystemFilters narrows a system-wide scan. Zero values mean "all".
type SystemFilters struct {
	CCOID             string
	ContratoCPP       string
	Campo             string
	AnoReconhecimento int
	OrigemDosGastos   string
}

// EntityFindings pairs one account's identity with its analysis result
// inside a system report.
type EntityFindings struct {
	CCOID              string          `json:"ccoId"`
	ContratoCPP        string          `json:"contratoCpp"`
	Campo              string          `json:"campo"`
	Remessa            int             `json:"remessa"`
	FaseRemessa        string          `json:"faseRemessa"`
	DataReconhecimento time.Time       `json:"dataReconhecimento"`
	ValorAtual         decimal.Decimal `json:"valorAtual"`
	Result             AnalysisResult  `json:"resultado"`
}

// SystemStats aggregates a system-wide scan.
type SystemStats struct {
	TotalAnalisadas  int             `json:"totalAnalisadas"`
	ComGaps          int             `json:"comGaps"`
	TotalGaps        int             `json:"totalGaps"`
	ComForaPeriodo   int             `json:"comCorrecoesForaPeriodo"`
	TotalForaPeriodo int             `json:"totalCorrecoesForaPeriodo"`
	ComDuplicatas    int             `json:"comDuplicatas"`
	TotalDuplicatas  int             `json:"totalDuplicatas"`
	GapsPorAno       map[int]int     `json:"gapsPorAno"`
	GapsPorContrato  map[string]int  `json:"gapsPorContrato"`
	ForaPorContrato  map[string]int  `json:"correcoesForaPorContrato"`
	ValorBaseComGaps decimal.Decimal `json:"valorBaseComGaps"`
}

// SystemReport is the outcome of scanning every account matching the
// filters.
type SystemReport struct {
	AnalyzedAt time.Time        `json:"analyzedAt"`
	Filters    SystemFilters    `json:"filters"`
	Stats      SystemStats      `json:"stats"`
	Findings   []EntityFindings `json:"findings"`
}
