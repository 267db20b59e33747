package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// MonetaryCorrection is one entry of a cost account's correction
// history: an index application, a rectification, a recovery or an
// administrative adjustment.
type MonetaryCorrection struct {
	Tipo                          CorrectionEntryType `json:"tipo"`
	SubTipo                       string              `json:"subTipo,omitempty"`
	Contrato                      string              `json:"contrato,omitempty"`
	Campo                         string              `json:"campo,omitempty"`
	DataCorrecao                  time.Time           `json:"dataCorrecao,omitempty"`
	DataCriacaoCorrecao           time.Time           `json:"dataCriacaoCorrecao,omitempty"`
	ValorReconhecido              decimal.Decimal     `json:"valorReconhecido"`
	ValorReconhecidoComOH         decimal.Decimal     `json:"valorReconhecidoComOH"`
	ValorReconhecidoComOhOriginal decimal.Decimal     `json:"valorReconhecidoComOhOriginal"`
	OverHeadExploracao            decimal.Decimal     `json:"overHeadExploracao"`
	OverHeadProducao              decimal.Decimal     `json:"overHeadProducao"`
	OverHeadTotal                 decimal.Decimal     `json:"overHeadTotal"`
	DiferencaValor                decimal.Decimal     `json:"diferencaValor"`
	TaxaCorrecao                  decimal.Decimal     `json:"taxaCorrecao"`
	ValorRecuperado               decimal.Decimal     `json:"valorRecuperado"`
	ValorRecuperadoTotal          decimal.Decimal     `json:"valorRecuperadoTotal"`
	FaseRemessa                   string              `json:"faseRemessa,omitempty"`
	QuantidadeLancamento          int                 `json:"quantidadeLancamento"`
	ValorLancamentoTotal          decimal.Decimal     `json:"valorLancamentoTotal"`
	ValorNaoPassivelRecuperacao   decimal.Decimal     `json:"valorNaoPassivelRecuperacao"`
	ValorReconhecivel             decimal.Decimal     `json:"valorReconhecivel"`
	ValorNaoReconhecido           decimal.Decimal     `json:"valorNaoReconhecido"`
	ValorReconhecidoExploracao    decimal.Decimal     `json:"valorReconhecidoExploracao"`
	ValorReconhecidoProducao      decimal.Decimal     `json:"valorReconhecidoProducao"`
	IgpmAcumulado                 decimal.Decimal     `json:"igpmAcumulado"`
	IgpmAcumuladoReais            decimal.Decimal     `json:"igpmAcumuladoReais"`
	Ativo                         bool                `json:"ativo"`
	Observacao                    string              `json:"observacao,omitempty"`
	Transferencia                 bool                `json:"transferencia"`
}

// EffectiveDate is the date the entry counts for on the correction
// timeline: the correction date when present, the creation date
// otherwise.
func (c MonetaryCorrection) EffectiveDate() time.Time {
	if !c.DataCorrecao.IsZero() {
		return c.DataCorrecao
	}
	return c.DataCriacaoCorrecao
}

// Impact is how much the entry moved the running balance.
func (c MonetaryCorrection) Impact() decimal.Decimal {
	return c.ValorReconhecidoComOH.Sub(c.ValorReconhecidoComOhOriginal)
}

// CCO is a cost-account document with its full monetary correction
// history embedded.
type CCO struct {
	ID                          string               `json:"id"`
	ContratoCPP                 string               `json:"contratoCpp"`
	Campo                       string               `json:"campo"`
	Remessa                     int                  `json:"remessa"`
	RemessaExposicao            int                  `json:"remessaExposicao"`
	FaseRemessa                 string               `json:"faseRemessa"`
	Exercicio                   int                  `json:"exercicio"`
	Periodo                     int                  `json:"periodo"`
	OrigemDosGastos             string               `json:"origemDosGastos"`
	DataReconhecimento          time.Time            `json:"dataReconhecimento"`
	DataLancamento              time.Time            `json:"dataLancamento"`
	ValorReconhecido            decimal.Decimal      `json:"valorReconhecido"`
	ValorReconhecidoComOH       decimal.Decimal      `json:"valorReconhecidoComOH"`
	OverHeadTotal               decimal.Decimal      `json:"overHeadTotal"`
	OverHeadExploracao          decimal.Decimal      `json:"overHeadExploracao"`
	OverHeadProducao            decimal.Decimal      `json:"overHeadProducao"`
	ValorReconhecidoExploracao  decimal.Decimal      `json:"valorReconhecidoExploracao"`
	ValorReconhecidoProducao    decimal.Decimal      `json:"valorReconhecidoProducao"`
	ValorLancamentoTotal        decimal.Decimal      `json:"valorLancamentoTotal"`
	ValorNaoReconhecido         decimal.Decimal      `json:"valorNaoReconhecido"`
	ValorReconhecivel           decimal.Decimal      `json:"valorReconhecivel"`
	ValorNaoPassivelRecuperacao decimal.Decimal      `json:"valorNaoPassivelRecuperacao"`
	QuantidadeLancamento        int                  `json:"quantidadeLancamento"`
	FlgRecuperado               bool                 `json:"flgRecuperado"`
	CorrecoesMonetarias         []MonetaryCorrection `json:"correcoesMonetarias"`
}

// Validate checks the fields every analysis depends on.
func (c *CCO) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("cco without id")
	}
	if c.DataReconhecimento.IsZero() {
		return fmt.Errorf("cco %s without recognition date", c.ID)
	}
	return nil
}

// RootValue is the recognized value with overhead before any correction.
func (c *CCO) RootValue() decimal.Decimal {
	return c.ValorReconhecidoComOH
}

// CurrentValue is the balance after the last correction, or the root
// value when the history is empty.
func (c *CCO) CurrentValue() decimal.Decimal {
	if n := len(c.CorrecoesMonetarias); n > 0 {
		return c.CorrecoesMonetarias[n-1].ValorReconhecidoComOH
	}
	return c.RootValue()
}

// LastCorrectionBefore returns the latest entry whose effective date is
// strictly before t, or nil.
func (c *CCO) LastCorrectionBefore(t time.Time) *MonetaryCorrection {
	var found *MonetaryCorrection
	for i := range c.CorrecoesMonetarias {
		d := c.CorrecoesMonetarias[i].EffectiveDate()
		if d.IsZero() || !d.Before(t) {
			continue
		}
		if found == nil || !d.Before(found.EffectiveDate()) {
			found = &c.CorrecoesMonetarias[i]
		}
	}
	return found
}

// ValueAt is the balance as of t: the last correction before t, or the
// root value when none exists.
func (c *CCO) ValueAt(t time.Time) decimal.Decimal {
	if prev := c.LastCorrectionBefore(t); prev != nil {
		return prev.ValorReconhecidoComOH
	}
	return c.RootValue()
}

// HasRecovery reports whether any RECUPERACAO entry exists.
func (c *CCO) HasRecovery() bool {
	for i := range c.CorrecoesMonetarias {
		if c.CorrecoesMonetarias[i].Tipo == EntryTypeRecuperacao {
			return true
		}
	}
	return false
}

// LastRecovery returns the most recent RECUPERACAO entry by effective
// date, or nil.
func (c *CCO) LastRecovery() *MonetaryCorrection {
	var found *MonetaryCorrection
	for i := range c.CorrecoesMonetarias {
		if c.CorrecoesMonetarias[i].Tipo != EntryTypeRecuperacao {
			continue
		}
		if found == nil || !c.CorrecoesMonetarias[i].EffectiveDate().Before(found.EffectiveDate()) {
			found = &c.CorrecoesMonetarias[i]
		}
	}
	return found
}

// IndexCorrectionAt returns the first index entry effective in the
// given month, or nil.
func (c *CCO) IndexCorrectionAt(year, month int) *MonetaryCorrection {
	for i := range c.CorrecoesMonetarias {
		entry := &c.CorrecoesMonetarias[i]
		if !entry.Tipo.IsIndex() {
			continue
		}
		d := entry.EffectiveDate()
		if d.Year() == year && int(d.Month()) == month {
			return entry
		}
	}
	return nil
}
