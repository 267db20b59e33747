package workflow

import (
	"context"
	"testing"
	"time"

	"github.com/oleodata/cco_backend/models"
)

func TestFirstAnniversary(t *testing.T) {
	cases := []struct {
		recognition time.Time
		wantYear    int
		wantMonth   int
	}{
		{date(2023, 8, 15), 2024, 9},
		{date(2023, 1, 1), 2024, 2},
		{date(2022, 12, 5), 2024, 1},
		{date(2020, 11, 30), 2021, 12},
	}
	for _, c := range cases {
		year, month := firstAnniversary(c.recognition)
		if year != c.wantYear || month != c.wantMonth {
			t.Errorf("firstAnniversary(%s) = %d/%d, want %d/%d",
				c.recognition.Format("2006-01-02"), month, year, c.wantMonth, c.wantYear)
		}
	}
}

func TestAnalyzeDetectsGapForMissedAnniversary(t *testing.T) {
	analyzer := NewGapAnalyzer(newFakeRateRepo(), testLogger())
	cco := testCCO("cco-1", date(2023, 8, 15), "1000000")

	result := analyzer.Analyze(context.Background(), cco, date(2025, 3, 1))

	if len(result.Gaps) != 1 {
		t.Fatalf("expected 1 gap, got %d", len(result.Gaps))
	}
	gap := result.Gaps[0]
	if gap.Ano != 2024 || gap.Mes != 9 {
		t.Errorf("gap period = %s, want 09/2024", gap.Period())
	}
	if gap.AnoTaxa != 2024 || gap.MesTaxa != 8 {
		t.Errorf("rate period = %s, want 08/2024", gap.RatePeriod())
	}
	if !gap.ValorBase.Equal(money("1000000")) {
		t.Errorf("gap base = %s, want 1000000", gap.ValorBase)
	}
	if gap.DataLimite.Day() != 19 || gap.DataLimite.Month() != time.September {
		t.Errorf("deadline = %s, want day 19 of September", gap.DataLimite)
	}
	if gap.Prioridade != models.PriorityBaixa {
		t.Errorf("priority = %s, want BAIXA", gap.Prioridade)
	}
	if gap.ID() != "gap_202409" {
		t.Errorf("gap id = %s, want gap_202409", gap.ID())
	}
}

func TestAnalyzeCurrentMonthWaitsForCutoffDay(t *testing.T) {
	analyzer := NewGapAnalyzer(newFakeRateRepo(), testLogger())
	cco := testCCO("cco-1", date(2024, 2, 10), "500000")

	before := analyzer.Analyze(context.Background(), cco, date(2025, 3, 18))
	if len(before.Gaps) != 0 {
		t.Fatalf("expected no gap before the cutoff day, got %d", len(before.Gaps))
	}

	after := analyzer.Analyze(context.Background(), cco, date(2025, 3, 19))
	if len(after.Gaps) != 1 {
		t.Fatalf("expected 1 gap on the cutoff day, got %d", len(after.Gaps))
	}
	if after.Gaps[0].Period() != "03/2025" {
		t.Errorf("gap period = %s, want 03/2025", after.Gaps[0].Period())
	}
}

func TestAnalyzeOnTimeCorrectionProducesNoFindings(t *testing.T) {
	analyzer := NewGapAnalyzer(newFakeRateRepo().set(2024, 8, "1.04"), testLogger())
	cco := testCCO("cco-1", date(2023, 8, 15), "1000000",
		indexCorrection(date(2024, 9, 10), "1000000", "1040000", "1.04"))

	result := analyzer.Analyze(context.Background(), cco, date(2025, 3, 1))

	if result.HasFindings() {
		t.Fatalf("expected no findings, got gaps=%d fora=%d dup=%d",
			len(result.Gaps), len(result.ForaPeriodo), len(result.Duplicatas))
	}
}

func TestAnalyzeLateCorrectionIsOutOfPeriod(t *testing.T) {
	rates := newFakeRateRepo().set(2024, 8, "1.04")
	analyzer := NewGapAnalyzer(rates, testLogger())
	cco := testCCO("cco-1", date(2023, 8, 15), "1000000",
		indexCorrection(date(2024, 11, 20), "1000000", "1040000", "1.04"))

	result := analyzer.Analyze(context.Background(), cco, date(2025, 3, 1))

	if len(result.Gaps) != 0 {
		t.Fatalf("late correction must not register as gap, got %d gaps", len(result.Gaps))
	}
	if len(result.ForaPeriodo) != 1 {
		t.Fatalf("expected 1 out-of-period correction, got %d", len(result.ForaPeriodo))
	}
	fora := result.ForaPeriodo[0]
	if fora.AnoAniversario != 2024 || fora.MesAniversario != 9 {
		t.Errorf("anniversary = %s, want 09/2024", fora.PeriodoAniversario())
	}
	if fora.AnoAplicado != 2024 || fora.MesAplicado != 11 {
		t.Errorf("applied period = %02d/%d, want 11/2024", fora.MesAplicado, fora.AnoAplicado)
	}
	if fora.DiasAtraso <= 0 {
		t.Errorf("days late = %d, want positive", fora.DiasAtraso)
	}
	if !fora.TaxaEsperadaOk {
		t.Error("expected rate should resolve from the repository")
	}
	if fora.NecessitaAjuste {
		t.Error("applied rate matches the expected one, no adjustment needed")
	}
}

func TestAnalyzeLateCorrectionMissingExpectedRate(t *testing.T) {
	analyzer := NewGapAnalyzer(newFakeRateRepo(), testLogger())
	cco := testCCO("cco-1", date(2023, 8, 15), "1000000",
		indexCorrection(date(2024, 11, 20), "1000000", "1040000", "1.04"))

	result := analyzer.Analyze(context.Background(), cco, date(2025, 3, 1))

	if len(result.ForaPeriodo) != 1 {
		t.Fatalf("expected 1 out-of-period correction, got %d", len(result.ForaPeriodo))
	}
	fora := result.ForaPeriodo[0]
	if fora.TaxaEsperadaOk {
		t.Error("expected rate cannot resolve, TaxaEsperadaOk must be false")
	}
	if !fora.NecessitaAjuste {
		t.Error("unknown expected rate must flag the correction for adjustment")
	}
}

func TestAnalyzeSkipsGapWithNonPositiveBase(t *testing.T) {
	analyzer := NewGapAnalyzer(newFakeRateRepo(), testLogger())
	cco := testCCO("cco-1", date(2022, 5, 10), "300000",
		recoveryCorrection(date(2023, 1, 15), "300000", "0"))

	result := analyzer.Analyze(context.Background(), cco, date(2023, 12, 1))

	if len(result.Gaps) != 0 {
		t.Fatalf("a zeroed account must not produce gaps, got %d", len(result.Gaps))
	}
}

func TestAnalyzeFindsDuplicates(t *testing.T) {
	analyzer := NewGapAnalyzer(newFakeRateRepo(), testLogger())
	cco := testCCO("cco-1", date(2022, 8, 10), "1000000",
		indexCorrection(date(2023, 9, 16), "1000000", "1045000", "1.045"),
		indexCorrection(date(2023, 9, 28), "1045000", "1090000", "1.045"))

	result := analyzer.Analyze(context.Background(), cco, date(2024, 1, 10))

	if len(result.Duplicatas) != 1 {
		t.Fatalf("expected 1 duplicate, got %d", len(result.Duplicatas))
	}
	dup := result.Duplicatas[0]
	if dup.Indice != 1 {
		t.Errorf("duplicate index = %d, want 1", dup.Indice)
	}
	if dup.Periodo() != "09/2023" {
		t.Errorf("duplicate period = %s, want 09/2023", dup.Periodo())
	}
	if !dup.ValorDuplicado.Equal(money("45000")) {
		t.Errorf("duplicated value = %s, want 45000", dup.ValorDuplicado)
	}
	if !dup.DataDuplicata.After(dup.DataOriginal) {
		t.Error("duplicate date must be after the original's")
	}
}

func TestAnalyzeIsDeterministic(t *testing.T) {
	rates := newFakeRateRepo().set(2024, 8, "1.04")
	analyzer := NewGapAnalyzer(rates, testLogger())
	cco := testCCO("cco-1", date(2022, 8, 10), "1000000",
		indexCorrection(date(2023, 11, 20), "1000000", "1045000", "1.045"))
	now := date(2025, 3, 1)

	first := analyzer.Analyze(context.Background(), cco, now)
	second := analyzer.Analyze(context.Background(), cco, now)

	if len(first.Gaps) != len(second.Gaps) || len(first.ForaPeriodo) != len(second.ForaPeriodo) {
		t.Fatal("repeated analysis over the same input diverged")
	}
	for i := range first.Gaps {
		a, b := first.Gaps[i], second.Gaps[i]
		if a.Period() != b.Period() || a.RatePeriod() != b.RatePeriod() ||
			!a.ValorBase.Equal(b.ValorBase) || !a.DataLimite.Equal(b.DataLimite) {
			t.Errorf("gap %d differs between runs", i)
		}
	}
}
