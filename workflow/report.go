package workflow

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/oleodata/cco_backend/models"
)

// ExportSystemReport writes the system scan to an xlsx file: one sheet
// per finding kind plus a summary.
func ExportSystemReport(report *models.SystemReport, filename string) error {
	f := excelize.NewFile()

	if err := writeGapSheet(f, report); err != nil {
		return err
	}
	if err := writeForaPeriodoSheet(f, report); err != nil {
		return err
	}
	if err := writeSummarySheet(f, report); err != nil {
		return err
	}

	if err := f.SaveAs(filename); err != nil {
		return fmt.Errorf("saving report %s: %w", filename, err)
	}
	return nil
}

func writeGapSheet(f *excelize.File, report *models.SystemReport) error {
	sheet := "Gaps"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return err
	}

	f.SetCellValue(sheet, "A1", "CCO")
	f.SetCellValue(sheet, "B1", "Contrato")
	f.SetCellValue(sheet, "C1", "Campo")
	f.SetCellValue(sheet, "D1", "Periodo")
	f.SetCellValue(sheet, "E1", "PeriodoTaxa")
	f.SetCellValue(sheet, "F1", "ValorBase")
	f.SetCellValue(sheet, "G1", "DataLimite")
	f.SetCellValue(sheet, "H1", "Prioridade")

	row := 2
	for _, finding := range report.Findings {
		for _, gap := range finding.Result.Gaps {
			f.SetCellValue(sheet, "A"+fmt.Sprint(row), finding.CCOID)
			f.SetCellValue(sheet, "B"+fmt.Sprint(row), finding.ContratoCPP)
			f.SetCellValue(sheet, "C"+fmt.Sprint(row), finding.Campo)
			f.SetCellValue(sheet, "D"+fmt.Sprint(row), gap.Period())
			f.SetCellValue(sheet, "E"+fmt.Sprint(row), gap.RatePeriod())
			f.SetCellValue(sheet, "F"+fmt.Sprint(row), gap.ValorBase.InexactFloat64())
			f.SetCellValue(sheet, "G"+fmt.Sprint(row), gap.DataLimite.Format("02/01/2006"))
			f.SetCellValue(sheet, "H"+fmt.Sprint(row), string(gap.Prioridade))
			row++
		}
	}
	return nil
}

func writeForaPeriodoSheet(f *excelize.File, report *models.SystemReport) error {
	sheet := "ForaPeriodo"
	if _, err := f.NewSheet(sheet); err != nil {
		return err
	}

	f.SetCellValue(sheet, "A1", "CCO")
	f.SetCellValue(sheet, "B1", "Contrato")
	f.SetCellValue(sheet, "C1", "PeriodoAniversario")
	f.SetCellValue(sheet, "D1", "DataLimite")
	f.SetCellValue(sheet, "E1", "DataAplicacao")
	f.SetCellValue(sheet, "F1", "DiasAtraso")
	f.SetCellValue(sheet, "G1", "TaxaAplicada")
	f.SetCellValue(sheet, "H1", "TaxaEsperada")
	f.SetCellValue(sheet, "I1", "NecessitaAjuste")

	row := 2
	for _, finding := range report.Findings {
		for _, fora := range finding.Result.ForaPeriodo {
			f.SetCellValue(sheet, "A"+fmt.Sprint(row), finding.CCOID)
			f.SetCellValue(sheet, "B"+fmt.Sprint(row), finding.ContratoCPP)
			f.SetCellValue(sheet, "C"+fmt.Sprint(row), fora.PeriodoAniversario())
			f.SetCellValue(sheet, "D"+fmt.Sprint(row), fora.DataLimite.Format("02/01/2006"))
			f.SetCellValue(sheet, "E"+fmt.Sprint(row), fora.DataAplicacao.Format("02/01/2006"))
			f.SetCellValue(sheet, "F"+fmt.Sprint(row), fora.DiasAtraso)
			f.SetCellValue(sheet, "G"+fmt.Sprint(row), fora.TaxaAplicada.InexactFloat64())
			f.SetCellValue(sheet, "H"+fmt.Sprint(row), fora.TaxaEsperada.InexactFloat64())
			f.SetCellValue(sheet, "I"+fmt.Sprint(row), fora.NecessitaAjuste)
			row++
		}
	}
	return nil
}

func writeSummarySheet(f *excelize.File, report *models.SystemReport) error {
	sheet := "Resumo"
	if _, err := f.NewSheet(sheet); err != nil {
		return err
	}

	stats := report.Stats
	rows := []struct {
		label string
		value interface{}
	}{
		{"Data da análise", report.AnalyzedAt.Format("02/01/2006 15:04")},
		{"CCOs analisadas", stats.TotalAnalisadas},
		{"CCOs com gaps", stats.ComGaps},
		{"Total de gaps", stats.TotalGaps},
		{"CCOs com correções fora do período", stats.ComForaPeriodo},
		{"Total de correções fora do período", stats.TotalForaPeriodo},
		{"CCOs com duplicatas", stats.ComDuplicatas},
		{"Total de duplicatas", stats.TotalDuplicatas},
		{"Valor base exposto a gaps", stats.ValorBaseComGaps.InexactFloat64()},
	}
	for i, r := range rows {
		f.SetCellValue(sheet, "A"+fmt.Sprint(i+1), r.label)
		f.SetCellValue(sheet, "B"+fmt.Sprint(i+1), r.value)
	}

	row := len(rows) + 2
	f.SetCellValue(sheet, "A"+fmt.Sprint(row), "Gaps por ano")
	row++
	for year, count := range stats.GapsPorAno {
		f.SetCellValue(sheet, "A"+fmt.Sprint(row), year)
		f.SetCellValue(sheet, "B"+fmt.Sprint(row), count)
		row++
	}
	return nil
}
