package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/oleodata/cco_backend/config"
	"github.com/oleodata/cco_backend/models"
	"github.com/oleodata/cco_backend/repository"
	"github.com/oleodata/cco_backend/workflow"
)

func main() {
	ccoID := flag.String("cco-id", "", "Optional: analyze a single account")
	contrato := flag.String("contrato", "", "Optional: filter by contract (contratoCpp)")
	campo := flag.String("campo", "", "Optional: filter by field")
	exercicio := flag.Int("exercicio", 0, "Optional: filter by recognition year")
	origem := flag.String("origem", "", "Optional: filter by cost origin")
	output := flag.String("output", "", "Optional: xlsx output path (default gap_report_YYYYMMDD.xlsx)")
	withRedis := flag.Bool("redis", false, "Use redis for rate caching")
	flag.Parse()

	godotenv.Load()

	config.ConnectMongoWithRetry()
	defer config.DisconnectMongo()
	if *withRedis {
		config.ConnectRedisWithRetry()
	}

	db := config.GetMongoDatabase()
	if db == nil {
		fmt.Fprintln(os.Stderr, "mongo not initialized")
		os.Exit(1)
	}
	logger := logrus.New()

	entities := repository.NewCCORepository(db, logger)
	rates := repository.NewRateRepository(db, logger)
	analyzer := workflow.NewGapAnalyzer(rates, logger)

	filters := models.SystemFilters{
		CCOID:             strings.TrimSpace(*ccoID),
		ContratoCPP:       strings.TrimSpace(*contrato),
		Campo:             strings.TrimSpace(*campo),
		AnoReconhecimento: *exercicio,
		OrigemDosGastos:   strings.TrimSpace(*origem),
	}

	ctx := context.Background()
	now := time.Now().UTC()
	report, err := analyzer.AnalyzeSystem(ctx, entities, filters, now)
	if err != nil {
		fmt.Fprintf(os.Stderr, "analysis failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("CCOs analisadas: %d\n", report.Stats.TotalAnalisadas)
	fmt.Printf("CCOs com gaps: %d (total %d)\n", report.Stats.ComGaps, report.Stats.TotalGaps)
	fmt.Printf("CCOs com correções fora do período: %d (total %d)\n", report.Stats.ComForaPeriodo, report.Stats.TotalForaPeriodo)
	fmt.Printf("CCOs com duplicatas: %d (total %d)\n", report.Stats.ComDuplicatas, report.Stats.TotalDuplicatas)

	filename := strings.TrimSpace(*output)
	if filename == "" {
		filename = fmt.Sprintf("gap_report_%s.xlsx", now.Format("20060102"))
	}
	if err := workflow.ExportSystemReport(report, filename); err != nil {
		fmt.Fprintf(os.Stderr, "export failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("relatório gravado em %s\n", filename)
}
