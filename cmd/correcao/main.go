package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/oleodata/cco_backend/config"
	"github.com/oleodata/cco_backend/repository"
	"github.com/oleodata/cco_backend/workflow"
)

// Drives one correction session from the command line: analyze,
// preview, and optionally approve and apply everything in one run.
func main() {
	ccoID := flag.String("cco-id", "", "Required: account id")
	userID := flag.String("user", "cli", "User recorded on the session")
	vigente := flag.Bool("vigente", false, "Evaluate the current-year correction instead of the gap analysis")
	autoApply := flag.Bool("apply", false, "Approve every proposal and apply (default stops at preview)")
	flag.Parse()

	if strings.TrimSpace(*ccoID) == "" {
		fmt.Fprintln(os.Stderr, "--cco-id is required")
		os.Exit(1)
	}

	godotenv.Load()

	config.ConnectMongoWithRetry()
	defer config.DisconnectMongo()
	config.ConnectRedisWithRetry()

	db := config.GetMongoDatabase()
	if db == nil {
		fmt.Fprintln(os.Stderr, "mongo not initialized")
		os.Exit(1)
	}
	logger := logrus.New()

	entities := repository.NewCCORepository(db, logger)
	rates := repository.NewRateRepository(db, logger)
	sessions := repository.NewSessionRepository(db, logger)
	orch := workflow.NewOrchestrator(entities, rates, sessions, config.GetRedisLock(), logger)

	ctx := context.Background()

	if *vigente {
		result, err := orch.EvaluateCurrentYearIndex(ctx, *ccoID, *userID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "evaluation failed: %v\n", err)
			os.Exit(1)
		}
		printJSON(result)
		if !result.Applicable || !*autoApply {
			return
		}
		approveAndApply(ctx, orch, result.Session.SessionID)
		return
	}

	summary, err := orch.StartAnalysis(ctx, *ccoID, *userID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "analysis failed: %v\n", err)
		os.Exit(1)
	}
	printJSON(summary)

	proposals, err := orch.GenerateProposals(ctx, summary.SessionID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "proposal generation failed: %v\n", err)
		os.Exit(1)
	}
	printJSON(proposals)

	if !*autoApply {
		return
	}
	if len(proposals.Proposals) == 0 {
		fmt.Println("nenhuma proposta automática para este cenário")
		return
	}
	approveAndApply(ctx, orch, summary.SessionID)
}

func approveAndApply(ctx context.Context, orch *workflow.Orchestrator, sessionID string) {
	session, err := orch.GetSessionStatus(ctx, sessionID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading session failed: %v\n", err)
		os.Exit(1)
	}
	ids := make([]string, 0, len(session.Proposals))
	for _, p := range session.Proposals {
		if p.Unresolvable {
			continue
		}
		ids = append(ids, p.CorrectionID)
	}

	approval, err := orch.ApproveCorrections(ctx, sessionID, ids)
	if err != nil {
		fmt.Fprintf(os.Stderr, "approval failed: %v\n", err)
		os.Exit(1)
	}
	printJSON(approval)

	outcome, err := orch.ApplyCorrections(ctx, sessionID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "apply failed: %v\n", err)
		os.Exit(1)
	}
	printJSON(outcome)
}

func printJSON(v interface{}) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "encode: %v\n", err)
		return
	}
	fmt.Println(string(b))
}
