// Package main is the folio command line tool: one-shot portfolio
// optimization from CSV files, without running the HTTP service.
//
// Usage:
//
//	folio -prices prices.csv -holdings holdings.csv -sigma 0.25 -out weights.csv
//	folio -prices prices.csv -mode frontier -targets 0.15,0.20,0.25,0.30
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/folio/internal/modules/marketdata"
	"github.com/aristath/folio/internal/modules/optimization"
	"github.com/aristath/folio/internal/modules/portfolio"
	"github.com/aristath/folio/internal/modules/reports"
	"github.com/aristath/folio/internal/modules/statistics"
	"github.com/aristath/folio/pkg/logger"
)

func main() {
	var (
		pricesPath   = flag.String("prices", "", "price history CSV (Date,TICKER,... header)")
		holdingsPath = flag.String("holdings", "", "current holdings CSV (Ticker,Weight), optional")
		outPath      = flag.String("out", "", "write resulting weights CSV here (default stdout)")
		mode         = flag.String("mode", "optimize", "optimize, min-risk or frontier")
		solverURL    = flag.String("solver", "http://localhost:9100", "solver service base URL")
		sigma        = flag.Float64("sigma", 0.25, "max annualized volatility")
		maxChange    = flag.Float64("max-change", 1, "total one-way turnover cap")
		maxStocks    = flag.Int("max-stocks", 20, "cardinality cap")
		minWeight    = flag.Float64("min-weight", 0.001, "minimum nonzero stake")
		targets      = flag.String("targets", "", "comma-separated sweep targets (frontier mode)")
		tolerance    = flag.Float64("tolerance", 1e-4, "max accepted constraint violation")
		s3Bucket     = flag.String("s3-bucket", "", "also export the run report to this S3 bucket")
		s3Prefix     = flag.String("s3-prefix", "runs", "key prefix for exported run reports")
		logLevel     = flag.String("log-level", "warn", "log level")
	)
	flag.Parse()

	log := logger.New(logger.Config{Level: *logLevel, Pretty: true})

	if *pricesPath == "" {
		fail("the -prices flag is required")
	}

	est, err := buildEstimates(*pricesPath, log)
	if err != nil {
		fail("failed to build estimates: %v", err)
	}

	oldWeights := map[string]float64{}
	if *holdingsPath != "" {
		oldWeights, err = loadHoldings(*holdingsPath)
		if err != nil {
			fail("failed to load holdings: %v", err)
		}
	}

	params := optimization.Parameters{
		SigmaTarget: *sigma,
		MaxChange:   *maxChange,
		MaxStocks:   *maxStocks,
		MinWeight:   *minWeight,
	}

	solver := optimization.NewRemoteSolver(*solverURL, optimization.SolverOptions{}, log)
	model, err := optimization.BuildModel(solver, est, oldWeights, params, *tolerance, log)
	if err != nil {
		fail("failed to build model: %v", err)
	}

	ctx := context.Background()
	switch *mode {
	case "optimize", "min-risk":
		if *mode == "min-risk" {
			model.SetMode(optimization.ModeMinRisk)
		}
		sol, err := model.Solve(ctx)
		if err != nil {
			fail("solve failed: %v", err)
		}
		printSolution(sol)
		if err := writeWeights(*outPath, sol.Weights); err != nil {
			fail("failed to write weights: %v", err)
		}
		if *s3Bucket != "" {
			run := newRun(reports.RunOptimize, est.Tickers, params)
			run.Solution = sol
			exportRun(ctx, *s3Bucket, *s3Prefix, run, log)
		}

	case "frontier":
		targetValues, err := parseTargets(*targets)
		if err != nil {
			fail("invalid -targets: %v", err)
		}
		points, err := optimization.RunSweep(ctx, model, optimization.SweepRisk, targetValues, log)
		if err != nil {
			fail("sweep failed: %v", err)
		}
		printFrontier(points)
		if *s3Bucket != "" {
			run := newRun(reports.RunSweep, est.Tickers, params)
			run.Points = points
			exportRun(ctx, *s3Bucket, *s3Prefix, run, log)
		}

	default:
		fail("unknown mode %q", *mode)
	}
}

func newRun(kind reports.RunKind, tickers []string, params optimization.Parameters) reports.Run {
	return reports.Run{
		ID:        uuid.NewString(),
		Kind:      kind,
		CreatedAt: time.Now().UTC(),
		Tickers:   tickers,
		Params:    params,
	}
}

func exportRun(ctx context.Context, bucket, prefix string, run reports.Run, log zerolog.Logger) {
	exporter, err := reports.NewS3Exporter(ctx, bucket, prefix, log)
	if err != nil {
		fail("failed to create S3 exporter: %v", err)
	}
	key, err := exporter.Export(ctx, run)
	if err != nil {
		fail("failed to export run: %v", err)
	}
	fmt.Printf("exported:        s3://%s/%s\n", bucket, key)
}

func buildEstimates(path string, log zerolog.Logger) (*statistics.Estimates, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	ts, err := marketdata.LoadPricesCSV(f)
	if err != nil {
		return nil, err
	}
	return statistics.NewBuilder(log).Build(ts)
}

func fail(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func loadHoldings(path string) (map[string]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return portfolio.LoadWeightsCSV(f)
}

func parseTargets(raw string) ([]float64, error) {
	if raw == "" {
		return nil, fmt.Errorf("frontier mode needs -targets")
	}
	parts := strings.Split(raw, ",")
	targets := make([]float64, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("bad target %q: %w", p, err)
		}
		targets = append(targets, v)
	}
	return targets, nil
}

func printSolution(sol *optimization.Solution) {
	fmt.Printf("status:          %s\n", sol.Status)
	fmt.Printf("objective:       %.6f\n", sol.Objective)
	fmt.Printf("expected return: %.4f\n", sol.ExpectedReturn)
	fmt.Printf("volatility:      %.4f\n", sol.Volatility)
	fmt.Printf("turnover:        %.4f\n", sol.Turnover)
	fmt.Printf("positions:       %d\n", sol.StockCount)
}

func printFrontier(points []optimization.SweepPoint) {
	fmt.Println("target,feasible,objective")
	for _, p := range points {
		if !p.Feasible {
			fmt.Printf("%.4f,false,\n", p.Target)
			continue
		}
		fmt.Printf("%.4f,true,%.6f\n", p.Target, p.Objective)
	}
}

func writeWeights(path string, weights map[string]float64) error {
	if path == "" {
		return portfolio.WriteWeightsCSV(os.Stdout, weights)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return portfolio.WriteWeightsCSV(f, weights)
}
