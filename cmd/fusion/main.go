// Command fusion turns gridded weather observations into daily per-region
// statistics. It has three subcommands mirroring the pipeline phases:
//
//	fusion build-mapping   build or rebuild the grid-to-region mapping
//	fusion acquire         download observations into the raw cache
//	fusion process         aggregate cached observations into daily tables
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	httpadapter "gridfusion/internal/adapter/http"
	kafkaadapter "gridfusion/internal/adapter/kafka"
	"gridfusion/internal/adapter/kma"
	"gridfusion/internal/config"
	"gridfusion/internal/domain"
	"gridfusion/internal/geo"
	"gridfusion/internal/observability"
	"gridfusion/internal/pipeline"
	"gridfusion/internal/store"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	_ = godotenv.Load(".env")

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	layout := store.Layout{
		MappingFile: cfg.MappingFile,
		RawDir:      cfg.RawDir,
		OutputDir:   cfg.OutputDir,
	}
	registry := geo.NewCoordinateRegistry(cfg.GridNetCDF)
	boundaries := geo.NewBoundaryStore(cfg.BoundaryShapefile)
	mapper := geo.NewMapper(registry, boundaries, cfg.MappingFile, cfg.CoverageWarnRatio, logger, metrics)
	source := kma.NewClient(cfg, logger, metrics)

	var publisher pipeline.Publisher
	if cfg.KafkaEnabled {
		kp := kafkaadapter.NewPublisher(cfg, logger)
		defer kp.Close()
		publisher = kp
		logger.Info("kafka publishing enabled", "topic", cfg.KafkaSinkTopic)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var exit int
	switch os.Args[1] {
	case "build-mapping":
		exit = runBuildMapping(os.Args[2:], mapper, logger)
	case "acquire":
		exit = runPhase(ctx, os.Args[2:], "acquire", cfg, mapper, source, registry, publisher, layout, logger, metrics)
	case "process":
		exit = runPhase(ctx, os.Args[2:], "process", cfg, mapper, source, registry, publisher, layout, logger, metrics)
	case "-h", "--help", "help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", os.Args[1])
		usage()
		exit = 2
	}
	os.Exit(exit)
}

func usage() {
	fmt.Fprint(os.Stderr, `usage: fusion <command> [flags]

commands:
  build-mapping  -force
  acquire        -start YYYYMMDD -end YYYYMMDD [-variables ta,rn_60m] [-workers N] [-force]
  process        -start YYYYMMDD -end YYYYMMDD [-variables ta,rn_60m] [-workers N]
`)
}

func runBuildMapping(args []string, mapper *geo.Mapper, logger *slog.Logger) int {
	fs := flag.NewFlagSet("build-mapping", flag.ExitOnError)
	force := fs.Bool("force", false, "rebuild even if a cached mapping exists")
	fs.Parse(args) //nolint:errcheck // ExitOnError

	mapping, err := mapper.BuildMapping(*force)
	if err != nil {
		logger.Error("mapping build failed", "error", err)
		return 1
	}
	logger.Info("mapping ready",
		"points", mapping.Len(), "mapped", mapping.MappedCount(), "unmapped", mapping.UnmappedCount())
	return 0
}

func runPhase(ctx context.Context, args []string, phase string, cfg *config.Config, mapper *geo.Mapper, source *kma.Client, registry *geo.CoordinateRegistry, publisher pipeline.Publisher, layout store.Layout, logger *slog.Logger, metrics *observability.Metrics) int {
	fs := flag.NewFlagSet(phase, flag.ExitOnError)
	start := fs.String("start", "", "first date, YYYYMMDD (required)")
	end := fs.String("end", "", "last date, YYYYMMDD (defaults to start)")
	varFlag := fs.String("variables", "", "comma-separated variable keys (default: all)")
	workers := fs.Int("workers", cfg.Workers, "concurrent units")
	force := fs.Bool("force", false, "refetch even if cached (acquire only)")
	fs.Parse(args) //nolint:errcheck // ExitOnError

	dates, vars, err := resolveRange(*start, *end, *varFlag)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		fs.Usage()
		return 2
	}

	orch := pipeline.New(mapper, source, registry, publisher, layout, logger, metrics, *workers)

	if cfg.MetricsAddr != "" {
		srv := httpadapter.NewServer(cfg.MetricsAddr, orch, logger)
		go func() {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server error", "error", err)
			}
		}()
		defer srv.Shutdown(context.Background()) //nolint:errcheck // shutting down anyway
	}

	var summary *pipeline.Summary
	switch phase {
	case "acquire":
		summary, err = orch.AcquireRange(ctx, dates, vars, *force)
	case "process":
		summary, err = orch.ProcessRange(ctx, dates, vars)
	}
	if err != nil {
		logger.Error(phase+" failed", "error", err)
		return 1
	}

	report(phase, summary)
	if len(summary.Failed) > 0 {
		return 1
	}
	return 0
}

func resolveRange(start, end, varFlag string) ([]domain.Date, []domain.Variable, error) {
	if start == "" {
		return nil, nil, errors.New("-start is required")
	}
	if end == "" {
		end = start
	}
	s, err := domain.ParseDate(start)
	if err != nil {
		return nil, nil, err
	}
	e, err := domain.ParseDate(end)
	if err != nil {
		return nil, nil, err
	}
	dates, err := domain.DateRange(s, e)
	if err != nil {
		return nil, nil, err
	}

	if varFlag == "" {
		return dates, domain.AllVariables(), nil
	}
	vars, err := domain.Variables(strings.Split(varFlag, ","))
	if err != nil {
		return nil, nil, err
	}
	return dates, vars, nil
}

func report(phase string, s *pipeline.Summary) {
	fmt.Printf("%s: %d processed, %d skipped, %d failed\n",
		phase, len(s.Processed), len(s.Skipped), len(s.Failed))
	for _, err := range s.Errors {
		fmt.Printf("  failed: %v\n", err)
	}
}
