package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ppiankov/patentscan/internal/logging"
	"github.com/ppiankov/patentscan/internal/model"
	"github.com/ppiankov/patentscan/internal/sink"
	"github.com/ppiankov/patentscan/internal/worker"
	"github.com/spf13/cobra"
)

var (
	batchFrom           uint64
	batchCount          int
	batchWorkers        int
	batchInterval       time.Duration
	batchProxiesFile    string
	batchUserAgentsFile string
	batchOutput         string
	batchFormat         string
	batchFailedOut      string
	batchMetricsAddr    string
	batchNoCache        bool
	batchTimeout        time.Duration
	batchSeed           uint64
)

// batchCmd represents the batch command
var batchCmd = &cobra.Command{
	Use:   "batch [file]",
	Short: "Extract many patent documents in parallel",
	Long: `Batch resolves a list of document numbers concurrently and writes one row
per number, in completion order, to the output file:
- Numbers come from a file (one per line, # comments) or --from/--count
- Repeated numbers are resolved once, so the output can have fewer rows
  than the input file has lines
- User agents and proxies rotate per job
- Requests through one proxy are spaced by the pacing interval
- Interrupting the batch keeps every row written so far

Example:
  patentscan batch --from 2005330 --count 100
  patentscan batch numbers.txt --workers 8 --proxies-file proxies.txt -o data.xlsx
  patentscan batch numbers.txt --failed-out retry.txt --metrics-addr :9090`,
	Args: cobra.MaximumNArgs(1),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().Uint64Var(&batchFrom, "from", 0, "first document number of a range")
	batchCmd.Flags().IntVar(&batchCount, "count", 0, "number of documents in the range")
	batchCmd.Flags().IntVar(&batchWorkers, "workers", 0, "concurrent workers (default from config)")
	batchCmd.Flags().DurationVar(&batchInterval, "interval", 0, "minimum interval between requests per proxy (default from config)")
	batchCmd.Flags().StringVar(&batchProxiesFile, "proxies-file", "", "file with one proxy URL per line")
	batchCmd.Flags().StringVar(&batchUserAgentsFile, "user-agents-file", "", "file with one user agent per line")
	batchCmd.Flags().StringVarP(&batchOutput, "output", "o", "", "output file (default from config)")
	batchCmd.Flags().StringVar(&batchFormat, "format", "", "output format: csv, xlsx, jsonl (default: from extension)")
	batchCmd.Flags().StringVar(&batchFailedOut, "failed-out", "", "write numbers that failed to this file for a re-run")
	batchCmd.Flags().StringVar(&batchMetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	batchCmd.Flags().BoolVar(&batchNoCache, "no-cache", false, "disable cache (force fresh fetch)")
	batchCmd.Flags().DurationVar(&batchTimeout, "timeout", 0, "total timeout for the batch (0 for none)")
	batchCmd.Flags().Uint64Var(&batchSeed, "seed", 0, "seed for random rotation (0 for time based)")
}

// applyBatchFlags overrides configuration with explicitly set flags
func applyBatchFlags(cmd *cobra.Command, cfg *model.Config) error {
	flags := cmd.Flags()
	if flags.Changed("workers") {
		cfg.Concurrency.Workers = batchWorkers
	}
	if flags.Changed("interval") {
		cfg.Pacing.MinInterval = batchInterval
	}
	if batchOutput != "" {
		cfg.Output.Path = batchOutput
	}
	cfg.Output.Format = outputFormat(batchFormat, cfg.Output.Path, cfg.Output.Format)
	if batchMetricsAddr != "" {
		cfg.Metrics.Addr = batchMetricsAddr
	}
	if batchProxiesFile != "" {
		proxies, err := worker.ReadLines(batchProxiesFile)
		if err != nil {
			return fmt.Errorf("read proxies: %w", err)
		}
		cfg.Identity.Proxies = proxies
	}
	if batchUserAgentsFile != "" {
		agents, err := worker.ReadLines(batchUserAgentsFile)
		if err != nil {
			return fmt.Errorf("read user agents: %w", err)
		}
		cfg.Identity.UserAgents = agents
	}
	return nil
}

// batchSource resolves where identifiers come from: a numbers file or a range
func batchSource(args []string) (file string, numbers []string, err error) {
	hasRange := batchCount > 0
	switch {
	case len(args) == 1 && hasRange:
		return "", nil, fmt.Errorf("give either a numbers file or --from/--count, not both")
	case len(args) == 1:
		if _, err := os.Stat(args[0]); err != nil {
			return "", nil, fmt.Errorf("numbers file: %w", err)
		}
		return args[0], nil, nil
	case hasRange && batchFrom > 0:
		return "", worker.NumberRange(batchFrom, batchCount), nil
	default:
		return "", nil, fmt.Errorf("no numbers: give a file or --from and --count")
	}
}

func runBatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := applyBatchFlags(cmd, cfg); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	setupLogger(cfg)

	numbersFile, numbers, err := batchSource(args)
	if err != nil {
		return err
	}

	runID := uuid.New().String()
	logger := logging.NewLogger("batch").With().Str("run_id", runID).Logger()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if batchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, batchTimeout)
		defer cancel()
	}

	metricsCtx, stopMetrics := context.WithCancel(context.Background())
	defer stopMetrics()
	serveMetrics(metricsCtx, cfg.Metrics.Addr)

	out, err := sink.New(cfg.Output.Format, cfg.Output.Path)
	if err != nil {
		return err
	}

	seed := batchSeed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}

	processor := worker.NewBatchProcessor(
		buildPipeline(cfg, batchNoCache),
		newRotator(cfg, seed),
		cfg.DocumentURL,
		cfg.Concurrency.Workers,
		logger,
	)

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  patentscan batch %s\n", runID)
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "\n")
	if numbersFile != "" {
		fmt.Fprintf(os.Stderr, "  Numbers:    %s\n", numbersFile)
	} else {
		fmt.Fprintf(os.Stderr, "  Documents:  %d\n", len(numbers))
	}
	fmt.Fprintf(os.Stderr, "  Workers:    %d\n", cfg.Concurrency.Workers)
	fmt.Fprintf(os.Stderr, "  Proxies:    %d\n", len(cfg.Identity.Proxies))
	fmt.Fprintf(os.Stderr, "  Agents:     %d\n", len(cfg.Identity.UserAgents))
	fmt.Fprintf(os.Stderr, "  Interval:   %v per proxy\n", cfg.Pacing.MinInterval)
	fmt.Fprintf(os.Stderr, "  Output:     %s (%s)\n", cfg.Output.Path, cfg.Output.Format)
	fmt.Fprintf(os.Stderr, "\n")

	var summary *worker.Summary
	var runErr error
	if numbersFile != "" {
		summary, runErr = processor.ProcessFile(ctx, numbersFile, out.Write)
	} else {
		summary, runErr = processor.Run(ctx, numbers, out.Write)
	}
	if err := out.Close(); err != nil && runErr == nil {
		runErr = fmt.Errorf("close output: %w", err)
	}
	if summary == nil {
		return runErr
	}

	if batchFailedOut != "" && len(summary.FailedNumbers) > 0 {
		if err := writeLines(batchFailedOut, summary.FailedNumbers); err != nil {
			logger.Error().Err(err).Msg("could not write failed numbers")
		}
	}

	printSummary(summary, cfg.Output.Path)

	if runErr != nil {
		return runErr
	}
	if ctx.Err() != nil {
		return fmt.Errorf("batch interrupted: %w", ctx.Err())
	}
	return nil
}

func printSummary(s *worker.Summary, output string) {
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  Batch Complete\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Total:      %d\n", s.Total)
	fmt.Fprintf(os.Stderr, "  Success:    %d\n", s.Succeeded)
	fmt.Fprintf(os.Stderr, "  Not found:  %d\n", s.NotFound)
	fmt.Fprintf(os.Stderr, "  Failures:   %d\n", s.Failed)
	fmt.Fprintf(os.Stderr, "  Elapsed:    %v\n", s.Elapsed.Round(time.Millisecond))
	fmt.Fprintf(os.Stderr, "  Output:     %s\n", output)
	fmt.Fprintf(os.Stderr, "\n")
}

// writeLines writes values one per line, the format ReadLines accepts
func writeLines(path string, values []string) error {
	return os.WriteFile(path, []byte(strings.Join(values, "\n")+"\n"), 0644)
}
