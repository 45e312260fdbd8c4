package worker

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ppiankov/patentscan/internal/model"
	"github.com/rs/zerolog"
)

// Runner resolves a single fetch job. Implementations never fail the batch:
// every problem is reported inside the returned outcome.
type Runner interface {
	Run(ctx context.Context, job model.FetchJob) model.Outcome
}

// FetchJob adapts a model.FetchJob to the pool's Job interface
type FetchJob struct {
	Job    model.FetchJob
	Runner Runner
}

// Execute executes the fetch job
func (j *FetchJob) Execute(ctx context.Context) Result {
	return &OutcomeResult{Outcome: j.Runner.Run(ctx, j.Job)}
}

// OutcomeResult carries an outcome through the pool
type OutcomeResult struct {
	model.Outcome
}

// GetError returns the failure, if any
func (r *OutcomeResult) GetError() error {
	return r.Err
}

// Summary tallies a finished batch
type Summary struct {
	Total         int
	Succeeded     int
	NotFound      int
	Failed        int
	FailedNumbers []string // Candidates for a re-run
	Elapsed       time.Duration
}

func (s *Summary) add(o model.Outcome) {
	switch o.Status {
	case model.StatusSuccess:
		s.Succeeded++
	case model.StatusNotFound:
		s.NotFound++
	default:
		s.Failed++
		s.FailedNumbers = append(s.FailedNumbers, o.Number)
	}
}

// BatchProcessor fans document numbers out over a bounded worker pool
type BatchProcessor struct {
	runner      Runner
	rotator     *Rotator
	urlFor      func(number string) string
	concurrency int
	logger      zerolog.Logger
}

// NewBatchProcessor creates a new batch processor
func NewBatchProcessor(runner Runner, rotator *Rotator, urlFor func(string) string, concurrency int, logger zerolog.Logger) *BatchProcessor {
	return &BatchProcessor{
		runner:      runner,
		rotator:     rotator,
		urlFor:      urlFor,
		concurrency: concurrency,
		logger:      logger,
	}
}

// Run resolves every number and passes each outcome to emit as it
// completes. Exactly one outcome is emitted per distinct number: jobs that
// never ran because the batch was cancelled are emitted as abandoned.
// The returned error is non-nil only when emit fails.
func (b *BatchProcessor) Run(ctx context.Context, numbers []string, emit func(model.Outcome) error) (*Summary, error) {
	start := time.Now()
	numbers = dedupe(numbers)
	summary := &Summary{Total: len(numbers)}
	if len(numbers) == 0 {
		return summary, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	pool := NewPool(b.concurrency)
	pool.Start(ctx)

	go func() {
		defer pool.Close()
		for _, number := range numbers {
			job := &FetchJob{Job: b.rotator.Job(number, b.urlFor(number)), Runner: b.runner}
			if !pool.Submit(job) {
				return
			}
		}
	}()

	reported := make(map[string]bool, len(numbers))
	var emitErr error
	deliver := func(o model.Outcome) {
		reported[o.Number] = true
		summary.add(o)
		if emitErr != nil || emit == nil {
			return
		}
		if err := emit(o); err != nil {
			emitErr = fmt.Errorf("emit %s: %w", o.Number, err)
			cancel()
		}
	}

	for result := range pool.Results() {
		deliver(result.(*OutcomeResult).Outcome)
		b.logger.Debug().
			Int("done", len(reported)).
			Int("total", len(numbers)).
			Msg("progress")
	}

	abandoned := 0
	for _, number := range numbers {
		if reported[number] {
			continue
		}
		abandoned++
		deliver(model.Failed(number, fmt.Errorf("%w: %v", model.ErrAbandoned, ctx.Err())))
	}
	if abandoned > 0 {
		b.logger.Warn().Int("abandoned", abandoned).Msg("batch interrupted before all jobs ran")
	}

	summary.Elapsed = time.Since(start)
	return summary, emitErr
}

// ProcessFile reads numbers from a file and resolves them
func (b *BatchProcessor) ProcessFile(ctx context.Context, filePath string, emit func(model.Outcome) error) (*Summary, error) {
	numbers, err := ReadLines(filePath)
	if err != nil {
		return nil, fmt.Errorf("read numbers: %w", err)
	}

	return b.Run(ctx, numbers, emit)
}

// NumberRange returns count consecutive document numbers starting at start
func NumberRange(start uint64, count int) []string {
	numbers := make([]string, 0, max(count, 0))
	for i := 0; i < count; i++ {
		numbers = append(numbers, strconv.FormatUint(start+uint64(i), 10))
	}
	return numbers
}

// ReadLines reads non-empty, non-comment lines from a file, deduplicated.
// It serves number lists, user agent pools and proxy pools alike.
func ReadLines(filePath string) ([]string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		lines = append(lines, line)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan file: %w", err)
	}

	return dedupe(lines), nil
}

func dedupe(values []string) []string {
	seen := make(map[string]bool, len(values))
	unique := make([]string, 0, len(values))
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			unique = append(unique, v)
		}
	}
	return unique
}
