package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ppiankov/patentscan/internal/cache"
	"github.com/ppiankov/patentscan/internal/extract"
	"github.com/ppiankov/patentscan/internal/metrics"
	"github.com/ppiankov/patentscan/internal/model"
	"github.com/ppiankov/patentscan/internal/util"
	"github.com/rs/zerolog"
)

// Pacer spaces requests that share a pacing key
type Pacer interface {
	Wait(ctx context.Context, key string) (time.Duration, error)
}

// Pipeline resolves one document: cache, pacing, transport, extraction
type Pipeline struct {
	transport  Transport
	pacer      Pacer
	extractor  *extract.Extractor
	cache      cache.Cache // nil disables
	jobTimeout time.Duration
	logger     zerolog.Logger
}

// Option customizes a Pipeline
type Option func(*Pipeline)

// WithCache serves repeated documents from c without touching the network
func WithCache(c cache.Cache) Option {
	return func(p *Pipeline) { p.cache = c }
}

// WithJobTimeout bounds pacing, transport and extraction of one job together
func WithJobTimeout(d time.Duration) Option {
	return func(p *Pipeline) { p.jobTimeout = d }
}

// WithPipelineLogger sets the per-job logger
func WithPipelineLogger(logger zerolog.Logger) Option {
	return func(p *Pipeline) { p.logger = logger }
}

// NewPipeline creates a new pipeline over the given transport and pacer
func NewPipeline(transport Transport, pacer Pacer, opts ...Option) *Pipeline {
	p := &Pipeline{
		transport: transport,
		pacer:     pacer,
		extractor: extract.NewExtractor(),
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run resolves a job. It never returns an error: every failure is carried
// by the outcome, which always names job.Number.
func (p *Pipeline) Run(ctx context.Context, job model.FetchJob) model.Outcome {
	start := time.Now()
	metrics.InFlight.Inc()
	defer metrics.InFlight.Dec()

	jobCtx := ctx
	if p.jobTimeout > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(ctx, p.jobTimeout)
		defer cancel()
	}

	outcome, fetched := p.resolve(jobCtx, job)
	if outcome.Status == model.StatusFailed {
		outcome = classifyInterrupt(ctx, jobCtx, outcome)
	}
	outcome.Number = job.Number
	outcome.Elapsed = time.Since(start)

	metrics.OutcomesTotal.WithLabelValues(string(outcome.Status), outcome.Reason()).Inc()
	metrics.JobDuration.WithLabelValues(string(outcome.Status)).Observe(outcome.Elapsed.Seconds())

	event := p.logger.Info()
	if outcome.Status == model.StatusFailed {
		event = p.logger.Warn().Err(outcome.Err).Str("reason", outcome.Reason())
	}
	event = event.
		Str("number", job.Number).
		Str("pacing_key", util.RedactProxy(job.PacingKey)).
		Str("status", string(outcome.Status)).
		Dur("elapsed", outcome.Elapsed)
	if fetched != nil {
		event = event.Uint("attempts", fetched.Attempts).Str("final_url", fetched.FinalURL)
	}
	event.Msg("document resolved")

	return outcome
}

// resolve returns the outcome and, when the network was used, the fetch
// result behind it
func (p *Pipeline) resolve(ctx context.Context, job model.FetchJob) (model.Outcome, *FetchResult) {
	key := cache.DocumentKey(job.URL)
	if p.cache != nil {
		if page, ok := p.cache.Get(key); ok {
			outcome := p.extractor.ExtractHTML(string(page), job.Number)
			if outcome.Status == model.StatusSuccess {
				metrics.CacheLookupsTotal.WithLabelValues("hit").Inc()
				p.logger.Debug().Str("number", job.Number).Msg("cache hit")
				return outcome, nil
			}
			// Only extractable pages are cached; anything else is stale
			metrics.CacheLookupsTotal.WithLabelValues("stale").Inc()
			if err := p.cache.Delete(key); err != nil {
				p.logger.Warn().Err(err).Str("number", job.Number).Msg("cache evict failed")
			}
		} else {
			metrics.CacheLookupsTotal.WithLabelValues("miss").Inc()
		}
	}

	pacingKey := util.RedactProxy(job.PacingKey)
	waited, err := p.pacer.Wait(ctx, job.PacingKey)
	if err != nil {
		return model.Failed(job.Number, fmt.Errorf("pacing %s: %w", pacingKey, err)), nil
	}
	metrics.PacingWait.Observe(waited.Seconds())
	if waited > 0 {
		p.logger.Debug().
			Str("number", job.Number).
			Str("pacing_key", pacingKey).
			Dur("waited", waited).
			Msg("paced")
	}

	res, err := p.transport.Fetch(ctx, Request{
		URL:       job.URL,
		UserAgent: job.Identity.UserAgent,
		Headers:   job.Identity.Headers,
		Proxy:     job.Proxy,
	})
	if err != nil {
		return model.Failed(job.Number, fmt.Errorf("%w: %w", model.ErrTransport, err)), nil
	}

	if err := ctx.Err(); err != nil {
		return model.Failed(job.Number, err), res
	}

	outcome := p.extractor.ExtractHTML(res.HTML, job.Number)
	if p.cache != nil && outcome.Status == model.StatusSuccess {
		if err := p.cache.Set(key, []byte(res.HTML), 0); err != nil {
			p.logger.Warn().Err(err).Str("number", job.Number).Msg("cache store failed")
		}
	}
	return outcome, res
}

// classifyInterrupt relabels failures caused by the job deadline as timeouts
// and failures caused by batch cancellation as abandoned.
func classifyInterrupt(parent, jobCtx context.Context, outcome model.Outcome) model.Outcome {
	switch {
	case errors.Is(outcome.Err, model.ErrTimeout), errors.Is(outcome.Err, model.ErrAbandoned):
		return outcome
	case parent.Err() != nil:
		return model.Failed(outcome.Number, fmt.Errorf("%w: %w", model.ErrAbandoned, outcome.Err))
	case errors.Is(jobCtx.Err(), context.DeadlineExceeded):
		return model.Failed(outcome.Number, fmt.Errorf("%w: %w", model.ErrTimeout, outcome.Err))
	}
	return outcome
}
