package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/ppiankov/patentscan/internal/cache"
	"github.com/ppiankov/patentscan/internal/logging"
	"github.com/ppiankov/patentscan/internal/metrics"
	"github.com/ppiankov/patentscan/internal/model"
	"github.com/ppiankov/patentscan/internal/pipeline"
	"github.com/ppiankov/patentscan/internal/util"
	"github.com/ppiankov/patentscan/internal/worker"
)

// buildPipeline wires transport, pacing and cache from the configuration
func buildPipeline(cfg *model.Config, noCache bool) *pipeline.Pipeline {
	fetchOpts := []pipeline.FetcherOption{
		pipeline.WithLogger(logging.NewLogger("fetcher")),
	}
	if limiter := worker.NewLimiter(cfg.RateLimiting.RequestsPerSecond, cfg.RateLimiting.BurstSize); limiter != nil {
		fetchOpts = append(fetchOpts, pipeline.WithRateLimiter(limiter))
	}
	if cfg.HTTP.RespectRobots {
		fetchOpts = append(fetchOpts, pipeline.WithRobots(util.NewRobotsChecker(cfg.HTTP.Timeout)))
	}
	fetcher := pipeline.NewFetcher(cfg.HTTP, fetchOpts...)

	opts := []pipeline.Option{
		pipeline.WithJobTimeout(cfg.Concurrency.JobTimeout),
		pipeline.WithPipelineLogger(logging.NewLogger("pipeline")),
	}
	if cfg.Cache.Enabled && !noCache {
		opts = append(opts, pipeline.WithCache(cache.NewLayeredCache(cfg.Cache.MemoryTTL, cfg.Cache.Dir, cfg.Cache.DiskTTL)))
	}

	return pipeline.NewPipeline(fetcher, worker.NewPacer(cfg.Pacing.MinInterval, nil), opts...)
}

// newRotator builds the identity and proxy rotation from the configuration
func newRotator(cfg *model.Config, seed uint64) *worker.Rotator {
	return worker.NewRotator(worker.IdentitiesFromConfig(cfg.Identity), cfg.Identity.Proxies, cfg.Identity.Rotation, seed)
}

// serveMetrics exposes /metrics in the background when addr is set
func serveMetrics(ctx context.Context, addr string) {
	if addr == "" {
		return
	}
	logger := logging.NewLogger("metrics")
	go func() {
		if err := metrics.Serve(ctx, addr); err != nil {
			logger.Error().Err(err).Str("addr", addr).Msg("metrics listener failed")
		}
	}()
	logger.Info().Str("addr", addr).Msg("serving /metrics")
}

// writeOutcomeJSON prints an outcome as indented JSON
func writeOutcomeJSON(w io.Writer, o model.Outcome) error {
	view := struct {
		Number string              `json:"number"`
		Status model.Status        `json:"status"`
		Reason string              `json:"reason,omitempty"`
		Error  string              `json:"error,omitempty"`
		Record *model.PatentRecord `json:"record,omitempty"`
	}{
		Number: o.Number,
		Status: o.Status,
		Reason: o.Reason(),
		Record: o.Record,
	}
	if o.Err != nil {
		view.Error = o.Err.Error()
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(view); err != nil {
		return fmt.Errorf("encode outcome: %w", err)
	}
	return nil
}
