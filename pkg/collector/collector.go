package collector

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/refharvest/refharvest/pkg/cache"
	"github.com/refharvest/refharvest/pkg/config"
	"github.com/refharvest/refharvest/pkg/fetch"
	"github.com/refharvest/refharvest/pkg/pacing"
	"github.com/refharvest/refharvest/pkg/quality"
	"github.com/refharvest/refharvest/pkg/record"
)

var runDurationSeconds = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "refharvest_run_duration_seconds",
	Help: "Wall-clock duration of the most recent collection run",
})

// Collector wires the fetcher, processor, store, assessor, pacing gate, and
// adaptive controller into the single sequential collection loop.
type Collector struct {
	cfg        *config.Config
	stats      *Stats
	store      *record.Store
	processor  *record.Processor
	assessor   *quality.Assessor
	fetcher    *fetch.Fetcher
	gate       *pacing.Gate
	controller *Controller
	logger     zerolog.Logger
}

// New creates a collector for the given collection plan.
func New(cfg *config.Config, logger zerolog.Logger) *Collector {
	stats := NewStats()
	state := pacing.NewState()

	return &Collector{
		cfg:       cfg,
		stats:     stats,
		store:     record.NewStore(cfg.DedupeKeyFields, logger),
		processor: record.NewProcessor(cfg.FieldsToKeep, cfg.RequiredFields, logger),
		assessor: quality.NewAssessor(
			cfg.RequiredFields, cfg.Quality.IDField, cfg.Quality.NameField, logger),
		fetcher:    fetch.NewFetcher(cfg, stats, logger),
		gate:       pacing.NewGate(cfg.BaseDelay, cfg.RespectRPM, state, logger),
		controller: NewController(cfg, state, logger),
		logger:     logger,
	}
}

// SetPageCache enables the optional redis-backed page cache on the fetcher.
func (c *Collector) SetPageCache(manager *cache.Manager) {
	c.fetcher.SetCache(manager)
}

// Stats returns the run statistics.
func (c *Collector) Stats() *Stats {
	return c.stats
}

// Store returns the record store.
func (c *Collector) Store() *record.Store {
	return c.store
}

// Fetcher returns the page fetcher.
func (c *Collector) Fetcher() *fetch.Fetcher {
	return c.fetcher
}

// Gate returns the pacing gate.
func (c *Collector) Gate() *pacing.Gate {
	return c.gate
}

// Multiplier returns the current pacing multiplier.
func (c *Collector) Multiplier() float64 {
	return c.controller.state.Multiplier()
}

// Run executes the collection loop until the record target or the page budget
// is reached, then returns the final quality report. Each iteration assesses
// the accumulated store, reviews pacing, fetches one page, shapes and stores
// its records, and waits the respectful delay. Page failures never abort the
// run; cancellation of ctx does.
func (c *Collector) Run(ctx context.Context) quality.Report {
	c.logger.Info().
		Str("endpoint", c.cfg.Endpoint).
		Int("target_records", c.cfg.TargetRecords).
		Int("max_pages", c.cfg.MaxPages).
		Msg("Starting collection run")

	for !c.done() {
		if ctx.Err() != nil {
			c.logger.Warn().Err(ctx.Err()).Msg("Run cancelled")
			break
		}

		report := c.assessor.Assess(c.store.Records())
		c.stats.QualityScore = report.Score

		c.controller.Review(c.stats.SuccessRate())

		payload := c.fetcher.FetchPage(ctx)
		if payload != nil && len(payload.Results) > 0 {
			batch := c.processor.Project(payload.Results)
			if c.processor.Validate(batch) {
				c.store.Add(batch)
			}
		}

		c.gate.Delay(c.fetcher.LastHeaders())
	}

	final := c.assessor.Assess(c.store.Records())
	c.stats.QualityScore = final.Score
	runDurationSeconds.Set(c.stats.Elapsed().Seconds())

	c.logger.Info().
		Int("records", c.store.Len()).
		Int("pages", c.stats.PagesFetched).
		Float64("quality_score", final.Score).
		Dur("elapsed", c.stats.Elapsed()).
		Msg("Collection run finished")

	return final
}

// done reports whether the record target or the page budget has been reached.
func (c *Collector) done() bool {
	return c.store.Len() >= c.cfg.TargetRecords || c.stats.PagesFetched >= c.cfg.MaxPages
}
