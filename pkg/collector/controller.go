package collector

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/refharvest/refharvest/pkg/config"
	"github.com/refharvest/refharvest/pkg/pacing"
)

var strategyAdjustments = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "refharvest_strategy_adjustments_total",
	Help: "Pacing strategy adjustments by action",
}, []string{"action"})

// Success-rate thresholds driving the pacing rules.
const (
	// degradedRate marks sustained failure: below it, delays double and the
	// page size shrinks.
	degradedRate = 0.5

	// healthyRate separates the full strategy adjustment from the gentle
	// inline nudge.
	healthyRate = 0.8

	// excellentRate marks a run healthy enough to speed up.
	excellentRate = 0.9
)

// Controller adjusts the pacing multiplier and request shape from the
// observed success rate. It shares the pacing state with the delay gate and
// the config with the fetcher, so adjustments take effect on the next page.
type Controller struct {
	cfg    *config.Config
	state  *pacing.State
	logger zerolog.Logger
}

// NewController creates a controller over the shared pacing state.
func NewController(cfg *config.Config, state *pacing.State, logger zerolog.Logger) *Controller {
	return &Controller{cfg: cfg, state: state, logger: logger}
}

// Review applies the pacing rules for the observed success rate. A degraded
// or struggling run goes through the full strategy adjustment; a run above
// the healthy threshold gets at most a gentle speed-up. The two paths use
// different speed-up factors on purpose.
func (c *Controller) Review(successRate float64) {
	if successRate < healthyRate {
		c.Adjust(successRate)
		return
	}
	if successRate > excellentRate {
		m := c.state.Scale(0.9)
		strategyAdjustments.WithLabelValues("ease").Inc()
		c.logger.Debug().
			Float64("success_rate", successRate).
			Float64("multiplier", m).
			Msg("High success rate, easing delay")
	}
}

// Adjust applies the full strategy rules: below the degraded threshold the
// delay doubles and the page size halves, below the healthy threshold the
// delay grows by half, and above the excellent threshold it shrinks. Every
// change is clamped by the pacing state.
func (c *Controller) Adjust(successRate float64) {
	switch {
	case successRate < degradedRate:
		m := c.state.Scale(2.0)
		limit := c.cfg.ShrinkPageLimit()
		strategyAdjustments.WithLabelValues("slow_hard").Inc()
		c.logger.Warn().
			Float64("success_rate", successRate).
			Float64("multiplier", m).
			Int("page_limit", limit).
			Msg("Low success rate, doubling delay and shrinking page size")
	case successRate < healthyRate:
		m := c.state.Scale(1.5)
		strategyAdjustments.WithLabelValues("slow_soft").Inc()
		c.logger.Warn().
			Float64("success_rate", successRate).
			Float64("multiplier", m).
			Msg("Degraded success rate, raising delay")
	case successRate > excellentRate:
		m := c.state.Scale(0.8)
		strategyAdjustments.WithLabelValues("speed_up").Inc()
		c.logger.Info().
			Float64("success_rate", successRate).
			Float64("multiplier", m).
			Msg("High success rate, lowering delay")
	}
}
