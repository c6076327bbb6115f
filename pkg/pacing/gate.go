package pacing

import (
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for the delay gate.
var (
	delaySeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "refharvest_delay_seconds",
		Help:    "Inter-request respectful delay durations",
		Buckets: []float64{0.5, 1, 2, 5, 10, 15, 30, 60, 120},
	})

	preemptiveEscalations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "refharvest_preemptive_escalations_total",
		Help: "Pacing escalations triggered by low rate-limit-remaining headers",
	})
)

// rateLimitRemainingSuffix matches any response header announcing remaining
// rate-limit budget, regardless of vendor prefix or casing.
const rateLimitRemainingSuffix = "ratelimit-remaining"

// remainingThreshold triggers a preemptive slowdown when the announced
// remaining budget drops below it.
const remainingThreshold = 2.0

// Gate computes and applies the respectful delay between requests. It shares
// the pacing State with the adaptive controller. Sleeps are blocking; the
// collection loop issues one request at a time.
type Gate struct {
	baseDelay float64 // seconds
	rpm       float64 // soft requests-per-minute budget
	state     *State
	logger    zerolog.Logger

	// Injection points for tests.
	sleepFn  func(time.Duration)
	jitterFn func() float64
}

// NewGate creates a delay gate over the given pacing state.
func NewGate(baseDelay, rpm float64, state *State, logger zerolog.Logger) *Gate {
	return &Gate{
		baseDelay: baseDelay,
		rpm:       rpm,
		state:     state,
		logger:    logger,
		sleepFn:   time.Sleep,
		jitterFn:  func() float64 { return 0.8 + rand.Float64()*0.5 },
	}
}

// SetSleep sets a custom sleep function (for testing).
func (g *Gate) SetSleep(fn func(time.Duration)) {
	g.sleepFn = fn
}

// SetJitter sets a custom jitter source (for testing).
func (g *Gate) SetJitter(fn func() float64) {
	g.jitterFn = fn
}

// MinInterval returns the per-request interval floor derived from the RPM
// budget, never below half a second.
func (g *Gate) MinInterval() float64 {
	rpm := g.rpm
	if rpm < 0.1 {
		rpm = 0.1
	}
	interval := 60.0 / rpm
	if interval < 0.5 {
		interval = 0.5
	}
	return interval
}

// PreJitterDelay returns the effective delay in seconds before jitter:
// max(base delay, RPM floor) scaled by the pacing multiplier.
func (g *Gate) PreJitterDelay() float64 {
	delay := g.baseDelay
	if min := g.MinInterval(); min > delay {
		delay = min
	}
	return delay * g.state.Multiplier()
}

// Delay sleeps for the jittered respectful delay. The last response headers
// are inspected for rate-limit exhaustion first, but an escalation affects
// the next delay, not this one; the sleep uses the delay computed on entry.
func (g *Gate) Delay(lastHeaders http.Header) {
	sleep := g.PreJitterDelay() * g.jitterFn()

	g.CheckRateLimits(lastHeaders)

	duration := time.Duration(sleep * float64(time.Second))
	delaySeconds.Observe(sleep)
	g.logger.Info().
		Float64("sleep_seconds", sleep).
		Float64("multiplier", g.state.Multiplier()).
		Msg("Respectful delay")

	g.sleepFn(duration)
}

// CheckRateLimits scans the headers for any name ending in the rate-limit
// remaining marker (case-insensitive). If the value parses and is below the
// threshold, the multiplier is escalated preemptively, independent of the
// controller's own transitions.
func (g *Gate) CheckRateLimits(headers http.Header) {
	remaining, found := remainingFromHeaders(headers)
	if !found {
		return
	}

	if remaining < remainingThreshold {
		m := g.state.Scale(1.5)
		preemptiveEscalations.Inc()
		g.logger.Warn().
			Float64("remaining", remaining).
			Float64("multiplier", m).
			Msg("Near rate limit, increasing delay multiplier")
	}
}

// remainingFromHeaders extracts the last parseable rate-limit-remaining
// value. Unparseable values are ignored.
func remainingFromHeaders(headers http.Header) (float64, bool) {
	var remaining float64
	found := false
	for name, values := range headers {
		if !strings.HasSuffix(strings.ToLower(name), rateLimitRemainingSuffix) {
			continue
		}
		if len(values) == 0 {
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(values[0]), 64)
		if err != nil {
			continue
		}
		remaining = v
		found = true
	}
	return remaining, found
}
