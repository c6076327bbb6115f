// Package pacing implements the pacing multiplier state and the respectful
// inter-request delay gate, including preemptive rate-limit header checks.
package pacing

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Multiplier clamp bounds. Every adjustment path respects these.
const (
	// MinMultiplier is the floor of the pacing multiplier.
	MinMultiplier = 0.5

	// MaxMultiplier is the cap of the pacing multiplier.
	MaxMultiplier = 8.0
)

var pacingMultiplier = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "refharvest_pacing_multiplier",
	Help: "Current pacing multiplier applied to the base inter-request delay",
})

// State holds the pacing multiplier. It is owned by the single collection
// loop; no locking.
type State struct {
	multiplier float64
}

// NewState creates pacing state with a neutral multiplier of 1.0.
func NewState() *State {
	pacingMultiplier.Set(1.0)
	return &State{multiplier: 1.0}
}

// Multiplier returns the current multiplier.
func (s *State) Multiplier() float64 {
	return s.multiplier
}

// Scale multiplies the pacing multiplier by factor, clamped to
// [MinMultiplier, MaxMultiplier], and returns the new value.
func (s *State) Scale(factor float64) float64 {
	s.multiplier *= factor
	if s.multiplier > MaxMultiplier {
		s.multiplier = MaxMultiplier
	}
	if s.multiplier < MinMultiplier {
		s.multiplier = MinMultiplier
	}
	pacingMultiplier.Set(s.multiplier)
	return s.multiplier
}
